package storage

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

type memItem struct {
	key   string
	value []byte
}

func memLess(a, b memItem) bool { return a.key < b.key }

// MemoryDB implements DB with an ordered in-memory B-tree. It is safe for
// concurrent use.
type MemoryDB struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[memItem]
}

// NewMemory creates a new in-memory database.
func NewMemory() *MemoryDB {
	return &MemoryDB{tree: btree.NewG(32, memLess)}
}

// Get retrieves a value by key.
func (m *MemoryDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.tree.Get(memItem{key: string(key)})
	if !ok {
		return nil, ErrNotFound
	}
	return clone(item.value), nil
}

// Put stores a key-value pair.
func (m *MemoryDB) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.ReplaceOrInsert(memItem{key: string(key), value: clone(value)})
	return nil
}

// Delete removes a key.
func (m *MemoryDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.Delete(memItem{key: string(key)})
	return nil
}

// Has checks if a key exists.
func (m *MemoryDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Has(memItem{key: string(key)}), nil
}

// ForEach iterates over all keys with the given prefix in key order.
// Matching entries are snapshotted first so fn may write to the database.
func (m *MemoryDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	var matches []memItem
	m.mu.RLock()
	m.tree.AscendGreaterOrEqual(memItem{key: string(prefix)}, func(item memItem) bool {
		if !bytes.HasPrefix([]byte(item.key), prefix) {
			return false
		}
		matches = append(matches, item)
		return true
	})
	m.mu.RUnlock()

	for _, item := range matches {
		if err := fn([]byte(item.key), clone(item.value)); err != nil {
			return err
		}
	}
	return nil
}

// NewBatch returns a batch applied under a single write lock.
func (m *MemoryDB) NewBatch() Batch {
	return &memoryBatch{db: m}
}

// Close closes the database.
func (m *MemoryDB) Close() error {
	return nil
}

type memoryBatch struct {
	db  *MemoryDB
	ops []batchOp
}

func (b *memoryBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, batchOp{key: clone(key), value: clone(value)})
	return nil
}

func (b *memoryBatch) Delete(key []byte) error {
	b.ops = append(b.ops, batchOp{key: clone(key), delete: true})
	return nil
}

func (b *memoryBatch) Commit() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, op := range b.ops {
		if op.delete {
			b.db.tree.Delete(memItem{key: string(op.key)})
		} else {
			b.db.tree.ReplaceOrInsert(memItem{key: string(op.key), value: op.value})
		}
	}
	b.ops = nil
	return nil
}
