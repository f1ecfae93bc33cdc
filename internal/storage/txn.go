package storage

import (
	"bytes"
	"errors"
	"sort"
	"sync"
)

type pending struct {
	value   []byte
	deleted bool
}

// Txn stages writes over a DB. Reads see the staged writes first; nothing
// reaches the underlying DB until Commit, which applies every staged write
// in one batch. A Txn that is never committed leaves no trace.
type Txn struct {
	mu     sync.Mutex
	db     DB
	writes map[string]pending
	done   bool
}

// NewTxn starts a transaction over db.
func NewTxn(db DB) *Txn {
	return &Txn{db: db, writes: make(map[string]pending)}
}

// ErrTxnDone is returned when a committed or discarded Txn is used again.
var ErrTxnDone = errors.New("transaction already finished")

// Get returns the staged value for key, falling back to the DB.
func (t *Txn) Get(key []byte) ([]byte, error) {
	t.mu.Lock()
	w, ok := t.writes[string(key)]
	t.mu.Unlock()
	if ok {
		if w.deleted {
			return nil, ErrNotFound
		}
		return clone(w.value), nil
	}
	return t.db.Get(key)
}

// Put stages a write.
func (t *Txn) Put(key, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxnDone
	}
	t.writes[string(key)] = pending{value: clone(value)}
	return nil
}

// Delete stages a deletion.
func (t *Txn) Delete(key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxnDone
	}
	t.writes[string(key)] = pending{deleted: true}
	return nil
}

// Has reports whether key exists in the staged view.
func (t *Txn) Has(key []byte) (bool, error) {
	t.mu.Lock()
	w, ok := t.writes[string(key)]
	t.mu.Unlock()
	if ok {
		return !w.deleted, nil
	}
	return t.db.Has(key)
}

// ForEach iterates the merged view of the DB and the staged writes in key
// order.
func (t *Txn) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	merged := make(map[string][]byte)
	if err := t.db.ForEach(prefix, func(key, value []byte) error {
		merged[string(key)] = value
		return nil
	}); err != nil {
		return err
	}

	t.mu.Lock()
	for k, w := range t.writes {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if w.deleted {
			delete(merged, k)
		} else {
			merged[k] = clone(w.value)
		}
	}
	t.mu.Unlock()

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), merged[k]); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of staged writes.
func (t *Txn) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.writes)
}

// Commit applies the staged writes in one batch.
func (t *Txn) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxnDone
	}
	t.done = true

	keys := make([]string, 0, len(t.writes))
	for k := range t.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	batch := NewBatch(t.db)
	for _, k := range keys {
		w := t.writes[k]
		var err error
		if w.deleted {
			err = batch.Delete([]byte(k))
		} else {
			err = batch.Put([]byte(k), w.value)
		}
		if err != nil {
			return err
		}
	}
	return batch.Commit()
}

// Discard drops the staged writes.
func (t *Txn) Discard() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	t.writes = make(map[string]pending)
}

// Close discards the transaction. It never closes the underlying DB.
func (t *Txn) Close() error {
	t.Discard()
	return nil
}
