package expert

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/truthstamp/internal/fault"
	"github.com/Klingon-tech/truthstamp/internal/storage"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

var prefixExpert = []byte("x/")

func expertKey(addr types.Address) []byte {
	return append(append([]byte{}, prefixExpert...), addr[:]...)
}

// Store persists expert records as JSON under "x/<address>".
type Store struct {
	db storage.DB
}

// NewStore creates a store over db.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Get returns the expert at addr or fault.ErrExpertNotRegistered.
func (s *Store) Get(addr types.Address) (*Expert, error) {
	data, err := s.db.Get(expertKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", fault.ErrExpertNotRegistered, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("expert get: %w", err)
	}
	var e Expert
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("expert unmarshal: %w", err)
	}
	return &e, nil
}

// Has reports whether addr is registered.
func (s *Store) Has(addr types.Address) (bool, error) {
	return s.db.Has(expertKey(addr))
}

// Put stores the expert record.
func (s *Store) Put(e *Expert) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("expert marshal: %w", err)
	}
	return s.db.Put(expertKey(e.Address), data)
}

// Delete removes the expert record.
func (s *Store) Delete(addr types.Address) error {
	return s.db.Delete(expertKey(addr))
}

// ForEach visits experts in address order.
func (s *Store) ForEach(fn func(*Expert) error) error {
	return s.db.ForEach(prefixExpert, func(_, value []byte) error {
		var e Expert
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("expert unmarshal: %w", err)
		}
		return fn(&e)
	})
}

// Count returns the number of registered experts.
func (s *Store) Count() (uint64, error) {
	var n uint64
	err := s.db.ForEach(prefixExpert, func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}
