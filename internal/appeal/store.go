package appeal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/truthstamp/internal/storage"
)

var prefixAppeal = []byte("a/")

func appealKey(claimID uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, prefixAppeal...), claimID)
}

// Store keeps the latest appeal of each claim under "a/<claim>".
type Store struct {
	db storage.DB
}

// NewStore creates a store over db.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Get returns the claim's appeal, or nil if none was filed.
func (s *Store) Get(claimID uint64) (*Appeal, error) {
	data, err := s.db.Get(appealKey(claimID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("appeal get: %w", err)
	}
	var a Appeal
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("appeal unmarshal: %w", err)
	}
	return &a, nil
}

// Put stores the appeal.
func (s *Store) Put(a *Appeal) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("appeal marshal: %w", err)
	}
	return s.db.Put(appealKey(a.ClaimID), data)
}
