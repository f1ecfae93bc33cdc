package consensus

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/truthstamp/internal/storage"
)

// ErrNoResult is returned when a claim has no recorded consensus.
var ErrNoResult = errors.New("no consensus result")

var (
	prefixResult  = []byte("k/")
	prefixHistory = []byte("kh/")
)

func resultKey(claimID uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, prefixResult...), claimID)
}

func historyPrefix(claimID uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, prefixHistory...), claimID)
}

func historyKey(claimID uint64, rev uint32) []byte {
	return binary.BigEndian.AppendUint32(historyPrefix(claimID), rev)
}

// Store keeps the current result per claim under "k/<claim>" and every
// revision under "kh/<claim><rev>".
type Store struct {
	db storage.DB
}

// NewStore creates a store over db.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Get returns the current result or ErrNoResult.
func (s *Store) Get(claimID uint64) (*Result, error) {
	data, err := s.db.Get(resultKey(claimID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: claim %d", ErrNoResult, claimID)
	}
	if err != nil {
		return nil, fmt.Errorf("consensus get: %w", err)
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("consensus unmarshal: %w", err)
	}
	return &r, nil
}

// Put records r as the claim's current result and appends it to history.
func (s *Store) Put(r *Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("consensus marshal: %w", err)
	}
	if err := s.db.Put(historyKey(r.ClaimID, r.Revision), data); err != nil {
		return err
	}
	return s.db.Put(resultKey(r.ClaimID), data)
}

// History returns every recorded revision, oldest first.
func (s *Store) History(claimID uint64) ([]*Result, error) {
	var out []*Result
	err := s.db.ForEach(historyPrefix(claimID), func(_, value []byte) error {
		var r Result
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("consensus unmarshal: %w", err)
		}
		out = append(out, &r)
		return nil
	})
	return out, err
}
