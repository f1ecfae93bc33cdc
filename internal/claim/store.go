package claim

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/truthstamp/internal/fault"
	"github.com/Klingon-tech/truthstamp/internal/storage"
)

var prefixClaim = []byte("c/")

func claimKey(id uint64) []byte {
	key := make([]byte, len(prefixClaim)+8)
	copy(key, prefixClaim)
	binary.BigEndian.PutUint64(key[len(prefixClaim):], id)
	return key
}

// Store persists claims as JSON under "c/<id>" with big-endian ids so
// iteration follows submission order.
type Store struct {
	db storage.DB
}

// NewStore creates a store over db.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Get returns the claim or fault.ErrClaimNotFound.
func (s *Store) Get(id uint64) (*Claim, error) {
	data, err := s.db.Get(claimKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", fault.ErrClaimNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("claim get: %w", err)
	}
	var c Claim
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("claim unmarshal: %w", err)
	}
	return &c, nil
}

// Put stores the claim.
func (s *Store) Put(c *Claim) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("claim marshal: %w", err)
	}
	return s.db.Put(claimKey(c.ID), data)
}

// errStop ends a ForEach early without reporting an error.
var errStop = errors.New("stop")

// List returns up to limit claims with id >= start, in id order.
func (s *Store) List(start uint64, limit int) ([]*Claim, error) {
	var out []*Claim
	if limit <= 0 {
		return out, nil
	}
	err := s.db.ForEach(prefixClaim, func(key, value []byte) error {
		if binary.BigEndian.Uint64(key[len(prefixClaim):]) < start {
			return nil
		}
		var c Claim
		if err := json.Unmarshal(value, &c); err != nil {
			return fmt.Errorf("claim unmarshal: %w", err)
		}
		out = append(out, &c)
		if len(out) >= limit {
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	return out, nil
}
