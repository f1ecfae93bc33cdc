package review

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/truthstamp/internal/fault"
	"github.com/Klingon-tech/truthstamp/internal/storage"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

// Key layout:
//
//	r/<id>                 review JSON
//	rc/<claim><expert>     review id, by claim
//	re/<expert><claim>     review id, by expert
var (
	prefixReview   = []byte("r/")
	prefixByClaim  = []byte("rc/")
	prefixByExpert = []byte("re/")
)

func u64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func key(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func reviewKey(id uint64) []byte { return key(prefixReview, u64(id)) }

func claimIndexKey(claimID uint64, expert types.Address) []byte {
	return key(prefixByClaim, u64(claimID), expert[:])
}

func expertIndexKey(expert types.Address, claimID uint64) []byte {
	return key(prefixByExpert, expert[:], u64(claimID))
}

// Store persists reviews with secondary indexes by claim and by expert.
type Store struct {
	db storage.DB
}

// NewStore creates a store over db.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Get returns the review or fault.ErrReviewNotFound.
func (s *Store) Get(id uint64) (*Review, error) {
	data, err := s.db.Get(reviewKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", fault.ErrReviewNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("review get: %w", err)
	}
	var r Review
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("review unmarshal: %w", err)
	}
	return &r, nil
}

// Has reports whether expert has reviewed the claim.
func (s *Store) Has(claimID uint64, expert types.Address) (bool, error) {
	return s.db.Has(claimIndexKey(claimID, expert))
}

// Add stores a new review and its index entries.
func (s *Store) Add(r *Review) error {
	if err := s.Put(r); err != nil {
		return err
	}
	id := u64(r.ID)
	if err := s.db.Put(claimIndexKey(r.ClaimID, r.Expert), id); err != nil {
		return err
	}
	return s.db.Put(expertIndexKey(r.Expert, r.ClaimID), id)
}

// Put overwrites an existing review record. Indexes are not touched.
func (s *Store) Put(r *Review) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("review marshal: %w", err)
	}
	return s.db.Put(reviewKey(r.ID), data)
}

// ByClaim returns the claim's reviews ordered by expert address.
func (s *Store) ByClaim(claimID uint64) ([]*Review, error) {
	return s.collect(key(prefixByClaim, u64(claimID)))
}

// ByExpert returns the expert's reviews ordered by claim id.
func (s *Store) ByExpert(expert types.Address) ([]*Review, error) {
	return s.collect(key(prefixByExpert, expert[:]))
}

// ClaimIDs returns the ids of the claims the expert has reviewed.
func (s *Store) ClaimIDs(expert types.Address) ([]uint64, error) {
	prefix := key(prefixByExpert, expert[:])
	var ids []uint64
	err := s.db.ForEach(prefix, func(k, _ []byte) error {
		if len(k) != len(prefix)+8 {
			return fmt.Errorf("review index: malformed key %x", k)
		}
		ids = append(ids, binary.BigEndian.Uint64(k[len(prefix):]))
		return nil
	})
	return ids, err
}

func (s *Store) collect(prefix []byte) ([]*Review, error) {
	var ids []uint64
	err := s.db.ForEach(prefix, func(_, value []byte) error {
		if len(value) != 8 {
			return fmt.Errorf("review index: malformed id %x", value)
		}
		ids = append(ids, binary.BigEndian.Uint64(value))
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Review, 0, len(ids))
	for _, id := range ids {
		r, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
