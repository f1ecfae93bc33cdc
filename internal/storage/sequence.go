package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Sequence allocates monotonically increasing identifiers starting at 1.
// The counter is advanced through the transaction that uses the
// identifier, so an identifier exists once that transaction commits and
// a discarded transaction leaves no gap. Callers serialize allocations of
// one sequence until the allocating transaction is committed or discarded.
type Sequence struct {
	key []byte
}

// NewSequence opens the sequence stored under key and checks its value.
func NewSequence(db DB, key []byte) (*Sequence, error) {
	s := &Sequence{key: clone(key)}
	if _, err := s.Last(db); err != nil {
		return nil, err
	}
	return s, nil
}

// Name identifies the sequence, for use as a lock key.
func (s *Sequence) Name() string {
	return "seq/" + string(s.key)
}

// Next stages the identifier after the last one in db and returns it.
func (s *Sequence) Next(db DB) (uint64, error) {
	last, err := s.Last(db)
	if err != nil {
		return 0, err
	}
	next := last + 1
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], next)
	if err := db.Put(s.key, buf[:]); err != nil {
		return 0, fmt.Errorf("stage sequence %s: %w", s.key, err)
	}
	return next, nil
}

// Last returns the most recent identifier in db, or 0.
func (s *Sequence) Last(db DB) (uint64, error) {
	data, err := db.Get(s.key)
	switch {
	case errors.Is(err, ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("load sequence %s: %w", s.key, err)
	case len(data) != 8:
		return 0, fmt.Errorf("load sequence %s: corrupt value (%d bytes)", s.key, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}
