package settlement

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Klingon-tech/truthstamp/internal/ledger"
	"github.com/Klingon-tech/truthstamp/internal/storage"
	"github.com/Klingon-tech/truthstamp/pkg/crypto"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

// Kind labels a journal entry.
type Kind string

const (
	KindReturn    Kind = "return"
	KindReward    Kind = "reward"
	KindSlash     Kind = "slash"
	KindFee       Kind = "fee"
	KindRemainder Kind = "remainder"
	// KindClawback compensates an earlier payout when a verdict is
	// overturned.
	KindClawback Kind = "clawback"
	// KindBackstop is insurance money covering clawbacks that could not
	// be recovered.
	KindBackstop Kind = "backstop"
	KindBond     Kind = "bond"
	KindPayout   Kind = "payout"
)

// Entry is one journaled movement of value for a claim. Entries are
// append-only; each one commits to its predecessor's hash.
type Entry struct {
	ClaimID uint64         `json:"claim_id"`
	Seq     uint64         `json:"seq"`
	RunID   uuid.UUID      `json:"run_id"`
	Kind    Kind           `json:"kind"`
	From    ledger.Account `json:"from"`
	To      ledger.Account `json:"to"`
	Amount  uint64         `json:"amount"`
	// Reverses is the sequence number of the entry this one compensates.
	Reverses uint64     `json:"reverses,omitempty"`
	PrevHash types.Hash `json:"prev_hash"`
	Hash     types.Hash `json:"hash"`
}

// computeHash hashes the entry with its own Hash field cleared.
func (e *Entry) computeHash() (types.Hash, error) {
	cp := *e
	cp.Hash = types.Hash{}
	data, err := json.Marshal(&cp)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.ChainHash(e.PrevHash, data), nil
}

// Run records one settlement of a claim: the plan that was executed and
// the journal range it produced.
type Run struct {
	ID       uuid.UUID `json:"id"`
	ClaimID  uint64    `json:"claim_id"`
	Revision uint32    `json:"revision"`
	Plan

	// Shortfall is pool value that could neither be clawed back nor
	// covered by insurance during a re-settlement.
	Shortfall uint64 `json:"shortfall,omitempty"`
	// Deferred is the amount owed to experts as liabilities because the
	// pool could not pay them in full.
	Deferred  uint64    `json:"deferred,omitempty"`
	FirstSeq  uint64    `json:"first_seq"`
	LastSeq   uint64    `json:"last_seq"`
	SettledAt time.Time `json:"settled_at"`
}

// Key layout:
//
//	s/<claim><seq>    entry
//	sh/<claim>        head {seq, hash}
//	sr/<claim><rev>   run
var (
	prefixEntry = []byte("s/")
	prefixHead  = []byte("sh/")
	prefixRun   = []byte("sr/")
)

func claimKey(prefix []byte, claimID uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, prefix...), claimID)
}

func entryKey(claimID, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(claimKey(prefixEntry, claimID), seq)
}

func runKey(claimID uint64, rev uint32) []byte {
	return binary.BigEndian.AppendUint32(claimKey(prefixRun, claimID), rev)
}

type head struct {
	Seq  uint64     `json:"seq"`
	Hash types.Hash `json:"hash"`
}

// ErrBrokenChain is returned by Verify when an entry does not link to its
// predecessor.
var ErrBrokenChain = errors.New("settlement journal: broken hash chain")

// Journal is the per-claim settlement history.
type Journal struct {
	db storage.DB
}

// NewJournal creates a journal over db.
func NewJournal(db storage.DB) *Journal {
	return &Journal{db: db}
}

func (j *Journal) head(claimID uint64) (head, error) {
	var h head
	data, err := j.db.Get(claimKey(prefixHead, claimID))
	if errors.Is(err, storage.ErrNotFound) {
		return h, nil
	}
	if err != nil {
		return h, fmt.Errorf("journal head: %w", err)
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("journal head: %w", err)
	}
	return h, nil
}

// Append assigns e the next sequence number, links it to the current head
// and stores it.
func (j *Journal) Append(e *Entry) error {
	h, err := j.head(e.ClaimID)
	if err != nil {
		return err
	}
	e.Seq = h.Seq + 1
	e.PrevHash = h.Hash
	if e.Hash, err = e.computeHash(); err != nil {
		return fmt.Errorf("journal hash: %w", err)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal marshal: %w", err)
	}
	if err := j.db.Put(entryKey(e.ClaimID, e.Seq), data); err != nil {
		return err
	}
	hd, err := json.Marshal(head{Seq: e.Seq, Hash: e.Hash})
	if err != nil {
		return err
	}
	return j.db.Put(claimKey(prefixHead, e.ClaimID), hd)
}

// Entries returns the claim's journal in sequence order.
func (j *Journal) Entries(claimID uint64) ([]*Entry, error) {
	var out []*Entry
	err := j.db.ForEach(claimKey(prefixEntry, claimID), func(_, value []byte) error {
		var e Entry
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("journal unmarshal: %w", err)
		}
		out = append(out, &e)
		return nil
	})
	return out, err
}

// Verify walks the claim's journal and checks every hash link.
func (j *Journal) Verify(claimID uint64) error {
	entries, err := j.Entries(claimID)
	if err != nil {
		return err
	}
	var prev types.Hash
	for i, e := range entries {
		if e.Seq != uint64(i+1) || e.PrevHash != prev {
			return fmt.Errorf("%w: claim %d entry %d", ErrBrokenChain, claimID, e.Seq)
		}
		h, err := e.computeHash()
		if err != nil {
			return err
		}
		if h != e.Hash {
			return fmt.Errorf("%w: claim %d entry %d hash mismatch", ErrBrokenChain, claimID, e.Seq)
		}
		prev = e.Hash
	}
	return nil
}

// PutRun stores a settlement run.
func (j *Journal) PutRun(r *Run) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("run marshal: %w", err)
	}
	return j.db.Put(runKey(r.ClaimID, r.Revision), data)
}

// Runs returns the claim's settlement runs, oldest first.
func (j *Journal) Runs(claimID uint64) ([]*Run, error) {
	var out []*Run
	err := j.db.ForEach(claimKey(prefixRun, claimID), func(_, value []byte) error {
		var r Run
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("run unmarshal: %w", err)
		}
		out = append(out, &r)
		return nil
	})
	return out, err
}

// LastRun returns the claim's latest run, or nil if it was never settled.
func (j *Journal) LastRun(claimID uint64) (*Run, error) {
	runs, err := j.Runs(claimID)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[len(runs)-1], nil
}
