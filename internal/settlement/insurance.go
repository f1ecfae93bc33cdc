package settlement

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Klingon-tech/truthstamp/internal/ledger"
	"github.com/Klingon-tech/truthstamp/internal/log"
	"github.com/Klingon-tech/truthstamp/internal/storage"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

// Books is the staged view of the ledger a settlement writes through.
// *ledger.Stage implements it.
type Books interface {
	Transfer(from, to ledger.Account, amount uint64, memo string) error
	Available(acct ledger.Account) (uint64, error)
}

// Liability is an amount the insurance pool owes but could not pay when
// it fell due. Liabilities are paid oldest first from later inflows.
type Liability struct {
	ID          uuid.UUID     `json:"id"`
	Seq         uint64        `json:"seq"`
	Beneficiary types.Address `json:"beneficiary"`
	Amount      uint64        `json:"amount"`
	Paid        uint64        `json:"paid"`
	ClaimID     uint64        `json:"claim_id"`
	Reason      string        `json:"reason"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Outstanding is the unpaid part of the liability.
func (l *Liability) Outstanding() uint64 {
	return l.Amount - l.Paid
}

// PoolState is the bookkeeping kept next to the insurance balance, which
// itself lives in the ledger.
type PoolState struct {
	NextSeq uint64 `json:"next_seq"`
	// TotalDeferred is the sum of outstanding liabilities.
	TotalDeferred uint64 `json:"total_deferred"`
	// TotalPaid is everything ever paid against liabilities.
	TotalPaid uint64 `json:"total_paid"`
}

var (
	keyPool         = []byte("ip")
	prefixLiability = []byte("il/")
)

func liabilityKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, prefixLiability...), seq)
}

// Insurance tracks deferred liabilities of the insurance pool.
type Insurance struct {
	db storage.DB
}

// NewInsurance creates the tracker over db.
func NewInsurance(db storage.DB) *Insurance {
	return &Insurance{db: db}
}

// State returns the pool bookkeeping.
func (in *Insurance) State() (*PoolState, error) {
	var st PoolState
	data, err := in.db.Get(keyPool)
	if errors.Is(err, storage.ErrNotFound) {
		return &st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("insurance state: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("insurance state: %w", err)
	}
	return &st, nil
}

func (in *Insurance) putState(st *PoolState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return in.db.Put(keyPool, data)
}

func (in *Insurance) putLiability(l *Liability) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("liability marshal: %w", err)
	}
	return in.db.Put(liabilityKey(l.Seq), data)
}

// Defer records that beneficiary is owed amount.
func (in *Insurance) Defer(beneficiary types.Address, amount, claimID uint64, reason string, now time.Time) (*Liability, error) {
	st, err := in.State()
	if err != nil {
		return nil, err
	}
	st.NextSeq++
	st.TotalDeferred += amount
	l := &Liability{
		ID:          uuid.New(),
		Seq:         st.NextSeq,
		Beneficiary: beneficiary,
		Amount:      amount,
		ClaimID:     claimID,
		Reason:      reason,
		CreatedAt:   now.UTC(),
	}
	if err := in.putLiability(l); err != nil {
		return nil, err
	}
	if err := in.putState(st); err != nil {
		return nil, err
	}
	log.Settlement.Warn().
		Str("beneficiary", beneficiary.String()).
		Uint64("amount", amount).
		Uint64("claim", claimID).
		Str("reason", reason).
		Msg("Liability deferred")
	return l, nil
}

// Liabilities returns outstanding liabilities, oldest first.
func (in *Insurance) Liabilities() ([]*Liability, error) {
	var out []*Liability
	err := in.db.ForEach(prefixLiability, func(_, value []byte) error {
		var l Liability
		if err := json.Unmarshal(value, &l); err != nil {
			return fmt.Errorf("liability unmarshal: %w", err)
		}
		out = append(out, &l)
		return nil
	})
	return out, err
}

// Pay transfers up to amount from the insurance pool to beneficiary's
// wallet and defers whatever the pool cannot cover. It returns the amount
// paid now and the amount deferred.
func (in *Insurance) Pay(books Books, beneficiary types.Address, amount, claimID uint64, reason string, now time.Time) (paid, deferred uint64, err error) {
	avail, err := books.Available(ledger.Insurance)
	if err != nil {
		return 0, 0, err
	}
	paid = min(amount, avail)
	if err := books.Transfer(ledger.Insurance, ledger.Wallet(beneficiary), paid, reason); err != nil {
		return 0, 0, err
	}
	if deferred = amount - paid; deferred > 0 {
		if _, err := in.Defer(beneficiary, deferred, claimID, reason, now); err != nil {
			return 0, 0, err
		}
	}
	return paid, deferred, nil
}

// PayDown pays outstanding liabilities in order of creation for as long as
// the insurance pool has funds. Fully paid liabilities are removed.
func (in *Insurance) PayDown(books Books) (uint64, error) {
	st, err := in.State()
	if err != nil || st.TotalDeferred == 0 {
		return 0, err
	}
	ls, err := in.Liabilities()
	if err != nil {
		return 0, err
	}

	var total uint64
	for _, l := range ls {
		avail, err := books.Available(ledger.Insurance)
		if err != nil {
			return 0, err
		}
		if avail == 0 {
			break
		}
		amt := min(l.Outstanding(), avail)
		memo := "liability " + l.ID.String()
		if err := books.Transfer(ledger.Insurance, ledger.Wallet(l.Beneficiary), amt, memo); err != nil {
			return 0, err
		}
		l.Paid += amt
		total += amt
		if l.Outstanding() == 0 {
			err = in.db.Delete(liabilityKey(l.Seq))
		} else {
			err = in.putLiability(l)
		}
		if err != nil {
			return 0, err
		}
	}
	if total == 0 {
		return 0, nil
	}
	st.TotalDeferred -= total
	st.TotalPaid += total
	if err := in.putState(st); err != nil {
		return 0, err
	}
	log.Settlement.Info().Uint64("amount", total).Uint64("outstanding", st.TotalDeferred).Msg("Liabilities paid down")
	return total, nil
}
