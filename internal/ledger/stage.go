package ledger

import (
	"context"
	"fmt"
	"math"
)

// Stage collects the transfers of one engine operation. Balances read
// through a stage include the effect of the transfers staged so far, so a
// multi-step plan can check each step before anything reaches the ledger.
type Stage struct {
	ctx       context.Context
	ledger    Ledger
	base      map[Account]uint64
	in, out   map[Account]uint64
	transfers []Transfer
}

// NewStage starts an empty stage over l.
func NewStage(ctx context.Context, l Ledger) *Stage {
	return &Stage{
		ctx:    ctx,
		ledger: l,
		base:   make(map[Account]uint64),
		in:     make(map[Account]uint64),
		out:    make(map[Account]uint64),
	}
}

// Available returns the ledger balance of acct adjusted by staged
// transfers.
func (s *Stage) Available(acct Account) (uint64, error) {
	b, ok := s.base[acct]
	if !ok {
		var err error
		if b, err = s.ledger.Balance(s.ctx, acct); err != nil {
			return 0, fmt.Errorf("balance %s: %w", acct, err)
		}
		s.base[acct] = b
	}
	return b + s.in[acct] - s.out[acct], nil
}

// Transfer stages a transfer. It fails with ErrInsufficientFunds when from
// cannot cover amount after the transfers already staged.
func (s *Stage) Transfer(from, to Account, amount uint64, memo string) error {
	if amount == 0 || from == to {
		return nil
	}
	have, err := s.Available(from)
	if err != nil {
		return err
	}
	if have < amount {
		return fmt.Errorf("%w: %s needs %d, %s holds %d", ErrInsufficientFunds, memo, amount, from, have)
	}
	dst, err := s.Available(to)
	if err != nil {
		return err
	}
	if dst > math.MaxUint64-amount {
		return fmt.Errorf("ledger: %s overflows %s", memo, to)
	}
	s.out[from] += amount
	s.in[to] += amount
	s.transfers = append(s.transfers, Transfer{From: from, To: to, Amount: amount, Memo: memo})
	return nil
}

// Add stages t.
func (s *Stage) Add(t Transfer) error {
	return s.Transfer(t.From, t.To, t.Amount, t.Memo)
}

// Transfers returns the staged transfers in order.
func (s *Stage) Transfers() []Transfer {
	return append([]Transfer(nil), s.transfers...)
}

// Apply hands the staged transfers to the ledger as one batch.
func (s *Stage) Apply() error {
	if len(s.transfers) == 0 {
		return nil
	}
	return s.ledger.Apply(s.ctx, s.transfers)
}

// Undo reverts a batch previously written by Apply.
func (s *Stage) Undo() error {
	if len(s.transfers) == 0 {
		return nil
	}
	return s.ledger.Apply(s.ctx, Reverse(s.transfers))
}
