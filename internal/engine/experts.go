package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/Klingon-tech/truthstamp/internal/claim"
	"github.com/Klingon-tech/truthstamp/internal/expert"
	"github.com/Klingon-tech/truthstamp/internal/fault"
	"github.com/Klingon-tech/truthstamp/internal/log"
	"github.com/Klingon-tech/truthstamp/internal/review"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

// RegisterExpert adds an expert and moves the stake from the expert's
// wallet into the stake account.
func (e *Engine) RegisterExpert(ctx context.Context, reg expert.Registration) (*expert.Expert, error) {
	var out *expert.Expert
	err := e.run(ctx, "expert_register", func(tx *opTx) error {
		tx.lock(accountLocks([]types.Address{reg.Address}, false)...)

		x, t, err := expert.Register(tx.experts, e.rules, reg, e.clock())
		if err != nil {
			return err
		}
		if err := tx.transfer(t); err != nil {
			return err
		}
		log.Expert.Info().
			Str("address", x.Address.String()).
			Str("tier", string(x.Tier)).
			Uint64("stake", x.StakedAmount).
			Msg("Expert registered")
		tx.emit(Event{Kind: EventExpertRegistered, Address: x.Address, Amount: x.StakedAmount, Detail: string(x.Tier)})
		out = x
		return nil
	})
	return out, err
}

// UnregisterExpert removes an expert with no reviews on open claims and
// refunds the whole stake to the wallet. It returns the refund.
func (e *Engine) UnregisterExpert(ctx context.Context, addr types.Address) (uint64, error) {
	var refund uint64
	err := e.run(ctx, "expert_unregister", func(tx *opTx) error {
		tx.lock(accountLocks([]types.Address{addr}, false)...)

		pending, err := hasOpenReviews(tx, addr, e.clock())
		if err != nil {
			return err
		}
		x, t, err := expert.Unregister(tx.experts, addr, pending)
		if err != nil {
			return err
		}
		if err := tx.transfer(t); err != nil {
			return err
		}
		log.Expert.Info().Str("address", addr.String()).Uint64("refund", t.Amount).Msg("Expert unregistered")
		tx.emit(Event{Kind: EventExpertUnregistered, Address: x.Address, Amount: t.Amount})
		refund = t.Amount
		return nil
	})
	return refund, err
}

// hasOpenReviews reports whether addr reviewed a claim that may still
// settle or re-settle. An appeal past its arbitration deadline can no
// longer overturn, so it does not hold the reviewers.
func hasOpenReviews(tx *opTx, addr types.Address, now time.Time) (bool, error) {
	ids, err := tx.reviews.ClaimIDs(addr)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		c, err := tx.claims.Get(id)
		if err != nil {
			return false, err
		}
		switch c.Status {
		case claim.StatusPending, claim.StatusUnderReview:
			return true, nil
		case claim.StatusAppealed:
			a, err := tx.appeals.Get(id)
			if err != nil {
				return false, err
			}
			if !a.PastDeadline(now) {
				return true, nil
			}
		}
	}
	return false, nil
}

// TopUpStake adds amount to an expert's stake. A suspended expert becomes
// active again once the tier minimum is met.
func (e *Engine) TopUpStake(ctx context.Context, addr types.Address, amount uint64) (*expert.Expert, error) {
	var out *expert.Expert
	err := e.run(ctx, "expert_topup", func(tx *opTx) error {
		tx.lock(accountLocks([]types.Address{addr}, false)...)

		x, t, err := expert.TopUp(tx.experts, e.rules, addr, amount)
		if err != nil {
			return err
		}
		if err := tx.transfer(t); err != nil {
			return err
		}
		log.Expert.Info().
			Str("address", addr.String()).
			Uint64("amount", amount).
			Uint64("stake", x.StakedAmount).
			Str("status", string(x.Status)).
			Msg("Stake topped up")
		tx.emit(Event{Kind: EventStakeToppedUp, Address: addr, Amount: amount, Detail: string(x.Status)})
		out = x
		return nil
	})
	return out, err
}

// ExpertView is the result of an expert lookup, with the derived
// reputation level and accuracy.
type ExpertView struct {
	Found       bool           `json:"found"`
	Expert      *expert.Expert `json:"expert,omitempty"`
	Level       expert.Level   `json:"reputation_level,omitempty"`
	AccuracyPct uint64         `json:"accuracy_pct"`
}

// GetExpert looks up an expert.
func (e *Engine) GetExpert(ctx context.Context, addr types.Address) (ExpertView, error) {
	if err := ctx.Err(); err != nil {
		return ExpertView{}, err
	}
	x, err := expert.NewStore(e.db).Get(addr)
	switch {
	case notFound(err):
		return ExpertView{}, nil
	case err != nil:
		return ExpertView{}, err
	}
	return ExpertView{Found: true, Expert: x, Level: x.Level(), AccuracyPct: x.AccuracyPct()}, nil
}

// IsExpert reports whether addr is registered.
func (e *Engine) IsExpert(ctx context.Context, addr types.Address) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return expert.NewStore(e.db).Has(addr)
}

// ExpertCount returns the number of registered experts.
func (e *Engine) ExpertCount(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return expert.NewStore(e.db).Count()
}

// ListExpertReviews returns an expert's reviews in claim order. Reviews
// outlive the registration, so an unknown address yields an empty list.
func (e *Engine) ListExpertReviews(ctx context.Context, addr types.Address) ([]*review.Review, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if addr.IsZero() {
		return nil, fmt.Errorf("%w: zero address", fault.ErrInvalidAddress)
	}
	return review.NewStore(e.db).ByExpert(addr)
}
