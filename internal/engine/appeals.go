package engine

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/truthstamp/internal/appeal"
	"github.com/Klingon-tech/truthstamp/internal/claim"
	"github.com/Klingon-tech/truthstamp/internal/consensus"
	"github.com/Klingon-tech/truthstamp/internal/ledger"
	"github.com/Klingon-tech/truthstamp/internal/log"
	"github.com/Klingon-tech/truthstamp/internal/review"
	"github.com/Klingon-tech/truthstamp/internal/settlement"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

// FileAppeal challenges a finalized verdict. The bond is paid from the
// appellant's wallet into the insurance pool, which then pays down any
// outstanding liabilities it can.
func (e *Engine) FileAppeal(ctx context.Context, f appeal.Filing) (*appeal.Appeal, error) {
	var out *appeal.Appeal
	err := e.run(ctx, "appeal_file", func(tx *opTx) error {
		tx.lock(claimLock(f.ClaimID))
		tx.lock(accountLocks([]types.Address{f.Appellant}, true)...)

		c, err := tx.claims.Get(f.ClaimID)
		if err != nil {
			return err
		}
		existing, err := tx.appeals.Get(c.ID)
		if err != nil {
			return err
		}
		a, err := appeal.File(c, existing, f, e.rules, e.clock())
		if err != nil {
			return err
		}

		s := tx.settler()
		if err := s.Record(c.ID, a.ID, settlement.KindBond, ledger.Wallet(a.Appellant), ledger.Insurance, a.Bond); err != nil {
			return err
		}
		if _, err := s.PayDown(); err != nil {
			return err
		}
		if err := tx.appeals.Put(a); err != nil {
			return err
		}
		if err := tx.claims.Put(c); err != nil {
			return err
		}

		log.WithClaim(log.Appeal, c.ID).Info().
			Str("appellant", a.Appellant.String()).
			Uint64("bond", a.Bond).
			Time("deadline", a.Deadline).
			Msg("Appeal filed")
		tx.emit(Event{Kind: EventAppealFiled, ClaimID: c.ID, Address: a.Appellant, Amount: a.Bond})
		out = a
		return nil
	})
	return out, err
}

// Resolution reports an arbitration decision. Consensus and Settlement are
// set only when the verdict was overturned.
type Resolution struct {
	Appeal     *appeal.Appeal    `json:"appeal"`
	Claim      *claim.Claim      `json:"claim"`
	Consensus  *consensus.Result `json:"consensus,omitempty"`
	Settlement *settlement.Run   `json:"settlement,omitempty"`
	// PaidDown is what the insurance pool paid against older liabilities
	// before compensating the appellant.
	PaidDown uint64 `json:"paid_down,omitempty"`
}

// ResolveAppeal records the arbitration outcome of a claim's open appeal.
//
// Upheld leaves the settlement untouched and the bond in the insurance
// pool. Overturned flips the verdict as a new consensus revision, reverses
// the previous settlement with compensating entries, settles the pool
// again for the flipped verdict and pays the appellant from the insurance
// pool. Whatever the pool cannot cover is deferred as a liability and
// reported in the appeal. After the arbitration deadline only Upheld is
// accepted; it closes the lapsed appeal with the settlement unchanged.
func (e *Engine) ResolveAppeal(ctx context.Context, claimID uint64, outcome appeal.Outcome) (*Resolution, error) {
	var out *Resolution
	err := e.run(ctx, "appeal_resolve", func(tx *opTx) error {
		tx.lock(claimLock(claimID))

		c, err := tx.claims.Get(claimID)
		if err != nil {
			return err
		}
		a, err := tx.appeals.Get(c.ID)
		if err != nil {
			return err
		}
		reviews, err := tx.reviews.ByClaim(c.ID)
		if err != nil {
			return err
		}
		addrs := make([]types.Address, 0, len(reviews)+1)
		for _, r := range reviews {
			addrs = append(addrs, r.Expert)
		}
		if a != nil {
			addrs = append(addrs, a.Appellant)
		}
		tx.lock(accountLocks(addrs, true)...)

		now := e.clock()
		if err := appeal.Decide(c, a, outcome, now); err != nil {
			return err
		}
		out = &Resolution{Appeal: a, Claim: c}

		if outcome == appeal.OutcomeOverturned {
			if err := e.overturn(tx, c, a, reviews, out); err != nil {
				return err
			}
		}
		if err := tx.appeals.Put(a); err != nil {
			return err
		}
		if err := tx.claims.Put(c); err != nil {
			return err
		}

		log.WithClaim(log.Appeal, c.ID).Info().
			Str("outcome", string(a.Outcome)).
			Bool("lapsed", a.Lapsed).
			Uint64("payout", a.Payout).
			Uint64("deferred", a.Deferred).
			Msg("Appeal resolved")
		tx.emit(Event{Kind: EventAppealResolved, ClaimID: c.ID, Address: a.Appellant, Amount: a.Payout, Detail: string(a.Outcome)})
		tx.onCommit(func() { e.metrics.MarkAppeal(string(a.Outcome), a.Deferred) })
		return nil
	})
	return out, err
}

func (e *Engine) overturn(tx *opTx, c *claim.Claim, a *appeal.Appeal, reviews []*review.Review, out *Resolution) error {
	prev, err := tx.results.Get(c.ID)
	if err != nil {
		return fmt.Errorf("claim %d consensus: %w", c.ID, err)
	}
	prevRun, err := tx.journal.LastRun(c.ID)
	if err != nil {
		return err
	}
	if prevRun == nil {
		return fmt.Errorf("claim %d has no settlement to reverse", c.ID)
	}

	now := e.clock()
	next := prev.Overturn(now)
	if err := tx.results.Put(next); err != nil {
		return err
	}
	s := tx.settler()
	run, err := s.Resettle(c, prevRun, next.Verdict, next.Revision, reviews)
	if err != nil {
		return fmt.Errorf("re-settle claim %d: %w", c.ID, err)
	}
	paidDown, err := s.PayDown()
	if err != nil {
		return err
	}
	paid, deferred, err := s.Compensate(c.ID, a.ID, a.Appellant, appeal.Payout(a.Bond, e.rules))
	if err != nil {
		return err
	}
	a.Payout = paid
	a.Deferred = deferred

	log.WithClaim(log.Consensus, c.ID).Info().
		Str("verdict", string(next.Verdict)).
		Uint32("revision", next.Revision).
		Msg("Verdict overturned")
	tx.emit(Event{Kind: EventSettled, ClaimID: c.ID, Verdict: next.Verdict, Amount: run.Pool, Detail: run.ID.String()})
	tx.onCommit(func() { e.metrics.MarkSettled(run.Pool, slashed(run)) })

	out.Consensus = next
	out.Settlement = run
	out.PaidDown = paidDown
	return nil
}

// AppealView is the result of an appeal lookup.
type AppealView struct {
	Found  bool           `json:"found"`
	Appeal *appeal.Appeal `json:"appeal,omitempty"`
}

// GetAppeal returns the appeal filed against a claim, if any.
func (e *Engine) GetAppeal(ctx context.Context, claimID uint64) (AppealView, error) {
	if err := ctx.Err(); err != nil {
		return AppealView{}, err
	}
	a, err := appeal.NewStore(e.db).Get(claimID)
	if err != nil || a == nil {
		return AppealView{}, err
	}
	return AppealView{Found: true, Appeal: a}, nil
}
