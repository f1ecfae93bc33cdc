package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/truthstamp/internal/claim"
	"github.com/Klingon-tech/truthstamp/internal/consensus"
	"github.com/Klingon-tech/truthstamp/internal/ledger"
	"github.com/Klingon-tech/truthstamp/internal/log"
	"github.com/Klingon-tech/truthstamp/internal/review"
	"github.com/Klingon-tech/truthstamp/internal/settlement"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

// ReviewResult reports an accepted review and, when it completed the
// quorum with a decisive tally, the consensus and settlement it triggered.
type ReviewResult struct {
	Review     *review.Review    `json:"review"`
	Claim      *claim.Claim      `json:"claim"`
	Finalized  bool              `json:"finalized"`
	Consensus  *consensus.Result `json:"consensus,omitempty"`
	Settlement *settlement.Run   `json:"settlement,omitempty"`
}

// SubmitReview records an expert's staked verdict on a claim. The stake
// moves from the expert's stake account into the claim pool. Once the
// quorum is reached and one side outweighs the other, the claim finalizes
// and its pool is settled in the same operation.
func (e *Engine) SubmitReview(ctx context.Context, sub review.Submission) (*ReviewResult, error) {
	var out *ReviewResult
	err := e.run(ctx, "review_submit", func(tx *opTx) error {
		tx.lock(claimLock(sub.ClaimID))

		c, err := tx.claims.Get(sub.ClaimID)
		if err != nil {
			return err
		}
		existing, err := tx.reviews.ByClaim(c.ID)
		if err != nil {
			return err
		}
		addrs := make([]types.Address, 0, len(existing)+1)
		addrs = append(addrs, sub.Expert)
		for _, r := range existing {
			addrs = append(addrs, r.Expert)
		}
		tx.lock(accountLocks(addrs, false)...)

		x, err := tx.experts.Get(sub.Expert)
		if err != nil {
			return err
		}
		dup, err := tx.reviews.Has(c.ID, sub.Expert)
		if err != nil {
			return err
		}
		now := e.clock()
		r, err := review.New(0, sub, c, x, dup, e.rules, now)
		if err != nil {
			return err
		}

		tx.lock(e.reviewSeq.Name())
		if r.ID, err = e.reviewSeq.Next(tx.txn); err != nil {
			return err
		}
		if err := x.Escrow(r.Stake); err != nil {
			return err
		}
		if err := c.AddStake(r.Stake); err != nil {
			return err
		}
		if c.Status == claim.StatusPending {
			if err := c.Transition(claim.StatusUnderReview, now); err != nil {
				return err
			}
		}
		if err := tx.transfer(ledger.Transfer{
			From:   ledger.Stake(x.Address),
			To:     ledger.ClaimPool(c.ID),
			Amount: r.Stake,
			Memo:   fmt.Sprintf("review %d stake", r.ID),
		}); err != nil {
			return err
		}
		if err := tx.experts.Put(x); err != nil {
			return err
		}
		if err := tx.reviews.Add(r); err != nil {
			return err
		}

		log.WithClaim(log.Review, c.ID).Info().
			Uint64("review", r.ID).
			Str("expert", x.Address.String()).
			Str("verdict", string(r.Verdict)).
			Uint8("confidence", r.Confidence).
			Uint64("stake", r.Stake).
			Msg("Review submitted")
		tx.emit(Event{Kind: EventReviewSubmitted, ClaimID: c.ID, ReviewID: r.ID, Address: x.Address, Amount: r.Stake, Verdict: r.Verdict})

		out = &ReviewResult{Review: r, Claim: c}
		if err := e.evaluate(tx, c, out); err != nil {
			return err
		}
		return tx.claims.Put(c)
	})
	return out, err
}

// evaluate tallies the claim's reviews and, on a decisive tally, finalizes
// and settles the claim.
func (e *Engine) evaluate(tx *opTx, c *claim.Claim, out *ReviewResult) error {
	reviews, err := tx.reviews.ByClaim(c.ID)
	if err != nil {
		return err
	}
	votes := make([]consensus.Vote, len(reviews))
	for i, r := range reviews {
		votes[i] = consensus.Vote{Verdict: r.Verdict, Stake: r.Stake, Confidence: r.Confidence, WeightTenths: r.WeightTenths}
	}
	now := e.clock()
	tally := consensus.Evaluate(votes, e.rules.Quorum)
	result := consensus.Finalize(c.ID, tally, now)
	if result == nil {
		if tally.Count >= int(e.rules.Quorum) {
			log.WithClaim(log.Consensus, c.ID).Debug().
				Int("reviews", tally.Count).
				Str("true", tally.TotalTrue.String()).
				Str("false", tally.TotalFalse.String()).
				Msg("Tally undecided")
		}
		return nil
	}

	if err := c.Transition(claim.StatusFinalized, now); err != nil {
		return err
	}
	if err := tx.results.Put(result); err != nil {
		return err
	}
	tx.lock(insuranceLock)
	run, err := tx.settler().Settle(c, result.Verdict, result.Revision, reviews)
	if err != nil {
		return fmt.Errorf("settle claim %d: %w", c.ID, err)
	}

	log.WithClaim(log.Consensus, c.ID).Info().
		Str("verdict", string(result.Verdict)).
		Uint8("confidence", result.ConfidencePct).
		Int("reviews", result.ReviewCount).
		Msg("Claim finalized")
	tx.emit(Event{Kind: EventClaimFinalized, ClaimID: c.ID, Verdict: result.Verdict, Amount: uint64(result.ConfidencePct)})
	tx.emit(Event{Kind: EventSettled, ClaimID: c.ID, Verdict: result.Verdict, Amount: run.Pool, Detail: run.ID.String()})
	tx.onCommit(func() {
		e.metrics.MarkFinalized(string(result.Verdict), result.ConfidencePct)
		e.metrics.MarkSettled(run.Pool, slashed(run))
	})

	out.Review.Rewarded = true
	out.Finalized = true
	out.Consensus = result
	out.Settlement = run
	return nil
}

func slashed(run *settlement.Run) uint64 {
	var n uint64
	for _, o := range run.Outcomes {
		n += o.Slash
	}
	return n
}

// ReviewView is the result of a review lookup.
type ReviewView struct {
	Found  bool           `json:"found"`
	Review *review.Review `json:"review,omitempty"`
}

// GetReview looks up a review.
func (e *Engine) GetReview(ctx context.Context, id uint64) (ReviewView, error) {
	if err := ctx.Err(); err != nil {
		return ReviewView{}, err
	}
	r, err := review.NewStore(e.db).Get(id)
	switch {
	case notFound(err):
		return ReviewView{}, nil
	case err != nil:
		return ReviewView{}, err
	}
	return ReviewView{Found: true, Review: r}, nil
}

// ListClaimReviews returns a claim's reviews ordered by expert address.
func (e *Engine) ListClaimReviews(ctx context.Context, claimID uint64) ([]*review.Review, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := claim.NewStore(e.db).Get(claimID); err != nil {
		return nil, err
	}
	return review.NewStore(e.db).ByClaim(claimID)
}

// ConsensusView is a claim's current consensus and every earlier revision.
type ConsensusView struct {
	Found   bool                `json:"found"`
	Result  *consensus.Result   `json:"result,omitempty"`
	History []*consensus.Result `json:"history,omitempty"`
}

// GetConsensus returns the recorded consensus of a claim. A claim that has
// not finalized has none.
func (e *Engine) GetConsensus(ctx context.Context, claimID uint64) (ConsensusView, error) {
	if err := ctx.Err(); err != nil {
		return ConsensusView{}, err
	}
	st := consensus.NewStore(e.db)
	r, err := st.Get(claimID)
	switch {
	case errors.Is(err, consensus.ErrNoResult):
		return ConsensusView{}, nil
	case err != nil:
		return ConsensusView{}, err
	}
	history, err := st.History(claimID)
	if err != nil {
		return ConsensusView{}, err
	}
	return ConsensusView{Found: true, Result: r, History: history}, nil
}
