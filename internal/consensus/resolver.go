// Package consensus computes weighted verdicts from staked reviews.
//
// A review's effective weight is stake × tier multiplier × confidence/100.
// Weights are kept exact as 256-bit integers in thousandths, so two sides
// compare equal only when they truly tie.
package consensus

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/Klingon-tech/truthstamp/pkg/types"
)

// Vote is the part of a review that consensus needs.
type Vote struct {
	Verdict    types.Verdict
	Stake      uint64
	Confidence uint8
	// WeightTenths is the tier multiplier in tenths (10 = 1.0x).
	WeightTenths uint64
}

// EffectiveWeight returns stake × multiplier × confidence/100 in
// thousandths. With the multiplier in tenths and confidence in percent the
// product stake·tenths·confidence is already scaled by 1000.
func EffectiveWeight(stake, weightTenths uint64, confidence uint8) types.Weight {
	w := uint256.NewInt(stake)
	w.Mul(w, uint256.NewInt(weightTenths))
	w.Mul(w, uint256.NewInt(uint64(confidence)))
	return types.NewWeight(w)
}

// Weight returns the vote's effective weight.
func (v Vote) Weight() types.Weight {
	return EffectiveWeight(v.Stake, v.WeightTenths, v.Confidence)
}

// Tally is the outcome of evaluating a claim's votes.
type Tally struct {
	TotalTrue  types.Weight
	TotalFalse types.Weight
	Count      int
	// Decided is set when quorum is met and one side is strictly heavier.
	Decided       bool
	Verdict       types.Verdict
	ConfidencePct uint8
}

// Evaluate sums the votes and decides a verdict when at least quorum votes
// are present and the totals differ. A tie, including two zero totals,
// stays undecided until another vote breaks it.
func Evaluate(votes []Vote, quorum uint32) Tally {
	var t Tally
	for _, v := range votes {
		switch v.Verdict {
		case types.VerdictTrue:
			t.TotalTrue = t.TotalTrue.Add(v.Weight())
		case types.VerdictFalse:
			t.TotalFalse = t.TotalFalse.Add(v.Weight())
		}
	}
	t.Count = len(votes)
	if uint64(t.Count) < uint64(quorum) {
		return t
	}
	switch t.TotalTrue.Cmp(t.TotalFalse) {
	case 1:
		t.Verdict = types.VerdictTrue
		t.ConfidencePct = SharePct(t.TotalTrue, t.TotalFalse)
	case -1:
		t.Verdict = types.VerdictFalse
		t.ConfidencePct = SharePct(t.TotalFalse, t.TotalTrue)
	default:
		return t
	}
	t.Decided = true
	return t
}

// SharePct returns round(100 × side / (side + other)) with halves rounded
// up. It returns 0 when both are zero.
func SharePct(side, other types.Weight) uint8 {
	sum := side.Add(other).Int()
	if sum.IsZero() {
		return 0
	}
	// (200·side + sum) / (2·sum)
	num := side.Int()
	num.Mul(num, uint256.NewInt(200))
	num.Add(num, sum)
	den := new(uint256.Int).Lsh(sum, 1)
	return uint8(num.Div(num, den).Uint64())
}

// Result is a claim's recorded consensus. A claim has one current result;
// each overturned appeal records a new one with the next revision.
type Result struct {
	ClaimID       uint64        `json:"claim_id"`
	Verdict       types.Verdict `json:"final_verdict"`
	TotalTrue     types.Weight  `json:"total_weighted_stake_true"`
	TotalFalse    types.Weight  `json:"total_weighted_stake_false"`
	ConfidencePct uint8         `json:"confidence_percentage"`
	IsFinalized   bool          `json:"is_finalized"`
	FinalizedAt   time.Time     `json:"finalized_at"`
	ReviewCount   int           `json:"review_count"`
	Revision      uint32        `json:"revision"`
	// Overturned marks a result decided by arbitration rather than by the
	// weighted tally.
	Overturned bool `json:"overturned,omitempty"`
}

// Finalize builds the first result for a decided tally. It returns nil for
// an undecided tally.
func Finalize(claimID uint64, t Tally, now time.Time) *Result {
	if !t.Decided {
		return nil
	}
	return &Result{
		ClaimID:       claimID,
		Verdict:       t.Verdict,
		TotalTrue:     t.TotalTrue,
		TotalFalse:    t.TotalFalse,
		ConfidencePct: t.ConfidencePct,
		IsFinalized:   true,
		FinalizedAt:   now.UTC(),
		ReviewCount:   t.Count,
	}
}

// Overturn returns the next revision of r with the verdict flipped. The
// confidence becomes the weight share that backed the new verdict.
func (r *Result) Overturn(now time.Time) *Result {
	next := *r
	next.Verdict = r.Verdict.Flip()
	if next.Verdict == types.VerdictTrue {
		next.ConfidencePct = SharePct(r.TotalTrue, r.TotalFalse)
	} else {
		next.ConfidencePct = SharePct(r.TotalFalse, r.TotalTrue)
	}
	next.FinalizedAt = now.UTC()
	next.Revision = r.Revision + 1
	next.Overturned = true
	return &next
}
