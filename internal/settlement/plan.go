// Package settlement distributes a finalized claim's pool: winners get
// their stake back plus a share of the fee, losers are slashed, and the
// insurance pool collects the rest. Every movement is journaled so an
// overturned verdict can be reversed by compensating entries.
package settlement

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/Klingon-tech/truthstamp/config"
	"github.com/Klingon-tech/truthstamp/internal/consensus"
	"github.com/Klingon-tech/truthstamp/internal/review"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

// Outcome is one review's result in a settlement.
type Outcome struct {
	ReviewID   uint64        `json:"review_id"`
	Expert     types.Address `json:"expert"`
	Correct    bool          `json:"correct"`
	Stake      uint64        `json:"stake"`
	Returned   uint64        `json:"returned"`
	Reward     uint64        `json:"reward"`
	Slash      uint64        `json:"slash"`
	Reputation uint64        `json:"reputation"`
}

// Paid is what the review's expert receives.
func (o Outcome) Paid() uint64 {
	return o.Returned + o.Reward
}

// Plan is the full distribution of a claim pool for one verdict.
type Plan struct {
	Verdict types.Verdict `json:"verdict"`
	// Pool is the fee plus every review stake.
	Pool uint64 `json:"pool"`
	Fee  uint64 `json:"fee"`
	// RewardPool is the fee share drawn on by winning reviews.
	RewardPool uint64 `json:"reward_pool"`
	// InsuranceFee is the fee share paid straight to insurance.
	InsuranceFee uint64 `json:"insurance_fee"`
	// Remainder is the part of RewardPool no winner was paid: the tier
	// share withheld plus rounding dust. It goes to insurance.
	Remainder uint64    `json:"remainder"`
	Outcomes  []Outcome `json:"outcomes"`
}

// mulDiv returns a·b/c rounded down without intermediate overflow.
func mulDiv(a, b, c uint64) uint64 {
	if c == 0 {
		return 0
	}
	x := uint256.NewInt(a)
	x.Mul(x, uint256.NewInt(b))
	x.Div(x, uint256.NewInt(c))
	return x.Uint64()
}

// Reputation returns round(stake × confidence / divisor), halves up.
func Reputation(stake uint64, confidence uint8, divisor uint64) uint64 {
	if divisor == 0 {
		return 0
	}
	x := uint256.NewInt(stake)
	x.Mul(x, uint256.NewInt(uint64(confidence)))
	x.Add(x, uint256.NewInt(divisor/2))
	x.Div(x, uint256.NewInt(divisor))
	return x.Uint64()
}

// Compute distributes fee and the review stakes for verdict.
//
// A winner's reward is its tier share of the reward pool, apportioned by
// its effective weight among all winners:
//
//	reward = rewardPool × sharePct × weight / (100 × winningWeight)
func Compute(fee uint64, reviews []*review.Review, verdict types.Verdict, rules config.Rules) *Plan {
	p := &Plan{
		Verdict:    verdict,
		Pool:       fee,
		Fee:        fee,
		RewardPool: mulDiv(fee, rules.FeeRewardPct, 100),
	}
	p.InsuranceFee = fee - p.RewardPool

	weights := make([]*uint256.Int, len(reviews))
	winning := new(uint256.Int)
	for i, r := range reviews {
		weights[i] = consensus.EffectiveWeight(r.Stake, r.WeightTenths, r.Confidence).Int()
		if r.Verdict == verdict {
			winning.Add(winning, weights[i])
		}
	}

	var rewarded uint64
	for i, r := range reviews {
		p.Pool += r.Stake
		o := Outcome{
			ReviewID: r.ID,
			Expert:   r.Expert,
			Correct:  r.Verdict == verdict,
			Stake:    r.Stake,
		}
		if o.Correct {
			o.Returned = r.Stake
			o.Reputation = Reputation(r.Stake, r.Confidence, rules.ReputationDivisor)
			if !winning.IsZero() {
				num := uint256.NewInt(p.RewardPool)
				num.Mul(num, uint256.NewInt(r.RewardSharePct))
				num.Mul(num, weights[i])
				den := new(uint256.Int).Mul(winning, uint256.NewInt(100))
				o.Reward = num.Div(num, den).Uint64()
			}
			rewarded += o.Reward
		} else {
			o.Slash = mulDiv(r.Stake, rules.SlashPct, 100)
			o.Returned = r.Stake - o.Slash
		}
		p.Outcomes = append(p.Outcomes, o)
	}
	p.Remainder = p.RewardPool - rewarded
	return p
}

// Check verifies that the plan distributes exactly its pool.
func (p *Plan) Check() error {
	total := p.InsuranceFee + p.Remainder
	for _, o := range p.Outcomes {
		total += o.Paid() + o.Slash
	}
	if total != p.Pool {
		return fmt.Errorf("settlement plan distributes %d of pool %d", total, p.Pool)
	}
	return nil
}
