// Package review implements the review store: one staked verdict per
// expert per claim.
package review

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/Klingon-tech/truthstamp/config"
	"github.com/Klingon-tech/truthstamp/internal/claim"
	"github.com/Klingon-tech/truthstamp/internal/expert"
	"github.com/Klingon-tech/truthstamp/internal/fault"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

// MaxReasoningLength bounds review reasoning, in characters.
const MaxReasoningLength = 5000

// MaxConfidence is the upper bound of a review's confidence.
const MaxConfidence = 100

// Review is an expert's staked verdict on a claim.
type Review struct {
	ID         uint64        `json:"id"`
	ClaimID    uint64        `json:"claim_id"`
	Expert     types.Address `json:"expert"`
	Verdict    types.Verdict `json:"verdict"`
	Reasoning  string        `json:"reasoning"`
	Confidence uint8         `json:"confidence"`
	Stake      uint64        `json:"stake_amount"`

	// Tier economics at submission time. Later tier changes never
	// apply to an existing review.
	Tier           types.Tier `json:"tier"`
	WeightTenths   uint64     `json:"weight_tenths"`
	RewardSharePct uint64     `json:"reward_share_pct"`

	CreatedAt time.Time `json:"created_at"`
	Rewarded  bool      `json:"rewarded"`
}

// Submission is a request to review a claim.
type Submission struct {
	ClaimID    uint64
	Expert     types.Address
	Verdict    types.Verdict
	Reasoning  string
	Confidence uint8
	Stake      uint64
}

// New validates sub against the claim and the reviewing expert and builds
// the review. duplicate reports whether the expert already reviewed the
// claim. The expert's stake is not escrowed here.
func New(id uint64, sub Submission, c *claim.Claim, e *expert.Expert, duplicate bool, rules config.Rules, now time.Time) (*Review, error) {
	if duplicate {
		return nil, fmt.Errorf("%w: %s on claim %d", fault.ErrDuplicateReview, sub.Expert, sub.ClaimID)
	}
	if !c.Status.AcceptsReviews() {
		return nil, fmt.Errorf("%w: claim %d is %s", fault.ErrClaimNotAcceptingReviews, c.ID, c.Status)
	}
	if e.Status != expert.StatusActive {
		return nil, fmt.Errorf("%w: %s", fault.ErrExpertSuspended, e.Address)
	}
	if !sub.Verdict.Valid() {
		return nil, fmt.Errorf("%w: %q", fault.ErrInvalidVerdict, sub.Verdict)
	}
	if sub.Confidence > MaxConfidence {
		return nil, fmt.Errorf("%w: %d exceeds %d", fault.ErrInvalidConfidence, sub.Confidence, MaxConfidence)
	}
	if n := utf8.RuneCountInString(sub.Reasoning); n > MaxReasoningLength {
		return nil, fmt.Errorf("%w: reasoning has %d characters, max %d", fault.ErrInvalidText, n, MaxReasoningLength)
	}
	if sub.Stake == 0 {
		return nil, fmt.Errorf("%w: stake must be positive", fault.ErrInsufficientStake)
	}
	if free := e.FreeStake(); sub.Stake > free {
		return nil, fmt.Errorf("%w: stake %d exceeds free stake %d", fault.ErrInsufficientStake, sub.Stake, free)
	}

	rule := rules.Tier(e.Tier)
	return &Review{
		ID:             id,
		ClaimID:        c.ID,
		Expert:         e.Address,
		Verdict:        sub.Verdict,
		Reasoning:      sub.Reasoning,
		Confidence:     sub.Confidence,
		Stake:          sub.Stake,
		Tier:           e.Tier,
		WeightTenths:   rule.WeightTenths,
		RewardSharePct: rule.RewardSharePct,
		CreatedAt:      now.UTC(),
	}, nil
}
