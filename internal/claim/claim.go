// Package claim implements the claim registry: submitted statements and
// their verification lifecycle.
package claim

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Klingon-tech/truthstamp/internal/fault"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

// Status is a claim's lifecycle state.
type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusFinalized   Status = "finalized"
	StatusAppealed    Status = "appealed"
	StatusResolved    Status = "resolved"
)

// next lists the single legal successor of each state.
var next = map[Status]Status{
	StatusPending:     StatusUnderReview,
	StatusUnderReview: StatusFinalized,
	StatusFinalized:   StatusAppealed,
	StatusAppealed:    StatusResolved,
}

// AcceptsReviews reports whether reviews may still be added.
func (s Status) AcceptsReviews() bool {
	return s == StatusPending || s == StatusUnderReview
}

// Settled reports whether the claim has a verdict that is no longer
// open to appeal or arbitration.
func (s Status) Settled() bool {
	return s == StatusFinalized || s == StatusResolved
}

// Source limits.
const (
	MaxSources      = 20
	MaxSourceLength = 2048
	MaxCategoryLen  = 64
)

// Claim is a statement submitted for verification.
type Claim struct {
	ID        uint64        `json:"id"`
	Submitter types.Address `json:"submitter"`
	Text      string        `json:"text"`
	Category  string        `json:"category"`
	Sources   []string      `json:"sources"`
	Status    Status        `json:"status"`

	Fee uint64 `json:"fee"`
	// StakePool is the fee plus the stakes of reviews not yet settled.
	StakePool uint64 `json:"stake_pool"`
	// SettledPool is the pool distributed at finalization, kept as the
	// basis for re-settlement after an overturned appeal.
	SettledPool uint64 `json:"settled_pool,omitempty"`

	ReviewCount uint32    `json:"review_count"`
	CreatedAt   time.Time `json:"created_at"`
	FinalizedAt time.Time `json:"finalized_at,omitempty"`
	ResolvedAt  time.Time `json:"resolved_at,omitempty"`
}

// Submission is a request to create a claim.
type Submission struct {
	Submitter types.Address
	Text      string
	Category  string
	Sources   []string
	Fee       uint64
}

// New validates sub and builds a Pending claim with the given id.
func New(id uint64, sub Submission, maxText int, minFee uint64, now time.Time) (*Claim, error) {
	if sub.Submitter.IsZero() {
		return nil, fmt.Errorf("%w: zero submitter", fault.ErrInvalidAddress)
	}
	if err := ValidateText(sub.Text, maxText); err != nil {
		return nil, err
	}
	if sub.Fee < minFee {
		return nil, fmt.Errorf("%w: fee %d below %d", fault.ErrInsufficientFee, sub.Fee, minFee)
	}
	category := strings.ToLower(strings.TrimSpace(sub.Category))
	if len(category) > MaxCategoryLen {
		return nil, fmt.Errorf("%w: category too long", fault.ErrInvalidText)
	}
	sources, err := normalizeSources(sub.Sources)
	if err != nil {
		return nil, err
	}
	return &Claim{
		ID:        id,
		Submitter: sub.Submitter,
		Text:      sub.Text,
		Category:  category,
		Sources:   sources,
		Status:    StatusPending,
		Fee:       sub.Fee,
		StakePool: sub.Fee,
		CreatedAt: now.UTC(),
	}, nil
}

// ValidateText rejects empty or blank text and text longer than maxLen
// characters.
func ValidateText(text string, maxLen int) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: text is empty", fault.ErrInvalidText)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: text is not valid UTF-8", fault.ErrInvalidText)
	}
	if n := utf8.RuneCountInString(text); n > maxLen {
		return fmt.Errorf("%w: %d characters exceeds %d", fault.ErrInvalidText, n, maxLen)
	}
	return nil
}

func normalizeSources(in []string) ([]string, error) {
	if len(in) > MaxSources {
		return nil, fmt.Errorf("%w: at most %d sources", fault.ErrInvalidText, MaxSources)
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if len(s) > MaxSourceLength {
			return nil, fmt.Errorf("%w: source exceeds %d bytes", fault.ErrInvalidText, MaxSourceLength)
		}
		out = append(out, s)
	}
	return out, nil
}

// Transition moves the claim to status to, failing with
// fault.ErrInvalidStateTransition unless to is the single legal successor.
func (c *Claim) Transition(to Status, now time.Time) error {
	if next[c.Status] != to {
		return fmt.Errorf("%w: claim %d %s -> %s", fault.ErrInvalidStateTransition, c.ID, c.Status, to)
	}
	c.Status = to
	switch to {
	case StatusFinalized:
		c.FinalizedAt = now.UTC()
	case StatusResolved:
		c.ResolvedAt = now.UTC()
	}
	return nil
}

// AddStake records an accepted review's escrow.
func (c *Claim) AddStake(amount uint64) error {
	if !c.Status.AcceptsReviews() {
		return fmt.Errorf("%w: claim %d is %s", fault.ErrClaimNotAcceptingReviews, c.ID, c.Status)
	}
	c.StakePool += amount
	c.ReviewCount++
	return nil
}

// CloseSettlement marks every review stake as distributed, leaving only
// the fee in StakePool.
func (c *Claim) CloseSettlement() {
	if c.SettledPool == 0 {
		c.SettledPool = c.StakePool
	}
	c.StakePool = c.Fee
}
