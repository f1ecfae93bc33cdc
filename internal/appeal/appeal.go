// Package appeal implements the time-boxed challenge of a finalized
// verdict and its arbitration.
package appeal

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Klingon-tech/truthstamp/config"
	"github.com/Klingon-tech/truthstamp/internal/claim"
	"github.com/Klingon-tech/truthstamp/internal/fault"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

// MaxEvidenceLength bounds appeal evidence, in characters.
const MaxEvidenceLength = 5000

// Outcome is the arbitration decision on an appeal.
type Outcome string

const (
	OutcomePending    Outcome = "pending"
	OutcomeUpheld     Outcome = "upheld"
	OutcomeOverturned Outcome = "overturned"
)

// ParseOutcome parses a decision. Pending is not a decision.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(strings.ToLower(strings.TrimSpace(s))); o {
	case OutcomeUpheld, OutcomeOverturned:
		return o, nil
	}
	return "", fmt.Errorf("%w: %q", fault.ErrInvalidOutcome, s)
}

// Appeal challenges a claim's verdict.
type Appeal struct {
	ID        uuid.UUID     `json:"id"`
	ClaimID   uint64        `json:"claim_id"`
	Appellant types.Address `json:"appellant"`
	Evidence  string        `json:"new_evidence"`
	// Bond is the appellant's stake in the appeal. It is paid to the
	// insurance pool on filing.
	Bond     uint64    `json:"bond"`
	FiledAt  time.Time `json:"filed_at"`
	Deadline time.Time `json:"arbitration_deadline"`
	Outcome  Outcome   `json:"outcome"`

	DecidedAt time.Time `json:"decided_at,omitempty"`
	// Lapsed is set when the appeal was upheld after its deadline.
	Lapsed bool `json:"lapsed,omitempty"`
	// Payout is what the appellant received on an overturn, and Deferred
	// what the insurance pool still owes of it.
	Payout   uint64 `json:"payout,omitempty"`
	Deferred uint64 `json:"deferred,omitempty"`
}

// Open reports whether the appeal awaits arbitration.
func (a *Appeal) Open() bool {
	return a != nil && a.Outcome == OutcomePending
}

// PastDeadline reports whether the appeal is still open after its
// arbitration deadline. Such an appeal can only be upheld, so the claim's
// settlement is final.
func (a *Appeal) PastDeadline(now time.Time) bool {
	return a.Open() && now.After(a.Deadline)
}

// Filing is a request to appeal a claim.
type Filing struct {
	ClaimID   uint64
	Appellant types.Address
	Evidence  string
	Bond      uint64
}

// File validates f against the claim and its current appeal (nil if none)
// and returns the new appeal. The claim moves to Appealed; the caller
// stores both.
func File(c *claim.Claim, existing *Appeal, f Filing, rules config.Rules, now time.Time) (*Appeal, error) {
	if f.Appellant.IsZero() {
		return nil, fmt.Errorf("%w: zero appellant", fault.ErrInvalidAddress)
	}
	if strings.TrimSpace(f.Evidence) == "" {
		return nil, fmt.Errorf("%w: evidence is empty", fault.ErrInvalidText)
	}
	if n := utf8.RuneCountInString(f.Evidence); n > MaxEvidenceLength {
		return nil, fmt.Errorf("%w: evidence has %d characters, max %d", fault.ErrInvalidText, n, MaxEvidenceLength)
	}
	if f.Bond < rules.MinAppealBond {
		return nil, fmt.Errorf("%w: bond %d below %d", fault.ErrInsufficientStake, f.Bond, rules.MinAppealBond)
	}
	if existing.Open() {
		return nil, fmt.Errorf("%w: claim %d", fault.ErrAppealAlreadyOpen, c.ID)
	}
	if c.Status != claim.StatusFinalized {
		return nil, fmt.Errorf("%w: claim %d is %s", fault.ErrInvalidStateTransition, c.ID, c.Status)
	}
	if closes := c.FinalizedAt.Add(rules.AppealWindow); now.After(closes) {
		return nil, fmt.Errorf("%w: claim %d window closed at %s", fault.ErrAppealWindowClosed, c.ID, closes.Format(time.RFC3339))
	}
	if err := c.Transition(claim.StatusAppealed, now); err != nil {
		return nil, err
	}
	return &Appeal{
		ID:        uuid.New(),
		ClaimID:   c.ID,
		Appellant: f.Appellant,
		Evidence:  f.Evidence,
		Bond:      f.Bond,
		FiledAt:   now.UTC(),
		Deadline:  now.UTC().Add(rules.ArbitrationWindow),
		Outcome:   OutcomePending,
	}, nil
}

// Decide records the arbitration outcome on a and moves the claim to
// Resolved.
//
// Once the arbitration deadline has passed the verdict stands: Upheld is
// still recorded, marking the appeal as lapsed, and Overturned is
// rejected.
func Decide(c *claim.Claim, a *Appeal, outcome Outcome, now time.Time) error {
	if !a.Open() {
		return fmt.Errorf("%w: claim %d", fault.ErrNoOpenAppeal, c.ID)
	}
	if outcome != OutcomeUpheld && outcome != OutcomeOverturned {
		return fmt.Errorf("%w: %q", fault.ErrInvalidOutcome, outcome)
	}
	lapsed := a.PastDeadline(now)
	if lapsed && outcome != OutcomeUpheld {
		return fmt.Errorf("%w: claim %d deadline was %s", fault.ErrArbitrationWindowClosed, c.ID, a.Deadline.Format(time.RFC3339))
	}
	if err := c.Transition(claim.StatusResolved, now); err != nil {
		return err
	}
	a.Outcome = outcome
	a.Lapsed = lapsed
	a.DecidedAt = now.UTC()
	return nil
}

// Payout is the compensation owed to a successful appellant: the bond
// plus the configured bonus.
func Payout(bond uint64, rules config.Rules) uint64 {
	p := bond / 100 * rules.AppealPayoutPct
	return p + bond%100*rules.AppealPayoutPct/100
}
