// Package expert implements the expert registry: staked identities whose
// reviews carry weight in claim consensus.
package expert

import (
	"fmt"
	"time"

	"github.com/Klingon-tech/truthstamp/internal/fault"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

// Status tells whether an expert may submit reviews.
type Status string

const (
	StatusActive Status = "active"
	// StatusSuspended is set when slashing pushes the stake below the tier
	// minimum. Topping up the stake reactivates the expert.
	StatusSuspended Status = "suspended"
)

// Level is the reputation band derived from reputation points.
type Level string

const (
	LevelNovice       Level = "Novice"
	LevelIntermediate Level = "Intermediate"
	LevelExpert       Level = "Expert"
	LevelMaster       Level = "Master"
)

// LevelFor maps reputation points to a level.
func LevelFor(points uint64) Level {
	switch {
	case points >= 5000:
		return LevelMaster
	case points >= 1000:
		return LevelExpert
	case points >= 100:
		return LevelIntermediate
	default:
		return LevelNovice
	}
}

// Expert is a registered reviewer.
type Expert struct {
	Address    types.Address `json:"address"`
	Name       string        `json:"name"`
	Bio        string        `json:"bio"`
	Categories []string      `json:"categories"`
	Tier       types.Tier    `json:"tier"`

	// StakedAmount includes LockedStake, the part escrowed in open reviews.
	StakedAmount uint64 `json:"staked_amount"`
	LockedStake  uint64 `json:"locked_stake"`

	ReputationPoints uint64    `json:"reputation_points"`
	TotalReviews     uint64    `json:"total_reviews"`
	CorrectReviews   uint64    `json:"correct_reviews"`
	TotalEarnings    uint64    `json:"total_earnings"`
	RegisteredAt     time.Time `json:"registered_at"`
	Status           Status    `json:"status"`
}

// FreeStake is the stake available for new reviews.
func (e *Expert) FreeStake() uint64 {
	if e.LockedStake >= e.StakedAmount {
		return 0
	}
	return e.StakedAmount - e.LockedStake
}

// Level returns the expert's reputation level.
func (e *Expert) Level() Level {
	return LevelFor(e.ReputationPoints)
}

// AccuracyPct returns correct reviews as a whole percentage of all
// settled reviews, or 0 before the first settlement.
func (e *Expert) AccuracyPct() uint64 {
	if e.TotalReviews == 0 {
		return 0
	}
	return e.CorrectReviews * 100 / e.TotalReviews
}

// Escrow locks amount of free stake for a review.
func (e *Expert) Escrow(amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("%w: review stake must be positive", fault.ErrInsufficientStake)
	}
	if free := e.FreeStake(); amount > free {
		return fmt.Errorf("%w: stake %d exceeds free stake %d", fault.ErrInsufficientStake, amount, free)
	}
	e.LockedStake += amount
	return nil
}

// Release settles an escrow: locked leaves the escrow and paid arrives in
// the free stake. A winner is paid more than it locked, a loser less.
func (e *Expert) Release(locked, paid uint64) {
	if locked > e.LockedStake {
		locked = e.LockedStake
	}
	e.LockedStake -= locked
	e.StakedAmount = subSat(e.StakedAmount, locked) + paid
}

// Debit removes amount from the free stake (appeal clawbacks). The caller
// caps amount at FreeStake.
func (e *Expert) Debit(amount uint64) {
	e.StakedAmount = subSat(e.StakedAmount, amount)
}

// Credit adds amount to the stake.
func (e *Expert) Credit(amount uint64) {
	e.StakedAmount += amount
}

// RecordOutcome counts a settled review.
func (e *Expert) RecordOutcome(correct bool, reward, reputation uint64, newReview bool) {
	if newReview {
		e.TotalReviews++
	}
	if correct {
		e.CorrectReviews++
		e.TotalEarnings += reward
		e.ReputationPoints += reputation
	}
}

// RevertOutcome undoes RecordOutcome for a review whose verdict was
// overturned. Counters saturate at zero; the review itself stays counted.
func (e *Expert) RevertOutcome(correct bool, reward, reputation uint64) {
	if !correct {
		return
	}
	e.CorrectReviews = subSat(e.CorrectReviews, 1)
	e.TotalEarnings = subSat(e.TotalEarnings, reward)
	e.ReputationPoints = subSat(e.ReputationPoints, reputation)
}

// RefreshStatus suspends or reactivates the expert against the tier
// minimum and reports whether the status changed.
func (e *Expert) RefreshStatus(minStake uint64) bool {
	want := StatusActive
	if e.StakedAmount < minStake {
		want = StatusSuspended
	}
	changed := e.Status != want
	e.Status = want
	return changed
}

func subSat(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
