package expert

import (
	"fmt"
	"strings"
	"time"

	"github.com/Klingon-tech/truthstamp/config"
	"github.com/Klingon-tech/truthstamp/internal/fault"
	"github.com/Klingon-tech/truthstamp/internal/ledger"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

// Field limits for registration.
const (
	MaxNameLength     = 100
	MaxBioLength      = 1000
	MaxCategories     = 16
	MaxCategoryLength = 64
)

// Registration is a request to join the registry.
type Registration struct {
	Address    types.Address
	Name       string
	Bio        string
	Categories []string
	Tier       types.Tier
	Stake      uint64
}

// Register validates reg and stores a new expert. The returned transfer
// moves the stake from the expert's wallet into the stake account.
func Register(st *Store, rules config.Rules, reg Registration, now time.Time) (*Expert, ledger.Transfer, error) {
	if reg.Address.IsZero() {
		return nil, ledger.Transfer{}, fmt.Errorf("%w: zero address", fault.ErrInvalidAddress)
	}
	if !reg.Tier.Valid() {
		return nil, ledger.Transfer{}, fmt.Errorf("%w: %q", fault.ErrInvalidTier, reg.Tier)
	}
	if minStake := rules.Tier(reg.Tier).MinStake; reg.Stake < minStake {
		return nil, ledger.Transfer{}, fmt.Errorf("%w: %s tier needs %d, got %d",
			fault.ErrInsufficientStake, reg.Tier, minStake, reg.Stake)
	}
	categories, err := normalizeProfile(reg)
	if err != nil {
		return nil, ledger.Transfer{}, err
	}

	exists, err := st.Has(reg.Address)
	if err != nil {
		return nil, ledger.Transfer{}, err
	}
	if exists {
		return nil, ledger.Transfer{}, fmt.Errorf("%w: %s", fault.ErrAlreadyRegistered, reg.Address)
	}

	e := &Expert{
		Address:      reg.Address,
		Name:         strings.TrimSpace(reg.Name),
		Bio:          reg.Bio,
		Categories:   categories,
		Tier:         reg.Tier,
		StakedAmount: reg.Stake,
		RegisteredAt: now.UTC(),
		Status:       StatusActive,
	}
	if err := st.Put(e); err != nil {
		return nil, ledger.Transfer{}, err
	}
	return e, ledger.Transfer{
		From:   ledger.Wallet(reg.Address),
		To:     ledger.Stake(reg.Address),
		Amount: reg.Stake,
		Memo:   "register stake",
	}, nil
}

func normalizeProfile(reg Registration) ([]string, error) {
	if n := len([]rune(strings.TrimSpace(reg.Name))); n == 0 || n > MaxNameLength {
		return nil, fmt.Errorf("%w: name must be 1-%d characters", fault.ErrInvalidText, MaxNameLength)
	}
	if len([]rune(reg.Bio)) > MaxBioLength {
		return nil, fmt.Errorf("%w: bio exceeds %d characters", fault.ErrInvalidText, MaxBioLength)
	}
	if len(reg.Categories) > MaxCategories {
		return nil, fmt.Errorf("%w: at most %d categories", fault.ErrInvalidText, MaxCategories)
	}
	seen := make(map[string]struct{}, len(reg.Categories))
	out := make([]string, 0, len(reg.Categories))
	for _, c := range reg.Categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if len(c) > MaxCategoryLength {
			return nil, fmt.Errorf("%w: category %q too long", fault.ErrInvalidText, c)
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

// Unregister removes the expert and returns the transfer that refunds the
// whole stake to the wallet. pending must report whether the expert still
// has reviews on unresolved claims.
func Unregister(st *Store, addr types.Address, pending bool) (*Expert, ledger.Transfer, error) {
	e, err := st.Get(addr)
	if err != nil {
		return nil, ledger.Transfer{}, err
	}
	if pending || e.LockedStake > 0 {
		return nil, ledger.Transfer{}, fmt.Errorf("%w: %s", fault.ErrHasPendingReviews, addr)
	}
	if err := st.Delete(addr); err != nil {
		return nil, ledger.Transfer{}, err
	}
	return e, ledger.Transfer{
		From:   ledger.Stake(addr),
		To:     ledger.Wallet(addr),
		Amount: e.StakedAmount,
		Memo:   "unregister refund",
	}, nil
}

// TopUp adds stake at the expert's current tier and reactivates a
// suspended expert once the minimum is met again.
func TopUp(st *Store, rules config.Rules, addr types.Address, amount uint64) (*Expert, ledger.Transfer, error) {
	if amount == 0 {
		return nil, ledger.Transfer{}, fmt.Errorf("%w: top-up must be positive", fault.ErrInvalidAmount)
	}
	e, err := st.Get(addr)
	if err != nil {
		return nil, ledger.Transfer{}, err
	}
	e.Credit(amount)
	e.RefreshStatus(rules.Tier(e.Tier).MinStake)
	if err := st.Put(e); err != nil {
		return nil, ledger.Transfer{}, err
	}
	return e, ledger.Transfer{
		From:   ledger.Wallet(addr),
		To:     ledger.Stake(addr),
		Amount: amount,
		Memo:   "top up stake",
	}, nil
}
