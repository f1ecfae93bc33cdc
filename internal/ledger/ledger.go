// Package ledger defines the value-transfer boundary the engine settles
// through, and a reference implementation persisted in the engine's KV
// store.
//
// The engine never moves value itself. Every operation produces a list of
// transfers between named accounts and hands the whole list to a Ledger,
// which must apply all of them or none.
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Klingon-tech/truthstamp/internal/fault"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

// Account names a balance held by the ledger.
type Account string

// Insurance is the pool that absorbs slashes and fee shares and pays
// appeal compensation.
const Insurance Account = "insurance"

const (
	walletPrefix = "wallet:"
	stakePrefix  = "stake:"
	claimPrefix  = "claim:"
)

// Wallet is a participant's spendable balance.
func Wallet(a types.Address) Account { return Account(walletPrefix + a.Hex()) }

// Stake is the free (unescrowed) part of an expert's stake.
func Stake(a types.Address) Account { return Account(stakePrefix + a.Hex()) }

// ClaimPool escrows a claim's fee and the stakes of its open reviews.
func ClaimPool(id uint64) Account { return Account(claimPrefix + strconv.FormatUint(id, 10)) }

// Owner returns the address behind a wallet or stake account.
func (a Account) Owner() (types.Address, bool) {
	s := string(a)
	for _, p := range []string{walletPrefix, stakePrefix} {
		if strings.HasPrefix(s, p) {
			addr, err := types.HexToAddress(s[len(p):])
			return addr, err == nil
		}
	}
	return types.Address{}, false
}

// ErrInsufficientFunds is returned when a transfer would overdraw an account.
var ErrInsufficientFunds = fault.ErrInsufficientFunds

// Transfer moves Amount from one account to another.
type Transfer struct {
	From   Account `json:"from"`
	To     Account `json:"to"`
	Amount uint64  `json:"amount"`
	Memo   string  `json:"memo,omitempty"`
}

func (t Transfer) String() string {
	return fmt.Sprintf("%s -> %s: %d (%s)", t.From, t.To, t.Amount, t.Memo)
}

// Ledger applies batches of transfers atomically. Balances never go
// negative; a batch that would overdraw any account at any step is
// rejected as a whole.
type Ledger interface {
	Apply(ctx context.Context, transfers []Transfer) error
	Balance(ctx context.Context, acct Account) (uint64, error)
}

// Reverse returns the transfers that undo ts, in reverse order.
func Reverse(ts []Transfer) []Transfer {
	out := make([]Transfer, 0, len(ts))
	for i := len(ts) - 1; i >= 0; i-- {
		t := ts[i]
		out = append(out, Transfer{From: t.To, To: t.From, Amount: t.Amount, Memo: "undo " + t.Memo})
	}
	return out
}
