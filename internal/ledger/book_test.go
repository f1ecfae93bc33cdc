package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/Klingon-tech/truthstamp/internal/fault"
	"github.com/Klingon-tech/truthstamp/internal/storage"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

func newTestBook(t *testing.T) *Book {
	t.Helper()
	return NewBook(storage.NewMemory())
}

func mustBalance(t *testing.T, b *Book, acct Account) uint64 {
	t.Helper()
	v, err := b.Balance(context.Background(), acct)
	if err != nil {
		t.Fatalf("Balance(%s): %v", acct, err)
	}
	return v
}

func TestBook_ApplyMovesValue(t *testing.T) {
	ctx := context.Background()
	b := newTestBook(t)
	alice := types.Address{0x0a}

	if err := b.Mint(ctx, Wallet(alice), 1000); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	err := b.Apply(ctx, []Transfer{
		{From: Wallet(alice), To: Stake(alice), Amount: 600, Memo: "stake"},
		{From: Stake(alice), To: ClaimPool(1), Amount: 250, Memo: "review"},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if got := mustBalance(t, b, Wallet(alice)); got != 400 {
		t.Errorf("wallet = %d, want 400", got)
	}
	if got := mustBalance(t, b, Stake(alice)); got != 350 {
		t.Errorf("stake = %d, want 350", got)
	}
	if got := mustBalance(t, b, ClaimPool(1)); got != 250 {
		t.Errorf("claim pool = %d, want 250", got)
	}
}

func TestBook_ApplyAllOrNothing(t *testing.T) {
	ctx := context.Background()
	b := newTestBook(t)
	bob := types.Address{0x0b}
	b.Mint(ctx, Wallet(bob), 100)

	err := b.Apply(ctx, []Transfer{
		{From: Wallet(bob), To: Insurance, Amount: 60},
		{From: Wallet(bob), To: Insurance, Amount: 60},
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Apply error = %v, want ErrInsufficientFunds", err)
	}
	if fault.KindOf(err) != fault.KindValidation {
		t.Errorf("overdraw should be a validation rejection, got %v", fault.KindOf(err))
	}
	if got := mustBalance(t, b, Wallet(bob)); got != 100 {
		t.Errorf("wallet after failed batch = %d, want 100", got)
	}
	if got := mustBalance(t, b, Insurance); got != 0 {
		t.Errorf("insurance after failed batch = %d, want 0", got)
	}
}

func TestBook_ReverseRestores(t *testing.T) {
	ctx := context.Background()
	b := newTestBook(t)
	carol := types.Address{0x0c}
	b.Mint(ctx, Wallet(carol), 500)

	batch := []Transfer{
		{From: Wallet(carol), To: ClaimPool(9), Amount: 300, Memo: "fee"},
		{From: ClaimPool(9), To: Insurance, Amount: 60, Memo: "insurance share"},
	}
	if err := b.Apply(ctx, batch); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := b.Apply(ctx, Reverse(batch)); err != nil {
		t.Fatalf("Apply(Reverse): %v", err)
	}
	for acct, want := range map[Account]uint64{Wallet(carol): 500, ClaimPool(9): 0, Insurance: 0} {
		if got := mustBalance(t, b, acct); got != want {
			t.Errorf("%s = %d, want %d", acct, got, want)
		}
	}
}

func TestBook_Accounts(t *testing.T) {
	ctx := context.Background()
	b := newTestBook(t)
	b.Mint(ctx, Wallet(types.Address{1}), 5)
	b.Mint(ctx, Wallet(types.Address{2}), 7)
	b.Mint(ctx, Insurance, 9)

	wallets, err := b.Accounts("wallet:")
	if err != nil {
		t.Fatalf("Accounts: %v", err)
	}
	if len(wallets) != 2 {
		t.Errorf("Accounts(wallet:) = %v, want 2 entries", wallets)
	}
}

func TestAccount_Owner(t *testing.T) {
	addr := types.Address{0xaa, 19: 0x01}
	for _, acct := range []Account{Wallet(addr), Stake(addr)} {
		got, ok := acct.Owner()
		if !ok || got != addr {
			t.Errorf("%s.Owner() = %x, %v", acct, got, ok)
		}
	}
	if _, ok := Insurance.Owner(); ok {
		t.Error("insurance has no owner")
	}
	if _, ok := ClaimPool(3).Owner(); ok {
		t.Error("claim pool has no owner")
	}
}

func TestBook_CanceledContext(t *testing.T) {
	b := newTestBook(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Apply(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Apply with canceled ctx = %v", err)
	}
}
