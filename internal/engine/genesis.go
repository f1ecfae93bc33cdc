package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/truthstamp/config"
	"github.com/Klingon-tech/truthstamp/internal/ledger"
	"github.com/Klingon-tech/truthstamp/internal/log"
	"github.com/Klingon-tech/truthstamp/internal/storage"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

var keyGenesis = []byte("genesis")

// MintFunc credits an account out of nothing. *ledger.Book.Mint is one.
type MintFunc func(ctx context.Context, acct ledger.Account, amount uint64) error

// EnsureGenesis applies g on a fresh data directory and checks it against
// the recorded genesis otherwise. Allocations are minted only once.
func (e *Engine) EnsureGenesis(ctx context.Context, g *config.Genesis, mint MintFunc) error {
	if g.Rules != e.rules {
		return fmt.Errorf("%w: engine rules differ from genesis rules", ErrGenesisMismatch)
	}
	want, err := g.Hash()
	if err != nil {
		return err
	}
	have, ok, err := e.genesisHash()
	if err != nil {
		return err
	}
	if ok {
		if have != want {
			return fmt.Errorf("%w: data dir has %s, config has %s", ErrGenesisMismatch, have, want)
		}
		return nil
	}

	allocs, err := g.Allocations()
	if err != nil {
		return err
	}
	for _, a := range allocs {
		if err := mint(ctx, ledger.Wallet(a.Address), a.Amount); err != nil {
			return fmt.Errorf("genesis alloc %s: %w", a.Address, err)
		}
	}
	if g.Insurance > 0 {
		if err := mint(ctx, ledger.Insurance, g.Insurance); err != nil {
			return fmt.Errorf("genesis insurance: %w", err)
		}
	}
	if err := e.db.Put(keyGenesis, want[:]); err != nil {
		return fmt.Errorf("record genesis: %w", err)
	}
	log.Engine.Info().
		Str("hash", want.String()).
		Int("allocations", len(allocs)).
		Uint64("insurance", g.Insurance).
		Msg("Genesis applied")
	return nil
}

func (e *Engine) genesisHash() (types.Hash, bool, error) {
	data, err := e.db.Get(keyGenesis)
	if errors.Is(err, storage.ErrNotFound) {
		return types.Hash{}, false, nil
	}
	if err != nil {
		return types.Hash{}, false, err
	}
	var h types.Hash
	if len(data) != len(h) {
		return types.Hash{}, false, fmt.Errorf("corrupt genesis hash (%d bytes)", len(data))
	}
	copy(h[:], data)
	return h, true, nil
}
