package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/Klingon-tech/truthstamp/internal/log"
	"github.com/Klingon-tech/truthstamp/internal/storage"
)

var prefixBalance = []byte("b/")

func balanceKey(acct Account) []byte {
	return append(append([]byte{}, prefixBalance...), string(acct)...)
}

// Book is a Ledger persisted in a storage.DB. Each Apply is committed as
// one storage batch.
type Book struct {
	mu sync.Mutex
	db storage.DB
}

// NewBook creates a Book over db.
func NewBook(db storage.DB) *Book {
	return &Book{db: db}
}

// Balance returns the balance of acct (0 for unknown accounts).
func (b *Book) Balance(ctx context.Context, acct Account) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return b.read(acct)
}

func (b *Book) read(acct Account) (uint64, error) {
	data, err := b.db.Get(balanceKey(acct))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger balance %s: %w", acct, err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("ledger balance %s: corrupt value", acct)
	}
	return binary.BigEndian.Uint64(data), nil
}

// Apply executes transfers in order. Either every transfer lands or none.
func (b *Book) Apply(ctx context.Context, transfers []Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	balances := make(map[Account]uint64)
	load := func(acct Account) (uint64, error) {
		if v, ok := balances[acct]; ok {
			return v, nil
		}
		v, err := b.read(acct)
		if err != nil {
			return 0, err
		}
		balances[acct] = v
		return v, nil
	}

	for i, t := range transfers {
		if t.Amount == 0 || t.From == t.To {
			continue
		}
		from, err := load(t.From)
		if err != nil {
			return err
		}
		to, err := load(t.To)
		if err != nil {
			return err
		}
		if from < t.Amount {
			return fmt.Errorf("%w: transfer %d (%s) needs %d, %s holds %d",
				ErrInsufficientFunds, i, t.Memo, t.Amount, t.From, from)
		}
		if to > math.MaxUint64-t.Amount {
			return fmt.Errorf("ledger: transfer %d overflows %s", i, t.To)
		}
		balances[t.From] = from - t.Amount
		balances[t.To] = to + t.Amount
	}
	return b.commit(balances)
}

// Mint credits amount to acct out of nothing. It is used to fund genesis
// allocations and by tests.
func (b *Book) Mint(ctx context.Context, acct Account, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, err := b.read(acct)
	if err != nil {
		return err
	}
	if cur > math.MaxUint64-amount {
		return fmt.Errorf("ledger: mint overflows %s", acct)
	}
	if err := b.commit(map[Account]uint64{acct: cur + amount}); err != nil {
		return err
	}
	log.Ledger.Debug().Str("account", string(acct)).Uint64("amount", amount).Msg("Minted")
	return nil
}

// Accounts returns every non-zero balance whose name starts with prefix.
func (b *Book) Accounts(prefix string) (map[Account]uint64, error) {
	out := make(map[Account]uint64)
	err := b.db.ForEach(balanceKey(Account(prefix)), func(key, value []byte) error {
		if len(value) != 8 {
			return fmt.Errorf("ledger: corrupt balance under %s", key)
		}
		if v := binary.BigEndian.Uint64(value); v > 0 {
			out[Account(key[len(prefixBalance):])] = v
		}
		return nil
	})
	return out, err
}

func (b *Book) commit(balances map[Account]uint64) error {
	accts := make([]string, 0, len(balances))
	for a := range balances {
		accts = append(accts, string(a))
	}
	sort.Strings(accts)

	batch := storage.NewBatch(b.db)
	for _, a := range accts {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], balances[Account(a)])
		if err := batch.Put(balanceKey(Account(a)), buf[:]); err != nil {
			return fmt.Errorf("ledger stage %s: %w", a, err)
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("ledger commit: %w", err)
	}
	return nil
}
