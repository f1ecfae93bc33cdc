// Package engine is the claim verification state machine. It serializes
// operations per claim and per account, runs each operation in one storage
// transaction and settles value through a single ledger batch, so callers
// only ever observe the state before or after a whole operation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Klingon-tech/truthstamp/config"
	"github.com/Klingon-tech/truthstamp/internal/fault"
	"github.com/Klingon-tech/truthstamp/internal/keylock"
	"github.com/Klingon-tech/truthstamp/internal/ledger"
	"github.com/Klingon-tech/truthstamp/internal/log"
	"github.com/Klingon-tech/truthstamp/internal/metrics"
	"github.com/Klingon-tech/truthstamp/internal/storage"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

// Engine owns the claim, expert, review, consensus and appeal records.
// All methods are safe for concurrent use.
type Engine struct {
	db     storage.DB
	ledger ledger.Ledger
	rules  config.Rules

	locks     *keylock.Locker
	claimSeq  *storage.Sequence
	reviewSeq *storage.Sequence

	clock   func() time.Time
	metrics metrics.Metrics
	events  *Bus
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source used for timestamps and deadlines.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.clock = now }
}

// WithMetrics records engine activity in m.
func WithMetrics(m metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

var (
	keyClaimSeq  = []byte("id/claim")
	keyReviewSeq = []byte("id/review")
)

// New creates an engine over db, settling value through l.
func New(db storage.DB, l ledger.Ledger, rules config.Rules, opts ...Option) (*Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	if l == nil {
		return nil, fmt.Errorf("ledger is nil")
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	claimSeq, err := storage.NewSequence(db, keyClaimSeq)
	if err != nil {
		return nil, err
	}
	reviewSeq, err := storage.NewSequence(db, keyReviewSeq)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		db:        db,
		ledger:    l,
		rules:     rules,
		locks:     keylock.New(),
		claimSeq:  claimSeq,
		reviewSeq: reviewSeq,
		clock:     time.Now,
		metrics:   metrics.Noop(),
		events:    NewBus(),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Rules returns the protocol economics the engine runs with.
func (e *Engine) Rules() config.Rules {
	return e.rules
}

// Subscribe returns a feed of the events published after each committed
// operation. capacity bounds the feed's buffer; zero uses the default.
func (e *Engine) Subscribe(capacity int) Subscription {
	return e.events.Subscribe(capacity)
}

// Lock keys. Operations lock at most one claim, then accounts in address
// order, then an id sequence, then the insurance pool. A sequence lock is
// held until the allocating operation commits.
const insuranceLock = "insurance"

func claimLock(id uint64) string {
	return fmt.Sprintf("claim/%d", id)
}

func accountLocks(addrs []types.Address, insurance bool) []string {
	sorted := append([]types.Address(nil), addrs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Compare(sorted[j]) < 0 })
	keys := make([]string, 0, len(sorted)+1)
	for _, a := range sorted {
		keys = append(keys, "acct/"+a.Hex())
	}
	if insurance {
		keys = append(keys, insuranceLock)
	}
	return keys
}

// run executes fn in a fresh transaction and commits it together with the
// ledger batch it staged. Locks taken through the transaction are held
// until the outcome is final.
func (e *Engine) run(ctx context.Context, op string, fn func(tx *opTx) error) error {
	start := time.Now()
	tx := e.begin(ctx)
	defer tx.release()

	err := ctx.Err()
	if err == nil {
		err = fn(tx)
	}
	if err == nil {
		err = tx.commit()
	} else {
		tx.txn.Discard()
	}

	result := "ok"
	if err != nil {
		result = fault.KindOf(err).String()
		if fault.IsRejection(err) {
			log.Engine.Debug().Str("op", op).Err(err).Msg("Rejected")
		} else {
			log.Engine.Error().Str("op", op).Err(err).Msg("Operation failed")
		}
	}
	e.metrics.ObserveOp(op, result, time.Since(start))
	if err != nil {
		return err
	}

	for _, fn := range tx.committed {
		fn()
	}
	for _, ev := range tx.events {
		e.metrics.MarkEvent(string(ev.Kind))
		e.events.publish(ev)
	}
	if tx.touchedInsurance {
		e.refreshInsuranceMetrics(ctx)
	}
	return nil
}

func (e *Engine) refreshInsuranceMetrics(ctx context.Context) {
	view, err := e.GetInsurance(ctx)
	if err != nil {
		log.Engine.Warn().Err(err).Msg("Insurance metrics not updated")
		return
	}
	e.metrics.SetInsurance(view.Balance, view.TotalDeferred)
}

// notFound reports whether err is a not-found rejection.
func notFound(err error) bool {
	return fault.KindOf(err) == fault.KindNotFound
}

// ErrGenesisMismatch is returned when a data directory was initialized
// from a different genesis.
var ErrGenesisMismatch = errors.New("genesis does not match data directory")
