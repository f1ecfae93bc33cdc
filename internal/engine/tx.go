package engine

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/truthstamp/internal/appeal"
	"github.com/Klingon-tech/truthstamp/internal/claim"
	"github.com/Klingon-tech/truthstamp/internal/consensus"
	"github.com/Klingon-tech/truthstamp/internal/expert"
	"github.com/Klingon-tech/truthstamp/internal/ledger"
	"github.com/Klingon-tech/truthstamp/internal/log"
	"github.com/Klingon-tech/truthstamp/internal/review"
	"github.com/Klingon-tech/truthstamp/internal/settlement"
	"github.com/Klingon-tech/truthstamp/internal/storage"
)

// opTx is the working set of one operation: a storage transaction, the
// ledger transfers staged so far, the stores reading through both, and the
// locks and events to release and publish once the outcome is final.
type opTx struct {
	e     *Engine
	txn   *storage.Txn
	stage *ledger.Stage

	claims    *claim.Store
	experts   *expert.Store
	reviews   *review.Store
	results   *consensus.Store
	appeals   *appeal.Store
	journal   *settlement.Journal
	insurance *settlement.Insurance

	unlocks          []func()
	events           []Event
	committed        []func()
	touchedInsurance bool
}

func (e *Engine) begin(ctx context.Context) *opTx {
	txn := storage.NewTxn(e.db)
	return &opTx{
		e:         e,
		txn:       txn,
		stage:     ledger.NewStage(ctx, e.ledger),
		claims:    claim.NewStore(txn),
		experts:   expert.NewStore(txn),
		reviews:   review.NewStore(txn),
		results:   consensus.NewStore(txn),
		appeals:   appeal.NewStore(txn),
		journal:   settlement.NewJournal(txn),
		insurance: settlement.NewInsurance(txn),
	}
}

// lock acquires keys and holds them until the operation is released.
// Callers must lock in the engine-wide order within one operation.
func (tx *opTx) lock(keys ...string) {
	for _, k := range keys {
		if k == insuranceLock {
			tx.touchedInsurance = true
		}
	}
	tx.unlocks = append(tx.unlocks, tx.e.locks.Lock(keys...))
}

func (tx *opTx) release() {
	for i := len(tx.unlocks) - 1; i >= 0; i-- {
		tx.unlocks[i]()
	}
	tx.unlocks = nil
}

func (tx *opTx) emit(ev Event) {
	ev.At = tx.e.clock().UTC()
	tx.events = append(tx.events, ev)
}

// onCommit runs fn after the operation commits.
func (tx *opTx) onCommit(fn func()) {
	tx.committed = append(tx.committed, fn)
}

// transfer stages a ledger transfer.
func (tx *opTx) transfer(t ledger.Transfer) error {
	return tx.stage.Add(t)
}

// settler returns a settler writing through this operation.
func (tx *opTx) settler() *settlement.Settler {
	return &settlement.Settler{
		Rules:     tx.e.rules,
		Experts:   tx.experts,
		Reviews:   tx.reviews,
		Journal:   tx.journal,
		Insurance: tx.insurance,
		Books:     tx.stage,
		Now:       tx.e.clock(),
	}
}

// commit applies the staged ledger batch, then the storage batch. If the
// storage write fails the ledger batch is reversed.
func (tx *opTx) commit() error {
	if err := tx.stage.Apply(); err != nil {
		tx.txn.Discard()
		return fmt.Errorf("apply ledger batch: %w", err)
	}
	if err := tx.txn.Commit(); err != nil {
		if uerr := tx.stage.Undo(); uerr != nil {
			log.Engine.Error().Err(uerr).Msg("Ledger batch could not be reversed after failed commit")
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
