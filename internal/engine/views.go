package engine

import (
	"context"
	"errors"

	"github.com/Klingon-tech/truthstamp/config"
	"github.com/Klingon-tech/truthstamp/internal/ledger"
	"github.com/Klingon-tech/truthstamp/internal/settlement"
)

// InsuranceView is the insurance pool balance and what it still owes.
type InsuranceView struct {
	Balance       uint64                  `json:"balance"`
	TotalDeferred uint64                  `json:"total_deferred"`
	TotalPaid     uint64                  `json:"total_paid"`
	Liabilities   []*settlement.Liability `json:"liabilities"`
}

// GetInsurance reports the insurance pool.
func (e *Engine) GetInsurance(ctx context.Context) (InsuranceView, error) {
	bal, err := e.ledger.Balance(ctx, ledger.Insurance)
	if err != nil {
		return InsuranceView{}, err
	}
	in := settlement.NewInsurance(e.db)
	st, err := in.State()
	if err != nil {
		return InsuranceView{}, err
	}
	ls, err := in.Liabilities()
	if err != nil {
		return InsuranceView{}, err
	}
	return InsuranceView{
		Balance:       bal,
		TotalDeferred: st.TotalDeferred,
		TotalPaid:     st.TotalPaid,
		Liabilities:   ls,
	}, nil
}

// SettlementView is a claim's settlement journal. Verified is false when
// the hash chain does not check out; VerifyError then says why.
type SettlementView struct {
	Found       bool                `json:"found"`
	Runs        []*settlement.Run   `json:"runs,omitempty"`
	Entries     []*settlement.Entry `json:"entries,omitempty"`
	Verified    bool                `json:"verified"`
	VerifyError string              `json:"verify_error,omitempty"`
}

// GetSettlement returns every settlement run of a claim and the journal
// entries they produced, bonds and appeal payouts included.
func (e *Engine) GetSettlement(ctx context.Context, claimID uint64) (SettlementView, error) {
	if err := ctx.Err(); err != nil {
		return SettlementView{}, err
	}
	j := settlement.NewJournal(e.db)
	entries, err := j.Entries(claimID)
	if err != nil {
		return SettlementView{}, err
	}
	runs, err := j.Runs(claimID)
	if err != nil {
		return SettlementView{}, err
	}
	if len(entries) == 0 && len(runs) == 0 {
		return SettlementView{}, nil
	}
	view := SettlementView{Found: true, Runs: runs, Entries: entries, Verified: true}
	if err := j.Verify(claimID); err != nil {
		if !errors.Is(err, settlement.ErrBrokenChain) {
			return SettlementView{}, err
		}
		view.Verified = false
		view.VerifyError = err.Error()
	}
	return view, nil
}

// Balance returns the ledger balance of acct.
func (e *Engine) Balance(ctx context.Context, acct ledger.Account) (uint64, error) {
	return e.ledger.Balance(ctx, acct)
}

// Info summarizes the engine.
type Info struct {
	Claims      uint64       `json:"claims"`
	Reviews     uint64       `json:"reviews"`
	Experts     uint64       `json:"experts"`
	Insurance   uint64       `json:"insurance"`
	Deferred    uint64       `json:"deferred"`
	GenesisHash string       `json:"genesis_hash,omitempty"`
	Rules       config.Rules `json:"rules"`
}

// Info returns counters and the rules in force.
func (e *Engine) Info(ctx context.Context) (*Info, error) {
	experts, err := e.ExpertCount(ctx)
	if err != nil {
		return nil, err
	}
	ins, err := e.GetInsurance(ctx)
	if err != nil {
		return nil, err
	}
	claims, err := e.claimSeq.Last(e.db)
	if err != nil {
		return nil, err
	}
	reviews, err := e.reviewSeq.Last(e.db)
	if err != nil {
		return nil, err
	}
	info := &Info{
		Claims:    claims,
		Reviews:   reviews,
		Experts:   experts,
		Insurance: ins.Balance,
		Deferred:  ins.TotalDeferred,
		Rules:     e.rules,
	}
	if h, ok, err := e.genesisHash(); err != nil {
		return nil, err
	} else if ok {
		info.GenesisHash = h.String()
	}
	return info, nil
}
