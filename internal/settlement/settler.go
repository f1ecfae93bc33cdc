package settlement

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Klingon-tech/truthstamp/config"
	"github.com/Klingon-tech/truthstamp/internal/claim"
	"github.com/Klingon-tech/truthstamp/internal/expert"
	"github.com/Klingon-tech/truthstamp/internal/fault"
	"github.com/Klingon-tech/truthstamp/internal/ledger"
	"github.com/Klingon-tech/truthstamp/internal/log"
	"github.com/Klingon-tech/truthstamp/internal/review"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

// Settler applies settlement plans. It is built per operation over stores
// and books that share one uncommitted transaction, so a failure anywhere
// leaves nothing behind.
type Settler struct {
	Rules     config.Rules
	Experts   *expert.Store
	Reviews   *review.Store
	Journal   *Journal
	Insurance *Insurance
	Books     Books
	Now       time.Time
}

// journaled routes transfers through the settler so each one is recorded
// in the claim's journal.
type journaled struct {
	s       *Settler
	claimID uint64
	runID   uuid.UUID
	kind    Kind
}

func (j journaled) Transfer(from, to ledger.Account, amount uint64, _ string) error {
	return j.s.move(j.claimID, j.runID, j.kind, from, to, amount, 0)
}

func (j journaled) Available(acct ledger.Account) (uint64, error) {
	return j.s.Books.Available(acct)
}

// Record stages a transfer and appends it to the claim's journal.
func (s *Settler) Record(claimID uint64, runID uuid.UUID, kind Kind, from, to ledger.Account, amount uint64) error {
	return s.move(claimID, runID, kind, from, to, amount, 0)
}

func (s *Settler) move(claimID uint64, runID uuid.UUID, kind Kind, from, to ledger.Account, amount, reverses uint64) error {
	if amount == 0 {
		return nil
	}
	memo := fmt.Sprintf("claim %d %s", claimID, kind)
	if err := s.Books.Transfer(from, to, amount, memo); err != nil {
		return err
	}
	return s.Journal.Append(&Entry{
		ClaimID:  claimID,
		RunID:    runID,
		Kind:     kind,
		From:     from,
		To:       to,
		Amount:   amount,
		Reverses: reverses,
	})
}

// experts caches the expert records touched by one settlement so that
// every record is written once, in address order.
type experts struct {
	store *expert.Store
	byKey map[types.Address]*expert.Expert
	gone  map[types.Address]bool
}

func (s *Settler) newExperts() *experts {
	return &experts{store: s.Experts, byKey: make(map[types.Address]*expert.Expert), gone: make(map[types.Address]bool)}
}

// get returns the record or nil when the expert has since unregistered.
func (x *experts) get(addr types.Address) (*expert.Expert, error) {
	if e, ok := x.byKey[addr]; ok {
		return e, nil
	}
	if x.gone[addr] {
		return nil, nil
	}
	e, err := x.store.Get(addr)
	if errors.Is(err, fault.ErrExpertNotRegistered) {
		x.gone[addr] = true
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	x.byKey[addr] = e
	return e, nil
}

func (x *experts) flush(rules config.Rules) error {
	addrs := make([]types.Address, 0, len(x.byKey))
	for a := range x.byKey {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Compare(addrs[j]) < 0 })
	for _, a := range addrs {
		e := x.byKey[a]
		if e.RefreshStatus(rules.Tier(e.Tier).MinStake) {
			log.Settlement.Info().Str("expert", a.String()).Str("status", string(e.Status)).Msg("Expert status changed")
		}
		if err := x.store.Put(e); err != nil {
			return err
		}
	}
	return nil
}

// Settle distributes the pool of a claim that has just finalized with
// verdict, then pays outstanding liabilities from the insurance pool. The
// claim's StakePool is closed; the caller stores the claim.
func (s *Settler) Settle(c *claim.Claim, verdict types.Verdict, revision uint32, reviews []*review.Review) (*Run, error) {
	plan := Compute(c.Fee, reviews, verdict, s.Rules)
	if err := plan.Check(); err != nil {
		return nil, err
	}
	if plan.Pool != c.StakePool {
		return nil, fmt.Errorf("claim %d pool %d does not match reviews (%d)", c.ID, c.StakePool, plan.Pool)
	}

	run := &Run{ID: uuid.New(), ClaimID: c.ID, Revision: revision, Plan: *plan, SettledAt: s.Now.UTC()}
	pool := ledger.ClaimPool(c.ID)
	xs := s.newExperts()

	for i, o := range plan.Outcomes {
		e, err := xs.get(o.Expert)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return nil, fmt.Errorf("settle claim %d: expert %s holds escrow but is not registered", c.ID, o.Expert)
		}
		stake := ledger.Stake(o.Expert)
		if err := s.move(c.ID, run.ID, KindReturn, pool, stake, o.Returned, 0); err != nil {
			return nil, err
		}
		if err := s.move(c.ID, run.ID, KindReward, pool, stake, o.Reward, 0); err != nil {
			return nil, err
		}
		if err := s.move(c.ID, run.ID, KindSlash, pool, ledger.Insurance, o.Slash, 0); err != nil {
			return nil, err
		}
		e.Release(o.Stake, o.Paid())
		e.RecordOutcome(o.Correct, o.Reward, o.Reputation, true)

		r := reviews[i]
		r.Rewarded = true
		if err := s.Reviews.Put(r); err != nil {
			return nil, err
		}
	}
	if err := s.move(c.ID, run.ID, KindFee, pool, ledger.Insurance, plan.InsuranceFee, 0); err != nil {
		return nil, err
	}
	if err := s.move(c.ID, run.ID, KindRemainder, pool, ledger.Insurance, plan.Remainder, 0); err != nil {
		return nil, err
	}
	if err := xs.flush(s.Rules); err != nil {
		return nil, err
	}
	c.CloseSettlement()

	if err := s.finishRun(run); err != nil {
		return nil, err
	}
	// Fee share, slashes and remainder are insurance inflows.
	if _, err := s.PayDown(); err != nil {
		return nil, err
	}
	log.WithClaim(log.Settlement, c.ID).Info().
		Str("verdict", string(verdict)).
		Uint64("pool", plan.Pool).
		Uint64("remainder", plan.Remainder).
		Int("reviews", len(plan.Outcomes)).
		Msg("Claim settled")
	return run, nil
}

// Resettle reverses the payouts of prev with compensating entries and
// distributes the claim's settled pool again for verdict.
//
// Clawbacks take at most what each account still holds. Insurance covers
// the gap as far as it can; whatever is still missing is owed to the
// experts of the new settlement as deferred liabilities.
func (s *Settler) Resettle(c *claim.Claim, prev *Run, verdict types.Verdict, revision uint32, reviews []*review.Review) (*Run, error) {
	plan := Compute(c.Fee, reviews, verdict, s.Rules)
	if err := plan.Check(); err != nil {
		return nil, err
	}
	if plan.Pool != prev.Pool {
		return nil, fmt.Errorf("claim %d reviews changed since settlement: pool %d, was %d", c.ID, plan.Pool, prev.Pool)
	}

	run := &Run{ID: uuid.New(), ClaimID: c.ID, Revision: revision, Plan: *plan, SettledAt: s.Now.UTC()}
	pool := ledger.ClaimPool(c.ID)
	xs := s.newExperts()

	missing, err := s.clawBack(c.ID, prev, run.ID, xs)
	if err != nil {
		return nil, err
	}
	for _, o := range prev.Outcomes {
		e, err := xs.get(o.Expert)
		if err != nil {
			return nil, err
		}
		if e != nil {
			e.RevertOutcome(o.Correct, o.Reward, o.Reputation)
		}
	}

	insurance, err := s.Books.Available(ledger.Insurance)
	if err != nil {
		return nil, err
	}
	backstop := min(missing, insurance)
	if err := s.move(c.ID, run.ID, KindBackstop, ledger.Insurance, pool, backstop, 0); err != nil {
		return nil, err
	}
	run.Shortfall = missing - backstop

	// Experts are paid before insurance so any shortfall lands on the
	// pool's own share.
	for _, o := range plan.Outcomes {
		e, err := xs.get(o.Expert)
		if err != nil {
			return nil, err
		}
		dest := ledger.Wallet(o.Expert)
		if e != nil {
			dest = ledger.Stake(o.Expert)
		}
		paid, err := s.payCapped(c.ID, run.ID, KindReturn, pool, dest, o.Returned)
		if err != nil {
			return nil, err
		}
		reward, err := s.payCapped(c.ID, run.ID, KindReward, pool, dest, o.Reward)
		if err != nil {
			return nil, err
		}
		paid += reward
		if owed := o.Paid() - paid; owed > 0 {
			if _, err := s.Insurance.Defer(o.Expert, owed, c.ID, "resettlement", s.Now); err != nil {
				return nil, err
			}
			run.Deferred += owed
		}
		if e != nil {
			e.Credit(paid)
			e.RecordOutcome(o.Correct, o.Reward, o.Reputation, false)
		}
	}
	for _, o := range plan.Outcomes {
		if _, err := s.payCapped(c.ID, run.ID, KindSlash, pool, ledger.Insurance, o.Slash); err != nil {
			return nil, err
		}
	}
	if _, err := s.payCapped(c.ID, run.ID, KindFee, pool, ledger.Insurance, plan.InsuranceFee); err != nil {
		return nil, err
	}
	if _, err := s.payCapped(c.ID, run.ID, KindRemainder, pool, ledger.Insurance, plan.Remainder); err != nil {
		return nil, err
	}
	if err := xs.flush(s.Rules); err != nil {
		return nil, err
	}

	if err := s.finishRun(run); err != nil {
		return nil, err
	}
	log.WithClaim(log.Settlement, c.ID).Info().
		Str("verdict", string(verdict)).
		Uint32("revision", revision).
		Uint64("shortfall", run.Shortfall).
		Uint64("deferred", run.Deferred).
		Msg("Claim re-settled")
	return run, nil
}

// clawBack returns every payout of prev to the claim pool and reports how
// much could not be recovered.
func (s *Settler) clawBack(claimID uint64, prev *Run, runID uuid.UUID, xs *experts) (uint64, error) {
	entries, err := s.Journal.Entries(claimID)
	if err != nil {
		return 0, err
	}
	pool := ledger.ClaimPool(claimID)
	var missing uint64
	for _, en := range entries {
		if en.RunID != prev.ID || en.From != pool {
			continue
		}
		src := en.To
		var e *expert.Expert
		if owner, ok := src.Owner(); ok {
			if e, err = xs.get(owner); err != nil {
				return 0, err
			}
			if e == nil {
				// The stake was refunded on unregistration.
				src = ledger.Wallet(owner)
			}
		}
		avail, err := s.Books.Available(src)
		if err != nil {
			return 0, err
		}
		amt := min(en.Amount, avail)
		if err := s.move(claimID, runID, KindClawback, src, pool, amt, en.Seq); err != nil {
			return 0, err
		}
		if e != nil {
			e.Debit(amt)
		}
		missing += en.Amount - amt
	}
	return missing, nil
}

func (s *Settler) payCapped(claimID uint64, runID uuid.UUID, kind Kind, from, to ledger.Account, amount uint64) (uint64, error) {
	avail, err := s.Books.Available(from)
	if err != nil {
		return 0, err
	}
	amt := min(amount, avail)
	return amt, s.move(claimID, runID, kind, from, to, amt, 0)
}

// Compensate pays amount from the insurance pool to beneficiary, deferring
// what the pool cannot cover.
func (s *Settler) Compensate(claimID uint64, runID uuid.UUID, beneficiary types.Address, amount uint64) (paid, deferred uint64, err error) {
	books := journaled{s: s, claimID: claimID, runID: runID, kind: KindPayout}
	return s.Insurance.Pay(books, beneficiary, amount, claimID, "appeal payout", s.Now)
}

// PayDown settles outstanding liabilities from the insurance pool.
func (s *Settler) PayDown() (uint64, error) {
	return s.Insurance.PayDown(s.Books)
}

func (s *Settler) finishRun(run *Run) error {
	entries, err := s.Journal.Entries(run.ClaimID)
	if err != nil {
		return err
	}
	for _, en := range entries {
		if en.RunID != run.ID {
			continue
		}
		if run.FirstSeq == 0 {
			run.FirstSeq = en.Seq
		}
		run.LastSeq = en.Seq
	}
	return s.Journal.PutRun(run)
}
