package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/truthstamp/config"
	"github.com/Klingon-tech/truthstamp/internal/appeal"
	"github.com/Klingon-tech/truthstamp/internal/claim"
	"github.com/Klingon-tech/truthstamp/internal/expert"
	"github.com/Klingon-tech/truthstamp/internal/fault"
	"github.com/Klingon-tech/truthstamp/internal/ledger"
	"github.com/Klingon-tech/truthstamp/internal/review"
	"github.com/Klingon-tech/truthstamp/internal/storage"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

var (
	t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	addrA      = types.Address{1}
	addrB      = types.Address{2}
	addrC      = types.Address{3}
	submitter  = types.Address{0xaa}
	appellant  = types.Address{0xbb}
	day        = 24 * time.Hour
	defaultFee = config.DefaultRules().ClaimFee
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	eng    *Engine
	book   *ledger.Book
	clock  *testClock
	minted uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := storage.NewMemory()
	book := ledger.NewBook(storage.NewPrefixDB(db, []byte("l/")))
	clock := &testClock{now: t0}
	eng, err := New(storage.NewPrefixDB(db, []byte("e/")), book, config.DefaultRules(), WithClock(clock.Now))
	require.NoError(t, err)
	return &harness{t: t, ctx: context.Background(), eng: eng, book: book, clock: clock}
}

func (h *harness) fund(addr types.Address, amount uint64) {
	h.t.Helper()
	require.NoError(h.t, h.book.Mint(h.ctx, ledger.Wallet(addr), amount))
	h.minted += amount
}

func (h *harness) balance(acct ledger.Account) uint64 {
	h.t.Helper()
	b, err := h.eng.Balance(h.ctx, acct)
	require.NoError(h.t, err)
	return b
}

func (h *harness) register(addr types.Address, tier types.Tier, stake uint64) *expert.Expert {
	h.t.Helper()
	h.fund(addr, stake)
	x, err := h.eng.RegisterExpert(h.ctx, expert.Registration{
		Address: addr, Name: "expert " + addr.Hex()[:4], Tier: tier, Stake: stake,
	})
	require.NoError(h.t, err)
	return x
}

func (h *harness) submitClaim(text string) *claim.Claim {
	h.t.Helper()
	h.fund(submitter, defaultFee)
	c, err := h.eng.SubmitClaim(h.ctx, claim.Submission{Submitter: submitter, Text: text})
	require.NoError(h.t, err)
	return c
}

func (h *harness) review(claimID uint64, addr types.Address, v types.Verdict, stake uint64, conf uint8) *ReviewResult {
	h.t.Helper()
	res, err := h.eng.SubmitReview(h.ctx, review.Submission{
		ClaimID: claimID, Expert: addr, Verdict: v, Reasoning: "checked the sources", Confidence: conf, Stake: stake,
	})
	require.NoError(h.t, err)
	return res
}

// conserved checks that no value was created or destroyed.
func (h *harness) conserved() {
	h.t.Helper()
	all, err := h.book.Accounts("")
	require.NoError(h.t, err)
	var sum uint64
	for _, v := range all {
		sum += v
	}
	require.Equal(h.t, h.minted, sum)
}

// standard registers three general experts and finalizes one claim 300 to
// 100 in favour of true:
//
//	A  registered 300  true  stake 200 conf 100
//	B  registered 200  true  stake 100 conf 100
//	C  registered 100  false stake 100 conf 100
func (h *harness) standard() (*claim.Claim, *ReviewResult) {
	h.t.Helper()
	h.register(addrA, types.TierGeneral, 300)
	h.register(addrB, types.TierGeneral, 200)
	h.register(addrC, types.TierGeneral, 100)
	c := h.submitClaim("The bridge opened in 1932.")
	require.False(h.t, h.review(c.ID, addrA, types.VerdictTrue, 200, 100).Finalized)
	require.False(h.t, h.review(c.ID, addrB, types.VerdictTrue, 100, 100).Finalized)
	res := h.review(c.ID, addrC, types.VerdictFalse, 100, 100)
	require.True(h.t, res.Finalized)
	return res.Claim, res
}

func TestEngine_New(t *testing.T) {
	require := require.New(t)
	db := storage.NewMemory()
	book := ledger.NewBook(db)

	_, err := New(nil, book, config.DefaultRules())
	require.Error(err)
	_, err = New(db, nil, config.DefaultRules())
	require.Error(err)

	bad := config.DefaultRules()
	bad.Quorum = 0
	_, err = New(db, book, bad)
	require.Error(err)
}

func TestEngine_SubmitClaim(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	c := h.submitClaim("Water boils at 100 °C at sea level.")
	require.Equal(uint64(1), c.ID)
	require.Equal(claim.StatusPending, c.Status)
	require.Equal(defaultFee, c.Fee)
	require.Equal(defaultFee, c.StakePool)
	require.Equal(defaultFee, h.balance(ledger.ClaimPool(c.ID)))
	require.Zero(h.balance(ledger.Wallet(submitter)))

	view, err := h.eng.GetClaim(h.ctx, c.ID)
	require.NoError(err)
	require.True(view.Found)
	require.Equal(c.Text, view.Claim.Text)

	missing, err := h.eng.GetClaim(h.ctx, 99)
	require.NoError(err)
	require.False(missing.Found)
	require.Nil(missing.Claim)
}

func TestEngine_SubmitClaim_Rejections(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	h.fund(submitter, 10)

	_, err := h.eng.SubmitClaim(h.ctx, claim.Submission{Submitter: submitter, Text: ""})
	require.ErrorIs(err, fault.ErrInvalidText)

	_, err = h.eng.SubmitClaim(h.ctx, claim.Submission{Submitter: submitter, Text: "ok", Fee: 10})
	require.ErrorIs(err, fault.ErrInsufficientFee)

	_, err = h.eng.SubmitClaim(h.ctx, claim.Submission{Submitter: submitter, Text: "ok"})
	require.ErrorIs(err, fault.ErrInsufficientFunds)

	// Rejected submissions consume no ids.
	count, err := h.eng.GetClaimCount(h.ctx)
	require.NoError(err)
	require.Zero(count)
	require.Equal(uint64(10), h.balance(ledger.Wallet(submitter)))

	c := h.submitClaim("first accepted")
	require.Equal(uint64(1), c.ID)
}

func TestEngine_RegisterExpert(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	x := h.register(addrA, types.TierProfessional, 1000)
	require.Equal(expert.StatusActive, x.Status)
	require.Equal(uint64(1000), h.balance(ledger.Stake(addrA)))
	require.Zero(h.balance(ledger.Wallet(addrA)))

	h.fund(addrA, 1000)
	_, err := h.eng.RegisterExpert(h.ctx, expert.Registration{Address: addrA, Name: "again", Tier: types.TierGeneral, Stake: 100})
	require.ErrorIs(err, fault.ErrAlreadyRegistered)

	h.fund(addrB, 50)
	_, err = h.eng.RegisterExpert(h.ctx, expert.Registration{Address: addrB, Name: "short", Tier: types.TierGeneral, Stake: 50})
	require.ErrorIs(err, fault.ErrInsufficientStake)

	_, err = h.eng.RegisterExpert(h.ctx, expert.Registration{Address: addrC, Name: "broke", Tier: types.TierGeneral, Stake: 100})
	require.ErrorIs(err, fault.ErrInsufficientFunds)
	ok, err := h.eng.IsExpert(h.ctx, addrC)
	require.NoError(err)
	require.False(ok)

	view, err := h.eng.GetExpert(h.ctx, addrA)
	require.NoError(err)
	require.True(view.Found)
	require.Equal(expert.LevelNovice, view.Level)
	require.Zero(view.AccuracyPct)

	n, err := h.eng.ExpertCount(h.ctx)
	require.NoError(err)
	require.Equal(uint64(1), n)
}

func TestEngine_ConsensusWeights(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	c, res := h.standard()
	require.Equal(claim.StatusFinalized, c.Status)
	require.Equal(uint32(3), c.ReviewCount)
	require.Equal(types.VerdictTrue, res.Consensus.Verdict)
	require.Equal(uint8(75), res.Consensus.ConfidencePct)
	require.Equal("300.000", res.Consensus.TotalTrue.String())
	require.Equal("100.000", res.Consensus.TotalFalse.String())
	require.Zero(res.Consensus.Revision)

	view, err := h.eng.GetConsensus(h.ctx, c.ID)
	require.NoError(err)
	require.True(view.Found)
	require.Len(view.History, 1)

	// Finalization is one-time.
	h.register(types.Address{4}, types.TierGeneral, 100)
	_, err = h.eng.SubmitReview(h.ctx, review.Submission{ClaimID: c.ID, Expert: types.Address{4}, Verdict: types.VerdictFalse, Confidence: 100, Stake: 100})
	require.ErrorIs(err, fault.ErrClaimNotAcceptingReviews)
}

func TestEngine_ProfessionalWeight(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	pro := types.Address{9}
	h.register(pro, types.TierProfessional, 1000)
	h.register(addrA, types.TierGeneral, 1000)
	h.register(addrB, types.TierGeneral, 1000)
	c := h.submitClaim("Stake weights differ by tier.")

	h.review(c.ID, pro, types.VerdictTrue, 1000, 100)
	h.review(c.ID, addrA, types.VerdictFalse, 1000, 100)
	res := h.review(c.ID, addrB, types.VerdictFalse, 500, 100)
	require.True(res.Finalized)
	require.Equal("2000.000", res.Consensus.TotalTrue.String())
	require.Equal("1500.000", res.Consensus.TotalFalse.String())
	require.Equal(types.VerdictTrue, res.Consensus.Verdict)
}

func TestEngine_Settlement(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	c, res := h.standard()
	run := res.Settlement
	require.NotNil(run)
	require.Equal(uint64(450), run.Pool)

	// Fee 50: 40 funds rewards at the general 70% share, 10 to insurance.
	// A: 40*70*200/(100*300) = 18, B: 40*70*100/(100*300) = 9.
	require.Equal(uint64(318), h.balance(ledger.Stake(addrA)))
	require.Equal(uint64(209), h.balance(ledger.Stake(addrB)))
	require.Equal(uint64(90), h.balance(ledger.Stake(addrC)))
	require.Equal(uint64(10+13+10), h.balance(ledger.Insurance))
	require.Zero(h.balance(ledger.ClaimPool(c.ID)))
	h.conserved()

	a, err := h.eng.GetExpert(h.ctx, addrA)
	require.NoError(err)
	require.Equal(uint64(318), a.Expert.StakedAmount)
	require.Zero(a.Expert.LockedStake)
	require.Equal(uint64(2), a.Expert.ReputationPoints)
	require.Equal(uint64(18), a.Expert.TotalEarnings)
	require.Equal(uint64(100), a.AccuracyPct)

	// C lost 10 and fell under the general minimum.
	cx, err := h.eng.GetExpert(h.ctx, addrC)
	require.NoError(err)
	require.Equal(uint64(90), cx.Expert.StakedAmount)
	require.Equal(expert.StatusSuspended, cx.Expert.Status)
	require.Equal(uint64(1), cx.Expert.TotalReviews)
	require.Zero(cx.Expert.CorrectReviews)

	reviews, err := h.eng.ListClaimReviews(h.ctx, c.ID)
	require.NoError(err)
	require.Len(reviews, 3)
	for _, r := range reviews {
		require.True(r.Rewarded)
	}

	view, err := h.eng.GetSettlement(h.ctx, c.ID)
	require.NoError(err)
	require.True(view.Found)
	require.True(view.Verified)
	require.Len(view.Runs, 1)
	require.Len(view.Entries, 8)
}

func TestEngine_SuspendedExpert(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	h.standard()

	next := h.submitClaim("A second claim.")
	_, err := h.eng.SubmitReview(h.ctx, review.Submission{ClaimID: next.ID, Expert: addrC, Verdict: types.VerdictTrue, Confidence: 50, Stake: 10})
	require.ErrorIs(err, fault.ErrExpertSuspended)

	_, err = h.eng.TopUpStake(h.ctx, addrC, 10)
	require.ErrorIs(err, fault.ErrInsufficientFunds)

	h.fund(addrC, 10)
	x, err := h.eng.TopUpStake(h.ctx, addrC, 10)
	require.NoError(err)
	require.Equal(expert.StatusActive, x.Status)
	require.Equal(uint64(100), x.StakedAmount)

	h.review(next.ID, addrC, types.VerdictTrue, 10, 50)
}

func TestEngine_TieWaitsForTieBreaker(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	h.register(addrA, types.TierGeneral, 200)
	h.register(addrB, types.TierGeneral, 100)
	h.register(addrC, types.TierGeneral, 100)
	d := types.Address{4}
	h.register(d, types.TierGeneral, 100)
	c := h.submitClaim("A balanced claim.")

	h.review(c.ID, addrA, types.VerdictTrue, 200, 100)
	h.review(c.ID, addrB, types.VerdictFalse, 100, 100)
	res := h.review(c.ID, addrC, types.VerdictFalse, 100, 100)
	require.False(res.Finalized)
	require.Equal(claim.StatusUnderReview, res.Claim.Status)

	view, err := h.eng.GetConsensus(h.ctx, c.ID)
	require.NoError(err)
	require.False(view.Found)

	res = h.review(c.ID, d, types.VerdictTrue, 100, 50)
	require.True(res.Finalized)
	require.Equal(types.VerdictTrue, res.Consensus.Verdict)
	require.Equal(uint8(56), res.Consensus.ConfidencePct)
	h.conserved()
}

func TestEngine_ZeroConfidenceWaits(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	h.register(addrA, types.TierGeneral, 100)
	h.register(addrB, types.TierGeneral, 100)
	h.register(addrC, types.TierGeneral, 100)
	c := h.submitClaim("Nobody is sure.")
	h.review(c.ID, addrA, types.VerdictTrue, 100, 0)
	h.review(c.ID, addrB, types.VerdictFalse, 100, 0)
	res := h.review(c.ID, addrC, types.VerdictTrue, 100, 0)
	require.False(res.Finalized)
	require.Equal(uint64(350), res.Claim.StakePool)
}

func TestEngine_SubmitReview_Rejections(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	h.register(addrA, types.TierGeneral, 100)
	c := h.submitClaim("Rejections change nothing.")

	sub := func(mod func(*review.Submission)) error {
		s := review.Submission{ClaimID: c.ID, Expert: addrA, Verdict: types.VerdictTrue, Confidence: 80, Stake: 50}
		mod(&s)
		_, err := h.eng.SubmitReview(h.ctx, s)
		return err
	}
	require.ErrorIs(sub(func(s *review.Submission) { s.ClaimID = 42 }), fault.ErrClaimNotFound)
	require.ErrorIs(sub(func(s *review.Submission) { s.Expert = addrB }), fault.ErrExpertNotRegistered)
	require.ErrorIs(sub(func(s *review.Submission) { s.Confidence = 101 }), fault.ErrInvalidConfidence)
	require.ErrorIs(sub(func(s *review.Submission) { s.Stake = 0 }), fault.ErrInsufficientStake)
	require.ErrorIs(sub(func(s *review.Submission) { s.Stake = 101 }), fault.ErrInsufficientStake)
	require.ErrorIs(sub(func(s *review.Submission) { s.Verdict = "maybe" }), fault.ErrInvalidVerdict)

	info, err := h.eng.Info(h.ctx)
	require.NoError(err)
	require.Zero(info.Reviews)
	view, err := h.eng.GetClaim(h.ctx, c.ID)
	require.NoError(err)
	require.Equal(claim.StatusPending, view.Claim.Status)
	require.Equal(defaultFee, view.Claim.StakePool)
	require.Equal(uint64(100), h.balance(ledger.Stake(addrA)))

	require.NoError(sub(func(*review.Submission) {}))
	require.ErrorIs(sub(func(*review.Submission) {}), fault.ErrDuplicateReview)

	view, err = h.eng.GetClaim(h.ctx, c.ID)
	require.NoError(err)
	require.Equal(claim.StatusUnderReview, view.Claim.Status)
	require.Equal(uint32(1), view.Claim.ReviewCount)
	require.Equal(defaultFee+50, view.Claim.StakePool)
	require.Equal(defaultFee+50, h.balance(ledger.ClaimPool(c.ID)))

	got, err := h.eng.GetReview(h.ctx, 1)
	require.NoError(err)
	require.True(got.Found)
	require.Equal(types.TierGeneral, got.Review.Tier)
	none, err := h.eng.GetReview(h.ctx, 2)
	require.NoError(err)
	require.False(none.Found)
}

func TestEngine_UnregisterExpert(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	h.register(addrA, types.TierGeneral, 300)
	h.register(addrB, types.TierGeneral, 200)
	h.register(addrC, types.TierGeneral, 100)
	c := h.submitClaim("Open claims hold the stake.")
	h.review(c.ID, addrA, types.VerdictTrue, 200, 100)

	_, err := h.eng.UnregisterExpert(h.ctx, addrA)
	require.ErrorIs(err, fault.ErrHasPendingReviews)

	h.review(c.ID, addrB, types.VerdictTrue, 100, 100)
	h.review(c.ID, addrC, types.VerdictFalse, 100, 100)

	refund, err := h.eng.UnregisterExpert(h.ctx, addrA)
	require.NoError(err)
	require.Equal(uint64(318), refund)
	require.Equal(uint64(318), h.balance(ledger.Wallet(addrA)))
	require.Zero(h.balance(ledger.Stake(addrA)))

	view, err := h.eng.GetExpert(h.ctx, addrA)
	require.NoError(err)
	require.False(view.Found)
	_, err = h.eng.UnregisterExpert(h.ctx, addrA)
	require.ErrorIs(err, fault.ErrExpertNotRegistered)

	// The review history outlives the registration.
	reviews, err := h.eng.ListExpertReviews(h.ctx, addrA)
	require.NoError(err)
	require.Len(reviews, 1)
	h.conserved()
}

func TestEngine_AppealWindow(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	c, _ := h.standard()
	h.fund(appellant, 1000)

	file := func(claimID uint64) error {
		_, err := h.eng.FileAppeal(h.ctx, appeal.Filing{ClaimID: claimID, Appellant: appellant, Evidence: "new archive scan", Bond: 100})
		return err
	}

	h.clock.Set(t0.Add(31 * day))
	require.ErrorIs(file(c.ID), fault.ErrAppealWindowClosed)
	require.Equal(uint64(1000), h.balance(ledger.Wallet(appellant)))

	h.clock.Set(t0.Add(29 * day))
	require.ErrorIs(file(77), fault.ErrClaimNotFound)
	require.NoError(file(c.ID))
	require.ErrorIs(file(c.ID), fault.ErrAppealAlreadyOpen)

	view, err := h.eng.GetAppeal(h.ctx, c.ID)
	require.NoError(err)
	require.True(view.Found)
	require.Equal(appeal.OutcomePending, view.Appeal.Outcome)
	require.Equal(t0.Add(36*day), view.Appeal.Deadline)

	cv, err := h.eng.GetClaim(h.ctx, c.ID)
	require.NoError(err)
	require.Equal(claim.StatusAppealed, cv.Claim.Status)
	require.Equal(uint64(900), h.balance(ledger.Wallet(appellant)))
	require.Equal(uint64(133), h.balance(ledger.Insurance))
}

func TestEngine_FileAppeal_Rejections(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	open := h.submitClaim("Not finalized yet.")
	h.fund(appellant, 50)

	_, err := h.eng.FileAppeal(h.ctx, appeal.Filing{ClaimID: open.ID, Appellant: appellant, Evidence: "x", Bond: 100})
	require.ErrorIs(err, fault.ErrInvalidStateTransition)
	_, err = h.eng.FileAppeal(h.ctx, appeal.Filing{ClaimID: open.ID, Appellant: appellant, Evidence: "x", Bond: 99})
	require.ErrorIs(err, fault.ErrInsufficientStake)

	c, _ := h.standard()
	_, err = h.eng.FileAppeal(h.ctx, appeal.Filing{ClaimID: c.ID, Appellant: appellant, Evidence: "x", Bond: 100})
	require.ErrorIs(err, fault.ErrInsufficientFunds)

	view, err := h.eng.GetAppeal(h.ctx, c.ID)
	require.NoError(err)
	require.False(view.Found)
}

func TestEngine_ResolveAppeal_Upheld(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	c, _ := h.standard()
	h.fund(appellant, 1000)
	_, err := h.eng.FileAppeal(h.ctx, appeal.Filing{ClaimID: c.ID, Appellant: appellant, Evidence: "weak", Bond: 100})
	require.NoError(err)

	_, err = h.eng.ResolveAppeal(h.ctx, c.ID, appeal.OutcomePending)
	require.ErrorIs(err, fault.ErrInvalidOutcome)

	res, err := h.eng.ResolveAppeal(h.ctx, c.ID, appeal.OutcomeUpheld)
	require.NoError(err)
	require.Equal(appeal.OutcomeUpheld, res.Appeal.Outcome)
	require.Equal(claim.StatusResolved, res.Claim.Status)
	require.Nil(res.Settlement)
	require.Equal(uint64(133), h.balance(ledger.Insurance))
	require.Equal(uint64(318), h.balance(ledger.Stake(addrA)))

	view, err := h.eng.GetConsensus(h.ctx, c.ID)
	require.NoError(err)
	require.Equal(types.VerdictTrue, view.Result.Verdict)
	require.Zero(view.Result.Revision)

	_, err = h.eng.ResolveAppeal(h.ctx, c.ID, appeal.OutcomeOverturned)
	require.ErrorIs(err, fault.ErrNoOpenAppeal)
	h.conserved()
}

func TestEngine_ResolveAppeal_Overturned(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	c, _ := h.standard()
	h.fund(appellant, 1000)
	_, err := h.eng.FileAppeal(h.ctx, appeal.Filing{ClaimID: c.ID, Appellant: appellant, Evidence: "the 1932 date is a typo", Bond: 100})
	require.NoError(err)

	h.clock.Set(t0.Add(3 * day))
	res, err := h.eng.ResolveAppeal(h.ctx, c.ID, appeal.OutcomeOverturned)
	require.NoError(err)
	require.Equal(claim.StatusResolved, res.Claim.Status)
	require.Equal(types.VerdictFalse, res.Consensus.Verdict)
	require.Equal(uint32(1), res.Consensus.Revision)
	require.Equal(uint8(25), res.Consensus.ConfidencePct)
	require.Zero(res.Settlement.Shortfall)
	require.Zero(res.Settlement.Deferred)

	// The previous payouts are clawed back in full and the pool is
	// settled again: A and B lose 10%, C wins 100 + 40*70/100.
	require.Equal(uint64(280), h.balance(ledger.Stake(addrA)))
	require.Equal(uint64(190), h.balance(ledger.Stake(addrB)))
	require.Equal(uint64(128), h.balance(ledger.Stake(addrC)))

	// Appellant gets 1.5x the bond.
	require.Equal(uint64(150), res.Appeal.Payout)
	require.Zero(res.Appeal.Deferred)
	require.Equal(uint64(1050), h.balance(ledger.Wallet(appellant)))
	require.Equal(uint64(2), h.balance(ledger.Insurance))
	require.Zero(h.balance(ledger.ClaimPool(c.ID)))
	h.conserved()

	a, err := h.eng.GetExpert(h.ctx, addrA)
	require.NoError(err)
	require.Equal(uint64(280), a.Expert.StakedAmount)
	require.Zero(a.Expert.ReputationPoints)
	require.Zero(a.Expert.TotalEarnings)
	require.Zero(a.Expert.CorrectReviews)
	require.Equal(uint64(1), a.Expert.TotalReviews)

	cx, err := h.eng.GetExpert(h.ctx, addrC)
	require.NoError(err)
	require.Equal(uint64(128), cx.Expert.StakedAmount)
	require.Equal(expert.StatusActive, cx.Expert.Status)
	require.Equal(uint64(28), cx.Expert.TotalEarnings)
	require.Equal(uint64(1), cx.Expert.CorrectReviews)

	cons, err := h.eng.GetConsensus(h.ctx, c.ID)
	require.NoError(err)
	require.Len(cons.History, 2)
	require.True(cons.Result.Overturned)

	st, err := h.eng.GetSettlement(h.ctx, c.ID)
	require.NoError(err)
	require.True(st.Verified)
	require.Len(st.Runs, 2)
}

func TestEngine_ResolveAppeal_PayoutCapped(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	c, _ := h.standard()
	h.fund(appellant, 1000)
	_, err := h.eng.FileAppeal(h.ctx, appeal.Filing{ClaimID: c.ID, Appellant: appellant, Evidence: "new record", Bond: 200})
	require.NoError(err)

	res, err := h.eng.ResolveAppeal(h.ctx, c.ID, appeal.OutcomeOverturned)
	require.NoError(err)
	// 300 owed; insurance holds 33 + 200 bond - 33 clawed + 52 re-settled.
	require.Equal(uint64(252), res.Appeal.Payout)
	require.Equal(uint64(48), res.Appeal.Deferred)
	require.Zero(h.balance(ledger.Insurance))
	require.Equal(uint64(1052), h.balance(ledger.Wallet(appellant)))

	ins, err := h.eng.GetInsurance(h.ctx)
	require.NoError(err)
	require.Equal(uint64(48), ins.TotalDeferred)
	require.Len(ins.Liabilities, 1)
	require.Equal(appellant, ins.Liabilities[0].Beneficiary)
	h.conserved()

	// The next bond paid into the pool goes to the appellant first.
	h.register(types.Address{4}, types.TierGeneral, 300)
	h.register(types.Address{5}, types.TierGeneral, 300)
	h.register(types.Address{6}, types.TierGeneral, 300)
	next := h.submitClaim("Another claim.")
	h.review(next.ID, types.Address{4}, types.VerdictTrue, 100, 100)
	h.review(next.ID, types.Address{5}, types.VerdictTrue, 100, 100)
	h.review(next.ID, types.Address{6}, types.VerdictTrue, 100, 100)
	// All-winner settlement pays 10 fee share and 13 remainder to
	// insurance, which goes straight to the appellant.
	ins, err = h.eng.GetInsurance(h.ctx)
	require.NoError(err)
	require.Equal(uint64(25), ins.TotalDeferred)
	require.Equal(uint64(23), ins.TotalPaid)
	require.Zero(h.balance(ledger.Insurance))
	require.Equal(uint64(1075), h.balance(ledger.Wallet(appellant)))
	h.conserved()

	// The next bond clears the rest.
	other := types.Address{0xcc}
	h.fund(other, 100)
	_, err = h.eng.FileAppeal(h.ctx, appeal.Filing{ClaimID: next.ID, Appellant: other, Evidence: "doubt", Bond: 100})
	require.NoError(err)

	ins, err = h.eng.GetInsurance(h.ctx)
	require.NoError(err)
	require.Zero(ins.TotalDeferred)
	require.Empty(ins.Liabilities)
	require.Equal(uint64(48), ins.TotalPaid)
	require.Equal(uint64(1100), h.balance(ledger.Wallet(appellant)))
	h.conserved()
}

func TestEngine_ArbitrationWindow(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	c, _ := h.standard()
	h.fund(appellant, 100)
	_, err := h.eng.FileAppeal(h.ctx, appeal.Filing{ClaimID: c.ID, Appellant: appellant, Evidence: "late", Bond: 100})
	require.NoError(err)

	h.clock.Set(t0.Add(7*day + time.Second))
	_, err = h.eng.ResolveAppeal(h.ctx, c.ID, appeal.OutcomeOverturned)
	require.ErrorIs(err, fault.ErrArbitrationWindowClosed)

	view, err := h.eng.GetClaim(h.ctx, c.ID)
	require.NoError(err)
	require.Equal(claim.StatusAppealed, view.Claim.Status)
	require.Equal(uint64(318), h.balance(ledger.Stake(addrA)))
}

func TestEngine_LapsedAppeal(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	c, _ := h.standard()
	h.fund(appellant, 100)
	_, err := h.eng.FileAppeal(h.ctx, appeal.Filing{ClaimID: c.ID, Appellant: appellant, Evidence: "nobody arbitrates", Bond: 100})
	require.NoError(err)

	// While arbitration is possible the reviewers stay bound to the claim.
	_, err = h.eng.UnregisterExpert(h.ctx, addrA)
	require.ErrorIs(err, fault.ErrHasPendingReviews)

	// Past the deadline the verdict can no longer change.
	h.clock.Set(t0.Add(365 * day))
	refund, err := h.eng.UnregisterExpert(h.ctx, addrA)
	require.NoError(err)
	require.Equal(uint64(318), refund)
	require.Equal(uint64(318), h.balance(ledger.Wallet(addrA)))

	_, err = h.eng.ResolveAppeal(h.ctx, c.ID, appeal.OutcomeOverturned)
	require.ErrorIs(err, fault.ErrArbitrationWindowClosed)

	res, err := h.eng.ResolveAppeal(h.ctx, c.ID, appeal.OutcomeUpheld)
	require.NoError(err)
	require.Equal(claim.StatusResolved, res.Claim.Status)
	require.Equal(appeal.OutcomeUpheld, res.Appeal.Outcome)
	require.True(res.Appeal.Lapsed)
	require.Nil(res.Settlement)
	require.Zero(res.Appeal.Payout)

	// The bond stays with insurance and nothing was re-settled.
	require.Equal(uint64(133), h.balance(ledger.Insurance))
	st, err := h.eng.GetSettlement(h.ctx, c.ID)
	require.NoError(err)
	require.Len(st.Runs, 1)

	_, err = h.eng.UnregisterExpert(h.ctx, addrB)
	require.NoError(err)
	h.conserved()
}

func TestEngine_Events(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	sub := h.eng.Subscribe(64)
	defer sub.Close()

	h.standard()

	var kinds []EventKind
	for len(sub.Events) > 0 {
		ev := <-sub.Events
		require.Equal(t0, ev.At)
		kinds = append(kinds, ev.Kind)
	}
	require.Equal([]EventKind{
		EventExpertRegistered, EventExpertRegistered, EventExpertRegistered,
		EventClaimSubmitted,
		EventReviewSubmitted, EventReviewSubmitted, EventReviewSubmitted,
		EventClaimFinalized, EventSettled,
	}, kinds)

	// Rejected operations publish nothing.
	_, err := h.eng.SubmitClaim(h.ctx, claim.Submission{Submitter: submitter, Text: ""})
	require.Error(err)
	require.Empty(sub.Events)

	sub.Close()
	_, ok := <-sub.Events
	require.False(ok)
}

func TestEngine_Genesis(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	g := config.DefaultGenesis(config.Testnet)
	g.Alloc[addrA.String()] = 500
	g.Insurance = 20
	require.NoError(h.eng.EnsureGenesis(h.ctx, g, h.book.Mint))
	require.NoError(h.eng.EnsureGenesis(h.ctx, g, h.book.Mint))
	require.Equal(uint64(500), h.balance(ledger.Wallet(addrA)))
	require.Equal(uint64(20), h.balance(ledger.Insurance))

	other := config.DefaultGenesis(config.Testnet)
	other.Alloc[addrA.String()] = 501
	require.ErrorIs(h.eng.EnsureGenesis(h.ctx, other, h.book.Mint), ErrGenesisMismatch)

	rules := config.DefaultGenesis(config.Testnet)
	rules.Rules.Quorum = 5
	require.ErrorIs(h.eng.EnsureGenesis(h.ctx, rules, h.book.Mint), ErrGenesisMismatch)

	info, err := h.eng.Info(h.ctx)
	require.NoError(err)
	require.NotEmpty(info.GenesisHash)
	require.Equal(uint64(20), info.Insurance)
}

func TestEngine_ListClaims(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		h.submitClaim("claim")
	}

	page, err := h.eng.ListClaims(h.ctx, 2, 2)
	require.NoError(err)
	require.Len(page, 2)
	require.Equal(uint64(2), page[0].ID)
	require.Equal(uint64(3), page[1].ID)

	all, err := h.eng.ListClaims(h.ctx, 0, 0)
	require.NoError(err)
	require.Len(all, 5)
}

func TestEngine_CanceledContext(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	h.fund(submitter, defaultFee)

	ctx, cancel := context.WithCancel(h.ctx)
	cancel()
	_, err := h.eng.SubmitClaim(ctx, claim.Submission{Submitter: submitter, Text: "never"})
	require.ErrorIs(err, context.Canceled)
	require.Equal(defaultFee, h.balance(ledger.Wallet(submitter)))
}

// failingLedger fails the next Apply when armed.
type failingLedger struct {
	ledger.Ledger
	armed atomic.Bool
}

func (l *failingLedger) Apply(ctx context.Context, ts []ledger.Transfer) error {
	if l.armed.CompareAndSwap(true, false) {
		return errors.New("ledger unavailable")
	}
	return l.Ledger.Apply(ctx, ts)
}

func TestEngine_FailedCommitKeepsIDs(t *testing.T) {
	require := require.New(t)
	db := storage.NewMemory()
	book := ledger.NewBook(storage.NewPrefixDB(db, []byte("l/")))
	l := &failingLedger{Ledger: book}
	eng, err := New(storage.NewPrefixDB(db, []byte("e/")), l, config.DefaultRules())
	require.NoError(err)
	ctx := context.Background()
	require.NoError(book.Mint(ctx, ledger.Wallet(submitter), 2*defaultFee))

	l.armed.Store(true)
	_, err = eng.SubmitClaim(ctx, claim.Submission{Submitter: submitter, Text: "Lost to a ledger outage."})
	require.Error(err)
	require.False(fault.IsRejection(err))

	count, err := eng.GetClaimCount(ctx)
	require.NoError(err)
	require.Zero(count)

	c, err := eng.SubmitClaim(ctx, claim.Submission{Submitter: submitter, Text: "Submitted after recovery."})
	require.NoError(err)
	require.Equal(uint64(1), c.ID)

	count, err = eng.GetClaimCount(ctx)
	require.NoError(err)
	require.Equal(uint64(1), count)
	view, err := eng.GetClaim(ctx, count)
	require.NoError(err)
	require.True(view.Found)
	require.Equal(defaultFee, view.Claim.Fee)

	info, err := eng.Info(ctx)
	require.NoError(err)
	require.Equal(uint64(1), info.Claims)
}
