package engine

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/truthstamp/internal/claim"
	"github.com/Klingon-tech/truthstamp/internal/fault"
	"github.com/Klingon-tech/truthstamp/internal/ledger"
	"github.com/Klingon-tech/truthstamp/internal/log"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

// MaxPageSize caps ListClaims.
const MaxPageSize = 100

// SubmitClaim registers a claim and escrows its fee in the claim pool. A
// zero fee means the configured claim fee.
func (e *Engine) SubmitClaim(ctx context.Context, sub claim.Submission) (*claim.Claim, error) {
	if sub.Fee == 0 {
		sub.Fee = e.rules.ClaimFee
	}
	var out *claim.Claim
	err := e.run(ctx, "claim_submit", func(tx *opTx) error {
		tx.lock(accountLocks([]types.Address{sub.Submitter}, false)...)

		now := e.clock()
		c, err := claim.New(0, sub, e.rules.MaxTextLength, e.rules.ClaimFee, now)
		if err != nil {
			return err
		}
		wallet := ledger.Wallet(sub.Submitter)
		have, err := tx.stage.Available(wallet)
		if err != nil {
			return err
		}
		if have < c.Fee {
			return fmt.Errorf("%w: fee %d, wallet holds %d", fault.ErrInsufficientFunds, c.Fee, have)
		}

		tx.lock(e.claimSeq.Name())
		if c.ID, err = e.claimSeq.Next(tx.txn); err != nil {
			return err
		}
		if err := tx.transfer(ledger.Transfer{
			From:   wallet,
			To:     ledger.ClaimPool(c.ID),
			Amount: c.Fee,
			Memo:   fmt.Sprintf("claim %d fee", c.ID),
		}); err != nil {
			return err
		}
		if err := tx.claims.Put(c); err != nil {
			return err
		}

		log.WithClaim(log.Claim, c.ID).Info().
			Str("submitter", c.Submitter.String()).
			Str("category", c.Category).
			Uint64("fee", c.Fee).
			Msg("Claim submitted")
		tx.emit(Event{Kind: EventClaimSubmitted, ClaimID: c.ID, Address: c.Submitter, Amount: c.Fee})
		out = c
		return nil
	})
	return out, err
}

// ClaimView is the result of a claim lookup.
type ClaimView struct {
	Found bool         `json:"found"`
	Claim *claim.Claim `json:"claim,omitempty"`
}

// GetClaim looks up a claim.
func (e *Engine) GetClaim(ctx context.Context, id uint64) (ClaimView, error) {
	if err := ctx.Err(); err != nil {
		return ClaimView{}, err
	}
	c, err := claim.NewStore(e.db).Get(id)
	switch {
	case notFound(err):
		return ClaimView{}, nil
	case err != nil:
		return ClaimView{}, err
	}
	return ClaimView{Found: true, Claim: c}, nil
}

// GetClaimCount returns the number of committed claims, which is also the
// highest claim id.
func (e *Engine) GetClaimCount(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return e.claimSeq.Last(e.db)
}

// ListClaims returns up to limit claims with id >= start, in id order.
// limit is capped at MaxPageSize.
func (e *Engine) ListClaims(ctx context.Context, start uint64, limit int) ([]*claim.Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	return claim.NewStore(e.db).List(start, limit)
}
