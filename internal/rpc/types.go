package rpc

import (
	"github.com/Klingon-tech/truthstamp/internal/appeal"
	"github.com/Klingon-tech/truthstamp/internal/claim"
	"github.com/Klingon-tech/truthstamp/internal/expert"
	"github.com/Klingon-tech/truthstamp/internal/review"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// Application-defined codes.
	CodeNotFound    = -32000
	CodeRejected    = -32001 // Bad input; retry with corrected params.
	CodeConflict    = -32002 // Conflicts with current state.
	CodeRateLimited = -32005
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RejectionData is attached to rejected calls so clients can branch on
// the stable rejection name.
type RejectionData struct {
	Reason string `json:"reason"`
	Kind   string `json:"kind"`
}

// ── Parameter types ─────────────────────────────────────────────────────

// ClaimSubmitParam is the parameter for claim_submit.
type ClaimSubmitParam struct {
	Submitter types.Address `json:"submitter"`
	Text      string        `json:"text"`
	Category  string        `json:"category"`
	Sources   []string      `json:"sources,omitempty"`
	Fee       uint64        `json:"fee,omitempty"`
}

func (p ClaimSubmitParam) submission() claim.Submission {
	return claim.Submission{
		Submitter: p.Submitter,
		Text:      p.Text,
		Category:  p.Category,
		Sources:   p.Sources,
		Fee:       p.Fee,
	}
}

// ClaimIDParam is used by every method that takes a claim ID.
type ClaimIDParam struct {
	ClaimID uint64 `json:"claim_id"`
}

// ClaimListParam is the parameter for claim_list.
type ClaimListParam struct {
	Start uint64 `json:"start"`
	Limit int    `json:"limit"`
}

// ExpertRegisterParam is the parameter for expert_register.
type ExpertRegisterParam struct {
	Address    types.Address `json:"address"`
	Name       string        `json:"name"`
	Bio        string        `json:"bio,omitempty"`
	Categories []string      `json:"categories,omitempty"`
	Tier       types.Tier    `json:"tier"`
	Stake      uint64        `json:"stake"`
}

func (p ExpertRegisterParam) registration() expert.Registration {
	return expert.Registration{
		Address:    p.Address,
		Name:       p.Name,
		Bio:        p.Bio,
		Categories: p.Categories,
		Tier:       p.Tier,
		Stake:      p.Stake,
	}
}

// AddressParam is used by every method that takes a single address.
type AddressParam struct {
	Address types.Address `json:"address"`
}

// TopUpParam is the parameter for expert_topUp.
type TopUpParam struct {
	Address types.Address `json:"address"`
	Amount  uint64        `json:"amount"`
}

// ReviewSubmitParam is the parameter for review_submit.
type ReviewSubmitParam struct {
	ClaimID    uint64        `json:"claim_id"`
	Expert     types.Address `json:"expert"`
	Verdict    types.Verdict `json:"verdict"`
	Reasoning  string        `json:"reasoning"`
	Confidence uint8         `json:"confidence"`
	Stake      uint64        `json:"stake"`
}

func (p ReviewSubmitParam) submission() review.Submission {
	return review.Submission{
		ClaimID:    p.ClaimID,
		Expert:     p.Expert,
		Verdict:    p.Verdict,
		Reasoning:  p.Reasoning,
		Confidence: p.Confidence,
		Stake:      p.Stake,
	}
}

// ReviewIDParam is the parameter for review_get.
type ReviewIDParam struct {
	ReviewID uint64 `json:"review_id"`
}

// AppealFileParam is the parameter for appeal_file.
type AppealFileParam struct {
	ClaimID   uint64        `json:"claim_id"`
	Appellant types.Address `json:"appellant"`
	Evidence  string        `json:"evidence"`
	Bond      uint64        `json:"bond"`
}

func (p AppealFileParam) filing() appeal.Filing {
	return appeal.Filing{
		ClaimID:   p.ClaimID,
		Appellant: p.Appellant,
		Evidence:  p.Evidence,
		Bond:      p.Bond,
	}
}

// AppealResolveParam is the parameter for appeal_resolve.
type AppealResolveParam struct {
	ClaimID uint64 `json:"claim_id"`
	Outcome string `json:"outcome"`
}

// BalanceParam is the parameter for ledger_balance. Exactly one of
// Address or Account is set; Address selects the wallet, or the free stake
// when Stake is true.
type BalanceParam struct {
	Address types.Address `json:"address,omitzero"`
	Stake   bool          `json:"stake,omitempty"`
	Account string        `json:"account,omitempty"`
}

// ── Result types ────────────────────────────────────────────────────────

// CountResult wraps a counter.
type CountResult struct {
	Count uint64 `json:"count"`
}

// UnregisterResult is the result of expert_unregister.
type UnregisterResult struct {
	Refund uint64 `json:"refund"`
}

// IsExpertResult is the result of expert_is.
type IsExpertResult struct {
	IsExpert bool `json:"is_expert"`
}

// BalanceResult is the result of ledger_balance.
type BalanceResult struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

// ListResult wraps a list so absent entries serialize as [] not null.
type ListResult[T any] struct {
	Items []T `json:"items"`
}

func listOf[T any](items []T) ListResult[T] {
	if items == nil {
		items = []T{}
	}
	return ListResult[T]{Items: items}
}
