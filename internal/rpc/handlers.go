package rpc

import (
	"context"
	"errors"

	"github.com/Klingon-tech/truthstamp/internal/appeal"
	"github.com/Klingon-tech/truthstamp/internal/fault"
	"github.com/Klingon-tech/truthstamp/internal/ledger"
)

// toRPCError maps an engine error to a JSON-RPC error. Rejections carry
// their stable name in Data.
func (s *Server) toRPCError(method string, err error) *Error {
	var code int
	switch fault.KindOf(err) {
	case fault.KindValidation:
		code = CodeRejected
	case fault.KindState:
		code = CodeConflict
	case fault.KindNotFound:
		code = CodeNotFound
	default:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return &Error{Code: CodeInternalError, Message: "request canceled"}
		}
		s.logger.Error().Err(err).Str("method", method).Msg("Internal error")
		return &Error{Code: CodeInternalError, Message: "internal error"}
	}
	return &Error{
		Code:    code,
		Message: err.Error(),
		Data:    RejectionData{Reason: fault.CodeOf(err), Kind: fault.KindOf(err).String()},
	}
}

// ── Claim endpoints ─────────────────────────────────────────────────────

func (s *Server) handleClaimSubmit(ctx context.Context, req *Request) (interface{}, *Error) {
	var params ClaimSubmitParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	c, err := s.engine.SubmitClaim(ctx, params.submission())
	if err != nil {
		return nil, s.toRPCError(req.Method, err)
	}
	return c, nil
}

func (s *Server) handleClaimGet(ctx context.Context, req *Request) (interface{}, *Error) {
	var params ClaimIDParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	view, err := s.engine.GetClaim(ctx, params.ClaimID)
	if err != nil {
		return nil, s.toRPCError(req.Method, err)
	}
	return view, nil
}

func (s *Server) handleClaimCount(ctx context.Context, req *Request) (interface{}, *Error) {
	n, err := s.engine.GetClaimCount(ctx)
	if err != nil {
		return nil, s.toRPCError(req.Method, err)
	}
	return CountResult{Count: n}, nil
}

func (s *Server) handleClaimList(ctx context.Context, req *Request) (interface{}, *Error) {
	var params ClaimListParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Limit < 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "limit must not be negative"}
	}
	claims, err := s.engine.ListClaims(ctx, params.Start, params.Limit)
	if err != nil {
		return nil, s.toRPCError(req.Method, err)
	}
	return listOf(claims), nil
}

func (s *Server) handleClaimReviews(ctx context.Context, req *Request) (interface{}, *Error) {
	var params ClaimIDParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	reviews, err := s.engine.ListClaimReviews(ctx, params.ClaimID)
	if err != nil {
		return nil, s.toRPCError(req.Method, err)
	}
	return listOf(reviews), nil
}

// ── Expert endpoints ────────────────────────────────────────────────────

func (s *Server) handleExpertRegister(ctx context.Context, req *Request) (interface{}, *Error) {
	var params ExpertRegisterParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	x, err := s.engine.RegisterExpert(ctx, params.registration())
	if err != nil {
		return nil, s.toRPCError(req.Method, err)
	}
	return x, nil
}

func (s *Server) handleExpertUnregister(ctx context.Context, req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	refund, err := s.engine.UnregisterExpert(ctx, params.Address)
	if err != nil {
		return nil, s.toRPCError(req.Method, err)
	}
	return UnregisterResult{Refund: refund}, nil
}

func (s *Server) handleExpertTopUp(ctx context.Context, req *Request) (interface{}, *Error) {
	var params TopUpParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	x, err := s.engine.TopUpStake(ctx, params.Address, params.Amount)
	if err != nil {
		return nil, s.toRPCError(req.Method, err)
	}
	return x, nil
}

func (s *Server) handleExpertGet(ctx context.Context, req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	view, err := s.engine.GetExpert(ctx, params.Address)
	if err != nil {
		return nil, s.toRPCError(req.Method, err)
	}
	return view, nil
}

func (s *Server) handleExpertIs(ctx context.Context, req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	ok, err := s.engine.IsExpert(ctx, params.Address)
	if err != nil {
		return nil, s.toRPCError(req.Method, err)
	}
	return IsExpertResult{IsExpert: ok}, nil
}

func (s *Server) handleExpertReviews(ctx context.Context, req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	reviews, err := s.engine.ListExpertReviews(ctx, params.Address)
	if err != nil {
		return nil, s.toRPCError(req.Method, err)
	}
	return listOf(reviews), nil
}

// ── Review endpoints ────────────────────────────────────────────────────

func (s *Server) handleReviewSubmit(ctx context.Context, req *Request) (interface{}, *Error) {
	var params ReviewSubmitParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	res, err := s.engine.SubmitReview(ctx, params.submission())
	if err != nil {
		return nil, s.toRPCError(req.Method, err)
	}
	return res, nil
}

func (s *Server) handleReviewGet(ctx context.Context, req *Request) (interface{}, *Error) {
	var params ReviewIDParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	view, err := s.engine.GetReview(ctx, params.ReviewID)
	if err != nil {
		return nil, s.toRPCError(req.Method, err)
	}
	return view, nil
}

func (s *Server) handleConsensusGet(ctx context.Context, req *Request) (interface{}, *Error) {
	var params ClaimIDParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	view, err := s.engine.GetConsensus(ctx, params.ClaimID)
	if err != nil {
		return nil, s.toRPCError(req.Method, err)
	}
	return view, nil
}

// ── Appeal endpoints ────────────────────────────────────────────────────

func (s *Server) handleAppealFile(ctx context.Context, req *Request) (interface{}, *Error) {
	var params AppealFileParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	a, err := s.engine.FileAppeal(ctx, params.filing())
	if err != nil {
		return nil, s.toRPCError(req.Method, err)
	}
	return a, nil
}

func (s *Server) handleAppealResolve(ctx context.Context, req *Request) (interface{}, *Error) {
	var params AppealResolveParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	outcome, err := appeal.ParseOutcome(params.Outcome)
	if err != nil {
		return nil, s.toRPCError(req.Method, err)
	}
	res, err := s.engine.ResolveAppeal(ctx, params.ClaimID, outcome)
	if err != nil {
		return nil, s.toRPCError(req.Method, err)
	}
	return res, nil
}

func (s *Server) handleAppealGet(ctx context.Context, req *Request) (interface{}, *Error) {
	var params ClaimIDParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	view, err := s.engine.GetAppeal(ctx, params.ClaimID)
	if err != nil {
		return nil, s.toRPCError(req.Method, err)
	}
	return view, nil
}

// ── Insurance and ledger endpoints ──────────────────────────────────────

func (s *Server) handleInsuranceGet(ctx context.Context, req *Request) (interface{}, *Error) {
	view, err := s.engine.GetInsurance(ctx)
	if err != nil {
		return nil, s.toRPCError(req.Method, err)
	}
	return view, nil
}

func (s *Server) handleSettlementGet(ctx context.Context, req *Request) (interface{}, *Error) {
	var params ClaimIDParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	view, err := s.engine.GetSettlement(ctx, params.ClaimID)
	if err != nil {
		return nil, s.toRPCError(req.Method, err)
	}
	return view, nil
}

func (s *Server) handleLedgerBalance(ctx context.Context, req *Request) (interface{}, *Error) {
	var params BalanceParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	var acct ledger.Account
	switch {
	case params.Account != "" && !params.Address.IsZero():
		return nil, &Error{Code: CodeInvalidParams, Message: "set either address or account, not both"}
	case params.Account != "":
		acct = ledger.Account(params.Account)
	case params.Address.IsZero():
		return nil, &Error{Code: CodeInvalidParams, Message: "address or account is required"}
	case params.Stake:
		acct = ledger.Stake(params.Address)
	default:
		acct = ledger.Wallet(params.Address)
	}
	bal, err := s.engine.Balance(ctx, acct)
	if err != nil {
		return nil, s.toRPCError(req.Method, err)
	}
	return BalanceResult{Account: string(acct), Balance: bal}, nil
}

func (s *Server) handleEngineGetInfo(ctx context.Context, req *Request) (interface{}, *Error) {
	info, err := s.engine.Info(ctx)
	if err != nil {
		return nil, s.toRPCError(req.Method, err)
	}
	return info, nil
}
