// Package fault defines the engine's rejection errors. Every rejection
// belongs to a Kind that tells the caller how to recover: fix the input,
// re-read current state, or stop asking for something that does not exist.
package fault

import "errors"

// Kind classifies a rejection.
type Kind int

const (
	// KindInternal covers errors that are not rejections (storage, ledger).
	KindInternal Kind = iota
	// KindValidation means the input was bad; retry with corrected input.
	KindValidation
	// KindState means the request conflicts with current state.
	KindState
	// KindNotFound means a referenced claim, expert or review does not exist.
	KindNotFound
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a classified sentinel. Wrap it with fmt.Errorf("%w: ...") to
// add context; errors.Is and KindOf still see through the wrapping.
type Error struct {
	code string
	kind Kind
}

func newError(kind Kind, code string) *Error {
	return &Error{code: code, kind: kind}
}

func (e *Error) Error() string { return e.code }

// Code returns the stable rejection name, e.g. "DuplicateReview".
func (e *Error) Code() string { return e.code }

// Kind returns the rejection class.
func (e *Error) Kind() Kind { return e.kind }

// Validation errors.
var (
	ErrInvalidText       = newError(KindValidation, "InvalidText")
	ErrInsufficientStake = newError(KindValidation, "InsufficientStake")
	ErrInsufficientFee   = newError(KindValidation, "InsufficientFee")
	ErrDuplicateReview   = newError(KindValidation, "DuplicateReview")
	ErrInvalidConfidence = newError(KindValidation, "InvalidConfidence")
	ErrInvalidTier       = newError(KindValidation, "InvalidTier")
	ErrInvalidVerdict    = newError(KindValidation, "InvalidVerdict")
	ErrInvalidAddress    = newError(KindValidation, "InvalidAddress")
	ErrInvalidOutcome    = newError(KindValidation, "InvalidOutcome")
	ErrInvalidAmount     = newError(KindValidation, "InvalidAmount")
	ErrInsufficientFunds = newError(KindValidation, "InsufficientFunds")
)

// State errors.
var (
	ErrInvalidStateTransition   = newError(KindState, "InvalidStateTransition")
	ErrClaimNotAcceptingReviews = newError(KindState, "ClaimNotAcceptingReviews")
	ErrAppealWindowClosed       = newError(KindState, "AppealWindowClosed")
	ErrAppealAlreadyOpen        = newError(KindState, "AppealAlreadyOpen")
	ErrNoOpenAppeal             = newError(KindState, "NoOpenAppeal")
	ErrArbitrationWindowClosed  = newError(KindState, "ArbitrationWindowClosed")
	ErrHasPendingReviews        = newError(KindState, "HasPendingReviews")
	ErrAlreadyRegistered        = newError(KindState, "AlreadyRegistered")
	ErrExpertSuspended          = newError(KindState, "ExpertSuspended")
)

// Not-found errors.
var (
	ErrClaimNotFound       = newError(KindNotFound, "ClaimNotFound")
	ErrExpertNotRegistered = newError(KindNotFound, "ExpertNotRegistered")
	ErrReviewNotFound      = newError(KindNotFound, "ReviewNotFound")
)

// KindOf returns the rejection class of err, or KindInternal when err is
// not a rejection.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind
	}
	return KindInternal
}

// CodeOf returns the rejection name of err, or "" when err is not a
// rejection.
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.code
	}
	return ""
}

// IsRejection reports whether err is a classified rejection.
func IsRejection(err error) bool {
	return KindOf(err) != KindInternal
}
