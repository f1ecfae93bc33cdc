package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		kind Kind
		code string
	}{
		{ErrInvalidText, KindValidation, "InvalidText"},
		{fmt.Errorf("%w: 1200 characters", ErrInvalidText), KindValidation, "InvalidText"},
		{fmt.Errorf("claim 7: %w", ErrAppealWindowClosed), KindState, "AppealWindowClosed"},
		{fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", ErrClaimNotFound)), KindNotFound, "ClaimNotFound"},
		{errors.New("disk full"), KindInternal, ""},
		{nil, KindInternal, ""},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.kind {
			t.Errorf("KindOf(%v) = %v, want %v", tt.err, got, tt.kind)
		}
		if got := CodeOf(tt.err); got != tt.code {
			t.Errorf("CodeOf(%v) = %q, want %q", tt.err, got, tt.code)
		}
	}
}

func TestWrappedIs(t *testing.T) {
	err := fmt.Errorf("%w: expert has 40 free", ErrInsufficientStake)
	if !errors.Is(err, ErrInsufficientStake) {
		t.Error("errors.Is should see through wrapping")
	}
	if errors.Is(err, ErrInsufficientFee) {
		t.Error("distinct sentinels must not match")
	}
	if !IsRejection(err) || IsRejection(errors.New("io")) {
		t.Error("IsRejection mismatch")
	}
}

func TestKindString(t *testing.T) {
	for k, want := range map[Kind]string{
		KindValidation: "validation",
		KindState:      "state",
		KindNotFound:   "not_found",
		KindInternal:   "internal",
	} {
		if k.String() != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, k.String(), want)
		}
	}
}
