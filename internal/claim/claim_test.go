package claim

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Klingon-tech/truthstamp/internal/fault"
	"github.com/Klingon-tech/truthstamp/internal/storage"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testSubmission() Submission {
	return Submission{
		Submitter: types.Address{0xaa},
		Text:      "The Eiffel Tower was completed in 1889.",
		Category:  " History ",
		Sources:   []string{"https://example.org/eiffel", "  ", "https://example.org/expo"},
		Fee:       50,
	}
}

func TestNew(t *testing.T) {
	c, err := New(7, testSubmission(), 1000, 50, testNow)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if c.ID != 7 || c.Status != StatusPending {
		t.Errorf("claim = %+v", c)
	}
	if c.StakePool != 50 || c.Fee != 50 {
		t.Errorf("pool = %d, fee = %d, want 50/50", c.StakePool, c.Fee)
	}
	if c.Category != "history" {
		t.Errorf("category = %q, want history", c.Category)
	}
	if len(c.Sources) != 2 || c.Sources[1] != "https://example.org/expo" {
		t.Errorf("sources = %v", c.Sources)
	}
}

func TestNew_Rejections(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Submission)
		want error
	}{
		{"empty text", func(s *Submission) { s.Text = "" }, fault.ErrInvalidText},
		{"blank text", func(s *Submission) { s.Text = " \n\t" }, fault.ErrInvalidText},
		{"too long", func(s *Submission) { s.Text = strings.Repeat("a", 1001) }, fault.ErrInvalidText},
		{"low fee", func(s *Submission) { s.Fee = 49 }, fault.ErrInsufficientFee},
		{"zero submitter", func(s *Submission) { s.Submitter = types.Address{} }, fault.ErrInvalidAddress},
		{"too many sources", func(s *Submission) { s.Sources = make([]string, MaxSources+1) }, fault.ErrInvalidText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := testSubmission()
			tt.mod(&sub)
			if _, err := New(1, sub, 1000, 50, testNow); !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateText_CountsCharacters(t *testing.T) {
	// 1000 three-byte runes is 3000 bytes but only 1000 characters.
	text := strings.Repeat("語", 1000)
	if err := ValidateText(text, 1000); err != nil {
		t.Errorf("ValidateText(1000 runes) error: %v", err)
	}
	if err := ValidateText(text+"語", 1000); !errors.Is(err, fault.ErrInvalidText) {
		t.Errorf("ValidateText(1001 runes) error = %v, want ErrInvalidText", err)
	}
}

func TestTransition(t *testing.T) {
	all := []Status{StatusPending, StatusUnderReview, StatusFinalized, StatusAppealed, StatusResolved}
	for _, from := range all {
		for _, to := range all {
			c := &Claim{ID: 1, Status: from}
			err := c.Transition(to, testNow)
			legal := next[from] == to
			if legal && err != nil {
				t.Errorf("%s -> %s: unexpected error %v", from, to, err)
			}
			if !legal && !errors.Is(err, fault.ErrInvalidStateTransition) {
				t.Errorf("%s -> %s: error = %v, want ErrInvalidStateTransition", from, to, err)
			}
			if !legal && c.Status != from {
				t.Errorf("%s -> %s: status changed to %s on failure", from, to, c.Status)
			}
		}
	}
}

func TestTransition_Timestamps(t *testing.T) {
	c := &Claim{Status: StatusUnderReview}
	if err := c.Transition(StatusFinalized, testNow); err != nil {
		t.Fatal(err)
	}
	if !c.FinalizedAt.Equal(testNow) {
		t.Errorf("FinalizedAt = %v", c.FinalizedAt)
	}
	later := testNow.Add(time.Hour)
	_ = c.Transition(StatusAppealed, later)
	if err := c.Transition(StatusResolved, later); err != nil {
		t.Fatal(err)
	}
	if !c.ResolvedAt.Equal(later) || !c.FinalizedAt.Equal(testNow) {
		t.Errorf("timestamps = %v / %v", c.FinalizedAt, c.ResolvedAt)
	}
}

func TestStakePool(t *testing.T) {
	c, _ := New(1, testSubmission(), 1000, 50, testNow)
	for _, s := range []uint64{100, 250} {
		if err := c.AddStake(s); err != nil {
			t.Fatalf("AddStake(%d) error: %v", s, err)
		}
	}
	if c.StakePool != 400 || c.ReviewCount != 2 {
		t.Fatalf("pool = %d, count = %d, want 400/2", c.StakePool, c.ReviewCount)
	}

	c.Status = StatusFinalized
	if err := c.AddStake(10); !errors.Is(err, fault.ErrClaimNotAcceptingReviews) {
		t.Errorf("AddStake on finalized error = %v", err)
	}
	c.CloseSettlement()
	if c.StakePool != 50 || c.SettledPool != 400 {
		t.Errorf("after settlement pool = %d, settled = %d", c.StakePool, c.SettledPool)
	}
	c.CloseSettlement()
	if c.SettledPool != 400 {
		t.Errorf("second close changed SettledPool to %d", c.SettledPool)
	}
}

func TestStore(t *testing.T) {
	st := NewStore(storage.NewMemory())

	if _, err := st.Get(1); !errors.Is(err, fault.ErrClaimNotFound) {
		t.Fatalf("Get(missing) error = %v", err)
	}
	for id := uint64(1); id <= 300; id++ {
		c, err := New(id, testSubmission(), 1000, 50, testNow)
		if err != nil {
			t.Fatal(err)
		}
		if err := st.Put(c); err != nil {
			t.Fatal(err)
		}
	}

	got, err := st.Get(257)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.ID != 257 || got.Text != testSubmission().Text || !got.CreatedAt.Equal(testNow) {
		t.Errorf("Get() = %+v", got)
	}

	// Big-endian keys keep numeric order past byte boundaries.
	page, err := st.List(254, 4)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(page) != 4 {
		t.Fatalf("List() len = %d, want 4", len(page))
	}
	for i, c := range page {
		if c.ID != uint64(254+i) {
			t.Errorf("page[%d].ID = %d, want %d", i, c.ID, 254+i)
		}
	}

	if page, _ := st.List(299, 10); len(page) != 2 {
		t.Errorf("List(299, 10) len = %d, want 2", len(page))
	}
	if page, _ := st.List(1, 0); len(page) != 0 {
		t.Errorf("List(limit 0) len = %d", len(page))
	}
}
