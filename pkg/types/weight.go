package types

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
)

// WeightScale is the number of weight units per base unit of stake.
// A weight of 1000 represents one base unit staked at multiplier 1.0 with
// full confidence.
const WeightScale = 1000

// Weight is an exact effective vote weight expressed in thousandths.
// The zero value is a zero weight.
type Weight struct {
	v uint256.Int
}

// NewWeight copies u into a Weight.
func NewWeight(u *uint256.Int) Weight {
	var w Weight
	w.v.Set(u)
	return w
}

// WeightFromUint64 builds a weight from a raw milli-unit count.
func WeightFromUint64(milli uint64) Weight {
	var w Weight
	w.v.SetUint64(milli)
	return w
}

// Int returns a copy of the underlying integer.
func (w Weight) Int() *uint256.Int {
	return new(uint256.Int).Set(&w.v)
}

// IsZero reports whether the weight is zero.
func (w Weight) IsZero() bool {
	return w.v.IsZero()
}

// Cmp compares two weights.
func (w Weight) Cmp(o Weight) int {
	return w.v.Cmp(&o.v)
}

// Add returns w + o.
func (w Weight) Add(o Weight) Weight {
	var r Weight
	r.v.Add(&w.v, &o.v)
	return r
}

// String formats the weight in whole units with three decimals.
func (w Weight) String() string {
	scale := uint256.NewInt(WeightScale)
	var whole, frac uint256.Int
	whole.Div(&w.v, scale)
	frac.Mod(&w.v, scale)
	return fmt.Sprintf("%s.%03d", whole.Dec(), frac.Uint64())
}

// MarshalJSON encodes the raw milli-unit count as a decimal string.
func (w Weight) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.v.Dec())
}

// UnmarshalJSON decodes a decimal string produced by MarshalJSON.
func (w *Weight) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*w = Weight{}
		return nil
	}
	u, err := uint256.FromDecimal(s)
	if err != nil {
		return fmt.Errorf("invalid weight %q: %w", s, err)
	}
	w.v.Set(u)
	return nil
}
