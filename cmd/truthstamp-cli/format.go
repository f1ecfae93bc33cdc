package main

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Klingon-tech/truthstamp/config"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

// formatAmount renders base units as TST with fixed decimals.
func formatAmount(units uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -config.Decimals).StringFixed(config.Decimals)
}

// parseAmount parses a TST amount ("12.5") into base units. Amounts with
// more precision than the base unit are rejected.
func parseAmount(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("amount %q is negative", s)
	}
	units := d.Shift(config.Decimals)
	if !units.Equal(units.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than %d decimals", s, config.Decimals)
	}
	bi := units.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("amount %q is too large", s)
	}
	return bi.Uint64(), nil
}

// parseOptionalAmount returns 0 for an empty flag.
func parseOptionalAmount(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return parseAmount(s)
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func parseAddress(s string) (types.Address, error) {
	addr, err := types.ParseAddress(s)
	if err != nil {
		return types.Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return addr, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
