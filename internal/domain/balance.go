package domain

import (
	"math"
	"strconv"
	"strings"
)

// DefaultBalanceKey is the storage key holding the decimal balance.
const DefaultBalanceKey = "fayCoinBalance"

// ClampBalance enforces the non-negative balance invariant.
func ClampBalance(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// SaturatingAdd adds two non-negative amounts, pinning at math.MaxInt64 instead of wrapping.
func SaturatingAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// SaturatingSub subtracts b from a and never goes below zero.
func SaturatingSub(a, b int64) int64 {
	if b >= a {
		return 0
	}
	return a - b
}

// ParseBalance reads a stored balance. Absent, non-numeric and negative
// values all read as zero.
func ParseBalance(raw string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return ClampBalance(v)
}

// FormatBalance renders a balance the way ParseBalance expects it.
func FormatBalance(v int64) string {
	return strconv.FormatInt(v, 10)
}

// BalanceChange describes one applied transition.
type BalanceChange struct {
	NewBalance int64 `json:"newBalance"`
	OldBalance int64 `json:"oldBalance"`
}

// Delta returns NewBalance - OldBalance.
func (c BalanceChange) Delta() int64 {
	return c.NewBalance - c.OldBalance
}

// Gained reports whether the change increased the balance.
func (c BalanceChange) Gained() bool {
	return c.NewBalance > c.OldBalance
}
