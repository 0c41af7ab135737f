package billing

import "math"

// Epsilon is the tolerance for money comparisons. Balance recomputation is a
// no-op when the stored value is within one centavo of the computed one.
const Epsilon = 0.01

// AmountsEqual reports whether two money amounts are equal within Epsilon.
func AmountsEqual(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// RoundCentavo rounds a money amount to two decimal places.
func RoundCentavo(v float64) float64 {
	return math.Round(v*100) / 100
}

// clampZero treats small float noise below zero as zero. Balances never go
// negative outside a computation.
func clampZero(v float64) float64 {
	if v < Epsilon {
		return 0
	}
	return RoundCentavo(v)
}
