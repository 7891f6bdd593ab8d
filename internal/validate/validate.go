// Package validate applies domain equations and time-series invariants to
// extracted records. Every rule runs independently and reports a
// ValidationResult; a failing rule never halts the others.
package validate

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tolerance is the shared equation tolerance policy:
// max(|reference| * Rel, Abs).
type Tolerance struct {
	Rel decimal.Decimal
	Abs decimal.Decimal
}

// NewTolerance builds a Tolerance from float configuration values.
func NewTolerance(rel, abs float64) Tolerance {
	return Tolerance{
		Rel: decimal.NewFromFloat(rel),
		Abs: decimal.NewFromFloat(abs),
	}
}

// For returns the absolute tolerance band around the given reference value.
func (t Tolerance) For(reference decimal.Decimal) decimal.Decimal {
	return decimal.Max(reference.Abs().Mul(t.Rel), t.Abs)
}

// Within reports whether computed and reported agree for the given
// reference magnitude.
func (t Tolerance) Within(computed, reported decimal.Decimal) bool {
	return computed.Sub(reported).Abs().LessThanOrEqual(t.For(reported))
}

func diffMessage(what string, computed, reported decimal.Decimal) string {
	return fmt.Sprintf("%s: computed %s vs reported %s (diff %s)",
		what, computed.String(), reported.String(), computed.Sub(reported).Abs().String())
}
