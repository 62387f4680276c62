// Package earnrule holds the minimal earn rule model the credit reconciler
// reads. Earn rules are managed elsewhere; this engine only needs to know how
// many credits an order total is worth right now.
package earnrule

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no earn rule is active. The reconciler treats
// it as "no credits to issue", not an error.
var ErrNotFound = errors.New("no active earn rule")

// Rule defines how order totals convert to loyalty credits.
type Rule struct {
	ID    string
	Title string
	// CreditsPerUnit is the number of credits granted per unit of currency
	// spent. Fractional rates are supported; the final credit count is
	// floored.
	CreditsPerUnit decimal.Decimal
	Status         string
	StartsAt       *time.Time
	ExpiresAt      *time.Time
}

// CreditsFor returns the whole number of credits the given order total earns.
func (r *Rule) CreditsFor(total decimal.Decimal) int64 {
	return total.Mul(r.CreditsPerUnit).Floor().IntPart()
}

// Repository provides read access to earn rules.
type Repository interface {
	// FindActive returns the earn rule in effect at the given time, or
	// ErrNotFound when none applies.
	FindActive(ctx context.Context, at time.Time) (*Rule, error)
}
