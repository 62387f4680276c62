package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when no coupon exists for a code.
	ErrNotFound = errors.New("coupon not found")
	// ErrInvalidCoupon is surfaced to the storefront when a code cannot be
	// applied: unknown, inactive, or linked to a rule that is not active.
	ErrInvalidCoupon = errors.New("invalid coupon code")
)

// Link ties a checkout-facing coupon code to a spend rule. It is created by
// admin tooling and merely read on the checkout path.
type Link struct {
	Code        string
	SpendRuleID string
	Active      bool
	CreatedAt   time.Time
}

// Repository provides persistence for coupon links.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Link, error)
	Create(ctx context.Context, link *Link) error
}
