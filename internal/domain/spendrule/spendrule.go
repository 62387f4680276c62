package spendrule

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported spend rule behaviours.
type Type string

const (
	// TypeFreeProduct grants specific products at a reduced (or zero) price.
	TypeFreeProduct Type = "free_product"
	// TypeFixedDiscount subtracts a fixed amount from every cart line.
	TypeFixedDiscount Type = "fixed_discount"
	// TypePercentageDiscount reduces every cart line by a percentage.
	TypePercentageDiscount Type = "percentage_discount"
)

// DiscountKind distinguishes currency amounts from percentages when a rule's
// discount value is applied to a price.
type DiscountKind string

const (
	// KindCurrency treats the discount value as a monetary amount.
	KindCurrency DiscountKind = "currency"
	// KindPercentage treats the discount value as a percentage of the price.
	KindPercentage DiscountKind = "percentage"
)

// Status marks whether a rule is eligible to be applied at all.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ErrNotFound is returned when a spend rule lookup misses. Callers in the
// checkout path treat this as a silent no-op rather than an error surface.
var ErrNotFound = errors.New("spend rule not found")

// Rule is an admin-configured promotion: a cart-level discount or a
// free/discounted product grant, triggered by a linked coupon code.
type Rule struct {
	ID            string
	Title         string
	Type          Type
	DiscountKind  DiscountKind
	DiscountValue decimal.Decimal
	// SelectedProducts lists the product ids granted by a free_product rule,
	// in the order they should be added to the cart. Empty for discount rules.
	SelectedProducts []string
	Status           Status
	StartsAt         *time.Time
	ExpiresAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ActiveAt reports whether the rule may be applied at the given time,
// considering both its status and its optional validity window.
func (r *Rule) ActiveAt(now time.Time) bool {
	if r.Status != StatusActive {
		return false
	}
	if r.StartsAt != nil && now.Before(*r.StartsAt) {
		return false
	}
	if r.ExpiresAt != nil && now.After(*r.ExpiresAt) {
		return false
	}
	return true
}

// Repository provides persistence for spend rules. Rules are created and
// edited through the admin API and read-only from the storefront's
// perspective; nothing in the discount path ever deletes one.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Rule, error)
	List(ctx context.Context) ([]Rule, error)
	Create(ctx context.Context, rule *Rule) error
	Update(ctx context.Context, rule *Rule) error
}
