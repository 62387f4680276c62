package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no cart exists for the given session id.
var ErrNotFound = errors.New("cart not found")

// AdjustmentKind discriminates the per-line adjustment variants. A line
// carries at most one adjustment at a time.
type AdjustmentKind string

const (
	// AdjustmentNone marks a line priced straight from the catalog.
	AdjustmentNone AdjustmentKind = ""
	// AdjustmentCartDiscount marks a line repriced by a whole-cart
	// fixed/percentage spend rule. OriginalPrice holds the price to restore
	// when the rule is removed.
	AdjustmentCartDiscount AdjustmentKind = "cart_discount"
	// AdjustmentProductGrant marks a line injected or repriced by a
	// free_product spend rule. Both the original and the discounted price
	// are pinned so the line survives catalog repricing.
	AdjustmentProductGrant AdjustmentKind = "product_grant"
)

// Adjustment records the provenance of a spend rule price override so it can
// be re-applied on reprice and reversed when the coupon is removed.
type Adjustment struct {
	Kind            AdjustmentKind  `json:"kind,omitempty"`
	RuleID          string          `json:"ruleId,omitempty"`
	OriginalPrice   decimal.Decimal `json:"originalPrice"`
	DiscountedPrice decimal.Decimal `json:"discountedPrice"`
}

// Line is one entry in the shopper's in-progress order.
type Line struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	// Price is the effective unit price for this session, after any spend
	// rule adjustment.
	Price decimal.Decimal `json:"price"`
	// OnSale mirrors the catalog sale flag. Always false on adjusted lines:
	// a spend rule discount is not a catalog sale.
	OnSale     bool       `json:"onSale"`
	Adjustment Adjustment `json:"adjustment"`
}

// Adjusted reports whether the line carries a spend rule adjustment.
func (l *Line) Adjusted() bool {
	return l.Adjustment.Kind != AdjustmentNone
}

// Cart is the session-scoped shopping cart. It is an explicit value passed
// through the discount engine; the session store persists it between
// requests with last-write-wins semantics.
type Cart struct {
	ID        string    `json:"id"`
	Lines     []Line    `json:"lines"`
	Coupons   []string  `json:"coupons,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Line returns a pointer to the line for the given product id, or nil.
func (c *Cart) Line(productID string) *Line {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return &c.Lines[i]
		}
	}
	return nil
}

// HasCoupon reports whether the given code is already applied to the cart.
func (c *Cart) HasCoupon(code string) bool {
	for _, applied := range c.Coupons {
		if applied == code {
			return true
		}
	}
	return false
}

// AddCoupon records an applied coupon code, once.
func (c *Cart) AddCoupon(code string) {
	if !c.HasCoupon(code) {
		c.Coupons = append(c.Coupons, code)
	}
}

// RemoveCoupon drops a coupon code from the applied set.
func (c *Cart) RemoveCoupon(code string) {
	kept := c.Coupons[:0]
	for _, applied := range c.Coupons {
		if applied != code {
			kept = append(kept, applied)
		}
	}
	c.Coupons = kept
}

// Subtotal returns the sum of price * quantity across all lines.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for i := range c.Lines {
		line := c.Lines[i].Price.Mul(decimal.NewFromInt(int64(c.Lines[i].Quantity)))
		sum = sum.Add(line)
	}
	return sum
}

// Store persists session carts. Implementations provide no concurrency
// control beyond last-write-wins on Save.
type Store interface {
	Get(ctx context.Context, id string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, id string) error
}
