// Package discount implements the spend rule cart adjustment engine: pure
// functions that translate an active spend rule into cart line mutations and
// reverse them when the rule is deactivated.
package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/leatlabs/loyalty-engine/internal/domain/cart"
	"github.com/leatlabs/loyalty-engine/internal/domain/product"
	"github.com/leatlabs/loyalty-engine/internal/domain/spendrule"
)

var hundred = decimal.NewFromInt(100)

// RuleResolver looks up spend rules during repricing. spendrule.Repository
// satisfies it.
type RuleResolver interface {
	GetByID(ctx context.Context, id string) (*spendrule.Rule, error)
}

// Apply mutates the cart according to the rule type. Applying the same rule
// twice is idempotent: adjustments store absolute prices, never deltas, and
// a line holds at most one adjustment.
func Apply(c *cart.Cart, rule *spendrule.Rule, catalog map[string]product.Product) error {
	switch rule.Type {
	case spendrule.TypeFreeProduct:
		applyProductGrants(c, rule, catalog)
		return nil
	case spendrule.TypeFixedDiscount, spendrule.TypePercentageDiscount:
		applyCartDiscount(c, rule)
		return nil
	default:
		return errors.Errorf("unsupported spend rule type: %q", rule.Type)
	}
}

// Remove reverses Apply for the given rule: grant lines tagged with the
// rule's id are deleted, discounted lines are restored to their recorded
// original price. Lines tagged by other rules are left untouched.
func Remove(c *cart.Cart, rule *spendrule.Rule) {
	switch rule.Type {
	case spendrule.TypeFreeProduct:
		kept := c.Lines[:0]
		for i := range c.Lines {
			l := c.Lines[i]
			if l.Adjustment.Kind == cart.AdjustmentProductGrant && l.Adjustment.RuleID == rule.ID {
				continue
			}
			kept = append(kept, l)
		}
		c.Lines = kept
	default:
		for i := range c.Lines {
			l := &c.Lines[i]
			if l.Adjustment.Kind == cart.AdjustmentCartDiscount && l.Adjustment.RuleID == rule.ID {
				l.Price = l.Adjustment.OriginalPrice
				l.Adjustment = cart.Adjustment{}
			}
		}
	}
}

// Reprice refreshes every line from the catalog and re-applies stored
// adjustments. It runs on every cart load, since untagged prices always
// track the catalog. When a tagged rule no longer resolves or is inactive,
// the line degrades to its recorded original price with the tag cleared:
// discount not applied, never an error.
func Reprice(ctx context.Context, c *cart.Cart, rules RuleResolver, catalog map[string]product.Product, now time.Time) {
	for i := range c.Lines {
		l := &c.Lines[i]
		switch l.Adjustment.Kind {
		case cart.AdjustmentNone:
			if p, ok := catalog[l.ProductID]; ok {
				l.Price = p.EffectivePrice()
				l.OnSale = p.OnSale()
				l.Name = p.Name
			}
		case cart.AdjustmentCartDiscount:
			rule, err := rules.GetByID(ctx, l.Adjustment.RuleID)
			if err != nil || !rule.ActiveAt(now) {
				restoreLine(l)
				continue
			}
			l.Price = DiscountedPrice(rule.DiscountKind, rule.DiscountValue, l.Adjustment.OriginalPrice)
			l.OnSale = false
		case cart.AdjustmentProductGrant:
			rule, err := rules.GetByID(ctx, l.Adjustment.RuleID)
			if err != nil || !rule.ActiveAt(now) {
				restoreLine(l)
				continue
			}
			l.Price = l.Adjustment.DiscountedPrice
			l.OnSale = false
		}
	}
}

// DisplayPrice returns the substituted unit price for a product when it
// appears in an adjusted cart line. The storefront's price rendering uses
// this to show the spend rule price instead of the catalog one.
func DisplayPrice(c *cart.Cart, productID string) (decimal.Decimal, bool) {
	l := c.Line(productID)
	if l == nil || !l.Adjusted() {
		return decimal.Zero, false
	}
	return l.Price, true
}

// DiscountedPrice applies a rule's discount to a unit price:
// percentage yields price * (1 - value/100), currency yields
// max(0, price - value). Results are rounded to 2 decimal places.
func DiscountedPrice(kind spendrule.DiscountKind, value, price decimal.Decimal) decimal.Decimal {
	var out decimal.Decimal
	switch kind {
	case spendrule.KindPercentage:
		out = price.Mul(decimal.NewFromInt(1).Sub(value.Div(hundred)))
	default:
		out = price.Sub(value)
	}
	if out.IsNegative() {
		out = decimal.Zero
	}
	return out.Round(2)
}

func applyProductGrants(c *cart.Cart, rule *spendrule.Rule, catalog map[string]product.Product) {
	for _, pid := range rule.SelectedProducts {
		p, ok := catalog[pid]
		if !ok {
			// Unknown product: the grant silently does not apply.
			continue
		}
		discounted := DiscountedPrice(rule.DiscountKind, rule.DiscountValue, p.Price)
		adj := cart.Adjustment{
			Kind:            cart.AdjustmentProductGrant,
			RuleID:          rule.ID,
			OriginalPrice:   p.Price,
			DiscountedPrice: discounted,
		}

		if l := c.Line(pid); l != nil {
			// Existing line: clamp to a single unit and retag in place.
			l.Quantity = 1
			l.Price = discounted
			l.OnSale = false
			l.Adjustment = adj
			continue
		}
		c.Lines = append(c.Lines, cart.Line{
			ProductID:  pid,
			Name:       p.Name,
			Quantity:   1,
			Price:      discounted,
			Adjustment: adj,
		})
	}
}

func applyCartDiscount(c *cart.Cart, rule *spendrule.Rule) {
	for i := range c.Lines {
		l := &c.Lines[i]
		// Grant lines keep their own tag; a line carries at most one
		// adjustment shape at a time.
		if l.Adjustment.Kind == cart.AdjustmentProductGrant {
			continue
		}

		original := l.Price
		if l.Adjustment.Kind == cart.AdjustmentCartDiscount {
			original = l.Adjustment.OriginalPrice
		}
		l.Adjustment = cart.Adjustment{
			Kind:          cart.AdjustmentCartDiscount,
			RuleID:        rule.ID,
			OriginalPrice: original,
		}
		l.Price = DiscountedPrice(rule.DiscountKind, rule.DiscountValue, original)
		l.OnSale = false
	}
}

func restoreLine(l *cart.Line) {
	l.Price = l.Adjustment.OriginalPrice
	l.Adjustment = cart.Adjustment{}
}
