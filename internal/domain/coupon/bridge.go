package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/leatlabs/loyalty-engine/internal/discount"
	"github.com/leatlabs/loyalty-engine/internal/domain/cart"
	"github.com/leatlabs/loyalty-engine/internal/domain/product"
	"github.com/leatlabs/loyalty-engine/internal/domain/spendrule"
)

// Bridge reacts to coupon apply/remove events on a session cart: it resolves
// the coupon's linked spend rule and drives the discount engine, persisting
// the mutated cart. A rule that no longer resolves is a silent no-op; the
// coupon code itself still tracks on the cart so a later removal cleans up.
type Bridge struct {
	coupons  Repository
	rules    spendrule.Repository
	products product.Repository
	carts    cart.Store
	now      func() time.Time
}

// NewBridge creates a Bridge with the required collaborators.
func NewBridge(
	coupons Repository,
	rules spendrule.Repository,
	products product.Repository,
	carts cart.Store,
) *Bridge {
	return &Bridge{
		coupons:  coupons,
		rules:    rules,
		products: products,
		carts:    carts,
		now:      time.Now,
	}
}

// ApplyCoupon applies the coupon code to the cart. It returns
// ErrInvalidCoupon when the code is unknown or its rule cannot currently be
// applied, so the storefront can reject the code outright.
func (b *Bridge) ApplyCoupon(ctx context.Context, cartID, code string) (*cart.Cart, error) {
	c, err := b.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}

	link, err := b.coupons.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if !link.Active {
		return nil, ErrInvalidCoupon
	}

	rule, err := b.rules.GetByID(ctx, link.SpendRuleID)
	if err != nil {
		if errors.Is(err, spendrule.ErrNotFound) {
			// Dangling link: degrade to "discount not applied".
			return c, nil
		}
		return nil, errors.Wrap(err, "lookup spend rule")
	}
	if !rule.ActiveAt(b.now()) {
		return nil, ErrInvalidCoupon
	}

	catalog, err := b.catalogFor(ctx, rule)
	if err != nil {
		return nil, err
	}
	if err := discount.Apply(c, rule, catalog); err != nil {
		return nil, err
	}

	c.AddCoupon(code)
	c.UpdatedAt = b.now()
	if err := b.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// RemoveCoupon reverses a previously applied coupon. Unknown codes and
// dangling rules only strip the code from the cart; adjustments tagged with
// the rule's id are reversed by the engine.
func (b *Bridge) RemoveCoupon(ctx context.Context, cartID, code string) (*cart.Cart, error) {
	c, err := b.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}

	link, err := b.coupons.FindByCode(ctx, code)
	switch {
	case err == nil:
		rule, ruleErr := b.rules.GetByID(ctx, link.SpendRuleID)
		if ruleErr == nil {
			discount.Remove(c, rule)
		} else if !errors.Is(ruleErr, spendrule.ErrNotFound) {
			return nil, errors.Wrap(ruleErr, "lookup spend rule")
		}
	case errors.Is(err, ErrNotFound):
		// Not a spend rule coupon: nothing to reverse.
	default:
		return nil, errors.Wrap(err, "lookup coupon")
	}

	c.RemoveCoupon(code)
	c.UpdatedAt = b.now()
	if err := b.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// catalogFor fetches the products a free_product rule needs for pricing.
// Discount rules operate on the cart alone and need no catalog.
func (b *Bridge) catalogFor(ctx context.Context, rule *spendrule.Rule) (map[string]product.Product, error) {
	if rule.Type != spendrule.TypeFreeProduct || len(rule.SelectedProducts) == 0 {
		return nil, nil
	}
	fetched, err := b.products.GetByIDs(ctx, rule.SelectedProducts)
	if err != nil {
		return nil, errors.Wrap(err, "get rule products")
	}
	catalog := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		catalog[p.ID] = p
	}
	return catalog, nil
}
