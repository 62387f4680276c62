package discount

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leatlabs/loyalty-engine/internal/domain/cart"
	"github.com/leatlabs/loyalty-engine/internal/domain/product"
	"github.com/leatlabs/loyalty-engine/internal/domain/spendrule"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type mapResolver map[string]*spendrule.Rule

func (m mapResolver) GetByID(_ context.Context, id string) (*spendrule.Rule, error) {
	r, ok := m[id]
	if !ok {
		return nil, spendrule.ErrNotFound
	}
	return r, nil
}

func percentageRule(id, value string) *spendrule.Rule {
	return &spendrule.Rule{
		ID:            id,
		Type:          spendrule.TypePercentageDiscount,
		DiscountKind:  spendrule.KindPercentage,
		DiscountValue: d(value),
		Status:        spendrule.StatusActive,
	}
}

func fixedRule(id, value string) *spendrule.Rule {
	return &spendrule.Rule{
		ID:            id,
		Type:          spendrule.TypeFixedDiscount,
		DiscountKind:  spendrule.KindCurrency,
		DiscountValue: d(value),
		Status:        spendrule.StatusActive,
	}
}

func grantRule(id string, kind spendrule.DiscountKind, value string, products ...string) *spendrule.Rule {
	return &spendrule.Rule{
		ID:               id,
		Type:             spendrule.TypeFreeProduct,
		DiscountKind:     kind,
		DiscountValue:    d(value),
		SelectedProducts: products,
		Status:           spendrule.StatusActive,
	}
}

func testCatalog() map[string]product.Product {
	return map[string]product.Product{
		"p1": {ID: "p1", Name: "Waffle", Price: d("6.50")},
		"p2": {ID: "p2", Name: "Tiramisu", Price: d("5.00")},
		"p3": {ID: "p3", Name: "Macaron", Price: d("8.00")},
	}
}

func TestDiscountedPrice(t *testing.T) {
	tests := []struct {
		name  string
		kind  spendrule.DiscountKind
		value string
		price string
		want  string
	}{
		{"percentage 25% of 100", spendrule.KindPercentage, "25", "100", "75"},
		{"percentage 100% is free", spendrule.KindPercentage, "100", "42.50", "0"},
		{"percentage rounds to cents", spendrule.KindPercentage, "33", "9.99", "6.69"},
		{"fixed 2 off 6.50", spendrule.KindCurrency, "2", "6.50", "4.50"},
		{"fixed never negative", spendrule.KindCurrency, "10", "6.50", "0"},
		{"fixed exact zero", spendrule.KindCurrency, "6.50", "6.50", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DiscountedPrice(tt.kind, d(tt.value), d(tt.price))
			assert.True(t, got.Equal(d(tt.want)), "got %s, want %s", got, tt.want)
		})
	}
}

func TestApplyCartDiscount(t *testing.T) {
	c := &cart.Cart{
		ID: "s1",
		Lines: []cart.Line{
			{ProductID: "p1", Quantity: 2, Price: d("6.50")},
			{ProductID: "p2", Quantity: 1, Price: d("5.00")},
		},
	}

	rule := percentageRule("r1", "20")
	require.NoError(t, Apply(c, rule, nil))

	assert.True(t, c.Lines[0].Price.Equal(d("5.20")))
	assert.True(t, c.Lines[1].Price.Equal(d("4.00")))
	for i := range c.Lines {
		assert.Equal(t, cart.AdjustmentCartDiscount, c.Lines[i].Adjustment.Kind)
		assert.Equal(t, "r1", c.Lines[i].Adjustment.RuleID)
		assert.False(t, c.Lines[i].OnSale)
	}
	assert.True(t, c.Lines[0].Adjustment.OriginalPrice.Equal(d("6.50")))

	// Removing restores the exact original prices and clears tags.
	Remove(c, rule)
	assert.True(t, c.Lines[0].Price.Equal(d("6.50")))
	assert.True(t, c.Lines[1].Price.Equal(d("5.00")))
	for i := range c.Lines {
		assert.False(t, c.Lines[i].Adjusted())
	}
}

func TestApplyCartDiscountIdempotent(t *testing.T) {
	c := &cart.Cart{
		Lines: []cart.Line{{ProductID: "p1", Quantity: 1, Price: d("10.00")}},
	}
	rule := fixedRule("r1", "3")

	require.NoError(t, Apply(c, rule, nil))
	require.NoError(t, Apply(c, rule, nil))

	// Absolute price, not a compounded delta.
	assert.True(t, c.Lines[0].Price.Equal(d("7.00")))
	assert.True(t, c.Lines[0].Adjustment.OriginalPrice.Equal(d("10.00")))

	Remove(c, rule)
	assert.True(t, c.Lines[0].Price.Equal(d("10.00")))
}

func TestApplyFixedDiscountFloorsAtZero(t *testing.T) {
	c := &cart.Cart{
		Lines: []cart.Line{{ProductID: "p2", Quantity: 1, Price: d("5.00")}},
	}
	require.NoError(t, Apply(c, fixedRule("r1", "9"), nil))
	assert.True(t, c.Lines[0].Price.Equal(decimal.Zero))
}

func TestApplyProductGrant(t *testing.T) {
	catalog := testCatalog()
	rule := grantRule("r2", spendrule.KindPercentage, "100", "p2")

	t.Run("inserts missing product at quantity 1", func(t *testing.T) {
		c := &cart.Cart{Lines: []cart.Line{{ProductID: "p1", Quantity: 1, Price: d("6.50")}}}
		require.NoError(t, Apply(c, rule, catalog))

		require.Len(t, c.Lines, 2)
		granted := c.Line("p2")
		require.NotNil(t, granted)
		assert.Equal(t, 1, granted.Quantity)
		assert.True(t, granted.Price.Equal(decimal.Zero))
		assert.Equal(t, cart.AdjustmentProductGrant, granted.Adjustment.Kind)
		assert.True(t, granted.Adjustment.OriginalPrice.Equal(d("5.00")))
	})

	t.Run("retags existing line and clamps quantity", func(t *testing.T) {
		c := &cart.Cart{Lines: []cart.Line{{ProductID: "p2", Quantity: 3, Price: d("5.00")}}}
		require.NoError(t, Apply(c, rule, catalog))

		require.Len(t, c.Lines, 1)
		assert.Equal(t, 1, c.Lines[0].Quantity)
		assert.True(t, c.Lines[0].Price.Equal(decimal.Zero))
	})

	t.Run("applying twice yields one line at quantity 1", func(t *testing.T) {
		c := &cart.Cart{}
		require.NoError(t, Apply(c, rule, catalog))
		require.NoError(t, Apply(c, rule, catalog))

		require.Len(t, c.Lines, 1)
		assert.Equal(t, 1, c.Lines[0].Quantity)
	})

	t.Run("discounted grant uses rule formula", func(t *testing.T) {
		half := grantRule("r3", spendrule.KindPercentage, "50", "p3")
		c := &cart.Cart{}
		require.NoError(t, Apply(c, half, catalog))
		assert.True(t, c.Lines[0].Price.Equal(d("4.00")))
	})

	t.Run("unknown product is a silent no-op", func(t *testing.T) {
		missing := grantRule("r4", spendrule.KindPercentage, "100", "nope")
		c := &cart.Cart{}
		require.NoError(t, Apply(c, missing, catalog))
		assert.Empty(t, c.Lines)
	})
}

func TestRemoveProductGrantLeavesOtherLines(t *testing.T) {
	catalog := testCatalog()
	mine := grantRule("r2", spendrule.KindPercentage, "100", "p2")
	other := grantRule("r9", spendrule.KindPercentage, "100", "p3")

	c := &cart.Cart{Lines: []cart.Line{{ProductID: "p1", Quantity: 2, Price: d("6.50")}}}
	require.NoError(t, Apply(c, mine, catalog))
	require.NoError(t, Apply(c, other, catalog))
	require.Len(t, c.Lines, 3)

	Remove(c, mine)

	require.Len(t, c.Lines, 2)
	assert.Nil(t, c.Line("p2"))
	assert.NotNil(t, c.Line("p1"))
	assert.NotNil(t, c.Line("p3"))
}

func TestCartDiscountSkipsGrantLines(t *testing.T) {
	catalog := testCatalog()
	c := &cart.Cart{Lines: []cart.Line{{ProductID: "p1", Quantity: 1, Price: d("6.50")}}}
	require.NoError(t, Apply(c, grantRule("g", spendrule.KindPercentage, "100", "p2"), catalog))
	require.NoError(t, Apply(c, percentageRule("w", "10"), nil))

	granted := c.Line("p2")
	require.NotNil(t, granted)
	assert.Equal(t, cart.AdjustmentProductGrant, granted.Adjustment.Kind)
	assert.True(t, granted.Price.Equal(decimal.Zero))

	regular := c.Line("p1")
	assert.Equal(t, cart.AdjustmentCartDiscount, regular.Adjustment.Kind)
	assert.True(t, regular.Price.Equal(d("5.85")))
}

func TestReprice(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	catalog := testCatalog()

	t.Run("refreshes untagged lines from catalog", func(t *testing.T) {
		c := &cart.Cart{Lines: []cart.Line{{ProductID: "p1", Quantity: 1, Price: d("1.00")}}}
		Reprice(ctx, c, mapResolver{}, catalog, now)
		assert.True(t, c.Lines[0].Price.Equal(d("6.50")))
	})

	t.Run("re-applies cart discount from stored original", func(t *testing.T) {
		rule := percentageRule("r1", "20")
		c := &cart.Cart{Lines: []cart.Line{{ProductID: "p1", Quantity: 1, Price: d("6.50")}}}
		require.NoError(t, Apply(c, rule, nil))

		// Simulate a catalog refresh clobbering the session price.
		c.Lines[0].Price = d("6.50")

		Reprice(ctx, c, mapResolver{"r1": rule}, catalog, now)
		assert.True(t, c.Lines[0].Price.Equal(d("5.20")))
		assert.False(t, c.Lines[0].OnSale)
	})

	t.Run("pins grant price and suppresses sale flag", func(t *testing.T) {
		rule := grantRule("r2", spendrule.KindPercentage, "100", "p2")
		c := &cart.Cart{}
		require.NoError(t, Apply(c, rule, catalog))

		sale := d("4.20")
		onSaleCatalog := map[string]product.Product{
			"p2": {ID: "p2", Name: "Tiramisu", Price: d("5.00"), SalePrice: &sale},
		}
		Reprice(ctx, c, mapResolver{"r2": rule}, onSaleCatalog, now)

		assert.True(t, c.Lines[0].Price.Equal(decimal.Zero))
		assert.False(t, c.Lines[0].OnSale)
	})

	t.Run("missing rule restores original and clears tag", func(t *testing.T) {
		rule := percentageRule("gone", "20")
		c := &cart.Cart{Lines: []cart.Line{{ProductID: "p1", Quantity: 1, Price: d("6.50")}}}
		require.NoError(t, Apply(c, rule, nil))

		Reprice(ctx, c, mapResolver{}, catalog, now)
		assert.True(t, c.Lines[0].Price.Equal(d("6.50")))
		assert.False(t, c.Lines[0].Adjusted())
	})

	t.Run("expired rule restores original", func(t *testing.T) {
		past := now.Add(-time.Hour)
		rule := percentageRule("r1", "20")
		rule.ExpiresAt = &past

		c := &cart.Cart{Lines: []cart.Line{{ProductID: "p1", Quantity: 1, Price: d("6.50")}}}
		require.NoError(t, Apply(c, rule, nil))

		Reprice(ctx, c, mapResolver{"r1": rule}, catalog, now)
		assert.True(t, c.Lines[0].Price.Equal(d("6.50")))
		assert.False(t, c.Lines[0].Adjusted())
	})
}

func TestDisplayPrice(t *testing.T) {
	catalog := testCatalog()
	c := &cart.Cart{Lines: []cart.Line{{ProductID: "p1", Quantity: 1, Price: d("6.50")}}}
	require.NoError(t, Apply(c, grantRule("r2", spendrule.KindPercentage, "100", "p2"), catalog))

	price, ok := DisplayPrice(c, "p2")
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.Zero))

	_, ok = DisplayPrice(c, "p1")
	assert.False(t, ok, "untagged lines keep their catalog presentation")

	_, ok = DisplayPrice(c, "p3")
	assert.False(t, ok)
}
