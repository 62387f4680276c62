package coupon

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

// --- Mock implementations ---

type mockCouponRepo struct {
	byCode map[string]*Link
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Link, error) {
	l, ok := m.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	return l, nil
}

func (m *mockCouponRepo) Create(_ context.Context, l *Link) error {
	m.byCode[l.Code] = l
	return nil
}

type mockRuleRepo struct {
	byID map[string]*spendrule.Rule
}

func (m *mockRuleRepo) GetByID(_ context.Context, id string) (*spendrule.Rule, error) {
	r, ok := m.byID[id]
	if !ok {
		return nil, spendrule.ErrNotFound
	}
	return r, nil
}

func (m *mockRuleRepo) List(_ context.Context) ([]spendrule.Rule, error) { return nil, nil }
func (m *mockRuleRepo) Create(_ context.Context, _ *spendrule.Rule) error {
	return nil
}
func (m *mockRuleRepo) Update(_ context.Context, _ *spendrule.Rule) error {
	return nil
}

type mockProductRepo struct {
	byID map[string]product.Product
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) { return nil, nil }

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type memoryCartStore struct {
	byID map[string]*cart.Cart
}

func (s *memoryCartStore) Get(_ context.Context, id string) (*cart.Cart, error) {
	c, ok := s.byID[id]
	if !ok {
		return nil, cart.ErrNotFound
	}
	cp := *c
	cp.Lines = append([]cart.Line(nil), c.Lines...)
	cp.Coupons = append([]string(nil), c.Coupons...)
	return &cp, nil
}

func (s *memoryCartStore) Save(_ context.Context, c *cart.Cart) error {
	s.byID[c.ID] = c
	return nil
}

func (s *memoryCartStore) Delete(_ context.Context, id string) error {
	delete(s.byID, id)
	return nil
}

// --- Helpers ---

func newBridgeFixture() (*Bridge, *memoryCartStore, *mockRuleRepo, *mockCouponRepo) {
	coupons := &mockCouponRepo{byCode: map[string]*Link{
		"TENOFF":   {Code: "TENOFF", SpendRuleID: "r-pct", Active: true},
		"FREEBIE":  {Code: "FREEBIE", SpendRuleID: "r-free", Active: true},
		"DANGLING": {Code: "DANGLING", SpendRuleID: "r-gone", Active: true},
		"DISABLED": {Code: "DISABLED", SpendRuleID: "r-pct", Active: false},
	}}
	rules := &mockRuleRepo{byID: map[string]*spendrule.Rule{
		"r-pct": {
			ID:            "r-pct",
			Type:          spendrule.TypePercentageDiscount,
			DiscountKind:  spendrule.KindPercentage,
			DiscountValue: d("10"),
			Status:        spendrule.StatusActive,
		},
		"r-free": {
			ID:               "r-free",
			Type:             spendrule.TypeFreeProduct,
			DiscountKind:     spendrule.KindPercentage,
			DiscountValue:    d("100"),
			SelectedProducts: []string{"p2"},
			Status:           spendrule.StatusActive,
		},
	}}
	products := &mockProductRepo{byID: map[string]product.Product{
		"p1": {ID: "p1", Name: "Waffle", Price: d("6.50")},
		"p2": {ID: "p2", Name: "Tiramisu", Price: d("5.00")},
	}}
	carts := &memoryCartStore{byID: map[string]*cart.Cart{
		"s1": {
			ID:    "s1",
			Lines: []cart.Line{{ProductID: "p1", Quantity: 2, Price: d("6.50")}},
		},
	}}

	b := NewBridge(coupons, rules, products, carts)
	b.now = func() time.Time { return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC) }
	return b, carts, rules, coupons
}

func TestBridgeApplyCoupon(t *testing.T) {
	ctx := context.Background()

	t.Run("percentage coupon reprices the whole cart", func(t *testing.T) {
		b, carts, _, _ := newBridgeFixture()
		c, err := b.ApplyCoupon(ctx, "s1", "TENOFF")
		require.NoError(t, err)

		assert.True(t, c.Lines[0].Price.Equal(d("5.85")))
		assert.Equal(t, []string{"TENOFF"}, c.Coupons)

		persisted, err := carts.Get(ctx, "s1")
		require.NoError(t, err)
		assert.True(t, persisted.Lines[0].Price.Equal(d("5.85")), "mutated cart must be saved")
	})

	t.Run("free product coupon injects the grant line", func(t *testing.T) {
		b, _, _, _ := newBridgeFixture()
		c, err := b.ApplyCoupon(ctx, "s1", "FREEBIE")
		require.NoError(t, err)

		require.Len(t, c.Lines, 2)
		granted := c.Line("p2")
		require.NotNil(t, granted)
		assert.Equal(t, 1, granted.Quantity)
		assert.True(t, granted.Price.Equal(decimal.Zero))
	})

	t.Run("unknown code is rejected", func(t *testing.T) {
		b, _, _, _ := newBridgeFixture()
		_, err := b.ApplyCoupon(ctx, "s1", "NOPE")
		assert.ErrorIs(t, err, ErrInvalidCoupon)
	})

	t.Run("inactive link is rejected", func(t *testing.T) {
		b, _, _, _ := newBridgeFixture()
		_, err := b.ApplyCoupon(ctx, "s1", "DISABLED")
		assert.ErrorIs(t, err, ErrInvalidCoupon)
	})

	t.Run("dangling rule is a silent no-op", func(t *testing.T) {
		b, _, _, _ := newBridgeFixture()
		c, err := b.ApplyCoupon(ctx, "s1", "DANGLING")
		require.NoError(t, err)
		assert.True(t, c.Lines[0].Price.Equal(d("6.50")))
		assert.Empty(t, c.Coupons)
	})

	t.Run("expired rule is rejected", func(t *testing.T) {
		b, _, rules, _ := newBridgeFixture()
		past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		rules.byID["r-pct"].ExpiresAt = &past

		_, err := b.ApplyCoupon(ctx, "s1", "TENOFF")
		assert.ErrorIs(t, err, ErrInvalidCoupon)
	})

	t.Run("missing cart propagates", func(t *testing.T) {
		b, _, _, _ := newBridgeFixture()
		_, err := b.ApplyCoupon(ctx, "missing", "TENOFF")
		assert.ErrorIs(t, err, cart.ErrNotFound)
	})
}

func TestBridgeRemoveCoupon(t *testing.T) {
	ctx := context.Background()

	t.Run("removes grant lines and restores prices", func(t *testing.T) {
		b, _, _, _ := newBridgeFixture()
		_, err := b.ApplyCoupon(ctx, "s1", "TENOFF")
		require.NoError(t, err)
		_, err = b.ApplyCoupon(ctx, "s1", "FREEBIE")
		require.NoError(t, err)

		c, err := b.RemoveCoupon(ctx, "s1", "FREEBIE")
		require.NoError(t, err)
		assert.Nil(t, c.Line("p2"), "grant line gone")
		assert.Equal(t, []string{"TENOFF"}, c.Coupons)
		// The other rule's discount is untouched.
		assert.True(t, c.Line("p1").Price.Equal(d("5.85")))

		c, err = b.RemoveCoupon(ctx, "s1", "TENOFF")
		require.NoError(t, err)
		assert.True(t, c.Line("p1").Price.Equal(d("6.50")))
		assert.Empty(t, c.Coupons)
	})

	t.Run("unknown code only strips tracking", func(t *testing.T) {
		b, _, _, _ := newBridgeFixture()
		c, err := b.RemoveCoupon(ctx, "s1", "NOPE")
		require.NoError(t, err)
		assert.Len(t, c.Lines, 1)
	})
}
