package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID   string
	Name string
	// Price is the regular catalog price.
	Price decimal.Decimal
	// SalePrice, when set, is the catalog sale price shown on the storefront.
	// Spend rule adjustments replace it entirely: an adjusted line never
	// renders as "on sale".
	SalePrice *decimal.Decimal
	Category  string
}

// EffectivePrice returns the price a shopper pays without any spend rule
// applied: the sale price when one is set, the regular price otherwise.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice != nil {
		return *p.SalePrice
	}
	return p.Price
}

// OnSale reports whether the product carries a catalog sale price.
func (p Product) OnSale() bool {
	return p.SalePrice != nil
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
