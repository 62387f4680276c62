package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/leatlabs/loyalty-engine/internal/discount"
	"github.com/leatlabs/loyalty-engine/internal/domain/cart"
	"github.com/leatlabs/loyalty-engine/internal/domain/coupon"
	"github.com/leatlabs/loyalty-engine/internal/domain/product"
)

type cartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type createCartRequest struct {
	Items []cartItemRequest `json:"items"`
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

type promotionDTO struct {
	Kind          string  `json:"kind"`
	RuleID        string  `json:"ruleId"`
	OriginalPrice float64 `json:"originalPrice"`
}

type cartLineDTO struct {
	ProductID string        `json:"productId"`
	Name      string        `json:"name"`
	Quantity  int           `json:"quantity"`
	Price     float64       `json:"price"`
	OnSale    bool          `json:"onSale"`
	Promotion *promotionDTO `json:"promotion,omitempty"`
}

type cartDTO struct {
	ID       string        `json:"id"`
	Lines    []cartLineDTO `json:"lines"`
	Coupons  []string      `json:"coupons"`
	Subtotal float64       `json:"subtotal"`
}

func cartToDTO(c *cart.Cart) cartDTO {
	dto := cartDTO{
		ID:       c.ID,
		Lines:    make([]cartLineDTO, 0, len(c.Lines)),
		Coupons:  c.Coupons,
		Subtotal: c.Subtotal().InexactFloat64(),
	}
	if dto.Coupons == nil {
		dto.Coupons = []string{}
	}
	for i := range c.Lines {
		l := &c.Lines[i]
		line := cartLineDTO{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			Price:     l.Price.InexactFloat64(),
			OnSale:    l.OnSale,
		}
		if l.Adjusted() {
			line.Promotion = &promotionDTO{
				Kind:          string(l.Adjustment.Kind),
				RuleID:        l.Adjustment.RuleID,
				OriginalPrice: l.Adjustment.OriginalPrice.InexactFloat64(),
			}
		}
		dto.Lines = append(dto.Lines, line)
	}
	return dto
}

func (h *Handler) createCart(w http.ResponseWriter, r *http.Request) {
	var req createCartRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	now := time.Now()
	c := &cart.Cart{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			item.Quantity = 1
		}
		p, err := h.products.GetByID(r.Context(), item.ProductID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				respondError(w, http.StatusBadRequest, "unknown product: "+item.ProductID)
				return
			}
			respondInternal(w, r, err)
			return
		}
		c.Lines = append(c.Lines, cart.Line{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  item.Quantity,
			Price:     p.EffectivePrice(),
			OnSale:    p.OnSale(),
		})
	}

	if err := h.carts.Save(r.Context(), c); err != nil {
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, cartToDTO(c))
}

// getCart loads the cart and reprices every line against the current catalog
// and rule set before returning it, so the response never shows stale prices
// or adjustments from deactivated rules.
func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			respondError(w, http.StatusNotFound, "cart not found")
			return
		}
		respondInternal(w, r, err)
		return
	}

	catalog, err := h.cartCatalog(r, c)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	discount.Reprice(r.Context(), c, h.rules, catalog, time.Now())

	if err := h.carts.Save(r.Context(), c); err != nil {
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cartToDTO(c))
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	c, err := h.carts.Get(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			respondError(w, http.StatusNotFound, "cart not found")
			return
		}
		respondInternal(w, r, err)
		return
	}

	p, err := h.products.GetByID(r.Context(), req.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			respondError(w, http.StatusNotFound, "product not found")
			return
		}
		respondInternal(w, r, err)
		return
	}

	if l := c.Line(p.ID); l != nil {
		if l.Adjustment.Kind == cart.AdjustmentProductGrant {
			// Granted lines are pinned to a single unit by their rule.
			respondError(w, http.StatusConflict, "product is granted by an active promotion")
			return
		}
		l.Quantity += req.Quantity
	} else {
		c.Lines = append(c.Lines, cart.Line{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  req.Quantity,
			Price:     p.EffectivePrice(),
			OnSale:    p.OnSale(),
		})
	}

	c.UpdatedAt = time.Now()
	if err := h.carts.Save(r.Context(), c); err != nil {
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cartToDTO(c))
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" {
		respondError(w, http.StatusBadRequest, "coupon code is required")
		return
	}

	c, err := h.bridge.ApplyCoupon(r.Context(), chi.URLParam(r, "cartID"), req.Code)
	if err != nil {
		switch {
		case errors.Is(err, cart.ErrNotFound):
			respondError(w, http.StatusNotFound, "cart not found")
		case errors.Is(err, coupon.ErrInvalidCoupon):
			respondError(w, http.StatusBadRequest, "invalid coupon code")
		default:
			respondInternal(w, r, err)
		}
		return
	}
	respondJSON(w, http.StatusOK, cartToDTO(c))
}

func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.bridge.RemoveCoupon(r.Context(), chi.URLParam(r, "cartID"), chi.URLParam(r, "code"))
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			respondError(w, http.StatusNotFound, "cart not found")
			return
		}
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cartToDTO(c))
}

type productDTO struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Price     float64  `json:"price"`
	SalePrice *float64 `json:"salePrice,omitempty"`
	Category  string   `json:"category"`
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	out := make([]productDTO, 0, len(products))
	for _, p := range products {
		dto := productDTO{
			ID:       p.ID,
			Name:     p.Name,
			Price:    p.Price.InexactFloat64(),
			Category: p.Category,
		}
		if p.SalePrice != nil {
			sp := p.SalePrice.InexactFloat64()
			dto.SalePrice = &sp
		}
		out = append(out, dto)
	}
	respondJSON(w, http.StatusOK, out)
}

// cartCatalog fetches the catalog entries for every product referenced by the
// cart's lines. Products that no longer exist are simply absent: Reprice
// leaves their lines priced as stored.
func (h *Handler) cartCatalog(r *http.Request, c *cart.Cart) (map[string]product.Product, error) {
	if len(c.Lines) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(c.Lines))
	for i := range c.Lines {
		ids = append(ids, c.Lines[i].ProductID)
	}
	fetched, err := h.products.GetByIDs(r.Context(), ids)
	if err != nil {
		return nil, errors.Wrap(err, "get cart products")
	}
	catalog := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		catalog[p.ID] = p
	}
	return catalog, nil
}
