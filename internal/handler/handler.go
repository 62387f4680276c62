// Package handler exposes the loyalty engine over HTTP: a public storefront
// surface for session carts and coupons, and an API-key-gated private surface
// for admin tooling and store webhooks.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/leatlabs/loyalty-engine/internal/domain/auth"
	"github.com/leatlabs/loyalty-engine/internal/domain/cart"
	"github.com/leatlabs/loyalty-engine/internal/domain/coupon"
	"github.com/leatlabs/loyalty-engine/internal/domain/order"
	"github.com/leatlabs/loyalty-engine/internal/domain/product"
	"github.com/leatlabs/loyalty-engine/internal/domain/spendrule"
)

// CreditReconciler is the slice of the reconciler the webhook handlers call.
type CreditReconciler interface {
	IssueCredits(ctx context.Context, orderID, email string) error
	HandleWithdrawal(ctx context.Context, orderID string) error
	HandleRefund(ctx context.Context, orderID string, refundAmount decimal.Decimal) error
	EnsureContact(ctx context.Context, shopUserID, email string) (string, error)
}

// Handler holds the HTTP handlers and their domain dependencies.
type Handler struct {
	carts      cart.Store
	products   product.Repository
	rules      spendrule.Repository
	coupons    coupon.Repository
	bridge     *coupon.Bridge
	orders     order.Repository
	notes      order.NoteRepository
	reconciler CreditReconciler
	apikeys    auth.Repository
	pepper     []byte
}

// New constructs a Handler with the required domain dependencies.
func New(
	carts cart.Store,
	products product.Repository,
	rules spendrule.Repository,
	coupons coupon.Repository,
	bridge *coupon.Bridge,
	orders order.Repository,
	notes order.NoteRepository,
	reconciler CreditReconciler,
	apikeys auth.Repository,
	pepper []byte,
) *Handler {
	return &Handler{
		carts:      carts,
		products:   products,
		rules:      rules,
		coupons:    coupons,
		bridge:     bridge,
		orders:     orders,
		notes:      notes,
		reconciler: reconciler,
		apikeys:    apikeys,
		pepper:     pepper,
	}
}

// Routes assembles the chi router for both API surfaces.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/carts", h.createCart)
		r.Get("/carts/{cartID}", h.getCart)
		r.Post("/carts/{cartID}/items", h.addCartItem)
		r.Post("/carts/{cartID}/coupons", h.applyCoupon)
		r.Delete("/carts/{cartID}/coupons/{code}", h.removeCoupon)
		r.Get("/products", h.listProducts)
	})

	r.Route("/api/private", func(r chi.Router) {
		r.Use(h.requireAPIKey)
		r.Get("/spend-rules", h.listSpendRules)
		r.Post("/spend-rules", h.createSpendRule)
		r.Get("/spend-rules/{ruleID}", h.getSpendRule)
		r.Put("/spend-rules/{ruleID}", h.updateSpendRule)
		r.Post("/coupons", h.createCoupon)
		r.Post("/contacts", h.createContact)
		r.Post("/orders", h.orderCompleted)
		r.Post("/orders/{orderID}/withdrawal", h.orderWithdrawal)
		r.Post("/orders/{orderID}/refunds", h.orderRefunded)
		r.Get("/orders/{orderID}/notes", h.listOrderNotes)
	})

	return r
}

// errorResponse is the JSON error envelope for both surfaces.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Code: status, Message: message})
}

// respondInternal logs the error with the request logger and hides the detail
// from the client.
func respondInternal(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	respondError(w, http.StatusInternalServerError, "internal server error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
