package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/leatlabs/loyalty-engine/internal/domain/coupon"
	"github.com/leatlabs/loyalty-engine/internal/domain/spendrule"
)

type spendRuleRequest struct {
	Title            string     `json:"title"`
	Type             string     `json:"type"`
	DiscountKind     string     `json:"discountKind"`
	DiscountValue    float64    `json:"discountValue"`
	SelectedProducts []string   `json:"selectedProducts"`
	Status           string     `json:"status"`
	StartsAt         *time.Time `json:"startsAt"`
	ExpiresAt        *time.Time `json:"expiresAt"`
}

type spendRuleDTO struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Type             string     `json:"type"`
	DiscountKind     string     `json:"discountKind"`
	DiscountValue    float64    `json:"discountValue"`
	SelectedProducts []string   `json:"selectedProducts"`
	Status           string     `json:"status"`
	StartsAt         *time.Time `json:"startsAt,omitempty"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func ruleToDTO(rule *spendrule.Rule) spendRuleDTO {
	dto := spendRuleDTO{
		ID:               rule.ID,
		Title:            rule.Title,
		Type:             string(rule.Type),
		DiscountKind:     string(rule.DiscountKind),
		DiscountValue:    rule.DiscountValue.InexactFloat64(),
		SelectedProducts: rule.SelectedProducts,
		Status:           string(rule.Status),
		StartsAt:         rule.StartsAt,
		ExpiresAt:        rule.ExpiresAt,
		CreatedAt:        rule.CreatedAt,
		UpdatedAt:        rule.UpdatedAt,
	}
	if dto.SelectedProducts == nil {
		dto.SelectedProducts = []string{}
	}
	return dto
}

// validateRule enforces the admin invariants before a rule is persisted:
// known type and kind, a non-negative value, and at most 100 for percentages.
func (req *spendRuleRequest) validate() (*spendrule.Rule, string) {
	t := spendrule.Type(req.Type)
	switch t {
	case spendrule.TypeFreeProduct, spendrule.TypeFixedDiscount, spendrule.TypePercentageDiscount:
	default:
		return nil, "unsupported rule type"
	}

	kind := spendrule.DiscountKind(req.DiscountKind)
	switch kind {
	case spendrule.KindCurrency, spendrule.KindPercentage:
	default:
		return nil, "unsupported discount kind"
	}

	value := decimal.NewFromFloat(req.DiscountValue)
	if value.IsNegative() {
		return nil, "discount value must not be negative"
	}
	if kind == spendrule.KindPercentage && value.GreaterThan(decimal.NewFromInt(100)) {
		return nil, "percentage discount must not exceed 100"
	}

	if t == spendrule.TypeFreeProduct && len(req.SelectedProducts) == 0 {
		return nil, "free product rules require selected products"
	}

	status := spendrule.Status(req.Status)
	if status == "" {
		status = spendrule.StatusActive
	}
	switch status {
	case spendrule.StatusActive, spendrule.StatusInactive:
	default:
		return nil, "unsupported status"
	}

	return &spendrule.Rule{
		Title:            req.Title,
		Type:             t,
		DiscountKind:     kind,
		DiscountValue:    value,
		SelectedProducts: req.SelectedProducts,
		Status:           status,
		StartsAt:         req.StartsAt,
		ExpiresAt:        req.ExpiresAt,
	}, ""
}

func (h *Handler) listSpendRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.List(r.Context())
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	out := make([]spendRuleDTO, 0, len(rules))
	for i := range rules {
		out = append(out, ruleToDTO(&rules[i]))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) createSpendRule(w http.ResponseWriter, r *http.Request) {
	var req spendRuleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rule, problem := req.validate()
	if problem != "" {
		respondError(w, http.StatusBadRequest, problem)
		return
	}

	rule.ID = uuid.NewString()
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if err := h.rules.Create(r.Context(), rule); err != nil {
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, ruleToDTO(rule))
}

func (h *Handler) getSpendRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.rules.GetByID(r.Context(), chi.URLParam(r, "ruleID"))
	if err != nil {
		if errors.Is(err, spendrule.ErrNotFound) {
			respondError(w, http.StatusNotFound, "spend rule not found")
			return
		}
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ruleToDTO(rule))
}

func (h *Handler) updateSpendRule(w http.ResponseWriter, r *http.Request) {
	var req spendRuleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rule, problem := req.validate()
	if problem != "" {
		respondError(w, http.StatusBadRequest, problem)
		return
	}

	rule.ID = chi.URLParam(r, "ruleID")
	rule.UpdatedAt = time.Now()
	if err := h.rules.Update(r.Context(), rule); err != nil {
		if errors.Is(err, spendrule.ErrNotFound) {
			respondError(w, http.StatusNotFound, "spend rule not found")
			return
		}
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ruleToDTO(rule))
}

type createCouponRequest struct {
	Code        string `json:"code"`
	SpendRuleID string `json:"spendRuleId"`
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" || req.SpendRuleID == "" {
		respondError(w, http.StatusBadRequest, "code and spendRuleId are required")
		return
	}

	// The link must point at an existing rule at creation time. It may still
	// dangle later if the rule is removed; the checkout path degrades then.
	if _, err := h.rules.GetByID(r.Context(), req.SpendRuleID); err != nil {
		if errors.Is(err, spendrule.ErrNotFound) {
			respondError(w, http.StatusBadRequest, "spend rule not found")
			return
		}
		respondInternal(w, r, err)
		return
	}

	link := &coupon.Link{
		Code:        req.Code,
		SpendRuleID: req.SpendRuleID,
		Active:      true,
		CreatedAt:   time.Now(),
	}
	if err := h.coupons.Create(r.Context(), link); err != nil {
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"code":        link.Code,
		"spendRuleId": link.SpendRuleID,
	})
}

type createContactRequest struct {
	ShopUserID string `json:"shopUserId"`
	Email      string `json:"email"`
}

func (h *Handler) createContact(w http.ResponseWriter, r *http.Request) {
	var req createContactRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ShopUserID == "" {
		respondError(w, http.StatusBadRequest, "shopUserId is required")
		return
	}

	contactUUID, err := h.reconciler.EnsureContact(r.Context(), req.ShopUserID, req.Email)
	if err != nil {
		respondError(w, http.StatusBadGateway, "loyalty platform unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"shopUserId":  req.ShopUserID,
		"contactUuid": contactUUID,
	})
}
