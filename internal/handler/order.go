package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/leatlabs/loyalty-engine/internal/domain/order"
)

type orderCompletedRequest struct {
	ID         string  `json:"id"`
	ShopUserID string  `json:"shopUserId"`
	Email      string  `json:"email"`
	Total      float64 `json:"total"`
	Status     string  `json:"status"`
}

type refundRequest struct {
	Amount float64 `json:"amount"`
}

type orderDTO struct {
	ID                    string  `json:"id"`
	ShopUserID            string  `json:"shopUserId"`
	Total                 float64 `json:"total"`
	Status                string  `json:"status"`
	CreditState           string  `json:"creditState"`
	CreditsIssued         int64   `json:"creditsIssued"`
	CreditTransactionUUID string  `json:"creditTransactionUuid,omitempty"`
	CreditsWithdrawnUUID  string  `json:"creditsWithdrawnUuid,omitempty"`
}

func orderToDTO(o *order.Order) orderDTO {
	return orderDTO{
		ID:                    o.ID,
		ShopUserID:            o.ShopUserID,
		Total:                 o.Total.InexactFloat64(),
		Status:                o.Status,
		CreditState:           string(o.CreditState()),
		CreditsIssued:         o.CreditsIssued,
		CreditTransactionUUID: o.CreditTransactionUUID,
		CreditsWithdrawnUUID:  o.CreditsWithdrawnUUID,
	}
}

// orderCompleted ingests the store's order-completed webhook. It records the
// order and issues credits; both steps tolerate replays, so the store may
// retry the webhook freely.
func (h *Handler) orderCompleted(w http.ResponseWriter, r *http.Request) {
	var req orderCompletedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" || req.ShopUserID == "" {
		respondError(w, http.StatusBadRequest, "id and shopUserId are required")
		return
	}

	status := req.Status
	if status == "" {
		status = "completed"
	}
	now := time.Now()
	o := &order.Order{
		ID:         req.ID,
		ShopUserID: req.ShopUserID,
		Total:      decimal.NewFromFloat(req.Total),
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.orders.Create(r.Context(), o); err != nil {
		respondInternal(w, r, err)
		return
	}

	if err := h.reconciler.IssueCredits(r.Context(), req.ID, req.Email); err != nil {
		respondInternal(w, r, err)
		return
	}
	h.respondOrder(w, r, req.ID)
}

func (h *Handler) orderWithdrawal(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if err := h.reconciler.HandleWithdrawal(r.Context(), orderID); err != nil {
		if errors.Is(err, order.ErrNotFound) {
			respondError(w, http.StatusNotFound, "order not found")
			return
		}
		respondInternal(w, r, err)
		return
	}
	h.respondOrder(w, r, orderID)
}

func (h *Handler) orderRefunded(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Amount <= 0 {
		respondError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	orderID := chi.URLParam(r, "orderID")
	if err := h.reconciler.HandleRefund(r.Context(), orderID, decimal.NewFromFloat(req.Amount)); err != nil {
		if errors.Is(err, order.ErrNotFound) {
			respondError(w, http.StatusNotFound, "order not found")
			return
		}
		respondInternal(w, r, err)
		return
	}
	h.respondOrder(w, r, orderID)
}

type orderNoteDTO struct {
	ID        int64     `json:"id"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *Handler) listOrderNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.notes.ListByOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	out := make([]orderNoteDTO, 0, len(notes))
	for _, n := range notes {
		out = append(out, orderNoteDTO{ID: n.ID, Note: n.Note, CreatedAt: n.CreatedAt})
	}
	respondJSON(w, http.StatusOK, out)
}

// respondOrder reloads the order so the response reflects the credit fields
// written during reconciliation.
func (h *Handler) respondOrder(w http.ResponseWriter, r *http.Request, orderID string) {
	o, err := h.orders.GetByID(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			respondError(w, http.StatusNotFound, "order not found")
			return
		}
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orderToDTO(o))
}
