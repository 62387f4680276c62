package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// CreditState is derived from the stored credit fields, never persisted as
// its own column.
type CreditState string

const (
	// NoCreditsIssued means the order has no loyalty credit transaction yet.
	NoCreditsIssued CreditState = "no_credits_issued"
	// CreditsIssued means credits were granted and the transaction UUID is stored.
	CreditsIssued CreditState = "credits_issued"
	// CreditsWithdrawn is terminal: the withdrawal UUID is stored and further
	// withdrawal attempts are no-ops.
	CreditsWithdrawn CreditState = "credits_withdrawn"
)

// Order is the loyalty engine's view of a store order: enough to issue
// credits on completion and reverse them on refund. The credit fields are an
// append-only audit trail on the order row.
type Order struct {
	ID         string
	ShopUserID string
	// ContactUUID is the loyalty platform contact the credits were applied
	// to. Empty until credits are issued.
	ContactUUID string
	Total       decimal.Decimal
	Status      string
	// CreditTransactionUUID references the external credit grant. Empty means
	// no credits issued.
	CreditTransactionUUID string
	CreditsIssued         int64
	// CreditsWithdrawnUUID references the external reversal. Empty means not
	// withdrawn.
	CreditsWithdrawnUUID string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// CreditState derives the reconciliation state from the stored fields.
// A missing field means "not yet processed", never zero.
func (o *Order) CreditState() CreditState {
	switch {
	case o.CreditsWithdrawnUUID != "":
		return CreditsWithdrawn
	case o.CreditTransactionUUID != "":
		return CreditsIssued
	default:
		return NoCreditsIssued
	}
}

// Note is an append-only, admin-visible audit note on an order.
type Note struct {
	ID        int64
	OrderID   string
	Note      string
	CreatedAt time.Time
}

// Repository provides persistence for orders and their credit audit fields.
//
// ClaimWithdrawal / ReleaseWithdrawal / CompleteWithdrawal implement an
// atomic claim that serializes withdrawal attempts: Claim succeeds for at
// most one caller until Release resets it or Complete makes the withdrawal
// permanent.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Order, error)
	Create(ctx context.Context, o *Order) error
	// RecordCreditIssue stores the external transaction UUID, the credit
	// count, and the contact the credits were applied to.
	RecordCreditIssue(ctx context.Context, id, transactionUUID, contactUUID string, credits int64) error
	ClaimWithdrawal(ctx context.Context, id string) (bool, error)
	ReleaseWithdrawal(ctx context.Context, id string) error
	CompleteWithdrawal(ctx context.Context, id, withdrawalUUID string) error
}

// NoteRepository appends and lists order audit notes.
type NoteRepository interface {
	Append(ctx context.Context, orderID, note string) error
	ListByOrder(ctx context.Context, orderID string) ([]Note, error)
}
