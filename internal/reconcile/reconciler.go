// Package reconcile keeps order credit state in sync with the external
// loyalty platform: credits are issued once when an order completes and
// withdrawn at most once when it is fully refunded.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/leatlabs/loyalty-engine/internal/domain/contact"
	"github.com/leatlabs/loyalty-engine/internal/domain/earnrule"
	"github.com/leatlabs/loyalty-engine/internal/domain/order"
	"github.com/leatlabs/loyalty-engine/internal/loyalty"
)

// PlatformClient is the subset of the loyalty API the reconciler calls.
// *loyalty.Client satisfies it.
type PlatformClient interface {
	GetContactByShopID(ctx context.Context, shopUserID string) (*loyalty.Contact, error)
	CreateContact(ctx context.Context, shopUserID, email string) (*loyalty.Contact, error)
	ApplyCredits(ctx context.Context, contactUUID string, credits int64, orderID string) (*loyalty.CreditTransaction, error)
	RefundCreditsFull(ctx context.Context, transactionUUID string) (*loyalty.Withdrawal, error)
}

// Reconciler drives the per-order credit state machine:
//
//	NoCreditsIssued -> CreditsIssued -> CreditsWithdrawn (terminal)
//
// Partial refunds deliberately stay in CreditsIssued with an order note
// asking for manual reversal; automating partial withdrawal is out of scope.
//
// Platform failures never propagate: they are logged and recorded as order
// notes for human follow-up, since the triggering webhooks have no caller
// that could act on an error. Storage failures do propagate.
type Reconciler struct {
	orders    order.Repository
	notes     order.NoteRepository
	contacts  contact.Repository
	earnRules earnrule.Repository
	platform  PlatformClient
	lg        *zap.Logger
	now       func() time.Time
}

// New creates a Reconciler.
func New(
	orders order.Repository,
	notes order.NoteRepository,
	contacts contact.Repository,
	earnRules earnrule.Repository,
	platform PlatformClient,
	lg *zap.Logger,
) *Reconciler {
	return &Reconciler{
		orders:    orders,
		notes:     notes,
		contacts:  contacts,
		earnRules: earnRules,
		platform:  platform,
		lg:        lg,
		now:       time.Now,
	}
}

// IssueCredits grants loyalty credits for a completed order. Replayed
// webhooks are no-ops: an order with a stored transaction UUID is already in
// CreditsIssued.
func (r *Reconciler) IssueCredits(ctx context.Context, orderID, email string) error {
	o, err := r.orders.GetByID(ctx, orderID)
	if err != nil {
		return errors.Wrap(err, "load order")
	}
	if o.CreditState() != order.NoCreditsIssued {
		r.lg.Debug("credits already issued", zap.String("order_id", orderID))
		return nil
	}

	rule, err := r.earnRules.FindActive(ctx, r.now())
	if err != nil {
		if errors.Is(err, earnrule.ErrNotFound) {
			r.lg.Debug("no active earn rule", zap.String("order_id", orderID))
			return nil
		}
		return errors.Wrap(err, "find earn rule")
	}

	credits := rule.CreditsFor(o.Total)
	if credits <= 0 {
		return nil
	}

	contactUUID, err := r.ensureContact(ctx, o.ShopUserID, email)
	if err != nil {
		r.noteFailure(ctx, orderID, fmt.Sprintf("Could not resolve loyalty contact: %v", err))
		return nil
	}

	tx, err := r.platform.ApplyCredits(ctx, contactUUID, credits, o.ID)
	if err != nil {
		r.noteFailure(ctx, orderID, fmt.Sprintf("Failed to apply %d loyalty credits: %v", credits, err))
		return nil
	}

	if err := r.orders.RecordCreditIssue(ctx, o.ID, tx.UUID, contactUUID, credits); err != nil {
		return errors.Wrap(err, "record credit issue")
	}
	r.appendNote(ctx, orderID, fmt.Sprintf("Applied %d loyalty credits (transaction %s).", credits, tx.UUID))
	return nil
}

// HandleWithdrawal withdraws the order's credits in full, exactly once.
// Orders without issued credits and orders already withdrawn are no-ops.
func (r *Reconciler) HandleWithdrawal(ctx context.Context, orderID string) error {
	o, err := r.orders.GetByID(ctx, orderID)
	if err != nil {
		return errors.Wrap(err, "load order")
	}
	return r.withdraw(ctx, o)
}

// HandleRefund reconciles credits after a refund. A refund covering the full
// order total triggers the withdrawal path; anything less records a note
// asking for manual reversal and leaves the credits in place.
func (r *Reconciler) HandleRefund(ctx context.Context, orderID string, refundAmount decimal.Decimal) error {
	o, err := r.orders.GetByID(ctx, orderID)
	if err != nil {
		return errors.Wrap(err, "load order")
	}

	if refundAmount.GreaterThanOrEqual(o.Total) {
		return r.withdraw(ctx, o)
	}

	if o.CreditState() != order.CreditsIssued {
		return nil
	}
	r.lg.Warn("partial refund on order with issued credits; not withdrawing",
		zap.String("order_id", orderID),
		zap.String("refund_amount", refundAmount.String()),
		zap.Int64("credits_issued", o.CreditsIssued),
	)
	r.appendNote(ctx, orderID, fmt.Sprintf(
		"Partial refund of %s received. %d loyalty credits were issued for this order; reverse them manually in the loyalty dashboard if needed.",
		refundAmount.StringFixed(2), o.CreditsIssued,
	))
	return nil
}

func (r *Reconciler) withdraw(ctx context.Context, o *order.Order) error {
	switch o.CreditState() {
	case order.CreditsWithdrawn:
		r.lg.Debug("credits already withdrawn", zap.String("order_id", o.ID))
		return nil
	case order.NoCreditsIssued:
		return nil
	}

	claimed, err := r.orders.ClaimWithdrawal(ctx, o.ID)
	if err != nil {
		return errors.Wrap(err, "claim withdrawal")
	}
	if !claimed {
		// Another handler holds or finished the withdrawal.
		return nil
	}

	wd, err := r.platform.RefundCreditsFull(ctx, o.CreditTransactionUUID)
	if err != nil {
		if relErr := r.orders.ReleaseWithdrawal(ctx, o.ID); relErr != nil {
			r.lg.Error("release withdrawal claim", zap.String("order_id", o.ID), zap.Error(relErr))
		}
		r.noteFailure(ctx, o.ID, fmt.Sprintf(
			"Failed to withdraw %d loyalty credits (transaction %s): %v",
			o.CreditsIssued, o.CreditTransactionUUID, err,
		))
		return nil
	}

	if err := r.orders.CompleteWithdrawal(ctx, o.ID, wd.UUID); err != nil {
		return errors.Wrap(err, "complete withdrawal")
	}
	r.appendNote(ctx, o.ID, fmt.Sprintf(
		"Withdrew %d loyalty credits (withdrawal %s).", o.CreditsIssued, wd.UUID,
	))
	return nil
}

// EnsureContact resolves or creates the loyalty contact mapping for a shop
// user and returns the platform contact UUID. Admin tooling uses this to
// pre-link contacts before any order completes.
func (r *Reconciler) EnsureContact(ctx context.Context, shopUserID, email string) (string, error) {
	return r.ensureContact(ctx, shopUserID, email)
}

// ensureContact resolves the loyalty contact for a shop user, creating it on
// the platform when it does not exist yet. The local mapping is a cache.
func (r *Reconciler) ensureContact(ctx context.Context, shopUserID, email string) (string, error) {
	if cached, err := r.contacts.FindByShopUserID(ctx, shopUserID); err == nil {
		return cached.UUID, nil
	} else if !errors.Is(err, contact.ErrNotFound) {
		return "", errors.Wrap(err, "lookup contact mapping")
	}

	remote, err := r.platform.GetContactByShopID(ctx, shopUserID)
	if errors.Is(err, loyalty.ErrContactNotFound) {
		remote, err = r.platform.CreateContact(ctx, shopUserID, email)
	}
	if err != nil {
		return "", err
	}

	if err := r.contacts.Upsert(ctx, &contact.Contact{ShopUserID: shopUserID, UUID: remote.UUID}); err != nil {
		return "", errors.Wrap(err, "store contact mapping")
	}
	return remote.UUID, nil
}

func (r *Reconciler) noteFailure(ctx context.Context, orderID, note string) {
	r.lg.Warn("loyalty platform call failed",
		zap.String("order_id", orderID),
		zap.String("note", note),
	)
	r.appendNote(ctx, orderID, note)
}

func (r *Reconciler) appendNote(ctx context.Context, orderID, note string) {
	if err := r.notes.Append(ctx, orderID, note); err != nil {
		r.lg.Error("append order note", zap.String("order_id", orderID), zap.Error(err))
	}
}
