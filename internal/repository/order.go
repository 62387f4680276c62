package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leatlabs/loyalty-engine/internal/domain/order"
)

const (
	getOrderByIDSQL = `SELECT id, shop_user_id, contact_uuid, total, status,
		credit_transaction_uuid, credits_issued, credits_withdrawn_uuid, created_at, updated_at
		FROM orders WHERE id = $1`

	createOrderSQL = `INSERT INTO orders (id, shop_user_id, total, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`

	recordCreditIssueSQL = `UPDATE orders SET credit_transaction_uuid = $2, contact_uuid = $3,
		credits_issued = $4, updated_at = now()
		WHERE id = $1 AND credit_transaction_uuid = ''`

	// The claim is the atomic compare-and-set that serializes withdrawal
	// attempts across concurrent handlers.
	claimWithdrawalSQL = `UPDATE orders SET withdrawal_claimed_at = now(), updated_at = now()
		WHERE id = $1 AND withdrawal_claimed_at IS NULL AND credits_withdrawn_uuid = ''`

	releaseWithdrawalSQL = `UPDATE orders SET withdrawal_claimed_at = NULL, updated_at = now()
		WHERE id = $1 AND credits_withdrawn_uuid = ''`

	completeWithdrawalSQL = `UPDATE orders SET credits_withdrawn_uuid = $2, updated_at = now()
		WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID returns a single order. Returns order.ErrNotFound for unknown ids.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (order.Order, error) {
		var o order.Order
		err := row.Scan(
			&o.ID, &o.ShopUserID, &o.ContactUUID, &o.Total, &o.Status,
			&o.CreditTransactionUUID, &o.CreditsIssued, &o.CreditsWithdrawnUUID,
			&o.CreatedAt, &o.UpdatedAt,
		)
		return o, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// Create persists an order record. Replayed webhooks are tolerated: an
// existing id is left untouched.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := r.pool.Exec(ctx, createOrderSQL, o.ID, o.ShopUserID, o.Total, o.Status)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// RecordCreditIssue stores the credit transaction once; a second call for the
// same order is a no-op.
func (r *OrderRepository) RecordCreditIssue(ctx context.Context, id, transactionUUID, contactUUID string, credits int64) error {
	_, err := r.pool.Exec(ctx, recordCreditIssueSQL, id, transactionUUID, contactUUID, credits)
	if err != nil {
		return fmt.Errorf("recording credit issue for order %q: %w", id, err)
	}
	return nil
}

// ClaimWithdrawal atomically claims the withdrawal for this order. Returns
// false when another handler holds the claim or the withdrawal is done.
func (r *OrderRepository) ClaimWithdrawal(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, claimWithdrawalSQL, id)
	if err != nil {
		return false, fmt.Errorf("claiming withdrawal for order %q: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseWithdrawal resets the claim after a failed platform call so a later
// trigger can retry.
func (r *OrderRepository) ReleaseWithdrawal(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, releaseWithdrawalSQL, id)
	if err != nil {
		return fmt.Errorf("releasing withdrawal claim for order %q: %w", id, err)
	}
	return nil
}

// CompleteWithdrawal stores the withdrawal UUID, making the state terminal.
func (r *OrderRepository) CompleteWithdrawal(ctx context.Context, id, withdrawalUUID string) error {
	_, err := r.pool.Exec(ctx, completeWithdrawalSQL, id, withdrawalUUID)
	if err != nil {
		return fmt.Errorf("completing withdrawal for order %q: %w", id, err)
	}
	return nil
}

const (
	appendOrderNoteSQL = `INSERT INTO order_notes (order_id, note) VALUES ($1, $2)`

	listOrderNotesSQL = `SELECT id, order_id, note, created_at
		FROM order_notes WHERE order_id = $1 ORDER BY id`
)

var _ order.NoteRepository = (*OrderNoteRepository)(nil)

// OrderNoteRepository implements order.NoteRepository backed by PostgreSQL.
type OrderNoteRepository struct {
	pool *pgxpool.Pool
}

// NewOrderNoteRepository returns an OrderNoteRepository that uses the given pool.
func NewOrderNoteRepository(pool *pgxpool.Pool) *OrderNoteRepository {
	return &OrderNoteRepository{pool: pool}
}

// Append adds an audit note to an order.
func (r *OrderNoteRepository) Append(ctx context.Context, orderID, note string) error {
	_, err := r.pool.Exec(ctx, appendOrderNoteSQL, orderID, note)
	if err != nil {
		return fmt.Errorf("appending note to order %q: %w", orderID, err)
	}
	return nil
}

// ListByOrder returns all notes for an order, oldest first.
func (r *OrderNoteRepository) ListByOrder(ctx context.Context, orderID string) ([]order.Note, error) {
	rows, err := r.pool.Query(ctx, listOrderNotesSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing notes for order %q: %w", orderID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Note, error) {
		var n order.Note
		err := row.Scan(&n.ID, &n.OrderID, &n.Note, &n.CreatedAt)
		return n, err
	})
}
