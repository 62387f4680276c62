package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leatlabs/loyalty-engine/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, spend_rule_id, active, created_at
		FROM coupons WHERE UPPER(code) = UPPER($1)`

	createCouponSQL = `INSERT INTO coupons (code, spend_rule_id, active)
		VALUES ($1, $2, $3)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon link by its code (case-insensitive).
// Returns coupon.ErrNotFound when the code is unknown.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Link, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	link, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (coupon.Link, error) {
		var l coupon.Link
		err := row.Scan(&l.Code, &l.SpendRuleID, &l.Active, &l.CreatedAt)
		return l, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &link, nil
}

// Create persists a new coupon link.
func (r *CouponRepository) Create(ctx context.Context, link *coupon.Link) error {
	_, err := r.pool.Exec(ctx, createCouponSQL, link.Code, link.SpendRuleID, link.Active)
	if err != nil {
		return fmt.Errorf("creating coupon %q: %w", link.Code, err)
	}
	return nil
}
