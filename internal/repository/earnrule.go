package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/leatlabs/loyalty-engine/internal/domain/earnrule"
)

// The newest active rule inside its validity window wins.
const findActiveEarnRuleSQL = `SELECT id, title, credits_per_unit, status, starts_at, expires_at
	FROM earn_rules
	WHERE status = 'active'
	  AND (starts_at IS NULL OR starts_at <= $1)
	  AND (expires_at IS NULL OR expires_at >= $1)
	ORDER BY created_at DESC
	LIMIT 1`

var _ earnrule.Repository = (*EarnRuleRepository)(nil)

// EarnRuleRepository implements earnrule.Repository backed by PostgreSQL.
type EarnRuleRepository struct {
	pool *pgxpool.Pool
}

// NewEarnRuleRepository returns an EarnRuleRepository that uses the given pool.
func NewEarnRuleRepository(pool *pgxpool.Pool) *EarnRuleRepository {
	return &EarnRuleRepository{pool: pool}
}

// FindActive returns the earn rule in effect at the given time.
// Returns earnrule.ErrNotFound when none applies.
func (r *EarnRuleRepository) FindActive(ctx context.Context, at time.Time) (*earnrule.Rule, error) {
	rows, err := r.pool.Query(ctx, findActiveEarnRuleSQL, at)
	if err != nil {
		return nil, fmt.Errorf("finding active earn rule: %w", err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (earnrule.Rule, error) {
		var (
			er   earnrule.Rule
			rate decimal.Decimal
		)
		err := row.Scan(&er.ID, &er.Title, &rate, &er.Status, &er.StartsAt, &er.ExpiresAt)
		er.CreditsPerUnit = rate
		return er, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, earnrule.ErrNotFound
		}
		return nil, fmt.Errorf("finding active earn rule: %w", err)
	}
	return &rule, nil
}
