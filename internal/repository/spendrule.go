package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/leatlabs/loyalty-engine/internal/domain/spendrule"
)

const (
	getSpendRuleByIDSQL = `SELECT id, title, rule_type, discount_kind, discount_value,
		selected_products, status, starts_at, expires_at, created_at, updated_at
		FROM spend_rules WHERE id = $1`

	listSpendRulesSQL = `SELECT id, title, rule_type, discount_kind, discount_value,
		selected_products, status, starts_at, expires_at, created_at, updated_at
		FROM spend_rules ORDER BY created_at`

	createSpendRuleSQL = `INSERT INTO spend_rules
		(id, title, rule_type, discount_kind, discount_value, selected_products, status, starts_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	updateSpendRuleSQL = `UPDATE spend_rules SET title = $2, rule_type = $3, discount_kind = $4,
		discount_value = $5, selected_products = $6, status = $7, starts_at = $8, expires_at = $9,
		updated_at = now()
		WHERE id = $1`
)

var _ spendrule.Repository = (*SpendRuleRepository)(nil)

// SpendRuleRepository implements spendrule.Repository backed by PostgreSQL.
type SpendRuleRepository struct {
	pool *pgxpool.Pool
}

// NewSpendRuleRepository returns a SpendRuleRepository that uses the given pool.
func NewSpendRuleRepository(pool *pgxpool.Pool) *SpendRuleRepository {
	return &SpendRuleRepository{pool: pool}
}

// GetByID returns a single spend rule. Returns spendrule.ErrNotFound when no
// rule exists for the id.
func (r *SpendRuleRepository) GetByID(ctx context.Context, id string) (*spendrule.Rule, error) {
	rows, err := r.pool.Query(ctx, getSpendRuleByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting spend rule %q: %w", id, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanSpendRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, spendrule.ErrNotFound
		}
		return nil, fmt.Errorf("getting spend rule %q: %w", id, err)
	}
	return &rule, nil
}

// List returns all spend rules ordered by creation time.
func (r *SpendRuleRepository) List(ctx context.Context) ([]spendrule.Rule, error) {
	rows, err := r.pool.Query(ctx, listSpendRulesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing spend rules: %w", err)
	}
	return pgx.CollectRows(rows, scanSpendRule)
}

// Create persists a new spend rule.
func (r *SpendRuleRepository) Create(ctx context.Context, rule *spendrule.Rule) error {
	products, err := json.Marshal(rule.SelectedProducts)
	if err != nil {
		return fmt.Errorf("marshaling selected products: %w", err)
	}

	_, err = r.pool.Exec(ctx, createSpendRuleSQL,
		rule.ID, rule.Title, string(rule.Type), string(rule.DiscountKind),
		rule.DiscountValue, products, string(rule.Status), rule.StartsAt, rule.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("creating spend rule %q: %w", rule.ID, err)
	}
	return nil
}

// Update overwrites an existing spend rule.
func (r *SpendRuleRepository) Update(ctx context.Context, rule *spendrule.Rule) error {
	products, err := json.Marshal(rule.SelectedProducts)
	if err != nil {
		return fmt.Errorf("marshaling selected products: %w", err)
	}

	tag, err := r.pool.Exec(ctx, updateSpendRuleSQL,
		rule.ID, rule.Title, string(rule.Type), string(rule.DiscountKind),
		rule.DiscountValue, products, string(rule.Status), rule.StartsAt, rule.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("updating spend rule %q: %w", rule.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return spendrule.ErrNotFound
	}
	return nil
}

func scanSpendRule(row pgx.CollectableRow) (spendrule.Rule, error) {
	var (
		rule         spendrule.Rule
		ruleType     string
		discountKind string
		value        decimal.Decimal
		products     []byte
		status       string
		startsAt     *time.Time
		expiresAt    *time.Time
	)
	err := row.Scan(
		&rule.ID, &rule.Title, &ruleType, &discountKind, &value,
		&products, &status, &startsAt, &expiresAt, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return rule, err
	}

	rule.Type = spendrule.Type(ruleType)
	rule.DiscountKind = spendrule.DiscountKind(discountKind)
	rule.DiscountValue = value
	rule.Status = spendrule.Status(status)
	rule.StartsAt = startsAt
	rule.ExpiresAt = expiresAt
	if err := json.Unmarshal(products, &rule.SelectedProducts); err != nil {
		return rule, fmt.Errorf("unmarshaling selected products: %w", err)
	}
	return rule, nil
}
