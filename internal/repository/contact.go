package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leatlabs/loyalty-engine/internal/domain/contact"
)

const (
	getContactByShopUserSQL = `SELECT shop_user_id, contact_uuid
		FROM contacts WHERE shop_user_id = $1`

	upsertContactSQL = `INSERT INTO contacts (shop_user_id, contact_uuid)
		VALUES ($1, $2)
		ON CONFLICT (shop_user_id) DO UPDATE SET contact_uuid = EXCLUDED.contact_uuid`
)

var _ contact.Repository = (*ContactRepository)(nil)

// ContactRepository implements contact.Repository backed by PostgreSQL.
type ContactRepository struct {
	pool *pgxpool.Pool
}

// NewContactRepository returns a ContactRepository that uses the given pool.
func NewContactRepository(pool *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{pool: pool}
}

// FindByShopUserID returns the contact mapping for a shop user.
// Returns contact.ErrNotFound when no mapping exists.
func (r *ContactRepository) FindByShopUserID(ctx context.Context, shopUserID string) (*contact.Contact, error) {
	var c contact.Contact
	err := r.pool.QueryRow(ctx, getContactByShopUserSQL, shopUserID).Scan(&c.ShopUserID, &c.UUID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contact.ErrNotFound
		}
		return nil, fmt.Errorf("finding contact for shop user %q: %w", shopUserID, err)
	}
	return &c, nil
}

// Upsert stores or refreshes a contact mapping.
func (r *ContactRepository) Upsert(ctx context.Context, c *contact.Contact) error {
	_, err := r.pool.Exec(ctx, upsertContactSQL, c.ShopUserID, c.UUID)
	if err != nil {
		return fmt.Errorf("upserting contact for shop user %q: %w", c.ShopUserID, err)
	}
	return nil
}
