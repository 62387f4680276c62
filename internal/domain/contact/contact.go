// Package contact maps shop user ids to loyalty platform contact UUIDs so the
// reconciler does not round-trip to the external service on every order.
package contact

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no mapping exists for a shop user id.
var ErrNotFound = errors.New("contact not found")

// Contact links a store user to their loyalty platform identity.
type Contact struct {
	ShopUserID string
	UUID       string
}

// Repository provides persistence for contact mappings.
type Repository interface {
	FindByShopUserID(ctx context.Context, shopUserID string) (*Contact, error)
	Upsert(ctx context.Context, c *Contact) error
}
