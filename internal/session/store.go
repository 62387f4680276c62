// Package session stores carts in Redis for the lifetime of a shopping
// session. Saves are plain SETs: two concurrent requests for the same session
// race with last-write-wins semantics, exactly like the session backend the
// storefront relied on before.
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/leatlabs/loyalty-engine/internal/domain/cart"
)

const keyPrefix = "cart:"

var _ cart.Store = (*Store)(nil)

// Store implements cart.Store on Redis with a per-cart TTL.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore creates a Store. Every Save refreshes the TTL, so a session stays
// alive as long as the shopper keeps touching the cart.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// NewClient parses a Redis URL (redis://...) and returns a connected client.
func NewClient(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis URL")
	}
	return redis.NewClient(opts), nil
}

// Get loads a cart by session id. Returns cart.ErrNotFound for unknown or
// expired sessions.
func (s *Store) Get(ctx context.Context, id string) (*cart.Cart, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, cart.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get cart %s", id)
	}

	var c cart.Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, errors.Wrapf(err, "decode cart %s", id)
	}
	return &c, nil
}

// Save persists the cart and refreshes its TTL.
func (s *Store) Save(ctx context.Context, c *cart.Cart) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return errors.Wrapf(err, "encode cart %s", c.ID)
	}
	if err := s.rdb.Set(ctx, keyPrefix+c.ID, raw, s.ttl).Err(); err != nil {
		return errors.Wrapf(err, "save cart %s", c.ID)
	}
	return nil
}

// Delete removes a cart. Deleting a missing cart is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, keyPrefix+id).Err(); err != nil {
		return errors.Wrapf(err, "delete cart %s", id)
	}
	return nil
}
