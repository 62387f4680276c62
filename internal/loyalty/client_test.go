package loyalty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return c
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{APIKey: "k"})
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "https://api.example.com"})
	assert.Error(t, err)
}

func TestGetContactByShopID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			assert.Equal(t, "u42", r.URL.Query().Get("shop_user_id"))
			_ = json.NewEncoder(w).Encode(Contact{UUID: "c-1", Email: "a@b.c"})
		})

		got, err := c.GetContactByShopID(context.Background(), "u42")
		require.NoError(t, err)
		assert.Equal(t, "c-1", got.UUID)
	})

	t.Run("missing maps to sentinel", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "no such contact", http.StatusNotFound)
		})

		_, err := c.GetContactByShopID(context.Background(), "u42")
		assert.ErrorIs(t, err, ErrContactNotFound)
	})
}

func TestApplyCredits(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/credit-transactions", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "c-1", body["contact_uuid"])
		assert.Equal(t, float64(120), body["credits"])
		assert.Equal(t, "o-9", body["reference"])

		_ = json.NewEncoder(w).Encode(CreditTransaction{UUID: "tx-1", Credits: 120})
	})

	tx, err := c.ApplyCredits(context.Background(), "c-1", 120, "o-9")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", tx.UUID)
}

func TestRefundCreditsFull(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/credit-transactions/tx-1/reversal", r.URL.Path)
			_ = json.NewEncoder(w).Encode(Withdrawal{UUID: "wd-1"})
		})

		wd, err := c.RefundCreditsFull(context.Background(), "tx-1")
		require.NoError(t, err)
		assert.Equal(t, "wd-1", wd.UUID)
	})

	t.Run("server error surfaces", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})

		_, err := c.RefundCreditsFull(context.Background(), "tx-1")
		assert.Error(t, err)
	})
}
