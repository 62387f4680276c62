// Package loyalty implements the HTTP client for the external loyalty
// platform. Every call is a single synchronous request with an explicit
// timeout: no retries, no circuit breaking. Callers must treat each call as
// "may fail, check the error".
package loyalty

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
)

// ErrContactNotFound is returned when the platform has no contact for the
// given shop user id.
var ErrContactNotFound = errors.New("contact not found")

const defaultTimeout = 10 * time.Second

// maxResponseBytes caps how much of an error body is read for diagnostics.
const maxResponseBytes = 1 << 20

// Config holds the connection settings for the loyalty platform API.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds each request. Defaults to 10s when zero.
	Timeout time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client is a thin wrapper over the loyalty platform's REST API.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// New creates a Client with the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("loyalty API base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("loyalty API key is required")
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		http:    hc,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}, nil
}

// Contact is a loyalty platform contact.
type Contact struct {
	UUID  string `json:"uuid"`
	Email string `json:"email"`
}

// CreditTransaction references an applied credit grant.
type CreditTransaction struct {
	UUID    string `json:"uuid"`
	Credits int64  `json:"credits"`
}

// Withdrawal references a completed credit reversal.
type Withdrawal struct {
	UUID string `json:"uuid"`
}

// GetContactByShopID looks up a contact by the store's user id.
// Returns ErrContactNotFound when the platform does not know the user.
func (c *Client) GetContactByShopID(ctx context.Context, shopUserID string) (*Contact, error) {
	path := "/api/v1/contacts?shop_user_id=" + url.QueryEscape(shopUserID)

	var out Contact
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil, ErrContactNotFound
		}
		return nil, errors.Wrapf(err, "get contact for shop user %s", shopUserID)
	}
	return &out, nil
}

// CreateContact registers a new contact for the given store user.
func (c *Client) CreateContact(ctx context.Context, shopUserID, email string) (*Contact, error) {
	body := map[string]string{
		"shop_user_id": shopUserID,
		"email":        email,
	}

	var out Contact
	if err := c.do(ctx, http.MethodPost, "/api/v1/contacts", body, &out); err != nil {
		return nil, errors.Wrapf(err, "create contact for shop user %s", shopUserID)
	}
	return &out, nil
}

// ApplyCredits grants credits to a contact and returns the transaction that
// a later reversal must reference.
func (c *Client) ApplyCredits(ctx context.Context, contactUUID string, credits int64, orderID string) (*CreditTransaction, error) {
	body := map[string]any{
		"contact_uuid": contactUUID,
		"credits":      credits,
		"reference":    orderID,
	}

	var out CreditTransaction
	if err := c.do(ctx, http.MethodPost, "/api/v1/credit-transactions", body, &out); err != nil {
		return nil, errors.Wrapf(err, "apply %d credits to contact %s", credits, contactUUID)
	}
	return &out, nil
}

// RefundCreditsFull reverses a credit transaction in full.
func (c *Client) RefundCreditsFull(ctx context.Context, transactionUUID string) (*Withdrawal, error) {
	path := "/api/v1/credit-transactions/" + url.PathEscape(transactionUUID) + "/reversal"

	var out Withdrawal
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &out); err != nil {
		return nil, errors.Wrapf(err, "refund credit transaction %s", transactionUUID)
	}
	return &out, nil
}

// statusError carries a non-2xx response for sentinel mapping by callers.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return "unexpected status " + http.StatusText(e.code) + ": " + e.body
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request body")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "execute request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		return &statusError{code: resp.StatusCode, body: string(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
