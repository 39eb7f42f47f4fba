// Package wallet is the client for the custodial wallet service. Wallet
// provisioning is best-effort: callers treat any error here as a degraded
// registration, never a failed one.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

var (
	ErrNotFound    = errors.New("wallet: no wallet for owner")
	ErrConflict    = errors.New("wallet: wallet already exists")
	ErrUnavailable = errors.New("wallet: service unavailable")
)

// Wallet is a custodial wallet owned by one platform user.
type Wallet struct {
	Address  string `json:"address"`
	OwnerRef string `json:"owner_ref"`
}

// Client talks to the wallet service behind a circuit breaker, so a wallet
// outage degrades registrations quickly instead of stacking up timeouts.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*Wallet]
}

func NewClient(baseURL string) *Client {
	settings := gobreaker.Settings{
		Name:    "wallet",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Domain outcomes are not circuit failures.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict)
		},
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker:    gobreaker.NewCircuitBreaker[*Wallet](settings),
	}
}

// GetByOwner retrieves the wallet linked to a user reference.
func (c *Client) GetByOwner(ctx context.Context, ownerRef string) (*Wallet, error) {
	return c.breaker.Execute(func() (*Wallet, error) {
		return c.do(ctx, http.MethodGet, "/v1/wallets/owner/"+ownerRef, nil)
	})
}

// Create provisions a wallet for a user reference.
func (c *Client) Create(ctx context.Context, ownerRef string) (*Wallet, error) {
	body := map[string]string{"owner_ref": ownerRef}
	return c.breaker.Execute(func() (*Wallet, error) {
		return c.do(ctx, http.MethodPost, "/v1/wallets", body)
	})
}

// GetOrCreate is the idempotent provisioning sequence: retrieve, create on
// not-found, and re-retrieve when the create raced another request.
func (c *Client) GetOrCreate(ctx context.Context, ownerRef string) (*Wallet, error) {
	w, err := c.GetByOwner(ctx, ownerRef)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	w, err = c.Create(ctx, ownerRef)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrConflict) {
		return nil, err
	}

	return c.GetByOwner(ctx, ownerRef)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*Wallet, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = strings.NewReader(string(raw))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var w Wallet
		if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return &w, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusConflict:
		return nil, ErrConflict
	default:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrUnavailable, resp.StatusCode, string(raw))
	}
}
