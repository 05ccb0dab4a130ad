// Package oracle provides the HTTP client for the marketplace pricing
// oracle, the external API that answers current sale price and fees for a
// marketplace product.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flipscout/flipscout/internal/core"
)

// ErrUnknownProduct is returned when the oracle has no pricing for the
// requested marketplace ID.
var ErrUnknownProduct = errors.New("pricing oracle: unknown product")

// Config captures the subset of oracle API behaviour we need.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client queries the pricing oracle over HTTP. It implements
// core.PricingOracle.
type Client struct {
	baseURL    string
	apiKey     string
	retryLimit int
	client     *http.Client
}

// NewClient builds an oracle client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("oracle base url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	retries := cfg.RetryLimit
	if retries < 0 {
		retries = 0
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		retryLimit: retries,
		client:     hc,
	}, nil
}

type quoteResponse struct {
	MarketplaceID string  `json:"marketplace_id"`
	Price         float64 `json:"price"`
	Fees          float64 `json:"fees"`
}

// Quote fetches the current marketplace price and fees for a product.
// Transient failures are retried with linear backoff; an unknown product is
// reported as ErrUnknownProduct and never retried.
func (c *Client) Quote(ctx context.Context, marketplaceID string) (*core.PricingQuote, error) {
	marketplaceID = strings.TrimSpace(marketplaceID)
	if marketplaceID == "" {
		return nil, errors.New("marketplace id is required")
	}

	endpoint := c.baseURL + "/v1/pricing/" + url.PathEscape(marketplaceID)

	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		quote, err := c.fetchQuote(ctx, endpoint)
		if err == nil {
			quote.MarketplaceID = marketplaceID
			return quote, nil
		}
		if errors.Is(err, ErrUnknownProduct) {
			return nil, err
		}
		lastErr = err

		if attempt < attempts-1 {
			// Simple linear backoff to avoid thundering retries.
			delay := time.Duration(attempt+1) * 200 * time.Millisecond
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil, lastErr
}

func (c *Client) fetchQuote(ctx context.Context, endpoint string) (*core.PricingQuote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create oracle request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrUnknownProduct
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("oracle %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	var payload quoteResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&payload); decodeErr != nil {
		return nil, fmt.Errorf("decode oracle response: %w", decodeErr)
	}
	if payload.Price < 0 || payload.Fees < 0 {
		return nil, fmt.Errorf("oracle returned negative pricing for %s", payload.MarketplaceID)
	}

	return &core.PricingQuote{
		Price:       payload.Price,
		Fees:        payload.Fees,
		RetrievedAt: time.Now().UTC(),
	}, nil
}
