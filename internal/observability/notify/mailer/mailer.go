// Package mailer delivers alert notifications through an HTTP mail API.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flipscout/flipscout/internal/core"
)

// Config captures the subset of mail API behaviour we need.
type Config struct {
	EndpointURL string
	APIKey      string
	From        string
	To          []string
	Timeout     time.Duration
	RetryLimit  int
	Client      *http.Client
}

// Client posts alert messages to an HTTP mail API. It implements
// core.AlertTransport.
type Client struct {
	endpointURL string
	apiKey      string
	from        string
	to          []string
	retryLimit  int
	client      *http.Client
}

// NewClient builds a mail client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	endpointURL := strings.TrimSpace(cfg.EndpointURL)
	if endpointURL == "" {
		return nil, errors.New("mailer endpoint url is required")
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("at least one recipient is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	retries := cfg.RetryLimit
	if retries < 0 {
		retries = 0
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = "alerts@flipscout.local"
	}

	to := make([]string, 0, len(cfg.To))
	for _, addr := range cfg.To {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			to = append(to, addr)
		}
	}
	if len(to) == 0 {
		return nil, errors.New("at least one recipient is required")
	}

	return &Client{
		endpointURL: endpointURL,
		apiKey:      strings.TrimSpace(cfg.APIKey),
		from:        from,
		to:          to,
		retryLimit:  retries,
		client:      hc,
	}, nil
}

// Send posts one alert message, retrying failures with linear backoff.
func (c *Client) Send(ctx context.Context, msg core.AlertMessage) error {
	if strings.TrimSpace(msg.Subject) == "" {
		return errors.New("alert subject is required")
	}

	body, err := json.Marshal(map[string]any{
		"from":    c.from,
		"to":      c.to,
		"subject": msg.Subject,
		"text":    msg.Body,
	})
	if err != nil {
		return fmt.Errorf("encode mail payload: %w", err)
	}

	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		err = c.post(ctx, body)
		if err == nil {
			return nil
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
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return lastErr
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("mail request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		closeErr := resp.Body.Close()
		if readErr != nil {
			return errors.Join(
				fmt.Errorf("read mail error response: %w", readErr),
				closeErr,
			)
		}
		if closeErr != nil {
			return fmt.Errorf("close response body: %w", closeErr)
		}
		return fmt.Errorf("mail api %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("drain mail response body: %w", err)
	}
	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}
	return nil
}
