// Package fetch provides the HTTP page fetcher used by the monitoring cycle
// to re-check known listing URLs. Discovery crawling lives in the crawler
// adapter; this fetcher only does targeted single-page GETs with bounded
// retries.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/flipscout/flipscout/internal/core"
)

const maxBodyBytes = 4 << 20

// Config captures the fetcher's HTTP behaviour.
type Config struct {
	UserAgent       string
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	Client          *http.Client
}

// Fetcher retrieves listing pages over HTTP with capped exponential backoff
// on transient failures.
type Fetcher struct {
	userAgent       string
	maxRetries      int
	retryBackoff    time.Duration
	retryBackoffMax time.Duration
	client          *http.Client
}

// NewFetcher builds a Fetcher from cfg, filling zero values with defaults.
func NewFetcher(cfg Config) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	backoffMax := cfg.RetryBackoffMax
	if backoffMax <= 0 {
		backoffMax = 10 * time.Second
	}

	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Fetcher{
		userAgent:       strings.TrimSpace(cfg.UserAgent),
		maxRetries:      retries,
		retryBackoff:    backoff,
		retryBackoffMax: backoffMax,
		client:          hc,
	}
}

// Fetch retrieves url, retrying transient failures up to the configured
// limit. The returned page carries the raw body for the extraction engine.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*core.FetchedPage, error) {
	attempts := f.maxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		page, err := f.fetchOnce(ctx, url)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if !Retryable(err) || attempt == attempts {
			break
		}
		if waitErr := f.wait(ctx, attempt); waitErr != nil {
			return nil, waitErr
		}
	}
	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (*core.FetchedPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, classifyStatus(resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, ErrConnection{Err: fmt.Errorf("read body: %w", err)}
	}

	return &core.FetchedPage{
		URL:        url,
		StatusCode: resp.StatusCode,
		Body:       body,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// wait sleeps for base * 2^(attempt-1), capped, honoring cancellation.
func (f *Fetcher) wait(ctx context.Context, attempt int) error {
	delay := f.retryBackoff * time.Duration(1<<(attempt-1))
	if delay > f.retryBackoffMax {
		delay = f.retryBackoffMax
	}

	timer := time.NewTimer(delay)
	select {
	case <-ctx.Done():
		if !timer.Stop() {
			<-timer.C
		}
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}
	return ErrConnection{Err: err}
}

func classifyStatus(statusCode int, url string) error {
	wrapped := fmt.Errorf("http status %d for %s", statusCode, url)
	switch {
	case statusCode == http.StatusForbidden:
		return ErrForbidden{Err: wrapped}
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		return ErrNotFound{Err: wrapped}
	case statusCode == http.StatusTooManyRequests:
		return ErrRateLimited{Err: wrapped}
	case statusCode >= 500:
		return ErrServer{Err: wrapped}
	default:
		return wrapped
	}
}
