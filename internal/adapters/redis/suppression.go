// Package redis provides Redis-backed adapters for the arbitrage pipeline.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

const defaultLocalCacheSize = 8192

// SuppressionStore is the alert dedup fast path: a process-local expiring
// LRU backed by an optional shared Redis tier. Both tiers are best-effort;
// the durable alert_records table remains the source of truth, so a lost
// cache entry only costs one extra database lookup.
type SuppressionStore struct {
	client redis.UniversalClient
	prefix string
	local  *expirable.LRU[string, struct{}]
}

// Options groups the store's constructor dependencies. Client may be nil to
// run with the local tier only.
type Options struct {
	Client         redis.UniversalClient
	Prefix         string
	LocalCacheSize int
	LocalTTL       time.Duration
}

// NewSuppressionStore creates a suppression store from opts.
func NewSuppressionStore(opts Options) *SuppressionStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "alert-seen:"
	}

	size := opts.LocalCacheSize
	if size <= 0 {
		size = defaultLocalCacheSize
	}

	return &SuppressionStore{
		client: opts.Client,
		prefix: prefix,
		local:  expirable.NewLRU[string, struct{}](size, nil, opts.LocalTTL),
	}
}

// Seen reports whether the product was marked inside the suppression window.
// The local tier answers first; Redis is consulted only on a local miss.
func (s *SuppressionStore) Seen(ctx context.Context, productID string) (bool, error) {
	if productID == "" {
		return false, nil
	}
	if _, ok := s.local.Get(productID); ok {
		return true, nil
	}
	if s.client == nil {
		return false, nil
	}

	n, err := s.client.Exists(ctx, s.prefix+productID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// MarkSeen records the product in both tiers. The Redis write uses SETNX so
// a replay never extends an existing suppression window.
func (s *SuppressionStore) MarkSeen(ctx context.Context, productID string, ttl time.Duration) error {
	if productID == "" {
		return nil
	}
	s.local.Add(productID, struct{}{})
	if s.client == nil {
		return nil
	}

	if err := s.client.SetNX(ctx, s.prefix+productID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}
