package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalTierMarkAndSeen(t *testing.T) {
	store := NewSuppressionStore(Options{LocalTTL: time.Hour})
	ctx := context.Background()

	seen, err := store.Seen(ctx, "prod-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.MarkSeen(ctx, "prod-1", time.Hour))

	seen, err = store.Seen(ctx, "prod-1")
	require.NoError(t, err)
	assert.True(t, seen)

	// A different product is unaffected.
	seen, err = store.Seen(ctx, "prod-2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestLocalTierExpires(t *testing.T) {
	store := NewSuppressionStore(Options{LocalTTL: 10 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, store.MarkSeen(ctx, "prod-1", time.Hour))
	time.Sleep(30 * time.Millisecond)

	seen, err := store.Seen(ctx, "prod-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestEmptyProductIDIsNoop(t *testing.T) {
	store := NewSuppressionStore(Options{LocalTTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, store.MarkSeen(ctx, "", time.Hour))
	seen, err := store.Seen(ctx, "")
	require.NoError(t, err)
	assert.False(t, seen)
}
