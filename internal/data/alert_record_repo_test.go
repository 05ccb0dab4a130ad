package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipscout/flipscout/internal/domain/model"
	"github.com/flipscout/flipscout/internal/testutil"
)

func TestAlertRecordRepo_Create(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	repo := NewAlertRecordRepo(db)
	product := createTestProduct(t, db)

	t.Run("successful creation", func(t *testing.T) {
		record, err := repo.Create(context.Background(), product.ID, model.AlertKindOpportunity)
		require.NoError(t, err)
		require.NotNil(t, record)

		assert.NotEmpty(t, record.ID)
		assert.Equal(t, product.ID, record.ProductID)
		assert.Equal(t, model.AlertKindOpportunity, record.AlertKind)
		assert.NotZero(t, record.SentAt)
	})

	t.Run("invalid kind", func(t *testing.T) {
		record, err := repo.Create(context.Background(), product.ID, model.AlertKind("carrier_pigeon"))
		require.Error(t, err)
		assert.Nil(t, record)
	})

	t.Run("foreign key violation", func(t *testing.T) {
		record, err := repo.Create(context.Background(), "550e8400-e29b-41d4-a716-446655440000", model.AlertKindDigest)
		require.Error(t, err)
		assert.Nil(t, record)
		assert.ErrorIs(t, err, ErrProductNotFound)
	})
}

func TestAlertRecordRepo_ExistsSince(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	product := createTestProduct(t, db)

	sentAt := time.Now().UTC().Add(-2 * time.Hour)
	repo := NewAlertRecordRepoWithTimeProvider(db, NewFixedTimeProvider(sentAt))
	_, err := repo.Create(context.Background(), product.ID, model.AlertKindOpportunity)
	require.NoError(t, err)

	exists, err := repo.ExistsSince(context.Background(), product.ID, sentAt.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsSince(context.Background(), product.ID, sentAt.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.ExistsSince(context.Background(), "550e8400-e29b-41d4-a716-446655440000", sentAt.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAlertRecordRepo_DeleteOlderThan(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	product := createTestProduct(t, db)

	old := NewAlertRecordRepoWithTimeProvider(db, NewFixedTimeProvider(time.Now().UTC().Add(-40*24*time.Hour)))
	_, err := old.Create(context.Background(), product.ID, model.AlertKindOpportunity)
	require.NoError(t, err)

	repo := NewAlertRecordRepo(db)
	_, err = repo.Create(context.Background(), product.ID, model.AlertKindOpportunity)
	require.NoError(t, err)

	deleted, err := repo.DeleteOlderThan(context.Background(), 30*24*time.Hour, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	records, err := repo.ListByProduct(context.Background(), product.ID, 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
