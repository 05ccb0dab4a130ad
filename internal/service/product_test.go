package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/flipscout/flipscout/internal/domain/model"
)

func TestProductService_Ingest_CountsAcceptedAndRejected(t *testing.T) {
	repo := &mockProductRepo{}
	svc := NewProductService(ProductServiceOptions{Repo: repo})

	reqs := []model.IngestProductRequest{
		{MarketplaceID: "MKT-1", Title: "Widget Pro 2000"},
		{MarketplaceID: "", Title: "No identity"},
		{MarketplaceID: "MKT-2", UniversalCode: ptr("123456789012"), Title: "Widget Lite"},
	}

	repo.On("Upsert", mock.Anything, &reqs[0]).Return(&model.Product{ID: "p1"}, nil)
	repo.On("Upsert", mock.Anything, &reqs[1]).Return(nil, errors.New("marketplace_id is required"))
	repo.On("Upsert", mock.Anything, &reqs[2]).Return(&model.Product{ID: "p2"}, nil)

	result, err := svc.Ingest(context.Background(), reqs)
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Accepted: 2, Rejected: 1}, result)
	repo.AssertExpectations(t)
}

func TestProductService_Ingest_ReingestIsIdempotent(t *testing.T) {
	repo := &mockProductRepo{}
	svc := NewProductService(ProductServiceOptions{Repo: repo})

	req := model.IngestProductRequest{MarketplaceID: "MKT-1", Title: "Widget Pro 2000"}
	repo.On("Upsert", mock.Anything, &req).Return(&model.Product{ID: "p1"}, nil).Twice()

	for range 2 {
		result, err := svc.Ingest(context.Background(), []model.IngestProductRequest{req})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Accepted)
	}
	repo.AssertExpectations(t)
}

func TestProductService_Ingest_ContextCancellation(t *testing.T) {
	repo := &mockProductRepo{}
	svc := NewProductService(ProductServiceOptions{Repo: repo})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Ingest(ctx, []model.IngestProductRequest{{MarketplaceID: "MKT-1"}})
	require.ErrorIs(t, err, context.Canceled)
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestProductService_Get(t *testing.T) {
	repo := &mockProductRepo{}
	svc := NewProductService(ProductServiceOptions{Repo: repo})

	repo.On("GetByID", mock.Anything, "p1").Return(&model.Product{ID: "p1"}, nil)

	got, err := svc.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)
}

func TestProductService_GetByMarketplaceID_Error(t *testing.T) {
	repo := &mockProductRepo{}
	svc := NewProductService(ProductServiceOptions{Repo: repo})

	repo.On("GetByMarketplaceID", mock.Anything, "MKT-404").Return(nil, errors.New("product not found"))

	_, err := svc.GetByMarketplaceID(context.Background(), "MKT-404")
	require.Error(t, err)
}

func TestNewProductService_RequiresRepo(t *testing.T) {
	assert.Panics(t, func() {
		NewProductService(ProductServiceOptions{})
	})
}
