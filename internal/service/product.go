// Package service provides the business logic of the arbitrage pipeline:
// product ingestion, listing discovery, monitoring, profitability
// evaluation, alert dispatch, scheduling, and retention.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flipscout/flipscout/internal/core"
	"github.com/flipscout/flipscout/internal/domain/model"
)

// ProductServiceOptions groups dependencies for ProductService.
type ProductServiceOptions struct {
	Repo   core.ProductRepository // Required: product repository
	Logger *slog.Logger           // Optional: structured logger
}

// ProductService handles ingestion and lookup of canonical marketplace
// products.
type ProductService struct {
	repo   core.ProductRepository
	logger *slog.Logger
}

// NewProductService constructs a new ProductService.
func NewProductService(opts ProductServiceOptions) *ProductService {
	if opts.Repo == nil {
		panic("ProductRepository is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ProductService{
		repo:   opts.Repo,
		logger: opts.Logger.With("component", "product_service"),
	}
}

// IngestResult summarizes one ingestion batch.
type IngestResult struct {
	Accepted int
	Rejected int
}

// Ingest upserts a batch of product tuples from the external input list.
// Ingestion is idempotent per tuple; invalid tuples are counted and skipped
// rather than aborting the batch.
func (s *ProductService) Ingest(ctx context.Context, reqs []model.IngestProductRequest) (IngestResult, error) {
	var result IngestResult
	for i := range reqs {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if _, err := s.repo.Upsert(ctx, &reqs[i]); err != nil {
			result.Rejected++
			s.logger.WarnContext(ctx, "product rejected",
				"marketplace_id", reqs[i].MarketplaceID,
				"error", err,
			)
			continue
		}
		result.Accepted++
	}

	s.logger.InfoContext(ctx, "product ingest finished",
		"accepted", result.Accepted,
		"rejected", result.Rejected,
	)
	return result, nil
}

// Get retrieves a product by ID.
func (s *ProductService) Get(ctx context.Context, id string) (*model.Product, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

// GetByMarketplaceID retrieves a product by its marketplace identity key.
func (s *ProductService) GetByMarketplaceID(ctx context.Context, marketplaceID string) (*model.Product, error) {
	product, err := s.repo.GetByMarketplaceID(ctx, marketplaceID)
	if err != nil {
		return nil, fmt.Errorf("get product by marketplace id: %w", err)
	}
	return product, nil
}

// List returns a page of products.
func (s *ProductService) List(ctx context.Context, limit, offset int) ([]*model.Product, error) {
	products, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}
