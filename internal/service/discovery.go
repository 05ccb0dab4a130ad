package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flipscout/flipscout/internal/core"
	"github.com/flipscout/flipscout/internal/domain/model"
)

// DiscoveryServiceOptions groups dependencies for DiscoveryService.
type DiscoveryServiceOptions struct {
	Products core.ProductRepository // Required: product repository
	Listings core.ListingRepository // Required: listing repository
	Crawler  core.ListingCrawler    // Required: matching crawler
	Logger   *slog.Logger           // Optional: structured logger
}

// DiscoveryService runs the matching crawler for products and persists the
// listings it finds.
type DiscoveryService struct {
	products core.ProductRepository
	listings core.ListingRepository
	crawler  core.ListingCrawler
	logger   *slog.Logger
}

// NewDiscoveryService constructs a new DiscoveryService.
func NewDiscoveryService(opts DiscoveryServiceOptions) *DiscoveryService {
	if opts.Products == nil {
		panic("ProductRepository is required")
	}
	if opts.Listings == nil {
		panic("ListingRepository is required")
	}
	if opts.Crawler == nil {
		panic("ListingCrawler is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &DiscoveryService{
		products: opts.Products,
		listings: opts.Listings,
		crawler:  opts.Crawler,
		logger:   opts.Logger.With("component", "discovery_service"),
	}
}

// DiscoveryResult summarizes one discovery pass for a product.
type DiscoveryResult struct {
	Found   int
	Created int
	Updated int
}

// DiscoverProduct crawls the configured sites for one product and upserts
// every usable listing found. Unusable facts never reach this point; the
// crawler drops them.
func (s *DiscoveryService) DiscoverProduct(ctx context.Context, product *model.Product) (DiscoveryResult, error) {
	var result DiscoveryResult
	if product == nil {
		return result, fmt.Errorf("product is required")
	}

	discovered, err := s.crawler.Discover(ctx, product)
	if err != nil {
		return result, fmt.Errorf("discover listings for %s: %w", product.ID, err)
	}
	result.Found = len(discovered)

	for _, d := range discovered {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if !d.Facts.Usable() {
			continue
		}

		_, created, upsertErr := s.listings.UpsertDiscovered(ctx, &model.UpsertListingRequest{
			ProductID:  product.ID,
			SiteID:     d.SiteID,
			ListingURL: d.ListingURL,
			Price:      *d.Facts.Price,
			InStock:    d.Facts.InStock,
			Color:      d.Facts.Color,
			Size:       d.Facts.Size,
		})
		if upsertErr != nil {
			s.logger.WarnContext(ctx, "listing upsert failed",
				"product_id", product.ID,
				"listing_url", d.ListingURL,
				"error", upsertErr,
			)
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	if touchErr := s.products.Touch(ctx, product.ID); touchErr != nil {
		s.logger.WarnContext(ctx, "touch product failed", "product_id", product.ID, "error", touchErr)
	}

	s.logger.InfoContext(ctx, "discovery finished",
		"product_id", product.ID,
		"found", result.Found,
		"created", result.Created,
		"updated", result.Updated,
	)
	return result, nil
}

// DiscoverAll pages through every product and runs discovery for each.
// Per-product failures are logged and skipped.
func (s *DiscoveryService) DiscoverAll(ctx context.Context, batchSize int) (DiscoveryResult, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	var total DiscoveryResult
	offset := 0
	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}

		products, err := s.products.List(ctx, batchSize, offset)
		if err != nil {
			return total, fmt.Errorf("list products: %w", err)
		}
		if len(products) == 0 {
			return total, nil
		}

		for _, p := range products {
			result, discErr := s.DiscoverProduct(ctx, p)
			if discErr != nil {
				if ctx.Err() != nil {
					return total, ctx.Err()
				}
				s.logger.WarnContext(ctx, "product discovery failed", "product_id", p.ID, "error", discErr)
				continue
			}
			total.Found += result.Found
			total.Created += result.Created
			total.Updated += result.Updated
		}

		offset += len(products)
	}
}
