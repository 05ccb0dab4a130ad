package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flipscout/flipscout/internal/core"
	"github.com/flipscout/flipscout/internal/data"
	"github.com/flipscout/flipscout/internal/domain/model"
	"github.com/flipscout/flipscout/internal/domain/profit"
)

// ProfitConfig groups the profitability engine's tunables.
type ProfitConfig struct {
	Thresholds profit.Thresholds
	// PricingMaxAge is how old a cached marketplace price may be before the
	// engine refreshes it from the oracle. Zero means the cache never
	// expires.
	PricingMaxAge time.Duration
}

// ProfitServiceOptions groups dependencies for ProfitService.
type ProfitServiceOptions struct {
	Products     core.ProductRepository // Required: product repository
	Oracle       core.PricingOracle     // Required: marketplace pricing oracle
	Config       ProfitConfig
	TimeProvider data.TimeProvider // Optional: defaults to real time
	Logger       *slog.Logger      // Optional: structured logger
}

// ProfitService evaluates listings against marketplace pricing, refreshing
// the per-product pricing cache from the oracle when it goes stale.
type ProfitService struct {
	products     core.ProductRepository
	oracle       core.PricingOracle
	cfg          ProfitConfig
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

// NewProfitService constructs a new ProfitService.
func NewProfitService(opts ProfitServiceOptions) *ProfitService {
	if opts.Products == nil {
		panic("ProductRepository is required")
	}
	if opts.Oracle == nil {
		panic("PricingOracle is required")
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cfg := opts.Config
	if cfg.Thresholds == (profit.Thresholds{}) {
		cfg.Thresholds = profit.DefaultThresholds()
	}

	return &ProfitService{
		products:     opts.Products,
		oracle:       opts.Oracle,
		cfg:          cfg,
		timeProvider: opts.TimeProvider,
		logger:       opts.Logger.With("component", "profit_service"),
	}
}

// EnsurePricing returns the product with fresh marketplace pricing, querying
// the oracle and updating the cached columns when the cache is absent or
// stale.
func (s *ProfitService) EnsurePricing(ctx context.Context, product *model.Product) (*model.Product, error) {
	now := s.timeProvider.Now().UTC()
	if !product.PricingStale(now, s.cfg.PricingMaxAge) {
		return product, nil
	}

	quote, err := s.oracle.Quote(ctx, product.MarketplaceID)
	if err != nil {
		return nil, fmt.Errorf("quote pricing for %s: %w", product.MarketplaceID, err)
	}

	checkedAt := quote.RetrievedAt
	if checkedAt.IsZero() {
		checkedAt = now
	}
	if err := s.products.SetPricing(ctx, data.SetPricingParams{
		ProductID: product.ID,
		Price:     quote.Price,
		Fees:      quote.Fees,
		CheckedAt: checkedAt,
	}); err != nil {
		return nil, fmt.Errorf("cache pricing: %w", err)
	}

	refreshed := *product
	refreshed.MarketplacePrice = &quote.Price
	refreshed.MarketplaceFees = &quote.Fees
	refreshed.PriceCheckedAt = &checkedAt

	s.logger.DebugContext(ctx, "pricing refreshed",
		"product_id", product.ID,
		"price", quote.Price,
		"fees", quote.Fees,
	)
	return &refreshed, nil
}

// Evaluate classifies one product/listing pair. The product must already
// carry pricing; callers go through EnsurePricing first.
func (s *ProfitService) Evaluate(product *model.Product, listing *model.Listing) (model.Verdict, error) {
	if product == nil || listing == nil {
		return model.Verdict{}, fmt.Errorf("product and listing are required")
	}
	if !product.HasPricing() {
		return model.Verdict{}, fmt.Errorf("product %s has no marketplace pricing", product.ID)
	}

	v := profit.Evaluate(profit.Input{
		MarketplacePrice: *product.MarketplacePrice,
		MarketplaceFees:  *product.MarketplaceFees,
		SourcingPrice:    listing.Price,
	}, s.cfg.Thresholds)

	return model.Verdict{
		Profit:        v.Profit,
		MarginPercent: v.MarginPercent,
		IsProfitable:  v.IsProfitable,
	}, nil
}

// EvaluateListing is the full path: refresh pricing if stale, then classify.
// Out-of-stock listings are never profitable regardless of price.
func (s *ProfitService) EvaluateListing(ctx context.Context, product *model.Product, listing *model.Listing) (*model.Opportunity, error) {
	if listing == nil {
		return nil, fmt.Errorf("listing is required")
	}
	if !listing.InStock {
		return &model.Opportunity{Product: product, Listing: listing}, nil
	}

	priced, err := s.EnsurePricing(ctx, product)
	if err != nil {
		return nil, err
	}

	verdict, err := s.Evaluate(priced, listing)
	if err != nil {
		return nil, err
	}

	return &model.Opportunity{
		Product: priced,
		Listing: listing,
		Verdict: verdict,
	}, nil
}
