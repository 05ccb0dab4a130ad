package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/flipscout/flipscout/internal/core"
	"github.com/flipscout/flipscout/internal/data"
	"github.com/flipscout/flipscout/internal/domain/model"
)

var profitTestNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestProfitService(products *mockProductRepo, oracle *mockPricingOracle, maxAge time.Duration) *ProfitService {
	return NewProfitService(ProfitServiceOptions{
		Products:     products,
		Oracle:       oracle,
		Config:       ProfitConfig{PricingMaxAge: maxAge},
		TimeProvider: data.NewFixedTimeProvider(profitTestNow),
	})
}

func pricedProduct(checkedAt time.Time) *model.Product {
	return &model.Product{
		ID:               "prod-1",
		MarketplaceID:    "MKT-1",
		Title:            "Widget Pro 2000",
		MarketplacePrice: ptr(29.99),
		MarketplaceFees:  ptr(4.50),
		PriceCheckedAt:   ptr(checkedAt),
	}
}

func TestProfitService_EnsurePricing_FreshCacheSkipsOracle(t *testing.T) {
	products := &mockProductRepo{}
	oracle := &mockPricingOracle{}
	svc := newTestProfitService(products, oracle, 72*time.Hour)

	product := pricedProduct(profitTestNow.Add(-time.Hour))

	got, err := svc.EnsurePricing(context.Background(), product)
	require.NoError(t, err)
	assert.Same(t, product, got)
	oracle.AssertNotCalled(t, "Quote", mock.Anything, mock.Anything)
}

func TestProfitService_EnsurePricing_StaleCacheRefreshes(t *testing.T) {
	products := &mockProductRepo{}
	oracle := &mockPricingOracle{}
	svc := newTestProfitService(products, oracle, 72*time.Hour)

	product := pricedProduct(profitTestNow.Add(-100 * time.Hour))
	retrieved := profitTestNow.Add(-time.Minute)

	oracle.On("Quote", mock.Anything, "MKT-1").Return(&core.PricingQuote{
		MarketplaceID: "MKT-1",
		Price:         31.50,
		Fees:          4.75,
		RetrievedAt:   retrieved,
	}, nil)
	products.On("SetPricing", mock.Anything, data.SetPricingParams{
		ProductID: "prod-1",
		Price:     31.50,
		Fees:      4.75,
		CheckedAt: retrieved,
	}).Return(nil)

	got, err := svc.EnsurePricing(context.Background(), product)
	require.NoError(t, err)
	require.True(t, got.HasPricing())
	assert.Equal(t, 31.50, *got.MarketplacePrice)
	assert.Equal(t, 4.75, *got.MarketplaceFees)
	products.AssertExpectations(t)
	oracle.AssertExpectations(t)
}

func TestProfitService_EnsurePricing_MissingPricingQueriesOracle(t *testing.T) {
	products := &mockProductRepo{}
	oracle := &mockPricingOracle{}
	svc := newTestProfitService(products, oracle, 0)

	product := &model.Product{ID: "prod-1", MarketplaceID: "MKT-1"}

	oracle.On("Quote", mock.Anything, "MKT-1").Return(&core.PricingQuote{Price: 20.00, Fees: 3.00}, nil)
	products.On("SetPricing", mock.Anything, mock.MatchedBy(func(p data.SetPricingParams) bool {
		// Quote carried no timestamp, so the provider's now is used.
		return p.CheckedAt.Equal(profitTestNow)
	})).Return(nil)

	got, err := svc.EnsurePricing(context.Background(), product)
	require.NoError(t, err)
	assert.Equal(t, 20.00, *got.MarketplacePrice)
}

func TestProfitService_EnsurePricing_OracleErrorPropagates(t *testing.T) {
	products := &mockProductRepo{}
	oracle := &mockPricingOracle{}
	svc := newTestProfitService(products, oracle, 0)

	oracle.On("Quote", mock.Anything, "MKT-1").Return(nil, errors.New("oracle unreachable"))

	_, err := svc.EnsurePricing(context.Background(), &model.Product{ID: "prod-1", MarketplaceID: "MKT-1"})
	require.Error(t, err)
	products.AssertNotCalled(t, "SetPricing", mock.Anything, mock.Anything)
}

func TestProfitService_Evaluate(t *testing.T) {
	svc := newTestProfitService(&mockProductRepo{}, &mockPricingOracle{}, 0)
	product := pricedProduct(profitTestNow)

	tests := []struct {
		name       string
		price      float64
		profitable bool
	}{
		{"well under the bar", 18.00, true},  // profit 7.49, margin ~25%
		{"too expensive", 24.00, false},      // profit 1.49
		{"just under the profit bar", 20.99, false}, // profit 4.50 < $5
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := svc.Evaluate(product, &model.Listing{ID: "l1", Price: tt.price, InStock: true})
			require.NoError(t, err)
			assert.Equal(t, tt.profitable, verdict.IsProfitable)
		})
	}
}

func TestProfitService_Evaluate_RequiresPricing(t *testing.T) {
	svc := newTestProfitService(&mockProductRepo{}, &mockPricingOracle{}, 0)

	_, err := svc.Evaluate(&model.Product{ID: "prod-1"}, &model.Listing{ID: "l1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no marketplace pricing")
}

func TestProfitService_EvaluateListing_OutOfStockNeverProfitable(t *testing.T) {
	products := &mockProductRepo{}
	oracle := &mockPricingOracle{}
	svc := newTestProfitService(products, oracle, 0)

	opp, err := svc.EvaluateListing(context.Background(),
		pricedProduct(profitTestNow),
		&model.Listing{ID: "l1", Price: 1.00, InStock: false},
	)
	require.NoError(t, err)
	assert.False(t, opp.Verdict.IsProfitable)
	oracle.AssertNotCalled(t, "Quote", mock.Anything, mock.Anything)
}

func TestProfitService_EvaluateListing_FullPath(t *testing.T) {
	products := &mockProductRepo{}
	oracle := &mockPricingOracle{}
	svc := newTestProfitService(products, oracle, 72*time.Hour)

	product := pricedProduct(profitTestNow.Add(-time.Hour))
	listing := &model.Listing{ID: "l1", ProductID: "prod-1", Price: 18.00, InStock: true}

	opp, err := svc.EvaluateListing(context.Background(), product, listing)
	require.NoError(t, err)
	assert.True(t, opp.Verdict.IsProfitable)
	assert.InDelta(t, 7.49, opp.Verdict.Profit, 0.001)
	assert.Same(t, listing, opp.Listing)
}
