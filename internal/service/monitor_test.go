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
	"github.com/flipscout/flipscout/internal/domain/change"
	"github.com/flipscout/flipscout/internal/domain/extract"
	"github.com/flipscout/flipscout/internal/domain/model"
)

var monitorTestNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const monitorPageHTML = `<html><body>
<h1>Widget Pro 2000</h1>
<span class="price">$15.00</span>
<span class="availability">In Stock</span>
</body></html>`

const monitorOutOfStockHTML = `<html><body>
<h1>Widget Pro 2000</h1>
<span class="price">$15.00</span>
<span class="availability">Out of Stock</span>
</body></html>`

const monitorBrokenHTML = `<html><body><h1>Widget Pro 2000</h1><span class="price">Call for pricing</span></body></html>`

type monitorFixture struct {
	listings  *mockListingRepo
	products  *mockProductRepo
	fetcher   *mockPageFetcher
	evaluator *mockOpportunityEvaluator
	notifier  *mockOpportunityNotifier
	digest    *mockDigestNotifier
	svc       *MonitorService
}

func newMonitorFixture() *monitorFixture {
	f := &monitorFixture{
		listings:  &mockListingRepo{},
		products:  &mockProductRepo{},
		fetcher:   &mockPageFetcher{},
		evaluator: &mockOpportunityEvaluator{},
		notifier:  &mockOpportunityNotifier{},
	}
	f.svc = NewMonitorService(MonitorServiceOptions{
		Listings:  f.listings,
		Products:  f.products,
		Fetcher:   f.fetcher,
		Profiles:  extract.DefaultProfileSet(),
		Evaluator: f.evaluator,
		Notifier:  f.notifier,
		Config: MonitorConfig{
			Concurrency: 2,
			BatchSize:   10,
			Thresholds:  change.DefaultThresholds(),
		},
		TimeProvider: data.NewFixedTimeProvider(monitorTestNow),
	})
	return f
}

func newDigestMonitorFixture() *monitorFixture {
	f := &monitorFixture{
		listings:  &mockListingRepo{},
		products:  &mockProductRepo{},
		fetcher:   &mockPageFetcher{},
		evaluator: &mockOpportunityEvaluator{},
		notifier:  &mockOpportunityNotifier{},
		digest:    &mockDigestNotifier{},
	}
	f.svc = NewMonitorService(MonitorServiceOptions{
		Listings:  f.listings,
		Products:  f.products,
		Fetcher:   f.fetcher,
		Profiles:  extract.DefaultProfileSet(),
		Evaluator: f.evaluator,
		Notifier:  f.notifier,
		Digest:    f.digest,
		Config: MonitorConfig{
			Concurrency: 2,
			BatchSize:   10,
			Thresholds:  change.DefaultThresholds(),
			DigestMode:  true,
		},
		TimeProvider: data.NewFixedTimeProvider(monitorTestNow),
	})
	return f
}

func monitoredListing(price float64, inStock bool) *model.Listing {
	return &model.Listing{
		ID:         "listing-1",
		ProductID:  "prod-1",
		SiteID:     "shop-example",
		ListingURL: "https://shop.example.test/widget-pro",
		Price:      price,
		InStock:    inStock,
	}
}

func (f *monitorFixture) expectPage(listing *model.Listing, html string) {
	f.fetcher.On("Fetch", mock.Anything, listing.ListingURL).Return(&core.FetchedPage{
		URL:        listing.ListingURL,
		StatusCode: 200,
		Body:       []byte(html),
		FetchedAt:  monitorTestNow,
	}, nil)
}

func (f *monitorFixture) expectPaging(listings ...*model.Listing) {
	f.listings.On("ListForMonitoring", mock.Anything, 10, 0).Return(listings, nil)
	f.listings.On("ListForMonitoring", mock.Anything, 10, len(listings)).Return([]*model.Listing{}, nil)
}

func TestMonitorService_RunCycle_MaterialChangeRecordedAndAlerted(t *testing.T) {
	f := newMonitorFixture()
	// Stored at $20, page now says $15: clears both the $1 and 5% bars.
	listing := monitoredListing(20.00, true)
	product := pricedProduct(monitorTestNow)

	f.expectPaging(listing)
	f.expectPage(listing, monitorPageHTML)
	f.listings.On("ApplyObservation", mock.Anything, data.ApplyObservationParams{
		ListingID:  "listing-1",
		Price:      15.00,
		InStock:    true,
		Material:   true,
		ObservedAt: monitorTestNow,
	}).Return(nil)
	f.products.On("GetByID", mock.Anything, "prod-1").Return(product, nil)

	opp := &model.Opportunity{
		Product: product,
		Listing: listing,
		Verdict: model.Verdict{Profit: 10.49, MarginPercent: 35.0, IsProfitable: true},
	}
	f.evaluator.On("EvaluateListing", mock.Anything, product, mock.MatchedBy(func(l *model.Listing) bool {
		// The freshly observed state, not the stale stored row.
		return l.ID == "listing-1" && l.Price == 15.00 && l.InStock
	})).Return(opp, nil)
	f.notifier.On("NotifyOpportunity", mock.Anything, opp).Return(true, nil)

	summary, err := f.svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 1, summary.Changed)
	assert.Equal(t, 1, summary.AlertsSent)
	f.listings.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestMonitorService_RunCycle_ImmaterialChangeOnlyAdvancesCheck(t *testing.T) {
	f := newMonitorFixture()
	// Stored at $15.50, page says $15.00: $0.50 move stays under the $1 bar.
	listing := monitoredListing(15.50, true)
	product := pricedProduct(monitorTestNow)

	f.expectPaging(listing)
	f.expectPage(listing, monitorPageHTML)
	f.listings.On("ApplyObservation", mock.Anything, data.ApplyObservationParams{
		ListingID:  "listing-1",
		Price:      15.00,
		InStock:    true,
		Material:   false,
		ObservedAt: monitorTestNow,
	}).Return(nil)
	f.products.On("GetByID", mock.Anything, "prod-1").Return(product, nil)
	f.evaluator.On("EvaluateListing", mock.Anything, mock.Anything, mock.Anything).
		Return(&model.Opportunity{Product: product, Listing: listing}, nil)

	summary, err := f.svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Zero(t, summary.Changed)
	assert.Zero(t, summary.AlertsSent)
	f.notifier.AssertNotCalled(t, "NotifyOpportunity", mock.Anything, mock.Anything)
}

func TestMonitorService_RunCycle_StockFlipIsMaterial(t *testing.T) {
	f := newMonitorFixture()
	listing := monitoredListing(15.00, true)

	f.expectPaging(listing)
	f.expectPage(listing, monitorOutOfStockHTML)
	f.listings.On("ApplyObservation", mock.Anything, data.ApplyObservationParams{
		ListingID:  "listing-1",
		Price:      15.00,
		InStock:    false,
		Material:   true,
		ObservedAt: monitorTestNow,
	}).Return(nil)

	summary, err := f.svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Changed)
	// Out of stock: the profitability path is never entered.
	f.evaluator.AssertNotCalled(t, "EvaluateListing", mock.Anything, mock.Anything, mock.Anything)
}

func TestMonitorService_RunCycle_FetchFailureCountedNotFatal(t *testing.T) {
	f := newMonitorFixture()
	broken := monitoredListing(20.00, true)
	healthy := &model.Listing{
		ID:         "listing-2",
		ProductID:  "prod-1",
		SiteID:     "shop-example",
		ListingURL: "https://shop.example.test/widget-other",
		Price:      15.50,
		InStock:    true,
	}
	product := pricedProduct(monitorTestNow)

	f.expectPaging(broken, healthy)
	f.fetcher.On("Fetch", mock.Anything, broken.ListingURL).Return(nil, errors.New("connection refused"))
	f.expectPage(healthy, monitorPageHTML)
	f.listings.On("ApplyObservation", mock.Anything, mock.Anything).Return(nil)
	f.products.On("GetByID", mock.Anything, "prod-1").Return(product, nil)
	f.evaluator.On("EvaluateListing", mock.Anything, mock.Anything, mock.Anything).
		Return(&model.Opportunity{Product: product, Listing: healthy}, nil)

	summary, err := f.svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Checked)
	assert.Equal(t, 1, summary.FetchFailed)
}

func TestMonitorService_RunCycle_UnusablePageSkipped(t *testing.T) {
	f := newMonitorFixture()
	listing := monitoredListing(20.00, true)

	f.expectPaging(listing)
	f.expectPage(listing, monitorBrokenHTML)

	summary, err := f.svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Unusable)
	f.listings.AssertNotCalled(t, "ApplyObservation", mock.Anything, mock.Anything)
}

func TestMonitorService_RunCycle_DigestModeBatchesIntoOneSend(t *testing.T) {
	f := newDigestMonitorFixture()
	first := monitoredListing(20.00, true)
	second := &model.Listing{
		ID:         "listing-2",
		ProductID:  "prod-1",
		SiteID:     "shop-example",
		ListingURL: "https://shop.example.test/widget-other",
		Price:      20.00,
		InStock:    true,
	}
	product := pricedProduct(monitorTestNow)

	f.expectPaging(first, second)
	f.expectPage(first, monitorPageHTML)
	f.expectPage(second, monitorPageHTML)
	f.listings.On("ApplyObservation", mock.Anything, mock.Anything).Return(nil)
	f.products.On("GetByID", mock.Anything, "prod-1").Return(product, nil)
	f.evaluator.On("EvaluateListing", mock.Anything, product, mock.Anything).
		Return(&model.Opportunity{
			Product: product,
			Listing: first,
			Verdict: model.Verdict{Profit: 10.49, MarginPercent: 35.0, IsProfitable: true},
		}, nil)

	// Both hits land in one digest; no per-listing alerts go out.
	f.digest.On("SendDigest", mock.Anything, mock.MatchedBy(func(opps []*model.Opportunity) bool {
		return len(opps) == 2
	})).Return(2, nil)

	summary, err := f.svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.AlertsSent)
	f.notifier.AssertNotCalled(t, "NotifyOpportunity", mock.Anything, mock.Anything)
	f.digest.AssertExpectations(t)
}

func TestMonitorService_RunCycle_DigestFailureDoesNotAbortCycle(t *testing.T) {
	f := newDigestMonitorFixture()
	listing := monitoredListing(20.00, true)
	product := pricedProduct(monitorTestNow)

	f.expectPaging(listing)
	f.expectPage(listing, monitorPageHTML)
	f.listings.On("ApplyObservation", mock.Anything, mock.Anything).Return(nil)
	f.products.On("GetByID", mock.Anything, "prod-1").Return(product, nil)
	f.evaluator.On("EvaluateListing", mock.Anything, product, mock.Anything).
		Return(&model.Opportunity{
			Product: product,
			Listing: listing,
			Verdict: model.Verdict{Profit: 10.49, MarginPercent: 35.0, IsProfitable: true},
		}, nil)
	f.digest.On("SendDigest", mock.Anything, mock.Anything).Return(0, errors.New("mail api down"))

	summary, err := f.svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Zero(t, summary.AlertsSent)
}

func TestMonitorService_RunCycle_PagingErrorAborts(t *testing.T) {
	f := newMonitorFixture()

	f.listings.On("ListForMonitoring", mock.Anything, 10, 0).Return(nil, errors.New("db down"))

	_, err := f.svc.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list listings for monitoring")
}

func TestCycleSummary_String(t *testing.T) {
	s := &CycleSummary{Checked: 5, FetchFailed: 1, Unusable: 2, Changed: 3, AlertsSent: 1}
	assert.Equal(t, "checked=5 fetch_failed=1 unusable=2 changed=3 alerts_sent=1", s.String())
}
