package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/flipscout/flipscout/internal/core"
	"github.com/flipscout/flipscout/internal/data"
	"github.com/flipscout/flipscout/internal/domain/model"
)

// Mock implementations shared across the service tests.

type mockProductRepo struct {
	mock.Mock
}

func (m *mockProductRepo) Upsert(ctx context.Context, req *model.IngestProductRequest) (*model.Product, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *mockProductRepo) GetByID(ctx context.Context, id string) (*model.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *mockProductRepo) GetByMarketplaceID(ctx context.Context, marketplaceID string) (*model.Product, error) {
	args := m.Called(ctx, marketplaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *mockProductRepo) List(ctx context.Context, limit, offset int) ([]*model.Product, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Product), args.Error(1)
}

func (m *mockProductRepo) SetPricing(ctx context.Context, params data.SetPricingParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *mockProductRepo) Touch(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockListingRepo struct {
	mock.Mock
}

func (m *mockListingRepo) UpsertDiscovered(ctx context.Context, req *model.UpsertListingRequest) (*model.Listing, bool, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Listing), args.Bool(1), args.Error(2)
}

func (m *mockListingRepo) GetByID(ctx context.Context, id string) (*model.Listing, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Listing), args.Error(1)
}

func (m *mockListingRepo) ListByProduct(ctx context.Context, productID string) ([]*model.Listing, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Listing), args.Error(1)
}

func (m *mockListingRepo) ListForMonitoring(ctx context.Context, limit, offset int) ([]*model.Listing, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Listing), args.Error(1)
}

func (m *mockListingRepo) ApplyObservation(ctx context.Context, params data.ApplyObservationParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *mockListingRepo) HistoryByListing(ctx context.Context, listingID string, limit int) ([]*model.ListingHistoryEvent, error) {
	args := m.Called(ctx, listingID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ListingHistoryEvent), args.Error(1)
}

func (m *mockListingRepo) DeleteHistoryOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	args := m.Called(ctx, maxAge, batchSize)
	return args.Get(0).(int64), args.Error(1)
}

type mockAlertRecordRepo struct {
	mock.Mock
}

func (m *mockAlertRecordRepo) Create(ctx context.Context, productID string, kind model.AlertKind) (*model.AlertRecord, error) {
	args := m.Called(ctx, productID, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AlertRecord), args.Error(1)
}

func (m *mockAlertRecordRepo) ExistsSince(ctx context.Context, productID string, since time.Time) (bool, error) {
	args := m.Called(ctx, productID, since)
	return args.Bool(0), args.Error(1)
}

func (m *mockAlertRecordRepo) ListByProduct(ctx context.Context, productID string, limit int) ([]*model.AlertRecord, error) {
	args := m.Called(ctx, productID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.AlertRecord), args.Error(1)
}

func (m *mockAlertRecordRepo) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	args := m.Called(ctx, maxAge, batchSize)
	return args.Get(0).(int64), args.Error(1)
}

type mockScheduledJobRepo struct {
	mock.Mock
}

func (m *mockScheduledJobRepo) EnsureDefaults(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockScheduledJobRepo) FindDue(ctx context.Context, now time.Time) ([]*model.ScheduledJob, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ScheduledJob), args.Error(1)
}

func (m *mockScheduledJobRepo) GetByType(ctx context.Context, jobType model.JobType) (*model.ScheduledJob, error) {
	args := m.Called(ctx, jobType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScheduledJob), args.Error(1)
}

func (m *mockScheduledJobRepo) List(ctx context.Context) ([]*model.ScheduledJob, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ScheduledJob), args.Error(1)
}

func (m *mockScheduledJobRepo) Reschedule(ctx context.Context, params data.RescheduleParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *mockScheduledJobRepo) SetStatus(ctx context.Context, id string, status model.ScheduledJobStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *mockScheduledJobRepo) TryWithJobLock(
	ctx context.Context,
	jobType model.JobType,
	fn func(context.Context, *sql.Tx) error,
) (bool, error) {
	args := m.Called(ctx, jobType, fn)
	if args.Bool(0) {
		// Simulate lock acquisition by running the locked section with a nil tx.
		return true, fn(ctx, nil)
	}
	return false, args.Error(1)
}

type mockJobRunRepo struct {
	mock.Mock
}

func (m *mockJobRunRepo) Start(ctx context.Context, jobID string) (*model.JobRun, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.JobRun), args.Error(1)
}

func (m *mockJobRunRepo) Complete(ctx context.Context, runID string, summary string) error {
	args := m.Called(ctx, runID, summary)
	return args.Error(0)
}

func (m *mockJobRunRepo) Fail(ctx context.Context, runID string, errMessage string) error {
	args := m.Called(ctx, runID, errMessage)
	return args.Error(0)
}

func (m *mockJobRunRepo) HasRunning(ctx context.Context, jobID string) (bool, error) {
	args := m.Called(ctx, jobID)
	return args.Bool(0), args.Error(1)
}

func (m *mockJobRunRepo) ListRecent(ctx context.Context, jobID string, limit int) ([]*model.JobRun, error) {
	args := m.Called(ctx, jobID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.JobRun), args.Error(1)
}

func (m *mockJobRunRepo) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	args := m.Called(ctx, maxAge, batchSize)
	return args.Get(0).(int64), args.Error(1)
}

type mockPricingOracle struct {
	mock.Mock
}

func (m *mockPricingOracle) Quote(ctx context.Context, marketplaceID string) (*core.PricingQuote, error) {
	args := m.Called(ctx, marketplaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core.PricingQuote), args.Error(1)
}

type mockPageFetcher struct {
	mock.Mock
}

func (m *mockPageFetcher) Fetch(ctx context.Context, url string) (*core.FetchedPage, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core.FetchedPage), args.Error(1)
}

type mockAlertTransport struct {
	mock.Mock
}

func (m *mockAlertTransport) Send(ctx context.Context, msg core.AlertMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type mockSuppressionCache struct {
	mock.Mock
}

func (m *mockSuppressionCache) Seen(ctx context.Context, productID string) (bool, error) {
	args := m.Called(ctx, productID)
	return args.Bool(0), args.Error(1)
}

func (m *mockSuppressionCache) MarkSeen(ctx context.Context, productID string, ttl time.Duration) error {
	args := m.Called(ctx, productID, ttl)
	return args.Error(0)
}

type mockListingCrawler struct {
	mock.Mock
}

func (m *mockListingCrawler) Discover(ctx context.Context, product *model.Product) ([]core.DiscoveredListing, error) {
	args := m.Called(ctx, product)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]core.DiscoveredListing), args.Error(1)
}

type mockMonitoringRunner struct {
	mock.Mock
}

func (m *mockMonitoringRunner) RunCycle(ctx context.Context) (*CycleSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CycleSummary), args.Error(1)
}

type mockDiscoveryRunner struct {
	mock.Mock
}

func (m *mockDiscoveryRunner) DiscoverAll(ctx context.Context, batchSize int) (DiscoveryResult, error) {
	args := m.Called(ctx, batchSize)
	return args.Get(0).(DiscoveryResult), args.Error(1)
}

type mockCleanupRunner struct {
	mock.Mock
}

func (m *mockCleanupRunner) RunCleanup(ctx context.Context) (CleanupSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).(CleanupSummary), args.Error(1)
}

type mockOpportunityEvaluator struct {
	mock.Mock
}

func (m *mockOpportunityEvaluator) EvaluateListing(ctx context.Context, product *model.Product, listing *model.Listing) (*model.Opportunity, error) {
	args := m.Called(ctx, product, listing)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Opportunity), args.Error(1)
}

type mockOpportunityNotifier struct {
	mock.Mock
}

func (m *mockOpportunityNotifier) NotifyOpportunity(ctx context.Context, opp *model.Opportunity) (bool, error) {
	args := m.Called(ctx, opp)
	return args.Bool(0), args.Error(1)
}

type mockDigestNotifier struct {
	mock.Mock
}

func (m *mockDigestNotifier) SendDigest(ctx context.Context, opps []*model.Opportunity) (int, error) {
	args := m.Called(ctx, opps)
	return args.Int(0), args.Error(1)
}

// ptr returns a pointer to v for building fixtures.
func ptr[T any](v T) *T {
	return &v
}
