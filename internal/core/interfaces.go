// Package core defines the port interfaces the service layer depends on.
// Repositories are implemented by internal/data, the remaining ports by the
// adapters; services only ever see these interfaces so tests can substitute
// mocks.
package core

import (
	"context"
	"database/sql"
	"time"

	"github.com/flipscout/flipscout/internal/data"
	"github.com/flipscout/flipscout/internal/domain/model"
)

// ProductRepository persists canonical marketplace products.
type ProductRepository interface {
	Upsert(ctx context.Context, req *model.IngestProductRequest) (*model.Product, error)
	GetByID(ctx context.Context, id string) (*model.Product, error)
	GetByMarketplaceID(ctx context.Context, marketplaceID string) (*model.Product, error)
	List(ctx context.Context, limit, offset int) ([]*model.Product, error)
	SetPricing(ctx context.Context, params data.SetPricingParams) error
	Touch(ctx context.Context, id string) error
}

// ListingRepository persists discovered listings and their change history.
type ListingRepository interface {
	UpsertDiscovered(ctx context.Context, req *model.UpsertListingRequest) (*model.Listing, bool, error)
	GetByID(ctx context.Context, id string) (*model.Listing, error)
	ListByProduct(ctx context.Context, productID string) ([]*model.Listing, error)
	ListForMonitoring(ctx context.Context, limit, offset int) ([]*model.Listing, error)
	ApplyObservation(ctx context.Context, params data.ApplyObservationParams) error
	HistoryByListing(ctx context.Context, listingID string, limit int) ([]*model.ListingHistoryEvent, error)
	DeleteHistoryOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

// AlertRecordRepository persists the append-only notification log used for
// dedup.
type AlertRecordRepository interface {
	Create(ctx context.Context, productID string, kind model.AlertKind) (*model.AlertRecord, error)
	ExistsSince(ctx context.Context, productID string, since time.Time) (bool, error)
	ListByProduct(ctx context.Context, productID string, limit int) ([]*model.AlertRecord, error)
	DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

// ScheduledJobRepository persists recurring job definitions.
type ScheduledJobRepository interface {
	EnsureDefaults(ctx context.Context) error
	FindDue(ctx context.Context, now time.Time) ([]*model.ScheduledJob, error)
	GetByType(ctx context.Context, jobType model.JobType) (*model.ScheduledJob, error)
	List(ctx context.Context) ([]*model.ScheduledJob, error)
	Reschedule(ctx context.Context, params data.RescheduleParams) error
	SetStatus(ctx context.Context, id string, status model.ScheduledJobStatus) error
	TryWithJobLock(ctx context.Context, jobType model.JobType, fn func(context.Context, *sql.Tx) error) (bool, error)
}

// JobRunRepository persists the per-execution audit trail.
type JobRunRepository interface {
	Start(ctx context.Context, jobID string) (*model.JobRun, error)
	Complete(ctx context.Context, runID string, summary string) error
	Fail(ctx context.Context, runID string, errMessage string) error
	HasRunning(ctx context.Context, jobID string) (bool, error)
	ListRecent(ctx context.Context, jobID string, limit int) ([]*model.JobRun, error)
	DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

// PricingQuote is one answer from the marketplace pricing oracle.
type PricingQuote struct {
	MarketplaceID string
	Price         float64
	Fees          float64
	RetrievedAt   time.Time
}

// PricingOracle answers what a product currently sells for on the target
// marketplace and the fees a sale would incur.
type PricingOracle interface {
	Quote(ctx context.Context, marketplaceID string) (*PricingQuote, error)
}

// FetchedPage is the raw result of fetching a listing URL.
type FetchedPage struct {
	URL        string
	StatusCode int
	Body       []byte
	FetchedAt  time.Time
}

// PageFetcher retrieves a single page for monitoring re-checks. Discovery
// crawling has its own collector; this port covers targeted re-fetches of
// known listing URLs.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedPage, error)
}

// AlertMessage is one formatted notification ready for delivery.
type AlertMessage struct {
	Subject string
	Body    string
}

// AlertTransport delivers formatted notifications to the operator.
type AlertTransport interface {
	Send(ctx context.Context, msg AlertMessage) error
}

// SuppressionCache is the fast path in front of the durable alert_records
// check. Seen is best-effort: a cache miss falls through to the database, so
// implementations may lose entries without breaking dedup.
type SuppressionCache interface {
	Seen(ctx context.Context, productID string) (bool, error)
	MarkSeen(ctx context.Context, productID string, ttl time.Duration) error
}

// DiscoveredListing is one listing found by the discovery crawler, not yet
// persisted.
type DiscoveredListing struct {
	SiteID     string
	ListingURL string
	Facts      model.ListingFacts
}

// ListingCrawler searches retail sites for a product and returns the usable
// listings it found.
type ListingCrawler interface {
	Discover(ctx context.Context, product *model.Product) ([]DiscoveredListing, error)
}
