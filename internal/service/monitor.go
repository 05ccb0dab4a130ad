package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/flipscout/flipscout/internal/core"
	"github.com/flipscout/flipscout/internal/data"
	"github.com/flipscout/flipscout/internal/domain/change"
	"github.com/flipscout/flipscout/internal/domain/extract"
	"github.com/flipscout/flipscout/internal/domain/model"
)

// OpportunityEvaluator classifies a product/listing pair. Implemented by
// ProfitService.
type OpportunityEvaluator interface {
	EvaluateListing(ctx context.Context, product *model.Product, listing *model.Listing) (*model.Opportunity, error)
}

// OpportunityNotifier dispatches a profitable opportunity. Implemented by
// AlertService.
type OpportunityNotifier interface {
	NotifyOpportunity(ctx context.Context, opp *model.Opportunity) (bool, error)
}

// DigestNotifier sends one message covering a batch of opportunities.
// Implemented by AlertService.
type DigestNotifier interface {
	SendDigest(ctx context.Context, opps []*model.Opportunity) (int, error)
}

// MonitorConfig groups the monitoring cycle's tunables.
type MonitorConfig struct {
	// Concurrency bounds how many listings are re-checked in parallel.
	Concurrency int
	// BatchSize is how many listings one page of the monitoring scan loads.
	BatchSize int
	// Thresholds controls what counts as a material price move.
	Thresholds change.Thresholds
	// DigestMode batches a cycle's profitable opportunities into one digest
	// sent at the end of the cycle instead of alerting per listing.
	DigestMode bool
}

// DefaultMonitorConfig returns the stock cycle tuning.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Concurrency: 4,
		BatchSize:   100,
		Thresholds:  change.DefaultThresholds(),
	}
}

// MonitorServiceOptions groups dependencies for MonitorService.
type MonitorServiceOptions struct {
	Listings  core.ListingRepository // Required: listing repository
	Products  core.ProductRepository // Required: product repository
	Fetcher   core.PageFetcher       // Required: listing page fetcher
	Profiles  extract.ProfileSet     // Field-selector profiles per site
	Evaluator OpportunityEvaluator   // Required: profitability engine
	Notifier  OpportunityNotifier    // Required: alert dispatcher
	Digest    DigestNotifier         // Required in digest mode
	Config    MonitorConfig
	TimeProvider data.TimeProvider // Optional: defaults to real time
	Logger       *slog.Logger      // Optional: structured logger
}

// MonitorService re-checks every known listing, records material changes,
// and pushes in-stock listings through profitability evaluation and alert
// dispatch.
type MonitorService struct {
	listings     core.ListingRepository
	products     core.ProductRepository
	fetcher      core.PageFetcher
	profiles     extract.ProfileSet
	evaluator    OpportunityEvaluator
	notifier     OpportunityNotifier
	digest       DigestNotifier
	cfg          MonitorConfig
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

// NewMonitorService constructs a new MonitorService.
func NewMonitorService(opts MonitorServiceOptions) *MonitorService {
	if opts.Listings == nil {
		panic("ListingRepository is required")
	}
	if opts.Products == nil {
		panic("ProductRepository is required")
	}
	if opts.Fetcher == nil {
		panic("PageFetcher is required")
	}
	if opts.Evaluator == nil {
		panic("OpportunityEvaluator is required")
	}
	if opts.Notifier == nil {
		panic("OpportunityNotifier is required")
	}
	if opts.Config.DigestMode && opts.Digest == nil {
		panic("DigestNotifier is required in digest mode")
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cfg := opts.Config
	def := DefaultMonitorConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Thresholds == (change.Thresholds{}) {
		cfg.Thresholds = def.Thresholds
	}

	return &MonitorService{
		listings:     opts.Listings,
		products:     opts.Products,
		fetcher:      opts.Fetcher,
		profiles:     opts.Profiles,
		evaluator:    opts.Evaluator,
		notifier:     opts.Notifier,
		digest:       opts.Digest,
		cfg:          cfg,
		timeProvider: opts.TimeProvider,
		logger:       opts.Logger.With("component", "monitor_service"),
	}
}

// CycleSummary counts what one monitoring cycle did.
type CycleSummary struct {
	Checked     int
	FetchFailed int
	Unusable    int
	Changed     int
	AlertsSent  int

	mu sync.Mutex
}

func (s *CycleSummary) add(fn func(*CycleSummary)) {
	s.mu.Lock()
	fn(s)
	s.mu.Unlock()
}

// String renders the summary for job-run bookkeeping.
func (s *CycleSummary) String() string {
	return fmt.Sprintf("checked=%d fetch_failed=%d unusable=%d changed=%d alerts_sent=%d",
		s.Checked, s.FetchFailed, s.Unusable, s.Changed, s.AlertsSent)
}

// opportunityBatch collects a cycle's profitable opportunities for the
// end-of-cycle digest.
type opportunityBatch struct {
	mu   sync.Mutex
	opps []*model.Opportunity
}

func (b *opportunityBatch) add(opp *model.Opportunity) {
	b.mu.Lock()
	b.opps = append(b.opps, opp)
	b.mu.Unlock()
}

func (b *opportunityBatch) take() []*model.Opportunity {
	b.mu.Lock()
	defer b.mu.Unlock()
	opps := b.opps
	b.opps = nil
	return opps
}

// RunCycle pages through every listing and re-checks each with bounded
// concurrency. Per-listing failures are counted, not fatal; only repository
// paging errors or context cancellation abort the cycle.
func (s *MonitorService) RunCycle(ctx context.Context) (*CycleSummary, error) {
	summary := &CycleSummary{}
	started := s.timeProvider.Now()

	var batch *opportunityBatch
	if s.cfg.DigestMode {
		batch = &opportunityBatch{}
	}

	offset := 0
	for {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		listings, err := s.listings.ListForMonitoring(ctx, s.cfg.BatchSize, offset)
		if err != nil {
			return summary, fmt.Errorf("list listings for monitoring: %w", err)
		}
		if len(listings) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.Concurrency)
		for _, listing := range listings {
			g.Go(func() error {
				s.checkListing(gctx, listing, summary, batch)
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return summary, err
		}

		offset += len(listings)
	}

	if batch != nil {
		s.sendDigest(ctx, batch, summary)
	}

	s.logger.InfoContext(ctx, "monitoring cycle finished",
		"checked", summary.Checked,
		"fetch_failed", summary.FetchFailed,
		"unusable", summary.Unusable,
		"changed", summary.Changed,
		"alerts_sent", summary.AlertsSent,
		"elapsed", s.timeProvider.Now().Sub(started),
	)
	return summary, nil
}

// checkListing re-fetches one listing, applies the observation, and runs the
// profitability path when the listing is in stock. Failures are logged and
// counted so one bad listing never stalls the cycle.
func (s *MonitorService) checkListing(ctx context.Context, listing *model.Listing, summary *CycleSummary, batch *opportunityBatch) {
	summary.add(func(c *CycleSummary) { c.Checked++ })

	page, err := s.fetcher.Fetch(ctx, listing.ListingURL)
	if err != nil {
		summary.add(func(c *CycleSummary) { c.FetchFailed++ })
		s.logger.WarnContext(ctx, "listing fetch failed",
			"listing_id", listing.ID,
			"listing_url", listing.ListingURL,
			"error", err,
		)
		return
	}

	facts, err := s.extractFacts(listing, page)
	if err != nil || !facts.Usable() {
		summary.add(func(c *CycleSummary) { c.Unusable++ })
		s.logger.WarnContext(ctx, "listing page unusable",
			"listing_id", listing.ID,
			"listing_url", listing.ListingURL,
			"error", err,
		)
		return
	}

	obs := change.Observation{Price: *facts.Price, InStock: facts.InStock}
	result := change.Detect(listing.Price, listing.InStock, obs, s.cfg.Thresholds)

	if err := s.listings.ApplyObservation(ctx, data.ApplyObservationParams{
		ListingID:  listing.ID,
		Price:      obs.Price,
		InStock:    obs.InStock,
		Material:   result.Material(),
		ObservedAt: s.timeProvider.Now().UTC(),
	}); err != nil {
		s.logger.ErrorContext(ctx, "apply observation failed", "listing_id", listing.ID, "error", err)
		return
	}
	if result.Material() {
		summary.add(func(c *CycleSummary) { c.Changed++ })
	}

	if !obs.InStock {
		return
	}

	// Evaluate the freshly observed state, not the stale stored row.
	current := *listing
	current.Price = obs.Price
	current.InStock = obs.InStock
	s.evaluateAndNotify(ctx, &current, summary, batch)
}

func (s *MonitorService) evaluateAndNotify(ctx context.Context, listing *model.Listing, summary *CycleSummary, batch *opportunityBatch) {
	product, err := s.products.GetByID(ctx, listing.ProductID)
	if err != nil {
		s.logger.WarnContext(ctx, "product lookup failed", "product_id", listing.ProductID, "error", err)
		return
	}

	opp, err := s.evaluator.EvaluateListing(ctx, product, listing)
	if err != nil {
		s.logger.WarnContext(ctx, "profitability evaluation failed",
			"product_id", product.ID,
			"listing_id", listing.ID,
			"error", err,
		)
		return
	}
	if !opp.Verdict.IsProfitable {
		return
	}

	// Digest mode defers dispatch to the end of the cycle.
	if batch != nil {
		batch.add(opp)
		return
	}

	sent, err := s.notifier.NotifyOpportunity(ctx, opp)
	if err != nil {
		s.logger.WarnContext(ctx, "alert dispatch failed",
			"product_id", product.ID,
			"listing_id", listing.ID,
			"error", err,
		)
		return
	}
	if sent {
		summary.add(func(c *CycleSummary) { c.AlertsSent++ })
	}
}

// sendDigest flushes the batch collected during a digest-mode cycle.
// Suppression is the digest sender's concern, so everything collected goes.
func (s *MonitorService) sendDigest(ctx context.Context, batch *opportunityBatch, summary *CycleSummary) {
	opps := batch.take()
	if len(opps) == 0 {
		return
	}

	entries, err := s.digest.SendDigest(ctx, opps)
	if err != nil {
		s.logger.ErrorContext(ctx, "digest dispatch failed", "opportunities", len(opps), "error", err)
		return
	}
	if entries > 0 {
		summary.add(func(c *CycleSummary) { c.AlertsSent += entries })
	}
}

func (s *MonitorService) extractFacts(listing *model.Listing, page *core.FetchedPage) (*model.ListingFacts, error) {
	host := ""
	if u, err := url.Parse(listing.ListingURL); err == nil {
		host = u.Hostname()
	}
	return extract.Extract(extract.Page{
		SiteID: listing.SiteID,
		URL:    listing.ListingURL,
		Body:   bytes.NewReader(page.Body),
	}, s.profiles.Resolve(host))
}
