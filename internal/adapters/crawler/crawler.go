// Package crawler implements the matching crawler: given a canonical
// product, it searches configured retail sites, follows result links to
// product pages, and extracts listing facts from them.
package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/flipscout/flipscout/internal/adapters/fetch"
	"github.com/flipscout/flipscout/internal/core"
	"github.com/flipscout/flipscout/internal/domain/extract"
	"github.com/flipscout/flipscout/internal/domain/match"
	"github.com/flipscout/flipscout/internal/domain/model"
	"github.com/gocolly/colly/v2"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	queryPlaceholder        = "{query}"
	defaultMaxResults       = 10
	defaultVisitedCacheSize = 4096
)

// SiteConfig describes one retail site the crawler searches.
type SiteConfig struct {
	SiteID             string `json:"site_id"`
	Host               string `json:"host"`
	SearchURL          string `json:"search_url"`
	ResultLinkSelector string `json:"result_link_selector"`
	MaxResults         int    `json:"max_results,omitempty"`
}

// Validate checks the site entry is complete enough to crawl.
func (s SiteConfig) Validate() error {
	if strings.TrimSpace(s.SiteID) == "" {
		return errors.New("site_id is required")
	}
	if strings.TrimSpace(s.Host) == "" {
		return errors.New("host is required")
	}
	if !strings.Contains(s.SearchURL, queryPlaceholder) {
		return fmt.Errorf("search_url must contain %s", queryPlaceholder)
	}
	if strings.TrimSpace(s.ResultLinkSelector) == "" {
		return errors.New("result_link_selector is required")
	}
	return nil
}

// ParseSites decodes the JSON site list deployments provide via
// configuration.
func ParseSites(raw string) ([]SiteConfig, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var sites []SiteConfig
	if err := json.Unmarshal([]byte(raw), &sites); err != nil {
		return nil, fmt.Errorf("parse crawler sites: %w", err)
	}
	return sites, nil
}

// Config captures the crawler's HTTP and politeness behaviour.
type Config struct {
	Sites            []SiteConfig
	Profiles         extract.ProfileSet
	UserAgent        string
	Timeout          time.Duration
	Parallelism      int
	Delay            time.Duration
	RandomDelay      time.Duration
	RespectRobotsTxt bool
	MaxRetries       int
	RetryBackoff     time.Duration
	RetryBackoffMax  time.Duration
	// VisitTTL suppresses re-fetching a product page visited this recently.
	VisitTTL         time.Duration
	VisitedCacheSize int
}

// Crawler searches retail sites for product listings. It implements
// core.ListingCrawler.
type Crawler struct {
	cfg       Config
	logger    *slog.Logger
	metrics   *Metrics
	visited   *lru.Cache[string, time.Time]
	transport http.RoundTripper
	now       func() time.Time
}

// Options groups the crawler's constructor dependencies.
type Options struct {
	Config  Config
	Logger  *slog.Logger
	Metrics *Metrics
}

// New builds a Crawler from opts, validating every site entry.
func New(opts Options) (*Crawler, error) {
	cfg := opts.Config
	if len(cfg.Sites) == 0 {
		return nil, errors.New("at least one site is required")
	}
	for i, site := range cfg.Sites {
		if err := site.Validate(); err != nil {
			return nil, fmt.Errorf("site %d: %w", i, err)
		}
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 2
	}

	cacheSize := cfg.VisitedCacheSize
	if cacheSize <= 0 {
		cacheSize = defaultVisitedCacheSize
	}
	visited, err := lru.New[string, time.Time](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create visited cache: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Crawler{
		cfg:     cfg,
		logger:  logger.With("component", "crawler"),
		metrics: opts.Metrics,
		visited: visited,
		now:     time.Now,
	}, nil
}

// WithTransport overrides the HTTP transport for all collectors. Intended
// for tests.
func (c *Crawler) WithTransport(rt http.RoundTripper) {
	c.transport = rt
}

// Metrics returns the crawler's metrics bundle, which may be nil.
func (c *Crawler) Metrics() *Metrics {
	return c.metrics
}

// Discover searches every configured site for the product and returns the
// usable listings found. Per-site failures are logged and skipped so one
// unreachable site cannot starve the rest.
func (c *Crawler) Discover(ctx context.Context, product *model.Product) ([]core.DiscoveredListing, error) {
	queries := match.BuildQueries(product)
	if len(queries) == 0 {
		return nil, errors.New("product yields no search queries")
	}

	// One session id per crawl so all log lines of a product's crawl
	// correlate.
	logger := c.logger.With("crawl_session", uuid.NewString(), "product_id", product.ID)

	var all []core.DiscoveredListing
	for _, site := range c.cfg.Sites {
		if ctx.Err() != nil {
			return all, ctx.Err()
		}

		found, err := c.searchSite(ctx, site, queries)
		if err != nil {
			logger.WarnContext(ctx, "site search failed",
				"site_id", site.SiteID,
				"error", err,
			)
			continue
		}
		all = append(all, found...)
	}
	return all, nil
}

// searchSite tries the queries in priority order and returns the listings of
// the first query that yields any.
func (c *Crawler) searchSite(ctx context.Context, site SiteConfig, queries []string) ([]core.DiscoveredListing, error) {
	for _, query := range queries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		listings, err := c.runSearch(ctx, site, query)
		if err != nil {
			return nil, err
		}
		if len(listings) > 0 {
			return listings, nil
		}
	}
	return nil, nil
}

// runSearch executes one search query against one site: fetch the search
// page, follow result links, extract facts from each product page.
func (c *Crawler) runSearch(ctx context.Context, site SiteConfig, query string) ([]core.DiscoveredListing, error) {
	searchCollector, err := c.newCollector(site.Host)
	if err != nil {
		return nil, err
	}
	pageCollector := searchCollector.Clone()
	// colly marks a URL visited before the fetch, so a failed page could
	// never be retried without this. Link dedup moves to the seen map below.
	pageCollector.AllowURLRevisit = true

	retry := newRetryManager(pageCollector, retryConfig{
		MaxRetries: c.cfg.MaxRetries,
		Backoff:    c.cfg.RetryBackoff,
		BackoffMax: c.cfg.RetryBackoffMax,
	}, c.metrics)
	retry.SetContext(ctx)
	defer retry.Stop()

	maxResults := site.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	var mu sync.Mutex
	var found []core.DiscoveredListing
	seen := make(map[string]struct{})
	followed := 0

	searchCollector.OnHTML(site.ResultLinkSelector, func(e *colly.HTMLElement) {
		if ctx.Err() != nil {
			return
		}
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" {
			return
		}

		mu.Lock()
		if _, dup := seen[link]; dup || followed >= maxResults {
			mu.Unlock()
			return
		}
		seen[link] = struct{}{}
		followed++
		mu.Unlock()

		if c.recentlyVisited(link) {
			c.metrics.IncSkipped()
			return
		}
		if visitErr := pageCollector.Visit(link); visitErr != nil {
			c.logger.Debug("visit result link failed", "url", link, "error", visitErr)
		}
	})

	pageCollector.OnResponse(func(r *colly.Response) {
		pageURL := r.Request.URL.String()
		profile := c.cfg.Profiles.Resolve(r.Request.URL.Hostname())

		facts, extractErr := extract.Extract(extract.Page{
			SiteID: site.SiteID,
			URL:    pageURL,
			Body:   bytes.NewReader(r.Body),
		}, profile)
		if extractErr != nil {
			c.metrics.IncError("extract")
			c.logger.Warn("extract failed", "url", pageURL, "error", extractErr)
			return
		}

		c.markVisited(pageURL)
		if !facts.Usable() {
			return
		}

		c.metrics.IncListings()
		mu.Lock()
		found = append(found, core.DiscoveredListing{
			SiteID:     site.SiteID,
			ListingURL: pageURL,
			Facts:      *facts,
		})
		mu.Unlock()
	})

	c.instrument(searchCollector, nil)
	c.instrument(pageCollector, retry)

	searchURL := strings.ReplaceAll(site.SearchURL, queryPlaceholder, url.QueryEscape(query))
	if visitErr := searchCollector.Visit(searchURL); visitErr != nil {
		return nil, fmt.Errorf("visit search page: %w", visitErr)
	}

	searchCollector.Wait()
	pageCollector.Wait()
	for retry.Drain() {
		pageCollector.Wait()
	}

	mu.Lock()
	defer mu.Unlock()
	return found, nil
}

func (c *Crawler) newCollector(host string) (*colly.Collector, error) {
	collector := colly.NewCollector(
		colly.Async(true),
		colly.AllowedDomains(host),
		colly.UserAgent(c.cfg.UserAgent),
	)
	collector.SetRequestTimeout(c.cfg.Timeout)
	collector.IgnoreRobotsTxt = !c.cfg.RespectRobotsTxt

	if c.transport != nil {
		collector.WithTransport(c.transport)
	} else {
		collector.WithTransport(&http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   c.cfg.Timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		})
	}

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: c.cfg.Parallelism,
		Delay:       c.cfg.Delay,
		RandomDelay: c.cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}
	return collector, nil
}

// instrument attaches request/response/error hooks. retry may be nil for
// collectors whose failures should not be retried.
func (c *Crawler) instrument(collector *colly.Collector, retry *retryManager) {
	collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		c.metrics.IncRequest("started")
	})

	collector.OnResponse(func(r *colly.Response) {
		if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
			c.metrics.ObserveDuration(time.Since(start))
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		requestURL := ""
		if r != nil {
			statusCode = r.StatusCode
			if r.Request != nil && r.Request.URL != nil {
				requestURL = r.Request.URL.String()
			}
		}

		classified := classifyCrawlError(err, statusCode)
		label := fetch.ErrorTypeLabel(classified)
		c.metrics.IncError(label)
		c.logger.Warn("request error",
			"url", requestURL,
			"category", label,
			"error", err,
		)

		if retry != nil && fetch.Retryable(classified) {
			retry.Schedule(requestURL)
		}
	})
}

func (c *Crawler) recentlyVisited(pageURL string) bool {
	if c.cfg.VisitTTL <= 0 {
		return false
	}
	at, ok := c.visited.Get(pageURL)
	if !ok {
		return false
	}
	return c.now().Sub(at) < c.cfg.VisitTTL
}

func (c *Crawler) markVisited(pageURL string) {
	if c.cfg.VisitTTL <= 0 {
		return
	}
	c.visited.Add(pageURL, c.now())
}

func classifyCrawlError(err error, statusCode int) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fetch.ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fetch.ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fetch.ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch {
		case statusCode == http.StatusForbidden:
			return fetch.ErrForbidden{Err: wrapped}
		case statusCode == http.StatusNotFound:
			return fetch.ErrNotFound{Err: wrapped}
		case statusCode == http.StatusTooManyRequests:
			return fetch.ErrRateLimited{Err: wrapped}
		case statusCode >= 500:
			return fetch.ErrServer{Err: wrapped}
		}
	}
	return err
}
