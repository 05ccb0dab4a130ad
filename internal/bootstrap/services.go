package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/flipscout/flipscout/config"
	"github.com/flipscout/flipscout/internal/adapters/crawler"
	"github.com/flipscout/flipscout/internal/adapters/fetch"
	"github.com/flipscout/flipscout/internal/adapters/oracle"
	flipredis "github.com/flipscout/flipscout/internal/adapters/redis"
	"github.com/flipscout/flipscout/internal/core"
	"github.com/flipscout/flipscout/internal/data"
	"github.com/flipscout/flipscout/internal/domain/change"
	"github.com/flipscout/flipscout/internal/domain/extract"
	"github.com/flipscout/flipscout/internal/domain/profit"
	"github.com/flipscout/flipscout/internal/observability/metrics"
	"github.com/flipscout/flipscout/internal/observability/notify"
	"github.com/flipscout/flipscout/internal/observability/notify/mailer"
	"github.com/flipscout/flipscout/internal/observability/notify/pagerduty"
	"github.com/flipscout/flipscout/internal/observability/notify/slack"
	"github.com/flipscout/flipscout/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Products  *service.ProductService
	Discovery *service.DiscoveryService
	Profit    *service.ProfitService
	Monitor   *service.MonitorService
	Alerts    *service.AlertService
	Scheduler *service.SchedulerService
	Retention *service.RetentionService

	CrawlerMetrics *crawler.Metrics
	JobMetrics     *metrics.JobMetrics
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient goredis.UniversalClient
	Logger      *slog.Logger
}

// BuildServices constructs the full pipeline: repositories, adapters, and
// services, wired per the loaded configuration.
func BuildServices(deps ServiceDeps) (*ServiceContainer, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	productRepo := data.NewProductRepo(deps.DB)
	listingRepo := data.NewListingRepo(deps.DB)
	alertRecordRepo := data.NewAlertRecordRepo(deps.DB)
	scheduledJobRepo := data.NewScheduledJobRepo(deps.DB)
	jobRunRepo := data.NewJobRunRepo(deps.DB)

	profiles, err := extract.ParseProfileSet(cfg.Crawler.ProfilesJSON)
	if err != nil {
		return nil, err
	}

	listingCrawler, crawlerMetrics, err := buildCrawler(cfg.Crawler, profiles, logger)
	if err != nil {
		return nil, err
	}

	oracleClient, err := oracle.NewClient(oracle.Config{
		BaseURL:    cfg.Oracle.BaseURL,
		APIKey:     cfg.Oracle.APIKey,
		Timeout:    cfg.Oracle.Timeout,
		RetryLimit: cfg.Oracle.RetryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("build oracle client: %w", err)
	}

	transport, err := buildAlertTransport(cfg.Mailer, logger)
	if err != nil {
		return nil, err
	}

	suppression := flipredis.NewSuppressionStore(flipredis.Options{
		Client:         deps.RedisClient,
		LocalCacheSize: cfg.Alert.LocalCacheSize,
		LocalTTL:       cfg.Alert.SuppressionWindow,
	})

	fetcher := fetch.NewFetcher(fetch.Config{
		UserAgent:       cfg.Crawler.UserAgent,
		Timeout:         cfg.Monitor.FetchTimeout,
		MaxRetries:      cfg.Crawler.MaxRetries,
		RetryBackoff:    cfg.Crawler.RetryBackoff,
		RetryBackoffMax: cfg.Crawler.RetryBackoffMax,
	})

	products := service.NewProductService(service.ProductServiceOptions{
		Repo:   productRepo,
		Logger: logger,
	})

	profitSvc := service.NewProfitService(service.ProfitServiceOptions{
		Products: productRepo,
		Oracle:   oracleClient,
		Config: service.ProfitConfig{
			Thresholds: profit.Thresholds{
				MinMarginPercent: cfg.Profit.MinMarginPercent,
				MinProfitAmount:  cfg.Profit.MinProfitAmount,
			},
			PricingMaxAge: cfg.Oracle.CacheMaxAge,
		},
		Logger: logger,
	})

	alerts := service.NewAlertService(service.AlertServiceOptions{
		Records:   alertRecordRepo,
		Transport: transport,
		Cache:     suppression,
		Config: service.AlertConfig{
			SuppressionWindow: cfg.Alert.SuppressionWindow,
			DigestSize:        cfg.Alert.DigestSize,
		},
		Logger: logger,
	})

	discovery := service.NewDiscoveryService(service.DiscoveryServiceOptions{
		Products: productRepo,
		Listings: listingRepo,
		Crawler:  listingCrawler,
		Logger:   logger,
	})

	monitor := service.NewMonitorService(service.MonitorServiceOptions{
		Listings:  listingRepo,
		Products:  productRepo,
		Fetcher:   fetcher,
		Profiles:  profiles,
		Evaluator: profitSvc,
		Notifier:  alerts,
		Digest:    alerts,
		Config: service.MonitorConfig{
			Concurrency: cfg.Monitor.Concurrency,
			BatchSize:   cfg.Monitor.BatchSize,
			Thresholds: change.Thresholds{
				MinAbsoluteChange:   cfg.Monitor.PriceDeltaAbs,
				MinPercentageChange: cfg.Monitor.PriceDeltaPct,
			},
			DigestMode: cfg.Alert.DigestMode,
		},
		Logger: logger,
	})

	retention := service.NewRetentionService(service.RetentionServiceOptions{
		Listings:     listingRepo,
		AlertRecords: alertRecordRepo,
		JobRuns:      jobRunRepo,
		Config: service.RetentionConfig{
			ListingHistoryMaxAge: cfg.Retention.ListingHistoryMaxAge,
			AlertRecordsMaxAge:   cfg.Retention.AlertRecordsMaxAge,
			JobRunsMaxAge:        cfg.Retention.JobRunsMaxAge,
			BatchSize:            cfg.Retention.BatchSize,
		},
		Logger: logger,
	})

	failureSink, err := buildFailureSink(cfg, logger)
	if err != nil {
		return nil, err
	}

	jobMetrics := metrics.NewJobMetrics()
	scheduler := service.NewSchedulerService(service.SchedulerServiceOptions{
		Jobs:      scheduledJobRepo,
		Runs:      jobRunRepo,
		Monitor:   monitor,
		Discovery: discovery,
		Cleanup:   retention,
		Config: service.SchedulerConfig{
			PollInterval:       cfg.Scheduler.Interval,
			DiscoveryBatchSize: cfg.Monitor.BatchSize,
		},
		Metrics:     jobMetrics,
		FailureSink: failureSink,
		Logger:      logger,
	})

	return &ServiceContainer{
		Products:       products,
		Discovery:      discovery,
		Profit:         profitSvc,
		Monitor:        monitor,
		Alerts:         alerts,
		Scheduler:      scheduler,
		Retention:      retention,
		CrawlerMetrics: crawlerMetrics,
		JobMetrics:     jobMetrics,
	}, nil
}

// buildFailureSink assembles the operator notification fanout for failed job
// runs. Sinks whose credentials are absent are simply not wired.
//
//nolint:ireturn // callers depend on the sink interface, not a concrete client.
func buildFailureSink(cfg *config.AppConfig, logger *slog.Logger) (notify.Sink, error) {
	var sinks notify.Fanout

	if cfg.Slack.WebhookURL != "" {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Slack.Timeout,
			RetryLimit: cfg.Slack.RetryLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("build slack sink: %w", err)
		}
		sinks = append(sinks, client)
	}

	if cfg.PagerDuty.RoutingKey != "" {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.PagerDuty.Timeout,
			RetryLimit: cfg.PagerDuty.RetryLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("build pagerduty sink: %w", err)
		}
		sinks = append(sinks, client)
	}

	if len(sinks) == 0 {
		logger.Info("no failure notification sinks configured")
		return nil, nil
	}
	return sinks, nil
}

func buildCrawler(cfg config.CrawlerConfig, profiles extract.ProfileSet, logger *slog.Logger) (core.ListingCrawler, *crawler.Metrics, error) {
	sites, err := crawler.ParseSites(cfg.SitesJSON)
	if err != nil {
		return nil, nil, err
	}
	if len(sites) == 0 {
		return nil, nil, fmt.Errorf("no crawler sites configured; set CRAWLER_SITES_JSON")
	}

	crawlMetrics := crawler.NewMetrics()
	c, err := crawler.New(crawler.Options{
		Config: crawler.Config{
			Sites:            sites,
			Profiles:         profiles,
			UserAgent:        cfg.UserAgent,
			Timeout:          cfg.Timeout,
			Parallelism:      cfg.Parallelism,
			Delay:            cfg.Delay,
			RandomDelay:      cfg.RandomDelay,
			RespectRobotsTxt: cfg.RespectRobotsTxt,
			MaxRetries:       cfg.MaxRetries,
			RetryBackoff:     cfg.RetryBackoff,
			RetryBackoffMax:  cfg.RetryBackoffMax,
			VisitTTL:         cfg.VisitTTL,
		},
		Logger:  logger,
		Metrics: crawlMetrics,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build crawler: %w", err)
	}
	return c, crawlMetrics, nil
}

// buildAlertTransport wires the mail client, falling back to a log-only
// transport when no endpoint is configured so development runs without a
// mail API.
//
//nolint:ireturn // callers depend on the port, not a concrete transport.
func buildAlertTransport(cfg config.MailerConfig, logger *slog.Logger) (core.AlertTransport, error) {
	if cfg.EndpointURL == "" {
		logger.Warn("no mailer endpoint configured, alerts will only be logged")
		return &logTransport{logger: logger.With("component", "log_transport")}, nil
	}

	client, err := mailer.NewClient(mailer.Config{
		EndpointURL: cfg.EndpointURL,
		APIKey:      cfg.APIKey,
		From:        cfg.From,
		To:          cfg.To,
		Timeout:     cfg.Timeout,
		RetryLimit:  cfg.RetryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("build mailer: %w", err)
	}
	return client, nil
}

type logTransport struct {
	logger *slog.Logger
}

func (t *logTransport) Send(ctx context.Context, msg core.AlertMessage) error {
	t.logger.InfoContext(ctx, "alert", "subject", msg.Subject, "body", msg.Body)
	return nil
}
