package config

import "time"

// CrawlerConfig contains matching-crawler configuration. SitesJSON and
// ProfilesJSON carry the per-site search endpoints and extraction selector
// profiles as JSON documents so deployments can add sites without a rebuild.
type CrawlerConfig struct {
	SitesJSON        string        `env:"CRAWLER_SITES_JSON"        envDefault:""`
	ProfilesJSON     string        `env:"CRAWLER_PROFILES_JSON"     envDefault:""`
	UserAgent        string        `env:"CRAWLER_USER_AGENT"        envDefault:"flipscout/1.0"`
	Timeout          time.Duration `env:"CRAWLER_TIMEOUT"           envDefault:"15s"`
	Parallelism      int           `env:"CRAWLER_PARALLELISM"       envDefault:"2"`
	Delay            time.Duration `env:"CRAWLER_DELAY"             envDefault:"500ms"`
	RandomDelay      time.Duration `env:"CRAWLER_RANDOM_DELAY"      envDefault:"500ms"`
	RespectRobotsTxt bool          `env:"CRAWLER_RESPECT_ROBOTS"    envDefault:"true"`
	MaxRetries       int           `env:"CRAWLER_MAX_RETRIES"       envDefault:"2"`
	RetryBackoff     time.Duration `env:"CRAWLER_RETRY_BACKOFF"     envDefault:"500ms"`
	RetryBackoffMax  time.Duration `env:"CRAWLER_RETRY_BACKOFF_MAX" envDefault:"10s"`
	VisitTTL         time.Duration `env:"CRAWLER_VISIT_TTL"         envDefault:"1h"`
}

// Sanitize applies guardrails to crawler configuration values.
func (c *CrawlerConfig) Sanitize() {
	if c.Parallelism < 1 {
		c.Parallelism = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
}

// OracleConfig contains pricing-oracle client configuration.
type OracleConfig struct {
	BaseURL    string        `env:"ORACLE_BASE_URL"      envDefault:""`
	APIKey     string        `env:"ORACLE_API_KEY"       envDefault:""`
	Timeout    time.Duration `env:"ORACLE_TIMEOUT"       envDefault:"10s"`
	RetryLimit int           `env:"ORACLE_RETRY_LIMIT"   envDefault:"2"`
	// CacheMaxAge is how old a cached marketplace price may be before the
	// profitability engine refreshes it from the oracle.
	CacheMaxAge time.Duration `env:"ORACLE_CACHE_MAX_AGE" envDefault:"72h"`
}

// Sanitize applies guardrails to oracle configuration values.
func (o *OracleConfig) Sanitize() {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.RetryLimit < 0 {
		o.RetryLimit = 0
	}
	if o.CacheMaxAge < 0 {
		o.CacheMaxAge = 0
	}
}

// MailerConfig contains the HTTP mail API configuration for alert delivery.
type MailerConfig struct {
	EndpointURL string        `env:"MAILER_ENDPOINT_URL" envDefault:""`
	APIKey      string        `env:"MAILER_API_KEY"      envDefault:""`
	From        string        `env:"MAILER_FROM"         envDefault:"alerts@flipscout.local"`
	To          []string      `env:"MAILER_TO"           envDefault:""`
	Timeout     time.Duration `env:"MAILER_TIMEOUT"      envDefault:"5s"`
	RetryLimit  int           `env:"MAILER_RETRY_LIMIT"  envDefault:"2"`
}

// Sanitize applies guardrails to mailer configuration values.
func (m *MailerConfig) Sanitize() {
	if m.Timeout <= 0 {
		m.Timeout = 5 * time.Second
	}
	if m.RetryLimit < 0 {
		m.RetryLimit = 0
	}
}

// SlackConfig contains the Slack webhook used for job failure notifications.
// Disabled when WebhookURL is empty.
type SlackConfig struct {
	WebhookURL string        `env:"SLACK_WEBHOOK_URL" envDefault:""`
	Channel    string        `env:"SLACK_CHANNEL"     envDefault:""`
	Username   string        `env:"SLACK_USERNAME"    envDefault:"flipscout"`
	Timeout    time.Duration `env:"SLACK_TIMEOUT"     envDefault:"5s"`
	RetryLimit int           `env:"SLACK_RETRY_LIMIT" envDefault:"2"`
}

// Sanitize applies guardrails to slack configuration values.
func (s *SlackConfig) Sanitize() {
	if s.Timeout <= 0 {
		s.Timeout = 5 * time.Second
	}
	if s.RetryLimit < 0 {
		s.RetryLimit = 0
	}
}

// PagerDutyConfig contains the Events API settings for paging on job
// failures. Disabled when RoutingKey is empty.
type PagerDutyConfig struct {
	RoutingKey string        `env:"PAGERDUTY_ROUTING_KEY" envDefault:""`
	Source     string        `env:"PAGERDUTY_SOURCE"      envDefault:"flipscout"`
	Component  string        `env:"PAGERDUTY_COMPONENT"   envDefault:"scheduler"`
	Timeout    time.Duration `env:"PAGERDUTY_TIMEOUT"     envDefault:"5s"`
	RetryLimit int           `env:"PAGERDUTY_RETRY_LIMIT" envDefault:"2"`
}

// Sanitize applies guardrails to pagerduty configuration values.
func (p *PagerDutyConfig) Sanitize() {
	if p.Timeout <= 0 {
		p.Timeout = 5 * time.Second
	}
	if p.RetryLimit < 0 {
		p.RetryLimit = 0
	}
}

// MonitorConfig contains monitoring-cycle configuration.
type MonitorConfig struct {
	// Concurrency is the number of listings re-checked in parallel.
	Concurrency int `env:"MONITOR_CONCURRENCY" envDefault:"4"`
	// BatchSize is the number of listings loaded per page.
	BatchSize int `env:"MONITOR_BATCH_SIZE" envDefault:"100"`
	// FetchTimeout bounds one listing page fetch.
	FetchTimeout time.Duration `env:"MONITOR_FETCH_TIMEOUT" envDefault:"15s"`
	// PriceDeltaAbs and PriceDeltaPct are the conjunctive materiality
	// thresholds for price changes.
	PriceDeltaAbs float64 `env:"MONITOR_PRICE_DELTA_ABS" envDefault:"1.0"`
	PriceDeltaPct float64 `env:"MONITOR_PRICE_DELTA_PCT" envDefault:"5.0"`
}

// Sanitize applies guardrails to monitor configuration values.
func (m *MonitorConfig) Sanitize() {
	if m.Concurrency < 1 {
		m.Concurrency = 1
	}
	if m.BatchSize < 1 {
		m.BatchSize = 1
	}
	if m.PriceDeltaAbs < 0 {
		m.PriceDeltaAbs = 0
	}
	if m.PriceDeltaPct < 0 {
		m.PriceDeltaPct = 0
	}
}

// ProfitConfig contains profitability-engine thresholds.
type ProfitConfig struct {
	MinMarginPercent float64 `env:"PROFIT_MIN_MARGIN_PERCENT" envDefault:"15.0"`
	MinProfitAmount  float64 `env:"PROFIT_MIN_PROFIT_AMOUNT"  envDefault:"5.0"`
}

// AlertConfig contains alert dispatcher configuration.
type AlertConfig struct {
	// SuppressionWindow is how long after a sent alert the same product
	// stays silenced.
	SuppressionWindow time.Duration `env:"ALERT_SUPPRESSION_WINDOW" envDefault:"24h"`
	// DigestMode batches a monitoring cycle's opportunities into one digest
	// per cycle instead of a notification per listing.
	DigestMode bool `env:"ALERT_DIGEST_MODE" envDefault:"false"`
	// DigestSize is the number of top opportunities included in a digest.
	DigestSize int `env:"ALERT_DIGEST_SIZE" envDefault:"10"`
	// LocalCacheSize bounds the in-process suppression cache.
	LocalCacheSize int `env:"ALERT_LOCAL_CACHE_SIZE" envDefault:"8192"`
}

// Sanitize applies guardrails to alert configuration values.
func (a *AlertConfig) Sanitize() {
	if a.SuppressionWindow <= 0 {
		a.SuppressionWindow = 24 * time.Hour
	}
	if a.DigestSize < 1 {
		a.DigestSize = 1
	}
	if a.LocalCacheSize < 1 {
		a.LocalCacheSize = 1024
	}
}

// SchedulerConfig contains job-scheduler configuration.
type SchedulerConfig struct {
	// Interval is the scheduler tick interval.
	Interval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"1m"`
}

// Sanitize applies guardrails to scheduler configuration values.
func (s *SchedulerConfig) Sanitize() {
	if s.Interval < time.Second {
		s.Interval = time.Second
	}
}

// RetentionConfig contains data-cleanup retention windows.
type RetentionConfig struct {
	ListingHistoryMaxAge time.Duration `env:"RETENTION_LISTING_HISTORY_MAX_AGE" envDefault:"2160h"`
	AlertRecordsMaxAge   time.Duration `env:"RETENTION_ALERT_RECORDS_MAX_AGE"   envDefault:"720h"`
	JobRunsMaxAge        time.Duration `env:"RETENTION_JOB_RUNS_MAX_AGE"        envDefault:"720h"`
	BatchSize            int           `env:"RETENTION_BATCH_SIZE"              envDefault:"1000"`
}

// Sanitize applies guardrails to retention configuration values.
func (r *RetentionConfig) Sanitize() {
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.ListingHistoryMaxAge < time.Hour {
		r.ListingHistoryMaxAge = time.Hour
	}
	if r.AlertRecordsMaxAge < time.Hour {
		r.AlertRecordsMaxAge = time.Hour
	}
	if r.JobRunsMaxAge < time.Hour {
		r.JobRunsMaxAge = time.Hour
	}
}
