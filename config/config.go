package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and suppression-cache configuration
//   - services.go: Crawler, oracle, mailer, monitor, alert, scheduler, and
//     retention configuration
type AppConfig struct {
	// IsDev controls development mode behavior (verbose logging, seed data).
	IsDev bool `env:"DEV" envDefault:"false"`

	// MetricsAddr is the listen address for the Prometheus /metrics and
	// /healthz endpoints. Empty disables the listener.
	MetricsAddr string `env:"METRICS_ADDR" envDefault:""`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// Pipeline configuration
	Crawler   CrawlerConfig
	Oracle    OracleConfig
	Mailer    MailerConfig
	Monitor   MonitorConfig
	Profit    ProfitConfig
	Alert     AlertConfig
	Scheduler SchedulerConfig
	Retention RetentionConfig

	// Operator notification sinks for failed job runs
	Slack     SlackConfig
	PagerDuty PagerDutyConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Crawler.Sanitize()
	c.Oracle.Sanitize()
	c.Mailer.Sanitize()
	c.Monitor.Sanitize()
	c.Alert.Sanitize()
	c.Scheduler.Sanitize()
	c.Retention.Sanitize()
	c.Slack.Sanitize()
	c.PagerDuty.Sanitize()
}
