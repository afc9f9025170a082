// Package config parses and validates all application configuration from
// environment variables using caarlos0/env/v11.
//
// Call [Load] once at startup; pass the resulting [Config] to constructors.
// The process exits if any field tagged "required" is missing — configuration
// is never read from the ambient environment after startup.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration sourced from environment variables.
type Config struct {
	// ── Database ─────────────────────────────────────────────────────────────────
	DatabaseURL          string        `env:"DATABASE_URL,required"`
	DBMaxConns           int32         `env:"DB_MAX_CONNS"            envDefault:"25"`
	DBMaxConnIdleTime    time.Duration `env:"DB_MAX_CONN_IDLE_TIME"   envDefault:"5m"`
	DBStatementTimeoutMS int           `env:"DB_STATEMENT_TIMEOUT_MS" envDefault:"14000"`

	// ── Server ───────────────────────────────────────────────────────────────────
	ListenAddr             string `env:"LISTEN_ADDR"              envDefault:":8080"`
	AppEnv                 string `env:"APP_ENV"                  envDefault:"development"`
	ShutdownTimeoutSeconds int    `env:"SHUTDOWN_TIMEOUT_SECONDS" envDefault:"60"`

	// ── Worker ───────────────────────────────────────────────────────────────────
	// WorkerRunSecret authorizes the POST /internal/worker/run trigger endpoint.
	WorkerRunSecret string `env:"WORKER_RUN_SECRET,required"`
	BatchSize       int    `env:"WORKER_BATCH_SIZE" envDefault:"25"`
	// MaxAttempts is the retry budget stamped onto jobs the pool enqueues
	// itself (the recurring reconcile/scan types). Externally enqueued jobs
	// carry their own max_attempts.
	MaxAttempts    int           `env:"WORKER_MAX_ATTEMPTS"     envDefault:"5"`
	HandlerTimeout time.Duration `env:"WORKER_HANDLER_TIMEOUT"  envDefault:"60s"`
	PollInterval   time.Duration `env:"WORKER_POLL_INTERVAL"    envDefault:"5s"`
	StaleLockAfter time.Duration `env:"WORKER_STALE_LOCK_AFTER" envDefault:"5m"`

	// EscalationThreshold is the cumulative attempt count at which a repeatedly
	// failing job emits a security event. Independent of MaxAttempts: a job can
	// escalate at 3 attempts and keep retrying until it dead-letters at 5.
	EscalationThreshold int `env:"WORKER_ESCALATION_THRESHOLD" envDefault:"3"`

	// ── Reconciliation / ops sweeps ──────────────────────────────────────────────
	WebhookBatchSize   int           `env:"WEBHOOK_BATCH_SIZE"   envDefault:"50"`
	WebhookMaxAttempts int           `env:"WEBHOOK_MAX_ATTEMPTS" envDefault:"5"`
	StalePaymentAfter  time.Duration `env:"STALE_PAYMENT_AFTER"  envDefault:"30m"`
	StalePickupAfter   time.Duration `env:"STALE_PICKUP_AFTER"   envDefault:"72h"`
	ReconcileInterval  time.Duration `env:"RECONCILE_INTERVAL"   envDefault:"5m"`
	OpsScanInterval    time.Duration `env:"OPS_SCAN_INTERVAL"    envDefault:"15m"`

	// ── Email — SMTP ─────────────────────────────────────────────────────────────
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"1025"`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:"agrinext-jobs@localhost"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPTLS      bool   `env:"SMTP_TLS"  envDefault:"false"`

	// ── Logging ──────────────────────────────────────────────────────────────────
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses and returns Config from environment variables.
// Returns an error if any required field is missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the application is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// EmailEnabled reports whether SMTP delivery is configured. When false the
// notification handler marks rows delivered without dialing out, which keeps
// local development working without a mail sink.
func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != ""
}
