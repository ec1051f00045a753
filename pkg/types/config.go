package types

import "time"

type FallbackMode string

const (
	// FallbackModeSimulate applies the simulation adapter's outcome when a
	// provider cannot be reached. Records are flagged simulated.
	FallbackModeSimulate FallbackMode = "simulate"
	// FallbackModeReview parks the record in requires_review instead.
	FallbackModeReview FallbackMode = "review"
)

type Config struct {
	Environment      string `envconfig:"ENVIRONMENT" default:"development"`
	ServerPort       uint   `envconfig:"SERVER_PORT" default:"8080"`
	DatabaseURL      string `envconfig:"DATABASE_URL"`
	DatabaseMaxConns uint   `envconfig:"DATABASE_MAX_CONNS" default:"10"`
	ReadTimeoutSec   uint   `envconfig:"READ_TIMEOUT_SEC" default:"10"`
	WriteTimeoutSec  uint   `envconfig:"WRITE_TIMEOUT_SEC" default:"15"`

	// Provider calls
	ProviderTimeoutSec      uint         `envconfig:"PROVIDER_TIMEOUT_SEC" default:"12"`
	FallbackMode            FallbackMode `envconfig:"FALLBACK_MODE" default:"simulate"`
	CheckValidityDays       uint         `envconfig:"CHECK_VALIDITY_DAYS" default:"730"`
	SimulationApprovalHours uint         `envconfig:"SIMULATION_APPROVAL_HOURS" default:"72"`
	WebhookBaseURL          string       `envconfig:"WEBHOOK_BASE_URL"`

	// Renewal scheduler
	StaleAfterDays     uint `envconfig:"STALE_AFTER_DAYS" default:"30"`
	RenewalWorkers     uint `envconfig:"RENEWAL_WORKERS" default:"4"`
	RenewalIntervalMin uint `envconfig:"RENEWAL_INTERVAL_MIN" default:"60"`
	RenewalLockTTLMin  uint `envconfig:"RENEWAL_LOCK_TTL_MIN" default:"30"`

	RedisURL            string `envconfig:"REDIS_URL"`
	NatsURL             string `envconfig:"NATS_URL"`
	NotificationSubject string `envconfig:"NOTIFICATION_SUBJECT" default:"volunteers.background_checks.notifications"`

	// Completed reports archive
	S3BucketName   string `envconfig:"S3_BUCKET_NAME"`
	S3ReportPrefix string `envconfig:"S3_REPORT_PREFIX" default:"background-checks"`

	FixturesFile string `envconfig:"FIXTURES_FILE" default:"fixtures.yaml"`
}

func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSec) * time.Second
}

func (c *Config) CheckValidity() time.Duration {
	return time.Duration(c.CheckValidityDays) * 24 * time.Hour
}

func (c *Config) SimulationApprovalAfter() time.Duration {
	return time.Duration(c.SimulationApprovalHours) * time.Hour
}

func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterDays) * 24 * time.Hour
}

func (c *Config) RenewalInterval() time.Duration {
	return time.Duration(c.RenewalIntervalMin) * time.Minute
}

func (c *Config) RenewalLockTTL() time.Duration {
	return time.Duration(c.RenewalLockTTLMin) * time.Minute
}
