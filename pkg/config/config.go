// Package config defines the source configuration of shopsync.
//
// The configuration is organized into logical sections:
//   - Credentials: how Admin API calls are authenticated
//   - Bulk: date windows and polling of bulk GraphQL operations
//   - RateLimits: the REST budget and load thresholds
//   - Reliability: retries and request timeouts
//   - Observability: logging, metrics and tracing
//
// Example usage:
//
//	cfg, err := config.Load("shopify.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"time"
)

// SourceConfig is the full configuration of one shop.
type SourceConfig struct {
	// Shop is the shop name or its myshopify.com domain
	Shop string `yaml:"shop" json:"shop" mapstructure:"shop" validate:"required"`
	// Credentials selects the auth method
	Credentials CredentialsConfig `yaml:"credentials" json:"credentials" mapstructure:"credentials"`
	// StartDate is the lower bound of the first incremental sync (YYYY-MM-DD)
	StartDate string `yaml:"start_date" json:"start_date" mapstructure:"start_date" validate:"required,datetime=2006-01-02"`
	// APIVersion is the Admin API version, e.g. 2024-04
	APIVersion string `yaml:"api_version" json:"api_version" mapstructure:"api_version" validate:"required"`
	// PageSize is the REST page limit
	PageSize int `yaml:"page_size" json:"page_size" mapstructure:"page_size" validate:"min=1,max=250"`
	// Streams restricts the read to the named streams; empty reads all
	Streams []string `yaml:"streams,omitempty" json:"streams,omitempty" mapstructure:"streams"`
	// SchemasDir overrides the embedded JSON schemas
	SchemasDir string `yaml:"schemas_dir,omitempty" json:"schemas_dir,omitempty" mapstructure:"schemas_dir"`
	// ValidateRecords logs records that do not match their stream schema
	ValidateRecords bool `yaml:"validate_records" json:"validate_records" mapstructure:"validate_records"`

	Bulk          BulkConfig          `yaml:"bulk" json:"bulk" mapstructure:"bulk"`
	RateLimits    RateLimitConfig     `yaml:"rate_limits" json:"rate_limits" mapstructure:"rate_limits"`
	Reliability   ReliabilityConfig   `yaml:"reliability" json:"reliability" mapstructure:"reliability"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`
}

// CredentialsConfig holds either a static access token or an app's client
// credentials.
type CredentialsConfig struct {
	AuthMethod   string `yaml:"auth_method" json:"auth_method" mapstructure:"auth_method" validate:"required,oneof=access_token api_password client_credentials"`
	AccessToken  string `yaml:"access_token,omitempty" json:"access_token,omitempty" mapstructure:"access_token" validate:"required_unless=AuthMethod client_credentials"`
	ClientID     string `yaml:"client_id,omitempty" json:"client_id,omitempty" mapstructure:"client_id" validate:"required_if=AuthMethod client_credentials"`
	ClientSecret string `yaml:"client_secret,omitempty" json:"client_secret,omitempty" mapstructure:"client_secret" validate:"required_if=AuthMethod client_credentials"`
}

// BulkConfig controls bulk GraphQL operations.
type BulkConfig struct {
	// WindowInDays is the width of the date slice covered by one job
	WindowInDays int `yaml:"window_in_days" json:"window_in_days" mapstructure:"window_in_days" validate:"min=1"`
	// PollInterval is the first delay between status checks
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval" mapstructure:"poll_interval" validate:"gt=0"`
	// MaxPollInterval caps the exponential poll backoff
	MaxPollInterval time.Duration `yaml:"max_poll_interval" json:"max_poll_interval" mapstructure:"max_poll_interval" validate:"gtefield=PollInterval"`
	// PollTimeout bounds the wall-clock time of one job
	PollTimeout time.Duration `yaml:"poll_timeout" json:"poll_timeout" mapstructure:"poll_timeout" validate:"gt=0"`
	// SubmitRetries bounds resubmissions while another job is running
	SubmitRetries int `yaml:"submit_retries" json:"submit_retries" mapstructure:"submit_retries" validate:"min=0"`
}

// RateLimitConfig tunes the REST budget. The GraphQL budget is driven by
// the server's throttle status.
type RateLimitConfig struct {
	RESTPerSec    float64 `yaml:"rest_per_sec" json:"rest_per_sec" mapstructure:"rest_per_sec" validate:"gt=0"`
	RESTBurst     int     `yaml:"rest_burst" json:"rest_burst" mapstructure:"rest_burst" validate:"min=1"`
	LoadThreshold float64 `yaml:"load_threshold" json:"load_threshold" mapstructure:"load_threshold" validate:"gt=0,lte=1"`
}

// ReliabilityConfig contains retry and timeout settings.
type ReliabilityConfig struct {
	// RetryAttempts is the total number of attempts for a transient failure
	RetryAttempts  int           `yaml:"retry_attempts" json:"retry_attempts" mapstructure:"retry_attempts" validate:"min=1"`
	RetryDelay     time.Duration `yaml:"retry_delay" json:"retry_delay" mapstructure:"retry_delay"`
	MaxRetryDelay  time.Duration `yaml:"max_retry_delay" json:"max_retry_delay" mapstructure:"max_retry_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" mapstructure:"request_timeout" validate:"gt=0"`
	EnableHTTP2    bool          `yaml:"enable_http2" json:"enable_http2" mapstructure:"enable_http2"`
}

// ObservabilityConfig contains logging, metrics and tracing settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level" json:"log_level" mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogEncoding string `yaml:"log_encoding" json:"log_encoding" mapstructure:"log_encoding" validate:"oneof=json console"`
	// MetricsAddr serves /metrics when set, e.g. ":9090"
	MetricsAddr string `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty" mapstructure:"metrics_addr"`
	// Tracing exports spans to stderr
	Tracing bool `yaml:"tracing" json:"tracing" mapstructure:"tracing"`
}

// Default returns a configuration with every optional field set.
func Default() *SourceConfig {
	return &SourceConfig{
		Credentials: CredentialsConfig{AuthMethod: "access_token"},
		StartDate:   "2020-01-01",
		APIVersion:  "2024-04",
		PageSize:    250,
		Bulk: BulkConfig{
			WindowInDays:    30,
			PollInterval:    5 * time.Second,
			MaxPollInterval: time.Minute,
			PollTimeout:     time.Hour,
			SubmitRetries:   6,
		},
		RateLimits: RateLimitConfig{
			RESTPerSec:    2,
			RESTBurst:     40,
			LoadThreshold: 0.9,
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:  5,
			RetryDelay:     time.Second,
			MaxRetryDelay:  30 * time.Second,
			RequestTimeout: time.Minute,
			EnableHTTP2:    true,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogEncoding: "json",
		},
	}
}

// StartTime returns StartDate as UTC midnight. It assumes Validate passed.
func (c *SourceConfig) StartTime() time.Time {
	t, err := time.Parse("2006-01-02", c.StartDate)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// Selected reports whether stream is part of the configured selection.
func (c *SourceConfig) Selected(stream string) bool {
	if len(c.Streams) == 0 {
		return true
	}
	for _, s := range c.Streams {
		if s == stream {
			return true
		}
	}
	return false
}
