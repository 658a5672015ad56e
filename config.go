package deeptrace

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// DefaultTimeout for a single delivery attempt.
const DefaultTimeout = 3000 * time.Millisecond

// Config for a tracer. Construct it via [LoadConfig], or directly; zero values
// are replaced with defaults by [New]. A config is never modified after the
// tracer is constructed.
type Config struct {
	// DSN is the collector URL. It may carry basic auth credentials. Records
	// are only delivered when it's set.
	DSN string

	// Secret is sent as a bearer token when the DSN has no credentials.
	Secret string

	// Timeout for each delivery attempt. Default 3s.
	Timeout time.Duration

	// Compress request bodies sent to the collector with gzip.
	Compress bool

	// IDFormat selects the record ID generator, "uuid" (default) or "ulid".
	IDFormat string

	// Tags are attached to every record.
	Tags Tags

	// Headers maps the correlation roles to wire header names.
	Headers HeaderMapping

	// ShouldReport decides, once a record is finished, if it's delivered.
	// Default always true.
	ShouldReport func(rec *Record, cfg Config) bool

	// ErrorHandler receives every delivery error. Default no-op.
	ErrorHandler func(err error)

	// Logger receives diagnostics. Default no-op.
	Logger *zap.Logger

	// Registerer, if set, receives the tracer's metrics.
	Registerer prometheus.Registerer
}

// withDefaults returns a copy of the config with zero values replaced.
func (cfg Config) withDefaults() Config {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Headers == (HeaderMapping{}) {
		cfg.Headers = DefaultHeaderMapping()
	}
	if cfg.IDFormat == "" {
		cfg.IDFormat = IDFormatUUID
	}
	if cfg.ShouldReport == nil {
		cfg.ShouldReport = func(*Record, Config) bool { return true }
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(error) {}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return cfg
}

// environment is the subset of the config read from environment variables.
type environment struct {
	DSN       string `envconfig:"DEEPTRACE_DSN"`
	Secret    string `envconfig:"DEEPTRACE_SECRET"`
	TimeoutMS int    `envconfig:"DEEPTRACE_TIMEOUT" default:"3000"`
	Compress  bool   `envconfig:"DEEPTRACE_COMPRESS" default:"false"`
	IDFormat  string `envconfig:"DEEPTRACE_ID_FORMAT" default:"uuid"`

	Environment string `envconfig:"DEEPTRACE_ENVIRONMENT"`
	Service     string `envconfig:"DEEPTRACE_SERVICE_NAME"`
	Release     string `envconfig:"DEEPTRACE_RELEASE"`
	Commit      string `envconfig:"DEEPTRACE_COMMIT"`

	IDHeader        string `envconfig:"DEEPTRACE_HEADERS_ID" default:"DeepTrace-Id"`
	ParentIDHeader  string `envconfig:"DEEPTRACE_HEADERS_PARENT_ID" default:"DeepTrace-Parent-Id"`
	ContextIDHeader string `envconfig:"DEEPTRACE_HEADERS_CONTEXT_ID" default:"DeepTrace-Context-Id"`
}

// LoadConfig resolves a config in a single step. Values are read from the
// environment, unset variables take their defaults, and the options are then
// applied in order, taking precedence over both.
func LoadConfig(opts ...Option) (Config, error) {
	var env environment
	if err := envconfig.Process("", &env); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	if env.TimeoutMS <= 0 {
		return Config{}, fmt.Errorf("DEEPTRACE_TIMEOUT: must be positive, have %d", env.TimeoutMS)
	}

	cfg := Config{
		DSN:      env.DSN,
		Secret:   env.Secret,
		Timeout:  time.Duration(env.TimeoutMS) * time.Millisecond,
		Compress: env.Compress,
		IDFormat: env.IDFormat,
		Tags: Tags{
			Environment: env.Environment,
			Service:     env.Service,
			Release:     env.Release,
			Commit:      env.Commit,
		},
		Headers: HeaderMapping{
			ID:        env.IDHeader,
			ParentID:  env.ParentIDHeader,
			ContextID: env.ContextIDHeader,
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	if _, err := NewIDFunc(cfg.IDFormat); err != nil {
		return Config{}, err
	}

	return cfg.withDefaults(), nil
}

// Option overrides part of a config.
type Option func(*Config)

// WithDSN sets the collector URL.
func WithDSN(dsn string) Option {
	return func(cfg *Config) { cfg.DSN = dsn }
}

// WithSecret sets the collector bearer token.
func WithSecret(secret string) Option {
	return func(cfg *Config) { cfg.Secret = secret }
}

// WithTimeout sets the delivery timeout.
func WithTimeout(d time.Duration) Option {
	return func(cfg *Config) { cfg.Timeout = d }
}

// WithCompression enables or disables gzip request bodies.
func WithCompression(enabled bool) Option {
	return func(cfg *Config) { cfg.Compress = enabled }
}

// WithIDFormat sets the record ID format.
func WithIDFormat(format string) Option {
	return func(cfg *Config) { cfg.IDFormat = format }
}

// WithTags replaces all tags.
func WithTags(tags Tags) Option {
	return func(cfg *Config) { cfg.Tags = tags }
}

// WithService sets the service tag only.
func WithService(service string) Option {
	return func(cfg *Config) { cfg.Tags.Service = service }
}

// WithHeaders overrides header names. Empty fields in m are ignored.
func WithHeaders(m HeaderMapping) Option {
	return func(cfg *Config) {
		if m.ID != "" {
			cfg.Headers.ID = m.ID
		}
		if m.ParentID != "" {
			cfg.Headers.ParentID = m.ParentID
		}
		if m.ContextID != "" {
			cfg.Headers.ContextID = m.ContextID
		}
	}
}

// WithShouldReport sets the report predicate.
func WithShouldReport(fn func(rec *Record, cfg Config) bool) Option {
	return func(cfg *Config) { cfg.ShouldReport = fn }
}

// WithErrorHandler sets the delivery error callback.
func WithErrorHandler(fn func(err error)) Option {
	return func(cfg *Config) { cfg.ErrorHandler = fn }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *Config) { cfg.Logger = logger }
}

// WithRegisterer sets the metrics registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(cfg *Config) { cfg.Registerer = reg }
}
