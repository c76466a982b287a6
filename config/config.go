package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/jayjaytrn/order-management-system/internal/ratelimit"
	"github.com/jayjaytrn/order-management-system/logging"
)

const devJWTSecret = "supersecretkey"

type Config struct {
	RunAddress               string        `env:"RUN_ADDRESS"`
	DatabaseURI              string        `env:"DATABASE_URI"`
	FulfillmentSystemAddress string        `env:"FULFILLMENT_SYSTEM_ADDRESS"`
	FulfillmentTimeout       time.Duration `env:"FULFILLMENT_TIMEOUT"`

	JWTSecret       string        `env:"JWT_SECRET"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL"`

	Workers           int           `env:"WORKERS"`
	VisibilityTimeout time.Duration `env:"VISIBILITY_TIMEOUT"`
	MaxAttempts       int           `env:"MAX_ATTEMPTS"`
	RetryBackoff      time.Duration `env:"RETRY_BACKOFF"`
	PollInterval      time.Duration `env:"POLL_INTERVAL"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL"`
	ReconcileGrace    time.Duration `env:"RECONCILE_GRACE"`

	RateLimitsFile string `env:"RATE_LIMITS_FILE"`
	RateLimits     ratelimit.Table

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC"`

	OTLPEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TraceSampleRate float64 `env:"TRACE_SAMPLE_RATE"`

	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`
}

func GetConfig() *Config {
	logger := logging.GetSugaredLogger("info", "console")
	defer logger.Sync()

	config, err := Parse(os.Args[1:], nil)
	if err != nil {
		logger.Fatalw("failed to parse configuration", "error", err)
	}
	if config.JWTSecret == devJWTSecret {
		logger.Warn("JWT_SECRET is not set, using development secret")
	}

	return config
}

// Parse reads flags from args, then lets environment variables override
// them. A nil environ means the process environment.
func Parse(args []string, environ map[string]string) (*Config, error) {
	config := &Config{}

	fs := flag.NewFlagSet("orders", flag.ContinueOnError)
	fs.StringVar(&config.RunAddress, "a", "localhost:8080", "RunAddress")
	fs.StringVar(&config.DatabaseURI, "d", "", "DatabaseURI")
	fs.StringVar(&config.FulfillmentSystemAddress, "f", "", "FulfillmentSystemAddress")
	fs.DurationVar(&config.FulfillmentTimeout, "t", 10*time.Second, "FulfillmentTimeout")
	fs.StringVar(&config.JWTSecret, "s", devJWTSecret, "JWTSecret")
	fs.IntVar(&config.Workers, "w", 4, "Workers")
	fs.StringVar(&config.RateLimitsFile, "l", "", "RateLimitsFile")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	config.AccessTokenTTL = 15 * time.Minute
	config.RefreshTokenTTL = 7 * 24 * time.Hour
	config.VisibilityTimeout = 30 * time.Second
	config.MaxAttempts = 5
	config.RetryBackoff = 2 * time.Second
	config.PollInterval = 500 * time.Millisecond
	config.ReconcileInterval = time.Minute
	config.ReconcileGrace = 2 * time.Minute
	config.KafkaTopic = "order-events"
	config.TraceSampleRate = 1
	config.LogLevel = "info"
	config.LogFormat = "console"

	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.Parse(config, opts); err != nil {
		return nil, err
	}

	// A job must stay hidden for longer than one attempt can take, or a
	// healthy worker's job gets redelivered under it.
	if config.VisibilityTimeout <= config.FulfillmentTimeout {
		return nil, fmt.Errorf("VISIBILITY_TIMEOUT (%s) must exceed FULFILLMENT_TIMEOUT (%s)",
			config.VisibilityTimeout, config.FulfillmentTimeout)
	}

	limits, err := LoadRateLimits(config.RateLimitsFile)
	if err != nil {
		return nil, err
	}
	config.RateLimits = limits

	return config, nil
}
