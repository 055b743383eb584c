package params

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/uhyunpark/futurestrader/pkg/exchange"
	"github.com/uhyunpark/futurestrader/pkg/retry"
	"github.com/uhyunpark/futurestrader/pkg/util"
)

// ErrMissingCredentials is returned by Validate when no API key pair is set.
var ErrMissingCredentials = errors.New("API credentials not found. Please set BINANCE_API_KEY and BINANCE_API_SECRET in .env file")

type Config struct {
	Exchange exchange.Config
	// StreamURL is the order-update websocket; empty disables --watch.
	StreamURL string
	Retry     retry.Config
	Log       util.LogConfig
}

func Default() Config {
	return Config{
		Exchange: exchange.DefaultConfig(),
		Retry:    retry.DefaultConfig(),
		Log: util.LogConfig{
			Dir:          "logs",
			ConsoleLevel: "info",
			FileLevel:    "debug",
			MaxSizeMB:    10,
			MaxBackups:   5,
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if one exists) and environment variables
// Priority: ENV > .env file > defaults
// With an empty envPath it tries ./.env, then ../.env.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else if err := godotenv.Load(); err != nil {
		_ = godotenv.Load("../.env")
	}

	cfg.Exchange.APIKey = os.Getenv("BINANCE_API_KEY")
	cfg.Exchange.APISecret = os.Getenv("BINANCE_API_SECRET")
	cfg.Exchange.BaseURL = os.Getenv("EXCHANGE_BASE_URL")
	cfg.StreamURL = os.Getenv("EXCHANGE_STREAM_URL")

	// testnet unless live trading is explicitly unlocked
	if os.Getenv("EXCHANGE_ALLOW_LIVE") == "true" {
		cfg.Exchange.Testnet = getEnv("EXCHANGE_TESTNET", "true") != "false"
	}

	envDuration("EXCHANGE_TIMEOUT_MS", &cfg.Exchange.Timeout)
	envDuration("EXCHANGE_RECV_WINDOW_MS", &cfg.Exchange.RecvWindow)
	envFloat("EXCHANGE_RATE_LIMIT", &cfg.Exchange.RateLimit)
	envInt("EXCHANGE_RATE_BURST", &cfg.Exchange.RateBurst)

	envInt("RETRY_MAX_RETRIES", &cfg.Retry.MaxRetries)
	envDuration("RETRY_BASE_DELAY_MS", &cfg.Retry.BaseDelay)
	envDuration("RETRY_MAX_DELAY_MS", &cfg.Retry.MaxDelay)
	envDuration("RETRY_RATE_LIMIT_DELAY_MS", &cfg.Retry.RateLimitDelay)
	envDuration("RETRY_RATE_LIMIT_MAX_DELAY_MS", &cfg.Retry.RateLimitMaxDelay)
	envFloat("RETRY_BACKOFF_FACTOR", &cfg.Retry.BackoffFactor)
	if jitter := os.Getenv("RETRY_JITTER"); jitter != "" {
		cfg.Retry.Jitter = jitter == "true"
	}

	cfg.Log.Dir = getEnv("LOG_DIR", cfg.Log.Dir)
	cfg.Log.ConsoleLevel = getEnv("LOG_CONSOLE_LEVEL", cfg.Log.ConsoleLevel)
	cfg.Log.FileLevel = getEnv("LOG_FILE_LEVEL", cfg.Log.FileLevel)
	envInt("LOG_MAX_SIZE_MB", &cfg.Log.MaxSizeMB)
	envInt("LOG_MAX_BACKUPS", &cfg.Log.MaxBackups)

	return cfg
}

func (c Config) Validate() error {
	if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
		return ErrMissingCredentials
	}
	return c.Retry.Validate()
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(ms) * time.Millisecond
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
