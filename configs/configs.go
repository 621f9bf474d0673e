// Package configs provides application configuration loaded from environment variables.
// All configuration is externalized via environment variables for 12-factor app compliance.
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all application configuration.
// Load it once at startup using AppLoad().
type AppConfig struct {
	// DBDSN is the ClickHouse connection string.
	DBDSN string

	// StorageBackend selects the candle table: "csv" or "clickhouse".
	StorageBackend string

	// DataDir holds the CSV tables when StorageBackend is "csv".
	DataDir string

	// Coinbase is exchange A (spot).
	Coinbase ExchangeConfig

	// Binance is exchange B (perpetual futures).
	Binance ExchangeConfig

	Pipeline  PipelineConfig
	Publisher PublisherConfig
	Log       LogConfig
}

// ExchangeConfig holds per-exchange fetch settings.
type ExchangeConfig struct {
	// BaseURL overrides the public REST endpoint.
	BaseURL string

	// Markets are exchange-native symbols (comma-separated in env).
	Markets []string

	// RateBudget is the number of requests allowed per second.
	RateBudget int

	MaxAttempts    int
	BackoffBase    float64
	RequestDelay   time.Duration
	RequestTimeout time.Duration

	BatchSize  int
	BatchDelay time.Duration
}

// PipelineConfig holds the backfill and refresh loop timing.
type PipelineConfig struct {
	BackfillDays    int
	RefreshInterval time.Duration
	RefreshLookback time.Duration
	ErrorCooldown   time.Duration
	AlignTolerance  time.Duration

	// History enables appending every published batch to ClickHouse.
	History bool
}

// PublisherConfig holds the sinks. An empty address disables its sink.
type PublisherConfig struct {
	DashboardURL string
	Timeout      time.Duration

	KafkaBroker string
	KafkaTopic  string

	// WSAddr is the listen address of the WebSocket broadcaster.
	WSAddr string
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string
}

// getDatabaseDSN constructs the ClickHouse DSN from environment variables.
func getDatabaseDSN() string {
	dbUser := getEnv("CLICKHOUSE_USER", "user")
	dbPassword := getEnv("CLICKHOUSE_PASSWORD", "password")
	dbHost := getEnv("CLICKHOUSE_HOST", "localhost")
	dbPort := getEnv("CLICKHOUSE_TCP_PORT", "9000")
	dbName := getEnv("CLICKHOUSE_DB", "db")

	return fmt.Sprintf(
		"clickhouse://%s:%s@%s:%s/%s?dial_timeout=10s&read_timeout=20s",
		dbUser, dbPassword, dbHost, dbPort, dbName,
	)
}

// getExchangeConfig loads the settings of one exchange; prefix is
// "COINBASE" or "BINANCE".
func getExchangeConfig(prefix string, defaultMarkets []string, defaultBudget int) ExchangeConfig {
	budget := getEnvInt(prefix+"_RATE_BUDGET", defaultBudget)
	if budget < 1 {
		budget = defaultBudget
	}

	delay := getEnvDuration(prefix+"_REQUEST_DELAY", 100*time.Millisecond)
	if delay < 100*time.Millisecond || delay > 600*time.Millisecond {
		delay = 100 * time.Millisecond
	}

	return ExchangeConfig{
		BaseURL:        getEnv(prefix+"_BASE_URL", ""),
		Markets:        getEnvList(prefix+"_MARKETS", defaultMarkets),
		RateBudget:     budget,
		MaxAttempts:    getEnvInt(prefix+"_MAX_ATTEMPTS", 3),
		BackoffBase:    getEnvFloat(prefix+"_BACKOFF_BASE", 1.5),
		RequestDelay:   delay,
		RequestTimeout: getEnvDuration(prefix+"_REQUEST_TIMEOUT", 10*time.Second),
		BatchSize:      getEnvInt(prefix+"_BATCH_SIZE", 5),
		BatchDelay:     getEnvDuration(prefix+"_BATCH_DELAY", 100*time.Millisecond),
	}
}

// AppLoad loads all application configuration from environment variables.
// It attempts to load a .env file first (for local development).
// Call this once at application startup.
func AppLoad() *AppConfig {
	_ = godotenv.Load() // Ignore error - .env is optional

	return &AppConfig{
		DBDSN:          getDatabaseDSN(),
		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", "csv")),
		DataDir:        getEnv("DATA_DIR", "data"),
		Coinbase: getExchangeConfig("COINBASE",
			[]string{"BTC-USD", "ETH-USD", "SOL-USD"}, 10),
		Binance: getExchangeConfig("BINANCE",
			[]string{"BTC/USDT", "ETH/USDT", "SOL/USDT"}, 20),
		Pipeline: PipelineConfig{
			BackfillDays:    getEnvInt("BACKFILL_DAYS", 1),
			RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 300*time.Second),
			RefreshLookback: getEnvDuration("REFRESH_LOOKBACK", time.Hour),
			ErrorCooldown:   getEnvDuration("ERROR_COOLDOWN", 60*time.Second),
			AlignTolerance:  getEnvDuration("ALIGN_TOLERANCE", 5*time.Minute),
			History:         getEnvBool("INDICATOR_HISTORY", false),
		},
		Publisher: PublisherConfig{
			DashboardURL: getEnv("DASHBOARD_URL", "http://localhost:8050"),
			Timeout:      getEnvDuration("PUBLISH_TIMEOUT", 10*time.Second),
			KafkaBroker:  getEnv("KAFKA_BROKER", ""),
			KafkaTopic:   getEnv("KAFKA_PREMIUM_TOPIC", "radar_premium"),
			WSAddr:       getEnv("WS_ADDR", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvDuration accepts Go durations ("90s", "5m") or plain seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
