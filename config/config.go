package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"chartdesk/internal/adapters/logger" // Import the logger package for LogLevel
)

// intervalSeconds lists the kline intervals the exchange streams.
var intervalSeconds = map[string]int64{
	"1m": 60, "3m": 180, "5m": 300, "15m": 900, "30m": 1800,
	"1h": 3600, "2h": 7200, "4h": 14400, "6h": 21600, "8h": 28800, "12h": 43200,
	"1d": 86400, "3d": 259200, "1w": 604800,
}

// IntervalSeconds returns the bucket length of an exchange interval.
func IntervalSeconds(interval string) (int64, error) {
	secs, ok := intervalSeconds[interval]
	if !ok {
		return 0, fmt.Errorf("unsupported interval %q", interval)
	}
	return secs, nil
}

// Config holds all application configuration.
type Config struct {
	// Binance API (market data endpoints are public, keys are optional)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Broadcast scope
	ReferralCode    string
	Symbol          string
	Interval        string
	IntervalSeconds int64
	HistoryLimit    int

	// Chart
	ChartWidth        float64
	ChartHeight       float64
	ChartBaseWindow   int     // Candles visible at zoom 1
	ChartMinVisible   int     // Candles kept on screen when panning into history
	ChartPricePadding float64 // Fraction of the price range added above and below
	ChartHitThreshold float64 // Pixels
	FrameInterval     time.Duration

	// Positions
	MaxExitDistance float64 // Max TP/SL distance from entry as a fraction of entry

	// HTTP
	HTTPAddr string

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel
	LogFormat logger.Format

	// Connection Settings
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	// Broadcast scope
	cfg.ReferralCode = getEnv("REFERRAL_CODE", "")
	if cfg.ReferralCode == "" {
		errs = append(errs, "REFERRAL_CODE must be set")
	}
	cfg.Symbol = strings.ToUpper(getEnv("SYMBOL", "BTCUSDT"))
	cfg.Interval = getEnv("INTERVAL", "1m")
	cfg.IntervalSeconds, err = IntervalSeconds(cfg.Interval)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INTERVAL: %v", err))
	}

	cfg.HistoryLimit, err = getEnvAsIntRequired("HISTORY_LIMIT", 500)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid HISTORY_LIMIT: %v", err))
	} else if cfg.HistoryLimit <= 0 || cfg.HistoryLimit > 1500 {
		errs = append(errs, "HISTORY_LIMIT must be between 1 and 1500")
	}

	// Chart
	cfg.ChartWidth, err = getEnvAsFloatRequired("CHART_WIDTH", 1200)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CHART_WIDTH: %v", err))
	}
	cfg.ChartHeight, err = getEnvAsFloatRequired("CHART_HEIGHT", 600)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CHART_HEIGHT: %v", err))
	}
	if cfg.ChartWidth <= 0 || cfg.ChartHeight <= 0 {
		errs = append(errs, "CHART_WIDTH and CHART_HEIGHT must be positive")
	}

	cfg.ChartBaseWindow = getEnvAsInt("CHART_BASE_WINDOW", 80)
	cfg.ChartMinVisible = getEnvAsInt("CHART_MIN_VISIBLE", 10)
	if cfg.ChartBaseWindow <= 0 || cfg.ChartMinVisible <= 0 {
		errs = append(errs, "CHART_BASE_WINDOW and CHART_MIN_VISIBLE must be positive")
	}

	cfg.ChartPricePadding, err = getEnvAsFloatRequired("CHART_PRICE_PADDING", 0.1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CHART_PRICE_PADDING: %v", err))
	} else if cfg.ChartPricePadding <= 0 || cfg.ChartPricePadding >= 0.5 {
		errs = append(errs, "CHART_PRICE_PADDING must be between 0.0 and 0.5 (exclusive)")
	}

	cfg.ChartHitThreshold, err = getEnvAsFloatRequired("CHART_HIT_THRESHOLD", 8)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CHART_HIT_THRESHOLD: %v", err))
	} else if cfg.ChartHitThreshold <= 0 {
		errs = append(errs, "CHART_HIT_THRESHOLD must be positive")
	}

	frameMs := getEnvAsInt("FRAME_INTERVAL_MS", 33)
	if frameMs <= 0 {
		errs = append(errs, "FRAME_INTERVAL_MS must be positive")
	}
	cfg.FrameInterval = time.Duration(frameMs) * time.Millisecond

	// Positions
	cfg.MaxExitDistance, err = getEnvAsFloatRequired("MAX_EXIT_DISTANCE", 0.2)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_EXIT_DISTANCE: %v", err))
	} else if cfg.MaxExitDistance < 0 || cfg.MaxExitDistance >= 1.0 {
		errs = append(errs, "MAX_EXIT_DISTANCE must be in [0.0, 1.0)")
	}

	// HTTP
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/chartdesk.db")

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = logger.ParseFormat(getEnv("LOG_FORMAT", "text"))

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
