package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the bot.
type Config struct {
	Port     string
	BotID    string
	LogLevel string

	// BingX
	APIKey            string
	APISecret         string
	Testnet           bool
	BaseURL           string // empty selects the mainnet/testnet default
	WSURL             string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	RecvWindow        int64
	Leverage          int // 0 leaves the venue setting alone
	HedgeMode         bool

	// Market data
	Symbols           []string
	BaseInterval      string
	Timeframes        []string
	WarmupCandles     int
	BufferSize        int
	ReconnectAttempts int
	ReconnectDelay    time.Duration

	// Strategies
	StrategiesFile string

	// Risk
	MinBalance           float64
	MaxDrawdownPct       float64
	MaxConsecutiveLosses int
	LossCooldown         time.Duration
	DefaultRiskPct       float64
	MaxPositionNotional  float64
	DefaultMaxPositions  int
	TrailingStopPct      float64 // 0 disables trailing stops

	// Execution
	DryRun               bool
	DryRunInitialBalance float64
	DryRunFeeRate        float64 // decimal (e.g. 0.0005 = 5 bps)
	DryRunSlippageBps    float64
	DryRunLatencyMinMs   int
	DryRunLatencyMaxMs   int
	BalanceSyncInterval  time.Duration
	ReconcileInterval    time.Duration // 0 disables venue position reconciliation

	// Status sink
	RedisAddr      string // empty logs status instead
	RedisPassword  string
	RedisDB        int
	StatusInterval time.Duration
	StatusTTL      time.Duration

	// Journal
	DBPath string

	// API auth
	JWTSecret string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the bot still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		BotID:    getEnv("BOT_ID", "bingx-bot"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		APIKey:            os.Getenv("BINGX_API_KEY"),
		APISecret:         os.Getenv("BINGX_API_SECRET"),
		Testnet:           getEnvBool("BINGX_TESTNET", false),
		BaseURL:           getEnv("BINGX_BASE_URL", ""),
		WSURL:             getEnv("BINGX_WS_URL", ""),
		RequestTimeout:    getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		RequestsPerSecond: getEnvFloat("REQUESTS_PER_SECOND", 8),
		RecvWindow:        int64(getEnvInt("RECV_WINDOW_MS", 5000)),
		Leverage:          getEnvInt("LEVERAGE", 0),
		HedgeMode:         getEnvBool("HEDGE_MODE", true),

		Symbols:           splitAndTrim(getEnv("SYMBOLS", "BTC-USDT")),
		BaseInterval:      getEnv("BASE_INTERVAL", "1m"),
		Timeframes:        splitAndTrim(getEnv("TIMEFRAMES", "1m,5m,15m,1h")),
		WarmupCandles:     getEnvInt("WARMUP_CANDLES", 500),
		BufferSize:        getEnvInt("BUFFER_SIZE", 500),
		ReconnectAttempts: getEnvInt("RECONNECT_ATTEMPTS", 10),
		ReconnectDelay:    getEnvDuration("RECONNECT_DELAY", 5*time.Second),

		StrategiesFile: getEnv("STRATEGIES_FILE", "./strategies.yaml"),

		MinBalance:           getEnvFloat("RISK_MIN_BALANCE", 50),
		MaxDrawdownPct:       getEnvFloat("RISK_MAX_DRAWDOWN_PCT", 20),
		MaxConsecutiveLosses: getEnvInt("RISK_MAX_CONSECUTIVE_LOSSES", 3),
		LossCooldown:         getEnvDuration("RISK_COOLDOWN", 30*time.Minute),
		DefaultRiskPct:       getEnvFloat("RISK_DEFAULT_PCT", 1),
		MaxPositionNotional:  getEnvFloat("RISK_MAX_POSITION_NOTIONAL", 0),
		DefaultMaxPositions:  getEnvInt("RISK_MAX_POSITIONS", 1),
		TrailingStopPct:      getEnvFloat("TRAILING_STOP_PCT", 0),

		DryRun:               getEnvBool("DRY_RUN", true),
		DryRunInitialBalance: getEnvFloat("DRY_RUN_INITIAL_BALANCE", 1000),
		DryRunFeeRate:        getEnvFloat("DRY_RUN_FEE_RATE", 0.0005),
		DryRunSlippageBps:    getEnvFloat("DRY_RUN_SLIPPAGE_BPS", 2),
		DryRunLatencyMinMs:   getEnvInt("DRY_RUN_LATENCY_MIN_MS", 0),
		DryRunLatencyMaxMs:   getEnvInt("DRY_RUN_LATENCY_MAX_MS", 0),
		BalanceSyncInterval:  getEnvDuration("BALANCE_SYNC_INTERVAL", time.Minute),
		ReconcileInterval:    getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		StatusInterval: getEnvDuration("STATUS_INTERVAL", 30*time.Second),
		StatusTTL:      getEnvDuration("STATUS_TTL", 0),

		DBPath:    getEnv("DB_PATH", "./data/journal.db"),
		JWTSecret: getEnv("JWT_SECRET", ""),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings the bot cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Symbols) == 0 {
		errs = append(errs, errors.New("SYMBOLS is empty"))
	}
	if !c.DryRun && (c.APIKey == "" || c.APISecret == "") {
		errs = append(errs, errors.New("BINGX_API_KEY and BINGX_API_SECRET are required unless DRY_RUN=true"))
	}
	if c.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("BUFFER_SIZE must be positive, got %d", c.BufferSize))
	}
	if c.ReconnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("RECONNECT_ATTEMPTS must not be negative, got %d", c.ReconnectAttempts))
	}
	if c.DefaultRiskPct <= 0 || c.DefaultRiskPct > 100 {
		errs = append(errs, fmt.Errorf("RISK_DEFAULT_PCT must be in (0,100], got %v", c.DefaultRiskPct))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}
