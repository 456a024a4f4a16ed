// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Primary ledger (lending pool contract)
	RPCURL        string
	ChainID       int64
	PoolContract  string // Lending pool address (optional, uses in-memory ledger if not set)
	PrivateKey    string // Hex-encoded signer key; optional, ledger client is read-only without it
	TokenDecimals int    // Decimals of the pool's accounting token

	// Secondary ledger (tag-addressable record store)
	RecordsURL    string // Indexer base URL (optional, uses in-memory records if not set)
	RecordsAPIKey string

	// Oracle feeds
	OracleURL         string // Primary feed (optional)
	OracleFallbackURL string // Named fallback feed, tried when the primary fails

	// Predictive model
	ModelMode    string // "off", "local", "remote"
	ModelPath    string // Local subprocess binary (ModelMode=local)
	ModelURL     string // Remote endpoint (ModelMode=remote)
	ModelTimeout time.Duration

	// Assessment cache
	CacheTTL           time.Duration
	CacheMaxEntries    int
	CacheSweepInterval time.Duration

	// Per-source fetch TTLs
	PrimaryTTL   time.Duration
	SecondaryTTL time.Duration
	OracleTTL    time.Duration

	// Scoring weights (oracle weight is the remainder, clamped >= 0)
	WeightPrimary    float64
	WeightReputation float64

	// Engine
	WriteBackMinDelta int // Minimum score change before an on-ledger update is issued

	// Monitor
	MonitorInterval  time.Duration
	ChangeThreshold  int     // Score delta that triggers an audit/report
	AlertMultiplier  float64 // High-severity alerts fire at ChangeThreshold * AlertMultiplier
	MonitorWorkers   int
	AlertWebhookURL  string
	DiscoveryEnabled bool

	// External call behavior
	LedgerTimeout  time.Duration
	RecordsTimeout time.Duration
	OracleTimeout  time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	BreakerTrips   int
	BreakerOpenFor time.Duration

	// Observability
	OTLPEndpoint string // OTLP gRPC collector address (optional, tracing disabled if not set)

	// Security
	AdminSecret    string // Guards monitor mutations and cache clearing
	RateLimitRPS   int
	AllowedOrigins []string
}

// Base Sepolia defaults
const (
	DefaultRPCURL        = "https://sepolia.base.org"
	DefaultChainID       = 84532 // Base Sepolia
	DefaultPort          = "8080"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultTokenDecimals = 6
	DefaultRateLimit     = 100

	DefaultCacheTTL     = 5 * time.Minute
	DefaultCacheEntries = 1000
	DefaultSweep        = time.Minute

	DefaultPrimaryTTL   = 60 * time.Second
	DefaultSecondaryTTL = 300 * time.Second
	DefaultOracleTTL    = 120 * time.Second

	DefaultWeightPrimary    = 0.5
	DefaultWeightReputation = 0.3

	DefaultWriteBackDelta  = 5
	DefaultMonitorInterval = 5 * time.Minute
	DefaultChangeThreshold = 5
	DefaultAlertMultiplier = 2.0
	DefaultMonitorWorkers  = 4
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", DefaultPort),
		Env:           getEnv("ENV", DefaultEnv),
		LogLevel:      getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:   os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RPCURL:        getEnv("RPC_URL", DefaultRPCURL),
		ChainID:       getEnvInt64("CHAIN_ID", DefaultChainID),
		PoolContract:  os.Getenv("POOL_CONTRACT"),
		PrivateKey:    os.Getenv("PRIVATE_KEY"),
		TokenDecimals: int(getEnvInt64("TOKEN_DECIMALS", DefaultTokenDecimals)),

		RecordsURL:    os.Getenv("RECORDS_URL"),
		RecordsAPIKey: os.Getenv("RECORDS_API_KEY"),

		OracleURL:         os.Getenv("ORACLE_URL"),
		OracleFallbackURL: os.Getenv("ORACLE_FALLBACK_URL"),

		ModelMode:    getEnv("MODEL_MODE", "off"),
		ModelPath:    os.Getenv("MODEL_PATH"),
		ModelURL:     os.Getenv("MODEL_URL"),
		ModelTimeout: getEnvDuration("MODEL_TIMEOUT", 10*time.Second),

		CacheTTL:           getEnvDuration("CACHE_TTL", DefaultCacheTTL),
		CacheMaxEntries:    int(getEnvInt64("CACHE_MAX_ENTRIES", DefaultCacheEntries)),
		CacheSweepInterval: getEnvDuration("CACHE_SWEEP_INTERVAL", DefaultSweep),

		PrimaryTTL:   getEnvDuration("PRIMARY_TTL", DefaultPrimaryTTL),
		SecondaryTTL: getEnvDuration("SECONDARY_TTL", DefaultSecondaryTTL),
		OracleTTL:    getEnvDuration("ORACLE_TTL", DefaultOracleTTL),

		WeightPrimary:    getEnvFloat("WEIGHT_PRIMARY", DefaultWeightPrimary),
		WeightReputation: getEnvFloat("WEIGHT_REPUTATION", DefaultWeightReputation),

		WriteBackMinDelta: int(getEnvInt64("WRITEBACK_MIN_DELTA", DefaultWriteBackDelta)),

		MonitorInterval:  getEnvDuration("MONITOR_INTERVAL", DefaultMonitorInterval),
		ChangeThreshold:  int(getEnvInt64("CHANGE_THRESHOLD", DefaultChangeThreshold)),
		AlertMultiplier:  getEnvFloat("ALERT_MULTIPLIER", DefaultAlertMultiplier),
		MonitorWorkers:   int(getEnvInt64("MONITOR_WORKERS", DefaultMonitorWorkers)),
		AlertWebhookURL:  os.Getenv("ALERT_WEBHOOK_URL"),
		DiscoveryEnabled: getEnvBool("DISCOVERY_ENABLED", false),

		LedgerTimeout:  getEnvDuration("LEDGER_TIMEOUT", 10*time.Second),
		RecordsTimeout: getEnvDuration("RECORDS_TIMEOUT", 10*time.Second),
		OracleTimeout:  getEnvDuration("ORACLE_TIMEOUT", 5*time.Second),
		RetryAttempts:  int(getEnvInt64("RETRY_ATTEMPTS", 3)),
		RetryBaseDelay: getEnvDuration("RETRY_BASE_DELAY", 200*time.Millisecond),
		BreakerTrips:   int(getEnvInt64("BREAKER_TRIPS", 5)),
		BreakerOpenFor: getEnvDuration("BREAKER_OPEN_FOR", 30*time.Second),

		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),

		AdminSecret:    os.Getenv("ADMIN_SECRET"),
		RateLimitRPS:   int(getEnvInt64("RATE_LIMIT_RPS", DefaultRateLimit)),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
// Violations here are fatal at startup; per-call failures are handled
// downstream by the engine's degradation paths.
func (c *Config) Validate() error {
	switch c.ModelMode {
	case "off", "local", "remote":
	default:
		return fmt.Errorf("MODEL_MODE must be off, local, or remote (got %q)", c.ModelMode)
	}
	if c.ModelMode == "local" && c.ModelPath == "" {
		return fmt.Errorf("MODEL_PATH is required when MODEL_MODE=local")
	}
	if c.ModelMode == "remote" && c.ModelURL == "" {
		return fmt.Errorf("MODEL_URL is required when MODEL_MODE=remote")
	}

	if c.PoolContract != "" && !looksLikeAddress(c.PoolContract) {
		return fmt.Errorf("POOL_CONTRACT must be a 0x-prefixed 20-byte hex address")
	}
	if c.PrivateKey != "" {
		key := strings.TrimPrefix(c.PrivateKey, "0x")
		if len(key) != 64 {
			return fmt.Errorf("PRIVATE_KEY must be 64 hex characters (with or without 0x prefix)")
		}
	}

	if c.WeightPrimary < 0 || c.WeightReputation < 0 {
		return fmt.Errorf("source weights must be non-negative")
	}
	if c.WeightPrimary+c.WeightReputation > 1 {
		return fmt.Errorf("WEIGHT_PRIMARY + WEIGHT_REPUTATION must not exceed 1 (oracle weight is the remainder)")
	}

	if c.ChangeThreshold <= 0 {
		return fmt.Errorf("CHANGE_THRESHOLD must be positive")
	}
	if c.AlertMultiplier < 1 {
		return fmt.Errorf("ALERT_MULTIPLIER must be at least 1")
	}
	if c.MonitorInterval <= 0 {
		return fmt.Errorf("MONITOR_INTERVAL must be positive")
	}
	if c.CacheMaxEntries <= 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be positive")
	}

	if c.DiscoveryEnabled && c.PoolContract == "" && c.RecordsURL == "" {
		return fmt.Errorf("DISCOVERY_ENABLED requires POOL_CONTRACT or RECORDS_URL")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func looksLikeAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, r := range s[2:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
