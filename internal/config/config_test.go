package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultRPCURL, cfg.RPCURL)
	assert.Equal(t, int64(DefaultChainID), cfg.ChainID)
	assert.Equal(t, "off", cfg.ModelMode)
	assert.Equal(t, DefaultPrimaryTTL, cfg.PrimaryTTL)
	assert.Equal(t, DefaultSecondaryTTL, cfg.SecondaryTTL)
	assert.Equal(t, DefaultChangeThreshold, cfg.ChangeThreshold)
	assert.Equal(t, DefaultAlertMultiplier, cfg.AlertMultiplier)
	assert.InDelta(t, DefaultWeightPrimary, cfg.WeightPrimary, 1e-9)
	assert.InDelta(t, DefaultWeightReputation, cfg.WeightReputation, 1e-9)
}

func TestLoad_ModelModeLocalRequiresPath(t *testing.T) {
	setEnv(t, "MODEL_MODE", "local")
	setEnv(t, "MODEL_PATH", "")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "MODEL_PATH is required")
}

func TestLoad_ParsesDurationsAndLists(t *testing.T) {
	setEnv(t, "PRIMARY_TTL", "30s")
	setEnv(t, "MONITOR_INTERVAL", "90s")
	setEnv(t, "ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.PrimaryTTL)
	assert.Equal(t, 90*time.Second, cfg.MonitorInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			ModelMode:        "off",
			WeightPrimary:    0.5,
			WeightReputation: 0.3,
			ChangeThreshold:  5,
			AlertMultiplier:  2,
			MonitorInterval:  time.Minute,
			CacheMaxEntries:  100,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad model mode",
			mutate:  func(c *Config) { c.ModelMode = "gpu" },
			wantErr: "MODEL_MODE",
		},
		{
			name:    "remote mode without URL",
			mutate:  func(c *Config) { c.ModelMode = "remote" },
			wantErr: "MODEL_URL is required",
		},
		{
			name:    "bad pool contract",
			mutate:  func(c *Config) { c.PoolContract = "0x123" },
			wantErr: "POOL_CONTRACT",
		},
		{
			name:    "bad private key",
			mutate:  func(c *Config) { c.PrivateKey = "abc123" },
			wantErr: "64 hex characters",
		},
		{
			name:    "weights exceed one",
			mutate:  func(c *Config) { c.WeightPrimary = 0.8; c.WeightReputation = 0.5 },
			wantErr: "must not exceed 1",
		},
		{
			name:    "negative weight",
			mutate:  func(c *Config) { c.WeightReputation = -0.1 },
			wantErr: "non-negative",
		},
		{
			name:    "zero change threshold",
			mutate:  func(c *Config) { c.ChangeThreshold = 0 },
			wantErr: "CHANGE_THRESHOLD",
		},
		{
			name:    "multiplier below one",
			mutate:  func(c *Config) { c.AlertMultiplier = 0.5 },
			wantErr: "ALERT_MULTIPLIER",
		},
		{
			name:    "discovery with no sources",
			mutate:  func(c *Config) { c.DiscoveryEnabled = true },
			wantErr: "DISCOVERY_ENABLED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvInt64(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error
}

func TestGetEnvDuration(t *testing.T) {
	setEnv(t, "TEST_DUR", "1m30s")
	setEnv(t, "TEST_DUR_BAD", "soon")

	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DUR", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("TEST_DUR_BAD", time.Second))
}

func TestLooksLikeAddress(t *testing.T) {
	assert.True(t, looksLikeAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"))
	assert.False(t, looksLikeAddress("036CbD53842c5426634e7929541eC2318f3dCF7e"))
	assert.False(t, looksLikeAddress("0xzz6CbD53842c5426634e7929541eC2318f3dCF7e"))
	assert.False(t, looksLikeAddress("0x1234"))
}
