package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("RATE_RPS", "")
	t.Setenv("RATE_BURST", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
server:
  port: "9090"
  rateRps: 2
optimizer:
  largeInstanceThreshold: 40
  alns:
    maxIterations: 500
    timeLimit: 5s
  pooling:
    maxOriginDistanceMiles: 25
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 2.0, cfg.Server.RateRPS)
	assert.Equal(t, 10, cfg.Server.RateBurst)
	assert.Equal(t, 40, cfg.Optimizer.LargeInstanceThreshold)
	assert.Equal(t, 500, cfg.Optimizer.ALNS.MaxIterations)
	assert.Equal(t, 5*time.Second, cfg.Optimizer.ALNS.TimeLimit)
	assert.Equal(t, 25.0, cfg.Optimizer.Pooling.MaxOriginDistanceMiles)
	assert.Equal(t, 50.0, cfg.Optimizer.Pooling.MaxDestDistanceMiles)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [1, 2"), 0o600))
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		"PORT":                 "7000",
		"DATABASE_URL":         "file:test.db",
		"DATABASE_DRIVER":      "sqlite",
		"REDIS_URL":            "redis://localhost:6379/0",
		"LOG_LEVEL":            "debug",
		"LOG_FORMAT":           "json",
		"RATE_RPS":             "12.5",
		"RATE_BURST":           "20",
		"WEBHOOK_URLS":         "http://a.example/hook, http://b.example/hook,",
		"WEBHOOK_SECRET":       "s3cret",
		"WEBHOOK_MAX_ATTEMPTS": "3",
		"DB_MIGRATE":           "false",
	}
	cfg := Default()
	require.NoError(t, cfg.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file:test.db", cfg.Database.URL)
	assert.False(t, cfg.Database.Migrate)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 12.5, cfg.Server.RateRPS)
	assert.Equal(t, 20, cfg.Server.RateBurst)
	assert.Equal(t, []string{"http://a.example/hook", "http://b.example/hook"}, cfg.Webhooks.URLs)
	assert.Equal(t, "s3cret", cfg.Webhooks.Secret)
	assert.Equal(t, 3, cfg.Webhooks.MaxAttempts)
}

func TestEnvOverrideParseErrors(t *testing.T) {
	for _, key := range []string{"RATE_RPS", "RATE_BURST", "WEBHOOK_MAX_ATTEMPTS", "DB_MIGRATE"} {
		t.Run(key, func(t *testing.T) {
			cfg := Default()
			err := cfg.applyEnv(func(k string) (string, bool) {
				if k == key {
					return "not-a-number", true
				}
				return "", false
			})
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"port":      func(c *Config) { c.Server.Port = "http" },
		"burst":     func(c *Config) { c.Server.RateBurst = 0 },
		"driver":    func(c *Config) { c.Database.Driver = "mysql" },
		"format":    func(c *Config) { c.Logging.Format = "xml" },
		"attempts":  func(c *Config) { c.Webhooks.MaxAttempts = 0 },
		"speed":     func(c *Config) { c.Optimizer.Route.SpeedMph = 0 },
		"limits":    func(c *Config) { c.Optimizer.Limits.MaxLinearFeet = 0 },
		"threshold": func(c *Config) { c.Optimizer.LargeInstanceThreshold = 0 },
		"pooling":   func(c *Config) { c.Optimizer.Pooling.MaxShipmentsPerPool = 1 },
		"alns":      func(c *Config) { c.Optimizer.ALNS.CoolingRate = 2 },
		"colgen":    func(c *Config) { c.Optimizer.ColGen.CandidateLimit = 0 },
		"rate-cost": func(c *Config) { c.Optimizer.CostPerMile = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLoggingApply(t *testing.T) {
	logger := log.New()
	require.NoError(t, Logging{Level: "warn", Format: "json"}.Apply(logger))
	assert.Equal(t, log.WarnLevel, logger.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, logger.Formatter)

	assert.ErrorIs(t, Logging{Level: "loud"}.Apply(logger), ErrInvalid)
}
