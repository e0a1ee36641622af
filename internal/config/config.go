// Package config loads service and optimizer settings: built-in defaults,
// then an optional YAML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"freightpool/internal/colgen"
	"freightpool/internal/opt"
	"freightpool/internal/pooling"
	"freightpool/internal/route"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Server    Server    `yaml:"server"`
	Database  Database  `yaml:"database"`
	Redis     Redis     `yaml:"redis"`
	Logging   Logging   `yaml:"logging"`
	Webhooks  Webhooks  `yaml:"webhooks"`
	Optimizer Optimizer `yaml:"optimizer"`
}

type Server struct {
	Port              string        `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
	// RateRPS <= 0 disables the compute endpoint limiter.
	RateRPS   float64 `yaml:"rateRps"`
	RateBurst int     `yaml:"rateBurst"`
}

// Database selects the store. An empty URL means the in-memory store.
type Database struct {
	Driver  string `yaml:"driver"`
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

type Redis struct {
	URL string `yaml:"url"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Webhooks struct {
	URLs         []string      `yaml:"urls"`
	Secret       string        `yaml:"secret"`
	MaxAttempts  int           `yaml:"maxAttempts"`
	PollInterval time.Duration `yaml:"pollInterval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Optimizer carries the defaults every engine call starts from.
type Optimizer struct {
	Route                  route.Params   `yaml:"route"`
	Limits                 route.Limits   `yaml:"limits"`
	CostPerMile            float64        `yaml:"costPerMile"`
	LargeInstanceThreshold int            `yaml:"largeInstanceThreshold"`
	Pooling                pooling.Config `yaml:"pooling"`
	ALNS                   opt.Config     `yaml:"alns"`
	ColGen                 colgen.Config  `yaml:"colgen"`
}

func DefaultOptimizer() Optimizer {
	return Optimizer{
		Route:                  route.DefaultParams(),
		Limits:                 route.Limits{MaxWeightLbs: 45000, MaxLinearFeet: 53},
		CostPerMile:            2.5,
		LargeInstanceThreshold: 150,
		Pooling:                pooling.DefaultConfig(),
		ALNS:                   opt.DefaultConfig(),
		ColGen:                 colgen.DefaultConfig(),
	}
}

func Default() Config {
	return Config{
		Server: Server{
			Port:              "8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			RateRPS:           5,
			RateBurst:         10,
		},
		Database: Database{Driver: "pgx", Migrate: true},
		Logging:  Logging{Level: "info", Format: "text"},
		Webhooks: Webhooks{
			MaxAttempts:  10,
			PollInterval: time.Second,
			Timeout:      5 * time.Second,
		},
		Optimizer: DefaultOptimizer(),
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %w", ErrInvalid, path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("PORT", &c.Server.Port)
	str("DATABASE_URL", &c.Database.URL)
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("REDIS_URL", &c.Redis.URL)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("WEBHOOK_SECRET", &c.Webhooks.Secret)
	if v, ok := lookup("DB_MIGRATE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: DB_MIGRATE: %w", ErrInvalid, err)
		}
		c.Database.Migrate = b
	}
	if v, ok := lookup("RATE_RPS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: RATE_RPS: %w", ErrInvalid, err)
		}
		c.Server.RateRPS = f
	}
	if v, ok := lookup("RATE_BURST"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: RATE_BURST: %w", ErrInvalid, err)
		}
		c.Server.RateBurst = n
	}
	if v, ok := lookup("WEBHOOK_MAX_ATTEMPTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: WEBHOOK_MAX_ATTEMPTS: %w", ErrInvalid, err)
		}
		c.Webhooks.MaxAttempts = n
	}
	if v, ok := lookup("WEBHOOK_URLS"); ok && v != "" {
		c.Webhooks.URLs = c.Webhooks.URLs[:0]
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				c.Webhooks.URLs = append(c.Webhooks.URLs, u)
			}
		}
	}
	return nil
}

func (c Config) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return bad("server.port %q is not a number", c.Server.Port)
	}
	if c.Server.RateRPS > 0 && c.Server.RateBurst < 1 {
		return bad("server.rateBurst must be >= 1 when rateRps is set")
	}
	switch c.Database.Driver {
	case "pgx", "sqlite":
	default:
		return bad("database.driver must be pgx or sqlite, got %q", c.Database.Driver)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return bad("logging.format must be text or json, got %q", c.Logging.Format)
	}
	if c.Webhooks.MaxAttempts < 1 {
		return bad("webhooks.maxAttempts must be >= 1")
	}
	if len(c.Webhooks.URLs) > 0 && c.Webhooks.PollInterval <= 0 {
		return bad("webhooks.pollInterval must be positive")
	}
	return c.Optimizer.Validate()
}

func (o Optimizer) Validate() error {
	if err := o.Route.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if o.Limits.MaxWeightLbs <= 0 || o.Limits.MaxLinearFeet <= 0 {
		return fmt.Errorf("%w: optimizer.limits must be positive", ErrInvalid)
	}
	if o.CostPerMile <= 0 {
		return fmt.Errorf("%w: optimizer.costPerMile must be positive", ErrInvalid)
	}
	if o.LargeInstanceThreshold < 1 {
		return fmt.Errorf("%w: optimizer.largeInstanceThreshold must be >= 1", ErrInvalid)
	}
	for _, err := range []error{o.Pooling.Validate(), o.ALNS.Validate(), o.ColGen.Validate()} {
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}
	return nil
}
