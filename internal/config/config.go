package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the service configuration. Values come from DefaultConfig, then
// the optional YAML file named by CATALOG_CONFIG, then environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Source   SourceConfig   `yaml:"source"`
	Cache    CacheConfig    `yaml:"cache"`
	Database DatabaseConfig `yaml:"database"`
	Admin    AdminConfig    `yaml:"admin"`
}

type ServerConfig struct {
	Port            string        `yaml:"port" env:"PORT"`
	CORSOrigins     []string      `yaml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"` // json or text
}

// SourceConfig covers the Catalog Source and the adapters reading it.
type SourceConfig struct {
	BaseURL string `yaml:"base_url" env:"CATALOG_SOURCE_URL"`
	// RegistryPath replaces the embedded category layout when set.
	RegistryPath      string        `yaml:"registry_path" env:"CATALOG_REGISTRY"`
	Fetcher           string        `yaml:"fetcher" env:"CATALOG_FETCHER"` // http or colly
	// Fetch tuning overrides the registry's fetch block when positive.
	TimeoutSeconds    int           `yaml:"timeout_seconds" env:"CATALOG_TIMEOUT_SECONDS"`
	MaxRetries        int           `yaml:"max_retries" env:"CATALOG_MAX_RETRIES"`
	RateLimitRPS      float64       `yaml:"rate_limit_rps" env:"CATALOG_RATE_LIMIT_RPS"`
	AllowPrivateHosts bool          `yaml:"allow_private_hosts" env:"CATALOG_ALLOW_PRIVATE_HOSTS"`
	FeaturedCount     int           `yaml:"featured_count" env:"CATALOG_FEATURED_COUNT"`
	Parallelism       int           `yaml:"parallelism" env:"CATALOG_PARALLELISM"`
	BreakerThreshold  int           `yaml:"breaker_threshold" env:"CATALOG_BREAKER_THRESHOLD"`
	BreakerReset      time.Duration `yaml:"breaker_reset" env:"CATALOG_BREAKER_RESET"`
}

type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl" env:"CACHE_TTL"`
	Backend       string        `yaml:"backend" env:"CACHE_BACKEND"` // memory or redis
	MaxEntries    int           `yaml:"max_entries" env:"CACHE_MAX_ENTRIES"`
	SingleFlight  bool          `yaml:"single_flight" env:"CACHE_SINGLE_FLIGHT"`
	RedisAddr     string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"REDIS_DB"`
	Retention     time.Duration `yaml:"retention" env:"CACHE_RETENTION"`
	WarmEnabled   bool          `yaml:"warm_enabled" env:"CACHE_WARM_ENABLED"`
	WarmSchedule  string        `yaml:"warm_schedule" env:"CACHE_WARM_SCHEDULE"`
}

// DatabaseConfig is optional; without a URL the lead endpoint is disabled.
type DatabaseConfig struct {
	URL string `yaml:"url" env:"DATABASE_URL"`
}

type AdminConfig struct {
	Secret     string        `yaml:"secret" env:"ADMIN_SECRET"`
	SecretHash string        `yaml:"secret_hash" env:"ADMIN_SECRET_HASH"` // bcrypt
	JWTSecret  string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL   time.Duration `yaml:"token_ttl" env:"ADMIN_TOKEN_TTL"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			CORSOrigins:     []string{"http://localhost:3000"},
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Source: SourceConfig{
			Fetcher:          "http",
			FeaturedCount:    3,
			Parallelism:      5,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Cache: CacheConfig{
			TTL:          5 * time.Minute,
			Backend:      "memory",
			MaxEntries:   1024,
			SingleFlight: true,
			Retention:    7 * 24 * time.Hour,
			WarmEnabled:  true,
			WarmSchedule: "@every 4m",
		},
		Admin: AdminConfig{TokenTTL: 12 * time.Hour},
	}
}

// Load builds the configuration. An empty path falls back to CATALOG_CONFIG;
// with neither, only defaults and environment variables apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = strings.TrimSpace(os.Getenv("CATALOG_CONFIG"))
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Server.Port) == "" {
		problems = append(problems, "server.port is required")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, fmt.Sprintf("log.level %q is not a level", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q must be json or text", c.Log.Format))
	}
	switch c.Source.Fetcher {
	case "http", "colly":
	default:
		problems = append(problems, fmt.Sprintf("source.fetcher %q must be http or colly", c.Source.Fetcher))
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			problems = append(problems, "cache.redis_addr is required for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("cache.backend %q must be memory or redis", c.Cache.Backend))
	}
	if c.Cache.TTL <= 0 {
		problems = append(problems, "cache.ttl must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// NewLogger builds the process logger from the log settings.
func (l LogConfig) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if l.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(l.Level); err == nil {
		logger.SetLevel(level)
	}
	return logger
}
