// Package config loads gateway configuration from the process environment.
//
// Values come from environment variables, optionally seeded from a .env file.
// Variables already present in the environment win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/moontv/gateway/internal/envcheck"
)

// Storage types understood by the gateway.
const (
	StorageLocal   = "localstorage"
	StorageRedis   = "redis"
	StorageUpstash = "upstash"
	StorageD1      = "d1"
)

// Config is the full gateway configuration.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Storage   StorageConfig
	Admin     AdminConfig
	Site      SiteConfig
	Debug     DebugConfig
	Changelog ChangelogConfig
	RateLimit RateLimitConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host           string `env:"HOST,default=0.0.0.0"`
	Port           int    `env:"PORT,default=3000"`
	AppEnv         string `env:"APP_ENV,default=production"`
	Docker         bool   `env:"DOCKER_ENV,default=false"`
	AllowedOrigins string `env:"CORS_ALLOWED_ORIGINS"`
}

// LoggingConfig controls the logger.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Type         string `env:"STORAGE_TYPE,default=localstorage"`
	RedisURL     string `env:"REDIS_URL"`
	UpstashURL   string `env:"UPSTASH_URL"`
	UpstashToken string `env:"UPSTASH_TOKEN"`
	D1DatabaseID string `env:"D1_DATABASE_ID"`
	DataDir      string `env:"DATA_DIR,default=data"`
}

// AdminConfig holds the administrator identity. The password doubles as the
// auth cookie signing key.
type AdminConfig struct {
	Username string `env:"ADMIN_USERNAME"`
	Password string `env:"ADMIN_PASSWORD"`
}

// SiteConfig holds site-wide defaults.
type SiteConfig struct {
	Name           string `env:"SITE_NAME"`
	EnableRegister bool   `env:"ENABLE_REGISTER,default=false"`
	APIBaseURL     string `env:"API_BASE_URL"`
	SeedFile       string `env:"CONFIG_FILE"`
	Version        string `env:"APP_VERSION,default=1.0.0"`
}

// DebugConfig gates the diagnostics endpoint.
type DebugConfig struct {
	Key string `env:"DEBUG_KEY"`
}

// ChangelogConfig controls the remote version check.
type ChangelogConfig struct {
	URL      string        `env:"CHANGELOG_URL,default=https://raw.githubusercontent.com/LunaTechLab/MoonTV/main/CHANGELOG"`
	Schedule string        `env:"CHANGELOG_REFRESH,default=@every 1h"`
	Timeout  time.Duration `env:"CHANGELOG_TIMEOUT,default=10s"`
}

// RateLimitConfig throttles the registration endpoint per client.
type RateLimitConfig struct {
	RegisterPerSecond int  `env:"REGISTER_RATE_LIMIT,default=5"`
	RegisterBurst     int  `env:"REGISTER_RATE_BURST,default=10"`
	// TrustProxyHeaders keys clients on CF-Connecting-IP / X-Forwarded-For.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS,default=false"`
}

// Load reads .env from the working directory, if present, and decodes the
// environment.
func Load() (*Config, error) {
	return LoadFrom(".env")
}

// LoadFrom is Load with an explicit .env path. A missing file is not an error.
func LoadFrom(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	cfg.Storage.Type = strings.ToLower(strings.TrimSpace(cfg.Storage.Type))
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = StorageLocal
	}

	return &cfg, nil
}

// IsDevelopment reports whether the gateway runs in development mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Server.AppEnv, "development")
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// AllowedOrigins splits the CORS origin list.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, part := range strings.Split(c.Server.AllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Env returns the snapshot the environment validator inspects.
func (c *Config) Env() envcheck.Env {
	return envcheck.Env{
		StorageType:    c.Storage.Type,
		UpstashURL:     c.Storage.UpstashURL,
		UpstashToken:   c.Storage.UpstashToken,
		RedisURL:       c.Storage.RedisURL,
		D1DatabaseID:   c.Storage.D1DatabaseID,
		AdminUsername:  c.Admin.Username,
		AdminPassword:  c.Admin.Password,
		SiteName:       c.Site.Name,
		EnableRegister: c.Site.EnableRegister,
		AppEnv:         c.Server.AppEnv,
		Docker:         c.Server.Docker,
	}
}
