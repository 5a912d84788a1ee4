// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache / signal store (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// SiteURL is the canonical site address. Link destinations must stay on
	// this host (www. prefix allowed).
	SiteURL string `env:"SITE_URL,required"`

	// BaseURL for generated short links (e.g. https://lnk.mysite.example)
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Admin API key, stored as an argon2id PHC hash.
	AdminKeyHash string `env:"ADMIN_KEY_HASH,required"`

	// Optional HMAC secret for conversion webhook signatures. Empty disables
	// signature checks.
	ConversionSecret string `env:"CONVERSION_SECRET" envDefault:""`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting on the redirect path
	RateLimitRedirectEnabled bool `env:"RATE_LIMIT_REDIRECT_ENABLED" envDefault:"true"`
	RateLimitRedirectRPS     int  `env:"RATE_LIMIT_REDIRECT_RPS" envDefault:"100"`
	RateLimitRedirectBurst   int  `env:"RATE_LIMIT_REDIRECT_BURST" envDefault:"20"`

	// Click dedup window: repeat visits from the same IP to the same link
	// inside this window are not recorded again.
	ClickDedupWindow time.Duration `env:"CLICK_DEDUP_WINDOW" envDefault:"5m"`

	// Click retention for the daily sweep.
	ClickRetention time.Duration `env:"CLICK_RETENTION" envDefault:"2160h"` // 90 days

	// Geolocation lookup
	GeoLookupEnabled bool          `env:"GEO_LOOKUP_ENABLED" envDefault:"false"`
	GeoLookupURL     string        `env:"GEO_LOOKUP_URL" envDefault:""`
	GeoLookupTimeout time.Duration `env:"GEO_LOOKUP_TIMEOUT" envDefault:"500ms"`

	// Cookie settings for visitor attribution cookies.
	CookieTTL    time.Duration `env:"COOKIE_TTL" envDefault:"720h"` // 30 days
	CookieSecure bool          `env:"COOKIE_SECURE" envDefault:"true"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
