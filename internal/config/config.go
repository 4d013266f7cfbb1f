package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/mcqkaramu/server/internal/model"
)

// ProviderConfig holds the credentials and base URL of one upstream provider
type ProviderConfig struct {
	BaseURL       string
	ApplicationID string
	Password      string
}

// Configured reports whether the provider can be called
func (p ProviderConfig) Configured() bool {
	return p.BaseURL != "" && p.ApplicationID != "" && p.Password != ""
}

// Config holds the application configuration
type Config struct {
	Port          string `env:"PORT" envDefault:"8080"`
	DatabaseURL   string `env:"DATABASE_URL,required,notEmpty"`
	SessionDBPath string `env:"SESSION_DB_PATH" envDefault:"data/sessions.db"`
	Env           string `env:"APP_ENV" envDefault:"development"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	JWTSecret   string `env:"JWT_SECRET,required,notEmpty"`
	JWTIssuer   string `env:"JWT_ISSUER"`
	JWTAudience string `env:"JWT_AUDIENCE"`

	MobitelBaseURL     string `env:"MOBITEL_BASE_URL" envDefault:"https://api.mspace.lk"`
	MobitelAppID       string `env:"MOBITEL_APP_ID"`
	MobitelAppPassword string `env:"MOBITEL_APP_PASSWORD"`
	DialogBaseURL      string `env:"DIALOG_BASE_URL"`
	DialogAppID        string `env:"DIALOG_APP_ID"`
	DialogAppPassword  string `env:"DIALOG_APP_PASSWORD"`

	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"10s"`

	WhitelistEnabled bool     `env:"ENABLE_WHITELIST" envDefault:"false"`
	WhitelistedIDs   []string `env:"WHITELISTED_SUBSCRIBER_IDS" envSeparator:","`

	// IdentitySaveBackoff is the initial delay between identity persistence attempts.
	// Zero retries immediately.
	IdentitySaveBackoff time.Duration `env:"IDENTITY_SAVE_BACKOFF" envDefault:"0s"`

	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"100"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"15m"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.WhitelistedIDs = trimAll(cfg.WhitelistedIDs)

	if cfg.WhitelistEnabled && cfg.Env == "production" {
		return nil, fmt.Errorf("ENABLE_WHITELIST must not be true when APP_ENV=production")
	}
	if cfg.UpstreamTimeout <= 0 {
		return nil, fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}
	if cfg.IdentitySaveBackoff < 0 {
		return nil, fmt.Errorf("IDENTITY_SAVE_BACKOFF must not be negative")
	}
	if cfg.RateLimitRequests <= 0 || cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}

	return &cfg, nil
}

// DatabaseTarget returns the host and database name of DATABASE_URL for logging, without credentials
func (c *Config) DatabaseTarget() (host, name string) {
	u, err := url.Parse(c.DatabaseURL)
	if err != nil {
		return "", ""
	}
	host = u.Hostname()
	if host == "" {
		host = "localhost"
	}
	return host, strings.TrimPrefix(u.Path, "/")
}

// Providers returns the provider table keyed by provider
func (c *Config) Providers() map[model.Provider]ProviderConfig {
	return map[model.Provider]ProviderConfig{
		model.ProviderMobitel: {
			BaseURL:       strings.TrimRight(c.MobitelBaseURL, "/"),
			ApplicationID: c.MobitelAppID,
			Password:      c.MobitelAppPassword,
		},
		model.ProviderDialog: {
			BaseURL:       strings.TrimRight(c.DialogBaseURL, "/"),
			ApplicationID: c.DialogAppID,
			Password:      c.DialogAppPassword,
		},
	}
}

// SlogLevel maps LOG_LEVEL to a slog.Level, defaulting to info
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
