package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	ViewPage   = "page"
	ViewWidget = "widget"
)

const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// DefaultHistoryLimit is the page view transcript cap (5 exchanges)
const DefaultHistoryLimit = 10

// Config holds application configuration
type Config struct {
	APIURL      string        `env:"CEPACHAT_API_URL" envDefault:"http://localhost:8000/api"`
	HTTPTimeout time.Duration `env:"CEPACHAT_HTTP_TIMEOUT" envDefault:"0s"` // 0 leaves the client default (no timeout)
	View        string        `env:"CEPACHAT_VIEW" envDefault:"page"`
	SessionID   string        `env:"CEPACHAT_SESSION_ID"` // Resume this session instead of the stored one

	// HistoryLimit caps the page view transcript; the widget is never capped
	HistoryLimit int `env:"CEPACHAT_HISTORY_LIMIT" envDefault:"10"`

	// Session pointer persistence
	Store     string `env:"CEPACHAT_STORE" envDefault:"file"`
	StorePath string `env:"CEPACHAT_STORE_PATH"` // File or SQLite path; defaults under the user config dir
	StoreKey  string `env:"CEPACHAT_STORE_KEY" envDefault:"chatSessionId"`
	RedisAddr string `env:"CEPACHAT_REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisDB   int    `env:"CEPACHAT_REDIS_DB" envDefault:"0"`
	RedisPass string `env:"CEPACHAT_REDIS_PASSWORD"`

	CacheTTL time.Duration `env:"CEPACHAT_CACHE_TTL" envDefault:"5m"`

	LogDir string `env:"CEPACHAT_LOG_DIR" envDefault:"logs"`
	Debug  bool   `env:"CEPACHAT_DEBUG" envDefault:"false"`
	Plain  bool   `env:"CEPACHAT_PLAIN" envDefault:"false"` // Line-oriented REPL instead of the TUI
}

// Load reads configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that flags and env can get wrong
func (c *Config) Validate() error {
	switch c.View {
	case ViewPage, ViewWidget:
	default:
		return fmt.Errorf("unknown view: %s (page|widget)", c.View)
	}

	switch c.Store {
	case StoreMemory, StoreFile, StoreSQLite, StoreRedis:
	default:
		return fmt.Errorf("unknown store: %s (memory|file|sqlite|redis)", c.Store)
	}

	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("invalid api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api url must be http or https: %s", c.APIURL)
	}

	if c.HistoryLimit < 0 {
		return fmt.Errorf("history limit must not be negative: %d", c.HistoryLimit)
	}
	if c.HistoryLimit%2 != 0 {
		return fmt.Errorf("history limit must be even (whole exchanges): %d", c.HistoryLimit)
	}
	if c.StoreKey == "" {
		return fmt.Errorf("store key must not be empty")
	}
	return nil
}

// MaxMessages is the transcript cap for the configured view; 0 means uncapped
func (c *Config) MaxMessages() int {
	if c.View == ViewWidget {
		return 0
	}
	return c.HistoryLimit
}

// StoreKind is the pointer store actually used. The widget keeps its
// session in memory only.
func (c *Config) StoreKind() string {
	if c.View == ViewWidget {
		return StoreMemory
	}
	return c.Store
}
