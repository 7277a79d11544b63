package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment    string `envconfig:"ENVIRONMENT" default:"production"`
	Port           string `envconfig:"PORT" default:"8080"`
	DatabasePath   string `envconfig:"DATABASE_PATH" default:"wishlists.db"`
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"INFO"`

	BungieAPIKey        string  `envconfig:"BUNGIE_API_KEY"`
	BungieBaseURL       string  `envconfig:"BUNGIE_BASE_URL" default:"https://www.bungie.net"`
	BungieRatePerSecond float64 `envconfig:"BUNGIE_RATE_PER_SECOND" default:"10"`
	D2AIBaseURL         string  `envconfig:"D2AI_BASE_URL" default:"https://raw.githubusercontent.com/DestinyItemManager/d2ai-module/master"`
	CatalogDir          string  `envconfig:"CATALOG_DIR"`
	GitHubAPIURL        string  `envconfig:"GITHUB_API_URL" default:"https://api.github.com"`

	HTTPTimeout          time.Duration `envconfig:"HTTP_TIMEOUT" default:"60s"`
	VaultCacheTTL        time.Duration `envconfig:"VAULT_CACHE_TTL" default:"5m"`
	VaultRefreshDebounce time.Duration `envconfig:"VAULT_REFRESH_DEBOUNCE" default:"1m"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.VaultRefreshDebounce > c.VaultCacheTTL {
		return fmt.Errorf("VAULT_REFRESH_DEBOUNCE (%s) must not exceed VAULT_CACHE_TTL (%s)", c.VaultRefreshDebounce, c.VaultCacheTTL)
	}
	if c.BungieRatePerSecond <= 0 {
		return fmt.Errorf("BUNGIE_RATE_PER_SECOND must be positive")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}
