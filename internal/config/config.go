package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/fivehints.db"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SPADir   string     `env:"SPA_DIR"`

	TokenSecret    string   `env:"TOKEN_SECRET,required,unset"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	PublicBaseURL  string   `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	RedisURL       string   `env:"REDIS_URL"`

	UpstreamURL        string        `env:"UPSTREAM_URL"`
	UpstreamAPIKey     string        `env:"UPSTREAM_API_KEY,unset"`
	UpstreamTimeout    time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"40s"`
	EquivalenceTimeout time.Duration `env:"EQUIVALENCE_TIMEOUT" envDefault:"8s"`

	PlayerTokenTTL  time.Duration `env:"PLAYER_TOKEN_TTL" envDefault:"168h"`
	DailyWindow     time.Duration `env:"DAILY_WINDOW" envDefault:"24h"`
	GuessRateLimit  int           `env:"GUESS_RATE_LIMIT" envDefault:"60"`
	CreateRateLimit int           `env:"CREATE_RATE_LIMIT" envDefault:"10"`

	AdminEmail        string `env:"ADMIN_EMAIL"`
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH,unset"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if len(cfg.TokenSecret) < 16 {
		return nil, fmt.Errorf("TOKEN_SECRET must be at least 16 bytes")
	}
	if cfg.PlayerTokenTTL <= 0 || cfg.DailyWindow <= 0 {
		return nil, fmt.Errorf("PLAYER_TOKEN_TTL and DAILY_WINDOW must be positive")
	}
	return &cfg, nil
}
