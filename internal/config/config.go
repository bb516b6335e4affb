package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreMongo  = "mongo"

	WordsHTTP     = "http"
	WordsEmbedded = "embedded"
)

type Config struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	FrontendURL    string   `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`
	ExtraOrigins   []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	AllowedOrigins []string

	JWTSecret      string        `env:"JWT_SECRET" envDefault:"your-secret-key-change-this-in-production"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"24h"`

	DatabaseURL       string        `env:"DATABASE_URL"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"25"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`

	StoreBackend  string `env:"STORE_BACKEND" envDefault:"memory"`
	RedisURL      string `env:"REDIS_URL" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"wordle"`

	WordSource          string        `env:"WORD_SOURCE" envDefault:"http"`
	WordAPIURL          string        `env:"WORD_API_URL" envDefault:"https://random-word-api.herokuapp.com/word?length=5"`
	WordTimeout         time.Duration `env:"WORD_TIMEOUT" envDefault:"3s"`
	WordRetryMaxElapsed time.Duration `env:"WORD_RETRY_MAX_ELAPSED" envDefault:"5s"`

	ReaperWaitingTTL    time.Duration `env:"REAPER_WAITING_TTL" envDefault:"5m"`
	ReaperEndedTTL      time.Duration `env:"REAPER_ENDED_TTL" envDefault:"0"`
	ReaperSweepInterval time.Duration `env:"REAPER_SWEEP_INTERVAL" envDefault:"1h"`

	GameMaxGuesses int `env:"GAME_MAX_GUESSES" envDefault:"0"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// Load reads the environment. Callers load .env files beforehand.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	switch cfg.StoreBackend {
	case StoreMemory, StoreRedis, StoreMongo:
	default:
		return nil, fmt.Errorf("STORE_BACKEND must be memory, redis or mongo, got %q", cfg.StoreBackend)
	}

	cfg.WordSource = strings.ToLower(strings.TrimSpace(cfg.WordSource))
	switch cfg.WordSource {
	case WordsHTTP, WordsEmbedded:
	default:
		return nil, fmt.Errorf("WORD_SOURCE must be http or embedded, got %q", cfg.WordSource)
	}

	if cfg.GameMaxGuesses < 0 {
		return nil, fmt.Errorf("GAME_MAX_GUESSES must not be negative")
	}
	if cfg.ReaperWaitingTTL <= 0 {
		return nil, fmt.Errorf("REAPER_WAITING_TTL must be positive")
	}
	// REAPER_ENDED_TTL=0 leaves ended Sessions alone
	if cfg.ReaperEndedTTL < 0 {
		return nil, fmt.Errorf("REAPER_ENDED_TTL must not be negative")
	}
	if cfg.ReaperEndedTTL > 0 && cfg.ReaperSweepInterval <= 0 {
		return nil, fmt.Errorf("REAPER_SWEEP_INTERVAL must be positive when REAPER_ENDED_TTL is set")
	}

	// Frontend URL + local dev server + CSV extras
	cfg.AllowedOrigins = []string{cfg.FrontendURL, "http://localhost:5173"}
	for _, origin := range cfg.ExtraOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
		}
	}

	return &cfg, nil
}
