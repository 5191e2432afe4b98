package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrNoAPIKey is returned by commands that need the generator when no key is set.
var ErrNoAPIKey = errors.New("GEMINI_API_KEY environment variable is not set")

// Config holds the application configuration.
type Config struct {
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	Model        string `env:"TILDEATH_MODEL" envDefault:"gemini-2.5-flash"`
	SaveDir      string `env:"TILDEATH_SAVE_DIR" envDefault:".saves"`
	// GhostDB selects the SQLite ghost-memory store when set.
	GhostDB    string `env:"TILDEATH_GHOST_DB"`
	LogFile    string `env:"TILDEATH_LOG_FILE"`
	Debug      bool   `env:"TILDEATH_DEBUG"`
	Seed       uint64 `env:"TILDEATH_SEED"`
	TuningFile string `env:"TILDEATH_TUNING"`
	CatalogDir string `env:"TILDEATH_CATALOG_DIR"`

	GenTimeout  time.Duration `env:"TILDEATH_GEN_TIMEOUT" envDefault:"45s"`
	GenAttempts uint          `env:"TILDEATH_GEN_ATTEMPTS" envDefault:"3"`
	GenBackoff  time.Duration `env:"TILDEATH_GEN_BACKOFF" envDefault:"1s"`
}

// LoadConfig loads .env files (if any) and then the environment.
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(cfg.SaveDir, "tildeath.log")
	}
	if cfg.GenAttempts == 0 {
		cfg.GenAttempts = 1
	}
	return &cfg, nil
}

// RequireAPIKey reports ErrNoAPIKey when the generator cannot be reached.
func (c *Config) RequireAPIKey() error {
	if c.GeminiAPIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}
