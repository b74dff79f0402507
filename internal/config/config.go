// Package config reads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr            string        `env:"TABLETOP_ADDR" envDefault:":8080"`
	GamesDir        string        `env:"TABLETOP_GAMES_DIR" envDefault:"./games"`
	DatabaseURL     string        `env:"TABLETOP_DATABASE_URL"`
	LogLevel        string        `env:"TABLETOP_LOG_LEVEL" envDefault:"info"`
	LogDevelopment  bool          `env:"TABLETOP_LOG_DEV" envDefault:"false"`
	WSReadLimit     int64         `env:"TABLETOP_WS_READ_LIMIT" envDefault:"1048576"`
	WSWriteTimeout  time.Duration `env:"TABLETOP_WS_WRITE_TIMEOUT" envDefault:"3s"`
	WSOutbox        int           `env:"TABLETOP_WS_OUTBOX" envDefault:"32"`
	WSOrigins       []string      `env:"TABLETOP_WS_ORIGINS" envSeparator:","`
	ShutdownTimeout time.Duration `env:"TABLETOP_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads the optional dotenv files, then the environment. Variables
// already set in the environment win over the files.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.WSOutbox <= 0 {
		return Config{}, fmt.Errorf("TABLETOP_WS_OUTBOX must be positive, got %d", cfg.WSOutbox)
	}
	return cfg, nil
}
