package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config carries everything the engine needs to reach its target database
// and write artifacts. Values come from SCHEMACTL_* environment variables; a
// .env file in the working directory is honored for local development.
type Config struct {
	Engine     string
	DSN        string
	Schema     string
	BackupRoot string
	LogLevel   string
	LogFormat  string
}

func Load() (Config, error) {
	// Best effort: absence of a .env file is the normal case.
	_ = godotenv.Load()

	cfg := Config{
		Engine:     getEnv("SCHEMACTL_DB_ENGINE", "mysql"),
		DSN:        os.Getenv("SCHEMACTL_DB_DSN"),
		Schema:     os.Getenv("SCHEMACTL_DB_SCHEMA"),
		BackupRoot: getEnv("SCHEMACTL_BACKUP_DIR", "./backups"),
		LogLevel:   getEnv("SCHEMACTL_LOG_LEVEL", "info"),
		LogFormat:  getEnv("SCHEMACTL_LOG_FORMAT", "text"),
	}
	cfg.Engine = strings.ToLower(strings.TrimSpace(cfg.Engine))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.DSN == "" {
		return errors.New("SCHEMACTL_DB_DSN is required")
	}
	switch c.Engine {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("SCHEMACTL_DB_ENGINE must be mysql or postgres, got %q", c.Engine)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
