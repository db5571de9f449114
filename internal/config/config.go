// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"registrar/internal/infrastructure/storage/postgres"
	"registrar/pkg/logger"
)

// Config is the runtime configuration shared by the binaries.
type Config struct {
	DatabaseURL      string
	LogLevel         string
	Environment      string
	MaxConns         int
	MinConns         int
	StatementTimeout time.Duration
	SchemaCache      bool
	SchemaFile       string
}

// Load reads a .env file when present, then the environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Config{
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		Environment:      getEnv("APP_ENV", "development"),
		MaxConns:         getEnvInt("DB_MAX_CONNS", 10),
		MinConns:         getEnvInt("DB_MIN_CONNS", 1),
		StatementTimeout: getEnvDuration("DB_STATEMENT_TIMEOUT", 30*time.Second),
		SchemaCache:      getEnvBool("EAV_SCHEMA_CACHE", false),
		SchemaFile:       getEnv("EAV_SCHEMA_FILE", ""),
	}
	return cfg, cfg.Validate()
}

// Validate reports missing or inconsistent settings.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.MinConns, c.MaxConns)
	}
	return nil
}

// Development reports whether the process runs in development mode.
func (c Config) Development() bool {
	return c.Environment == "development"
}

// Logger returns the logger configuration.
func (c Config) Logger() logger.Config {
	return logger.Config{
		Level:       c.LogLevel,
		Development: c.Development(),
	}
}

// Pool returns the connection pool configuration.
func (c Config) Pool() postgres.PoolConfig {
	pc := postgres.DefaultPoolConfig(c.DatabaseURL)
	pc.MaxConns = int32(c.MaxConns)
	pc.MinConns = int32(c.MinConns)
	return pc
}

// TxOptions returns the transaction defaults with the configured statement timeout.
func (c Config) TxOptions() postgres.TxOptions {
	opts := postgres.DefaultTxOptions()
	opts.StatementTimeout = c.StatementTimeout
	return opts
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
