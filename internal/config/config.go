// Package config handles loading of application settings from the
// environment and of export mapping files.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultMongoDatabase = "casemigrate"
	DefaultAPITimeout    = 30 * time.Second
	DefaultBatchSize     = 100
	DefaultLogLevel      = "info"
)

// Config holds all configuration for the application,
// typically loaded from environment variables.
type Config struct {
	SQLConnString   string
	MongoConnString string
	MongoDatabase   string
	APIBaseURL      string
	APITimeout      time.Duration
	BatchSize       int
	Log             LogSettings
}

// LogSettings selects the logger level and optional log file. They are
// loaded apart from Config so logging works before the stores are
// configured.
type LogSettings struct {
	Level string
	File  string
}

// LoadLogSettings reads LOG_LEVEL and LOG_FILE, defaulting the level.
func LoadLogSettings() LogSettings {
	return LogSettings{
		Level: envOr("LOG_LEVEL", DefaultLogLevel),
		File:  os.Getenv("LOG_FILE"),
	}
}

// LoadConfig loads application settings from environment variables
// (which should be populated by the .env file in main.go).
// The SQL connection string is checked by RequireSQL, since only the
// tracked commands need it.
func LoadConfig() (*Config, error) {
	mongoConn := os.Getenv("MONGO_CONNECTION_STRING")
	if mongoConn == "" {
		return nil, errors.New("MONGO_CONNECTION_STRING environment variable not set")
	}

	cfg := &Config{
		SQLConnString:   os.Getenv("SQL_CONNECTION_STRING"),
		MongoConnString: mongoConn,
		MongoDatabase:   envOr("MONGO_DATABASE", DefaultMongoDatabase),
		APIBaseURL:      os.Getenv("API_BASE_URL"),
		APITimeout:      DefaultAPITimeout,
		BatchSize:       DefaultBatchSize,
		Log:             LoadLogSettings(),
	}

	if v := os.Getenv("API_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, errors.Errorf("API_TIMEOUT %q is not a positive duration", v)
		}
		cfg.APITimeout = d
	}
	if v := os.Getenv("BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, errors.Errorf("BATCH_SIZE %q is not a positive integer", v)
		}
		cfg.BatchSize = n
	}
	return cfg, nil
}

// RequireSQL fails when the tracking database is not configured.
func (c *Config) RequireSQL() error {
	if c.SQLConnString == "" {
		return errors.New("SQL_CONNECTION_STRING environment variable not set")
	}
	return nil
}

// RequireAPI fails when the source API is not configured.
func (c *Config) RequireAPI() error {
	if c.APIBaseURL == "" {
		return errors.New("API_BASE_URL environment variable not set")
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
