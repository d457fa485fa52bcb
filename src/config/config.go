// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

var DefaultAllowedOrigins = []string{
	"http://localhost:5173",
	"https://task-master-client-side.vercel.app",
}

// Config holds the server configuration
type Config struct {
	Port           string
	StoreDriver    string // mongo or postgres
	DatabaseURI    string
	DatabaseName   string
	CollectionName string // Mongo collection or Postgres table
	AllowedOrigins []string

	StoreTimeout    time.Duration // Per store call (default: 10s)
	ShutdownTimeout time.Duration // Grace period for HTTP shutdown (default: 10s)

	OTelStdout bool

	// Warnings collects settings that fell back to a default. They are
	// logged once the logger is set up.
	Warnings []string
}

// Default returns a configuration with the defaults applied and no store URI.
func Default() Config {
	return Config{
		Port:            "5000",
		StoreDriver:     DriverMongo,
		DatabaseName:    "taskmaster",
		CollectionName:  "tasks",
		AllowedOrigins:  append([]string(nil), DefaultAllowedOrigins...),
		StoreTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		OTelStdout:      true,
	}
}

// Load reads an optional .env file and then the process environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function such as os.Getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()

	if v := getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := getenv("STORE_DRIVER"); v != "" {
		cfg.StoreDriver = strings.ToLower(v)
	}
	cfg.DatabaseURI = getenv("DATABASE_URI")
	if v := getenv("DATABASE_NAME"); v != "" {
		cfg.DatabaseName = v
	}
	if v := getenv("COLLECTION_NAME"); v != "" {
		cfg.CollectionName = v
	}
	if v := getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	cfg.StoreTimeout = cfg.durationOr(getenv, "STORE_TIMEOUT", cfg.StoreTimeout)
	cfg.ShutdownTimeout = cfg.durationOr(getenv, "SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if v := getenv("OTEL_STDOUT"); v != "" {
		cfg.OTelStdout = v == "true" || v == "1"
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.DatabaseURI == "" {
		return errors.New("DATABASE_URI environment variable is required")
	}
	switch c.StoreDriver {
	case DriverMongo, DriverPostgres:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	if c.StoreTimeout <= 0 {
		return errors.New("STORE_TIMEOUT must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) durationOr(getenv func(string) string, key string, def time.Duration) time.Duration {
	raw := getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		c.Warnings = append(c.Warnings, fmt.Sprintf("failed to parse %s '%s', defaulting to %s: %v", key, raw, def, err))
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
