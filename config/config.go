// Package config loads fieldsync settings from defaults, .env files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sarchlab/fieldsync/field"
)

// Environment variables read by Load.
const (
	EnvQuiescence  = "FIELDSYNC_QUIESCENCE"
	EnvDB          = "FIELDSYNC_DB"
	EnvJournal     = "FIELDSYNC_JOURNAL"
	EnvMonitorPort = "FIELDSYNC_MONITOR_PORT"
	EnvLogLevel    = "FIELDSYNC_LOG_LEVEL"
)

// DefaultEnvFile is read by Load when no file is given.
const DefaultEnvFile = ".env"

// Config holds the settings of a fieldsync process.
type Config struct {
	// Quiescence is the debounce window of every field.
	Quiescence time.Duration

	// DB is the path of the notes database.
	DB string

	// Journal is the path, without extension, of the activity journal. Empty
	// picks a unique name in the working directory.
	Journal string

	// MonitorPort is the port of the monitoring server. 0 disables it.
	MonitorPort int

	LogLevel slog.Level
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Quiescence: field.DefaultQuiescence,
		DB:         "fieldsync.sqlite3",
		LogLevel:   slog.LevelInfo,
	}
}

type lookupFunc func(key string) (string, bool)

// Load starts from Default, applies the given .env files and then the
// process environment. Missing .env files are skipped.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}

	dotenv := map[string]string{}

	for _, f := range envFiles {
		values, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			return Config{}, fmt.Errorf("reading %s: %w", f, err)
		}

		for k, v := range values {
			dotenv[k] = v
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}

		v, ok := dotenv[key]

		return v, ok
	}

	c := Default()
	if err := c.apply(lookup); err != nil {
		return Config{}, err
	}

	return c, nil
}

func (c *Config) apply(lookup lookupFunc) error {
	if v, ok := lookup(EnvQuiescence); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvQuiescence, err)
		}

		c.Quiescence = d
	}

	if v, ok := lookup(EnvDB); ok {
		c.DB = v
	}

	if v, ok := lookup(EnvJournal); ok {
		c.Journal = v
	}

	if v, ok := lookup(EnvMonitorPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMonitorPort, err)
		}

		c.MonitorPort = port
	}

	if v, ok := lookup(EnvLogLevel); ok {
		var level slog.Level
		if err := level.UnmarshalText([]byte(strings.TrimSpace(v))); err != nil {
			return fmt.Errorf("%s: %w", EnvLogLevel, err)
		}

		c.LogLevel = level
	}

	return c.Validate()
}

// Validate checks the ranges of the settings.
func (c Config) Validate() error {
	if c.Quiescence <= 0 {
		return fmt.Errorf("quiescence must be positive, got %v", c.Quiescence)
	}

	if c.MonitorPort < 0 || c.MonitorPort > 65535 {
		return fmt.Errorf("monitor port %d out of range", c.MonitorPort)
	}

	return nil
}

// Logger returns a text logger writing to w at the configured level.
func (c Config) Logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: c.LogLevel,
	}))
}
