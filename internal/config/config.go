// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"

	"github.com/denapp-control/backend/internal/agenda"
	"github.com/denapp-control/backend/internal/sheets"
)

// Config is the full server configuration.
type Config struct {
	Addr      string `env:"DENAPP_ADDR" envDefault:":8001"`
	DataDir   string `env:"DENAPP_DATA_DIR" envDefault:"/data"`
	StaticDir string `env:"DENAPP_STATIC_DIR" envDefault:"./static"`
	Timezone  string `env:"DENAPP_TIMEZONE" envDefault:"Europe/Madrid"`

	Log   LogConfig
	Sheet SheetConfig
	Sync  SyncConfig
}

// LogConfig controls the optional rotating log file.
type LogConfig struct {
	File       string `env:"DENAPP_LOG_FILE"`
	MaxSizeMB  int    `env:"DENAPP_LOG_MAX_SIZE_MB" envDefault:"10"`
	MaxBackups int    `env:"DENAPP_LOG_MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"DENAPP_LOG_MAX_AGE_DAYS" envDefault:"30"`
}

// SheetConfig locates the agenda sheet.
type SheetConfig struct {
	SpreadsheetID   string `env:"GOOGLE_SHEETS_SPREADSHEET_ID"`
	SheetName       string `env:"GOOGLE_SHEETS_SHEET_NAME"`
	CredentialsFile string `env:"GOOGLE_SHEETS_CREDENTIALS_FILE"`
}

// SyncConfig tunes the scheduler and the retry policy.
type SyncConfig struct {
	IntervalMinutes int           `env:"SYNC_INTERVAL_MINUTES" envDefault:"5"`
	DailySpec       string        `env:"DAILY_SYNC_SPEC" envDefault:"0 0 0 * * *"`
	MaxRetries      int           `env:"SHEETS_MAX_RETRIES" envDefault:"3"`
	RetryBaseDelay  time.Duration `env:"SHEETS_RETRY_BASE_DELAY" envDefault:"1s"`
	RetryMaxDelay   time.Duration `env:"SHEETS_RETRY_MAX_DELAY" envDefault:"60s"`
	RetryFactor     float64       `env:"SHEETS_RETRY_FACTOR" envDefault:"2"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Sync.IntervalMinutes <= 0 {
		errs = append(errs, fmt.Errorf("SYNC_INTERVAL_MINUTES must be positive, got %d", c.Sync.IntervalMinutes))
	}
	if c.Sync.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("SHEETS_MAX_RETRIES must not be negative, got %d", c.Sync.MaxRetries))
	}
	if c.Sync.RetryBaseDelay <= 0 || c.Sync.RetryMaxDelay < c.Sync.RetryBaseDelay {
		errs = append(errs, fmt.Errorf("retry delays must satisfy 0 < base (%s) <= max (%s)", c.Sync.RetryBaseDelay, c.Sync.RetryMaxDelay))
	}
	if c.Sync.RetryFactor < 1 {
		errs = append(errs, fmt.Errorf("SHEETS_RETRY_FACTOR must be at least 1, got %g", c.Sync.RetryFactor))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("DENAPP_TIMEZONE: %w", err))
	}
	return errors.Join(errs...)
}

// SheetConfigured reports whether enough is set to reach the agenda sheet.
// Without it the server runs unconfigured.
func (c *Config) SheetConfigured() bool {
	return c.Sheet.SpreadsheetID != "" && c.Sheet.CredentialsFile != ""
}

// SheetsClient returns the settings for the Sheets client.
func (c *Config) SheetsClient() sheets.Config {
	return sheets.Config{
		SpreadsheetID:   c.Sheet.SpreadsheetID,
		SheetName:       c.Sheet.SheetName,
		CredentialsFile: c.Sheet.CredentialsFile,
	}
}

// RetryPolicy returns the retry policy for sheet calls.
func (c *Config) RetryPolicy() agenda.Policy {
	return agenda.Policy{
		MaxRetries: c.Sync.MaxRetries,
		BaseDelay:  c.Sync.RetryBaseDelay,
		MaxDelay:   c.Sync.RetryMaxDelay,
		Factor:     c.Sync.RetryFactor,
	}
}

// DBPath is the SQLite file inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "denapp.db")
}

// Location returns the clinic's time zone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
