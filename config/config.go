// Package config loads the ledgerd configuration from a YAML file with
// environment-variable overrides. The resulting ledger.Options are
// threaded into the engine explicitly; nothing here is a global.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/quillbooks/ledger-engine/ledger"
)

// Config represents the top-level ledger.yaml configuration.
type Config struct {
	Listen   string       `yaml:"listen"`
	Database string       `yaml:"database"`
	Ledger   LedgerConfig `yaml:"ledger"`
}

// LedgerConfig holds the engine defaults.
type LedgerConfig struct {
	DefaultCurrency string `yaml:"default_currency"`
	CashAccount     string `yaml:"cash_account"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	opts := ledger.DefaultOptions()
	return Config{
		Listen:   ":8080",
		Database: "ledger.db",
		Ledger: LedgerConfig{
			DefaultCurrency: string(opts.DefaultCurrency),
			CashAccount:     opts.CashAccount,
		},
	}
}

// Load reads path (missing file = defaults), then applies overrides from
// the environment, including a .env file in the working directory.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// defaults
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	// .env is optional; ignore a missing file.
	_ = godotenv.Load()

	if v := os.Getenv("LEDGER_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("LEDGER_DATABASE"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("LEDGER_DEFAULT_CURRENCY"); v != "" {
		cfg.Ledger.DefaultCurrency = v
	}
	if v := os.Getenv("LEDGER_CASH_ACCOUNT"); v != "" {
		cfg.Ledger.CashAccount = v
	}

	if !ledger.Currency(cfg.Ledger.DefaultCurrency).Valid() {
		return nil, fmt.Errorf("invalid default currency %q", cfg.Ledger.DefaultCurrency)
	}
	return &cfg, nil
}

// Options converts the configuration into engine options.
func (c *Config) Options() ledger.Options {
	return ledger.Options{
		DefaultCurrency: ledger.Currency(c.Ledger.DefaultCurrency),
		CashAccount:     c.Ledger.CashAccount,
	}
}

// Write saves the configuration as YAML.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
