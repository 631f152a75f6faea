package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/ledger-engine/config"
	"github.com/quillbooks/ledger-engine/ledger"
)

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "ledger.db", cfg.Database)
	assert.Equal(t, "USD", cfg.Ledger.DefaultCurrency)
	assert.Equal(t, "1111", cfg.Ledger.CashAccount)
}

func TestLoad_ReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9090"
database: books.db
ledger:
  default_currency: EUR
  cash_account: "1010"
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "books.db", cfg.Database)

	opts := cfg.Options()
	assert.Equal(t, ledger.Currency("EUR"), opts.DefaultCurrency)
	assert.Equal(t, "1010", opts.CashAccount)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9090\"\n"), 0o644))

	t.Setenv("LEDGER_LISTEN", ":7070")
	t.Setenv("LEDGER_DEFAULT_CURRENCY", "JPY")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, "JPY", cfg.Ledger.DefaultCurrency)
}

func TestLoad_RejectsInvalidCurrency(t *testing.T) {
	t.Setenv("LEDGER_DEFAULT_CURRENCY", "dollars")

	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestWrite_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	cfg := config.Default()
	cfg.Listen = ":6060"
	require.NoError(t, cfg.Write(path))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":6060", loaded.Listen)
	assert.Equal(t, cfg.Ledger, loaded.Ledger)
}
