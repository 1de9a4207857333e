package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "izposoja.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 14*24*time.Hour, cfg.Lending.LoanPeriod())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
addr = "127.0.0.1:9000"

[lending]
loan_days = 21
daily_fine_rate = "2500.50"

[reconciler]
interval = "15m"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 21, cfg.Lending.LoanDays)
	assert.True(t, decimal.RequireFromString("2500.50").Equal(cfg.Lending.DailyFineRate))
	assert.Equal(t, 15*time.Minute, cfg.Reconciler.Interval)
	// Untouched keys keep their defaults.
	assert.Equal(t, 30, cfg.Lending.FineDueDays)
	assert.Equal(t, "izposoja.sqlite3", cfg.Database.Path)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[lending]
loan_dayz = 3
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "loan_dayz")
}

func TestLoadRejectsInvalidPolicy(t *testing.T) {
	path := writeConfig(t, `
[lending]
loan_days = 0
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "loan_days")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorContains(t, err, "not found")
}
