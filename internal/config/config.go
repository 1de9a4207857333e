// Package config loads the izposoja TOML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

// Config is the full application configuration.
type Config struct {
	Server     Server     `toml:"server"`
	Database   Database   `toml:"database"`
	Lending    Lending    `toml:"lending"`
	Reconciler Reconciler `toml:"reconciler"`
	Retry      Retry      `toml:"retry"`
}

// Server configures the HTTP listener and log output.
type Server struct {
	Addr    string `toml:"addr"`
	LogPath string `toml:"log_path"`
}

// Database configures the SQLite file.
type Database struct {
	Path string `toml:"path"`
}

// Lending holds the library's loan and fine policy.
type Lending struct {
	LoanDays        int             `toml:"loan_days"`
	DailyFineRate   decimal.Decimal `toml:"daily_fine_rate"`
	FineDueDays     int             `toml:"fine_due_days"`
	ReservationDays int             `toml:"reservation_days"`
}

// Reconciler configures the periodic overdue and expiry sweep.
type Reconciler struct {
	Enabled  bool          `toml:"enabled"`
	Interval time.Duration `toml:"interval"`
}

// Retry bounds how often a transaction is re-run after lock contention.
type Retry struct {
	MaxAttempts int           `toml:"max_attempts"`
	BaseDelay   time.Duration `toml:"base_delay"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: Server{
			Addr: ":8080",
		},
		Database: Database{
			Path: "izposoja.sqlite3",
		},
		Lending: Lending{
			LoanDays:        14,
			DailyFineRate:   decimal.NewFromInt(5000),
			FineDueDays:     30,
			ReservationDays: 7,
		},
		Reconciler: Reconciler{
			Enabled:  true,
			Interval: time.Hour,
		},
		Retry: Retry{
			MaxAttempts: 5,
			BaseDelay:   10 * time.Millisecond,
		},
	}
}

// Load reads path over the defaults. A missing file is not an error when
// path is empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("config file %s not found", path)
		}
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("unknown config key %q in %s", undecoded[0].String(), path)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the lending engine cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Database.Path == "":
		return errors.New("database.path must be set")
	case c.Lending.LoanDays <= 0:
		return errors.New("lending.loan_days must be positive")
	case c.Lending.FineDueDays <= 0:
		return errors.New("lending.fine_due_days must be positive")
	case c.Lending.ReservationDays <= 0:
		return errors.New("lending.reservation_days must be positive")
	case c.Lending.DailyFineRate.Sign() < 0:
		return errors.New("lending.daily_fine_rate must not be negative")
	case c.Reconciler.Enabled && c.Reconciler.Interval <= 0:
		return errors.New("reconciler.interval must be positive")
	case c.Retry.MaxAttempts <= 0:
		return errors.New("retry.max_attempts must be positive")
	case c.Retry.BaseDelay < 0:
		return errors.New("retry.base_delay must not be negative")
	}
	return nil
}

// LoanPeriod is the default time between borrow and due date.
func (l Lending) LoanPeriod() time.Duration {
	return time.Duration(l.LoanDays) * 24 * time.Hour
}

// FineDuePeriod is the time a reader has to pay a new fine.
func (l Lending) FineDuePeriod() time.Duration {
	return time.Duration(l.FineDueDays) * 24 * time.Hour
}

// ReservationPeriod is the default lifetime of a reservation.
func (l Lending) ReservationPeriod() time.Duration {
	return time.Duration(l.ReservationDays) * 24 * time.Hour
}
