// Command izposoja runs the library lending service.
package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/izposoja/internal/api"
	"github.com/erazemk/izposoja/internal/auth"
	"github.com/erazemk/izposoja/internal/config"
	"github.com/erazemk/izposoja/internal/db"
	"github.com/erazemk/izposoja/internal/lending"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/notify"
	"github.com/erazemk/izposoja/internal/store"
)

var (
	configPath string
	dbPath     string
	logPath    string
	verbose    bool
	addr       string
	adminUser  string
)

var rootCmd = &cobra.Command{
	Use:           "izposoja",
	Short:         "Library lending service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the reconciler",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database and the first admin account",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Mark overdue borrows and expire reservations once, then exit",
	Args:  cobra.NoArgs,
	RunE:  runReconcile,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "TOML config file")
	pf.StringVarP(&dbPath, "db", "d", "", "SQLite database path (overrides database.path)")
	pf.StringVarP(&logPath, "log", "l", "", "log file path (overrides server.log_path)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "log debug messages")

	serveCmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides server.addr)")
	for _, cmd := range []*cobra.Command{serveCmd, initCmd} {
		cmd.Flags().StringVarP(&adminUser, "user", "u", "admin", "admin username created on first run")
	}

	rootCmd.AddCommand(serveCmd, initCmd, reconcileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logPath != "" {
		cfg.Server.LogPath = logPath
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	return cfg, nil
}

// openDatabase opens the database and makes sure the schema exists. A new
// database gets an admin account, whose password is printed once.
func openDatabase(ctx context.Context, path string) (*sql.DB, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}

	admins, err := store.CountAdmins(ctx, database)
	if err != nil {
		database.Close()
		return nil, err
	}
	if admins == 0 {
		password, err := createAdmin(ctx, database, adminUser)
		if err != nil {
			database.Close()
			return nil, err
		}
		printInitResult(path, adminUser, password)
	}

	slog.Info("database ready", "path", path)
	return database, nil
}

func newEngine(cfg config.Config, database *sql.DB) *lending.Engine {
	return lending.New(database, lending.PolicyFromConfig(cfg.Lending),
		lending.WithNotifier(notify.NewInbox(database)),
		lending.WithRetry(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay),
		lending.WithLogger(slog.Default().With("component", "lending")),
	)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	closeLog, err := setupLogger(cfg.Server.LogPath, verbose)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := openDatabase(ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	// Tokens stay valid across restarts.
	jwtSecret, err := store.GetJWTSecret(ctx, database)
	if err != nil {
		return fmt.Errorf("loading JWT secret: %w", err)
	}

	engine := newEngine(cfg, database)

	reconcilerDone := make(chan struct{})
	if cfg.Reconciler.Enabled {
		go func() {
			defer close(reconcilerDone)
			engine.Reconciler.Run(ctx, cfg.Reconciler.Interval)
		}()
	} else {
		close(reconcilerDone)
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewRouter(database, engine, auth.NewIssuer(jwtSecret, auth.TokenExpiry)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		<-reconcilerDone
		return fmt.Errorf("server error: %w", err)
	}

	<-reconcilerDone
	slog.Info("server stopped, closing database")
	return nil
}

func runInit(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.Database.Path); err == nil {
		return fmt.Errorf("database file %s already exists", cfg.Database.Path)
	}

	database, err := openDatabase(cmd.Context(), cfg.Database.Path)
	if err != nil {
		os.Remove(cfg.Database.Path)
		return err
	}
	return database.Close()
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	closeLog, err := setupLogger(cfg.Server.LogPath, verbose)
	if err != nil {
		return err
	}
	defer closeLog()

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := db.EnsureSchema(database); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}

	result, err := newEngine(cfg, database).Reconciler.Tick(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Overdue: %d  Expired: %d  Failed: %d\n", result.Overdue, result.Expired, result.Failed)
	return nil
}

// createAdmin creates the first admin account with a random password.
func createAdmin(ctx context.Context, database *sql.DB, username string) (string, error) {
	password, err := generatePassword(16)
	if err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	if _, err := store.CreateUser(ctx, database, username, string(hash), model.RoleAdmin); err != nil {
		return "", fmt.Errorf("creating admin user: %w", err)
	}
	return password, nil
}

func printInitResult(dbPath, username, password string) {
	fmt.Printf("Database initialized: %s\n", dbPath)
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("The password is shown only once. Change it after logging in.")
	fmt.Println()
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
