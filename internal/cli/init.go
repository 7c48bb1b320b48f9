// Package cli provides common CLI initialization utilities shared by
// cmd/pesa, cmd/pesa-worker and cmd/pesa-scan.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pesa/internal/analytics"
	"pesa/internal/backend"
	"pesa/internal/clues"
	"pesa/internal/config"
	"pesa/internal/ingest"
	"pesa/internal/log"
	"pesa/internal/parser"
	"pesa/internal/services"
	"pesa/internal/suggest"
)

// SetupLogger installs a text logger at the given LOG_LEVEL as the slog
// default and returns the component logger for component.
func SetupLogger(level, component string) *log.Logger {
	lvl := log.ParseLevel(level)
	logger := log.New(log.Config{
		Level:     lvl,
		Component: component,
		Handler:   slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}),
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// LoadKeywordTable reads the keyword table from path, or returns the
// built-in table when path is empty.
func LoadKeywordTable(logger *log.Logger, path string) (*clues.Table, error) {
	if path == "" {
		return clues.DefaultTable(), nil
	}
	table, err := clues.LoadTable(path)
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded keyword table", "path", path, "categories", len(table.Entries()))
	return table, nil
}

// App is the wired extraction stack every binary runs on.
type App struct {
	Config   *config.Config
	Backend  *backend.Result
	Table    *clues.Table
	Pipeline *ingest.Pipeline
	Ledger   *services.LedgerService
}

// NewApp opens the configured store and inbox and wires parser, clue
// detector, pipeline, analytics and suggestions around them.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(log.Default(log.ComponentBackend)).Create(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	table, err := LoadKeywordTable(log.Default(log.ComponentApp), cfg.KeywordsFile)
	if err != nil {
		_ = res.Close()
		return nil, fmt.Errorf("load keyword table: %w", err)
	}
	det := clues.NewDetector(table)

	pipe := ingest.New(parser.New(), det, res.Store, ingest.Config{
		Workers:      cfg.IngestWorkers,
		StoreTimeout: cfg.StoreTimeout,
	}, log.Default(log.ComponentIngest))

	acfg := analytics.DefaultConfig()
	acfg.TopMerchants = cfg.TopMerchants
	acfg.RecentPerMerchant = cfg.RecentPerMerchant
	acfg.StoreTimeout = cfg.StoreTimeout
	engine := analytics.New(res.Store, det, acfg)

	svc := services.NewLedgerService(res.Store, pipe, engine, suggest.New(table.Synonyms()), res.Inbox,
		services.LedgerServiceConfig{
			LookbackMonths:     cfg.LookbackMonths,
			SuggestionMinCount: cfg.SuggestionMinCount,
			CacheTTL:           cfg.InsightsCacheTTL,
			StoreTimeout:       cfg.StoreTimeout,
		}, log.Default(log.ComponentApp))

	return &App{Config: cfg, Backend: res, Table: table, Pipeline: pipe, Ledger: svc}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Ledger.Close()
}

// MustNewApp is NewApp that exits the process on failure.
func MustNewApp(ctx context.Context, cfg *config.Config) *App {
	app, err := NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize application", "error", err)
		os.Exit(1)
	}
	return app
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
