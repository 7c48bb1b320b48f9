package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"pesa/internal/amqp"
	"pesa/internal/cache"
	"pesa/internal/cli"
	apphttp "pesa/internal/http"
	"pesa/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentApp)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	app := cli.MustNewApp(ctx, cfg)
	defer app.Close()

	caches := cache.NewManager(log.Default(log.ComponentCache))
	app.Ledger.RegisterCaches(caches)
	caches.StartCleanup(time.Minute)
	defer caches.Stop()

	opts := apphttp.Options{
		Logger:         log.Default(log.ComponentHTTP),
		TrustedProxies: cfg.TrustedProxies,
	}
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, log.Default(log.ComponentAMQP))
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, ingesting inline", log.FieldError, err)
		} else {
			defer client.Close()
			opts.Publisher = client
		}
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, app.Ledger, opts)
	if err != nil {
		logger.Error("Failed to create server", log.FieldError, err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting pesa server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"inbox", cfg.InboxSource,
			"amqp_enabled", opts.Publisher != nil)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", log.FieldError, err)
	}
	logger.Info("Server stopped gracefully")
}
