package main

import (
	"context"
	"errors"
	"os"
	"time"

	"pesa/internal/amqp"
	"pesa/internal/cli"
	"pesa/internal/log"
	"pesa/internal/parser"
	"pesa/internal/services"
	"pesa/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentWorker)
	logger.Info("Starting pesa-worker")

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	app := cli.MustNewApp(ctx, cfg)
	defer app.Close()

	// Re-parse records written by older parser versions.
	rcfg := services.DefaultReparseProcessorConfig(parser.CurrentVersion)
	rcfg.Interval = cfg.ReparseInterval
	rcfg.BatchSize = cfg.ReparseBatchSize
	reparser := services.NewReparseProcessor(app.Backend.Store, app.Pipeline, rcfg, log.Default(log.ComponentReparse))
	if err := reparser.Start(ctx); err != nil {
		logger.Error("Failed to start reparse processor", log.FieldError, err)
		os.Exit(1)
	}

	smsWorker := worker.NewSMSWorker(app.Pipeline, log.Default(log.ComponentWorker))
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, log.Default(log.ComponentAMQP))
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()

		go func() {
			err := client.ConsumeSMS(ctx, smsWorker.HandleSMS)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
			}
			cancel()
		}()
	} else {
		logger.Info("AMQP disabled, running reparse only")
	}

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := reparser.Stop(shutdownCtx); err != nil {
		logger.Warn("Reparse processor did not stop cleanly", log.FieldError, err)
	}

	stats := smsWorker.Stats()
	logger.Info("Worker shutdown complete",
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"rejected", stats.Rejected,
		"failed", stats.Failed)
}
