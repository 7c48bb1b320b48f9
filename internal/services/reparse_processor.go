package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pesa/internal/core"
	"pesa/internal/log"
)

// ReparseProcessorConfig holds configuration for the reparse processor
type ReparseProcessorConfig struct {
	// Interval between sweeps (default: 1h)
	Interval time.Duration

	// BatchSize is the max number of stale records fetched per query (default: 100)
	BatchSize int

	// TargetVersion is the parser version records are brought up to.
	TargetVersion int
}

func DefaultReparseProcessorConfig(targetVersion int) ReparseProcessorConfig {
	return ReparseProcessorConfig{
		Interval:      time.Hour,
		BatchSize:     100,
		TargetVersion: targetVersion,
	}
}

type StaleLister interface {
	ListStale(ctx context.Context, version, limit int) ([]core.Transaction, error)
}

type MessageIngester interface {
	Ingest(ctx context.Context, msg core.RawMessage) (core.Outcome, error)
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Seen     int
	Updated  int
	Rejected int
	Failed   int
}

// ReparseProcessor re-extracts records written by an older parser from
// their stored raw text. A parser upgrade thus reaches the history without
// a fresh inbox scan.
type ReparseProcessor struct {
	store    StaleLister
	ingester MessageIngester
	config   ReparseProcessorConfig
	logger   *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReparseProcessor(store StaleLister, ingester MessageIngester, config ReparseProcessorConfig, logger *log.Logger) *ReparseProcessor {
	def := DefaultReparseProcessorConfig(config.TargetVersion)
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if logger == nil {
		logger = log.Default(log.ComponentReparse)
	}
	return &ReparseProcessor{
		store:    store,
		ingester: ingester,
		config:   config,
		logger:   logger,
	}
}

// Start begins the sweep loop. Returns an error if already running.
func (p *ReparseProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("reparse processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Reparse processor started",
		"interval", p.config.Interval,
		"batch_size", p.config.BatchSize,
		log.FieldParserVersion, p.config.TargetVersion)
	return nil
}

// Stop signals the loop and waits for it, bounded by ctx.
func (p *ReparseProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Reparse processor stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Reparse processor stop timed out")
		return ctx.Err()
	}
}

func (p *ReparseProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ReparseProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// Sweep immediately on startup
	p.sweepAndLog(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweepAndLog(ctx)
		}
	}
}

func (p *ReparseProcessor) sweepAndLog(ctx context.Context) {
	res, err := p.Sweep(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Reparse sweep failed", log.FieldError, err)
	}
	if res.Seen > 0 {
		p.logger.InfoContext(ctx, "Reparse sweep complete",
			log.FieldOperation, log.OpReparse,
			"seen", res.Seen,
			"updated", res.Updated,
			"rejected", res.Rejected,
			"failed", res.Failed)
	}
}

// Sweep re-ingests stale records batch by batch until none are left.
// Records the current parser rejects stay as they are and are counted as
// Rejected; the sweep pages past them, and past failed records, so they
// never hide younger stale records.
func (p *ReparseProcessor) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	// left holds stale receipts this sweep already tried and left behind.
	left := make(map[string]struct{})
	for {
		if err := p.stopped(ctx); err != nil {
			return res, nil
		}
		limit := p.config.BatchSize + len(left)
		fetched, err := p.store.ListStale(ctx, p.config.TargetVersion, limit)
		if err != nil {
			return res, fmt.Errorf("list stale records: %w", err)
		}
		batch := fetched[:0:0]
		for _, tx := range fetched {
			if _, done := left[tx.ReceiptNumber]; !done {
				batch = append(batch, tx)
			}
		}
		if len(batch) == 0 {
			return res, nil
		}

		for _, tx := range batch {
			if err := p.stopped(ctx); err != nil {
				return res, nil
			}
			res.Seen++
			outcome, err := p.ingester.Ingest(ctx, core.RawMessage{
				Body:        tx.RawText,
				Timestamp:   tx.Timestamp,
				TransportID: tx.TransportID,
			})
			switch {
			case err != nil:
				res.Failed++
				left[tx.ReceiptNumber] = struct{}{}
				p.logger.WarnContext(ctx, "Reparse failed",
					log.FieldReceipt, tx.ReceiptNumber,
					log.FieldError, err)
			case outcome == core.Updated || outcome == core.Inserted:
				res.Updated++
			case outcome == core.Rejected:
				res.Rejected++
				left[tx.ReceiptNumber] = struct{}{}
				p.logger.WarnContext(ctx, "Current parser rejects stored message",
					log.FieldReceipt, tx.ReceiptNumber,
					log.FieldParserVersion, tx.ParserVersion)
			default:
				left[tx.ReceiptNumber] = struct{}{}
			}
		}

		if len(fetched) < limit {
			return res, nil
		}
	}
}

func (p *ReparseProcessor) stopped(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	stopCh := p.stopCh
	p.mu.Unlock()
	if stopCh == nil {
		return nil
	}
	select {
	case <-stopCh:
		return context.Canceled
	default:
		return nil
	}
}
