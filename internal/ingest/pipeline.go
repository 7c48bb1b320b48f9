// Package ingest turns raw messages into stored transactions.
//
// Every message goes through the same steps: parse, attach clues and
// metadata, then a conditional write keyed by receipt number. Re-ingesting
// a message is harmless: the store only replaces a record when the parser
// that produced the new one is strictly newer.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"pesa/internal/core"
	"pesa/internal/inbox"
	"pesa/internal/log"
)

type (
	MessageParser interface {
		Parse(raw string) (core.Transaction, error)
		Version() int
	}

	ClueDetector interface {
		Detect(merchantName, rawText string) []core.Clue
	}

	Store interface {
		UpsertIfNewer(ctx context.Context, tx core.Transaction) (core.Outcome, error)
		ListBetween(ctx context.Context, from, to time.Time) ([]core.Transaction, error)
	}
)

type Config struct {
	Workers      int
	StoreTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{Workers: 4, StoreTimeout: 5 * time.Second}
}

var ErrInvalidLookback = errors.New("lookback must be at least one month")

// StorageError wraps a failed store call. Storage failures are transient
// from the pipeline's point of view and the caller may retry the message.
type StorageError struct {
	Op      string
	Receipt string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Receipt == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Receipt, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsRetryable reports whether err came from the store.
func IsRetryable(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

type Pipeline struct {
	parser   MessageParser
	detector ClueDetector
	store    Store
	cfg      Config
	logger   *log.Logger
	now      func() time.Time
}

func New(parser MessageParser, detector ClueDetector, store Store, cfg Config, logger *log.Logger) *Pipeline {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	if logger == nil {
		logger = log.Default(log.ComponentIngest)
	}
	return &Pipeline{
		parser:   parser,
		detector: detector,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Ingest processes one message. A message the parser rejects yields
// core.Rejected and a nil error; only store failures (as *StorageError) and
// context cancellation are returned as errors.
func (p *Pipeline) Ingest(ctx context.Context, msg core.RawMessage) (core.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	tx, err := p.parser.Parse(msg.Body)
	if err != nil {
		p.logger.DebugContext(ctx, "Message rejected",
			log.FieldTransportID, msg.TransportID,
			log.FieldReason, err.Error())
		return core.Rejected, nil
	}

	tx.Clues = p.detector.Detect(tx.MerchantName(), tx.RawText)
	tx.TransportID = msg.TransportID
	tx.IngestedAt = p.now().UTC()
	switch {
	case !msg.Timestamp.IsZero():
		tx.Timestamp = msg.Timestamp
	case tx.Timestamp.IsZero():
		tx.Timestamp = tx.IngestedAt
	}

	sctx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	outcome, err := p.store.UpsertIfNewer(sctx, tx)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, &StorageError{Op: "upsert", Receipt: tx.ReceiptNumber, Err: err}
	}

	fields := log.NewFields().
		WithTransaction(tx.ReceiptNumber, string(tx.Kind()), tx.Amount.Cents, tx.ParserVersion).
		WithOperation(log.OpIngest)
	fields[log.FieldOutcome] = outcome.String()
	p.logger.DebugContext(ctx, "Message ingested", fields.ToSlice()...)
	return outcome, nil
}

// BatchResult counts outcomes of a batch.
type BatchResult struct {
	Inserted int
	Updated  int
	Skipped  int
	Rejected int
}

func (r BatchResult) Total() int {
	return r.Inserted + r.Updated + r.Skipped + r.Rejected
}

// IngestBatch runs Ingest over msgs with bounded parallelism. Rejections
// never stop the batch. The first storage failure or a cancelled context
// stops it between messages; records written before that stay written and
// the counts so far are returned with the error.
func (p *Pipeline) IngestBatch(ctx context.Context, msgs []core.RawMessage) (BatchResult, error) {
	var inserted, updated, skipped, rejected atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for _, m := range msgs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, err := p.Ingest(gctx, m)
			if err != nil {
				return err
			}
			switch outcome {
			case core.Inserted:
				inserted.Add(1)
			case core.Updated:
				updated.Add(1)
			case core.Skipped:
				skipped.Add(1)
			case core.Rejected:
				rejected.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()

	res := BatchResult{
		Inserted: int(inserted.Load()),
		Updated:  int(updated.Load()),
		Skipped:  int(skipped.Load()),
		Rejected: int(rejected.Load()),
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return res, err
}

// ScanResult is the outcome of a bulk historical scan.
type ScanResult struct {
	BatchResult
	Since        time.Time
	Until        time.Time
	Transactions []core.Transaction
}

// Scan ingests every message src holds for the last lookbackMonths months
// up to now, then returns all stored transactions in that window, whether
// or not this scan wrote them.
func (p *Pipeline) Scan(ctx context.Context, src inbox.Source, lookbackMonths int, now time.Time) (ScanResult, error) {
	if lookbackMonths < 1 {
		return ScanResult{}, ErrInvalidLookback
	}
	res := ScanResult{Since: now.AddDate(0, -lookbackMonths, 0), Until: now}

	msgs, err := src.Messages(ctx, res.Since, res.Until)
	if err != nil {
		return res, fmt.Errorf("read inbox: %w", err)
	}

	start := p.now()
	res.BatchResult, err = p.IngestBatch(ctx, msgs)
	if err != nil {
		return res, err
	}

	sctx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	res.Transactions, err = p.store.ListBetween(sctx, res.Since, res.Until)
	if err != nil {
		return res, &StorageError{Op: "list window", Err: err}
	}

	p.logger.InfoContext(ctx, "Scan complete",
		log.FieldOperation, log.OpScan,
		"messages", len(msgs),
		"inserted", res.Inserted,
		"updated", res.Updated,
		"skipped", res.Skipped,
		"rejected", res.Rejected,
		"in_window", len(res.Transactions),
		log.FieldDuration, p.now().Sub(start).Milliseconds())
	return res, nil
}
