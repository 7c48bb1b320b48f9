// Package worker hosts the AMQP-side handlers of the ingestion service.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"pesa/internal/amqp"
	"pesa/internal/core"
	"pesa/internal/ingest"
	"pesa/internal/log"
)

type Ingester interface {
	Ingest(ctx context.Context, msg core.RawMessage) (core.Outcome, error)
}

// Stats counts handled deliveries by outcome.
type Stats struct {
	Inserted int64
	Updated  int64
	Skipped  int64
	Rejected int64
	Failed   int64
}

// SMSWorker feeds SMS deliveries into the ingestion pipeline.
type SMSWorker struct {
	ingester Ingester
	logger   *log.Logger

	inserted, updated, skipped, rejected, failed atomic.Int64
}

func NewSMSWorker(ingester Ingester, logger *log.Logger) *SMSWorker {
	if logger == nil {
		logger = log.Default(log.ComponentWorker)
	}
	return &SMSWorker{ingester: ingester, logger: logger}
}

// HandleSMS ingests one delivery. Messages that are not transactions are
// acknowledged (nil error) so they never come back. Storage failures and
// cancellation are returned as errors so the delivery is requeued; any other
// failure would repeat on redelivery and is wrapped in amqp.ErrDrop.
func (w *SMSWorker) HandleSMS(ctx context.Context, msg *amqp.SMSReceivedMessage) error {
	raw := msg.RawMessage()
	outcome, err := w.ingester.Ingest(ctx, raw)
	if err != nil {
		w.failed.Add(1)
		switch {
		case ingest.IsRetryable(err):
			w.logger.WarnContext(ctx, "Storage failure, message will be redelivered",
				"id", msg.ID,
				log.FieldTransportID, raw.TransportID,
				log.FieldError, err)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		default:
			w.logger.ErrorContext(ctx, "Dropping SMS that cannot be ingested",
				"id", msg.ID,
				log.FieldTransportID, raw.TransportID,
				log.FieldError, err)
			return fmt.Errorf("ingest sms %s: %w: %w", msg.ID, amqp.ErrDrop, err)
		}
		return fmt.Errorf("ingest sms %s: %w", msg.ID, err)
	}

	switch outcome {
	case core.Inserted:
		w.inserted.Add(1)
	case core.Updated:
		w.updated.Add(1)
	case core.Skipped:
		w.skipped.Add(1)
	case core.Rejected:
		w.rejected.Add(1)
	}

	w.logger.InfoContext(ctx, "SMS processed",
		"id", msg.ID,
		log.FieldTransportID, raw.TransportID,
		log.FieldOutcome, outcome.String())
	return nil
}

func (w *SMSWorker) Stats() Stats {
	return Stats{
		Inserted: w.inserted.Load(),
		Updated:  w.updated.Load(),
		Skipped:  w.skipped.Load(),
		Rejected: w.rejected.Load(),
		Failed:   w.failed.Load(),
	}
}
