// Package ledger defines the transaction store contract and the helpers
// shared by its in-process adapters.
package ledger

import (
	"context"
	"errors"
	"time"

	"pesa/internal/core"
)

var ErrNotFound = errors.New("not found")

// Ports for the transaction store.
type (
	Writer interface {
		// UpsertIfNewer inserts tx when its receipt is unknown, replaces the
		// stored record in full when tx.ParserVersion is strictly greater,
		// and otherwise leaves the store untouched. The check and the write
		// are one atomic step.
		UpsertIfNewer(ctx context.Context, tx core.Transaction) (core.Outcome, error)
		Delete(ctx context.Context, receipt string) error
		DeleteAll(ctx context.Context) (int64, error)
	}

	Reader interface {
		Get(ctx context.Context, receipt string) (core.Transaction, error)
		// List returns every record ordered by timestamp, oldest first.
		List(ctx context.Context) ([]core.Transaction, error)
		// ListBetween returns records with from <= timestamp <= to, oldest first.
		ListBetween(ctx context.Context, from, to time.Time) ([]core.Transaction, error)
		// ListRecent returns the newest records first.
		ListRecent(ctx context.Context, limit int) ([]core.Transaction, error)
		// ListStale returns records extracted by a parser older than version.
		ListStale(ctx context.Context, version, limit int) ([]core.Transaction, error)
		Count(ctx context.Context) (int, error)
	}

	Aggregator interface {
		// TopMerchants groups records with a merchant name, most frequent
		// first; ties keep first-seen order.
		TopMerchants(ctx context.Context, limit int) ([]core.MerchantAggregate, error)
		RecentByMerchant(ctx context.Context, merchant string, limit int) ([]core.Transaction, error)
		// RecurringPaybills groups bill payments by paybill number and keeps
		// groups with at least minCount records.
		RecurringPaybills(ctx context.Context, minCount int) ([]core.PaybillAggregate, error)
	}

	OverrideStore interface {
		SetOverride(ctx context.Context, o core.Override) error
		ListOverrides(ctx context.Context) ([]core.Override, error)
		DeleteOverride(ctx context.Context, scope core.OverrideScope, key string) error
	}

	Store interface {
		Writer
		Reader
		Aggregator
		OverrideStore
		Close() error
	}
)

// Decide returns the outcome of writing incoming over existing, which is
// nil when the receipt is unknown.
func Decide(existing *core.Transaction, incoming core.Transaction) core.Outcome {
	switch {
	case existing == nil:
		return core.Inserted
	case incoming.ParserVersion > existing.ParserVersion:
		return core.Updated
	default:
		return core.Skipped
	}
}
