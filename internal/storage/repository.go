// Package storage is the SQLite transaction store.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pesa/internal/core"
	"pesa/internal/ledger"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

var _ ledger.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer keeps the conditional upsert and reads in a single serial
	// stream; WAL still lets other processes read.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// UpsertIfNewer implements ledger.Writer.
func (r *SQLiteRepository) UpsertIfNewer(ctx context.Context, tx core.Transaction) (core.Outcome, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}
	rec := ledger.ToRecord(tx)

	var revision int
	err := r.db.QueryRowContext(ctx, upsertTransaction,
		rec.ReceiptNumber, rec.AmountCents, rec.Kind, rec.CounterpartyName, rec.CounterpartyPhone,
		rec.PaybillNumber, rec.AccountNumber, rec.TillNumber, rec.MerchantName, rec.AgentNumber, rec.AgentName,
		rec.RecipientPhone, rec.RawText, rec.Clues, rec.ParserVersion, rec.OccurredAt, rec.IngestedAt,
		rec.TransportID,
	).Scan(&revision)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return core.Skipped, nil
	case err != nil:
		return 0, fmt.Errorf("upsert %s: %w", tx.ReceiptNumber, err)
	case revision == 1:
		return core.Inserted, nil
	default:
		return core.Updated, nil
	}
}

func (r *SQLiteRepository) Delete(ctx context.Context, receipt string) error {
	res, err := r.db.ExecContext(ctx, deleteTransaction, receipt)
	if err != nil {
		return fmt.Errorf("delete %s: %w", receipt, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, deleteAllTransactions)
	if err != nil {
		return 0, fmt.Errorf("delete all: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) Get(ctx context.Context, receipt string) (core.Transaction, error) {
	txs, err := r.query(ctx, getTransaction, receipt)
	if err != nil {
		return core.Transaction{}, err
	}
	if len(txs) == 0 {
		return core.Transaction{}, ledger.ErrNotFound
	}
	return txs[0], nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]core.Transaction, error) {
	return r.query(ctx, listTransactions)
}

func (r *SQLiteRepository) ListBetween(ctx context.Context, from, to time.Time) ([]core.Transaction, error) {
	return r.query(ctx, listTransactionsBetween, from.UnixMilli(), to.UnixMilli())
}

func (r *SQLiteRepository) ListRecent(ctx context.Context, limit int) ([]core.Transaction, error) {
	return r.query(ctx, listRecentTransactions, sqlLimit(limit))
}

func (r *SQLiteRepository) ListStale(ctx context.Context, version, limit int) ([]core.Transaction, error) {
	return r.query(ctx, listStaleTransactions, version, sqlLimit(limit))
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, countTransactions).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) TopMerchants(ctx context.Context, limit int) ([]core.MerchantAggregate, error) {
	rows, err := r.db.QueryContext(ctx, topMerchants, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("top merchants: %w", err)
	}
	defer rows.Close()

	var out []core.MerchantAggregate
	for rows.Next() {
		var a core.MerchantAggregate
		if err := rows.Scan(&a.Merchant, &a.Count, &a.Total.Cents); err != nil {
			return nil, fmt.Errorf("scan merchant aggregate: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) RecentByMerchant(ctx context.Context, merchant string, limit int) ([]core.Transaction, error) {
	return r.query(ctx, recentByMerchant, merchant, sqlLimit(limit))
}

func (r *SQLiteRepository) RecurringPaybills(ctx context.Context, minCount int) ([]core.PaybillAggregate, error) {
	rows, err := r.db.QueryContext(ctx, recurringPaybills, minCount)
	if err != nil {
		return nil, fmt.Errorf("recurring paybills: %w", err)
	}
	defer rows.Close()

	var out []core.PaybillAggregate
	for rows.Next() {
		var a core.PaybillAggregate
		if err := rows.Scan(&a.PaybillNumber, &a.Count, &a.Total.Cents, &a.MerchantName); err != nil {
			return nil, fmt.Errorf("scan paybill aggregate: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SetOverride(ctx context.Context, o core.Override) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, upsertOverride, string(o.Scope), o.Key, o.Category, o.CreatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("set override %s/%s: %w", o.Scope, o.Key, err)
	}
	return nil
}

func (r *SQLiteRepository) ListOverrides(ctx context.Context) ([]core.Override, error) {
	rows, err := r.db.QueryContext(ctx, listOverrides)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()

	var out []core.Override
	for rows.Next() {
		var (
			o       core.Override
			scope   string
			created int64
		)
		if err := rows.Scan(&scope, &o.Key, &o.Category, &created); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		o.Scope = core.OverrideScope(scope)
		o.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteOverride(ctx context.Context, scope core.OverrideScope, key string) error {
	res, err := r.db.ExecContext(ctx, deleteOverride, string(scope), key)
	if err != nil {
		return fmt.Errorf("delete override %s/%s: %w", scope, key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) query(ctx context.Context, q string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var rec ledger.Record
		if err := rows.Scan(
			&rec.Seq, &rec.ReceiptNumber, &rec.AmountCents, &rec.Kind, &rec.CounterpartyName, &rec.CounterpartyPhone,
			&rec.PaybillNumber, &rec.AccountNumber, &rec.TillNumber, &rec.MerchantName, &rec.AgentNumber, &rec.AgentName,
			&rec.RecipientPhone, &rec.RawText, &rec.Clues, &rec.ParserVersion, &rec.OccurredAt, &rec.IngestedAt,
			&rec.TransportID, &rec.Revision,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx, err := rec.Transaction()
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// sqlLimit maps "no limit" to SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
