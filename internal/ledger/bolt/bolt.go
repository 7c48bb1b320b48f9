// Package bolt stores transactions in an embedded bbolt file.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"pesa/internal/core"
	"pesa/internal/ledger"
)

var (
	transactionsBucket = []byte("transactions")
	overridesBucket    = []byte("overrides")
)

type Store struct {
	db *bbolt.DB
}

var _ ledger.Store = (*Store)(nil)

type overrideRecord struct {
	Scope     string `json:"scope"`
	Key       string `json:"key"`
	Category  string `json:"category"`
	CreatedAt int64  `json:"created_at"`
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(transactionsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(overridesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// UpsertIfNewer reads and writes inside one Update transaction. bbolt runs
// a single writer at a time, so the version check cannot race.
func (s *Store) UpsertIfNewer(ctx context.Context, t core.Transaction) (core.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := t.Validate(); err != nil {
		return 0, err
	}

	var outcome core.Outcome
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(transactionsBucket)
		key := []byte(t.ReceiptNumber)

		var existing *core.Transaction
		var prev ledger.Record
		if data := b.Get(key); data != nil {
			if err := json.Unmarshal(data, &prev); err != nil {
				return fmt.Errorf("decode %s: %w", t.ReceiptNumber, err)
			}
			old, err := prev.Transaction()
			if err != nil {
				return err
			}
			existing = &old
		}

		outcome = ledger.Decide(existing, t)
		rec := ledger.ToRecord(t)
		switch outcome {
		case core.Inserted:
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			rec.Seq, rec.Revision = int64(seq), 1
		case core.Updated:
			rec.Seq, rec.Revision = prev.Seq, prev.Revision+1
		default:
			return nil
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	if err != nil {
		return 0, fmt.Errorf("upsert %s: %w", t.ReceiptNumber, err)
	}
	return outcome, nil
}

func (s *Store) Delete(_ context.Context, receipt string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(transactionsBucket)
		if b.Get([]byte(receipt)) == nil {
			return ledger.ErrNotFound
		}
		return b.Delete([]byte(receipt))
	})
}

func (s *Store) DeleteAll(_ context.Context) (int64, error) {
	var n int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		n = int64(tx.Bucket(transactionsBucket).Stats().KeyN)
		if err := tx.DeleteBucket(transactionsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(transactionsBucket)
		return err
	})
	return n, err
}

func (s *Store) Get(_ context.Context, receipt string) (core.Transaction, error) {
	var out core.Transaction
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(transactionsBucket).Get([]byte(receipt))
		if data == nil {
			return ledger.ErrNotFound
		}
		var rec ledger.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		var err error
		out, err = rec.Transaction()
		return err
	})
	return out, err
}

func (s *Store) List(_ context.Context) ([]core.Transaction, error) {
	es, err := s.entries()
	if err != nil {
		return nil, err
	}
	return ledger.Chronological(es), nil
}

func (s *Store) ListBetween(_ context.Context, from, to time.Time) ([]core.Transaction, error) {
	es, err := s.entries()
	if err != nil {
		return nil, err
	}
	return ledger.Between(es, from, to), nil
}

func (s *Store) ListRecent(_ context.Context, limit int) ([]core.Transaction, error) {
	es, err := s.entries()
	if err != nil {
		return nil, err
	}
	return ledger.Newest(es, limit), nil
}

func (s *Store) ListStale(_ context.Context, version, limit int) ([]core.Transaction, error) {
	es, err := s.entries()
	if err != nil {
		return nil, err
	}
	return ledger.Stale(es, version, limit), nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(transactionsBucket).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *Store) TopMerchants(_ context.Context, limit int) ([]core.MerchantAggregate, error) {
	es, err := s.entries()
	if err != nil {
		return nil, err
	}
	return ledger.TopMerchants(es, limit), nil
}

func (s *Store) RecentByMerchant(_ context.Context, merchant string, limit int) ([]core.Transaction, error) {
	es, err := s.entries()
	if err != nil {
		return nil, err
	}
	return ledger.RecentByMerchant(es, merchant, limit), nil
}

func (s *Store) RecurringPaybills(_ context.Context, minCount int) ([]core.PaybillAggregate, error) {
	es, err := s.entries()
	if err != nil {
		return nil, err
	}
	return ledger.RecurringPaybills(es, minCount), nil
}

func (s *Store) SetOverride(_ context.Context, o core.Override) error {
	if err := o.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(overrideRecord{
		Scope:     string(o.Scope),
		Key:       o.Key,
		Category:  o.Category,
		CreatedAt: o.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(overridesBucket).Put(overrideKey(o.Scope, o.Key), data)
	})
}

func (s *Store) ListOverrides(_ context.Context) ([]core.Override, error) {
	var out []core.Override
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(overridesBucket).ForEach(func(_, v []byte) error {
			var r overrideRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, core.Override{
				Scope:     core.OverrideScope(r.Scope),
				Key:       r.Key,
				Category:  r.Category,
				CreatedAt: time.UnixMilli(r.CreatedAt).UTC(),
			})
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope != out[j].Scope {
			return out[i].Scope < out[j].Scope
		}
		return out[i].Key < out[j].Key
	})
	return out, err
}

func (s *Store) DeleteOverride(_ context.Context, scope core.OverrideScope, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(overridesBucket)
		k := overrideKey(scope, key)
		if b.Get(k) == nil {
			return ledger.ErrNotFound
		}
		return b.Delete(k)
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) entries() ([]ledger.Entry, error) {
	var out []ledger.Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(transactionsBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec ledger.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			t, err := rec.Transaction()
			if err != nil {
				return err
			}
			out = append(out, ledger.Entry{Seq: rec.Seq, Tx: t})
		}
		return nil
	})
	return out, err
}

func overrideKey(scope core.OverrideScope, key string) []byte {
	return []byte(string(scope) + "\x00" + key)
}
