// Package memory is an in-process transaction store. It is used by tests and
// by DATA_BACKEND=memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"pesa/internal/core"
	"pesa/internal/ledger"
)

type Store struct {
	mu        sync.Mutex
	seq       int64
	records   map[string]ledger.Entry
	overrides map[overrideKey]core.Override
}

type overrideKey struct {
	scope core.OverrideScope
	key   string
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		records:   make(map[string]ledger.Entry),
		overrides: make(map[overrideKey]core.Override),
	}
}

// UpsertIfNewer holds the store lock across the version check and write.
func (s *Store) UpsertIfNewer(ctx context.Context, tx core.Transaction) (core.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := tx.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *core.Transaction
	prev, ok := s.records[tx.ReceiptNumber]
	if ok {
		existing = &prev.Tx
	}
	outcome := ledger.Decide(existing, tx)
	switch outcome {
	case core.Inserted:
		s.seq++
		s.records[tx.ReceiptNumber] = ledger.Entry{Seq: s.seq, Tx: tx}
	case core.Updated:
		s.records[tx.ReceiptNumber] = ledger.Entry{Seq: prev.Seq, Tx: tx}
	}
	return outcome, nil
}

func (s *Store) Delete(_ context.Context, receipt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[receipt]; !ok {
		return ledger.ErrNotFound
	}
	delete(s.records, receipt)
	return nil
}

func (s *Store) DeleteAll(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.records))
	s.records = make(map[string]ledger.Entry)
	return n, nil
}

func (s *Store) Get(_ context.Context, receipt string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[receipt]
	if !ok {
		return core.Transaction{}, ledger.ErrNotFound
	}
	return e.Tx, nil
}

func (s *Store) List(_ context.Context) ([]core.Transaction, error) {
	return ledger.Chronological(s.entries()), nil
}

func (s *Store) ListBetween(_ context.Context, from, to time.Time) ([]core.Transaction, error) {
	return ledger.Between(s.entries(), from, to), nil
}

func (s *Store) ListRecent(_ context.Context, limit int) ([]core.Transaction, error) {
	return ledger.Newest(s.entries(), limit), nil
}

func (s *Store) ListStale(_ context.Context, version, limit int) ([]core.Transaction, error) {
	return ledger.Stale(s.entries(), version, limit), nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *Store) TopMerchants(_ context.Context, limit int) ([]core.MerchantAggregate, error) {
	return ledger.TopMerchants(s.entries(), limit), nil
}

func (s *Store) RecentByMerchant(_ context.Context, merchant string, limit int) ([]core.Transaction, error) {
	return ledger.RecentByMerchant(s.entries(), merchant, limit), nil
}

func (s *Store) RecurringPaybills(_ context.Context, minCount int) ([]core.PaybillAggregate, error) {
	return ledger.RecurringPaybills(s.entries(), minCount), nil
}

func (s *Store) SetOverride(_ context.Context, o core.Override) error {
	if err := o.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[overrideKey{o.Scope, o.Key}] = o
	return nil
}

func (s *Store) ListOverrides(_ context.Context) ([]core.Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Override, 0, len(s.overrides))
	for _, o := range s.overrides {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope != out[j].Scope {
			return out[i].Scope < out[j].Scope
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (s *Store) DeleteOverride(_ context.Context, scope core.OverrideScope, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := overrideKey{scope, key}
	if _, ok := s.overrides[k]; !ok {
		return ledger.ErrNotFound
	}
	delete(s.overrides, k)
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) entries() []ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Entry, 0, len(s.records))
	for _, e := range s.records {
		out = append(out, e)
	}
	return out
}
