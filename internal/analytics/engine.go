// Package analytics summarises the stored ledger for onboarding.
package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pesa/internal/clues"
	"pesa/internal/core"
)

type Store interface {
	Count(ctx context.Context) (int, error)
	TopMerchants(ctx context.Context, limit int) ([]core.MerchantAggregate, error)
	RecentByMerchant(ctx context.Context, merchant string, limit int) ([]core.Transaction, error)
	RecurringPaybills(ctx context.Context, minCount int) ([]core.PaybillAggregate, error)
	ListOverrides(ctx context.Context) ([]core.Override, error)
}

type ClueDetector interface {
	Detect(merchantName, rawText string) []core.Clue
}

type Config struct {
	TopMerchants        int
	RecentPerMerchant   int
	MinPaybillFrequency int
	// StoreTimeout bounds each store read.
	StoreTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{TopMerchants: 5, RecentPerMerchant: 5, MinPaybillFrequency: 2, StoreTimeout: 5 * time.Second}
}

type Engine struct {
	store    Store
	detector ClueDetector
	cfg      Config
}

func New(store Store, detector ClueDetector, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.TopMerchants <= 0 {
		cfg.TopMerchants = def.TopMerchants
	}
	if cfg.RecentPerMerchant <= 0 {
		cfg.RecentPerMerchant = def.RecentPerMerchant
	}
	if cfg.MinPaybillFrequency <= 0 {
		cfg.MinPaybillFrequency = def.MinPaybillFrequency
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	return &Engine{store: store, detector: detector, cfg: cfg}
}

// GenerateInsights reports the record count, the most frequent merchants
// with their latest transactions, and paybills paid repeatedly. All
// grouping happens in the store. CategorySuggestions and GeneratedAt are
// left for the caller.
func (e *Engine) GenerateInsights(ctx context.Context) (core.OnboardingInsights, error) {
	var out core.OnboardingInsights

	sctx, cancel := e.storeContext(ctx)
	total, err := e.store.Count(sctx)
	cancel()
	if err != nil {
		return out, fmt.Errorf("count transactions: %w", err)
	}
	out.TotalTransactions = total

	overrides, err := e.merchantOverrides(ctx)
	if err != nil {
		return out, err
	}

	sctx, cancel = e.storeContext(ctx)
	merchants, err := e.store.TopMerchants(sctx, e.cfg.TopMerchants)
	cancel()
	if err != nil {
		return out, fmt.Errorf("top merchants: %w", err)
	}
	for _, m := range merchants {
		sctx, cancel := e.storeContext(ctx)
		recent, err := e.store.RecentByMerchant(sctx, m.Merchant, e.cfg.RecentPerMerchant)
		cancel()
		if err != nil {
			return out, fmt.Errorf("recent transactions for %s: %w", m.Merchant, err)
		}
		out.FrequentMerchants = append(out.FrequentMerchants, core.MerchantFrequency{
			Merchant:           m.Merchant,
			Count:              m.Count,
			TotalAmount:        m.Total,
			SuggestedCategory:  e.suggest(overrides, m.Merchant, recent),
			RecentTransactions: recent,
		})
	}

	sctx, cancel = e.storeContext(ctx)
	paybills, err := e.store.RecurringPaybills(sctx, e.cfg.MinPaybillFrequency)
	cancel()
	if err != nil {
		return out, fmt.Errorf("recurring paybills: %w", err)
	}
	for _, p := range paybills {
		name := p.MerchantName
		if name == "" {
			name = "PAYBILL " + p.PaybillNumber
		}
		out.RecurringPaybills = append(out.RecurringPaybills, core.RecurringPaybill{
			PaybillNumber:     p.PaybillNumber,
			MerchantName:      name,
			Frequency:         p.Count,
			AverageAmount:     core.Average(p.Total, p.Count),
			SuggestedCategory: e.suggest(overrides, name, nil),
		})
	}
	return out, nil
}

// suggest prefers a user override for the merchant, then clues in the
// merchant name, then clues across the sample transactions.
func (e *Engine) suggest(overrides map[string]string, merchant string, sample []core.Transaction) string {
	if cat, ok := overrides[strings.ToUpper(merchant)]; ok {
		return cat
	}
	if cat, ok := clues.SuggestCategory(e.detector.Detect(merchant, "")); ok {
		return cat
	}
	var found []core.Clue
	for _, tx := range sample {
		found = append(found, tx.Clues...)
	}
	cat, _ := clues.SuggestCategory(found)
	return cat
}

func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.StoreTimeout)
}

func (e *Engine) merchantOverrides(ctx context.Context) (map[string]string, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	list, err := e.store.ListOverrides(ctx)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	out := make(map[string]string)
	for _, o := range list {
		if o.Scope == core.ScopeMerchant {
			out[strings.ToUpper(o.Key)] = o.Category
		}
	}
	return out, nil
}
