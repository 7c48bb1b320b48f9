package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"pesa/internal/cache"
	"pesa/internal/core"
	"pesa/internal/inbox"
	"pesa/internal/ingest"
	"pesa/internal/ledger"
	"pesa/internal/log"
)

// ErrNoInbox is returned by Scan when no inbox source is configured.
var ErrNoInbox = errors.New("no inbox source configured")

type (
	Ingester interface {
		Ingest(ctx context.Context, msg core.RawMessage) (core.Outcome, error)
		Scan(ctx context.Context, src inbox.Source, lookbackMonths int, now time.Time) (ingest.ScanResult, error)
	}

	InsightsGenerator interface {
		GenerateInsights(ctx context.Context) (core.OnboardingInsights, error)
	}

	SuggestionAnalyzer interface {
		Analyze(txs []core.Transaction, minimumCount int, receiptOverrides map[string]string) []core.CategorySuggestion
	}
)

type LedgerServiceConfig struct {
	LookbackMonths     int
	SuggestionMinCount int
	CacheTTL           time.Duration
	CacheSize          int
	StoreTimeout       time.Duration
}

func DefaultLedgerServiceConfig() LedgerServiceConfig {
	return LedgerServiceConfig{
		LookbackMonths:     6,
		SuggestionMinCount: 2,
		CacheTTL:           5 * time.Minute,
		CacheSize:          16,
		StoreTimeout:       5 * time.Second,
	}
}

// LedgerService is the application facade used by the API and the
// workers. Derived views are cached until the next write.
type LedgerService struct {
	store    ledger.Store
	pipeline Ingester
	insights InsightsGenerator
	suggest  SuggestionAnalyzer
	source   inbox.Source
	cfg      LedgerServiceConfig
	logger   *log.Logger

	insightsCache    *cache.LRUCache[core.OnboardingInsights]
	suggestionsCache *cache.LRUCache[[]core.CategorySuggestion]
	group            singleflight.Group
	// generation is bumped on every purge; a computation started under an
	// older generation does not populate the cache.
	generation atomic.Uint64

	now func() time.Time
}

func NewLedgerService(
	store ledger.Store,
	pipeline Ingester,
	insights InsightsGenerator,
	suggest SuggestionAnalyzer,
	source inbox.Source,
	cfg LedgerServiceConfig,
	logger *log.Logger,
) *LedgerService {
	def := DefaultLedgerServiceConfig()
	if cfg.LookbackMonths <= 0 {
		cfg.LookbackMonths = def.LookbackMonths
	}
	if cfg.SuggestionMinCount <= 0 {
		cfg.SuggestionMinCount = def.SuggestionMinCount
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	if logger == nil {
		logger = log.Default(log.ComponentApp)
	}
	return &LedgerService{
		store:            store,
		pipeline:         pipeline,
		insights:         insights,
		suggest:          suggest,
		source:           source,
		cfg:              cfg,
		logger:           logger,
		insightsCache:    cache.NewLRUCache[core.OnboardingInsights](1, cfg.CacheTTL),
		suggestionsCache: cache.NewLRUCache[[]core.CategorySuggestion](cfg.CacheSize, cfg.CacheTTL),
		now:              time.Now,
	}
}

// RegisterCaches hands the service caches to m for periodic expiry.
func (s *LedgerService) RegisterCaches(m *cache.Manager) {
	m.Register(s.insightsCache)
	m.Register(s.suggestionsCache)
}

func (s *LedgerService) invalidate() {
	s.generation.Add(1)
	s.insightsCache.Purge()
	s.suggestionsCache.Purge()
}

// Ingest runs one message through the pipeline.
func (s *LedgerService) Ingest(ctx context.Context, msg core.RawMessage) (core.Outcome, error) {
	outcome, err := s.pipeline.Ingest(ctx, msg)
	if err != nil {
		return outcome, err
	}
	if outcome == core.Inserted || outcome == core.Updated {
		s.invalidate()
	}
	return outcome, nil
}

// Scan ingests the configured inbox over lookbackMonths (the configured
// default when zero).
func (s *LedgerService) Scan(ctx context.Context, lookbackMonths int) (ingest.ScanResult, error) {
	if s.source == nil {
		return ingest.ScanResult{}, ErrNoInbox
	}
	if lookbackMonths == 0 {
		lookbackMonths = s.cfg.LookbackMonths
	}
	res, err := s.pipeline.Scan(ctx, s.source, lookbackMonths, s.now().UTC())
	if res.Inserted+res.Updated > 0 {
		s.invalidate()
	}
	return res, err
}

// Insights returns onboarding insights with category suggestions over the
// whole ledger.
func (s *LedgerService) Insights(ctx context.Context) (core.OnboardingInsights, error) {
	if v, ok := s.insightsCache.Get("insights"); ok {
		return v, nil
	}
	gen := s.generation.Load()
	v, err, _ := s.group.Do("insights", func() (any, error) {
		out, err := s.insights.GenerateInsights(ctx)
		if err != nil {
			return core.OnboardingInsights{}, err
		}
		out.CategorySuggestions, err = s.computeSuggestions(ctx, s.cfg.SuggestionMinCount)
		if err != nil {
			return core.OnboardingInsights{}, err
		}
		out.GeneratedAt = s.now().UTC()
		if s.generation.Load() == gen {
			s.insightsCache.Set("insights", out)
		}
		return out, nil
	})
	if err != nil {
		return core.OnboardingInsights{}, err
	}
	return v.(core.OnboardingInsights), nil
}

// Suggestions groups the ledger by category. minCount <= 0 uses the
// configured minimum.
func (s *LedgerService) Suggestions(ctx context.Context, minCount int) ([]core.CategorySuggestion, error) {
	if minCount <= 0 {
		minCount = s.cfg.SuggestionMinCount
	}
	key := "suggestions:" + strconv.Itoa(minCount)
	if v, ok := s.suggestionsCache.Get(key); ok {
		return v, nil
	}
	gen := s.generation.Load()
	v, err, _ := s.group.Do(key, func() (any, error) {
		out, err := s.computeSuggestions(ctx, minCount)
		if err != nil {
			return nil, err
		}
		if s.generation.Load() == gen {
			s.suggestionsCache.Set(key, out)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]core.CategorySuggestion), nil
}

func (s *LedgerService) computeSuggestions(ctx context.Context, minCount int) ([]core.CategorySuggestion, error) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	txs, err := s.store.List(sctx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	sctx, cancel = context.WithTimeout(ctx, s.cfg.StoreTimeout)
	overrides, err := s.store.ListOverrides(sctx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	byReceipt := make(map[string]string)
	for _, o := range overrides {
		if o.Scope == core.ScopeReceipt {
			byReceipt[o.Key] = o.Category
		}
	}
	return s.suggest.Analyze(txs, minCount, byReceipt), nil
}

func (s *LedgerService) Get(ctx context.Context, receipt string) (core.Transaction, error) {
	return s.store.Get(ctx, strings.ToUpper(strings.TrimSpace(receipt)))
}

func (s *LedgerService) List(ctx context.Context) ([]core.Transaction, error) {
	return s.store.List(ctx)
}

func (s *LedgerService) ListBetween(ctx context.Context, from, to time.Time) ([]core.Transaction, error) {
	return s.store.ListBetween(ctx, from, to)
}

func (s *LedgerService) ListRecent(ctx context.Context, limit int) ([]core.Transaction, error) {
	return s.store.ListRecent(ctx, limit)
}

func (s *LedgerService) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

func (s *LedgerService) Delete(ctx context.Context, receipt string) error {
	if err := s.store.Delete(ctx, strings.ToUpper(strings.TrimSpace(receipt))); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// DeleteAll removes every transaction. Overrides are kept.
func (s *LedgerService) DeleteAll(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	s.invalidate()
	s.logger.WarnContext(ctx, "Ledger cleared",
		log.FieldOperation, log.OpDelete,
		log.FieldCount, n)
	return n, nil
}

// SetOverride normalises and stores a user category. Categories and
// merchant keys are upper-cased; receipt keys are upper-cased too since
// receipts are always capitals.
func (s *LedgerService) SetOverride(ctx context.Context, o core.Override) (core.Override, error) {
	o.Key = strings.ToUpper(strings.TrimSpace(o.Key))
	o.Category = strings.ToUpper(strings.TrimSpace(o.Category))
	if err := o.Validate(); err != nil {
		return core.Override{}, err
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now().UTC()
	}
	if err := s.store.SetOverride(ctx, o); err != nil {
		return core.Override{}, fmt.Errorf("set override: %w", err)
	}
	s.invalidate()
	s.logger.InfoContext(ctx, "Category override saved",
		"scope", string(o.Scope),
		"key", o.Key,
		log.FieldCategory, o.Category)
	return o, nil
}

func (s *LedgerService) ListOverrides(ctx context.Context) ([]core.Override, error) {
	return s.store.ListOverrides(ctx)
}

func (s *LedgerService) DeleteOverride(ctx context.Context, scope core.OverrideScope, key string) error {
	if err := s.store.DeleteOverride(ctx, scope, strings.ToUpper(strings.TrimSpace(key))); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// Ping checks that the store answers.
func (s *LedgerService) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	_, err := s.store.Count(ctx)
	return err
}

func (s *LedgerService) Close() error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
