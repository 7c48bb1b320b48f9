package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"pesa/internal/analytics"
	"pesa/internal/clues"
	"pesa/internal/core"
	"pesa/internal/inbox"
	inboxmem "pesa/internal/inbox/memory"
	"pesa/internal/ingest"
	"pesa/internal/ledger"
	ledgermem "pesa/internal/ledger/memory"
	"pesa/internal/log"
	"pesa/internal/parser"
	"pesa/internal/suggest"
)

const (
	naivasWestlands = "QM22TILL01 Confirmed. Ksh450.00 paid to Till 123456 - NAIVAS WESTLANDS on 5/2/26 at 5:30 PM.New M-PESA balance is Ksh1,550.00."
	naivasAgain     = "QM22TILL05 Confirmed. Ksh550.00 paid to Till 123456 - NAIVAS WESTLANDS on 6/2/26 at 6:30 PM.New M-PESA balance is Ksh1,000.00."
	javaHouse       = "QM22TILL02 Confirmed. Ksh800.00 paid to JAVA HOUSE. Till 998877 on 5/2/26 at 1:30 PM.New M-PESA balance is Ksh750.00."
	otp             = "Your OTP is 482913. Do not share it with anyone."
)

var serviceNow = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

type countingInsights struct {
	next  InsightsGenerator
	calls atomic.Int32
}

func (c *countingInsights) GenerateInsights(ctx context.Context) (core.OnboardingInsights, error) {
	c.calls.Add(1)
	return c.next.GenerateInsights(ctx)
}

type fixture struct {
	svc      *LedgerService
	store    *ledgermem.Store
	insights *countingInsights
}

func newFixture(t *testing.T, source inbox.Source) fixture {
	t.Helper()
	store := ledgermem.New()
	table := clues.DefaultTable()
	det := clues.NewDetector(table)
	pipe := ingest.New(parser.New(), det, store, ingest.Config{Workers: 2, StoreTimeout: time.Second}, log.Discard())
	gen := &countingInsights{next: analytics.New(store, det, analytics.DefaultConfig())}
	svc := NewLedgerService(store, pipe, gen, suggest.New(table.Synonyms()), source,
		LedgerServiceConfig{SuggestionMinCount: 1, CacheTTL: time.Minute}, log.Discard())
	svc.now = func() time.Time { return serviceNow }
	return fixture{svc: svc, store: store, insights: gen}
}

func (f fixture) ingest(t *testing.T, bodies ...string) {
	t.Helper()
	for _, b := range bodies {
		if _, err := f.svc.Ingest(context.Background(), core.RawMessage{Body: b, Timestamp: serviceNow.Add(-48 * time.Hour)}); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
	}
}

func TestLedgerService_InsightsAreCachedUntilWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.ingest(t, naivasWestlands, javaHouse)

	first, err := f.svc.Insights(ctx)
	if err != nil {
		t.Fatalf("Insights() error = %v", err)
	}
	if first.TotalTransactions != 2 {
		t.Errorf("TotalTransactions = %d, want 2", first.TotalTransactions)
	}
	if !first.GeneratedAt.Equal(serviceNow) {
		t.Errorf("GeneratedAt = %v, want %v", first.GeneratedAt, serviceNow)
	}
	if _, err := f.svc.Insights(ctx); err != nil {
		t.Fatal(err)
	}
	if got := f.insights.calls.Load(); got != 1 {
		t.Errorf("generator calls = %d, want 1 (second call should hit cache)", got)
	}

	// A skipped duplicate and a rejection leave the cache alone.
	f.ingest(t, naivasWestlands, otp)
	if _, err := f.svc.Insights(ctx); err != nil {
		t.Fatal(err)
	}
	if got := f.insights.calls.Load(); got != 1 {
		t.Errorf("generator calls after no-op writes = %d, want 1", got)
	}

	f.ingest(t, naivasAgain)
	again, err := f.svc.Insights(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.insights.calls.Load(); got != 2 {
		t.Errorf("generator calls after insert = %d, want 2", got)
	}
	if again.TotalTransactions != 3 {
		t.Errorf("TotalTransactions = %d, want 3", again.TotalTransactions)
	}
	if len(again.FrequentMerchants) == 0 || again.FrequentMerchants[0].Merchant != "NAIVAS WESTLANDS" {
		t.Fatalf("FrequentMerchants = %+v", again.FrequentMerchants)
	}
	if got := again.FrequentMerchants[0].SuggestedCategory; got != "SUPERMARKET" {
		t.Errorf("SuggestedCategory = %q, want SUPERMARKET", got)
	}
}

func TestLedgerService_InsightsIncludeSuggestions(t *testing.T) {
	f := newFixture(t, nil)
	f.ingest(t, naivasWestlands, naivasAgain)

	got, err := f.svc.Insights(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got.CategorySuggestions) == 0 {
		t.Fatal("expected category suggestions")
	}
	top := got.CategorySuggestions[0]
	if top.Category != "SUPERMARKET" || top.Count != 2 || top.TotalAmount.Cents != 100000 {
		t.Errorf("top suggestion = %+v", top)
	}
}

func TestLedgerService_MerchantOverride(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.ingest(t, naivasWestlands)

	if _, err := f.svc.Insights(ctx); err != nil {
		t.Fatal(err)
	}
	o, err := f.svc.SetOverride(ctx, core.Override{Scope: core.ScopeMerchant, Key: " naivas westlands ", Category: "groceries"})
	if err != nil {
		t.Fatalf("SetOverride() error = %v", err)
	}
	if o.Key != "NAIVAS WESTLANDS" || o.Category != "GROCERIES" || !o.CreatedAt.Equal(serviceNow) {
		t.Errorf("normalised override = %+v", o)
	}

	got, err := f.svc.Insights(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.FrequentMerchants[0].SuggestedCategory != "GROCERIES" {
		t.Errorf("SuggestedCategory = %q, want GROCERIES", got.FrequentMerchants[0].SuggestedCategory)
	}

	if err := f.svc.DeleteOverride(ctx, core.ScopeMerchant, "naivas westlands"); err != nil {
		t.Fatalf("DeleteOverride() error = %v", err)
	}
	got, _ = f.svc.Insights(ctx)
	if got.FrequentMerchants[0].SuggestedCategory != "SUPERMARKET" {
		t.Errorf("after delete SuggestedCategory = %q, want SUPERMARKET", got.FrequentMerchants[0].SuggestedCategory)
	}
}

func TestLedgerService_ReceiptOverrideInSuggestions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.ingest(t, naivasWestlands, naivasAgain, javaHouse)

	if _, err := f.svc.SetOverride(ctx, core.Override{Scope: core.ScopeReceipt, Key: "qm22till05", Category: "treats"}); err != nil {
		t.Fatal(err)
	}
	got, err := f.svc.Suggestions(ctx, 1)
	if err != nil {
		t.Fatalf("Suggestions() error = %v", err)
	}
	byCat := make(map[string]core.CategorySuggestion)
	for _, s := range got {
		byCat[s.Category] = s
	}
	if s := byCat["TREATS"]; s.Count != 1 || len(s.ReceiptNumbers) != 1 || s.ReceiptNumbers[0] != "QM22TILL05" {
		t.Errorf("TREATS = %+v", s)
	}
	if s := byCat["SUPERMARKET"]; s.Count != 1 {
		t.Errorf("SUPERMARKET = %+v", s)
	}

	got, err = f.svc.Suggestions(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("Suggestions(min 2) = %+v, want none", got)
	}
}

func TestLedgerService_SetOverrideInvalid(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.SetOverride(context.Background(), core.Override{Scope: "account", Key: "X", Category: "Y"})
	if !errors.Is(err, core.ErrInvalidOverride) {
		t.Errorf("SetOverride() error = %v, want ErrInvalidOverride", err)
	}
}

func TestLedgerService_DeleteInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.ingest(t, naivasWestlands, javaHouse)

	if _, err := f.svc.Insights(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Delete(ctx, "qm22till01"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.svc.Get(ctx, "QM22TILL01"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	got, _ := f.svc.Insights(ctx)
	if got.TotalTransactions != 1 {
		t.Errorf("TotalTransactions = %d, want 1", got.TotalTransactions)
	}

	n, err := f.svc.DeleteAll(ctx)
	if err != nil || n != 1 {
		t.Fatalf("DeleteAll() = %d, %v; want 1, nil", n, err)
	}
	if c, _ := f.svc.Count(ctx); c != 0 {
		t.Errorf("Count() = %d, want 0", c)
	}
}

func TestLedgerService_Scan(t *testing.T) {
	ctx := context.Background()

	t.Run("no source", func(t *testing.T) {
		f := newFixture(t, nil)
		if _, err := f.svc.Scan(ctx, 0); !errors.Is(err, ErrNoInbox) {
			t.Errorf("Scan() error = %v, want ErrNoInbox", err)
		}
	})

	t.Run("default lookback", func(t *testing.T) {
		src := inboxmem.New(
			core.RawMessage{Body: naivasWestlands, Timestamp: serviceNow.AddDate(0, -1, 0), TransportID: "1"},
			core.RawMessage{Body: javaHouse, Timestamp: serviceNow.AddDate(-1, 0, 0), TransportID: "2"},
			core.RawMessage{Body: otp, Timestamp: serviceNow.Add(-time.Hour), TransportID: "3"},
		)
		f := newFixture(t, src)
		res, err := f.svc.Scan(ctx, 0)
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		if res.Inserted != 1 || res.Rejected != 1 {
			t.Errorf("Scan() counts = %+v, want 1 inserted 1 rejected", res.BatchResult)
		}
		if len(res.Transactions) != 1 || res.Transactions[0].ReceiptNumber != "QM22TILL01" {
			t.Errorf("Scan() transactions = %+v", res.Transactions)
		}
		if want := serviceNow.AddDate(0, -6, 0); !res.Since.Equal(want) {
			t.Errorf("Since = %v, want %v", res.Since, want)
		}
	})

	t.Run("bad lookback", func(t *testing.T) {
		f := newFixture(t, inboxmem.New())
		if _, err := f.svc.Scan(ctx, -1); !errors.Is(err, ingest.ErrInvalidLookback) {
			t.Errorf("Scan() error = %v, want ErrInvalidLookback", err)
		}
	})
}

type stallingLedger struct{ *ledgermem.Store }

func (stallingLedger) List(ctx context.Context) ([]core.Transaction, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stallingLedger) Count(ctx context.Context) (int, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestLedgerService_StoreReadsTimeOut(t *testing.T) {
	store := stallingLedger{ledgermem.New()}
	table := clues.DefaultTable()
	det := clues.NewDetector(table)
	pipe := ingest.New(parser.New(), det, store, ingest.Config{Workers: 1, StoreTimeout: time.Second}, log.Discard())
	svc := NewLedgerService(store, pipe, analytics.New(store, det, analytics.DefaultConfig()), suggest.New(table.Synonyms()), nil,
		LedgerServiceConfig{StoreTimeout: 20 * time.Millisecond}, log.Discard())

	tests := []struct {
		name string
		call func(ctx context.Context) error
	}{
		{"suggestions", func(ctx context.Context) error {
			_, err := svc.Suggestions(ctx, 1)
			return err
		}},
		{"ping", svc.Ping},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			err := tt.call(context.Background())
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("error = %v, want deadline exceeded", err)
			}
			if elapsed := time.Since(start); elapsed > time.Second {
				t.Errorf("call took %v", elapsed)
			}
		})
	}
}
