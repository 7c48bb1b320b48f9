package analytics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"pesa/internal/clues"
	"pesa/internal/core"
	"pesa/internal/ledger/memory"
)

var day0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, store *memory.Store, txs ...core.Transaction) {
	t.Helper()
	for _, tx := range txs {
		if _, err := store.UpsertIfNewer(context.Background(), tx); err != nil {
			t.Fatal(err)
		}
	}
}

func till(i int, merchant string, cents int64) core.Transaction {
	return core.Transaction{
		ReceiptNumber: fmt.Sprintf("QT%08d", i),
		Amount:        core.Money{Cents: cents},
		Details:       core.Till{MerchantName: merchant},
		RawText:       "paid to " + merchant,
		ParserVersion: 1,
		Timestamp:     day0.AddDate(0, 0, i),
	}
}

func paybill(i int, number, merchant string, cents int64) core.Transaction {
	return core.Transaction{
		ReceiptNumber: fmt.Sprintf("QP%08d", i),
		Amount:        core.Money{Cents: cents},
		Details:       core.Paybill{PaybillNumber: number, AccountNumber: "1", MerchantName: merchant},
		RawText:       "paid to " + merchant,
		ParserVersion: 1,
		Timestamp:     day0.AddDate(0, 0, i),
	}
}

func newEngine(store Store) *Engine {
	return New(store, clues.NewDetector(clues.DefaultTable()), DefaultConfig())
}

func TestGenerateInsightsFrequentMerchants(t *testing.T) {
	store := memory.New()
	var txs []core.Transaction
	for i := 0; i < 3; i++ {
		txs = append(txs, till(i, "NAIVAS WESTLANDS", 45000))
	}
	for i := 3; i < 5; i++ {
		txs = append(txs, till(i, "UBER BV", 30000))
	}
	txs = append(txs, till(5, "MAMA PIMA KIOSK", 5000))
	seed(t, store, txs...)

	got, err := newEngine(store).GenerateInsights(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalTransactions != 6 {
		t.Errorf("TotalTransactions = %d", got.TotalTransactions)
	}
	if len(got.FrequentMerchants) != 3 {
		t.Fatalf("FrequentMerchants = %+v", got.FrequentMerchants)
	}
	first, second := got.FrequentMerchants[0], got.FrequentMerchants[1]
	if first.Merchant != "NAIVAS WESTLANDS" || first.Count != 3 || first.TotalAmount.Cents != 135000 || first.SuggestedCategory != "SUPERMARKET" {
		t.Errorf("first = %+v", first)
	}
	if second.Merchant != "UBER BV" || second.Count != 2 || second.SuggestedCategory != "TRANSPORT" {
		t.Errorf("second = %+v", second)
	}
	if got.FrequentMerchants[2].SuggestedCategory != "" {
		t.Errorf("unknown merchant got category %q", got.FrequentMerchants[2].SuggestedCategory)
	}
	if len(first.RecentTransactions) != 3 || first.RecentTransactions[0].ReceiptNumber != "QT00000002" {
		t.Errorf("recent = %+v", first.RecentTransactions)
	}
}

func TestGenerateInsightsLimits(t *testing.T) {
	store := memory.New()
	for i := 0; i < 8; i++ {
		seed(t, store, till(i, fmt.Sprintf("SHOP %d", i), 1000))
	}
	for i := 8; i < 16; i++ {
		seed(t, store, till(i, "SHOP 0", 1000))
	}
	got, err := New(store, clues.NewDetector(clues.DefaultTable()), Config{TopMerchants: 2, RecentPerMerchant: 3}).GenerateInsights(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got.FrequentMerchants) != 2 {
		t.Fatalf("got %d merchants, want 2", len(got.FrequentMerchants))
	}
	if n := len(got.FrequentMerchants[0].RecentTransactions); n != 3 {
		t.Errorf("got %d recent transactions, want 3", n)
	}
	if got.FrequentMerchants[1].Merchant != "SHOP 1" {
		t.Errorf("tie not broken by first seen: %s", got.FrequentMerchants[1].Merchant)
	}
}

func TestGenerateInsightsRecurringPaybills(t *testing.T) {
	store := memory.New()
	seed(t, store,
		paybill(1, "888880", "KPLC PREPAID", 200000),
		paybill(2, "888880", "KPLC PREPAID", 100000),
		paybill(3, "400200", "PAYBILL 400200", 50000),
	)
	got, err := newEngine(store).GenerateInsights(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got.RecurringPaybills) != 1 {
		t.Fatalf("RecurringPaybills = %+v", got.RecurringPaybills)
	}
	want := core.RecurringPaybill{
		PaybillNumber:     "888880",
		MerchantName:      "KPLC PREPAID",
		Frequency:         2,
		AverageAmount:     core.Money{Cents: 150000},
		SuggestedCategory: "UTILITIES",
	}
	if got.RecurringPaybills[0] != want {
		t.Errorf("RecurringPaybills[0] = %+v, want %+v", got.RecurringPaybills[0], want)
	}
}

func TestGenerateInsightsMerchantOverride(t *testing.T) {
	store := memory.New()
	seed(t, store, till(1, "NAIVAS WESTLANDS", 1000))
	store.SetOverride(context.Background(), core.Override{Scope: core.ScopeMerchant, Key: "naivas westlands", Category: "HOUSEHOLD"})

	got, err := newEngine(store).GenerateInsights(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c := got.FrequentMerchants[0].SuggestedCategory; c != "HOUSEHOLD" {
		t.Errorf("SuggestedCategory = %q, want override", c)
	}
}

func TestGenerateInsightsEmptyStore(t *testing.T) {
	got, err := newEngine(memory.New()).GenerateInsights(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalTransactions != 0 || len(got.FrequentMerchants) != 0 || len(got.RecurringPaybills) != 0 {
		t.Errorf("GenerateInsights() = %+v", got)
	}
}

type brokenStore struct{ *memory.Store }

func (brokenStore) TopMerchants(context.Context, int) ([]core.MerchantAggregate, error) {
	return nil, errors.New("database is locked")
}

func TestGenerateInsightsPropagatesStoreErrors(t *testing.T) {
	if _, err := newEngine(brokenStore{memory.New()}).GenerateInsights(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type stallingStore struct{ *memory.Store }

func (stallingStore) Count(ctx context.Context) (int, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestGenerateInsightsBoundsStoreReads(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StoreTimeout = 20 * time.Millisecond
	e := New(stallingStore{memory.New()}, clues.NewDetector(clues.DefaultTable()), cfg)

	start := time.Now()
	_, err := e.GenerateInsights(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("GenerateInsights() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("GenerateInsights() took %v", elapsed)
	}
}
