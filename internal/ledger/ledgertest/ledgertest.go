// Package ledgertest runs the same behavioural checks against every store
// adapter.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pesa/internal/core"
	"pesa/internal/ledger"
)

var base = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

// Tx builds a valid transaction for tests.
func Tx(receipt string, version int, cents int64, details core.Details, at time.Time) core.Transaction {
	return core.Transaction{
		ReceiptNumber: receipt,
		Amount:        core.Money{Cents: cents},
		Details:       details,
		RawText:       receipt + " Confirmed.",
		Clues:         []core.Clue{{Category: "FOOD", Keyword: "KFC"}},
		ParserVersion: version,
		Timestamp:     at,
		IngestedAt:    at.Add(time.Minute),
		TransportID:   "sms-" + receipt,
	}
}

// Run exercises open against the store contract. open must return a fresh,
// empty store.
func Run(t *testing.T, open func(t *testing.T) ledger.Store) {
	t.Run("insert then get", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		in := Tx("QA00000001", 1, 1000, core.Paybill{PaybillNumber: "400200", AccountNumber: "12345", MerchantName: "PAYBILL 400200"}, base)

		outcome, err := s.UpsertIfNewer(ctx, in)
		if err != nil || outcome != core.Inserted {
			t.Fatalf("UpsertIfNewer() = %v, %v; want inserted", outcome, err)
		}
		got, err := s.Get(ctx, "QA00000001")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Details != in.Details || got.Amount != in.Amount || got.RawText != in.RawText ||
			got.ParserVersion != 1 || got.TransportID != in.TransportID || !got.Timestamp.Equal(in.Timestamp) {
			t.Errorf("Get() = %+v, want %+v", got, in)
		}
		if len(got.Clues) != 1 || got.Clues[0] != in.Clues[0] {
			t.Errorf("clues = %v, want %v", got.Clues, in.Clues)
		}
		if _, err := s.Get(ctx, "QZ99999999"); !errors.Is(err, ledger.ErrNotFound) {
			t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("same version is skipped", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		first := Tx("QA00000002", 1, 1000, core.Airtime{}, base)
		if _, err := s.UpsertIfNewer(ctx, first); err != nil {
			t.Fatal(err)
		}
		again := first
		again.Amount = core.Money{Cents: 9999}
		outcome, err := s.UpsertIfNewer(ctx, again)
		if err != nil || outcome != core.Skipped {
			t.Fatalf("UpsertIfNewer() = %v, %v; want skipped", outcome, err)
		}
		got, _ := s.Get(ctx, "QA00000002")
		if got.Amount.Cents != 1000 {
			t.Errorf("amount changed to %d", got.Amount.Cents)
		}
		if n, _ := s.Count(ctx); n != 1 {
			t.Errorf("Count() = %d, want 1", n)
		}
	})

	t.Run("newer version replaces in full", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		old := Tx("QA00000003", 1, 1000, core.Till{MerchantName: "NAIVAS"}, base)
		if _, err := s.UpsertIfNewer(ctx, old); err != nil {
			t.Fatal(err)
		}
		newer := Tx("QA00000003", 2, 1500, core.Till{TillNumber: "123456", MerchantName: "NAIVAS WESTLANDS"}, base)
		newer.Clues = nil
		outcome, err := s.UpsertIfNewer(ctx, newer)
		if err != nil || outcome != core.Updated {
			t.Fatalf("UpsertIfNewer() = %v, %v; want updated", outcome, err)
		}
		got, _ := s.Get(ctx, "QA00000003")
		if got.ParserVersion != 2 || got.Amount.Cents != 1500 || got.Details != newer.Details || len(got.Clues) != 0 {
			t.Errorf("record not replaced: %+v", got)
		}

		outcome, err = s.UpsertIfNewer(ctx, old)
		if err != nil || outcome != core.Skipped {
			t.Fatalf("downgrade = %v, %v; want skipped", outcome, err)
		}
		got, _ = s.Get(ctx, "QA00000003")
		if got.ParserVersion != 2 {
			t.Errorf("version regressed to %d", got.ParserVersion)
		}
	})

	t.Run("concurrent upserts insert once", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		const n = 8
		var wg sync.WaitGroup
		outcomes := make(chan core.Outcome, n)
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				o, err := s.UpsertIfNewer(ctx, Tx("QA00000004", 1, 1000, core.Airtime{}, base))
				if err != nil {
					errs <- err
					return
				}
				outcomes <- o
			}()
		}
		wg.Wait()
		close(outcomes)
		close(errs)
		for err := range errs {
			t.Fatalf("UpsertIfNewer() error = %v", err)
		}
		inserted := 0
		for o := range outcomes {
			if o == core.Inserted {
				inserted++
			} else if o != core.Skipped {
				t.Errorf("unexpected outcome %v", o)
			}
		}
		if inserted != 1 {
			t.Errorf("inserted %d times, want 1", inserted)
		}
	})

	t.Run("listing and windows", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		for i, day := range []int{3, 1, 2} {
			tx := Tx(fmt.Sprintf("QB0000000%d", i), 1, 100, core.Airtime{}, base.AddDate(0, 0, day))
			if _, err := s.UpsertIfNewer(ctx, tx); err != nil {
				t.Fatal(err)
			}
		}
		all, err := s.List(ctx)
		if err != nil || len(all) != 3 {
			t.Fatalf("List() = %d records, %v", len(all), err)
		}
		if all[0].ReceiptNumber != "QB00000001" || all[2].ReceiptNumber != "QB00000000" {
			t.Errorf("List() not chronological: %s..%s", all[0].ReceiptNumber, all[2].ReceiptNumber)
		}
		win, _ := s.ListBetween(ctx, base.AddDate(0, 0, 2), base.AddDate(0, 0, 3))
		if len(win) != 2 {
			t.Errorf("ListBetween() = %d records, want 2", len(win))
		}
		recent, _ := s.ListRecent(ctx, 2)
		if len(recent) != 2 || recent[0].ReceiptNumber != "QB00000000" {
			t.Errorf("ListRecent() = %v", receipts(recent))
		}
	})

	t.Run("stale records", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		s.UpsertIfNewer(ctx, Tx("QC00000001", 1, 100, core.Airtime{}, base))
		s.UpsertIfNewer(ctx, Tx("QC00000002", 2, 100, core.Airtime{}, base))
		s.UpsertIfNewer(ctx, Tx("QC00000003", 1, 100, core.Airtime{}, base))
		stale, err := s.ListStale(ctx, 2, 10)
		if err != nil || len(stale) != 2 {
			t.Fatalf("ListStale() = %v, %v", receipts(stale), err)
		}
		limited, _ := s.ListStale(ctx, 2, 1)
		if len(limited) != 1 || limited[0].ReceiptNumber != "QC00000001" {
			t.Errorf("ListStale(limit 1) = %v", receipts(limited))
		}
	})

	t.Run("aggregates", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		kplc := func(name string) core.Details {
			return core.Paybill{PaybillNumber: "888880", AccountNumber: "1", MerchantName: name}
		}
		rows := []core.Transaction{
			Tx("QD00000001", 1, 45000, core.Till{MerchantName: "NAIVAS"}, base),
			Tx("QD00000002", 1, 30000, core.Till{MerchantName: "UBER"}, base.AddDate(0, 0, 1)),
			Tx("QD00000003", 1, 55000, core.Till{MerchantName: "NAIVAS"}, base.AddDate(0, 0, 2)),
			Tx("QD00000004", 1, 20000, core.Till{MerchantName: "UBER"}, base.AddDate(0, 0, 3)),
			Tx("QD00000005", 1, 10000, core.Till{MerchantName: "KFC"}, base.AddDate(0, 0, 4)),
			Tx("QD00000006", 1, 200000, kplc("KPLC"), base.AddDate(0, 0, 5)),
			Tx("QD00000007", 1, 100000, kplc("KPLC PREPAID"), base.AddDate(0, 0, 6)),
			Tx("QD00000008", 1, 50000, core.Paybill{PaybillNumber: "400200", MerchantName: "PAYBILL 400200"}, base),
			Tx("QD00000009", 1, 50000, core.SendMoney{CounterpartyName: "JOHN"}, base),
		}
		for _, r := range rows {
			if _, err := s.UpsertIfNewer(ctx, r); err != nil {
				t.Fatal(err)
			}
		}

		top, err := s.TopMerchants(ctx, 3)
		if err != nil {
			t.Fatal(err)
		}
		want := []core.MerchantAggregate{
			{Merchant: "NAIVAS", Count: 2, Total: core.Money{Cents: 100000}},
			{Merchant: "UBER", Count: 2, Total: core.Money{Cents: 50000}},
			{Merchant: "KFC", Count: 1, Total: core.Money{Cents: 10000}},
		}
		if len(top) != len(want) {
			t.Fatalf("TopMerchants() = %+v", top)
		}
		for i := range want {
			if top[i] != want[i] {
				t.Errorf("TopMerchants()[%d] = %+v, want %+v", i, top[i], want[i])
			}
		}

		recent, _ := s.RecentByMerchant(ctx, "NAIVAS", 5)
		if len(recent) != 2 || recent[0].ReceiptNumber != "QD00000003" {
			t.Errorf("RecentByMerchant() = %v", receipts(recent))
		}

		bills, err := s.RecurringPaybills(ctx, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(bills) != 1 {
			t.Fatalf("RecurringPaybills() = %+v", bills)
		}
		if b := bills[0]; b.PaybillNumber != "888880" || b.Count != 2 || b.Total.Cents != 300000 || b.MerchantName != "KPLC PREPAID" {
			t.Errorf("RecurringPaybills()[0] = %+v", b)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		s.UpsertIfNewer(ctx, Tx("QE00000001", 1, 100, core.Airtime{}, base))
		s.UpsertIfNewer(ctx, Tx("QE00000002", 1, 100, core.Airtime{}, base))
		if err := s.Delete(ctx, "QE00000001"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if err := s.Delete(ctx, "QE00000001"); !errors.Is(err, ledger.ErrNotFound) {
			t.Errorf("second Delete() error = %v", err)
		}
		n, err := s.DeleteAll(ctx)
		if err != nil || n != 1 {
			t.Errorf("DeleteAll() = %d, %v", n, err)
		}
		if c, _ := s.Count(ctx); c != 0 {
			t.Errorf("Count() after DeleteAll = %d", c)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		o := core.Override{Scope: core.ScopeMerchant, Key: "NAIVAS", Category: "GROCERIES", CreatedAt: base}
		if err := s.SetOverride(ctx, o); err != nil {
			t.Fatal(err)
		}
		o.Category = "HOUSEHOLD"
		if err := s.SetOverride(ctx, o); err != nil {
			t.Fatal(err)
		}
		if err := s.SetOverride(ctx, core.Override{Scope: "bogus", Key: "x", Category: "y"}); err == nil {
			t.Error("invalid override accepted")
		}
		list, _ := s.ListOverrides(ctx)
		if len(list) != 1 || list[0].Category != "HOUSEHOLD" {
			t.Fatalf("ListOverrides() = %+v", list)
		}
		if err := s.DeleteOverride(ctx, core.ScopeMerchant, "NAIVAS"); err != nil {
			t.Fatal(err)
		}
		if err := s.DeleteOverride(ctx, core.ScopeMerchant, "NAIVAS"); !errors.Is(err, ledger.ErrNotFound) {
			t.Errorf("second DeleteOverride() error = %v", err)
		}
	})
}

func receipts(txs []core.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.ReceiptNumber
	}
	return out
}
