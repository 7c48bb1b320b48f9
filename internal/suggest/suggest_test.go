package suggest

import (
	"fmt"
	"reflect"
	"testing"

	"pesa/internal/core"
)

func tx(i int, cents int64, cs ...core.Clue) core.Transaction {
	return core.Transaction{
		ReceiptNumber: fmt.Sprintf("QS%08d", i),
		Amount:        core.Money{Cents: cents},
		Details:       core.Till{MerchantName: "X"},
		Clues:         cs,
	}
}

var (
	food      = core.Clue{Category: "FOOD", Keyword: "KFC"}
	transport = core.Clue{Category: "TRANSPORT", Keyword: "UBER"}
	airtime   = core.Clue{Category: "AIRTIME", Keyword: "AIRTIME"}
	data      = core.Clue{Category: "DATA", Keyword: "BUNDLES"}
)

func TestAnalyzeGroupsAndSorts(t *testing.T) {
	txs := []core.Transaction{
		tx(1, 100, food),
		tx(2, 200, transport),
		tx(3, 300, food),
		tx(4, 400, transport),
		tx(5, 500, food),
		tx(6, 600),
	}
	got := New(nil).Analyze(txs, 2, nil)
	want := []core.CategorySuggestion{
		{Category: "FOOD", Count: 3, TotalAmount: core.Money{Cents: 900}, ReceiptNumbers: []string{"QS00000001", "QS00000003", "QS00000005"}},
		{Category: "TRANSPORT", Count: 2, TotalAmount: core.Money{Cents: 600}, ReceiptNumbers: []string{"QS00000002", "QS00000004"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Analyze() = %+v\nwant %+v", got, want)
	}
}

func TestAnalyzeMinimumCount(t *testing.T) {
	txs := []core.Transaction{tx(1, 100, food), tx(2, 100, transport), tx(3, 100, transport)}
	got := New(nil).Analyze(txs, 2, nil)
	if len(got) != 1 || got[0].Category != "TRANSPORT" {
		t.Errorf("Analyze() = %+v", got)
	}
	if all := New(nil).Analyze(txs, 0, nil); len(all) != 2 {
		t.Errorf("minimum 0 kept %d groups, want 2", len(all))
	}
}

func TestAnalyzeTieBreakByName(t *testing.T) {
	txs := []core.Transaction{tx(1, 100, transport), tx(2, 100, food)}
	got := New(nil).Analyze(txs, 1, nil)
	if got[0].Category != "FOOD" || got[1].Category != "TRANSPORT" {
		t.Errorf("order = %s, %s", got[0].Category, got[1].Category)
	}
}

func TestAnalyzeFoldsSynonyms(t *testing.T) {
	synonyms := map[string]string{"DATA": "AIRTIME"}

	t.Run("groups below minimum are dropped before folding", func(t *testing.T) {
		txs := []core.Transaction{tx(1, 100, airtime), tx(2, 250, data)}
		if got := New(synonyms).Analyze(txs, 2, nil); len(got) != 0 {
			t.Errorf("Analyze() = %+v, want none", got)
		}
	})

	t.Run("surviving groups fold together", func(t *testing.T) {
		txs := []core.Transaction{tx(1, 100, airtime), tx(2, 250, data), tx(3, 100, airtime), tx(4, 250, data)}
		got := New(synonyms).Analyze(txs, 2, nil)
		want := []core.CategorySuggestion{{
			Category:       "AIRTIME",
			Count:          4,
			TotalAmount:    core.Money{Cents: 700},
			ReceiptNumbers: []string{"QS00000001", "QS00000003", "QS00000002", "QS00000004"},
		}}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Analyze() = %+v\nwant %+v", got, want)
		}
	})

	t.Run("only the surviving synonym is folded", func(t *testing.T) {
		txs := []core.Transaction{tx(1, 100, airtime), tx(2, 250, data), tx(3, 250, data)}
		got := New(synonyms).Analyze(txs, 2, nil)
		if len(got) != 1 {
			t.Fatalf("Analyze() = %+v", got)
		}
		if g := got[0]; g.Category != "AIRTIME" || g.Count != 2 || g.TotalAmount.Cents != 500 {
			t.Errorf("folded group = %+v", g)
		}
	})
}

func TestAnalyzeReceiptOverride(t *testing.T) {
	txs := []core.Transaction{tx(1, 100, food), tx(2, 100, food), tx(3, 100)}
	got := New(nil).Analyze(txs, 1, map[string]string{"QS00000002": "RENT", "QS00000003": "RENT"})
	want := []string{"RENT", "FOOD"}
	if len(got) != 2 || got[0].Category != want[0] || got[1].Category != want[1] {
		t.Errorf("Analyze() = %+v", got)
	}
}

func TestAnalyzeEmpty(t *testing.T) {
	if got := New(nil).Analyze(nil, 2, nil); len(got) != 0 {
		t.Errorf("Analyze(nil) = %+v", got)
	}
}
