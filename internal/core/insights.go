package core

import (
	"errors"
	"time"
)

// Outcome reports what a single ingestion did to the store.
type Outcome int

const (
	Inserted Outcome = iota + 1
	Updated
	Skipped
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Skipped:
		return "skipped"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// OverrideScope selects what a user category override applies to.
type OverrideScope string

const (
	ScopeReceipt  OverrideScope = "receipt"
	ScopeMerchant OverrideScope = "merchant"
)

var ErrInvalidOverride = errors.New("invalid category override")

// Override is a user-assigned category. It is stored beside the ledger and
// never rewrites a Transaction.
type Override struct {
	Scope     OverrideScope
	Key       string
	Category  string
	CreatedAt time.Time
}

func (o Override) Validate() error {
	if o.Scope != ScopeReceipt && o.Scope != ScopeMerchant {
		return ErrInvalidOverride
	}
	if o.Key == "" || o.Category == "" {
		return ErrInvalidOverride
	}
	return nil
}

type (
	MerchantFrequency struct {
		Merchant           string
		Count              int
		TotalAmount        Money
		SuggestedCategory  string
		RecentTransactions []Transaction
	}

	RecurringPaybill struct {
		PaybillNumber     string
		MerchantName      string
		Frequency         int
		AverageAmount     Money
		SuggestedCategory string
	}

	CategorySuggestion struct {
		Category       string
		Count          int
		TotalAmount    Money
		ReceiptNumbers []string
	}

	OnboardingInsights struct {
		TotalTransactions   int
		FrequentMerchants   []MerchantFrequency
		RecurringPaybills   []RecurringPaybill
		CategorySuggestions []CategorySuggestion
		GeneratedAt         time.Time
	}

	// MerchantAggregate and PaybillAggregate are the grouped rows a store
	// returns for analytics.
	MerchantAggregate struct {
		Merchant string
		Count    int
		Total    Money
	}

	PaybillAggregate struct {
		PaybillNumber string
		MerchantName  string
		Count         int
		Total         Money
	}
)
