package http

import (
	"time"

	"pesa/internal/core"
	"pesa/internal/ingest"
)

// TransactionDTO is the flat JSON form of a transaction. Detail fields not
// used by the transaction's kind are omitted.
type TransactionDTO struct {
	ReceiptNumber     string    `json:"receipt_number"`
	Kind              string    `json:"kind"`
	Amount            string    `json:"amount"`
	AmountCents       int64     `json:"amount_cents"`
	CounterpartyName  string    `json:"counterparty_name,omitempty"`
	CounterpartyPhone string    `json:"counterparty_phone,omitempty"`
	PaybillNumber     string    `json:"paybill_number,omitempty"`
	AccountNumber     string    `json:"account_number,omitempty"`
	TillNumber        string    `json:"till_number,omitempty"`
	MerchantName      string    `json:"merchant_name,omitempty"`
	RecipientPhone    string    `json:"recipient_phone,omitempty"`
	AgentNumber       string    `json:"agent_number,omitempty"`
	AgentName         string    `json:"agent_name,omitempty"`
	RawText           string    `json:"raw_text"`
	Clues             []string  `json:"clues"`
	ParserVersion     int       `json:"parser_version"`
	Timestamp         time.Time `json:"timestamp"`
	IngestedAt        time.Time `json:"ingested_at"`
	TransportID       string    `json:"transport_id,omitempty"`
}

func toTransactionDTO(tx core.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ReceiptNumber: tx.ReceiptNumber,
		Kind:          string(tx.Kind()),
		Amount:        tx.Amount.String(),
		AmountCents:   tx.Amount.Cents,
		RawText:       tx.RawText,
		Clues:         make([]string, 0, len(tx.Clues)),
		ParserVersion: tx.ParserVersion,
		Timestamp:     tx.Timestamp,
		IngestedAt:    tx.IngestedAt,
		TransportID:   tx.TransportID,
	}
	for _, c := range tx.Clues {
		dto.Clues = append(dto.Clues, c.String())
	}

	switch d := tx.Details.(type) {
	case core.SendMoney:
		dto.CounterpartyName, dto.CounterpartyPhone = d.CounterpartyName, d.CounterpartyPhone
	case core.ReceiveMoney:
		dto.CounterpartyName, dto.CounterpartyPhone = d.CounterpartyName, d.CounterpartyPhone
	case core.Paybill:
		dto.PaybillNumber, dto.AccountNumber, dto.MerchantName = d.PaybillNumber, d.AccountNumber, d.MerchantName
	case core.Till:
		dto.TillNumber, dto.MerchantName = d.TillNumber, d.MerchantName
	case core.Airtime:
		dto.RecipientPhone = d.RecipientPhone
	case core.Withdraw:
		dto.AgentNumber, dto.AgentName = d.AgentNumber, d.AgentName
	case core.Deposit:
		dto.AgentNumber, dto.AgentName = d.AgentNumber, d.AgentName
	}
	return dto
}

func toTransactionDTOs(txs []core.Transaction) []TransactionDTO {
	out := make([]TransactionDTO, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionDTO(tx))
	}
	return out
}

type (
	MerchantFrequencyDTO struct {
		Merchant           string           `json:"merchant"`
		Count              int              `json:"count"`
		TotalAmount        string           `json:"total_amount"`
		SuggestedCategory  string           `json:"suggested_category,omitempty"`
		RecentTransactions []TransactionDTO `json:"recent_transactions"`
	}

	RecurringPaybillDTO struct {
		PaybillNumber     string `json:"paybill_number"`
		MerchantName      string `json:"merchant_name"`
		Frequency         int    `json:"frequency"`
		AverageAmount     string `json:"average_amount"`
		SuggestedCategory string `json:"suggested_category,omitempty"`
	}

	CategorySuggestionDTO struct {
		Category       string   `json:"category"`
		Count          int      `json:"count"`
		TotalAmount    string   `json:"total_amount"`
		ReceiptNumbers []string `json:"receipt_numbers"`
	}

	InsightsDTO struct {
		TotalTransactions   int                     `json:"total_transactions"`
		FrequentMerchants   []MerchantFrequencyDTO  `json:"frequent_merchants"`
		RecurringPaybills   []RecurringPaybillDTO   `json:"recurring_paybills"`
		CategorySuggestions []CategorySuggestionDTO `json:"category_suggestions"`
		GeneratedAt         time.Time               `json:"generated_at"`
	}
)

func toSuggestionDTOs(in []core.CategorySuggestion) []CategorySuggestionDTO {
	out := make([]CategorySuggestionDTO, 0, len(in))
	for _, s := range in {
		receipts := s.ReceiptNumbers
		if receipts == nil {
			receipts = []string{}
		}
		out = append(out, CategorySuggestionDTO{
			Category:       s.Category,
			Count:          s.Count,
			TotalAmount:    s.TotalAmount.String(),
			ReceiptNumbers: receipts,
		})
	}
	return out
}

func toInsightsDTO(in core.OnboardingInsights) InsightsDTO {
	out := InsightsDTO{
		TotalTransactions:   in.TotalTransactions,
		FrequentMerchants:   make([]MerchantFrequencyDTO, 0, len(in.FrequentMerchants)),
		RecurringPaybills:   make([]RecurringPaybillDTO, 0, len(in.RecurringPaybills)),
		CategorySuggestions: toSuggestionDTOs(in.CategorySuggestions),
		GeneratedAt:         in.GeneratedAt,
	}
	for _, m := range in.FrequentMerchants {
		out.FrequentMerchants = append(out.FrequentMerchants, MerchantFrequencyDTO{
			Merchant:           m.Merchant,
			Count:              m.Count,
			TotalAmount:        m.TotalAmount.String(),
			SuggestedCategory:  m.SuggestedCategory,
			RecentTransactions: toTransactionDTOs(m.RecentTransactions),
		})
	}
	for _, p := range in.RecurringPaybills {
		out.RecurringPaybills = append(out.RecurringPaybills, RecurringPaybillDTO{
			PaybillNumber:     p.PaybillNumber,
			MerchantName:      p.MerchantName,
			Frequency:         p.Frequency,
			AverageAmount:     p.AverageAmount.String(),
			SuggestedCategory: p.SuggestedCategory,
		})
	}
	return out
}

type OverrideDTO struct {
	Scope     string    `json:"scope"`
	Key       string    `json:"key"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func toOverrideDTOs(in []core.Override) []OverrideDTO {
	out := make([]OverrideDTO, 0, len(in))
	for _, o := range in {
		out = append(out, OverrideDTO{Scope: string(o.Scope), Key: o.Key, Category: o.Category, CreatedAt: o.CreatedAt})
	}
	return out
}

// MessageRequest is the body of POST /api/messages.
type MessageRequest struct {
	Body        string    `json:"body"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
	TransportID string    `json:"transport_id,omitempty"`
}

type MessageResponse struct {
	Outcome string `json:"outcome,omitempty"`
	Queued  bool   `json:"queued,omitempty"`
	ID      string `json:"id,omitempty"`
}

// ScanRequest is the optional body of POST /api/scan.
type ScanRequest struct {
	LookbackMonths int `json:"lookback_months"`
}

type ScanResponse struct {
	Inserted     int              `json:"inserted"`
	Updated      int              `json:"updated"`
	Skipped      int              `json:"skipped"`
	Rejected     int              `json:"rejected"`
	Since        time.Time        `json:"since"`
	Until        time.Time        `json:"until"`
	Transactions []TransactionDTO `json:"transactions"`
}

func toScanResponse(res ingest.ScanResult) ScanResponse {
	return ScanResponse{
		Inserted:     res.Inserted,
		Updated:      res.Updated,
		Skipped:      res.Skipped,
		Rejected:     res.Rejected,
		Since:        res.Since,
		Until:        res.Until,
		Transactions: toTransactionDTOs(res.Transactions),
	}
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
