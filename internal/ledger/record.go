package ledger

import (
	"fmt"
	"time"

	"pesa/internal/clues"
	"pesa/internal/core"
)

// Record is the flat storage shape of a transaction. Exactly the columns of
// the record's kind are populated.
type Record struct {
	Seq               int64  `json:"seq"`
	ReceiptNumber     string `json:"receipt_number"`
	AmountCents       int64  `json:"amount_cents"`
	Kind              string `json:"kind"`
	CounterpartyName  string `json:"counterparty_name,omitempty"`
	CounterpartyPhone string `json:"counterparty_phone,omitempty"`
	PaybillNumber     string `json:"paybill_number,omitempty"`
	AccountNumber     string `json:"account_number,omitempty"`
	TillNumber        string `json:"till_number,omitempty"`
	MerchantName      string `json:"merchant_name,omitempty"`
	AgentNumber       string `json:"agent_number,omitempty"`
	AgentName         string `json:"agent_name,omitempty"`
	RecipientPhone    string `json:"recipient_phone,omitempty"`
	RawText           string `json:"raw_text"`
	Clues             string `json:"clues,omitempty"`
	ParserVersion     int    `json:"parser_version"`
	OccurredAt        int64  `json:"occurred_at"`
	IngestedAt        int64  `json:"ingested_at"`
	TransportID       string `json:"transport_id,omitempty"`
	Revision          int    `json:"revision"`
}

// ToRecord flattens tx. Seq and Revision are left to the store.
func ToRecord(tx core.Transaction) Record {
	r := Record{
		ReceiptNumber: tx.ReceiptNumber,
		AmountCents:   tx.Amount.Cents,
		Kind:          string(tx.Kind()),
		RawText:       tx.RawText,
		Clues:         clues.Encode(tx.Clues),
		ParserVersion: tx.ParserVersion,
		OccurredAt:    toMillis(tx.Timestamp),
		IngestedAt:    toMillis(tx.IngestedAt),
		TransportID:   tx.TransportID,
	}
	switch d := tx.Details.(type) {
	case core.SendMoney:
		r.CounterpartyName, r.CounterpartyPhone = d.CounterpartyName, d.CounterpartyPhone
	case core.ReceiveMoney:
		r.CounterpartyName, r.CounterpartyPhone = d.CounterpartyName, d.CounterpartyPhone
	case core.Paybill:
		r.PaybillNumber, r.AccountNumber, r.MerchantName = d.PaybillNumber, d.AccountNumber, d.MerchantName
	case core.Till:
		r.TillNumber, r.MerchantName = d.TillNumber, d.MerchantName
	case core.Airtime:
		r.RecipientPhone = d.RecipientPhone
	case core.Withdraw:
		r.AgentNumber, r.AgentName = d.AgentNumber, d.AgentName
	case core.Deposit:
		r.AgentNumber, r.AgentName = d.AgentNumber, d.AgentName
	}
	return r
}

// Transaction rebuilds the domain value from r.
func (r Record) Transaction() (core.Transaction, error) {
	var d core.Details
	switch core.Kind(r.Kind) {
	case core.KindSendMoney:
		d = core.SendMoney{CounterpartyName: r.CounterpartyName, CounterpartyPhone: r.CounterpartyPhone}
	case core.KindReceiveMoney:
		d = core.ReceiveMoney{CounterpartyName: r.CounterpartyName, CounterpartyPhone: r.CounterpartyPhone}
	case core.KindPaybill:
		d = core.Paybill{PaybillNumber: r.PaybillNumber, AccountNumber: r.AccountNumber, MerchantName: r.MerchantName}
	case core.KindTill:
		d = core.Till{TillNumber: r.TillNumber, MerchantName: r.MerchantName}
	case core.KindAirtime:
		d = core.Airtime{RecipientPhone: r.RecipientPhone}
	case core.KindWithdraw:
		d = core.Withdraw{AgentNumber: r.AgentNumber, AgentName: r.AgentName}
	case core.KindDeposit:
		d = core.Deposit{AgentNumber: r.AgentNumber, AgentName: r.AgentName}
	case core.KindUnknown:
		d = core.Unknown{}
	default:
		return core.Transaction{}, fmt.Errorf("record %s: unknown kind %q", r.ReceiptNumber, r.Kind)
	}

	cs, err := clues.Decode(r.Clues)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("record %s: %w", r.ReceiptNumber, err)
	}

	return core.Transaction{
		ReceiptNumber: r.ReceiptNumber,
		Amount:        core.Money{Cents: r.AmountCents},
		Details:       d,
		RawText:       r.RawText,
		Clues:         cs,
		ParserVersion: r.ParserVersion,
		Timestamp:     fromMillis(r.OccurredAt),
		IngestedAt:    fromMillis(r.IngestedAt),
		TransportID:   r.TransportID,
	}, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
