package core

import (
	"errors"
	"time"
)

// Kind classifies a mobile-money message.
type Kind string

const (
	KindSendMoney    Kind = "SEND_MONEY"
	KindReceiveMoney Kind = "RECEIVE_MONEY"
	KindPaybill      Kind = "PAYBILL"
	KindTill         Kind = "TILL"
	KindAirtime      Kind = "AIRTIME"
	KindWithdraw     Kind = "WITHDRAW"
	KindDeposit      Kind = "DEPOSIT"
	KindUnknown      Kind = "UNKNOWN"
)

// Kinds lists every kind in declaration order.
var Kinds = []Kind{
	KindSendMoney, KindReceiveMoney, KindPaybill, KindTill,
	KindAirtime, KindWithdraw, KindDeposit, KindUnknown,
}

// Details is the kind-specific payload of a transaction. The set of
// implementations is closed; each one fixes the transaction's Kind.
type Details interface {
	Kind() Kind
	details()
}

type (
	SendMoney struct {
		CounterpartyName  string
		CounterpartyPhone string
	}

	ReceiveMoney struct {
		CounterpartyName  string
		CounterpartyPhone string
	}

	Paybill struct {
		PaybillNumber string
		AccountNumber string
		MerchantName  string
	}

	// Till is a buy-goods purchase. TillNumber is empty when the message
	// names the merchant without a till keyword.
	Till struct {
		TillNumber   string
		MerchantName string
	}

	Airtime struct {
		RecipientPhone string // empty when bought for own number
	}

	Withdraw struct {
		AgentNumber string
		AgentName   string
	}

	Deposit struct {
		AgentNumber string
		AgentName   string
	}

	Unknown struct{}
)

func (SendMoney) Kind() Kind    { return KindSendMoney }
func (ReceiveMoney) Kind() Kind { return KindReceiveMoney }
func (Paybill) Kind() Kind      { return KindPaybill }
func (Till) Kind() Kind         { return KindTill }
func (Airtime) Kind() Kind      { return KindAirtime }
func (Withdraw) Kind() Kind     { return KindWithdraw }
func (Deposit) Kind() Kind      { return KindDeposit }
func (Unknown) Kind() Kind      { return KindUnknown }

func (SendMoney) details()    {}
func (ReceiveMoney) details() {}
func (Paybill) details()      {}
func (Till) details()         {}
func (Airtime) details()      {}
func (Withdraw) details()     {}
func (Deposit) details()      {}
func (Unknown) details()      {}

type (
	Money struct {
		Cents int64
	}

	// Clue is a (category, keyword) hit found in a message.
	Clue struct {
		Category string
		Keyword  string
	}

	// Transaction is one extracted mobile-money record, keyed by ReceiptNumber.
	Transaction struct {
		ReceiptNumber string
		Amount        Money
		Details       Details
		RawText       string
		Clues         []Clue
		ParserVersion int
		Timestamp     time.Time
		IngestedAt    time.Time
		TransportID   string
	}

	// RawMessage is an inbound SMS before extraction.
	RawMessage struct {
		Body        string
		Timestamp   time.Time
		TransportID string
	}
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrMissingReceipt = errors.New("missing receipt number")
	ErrMissingDetails = errors.New("missing transaction details")
)

func (c Clue) String() string { return c.Category + ":" + c.Keyword }

// Kind returns the kind fixed by the transaction's details.
func (t Transaction) Kind() Kind {
	if t.Details == nil {
		return KindUnknown
	}
	return t.Details.Kind()
}

// MerchantName returns the merchant of bill-pay and purchase records and ""
// for every other kind.
func (t Transaction) MerchantName() string {
	switch d := t.Details.(type) {
	case Paybill:
		return d.MerchantName
	case Till:
		return d.MerchantName
	default:
		return ""
	}
}

// Validate checks the invariants every stored transaction must hold.
func (t Transaction) Validate() error {
	if t.ReceiptNumber == "" {
		return ErrMissingReceipt
	}
	if t.Amount.Cents <= 0 {
		return ErrInvalidAmount
	}
	if t.Details == nil {
		return ErrMissingDetails
	}
	return nil
}
