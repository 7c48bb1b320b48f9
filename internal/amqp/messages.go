package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"pesa/internal/core"
)

// SMSReceivedMessage carries one inbound SMS from a device gateway to the
// ingestion worker. The body travels verbatim; parsing happens on the
// consumer side.
type SMSReceivedMessage struct {
	ID          string    `json:"id"`
	Body        string    `json:"body"`
	ReceivedAt  time.Time `json:"received_at,omitempty"`
	TransportID string    `json:"transport_id,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

var ErrEmptyBody = errors.New("sms message has empty body")

func NewSMSReceivedMessage(raw core.RawMessage) *SMSReceivedMessage {
	return &SMSReceivedMessage{
		ID:          uuid.NewString(),
		Body:        raw.Body,
		ReceivedAt:  raw.Timestamp,
		TransportID: raw.TransportID,
		PublishedAt: time.Now().UTC(),
	}
}

// RawMessage converts the message for the ingestion pipeline. The message
// id stands in for a missing transport id.
func (m *SMSReceivedMessage) RawMessage() core.RawMessage {
	id := m.TransportID
	if id == "" {
		id = m.ID
	}
	return core.RawMessage{Body: m.Body, Timestamp: m.ReceivedAt, TransportID: id}
}

func (m *SMSReceivedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SMSReceivedMessageFromJSON(data []byte) (*SMSReceivedMessage, error) {
	var msg SMSReceivedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Body == "" {
		return nil, ErrEmptyBody
	}
	return &msg, nil
}
