package amqp

import (
	"encoding/json"
	"time"

	"billstack/internal/core"
)

// PaymentEventMessage carries a payment event to the worker, which re-reads
// the bill from storage before checking it.
type PaymentEventMessage struct {
	Event     core.PaymentEvent `json:"event"`
	Timestamp time.Time         `json:"timestamp"`
}

func NewPaymentEventMessage(ev core.PaymentEvent) *PaymentEventMessage {
	return &PaymentEventMessage{
		Event:     ev,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *PaymentEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PaymentEventMessageFromJSON decodes a message, rejecting ones without a bill.
func PaymentEventMessageFromJSON(data []byte) (*PaymentEventMessage, error) {
	var msg PaymentEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Event.BillID == "" || msg.Event.Type == "" {
		return nil, errMissingFields
	}
	return &msg, nil
}
