package core

import "time"

// Payment event types.
const (
	EventBillPaid          = "bill.paid"
	EventBillPaymentUndone = "bill.payment_undone"
)

// PaymentEvent announces a completed payment or undo.
type PaymentEvent struct {
	Type          string    `json:"type"`
	BillID        string    `json:"billId"`
	TransactionID string    `json:"transactionId"`
	AccountID     string    `json:"accountId,omitempty"`
	Year          int       `json:"year"`
	Month         int       `json:"month"`
	Amount        Money     `json:"amount"`
	OccurredAt    time.Time `json:"occurredAt"`
}
