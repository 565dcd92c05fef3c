package core

import (
	"slices"
	"time"
)

const (
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
	OneTime   Frequency = "one-time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	Bank       AccountType = "bank"
	Cash       AccountType = "cash"
	CreditCard AccountType = "credit_card"
	Wallet     AccountType = "wallet"
)

const (
	StatusPending BillStatus = "pending"
	StatusPaid    BillStatus = "paid"
	StatusOverdue BillStatus = "overdue"
)

const (
	Add      Direction = "add"
	Subtract Direction = "subtract"
)

type (
	Frequency       string
	TransactionType string
	AccountType     string
	BillStatus      string

	// Direction tells the ledger whether a delta widens or narrows a balance.
	Direction string

	Account struct {
		ID             string      `json:"id"`
		Name           string      `json:"name" validate:"required,max=100"`
		Type           AccountType `json:"type" validate:"oneof=bank cash credit_card wallet"`
		Balance        Money       `json:"balance"`
		OpeningBalance Money       `json:"openingBalance"`
		BankName       string      `json:"bankName,omitempty" validate:"max=100"`
		AccountNumber  string      `json:"accountNumber,omitempty" validate:"max=34"`
		IsDefault      bool        `json:"isDefault"`
		CreatedAt      time.Time   `json:"createdAt"`
	}

	Transaction struct {
		ID          string          `json:"id"`
		Type        TransactionType `json:"type" validate:"oneof=income expense"`
		Amount      Money           `json:"amount"`
		Category    string          `json:"category" validate:"required,max=100"`
		AccountID   string          `json:"accountId" validate:"required"`
		AccountName string          `json:"accountName"` // snapshot at creation
		BankName    string          `json:"bankName"`    // snapshot at creation
		Description string          `json:"description" validate:"max=200"`
		Date        time.Time       `json:"date"`
		IsManual    bool            `json:"isManual"`
		BillID      string          `json:"billId,omitempty"`
	}

	// TransactionPatch carries the fields of a user edit. Nil means unchanged.
	TransactionPatch struct {
		Type        *TransactionType
		Amount      *Money
		Category    *string
		AccountID   *string
		AccountName *string
		BankName    *string
		Description *string
		Date        *time.Time
	}

	PaymentRecord struct {
		PaidAt        time.Time `json:"paidAt"`
		Amount        Money     `json:"amount"`
		Year          int       `json:"year"`
		Month         int       `json:"month"` // 0-11
		TransactionID string    `json:"transactionId,omitempty"`
	}

	Bill struct {
		ID           string          `json:"id"`
		Name         string          `json:"name" validate:"required,max=100"`
		Category     string          `json:"category" validate:"required,max=100"`
		Amount       Money           `json:"amount"`
		DueDay       int             `json:"dueDate" validate:"min=1,max=31"`
		ReminderDays int             `json:"reminderDate" validate:"min=0,max=31"`
		Frequency    Frequency       `json:"frequency" validate:"oneof=monthly quarterly yearly one-time"`
		AccountID    string          `json:"accountId,omitempty"`
		IsEMI        bool            `json:"isEMI"`
		EMITenure    int             `json:"emiTenure,omitempty" validate:"min=0"`
		EMIPaid      int             `json:"emiPaid,omitempty" validate:"min=0"`
		Status       BillStatus      `json:"status" validate:"oneof=pending paid overdue"`
		Payments     []PaymentRecord `json:"payments,omitempty"`
		LastPaidAt   *time.Time      `json:"lastPaidDate,omitempty"`
		CreatedAt    time.Time       `json:"createdAt"`
	}

	// AmountOverride replaces a bill's nominal amount for a single month.
	AmountOverride struct {
		BillID string `json:"billId"`
		Year   int    `json:"year"`
		Month  int    `json:"month"`
		Amount Money  `json:"amount"`
	}

	// PaymentReceipt holds everything needed to undo a payment.
	PaymentReceipt struct {
		TransactionID string `json:"transactionId"`
		BillID        string `json:"billId"`
		Year          int    `json:"year"`
		Month         int    `json:"month"`
		AccountID     string `json:"accountId,omitempty"`
		Amount        Money  `json:"amount"`
	}

	// UndoRequest mirrors a PaymentReceipt. AccountID and Amount are optional;
	// the balance is only restored when both are set.
	UndoRequest struct {
		TransactionID string `json:"transactionId"`
		BillID        string `json:"billId"`
		Year          int    `json:"year"`
		Month         int    `json:"month"`
		AccountID     string `json:"accountId,omitempty"`
		Amount        *Money `json:"amount,omitempty"`
	}
)

// Undo converts a receipt into the request that reverses it.
func (r PaymentReceipt) Undo() UndoRequest {
	amount := r.Amount
	return UndoRequest{
		TransactionID: r.TransactionID,
		BillID:        r.BillID,
		Year:          r.Year,
		Month:         r.Month,
		AccountID:     r.AccountID,
		Amount:        &amount,
	}
}

// Direction returns the ledger direction the transaction applies with.
func (t Transaction) Direction() Direction {
	if t.Type == Income {
		return Add
	}
	return Subtract
}

// Effect is the signed change the transaction makes to its account.
func (t Transaction) Effect() Money {
	if t.Type == Income {
		return t.Amount
	}
	return t.Amount.Neg()
}

// Apply returns a copy of t with the patch fields set.
func (p TransactionPatch) Apply(t Transaction) Transaction {
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.AccountID != nil {
		t.AccountID = *p.AccountID
	}
	if p.AccountName != nil {
		t.AccountName = *p.AccountName
	}
	if p.BankName != nil {
		t.BankName = *p.BankName
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	return t
}

// Invert returns the opposite direction.
func (d Direction) Invert() Direction {
	if d == Add {
		return Subtract
	}
	return Add
}

// Signed applies the direction to a non-negative amount.
func (d Direction) Signed(m Money) Money {
	if d == Subtract {
		return m.Neg()
	}
	return m
}

// IsRecurring reports whether the bill repeats.
func (b Bill) IsRecurring() bool {
	return b.Frequency != OneTime
}

// PaymentFor returns the record for the given period, if any.
func (b Bill) PaymentFor(p Period) (PaymentRecord, bool) {
	for _, rec := range b.Payments {
		if rec.Year == p.Year && rec.Month == p.Month {
			return rec, true
		}
	}
	return PaymentRecord{}, false
}

// IsPaidFor reports whether a payment record exists for the period.
func (b Bill) IsPaidFor(p Period) bool {
	_, ok := b.PaymentFor(p)
	return ok
}

// InstallmentsComplete reports whether an EMI bill has no installments left.
func (b Bill) InstallmentsComplete() bool {
	return b.IsEMI && b.EMIPaid >= b.EMITenure
}

// Clone returns a copy that does not share the payments slice.
func (b Bill) Clone() Bill {
	b.Payments = slices.Clone(b.Payments)
	if b.LastPaidAt != nil {
		t := *b.LastPaidAt
		b.LastPaidAt = &t
	}
	return b
}

// RefreshLastPaid sets LastPaidAt from the last payment record.
func (b *Bill) RefreshLastPaid() {
	if len(b.Payments) == 0 {
		b.LastPaidAt = nil
		return
	}
	t := b.Payments[len(b.Payments)-1].PaidAt
	b.LastPaidAt = &t
}
