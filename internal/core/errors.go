package core

import "errors"

var (
	ErrAccountNotFound           = errors.New("account not found")
	ErrTransactionNotFound       = errors.New("transaction not found")
	ErrBillNotFound              = errors.New("bill not found")
	ErrDuplicatePaymentForPeriod = errors.New("bill already paid for this period")
	ErrNoResolvableAccount       = errors.New("no account available for payment")
	ErrInstallmentsComplete      = errors.New("all EMI installments already paid")
	ErrBillPayment               = errors.New("transaction belongs to a bill payment; undo the payment instead")
	ErrPersistence               = errors.New("persistence failure")
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyName        = errors.New("empty name")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyAccount     = errors.New("transaction must reference an account")
	ErrInvalidType      = errors.New("invalid type")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrInvalidReminder  = errors.New("invalid reminder offset")
	ErrInvalidEMI       = errors.New("invalid EMI installments")
	ErrFieldTooLong     = errors.New("field too long")
)

// IsValidation reports whether err is one of the input validation errors.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidDay, ErrInvalidMonth, ErrInvalidAmount, ErrEmptyName,
		ErrEmptyCategory, ErrEmptyAccount, ErrInvalidType, ErrInvalidFrequency,
		ErrInvalidStatus, ErrInvalidReminder, ErrInvalidEMI, ErrFieldTooLong,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err refers to a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrBillNotFound)
}
