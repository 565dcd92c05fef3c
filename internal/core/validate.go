package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// fieldErrors maps struct fields to the sentinel reported when their tag fails.
var fieldErrors = map[string]error{
	"Name":          ErrEmptyName,
	"Category":      ErrEmptyCategory,
	"AccountID":     ErrEmptyAccount,
	"Type":          ErrInvalidType,
	"DueDay":        ErrInvalidDay,
	"ReminderDays":  ErrInvalidReminder,
	"Frequency":     ErrInvalidFrequency,
	"Status":        ErrInvalidStatus,
	"EMITenure":     ErrInvalidEMI,
	"EMIPaid":       ErrInvalidEMI,
	"Description":   ErrFieldTooLong,
	"BankName":      ErrFieldTooLong,
	"AccountNumber": ErrFieldTooLong,
}

func structError(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	sentinel, ok := fieldErrors[fe.StructField()]
	if !ok {
		return fmt.Errorf("invalid %s: %s", fe.Field(), fe.Tag())
	}
	if fe.Tag() == "max" && sentinel != ErrInvalidDay && sentinel != ErrInvalidReminder {
		sentinel = ErrFieldTooLong
	}
	return fmt.Errorf("%w: %s", sentinel, fe.Field())
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	return structError(a)
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(t.AccountID) == "" {
		return ErrEmptyAccount
	}
	if err := structError(t); err != nil {
		return err
	}
	return t.Amount.Validate()
}

func (b Bill) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyCategory
	}
	if err := structError(b); err != nil {
		return err
	}
	if err := b.Amount.Validate(); err != nil {
		return err
	}
	if b.IsEMI {
		if b.EMITenure < 1 || b.EMIPaid > b.EMITenure {
			return ErrInvalidEMI
		}
	} else if b.EMITenure != 0 || b.EMIPaid != 0 {
		return ErrInvalidEMI
	}
	return nil
}
