// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"net/mail"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrMissing возвращается для пустого значения.
	ErrMissing = errors.New("value is required")
	// ErrInvalidID возвращается, если идентификатор не является положительным целым числом.
	ErrInvalidID = errors.New("identifier must be a positive integer")
	// ErrInvalidAmount возвращается для неположительной суммы или суммы с долями меньше копейки.
	ErrInvalidAmount = errors.New("amount must be a positive number with at most two decimal places")
)

// ParseID разбирает идентификатор записи из строки запроса.
func ParseID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrMissing
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}

	return id, nil
}

// IsValidEmail проверяет, что строка является одиночным адресом электронной почты без отображаемого имени.
func IsValidEmail(email string) bool {
	if email == "" || strings.TrimSpace(email) != email {
		return false
	}

	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}

	return addr.Address == email && addr.Name == ""
}

// amountScale соответствует NUMERIC(15, 2) в схеме базы данных.
const amountScale = 2

// IsPositiveAmount проверяет, что сумма строго больше нуля и хранится в базе без округления.
func IsPositiveAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Truncate(amountScale))
}

// ValidateAmount возвращает ErrInvalidAmount, если сумма не проходит IsPositiveAmount.
func ValidateAmount(amount decimal.Decimal) error {
	if !IsPositiveAmount(amount) {
		return ErrInvalidAmount
	}
	return nil
}
