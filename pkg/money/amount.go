// Package money carries fixed-point currency amounts with two decimal places.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// Scale is the number of decimal places every Amount carries.
	Scale = 2

	jsonNull = "null"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrAmountRange   = errors.New("amount out of range")
)

// Amount is a currency value in minor units (cents).
type Amount int64

// Zero is the zero amount.
const Zero Amount = 0

// FromCents wraps a raw minor-unit value.
func FromCents(cents int64) Amount {
	return Amount(cents)
}

// FromDecimal normalizes value to two decimal places, rounding half away from zero.
func FromDecimal(value decimal.Decimal) (Amount, error) {
	scaled := value.Round(Scale).Shift(Scale)
	integral := scaled.BigInt()
	if !integral.IsInt64() {
		return 0, fmt.Errorf("%w: %s", ErrAmountRange, value.String())
	}
	return Amount(integral.Int64()), nil
}

// Parse reads a decimal string such as "100.25" and normalizes it.
func Parse(raw string) (Amount, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidAmount)
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return FromDecimal(value)
}

// MustParse is Parse for constants and tests.
func MustParse(raw string) Amount {
	amount, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return amount
}

// Cents returns the minor-unit value.
func (amount Amount) Cents() int64 {
	return int64(amount)
}

// Decimal returns the amount as a decimal with two places.
func (amount Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(amount), -Scale)
}

// String formats the amount with exactly two decimals.
func (amount Amount) String() string {
	return amount.Decimal().StringFixed(Scale)
}

func (amount Amount) IsPositive() bool {
	return amount > 0
}

func (amount Amount) IsNegative() bool {
	return amount < 0
}

// Add returns amount + other.
func (amount Amount) Add(other Amount) Amount {
	return amount + other
}

// Sub returns amount - other.
func (amount Amount) Sub(other Amount) Amount {
	return amount - other
}

// Min returns the smallest of the given amounts.
func Min(first Amount, rest ...Amount) Amount {
	smallest := first
	for _, candidate := range rest {
		if candidate < smallest {
			smallest = candidate
		}
	}
	return smallest
}

// MarshalJSON encodes the amount as a quoted decimal string.
func (amount Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(amount.String())
}

// UnmarshalJSON accepts either a quoted decimal string or a bare JSON number.
func (amount *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == jsonNull {
		return nil
	}
	raw = strings.Trim(raw, `"`)
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*amount = parsed
	return nil
}
