// Package collaborators provides the account-opening dependencies the ledger
// consults: currency validation, customer lookup and account numbers.
package collaborators

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/sweepledger/pkg/ledger"
	"github.com/google/uuid"
	"golang.org/x/text/currency"
)

const (
	accountNumberDigits  = 12
	accountNumberModulus = 1_000_000_000_000
)

// ISOCurrencyValidator accepts ISO 4217 codes, optionally restricted to an
// allow-list.
type ISOCurrencyValidator struct {
	allowed map[string]struct{}
}

// NewISOCurrencyValidator builds a validator. An empty allow-list accepts every
// ISO 4217 code.
func NewISOCurrencyValidator(allowed ...string) (*ISOCurrencyValidator, error) {
	validator := &ISOCurrencyValidator{}
	for _, code := range allowed {
		unit, err := currency.ParseISO(strings.TrimSpace(code))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ledger.ErrUnsupportedCurrency, code)
		}
		if validator.allowed == nil {
			validator.allowed = map[string]struct{}{}
		}
		validator.allowed[unit.String()] = struct{}{}
	}
	return validator, nil
}

func (validator *ISOCurrencyValidator) ValidateCurrency(ctx context.Context, code string) error {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return fmt.Errorf("%w: %q", ledger.ErrUnsupportedCurrency, code)
	}
	if validator.allowed == nil {
		return nil
	}
	if _, ok := validator.allowed[unit.String()]; !ok {
		return fmt.Errorf("%w: %s is not enabled", ledger.ErrUnsupportedCurrency, unit.String())
	}
	return nil
}

// StaticCustomerDirectory answers customer existence from a fixed set. A
// directory built without ids accepts every customer.
type StaticCustomerDirectory struct {
	known map[string]struct{}
}

// NewStaticCustomerDirectory builds a directory over customerIDs.
func NewStaticCustomerDirectory(customerIDs ...string) *StaticCustomerDirectory {
	directory := &StaticCustomerDirectory{}
	for _, customerID := range customerIDs {
		trimmed := strings.TrimSpace(customerID)
		if trimmed == "" {
			continue
		}
		if directory.known == nil {
			directory.known = map[string]struct{}{}
		}
		directory.known[trimmed] = struct{}{}
	}
	return directory
}

func (directory *StaticCustomerDirectory) ValidateCustomerExists(ctx context.Context, customerID string) error {
	if directory.known == nil {
		return nil
	}
	if _, ok := directory.known[strings.TrimSpace(customerID)]; !ok {
		return fmt.Errorf("%w: customer %s", ledger.ErrNotFound, customerID)
	}
	return nil
}

// UUIDAccountNumberGenerator derives 12-digit display numbers from random
// UUIDs. Collisions are possible; the ledger retries on a duplicate number.
type UUIDAccountNumberGenerator struct {
	newUUID func() (uuid.UUID, error)
}

// NewUUIDAccountNumberGenerator builds a generator on uuid.NewRandom.
func NewUUIDAccountNumberGenerator() *UUIDAccountNumberGenerator {
	return &UUIDAccountNumberGenerator{newUUID: uuid.NewRandom}
}

func (generator *UUIDAccountNumberGenerator) Generate(ctx context.Context) (string, error) {
	value, err := generator.newUUID()
	if err != nil {
		return "", fmt.Errorf("generate account number: %w", err)
	}
	number := binary.BigEndian.Uint64(value[:8]) % accountNumberModulus
	return fmt.Sprintf("%0*d", accountNumberDigits, number), nil
}

var (
	_ ledger.CurrencyValidator      = (*ISOCurrencyValidator)(nil)
	_ ledger.CustomerDirectory      = (*StaticCustomerDirectory)(nil)
	_ ledger.AccountNumberGenerator = (*UUIDAccountNumberGenerator)(nil)
)
