package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/sweepledger/pkg/money"
	"github.com/shopspring/decimal"
)

// AccountID identifies an account.
type AccountID struct {
	value string
}

// ReferenceID is the caller-supplied idempotency key of a transaction.
type ReferenceID struct {
	value string
}

// NewAccountID validates and normalizes an account id.
func NewAccountID(raw string) (AccountID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AccountID{}, fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	return AccountID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id AccountID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id AccountID) IsZero() bool {
	return id.value == ""
}

// NewReferenceID validates and normalizes an idempotency key.
func NewReferenceID(raw string) (ReferenceID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ReferenceID{}, fmt.Errorf("%w: empty value", ErrInvalidIdempotencyKey)
	}
	return ReferenceID{value: trimmed}, nil
}

// String returns the normalized key.
func (id ReferenceID) String() string {
	return id.value
}

// TransactionType enumerates ledger mutation kinds.
type TransactionType string

const (
	TransactionDebit  TransactionType = "DEBIT"
	TransactionCredit TransactionType = "CREDIT"
)

// ParseTransactionType validates a transaction type.
func ParseTransactionType(raw string) (TransactionType, error) {
	candidate := TransactionType(strings.ToUpper(strings.TrimSpace(raw)))
	switch candidate {
	case TransactionDebit, TransactionCredit:
		return candidate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTransactionType, raw)
	}
}

func (transactionType TransactionType) String() string {
	return string(transactionType)
}

// AccountStatus defines the account lifecycle.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
	AccountStatusClosed    AccountStatus = "CLOSED"
)

// ParseAccountStatus validates an account status.
func ParseAccountStatus(raw string) (AccountStatus, error) {
	candidate := AccountStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch candidate {
	case AccountStatusActive, AccountStatusSuspended, AccountStatusClosed:
		return candidate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAccountStatus, raw)
	}
}

func (status AccountStatus) String() string {
	return string(status)
}

// Account is the balance-bearing record owned by the ledger.
type Account struct {
	ID            AccountID
	AccountNumber string
	CustomerID    string
	Type          string
	Status        AccountStatus
	Currency      string
	Balance       money.Amount
	Version       int64
	OpenedAt      time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// Snapshot returns the externally visible state of the account.
func (account Account) Snapshot() AccountSnapshot {
	return AccountSnapshot{
		AccountID:     account.ID.String(),
		AccountNumber: account.AccountNumber,
		CustomerID:    account.CustomerID,
		Type:          account.Type,
		Status:        account.Status,
		Currency:      account.Currency,
		Balance:       account.Balance,
		Version:       account.Version,
		OpenedAt:      account.OpenedAt,
		UpdatedAt:     account.UpdatedAt,
	}
}

// AccountSnapshot is returned by every mutation.
type AccountSnapshot struct {
	AccountID     string        `json:"account_id"`
	AccountNumber string        `json:"account_number"`
	CustomerID    string        `json:"customer_id"`
	Type          string        `json:"type"`
	Status        AccountStatus `json:"status"`
	Currency      string        `json:"currency"`
	Balance       money.Amount  `json:"balance"`
	Version       int64         `json:"version"`
	OpenedAt      time.Time     `json:"opened_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// BalanceSnapshot is a read-only balance view.
type BalanceSnapshot struct {
	AccountID     string        `json:"account_id"`
	AccountNumber string        `json:"account_number"`
	Currency      string        `json:"currency"`
	Status        AccountStatus `json:"status"`
	Balance       money.Amount  `json:"balance"`
	AsOf          time.Time     `json:"as_of"`
}

// TransactionLogEntry is one immutable applied mutation.
type TransactionLogEntry struct {
	ID               string          `json:"id"`
	AccountID        string          `json:"account_id"`
	ReferenceID      string          `json:"reference_id"`
	Type             TransactionType `json:"type"`
	Amount           money.Amount    `json:"amount"`
	ResultingBalance money.Amount    `json:"resulting_balance"`
	Description      string          `json:"description"`
	CreatedAt        time.Time       `json:"created_at"`
}

// TransactionRequest is the input of ApplyTransaction. Amount is normalized to
// two decimals before any check runs.
type TransactionRequest struct {
	AccountID   string
	ReferenceID string
	Type        TransactionType
	Amount      decimal.Decimal
	Description string
}

// TransactionOutcome is the result of Apply.
type TransactionOutcome struct {
	Account  AccountSnapshot
	Entry    TransactionLogEntry
	Replayed bool
}

// OpenAccountRequest is the input of OpenAccount.
type OpenAccountRequest struct {
	CustomerID string
	Type       string
	Currency   string
}

// AccountUpdate is a version-conditioned write of an account's mutable fields.
type AccountUpdate struct {
	AccountID       AccountID
	ExpectedVersion int64
	Balance         money.Amount
	Status          AccountStatus
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

// DailyTotals summarizes an account's applied transactions inside a window.
type DailyTotals struct {
	Count  int64
	Amount money.Amount
}

// PageRequest selects a zero-based page.
type PageRequest struct {
	Page int
	Size int
}

// Normalize clamps the request to sane bounds.
func (request PageRequest) Normalize() PageRequest {
	normalized := request
	if normalized.Page < 0 {
		normalized.Page = 0
	}
	if normalized.Size <= 0 {
		normalized.Size = defaultPageSize
	}
	if normalized.Size > maxPageSize {
		normalized.Size = maxPageSize
	}
	return normalized
}

// Offset returns the number of rows to skip.
func (request PageRequest) Offset() int {
	return request.Page * request.Size
}

// Page is one page of results with the overall total.
type Page[T any] struct {
	Items         []T   `json:"items"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"total_elements"`
}

// NewPage builds a page from a normalized request.
func NewPage[T any](items []T, request PageRequest, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Page: request.Page, Size: request.Size, TotalElements: total}
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	CreateAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, accountID AccountID) (Account, error)
	UpdateAccount(ctx context.Context, update AccountUpdate) error
	FindTransaction(ctx context.Context, accountID AccountID, referenceID ReferenceID) (TransactionLogEntry, bool, error)
	InsertTransaction(ctx context.Context, entry TransactionLogEntry) error
	SumTransactions(ctx context.Context, accountID AccountID, from time.Time, to time.Time) (DailyTotals, error)
	ListTransactions(ctx context.Context, accountID AccountID, offset int, limit int) ([]TransactionLogEntry, error)
	CountTransactions(ctx context.Context, accountID AccountID) (int64, error)
}
