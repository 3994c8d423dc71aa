package ledger

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/sweepledger/pkg/money"
)

// EventPublisher emits account domain events. Delivery is fire-and-forget:
// implementations handle and log their own failures.
type EventPublisher interface {
	PublishAccountCreated(ctx context.Context, account AccountSnapshot)
	PublishAccountUpdated(ctx context.Context, account AccountSnapshot)
}

// AuditRecord describes one applied transaction for the audit trail.
type AuditRecord struct {
	AccountID        string
	ReferenceID      string
	Type             TransactionType
	Amount           money.Amount
	ResultingBalance money.Amount
	Description      string
	OccurredAt       time.Time
}

// AuditSink receives a record for every applied transaction. Best effort.
type AuditSink interface {
	LogTransaction(ctx context.Context, record AuditRecord)
}

// CustomerDirectory answers whether a customer exists. Implementations return
// an error wrapping ErrNotFound for unknown customers.
type CustomerDirectory interface {
	ValidateCustomerExists(ctx context.Context, customerID string) error
}

// CurrencyValidator rejects unsupported currency codes with ErrUnsupportedCurrency.
type CurrencyValidator interface {
	ValidateCurrency(ctx context.Context, code string) error
}

// AccountNumberGenerator produces unique display numbers.
type AccountNumberGenerator interface {
	Generate(ctx context.Context) (string, error)
}

type noopPublisher struct{}

func (noopPublisher) PublishAccountCreated(context.Context, AccountSnapshot) {}

func (noopPublisher) PublishAccountUpdated(context.Context, AccountSnapshot) {}

type noopAuditSink struct{}

func (noopAuditSink) LogTransaction(context.Context, AuditRecord) {}
