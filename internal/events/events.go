// Package events delivers account domain events to external consumers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MarkoPoloResearchLab/sweepledger/pkg/ledger"
	"go.uber.org/zap"
)

const (
	EventAccountCreated = "account.created"
	EventAccountUpdated = "account.updated"
)

// Envelope is the wire shape of every published event.
type Envelope struct {
	Type       string                 `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Account    ledger.AccountSnapshot `json:"account"`
}

func newEnvelope(eventType string, account ledger.AccountSnapshot, now func() time.Time) Envelope {
	occurredAt := account.UpdatedAt
	if now != nil {
		occurredAt = now()
	}
	return Envelope{Type: eventType, OccurredAt: occurredAt.UTC(), Account: account}
}

func encode(envelope Envelope) (string, error) {
	body, err := json.Marshal(envelope)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func logFailure(logger *zap.Logger, transport string, envelope Envelope, err error) {
	logger.Warn("event publish failed",
		zap.String("transport", transport),
		zap.String("event_type", envelope.Type),
		zap.String("account_id", envelope.Account.AccountID),
		zap.Error(err),
	)
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// LogPublisher writes every event to a zap logger.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher builds a LogPublisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: loggerOrNop(logger)}
}

func (publisher *LogPublisher) PublishAccountCreated(ctx context.Context, account ledger.AccountSnapshot) {
	publisher.log(EventAccountCreated, account)
}

func (publisher *LogPublisher) PublishAccountUpdated(ctx context.Context, account ledger.AccountSnapshot) {
	publisher.log(EventAccountUpdated, account)
}

func (publisher *LogPublisher) log(eventType string, account ledger.AccountSnapshot) {
	publisher.logger.Info("account event",
		zap.String("event_type", eventType),
		zap.String("account_id", account.AccountID),
		zap.String("status", account.Status.String()),
		zap.String("balance", account.Balance.String()),
		zap.Int64("version", account.Version),
	)
}

// Fanout delivers each event to every wrapped publisher in order.
type Fanout []ledger.EventPublisher

func (fanout Fanout) PublishAccountCreated(ctx context.Context, account ledger.AccountSnapshot) {
	for _, publisher := range fanout {
		publisher.PublishAccountCreated(ctx, account)
	}
}

func (fanout Fanout) PublishAccountUpdated(ctx context.Context, account ledger.AccountSnapshot) {
	for _, publisher := range fanout {
		publisher.PublishAccountUpdated(ctx, account)
	}
}

var (
	_ ledger.EventPublisher = (*LogPublisher)(nil)
	_ ledger.EventPublisher = Fanout(nil)
)
