package events

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/sweepledger/pkg/ledger"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	transportRedis    = "redis"
	fieldEventType    = "type"
	fieldEventPayload = "payload"
)

// RedisStreamPublisher appends every event to one Redis stream.
type RedisStreamPublisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
	logger *zap.Logger
	now    func() time.Time
}

// NewRedisStreamPublisher builds a RedisStreamPublisher. A positive maxLen
// trims the stream approximately to that length on every append.
func NewRedisStreamPublisher(client redis.Cmdable, stream string, maxLen int64, logger *zap.Logger, now func() time.Time) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: maxLen, logger: loggerOrNop(logger), now: now}
}

func (publisher *RedisStreamPublisher) PublishAccountCreated(ctx context.Context, account ledger.AccountSnapshot) {
	publisher.append(ctx, newEnvelope(EventAccountCreated, account, publisher.now))
}

func (publisher *RedisStreamPublisher) PublishAccountUpdated(ctx context.Context, account ledger.AccountSnapshot) {
	publisher.append(ctx, newEnvelope(EventAccountUpdated, account, publisher.now))
}

func (publisher *RedisStreamPublisher) append(ctx context.Context, envelope Envelope) {
	body, err := encode(envelope)
	if err != nil {
		logFailure(publisher.logger, transportRedis, envelope, err)
		return
	}
	if err := publisher.client.XAdd(ctx, publisher.xAddArgs(envelope.Type, body)).Err(); err != nil {
		logFailure(publisher.logger, transportRedis, envelope, err)
	}
}

func (publisher *RedisStreamPublisher) xAddArgs(eventType string, body string) *redis.XAddArgs {
	args := &redis.XAddArgs{
		Stream: publisher.stream,
		Values: []interface{}{fieldEventType, eventType, fieldEventPayload, body},
	}
	if publisher.maxLen > 0 {
		args.MaxLen = publisher.maxLen
		args.Approx = true
	}
	return args
}

var _ ledger.EventPublisher = (*RedisStreamPublisher)(nil)
