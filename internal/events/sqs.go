package events

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/sweepledger/pkg/ledger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"
)

const (
	transportSQS           = "sqs"
	attributeEventType     = "event_type"
	attributeDataTypeValue = "String"
)

// SQSAPI is the part of the SQS client the publisher needs.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends every event as a JSON message to one queue.
type SQSPublisher struct {
	client   SQSAPI
	queueURL string
	logger   *zap.Logger
	now      func() time.Time
}

// NewSQSPublisher builds an SQSPublisher.
func NewSQSPublisher(client SQSAPI, queueURL string, logger *zap.Logger, now func() time.Time) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: queueURL, logger: loggerOrNop(logger), now: now}
}

func (publisher *SQSPublisher) PublishAccountCreated(ctx context.Context, account ledger.AccountSnapshot) {
	publisher.send(ctx, newEnvelope(EventAccountCreated, account, publisher.now))
}

func (publisher *SQSPublisher) PublishAccountUpdated(ctx context.Context, account ledger.AccountSnapshot) {
	publisher.send(ctx, newEnvelope(EventAccountUpdated, account, publisher.now))
}

func (publisher *SQSPublisher) send(ctx context.Context, envelope Envelope) {
	body, err := encode(envelope)
	if err != nil {
		logFailure(publisher.logger, transportSQS, envelope, err)
		return
	}
	_, err = publisher.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(publisher.queueURL),
		MessageBody: aws.String(body),
		MessageAttributes: map[string]types.MessageAttributeValue{
			attributeEventType: {
				DataType:    aws.String(attributeDataTypeValue),
				StringValue: aws.String(envelope.Type),
			},
		},
	})
	if err != nil {
		logFailure(publisher.logger, transportSQS, envelope, err)
	}
}

var _ ledger.EventPublisher = (*SQSPublisher)(nil)
