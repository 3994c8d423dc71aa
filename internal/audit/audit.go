// Package audit routes ledger operation logs and the transaction audit trail
// into zap.
package audit

import (
	"context"

	"github.com/MarkoPoloResearchLab/sweepledger/pkg/ledger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	auditLoggerName     = "audit"
	operationLoggerName = "ledger"
)

// ZapAuditSink writes one structured entry per applied transaction.
type ZapAuditSink struct {
	logger *zap.Logger
}

// NewZapAuditSink builds a ZapAuditSink on a named child of logger.
func NewZapAuditSink(logger *zap.Logger) *ZapAuditSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapAuditSink{logger: logger.Named(auditLoggerName)}
}

func (sink *ZapAuditSink) LogTransaction(ctx context.Context, record ledger.AuditRecord) {
	sink.logger.Info("transaction applied",
		zap.String("account_id", record.AccountID),
		zap.String("reference_id", record.ReferenceID),
		zap.String("type", record.Type.String()),
		zap.String("amount", record.Amount.String()),
		zap.String("resulting_balance", record.ResultingBalance.String()),
		zap.String("description", record.Description),
		zap.Time("occurred_at", record.OccurredAt),
	)
}

// ZapOperationLogger logs every ledger operation. Failed operations are logged
// at warn level with their stable error code when one is known.
type ZapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger builds a ZapOperationLogger on a named child of logger.
func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapOperationLogger{logger: logger.Named(operationLoggerName)}
}

func (operationLogger *ZapOperationLogger) LogOperation(ctx context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
		zap.String("account_id", entry.AccountID),
	}
	if entry.ReferenceID != "" {
		fields = append(fields, zap.String("reference_id", entry.ReferenceID))
	}
	if entry.Type != "" {
		fields = append(fields, zap.String("type", entry.Type.String()))
	}
	if entry.Amount != "" {
		fields = append(fields, zap.String("amount", entry.Amount))
	}
	level := zapcore.InfoLevel
	if entry.Error != nil {
		level = zapcore.WarnLevel
		if code, ok := ledger.ErrorCode(entry.Error); ok {
			fields = append(fields, zap.String("code", code))
		}
		fields = append(fields, zap.Bool("retryable", ledger.IsRetryable(entry.Error)), zap.Error(entry.Error))
	}
	if checked := operationLogger.logger.Check(level, "ledger operation"); checked != nil {
		checked.Write(fields...)
	}
}

var (
	_ ledger.AuditSink       = (*ZapAuditSink)(nil)
	_ ledger.OperationLogger = (*ZapOperationLogger)(nil)
)
