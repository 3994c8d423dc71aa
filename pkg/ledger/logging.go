package ledger

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing ledger operation.
type OperationLog struct {
	Operation   string
	AccountID   string
	ReferenceID string
	Type        TransactionType
	Amount      string
	Status      string
	Error       error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithEventPublisher wires the account event sink.
func WithEventPublisher(publisher EventPublisher) ServiceOption {
	return func(service *Service) {
		if publisher != nil {
			service.publisher = publisher
		}
	}
}

// WithAuditSink wires the transaction audit sink.
func WithAuditSink(sink AuditSink) ServiceOption {
	return func(service *Service) {
		if sink != nil {
			service.audit = sink
		}
	}
}

// WithCustomerDirectory wires the customer-existence check used by OpenAccount.
func WithCustomerDirectory(directory CustomerDirectory) ServiceOption {
	return func(service *Service) {
		service.customers = directory
	}
}

// WithCurrencyValidator wires the currency check used by OpenAccount.
func WithCurrencyValidator(validator CurrencyValidator) ServiceOption {
	return func(service *Service) {
		service.currencies = validator
	}
}

// WithAccountNumberGenerator wires the display-number generator used by OpenAccount.
func WithAccountNumberGenerator(generator AccountNumberGenerator) ServiceOption {
	return func(service *Service) {
		service.numbers = generator
	}
}
