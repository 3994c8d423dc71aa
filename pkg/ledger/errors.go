package ledger

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the ledger service.
var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidStatus          = errors.New("invalid status")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrLimitViolation         = errors.New("limit violation")
	ErrInvalidIdempotencyKey  = errors.New("invalid idempotency key")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrConcurrentUpdate       = errors.New("concurrent update")
	ErrDuplicateReference     = errors.New("duplicate reference id")
	ErrDuplicateAccountNumber = errors.New("duplicate account number")
	ErrInvalidAccountID       = errors.New("invalid account id")
	ErrInvalidCustomerID      = errors.New("invalid customer id")
	ErrUnsupportedCurrency    = errors.New("unsupported currency")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrInvalidAccountStatus   = errors.New("invalid account status")
	ErrInvalidServiceConfig   = errors.New("invalid service config")
)

// IsRetryable reports whether err is an optimistic-concurrency loss that the
// caller may resolve by re-reading and resubmitting.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate)
}

// IsBusinessRejection reports whether err is a terminal rejection of the request itself.
func IsBusinessRejection(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrLimitViolation) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidIdempotencyKey) ||
		errors.Is(err, ErrInvalidAmount)
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// ErrorCode returns the code of the outermost OperationError in err's chain.
func ErrorCode(err error) (string, bool) {
	var operationError OperationError
	if errors.As(err, &operationError) {
		return operationError.Code(), true
	}
	return "", false
}
