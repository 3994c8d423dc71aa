package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/sweepledger/pkg/limits"
	"github.com/MarkoPoloResearchLab/sweepledger/pkg/money"
	"github.com/shopspring/decimal"
)

// Service contains the domain logic over a Store.
type Service struct {
	store      Store
	limits     limits.LedgerLimits
	nowFn      func() time.Time
	logger     OperationLogger
	publisher  EventPublisher
	audit      AuditSink
	customers  CustomerDirectory
	currencies CurrencyValidator
	numbers    AccountNumberGenerator
}

// NewService wires a Service.
func NewService(store Store, ledgerLimits limits.LedgerLimits, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if err := ledgerLimits.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidServiceConfig, err)
	}
	service := &Service{
		store:     store,
		limits:    ledgerLimits,
		nowFn:     now,
		publisher: noopPublisher{},
		audit:     noopAuditSink{},
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// ApplyTransaction credits or debits an account at most once per reference id.
// Replaying a reference id that was already applied returns the current
// account state without re-validating the request.
func (service *Service) ApplyTransaction(ctx context.Context, request TransactionRequest) (AccountSnapshot, error) {
	outcome, err := service.Apply(ctx, request)
	if err != nil {
		return AccountSnapshot{}, err
	}
	return outcome.Account, nil
}

// Apply is ApplyTransaction that also reports the log entry behind the result
// and whether the reference id was a replay. On replay Entry is the entry that
// was applied first, which may differ from request.
func (service *Service) Apply(ctx context.Context, request TransactionRequest) (TransactionOutcome, error) {
	var (
		snapshot AccountSnapshot
		entry    TransactionLogEntry
		applied  *TransactionLogEntry
		replayed bool
	)
	accountID, referenceID, operationError := parseTransactionKeys(request)
	if operationError == nil {
		operationError = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			existing, found, err := transactionStore.FindTransaction(ctx, accountID, referenceID)
			if err != nil {
				return err
			}
			account, err := transactionStore.GetAccount(ctx, accountID)
			if err != nil {
				return err
			}
			if found {
				snapshot = account.Snapshot()
				entry = existing
				replayed = true
				return nil
			}
			evaluated, updated, err := service.evaluate(ctx, transactionStore, account, referenceID, request)
			if err != nil {
				return err
			}
			if err := transactionStore.UpdateAccount(ctx, AccountUpdate{
				AccountID:       updated.ID,
				ExpectedVersion: account.Version,
				Balance:         updated.Balance,
				Status:          updated.Status,
				UpdatedAt:       updated.UpdatedAt,
				DeletedAt:       updated.DeletedAt,
			}); err != nil {
				return err
			}
			if err := transactionStore.InsertTransaction(ctx, evaluated); err != nil {
				return err
			}
			snapshot = updated.Snapshot()
			entry = evaluated
			applied = &evaluated
			return nil
		})
	}
	if errors.Is(operationError, ErrDuplicateReference) {
		// A concurrent request with the same reference committed first; its
		// mutation stands and this attempt was rolled back.
		account, err := service.store.GetAccount(ctx, accountID)
		if err == nil {
			entry, _, err = service.store.FindTransaction(ctx, accountID, referenceID)
		}
		operationError = err
		if err == nil {
			snapshot = account.Snapshot()
			replayed = true
		}
	}

	logEntry := OperationLog{
		Operation:   operationApply,
		AccountID:   request.AccountID,
		ReferenceID: request.ReferenceID,
		Type:        request.Type,
		Amount:      request.Amount.String(),
		Error:       operationError,
	}
	if replayed {
		logEntry.Status = operationStatusReplayed
	}
	service.logOperation(ctx, logEntry)
	if operationError != nil {
		return TransactionOutcome{}, operationError
	}
	if applied != nil {
		service.publisher.PublishAccountUpdated(ctx, snapshot)
		service.audit.LogTransaction(ctx, AuditRecord{
			AccountID:        applied.AccountID,
			ReferenceID:      applied.ReferenceID,
			Type:             applied.Type,
			Amount:           applied.Amount,
			ResultingBalance: applied.ResultingBalance,
			Description:      applied.Description,
			OccurredAt:       applied.CreatedAt,
		})
	}
	return TransactionOutcome{Account: snapshot, Entry: entry, Replayed: replayed}, nil
}

// evaluate runs every business check and returns the log entry and account
// state that applying the request would produce.
func (service *Service) evaluate(ctx context.Context, transactionStore Store, account Account, referenceID ReferenceID, request TransactionRequest) (TransactionLogEntry, Account, error) {
	if account.Status != AccountStatusActive {
		return TransactionLogEntry{}, Account{}, fmt.Errorf("%w: account %s is %s", ErrInvalidStatus, account.ID.String(), account.Status)
	}
	transactionType, err := ParseTransactionType(request.Type.String())
	if err != nil {
		return TransactionLogEntry{}, Account{}, err
	}
	amount, err := normalizeAmount(request.Amount)
	if err != nil {
		return TransactionLogEntry{}, Account{}, err
	}
	if amount > service.limits.MaxTransactionAmount {
		return TransactionLogEntry{}, Account{}, limitViolation(codeMaxTransactionAmount, "amount %s exceeds %s", amount, service.limits.MaxTransactionAmount)
	}

	now := service.nowFn().UTC()
	windowStart, windowEnd := service.limits.DayWindow(now)
	totals, err := transactionStore.SumTransactions(ctx, account.ID, windowStart, windowEnd)
	if err != nil {
		return TransactionLogEntry{}, Account{}, err
	}
	// The count cap is exclusive: the transaction that would bring the day's
	// count to the cap is already rejected.
	if totals.Count+1 >= int64(service.limits.MaxDailyTransactionCount) {
		return TransactionLogEntry{}, Account{}, limitViolation(codeMaxDailyTransactionCount, "daily transaction count would reach %d", service.limits.MaxDailyTransactionCount)
	}
	if totals.Amount.Add(amount) > service.limits.MaxDailyTransactionAmount {
		return TransactionLogEntry{}, Account{}, limitViolation(codeMaxDailyTransactionAmount, "daily amount %s plus %s exceeds %s", totals.Amount, amount, service.limits.MaxDailyTransactionAmount)
	}

	var newBalance money.Amount
	switch transactionType {
	case TransactionDebit:
		if amount > account.Balance {
			return TransactionLogEntry{}, Account{}, WrapError(operationApply, subjectBalance, codeInsufficientFunds,
				fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, account.Balance, amount))
		}
		newBalance = account.Balance.Sub(amount)
	default:
		newBalance = account.Balance.Add(amount)
	}
	if newBalance < service.limits.MinBalance {
		return TransactionLogEntry{}, Account{}, limitViolation(codeMinBalance, "resulting balance %s below %s", newBalance, service.limits.MinBalance)
	}
	if newBalance > service.limits.MaxBalance {
		return TransactionLogEntry{}, Account{}, limitViolation(codeMaxBalance, "resulting balance %s above %s", newBalance, service.limits.MaxBalance)
	}

	updated := account
	updated.Balance = newBalance
	updated.Version = account.Version + 1
	updated.UpdatedAt = now
	entry := TransactionLogEntry{
		AccountID:        account.ID.String(),
		ReferenceID:      referenceID.String(),
		Type:             transactionType,
		Amount:           amount,
		ResultingBalance: newBalance,
		Description:      request.Description,
		CreatedAt:        now,
	}
	return entry, updated, nil
}

// GetBalance returns the current balance without mutating anything.
func (service *Service) GetBalance(ctx context.Context, accountID string) (BalanceSnapshot, error) {
	parsedAccountID, err := NewAccountID(accountID)
	if err != nil {
		return BalanceSnapshot{}, err
	}
	account, err := service.store.GetAccount(ctx, parsedAccountID)
	if err != nil {
		return BalanceSnapshot{}, err
	}
	return BalanceSnapshot{
		AccountID:     account.ID.String(),
		AccountNumber: account.AccountNumber,
		Currency:      account.Currency,
		Status:        account.Status,
		Balance:       account.Balance,
		AsOf:          service.nowFn().UTC(),
	}, nil
}

// GetTransactionHistory pages through applied transactions, newest first.
func (service *Service) GetTransactionHistory(ctx context.Context, accountID string, request PageRequest) (Page[TransactionLogEntry], error) {
	parsedAccountID, err := NewAccountID(accountID)
	if err != nil {
		return Page[TransactionLogEntry]{}, err
	}
	if _, err := service.store.GetAccount(ctx, parsedAccountID); err != nil {
		return Page[TransactionLogEntry]{}, err
	}
	normalized := request.Normalize()
	total, err := service.store.CountTransactions(ctx, parsedAccountID)
	if err != nil {
		return Page[TransactionLogEntry]{}, err
	}
	entries, err := service.store.ListTransactions(ctx, parsedAccountID, normalized.Offset(), normalized.Size)
	if err != nil {
		return Page[TransactionLogEntry]{}, err
	}
	return NewPage(entries, normalized, total), nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func parseTransactionKeys(request TransactionRequest) (AccountID, ReferenceID, error) {
	referenceID, err := NewReferenceID(request.ReferenceID)
	if err != nil {
		return AccountID{}, ReferenceID{}, err
	}
	accountID, err := NewAccountID(request.AccountID)
	if err != nil {
		return AccountID{}, ReferenceID{}, err
	}
	return accountID, referenceID, nil
}

func normalizeAmount(raw decimal.Decimal) (money.Amount, error) {
	amount, err := money.FromDecimal(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return amount, nil
}

func limitViolation(code string, format string, args ...any) error {
	return WrapError(operationApply, subjectLimit, code, fmt.Errorf("%w: "+format, append([]any{ErrLimitViolation}, args...)...))
}
