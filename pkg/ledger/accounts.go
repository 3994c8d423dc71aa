package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/sweepledger/pkg/money"
	"github.com/google/uuid"
)

const defaultAccountType = "SAVINGS"

// OpenAccount creates an ACTIVE account with a zero balance.
func (service *Service) OpenAccount(ctx context.Context, request OpenAccountRequest) (AccountSnapshot, error) {
	snapshot, err := service.openAccount(ctx, request)
	service.logOperation(ctx, OperationLog{
		Operation: operationOpen,
		AccountID: snapshot.AccountID,
		Error:     err,
	})
	if err != nil {
		return AccountSnapshot{}, err
	}
	service.publisher.PublishAccountCreated(ctx, snapshot)
	return snapshot, nil
}

func (service *Service) openAccount(ctx context.Context, request OpenAccountRequest) (AccountSnapshot, error) {
	customerID := strings.TrimSpace(request.CustomerID)
	if customerID == "" {
		return AccountSnapshot{}, fmt.Errorf("%w: empty value", ErrInvalidCustomerID)
	}
	currency := strings.ToUpper(strings.TrimSpace(request.Currency))
	if len(currency) != 3 {
		return AccountSnapshot{}, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, request.Currency)
	}
	accountType := strings.ToUpper(strings.TrimSpace(request.Type))
	if accountType == "" {
		accountType = defaultAccountType
	}
	if service.numbers == nil {
		return AccountSnapshot{}, fmt.Errorf("%w: account number generator is not configured", ErrInvalidServiceConfig)
	}
	if service.customers != nil {
		if err := service.customers.ValidateCustomerExists(ctx, customerID); err != nil {
			return AccountSnapshot{}, err
		}
	}
	if service.currencies != nil {
		if err := service.currencies.ValidateCurrency(ctx, currency); err != nil {
			return AccountSnapshot{}, err
		}
	}

	now := service.nowFn().UTC()
	var lastErr error
	for attempt := 0; attempt < accountNumberAttempts; attempt++ {
		accountNumber, err := service.numbers.Generate(ctx)
		if err != nil {
			return AccountSnapshot{}, err
		}
		account := Account{
			ID:            AccountID{value: uuid.NewString()},
			AccountNumber: accountNumber,
			CustomerID:    customerID,
			Type:          accountType,
			Status:        AccountStatusActive,
			Currency:      currency,
			Balance:       money.Zero,
			Version:       0,
			OpenedAt:      now,
			UpdatedAt:     now,
		}
		err = service.store.CreateAccount(ctx, account)
		if err == nil {
			return account.Snapshot(), nil
		}
		if !errors.Is(err, ErrDuplicateAccountNumber) {
			return AccountSnapshot{}, err
		}
		lastErr = err
	}
	return AccountSnapshot{}, fmt.Errorf("account number generation exhausted after %d attempts: %w", accountNumberAttempts, lastErr)
}

// GetAccount returns the account snapshot, including closed accounts.
func (service *Service) GetAccount(ctx context.Context, accountID string) (AccountSnapshot, error) {
	parsedAccountID, err := NewAccountID(accountID)
	if err != nil {
		return AccountSnapshot{}, err
	}
	account, err := service.store.GetAccount(ctx, parsedAccountID)
	if err != nil {
		return AccountSnapshot{}, err
	}
	return account.Snapshot(), nil
}

// SuspendAccount moves an ACTIVE account to SUSPENDED.
func (service *Service) SuspendAccount(ctx context.Context, accountID string) (AccountSnapshot, error) {
	return service.transition(ctx, operationSuspend, accountID, func(account Account) (Account, error) {
		if account.Status != AccountStatusActive {
			return Account{}, statusTransitionError(operationSuspend, account, AccountStatusSuspended)
		}
		account.Status = AccountStatusSuspended
		return account, nil
	})
}

// ReactivateAccount moves a SUSPENDED account back to ACTIVE.
func (service *Service) ReactivateAccount(ctx context.Context, accountID string) (AccountSnapshot, error) {
	return service.transition(ctx, operationReactivate, accountID, func(account Account) (Account, error) {
		if account.Status != AccountStatusSuspended {
			return Account{}, statusTransitionError(operationReactivate, account, AccountStatusActive)
		}
		account.Status = AccountStatusActive
		return account, nil
	})
}

// CloseAccount closes and soft-deletes an account whose balance is zero.
func (service *Service) CloseAccount(ctx context.Context, accountID string) (AccountSnapshot, error) {
	return service.transition(ctx, operationClose, accountID, func(account Account) (Account, error) {
		if account.Status == AccountStatusClosed {
			return Account{}, statusTransitionError(operationClose, account, AccountStatusClosed)
		}
		if account.Balance != money.Zero {
			return Account{}, WrapError(operationClose, subjectBalance, codeNonZeroBalance,
				fmt.Errorf("%w: balance %s must be zero to close", ErrInvalidStatus, account.Balance))
		}
		closedAt := service.nowFn().UTC()
		account.Status = AccountStatusClosed
		account.DeletedAt = &closedAt
		return account, nil
	})
}

func (service *Service) transition(ctx context.Context, operation string, accountID string, mutate func(Account) (Account, error)) (AccountSnapshot, error) {
	var snapshot AccountSnapshot
	parsedAccountID, err := NewAccountID(accountID)
	if err == nil {
		err = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			account, err := transactionStore.GetAccount(ctx, parsedAccountID)
			if err != nil {
				return err
			}
			updated, err := mutate(account)
			if err != nil {
				return err
			}
			updated.Version = account.Version + 1
			updated.UpdatedAt = service.nowFn().UTC()
			if err := transactionStore.UpdateAccount(ctx, AccountUpdate{
				AccountID:       account.ID,
				ExpectedVersion: account.Version,
				Balance:         updated.Balance,
				Status:          updated.Status,
				UpdatedAt:       updated.UpdatedAt,
				DeletedAt:       updated.DeletedAt,
			}); err != nil {
				return err
			}
			snapshot = updated.Snapshot()
			return nil
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation: operation,
		AccountID: accountID,
		Error:     err,
	})
	if err != nil {
		return AccountSnapshot{}, err
	}
	service.publisher.PublishAccountUpdated(ctx, snapshot)
	return snapshot, nil
}

func statusTransitionError(operation string, account Account, target AccountStatus) error {
	return WrapError(operation, subjectAccount, codeStatusTransition,
		fmt.Errorf("%w: cannot move account %s from %s to %s", ErrInvalidStatus, account.ID.String(), account.Status, target))
}
