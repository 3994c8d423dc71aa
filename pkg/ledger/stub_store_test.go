package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/sweepledger/pkg/limits"
	"github.com/MarkoPoloResearchLab/sweepledger/pkg/money"
	"github.com/shopspring/decimal"
)

const testAccountIDValue = "acct-1"

var testNow = time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC)

// stubStore keeps committed state; stubTx buffers writes until WithTx commits.
type stubStore struct {
	mu           sync.Mutex
	accounts     map[string]Account
	entries      []TransactionLogEntry
	createErrs   []error
	beforeUpdate func(store *stubStore)
	beforeInsert func(store *stubStore)
	nextEntryID  int
	commits      int
}

func newStubStore(test *testing.T, balance string) *stubStore {
	test.Helper()
	store := &stubStore{accounts: map[string]Account{}}
	store.accounts[testAccountIDValue] = Account{
		ID:            mustAccountID(test, testAccountIDValue),
		AccountNumber: "000000000001",
		CustomerID:    "customer-1",
		Type:          defaultAccountType,
		Status:        AccountStatusActive,
		Currency:      "USD",
		Balance:       mustAmount(test, balance),
		OpenedAt:      testNow.Add(-24 * time.Hour),
		UpdatedAt:     testNow.Add(-24 * time.Hour),
	}
	return store
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	transaction := &stubTx{base: store, accounts: map[string]Account{}}
	if err := fn(ctx, transaction); err != nil {
		return err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	for accountID, account := range transaction.accounts {
		store.accounts[accountID] = account
	}
	store.entries = append(store.entries, transaction.entries...)
	store.commits++
	return nil
}

func (store *stubStore) CreateAccount(ctx context.Context, account Account) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.createErrs) > 0 {
		err := store.createErrs[0]
		store.createErrs = store.createErrs[1:]
		if err != nil {
			return err
		}
	}
	store.accounts[account.ID.String()] = account
	return nil
}

func (store *stubStore) GetAccount(ctx context.Context, accountID AccountID) (Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	account, ok := store.accounts[accountID.String()]
	if !ok {
		return Account{}, fmt.Errorf("%w: account %s", ErrNotFound, accountID.String())
	}
	return account, nil
}

func (store *stubStore) UpdateAccount(ctx context.Context, update AccountUpdate) error {
	return store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		return txStore.UpdateAccount(ctx, update)
	})
}

func (store *stubStore) FindTransaction(ctx context.Context, accountID AccountID, referenceID ReferenceID) (TransactionLogEntry, bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	entry, found := findEntry(store.entries, accountID.String(), referenceID.String())
	return entry, found, nil
}

func (store *stubStore) InsertTransaction(ctx context.Context, entry TransactionLogEntry) error {
	return store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		return txStore.InsertTransaction(ctx, entry)
	})
}

func (store *stubStore) SumTransactions(ctx context.Context, accountID AccountID, from time.Time, to time.Time) (DailyTotals, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return sumEntries(store.entries, accountID.String(), from, to), nil
}

func (store *stubStore) ListTransactions(ctx context.Context, accountID AccountID, offset int, limit int) ([]TransactionLogEntry, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var matching []TransactionLogEntry
	for _, entry := range store.entries {
		if entry.AccountID == accountID.String() {
			matching = append(matching, entry)
		}
	}
	sort.SliceStable(matching, func(left, right int) bool {
		return matching[left].CreatedAt.After(matching[right].CreatedAt)
	})
	if offset >= len(matching) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matching) {
		end = len(matching)
	}
	return matching[offset:end], nil
}

func (store *stubStore) CountTransactions(ctx context.Context, accountID AccountID) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var count int64
	for _, entry := range store.entries {
		if entry.AccountID == accountID.String() {
			count++
		}
	}
	return count, nil
}

// commitEntry simulates a writer on another connection that already committed.
func (store *stubStore) commitEntry(test *testing.T, referenceID string, transactionType TransactionType, amount string) {
	test.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	account := store.accounts[testAccountIDValue]
	value := mustAmount(test, amount)
	if transactionType == TransactionDebit {
		account.Balance = account.Balance.Sub(value)
	} else {
		account.Balance = account.Balance.Add(value)
	}
	account.Version++
	store.accounts[testAccountIDValue] = account
	store.nextEntryID++
	store.entries = append(store.entries, TransactionLogEntry{
		ID:               fmt.Sprintf("entry-%d", store.nextEntryID),
		AccountID:        testAccountIDValue,
		ReferenceID:      referenceID,
		Type:             transactionType,
		Amount:           value,
		ResultingBalance: account.Balance,
		CreatedAt:        testNow,
	})
}

func (store *stubStore) mustAccount(test *testing.T) Account {
	test.Helper()
	account, err := store.GetAccount(context.Background(), mustAccountID(test, testAccountIDValue))
	if err != nil {
		test.Fatalf("account: %v", err)
	}
	return account
}

func (store *stubStore) entryCount() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.entries)
}

type stubTx struct {
	base     *stubStore
	accounts map[string]Account
	entries  []TransactionLogEntry
}

func (transaction *stubTx) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, transaction)
}

func (transaction *stubTx) CreateAccount(ctx context.Context, account Account) error {
	transaction.accounts[account.ID.String()] = account
	return nil
}

func (transaction *stubTx) GetAccount(ctx context.Context, accountID AccountID) (Account, error) {
	if account, ok := transaction.accounts[accountID.String()]; ok {
		return account, nil
	}
	return transaction.base.GetAccount(ctx, accountID)
}

func (transaction *stubTx) UpdateAccount(ctx context.Context, update AccountUpdate) error {
	if hook := transaction.base.beforeUpdate; hook != nil {
		transaction.base.beforeUpdate = nil
		hook(transaction.base)
	}
	current, err := transaction.GetAccount(ctx, update.AccountID)
	if err != nil {
		return err
	}
	if current.Version != update.ExpectedVersion {
		return fmt.Errorf("%w: account %s", ErrConcurrentUpdate, update.AccountID.String())
	}
	current.Balance = update.Balance
	current.Status = update.Status
	current.UpdatedAt = update.UpdatedAt
	current.DeletedAt = update.DeletedAt
	current.Version = update.ExpectedVersion + 1
	transaction.accounts[update.AccountID.String()] = current
	return nil
}

func (transaction *stubTx) FindTransaction(ctx context.Context, accountID AccountID, referenceID ReferenceID) (TransactionLogEntry, bool, error) {
	if entry, found := findEntry(transaction.entries, accountID.String(), referenceID.String()); found {
		return entry, true, nil
	}
	return transaction.base.FindTransaction(ctx, accountID, referenceID)
}

func (transaction *stubTx) InsertTransaction(ctx context.Context, entry TransactionLogEntry) error {
	if hook := transaction.base.beforeInsert; hook != nil {
		transaction.base.beforeInsert = nil
		hook(transaction.base)
	}
	accountID := AccountID{value: entry.AccountID}
	referenceID := ReferenceID{value: entry.ReferenceID}
	if _, found, _ := transaction.FindTransaction(ctx, accountID, referenceID); found {
		return fmt.Errorf("%w: %s", ErrDuplicateReference, entry.ReferenceID)
	}
	transaction.base.mu.Lock()
	transaction.base.nextEntryID++
	entry.ID = fmt.Sprintf("entry-%d", transaction.base.nextEntryID)
	transaction.base.mu.Unlock()
	transaction.entries = append(transaction.entries, entry)
	return nil
}

func (transaction *stubTx) SumTransactions(ctx context.Context, accountID AccountID, from time.Time, to time.Time) (DailyTotals, error) {
	committed, err := transaction.base.SumTransactions(ctx, accountID, from, to)
	if err != nil {
		return DailyTotals{}, err
	}
	pending := sumEntries(transaction.entries, accountID.String(), from, to)
	return DailyTotals{Count: committed.Count + pending.Count, Amount: committed.Amount.Add(pending.Amount)}, nil
}

func (transaction *stubTx) ListTransactions(ctx context.Context, accountID AccountID, offset int, limit int) ([]TransactionLogEntry, error) {
	return transaction.base.ListTransactions(ctx, accountID, offset, limit)
}

func (transaction *stubTx) CountTransactions(ctx context.Context, accountID AccountID) (int64, error) {
	return transaction.base.CountTransactions(ctx, accountID)
}

func findEntry(entries []TransactionLogEntry, accountID string, referenceID string) (TransactionLogEntry, bool) {
	for _, entry := range entries {
		if entry.AccountID == accountID && entry.ReferenceID == referenceID {
			return entry, true
		}
	}
	return TransactionLogEntry{}, false
}

func sumEntries(entries []TransactionLogEntry, accountID string, from time.Time, to time.Time) DailyTotals {
	var totals DailyTotals
	for _, entry := range entries {
		if entry.AccountID != accountID || entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		totals.Count++
		totals.Amount = totals.Amount.Add(entry.Amount)
	}
	return totals
}

type recordingPublisher struct {
	mu      sync.Mutex
	created []AccountSnapshot
	updated []AccountSnapshot
}

func (publisher *recordingPublisher) PublishAccountCreated(_ context.Context, account AccountSnapshot) {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	publisher.created = append(publisher.created, account)
}

func (publisher *recordingPublisher) PublishAccountUpdated(_ context.Context, account AccountSnapshot) {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	publisher.updated = append(publisher.updated, account)
}

type recordingAuditSink struct {
	records []AuditRecord
}

func (sink *recordingAuditSink) LogTransaction(_ context.Context, record AuditRecord) {
	sink.records = append(sink.records, record)
}

type recorderLogger struct {
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.entries = append(logger.entries, entry)
}

func fixedClock() time.Time {
	return testNow
}

func mustNewService(test *testing.T, store Store, ledgerLimits limits.LedgerLimits, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, ledgerLimits, fixedClock, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustAccountID(test *testing.T, raw string) AccountID {
	test.Helper()
	value, err := NewAccountID(raw)
	if err != nil {
		test.Fatalf("account id: %v", err)
	}
	return value
}

func mustAmount(test *testing.T, raw string) money.Amount {
	test.Helper()
	value, err := money.Parse(raw)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	return value
}

func mustDecimal(test *testing.T, raw string) decimal.Decimal {
	test.Helper()
	value, err := decimal.NewFromString(raw)
	if err != nil {
		test.Fatalf("decimal: %v", err)
	}
	return value
}

func transactionRequest(test *testing.T, referenceID string, transactionType TransactionType, amount string) TransactionRequest {
	test.Helper()
	return TransactionRequest{
		AccountID:   testAccountIDValue,
		ReferenceID: referenceID,
		Type:        transactionType,
		Amount:      mustDecimal(test, amount),
		Description: "test " + referenceID,
	}
}
