package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/sweepledger/pkg/ledger"
	"github.com/MarkoPoloResearchLab/sweepledger/pkg/money"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
	errorOperationStore   = "store"
	errorSubjectAccount   = "account"
	errorSubjectEntry     = "entry"
	errorSubjectGoal      = "goal"
	errorSubjectTotals    = "totals"
	errorCodeCount        = "count"
	errorCodeCreate       = "create"
	errorCodeDuplicate    = "duplicate"
	errorCodeGet          = "get"
	errorCodeInsert       = "insert"
	errorCodeInvalid      = "invalid"
	errorCodeList         = "list"
	errorCodeLookup       = "lookup"
	errorCodeSum          = "sum"
	errorCodeUpdate       = "update"
)

type transactionKey struct{}

// conn returns the transaction carried by ctx, falling back to db.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if transaction, ok := ctx.Value(transactionKey{}).(*gorm.DB); ok {
		return transaction.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

func withTransaction(ctx context.Context, db *gorm.DB, fn func(ctx context.Context, transaction *gorm.DB) error) error {
	return conn(ctx, db).Transaction(func(transaction *gorm.DB) error {
		return fn(context.WithValue(ctx, transactionKey{}, transaction), transaction)
	})
}

// Store implements ledger.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction. Called with a ctx that already
// carries one, it runs as a savepoint of the outer transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return withTransaction(ctx, store.db, func(ctx context.Context, transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) CreateAccount(ctx context.Context, account ledger.Account) error {
	model := Account{
		ID:            account.ID.String(),
		AccountNumber: account.AccountNumber,
		CustomerID:    account.CustomerID,
		Type:          account.Type,
		Status:        account.Status.String(),
		Currency:      account.Currency,
		BalanceCents:  account.Balance.Cents(),
		Version:       account.Version,
		OpenedAt:      account.OpenedAt.UTC(),
		UpdatedAt:     account.UpdatedAt.UTC(),
		DeletedAt:     utcPointer(account.DeletedAt),
	}
	err := conn(ctx, store.db).Create(&model).Error
	if isUniqueViolation(err, indexAccountNumber) {
		return wrapStoreError(errorSubjectAccount, errorCodeDuplicate, ledger.ErrDuplicateAccountNumber)
	}
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetAccount(ctx context.Context, accountID ledger.AccountID) (ledger.Account, error) {
	var model Account
	err := conn(ctx, store.db).Where("id = ?", accountID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, ledger.ErrNotFound)
		}
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	account, err := mapAccount(model)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return account, nil
}

// UpdateAccount writes the new state only when the stored version still
// matches update.ExpectedVersion.
func (store *Store) UpdateAccount(ctx context.Context, update ledger.AccountUpdate) error {
	result := conn(ctx, store.db).
		Model(&Account{}).
		Where("id = ? AND version = ?", update.AccountID.String(), update.ExpectedVersion).
		Updates(map[string]interface{}{
			"balance_cents": update.Balance.Cents(),
			"status":        update.Status.String(),
			"version":       update.ExpectedVersion + 1,
			"updated_at":    update.UpdatedAt.UTC(),
			"deleted_at":    utcPointer(update.DeletedAt),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetAccount(ctx, update.AccountID); err != nil {
			return err
		}
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, ledger.ErrConcurrentUpdate)
	}
	return nil
}

func (store *Store) FindTransaction(ctx context.Context, accountID ledger.AccountID, referenceID ledger.ReferenceID) (ledger.TransactionLogEntry, bool, error) {
	var model TransactionLog
	err := conn(ctx, store.db).
		Where("account_id = ? AND reference_id = ?", accountID.String(), referenceID.String()).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.TransactionLogEntry{}, false, nil
	}
	if err != nil {
		return ledger.TransactionLogEntry{}, false, wrapStoreError(errorSubjectEntry, errorCodeLookup, err)
	}
	entry, err := mapTransaction(model)
	if err != nil {
		return ledger.TransactionLogEntry{}, false, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entry, true, nil
}

func (store *Store) InsertTransaction(ctx context.Context, entry ledger.TransactionLogEntry) error {
	model := TransactionLog{
		ID:                    entry.ID,
		AccountID:             entry.AccountID,
		ReferenceID:           entry.ReferenceID,
		Type:                  entry.Type.String(),
		AmountCents:           entry.Amount.Cents(),
		ResultingBalanceCents: entry.ResultingBalance.Cents(),
		Description:           entry.Description,
		CreatedAt:             entry.CreatedAt.UTC(),
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	err := conn(ctx, store.db).Create(&model).Error
	if isUniqueViolation(err, indexTransactionReference) {
		return wrapStoreError(errorSubjectEntry, errorCodeDuplicate, ledger.ErrDuplicateReference)
	}
	if err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return nil
}

// SumTransactions counts and sums the entries created in [from, to).
func (store *Store) SumTransactions(ctx context.Context, accountID ledger.AccountID, from time.Time, to time.Time) (ledger.DailyTotals, error) {
	var totals sqlTotals
	err := conn(ctx, store.db).
		Model(&TransactionLog{}).
		Select("count(*) as entries, coalesce(sum(amount_cents),0) as total").
		Where("account_id = ? AND created_at >= ? AND created_at < ?", accountID.String(), from.UTC(), to.UTC()).
		Scan(&totals).Error
	if err != nil {
		return ledger.DailyTotals{}, wrapStoreError(errorSubjectTotals, errorCodeSum, err)
	}
	return ledger.DailyTotals{Count: totals.Entries, Amount: money.FromCents(totals.Total)}, nil
}

func (store *Store) ListTransactions(ctx context.Context, accountID ledger.AccountID, offset int, limit int) ([]ledger.TransactionLogEntry, error) {
	var rows []TransactionLog
	err := conn(ctx, store.db).
		Where("account_id = ?", accountID.String()).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	entries := make([]ledger.TransactionLogEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapTransaction(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (store *Store) CountTransactions(ctx context.Context, accountID ledger.AccountID) (int64, error) {
	var count int64
	err := conn(ctx, store.db).Model(&TransactionLog{}).Where("account_id = ?", accountID.String()).Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectEntry, errorCodeCount, err)
	}
	return count, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

type sqlTotals struct {
	Entries int64
	Total   int64
}

func mapAccount(model Account) (ledger.Account, error) {
	accountID, err := ledger.NewAccountID(model.ID)
	if err != nil {
		return ledger.Account{}, err
	}
	status, err := ledger.ParseAccountStatus(model.Status)
	if err != nil {
		return ledger.Account{}, err
	}
	return ledger.Account{
		ID:            accountID,
		AccountNumber: model.AccountNumber,
		CustomerID:    model.CustomerID,
		Type:          model.Type,
		Status:        status,
		Currency:      model.Currency,
		Balance:       money.FromCents(model.BalanceCents),
		Version:       model.Version,
		OpenedAt:      model.OpenedAt.UTC(),
		UpdatedAt:     model.UpdatedAt.UTC(),
		DeletedAt:     utcPointer(model.DeletedAt),
	}, nil
}

func mapTransaction(model TransactionLog) (ledger.TransactionLogEntry, error) {
	transactionType, err := ledger.ParseTransactionType(model.Type)
	if err != nil {
		return ledger.TransactionLogEntry{}, err
	}
	return ledger.TransactionLogEntry{
		ID:               model.ID,
		AccountID:        model.AccountID,
		ReferenceID:      model.ReferenceID,
		Type:             transactionType,
		Amount:           money.FromCents(model.AmountCents),
		ResultingBalance: money.FromCents(model.ResultingBalanceCents),
		Description:      model.Description,
		CreatedAt:        model.CreatedAt.UTC(),
	}, nil
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	converted := value.UTC()
	return &converted
}

// isUniqueViolation reports whether err is a unique-key conflict. Postgres
// reports the violated index by name; SQLite only reports the constraint class,
// so every store insert that can collide targets exactly one unique index.
func isUniqueViolation(err error, indexName string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == indexName
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
