package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	indexAccountNumber         = "uniq_accounts_account_number"
	indexTransactionReference  = "uniq_transaction_log_account_reference"
	indexContributionReference = "uniq_goal_contributions_reference"
)

// Account represents the accounts table.
type Account struct {
	ID            string     `gorm:"primaryKey;size:64"`
	AccountNumber string     `gorm:"size:32;not null;uniqueIndex:uniq_accounts_account_number"`
	CustomerID    string     `gorm:"size:64;not null;index:idx_accounts_customer"`
	Type          string     `gorm:"size:32;not null"`
	Status        string     `gorm:"size:16;not null"`
	Currency      string     `gorm:"size:3;not null"`
	BalanceCents  int64      `gorm:"not null"`
	Version       int64      `gorm:"not null"`
	OpenedAt      time.Time  `gorm:"not null"`
	UpdatedAt     time.Time  `gorm:"not null;autoUpdateTime:false"`
	DeletedAt     *time.Time `gorm:""`
}

func (Account) TableName() string { return "accounts" }

func (account *Account) BeforeCreate(tx *gorm.DB) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	return nil
}

// TransactionLog mirrors the transaction_log table.
type TransactionLog struct {
	ID                    string    `gorm:"primaryKey;size:64"`
	AccountID             string    `gorm:"size:64;not null;uniqueIndex:uniq_transaction_log_account_reference,priority:1;index:idx_transaction_log_account_created,priority:1"`
	ReferenceID           string    `gorm:"size:128;not null;uniqueIndex:uniq_transaction_log_account_reference,priority:2"`
	Type                  string    `gorm:"size:8;not null"`
	AmountCents           int64     `gorm:"not null"`
	ResultingBalanceCents int64     `gorm:"not null"`
	Description           string    `gorm:"size:255;not null"`
	CreatedAt             time.Time `gorm:"not null;autoCreateTime:false;index:idx_transaction_log_account_created,priority:2"`
}

func (TransactionLog) TableName() string { return "transaction_log" }

func (entry *TransactionLog) BeforeCreate(tx *gorm.DB) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	return nil
}

// Goal mirrors the account_goals table.
type Goal struct {
	ID                   string     `gorm:"primaryKey;size:64"`
	AccountID            string     `gorm:"size:64;not null;index:idx_account_goals_account_created,priority:1"`
	Name                 string     `gorm:"size:100;not null"`
	Description          string     `gorm:"size:500;not null"`
	TargetCents          int64      `gorm:"not null"`
	CurrentCents         int64      `gorm:"not null"`
	DueDate              *time.Time `gorm:""`
	Status               string     `gorm:"size:16;not null;index:idx_account_goals_sweep,priority:1"`
	AutoSweepEnabled     bool       `gorm:"not null;index:idx_account_goals_sweep,priority:2"`
	AutoSweepAmountCents *int64     `gorm:""`
	AutoSweepCadence     string     `gorm:"size:16;not null"`
	LastSweepAt          *time.Time `gorm:""`
	NextSweepAt          *time.Time `gorm:"index:idx_account_goals_sweep,priority:3"`
	CompletedAt          *time.Time `gorm:""`
	CreatedAt            time.Time  `gorm:"not null;autoCreateTime:false;index:idx_account_goals_account_created,priority:2"`
	UpdatedAt            time.Time  `gorm:"not null;autoUpdateTime:false"`
	Version              int64      `gorm:"not null"`
}

func (Goal) TableName() string { return "account_goals" }

// Contribution mirrors the goal_contributions table.
type Contribution struct {
	ID          string    `gorm:"primaryKey;size:64"`
	GoalID      string    `gorm:"size:64;not null;uniqueIndex:uniq_goal_contributions_reference,priority:1;index:idx_goal_contributions_goal_created,priority:1"`
	AccountID   string    `gorm:"size:64;not null"`
	AmountCents int64     `gorm:"not null"`
	Source      string    `gorm:"size:16;not null"`
	Description string    `gorm:"size:255;not null"`
	ReferenceID string    `gorm:"size:128;not null;uniqueIndex:uniq_goal_contributions_reference,priority:2"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime:false;index:idx_goal_contributions_goal_created,priority:2"`
}

func (Contribution) TableName() string { return "goal_contributions" }

func (contribution *Contribution) BeforeCreate(tx *gorm.DB) error {
	if contribution.ID == "" {
		contribution.ID = uuid.NewString()
	}
	return nil
}

// Migrate creates or updates every table the stores use.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Account{}, &TransactionLog{}, &Goal{}, &Contribution{})
}
