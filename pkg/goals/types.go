package goals

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/sweepledger/pkg/cadence"
	"github.com/MarkoPoloResearchLab/sweepledger/pkg/ledger"
	"github.com/MarkoPoloResearchLab/sweepledger/pkg/money"
	"github.com/shopspring/decimal"
)

// GoalStatus defines the goal lifecycle. COMPLETED and CANCELLED are terminal.
type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "ACTIVE"
	GoalStatusCompleted GoalStatus = "COMPLETED"
	GoalStatusCancelled GoalStatus = "CANCELLED"
)

// ParseGoalStatus validates a goal status.
func ParseGoalStatus(raw string) (GoalStatus, error) {
	candidate := GoalStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch candidate {
	case GoalStatusActive, GoalStatusCompleted, GoalStatusCancelled:
		return candidate, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrGoalValidation, raw)
	}
}

func (status GoalStatus) String() string {
	return string(status)
}

// Terminal reports whether no further contributions are accepted.
func (status GoalStatus) Terminal() bool {
	return status == GoalStatusCompleted || status == GoalStatusCancelled
}

// ContributionSource records what moved the money.
type ContributionSource string

const (
	SourceManual    ContributionSource = "MANUAL"
	SourceAutoSweep ContributionSource = "AUTO_SWEEP"
)

// Goal is a savings target tied to one account.
type Goal struct {
	ID               string          `json:"id"`
	AccountID        string          `json:"account_id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	TargetAmount     money.Amount    `json:"target_amount"`
	CurrentAmount    money.Amount    `json:"current_amount"`
	DueDate          *time.Time      `json:"due_date,omitempty"`
	Status           GoalStatus      `json:"status"`
	AutoSweepEnabled bool            `json:"auto_sweep_enabled"`
	AutoSweepAmount  *money.Amount   `json:"auto_sweep_amount,omitempty"`
	AutoSweepCadence cadence.Cadence `json:"auto_sweep_cadence,omitempty"`
	LastSweepAt      *time.Time      `json:"last_sweep_at,omitempty"`
	NextSweepAt      *time.Time      `json:"next_sweep_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Version          int64           `json:"version"`
}

// Remaining returns the amount still missing to reach the target.
func (goal Goal) Remaining() money.Amount {
	return goal.TargetAmount.Sub(goal.CurrentAmount)
}

func (goal *Goal) complete(now time.Time) {
	completedAt := now
	goal.Status = GoalStatusCompleted
	goal.CompletedAt = &completedAt
	goal.AutoSweepEnabled = false
	goal.NextSweepAt = nil
}

func (goal *Goal) disableSweep() {
	goal.AutoSweepEnabled = false
	goal.NextSweepAt = nil
}

// Contribution is one immutable movement of money into a goal.
type Contribution struct {
	ID          string             `json:"id"`
	GoalID      string             `json:"goal_id"`
	AccountID   string             `json:"account_id"`
	Amount      money.Amount       `json:"amount"`
	Source      ContributionSource `json:"source"`
	Description string             `json:"description"`
	ReferenceID string             `json:"reference_id"`
	CreatedAt   time.Time          `json:"created_at"`
}

// CreateGoalRequest is the input of CreateGoal.
type CreateGoalRequest struct {
	AccountID        string
	Name             string
	Description      string
	TargetAmount     decimal.Decimal
	DueDate          *time.Time
	AutoSweepEnabled bool
	AutoSweepAmount  *decimal.Decimal
	AutoSweepCadence string
}

// UpdateGoalRequest is a partial update; nil fields are left untouched.
type UpdateGoalRequest struct {
	Name             *string
	Description      *string
	TargetAmount     *decimal.Decimal
	DueDate          *time.Time
	AutoSweepEnabled *bool
	AutoSweepAmount  *decimal.Decimal
	AutoSweepCadence *string
	Status           *string
}

func (request UpdateGoalRequest) changesOnlyStatus() bool {
	return request.Name == nil &&
		request.Description == nil &&
		request.TargetAmount == nil &&
		request.DueDate == nil &&
		request.AutoSweepEnabled == nil &&
		request.AutoSweepAmount == nil &&
		request.AutoSweepCadence == nil
}

// ContributeRequest is the input of Contribute. A blank ReferenceID is replaced
// by a generated one.
type ContributeRequest struct {
	AccountID   string
	GoalID      string
	Amount      decimal.Decimal
	ReferenceID string
	Description string
}

// SweepResult names what ProcessAutoSweep did with a goal.
type SweepResult string

const (
	SweepApplied         SweepResult = "swept"
	SweepAlreadyApplied  SweepResult = "already_applied"
	SweepCompleted       SweepResult = "completed"
	SweepSkippedMissing  SweepResult = "skipped_missing"
	SweepSkippedInactive SweepResult = "skipped_inactive"
	SweepSkippedNotDue   SweepResult = "skipped_not_due"
	SweepSkippedLowFunds SweepResult = "skipped_low_funds"
	SweepSkippedTooSmall SweepResult = "skipped_below_minimum"
)

// Skipped reports whether the sweep left the goal untouched.
func (result SweepResult) Skipped() bool {
	return strings.HasPrefix(string(result), "skipped_") || result == SweepAlreadyApplied
}

// SweepOutcome describes one ProcessAutoSweep call.
type SweepOutcome struct {
	GoalID      string
	Result      SweepResult
	Amount      money.Amount
	ReferenceID string
}

// Ledger is the subset of the ledger service the goal engine moves money through.
// Apply must join any store transaction carried by ctx.
type Ledger interface {
	Apply(ctx context.Context, request ledger.TransactionRequest) (ledger.TransactionOutcome, error)
	GetBalance(ctx context.Context, accountID string) (ledger.BalanceSnapshot, error)
}

// Store is the persistence contract of the goal engine. UpdateGoal is
// conditioned on expectedVersion and fails with ledger.ErrConcurrentUpdate when
// the row moved on. InsertContribution fails with ErrDuplicateContribution on a
// reference id already recorded for the same goal.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	CreateGoal(ctx context.Context, goal Goal) error
	GetGoal(ctx context.Context, goalID string) (Goal, error)
	UpdateGoal(ctx context.Context, goal Goal, expectedVersion int64) error
	ListGoals(ctx context.Context, accountID string, offset int, limit int) ([]Goal, error)
	CountGoals(ctx context.Context, accountID string) (int64, error)
	InsertContribution(ctx context.Context, contribution Contribution) error
	ListContributions(ctx context.Context, goalID string, offset int, limit int) ([]Contribution, error)
	CountContributions(ctx context.Context, goalID string) (int64, error)
	ListSweepCandidates(ctx context.Context, now time.Time, limit int) ([]Goal, error)
}
