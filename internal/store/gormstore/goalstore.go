package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/sweepledger/pkg/cadence"
	"github.com/MarkoPoloResearchLab/sweepledger/pkg/goals"
	"github.com/MarkoPoloResearchLab/sweepledger/pkg/ledger"
	"github.com/MarkoPoloResearchLab/sweepledger/pkg/money"
	"gorm.io/gorm"
)

const errorSubjectContribution = "contribution"

// GoalStore implements goals.Store using GORM. It shares its database with
// Store but keeps its own transaction boundary.
type GoalStore struct {
	db *gorm.DB
}

// NewGoalStore returns a GoalStore backed by gorm.DB.
func NewGoalStore(db *gorm.DB) *GoalStore {
	return &GoalStore{db: db}
}

// WithTx executes fn within a transaction. Ledger writes made with the ctx
// passed to fn join that transaction.
func (store *GoalStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore goals.Store) error) error {
	return withTransaction(ctx, store.db, func(ctx context.Context, transaction *gorm.DB) error {
		return fn(ctx, &GoalStore{db: transaction})
	})
}

func (store *GoalStore) CreateGoal(ctx context.Context, goal goals.Goal) error {
	model := goalModel(goal)
	if err := conn(ctx, store.db).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectGoal, errorCodeCreate, err)
	}
	return nil
}

func (store *GoalStore) GetGoal(ctx context.Context, goalID string) (goals.Goal, error) {
	var model Goal
	err := conn(ctx, store.db).Where("id = ?", goalID).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return goals.Goal{}, wrapStoreError(errorSubjectGoal, errorCodeGet, fmt.Errorf("%w: %s", goals.ErrGoalNotFound, goalID))
		}
		return goals.Goal{}, wrapStoreError(errorSubjectGoal, errorCodeGet, err)
	}
	goal, err := mapGoal(model)
	if err != nil {
		return goals.Goal{}, wrapStoreError(errorSubjectGoal, errorCodeInvalid, err)
	}
	return goal, nil
}

// UpdateGoal replaces the stored row when its version still equals
// expectedVersion. goal.Version carries the version to write.
func (store *GoalStore) UpdateGoal(ctx context.Context, goal goals.Goal, expectedVersion int64) error {
	model := goalModel(goal)
	result := conn(ctx, store.db).
		Model(&Goal{}).
		Where("id = ? AND version = ?", goal.ID, expectedVersion).
		Updates(map[string]interface{}{
			"name":                    model.Name,
			"description":             model.Description,
			"target_cents":            model.TargetCents,
			"current_cents":           model.CurrentCents,
			"due_date":                model.DueDate,
			"status":                  model.Status,
			"auto_sweep_enabled":      model.AutoSweepEnabled,
			"auto_sweep_amount_cents": model.AutoSweepAmountCents,
			"auto_sweep_cadence":      model.AutoSweepCadence,
			"last_sweep_at":           model.LastSweepAt,
			"next_sweep_at":           model.NextSweepAt,
			"completed_at":            model.CompletedAt,
			"updated_at":              model.UpdatedAt,
			"version":                 model.Version,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectGoal, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetGoal(ctx, goal.ID); err != nil {
			return err
		}
		return wrapStoreError(errorSubjectGoal, errorCodeUpdate, ledger.ErrConcurrentUpdate)
	}
	return nil
}

func (store *GoalStore) ListGoals(ctx context.Context, accountID string, offset int, limit int) ([]goals.Goal, error) {
	var rows []Goal
	err := conn(ctx, store.db).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectGoal, errorCodeList, err)
	}
	return mapGoals(rows)
}

func (store *GoalStore) CountGoals(ctx context.Context, accountID string) (int64, error) {
	var count int64
	if err := conn(ctx, store.db).Model(&Goal{}).Where("account_id = ?", accountID).Count(&count).Error; err != nil {
		return 0, wrapStoreError(errorSubjectGoal, errorCodeCount, err)
	}
	return count, nil
}

func (store *GoalStore) InsertContribution(ctx context.Context, contribution goals.Contribution) error {
	model := Contribution{
		ID:          contribution.ID,
		GoalID:      contribution.GoalID,
		AccountID:   contribution.AccountID,
		AmountCents: contribution.Amount.Cents(),
		Source:      string(contribution.Source),
		Description: contribution.Description,
		ReferenceID: contribution.ReferenceID,
		CreatedAt:   contribution.CreatedAt.UTC(),
	}
	err := conn(ctx, store.db).Create(&model).Error
	if isUniqueViolation(err, indexContributionReference) {
		return wrapStoreError(errorSubjectContribution, errorCodeDuplicate, fmt.Errorf("%w: %s", goals.ErrDuplicateContribution, contribution.ReferenceID))
	}
	if err != nil {
		return wrapStoreError(errorSubjectContribution, errorCodeInsert, err)
	}
	return nil
}

func (store *GoalStore) ListContributions(ctx context.Context, goalID string, offset int, limit int) ([]goals.Contribution, error) {
	var rows []Contribution
	err := conn(ctx, store.db).
		Where("goal_id = ?", goalID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectContribution, errorCodeList, err)
	}
	contributions := make([]goals.Contribution, 0, len(rows))
	for _, row := range rows {
		contributions = append(contributions, goals.Contribution{
			ID:          row.ID,
			GoalID:      row.GoalID,
			AccountID:   row.AccountID,
			Amount:      money.FromCents(row.AmountCents),
			Source:      goals.ContributionSource(row.Source),
			Description: row.Description,
			ReferenceID: row.ReferenceID,
			CreatedAt:   row.CreatedAt.UTC(),
		})
	}
	return contributions, nil
}

func (store *GoalStore) CountContributions(ctx context.Context, goalID string) (int64, error) {
	var count int64
	if err := conn(ctx, store.db).Model(&Contribution{}).Where("goal_id = ?", goalID).Count(&count).Error; err != nil {
		return 0, wrapStoreError(errorSubjectContribution, errorCodeCount, err)
	}
	return count, nil
}

// ListSweepCandidates returns ACTIVE auto-sweep goals that are due at now,
// never-scheduled goals first, then by next_sweep_at.
func (store *GoalStore) ListSweepCandidates(ctx context.Context, now time.Time, limit int) ([]goals.Goal, error) {
	var rows []Goal
	err := conn(ctx, store.db).
		Where("status = ? AND auto_sweep_enabled = ?", goals.GoalStatusActive.String(), true).
		Where("(next_sweep_at IS NULL OR next_sweep_at <= ?)", now.UTC()).
		Order("CASE WHEN next_sweep_at IS NULL THEN 0 ELSE 1 END").
		Order("next_sweep_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectGoal, errorCodeList, err)
	}
	return mapGoals(rows)
}

func goalModel(goal goals.Goal) Goal {
	var sweepAmount *int64
	if goal.AutoSweepAmount != nil {
		cents := goal.AutoSweepAmount.Cents()
		sweepAmount = &cents
	}
	return Goal{
		ID:                   goal.ID,
		AccountID:            goal.AccountID,
		Name:                 goal.Name,
		Description:          goal.Description,
		TargetCents:          goal.TargetAmount.Cents(),
		CurrentCents:         goal.CurrentAmount.Cents(),
		DueDate:              utcPointer(goal.DueDate),
		Status:               goal.Status.String(),
		AutoSweepEnabled:     goal.AutoSweepEnabled,
		AutoSweepAmountCents: sweepAmount,
		AutoSweepCadence:     goal.AutoSweepCadence.String(),
		LastSweepAt:          utcPointer(goal.LastSweepAt),
		NextSweepAt:          utcPointer(goal.NextSweepAt),
		CompletedAt:          utcPointer(goal.CompletedAt),
		CreatedAt:            goal.CreatedAt.UTC(),
		UpdatedAt:            goal.UpdatedAt.UTC(),
		Version:              goal.Version,
	}
}

func mapGoal(model Goal) (goals.Goal, error) {
	status, err := goals.ParseGoalStatus(model.Status)
	if err != nil {
		return goals.Goal{}, err
	}
	var sweepCadence cadence.Cadence
	if model.AutoSweepCadence != "" {
		sweepCadence, err = cadence.Parse(model.AutoSweepCadence)
		if err != nil {
			return goals.Goal{}, err
		}
	}
	var sweepAmount *money.Amount
	if model.AutoSweepAmountCents != nil {
		amount := money.FromCents(*model.AutoSweepAmountCents)
		sweepAmount = &amount
	}
	return goals.Goal{
		ID:               model.ID,
		AccountID:        model.AccountID,
		Name:             model.Name,
		Description:      model.Description,
		TargetAmount:     money.FromCents(model.TargetCents),
		CurrentAmount:    money.FromCents(model.CurrentCents),
		DueDate:          utcPointer(model.DueDate),
		Status:           status,
		AutoSweepEnabled: model.AutoSweepEnabled,
		AutoSweepAmount:  sweepAmount,
		AutoSweepCadence: sweepCadence,
		LastSweepAt:      utcPointer(model.LastSweepAt),
		NextSweepAt:      utcPointer(model.NextSweepAt),
		CompletedAt:      utcPointer(model.CompletedAt),
		CreatedAt:        model.CreatedAt.UTC(),
		UpdatedAt:        model.UpdatedAt.UTC(),
		Version:          model.Version,
	}, nil
}

func mapGoals(rows []Goal) ([]goals.Goal, error) {
	mapped := make([]goals.Goal, 0, len(rows))
	for _, row := range rows {
		goal, err := mapGoal(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectGoal, errorCodeInvalid, err)
		}
		mapped = append(mapped, goal)
	}
	return mapped, nil
}
