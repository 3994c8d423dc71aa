// Package goals manages savings goals and moves money into them through the ledger.
package goals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/sweepledger/pkg/cadence"
	"github.com/MarkoPoloResearchLab/sweepledger/pkg/ledger"
	"github.com/MarkoPoloResearchLab/sweepledger/pkg/limits"
	"github.com/MarkoPoloResearchLab/sweepledger/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultSweepNamespace seeds the name-based UUIDs used as sweep reference ids.
// Changing it re-keys every future sweep.
var DefaultSweepNamespace = uuid.MustParse("5b0e4f1c-8a7d-4e2b-9c3f-1d2e3f4a5b6c")

// Service owns goals and contributions. It never touches balances directly.
type Service struct {
	store          Store
	ledger         Ledger
	limits         limits.GoalLimits
	nowFn          func() time.Time
	namespace      uuid.UUID
	newReferenceID func() string
}

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// WithSweepNamespace overrides the namespace of sweep reference ids.
func WithSweepNamespace(namespace uuid.UUID) ServiceOption {
	return func(service *Service) {
		service.namespace = namespace
	}
}

// WithReferenceGenerator overrides how manual contributions without a caller
// reference id are keyed.
func WithReferenceGenerator(generate func() string) ServiceOption {
	return func(service *Service) {
		if generate != nil {
			service.newReferenceID = generate
		}
	}
}

// NewService wires a Service.
func NewService(store Store, ledgerService Ledger, goalLimits limits.GoalLimits, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if ledgerService == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if err := goalLimits.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidServiceConfig, err)
	}
	service := &Service{
		store:          store,
		ledger:         ledgerService,
		limits:         goalLimits,
		nowFn:          now,
		namespace:      DefaultSweepNamespace,
		newReferenceID: uuid.NewString,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// CreateGoal opens an ACTIVE goal on an existing account.
func (service *Service) CreateGoal(ctx context.Context, request CreateGoalRequest) (Goal, error) {
	accountID, err := ledger.NewAccountID(request.AccountID)
	if err != nil {
		return Goal{}, err
	}
	balance, err := service.ledger.GetBalance(ctx, accountID.String())
	if err != nil {
		return Goal{}, err
	}
	if balance.Status == ledger.AccountStatusClosed {
		return Goal{}, fmt.Errorf("%w: account %s is closed", ledger.ErrInvalidStatus, accountID.String())
	}
	name := strings.TrimSpace(request.Name)
	if name == "" {
		return Goal{}, validationError("name is required")
	}
	target, err := service.validateTarget(request.TargetAmount, money.Zero)
	if err != nil {
		return Goal{}, err
	}
	now := service.nowFn().UTC()
	goal := Goal{
		ID:               uuid.NewString(),
		AccountID:        accountID.String(),
		Name:             name,
		Description:      strings.TrimSpace(request.Description),
		TargetAmount:     target,
		CurrentAmount:    money.Zero,
		Status:           GoalStatusActive,
		AutoSweepEnabled: request.AutoSweepEnabled,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if request.DueDate != nil {
		if request.DueDate.Before(now) {
			return Goal{}, validationError("due date %s is in the past", request.DueDate.UTC().Format(time.RFC3339))
		}
		dueDate := request.DueDate.UTC()
		goal.DueDate = &dueDate
	}
	if request.AutoSweepAmount != nil {
		sweepAmount, err := positiveSweepAmount(*request.AutoSweepAmount)
		if err != nil {
			return Goal{}, err
		}
		goal.AutoSweepAmount = &sweepAmount
	}
	if strings.TrimSpace(request.AutoSweepCadence) != "" {
		parsed, err := cadence.Parse(request.AutoSweepCadence)
		if err != nil {
			return Goal{}, fmt.Errorf("%w: %w", ErrGoalValidation, err)
		}
		goal.AutoSweepCadence = parsed
	}
	if err := scheduleSweep(&goal, now); err != nil {
		return Goal{}, err
	}
	if err := service.store.CreateGoal(ctx, goal); err != nil {
		return Goal{}, err
	}
	return goal, nil
}

// UpdateGoal applies a partial update. Terminal goals accept only no-op updates.
func (service *Service) UpdateGoal(ctx context.Context, accountID string, goalID string, request UpdateGoalRequest) (Goal, error) {
	var updated Goal
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		goal, err := loadOwnedGoal(ctx, transactionStore, accountID, goalID)
		if err != nil {
			return err
		}
		now := service.nowFn().UTC()
		next, changed, err := service.applyUpdate(goal, request, now)
		if err != nil {
			return err
		}
		if !changed {
			updated = goal
			return nil
		}
		next.UpdatedAt = now
		next.Version = goal.Version + 1
		if err := transactionStore.UpdateGoal(ctx, next, goal.Version); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return Goal{}, err
	}
	return updated, nil
}

func (service *Service) applyUpdate(goal Goal, request UpdateGoalRequest, now time.Time) (Goal, bool, error) {
	if goal.Status.Terminal() {
		if request.changesOnlyStatus() && (request.Status == nil || sameStatus(*request.Status, goal.Status)) {
			return goal, false, nil
		}
		return Goal{}, false, validationError("goal %s is %s", goal.ID, goal.Status)
	}

	next := goal
	if request.Name != nil {
		name := strings.TrimSpace(*request.Name)
		if name == "" {
			return Goal{}, false, validationError("name is required")
		}
		next.Name = name
	}
	if request.Description != nil {
		next.Description = strings.TrimSpace(*request.Description)
	}
	if request.TargetAmount != nil {
		target, err := service.validateTarget(*request.TargetAmount, goal.CurrentAmount)
		if err != nil {
			return Goal{}, false, err
		}
		next.TargetAmount = target
	}
	if request.DueDate != nil {
		dueDate := request.DueDate.UTC()
		next.DueDate = &dueDate
	}
	if request.AutoSweepAmount != nil {
		sweepAmount, err := positiveSweepAmount(*request.AutoSweepAmount)
		if err != nil {
			return Goal{}, false, err
		}
		next.AutoSweepAmount = &sweepAmount
	}

	reschedule := false
	if request.AutoSweepCadence != nil {
		parsed, err := cadence.Parse(*request.AutoSweepCadence)
		if err != nil {
			return Goal{}, false, fmt.Errorf("%w: %w", ErrGoalValidation, err)
		}
		reschedule = reschedule || parsed != next.AutoSweepCadence
		next.AutoSweepCadence = parsed
	}
	if request.AutoSweepEnabled != nil {
		reschedule = reschedule || *request.AutoSweepEnabled != next.AutoSweepEnabled
		next.AutoSweepEnabled = *request.AutoSweepEnabled
	}
	if reschedule {
		if err := scheduleSweep(&next, now); err != nil {
			return Goal{}, false, err
		}
	}

	if request.Status != nil {
		status, err := ParseGoalStatus(*request.Status)
		if err != nil {
			return Goal{}, false, err
		}
		switch status {
		case GoalStatusActive:
		case GoalStatusCancelled:
			next.Status = GoalStatusCancelled
			next.disableSweep()
		default:
			return Goal{}, false, validationError("status %s is reached only through contributions", status)
		}
	}
	if next.Status == GoalStatusActive && next.CurrentAmount >= next.TargetAmount {
		next.complete(now)
	}
	return next, true, nil
}

// GetGoal returns a goal owned by accountID.
func (service *Service) GetGoal(ctx context.Context, accountID string, goalID string) (Goal, error) {
	return loadOwnedGoal(ctx, service.store, accountID, goalID)
}

// ListGoals pages through the goals of an account, newest first.
func (service *Service) ListGoals(ctx context.Context, accountID string, request ledger.PageRequest) (ledger.Page[Goal], error) {
	parsedAccountID, err := ledger.NewAccountID(accountID)
	if err != nil {
		return ledger.Page[Goal]{}, err
	}
	if _, err := service.ledger.GetBalance(ctx, parsedAccountID.String()); err != nil {
		return ledger.Page[Goal]{}, err
	}
	normalized := request.Normalize()
	total, err := service.store.CountGoals(ctx, parsedAccountID.String())
	if err != nil {
		return ledger.Page[Goal]{}, err
	}
	items, err := service.store.ListGoals(ctx, parsedAccountID.String(), normalized.Offset(), normalized.Size)
	if err != nil {
		return ledger.Page[Goal]{}, err
	}
	return ledger.NewPage(items, normalized, total), nil
}

// ListContributions pages through a goal's contributions, newest first.
func (service *Service) ListContributions(ctx context.Context, accountID string, goalID string, request ledger.PageRequest) (ledger.Page[Contribution], error) {
	goal, err := loadOwnedGoal(ctx, service.store, accountID, goalID)
	if err != nil {
		return ledger.Page[Contribution]{}, err
	}
	normalized := request.Normalize()
	total, err := service.store.CountContributions(ctx, goal.ID)
	if err != nil {
		return ledger.Page[Contribution]{}, err
	}
	items, err := service.store.ListContributions(ctx, goal.ID, normalized.Offset(), normalized.Size)
	if err != nil {
		return ledger.Page[Contribution]{}, err
	}
	return ledger.NewPage(items, normalized, total), nil
}

// Contribute moves a manual contribution from the account into the goal.
func (service *Service) Contribute(ctx context.Context, request ContributeRequest) (Goal, error) {
	goal, err := loadOwnedGoal(ctx, service.store, request.AccountID, request.GoalID)
	if err != nil {
		return Goal{}, err
	}
	if goal.Status != GoalStatusActive {
		return Goal{}, validationError("goal %s is %s", goal.ID, goal.Status)
	}
	referenceID := strings.TrimSpace(request.ReferenceID)
	if referenceID == "" {
		referenceID = service.newReferenceID()
	}
	amount, err := money.FromDecimal(request.Amount)
	if err != nil {
		return Goal{}, fmt.Errorf("%w: %w", ErrGoalContributionFailed, err)
	}
	result, err := service.applyContribution(ctx, contribution{
		goalID:            goal.ID,
		amount:            amount,
		referenceID:       referenceID,
		ledgerReferenceID: manualLedgerReferenceID(goal.ID, referenceID),
		description:       strings.TrimSpace(request.Description),
		source:            SourceManual,
		now:               service.nowFn().UTC(),
	})
	if err != nil {
		return Goal{}, err
	}
	if result.inactive {
		return Goal{}, validationError("goal %s is %s", result.goal.ID, result.goal.Status)
	}
	return result.goal, nil
}

// manualLedgerReferenceID scopes a caller reference to the goal so it can never
// collide with a reference the caller used for a direct ledger transaction.
func manualLedgerReferenceID(goalID string, referenceID string) string {
	return "goal:" + goalID + ":" + referenceID
}

type contribution struct {
	goalID            string
	amount            money.Amount
	referenceID       string
	ledgerReferenceID string
	description       string
	source            ContributionSource
	now               time.Time
	// onIncrease runs inside the goal transaction when the goal actually grew.
	onIncrease func(goal *Goal)
}

type contributionResult struct {
	goal      Goal
	amount    money.Amount
	increased bool
	inactive  bool
}

// applyContribution reads the goal, clamps the amount to what remains, records
// the contribution and debits the account in one store transaction. The ledger
// joins that transaction through ctx, so either all three writes commit or none
// do. A reference id already recorded against the goal is a no-op.
func (service *Service) applyContribution(ctx context.Context, input contribution) (contributionResult, error) {
	if !input.amount.IsPositive() {
		return contributionResult{}, fmt.Errorf("%w: amount %s must be greater than zero", ErrGoalContributionFailed, input.amount)
	}

	var result contributionResult
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		current, err := transactionStore.GetGoal(ctx, input.goalID)
		if err != nil {
			return err
		}
		if current.Status != GoalStatusActive {
			result = contributionResult{goal: current, inactive: true}
			return nil
		}
		next := current
		remaining := current.Remaining()
		amount := money.Min(input.amount, remaining)
		if amount.IsPositive() {
			next.CurrentAmount = current.CurrentAmount.Add(amount)
		}
		if next.CurrentAmount >= next.TargetAmount {
			next.complete(input.now)
		}
		increased := amount.IsPositive()
		if increased && input.onIncrease != nil {
			input.onIncrease(&next)
		}
		next.UpdatedAt = input.now
		next.Version = current.Version + 1
		if err := transactionStore.UpdateGoal(ctx, next, current.Version); err != nil {
			return err
		}
		result = contributionResult{goal: next}
		if !increased {
			return nil
		}
		if err := transactionStore.InsertContribution(ctx, Contribution{
			ID:          uuid.NewString(),
			GoalID:      current.ID,
			AccountID:   current.AccountID,
			Amount:      amount,
			Source:      input.source,
			Description: input.description,
			ReferenceID: input.referenceID,
			CreatedAt:   input.now,
		}); err != nil {
			return err
		}
		if err := service.debit(ctx, current.AccountID, input.ledgerReferenceID, amount, input.description); err != nil {
			return err
		}
		result.amount = amount
		result.increased = true
		return nil
	})
	if errors.Is(err, ErrDuplicateContribution) {
		current, getErr := service.store.GetGoal(ctx, input.goalID)
		if getErr != nil {
			return contributionResult{}, getErr
		}
		return contributionResult{goal: current}, nil
	}
	if err != nil {
		return contributionResult{}, err
	}
	return result, nil
}

// debit moves amount out of the account. The contribution row was inserted in
// the same transaction, so a ledger entry already holding the reference belongs
// to something else and is rejected rather than replayed.
func (service *Service) debit(ctx context.Context, accountID string, referenceID string, amount money.Amount, description string) error {
	outcome, err := service.ledger.Apply(ctx, ledger.TransactionRequest{
		AccountID:   accountID,
		ReferenceID: referenceID,
		Type:        ledger.TransactionDebit,
		Amount:      amount.Decimal(),
		Description: description,
	})
	if err != nil {
		if ledger.IsBusinessRejection(err) {
			return fmt.Errorf("%w: %w", ErrGoalContributionFailed, err)
		}
		return err
	}
	if outcome.Replayed {
		return fmt.Errorf("%w: %w: %s is held by a %s of %s", ErrGoalContributionFailed, ledger.ErrDuplicateReference,
			referenceID, outcome.Entry.Type, outcome.Entry.Amount)
	}
	return nil
}

func (service *Service) markCompleted(ctx context.Context, goalID string, now time.Time) (Goal, error) {
	var completed Goal
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		goal, err := transactionStore.GetGoal(ctx, goalID)
		if err != nil {
			return err
		}
		if goal.Status != GoalStatusActive {
			completed = goal
			return nil
		}
		next := goal
		next.complete(now)
		next.UpdatedAt = now
		next.Version = goal.Version + 1
		if err := transactionStore.UpdateGoal(ctx, next, goal.Version); err != nil {
			return err
		}
		completed = next
		return nil
	})
	if err != nil {
		return Goal{}, err
	}
	return completed, nil
}

func (service *Service) validateTarget(raw decimal.Decimal, current money.Amount) (money.Amount, error) {
	target, err := money.FromDecimal(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrGoalValidation, err)
	}
	if target < service.limits.MinGoalAmount || target > service.limits.MaxGoalAmount {
		return 0, validationError("target %s outside [%s, %s]", target, service.limits.MinGoalAmount, service.limits.MaxGoalAmount)
	}
	if target < current {
		return 0, validationError("target %s is below the current amount %s", target, current)
	}
	return target, nil
}

func loadOwnedGoal(ctx context.Context, store Store, accountID string, goalID string) (Goal, error) {
	trimmedGoalID := strings.TrimSpace(goalID)
	if trimmedGoalID == "" {
		return Goal{}, fmt.Errorf("%w: empty goal id", ErrGoalNotFound)
	}
	goal, err := store.GetGoal(ctx, trimmedGoalID)
	if err != nil {
		return Goal{}, err
	}
	if goal.AccountID != strings.TrimSpace(accountID) {
		return Goal{}, fmt.Errorf("%w: goal %s does not belong to account %s", ErrGoalNotFound, trimmedGoalID, accountID)
	}
	return goal, nil
}

// scheduleSweep recomputes nextSweepAt after the enablement or cadence changed.
func scheduleSweep(goal *Goal, now time.Time) error {
	if !goal.AutoSweepEnabled {
		goal.NextSweepAt = nil
		return nil
	}
	if goal.AutoSweepCadence == "" {
		return validationError("auto-sweep requires a cadence")
	}
	next, err := cadence.NextExecutionFrom(goal.AutoSweepCadence, now)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGoalValidation, err)
	}
	goal.NextSweepAt = &next
	return nil
}

func positiveSweepAmount(raw decimal.Decimal) (money.Amount, error) {
	amount, err := money.FromDecimal(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrGoalValidation, err)
	}
	if !amount.IsPositive() {
		return 0, validationError("auto-sweep amount must be greater than zero")
	}
	return amount, nil
}

func sameStatus(raw string, status GoalStatus) bool {
	parsed, err := ParseGoalStatus(raw)
	return err == nil && parsed == status
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrGoalValidation}, args...)...)
}
