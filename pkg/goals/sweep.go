package goals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/sweepledger/pkg/cadence"
	"github.com/MarkoPoloResearchLab/sweepledger/pkg/money"
	"github.com/google/uuid"
)

// ProcessAutoSweep moves at most one contribution per cadence period into a
// due goal. Goals that are missing, inactive, not yet due or unfunded are
// skipped without error.
func (service *Service) ProcessAutoSweep(ctx context.Context, goalID string, now time.Time) (SweepOutcome, error) {
	now = now.UTC()
	outcome := SweepOutcome{GoalID: goalID}
	goal, err := service.store.GetGoal(ctx, goalID)
	if errors.Is(err, ErrGoalNotFound) {
		outcome.Result = SweepSkippedMissing
		return outcome, nil
	}
	if err != nil {
		return outcome, err
	}
	if goal.Status != GoalStatusActive || !goal.AutoSweepEnabled {
		outcome.Result = SweepSkippedInactive
		return outcome, nil
	}
	if goal.NextSweepAt != nil && goal.NextSweepAt.After(now) {
		outcome.Result = SweepSkippedNotDue
		return outcome, nil
	}

	balance, err := service.ledger.GetBalance(ctx, goal.AccountID)
	if err != nil {
		return outcome, err
	}
	available := balance.Balance.Sub(service.limits.MinBalanceBuffer)
	if available < service.limits.MinContributionAmount {
		outcome.Result = SweepSkippedLowFunds
		return outcome, nil
	}
	remaining := goal.Remaining()
	if remaining < service.limits.MinContributionAmount {
		if _, err := service.markCompleted(ctx, goal.ID, now); err != nil {
			return outcome, err
		}
		outcome.Result = SweepCompleted
		return outcome, nil
	}
	desired := service.limits.DefaultContributionAmount
	if goal.AutoSweepAmount != nil {
		desired = *goal.AutoSweepAmount
	}
	amount := money.Min(desired, remaining, available, service.limits.MaxContributionAmount)
	if amount < service.limits.MinContributionAmount {
		outcome.Result = SweepSkippedTooSmall
		return outcome, nil
	}

	periodKey, err := cadence.PeriodKey(goal.AutoSweepCadence, now)
	if err != nil {
		return outcome, fmt.Errorf("%w: %w", ErrGoalValidation, err)
	}
	// The period of now is consumed by this sweep, so the next one is due at the
	// following boundary even when now sits exactly on a boundary.
	nextSweepAt, err := cadence.FollowingExecution(goal.AutoSweepCadence, now)
	if err != nil {
		return outcome, fmt.Errorf("%w: %w", ErrGoalValidation, err)
	}
	outcome.ReferenceID = service.sweepReferenceID(goal.ID, periodKey)

	result, err := service.applyContribution(ctx, contribution{
		goalID:            goal.ID,
		amount:            amount,
		referenceID:       outcome.ReferenceID,
		ledgerReferenceID: outcome.ReferenceID,
		description:       "auto-sweep " + periodKey,
		source:            SourceAutoSweep,
		now:               now,
		onIncrease: func(updated *Goal) {
			lastSweepAt := now
			updated.LastSweepAt = &lastSweepAt
			if updated.Status == GoalStatusActive && updated.AutoSweepEnabled {
				updated.NextSweepAt = &nextSweepAt
			}
		},
	})
	if err != nil {
		return outcome, err
	}
	if result.inactive {
		outcome.Result = SweepSkippedInactive
		return outcome, nil
	}
	if !result.increased {
		outcome.Result = SweepAlreadyApplied
		return outcome, nil
	}
	outcome.Result = SweepApplied
	outcome.Amount = result.amount
	return outcome, nil
}

// ListSweepCandidates returns up to limit ACTIVE auto-sweep goals that are due
// at now, earliest first. A non-positive limit falls back to the batch size.
func (service *Service) ListSweepCandidates(ctx context.Context, now time.Time, limit int) ([]Goal, error) {
	if limit <= 0 {
		limit = service.limits.BatchSize
	}
	return service.store.ListSweepCandidates(ctx, now.UTC(), limit)
}

func (service *Service) sweepReferenceID(goalID string, periodKey string) string {
	return uuid.NewSHA1(service.namespace, []byte(goalID+":"+periodKey)).String()
}
