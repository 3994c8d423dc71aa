// Package limits holds the read-only balance, transaction and goal thresholds.
package limits

import (
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/sweepledger/pkg/money"
)

var ErrInvalidPolicy = errors.New("invalid limit policy")

// LedgerLimits bounds balances and per-account transaction volume.
type LedgerLimits struct {
	MinBalance                money.Amount
	MaxBalance                money.Amount
	MaxTransactionAmount      money.Amount
	MaxDailyTransactionCount  int
	MaxDailyTransactionAmount money.Amount
	// DayLocation fixes the timezone of the daily window. Nil means UTC.
	DayLocation *time.Location
}

// GoalLimits bounds goal targets and tunes auto-sweep.
type GoalLimits struct {
	MinGoalAmount             money.Amount
	MaxGoalAmount             money.Amount
	MinBalanceBuffer          money.Amount
	DefaultContributionAmount money.Amount
	MinContributionAmount     money.Amount
	MaxContributionAmount     money.Amount
	BatchSize                 int
	AutoSweepEnabled          bool
}

// Policy aggregates all configured thresholds.
type Policy struct {
	Ledger LedgerLimits
	Goals  GoalLimits
}

// Default returns the production defaults.
func Default() Policy {
	return Policy{
		Ledger: LedgerLimits{
			MinBalance:                money.Zero,
			MaxBalance:                money.MustParse("999999999.99"),
			MaxTransactionAmount:      money.MustParse("1000000.00"),
			MaxDailyTransactionCount:  100,
			MaxDailyTransactionAmount: money.MustParse("5000000.00"),
			DayLocation:               time.UTC,
		},
		Goals: GoalLimits{
			MinGoalAmount:             money.MustParse("1.00"),
			MaxGoalAmount:             money.MustParse("100000000.00"),
			MinBalanceBuffer:          money.Zero,
			DefaultContributionAmount: money.MustParse("50.00"),
			MinContributionAmount:     money.MustParse("1.00"),
			MaxContributionAmount:     money.MustParse("10000.00"),
			BatchSize:                 100,
			AutoSweepEnabled:          true,
		},
	}
}

// Validate rejects inverted or non-positive bounds.
func (policy Policy) Validate() error {
	if err := policy.Ledger.Validate(); err != nil {
		return err
	}
	return policy.Goals.Validate()
}

func (ledgerLimits LedgerLimits) Validate() error {
	if ledgerLimits.MinBalance > ledgerLimits.MaxBalance {
		return fmt.Errorf("%w: min balance %s exceeds max balance %s", ErrInvalidPolicy, ledgerLimits.MinBalance, ledgerLimits.MaxBalance)
	}
	if !ledgerLimits.MaxTransactionAmount.IsPositive() {
		return fmt.Errorf("%w: max transaction amount must be positive", ErrInvalidPolicy)
	}
	if ledgerLimits.MaxDailyTransactionCount <= 0 {
		return fmt.Errorf("%w: max daily transaction count must be positive", ErrInvalidPolicy)
	}
	if !ledgerLimits.MaxDailyTransactionAmount.IsPositive() {
		return fmt.Errorf("%w: max daily transaction amount must be positive", ErrInvalidPolicy)
	}
	return nil
}

func (goalLimits GoalLimits) Validate() error {
	if !goalLimits.MinGoalAmount.IsPositive() {
		return fmt.Errorf("%w: min goal amount must be positive", ErrInvalidPolicy)
	}
	if goalLimits.MinGoalAmount > goalLimits.MaxGoalAmount {
		return fmt.Errorf("%w: min goal amount %s exceeds max goal amount %s", ErrInvalidPolicy, goalLimits.MinGoalAmount, goalLimits.MaxGoalAmount)
	}
	if goalLimits.MinBalanceBuffer.IsNegative() {
		return fmt.Errorf("%w: min balance buffer must not be negative", ErrInvalidPolicy)
	}
	if !goalLimits.MinContributionAmount.IsPositive() {
		return fmt.Errorf("%w: min contribution amount must be positive", ErrInvalidPolicy)
	}
	if goalLimits.MinContributionAmount > goalLimits.MaxContributionAmount {
		return fmt.Errorf("%w: min contribution amount %s exceeds max contribution amount %s", ErrInvalidPolicy, goalLimits.MinContributionAmount, goalLimits.MaxContributionAmount)
	}
	if !goalLimits.DefaultContributionAmount.IsPositive() {
		return fmt.Errorf("%w: default contribution amount must be positive", ErrInvalidPolicy)
	}
	if goalLimits.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidPolicy)
	}
	return nil
}

// DayWindow returns [start-of-day, start-of-next-day) containing at, in the reference timezone.
func (ledgerLimits LedgerLimits) DayWindow(at time.Time) (time.Time, time.Time) {
	location := ledgerLimits.DayLocation
	if location == nil {
		location = time.UTC
	}
	local := at.In(location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, location)
	return start, start.AddDate(0, 0, 1)
}
