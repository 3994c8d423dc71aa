package goals

import "errors"

// Goal-level error values. Ledger failures that reach callers unchanged keep
// their ledger sentinel, e.g. ledger.ErrNotFound or ledger.ErrConcurrentUpdate.
var (
	ErrGoalNotFound           = errors.New("goal not found")
	ErrGoalValidation         = errors.New("goal validation failed")
	ErrGoalContributionFailed = errors.New("goal contribution failed")
	ErrDuplicateContribution  = errors.New("duplicate contribution reference id")
	ErrInvalidServiceConfig   = errors.New("invalid goal service config")
)
