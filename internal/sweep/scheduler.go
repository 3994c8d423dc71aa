// Package sweep drives one auto-sweep tick over the goals that are due.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/sweepledger/pkg/goals"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 1

var (
	ErrInvalidConfig = errors.New("invalid sweep scheduler config")
	ErrSweepPanic    = errors.New("auto-sweep panicked")
)

// Processor is the goal engine surface the scheduler drives.
type Processor interface {
	ListSweepCandidates(ctx context.Context, now time.Time, limit int) ([]goals.Goal, error)
	ProcessAutoSweep(ctx context.Context, goalID string, now time.Time) (goals.SweepOutcome, error)
}

// Config controls one tick.
type Config struct {
	Enabled     bool
	BatchSize   int
	Concurrency int
}

// Report counts what one tick did.
type Report struct {
	Disabled  bool
	Processed int
	Swept     int
	Completed int
	Skipped   int
	Failed    int
}

// Scheduler processes one bounded page of due goals per RunOnce call.
type Scheduler struct {
	processor Processor
	config    Config
	logger    *zap.Logger
}

// NewScheduler validates the configuration.
func NewScheduler(processor Processor, config Config, logger *zap.Logger) (*Scheduler, error) {
	if processor == nil {
		return nil, fmt.Errorf("%w: processor is nil", ErrInvalidConfig)
	}
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{processor: processor, config: config, logger: logger}, nil
}

// RunOnce sweeps every due goal in one page. A failing goal is logged and
// counted; it never stops the rest of the batch. The only returned error is a
// failure to list candidates.
func (scheduler *Scheduler) RunOnce(ctx context.Context, now time.Time) (Report, error) {
	if !scheduler.config.Enabled {
		scheduler.logger.Info("auto-sweep disabled")
		return Report{Disabled: true}, nil
	}
	candidates, err := scheduler.processor.ListSweepCandidates(ctx, now, scheduler.config.BatchSize)
	if err != nil {
		return Report{}, fmt.Errorf("list sweep candidates: %w", err)
	}

	var (
		mutex  sync.Mutex
		report Report
		group  errgroup.Group
	)
	group.SetLimit(scheduler.config.Concurrency)
	for _, candidate := range candidates {
		goalID := candidate.ID
		group.Go(func() error {
			outcome, err := scheduler.processOne(ctx, goalID, now)
			mutex.Lock()
			defer mutex.Unlock()
			report.Processed++
			if err != nil {
				report.Failed++
				scheduler.logger.Error("auto-sweep failed",
					zap.String("goal_id", goalID),
					zap.Error(err),
				)
				return nil
			}
			switch {
			case outcome.Result == goals.SweepApplied:
				report.Swept++
				scheduler.logger.Info("auto-sweep applied",
					zap.String("goal_id", goalID),
					zap.String("reference_id", outcome.ReferenceID),
					zap.String("amount", outcome.Amount.String()),
				)
			case outcome.Result == goals.SweepCompleted:
				report.Completed++
			default:
				report.Skipped++
				scheduler.logger.Debug("auto-sweep skipped",
					zap.String("goal_id", goalID),
					zap.String("result", string(outcome.Result)),
				)
			}
			return nil
		})
	}
	_ = group.Wait()

	scheduler.logger.Info("auto-sweep tick finished",
		zap.Int("processed", report.Processed),
		zap.Int("swept", report.Swept),
		zap.Int("completed", report.Completed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (scheduler *Scheduler) processOne(ctx context.Context, goalID string, now time.Time) (outcome goals.SweepOutcome, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: %v", ErrSweepPanic, recovered)
		}
	}()
	if err := ctx.Err(); err != nil {
		return goals.SweepOutcome{GoalID: goalID}, err
	}
	return scheduler.processor.ProcessAutoSweep(ctx, goalID, now)
}
