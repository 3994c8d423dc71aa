package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/sweepledger/internal/audit"
	"github.com/MarkoPoloResearchLab/sweepledger/internal/collaborators"
	"github.com/MarkoPoloResearchLab/sweepledger/internal/config"
	"github.com/MarkoPoloResearchLab/sweepledger/internal/events"
	"github.com/MarkoPoloResearchLab/sweepledger/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/sweepledger/internal/sweep"
	"github.com/MarkoPoloResearchLab/sweepledger/pkg/goals"
	"github.com/MarkoPoloResearchLab/sweepledger/pkg/ledger"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type app struct {
	ledger    *ledger.Service
	goals     *goals.Service
	scheduler *sweep.Scheduler
	closers   []func() error
}

// Close releases the database and event transports in reverse order.
func (application *app) Close() {
	for index := len(application.closers) - 1; index >= 0; index-- {
		_ = application.closers[index]()
	}
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	application := &app{}
	db, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	application.closers = append(application.closers, cleanup)
	if driver == driverSQLite {
		if err := gormstore.Migrate(db); err != nil {
			application.Close()
			return nil, err
		}
	}

	publisher, err := buildPublisher(ctx, cfg.Events, logger, application)
	if err != nil {
		application.Close()
		return nil, err
	}

	// An empty allow-list still validates against ISO 4217.
	currencies, err := collaborators.NewISOCurrencyValidator(cfg.Currencies...)
	if err != nil {
		application.Close()
		return nil, err
	}
	clock := func() time.Time { return time.Now().UTC() }
	options := []ledger.ServiceOption{
		ledger.WithAccountNumberGenerator(collaborators.NewUUIDAccountNumberGenerator()),
		ledger.WithCurrencyValidator(currencies),
		ledger.WithOperationLogger(audit.NewZapOperationLogger(logger)),
		ledger.WithAuditSink(audit.NewZapAuditSink(logger)),
		ledger.WithEventPublisher(publisher),
	}
	if len(cfg.Customers) > 0 {
		options = append(options, ledger.WithCustomerDirectory(collaborators.NewStaticCustomerDirectory(cfg.Customers...)))
	}

	ledgerService, err := ledger.NewService(gormstore.New(db), cfg.Limits.Ledger, clock, options...)
	if err != nil {
		application.Close()
		return nil, fmt.Errorf("ledger service init: %w", err)
	}
	var goalOptions []goals.ServiceOption
	if cfg.Sweep.Namespace != uuid.Nil {
		goalOptions = append(goalOptions, goals.WithSweepNamespace(cfg.Sweep.Namespace))
	}
	goalService, err := goals.NewService(gormstore.NewGoalStore(db), ledgerService, cfg.Limits.Goals, clock, goalOptions...)
	if err != nil {
		application.Close()
		return nil, fmt.Errorf("goal service init: %w", err)
	}
	scheduler, err := sweep.NewScheduler(goalService, sweep.Config{
		Enabled:     cfg.Sweep.Enabled,
		BatchSize:   cfg.Sweep.BatchSize,
		Concurrency: cfg.Sweep.Concurrency,
	}, logger.Named("sweep"))
	if err != nil {
		application.Close()
		return nil, err
	}

	application.ledger = ledgerService
	application.goals = goalService
	application.scheduler = scheduler
	return application, nil
}

// buildPublisher fans account events out to every configured transport.
func buildPublisher(ctx context.Context, cfg config.EventsConfig, logger *zap.Logger, application *app) (ledger.EventPublisher, error) {
	clock := func() time.Time { return time.Now().UTC() }
	eventLogger := logger.Named("events")
	var fanout events.Fanout
	if cfg.Log {
		fanout = append(fanout, events.NewLogPublisher(eventLogger))
	}
	if cfg.SQSQueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		fanout = append(fanout, events.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.SQSQueueURL, eventLogger, clock))
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		application.closers = append(application.closers, client.Close)
		fanout = append(fanout, events.NewRedisStreamPublisher(client, cfg.RedisStream, cfg.RedisMaxLen, eventLogger, clock))
	}
	return fanout, nil
}

func newLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: log level %q", config.ErrInvalidConfig, level)
	}
	loggerConfig := zap.NewProductionConfig()
	if parsed == zapcore.DebugLevel {
		loggerConfig = zap.NewDevelopmentConfig()
	}
	loggerConfig.Level = zap.NewAtomicLevelAt(parsed)
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}
	return logger, nil
}
