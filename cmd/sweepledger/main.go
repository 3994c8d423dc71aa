package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/sweepledger/internal/config"
	"github.com/MarkoPoloResearchLab/sweepledger/internal/httpapi"
	"github.com/MarkoPoloResearchLab/sweepledger/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/sweepledger/internal/sweep"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	flagDatabaseURL = "database-url"
	flagListenAddr  = "listen-addr"
	flagLogLevel    = "log-level"
	flagEnvFile     = "env-file"
	flagSweep       = "sweep"
	defaultEnvFile  = ".env"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sweepledger: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:           "sweepledger",
		Short:         "Account ledger and savings goal auto-sweep engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, v, cfg)
		},
	}

	cmd.PersistentFlags().String(flagDatabaseURL, "", "PostgreSQL URL or sqlite path (sqlite://...)")
	cmd.PersistentFlags().String(flagLogLevel, "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String(flagEnvFile, defaultEnvFile, "optional .env file loaded before the environment is read")

	cmd.AddCommand(newServeCommand(cfg), newSweepCommand(cfg), newMigrateCommand(cfg))
	return cmd
}

func newServeCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the auto-sweep loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().String(flagListenAddr, "", "HTTP listen address")
	cmd.Flags().Bool(flagSweep, true, "run the periodic auto-sweep loop")
	return cmd
}

func newSweepCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one auto-sweep tick and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSweepOnce(ctx, cfg)
		},
	}
}

func newMigrateCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			db, cleanup, _, err := openDatabase(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("database open: %w", err)
			}
			defer func() { _ = cleanup() }()
			if err := gormstore.Migrate(db); err != nil {
				return err
			}
			logger.Info("schema migrated")
			return nil
		},
	}
}

// loadConfig layers flags over environment over .env over defaults.
func loadConfig(cmd *cobra.Command, v *viper.Viper, cfg *config.Config) error {
	envFile, err := cmd.Flags().GetString(flagEnvFile)
	if err != nil {
		return err
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	config.Bind(v)

	flagKeys := map[string]string{
		flagDatabaseURL: config.KeyDatabaseURL,
		flagLogLevel:    config.KeyLogLevel,
		flagListenAddr:  config.KeyListenAddr,
		flagSweep:       config.KeySweepEnabled,
	}
	for flagName, key := range flagKeys {
		flag := cmd.Flags().Lookup(flagName)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return err
		}
	}

	loaded, err := config.Load(v)
	if err != nil {
		return err
	}
	*cfg = loaded
	return nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	router := httpapi.NewRouter(httpapi.Config{AllowedOrigins: cfg.CORSOrigins}, app.ledger, app.goals, logger)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return httpapi.Run(groupCtx, cfg.ListenAddr, router, logger)
	})
	if cfg.Sweep.Enabled {
		group.Go(func() error {
			runSweepLoop(groupCtx, app.scheduler, cfg.Sweep.Interval, logger)
			return nil
		})
	}
	return group.Wait()
}

func runSweepOnce(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	report, err := app.scheduler.RunOnce(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	logReport(logger, report)
	return nil
}

// runSweepLoop ticks until ctx is cancelled. A failed tick is logged and the
// next tick still runs.
func runSweepLoop(ctx context.Context, scheduler *sweep.Scheduler, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("auto-sweep loop started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			logger.Info("auto-sweep loop stopped")
			return
		case tick := <-ticker.C:
			report, err := scheduler.RunOnce(ctx, tick.UTC())
			if err != nil {
				logger.Error("auto-sweep tick failed", zap.Error(err))
				continue
			}
			logReport(logger, report)
		}
	}
}

func logReport(logger *zap.Logger, report sweep.Report) {
	if report.Disabled {
		return
	}
	logger.Info("auto-sweep tick finished",
		zap.Int("processed", report.Processed),
		zap.Int("swept", report.Swept),
		zap.Int("completed", report.Completed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
}
