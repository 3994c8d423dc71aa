// Package config resolves runtime settings from flags, environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/sweepledger/pkg/limits"
	"github.com/MarkoPoloResearchLab/sweepledger/pkg/money"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "SWEEPLEDGER"

const (
	KeyDatabaseURL = "database_url"
	KeyListenAddr  = "listen_addr"
	KeyLogLevel    = "log_level"

	keyMinBalance                = "limits.min_balance"
	keyMaxBalance                = "limits.max_balance"
	keyMaxTransactionAmount      = "limits.max_transaction_amount"
	keyMaxDailyTransactionCount  = "limits.max_daily_transaction_count"
	keyMaxDailyTransactionAmount = "limits.max_daily_transaction_amount"
	keyDayTimezone               = "limits.day_timezone"
	keyMinGoalAmount             = "limits.min_goal_amount"
	keyMaxGoalAmount             = "limits.max_goal_amount"
	keyMinBalanceBuffer          = "limits.min_balance_buffer"
	keyDefaultContributionAmount = "limits.default_contribution_amount"
	keyMinContributionAmount     = "limits.min_contribution_amount"
	keyMaxContributionAmount     = "limits.max_contribution_amount"

	KeySweepEnabled     = "sweep.enabled"
	KeySweepBatchSize   = "sweep.batch_size"
	KeySweepConcurrency = "sweep.concurrency"
	KeySweepInterval    = "sweep.interval"
	keySweepNamespace   = "sweep.namespace"

	keyEventsLog         = "events.log"
	keyEventsSQSQueueURL = "events.sqs_queue_url"
	keyEventsRedisAddr   = "events.redis_addr"
	keyEventsRedisPass   = "events.redis_password"
	keyEventsRedisDB     = "events.redis_db"
	keyEventsRedisStream = "events.redis_stream"
	keyEventsRedisMaxLen = "events.redis_max_len"

	keyAccountCurrencies = "accounts.currencies"
	keyAccountCustomers  = "accounts.customers"
	keyCORSOrigins       = "http.cors_origins"
)

const (
	defaultDatabaseURL   = "sqlite:///tmp/sweepledger.db"
	defaultListenAddr    = ":8080"
	defaultLogLevel      = "info"
	defaultSweepInterval = time.Minute
	defaultRedisStream   = "sweepledger.account-events"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the fully resolved runtime configuration.
type Config struct {
	DatabaseURL string
	ListenAddr  string
	LogLevel    string
	Limits      limits.Policy
	Sweep       SweepConfig
	Events      EventsConfig
	Currencies  []string
	Customers   []string
	CORSOrigins []string
}

// SweepConfig tunes the auto-sweep loop.
type SweepConfig struct {
	Enabled     bool
	BatchSize   int
	Concurrency int
	Interval    time.Duration
	Namespace   uuid.UUID
}

// EventsConfig selects the account event transports. Empty targets are off.
type EventsConfig struct {
	Log           bool
	SQSQueueURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	RedisMaxLen   int64
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error; variables already set win.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Bind prepares v for SWEEPLEDGER_-prefixed environment lookups and installs
// the defaults.
func Bind(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	defaults := limits.Default()
	v.SetDefault(KeyDatabaseURL, defaultDatabaseURL)
	v.SetDefault(KeyListenAddr, defaultListenAddr)
	v.SetDefault(KeyLogLevel, defaultLogLevel)

	v.SetDefault(keyMinBalance, defaults.Ledger.MinBalance.String())
	v.SetDefault(keyMaxBalance, defaults.Ledger.MaxBalance.String())
	v.SetDefault(keyMaxTransactionAmount, defaults.Ledger.MaxTransactionAmount.String())
	v.SetDefault(keyMaxDailyTransactionCount, defaults.Ledger.MaxDailyTransactionCount)
	v.SetDefault(keyMaxDailyTransactionAmount, defaults.Ledger.MaxDailyTransactionAmount.String())
	v.SetDefault(keyDayTimezone, time.UTC.String())
	v.SetDefault(keyMinGoalAmount, defaults.Goals.MinGoalAmount.String())
	v.SetDefault(keyMaxGoalAmount, defaults.Goals.MaxGoalAmount.String())
	v.SetDefault(keyMinBalanceBuffer, defaults.Goals.MinBalanceBuffer.String())
	v.SetDefault(keyDefaultContributionAmount, defaults.Goals.DefaultContributionAmount.String())
	v.SetDefault(keyMinContributionAmount, defaults.Goals.MinContributionAmount.String())
	v.SetDefault(keyMaxContributionAmount, defaults.Goals.MaxContributionAmount.String())

	v.SetDefault(KeySweepEnabled, defaults.Goals.AutoSweepEnabled)
	v.SetDefault(KeySweepBatchSize, defaults.Goals.BatchSize)
	v.SetDefault(KeySweepConcurrency, 1)
	v.SetDefault(KeySweepInterval, defaultSweepInterval)
	v.SetDefault(keySweepNamespace, "")

	v.SetDefault(keyEventsLog, true)
	v.SetDefault(keyEventsRedisStream, defaultRedisStream)
	v.SetDefault(keyEventsRedisDB, 0)
	v.SetDefault(keyEventsRedisMaxLen, 0)
}

// Load resolves a Config from v. Bind must have been called on v.
func Load(v *viper.Viper) (Config, error) {
	policy, err := loadPolicy(v)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		DatabaseURL: strings.TrimSpace(v.GetString(KeyDatabaseURL)),
		ListenAddr:  strings.TrimSpace(v.GetString(KeyListenAddr)),
		LogLevel:    strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
		Limits:      policy,
		Sweep: SweepConfig{
			Enabled:     policy.Goals.AutoSweepEnabled,
			BatchSize:   policy.Goals.BatchSize,
			Concurrency: v.GetInt(KeySweepConcurrency),
			Interval:    v.GetDuration(KeySweepInterval),
		},
		Events: EventsConfig{
			Log:           v.GetBool(keyEventsLog),
			SQSQueueURL:   strings.TrimSpace(v.GetString(keyEventsSQSQueueURL)),
			RedisAddr:     strings.TrimSpace(v.GetString(keyEventsRedisAddr)),
			RedisPassword: v.GetString(keyEventsRedisPass),
			RedisDB:       v.GetInt(keyEventsRedisDB),
			RedisStream:   strings.TrimSpace(v.GetString(keyEventsRedisStream)),
			RedisMaxLen:   v.GetInt64(keyEventsRedisMaxLen),
		},
		Currencies:  splitList(v.GetStringSlice(keyAccountCurrencies)),
		Customers:   splitList(v.GetStringSlice(keyAccountCustomers)),
		CORSOrigins: splitList(v.GetStringSlice(keyCORSOrigins)),
	}
	if rawNamespace := strings.TrimSpace(v.GetString(keySweepNamespace)); rawNamespace != "" {
		namespace, err := uuid.Parse(rawNamespace)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, keySweepNamespace, err)
		}
		cfg.Sweep.Namespace = namespace
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot start with.
func (cfg Config) Validate() error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("%w: database url is required", ErrInvalidConfig)
	}
	if cfg.ListenAddr == "" {
		return fmt.Errorf("%w: listen addr is required", ErrInvalidConfig)
	}
	if cfg.Sweep.Concurrency <= 0 {
		return fmt.Errorf("%w: sweep concurrency must be positive", ErrInvalidConfig)
	}
	if cfg.Sweep.Interval <= 0 {
		return fmt.Errorf("%w: sweep interval must be positive", ErrInvalidConfig)
	}
	if cfg.Events.RedisAddr != "" && cfg.Events.RedisStream == "" {
		return fmt.Errorf("%w: redis stream name is required", ErrInvalidConfig)
	}
	if err := cfg.Limits.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func loadPolicy(v *viper.Viper) (limits.Policy, error) {
	var (
		policy limits.Policy
		err    error
	)
	amounts := []struct {
		key    string
		target *money.Amount
	}{
		{keyMinBalance, &policy.Ledger.MinBalance},
		{keyMaxBalance, &policy.Ledger.MaxBalance},
		{keyMaxTransactionAmount, &policy.Ledger.MaxTransactionAmount},
		{keyMaxDailyTransactionAmount, &policy.Ledger.MaxDailyTransactionAmount},
		{keyMinGoalAmount, &policy.Goals.MinGoalAmount},
		{keyMaxGoalAmount, &policy.Goals.MaxGoalAmount},
		{keyMinBalanceBuffer, &policy.Goals.MinBalanceBuffer},
		{keyDefaultContributionAmount, &policy.Goals.DefaultContributionAmount},
		{keyMinContributionAmount, &policy.Goals.MinContributionAmount},
		{keyMaxContributionAmount, &policy.Goals.MaxContributionAmount},
	}
	for _, amount := range amounts {
		*amount.target, err = money.Parse(v.GetString(amount.key))
		if err != nil {
			return limits.Policy{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, amount.key, err)
		}
	}
	policy.Ledger.MaxDailyTransactionCount = v.GetInt(keyMaxDailyTransactionCount)
	policy.Ledger.DayLocation, err = time.LoadLocation(v.GetString(keyDayTimezone))
	if err != nil {
		return limits.Policy{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, keyDayTimezone, err)
	}
	policy.Goals.BatchSize = v.GetInt(KeySweepBatchSize)
	policy.Goals.AutoSweepEnabled = v.GetBool(KeySweepEnabled)
	return policy, nil
}

// splitList accepts both repeated values and one comma-separated env value.
func splitList(values []string) []string {
	var items []string
	for _, value := range values {
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				items = append(items, trimmed)
			}
		}
	}
	return items
}
