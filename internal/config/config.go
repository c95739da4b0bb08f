package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/transfer-engine/internal/limits"
)

const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`

	SettlementURL     string        `env:"SETTLEMENT_URL" envDefault:"http://mock-settlement:8081"`
	SettlementTimeout time.Duration `env:"SETTLEMENT_TIMEOUT" envDefault:"5s"`
	SettlementRPS     float64       `env:"SETTLEMENT_RPS" envDefault:"20"`
	SettlementBurst   int           `env:"SETTLEMENT_BURST" envDefault:"5"`

	LockBackend string        `env:"LOCK_BACKEND" envDefault:"memory"`
	RedisURL    string        `env:"REDIS_URL"`
	LockPrefix  string        `env:"LOCK_PREFIX" envDefault:"transfer-engine:lock"`
	LockTTL     time.Duration `env:"LOCK_TTL" envDefault:"30s"`
	LockWait    time.Duration `env:"LOCK_WAIT" envDefault:"3s"`

	RabbitMQURL    string `env:"RABBITMQ_URL"`
	EventsExchange string `env:"EVENTS_EXCHANGE" envDefault:"transfer.events"`

	SweepSchedule    string        `env:"SWEEP_SCHEDULE" envDefault:"@every 1m"`
	SweepBatchSize   int           `env:"SWEEP_BATCH_SIZE" envDefault:"100"`
	SweepConcurrency int           `env:"SWEEP_CONCURRENCY" envDefault:"8"`
	RetrySchedule    string        `env:"RETRY_SCHEDULE" envDefault:"@every 5m"`
	RetryMinAge      time.Duration `env:"RETRY_MIN_AGE" envDefault:"2m"`
	RetryBatchSize   int           `env:"RETRY_BATCH_SIZE" envDefault:"50"`

	IdempotencyTTL           time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	IdempotencyPurgeSchedule string        `env:"IDEMPOTENCY_PURGE_SCHEDULE" envDefault:"@hourly"`

	DefaultDailyLimit   decimal.Decimal `env:"DEFAULT_DAILY_LIMIT" envDefault:"5000"`
	DefaultMonthlyLimit decimal.Decimal `env:"DEFAULT_MONTHLY_LIMIT" envDefault:"50000"`
	DefaultPerTxMax     decimal.Decimal `env:"DEFAULT_PER_TX_MAX" envDefault:"2500"`
	DefaultPerTxMin     decimal.Decimal `env:"DEFAULT_PER_TX_MIN" envDefault:"0.01"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.LockBackend {
	case LockBackendMemory:
	case LockBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when LOCK_BACKEND=%s", LockBackendRedis)
		}
	default:
		return fmt.Errorf("unknown LOCK_BACKEND %q", c.LockBackend)
	}
	if c.LockTTL <= c.SettlementTimeout {
		return fmt.Errorf("LOCK_TTL (%s) must exceed SETTLEMENT_TIMEOUT (%s)", c.LockTTL, c.SettlementTimeout)
	}
	if c.SweepConcurrency < 1 {
		return fmt.Errorf("SWEEP_CONCURRENCY must be at least 1")
	}
	if c.IdempotencyTTL <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL must be positive")
	}
	if c.DefaultPerTxMin.GreaterThan(c.DefaultPerTxMax) {
		return fmt.Errorf("DEFAULT_PER_TX_MIN exceeds DEFAULT_PER_TX_MAX")
	}
	return nil
}

func (c *Config) LimitDefaults() limits.Defaults {
	return limits.Defaults{
		DailyLimit:        c.DefaultDailyLimit,
		MonthlyLimit:      c.DefaultMonthlyLimit,
		PerTransactionMax: c.DefaultPerTxMax,
		PerTransactionMin: c.DefaultPerTxMin,
	}
}
