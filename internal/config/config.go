// Package config loads application configuration from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.
type Config struct {
	Env  string `envconfig:"APP_ENV" default:"dev"`
	Port string `envconfig:"APP_PORT" default:"8080"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"mysql"`
	SeedFile    string `envconfig:"SEED_FILE"`

	DBUser string `envconfig:"DB_USER"`
	DBPass string `envconfig:"DB_PASS"`
	DBHost string `envconfig:"DB_HOST" default:"127.0.0.1"`
	DBPort string `envconfig:"DB_PORT" default:"3306"`
	DBName string `envconfig:"DB_NAME"`

	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	DefaultTimezone string        `envconfig:"DEFAULT_TIMEZONE" default:"America/Puerto_Rico"`
	AppURL          string        `envconfig:"APP_URL" default:"http://localhost:8080"`
	ZapierHookURL   string        `envconfig:"ZAPIER_HOOK_URL"`
	DoseLinkTTL     time.Duration `envconfig:"DOSE_LINK_TTL" default:"72h"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisTLS      bool   `envconfig:"REDIS_TLS" default:"false"`

	RabbitMQURL          string        `envconfig:"RABBITMQ_URL"`
	DispatchQueue        string        `envconfig:"DISPATCH_QUEUE" default:"dose.dispatch"`
	DispatchPollInterval time.Duration `envconfig:"DISPATCH_POLL_INTERVAL" default:"1s"`
	DispatchRetryDelay   time.Duration `envconfig:"DISPATCH_RETRY_DELAY" default:"30s"`

	PlannerSpec    string        `envconfig:"PLANNER_SPEC" default:"@every 5m"`
	PlannerHorizon time.Duration `envconfig:"PLANNER_HORIZON" default:"15m"`

	LedgerLockEnabled        bool          `envconfig:"LEDGER_LOCK_ENABLED" default:"false"`
	LedgerLockTTL            time.Duration `envconfig:"LEDGER_LOCK_TTL" default:"5s"`
	LedgerGuardRepeatConfirm bool          `envconfig:"LEDGER_GUARD_REPEAT_CONFIRM" default:"false"`
}

// Load reads .env (if any) and then the process environment.  A missing
// or unreadable .env is logged as a warning, not an error.
func Load(log *zap.Logger) (Config, error) {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn("no .env file found, using process environment")
		} else {
			log.Warn("load .env", zap.Error(err))
		}
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks combinations the struct tags cannot express.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET must not be empty")
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverMySQL:
		if c.DBUser == "" || c.DBName == "" {
			return errors.New("config: DB_USER and DB_NAME are required when STORE_DRIVER=mysql")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.PlannerHorizon <= 0 {
		return errors.New("config: PLANNER_HORIZON must be positive")
	}
	return nil
}
