package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Scheduler    SchedulerConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// SchedulerConfig defines chat assignment and SLA-deadline parameters.
type SchedulerConfig struct {
	OperatorCapacity        int
	ResponseDeadlineMinutes int
	ExtensionGraceSeconds   int
	SweepIntervalSeconds    int
}

// NotificationConfig holds outbound event fan-out endpoints.
type NotificationConfig struct {
	RedisChannel string
	AMQPURL      string
	AMQPExchange string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "client-support-chat"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Scheduler: SchedulerConfig{
			OperatorCapacity:        getEnvAsInt("SCHEDULER_OPERATOR_CAPACITY", 2),
			ResponseDeadlineMinutes: getEnvAsInt("SCHEDULER_RESPONSE_DEADLINE_MINUTES", 15),
			ExtensionGraceSeconds:   getEnvAsInt("SCHEDULER_EXTENSION_GRACE_SECONDS", 15),
			SweepIntervalSeconds:    getEnvAsInt("SCHEDULER_SWEEP_INTERVAL_SECONDS", 5),
		},
		Notification: NotificationConfig{
			RedisChannel: getEnv("NOTIFY_REDIS_CHANNEL", "support.events"),
			AMQPURL:      os.Getenv("AMQP_URL"),
			AMQPExchange: getEnv("AMQP_EXCHANGE", "support.chat"),
		},
	}

	if cfg.Scheduler.OperatorCapacity <= 0 {
		return nil, fmt.Errorf("SCHEDULER_OPERATOR_CAPACITY must be positive")
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// ResponseDeadline returns the per-chat operator response window.
func (s SchedulerConfig) ResponseDeadline() time.Duration {
	return time.Duration(s.ResponseDeadlineMinutes) * time.Minute
}

// ExtensionGrace returns the one-time grace window granted after a lapse.
func (s SchedulerConfig) ExtensionGrace() time.Duration {
	return time.Duration(s.ExtensionGraceSeconds) * time.Second
}

// SweepInterval returns the cadence for deadline sweeps; zero disables the
// background ticker and leaves only request-driven sweeps.
func (s SchedulerConfig) SweepInterval() time.Duration {
	if s.SweepIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
