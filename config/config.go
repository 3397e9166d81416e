/*
Package config loads server configuration from the environment.

SOURCES (later wins):
  1. Defaults below
  2. Optional .env file in the given directory
  3. Process environment
  4. Command-line flags (-port, -db), applied by cmd/server

KEYS:
  SERVER_PORT            HTTP port (8080)
  DATABASE_DRIVER        sqlite | postgres | memory (sqlite)
  SQLITE_PATH            SQLite file, ":memory:" allowed (wallet.db)
  DATABASE_URL           PostgreSQL DSN, required for postgres
  NOTIFIER               log | rabbitmq | kafka (log)
  RABBITMQ_URL           required for rabbitmq
  NOTIFICATION_EXCHANGE  topic exchange (wallet_events)
  KAFKA_BROKERS          comma separated, required for kafka
  KAFKA_TOPIC            (wallet_notifications)
  LOG_LEVEL              debug | info | warn | error (info)
  SCHEDULER_TIMEZONE     IANA zone for calendar triggers (UTC)
  ALLOWED_ORIGINS        comma separated CORS origins
  SEED_ACCOUNTS          dev only: "alice:100.00,bob:50" created at startup
*/
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	NotifierLog      = "log"
	NotifierRabbitMQ = "rabbitmq"
	NotifierKafka    = "kafka"
)

// Config holds all configuration for the wallet server.
type Config struct {
	ServerPort           int    `mapstructure:"SERVER_PORT"`
	DatabaseDriver       string `mapstructure:"DATABASE_DRIVER"`
	SQLitePath           string `mapstructure:"SQLITE_PATH"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	Notifier             string `mapstructure:"NOTIFIER"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	NotificationExchange string `mapstructure:"NOTIFICATION_EXCHANGE"`
	KafkaBrokers         string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic           string `mapstructure:"KAFKA_TOPIC"`
	LogLevel             string `mapstructure:"LOG_LEVEL"`
	SchedulerTimezone    string `mapstructure:"SCHEDULER_TIMEZONE"`
	AllowedOrigins       string `mapstructure:"ALLOWED_ORIGINS"`
	SeedAccounts         string `mapstructure:"SEED_ACCOUNTS"`
}

// LoadConfig reads configuration from the environment and an optional .env
// file in path.
func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("DATABASE_DRIVER", DriverSQLite)
	viper.SetDefault("SQLITE_PATH", "wallet.db")
	viper.SetDefault("NOTIFIER", NotifierLog)
	viper.SetDefault("NOTIFICATION_EXCHANGE", "wallet_events")
	viper.SetDefault("KAFKA_TOPIC", "wallet_notifications")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("SCHEDULER_TIMEZONE", "UTC")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:8080")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("KAFKA_BROKERS")
	_ = viper.BindEnv("SEED_ACCOUNTS")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	switch c.Notifier {
	case NotifierLog:
	case NotifierRabbitMQ:
		if strings.TrimSpace(c.RabbitMQURL) == "" {
			return errors.New("RABBITMQ_URL is required for the rabbitmq notifier")
		}
	case NotifierKafka:
		if len(c.Brokers()) == 0 {
			return errors.New("KAFKA_BROKERS is required for the kafka notifier")
		}
	default:
		return fmt.Errorf("unknown NOTIFIER %q", c.Notifier)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := c.Seeds(); err != nil {
		return err
	}
	return nil
}

func (c *Config) Brokers() []string { return splitList(c.KafkaBrokers) }

func (c *Config) Origins() []string { return splitList(c.AllowedOrigins) }

// Location resolves SCHEDULER_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.SchedulerTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_TIMEZONE %q: %w", c.SchedulerTimezone, err)
	}
	return loc, nil
}

// Level resolves LOG_LEVEL.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Seed is an account created at startup.
type Seed struct {
	Username string
	Balance  decimal.Decimal
}

// Seeds parses SEED_ACCOUNTS.
func (c *Config) Seeds() ([]Seed, error) {
	var seeds []Seed
	for _, item := range splitList(c.SeedAccounts) {
		name, amount, ok := strings.Cut(item, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid SEED_ACCOUNTS entry %q, want name:balance", item)
		}
		balance, err := decimal.NewFromString(strings.TrimSpace(amount))
		if err != nil {
			return nil, fmt.Errorf("invalid SEED_ACCOUNTS balance for %s: %w", name, err)
		}
		seeds = append(seeds, Seed{Username: strings.TrimSpace(name), Balance: balance})
	}
	return seeds, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
