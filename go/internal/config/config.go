// Package config loads service configuration from a YAML file with
// environment-variable overrides for deploy-time settings.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Queue    QueueConfig    `yaml:"queue"`
	Outbox   OutboxConfig   `yaml:"outbox"`
	Rules    RulesConfig    `yaml:"rules"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// URL returns the pgx pool connection string.
func (c DatabaseConfig) URL() string {
	return c.urlWithScheme("postgres")
}

// MigrateURL returns the connection string for golang-migrate's pgx driver.
func (c DatabaseConfig) MigrateURL() string {
	return c.urlWithScheme("pgx5")
}

func (c DatabaseConfig) urlWithScheme(scheme string) string {
	return fmt.Sprintf("%s://%s:%s@%s:%d/%s?sslmode=%s",
		scheme, url.QueryEscape(c.User), url.QueryEscape(c.Password),
		c.Host, c.Port, c.Database, c.SSLMode)
}

// QueueConfig configures the inbound queue and the consumer.
type QueueConfig struct {
	URL      string `yaml:"url"`
	Stream   string `yaml:"stream"`
	Subject  string `yaml:"subject"`
	Consumer string `yaml:"consumer"`

	MaxMessages       int      `yaml:"max_messages"`
	WaitTime          Duration `yaml:"wait_time"`
	VisibilityTimeout Duration `yaml:"visibility_timeout"`
	PollerBackoff     Duration `yaml:"poller_backoff"`
	Pollers           int      `yaml:"pollers"`
	Workers           int      `yaml:"workers"`
	MaxInFlight       int      `yaml:"max_in_flight"`
	QueueCapacity     int      `yaml:"queue_capacity"`
	ShutdownGrace     Duration `yaml:"shutdown_grace"`

	DecisionStream  string `yaml:"decision_stream"`
	DecisionSubject string `yaml:"decision_subject"`
}

// OutboxConfig configures the outbox writer and publisher.
type OutboxConfig struct {
	Enabled            bool     `yaml:"enabled"`
	PollInterval       Duration `yaml:"poll_interval"`
	BatchSize          int      `yaml:"batch_size"`
	ClaimLease         Duration `yaml:"claim_lease"`
	MaxPublishAttempts int      `yaml:"max_publish_attempts"`
	BackoffBase        Duration `yaml:"backoff_base"`
	PublishWorkers     int      `yaml:"publish_workers"`
}

// RulesConfig configures the rule-chain thresholds.
type RulesConfig struct {
	AmountReviewThreshold float64 `yaml:"amount_review_threshold"`
	AmountDenyThreshold   float64 `yaml:"amount_deny_threshold"`
	ApproveRiskScore      float64 `yaml:"approve_risk_score"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Log:    LogConfig{Level: "info"},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "frauddetect",
			Password: "frauddetect",
			Database: "frauddetect",
			SSLMode:  "disable",
		},
		Queue: QueueConfig{
			URL:           "nats://localhost:4222",
			Stream:        "TRANSACTIONS",
			Subject:       "transactions.inbound",
			Consumer:      "fraud-detector",
			MaxMessages:   10,
			WaitTime:      Duration(10 * time.Second),
			PollerBackoff: Duration(200 * time.Millisecond),
			Pollers:       1,
			Workers:       4,
			QueueCapacity: 1000,
			ShutdownGrace: Duration(10 * time.Second),

			DecisionStream:  "DECISIONS",
			DecisionSubject: "transactions.decisions",
		},
		Outbox: OutboxConfig{
			Enabled:            true,
			PollInterval:       Duration(time.Second),
			BatchSize:          10,
			ClaimLease:         Duration(30 * time.Second),
			MaxPublishAttempts: 5,
			BackoffBase:        Duration(time.Second),
			PublishWorkers:     2,
		},
		Rules: RulesConfig{
			AmountReviewThreshold: 5000,
			AmountDenyThreshold:   10000,
			ApproveRiskScore:      0.1,
		},
	}
}

// Load reads the config file at path (when non-empty), applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsInt("SERVER_PORT", c.Server.Port)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvAsInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.Queue.URL = getEnv("NATS_URL", c.Queue.URL)
}

func (c *Config) validate() error {
	if c.Queue.MaxMessages < 1 {
		return fmt.Errorf("queue.max_messages must be at least 1")
	}
	if c.Outbox.Enabled && c.Outbox.MaxPublishAttempts < 1 {
		return fmt.Errorf("outbox.max_publish_attempts must be at least 1")
	}
	if c.Rules.AmountDenyThreshold < c.Rules.AmountReviewThreshold {
		return fmt.Errorf("rules.amount_deny_threshold must not be below rules.amount_review_threshold")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
