package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"spendguard/internal/model"
)

type Config struct {
	DBUser  string
	DBPass  string
	DBHost  string
	DBPort  string
	DBName  string
	SSLMode string

	RedisHost string
	RedisPort string

	NatsHost string
	NatsPort string

	ApiPort    string
	ApiEnabled string

	// HourlyLimitMicros is the alert threshold in micro-dollars.
	HourlyLimitMicros int64

	// WebhookSecret signs inbound webhooks. An empty secret is only legal
	// when InsecureWebhook is set explicitly.
	WebhookSecret   string
	InsecureWebhook bool

	SlackWebhookURL string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	AlertEmailTo string
}

// New loads and validates configuration from environment variables.
// HTTP server is optional: if SPENDGUARD_API_ENABLED != "true", ApiAddr()
// returns an error and the HTTP server simply won't start. NATS is optional
// the same way — the bus and the reconcile worker only run when configured.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:          os.Getenv("SPENDGUARD_POSTGRES_USER"),
		DBPass:          os.Getenv("SPENDGUARD_POSTGRES_PASSWORD"),
		DBHost:          os.Getenv("SPENDGUARD_POSTGRES_HOST"),
		DBPort:          os.Getenv("SPENDGUARD_POSTGRES_PORT"),
		DBName:          os.Getenv("SPENDGUARD_POSTGRES_DB"),
		SSLMode:         os.Getenv("SPENDGUARD_POSTGRES_SSLMODE"),
		RedisHost:       os.Getenv("SPENDGUARD_REDIS_HOST"),
		RedisPort:       os.Getenv("SPENDGUARD_REDIS_PORT"),
		NatsHost:        os.Getenv("SPENDGUARD_NATS_HOST"),
		NatsPort:        os.Getenv("SPENDGUARD_NATS_PORT"),
		ApiPort:         os.Getenv("SPENDGUARD_API_PORT"),
		ApiEnabled:      os.Getenv("SPENDGUARD_API_ENABLED"),
		WebhookSecret:   os.Getenv("SPENDGUARD_WEBHOOK_SECRET"),
		InsecureWebhook: os.Getenv("SPENDGUARD_INSECURE_WEBHOOK") == "true",
		SlackWebhookURL: os.Getenv("SPENDGUARD_SLACK_WEBHOOK_URL"),
		SMTPHost:        os.Getenv("SPENDGUARD_SMTP_HOST"),
		SMTPPort:        getEnv("SPENDGUARD_SMTP_PORT", "587"),
		SMTPUsername:    os.Getenv("SPENDGUARD_SMTP_USERNAME"),
		SMTPPassword:    os.Getenv("SPENDGUARD_SMTP_PASSWORD"),
		AlertEmailTo:    os.Getenv("SPENDGUARD_ALERT_EMAIL_TO"),
	}

	// Required: database
	if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" || cfg.SSLMode == "" {
		return nil, fmt.Errorf("missing required env for database: SPENDGUARD_POSTGRES_USER/HOST/DB/SSLMODE")
	}

	// Required: redis
	if cfg.RedisHost == "" || cfg.RedisPort == "" {
		return nil, fmt.Errorf("missing required env for redis: SPENDGUARD_REDIS_HOST/PORT")
	}

	limit := getEnv("SPENDGUARD_HOURLY_LIMIT", "10.00")
	micros, err := model.ParseDollars(limit)
	if err != nil {
		return nil, fmt.Errorf("invalid SPENDGUARD_HOURLY_LIMIT: %w", err)
	}
	if micros <= 0 {
		return nil, fmt.Errorf("SPENDGUARD_HOURLY_LIMIT must be positive, got %q", limit)
	}
	cfg.HourlyLimitMicros = micros

	// Running without a webhook secret is an explicit opt-in, never a
	// silent fallback.
	if cfg.WebhookSecret == "" && !cfg.InsecureWebhook {
		return nil, fmt.Errorf("SPENDGUARD_WEBHOOK_SECRET is empty; set it or opt in with SPENDGUARD_INSECURE_WEBHOOK=true")
	}

	if (cfg.NatsHost == "") != (cfg.NatsPort == "") {
		return nil, fmt.Errorf("SPENDGUARD_NATS_HOST and SPENDGUARD_NATS_PORT must be set together")
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

// BusEnabled reports whether a NATS bus is configured.
func (c *Config) BusEnabled() bool {
	return c.NatsHost != "" && c.NatsPort != ""
}

// ApiAddr returns the HTTP listen address if the API is enabled.
// Returns an error if SPENDGUARD_API_ENABLED != "true" — callers should
// skip starting the HTTP server.
func (c *Config) ApiAddr() (string, error) {
	if c.ApiEnabled == "true" {
		if c.ApiPort == "" {
			return "", fmt.Errorf("SPENDGUARD_API_PORT is required when SPENDGUARD_API_ENABLED=true")
		}
		return ":" + c.ApiPort, nil
	}
	return "", fmt.Errorf("HTTP API is disabled (SPENDGUARD_API_ENABLED != true)")
}

// SlackConfigured reports whether the Slack alert channel can be built.
func (c *Config) SlackConfigured() bool {
	return c.SlackWebhookURL != ""
}

// EmailConfigured reports whether the email alert channel can be built.
func (c *Config) EmailConfigured() bool {
	return c.SMTPHost != "" && c.SMTPUsername != "" && c.SMTPPassword != "" && c.AlertEmailTo != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}
