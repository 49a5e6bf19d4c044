// Package config gathers all runtime configuration into one immutable
// value constructed at startup. Components receive the pieces they need as
// constructor parameters; nothing reads the environment after Load.
package config

import (
	"fmt"
	"os"
)

// Config is the application configuration.
type Config struct {
	HTTPPort string

	// InternalSecret authenticates inter-service calls. Requests carrying a
	// different secret are rejected with 401.
	InternalSecret string

	// DynamoDB table names for the ledger and roster.
	AccountsTableName string
	SessionsTableName string

	// NotificationsDBPath is the BoltDB file backing the notification store.
	NotificationsDBPath string

	// NotificationQueueURL is the SQS queue notification events are
	// published to for asynchronous dispatch.
	NotificationQueueURL string

	// SMTP settings. When SMTPMock is true the mock sender is used and the
	// remaining SMTP fields are ignored.
	SMTPMock bool
	SMTPAddr string
	SMTPFrom string
}

// Load reads the configuration from the environment. Callers load .env
// files (godotenv) before calling Load.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		InternalSecret:       os.Getenv("INTERNAL_SECRET"),
		AccountsTableName:    os.Getenv("DYNAMODB_ACCOUNTS_TABLE_NAME"),
		SessionsTableName:    os.Getenv("DYNAMODB_SESSIONS_TABLE_NAME"),
		NotificationsDBPath:  getEnv("NOTIFICATIONS_DB_PATH", "notifications.db"),
		NotificationQueueURL: os.Getenv("NOTIFICATION_QUEUE_URL"),
		SMTPMock:             os.Getenv("SMTP_MOCK") != "false",
		SMTPAddr:             os.Getenv("SMTP_ADDR"),
		SMTPFrom:             getEnv("SMTP_FROM", "noreply@kundapp.com"),
	}

	if cfg.InternalSecret == "" {
		return nil, fmt.Errorf("INTERNAL_SECRET environment variable not set")
	}
	if cfg.AccountsTableName == "" || cfg.SessionsTableName == "" {
		return nil, fmt.Errorf("one or more DynamoDB table name environment variables are not set")
	}
	if !cfg.SMTPMock && cfg.SMTPAddr == "" {
		return nil, fmt.Errorf("SMTP_ADDR must be set when SMTP_MOCK is disabled")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
