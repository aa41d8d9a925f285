package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"bookcatalog/internal/storage"
)

// Backend names a storage implementation
type Backend string

const (
	BackendMemory     Backend = "memory"
	BackendFirebase   Backend = "firebase"
	BackendClickHouse Backend = "clickhouse"
)

// Config holds the application configuration
type Config struct {
	Backend Backend

	// Firebase Realtime Database configuration
	FirebaseURL        string
	FirebaseCollection string
	FirebaseAuth       string
	FirebaseTimeout    time.Duration
	FirebaseUpdateMode string // "put" replaces the record, "patch" merges fields

	// ClickHouse configuration
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseUseTLS   bool

	// HTTP API
	Port string

	// Telegram bot (disabled when TelegramToken is empty)
	TelegramToken  string
	AllowedUserIDs []int64
	WebhookMode    bool   // If true, use webhook mode; if false, use polling mode
	WebhookURL     string // URL for webhook (required if WebhookMode is true)

	LogLevel  string
	LogFormat string
}

// BotEnabled reports whether a Telegram token was configured
func (c *Config) BotEnabled() bool {
	return c.TelegramToken != ""
}

// LoadFromEnv loads configuration from environment variables.
// Missing or malformed values are returned as *storage.ConfigurationError.
func LoadFromEnv() (*Config, error) {
	config := &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if config.LogFormat != "json" && config.LogFormat != "console" {
		return nil, invalid("LOG_FORMAT", "must be json or console, got %q", config.LogFormat)
	}

	config.Backend = Backend(strings.ToLower(getEnv("STORAGE_BACKEND", string(BackendMemory))))

	switch config.Backend {
	case BackendMemory:
	case BackendFirebase:
		if err := config.loadFirebase(); err != nil {
			return nil, err
		}
	case BackendClickHouse:
		if err := config.loadClickHouse(); err != nil {
			return nil, err
		}
	default:
		return nil, invalid("STORAGE_BACKEND", "must be memory, firebase or clickhouse, got %q", config.Backend)
	}

	if err := config.loadTelegram(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) loadFirebase() error {
	c.FirebaseURL = strings.TrimSpace(os.Getenv("FIREBASE_DATABASE_URL"))
	if c.FirebaseURL == "" {
		return required("FIREBASE_DATABASE_URL", "when STORAGE_BACKEND is firebase")
	}

	c.FirebaseCollection = getEnv("FIREBASE_COLLECTION", "Book")
	c.FirebaseAuth = strings.TrimSpace(os.Getenv("FIREBASE_AUTH"))

	timeout, err := time.ParseDuration(getEnv("FIREBASE_TIMEOUT", "10s"))
	if err != nil || timeout <= 0 {
		return invalid("FIREBASE_TIMEOUT", "must be a positive duration such as 10s")
	}
	c.FirebaseTimeout = timeout

	c.FirebaseUpdateMode = strings.ToLower(getEnv("FIREBASE_UPDATE_MODE", "put"))
	if c.FirebaseUpdateMode != "put" && c.FirebaseUpdateMode != "patch" {
		return invalid("FIREBASE_UPDATE_MODE", "must be put or patch, got %q", c.FirebaseUpdateMode)
	}
	return nil
}

func (c *Config) loadClickHouse() error {
	c.ClickHouseHost = strings.TrimSpace(os.Getenv("CLICKHOUSE_HOST"))
	if c.ClickHouseHost == "" {
		return required("CLICKHOUSE_HOST", "when STORAGE_BACKEND is clickhouse")
	}

	portStr := os.Getenv("CLICKHOUSE_PORT")
	if portStr == "" {
		c.ClickHousePort = 9000 // Default ClickHouse native port
	} else {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return invalid("CLICKHOUSE_PORT", "must be a number, got %q", portStr)
		}
		c.ClickHousePort = port
	}

	c.ClickHouseDatabase = getEnv("CLICKHOUSE_DATABASE", "default")
	c.ClickHouseUser = getEnv("CLICKHOUSE_USER", "default")
	// Password is optional, can be empty
	c.ClickHousePassword = os.Getenv("CLICKHOUSE_PASSWORD")
	c.ClickHouseUseTLS = os.Getenv("CLICKHOUSE_USE_TLS") == "true"
	return nil
}

func (c *Config) loadTelegram() error {
	c.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	if c.TelegramToken == "" {
		return nil
	}

	allowedIDsStr := os.Getenv("ALLOWED_USER_IDS")
	if allowedIDsStr == "" {
		return required("ALLOWED_USER_IDS", "when TELEGRAM_BOT_TOKEN is set (comma-separated list of Telegram user IDs)")
	}

	for _, idStr := range strings.Split(allowedIDsStr, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
		if err != nil {
			return invalid("ALLOWED_USER_IDS", "contains invalid user ID %q", idStr)
		}
		c.AllowedUserIDs = append(c.AllowedUserIDs, id)
	}

	c.WebhookMode = os.Getenv("WEBHOOK_MODE") == "true"
	if c.WebhookMode {
		c.WebhookURL = os.Getenv("WEBHOOK_URL")
		if c.WebhookURL == "" {
			return required("WEBHOOK_URL", "when WEBHOOK_MODE is true")
		}
	}
	return nil
}

// getEnv retrieves environment variable or returns default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func required(key, when string) error {
	return &storage.ConfigurationError{Key: key, Reason: "is required " + when}
}

func invalid(key, format string, args ...any) error {
	return &storage.ConfigurationError{Key: key, Reason: fmt.Sprintf(format, args...)}
}
