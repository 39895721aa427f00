// Package config provides configuration management for the TriggersKit
// server. It handles loading configuration from environment variables with
// sensible defaults and validates the configuration before startup.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - REDIRECT_BASE_URL: Base URL OAuth callbacks are built against
//     (default: http://localhost:{PORT})
//
// Storage Configuration:
//   - STORAGE_BACKEND: "memory" or "redis" (default: memory)
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//
// GitHub Provider:
//   - GITHUB_CLIENT_ID / GITHUB_CLIENT_SECRET: OAuth app credentials
//   - GITHUB_SCOPES: comma-separated OAuth scopes
//   - GITHUB_WEBHOOK_SECRET: webhook HMAC secret
//
// Slack Provider:
//   - SLACK_CLIENT_ID / SLACK_CLIENT_SECRET: OAuth app credentials
//   - SLACK_SCOPES: comma-separated OAuth scopes
//   - SLACK_SIGNING_SECRET: request signing secret
//
// Telegram Provider:
//   - TELEGRAM_BOT_TOKEN: bot API token
//   - TELEGRAM_SECRET_TOKEN: webhook secret token
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration values for the TriggersKit server. Load it
// with Load() and check it with Validate() before use.
type Config struct {
	// Application settings
	Port            string
	LogLevel        string
	RedirectBaseURL string

	// Storage configuration
	StorageBackend string
	RedisAddress   string
	RedisPassword  string
	RedisDB        string
	RedisPoolSize  string

	// GitHub provider
	GitHubClientID      string
	GitHubClientSecret  string
	GitHubScopes        []string
	GitHubWebhookSecret string

	// Slack provider
	SlackClientID      string
	SlackClientSecret  string
	SlackScopes        []string
	SlackSigningSecret string

	// Telegram provider
	TelegramBotToken    string
	TelegramSecretToken string
}

// Load creates a Config with values from environment variables, falling back
// to defaults for anything unset. Call Validate() before using the result.
func Load() *Config {
	port := getEnv("PORT", "8080")

	return &Config{
		Port:            port,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		RedirectBaseURL: getEnv("REDIRECT_BASE_URL", "http://localhost:"+port),

		StorageBackend: getEnv("STORAGE_BACKEND", "memory"),
		RedisAddress:   getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnv("REDIS_DB", "0"),
		RedisPoolSize:  getEnv("REDIS_POOL_SIZE", "10"),

		GitHubClientID:      getEnv("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret:  getEnv("GITHUB_CLIENT_SECRET", ""),
		GitHubScopes:        getListEnv("GITHUB_SCOPES"),
		GitHubWebhookSecret: getEnv("GITHUB_WEBHOOK_SECRET", ""),

		SlackClientID:      getEnv("SLACK_CLIENT_ID", ""),
		SlackClientSecret:  getEnv("SLACK_CLIENT_SECRET", ""),
		SlackScopes:        getListEnv("SLACK_SCOPES"),
		SlackSigningSecret: getEnv("SLACK_SIGNING_SECRET", ""),

		TelegramBotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramSecretToken: getEnv("TELEGRAM_SECRET_TOKEN", ""),
	}
}

// getEnv retrieves an environment variable value or returns a default value
// if not set
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getListEnv retrieves a comma-separated environment variable as a slice,
// trimming whitespace and dropping empty entries
func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// RedirectURI builds the OAuth callback URL for a provider
func (c *Config) RedirectURI(provider string) string {
	return strings.TrimSuffix(c.RedirectBaseURL, "/") + "/auth/" + provider + "/callback"
}

// Validate checks required fields, value formats, and cross-field
// dependencies. The application should call this after Load() and before
// starting.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	switch c.StorageBackend {
	case "memory", "redis":
		// Valid backends
	default:
		return fmt.Errorf("STORAGE_BACKEND must be 'memory' or 'redis'")
	}

	if c.StorageBackend == "redis" {
		if c.RedisAddress == "" {
			return fmt.Errorf("REDIS_ADDRESS is required when using the redis backend")
		}
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	}

	// OAuth credentials come in pairs.
	if (c.GitHubClientID == "") != (c.GitHubClientSecret == "") {
		return fmt.Errorf("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must be set together")
	}
	if (c.SlackClientID == "") != (c.SlackClientSecret == "") {
		return fmt.Errorf("SLACK_CLIENT_ID and SLACK_CLIENT_SECRET must be set together")
	}

	if c.TelegramSecretToken != "" && c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required when TELEGRAM_SECRET_TOKEN is set")
	}

	return nil
}
