package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:           "8080",
		LogLevel:       "info",
		StorageBackend: "memory",
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "memory", cfg.StorageBackend)
	assert.Equal(t, "localhost:6379", cfg.RedisAddress)
	assert.Equal(t, "http://localhost:8080", cfg.RedirectBaseURL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE_BACKEND", "redis")
	t.Setenv("GITHUB_SCOPES", "repo, read:org,")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "redis", cfg.StorageBackend)
	assert.Equal(t, []string{"repo", "read:org"}, cfg.GitHubScopes)
	assert.Equal(t, "http://localhost:9090", cfg.RedirectBaseURL)
}

func TestValidate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		require.NoError(t, validConfig().Validate())
	})

	t.Run("invalid port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Port = "not-a-port"
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown storage backend", func(t *testing.T) {
		cfg := validConfig()
		cfg.StorageBackend = "dynamo"
		assert.Error(t, cfg.Validate())
	})

	t.Run("redis backend requires address", func(t *testing.T) {
		cfg := validConfig()
		cfg.StorageBackend = "redis"
		cfg.RedisAddress = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("redis backend validates db and pool size", func(t *testing.T) {
		cfg := validConfig()
		cfg.StorageBackend = "redis"
		cfg.RedisAddress = "localhost:6379"
		cfg.RedisDB = "16"
		cfg.RedisPoolSize = "10"
		assert.Error(t, cfg.Validate())

		cfg.RedisDB = "0"
		cfg.RedisPoolSize = "0"
		assert.Error(t, cfg.Validate())

		cfg.RedisPoolSize = "10"
		require.NoError(t, cfg.Validate())
	})

	t.Run("oauth credentials must come in pairs", func(t *testing.T) {
		cfg := validConfig()
		cfg.GitHubClientID = "id"
		assert.Error(t, cfg.Validate())

		cfg.GitHubClientSecret = "secret"
		require.NoError(t, cfg.Validate())

		cfg.SlackClientSecret = "secret"
		assert.Error(t, cfg.Validate())
	})

	t.Run("telegram secret token requires bot token", func(t *testing.T) {
		cfg := validConfig()
		cfg.TelegramSecretToken = "tok"
		assert.Error(t, cfg.Validate())

		cfg.TelegramBotToken = "bot-token"
		require.NoError(t, cfg.Validate())
	})
}

func TestRedirectURI(t *testing.T) {
	cfg := &Config{RedirectBaseURL: "https://hooks.example.com/"}
	assert.Equal(t, "https://hooks.example.com/auth/github/callback", cfg.RedirectURI("github"))
}
