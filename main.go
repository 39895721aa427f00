package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"triggerskit/internal/common/logging"
	"triggerskit/internal/config"
	"triggerskit/internal/dispatch"
	"triggerskit/internal/providers"
	"triggerskit/internal/providers/github"
	"triggerskit/internal/providers/slack"
	"triggerskit/internal/providers/telegram"
	"triggerskit/internal/server"
	"triggerskit/internal/storage"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logging.InitGlobalLogger()
	defer logging.MustSync()
	logger := logging.GetGlobalLogger()

	store, cleanup, err := newStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer cleanup()

	provs, err := buildProviders(cfg, store, logger)
	if err != nil {
		log.Fatalf("Failed to initialize providers: %v", err)
	}

	dispatcher, err := dispatch.New(logger, provs...)
	if err != nil {
		log.Fatalf("Failed to initialize dispatcher: %v", err)
	}

	srv := server.New(server.NewHandlers(dispatcher, logger).Router(), cfg.Port)
	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}

	logger.Info("Server started",
		logging.String("port", cfg.Port),
		logging.String("storage", cfg.StorageBackend),
		logging.Int("providers", len(provs)),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", err)
	}
}

// newStore selects the storage backend from configuration. The cleanup
// function closes the backend when one holds connections.
func newStore(cfg *config.Config) (storage.Store, func(), error) {
	if cfg.StorageBackend != "redis" {
		return storage.NewMemoryStore(time.Minute), func() {}, nil
	}

	db, _ := strconv.Atoi(cfg.RedisDB)
	poolSize, _ := strconv.Atoi(cfg.RedisPoolSize)

	store, err := storage.NewRedisStore(&storage.RedisConfig{
		Address:  cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       db,
		PoolSize: poolSize,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

// buildProviders constructs every provider that has configuration. Detection
// order is GitHub, Slack, Telegram.
func buildProviders(cfg *config.Config, store storage.Store, logger logging.Logger) ([]providers.Provider, error) {
	var provs []providers.Provider

	gh, err := github.New(github.Config{
		ClientID:      cfg.GitHubClientID,
		ClientSecret:  cfg.GitHubClientSecret,
		RedirectURI:   cfg.RedirectURI(github.Name),
		Scopes:        cfg.GitHubScopes,
		WebhookSecret: cfg.GitHubWebhookSecret,
	}, store, logger)
	if err != nil {
		return nil, err
	}
	provs = append(provs, gh)

	sl, err := slack.New(slack.Config{
		ClientID:      cfg.SlackClientID,
		ClientSecret:  cfg.SlackClientSecret,
		RedirectURI:   cfg.RedirectURI(slack.Name),
		Scopes:        cfg.SlackScopes,
		SigningSecret: cfg.SlackSigningSecret,
	}, store, logger)
	if err != nil {
		return nil, err
	}
	provs = append(provs, sl)

	provs = append(provs, telegram.New(telegram.Config{
		BotToken:    cfg.TelegramBotToken,
		SecretToken: cfg.TelegramSecretToken,
	}, logger))

	return provs, nil
}
