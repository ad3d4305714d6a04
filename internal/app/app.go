package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"aura-assist/engine/internal/api"
	"aura-assist/engine/internal/config"
	"aura-assist/engine/internal/database"
	"aura-assist/engine/internal/format"
	"aura-assist/engine/internal/gate"
	"aura-assist/engine/internal/llm"
	"aura-assist/engine/internal/session"
	"aura-assist/engine/internal/storage"
	"aura-assist/engine/internal/store"
)

func Run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		// slog is not yet configured, so use the default logger for this critical error.
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	setupLogger(cfg.LogLevel)

	logConfigSource()

	backend, closeBackend, err := newBackend(cfg)
	if err != nil {
		slog.Error("Failed to initialize storage backend", "error", err, "backend", cfg.StorageBackend)
		return 1
	}
	defer func() {
		if err := closeBackend(); err != nil {
			slog.Error("Failed to close storage backend", "error", err)
		}
	}()
	slog.Info("Storage backend ready", "backend", cfg.StorageBackend)

	conversationStore := store.New(backend, cfg.GreetingMessage, cfg.HistoryLimit, cfg.ReducedHistoryLimit)
	chatClient := llm.NewClient(cfg.ChatAPIURL, cfg.ChatAPIKey, cfg.ChatbotID, cfg.ChatModel)
	inputGate := gate.New(cfg.MaxInputLength)

	controller := session.New(inputGate, conversationStore, chatClient)
	if err := controller.Start(context.Background()); err != nil {
		slog.Error("Failed to start session controller", "error", err)
		return 1
	}
	slog.Info("Session restored", "conversation_id", controller.Snapshot().ConversationID)

	chatHandler := api.NewChatHandler(controller, format.New(cfg.LinkDomain))
	router := api.NewRouter(chatHandler)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		WriteTimeout:      0, // Disabled for streaming endpoints
		IdleTimeout:       120 * time.Second,
	}

	slog.Info("Starting server", "port", cfg.AppPort)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server failed", "error", err)
		return 1
	}

	return 0
}

// newBackend selects the persistence backend and returns the shutdown hook
// that releases it (the sqlite backend does not own its database handle).
func newBackend(cfg *config.Config) (storage.Backend, func() error, error) {
	switch cfg.StorageBackend {
	case "file":
		backend, err := storage.NewFileBackend(cfg.DataDir, 0)
		if err != nil {
			return nil, nil, err
		}
		return backend, backend.Close, nil
	case "sqlite":
		db, err := database.InitDB(cfg.DatabasePath)
		if err != nil {
			return nil, nil, err
		}
		backend := storage.NewSQLiteBackend(db, 0, time.Second)
		return backend, func() error {
			if err := backend.Close(); err != nil {
				return err
			}
			return db.Close()
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func logConfigSource() {
	configFileUsed := viper.ConfigFileUsed()
	if configFileUsed != "" {
		slog.Info("Successfully loaded configuration from file.", "file", configFileUsed)
	} else {
		slog.Info("Configuration file not found. Using environment variables and defaults.")
	}
}

func setupLogger(logLevel string) {
	var level slog.Level
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}
