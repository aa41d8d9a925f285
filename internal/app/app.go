package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"bookcatalog/internal/api"
	"bookcatalog/internal/bot"
	"bookcatalog/internal/config"
	"bookcatalog/internal/logging"
	"bookcatalog/internal/storage"
	"bookcatalog/internal/storage/ch"
	"bookcatalog/internal/storage/firebase"
	"bookcatalog/internal/storage/memory"
)

// App represents the application
type App struct {
	config *config.Config
	logger *zap.Logger
	db     storage.Storage
	bot    *bot.Bot
	server *http.Server
}

// New creates and initializes a new application instance
func New() (*App, error) {
	// Load .env file if it exists
	envErr := godotenv.Load()

	// Load configuration from environment variables
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	if envErr != nil {
		logger.Debug("No .env file found, using system environment variables")
	}

	return NewWithConfig(cfg, logger)
}

// NewWithConfig builds the application from an already loaded configuration
func NewWithConfig(cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{config: cfg, logger: logger}

	logger.Info("Starting Book Catalog...", zap.String("backend", string(cfg.Backend)))

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initBot(); err != nil {
		app.db.Close()
		return nil, err
	}

	app.initHTTPServer()

	return app, nil
}

// initDatabase initializes the configured storage backend
func (a *App) initDatabase() error {
	db, err := NewStorage(a.config, a.logger)
	if err != nil {
		return err
	}

	// Initialize database schema and default data
	if err := db.Initialize(context.Background()); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.logger.Info("Database initialized successfully")

	a.db = db
	return nil
}

// NewStorage constructs the backend selected by cfg.Backend
func NewStorage(cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		logger.Info("Using in-memory database")
		return memory.NewMemoryDB(memory.SeedData()...), nil

	case config.BackendFirebase:
		mode, err := firebase.ParseUpdateMode(cfg.FirebaseUpdateMode)
		if err != nil {
			return nil, &storage.ConfigurationError{Key: "FIREBASE_UPDATE_MODE", Reason: err.Error()}
		}
		logger.Info("Using Firebase Realtime Database",
			zap.String("collection", cfg.FirebaseCollection),
			zap.Duration("timeout", cfg.FirebaseTimeout),
			zap.Stringer("update_mode", mode),
		)
		store, err := firebase.New(cfg.FirebaseURL,
			firebase.WithCollection(cfg.FirebaseCollection),
			firebase.WithAuth(cfg.FirebaseAuth),
			firebase.WithTimeout(cfg.FirebaseTimeout),
			firebase.WithUpdateMode(mode),
			firebase.WithLogger(logger.Named("firebase")),
		)
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.BackendClickHouse:
		logger.Info("Connecting to ClickHouse",
			zap.String("host", cfg.ClickHouseHost),
			zap.Int("port", cfg.ClickHousePort),
			zap.String("database", cfg.ClickHouseDatabase),
			zap.String("user", cfg.ClickHouseUser),
			zap.Bool("tls", cfg.ClickHouseUseTLS),
		)
		db, err := ch.NewClickHouseDB(
			cfg.ClickHouseHost,
			cfg.ClickHousePort,
			cfg.ClickHouseDatabase,
			cfg.ClickHouseUser,
			cfg.ClickHousePassword,
			cfg.ClickHouseUseTLS,
		)
		if err != nil {
			return nil, err
		}
		return db, nil

	default:
		return nil, &storage.ConfigurationError{Key: "STORAGE_BACKEND", Reason: fmt.Sprintf("unknown backend %q", cfg.Backend)}
	}
}

// initBot initializes the Telegram bot when a token is configured
func (a *App) initBot() error {
	if !a.config.BotEnabled() {
		a.logger.Info("TELEGRAM_BOT_TOKEN not set, Telegram bot disabled")
		return nil
	}

	telegramBot, err := bot.NewBot(a.config.TelegramToken, a.db, a.config.AllowedUserIDs, a.logger.Named("bot"))
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	a.logger.Info("Bot created successfully", zap.Int64s("allowed_users", a.config.AllowedUserIDs))

	a.bot = telegramBot
	return nil
}

// initHTTPServer initializes the HTTP server for the API, health checks and webhook
func (a *App) initHTTPServer() {
	mux := http.NewServeMux()
	mux.Handle("/", api.NewServer(a.db, a.logger.Named("api")).Handler())

	// Webhook endpoint (only used in webhook mode)
	if a.bot != nil && a.config.WebhookMode {
		mux.HandleFunc(bot.WebhookPath, a.handleWebhook)
	}

	a.server = &http.Server{
		Addr:         ":" + a.config.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

func (a *App) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		a.logger.Warn("Error decoding webhook update", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// Process update in background to respond quickly to Telegram
	go a.bot.HandleUpdate(context.Background(), update)

	w.WriteHeader(http.StatusOK)
}

// Handler returns the root HTTP handler
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run starts the application and blocks until SIGINT or SIGTERM
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if a.bot != nil {
		if a.config.WebhookMode {
			if err := a.bot.StartWebhook(a.config.WebhookURL); err != nil {
				a.Shutdown()
				return fmt.Errorf("failed to setup webhook: %w", err)
			}
			a.logger.Info("Webhook configured", zap.String("path", bot.WebhookPath))
		} else {
			go func() {
				if err := a.bot.Start(ctx); err != nil {
					a.logger.Error("Bot stopped", zap.Error(err))
				}
			}()
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down...")
	case err := <-serverErr:
		runErr = fmt.Errorf("HTTP server error: %w", err)
	}

	if err := a.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing database", zap.Error(err))
		return err
	}

	a.logger.Info("Shutdown complete")
	a.logger.Sync()
	return nil
}
