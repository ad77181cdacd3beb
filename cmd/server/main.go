// diagflow - Guided DTC Diagnostic Session Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"diagflow/internal/agent"
	"diagflow/internal/api"
	"diagflow/internal/config"
	"diagflow/internal/middleware"
	"diagflow/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize the session store.
	var repo store.Repository
	if cfg.DBPath != "" {
		sqliteRepo, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		repo = sqliteRepo
		slog.Info("Session store: sqlite", "path", cfg.DBPath)
	} else {
		repo = store.NewMemoryStore()
		slog.Info("Session store: in-memory (sessions will not survive restarts)")
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Session store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Session store ready")

	// Initialize the reasoning collaborator (optional).
	var gen agent.Generator = agent.Disabled{}
	aiEnabled := false
	if cfg.AIEnabled() {
		gemini, err := agent.NewGeminiGenerator(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			slog.Warn("Failed to initialize Gemini client, AI features will be disabled", "error", err)
		} else {
			gen = gemini
			aiEnabled = true
			slog.Info("Gemini collaborator initialized", "model", cfg.GeminiModel)
		}
	}
	if !aiEnabled {
		slog.Info("AI features disabled (GEMINI_API_KEY not set or client init failed)")
	}

	orch := agent.NewOrchestrator(gen, cfg.AgentTimeout, logger)
	defer orch.Close()

	turnLog, err := agent.NewTurnLogger(agent.TurnLogConfig{
		Enabled:   cfg.TurnLog.Enabled,
		Dir:       cfg.TurnLog.Dir,
		QueueSize: cfg.TurnLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize turn logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := turnLog.Close(); closeErr != nil {
			slog.Warn("Failed to close turn logger", "error", closeErr)
		}
	}()

	limiter := agent.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)

	// Initialize handlers.
	handler := api.NewHandler(repo, orch, limiter, turnLog, cfg.ContextWindow, aiEnabled)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	handler.RegisterHealth(r)
	handler.RegisterRoutes(r)

	// Create server.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Start TTL worker.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store.StartTTLWorker(ctx, repo, cfg.SessionTTL, cfg.SweepInterval)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
