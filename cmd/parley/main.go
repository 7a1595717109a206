package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoura/parley/internal/chat"
	"github.com/jmoura/parley/internal/config"
	"github.com/jmoura/parley/internal/httpapi"
	"github.com/jmoura/parley/internal/limiter"
	"github.com/jmoura/parley/internal/provider"
	"github.com/jmoura/parley/internal/store"
	"github.com/lmittmann/tint"
)

const (
	rateLimitMax    = 10
	rateLimitWindow = time.Minute
)

func main() {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: slog.LevelInfo,
	})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	db, err := store.NewBoltStore(cfg.DataDir + "/parley.db")
	if err != nil {
		slog.Error("store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	llm := provider.NewClient(provider.Config{
		BaseURL:  cfg.LLMBaseURL,
		APIKey:   cfg.LLMAPIKey,
		SiteURL:  cfg.SiteURL,
		SiteName: cfg.SiteName,
	})

	coord := chat.NewCoordinator(db, llm, chat.Defaults{
		Model:         cfg.LLMModel,
		Temperature:   cfg.LLMTemperature,
		MaxTokens:     cfg.LLMMaxTokens,
		ContextBudget: cfg.ContextBudget,
		SystemPrompt:  cfg.SystemPrompt,
	})

	lim := limiter.New(rateLimitMax, rateLimitWindow)

	// Periodic cleanup of stale per-user buckets to prevent memory leaks
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			lim.Cleanup(1 * time.Hour)
		}
	}()

	api := httpapi.NewHandler(db, coord, lim)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Mount("/api", api.Routes())

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: streaming responses stay open for the full
		// generation.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("parley: listening", "port", cfg.Port, "model", cfg.LLMModel)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("parley: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("parley: stopped")
}
