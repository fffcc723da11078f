/*
Package main is the entry point for the parley chat server.

It loads configuration, initializes logging, opens the backing store,
starts the fan-out hub and HTTP server, and handles SIGINT/SIGTERM for a
graceful shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parley/internal/app/chat"
	"parley/internal/app/store"
	"parley/internal/app/store/memory"
	"parley/internal/app/store/postgres"
	"parley/internal/configs"
	"parley/internal/handler"
	"parley/internal/pkg/logx"
)

func main() {
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.Setup(cfg.Environment == "development")
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if cfg.DatabaseDSN != "" {
		st, err = postgres.New(ctx, cfg.DatabaseDSN)
		if err != nil {
			logx.Fatal(err, "Failed to open database")
		}
	} else {
		// Development fallback: nothing survives a restart.
		logx.Warn("DATABASE_URL not set; using the in-memory store")
		st = memory.New()
	}

	hub := chat.NewHub()
	svc := chat.NewService(st, hub)

	deps := &handler.AppDeps{
		Config: cfg,
		Store:  st,
		Chat:   svc,
		Hub:    hub,
	}

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler.Router(deps),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("parley server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Fatal(err, "Server forced to shutdown")
	}

	hub.Shutdown()
	st.Close()

	logx.Info("Server gracefully stopped.")
}
