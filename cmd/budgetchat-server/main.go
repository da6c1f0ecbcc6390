// Package main provides the development messaging server for budgetchat.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/budgetchat/internal/config"
	"github.com/raphaelgruber/budgetchat/internal/metrics"
	"github.com/raphaelgruber/budgetchat/internal/server"
)

func main() {
	// Parse flags
	mint := flag.String("mint", "", "print a bearer token for this user id and exit")
	name := flag.String("name", "", "username embedded in a minted token")
	ttl := flag.Duration("ttl", 0, "lifetime of a minted token (0 = no expiry)")
	flag.Parse()

	// Load configuration
	cfg := config.Load()
	auth := server.NewAuthenticator(cfg.JWTSecret)

	if *mint != "" {
		token, err := auth.Mint(*mint, *name, *ttl)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	// Initialize logging
	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel, os.Stderr)
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	if cfg.JWTSecret == "dev-secret" {
		slog.Warn("using the default JWT secret; set BUDGETCHAT_JWT_SECRET outside local development")
	}

	srv := server.New(auth, logger, metrics.NewCollector())

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("starting budgetchat-server", "addr", cfg.ServerAddr)
		slog.Info("socket endpoint available", "url", fmt.Sprintf("ws://localhost%s/socket", cfg.ServerAddr))

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	// Hijacked sockets are not tracked by Shutdown, so drop them first.
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
