package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mazart23/pet-book/internal/app"
	"github.com/Mazart23/pet-book/internal/config"
	"github.com/Mazart23/pet-book/internal/domain"
	"github.com/Mazart23/pet-book/internal/gateway"
	"github.com/Mazart23/pet-book/internal/httpserver"
	"github.com/Mazart23/pet-book/internal/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	var repo domain.CredentialRepository = &domain.MemoryCredentials{}
	if !cfg.Ephemeral() {
		store, err := sqlite.NewRepository(cfg.SessionPath)
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}
		defer store.Close()
		repo = store
		logger.Info("opened session store", "path", cfg.SessionPath)
	}

	application := app.New(cfg, repo, logger,
		app.WithDeleteErrorHook(func(feed, id string, err error) {
			logger.Error("item removed locally but not on the server",
				"feed", feed,
				"id", id,
				"message", gateway.DisplayMessage(err),
			)
		}),
	)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Session().Restore(ctx); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if _, ok := application.Session().Token(); !ok {
		logger.Warn("not logged in; run `petbook login` or POST /session/login")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Keep the push channel in step with the session in the background
	go func() {
		if err := application.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("application context exited with error", "error", err)
		}
	}()

	server := httpserver.NewServer(cfg, application, logger)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("view server exited with error", "error", err)
		}
	}()

	logger.Info("petbookd started",
		"view_addr", cfg.ViewAddr(),
		"controller", cfg.ControllerURL,
		"notifier", cfg.NotifierURL,
	)

	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down view server", "error", err)
	}

	return nil
}
