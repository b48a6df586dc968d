// Package main запускает HTTP-сервер сервиса вознаграждений за задания.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/task-rewards/internal/config"
	"github.com/mmeshcher/task-rewards/internal/handler"
	"github.com/mmeshcher/task-rewards/internal/middleware"
	"github.com/mmeshcher/task-rewards/internal/repository"
	"github.com/mmeshcher/task-rewards/internal/service"
	"github.com/mmeshcher/task-rewards/internal/verifier"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	var verifierClient service.Verifier
	if cfg.VerifierAddress != "" {
		client, err := verifier.NewClient(cfg.VerifierAddress)
		if err != nil {
			sugar.Fatalw("verifier client initialization error", "error", err.Error())
		}
		verifierClient = client
	}

	if !cfg.AdminConfigured() {
		sugar.Warn("admin credentials are not configured, admin endpoints will reject every login")
	}
	if cfg.AuthSecret == "" {
		sugar.Warn("AUTH_SECRET is empty, sessions will not survive a restart")
	}

	svc := service.NewService(repo, verifierClient, service.AdminCredentials{
		Email:        cfg.AdminEmail,
		PasswordHash: []byte(cfg.AdminPasswordHash),
	}, logger)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret, cfg.TokenTTL)
	h := handler.NewHandler(svc, logger, authMiddleware)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		svc.StartVerificationUpdates(ctx, cfg.VerifyInterval)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting task rewards server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
