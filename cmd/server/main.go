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

	"github.com/joho/godotenv"

	"github.com/Srijan10011/Business-Calc-sub000/internal/app"
	"github.com/Srijan10011/Business-Calc-sub000/internal/config"
	"github.com/Srijan10011/Business-Calc-sub000/internal/httpapi"
	"github.com/Srijan10011/Business-Calc-sub000/internal/logging"
)

func main() {
	// .env is optional outside local development
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)
	appLog := logging.WithComponent(logger, logging.ComponentApp)

	if err := cfg.Validate(); err != nil {
		appLog.Error("invalid configuration", logging.FieldError, err)
		os.Exit(1)
	}
	if err := validateSecurityConfig(cfg); err != nil {
		appLog.Error("invalid security configuration", logging.FieldError, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc, closers, err := app.OpenService(ctx, cfg, logger)
	if err != nil {
		appLog.Error("ledger unavailable", logging.FieldError, err)
		os.Exit(1)
	}
	api := httpapi.New(svc, httpapi.NewVerifier(cfg.AuthSecret), cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		appLog.Info("ledger API listening", "addr", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("server error", logging.FieldError, err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.Error("shutdown error", logging.FieldError, err)
	}
	closers.Close(appLog)
	appLog.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
