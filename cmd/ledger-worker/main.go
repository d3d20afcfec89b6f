package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/Srijan10011/Business-Calc-sub000/internal/app"
	"github.com/Srijan10011/Business-Calc-sub000/internal/config"
	"github.com/Srijan10011/Business-Calc-sub000/internal/events"
	"github.com/Srijan10011/Business-Calc-sub000/internal/logging"
	"github.com/Srijan10011/Business-Calc-sub000/internal/rollover"
	"github.com/Srijan10011/Business-Calc-sub000/internal/service"
)

type saleConsumer interface {
	ConsumeSales(ctx context.Context, handler *events.SaleHandler) error
	Close() error
}

type worker struct {
	openService func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*service.Service, app.Closers, error)
	dial        func(cfg config.Config, logger *slog.Logger) (saleConsumer, error)
}

func defaultWorker() worker {
	return worker{
		openService: app.OpenService,
		dial: func(cfg config.Config, logger *slog.Logger) (saleConsumer, error) {
			return events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		},
	}
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)
	appLog := logging.WithComponent(logger, logging.ComponentApp)
	appLog.Info("starting ledger-worker")

	if err := cfg.Validate(); err != nil {
		appLog.Error("invalid configuration", logging.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := defaultWorker().run(ctx, cfg, logger)
	stop()
	if err != nil {
		appLog.Error("worker stopped with error", logging.FieldError, err)
		os.Exit(1)
	}
	appLog.Info("worker stopped")
}

// run blocks until ctx is cancelled or a worker fails. Every handle it opened
// is closed before it returns.
func (w worker) run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	appLog := logging.WithComponent(logger, logging.ComponentApp)

	startCtx, cancelStart := context.WithTimeout(ctx, 10*time.Second)
	svc, closers, err := w.openService(startCtx, cfg, logger)
	cancelStart()
	if err != nil {
		return fmt.Errorf("ledger unavailable: %w", err)
	}
	defer closers.Close(appLog)

	var consumer saleConsumer
	if cfg.AMQPURL != "" {
		consumer, err = w.dial(cfg, logger)
		if err != nil {
			return fmt.Errorf("AMQP unavailable: %w", err)
		}
		defer consumer.Close()
	} else {
		appLog.Info("AMQP_URL not set, sale consumer disabled")
	}

	g, ctx := errgroup.WithContext(ctx)

	scheduler := rollover.New(svc, cfg.RolloverInterval, cfg.RolloverBusinessIDs, logger)
	g.Go(func() error {
		return scheduler.Run(ctx)
	})

	if consumer != nil {
		handler := events.NewSaleHandler(svc, logger)
		g.Go(func() error {
			err := consumer.ConsumeSales(ctx, handler)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}
