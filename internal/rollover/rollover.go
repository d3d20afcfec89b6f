package rollover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
	"github.com/Srijan10011/Business-Calc-sub000/internal/logging"
)

type Runner interface {
	Businesses(ctx context.Context) ([]string, error)
	RolloverRecurringCosts(ctx context.Context, bc domain.BusinessContext, toMonth string) (domain.RolloverResponse, error)
}

// Scheduler closes finished months of recurring costs on a fixed interval.
// Rollover is idempotent, so overlapping or repeated ticks are harmless.
type Scheduler struct {
	runner      Runner
	interval    time.Duration
	businessIDs []string
	logger      *slog.Logger
}

// New builds a scheduler. An empty businessIDs list means every provisioned business.
func New(runner Runner, interval time.Duration, businessIDs []string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		runner:      runner,
		interval:    interval,
		businessIDs: businessIDs,
		logger:      logging.WithComponent(logger, logging.ComponentRollover),
	}
}

// Run ticks until ctx is done. The first pass happens immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "rollover scheduler started", "interval", s.interval.String())
	for {
		if err := s.RunOnce(ctx); err != nil {
			s.logger.ErrorContext(ctx, "rollover pass failed", logging.FieldError, err)
		}
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "rollover scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce rolls every target business to the current month. One failing
// business does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	ids := s.businessIDs
	if len(ids) == 0 {
		var err error
		if ids, err = s.runner.Businesses(ctx); err != nil {
			return fmt.Errorf("list businesses: %w", err)
		}
	}

	var errs []error
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resp, err := s.runner.RolloverRecurringCosts(ctx, domain.BusinessContext{BusinessID: id, UserID: "scheduler", Role: "system"}, "")
		if err != nil {
			errs = append(errs, fmt.Errorf("business %s: %w", id, err))
			continue
		}
		if len(resp.Archived) > 0 {
			s.logger.InfoContext(ctx, "recurring costs rolled over",
				logging.FieldBusiness, id,
				logging.FieldMonth, resp.Month,
				"archived", len(resp.Archived),
			)
		}
	}
	return errors.Join(errs...)
}
