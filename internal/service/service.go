package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Srijan10011/Business-Calc-sub000/internal/cache"
	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
	"github.com/Srijan10011/Business-Calc-sub000/internal/logging"
	"github.com/Srijan10011/Business-Calc-sub000/internal/store"
)

type businessContextKey struct{}

func WithBusiness(ctx context.Context, bc domain.BusinessContext) context.Context {
	return context.WithValue(ctx, businessContextKey{}, bc)
}

func BusinessFromContext(ctx context.Context) (domain.BusinessContext, bool) {
	bc, ok := ctx.Value(businessContextKey{}).(domain.BusinessContext)
	return bc, ok
}

// Service hosts every ledger engine. All state lives in the repository; the
// service itself only validates, sequences and reports.
type Service struct {
	repo    store.Repository
	flows   cache.MoneyFlowCache
	flowTTL time.Duration
	logger  *slog.Logger
	audit   *slog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithMoneyFlowCache(c cache.MoneyFlowCache, ttl time.Duration) Option {
	return func(s *Service) {
		if c != nil {
			s.flows = c
		}
		if ttl > 0 {
			s.flowTTL = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for month buckets and entry dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		flows:   cache.NoopMoneyFlowCache{},
		flowTTL: 5 * time.Minute,
		logger:  slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.audit = logging.WithComponent(s.logger, logging.ComponentAudit)
	s.logger = logging.WithComponent(s.logger, logging.ComponentLedger)
	return s
}

// Businesses lists every provisioned business id.
func (s *Service) Businesses(ctx context.Context) ([]string, error) {
	ids, err := s.repo.ListBusinessIDs(ctx)
	return ids, s.fail(ctx, domain.BusinessContext{}, "list_businesses", err)
}

func (s *Service) currentMonth() string {
	return domain.MonthOf(s.now())
}

func requireBusiness(bc domain.BusinessContext) error {
	if strings.TrimSpace(bc.BusinessID) == "" {
		return store.Invalid("business context is required")
	}
	return nil
}

// fail passes ledger errors through and hides everything else behind
// store.ErrServerError after logging it.
func (s *Service) fail(ctx context.Context, bc domain.BusinessContext, operation string, err error) error {
	if err == nil {
		return nil
	}
	if store.IsDomainError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.logger.ErrorContext(ctx, "ledger operation failed",
		logging.FieldOperation, operation,
		logging.FieldBusiness, bc.BusinessID,
		logging.FieldUser, bc.UserID,
		logging.FieldError, err,
	)
	return fmt.Errorf("%w: %s failed", store.ErrServerError, operation)
}

func (s *Service) logAudit(ctx context.Context, bc domain.BusinessContext, action string, entity string, entityID string, args ...any) {
	attrs := append([]any{
		logging.FieldBusiness, bc.BusinessID,
		logging.FieldUser, bc.UserID,
		logging.FieldOperation, action,
		logging.FieldEntity, entity,
		logging.FieldEntityID, entityID,
	}, args...)
	s.audit.InfoContext(ctx, "ledger mutation", attrs...)
}

// touched drops cached reports for the business after a committed mutation.
func (s *Service) touched(ctx context.Context, bc domain.BusinessContext) {
	if err := s.flows.Invalidate(ctx, bc.BusinessID); err != nil {
		s.logger.WarnContext(ctx, "money flow cache invalidation failed",
			logging.FieldBusiness, bc.BusinessID,
			logging.FieldError, err,
		)
	}
}
