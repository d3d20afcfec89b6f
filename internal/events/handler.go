package events

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
	"github.com/Srijan10011/Business-Calc-sub000/internal/logging"
	"github.com/Srijan10011/Business-Calc-sub000/internal/store"
)

type SaleResolver interface {
	ResolveSale(ctx context.Context, bc domain.BusinessContext, event domain.SaleEvent) (domain.SaleResponse, error)
}

type Outcome int

const (
	Ack Outcome = iota
	Drop
	Requeue
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Drop:
		return "drop"
	case Requeue:
		return "requeue"
	default:
		return "unknown"
	}
}

// SaleHandler applies sale messages and decides how each delivery is settled.
type SaleHandler struct {
	resolver SaleResolver
	logger   *slog.Logger
}

func NewSaleHandler(resolver SaleResolver, logger *slog.Logger) *SaleHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SaleHandler{resolver: resolver, logger: logging.WithComponent(logger, logging.ComponentAMQP)}
}

func (h *SaleHandler) Handle(ctx context.Context, body []byte) Outcome {
	msg, err := DecodeSaleMessage(body)
	if err != nil {
		h.logger.ErrorContext(ctx, "dropping sale message", logging.FieldError, err)
		return Drop
	}

	resp, err := h.resolver.ResolveSale(ctx, msg.Business(), msg.Event())
	if err != nil {
		outcome := classify(err)
		h.logger.WarnContext(ctx, "sale message not applied",
			logging.FieldBusiness, msg.BusinessID,
			logging.FieldEntityID, msg.ProductID,
			"outcome", outcome.String(),
			logging.FieldError, err,
		)
		return outcome
	}

	h.logger.InfoContext(ctx, "sale message applied",
		logging.FieldBusiness, msg.BusinessID,
		logging.FieldEntityID, msg.ProductID,
		logging.FieldAmount, msg.RevenueCents,
		"duplicate", resp.Duplicate,
	)
	return Ack
}

// classify requeues failures a retry can fix. Everything the ledger rejected
// on its merits is acked so it does not loop.
func classify(err error) Outcome {
	switch {
	case errors.Is(err, store.ErrServerError),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return Requeue
	case errors.Is(err, store.ErrPeriodClosed):
		return Ack
	case errors.Is(err, store.ErrConcurrencyConflict):
		return Requeue
	case store.IsDomainError(err):
		return Ack
	default:
		return Requeue
	}
}
