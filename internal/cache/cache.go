package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
)

// MoneyFlowCache stores computed monthly reports per business. Entries live
// under the business generation they were computed in; Invalidate starts a
// new generation so a report computed before a mutation is never served after it.
type MoneyFlowCache interface {
	Generation(ctx context.Context, businessID string) (int64, error)
	Get(ctx context.Context, businessID string, month string, generation int64) (*domain.MoneyFlow, bool, error)
	Set(ctx context.Context, value *domain.MoneyFlow, generation int64, ttl time.Duration) error
	Invalidate(ctx context.Context, businessID string) error
}

type NoopMoneyFlowCache struct{}

func (NoopMoneyFlowCache) Generation(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

func (NoopMoneyFlowCache) Get(_ context.Context, _ string, _ string, _ int64) (*domain.MoneyFlow, bool, error) {
	return nil, false, nil
}

func (NoopMoneyFlowCache) Set(_ context.Context, _ *domain.MoneyFlow, _ int64, _ time.Duration) error {
	return nil
}

func (NoopMoneyFlowCache) Invalidate(_ context.Context, _ string) error {
	return nil
}

func moneyFlowKey(businessID string, month string, generation int64) string {
	return "ledger:moneyflow:" + businessID + ":g" + strconv.FormatInt(generation, 10) + ":" + month
}

func generationKey(businessID string) string {
	return "ledger:moneyflow-gen:" + businessID
}
