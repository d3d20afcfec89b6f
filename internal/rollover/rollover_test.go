package rollover

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
	"github.com/Srijan10011/Business-Calc-sub000/internal/logging"
	"github.com/Srijan10011/Business-Calc-sub000/internal/service"
	"github.com/Srijan10011/Business-Calc-sub000/internal/store/memory"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func TestRunOnceArchivesEveryBusiness(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)}
	svc := service.New(memory.New(), service.WithLogger(logging.Discard()), service.WithClock(c.Now))

	for _, id := range []string{"biz-1", "biz-2"} {
		bc := domain.BusinessContext{BusinessID: id}
		_, err := svc.CreateDefaultAccounts(ctx, bc)
		require.NoError(t, err)
		_, err = svc.AddRecurringCost(ctx, bc, domain.RecurringCostCreateRequest{Name: "Rent", MonthlyTarget: 1000})
		require.NoError(t, err)
	}

	c.now = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	scheduler := New(svc, time.Minute, nil, logging.Discard())
	require.NoError(t, scheduler.RunOnce(ctx))
	require.NoError(t, scheduler.RunOnce(ctx))

	for _, id := range []string{"biz-1", "biz-2"} {
		history, err := svc.GetHistory(ctx, domain.BusinessContext{BusinessID: id})
		require.NoError(t, err)
		require.Len(t, history, 2, id)
		assert.Equal(t, "2024-02", history[0].Month)
		assert.Equal(t, domain.HistoryUnfulfilled, history[1].Status)
	}
}

type fakeRunner struct {
	rolled []string
	failOn string
}

func (f *fakeRunner) Businesses(context.Context) ([]string, error) {
	return nil, errors.New("should not be called")
}

func (f *fakeRunner) RolloverRecurringCosts(_ context.Context, bc domain.BusinessContext, toMonth string) (domain.RolloverResponse, error) {
	f.rolled = append(f.rolled, bc.BusinessID)
	if bc.BusinessID == f.failOn {
		return domain.RolloverResponse{}, errors.New("boom")
	}
	return domain.RolloverResponse{Month: toMonth}, nil
}

func TestRunOnceUsesConfiguredBusinessesAndContinuesPastFailures(t *testing.T) {
	runner := &fakeRunner{failOn: "biz-a"}
	scheduler := New(runner, time.Minute, []string{"biz-a", "biz-b"}, logging.Discard())

	err := scheduler.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "biz-a")
	assert.Equal(t, []string{"biz-a", "biz-b"}, runner.rolled)
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	runner := &fakeRunner{}
	scheduler := New(runner, time.Hour, []string{"biz-a"}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduler.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.LessOrEqual(t, len(runner.rolled), 1)
}
