package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
)

func TestNoopCacheNeverHits(t *testing.T) {
	var c MoneyFlowCache = NoopMoneyFlowCache{}
	require.NoError(t, c.Set(context.Background(), &domain.MoneyFlow{BusinessID: "b1", Month: "2024-01"}, 0, time.Minute))

	flow, ok, err := c.Get(context.Background(), "b1", "2024-01", 0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, flow)
	assert.NoError(t, c.Invalidate(context.Background(), "b1"))
}

func TestKeysAreScopedByBusinessAndGeneration(t *testing.T) {
	assert.Equal(t, "ledger:moneyflow:b1:g0:2024-01", moneyFlowKey("b1", "2024-01", 0))
	assert.NotEqual(t, moneyFlowKey("b1", "2024-01", 1), moneyFlowKey("b1", "2024-01", 2))
	assert.NotEqual(t, moneyFlowKey("b1", "2024-01", 1), moneyFlowKey("b2", "2024-01", 1))
	assert.Equal(t, "ledger:moneyflow-gen:b1", generationKey("b1"))
}

func TestRedisCacheRoundTripAndInvalidate(t *testing.T) {
	addr := os.Getenv("LEDGER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set LEDGER_TEST_REDIS_ADDR to run redis integration test")
	}
	ctx := context.Background()
	c := NewRedisMoneyFlowCache(addr, "", 0)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(ctx))

	businessID := fmt.Sprintf("biz-cache-%d", time.Now().UnixNano())
	flow := &domain.MoneyFlow{
		BusinessID: businessID,
		Month:      "2024-02",
		Incoming:   domain.MoneyFlowIncoming{Cash: 500},
		Outgoing:   domain.MoneyFlowOutgoing{COGS: map[string]int64{"rent": 100}},
	}
	gen, err := c.Generation(ctx, businessID)
	require.NoError(t, err)
	assert.Zero(t, gen)
	require.NoError(t, c.Set(ctx, flow, gen, time.Minute))

	got, ok, err := c.Get(ctx, businessID, "2024-02", gen)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(500), got.Incoming.Cash)

	require.NoError(t, c.Invalidate(ctx, businessID))
	next, err := c.Generation(ctx, businessID)
	require.NoError(t, err)
	assert.Equal(t, gen+1, next)
	_, ok, err = c.Get(ctx, businessID, "2024-02", next)
	require.NoError(t, err)
	assert.False(t, ok)

	// A report computed before the invalidation lands under the old generation.
	require.NoError(t, c.Set(ctx, flow, gen, time.Minute))
	_, ok, err = c.Get(ctx, businessID, "2024-02", next)
	require.NoError(t, err)
	assert.False(t, ok)
}
