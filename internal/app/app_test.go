package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Srijan10011/Business-Calc-sub000/internal/cache"
	"github.com/Srijan10011/Business-Calc-sub000/internal/config"
	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
	"github.com/Srijan10011/Business-Calc-sub000/internal/logging"
	"github.com/Srijan10011/Business-Calc-sub000/internal/store/memory"
)

func TestOpenRepositoryWithoutDatabaseUsesMemory(t *testing.T) {
	repo, closers, err := OpenRepository(context.Background(), config.Config{}, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, repo)
	assert.Empty(t, closers)
}

func TestOpenMoneyFlowCacheWithoutRedisIsNoop(t *testing.T) {
	flows, closers := OpenMoneyFlowCache(context.Background(), config.Config{}, logging.Discard())
	assert.IsType(t, cache.NoopMoneyFlowCache{}, flows)
	assert.Empty(t, closers)
}

func TestOpenServiceServesLedger(t *testing.T) {
	svc, _, err := OpenService(context.Background(), config.Config{MoneyFlowTTLSecs: 60}, logging.Discard())
	require.NoError(t, err)

	accounts, err := svc.CreateDefaultAccounts(context.Background(), domain.BusinessContext{BusinessID: "biz-1"})
	require.NoError(t, err)
	assert.Len(t, accounts, 4)
}

func TestClosersRunEveryFunction(t *testing.T) {
	var calls int
	closers := Closers{
		func() error { calls++; return errors.New("first failed") },
		func() error { calls++; return nil },
	}
	closers.Close(logging.Discard())
	assert.Equal(t, 2, calls)
}
