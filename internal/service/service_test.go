package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
	"github.com/Srijan10011/Business-Calc-sub000/internal/logging"
	"github.com/Srijan10011/Business-Calc-sub000/internal/store"
	"github.com/Srijan10011/Business-Calc-sub000/internal/store/memory"
)

var testBusiness = domain.BusinessContext{BusinessID: "biz-1", UserID: "user-1", Role: "owner"}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return New(memory.New(), opts...)
}

func provision(t *testing.T, svc *Service, bc domain.BusinessContext) map[domain.AccountKind]domain.Account {
	t.Helper()
	accounts, err := svc.CreateDefaultAccounts(context.Background(), bc)
	require.NoError(t, err)
	byKind := make(map[domain.AccountKind]domain.Account, len(accounts))
	for _, acc := range accounts {
		byKind[acc.Kind] = acc
	}
	return byKind
}

func balanceOf(t *testing.T, svc *Service, bc domain.BusinessContext, kind domain.AccountKind) int64 {
	t.Helper()
	accounts, err := svc.GetAccounts(context.Background(), bc)
	require.NoError(t, err)
	for _, acc := range accounts {
		if acc.Kind == kind {
			return acc.Balance
		}
	}
	t.Fatalf("account %s not found", kind)
	return 0
}

func TestCreateDefaultAccountsIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	first := provision(t, svc, testBusiness)
	second := provision(t, svc, testBusiness)

	require.Len(t, first, 4)
	assert.Equal(t, first[domain.AccountCash].ID, second[domain.AccountCash].ID)
	assert.Equal(t, "Funds on Hold", first[domain.AccountCredit].DisplayName)
	assert.Equal(t, "Invoice", first[domain.AccountDebit].DisplayName)
	assert.Zero(t, first[domain.AccountBank].Balance)
}

func TestRecordAndTransferFunds(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	accounts := provision(t, svc, testBusiness)
	cash, bank := accounts[domain.AccountCash], accounts[domain.AccountBank]

	resp, err := svc.RecordTransaction(ctx, testBusiness, domain.RecordTransactionRequest{AccountID: cash.ID, Amount: 5000, Category: "sale"})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), resp.Balance)
	assert.Equal(t, domain.DirectionIncoming, resp.Transaction.Direction)

	transfer, err := svc.TransferFunds(ctx, testBusiness, domain.TransferRequest{FromAccountID: cash.ID, ToAccountID: bank.ID, Amount: 2000})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), transfer.FromBalance)
	assert.Equal(t, int64(2000), transfer.ToBalance)
	assert.Equal(t, int64(5000), transfer.FromBalance+transfer.ToBalance)

	txns, err := svc.GetTransactions(ctx, testBusiness, domain.TransactionFilter{AccountID: cash.ID})
	require.NoError(t, err)
	var sum int64
	for _, txn := range txns {
		sum += txn.Amount
	}
	assert.Equal(t, balanceOf(t, svc, testBusiness, domain.AccountCash), sum)
}

func TestRecordTransactionValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	accounts := provision(t, svc, testBusiness)
	cash := accounts[domain.AccountCash]

	cases := []domain.RecordTransactionRequest{
		{AccountID: cash.ID, Amount: 0, Category: "misc"},
		{AccountID: cash.ID, Amount: 10, Category: "  "},
		{AccountID: cash.ID, Amount: 10, Category: "misc", Direction: domain.DirectionOutgoing},
		{AccountID: cash.ID, Amount: -10, Category: "misc", Direction: domain.DirectionIncoming},
		{AccountID: cash.ID, Amount: 10, Category: "misc", Direction: "sideways"},
	}
	for _, req := range cases {
		_, err := svc.RecordTransaction(ctx, testBusiness, req)
		require.ErrorIs(t, err, store.ErrValidation, "request %+v", req)
	}

	_, err := svc.RecordTransaction(ctx, testBusiness, domain.RecordTransactionRequest{AccountID: "acc-missing", Amount: 10, Category: "misc"})
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.RecordTransaction(ctx, testBusiness, domain.RecordTransactionRequest{AccountID: cash.ID, Amount: -10, Category: "misc"})
	require.ErrorIs(t, err, store.ErrInsufficientFunds)

	_, err = svc.RecordTransaction(ctx, domain.BusinessContext{}, domain.RecordTransactionRequest{AccountID: cash.ID, Amount: 10, Category: "misc"})
	require.ErrorIs(t, err, store.ErrValidation)
}

func TestTransferFundsValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	accounts := provision(t, svc, testBusiness)
	cash, bank := accounts[domain.AccountCash], accounts[domain.AccountBank]

	_, err := svc.TransferFunds(ctx, testBusiness, domain.TransferRequest{FromAccountID: cash.ID, ToAccountID: bank.ID, Amount: 0})
	require.ErrorIs(t, err, store.ErrValidation)
	_, err = svc.TransferFunds(ctx, testBusiness, domain.TransferRequest{FromAccountID: cash.ID, ToAccountID: cash.ID, Amount: 5})
	require.ErrorIs(t, err, store.ErrValidation)
	_, err = svc.TransferFunds(ctx, testBusiness, domain.TransferRequest{FromAccountID: cash.ID, ToAccountID: bank.ID, Amount: 5})
	require.ErrorIs(t, err, store.ErrInsufficientFunds)

	other := domain.BusinessContext{BusinessID: "biz-2"}
	provision(t, svc, other)
	_, err = svc.TransferFunds(ctx, other, domain.TransferRequest{FromAccountID: cash.ID, ToAccountID: bank.ID, Amount: 5})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestTransferFundsReplaysIdempotencyKey(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	accounts := provision(t, svc, testBusiness)
	cash, bank := accounts[domain.AccountCash], accounts[domain.AccountBank]
	_, err := svc.RecordTransaction(ctx, testBusiness, domain.RecordTransactionRequest{AccountID: cash.ID, Amount: 1000, Category: "opening"})
	require.NoError(t, err)

	req := domain.TransferRequest{FromAccountID: cash.ID, ToAccountID: bank.ID, Amount: 400, IdempotencyKey: "retry-1"}
	first, err := svc.TransferFunds(ctx, testBusiness, req)
	require.NoError(t, err)
	second, err := svc.TransferFunds(ctx, testBusiness, req)
	require.NoError(t, err)

	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assert.Equal(t, int64(600), balanceOf(t, svc, testBusiness, domain.AccountCash))
}

func TestPayableLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	accounts := provision(t, svc, testBusiness)
	cash := accounts[domain.AccountCash]
	_, err := svc.RecordTransaction(ctx, testBusiness, domain.RecordTransactionRequest{AccountID: cash.ID, Amount: 20000, Category: "opening"})
	require.NoError(t, err)

	payable, err := svc.AddPayable(ctx, testBusiness, domain.PayableCreateRequest{PartyName: "Supplier", TotalAmount: 10000})
	require.NoError(t, err)
	assert.Equal(t, domain.PayablePending, payable.Status)

	resp, err := svc.Pay(ctx, testBusiness, domain.PaymentRequest{PayableID: payable.ID, Amount: 4000, PaymentAccountID: cash.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(4000), resp.Payable.PaidAmount)
	assert.Equal(t, domain.PayablePartial, resp.Payable.Status)

	resp, err = svc.Pay(ctx, testBusiness, domain.PaymentRequest{PayableID: payable.ID, Amount: 6000, PaymentAccountID: cash.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), resp.Payable.PaidAmount)
	assert.Equal(t, domain.PayablePaid, resp.Payable.Status)

	_, err = svc.Pay(ctx, testBusiness, domain.PaymentRequest{PayableID: payable.ID, Amount: 1, PaymentAccountID: cash.ID})
	require.ErrorIs(t, err, store.ErrExceedsRemaining)

	assert.Equal(t, int64(10000), balanceOf(t, svc, testBusiness, domain.AccountCash))
	txns, err := svc.GetTransactions(ctx, testBusiness, domain.TransactionFilter{Category: domain.CategoryPayable})
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, payable.ID, txns[0].Reference)
}

func TestSalaryPayoutGuard(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddSalary(ctx, testBusiness, domain.SalaryRequest{MemberID: "m-1", Amount: 2000})
	require.NoError(t, err)

	_, err = svc.PayoutSalary(ctx, testBusiness, domain.SalaryRequest{MemberID: "m-1", Amount: 3000})
	var balanceErr *store.InsufficientBalanceError
	require.ErrorAs(t, err, &balanceErr)
	assert.Equal(t, int64(2000), balanceErr.Available)

	balance, err := svc.GetSalaryBalance(ctx, testBusiness, "m-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), balance.Balance)

	_, err = svc.AddSalary(ctx, testBusiness, domain.SalaryRequest{MemberID: "m-1", Amount: 5000})
	require.NoError(t, err)
	_, err = svc.PayoutSalary(ctx, testBusiness, domain.SalaryRequest{MemberID: "m-1", Amount: 3000})
	require.NoError(t, err)

	balance, err = svc.GetSalaryBalance(ctx, testBusiness, "m-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4000), balance.Balance)
	assert.Equal(t, int64(3000), balance.TotalPaid)

	history, err := svc.GetSalaryHistory(ctx, testBusiness, "m-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, domain.SalaryPayout, history[0].Type)

	_, err = svc.AddSalary(ctx, testBusiness, domain.SalaryRequest{MemberID: "m-1", Amount: -100})
	require.ErrorIs(t, err, store.ErrValidation)
	_, err = svc.PayoutSalary(ctx, testBusiness, domain.SalaryRequest{MemberID: "m-unknown", Amount: 1})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSalaryPayoutDebitsPaymentAccount(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	accounts := provision(t, svc, testBusiness)
	bank := accounts[domain.AccountBank]

	_, err := svc.AddSalary(ctx, testBusiness, domain.SalaryRequest{MemberID: "m-1", Amount: 1000})
	require.NoError(t, err)

	_, err = svc.PayoutSalary(ctx, testBusiness, domain.SalaryRequest{MemberID: "m-1", Amount: 500, PaymentAccountID: bank.ID})
	require.ErrorIs(t, err, store.ErrInsufficientFunds)
	balance, err := svc.GetSalaryBalance(ctx, testBusiness, "m-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance.Balance)

	_, err = svc.RecordTransaction(ctx, testBusiness, domain.RecordTransactionRequest{AccountID: bank.ID, Amount: 800, Category: "opening"})
	require.NoError(t, err)
	_, err = svc.PayoutSalary(ctx, testBusiness, domain.SalaryRequest{MemberID: "m-1", Amount: 500, PaymentAccountID: bank.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(300), balanceOf(t, svc, testBusiness, domain.AccountBank))
}

func TestAssetRecoveryProgress(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	asset, err := svc.AddAsset(ctx, testBusiness, domain.AssetCreateRequest{Name: "Oven", Category: "equipment", TotalCost: 100000})
	require.NoError(t, err)

	var view domain.AssetView
	for _, amount := range []int64{30000, 30000, 12000} {
		view, err = svc.RecordAssetRecovery(ctx, testBusiness, asset.ID, amount)
		require.NoError(t, err)
	}
	assert.Equal(t, float64(72), view.Progress)
	assert.Equal(t, domain.AssetActive, view.Status)

	view, err = svc.RecordAssetRecovery(ctx, testBusiness, asset.ID, 58000)
	require.NoError(t, err)
	assert.Equal(t, float64(100), view.Progress)
	assert.Equal(t, int64(100000), view.RecoveredAmount)
	assert.Equal(t, domain.AssetRetired, view.Status)

	view, err = svc.RecordAssetRecovery(ctx, testBusiness, asset.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(0), view.Remaining)

	_, err = svc.RecordAssetRecovery(ctx, testBusiness, asset.ID, 0)
	require.ErrorIs(t, err, store.ErrValidation)
}

func TestRecurringCostFulfilmentAndRollover(t *testing.T) {
	clock := &fixedClock{now: time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)}
	svc := newTestService(t, WithClock(clock.Now))
	ctx := context.Background()

	cost, err := svc.AddRecurringCost(ctx, testBusiness, domain.RecurringCostCreateRequest{Name: "Rent", Type: "fixed", MonthlyTarget: 15000})
	require.NoError(t, err)
	assert.Equal(t, "2024-05", cost.CurrentMonth)

	var view domain.RecurringCostView
	for i := 0; i < 3; i++ {
		view, err = svc.RecordRecurringRecovery(ctx, testBusiness, cost.ID, 5000)
		require.NoError(t, err)
	}
	assert.Equal(t, domain.RecurringFulfilled, view.Status)
	assert.Equal(t, float64(100), view.Progress)

	clock.now = time.Date(2024, 6, 1, 0, 5, 0, 0, time.UTC)
	rollover, err := svc.RolloverRecurringCosts(ctx, testBusiness, "")
	require.NoError(t, err)
	assert.Equal(t, "2024-06", rollover.Month)
	require.Len(t, rollover.Archived, 1)
	assert.Equal(t, domain.HistoryFulfilled, rollover.Archived[0].Status)

	again, err := svc.RolloverRecurringCosts(ctx, testBusiness, "2024-06")
	require.NoError(t, err)
	assert.Empty(t, again.Archived)

	costs, err := svc.ListRecurringCosts(ctx, testBusiness)
	require.NoError(t, err)
	require.Len(t, costs, 1)
	assert.Zero(t, costs[0].RecoveredAmount)
	assert.Equal(t, domain.RecurringInProgress, costs[0].Status)

	history, err := svc.GetHistory(ctx, testBusiness)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "2024-05", history[0].Month)
	assert.Equal(t, int64(15000), history[0].RecoveredAmount)
}

func TestRolloverIntoFutureMonthIsRejected(t *testing.T) {
	clock := &fixedClock{now: time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)}
	svc := newTestService(t, WithClock(clock.Now))
	ctx := context.Background()

	cost, err := svc.AddRecurringCost(ctx, testBusiness, domain.RecurringCostCreateRequest{Name: "Rent", MonthlyTarget: 15000})
	require.NoError(t, err)

	_, err = svc.RolloverRecurringCosts(ctx, testBusiness, "2030-01")
	require.ErrorIs(t, err, store.ErrValidation)
	_, err = svc.RolloverRecurringCosts(ctx, testBusiness, "2024-06")
	require.ErrorIs(t, err, store.ErrValidation)

	history, err := svc.GetHistory(ctx, testBusiness)
	require.NoError(t, err)
	assert.Empty(t, history)

	view, err := svc.RecordRecurringRecovery(ctx, testBusiness, cost.ID, 5000)
	require.NoError(t, err)
	assert.Equal(t, "2024-05", view.CurrentMonth)
	assert.Equal(t, int64(5000), view.RecoveredAmount)
}

func TestRecurringRecoveryForClosedMonthIsRejected(t *testing.T) {
	clock := &fixedClock{now: time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC)}
	svc := newTestService(t, WithClock(clock.Now))
	ctx := context.Background()

	cost, err := svc.AddRecurringCost(ctx, testBusiness, domain.RecurringCostCreateRequest{Name: "Rent", MonthlyTarget: 100})
	require.NoError(t, err)

	clock.now = time.Date(2024, 6, 30, 23, 59, 0, 0, time.UTC)
	_, err = svc.RecordRecurringRecovery(ctx, testBusiness, cost.ID, 10)
	require.ErrorIs(t, err, store.ErrPeriodClosed)
	require.ErrorIs(t, err, store.ErrConcurrencyConflict)
}

func TestCostRulesAndAllocationCeiling(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddCostCategory(ctx, testBusiness, domain.CostCategoryRequest{
		ProductID: "prod-1", Name: "Packaging", CostBehaviour: domain.CostVariable, Mode: domain.RulePercent, Value: decimal.NewFromInt(24),
	})
	require.NoError(t, err)

	_, err = svc.AddCostCategory(ctx, testBusiness, domain.CostCategoryRequest{
		ProductID: "prod-1", Name: "Packaging", CostBehaviour: domain.CostVariable, Mode: domain.RuleFixed, Value: decimal.NewFromInt(3),
	})
	require.ErrorIs(t, err, store.ErrDuplicateRule)

	_, err = svc.AddCostCategory(ctx, testBusiness, domain.CostCategoryRequest{
		ProductID: "prod-1", Name: "Labour", CostBehaviour: domain.CostVariable, Mode: domain.RulePercent, Value: decimal.NewFromInt(77),
	})
	require.ErrorIs(t, err, store.ErrValidation)

	_, err = svc.AddCostCategory(ctx, testBusiness, domain.CostCategoryRequest{
		ProductID: "prod-1", Name: "Labour", CostBehaviour: domain.CostVariable, Mode: domain.RulePercent, Value: decimal.Zero,
	})
	require.ErrorIs(t, err, store.ErrValidation)

	allocations, err := svc.ListAllocations(ctx, testBusiness, "prod-1")
	require.NoError(t, err)
	require.Len(t, allocations.Allocations, 1)
	assert.Equal(t, "Packaging", allocations.Allocations[0].CategoryName)
	assert.True(t, allocations.AllocatedPercent.Equal(decimal.NewFromInt(24)))
	assert.True(t, allocations.RemainingPercent.Equal(decimal.NewFromInt(76)))

	check, err := svc.CheckCategory(ctx, testBusiness, "packaging", domain.CostVariable, "prod-1")
	require.NoError(t, err)
	assert.True(t, check.Exists)
	check, err = svc.CheckCategory(ctx, testBusiness, "packaging", domain.CostOneTime, "prod-1")
	require.NoError(t, err)
	assert.False(t, check.Exists)

	require.NoError(t, svc.DeleteAllocation(ctx, testBusiness, allocations.Allocations[0].Rule.ID))
	allocations, err = svc.ListAllocations(ctx, testBusiness, "prod-1")
	require.NoError(t, err)
	assert.Empty(t, allocations.Allocations)
}

func TestResolveSaleAllocatesAndFeedsRecovery(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	accounts := provision(t, svc, testBusiness)
	cash := accounts[domain.AccountCash]

	asset, err := svc.AddAsset(ctx, testBusiness, domain.AssetCreateRequest{Name: "Espresso machine", Category: "Machine", TotalCost: 50000})
	require.NoError(t, err)
	rent, err := svc.AddRecurringCost(ctx, testBusiness, domain.RecurringCostCreateRequest{Name: "Rent", MonthlyTarget: 30000})
	require.NoError(t, err)

	rules := []domain.CostCategoryRequest{
		{ProductID: "latte", Name: "Machine", CostBehaviour: domain.CostOneTime, Mode: domain.RulePercent, Value: decimal.NewFromInt(10)},
		{ProductID: "latte", Name: "Rent", CostBehaviour: domain.CostMonthlyFixed, Mode: domain.RulePercent, Value: decimal.RequireFromString("12.5")},
		{ProductID: "latte", Name: "Beans", CostBehaviour: domain.CostVariable, Mode: domain.RuleFixed, Value: decimal.NewFromInt(150)},
	}
	for _, rule := range rules {
		_, err := svc.AddCostCategory(ctx, testBusiness, rule)
		require.NoError(t, err)
	}

	resp, err := svc.ResolveSale(ctx, testBusiness, domain.SaleEvent{ProductID: "latte", Revenue: 10000, Quantity: 4, AccountID: cash.ID, Reference: "order-7"})
	require.NoError(t, err)
	require.Len(t, resp.Allocations, 3)
	assert.Equal(t, int64(1000), resp.Allocations[0].Amount)
	assert.Equal(t, int64(1250), resp.Allocations[1].Amount)
	assert.Equal(t, int64(600), resp.Allocations[2].Amount)
	assert.Equal(t, int64(10000-1000-1250-600), resp.AccountBalance)

	assets, err := svc.ListAssets(ctx, testBusiness)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, asset.ID, assets[0].ID)
	assert.Equal(t, int64(1000), assets[0].RecoveredAmount)

	costs, err := svc.ListRecurringCosts(ctx, testBusiness)
	require.NoError(t, err)
	require.Len(t, costs, 1)
	assert.Equal(t, rent.ID, costs[0].ID)
	assert.Equal(t, int64(1250), costs[0].RecoveredAmount)

	categories, err := svc.ListCostCategories(ctx, testBusiness)
	require.NoError(t, err)
	buckets := make(map[string]int64)
	for _, c := range categories {
		buckets[c.Name] = c.Balance
	}
	assert.Equal(t, int64(600), buckets["Beans"])

	replayed, err := svc.ResolveSale(ctx, testBusiness, domain.SaleEvent{ProductID: "latte", Revenue: 10000, Quantity: 4, AccountID: cash.ID, IdempotencyKey: "sale-1"})
	require.NoError(t, err)
	assert.False(t, replayed.Duplicate)
	replayed, err = svc.ResolveSale(ctx, testBusiness, domain.SaleEvent{ProductID: "latte", Revenue: 10000, Quantity: 4, AccountID: cash.ID, IdempotencyKey: "sale-1"})
	require.NoError(t, err)
	assert.True(t, replayed.Duplicate)

	assets, err = svc.ListAssets(ctx, testBusiness)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), assets[0].RecoveredAmount)
}

func TestTransferCOGSRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	accounts := provision(t, svc, testBusiness)
	bank := accounts[domain.AccountBank]
	_, err := svc.RecordTransaction(ctx, testBusiness, domain.RecordTransactionRequest{AccountID: bank.ID, Amount: 900, Category: "opening"})
	require.NoError(t, err)
	created, err := svc.AddCostCategory(ctx, testBusiness, domain.CostCategoryRequest{Name: "Utilities", CostBehaviour: domain.CostMonthlyFixed})
	require.NoError(t, err)
	assert.Nil(t, created.Rule)

	resp, err := svc.TransferCOGS(ctx, testBusiness, domain.COGSTransferRequest{CategoryID: created.Category.ID, AccountID: bank.ID, Amount: 400, Direction: domain.COGSToBucket})
	require.NoError(t, err)
	assert.Equal(t, int64(500), resp.AccountBalance)
	assert.Equal(t, int64(400), resp.BucketBalance)

	_, err = svc.TransferCOGS(ctx, testBusiness, domain.COGSTransferRequest{CategoryID: created.Category.ID, AccountID: bank.ID, Amount: 401, Direction: domain.COGSFromBucket})
	require.ErrorIs(t, err, store.ErrInsufficientFunds)

	_, err = svc.TransferCOGS(ctx, testBusiness, domain.COGSTransferRequest{CategoryID: created.Category.ID, AccountID: bank.ID, Amount: 1, Direction: "sideways"})
	require.ErrorIs(t, err, store.ErrValidation)
}

func TestMoneyFlowClassifiesTransactions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	accounts := provision(t, svc, testBusiness)
	cash, bank, credit := accounts[domain.AccountCash], accounts[domain.AccountBank], accounts[domain.AccountCredit]

	record := func(accountID string, amount int64, category string) {
		_, err := svc.RecordTransaction(ctx, testBusiness, domain.RecordTransactionRequest{AccountID: accountID, Amount: amount, Category: category})
		require.NoError(t, err)
	}
	record(cash.ID, 5000, "sale")
	record(bank.ID, 3000, "sale")
	record(credit.ID, 700, "sale")
	record(cash.ID, -1200, domain.CategoryInventory)
	record(bank.ID, -300, "fuel")

	_, err := svc.TransferFunds(ctx, testBusiness, domain.TransferRequest{FromAccountID: cash.ID, ToAccountID: bank.ID, Amount: 1000})
	require.NoError(t, err)
	category, err := svc.AddCostCategory(ctx, testBusiness, domain.CostCategoryRequest{Name: "Rent", CostBehaviour: domain.CostMonthlyFixed})
	require.NoError(t, err)
	_, err = svc.TransferCOGS(ctx, testBusiness, domain.COGSTransferRequest{CategoryID: category.Category.ID, AccountID: bank.ID, Amount: 800, Direction: domain.COGSToBucket})
	require.NoError(t, err)

	flow, err := svc.MoneyFlow(ctx, testBusiness, "")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), flow.Incoming.Cash)
	assert.Equal(t, int64(3000), flow.Incoming.Bank)
	assert.Equal(t, int64(700), flow.Incoming.Credit)
	assert.Equal(t, int64(1200), flow.Outgoing.Inventory)
	assert.Equal(t, int64(300), flow.Outgoing.General)
	assert.Equal(t, map[string]int64{"Rent": 800}, flow.Outgoing.COGS)

	_, err = svc.MoneyFlow(ctx, testBusiness, "2024-13")
	require.ErrorIs(t, err, store.ErrValidation)
}

type recordingCache struct {
	flows       map[string]domain.MoneyFlow
	generations map[string]int64
	invalidated int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{flows: make(map[string]domain.MoneyFlow), generations: make(map[string]int64)}
}

func (c *recordingCache) key(businessID string, month string, generation int64) string {
	return fmt.Sprintf("%s/%s/%d", businessID, month, generation)
}

func (c *recordingCache) Generation(_ context.Context, businessID string) (int64, error) {
	return c.generations[businessID], nil
}

func (c *recordingCache) Get(_ context.Context, businessID string, month string, generation int64) (*domain.MoneyFlow, bool, error) {
	flow, ok := c.flows[c.key(businessID, month, generation)]
	if !ok {
		return nil, false, nil
	}
	return &flow, true, nil
}

func (c *recordingCache) Set(_ context.Context, value *domain.MoneyFlow, generation int64, _ time.Duration) error {
	c.flows[c.key(value.BusinessID, value.Month, generation)] = *value
	return nil
}

func (c *recordingCache) Invalidate(_ context.Context, businessID string) error {
	c.generations[businessID]++
	c.invalidated++
	return nil
}

func TestMoneyFlowCacheInvalidatedByMutations(t *testing.T) {
	flows := newRecordingCache()
	svc := newTestService(t, WithMoneyFlowCache(flows, time.Minute))
	ctx := context.Background()
	accounts := provision(t, svc, testBusiness)
	cash := accounts[domain.AccountCash]
	invalidatedByProvision := flows.invalidated

	first, err := svc.MoneyFlow(ctx, testBusiness, "")
	require.NoError(t, err)
	assert.Zero(t, first.Incoming.Cash)
	require.Len(t, flows.flows, 1)

	_, err = svc.RecordTransaction(ctx, testBusiness, domain.RecordTransactionRequest{AccountID: cash.ID, Amount: 250, Category: "sale"})
	require.NoError(t, err)
	assert.Equal(t, invalidatedByProvision+1, flows.invalidated)

	second, err := svc.MoneyFlow(ctx, testBusiness, "")
	require.NoError(t, err)
	assert.Equal(t, int64(250), second.Incoming.Cash)
}

// interleavingRepo runs hook once, right after the transaction log was read.
type interleavingRepo struct {
	store.Repository
	hook func()
}

func (r *interleavingRepo) ListTransactions(ctx context.Context, businessID string, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	txns, err := r.Repository.ListTransactions(ctx, businessID, filter)
	if r.hook != nil {
		hook := r.hook
		r.hook = nil
		hook()
	}
	return txns, err
}

func TestMoneyFlowComputedBeforeMutationIsNotServedAfterIt(t *testing.T) {
	repo := &interleavingRepo{Repository: memory.New()}
	flows := newRecordingCache()
	svc := New(repo, WithLogger(logging.Discard()), WithMoneyFlowCache(flows, time.Hour))
	ctx := context.Background()
	cash := provision(t, svc, testBusiness)[domain.AccountCash]

	repo.hook = func() {
		_, err := svc.RecordTransaction(ctx, testBusiness, domain.RecordTransactionRequest{AccountID: cash.ID, Amount: 400, Category: "sale"})
		require.NoError(t, err)
	}
	stale, err := svc.MoneyFlow(ctx, testBusiness, "")
	require.NoError(t, err)
	assert.Zero(t, stale.Incoming.Cash)

	fresh, err := svc.MoneyFlow(ctx, testBusiness, "")
	require.NoError(t, err)
	assert.Equal(t, int64(400), fresh.Incoming.Cash)
}

type failingRepo struct {
	store.Repository
}

func (failingRepo) ListAccounts(context.Context, string) ([]domain.Account, error) {
	return nil, errors.New("connection reset by peer")
}

func TestUnexpectedErrorsBecomeServerErrors(t *testing.T) {
	svc := New(failingRepo{Repository: memory.New()}, WithLogger(logging.Discard()))

	_, err := svc.GetAccounts(context.Background(), testBusiness)
	require.ErrorIs(t, err, store.ErrServerError)
	assert.NotContains(t, err.Error(), "connection reset")
}

func TestBusinessContextRoundTrip(t *testing.T) {
	ctx := WithBusiness(context.Background(), testBusiness)
	bc, ok := BusinessFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, testBusiness, bc)

	_, ok = BusinessFromContext(context.Background())
	assert.False(t, ok)
}
