package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation error")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateRule       = errors.New("duplicate rule")
	ErrAlreadyExists       = errors.New("already exists")
	ErrExceedsRemaining    = errors.New("amount exceeds remaining balance")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrServerError         = errors.New("server error")

	// ErrPeriodClosed rejects a recovery aimed at a month that has already rolled over.
	ErrPeriodClosed = fmt.Errorf("%w: period closed", ErrConcurrencyConflict)
)

// InsufficientBalanceError carries the exact balance so callers can render it.
type InsufficientBalanceError struct {
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %d", e.Available)
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

var domainErrors = []error{
	ErrNotFound,
	ErrValidation,
	ErrInsufficientFunds,
	ErrInsufficientBalance,
	ErrDuplicateRule,
	ErrAlreadyExists,
	ErrExceedsRemaining,
	ErrConcurrencyConflict,
	ErrServerError,
}

// IsDomainError reports whether err belongs to the ledger error taxonomy.
func IsDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

type Repository interface {
	ListBusinessIDs(ctx context.Context) ([]string, error)

	CreateAccounts(ctx context.Context, businessID string, accounts []domain.Account) ([]domain.Account, error)
	ListAccounts(ctx context.Context, businessID string) ([]domain.Account, error)
	GetAccount(ctx context.Context, businessID string, accountID string) (*domain.Account, error)
	RecordTransaction(ctx context.Context, txn domain.Transaction, idem Idempotency) (domain.RecordTransactionResponse, error)
	ListTransactions(ctx context.Context, businessID string, filter domain.TransactionFilter) ([]domain.Transaction, error)

	Transfer(ctx context.Context, businessID string, req domain.TransferRequest, idem Idempotency) (domain.TransferResponse, error)
	TransferCOGS(ctx context.Context, businessID string, req domain.COGSTransferRequest, idem Idempotency) (domain.COGSTransferResponse, error)
	PostSale(ctx context.Context, businessID string, posting domain.SalePosting, idem Idempotency) (domain.SaleResponse, error)

	CreateCostRule(ctx context.Context, category domain.CostCategory, rule *domain.ProductCostRule) (domain.CostCategoryResponse, error)
	FindCostCategory(ctx context.Context, businessID string, name string, behaviour domain.CostBehaviour, productID string) (*domain.CostCategory, error)
	ListCostCategories(ctx context.Context, businessID string) ([]domain.CostCategory, error)
	ListCostRules(ctx context.Context, businessID string, productID string) ([]domain.ProductCostRule, error)
	DeleteCostRule(ctx context.Context, businessID string, ruleID string) error

	CreateAsset(ctx context.Context, asset domain.Asset) (*domain.Asset, error)
	ListAssets(ctx context.Context, businessID string) ([]domain.Asset, error)
	FindActiveAssetByCategory(ctx context.Context, businessID string, category string) (*domain.Asset, error)
	RecordAssetRecovery(ctx context.Context, businessID string, assetID string, amount int64) (*domain.Asset, error)

	CreateRecurringCost(ctx context.Context, cost domain.RecurringCost) (*domain.RecurringCost, error)
	ListRecurringCosts(ctx context.Context, businessID string) ([]domain.RecurringCost, error)
	FindRecurringCostByName(ctx context.Context, businessID string, name string) (*domain.RecurringCost, error)
	RecordRecurringRecovery(ctx context.Context, businessID string, costID string, amount int64, month string, at time.Time) (*domain.RecurringCost, error)
	RolloverRecurringCosts(ctx context.Context, businessID string, toMonth string, at time.Time) ([]domain.MonthlyHistoryRow, error)
	ListRecurringHistory(ctx context.Context, businessID string) ([]domain.MonthlyHistoryRow, error)

	CreatePayable(ctx context.Context, payable domain.Payable) (*domain.Payable, error)
	ListPayables(ctx context.Context, businessID string) ([]domain.Payable, error)
	PayPayable(ctx context.Context, businessID string, req domain.PaymentRequest, idem Idempotency) (domain.PaymentResponse, error)

	ApplySalaryEntry(ctx context.Context, entry domain.SalaryEntry, paymentAccountID string, idem Idempotency) (domain.SalaryMutationResponse, error)
	GetSalaryAccount(ctx context.Context, businessID string, memberID string) (*domain.SalaryAccount, error)
	ListSalaryEntries(ctx context.Context, businessID string, memberID string) ([]domain.SalaryEntry, error)
}
