package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
	"github.com/Srijan10011/Business-Calc-sub000/internal/store"
	"github.com/Srijan10011/Business-Calc-sub000/internal/xid"
)

// Store keeps every business in process memory. A single mutex serialises all
// mutations, so multi-row operations are validated first and then applied whole.
type Store struct {
	mu             sync.RWMutex
	accounts       map[string]*domain.Account
	transactions   []domain.Transaction
	categories     map[string]*domain.CostCategory
	categoryOrder  []string
	rules          map[string]domain.ProductCostRule
	ruleOrder      []string
	assets         map[string]*domain.Asset
	assetOrder     []string
	recurring      map[string]*domain.RecurringCost
	recurringOrder []string
	history        []domain.MonthlyHistoryRow
	historyKeys    map[string]struct{}
	payables       map[string]*domain.Payable
	payableOrder   []string
	salaries       map[string]*domain.SalaryAccount
	salaryEntries  []domain.SalaryEntry
	idempotency    map[string]domain.IdempotencyRecord
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		accounts:      make(map[string]*domain.Account),
		transactions:  make([]domain.Transaction, 0, 256),
		categories:    make(map[string]*domain.CostCategory),
		rules:         make(map[string]domain.ProductCostRule),
		assets:        make(map[string]*domain.Asset),
		recurring:     make(map[string]*domain.RecurringCost),
		historyKeys:   make(map[string]struct{}),
		payables:      make(map[string]*domain.Payable),
		salaries:      make(map[string]*domain.SalaryAccount),
		salaryEntries: make([]domain.SalaryEntry, 0, 64),
		idempotency:   make(map[string]domain.IdempotencyRecord),
	}
}

func (s *Store) ListBusinessIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	ids := make([]string, 0, 8)
	for _, acc := range s.accounts {
		if _, ok := seen[acc.BusinessID]; ok {
			continue
		}
		seen[acc.BusinessID] = struct{}{}
		ids = append(ids, acc.BusinessID)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *Store) CreateAccounts(_ context.Context, businessID string, accounts []domain.Account) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[domain.AccountKind]bool)
	for _, acc := range s.accounts {
		if acc.BusinessID == businessID {
			existing[acc.Kind] = true
		}
	}
	for _, acc := range accounts {
		if !acc.Kind.Valid() {
			return nil, store.Invalid("unknown account kind %q", acc.Kind)
		}
		if existing[acc.Kind] {
			continue
		}
		if acc.ID == "" {
			acc.ID = xid.New("acc")
		}
		if acc.CreatedAt.IsZero() {
			acc.CreatedAt = time.Now().UTC()
		}
		acc.BusinessID = businessID
		acc.Balance = 0
		created := acc
		s.accounts[created.ID] = &created
		existing[acc.Kind] = true
	}
	return s.listAccountsLocked(businessID), nil
}

func (s *Store) ListAccounts(_ context.Context, businessID string) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listAccountsLocked(businessID), nil
}

func (s *Store) listAccountsLocked(businessID string) []domain.Account {
	result := make([]domain.Account, 0, len(domain.DefaultAccountKinds))
	for _, acc := range s.accounts {
		if acc.BusinessID == businessID {
			result = append(result, *acc)
		}
	}
	slices.SortFunc(result, func(a, b domain.Account) int {
		return cmp.Compare(a.Kind.Rank(), b.Kind.Rank())
	})
	return result
}

func (s *Store) GetAccount(_ context.Context, businessID string, accountID string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, err := s.accountLocked(businessID, accountID)
	if err != nil {
		return nil, err
	}
	copyAcc := *acc
	return &copyAcc, nil
}

func (s *Store) accountLocked(businessID string, accountID string) (*domain.Account, error) {
	acc, ok := s.accounts[accountID]
	if !ok || acc.BusinessID != businessID {
		return nil, fmt.Errorf("%w: account %s", store.ErrNotFound, accountID)
	}
	return acc, nil
}

func (s *Store) RecordTransaction(_ context.Context, txn domain.Transaction, idem store.Idempotency) (domain.RecordTransactionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if resp, found, err := replay[domain.RecordTransactionResponse](s, txn.BusinessID, idem); found || err != nil {
		resp.Duplicate = found
		return resp, err
	}
	if txn.Amount == 0 {
		return domain.RecordTransactionResponse{}, store.Invalid("amount must not be zero")
	}

	acc, err := s.accountLocked(txn.BusinessID, txn.AccountID)
	if err != nil {
		return domain.RecordTransactionResponse{}, err
	}
	if err := checkFunds(acc, -txn.Amount); err != nil {
		return domain.RecordTransactionResponse{}, err
	}

	posted := s.post(acc, txn.Amount, txn.Category, txn.Reference, txn.CostCategoryID, txn.ID, txn.CreatedAt)
	resp := domain.RecordTransactionResponse{Transaction: posted, Balance: acc.Balance}
	return resp, s.remember(txn.BusinessID, idem, resp)
}

func (s *Store) ListTransactions(_ context.Context, businessID string, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, 64)
	for i := len(s.transactions) - 1; i >= 0; i-- {
		txn := s.transactions[i]
		if txn.BusinessID != businessID || !matchesFilter(txn, filter) {
			continue
		}
		result = append(result, txn)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func matchesFilter(txn domain.Transaction, filter domain.TransactionFilter) bool {
	if filter.DateFrom != nil && txn.CreatedAt.Before(*filter.DateFrom) {
		return false
	}
	if filter.DateTo != nil && !txn.CreatedAt.Before(*filter.DateTo) {
		return false
	}
	if filter.AccountID != "" && txn.AccountID != filter.AccountID {
		return false
	}
	if filter.Direction != "" && txn.Direction != filter.Direction {
		return false
	}
	if filter.Category != "" && !strings.EqualFold(txn.Category, filter.Category) {
		return false
	}
	return true
}

func (s *Store) Transfer(_ context.Context, businessID string, req domain.TransferRequest, idem store.Idempotency) (domain.TransferResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if resp, found, err := replay[domain.TransferResponse](s, businessID, idem); found || err != nil {
		resp.Duplicate = found
		return resp, err
	}
	if req.Amount <= 0 {
		return domain.TransferResponse{}, store.Invalid("amount must be positive")
	}
	if req.FromAccountID == req.ToAccountID {
		return domain.TransferResponse{}, store.Invalid("source and destination accounts must differ")
	}

	from, err := s.accountLocked(businessID, req.FromAccountID)
	if err != nil {
		return domain.TransferResponse{}, err
	}
	to, err := s.accountLocked(businessID, req.ToAccountID)
	if err != nil {
		return domain.TransferResponse{}, err
	}
	if from.Balance < req.Amount {
		return domain.TransferResponse{}, fmt.Errorf("%w: available %d", store.ErrInsufficientFunds, from.Balance)
	}

	now := time.Now().UTC()
	s.post(from, -req.Amount, domain.CategoryTransfer, to.ID, "", "", now)
	s.post(to, req.Amount, domain.CategoryTransfer, from.ID, "", "", now)

	resp := domain.TransferResponse{FromBalance: from.Balance, ToBalance: to.Balance}
	return resp, s.remember(businessID, idem, resp)
}

func (s *Store) TransferCOGS(_ context.Context, businessID string, req domain.COGSTransferRequest, idem store.Idempotency) (domain.COGSTransferResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if resp, found, err := replay[domain.COGSTransferResponse](s, businessID, idem); found || err != nil {
		resp.Duplicate = found
		return resp, err
	}
	if req.Amount <= 0 {
		return domain.COGSTransferResponse{}, store.Invalid("amount must be positive")
	}

	category, err := s.categoryLocked(businessID, req.CategoryID)
	if err != nil {
		return domain.COGSTransferResponse{}, err
	}
	acc, err := s.accountLocked(businessID, req.AccountID)
	if err != nil {
		return domain.COGSTransferResponse{}, err
	}

	now := time.Now().UTC()
	switch req.Direction {
	case domain.COGSToBucket:
		if acc.Balance < req.Amount {
			return domain.COGSTransferResponse{}, fmt.Errorf("%w: account available %d", store.ErrInsufficientFunds, acc.Balance)
		}
		s.post(acc, -req.Amount, category.Name, string(req.Direction), category.ID, "", now)
		category.Balance += req.Amount
	case domain.COGSFromBucket:
		if category.Balance < req.Amount {
			return domain.COGSTransferResponse{}, fmt.Errorf("%w: bucket available %d", store.ErrInsufficientFunds, category.Balance)
		}
		category.Balance -= req.Amount
		s.post(acc, req.Amount, category.Name, string(req.Direction), category.ID, "", now)
	default:
		return domain.COGSTransferResponse{}, store.Invalid("unknown cogs direction %q", req.Direction)
	}

	resp := domain.COGSTransferResponse{AccountBalance: acc.Balance, BucketBalance: category.Balance}
	return resp, s.remember(businessID, idem, resp)
}

func (s *Store) PostSale(_ context.Context, businessID string, posting domain.SalePosting, idem store.Idempotency) (domain.SaleResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if resp, found, err := replay[domain.SaleResponse](s, businessID, idem); found || err != nil {
		resp.Duplicate = found
		return resp, err
	}
	if posting.Revenue <= 0 {
		return domain.SaleResponse{}, store.Invalid("revenue must be positive")
	}

	acc, err := s.accountLocked(businessID, posting.AccountID)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	categories := make([]*domain.CostCategory, len(posting.Allocations))
	running := acc.Balance + posting.Revenue
	for i, alloc := range posting.Allocations {
		category, err := s.categoryLocked(businessID, alloc.CategoryID)
		if err != nil {
			return domain.SaleResponse{}, err
		}
		if running < alloc.Amount && !acc.Kind.AllowsOverdraft() {
			return domain.SaleResponse{}, fmt.Errorf("%w: allocation %s needs %d, available %d", store.ErrInsufficientFunds, category.Name, alloc.Amount, running)
		}
		running -= alloc.Amount
		categories[i] = category
	}

	now := time.Now().UTC()
	s.post(acc, posting.Revenue, domain.CategorySale, posting.Reference, "", "", now)
	allocations := make([]domain.SaleAllocation, 0, len(posting.Allocations))
	for i, alloc := range posting.Allocations {
		category := categories[i]
		s.post(acc, -alloc.Amount, category.Name, posting.Reference, category.ID, "", now)
		category.Balance += alloc.Amount
		alloc.CategoryName = category.Name
		alloc.Behaviour = category.CostBehaviour
		allocations = append(allocations, alloc)
	}

	resp := domain.SaleResponse{Revenue: posting.Revenue, AccountBalance: acc.Balance, Allocations: allocations}
	return resp, s.remember(businessID, idem, resp)
}

func (s *Store) CreateCostRule(_ context.Context, category domain.CostCategory, rule *domain.ProductCostRule) (domain.CostCategoryResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.findCategoryLocked(category.BusinessID, category.Name, category.CostBehaviour, category.ProductID)
	if rule == nil {
		if existing != nil {
			return domain.CostCategoryResponse{}, fmt.Errorf("%w: category %s already exists", store.ErrDuplicateRule, category.Name)
		}
		created := s.insertCategoryLocked(category)
		return domain.CostCategoryResponse{Category: *created}, nil
	}

	if existing != nil {
		for _, id := range s.ruleOrder {
			r := s.rules[id]
			if r.CategoryID == existing.ID && r.ProductID == rule.ProductID {
				return domain.CostCategoryResponse{}, fmt.Errorf("%w: %s/%s already bound to product %s", store.ErrDuplicateRule, existing.Name, existing.CostBehaviour, rule.ProductID)
			}
		}
	}
	if rule.Mode == domain.RulePercent {
		allocated := s.allocatedPercentLocked(category.BusinessID, rule.ProductID)
		if allocated.Add(rule.Value).GreaterThan(decimal.NewFromInt(100)) {
			return domain.CostCategoryResponse{}, store.Invalid("percent allocations for product %s would reach %s%%", rule.ProductID, allocated.Add(rule.Value).String())
		}
	}

	target := existing
	if target == nil {
		target = s.insertCategoryLocked(category)
	}
	created := *rule
	if created.ID == "" {
		created.ID = xid.New("rule")
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}
	created.BusinessID = category.BusinessID
	created.CategoryID = target.ID
	s.rules[created.ID] = created
	s.ruleOrder = append(s.ruleOrder, created.ID)

	return domain.CostCategoryResponse{Category: *target, Rule: &created}, nil
}

func (s *Store) insertCategoryLocked(category domain.CostCategory) *domain.CostCategory {
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	category.Balance = 0
	created := category
	s.categories[created.ID] = &created
	s.categoryOrder = append(s.categoryOrder, created.ID)
	return &created
}

func (s *Store) allocatedPercentLocked(businessID string, productID string) decimal.Decimal {
	total := decimal.Zero
	for _, id := range s.ruleOrder {
		r := s.rules[id]
		if r.BusinessID == businessID && r.ProductID == productID && r.Mode == domain.RulePercent {
			total = total.Add(r.Value)
		}
	}
	return total
}

func (s *Store) FindCostCategory(_ context.Context, businessID string, name string, behaviour domain.CostBehaviour, productID string) (*domain.CostCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category := s.findCategoryLocked(businessID, name, behaviour, productID)
	if category == nil {
		return nil, store.ErrNotFound
	}
	copyCategory := *category
	return &copyCategory, nil
}

func (s *Store) findCategoryLocked(businessID string, name string, behaviour domain.CostBehaviour, productID string) *domain.CostCategory {
	for _, id := range s.categoryOrder {
		c := s.categories[id]
		if c.BusinessID == businessID && strings.EqualFold(c.Name, name) && c.CostBehaviour == behaviour && c.ProductID == productID {
			return c
		}
	}
	return nil
}

func (s *Store) categoryLocked(businessID string, categoryID string) (*domain.CostCategory, error) {
	category, ok := s.categories[categoryID]
	if !ok || category.BusinessID != businessID {
		return nil, fmt.Errorf("%w: cost category %s", store.ErrNotFound, categoryID)
	}
	return category, nil
}

func (s *Store) ListCostCategories(_ context.Context, businessID string) ([]domain.CostCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CostCategory, 0, len(s.categoryOrder))
	for _, id := range s.categoryOrder {
		if c := s.categories[id]; c.BusinessID == businessID {
			result = append(result, *c)
		}
	}
	return result, nil
}

func (s *Store) ListCostRules(_ context.Context, businessID string, productID string) ([]domain.ProductCostRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ProductCostRule, 0, 8)
	for _, id := range s.ruleOrder {
		r := s.rules[id]
		if r.BusinessID == businessID && r.ProductID == productID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (s *Store) DeleteCostRule(_ context.Context, businessID string, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rules[ruleID]
	if !ok || rule.BusinessID != businessID {
		return fmt.Errorf("%w: allocation %s", store.ErrNotFound, ruleID)
	}
	delete(s.rules, ruleID)
	s.ruleOrder = slices.DeleteFunc(s.ruleOrder, func(id string) bool { return id == ruleID })
	return nil
}

func (s *Store) CreateAsset(_ context.Context, asset domain.Asset) (*domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if asset.BusinessID == "" || asset.Name == "" || asset.TotalCost <= 0 {
		return nil, store.Invalid("asset requires a name and positive total cost")
	}
	if asset.ID == "" {
		asset.ID = xid.New("asset")
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now().UTC()
	}
	asset.RecoveredAmount = 0
	asset.ApplyRecovery(0)
	created := asset
	s.assets[created.ID] = &created
	s.assetOrder = append(s.assetOrder, created.ID)
	out := created
	return &out, nil
}

func (s *Store) ListAssets(_ context.Context, businessID string) ([]domain.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Asset, 0, len(s.assetOrder))
	for _, id := range s.assetOrder {
		if a := s.assets[id]; a.BusinessID == businessID {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (s *Store) FindActiveAssetByCategory(_ context.Context, businessID string, category string) (*domain.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.assetOrder {
		a := s.assets[id]
		if a.BusinessID == businessID && a.Status == domain.AssetActive && strings.EqualFold(a.Category, category) {
			out := *a
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) RecordAssetRecovery(_ context.Context, businessID string, assetID string, amount int64) (*domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount <= 0 {
		return nil, store.Invalid("recovery amount must be positive")
	}
	asset, ok := s.assets[assetID]
	if !ok || asset.BusinessID != businessID {
		return nil, fmt.Errorf("%w: asset %s", store.ErrNotFound, assetID)
	}
	asset.ApplyRecovery(amount)
	out := *asset
	return &out, nil
}

func (s *Store) CreateRecurringCost(_ context.Context, cost domain.RecurringCost) (*domain.RecurringCost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cost.BusinessID == "" || cost.Name == "" || cost.MonthlyTarget < 0 {
		return nil, store.Invalid("recurring cost requires a name and non-negative target")
	}
	if s.findRecurringByNameLocked(cost.BusinessID, cost.Name) != nil {
		return nil, fmt.Errorf("%w: recurring cost %s", store.ErrAlreadyExists, cost.Name)
	}
	if cost.ID == "" {
		cost.ID = xid.New("rc")
	}
	if cost.CreatedAt.IsZero() {
		cost.CreatedAt = time.Now().UTC()
	}
	if cost.CurrentMonth == "" {
		cost.CurrentMonth = domain.MonthOf(cost.CreatedAt)
	}
	cost.RecoveredAmount = 0
	cost.RefreshStatus()
	created := cost
	s.recurring[created.ID] = &created
	s.recurringOrder = append(s.recurringOrder, created.ID)
	out := created
	return &out, nil
}

func (s *Store) ListRecurringCosts(_ context.Context, businessID string) ([]domain.RecurringCost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.RecurringCost, 0, len(s.recurringOrder))
	for _, id := range s.recurringOrder {
		if c := s.recurring[id]; c.BusinessID == businessID {
			result = append(result, *c)
		}
	}
	return result, nil
}

func (s *Store) FindRecurringCostByName(_ context.Context, businessID string, name string) (*domain.RecurringCost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cost := s.findRecurringByNameLocked(businessID, name)
	if cost == nil {
		return nil, store.ErrNotFound
	}
	out := *cost
	return &out, nil
}

func (s *Store) findRecurringByNameLocked(businessID string, name string) *domain.RecurringCost {
	for _, id := range s.recurringOrder {
		c := s.recurring[id]
		if c.BusinessID == businessID && strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

func (s *Store) RecordRecurringRecovery(_ context.Context, businessID string, costID string, amount int64, month string, at time.Time) (*domain.RecurringCost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount <= 0 {
		return nil, store.Invalid("recovery amount must be positive")
	}
	cost, ok := s.recurring[costID]
	if !ok || cost.BusinessID != businessID {
		return nil, fmt.Errorf("%w: recurring cost %s", store.ErrNotFound, costID)
	}
	if cost.CurrentMonth > month {
		return nil, fmt.Errorf("%w: %s already rolled over to %s", store.ErrPeriodClosed, month, cost.CurrentMonth)
	}
	if err := s.rolloverLocked(cost, month, at); err != nil {
		return nil, err
	}
	cost.RecoveredAmount += amount
	cost.RefreshStatus()
	out := *cost
	return &out, nil
}

func (s *Store) RolloverRecurringCosts(_ context.Context, businessID string, toMonth string, at time.Time) ([]domain.MonthlyHistoryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.history)
	for _, id := range s.recurringOrder {
		cost := s.recurring[id]
		if cost.BusinessID != businessID {
			continue
		}
		if err := s.rolloverLocked(cost, toMonth, at); err != nil {
			return nil, err
		}
	}
	archived := make([]domain.MonthlyHistoryRow, len(s.history)-before)
	copy(archived, s.history[before:])
	return archived, nil
}

func (s *Store) rolloverLocked(cost *domain.RecurringCost, toMonth string, at time.Time) error {
	next, rows, err := domain.PlanRollover(*cost, toMonth, func() string { return xid.New("hist") }, at)
	if err != nil {
		return store.Invalid("%v", err)
	}
	for _, row := range rows {
		key := row.CostID + "|" + row.Month
		if _, done := s.historyKeys[key]; done {
			continue
		}
		s.historyKeys[key] = struct{}{}
		s.history = append(s.history, row)
	}
	*cost = next
	return nil
}

func (s *Store) ListRecurringHistory(_ context.Context, businessID string) ([]domain.MonthlyHistoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.MonthlyHistoryRow, 0, len(s.history))
	for _, row := range s.history {
		if row.BusinessID == businessID {
			result = append(result, row)
		}
	}
	slices.SortStableFunc(result, func(a, b domain.MonthlyHistoryRow) int {
		if a.Month == b.Month {
			return cmp.Compare(a.Name, b.Name)
		}
		return cmp.Compare(b.Month, a.Month)
	})
	return result, nil
}

func (s *Store) CreatePayable(_ context.Context, payable domain.Payable) (*domain.Payable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if payable.BusinessID == "" || payable.PartyName == "" || payable.TotalAmount <= 0 {
		return nil, store.Invalid("payable requires a party and positive total")
	}
	if payable.ID == "" {
		payable.ID = xid.New("pay")
	}
	if payable.CreatedAt.IsZero() {
		payable.CreatedAt = time.Now().UTC()
	}
	payable.PaidAmount = 0
	payable.Status = domain.PayableStatusFor(0, payable.TotalAmount)
	created := payable
	s.payables[created.ID] = &created
	s.payableOrder = append(s.payableOrder, created.ID)
	out := created
	return &out, nil
}

func (s *Store) ListPayables(_ context.Context, businessID string) ([]domain.Payable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Payable, 0, len(s.payableOrder))
	for i := len(s.payableOrder) - 1; i >= 0; i-- {
		if p := s.payables[s.payableOrder[i]]; p.BusinessID == businessID {
			result = append(result, *p)
		}
	}
	return result, nil
}

func (s *Store) PayPayable(_ context.Context, businessID string, req domain.PaymentRequest, idem store.Idempotency) (domain.PaymentResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if resp, found, err := replay[domain.PaymentResponse](s, businessID, idem); found || err != nil {
		resp.Duplicate = found
		return resp, err
	}
	if req.Amount <= 0 {
		return domain.PaymentResponse{}, store.Invalid("payment amount must be positive")
	}

	payable, ok := s.payables[req.PayableID]
	if !ok || payable.BusinessID != businessID {
		return domain.PaymentResponse{}, fmt.Errorf("%w: payable %s", store.ErrNotFound, req.PayableID)
	}
	if req.Amount > payable.Remaining() {
		return domain.PaymentResponse{}, fmt.Errorf("%w: remaining %d", store.ErrExceedsRemaining, payable.Remaining())
	}
	acc, err := s.accountLocked(businessID, req.PaymentAccountID)
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	if err := checkFunds(acc, req.Amount); err != nil {
		return domain.PaymentResponse{}, err
	}

	s.post(acc, -req.Amount, domain.CategoryPayable, payable.ID, "", "", time.Now().UTC())
	payable.PaidAmount += req.Amount
	payable.Status = domain.PayableStatusFor(payable.PaidAmount, payable.TotalAmount)

	resp := domain.PaymentResponse{Payable: *payable, AccountBalance: acc.Balance}
	return resp, s.remember(businessID, idem, resp)
}

func (s *Store) ApplySalaryEntry(_ context.Context, entry domain.SalaryEntry, paymentAccountID string, idem store.Idempotency) (domain.SalaryMutationResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if resp, found, err := replay[domain.SalaryMutationResponse](s, entry.BusinessID, idem); found || err != nil {
		resp.Duplicate = found
		return resp, err
	}
	if entry.Amount <= 0 {
		return domain.SalaryMutationResponse{}, store.Invalid("salary amount must be positive")
	}
	if entry.ID == "" {
		entry.ID = xid.New("sal")
	}
	if entry.Date.IsZero() {
		entry.Date = time.Now().UTC()
	}

	key := entry.BusinessID + "|" + entry.MemberID
	account, exists := s.salaries[key]

	switch entry.Type {
	case domain.SalaryAddition:
		if !exists {
			account = &domain.SalaryAccount{MemberID: entry.MemberID, BusinessID: entry.BusinessID}
			s.salaries[key] = account
		}
		account.Balance += entry.Amount
	case domain.SalaryPayout:
		if !exists {
			return domain.SalaryMutationResponse{}, fmt.Errorf("%w: salary account %s", store.ErrNotFound, entry.MemberID)
		}
		if account.Balance < entry.Amount {
			return domain.SalaryMutationResponse{}, &store.InsufficientBalanceError{Available: account.Balance}
		}
		if paymentAccountID != "" {
			acc, err := s.accountLocked(entry.BusinessID, paymentAccountID)
			if err != nil {
				return domain.SalaryMutationResponse{}, err
			}
			if err := checkFunds(acc, entry.Amount); err != nil {
				return domain.SalaryMutationResponse{}, err
			}
			s.post(acc, -entry.Amount, domain.CategorySalary, entry.MemberID, "", "", entry.Date)
		}
		account.Balance -= entry.Amount
	default:
		return domain.SalaryMutationResponse{}, store.Invalid("unknown salary entry type %q", entry.Type)
	}

	account.UpdatedAt = entry.Date
	s.salaryEntries = append(s.salaryEntries, entry)

	resp := domain.SalaryMutationResponse{Account: *account, Entry: entry}
	return resp, s.remember(entry.BusinessID, idem, resp)
}

func (s *Store) GetSalaryAccount(_ context.Context, businessID string, memberID string) (*domain.SalaryAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.salaries[businessID+"|"+memberID]
	if !ok {
		return nil, fmt.Errorf("%w: salary account %s", store.ErrNotFound, memberID)
	}
	out := *account
	return &out, nil
}

func (s *Store) ListSalaryEntries(_ context.Context, businessID string, memberID string) ([]domain.SalaryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SalaryEntry, 0, 16)
	for i := len(s.salaryEntries) - 1; i >= 0; i-- {
		entry := s.salaryEntries[i]
		if entry.BusinessID == businessID && entry.MemberID == memberID {
			result = append(result, entry)
		}
	}
	return result, nil
}

// post applies amount to acc and appends the matching log row. Callers hold mu
// and have already validated the whole operation.
func (s *Store) post(acc *domain.Account, amount int64, category string, reference string, costCategoryID string, id string, at time.Time) domain.Transaction {
	if id == "" {
		id = xid.New("txn")
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	direction := domain.DirectionIncoming
	if amount < 0 {
		direction = domain.DirectionOutgoing
	}
	acc.Balance += amount
	txn := domain.Transaction{
		ID:             id,
		AccountID:      acc.ID,
		BusinessID:     acc.BusinessID,
		Amount:         amount,
		Category:       category,
		Direction:      direction,
		Reference:      reference,
		CostCategoryID: costCategoryID,
		CreatedAt:      at,
	}
	s.transactions = append(s.transactions, txn)
	return txn
}

// checkFunds rejects a debit of amount that would overdraw a cash or bank account.
func checkFunds(acc *domain.Account, amount int64) error {
	if amount <= 0 || acc.Kind.AllowsOverdraft() {
		return nil
	}
	if acc.Balance < amount {
		return fmt.Errorf("%w: %s available %d", store.ErrInsufficientFunds, acc.Kind, acc.Balance)
	}
	return nil
}

func replay[T any](s *Store, businessID string, idem store.Idempotency) (T, bool, error) {
	var zero T
	if !idem.Enabled() {
		return zero, false, nil
	}
	rec, ok := s.idempotency[businessID+"|"+idem.Key]
	if !ok {
		return zero, false, nil
	}
	resp, err := store.Replay[T](&rec, idem)
	if err != nil {
		return zero, false, err
	}
	return resp, true, nil
}

func (s *Store) remember(businessID string, idem store.Idempotency, resp any) error {
	if !idem.Enabled() {
		return nil
	}
	rec, err := store.Remember(businessID, idem, resp, time.Now().UTC())
	if err != nil {
		return err
	}
	s.idempotency[businessID+"|"+idem.Key] = rec
	return nil
}
