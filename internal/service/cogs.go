package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
	"github.com/Srijan10011/Business-Calc-sub000/internal/logging"
	"github.com/Srijan10011/Business-Calc-sub000/internal/store"
)

var hundred = decimal.NewFromInt(100)

// AddCostCategory finds or creates the category and, when a product is given,
// binds a cost rule to it.
func (s *Service) AddCostCategory(ctx context.Context, bc domain.BusinessContext, req domain.CostCategoryRequest) (domain.CostCategoryResponse, error) {
	if err := requireBusiness(bc); err != nil {
		return domain.CostCategoryResponse{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.Name == "" {
		return domain.CostCategoryResponse{}, store.Invalid("category name is required")
	}
	if !req.CostBehaviour.Valid() {
		return domain.CostCategoryResponse{}, store.Invalid("unknown cost behaviour %q", req.CostBehaviour)
	}
	if req.Type == "" {
		req.Type = domain.DirectionOutgoing
	}
	if req.Type != domain.DirectionIncoming && req.Type != domain.DirectionOutgoing {
		return domain.CostCategoryResponse{}, store.Invalid("unknown category type %q", req.Type)
	}

	category := domain.CostCategory{
		BusinessID:    bc.BusinessID,
		ProductID:     req.ProductID,
		Name:          req.Name,
		CostBehaviour: req.CostBehaviour,
		Type:          req.Type,
		CreatedAt:     s.now(),
	}

	var rule *domain.ProductCostRule
	if req.ProductID != "" {
		if err := validateRule(req.Mode, req.Value); err != nil {
			return domain.CostCategoryResponse{}, err
		}
		rule = &domain.ProductCostRule{
			ProductID: req.ProductID,
			Mode:      req.Mode,
			Value:     req.Value,
			CreatedAt: s.now(),
		}
	}

	resp, err := s.repo.CreateCostRule(ctx, category, rule)
	if err != nil {
		return domain.CostCategoryResponse{}, s.fail(ctx, bc, "add_cost_category", err)
	}

	s.logAudit(ctx, bc, "cost_category_add", "cost_category", resp.Category.ID, "product", req.ProductID, "mode", req.Mode, "value", req.Value.String())
	return resp, nil
}

func validateRule(mode domain.RuleMode, value decimal.Decimal) error {
	switch mode {
	case domain.RulePercent:
		if !value.IsPositive() || value.GreaterThan(hundred) {
			return store.Invalid("percent value must be in (0, 100]")
		}
	case domain.RuleFixed:
		if !value.IsPositive() {
			return store.Invalid("fixed value must be positive")
		}
	default:
		return store.Invalid("unknown rule mode %q", mode)
	}
	return nil
}

func (s *Service) CheckCategory(ctx context.Context, bc domain.BusinessContext, name string, behaviour domain.CostBehaviour, productID string) (domain.CategoryCheckResponse, error) {
	if err := requireBusiness(bc); err != nil {
		return domain.CategoryCheckResponse{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.CategoryCheckResponse{}, store.Invalid("category name is required")
	}
	if !behaviour.Valid() {
		return domain.CategoryCheckResponse{}, store.Invalid("unknown cost behaviour %q", behaviour)
	}

	_, err := s.repo.FindCostCategory(ctx, bc.BusinessID, name, behaviour, strings.TrimSpace(productID))
	if errors.Is(err, store.ErrNotFound) {
		return domain.CategoryCheckResponse{Exists: false}, nil
	}
	if err != nil {
		return domain.CategoryCheckResponse{}, s.fail(ctx, bc, "check_category", err)
	}
	return domain.CategoryCheckResponse{Exists: true}, nil
}

func (s *Service) ListCostCategories(ctx context.Context, bc domain.BusinessContext) ([]domain.CostCategory, error) {
	if err := requireBusiness(bc); err != nil {
		return nil, err
	}
	categories, err := s.repo.ListCostCategories(ctx, bc.BusinessID)
	return categories, s.fail(ctx, bc, "list_cost_categories", err)
}

// ListAllocations returns the product's rules in evaluation order with the
// percent share still unallocated.
func (s *Service) ListAllocations(ctx context.Context, bc domain.BusinessContext, productID string) (domain.AllocationListResponse, error) {
	if err := requireBusiness(bc); err != nil {
		return domain.AllocationListResponse{}, err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.AllocationListResponse{}, store.Invalid("product_id is required")
	}

	rules, err := s.repo.ListCostRules(ctx, bc.BusinessID, productID)
	if err != nil {
		return domain.AllocationListResponse{}, s.fail(ctx, bc, "list_allocations", err)
	}
	categories, err := s.repo.ListCostCategories(ctx, bc.BusinessID)
	if err != nil {
		return domain.AllocationListResponse{}, s.fail(ctx, bc, "list_allocations", err)
	}
	byID := make(map[string]domain.CostCategory, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}

	resp := domain.AllocationListResponse{
		ProductID:        productID,
		Allocations:      make([]domain.AllocationView, 0, len(rules)),
		AllocatedPercent: decimal.Zero,
	}
	for _, rule := range rules {
		category := byID[rule.CategoryID]
		resp.Allocations = append(resp.Allocations, domain.AllocationView{
			Rule:         rule,
			CategoryName: category.Name,
			Behaviour:    category.CostBehaviour,
		})
		if rule.Mode == domain.RulePercent {
			resp.AllocatedPercent = resp.AllocatedPercent.Add(rule.Value)
		}
	}
	resp.RemainingPercent = hundred.Sub(resp.AllocatedPercent)
	return resp, nil
}

// DeleteAllocation stops a rule from applying to future sales. Posted rows stay.
func (s *Service) DeleteAllocation(ctx context.Context, bc domain.BusinessContext, ruleID string) error {
	if err := requireBusiness(bc); err != nil {
		return err
	}
	ruleID = strings.TrimSpace(ruleID)
	if ruleID == "" {
		return store.Invalid("allocation id is required")
	}
	if err := s.repo.DeleteCostRule(ctx, bc.BusinessID, ruleID); err != nil {
		return s.fail(ctx, bc, "delete_allocation", err)
	}
	s.logAudit(ctx, bc, "allocation_delete", "cost_rule", ruleID)
	return nil
}

// ResolveSale books the revenue and every rule allocation in one unit, then
// feeds the allocations to asset and recurring-cost recovery.
func (s *Service) ResolveSale(ctx context.Context, bc domain.BusinessContext, event domain.SaleEvent) (domain.SaleResponse, error) {
	if err := requireBusiness(bc); err != nil {
		return domain.SaleResponse{}, err
	}

	event.ProductID = strings.TrimSpace(event.ProductID)
	event.AccountID = strings.TrimSpace(event.AccountID)
	if event.ProductID == "" || event.AccountID == "" {
		return domain.SaleResponse{}, store.Invalid("product_id and account_id are required")
	}
	if event.Revenue <= 0 {
		return domain.SaleResponse{}, store.Invalid("revenue must be positive")
	}
	if event.Quantity < 0 {
		return domain.SaleResponse{}, store.Invalid("quantity must not be negative")
	}
	if event.Quantity == 0 {
		event.Quantity = 1
	}

	rules, err := s.repo.ListCostRules(ctx, bc.BusinessID, event.ProductID)
	if err != nil {
		return domain.SaleResponse{}, s.fail(ctx, bc, "resolve_sale", err)
	}

	posting := domain.SalePosting{
		AccountID:   event.AccountID,
		Revenue:     event.Revenue,
		Reference:   strings.TrimSpace(event.Reference),
		Allocations: make([]domain.SaleAllocation, 0, len(rules)),
	}
	for _, rule := range rules {
		amount := rule.Allocation(event.Revenue, event.Quantity)
		if amount <= 0 {
			continue
		}
		posting.Allocations = append(posting.Allocations, domain.SaleAllocation{CategoryID: rule.CategoryID, Amount: amount})
	}

	resp, err := s.repo.PostSale(ctx, bc.BusinessID, posting, store.NewIdempotency(event.IdempotencyKey, store.OpSale))
	if err != nil {
		return domain.SaleResponse{}, s.fail(ctx, bc, "resolve_sale", err)
	}
	if resp.Duplicate {
		return resp, nil
	}

	for _, alloc := range resp.Allocations {
		s.feedRecovery(ctx, bc, alloc)
	}
	s.touched(ctx, bc)
	s.logAudit(ctx, bc, "sale_resolve", "product", event.ProductID, "revenue", event.Revenue, "allocations", len(resp.Allocations))
	return resp, nil
}

// feedRecovery credits an allocation to the asset or recurring cost it pays
// down. The sale is already committed, so failures are logged, not returned.
func (s *Service) feedRecovery(ctx context.Context, bc domain.BusinessContext, alloc domain.SaleAllocation) {
	var err error
	switch alloc.Behaviour {
	case domain.CostOneTime:
		var asset *domain.Asset
		asset, err = s.repo.FindActiveAssetByCategory(ctx, bc.BusinessID, alloc.CategoryName)
		if err == nil {
			_, err = s.repo.RecordAssetRecovery(ctx, bc.BusinessID, asset.ID, alloc.Amount)
		}
	case domain.CostMonthlyFixed:
		var cost *domain.RecurringCost
		cost, err = s.repo.FindRecurringCostByName(ctx, bc.BusinessID, alloc.CategoryName)
		if err == nil {
			_, err = s.repo.RecordRecurringRecovery(ctx, bc.BusinessID, cost.ID, alloc.Amount, s.currentMonth(), s.now())
		}
	default:
		return
	}
	if err == nil || errors.Is(err, store.ErrNotFound) {
		return
	}
	s.logger.WarnContext(ctx, "sale allocation recovery failed",
		logging.FieldBusiness, bc.BusinessID,
		logging.FieldEntity, alloc.CategoryName,
		logging.FieldAmount, alloc.Amount,
		logging.FieldError, err,
	)
}
