package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
	"github.com/Srijan10011/Business-Calc-sub000/internal/store"
)

func assetView(a domain.Asset) domain.AssetView {
	return domain.AssetView{Asset: a, Remaining: a.Remaining(), Progress: a.Progress()}
}

func recurringView(c domain.RecurringCost) domain.RecurringCostView {
	return domain.RecurringCostView{RecurringCost: c, Progress: domain.Progress(c.RecoveredAmount, c.MonthlyTarget)}
}

func (s *Service) AddAsset(ctx context.Context, bc domain.BusinessContext, req domain.AssetCreateRequest) (domain.AssetView, error) {
	if err := requireBusiness(bc); err != nil {
		return domain.AssetView{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || req.Category == "" {
		return domain.AssetView{}, store.Invalid("asset name and category are required")
	}
	if req.TotalCost <= 0 {
		return domain.AssetView{}, store.Invalid("total_cost must be positive")
	}
	if req.RecoveryMethod == "" {
		req.RecoveryMethod = domain.RecoveryPercentage
	}
	if req.RecoveryMethod != domain.RecoveryPercentage && req.RecoveryMethod != domain.RecoveryFixed {
		return domain.AssetView{}, store.Invalid("unknown recovery method %q", req.RecoveryMethod)
	}
	if req.RecoveryValue.IsNegative() {
		return domain.AssetView{}, store.Invalid("recovery_value must not be negative")
	}
	if req.MaintenancePercentage.IsNegative() || req.MaintenancePercentage.GreaterThan(decimal.NewFromInt(100)) {
		return domain.AssetView{}, store.Invalid("maintenance_percentage must be within 0-100")
	}

	created, err := s.repo.CreateAsset(ctx, domain.Asset{
		BusinessID:            bc.BusinessID,
		Name:                  req.Name,
		Category:              req.Category,
		TotalCost:             req.TotalCost,
		RecoveryMethod:        req.RecoveryMethod,
		RecoveryValue:         req.RecoveryValue,
		MaintenancePercentage: req.MaintenancePercentage,
		CreatedAt:             s.now(),
	})
	if err != nil {
		return domain.AssetView{}, s.fail(ctx, bc, "add_asset", err)
	}

	s.logAudit(ctx, bc, "asset_add", "asset", created.ID, "total_cost", created.TotalCost)
	return assetView(*created), nil
}

func (s *Service) ListAssets(ctx context.Context, bc domain.BusinessContext) ([]domain.AssetView, error) {
	if err := requireBusiness(bc); err != nil {
		return nil, err
	}
	assets, err := s.repo.ListAssets(ctx, bc.BusinessID)
	if err != nil {
		return nil, s.fail(ctx, bc, "list_assets", err)
	}
	views := make([]domain.AssetView, 0, len(assets))
	for _, a := range assets {
		views = append(views, assetView(a))
	}
	return views, nil
}

// RecordAssetRecovery adds amount towards the asset's cost. Recovery past the
// total is clamped, so a Retired asset accepts it as a no-op.
func (s *Service) RecordAssetRecovery(ctx context.Context, bc domain.BusinessContext, assetID string, amount int64) (domain.AssetView, error) {
	if err := requireBusiness(bc); err != nil {
		return domain.AssetView{}, err
	}
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return domain.AssetView{}, store.Invalid("asset id is required")
	}
	if amount <= 0 {
		return domain.AssetView{}, store.Invalid("amount must be positive")
	}

	asset, err := s.repo.RecordAssetRecovery(ctx, bc.BusinessID, assetID, amount)
	if err != nil {
		return domain.AssetView{}, s.fail(ctx, bc, "record_asset_recovery", err)
	}

	s.logAudit(ctx, bc, "asset_recovery", "asset", asset.ID, "amount", amount, "status", asset.Status)
	return assetView(*asset), nil
}

func (s *Service) AddRecurringCost(ctx context.Context, bc domain.BusinessContext, req domain.RecurringCostCreateRequest) (domain.RecurringCostView, error) {
	if err := requireBusiness(bc); err != nil {
		return domain.RecurringCostView{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.RecurringCostView{}, store.Invalid("recurring cost name is required")
	}
	if req.MonthlyTarget <= 0 {
		return domain.RecurringCostView{}, store.Invalid("monthly_target must be positive")
	}

	created, err := s.repo.CreateRecurringCost(ctx, domain.RecurringCost{
		BusinessID:    bc.BusinessID,
		Name:          req.Name,
		Type:          strings.TrimSpace(req.Type),
		MonthlyTarget: req.MonthlyTarget,
		CurrentMonth:  s.currentMonth(),
		CreatedAt:     s.now(),
	})
	if err != nil {
		return domain.RecurringCostView{}, s.fail(ctx, bc, "add_recurring_cost", err)
	}

	s.logAudit(ctx, bc, "recurring_cost_add", "recurring_cost", created.ID, "monthly_target", created.MonthlyTarget)
	return recurringView(*created), nil
}

func (s *Service) ListRecurringCosts(ctx context.Context, bc domain.BusinessContext) ([]domain.RecurringCostView, error) {
	if err := requireBusiness(bc); err != nil {
		return nil, err
	}
	costs, err := s.repo.ListRecurringCosts(ctx, bc.BusinessID)
	if err != nil {
		return nil, s.fail(ctx, bc, "list_recurring_costs", err)
	}
	views := make([]domain.RecurringCostView, 0, len(costs))
	for _, c := range costs {
		views = append(views, recurringView(c))
	}
	return views, nil
}

func (s *Service) GetHistory(ctx context.Context, bc domain.BusinessContext) ([]domain.MonthlyHistoryRow, error) {
	if err := requireBusiness(bc); err != nil {
		return nil, err
	}
	history, err := s.repo.ListRecurringHistory(ctx, bc.BusinessID)
	return history, s.fail(ctx, bc, "get_history", err)
}

// RecordRecurringRecovery credits the bucket of the current month.
func (s *Service) RecordRecurringRecovery(ctx context.Context, bc domain.BusinessContext, costID string, amount int64) (domain.RecurringCostView, error) {
	if err := requireBusiness(bc); err != nil {
		return domain.RecurringCostView{}, err
	}
	costID = strings.TrimSpace(costID)
	if costID == "" {
		return domain.RecurringCostView{}, store.Invalid("recurring cost id is required")
	}
	if amount <= 0 {
		return domain.RecurringCostView{}, store.Invalid("amount must be positive")
	}

	now := s.now()
	cost, err := s.repo.RecordRecurringRecovery(ctx, bc.BusinessID, costID, amount, domain.MonthOf(now), now)
	if err != nil {
		return domain.RecurringCostView{}, s.fail(ctx, bc, "record_recurring_recovery", err)
	}

	s.logAudit(ctx, bc, "recurring_recovery", "recurring_cost", cost.ID, "amount", amount, "month", cost.CurrentMonth)
	return recurringView(*cost), nil
}

// RolloverRecurringCosts archives every open month before toMonth. An empty
// toMonth means the current month; a month after it is rejected.
func (s *Service) RolloverRecurringCosts(ctx context.Context, bc domain.BusinessContext, toMonth string) (domain.RolloverResponse, error) {
	if err := requireBusiness(bc); err != nil {
		return domain.RolloverResponse{}, err
	}
	toMonth = strings.TrimSpace(toMonth)
	if toMonth == "" {
		toMonth = s.currentMonth()
	}
	if _, err := domain.ParseMonth(toMonth); err != nil {
		return domain.RolloverResponse{}, store.Invalid("%v", err)
	}
	if current := s.currentMonth(); toMonth > current {
		return domain.RolloverResponse{}, store.Invalid("cannot roll over into %s: current month is %s", toMonth, current)
	}

	archived, err := s.repo.RolloverRecurringCosts(ctx, bc.BusinessID, toMonth, s.now())
	if err != nil {
		return domain.RolloverResponse{}, s.fail(ctx, bc, "rollover_recurring_costs", err)
	}
	if archived == nil {
		archived = []domain.MonthlyHistoryRow{}
	}

	if len(archived) > 0 {
		s.logAudit(ctx, bc, "recurring_rollover", "business", bc.BusinessID, "month", toMonth, "archived", len(archived))
	}
	return domain.RolloverResponse{Month: toMonth, Archived: archived}, nil
}
