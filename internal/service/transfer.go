package service

import (
	"context"
	"strings"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
	"github.com/Srijan10011/Business-Calc-sub000/internal/store"
)

func (s *Service) TransferFunds(ctx context.Context, bc domain.BusinessContext, req domain.TransferRequest) (domain.TransferResponse, error) {
	if err := requireBusiness(bc); err != nil {
		return domain.TransferResponse{}, err
	}

	req.FromAccountID = strings.TrimSpace(req.FromAccountID)
	req.ToAccountID = strings.TrimSpace(req.ToAccountID)
	if req.FromAccountID == "" || req.ToAccountID == "" {
		return domain.TransferResponse{}, store.Invalid("from and to accounts are required")
	}
	if req.Amount <= 0 {
		return domain.TransferResponse{}, store.Invalid("amount must be positive")
	}
	if req.FromAccountID == req.ToAccountID {
		return domain.TransferResponse{}, store.Invalid("source and destination accounts must differ")
	}

	resp, err := s.repo.Transfer(ctx, bc.BusinessID, req, store.NewIdempotency(req.IdempotencyKey, store.OpTransfer))
	if err != nil {
		return domain.TransferResponse{}, s.fail(ctx, bc, "transfer_funds", err)
	}

	if !resp.Duplicate {
		s.touched(ctx, bc)
		s.logAudit(ctx, bc, "transfer", "account", req.FromAccountID, "to", req.ToAccountID, "amount", req.Amount)
	}
	return resp, nil
}

func (s *Service) TransferCOGS(ctx context.Context, bc domain.BusinessContext, req domain.COGSTransferRequest) (domain.COGSTransferResponse, error) {
	if err := requireBusiness(bc); err != nil {
		return domain.COGSTransferResponse{}, err
	}

	req.CategoryID = strings.TrimSpace(req.CategoryID)
	req.AccountID = strings.TrimSpace(req.AccountID)
	if req.CategoryID == "" || req.AccountID == "" {
		return domain.COGSTransferResponse{}, store.Invalid("category_id and account_id are required")
	}
	if req.Amount <= 0 {
		return domain.COGSTransferResponse{}, store.Invalid("amount must be positive")
	}
	if req.Direction != domain.COGSToBucket && req.Direction != domain.COGSFromBucket {
		return domain.COGSTransferResponse{}, store.Invalid("direction must be %s or %s", domain.COGSToBucket, domain.COGSFromBucket)
	}

	resp, err := s.repo.TransferCOGS(ctx, bc.BusinessID, req, store.NewIdempotency(req.IdempotencyKey, store.OpTransferCOGS))
	if err != nil {
		return domain.COGSTransferResponse{}, s.fail(ctx, bc, "transfer_cogs", err)
	}

	if !resp.Duplicate {
		s.touched(ctx, bc)
		s.logAudit(ctx, bc, "cogs_transfer", "cost_category", req.CategoryID, "account", req.AccountID, "amount", req.Amount, "direction", req.Direction)
	}
	return resp, nil
}
