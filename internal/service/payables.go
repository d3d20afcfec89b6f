package service

import (
	"context"
	"strings"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
	"github.com/Srijan10011/Business-Calc-sub000/internal/store"
)

func (s *Service) AddPayable(ctx context.Context, bc domain.BusinessContext, req domain.PayableCreateRequest) (domain.Payable, error) {
	if err := requireBusiness(bc); err != nil {
		return domain.Payable{}, err
	}
	req.PartyName = strings.TrimSpace(req.PartyName)
	if req.PartyName == "" {
		return domain.Payable{}, store.Invalid("party_name is required")
	}
	if req.TotalAmount <= 0 {
		return domain.Payable{}, store.Invalid("total_amount must be positive")
	}

	created, err := s.repo.CreatePayable(ctx, domain.Payable{
		BusinessID:  bc.BusinessID,
		PartyName:   req.PartyName,
		TotalAmount: req.TotalAmount,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return domain.Payable{}, s.fail(ctx, bc, "add_payable", err)
	}

	s.logAudit(ctx, bc, "payable_add", "payable", created.ID, "total_amount", created.TotalAmount)
	return *created, nil
}

func (s *Service) ListPayables(ctx context.Context, bc domain.BusinessContext) ([]domain.Payable, error) {
	if err := requireBusiness(bc); err != nil {
		return nil, err
	}
	payables, err := s.repo.ListPayables(ctx, bc.BusinessID)
	return payables, s.fail(ctx, bc, "list_payables", err)
}

func (s *Service) Pay(ctx context.Context, bc domain.BusinessContext, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	if err := requireBusiness(bc); err != nil {
		return domain.PaymentResponse{}, err
	}
	req.PayableID = strings.TrimSpace(req.PayableID)
	req.PaymentAccountID = strings.TrimSpace(req.PaymentAccountID)
	if req.PayableID == "" || req.PaymentAccountID == "" {
		return domain.PaymentResponse{}, store.Invalid("payable_id and payment_account_id are required")
	}
	if req.Amount <= 0 {
		return domain.PaymentResponse{}, store.Invalid("amount must be positive")
	}

	resp, err := s.repo.PayPayable(ctx, bc.BusinessID, req, store.NewIdempotency(req.IdempotencyKey, store.OpPay))
	if err != nil {
		return domain.PaymentResponse{}, s.fail(ctx, bc, "pay_payable", err)
	}

	if !resp.Duplicate {
		s.touched(ctx, bc)
		s.logAudit(ctx, bc, "payable_pay", "payable", req.PayableID, "amount", req.Amount, "status", resp.Payable.Status)
	}
	return resp, nil
}
