package service

import (
	"context"
	"strings"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
	"github.com/Srijan10011/Business-Calc-sub000/internal/store"
)

// AddSalary credits a member's salary account, creating it on first use.
// Debits only go through PayoutSalary, so a negative amount is rejected here.
func (s *Service) AddSalary(ctx context.Context, bc domain.BusinessContext, req domain.SalaryRequest) (domain.SalaryMutationResponse, error) {
	if req.Amount < 0 {
		return domain.SalaryMutationResponse{}, store.Invalid("negative salary adjustments must be made as payouts")
	}
	return s.applySalary(ctx, bc, domain.SalaryAddition, req, store.OpSalaryAddition)
}

// PayoutSalary debits a member's salary account. It fails with
// *store.InsufficientBalanceError when the balance does not cover amount.
func (s *Service) PayoutSalary(ctx context.Context, bc domain.BusinessContext, req domain.SalaryRequest) (domain.SalaryMutationResponse, error) {
	return s.applySalary(ctx, bc, domain.SalaryPayout, req, store.OpSalaryPayout)
}

func (s *Service) applySalary(ctx context.Context, bc domain.BusinessContext, entryType domain.SalaryEntryType, req domain.SalaryRequest, operation string) (domain.SalaryMutationResponse, error) {
	if err := requireBusiness(bc); err != nil {
		return domain.SalaryMutationResponse{}, err
	}
	req.MemberID = strings.TrimSpace(req.MemberID)
	req.Month = strings.TrimSpace(req.Month)
	if req.MemberID == "" {
		return domain.SalaryMutationResponse{}, store.Invalid("member_id is required")
	}
	if req.Amount <= 0 {
		return domain.SalaryMutationResponse{}, store.Invalid("amount must be positive")
	}
	if req.Month == "" {
		req.Month = s.currentMonth()
	}
	if _, err := domain.ParseMonth(req.Month); err != nil {
		return domain.SalaryMutationResponse{}, store.Invalid("%v", err)
	}

	paymentAccountID := ""
	if entryType == domain.SalaryPayout {
		paymentAccountID = strings.TrimSpace(req.PaymentAccountID)
	}

	resp, err := s.repo.ApplySalaryEntry(ctx, domain.SalaryEntry{
		MemberID:    req.MemberID,
		BusinessID:  bc.BusinessID,
		Type:        entryType,
		Amount:      req.Amount,
		Month:       req.Month,
		Description: strings.TrimSpace(req.Description),
		Date:        s.now(),
	}, paymentAccountID, store.NewIdempotency(req.IdempotencyKey, operation))
	if err != nil {
		return domain.SalaryMutationResponse{}, s.fail(ctx, bc, operation, err)
	}

	if !resp.Duplicate {
		if paymentAccountID != "" {
			s.touched(ctx, bc)
		}
		s.logAudit(ctx, bc, operation, "salary_account", req.MemberID, "amount", req.Amount, "balance", resp.Account.Balance)
	}
	return resp, nil
}

func (s *Service) GetSalaryBalance(ctx context.Context, bc domain.BusinessContext, memberID string) (domain.SalaryBalanceResponse, error) {
	if err := requireBusiness(bc); err != nil {
		return domain.SalaryBalanceResponse{}, err
	}
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return domain.SalaryBalanceResponse{}, store.Invalid("member_id is required")
	}

	account, err := s.repo.GetSalaryAccount(ctx, bc.BusinessID, memberID)
	if err != nil {
		return domain.SalaryBalanceResponse{}, s.fail(ctx, bc, "get_salary_balance", err)
	}
	entries, err := s.repo.ListSalaryEntries(ctx, bc.BusinessID, memberID)
	if err != nil {
		return domain.SalaryBalanceResponse{}, s.fail(ctx, bc, "get_salary_balance", err)
	}

	resp := domain.SalaryBalanceResponse{MemberID: memberID, Balance: account.Balance}
	for _, entry := range entries {
		if entry.Type == domain.SalaryPayout {
			resp.TotalPaid += entry.Amount
		}
	}
	return resp, nil
}

func (s *Service) GetSalaryHistory(ctx context.Context, bc domain.BusinessContext, memberID string) ([]domain.SalaryEntry, error) {
	if err := requireBusiness(bc); err != nil {
		return nil, err
	}
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return nil, store.Invalid("member_id is required")
	}
	entries, err := s.repo.ListSalaryEntries(ctx, bc.BusinessID, memberID)
	return entries, s.fail(ctx, bc, "get_salary_history", err)
}
