package service

import (
	"context"
	"strings"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
	"github.com/Srijan10011/Business-Calc-sub000/internal/store"
)

const (
	defaultTransactionLimit = 100
	maxTransactionLimit     = 500
)

// CreateDefaultAccounts provisions the four fixed accounts. Calling it again
// returns the existing accounts unchanged.
func (s *Service) CreateDefaultAccounts(ctx context.Context, bc domain.BusinessContext) ([]domain.Account, error) {
	if err := requireBusiness(bc); err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, 0, len(domain.DefaultAccountKinds))
	for _, kind := range domain.DefaultAccountKinds {
		accounts = append(accounts, domain.Account{Kind: kind, DisplayName: kind.DisplayName()})
	}
	created, err := s.repo.CreateAccounts(ctx, bc.BusinessID, accounts)
	if err != nil {
		return nil, s.fail(ctx, bc, "create_default_accounts", err)
	}

	s.logAudit(ctx, bc, "accounts_provision", "business", bc.BusinessID, "accounts", len(created))
	return created, nil
}

func (s *Service) GetAccounts(ctx context.Context, bc domain.BusinessContext) ([]domain.Account, error) {
	if err := requireBusiness(bc); err != nil {
		return nil, err
	}
	accounts, err := s.repo.ListAccounts(ctx, bc.BusinessID)
	return accounts, s.fail(ctx, bc, "get_accounts", err)
}

func (s *Service) RecordTransaction(ctx context.Context, bc domain.BusinessContext, req domain.RecordTransactionRequest) (domain.RecordTransactionResponse, error) {
	if err := requireBusiness(bc); err != nil {
		return domain.RecordTransactionResponse{}, err
	}

	req.AccountID = strings.TrimSpace(req.AccountID)
	req.Category = strings.TrimSpace(req.Category)
	if req.AccountID == "" {
		return domain.RecordTransactionResponse{}, store.Invalid("account_id is required")
	}
	if req.Amount == 0 {
		return domain.RecordTransactionResponse{}, store.Invalid("amount must not be zero")
	}
	if req.Category == "" {
		return domain.RecordTransactionResponse{}, store.Invalid("category is required")
	}
	if err := checkDirection(req.Direction, req.Amount); err != nil {
		return domain.RecordTransactionResponse{}, err
	}

	resp, err := s.repo.RecordTransaction(ctx, domain.Transaction{
		AccountID:  req.AccountID,
		BusinessID: bc.BusinessID,
		Amount:     req.Amount,
		Category:   req.Category,
		Reference:  strings.TrimSpace(req.Reference),
		CreatedAt:  s.now(),
	}, store.NewIdempotency(req.IdempotencyKey, store.OpRecordTransaction))
	if err != nil {
		return domain.RecordTransactionResponse{}, s.fail(ctx, bc, "record_transaction", err)
	}

	if !resp.Duplicate {
		s.touched(ctx, bc)
		s.logAudit(ctx, bc, "transaction_record", "account", req.AccountID, "amount", req.Amount, "category", req.Category)
	}
	return resp, nil
}

// checkDirection accepts an omitted direction or one that agrees with the sign of amount.
func checkDirection(direction domain.Direction, amount int64) error {
	switch direction {
	case "":
		return nil
	case domain.DirectionIncoming:
		if amount < 0 {
			return store.Invalid("incoming transaction must have a positive amount")
		}
	case domain.DirectionOutgoing:
		if amount > 0 {
			return store.Invalid("outgoing transaction must have a negative amount")
		}
	default:
		return store.Invalid("unknown direction %q", direction)
	}
	return nil
}

func (s *Service) GetTransactions(ctx context.Context, bc domain.BusinessContext, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	if err := requireBusiness(bc); err != nil {
		return nil, err
	}
	if filter.Limit < 1 {
		filter.Limit = defaultTransactionLimit
	}
	if filter.Limit > maxTransactionLimit {
		filter.Limit = maxTransactionLimit
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return nil, store.Invalid("date_to must not be before date_from")
	}
	if filter.Direction != "" && filter.Direction != domain.DirectionIncoming && filter.Direction != domain.DirectionOutgoing {
		return nil, store.Invalid("unknown direction %q", filter.Direction)
	}
	filter.AccountID = strings.TrimSpace(filter.AccountID)
	filter.Category = strings.TrimSpace(filter.Category)

	txns, err := s.repo.ListTransactions(ctx, bc.BusinessID, filter)
	return txns, s.fail(ctx, bc, "get_transactions", err)
}
