package service

import (
	"context"
	"strings"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
	"github.com/Srijan10011/Business-Calc-sub000/internal/logging"
	"github.com/Srijan10011/Business-Calc-sub000/internal/store"
)

// MoneyFlow summarises a month of the transaction log. An empty month means the
// current one.
func (s *Service) MoneyFlow(ctx context.Context, bc domain.BusinessContext, month string) (domain.MoneyFlow, error) {
	if err := requireBusiness(bc); err != nil {
		return domain.MoneyFlow{}, err
	}
	month = strings.TrimSpace(month)
	if month == "" {
		month = s.currentMonth()
	}
	start, err := domain.ParseMonth(month)
	if err != nil {
		return domain.MoneyFlow{}, store.Invalid("%v", err)
	}

	// The generation is read before any rows so a mutation committed while this
	// report is computed moves readers past whatever it writes.
	generation, err := s.flows.Generation(ctx, bc.BusinessID)
	cacheable := err == nil
	if err != nil {
		s.logger.WarnContext(ctx, "money flow cache generation read failed", logging.FieldBusiness, bc.BusinessID, logging.FieldError, err)
	} else if cached, ok, err := s.flows.Get(ctx, bc.BusinessID, month, generation); err != nil {
		s.logger.WarnContext(ctx, "money flow cache read failed", logging.FieldBusiness, bc.BusinessID, logging.FieldError, err)
	} else if ok {
		return *cached, nil
	}

	accounts, err := s.repo.ListAccounts(ctx, bc.BusinessID)
	if err != nil {
		return domain.MoneyFlow{}, s.fail(ctx, bc, "money_flow", err)
	}
	kinds := make(map[string]domain.AccountKind, len(accounts))
	for _, acc := range accounts {
		kinds[acc.ID] = acc.Kind
	}

	end := start.AddDate(0, 1, 0)
	txns, err := s.repo.ListTransactions(ctx, bc.BusinessID, domain.TransactionFilter{DateFrom: &start, DateTo: &end})
	if err != nil {
		return domain.MoneyFlow{}, s.fail(ctx, bc, "money_flow", err)
	}

	flow := summarise(bc.BusinessID, month, kinds, txns)
	if !cacheable {
		return flow, nil
	}
	if err := s.flows.Set(ctx, &flow, generation, s.flowTTL); err != nil {
		s.logger.WarnContext(ctx, "money flow cache write failed", logging.FieldBusiness, bc.BusinessID, logging.FieldError, err)
	}
	return flow, nil
}

// summarise classifies transactions. Transfers between own accounts and
// returns from a COGS bucket are internal moves and count on neither side.
func summarise(businessID string, month string, kinds map[string]domain.AccountKind, txns []domain.Transaction) domain.MoneyFlow {
	flow := domain.MoneyFlow{
		BusinessID: businessID,
		Month:      month,
		Outgoing:   domain.MoneyFlowOutgoing{COGS: make(map[string]int64)},
	}
	for _, txn := range txns {
		if txn.Category == domain.CategoryTransfer {
			continue
		}
		if txn.Amount > 0 {
			if txn.CostCategoryID != "" {
				continue
			}
			switch kinds[txn.AccountID] {
			case domain.AccountCash:
				flow.Incoming.Cash += txn.Amount
			case domain.AccountBank:
				flow.Incoming.Bank += txn.Amount
			case domain.AccountCredit:
				flow.Incoming.Credit += txn.Amount
			}
			continue
		}

		amount := -txn.Amount
		switch {
		case strings.EqualFold(txn.Category, domain.CategoryInventory):
			flow.Outgoing.Inventory += amount
		case txn.CostCategoryID != "":
			flow.Outgoing.COGS[txn.Category] += amount
		default:
			flow.Outgoing.General += amount
		}
	}
	return flow
}
