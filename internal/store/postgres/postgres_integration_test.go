package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
	"github.com/Srijan10011/Business-Calc-sub000/internal/store"
)

func newIntegrationStore(t *testing.T) (*Store, string) {
	t.Helper()
	databaseURL := os.Getenv("LEDGER_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set LEDGER_TEST_DATABASE_URL to run postgres integration test")
	}
	if err := RunMigrations(databaseURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	businessID := fmt.Sprintf("biz-it-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		for _, table := range []string{"idempotency_keys", "salary_entries", "salary_accounts", "payables", "transactions", "product_cost_rules", "cost_categories", "accounts"} {
			_, _ = s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE business_id = $1`, businessID)
		}
		_ = s.Close()
	})
	return s, businessID
}

func provision(t *testing.T, s *Store, businessID string) map[domain.AccountKind]domain.Account {
	t.Helper()
	accounts := make([]domain.Account, 0, len(domain.DefaultAccountKinds))
	for _, kind := range domain.DefaultAccountKinds {
		accounts = append(accounts, domain.Account{Kind: kind, DisplayName: kind.DisplayName()})
	}
	created, err := s.CreateAccounts(context.Background(), businessID, accounts)
	if err != nil {
		t.Fatalf("create accounts: %v", err)
	}
	byKind := make(map[domain.AccountKind]domain.Account, len(created))
	for _, acc := range created {
		byKind[acc.Kind] = acc
	}
	return byKind
}

func TestTransferKeepsBalancesConsistentUnderContention(t *testing.T) {
	s, businessID := newIntegrationStore(t)
	ctx := context.Background()
	accounts := provision(t, s, businessID)
	cash, bank := accounts[domain.AccountCash], accounts[domain.AccountBank]

	if _, err := s.RecordTransaction(ctx, domain.Transaction{
		AccountID: cash.ID, BusinessID: businessID, Amount: 100, Category: "opening",
	}, store.Idempotency{}); err != nil {
		t.Fatalf("seed cash: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, err := s.Transfer(ctx, businessID, domain.TransferRequest{
					FromAccountID: cash.ID, ToAccountID: bank.ID, Amount: 10,
				}, store.Idempotency{})
				if !errors.Is(err, store.ErrConcurrencyConflict) {
					return
				}
			}
		}()
	}
	wg.Wait()

	cashAfter, err := s.GetAccount(ctx, businessID, cash.ID)
	if err != nil {
		t.Fatalf("get cash: %v", err)
	}
	bankAfter, err := s.GetAccount(ctx, businessID, bank.ID)
	if err != nil {
		t.Fatalf("get bank: %v", err)
	}
	if cashAfter.Balance != 0 || bankAfter.Balance != 100 {
		t.Fatalf("expected cash=0 bank=100, got cash=%d bank=%d", cashAfter.Balance, bankAfter.Balance)
	}
}

func TestPayPayableReplaysIdempotencyKey(t *testing.T) {
	s, businessID := newIntegrationStore(t)
	ctx := context.Background()
	accounts := provision(t, s, businessID)
	cash := accounts[domain.AccountCash]

	if _, err := s.RecordTransaction(ctx, domain.Transaction{
		AccountID: cash.ID, BusinessID: businessID, Amount: 1000, Category: "opening",
	}, store.Idempotency{}); err != nil {
		t.Fatalf("seed cash: %v", err)
	}
	payable, err := s.CreatePayable(ctx, domain.Payable{BusinessID: businessID, PartyName: "supplier", TotalAmount: 500})
	if err != nil {
		t.Fatalf("create payable: %v", err)
	}

	req := domain.PaymentRequest{PayableID: payable.ID, Amount: 200, PaymentAccountID: cash.ID}
	idem := store.NewIdempotency("pay-it-1", store.OpPay)
	first, err := s.PayPayable(ctx, businessID, req, idem)
	if err != nil {
		t.Fatalf("first payment: %v", err)
	}
	second, err := s.PayPayable(ctx, businessID, req, idem)
	if err != nil {
		t.Fatalf("replayed payment: %v", err)
	}
	if !second.Duplicate || second.Payable.PaidAmount != first.Payable.PaidAmount {
		t.Fatalf("expected replayed response, got %+v", second)
	}

	acc, err := s.GetAccount(ctx, businessID, cash.ID)
	if err != nil {
		t.Fatalf("get cash: %v", err)
	}
	if acc.Balance != 800 {
		t.Fatalf("expected single debit, balance %d", acc.Balance)
	}
}
