package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
	"github.com/Srijan10011/Business-Calc-sub000/internal/store"
	"github.com/Srijan10011/Business-Calc-sub000/internal/xid"
)

type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// inTx runs fn inside a serializable transaction. Serialization failures and
// deadlocks surface as store.ErrConcurrencyConflict so callers may retry.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return mapConflict(err)
	}
	return mapConflict(tx.Commit())
}

const accountColumns = `id, business_id, kind, display_name, balance, created_at`

func scanAccount(row interface{ Scan(...any) error }) (domain.Account, error) {
	var acc domain.Account
	if err := row.Scan(&acc.ID, &acc.BusinessID, &acc.Kind, &acc.DisplayName, &acc.Balance, &acc.CreatedAt); err != nil {
		return domain.Account{}, err
	}
	acc.CreatedAt = acc.CreatedAt.UTC()
	return acc, nil
}

func (s *Store) ListBusinessIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT business_id FROM accounts ORDER BY business_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0, 8)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) CreateAccounts(ctx context.Context, businessID string, accounts []domain.Account) ([]domain.Account, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, acc := range accounts {
			if !acc.Kind.Valid() {
				return store.Invalid("unknown account kind %q", acc.Kind)
			}
			if acc.ID == "" {
				acc.ID = xid.New("acc")
			}
			if acc.CreatedAt.IsZero() {
				acc.CreatedAt = time.Now().UTC()
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO accounts (id, business_id, kind, display_name, balance, created_at)
				VALUES ($1,$2,$3,$4,0,$5)
				ON CONFLICT (business_id, kind) DO NOTHING
			`, acc.ID, businessID, acc.Kind, acc.DisplayName, acc.CreatedAt)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.ListAccounts(ctx, businessID)
}

func (s *Store) ListAccounts(ctx context.Context, businessID string) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE business_id = $1
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0, len(domain.DefaultAccountKinds))
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.SortFunc(accounts, func(a, b domain.Account) int {
		return a.Kind.Rank() - b.Kind.Rank()
	})
	return accounts, nil
}

func (s *Store) GetAccount(ctx context.Context, businessID string, accountID string) (*domain.Account, error) {
	acc, err := scanAccount(s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE business_id = $1 AND id = $2
	`, businessID, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: account %s", store.ErrNotFound, accountID)
		}
		return nil, err
	}
	return &acc, nil
}

// lockAccounts takes row locks in ascending id order so concurrent multi-account
// operations cannot deadlock each other.
func lockAccounts(ctx context.Context, tx *sql.Tx, businessID string, ids ...string) (map[string]*domain.Account, error) {
	ordered := slices.Clone(ids)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	locked := make(map[string]*domain.Account, len(ordered))
	for _, id := range ordered {
		acc, err := scanAccount(tx.QueryRowContext(ctx, `
			SELECT `+accountColumns+`
			FROM accounts
			WHERE business_id = $1 AND id = $2
			FOR UPDATE
		`, businessID, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: account %s", store.ErrNotFound, id)
			}
			return nil, err
		}
		locked[id] = &acc
	}
	return locked, nil
}

// post moves acc.Balance by amount and appends the matching log row.
func post(ctx context.Context, tx *sql.Tx, acc *domain.Account, amount int64, category string, reference string, costCategoryID string, at time.Time) (domain.Transaction, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	direction := domain.DirectionIncoming
	if amount < 0 {
		direction = domain.DirectionOutgoing
	}
	txn := domain.Transaction{
		ID:             xid.New("txn"),
		AccountID:      acc.ID,
		BusinessID:     acc.BusinessID,
		Amount:         amount,
		Category:       category,
		Direction:      direction,
		Reference:      reference,
		CostCategoryID: costCategoryID,
		CreatedAt:      at,
	}
	if err := insertTransaction(ctx, tx, txn); err != nil {
		return domain.Transaction{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET balance = balance + $2 WHERE id = $1`, acc.ID, amount); err != nil {
		return domain.Transaction{}, err
	}
	acc.Balance += amount
	return txn, nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, txn domain.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, business_id, account_id, amount, category, direction, reference, cost_category_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, txn.ID, txn.BusinessID, txn.AccountID, txn.Amount, txn.Category, txn.Direction,
		nullIfEmpty(txn.Reference), nullIfEmpty(txn.CostCategoryID), txn.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: transaction %s", store.ErrAlreadyExists, txn.ID)
	}
	return err
}

func checkFunds(acc *domain.Account, amount int64) error {
	if amount <= 0 || acc.Kind.AllowsOverdraft() {
		return nil
	}
	if acc.Balance < amount {
		return fmt.Errorf("%w: %s available %d", store.ErrInsufficientFunds, acc.Kind, acc.Balance)
	}
	return nil
}

func (s *Store) RecordTransaction(ctx context.Context, txn domain.Transaction, idem store.Idempotency) (domain.RecordTransactionResponse, error) {
	var resp domain.RecordTransactionResponse
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		prior, found, err := replay[domain.RecordTransactionResponse](ctx, tx, txn.BusinessID, idem)
		if found || err != nil {
			resp = prior
			resp.Duplicate = found
			return err
		}
		if txn.Amount == 0 {
			return store.Invalid("amount must not be zero")
		}

		accounts, err := lockAccounts(ctx, tx, txn.BusinessID, txn.AccountID)
		if err != nil {
			return err
		}
		acc := accounts[txn.AccountID]
		if err := checkFunds(acc, -txn.Amount); err != nil {
			return err
		}

		if txn.ID == "" {
			txn.ID = xid.New("txn")
		}
		if txn.CreatedAt.IsZero() {
			txn.CreatedAt = time.Now().UTC()
		}
		txn.Direction = domain.DirectionIncoming
		if txn.Amount < 0 {
			txn.Direction = domain.DirectionOutgoing
		}
		if err := insertTransaction(ctx, tx, txn); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE accounts SET balance = balance + $2 WHERE id = $1`, acc.ID, txn.Amount); err != nil {
			return err
		}

		resp = domain.RecordTransactionResponse{Transaction: txn, Balance: acc.Balance + txn.Amount}
		return remember(ctx, tx, txn.BusinessID, idem, resp)
	})
	return resp, err
}

func (s *Store) ListTransactions(ctx context.Context, businessID string, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	conditions := []string{"business_id = $1"}
	args := []any{businessID}
	add := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if filter.DateFrom != nil {
		add("created_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		add("created_at < ?", *filter.DateTo)
	}
	if filter.AccountID != "" {
		add("account_id = ?", filter.AccountID)
	}
	if filter.Direction != "" {
		add("direction = ?", filter.Direction)
	}
	if filter.Category != "" {
		add("lower(category) = lower(?)", filter.Category)
	}

	query := `
		SELECT id, business_id, account_id, amount, category, direction,
			COALESCE(reference, ''), COALESCE(cost_category_id, ''), created_at
		FROM transactions
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txns := make([]domain.Transaction, 0, 64)
	for rows.Next() {
		var txn domain.Transaction
		if err := rows.Scan(&txn.ID, &txn.BusinessID, &txn.AccountID, &txn.Amount, &txn.Category, &txn.Direction,
			&txn.Reference, &txn.CostCategoryID, &txn.CreatedAt); err != nil {
			return nil, err
		}
		txn.CreatedAt = txn.CreatedAt.UTC()
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

func (s *Store) Transfer(ctx context.Context, businessID string, req domain.TransferRequest, idem store.Idempotency) (domain.TransferResponse, error) {
	var resp domain.TransferResponse
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		prior, found, err := replay[domain.TransferResponse](ctx, tx, businessID, idem)
		if found || err != nil {
			resp = prior
			resp.Duplicate = found
			return err
		}
		if req.Amount <= 0 {
			return store.Invalid("amount must be positive")
		}
		if req.FromAccountID == req.ToAccountID {
			return store.Invalid("source and destination accounts must differ")
		}

		accounts, err := lockAccounts(ctx, tx, businessID, req.FromAccountID, req.ToAccountID)
		if err != nil {
			return err
		}
		from, to := accounts[req.FromAccountID], accounts[req.ToAccountID]
		if from.Balance < req.Amount {
			return fmt.Errorf("%w: available %d", store.ErrInsufficientFunds, from.Balance)
		}

		now := time.Now().UTC()
		if _, err := post(ctx, tx, from, -req.Amount, domain.CategoryTransfer, to.ID, "", now); err != nil {
			return err
		}
		if _, err := post(ctx, tx, to, req.Amount, domain.CategoryTransfer, from.ID, "", now); err != nil {
			return err
		}

		resp = domain.TransferResponse{FromBalance: from.Balance, ToBalance: to.Balance}
		return remember(ctx, tx, businessID, idem, resp)
	})
	return resp, err
}

const categoryColumns = `id, business_id, COALESCE(product_id, ''), name, cost_behaviour, type, balance, created_at`

func scanCategory(row interface{ Scan(...any) error }) (domain.CostCategory, error) {
	var c domain.CostCategory
	if err := row.Scan(&c.ID, &c.BusinessID, &c.ProductID, &c.Name, &c.CostBehaviour, &c.Type, &c.Balance, &c.CreatedAt); err != nil {
		return domain.CostCategory{}, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func lockCategory(ctx context.Context, tx *sql.Tx, businessID string, categoryID string) (*domain.CostCategory, error) {
	c, err := scanCategory(tx.QueryRowContext(ctx, `
		SELECT `+categoryColumns+`
		FROM cost_categories
		WHERE business_id = $1 AND id = $2
		FOR UPDATE
	`, businessID, categoryID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: cost category %s", store.ErrNotFound, categoryID)
		}
		return nil, err
	}
	return &c, nil
}

func addBucketBalance(ctx context.Context, tx *sql.Tx, category *domain.CostCategory, amount int64) error {
	if _, err := tx.ExecContext(ctx, `UPDATE cost_categories SET balance = balance + $2 WHERE id = $1`, category.ID, amount); err != nil {
		return err
	}
	category.Balance += amount
	return nil
}

func (s *Store) TransferCOGS(ctx context.Context, businessID string, req domain.COGSTransferRequest, idem store.Idempotency) (domain.COGSTransferResponse, error) {
	var resp domain.COGSTransferResponse
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		prior, found, err := replay[domain.COGSTransferResponse](ctx, tx, businessID, idem)
		if found || err != nil {
			resp = prior
			resp.Duplicate = found
			return err
		}
		if req.Amount <= 0 {
			return store.Invalid("amount must be positive")
		}

		accounts, err := lockAccounts(ctx, tx, businessID, req.AccountID)
		if err != nil {
			return err
		}
		acc := accounts[req.AccountID]
		category, err := lockCategory(ctx, tx, businessID, req.CategoryID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		switch req.Direction {
		case domain.COGSToBucket:
			if acc.Balance < req.Amount {
				return fmt.Errorf("%w: account available %d", store.ErrInsufficientFunds, acc.Balance)
			}
			if _, err := post(ctx, tx, acc, -req.Amount, category.Name, string(req.Direction), category.ID, now); err != nil {
				return err
			}
			if err := addBucketBalance(ctx, tx, category, req.Amount); err != nil {
				return err
			}
		case domain.COGSFromBucket:
			if category.Balance < req.Amount {
				return fmt.Errorf("%w: bucket available %d", store.ErrInsufficientFunds, category.Balance)
			}
			if err := addBucketBalance(ctx, tx, category, -req.Amount); err != nil {
				return err
			}
			if _, err := post(ctx, tx, acc, req.Amount, category.Name, string(req.Direction), category.ID, now); err != nil {
				return err
			}
		default:
			return store.Invalid("unknown cogs direction %q", req.Direction)
		}

		resp = domain.COGSTransferResponse{AccountBalance: acc.Balance, BucketBalance: category.Balance}
		return remember(ctx, tx, businessID, idem, resp)
	})
	return resp, err
}

func (s *Store) PostSale(ctx context.Context, businessID string, posting domain.SalePosting, idem store.Idempotency) (domain.SaleResponse, error) {
	var resp domain.SaleResponse
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		prior, found, err := replay[domain.SaleResponse](ctx, tx, businessID, idem)
		if found || err != nil {
			resp = prior
			resp.Duplicate = found
			return err
		}
		if posting.Revenue <= 0 {
			return store.Invalid("revenue must be positive")
		}

		accounts, err := lockAccounts(ctx, tx, businessID, posting.AccountID)
		if err != nil {
			return err
		}
		acc := accounts[posting.AccountID]

		categoryIDs := make([]string, 0, len(posting.Allocations))
		for _, alloc := range posting.Allocations {
			categoryIDs = append(categoryIDs, alloc.CategoryID)
		}
		slices.Sort(categoryIDs)
		categories := make(map[string]*domain.CostCategory, len(categoryIDs))
		for _, id := range slices.Compact(categoryIDs) {
			category, err := lockCategory(ctx, tx, businessID, id)
			if err != nil {
				return err
			}
			categories[id] = category
		}

		now := time.Now().UTC()
		if _, err := post(ctx, tx, acc, posting.Revenue, domain.CategorySale, posting.Reference, "", now); err != nil {
			return err
		}
		allocations := make([]domain.SaleAllocation, 0, len(posting.Allocations))
		for _, alloc := range posting.Allocations {
			category := categories[alloc.CategoryID]
			if err := checkFunds(acc, alloc.Amount); err != nil {
				return fmt.Errorf("allocation %s: %w", category.Name, err)
			}
			if _, err := post(ctx, tx, acc, -alloc.Amount, category.Name, posting.Reference, category.ID, now); err != nil {
				return err
			}
			if err := addBucketBalance(ctx, tx, category, alloc.Amount); err != nil {
				return err
			}
			alloc.CategoryName = category.Name
			alloc.Behaviour = category.CostBehaviour
			allocations = append(allocations, alloc)
		}

		resp = domain.SaleResponse{Revenue: posting.Revenue, AccountBalance: acc.Balance, Allocations: allocations}
		return remember(ctx, tx, businessID, idem, resp)
	})
	return resp, err
}

func (s *Store) CreateCostRule(ctx context.Context, category domain.CostCategory, rule *domain.ProductCostRule) (domain.CostCategoryResponse, error) {
	var resp domain.CostCategoryResponse
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := findCategory(ctx, tx, category.BusinessID, category.Name, category.CostBehaviour, category.ProductID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if rule == nil {
			if existing != nil {
				return fmt.Errorf("%w: category %s already exists", store.ErrDuplicateRule, category.Name)
			}
			created, err := insertCategory(ctx, tx, category)
			if err != nil {
				return err
			}
			resp = domain.CostCategoryResponse{Category: created}
			return nil
		}

		if existing != nil {
			var count int
			if err := tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM product_cost_rules WHERE category_id = $1 AND product_id = $2
			`, existing.ID, rule.ProductID).Scan(&count); err != nil {
				return err
			}
			if count > 0 {
				return fmt.Errorf("%w: %s/%s already bound to product %s", store.ErrDuplicateRule, existing.Name, existing.CostBehaviour, rule.ProductID)
			}
		}
		if rule.Mode == domain.RulePercent {
			var allocated decimal.Decimal
			if err := tx.QueryRowContext(ctx, `
				SELECT COALESCE(SUM(value), 0)
				FROM product_cost_rules
				WHERE business_id = $1 AND product_id = $2 AND mode = $3
			`, category.BusinessID, rule.ProductID, domain.RulePercent).Scan(&allocated); err != nil {
				return err
			}
			if allocated.Add(rule.Value).GreaterThan(decimal.NewFromInt(100)) {
				return store.Invalid("percent allocations for product %s would reach %s%%", rule.ProductID, allocated.Add(rule.Value).String())
			}
		}

		target := existing
		if target == nil {
			created, err := insertCategory(ctx, tx, category)
			if err != nil {
				return err
			}
			target = &created
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
		_, err = tx.ExecContext(ctx, `
			INSERT INTO product_cost_rules (id, business_id, product_id, category_id, mode, value, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, created.ID, created.BusinessID, created.ProductID, created.CategoryID, created.Mode, created.Value, created.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s already bound to product %s", store.ErrDuplicateRule, target.Name, created.ProductID)
			}
			return err
		}

		resp = domain.CostCategoryResponse{Category: *target, Rule: &created}
		return nil
	})
	return resp, err
}

func insertCategory(ctx context.Context, tx *sql.Tx, category domain.CostCategory) (domain.CostCategory, error) {
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	category.Balance = 0
	_, err := tx.ExecContext(ctx, `
		INSERT INTO cost_categories (id, business_id, product_id, name, cost_behaviour, type, balance, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,0,$7)
	`, category.ID, category.BusinessID, nullIfEmpty(category.ProductID), category.Name, category.CostBehaviour, category.Type, category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.CostCategory{}, fmt.Errorf("%w: category %s already exists", store.ErrDuplicateRule, category.Name)
		}
		return domain.CostCategory{}, err
	}
	return category, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findCategory(ctx context.Context, q queryRower, businessID string, name string, behaviour domain.CostBehaviour, productID string) (*domain.CostCategory, error) {
	c, err := scanCategory(q.QueryRowContext(ctx, `
		SELECT `+categoryColumns+`
		FROM cost_categories
		WHERE business_id = $1 AND lower(name) = lower($2) AND cost_behaviour = $3 AND COALESCE(product_id, '') = $4
	`, businessID, name, behaviour, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) FindCostCategory(ctx context.Context, businessID string, name string, behaviour domain.CostBehaviour, productID string) (*domain.CostCategory, error) {
	return findCategory(ctx, s.db, businessID, name, behaviour, productID)
}

func (s *Store) ListCostCategories(ctx context.Context, businessID string) ([]domain.CostCategory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+categoryColumns+`
		FROM cost_categories
		WHERE business_id = $1
		ORDER BY created_at, id
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.CostCategory, 0, 16)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) ListCostRules(ctx context.Context, businessID string, productID string) ([]domain.ProductCostRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, business_id, product_id, category_id, mode, value, created_at
		FROM product_cost_rules
		WHERE business_id = $1 AND product_id = $2
		ORDER BY created_at, id
	`, businessID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]domain.ProductCostRule, 0, 8)
	for rows.Next() {
		var r domain.ProductCostRule
		if err := rows.Scan(&r.ID, &r.BusinessID, &r.ProductID, &r.CategoryID, &r.Mode, &r.Value, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.CreatedAt = r.CreatedAt.UTC()
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *Store) DeleteCostRule(ctx context.Context, businessID string, ruleID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM product_cost_rules WHERE business_id = $1 AND id = $2`, businessID, ruleID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: allocation %s", store.ErrNotFound, ruleID)
	}
	return nil
}

const assetColumns = `id, business_id, name, category, total_cost, recovery_method, recovery_value, maintenance_percentage, recovered_amount, status, created_at`

func scanAsset(row interface{ Scan(...any) error }) (domain.Asset, error) {
	var a domain.Asset
	if err := row.Scan(&a.ID, &a.BusinessID, &a.Name, &a.Category, &a.TotalCost, &a.RecoveryMethod, &a.RecoveryValue,
		&a.MaintenancePercentage, &a.RecoveredAmount, &a.Status, &a.CreatedAt); err != nil {
		return domain.Asset{}, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func (s *Store) CreateAsset(ctx context.Context, asset domain.Asset) (*domain.Asset, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assets (`+assetColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, asset.ID, asset.BusinessID, asset.Name, asset.Category, asset.TotalCost, asset.RecoveryMethod, asset.RecoveryValue,
		asset.MaintenancePercentage, asset.RecoveredAmount, asset.Status, asset.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (s *Store) ListAssets(ctx context.Context, businessID string) ([]domain.Asset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+assetColumns+`
		FROM assets
		WHERE business_id = $1
		ORDER BY created_at, id
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assets := make([]domain.Asset, 0, 16)
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func (s *Store) FindActiveAssetByCategory(ctx context.Context, businessID string, category string) (*domain.Asset, error) {
	a, err := scanAsset(s.db.QueryRowContext(ctx, `
		SELECT `+assetColumns+`
		FROM assets
		WHERE business_id = $1 AND lower(category) = lower($2) AND status = $3
		ORDER BY created_at, id
		LIMIT 1
	`, businessID, category, domain.AssetActive))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *Store) RecordAssetRecovery(ctx context.Context, businessID string, assetID string, amount int64) (*domain.Asset, error) {
	if amount <= 0 {
		return nil, store.Invalid("recovery amount must be positive")
	}
	var asset domain.Asset
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		a, err := scanAsset(tx.QueryRowContext(ctx, `
			SELECT `+assetColumns+`
			FROM assets
			WHERE business_id = $1 AND id = $2
			FOR UPDATE
		`, businessID, assetID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: asset %s", store.ErrNotFound, assetID)
			}
			return err
		}
		a.ApplyRecovery(amount)
		if _, err := tx.ExecContext(ctx, `
			UPDATE assets SET recovered_amount = $2, status = $3 WHERE id = $1
		`, a.ID, a.RecoveredAmount, a.Status); err != nil {
			return err
		}
		asset = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

const recurringColumns = `id, business_id, name, type, monthly_target, current_month, recovered_amount, status, created_at`

func scanRecurring(row interface{ Scan(...any) error }) (domain.RecurringCost, error) {
	var c domain.RecurringCost
	if err := row.Scan(&c.ID, &c.BusinessID, &c.Name, &c.Type, &c.MonthlyTarget, &c.CurrentMonth, &c.RecoveredAmount, &c.Status, &c.CreatedAt); err != nil {
		return domain.RecurringCost{}, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func (s *Store) CreateRecurringCost(ctx context.Context, cost domain.RecurringCost) (*domain.RecurringCost, error) {
	if cost.BusinessID == "" || cost.Name == "" || cost.MonthlyTarget < 0 {
		return nil, store.Invalid("recurring cost requires a name and non-negative target")
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recurring_costs (`+recurringColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, cost.ID, cost.BusinessID, cost.Name, cost.Type, cost.MonthlyTarget, cost.CurrentMonth, cost.RecoveredAmount, cost.Status, cost.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: recurring cost %s", store.ErrAlreadyExists, cost.Name)
		}
		return nil, err
	}
	return &cost, nil
}

func (s *Store) ListRecurringCosts(ctx context.Context, businessID string) ([]domain.RecurringCost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recurringColumns+`
		FROM recurring_costs
		WHERE business_id = $1
		ORDER BY created_at, id
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	costs := make([]domain.RecurringCost, 0, 8)
	for rows.Next() {
		c, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		costs = append(costs, c)
	}
	return costs, rows.Err()
}

func (s *Store) FindRecurringCostByName(ctx context.Context, businessID string, name string) (*domain.RecurringCost, error) {
	c, err := scanRecurring(s.db.QueryRowContext(ctx, `
		SELECT `+recurringColumns+`
		FROM recurring_costs
		WHERE business_id = $1 AND lower(name) = lower($2)
	`, businessID, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) RecordRecurringRecovery(ctx context.Context, businessID string, costID string, amount int64, month string, at time.Time) (*domain.RecurringCost, error) {
	if amount <= 0 {
		return nil, store.Invalid("recovery amount must be positive")
	}
	var cost domain.RecurringCost
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		c, err := scanRecurring(tx.QueryRowContext(ctx, `
			SELECT `+recurringColumns+`
			FROM recurring_costs
			WHERE business_id = $1 AND id = $2
			FOR UPDATE
		`, businessID, costID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: recurring cost %s", store.ErrNotFound, costID)
			}
			return err
		}
		if c.CurrentMonth > month {
			return fmt.Errorf("%w: %s already rolled over to %s", store.ErrPeriodClosed, month, c.CurrentMonth)
		}
		if c, err = rollover(ctx, tx, c, month, at); err != nil {
			return err
		}
		c.RecoveredAmount += amount
		c.RefreshStatus()
		if err := updateRecurring(ctx, tx, c); err != nil {
			return err
		}
		cost = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cost, nil
}

func (s *Store) RolloverRecurringCosts(ctx context.Context, businessID string, toMonth string, at time.Time) ([]domain.MonthlyHistoryRow, error) {
	var archived []domain.MonthlyHistoryRow
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT `+recurringColumns+`
			FROM recurring_costs
			WHERE business_id = $1
			ORDER BY id
			FOR UPDATE
		`, businessID)
		if err != nil {
			return err
		}
		costs := make([]domain.RecurringCost, 0, 8)
		for rows.Next() {
			c, err := scanRecurring(rows)
			if err != nil {
				_ = rows.Close()
				return err
			}
			costs = append(costs, c)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		_ = rows.Close()

		archived = make([]domain.MonthlyHistoryRow, 0, len(costs))
		for _, c := range costs {
			next, history, err := planAndArchive(ctx, tx, c, toMonth, at)
			if err != nil {
				return err
			}
			if len(history) == 0 {
				continue
			}
			if err := updateRecurring(ctx, tx, next); err != nil {
				return err
			}
			archived = append(archived, history...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return archived, nil
}

func rollover(ctx context.Context, tx *sql.Tx, cost domain.RecurringCost, toMonth string, at time.Time) (domain.RecurringCost, error) {
	next, _, err := planAndArchive(ctx, tx, cost, toMonth, at)
	return next, err
}

// planAndArchive writes the history rows PlanRollover produces and returns the
// rolled cost together with the rows actually inserted.
func planAndArchive(ctx context.Context, tx *sql.Tx, cost domain.RecurringCost, toMonth string, at time.Time) (domain.RecurringCost, []domain.MonthlyHistoryRow, error) {
	next, rows, err := domain.PlanRollover(cost, toMonth, func() string { return xid.New("hist") }, at)
	if err != nil {
		return cost, nil, store.Invalid("%v", err)
	}
	inserted := make([]domain.MonthlyHistoryRow, 0, len(rows))
	for _, row := range rows {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO recurring_cost_history (id, cost_id, business_id, name, month, target_amount, recovered_amount, progress, status, archived_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (cost_id, month) DO NOTHING
		`, row.ID, row.CostID, row.BusinessID, row.Name, row.Month, row.TargetAmount, row.RecoveredAmount,
			decimal.NewFromFloat(row.Progress), row.Status, row.ArchivedAt)
		if err != nil {
			return cost, nil, err
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			inserted = append(inserted, row)
		}
	}
	return next, inserted, nil
}

func updateRecurring(ctx context.Context, tx *sql.Tx, cost domain.RecurringCost) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE recurring_costs
		SET current_month = $2, recovered_amount = $3, status = $4
		WHERE id = $1
	`, cost.ID, cost.CurrentMonth, cost.RecoveredAmount, cost.Status)
	return err
}

func (s *Store) ListRecurringHistory(ctx context.Context, businessID string) ([]domain.MonthlyHistoryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cost_id, business_id, name, month, target_amount, recovered_amount, progress, status, archived_at
		FROM recurring_cost_history
		WHERE business_id = $1
		ORDER BY month DESC, name
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.MonthlyHistoryRow, 0, 32)
	for rows.Next() {
		var row domain.MonthlyHistoryRow
		var progress decimal.Decimal
		if err := rows.Scan(&row.ID, &row.CostID, &row.BusinessID, &row.Name, &row.Month, &row.TargetAmount,
			&row.RecoveredAmount, &progress, &row.Status, &row.ArchivedAt); err != nil {
			return nil, err
		}
		row.Progress, _ = progress.Float64()
		row.ArchivedAt = row.ArchivedAt.UTC()
		history = append(history, row)
	}
	return history, rows.Err()
}

const payableColumns = `id, business_id, party_name, total_amount, paid_amount, status, created_at`

func scanPayable(row interface{ Scan(...any) error }) (domain.Payable, error) {
	var p domain.Payable
	if err := row.Scan(&p.ID, &p.BusinessID, &p.PartyName, &p.TotalAmount, &p.PaidAmount, &p.Status, &p.CreatedAt); err != nil {
		return domain.Payable{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func (s *Store) CreatePayable(ctx context.Context, payable domain.Payable) (*domain.Payable, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payables (`+payableColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, payable.ID, payable.BusinessID, payable.PartyName, payable.TotalAmount, payable.PaidAmount, payable.Status, payable.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &payable, nil
}

func (s *Store) ListPayables(ctx context.Context, businessID string) ([]domain.Payable, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+payableColumns+`
		FROM payables
		WHERE business_id = $1
		ORDER BY created_at DESC, id DESC
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payables := make([]domain.Payable, 0, 16)
	for rows.Next() {
		p, err := scanPayable(rows)
		if err != nil {
			return nil, err
		}
		payables = append(payables, p)
	}
	return payables, rows.Err()
}

func (s *Store) PayPayable(ctx context.Context, businessID string, req domain.PaymentRequest, idem store.Idempotency) (domain.PaymentResponse, error) {
	var resp domain.PaymentResponse
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		prior, found, err := replay[domain.PaymentResponse](ctx, tx, businessID, idem)
		if found || err != nil {
			resp = prior
			resp.Duplicate = found
			return err
		}
		if req.Amount <= 0 {
			return store.Invalid("payment amount must be positive")
		}

		accounts, err := lockAccounts(ctx, tx, businessID, req.PaymentAccountID)
		if err != nil {
			return err
		}
		acc := accounts[req.PaymentAccountID]

		payable, err := scanPayable(tx.QueryRowContext(ctx, `
			SELECT `+payableColumns+`
			FROM payables
			WHERE business_id = $1 AND id = $2
			FOR UPDATE
		`, businessID, req.PayableID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: payable %s", store.ErrNotFound, req.PayableID)
			}
			return err
		}
		if req.Amount > payable.Remaining() {
			return fmt.Errorf("%w: remaining %d", store.ErrExceedsRemaining, payable.Remaining())
		}
		if err := checkFunds(acc, req.Amount); err != nil {
			return err
		}

		if _, err := post(ctx, tx, acc, -req.Amount, domain.CategoryPayable, payable.ID, "", time.Now().UTC()); err != nil {
			return err
		}
		payable.PaidAmount += req.Amount
		payable.Status = domain.PayableStatusFor(payable.PaidAmount, payable.TotalAmount)
		if _, err := tx.ExecContext(ctx, `
			UPDATE payables SET paid_amount = $2, status = $3 WHERE id = $1
		`, payable.ID, payable.PaidAmount, payable.Status); err != nil {
			return err
		}

		resp = domain.PaymentResponse{Payable: payable, AccountBalance: acc.Balance}
		return remember(ctx, tx, businessID, idem, resp)
	})
	return resp, err
}

func (s *Store) ApplySalaryEntry(ctx context.Context, entry domain.SalaryEntry, paymentAccountID string, idem store.Idempotency) (domain.SalaryMutationResponse, error) {
	var resp domain.SalaryMutationResponse
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		prior, found, err := replay[domain.SalaryMutationResponse](ctx, tx, entry.BusinessID, idem)
		if found || err != nil {
			resp = prior
			resp.Duplicate = found
			return err
		}
		if entry.Amount <= 0 {
			return store.Invalid("salary amount must be positive")
		}
		if entry.ID == "" {
			entry.ID = xid.New("sal")
		}
		if entry.Date.IsZero() {
			entry.Date = time.Now().UTC()
		}

		account := domain.SalaryAccount{MemberID: entry.MemberID, BusinessID: entry.BusinessID}
		switch entry.Type {
		case domain.SalaryAddition:
			err := tx.QueryRowContext(ctx, `
				INSERT INTO salary_accounts (business_id, member_id, balance, updated_at)
				VALUES ($1,$2,$3,$4)
				ON CONFLICT (business_id, member_id)
				DO UPDATE SET balance = salary_accounts.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
				RETURNING balance, updated_at
			`, entry.BusinessID, entry.MemberID, entry.Amount, entry.Date).Scan(&account.Balance, &account.UpdatedAt)
			if err != nil {
				return err
			}
		case domain.SalaryPayout:
			var payment *domain.Account
			if paymentAccountID != "" {
				accounts, err := lockAccounts(ctx, tx, entry.BusinessID, paymentAccountID)
				if err != nil {
					return err
				}
				payment = accounts[paymentAccountID]
			}
			err := tx.QueryRowContext(ctx, `
				SELECT balance FROM salary_accounts
				WHERE business_id = $1 AND member_id = $2
				FOR UPDATE
			`, entry.BusinessID, entry.MemberID).Scan(&account.Balance)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("%w: salary account %s", store.ErrNotFound, entry.MemberID)
				}
				return err
			}
			if account.Balance < entry.Amount {
				return &store.InsufficientBalanceError{Available: account.Balance}
			}
			if payment != nil {
				if err := checkFunds(payment, entry.Amount); err != nil {
					return err
				}
				if _, err := post(ctx, tx, payment, -entry.Amount, domain.CategorySalary, entry.MemberID, "", entry.Date); err != nil {
					return err
				}
			}
			account.Balance -= entry.Amount
			account.UpdatedAt = entry.Date
			if _, err := tx.ExecContext(ctx, `
				UPDATE salary_accounts SET balance = $3, updated_at = $4
				WHERE business_id = $1 AND member_id = $2
			`, entry.BusinessID, entry.MemberID, account.Balance, account.UpdatedAt); err != nil {
				return err
			}
		default:
			return store.Invalid("unknown salary entry type %q", entry.Type)
		}
		account.UpdatedAt = account.UpdatedAt.UTC()

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO salary_entries (id, business_id, member_id, type, amount, month, description, date)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, entry.ID, entry.BusinessID, entry.MemberID, entry.Type, entry.Amount, entry.Month, entry.Description, entry.Date); err != nil {
			return err
		}

		resp = domain.SalaryMutationResponse{Account: account, Entry: entry}
		return remember(ctx, tx, entry.BusinessID, idem, resp)
	})
	return resp, err
}

func (s *Store) GetSalaryAccount(ctx context.Context, businessID string, memberID string) (*domain.SalaryAccount, error) {
	account := domain.SalaryAccount{BusinessID: businessID, MemberID: memberID}
	err := s.db.QueryRowContext(ctx, `
		SELECT balance, updated_at FROM salary_accounts
		WHERE business_id = $1 AND member_id = $2
	`, businessID, memberID).Scan(&account.Balance, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: salary account %s", store.ErrNotFound, memberID)
		}
		return nil, err
	}
	account.UpdatedAt = account.UpdatedAt.UTC()
	return &account, nil
}

func (s *Store) ListSalaryEntries(ctx context.Context, businessID string, memberID string) ([]domain.SalaryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, business_id, member_id, type, amount, month, description, date
		FROM salary_entries
		WHERE business_id = $1 AND member_id = $2
		ORDER BY date DESC, id DESC
	`, businessID, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.SalaryEntry, 0, 16)
	for rows.Next() {
		var e domain.SalaryEntry
		if err := rows.Scan(&e.ID, &e.BusinessID, &e.MemberID, &e.Type, &e.Amount, &e.Month, &e.Description, &e.Date); err != nil {
			return nil, err
		}
		e.Date = e.Date.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func replay[T any](ctx context.Context, tx *sql.Tx, businessID string, idem store.Idempotency) (T, bool, error) {
	var zero T
	if !idem.Enabled() {
		return zero, false, nil
	}
	rec := domain.IdempotencyRecord{BusinessID: businessID, Key: idem.Key}
	err := tx.QueryRowContext(ctx, `
		SELECT operation, response, created_at
		FROM idempotency_keys
		WHERE business_id = $1 AND key = $2
	`, businessID, idem.Key).Scan(&rec.Operation, &rec.Response, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, false, nil
		}
		return zero, false, err
	}
	resp, err := store.Replay[T](&rec, idem)
	if err != nil {
		return zero, false, err
	}
	return resp, true, nil
}

func remember(ctx context.Context, tx *sql.Tx, businessID string, idem store.Idempotency, resp any) error {
	if !idem.Enabled() {
		return nil
	}
	rec, err := store.Remember(businessID, idem, resp, time.Now().UTC())
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO idempotency_keys (business_id, key, operation, response, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, rec.BusinessID, rec.Key, rec.Operation, rec.Response, rec.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: idempotency key %s in flight", store.ErrConcurrencyConflict, idem.Key)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// mapConflict translates serialization_failure and deadlock_detected.
func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%w: %s", store.ErrConcurrencyConflict, pgErr.Message)
	}
	return err
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
