package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BusinessContext identifies the tenant and caller for every engine call.
// It is resolved by the HTTP boundary (or a worker) and passed explicitly.
type BusinessContext struct {
	BusinessID string
	UserID     string
	Role       string
}

type AccountKind string

const (
	AccountCash   AccountKind = "cash"
	AccountBank   AccountKind = "bank"
	AccountCredit AccountKind = "credit"
	AccountDebit  AccountKind = "debit"
)

// DefaultAccountKinds is the fixed account set of every business, in display order.
var DefaultAccountKinds = []AccountKind{AccountCash, AccountBank, AccountCredit, AccountDebit}

func (k AccountKind) Valid() bool {
	switch k {
	case AccountCash, AccountBank, AccountCredit, AccountDebit:
		return true
	default:
		return false
	}
}

func (k AccountKind) DisplayName() string {
	switch k {
	case AccountCash:
		return "Cash"
	case AccountBank:
		return "Bank"
	case AccountCredit:
		return "Funds on Hold"
	case AccountDebit:
		return "Invoice"
	default:
		return string(k)
	}
}

// AllowsOverdraft reports whether a direct posting may take the balance below zero.
// Cash and bank hold real money; credit and debit only track it.
func (k AccountKind) AllowsOverdraft() bool {
	return k == AccountCredit || k == AccountDebit
}

func (k AccountKind) Rank() int {
	for i, kind := range DefaultAccountKinds {
		if kind == k {
			return i
		}
	}
	return len(DefaultAccountKinds)
}

type Account struct {
	ID          string      `json:"id"`
	BusinessID  string      `json:"business_id"`
	Kind        AccountKind `json:"kind"`
	DisplayName string      `json:"display_name"`
	Balance     int64       `json:"balance"`
	CreatedAt   time.Time   `json:"created_at"`
}

type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Transaction categories posted by the engines themselves.
const (
	CategoryTransfer  = "transfer"
	CategorySale      = "sale"
	CategoryPayable   = "payable"
	CategorySalary    = "salary"
	CategoryInventory = "inventory"
)

type Transaction struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"account_id"`
	BusinessID     string    `json:"business_id"`
	Amount         int64     `json:"amount"`
	Category       string    `json:"category"`
	Direction      Direction `json:"direction"`
	Reference      string    `json:"reference,omitempty"`
	CostCategoryID string    `json:"cost_category_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type TransactionFilter struct {
	DateFrom  *time.Time
	DateTo    *time.Time
	AccountID string
	Direction Direction
	Category  string
	Limit     int
}

type RecordTransactionRequest struct {
	AccountID      string    `json:"account_id"`
	Amount         int64     `json:"amount"`
	Category       string    `json:"category"`
	Direction      Direction `json:"direction,omitempty"`
	Reference      string    `json:"reference,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
}

type RecordTransactionResponse struct {
	Transaction Transaction `json:"transaction"`
	Balance     int64       `json:"balance"`
	Duplicate   bool        `json:"duplicate"`
}

type TransferRequest struct {
	FromAccountID  string `json:"from"`
	ToAccountID    string `json:"to"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type TransferResponse struct {
	FromBalance int64 `json:"from_balance"`
	ToBalance   int64 `json:"to_balance"`
	Duplicate   bool  `json:"duplicate"`
}

type COGSDirection string

const (
	COGSToBucket   COGSDirection = "to-cogs"
	COGSFromBucket COGSDirection = "from-cogs"
)

type COGSTransferRequest struct {
	CategoryID     string        `json:"category_id"`
	AccountID      string        `json:"account_id"`
	Amount         int64         `json:"amount"`
	Direction      COGSDirection `json:"direction"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

type COGSTransferResponse struct {
	AccountBalance int64 `json:"account_balance"`
	BucketBalance  int64 `json:"bucket_balance"`
	Duplicate      bool  `json:"duplicate"`
}

type CostBehaviour string

const (
	CostMonthlyFixed CostBehaviour = "monthly_fixed"
	CostOneTime      CostBehaviour = "one_time"
	CostVariable     CostBehaviour = "variable"
)

func (b CostBehaviour) Valid() bool {
	return b == CostMonthlyFixed || b == CostOneTime || b == CostVariable
}

type CostCategory struct {
	ID            string        `json:"id"`
	BusinessID    string        `json:"business_id"`
	ProductID     string        `json:"product_id,omitempty"`
	Name          string        `json:"name"`
	CostBehaviour CostBehaviour `json:"cost_behaviour"`
	Type          Direction     `json:"type"`
	Balance       int64         `json:"balance"`
	CreatedAt     time.Time     `json:"created_at"`
}

type RuleMode string

const (
	RulePercent RuleMode = "percent"
	RuleFixed   RuleMode = "fixed"
)

type ProductCostRule struct {
	ID         string          `json:"id"`
	BusinessID string          `json:"business_id"`
	ProductID  string          `json:"product_id"`
	CategoryID string          `json:"category_id"`
	Mode       RuleMode        `json:"mode"`
	Value      decimal.Decimal `json:"value"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Allocation computes the share of a sale owed to this rule, in minor units.
func (r ProductCostRule) Allocation(revenue int64, quantity int) int64 {
	var amount decimal.Decimal
	switch r.Mode {
	case RulePercent:
		amount = decimal.NewFromInt(revenue).Mul(r.Value).Div(decimal.NewFromInt(100))
	case RuleFixed:
		amount = r.Value.Mul(decimal.NewFromInt(int64(quantity)))
	default:
		return 0
	}
	return amount.Round(0).IntPart()
}

type CostCategoryRequest struct {
	ProductID     string          `json:"product_id,omitempty"`
	Name          string          `json:"category"`
	CostBehaviour CostBehaviour   `json:"cost_behaviour"`
	Type          Direction       `json:"type,omitempty"`
	Mode          RuleMode        `json:"mode,omitempty"`
	Value         decimal.Decimal `json:"value"`
}

type CostCategoryResponse struct {
	Category CostCategory     `json:"category"`
	Rule     *ProductCostRule `json:"rule,omitempty"`
}

type CategoryCheckResponse struct {
	Exists bool `json:"exists"`
}

type AllocationView struct {
	Rule         ProductCostRule `json:"rule"`
	CategoryName string          `json:"category_name"`
	Behaviour    CostBehaviour   `json:"cost_behaviour"`
}

type AllocationListResponse struct {
	ProductID        string           `json:"product_id"`
	Allocations      []AllocationView `json:"allocations"`
	AllocatedPercent decimal.Decimal  `json:"allocated_percent"`
	RemainingPercent decimal.Decimal  `json:"remaining_percent"`
}

// SaleEvent is raised by the (external) sales flow for one product line.
type SaleEvent struct {
	ProductID      string `json:"product_id"`
	Revenue        int64  `json:"revenue"`
	Quantity       int    `json:"quantity"`
	AccountID      string `json:"account_id"`
	Reference      string `json:"reference,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// SalePosting is the fully resolved set of ledger rows for one sale.
type SalePosting struct {
	AccountID   string
	Revenue     int64
	Reference   string
	Allocations []SaleAllocation
}

type SaleAllocation struct {
	CategoryID   string        `json:"category_id"`
	CategoryName string        `json:"category_name"`
	Behaviour    CostBehaviour `json:"cost_behaviour"`
	Amount       int64         `json:"amount"`
}

type SaleResponse struct {
	Revenue        int64            `json:"revenue"`
	AccountBalance int64            `json:"account_balance"`
	Allocations    []SaleAllocation `json:"allocations"`
	Duplicate      bool             `json:"duplicate"`
}

type RecoveryMethod string

const (
	RecoveryPercentage RecoveryMethod = "percentage"
	RecoveryFixed      RecoveryMethod = "fixed"
)

type AssetStatus string

const (
	AssetActive  AssetStatus = "Active"
	AssetRetired AssetStatus = "Retired"
)

type Asset struct {
	ID                    string          `json:"id"`
	BusinessID            string          `json:"business_id"`
	Name                  string          `json:"name"`
	Category              string          `json:"category"`
	TotalCost             int64           `json:"cost"`
	RecoveryMethod        RecoveryMethod  `json:"recovery_method"`
	RecoveryValue         decimal.Decimal `json:"recovery_value"`
	MaintenancePercentage decimal.Decimal `json:"maintenance_percentage"`
	RecoveredAmount       int64           `json:"recovered"`
	Status                AssetStatus     `json:"status"`
	CreatedAt             time.Time       `json:"created_at"`
}

// ApplyRecovery adds amount, clamped to [0, TotalCost], and refreshes Status.
func (a *Asset) ApplyRecovery(amount int64) {
	a.RecoveredAmount = clamp(a.RecoveredAmount+amount, 0, a.TotalCost)
	a.Status = AssetActive
	if a.RecoveredAmount >= a.TotalCost {
		a.Status = AssetRetired
	}
}

func (a Asset) Remaining() int64 {
	return a.TotalCost - a.RecoveredAmount
}

func (a Asset) Progress() float64 {
	return Progress(a.RecoveredAmount, a.TotalCost)
}

type AssetView struct {
	Asset
	Remaining int64   `json:"remaining"`
	Progress  float64 `json:"progress"`
}

type AssetCreateRequest struct {
	Name                  string          `json:"name"`
	Category              string          `json:"category"`
	TotalCost             int64           `json:"total_cost"`
	RecoveryMethod        RecoveryMethod  `json:"recovery_method"`
	RecoveryValue         decimal.Decimal `json:"recovery_value"`
	MaintenancePercentage decimal.Decimal `json:"maintenance_percentage"`
}

type RecoveryRequest struct {
	Amount int64 `json:"amount"`
}

type RecurringStatus string

const (
	RecurringInProgress RecurringStatus = "in_progress"
	RecurringFulfilled  RecurringStatus = "fulfilled"
)

type RecurringCost struct {
	ID              string          `json:"id"`
	BusinessID      string          `json:"business_id"`
	Name            string          `json:"name"`
	Type            string          `json:"type"`
	MonthlyTarget   int64           `json:"monthly_target"`
	CurrentMonth    string          `json:"current_month"`
	RecoveredAmount int64           `json:"recovered_amount"`
	Status          RecurringStatus `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (c *RecurringCost) RefreshStatus() {
	c.Status = RecurringInProgress
	if c.RecoveredAmount >= c.MonthlyTarget {
		c.Status = RecurringFulfilled
	}
}

type RecurringCostView struct {
	RecurringCost
	Progress float64 `json:"progress"`
}

type RecurringCostCreateRequest struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	MonthlyTarget int64  `json:"monthly_target"`
}

type HistoryStatus string

const (
	HistoryFulfilled   HistoryStatus = "fulfilled"
	HistoryUnfulfilled HistoryStatus = "unfulfilled"
)

type MonthlyHistoryRow struct {
	ID              string        `json:"id"`
	CostID          string        `json:"cost_id"`
	BusinessID      string        `json:"business_id"`
	Name            string        `json:"name"`
	Month           string        `json:"month"`
	TargetAmount    int64         `json:"target_amount"`
	RecoveredAmount int64         `json:"recovered_amount"`
	Progress        float64       `json:"progress"`
	Status          HistoryStatus `json:"status"`
	ArchivedAt      time.Time     `json:"archived_at"`
}

// SnapshotMonth builds the immutable archive row for the cost's open month.
func SnapshotMonth(cost RecurringCost, month string, recovered int64, id string, at time.Time) MonthlyHistoryRow {
	status := HistoryUnfulfilled
	if recovered >= cost.MonthlyTarget {
		status = HistoryFulfilled
	}
	return MonthlyHistoryRow{
		ID:              id,
		CostID:          cost.ID,
		BusinessID:      cost.BusinessID,
		Name:            cost.Name,
		Month:           month,
		TargetAmount:    cost.MonthlyTarget,
		RecoveredAmount: recovered,
		Progress:        Progress(recovered, cost.MonthlyTarget),
		Status:          status,
		ArchivedAt:      at,
	}
}

type RolloverRequest struct {
	Month string `json:"month"`
}

type RolloverResponse struct {
	Month    string              `json:"month"`
	Archived []MonthlyHistoryRow `json:"archived"`
}

type PayableStatus string

const (
	PayablePending PayableStatus = "Pending"
	PayablePartial PayableStatus = "Partial"
	PayablePaid    PayableStatus = "Paid"
)

// PayableStatusFor derives the payable state from its two amounts.
func PayableStatusFor(paid, total int64) PayableStatus {
	switch {
	case paid <= 0:
		return PayablePending
	case paid >= total:
		return PayablePaid
	default:
		return PayablePartial
	}
}

type Payable struct {
	ID          string        `json:"id"`
	BusinessID  string        `json:"business_id"`
	PartyName   string        `json:"party_name"`
	TotalAmount int64         `json:"total_amount"`
	PaidAmount  int64         `json:"paid_amount"`
	Status      PayableStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}

func (p Payable) Remaining() int64 {
	return p.TotalAmount - p.PaidAmount
}

type PayableCreateRequest struct {
	PartyName   string `json:"party_name"`
	TotalAmount int64  `json:"total_amount"`
}

type PaymentRequest struct {
	PayableID        string `json:"payable_id"`
	Amount           int64  `json:"amount"`
	PaymentAccountID string `json:"payment_account_id"`
	IdempotencyKey   string `json:"idempotency_key,omitempty"`
}

type PaymentResponse struct {
	Payable        Payable `json:"payable"`
	AccountBalance int64   `json:"account_balance"`
	Duplicate      bool    `json:"duplicate"`
}

type SalaryEntryType string

const (
	SalaryAddition SalaryEntryType = "addition"
	SalaryPayout   SalaryEntryType = "payout"
)

type SalaryAccount struct {
	MemberID   string    `json:"member_id"`
	BusinessID string    `json:"business_id"`
	Balance    int64     `json:"balance"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type SalaryEntry struct {
	ID          string          `json:"id"`
	MemberID    string          `json:"member_id"`
	BusinessID  string          `json:"business_id"`
	Type        SalaryEntryType `json:"type"`
	Amount      int64           `json:"amount"`
	Month       string          `json:"month"`
	Description string          `json:"description,omitempty"`
	Date        time.Time       `json:"date"`
}

type SalaryRequest struct {
	MemberID         string `json:"member_id"`
	Amount           int64  `json:"amount"`
	Month            string `json:"month"`
	Description      string `json:"description,omitempty"`
	PaymentAccountID string `json:"payment_account_id,omitempty"`
	IdempotencyKey   string `json:"idempotency_key,omitempty"`
}

type SalaryBalanceResponse struct {
	MemberID  string `json:"member_id"`
	Balance   int64  `json:"balance"`
	TotalPaid int64  `json:"total_paid"`
}

type SalaryMutationResponse struct {
	Account   SalaryAccount `json:"account"`
	Entry     SalaryEntry   `json:"entry"`
	Duplicate bool          `json:"duplicate"`
}

type MoneyFlowIncoming struct {
	Cash   int64 `json:"cash"`
	Bank   int64 `json:"bank"`
	Credit int64 `json:"credit"`
}

type MoneyFlowOutgoing struct {
	Inventory int64            `json:"inventory"`
	COGS      map[string]int64 `json:"cogs"`
	General   int64            `json:"general"`
}

type MoneyFlow struct {
	BusinessID string            `json:"business_id"`
	Month      string            `json:"month"`
	Incoming   MoneyFlowIncoming `json:"incoming"`
	Outgoing   MoneyFlowOutgoing `json:"outgoing"`
}

// IdempotencyRecord remembers the first response of a keyed mutation.
type IdempotencyRecord struct {
	BusinessID string
	Key        string
	Operation  string
	Response   []byte
	CreatedAt  time.Time
}

// Progress returns min(100, part/whole*100) rounded to two decimals. It reaches
// 100 only once part covers whole; anything short of that stays at or below 99.99.
func Progress(part, whole int64) float64 {
	if whole <= 0 || part >= whole {
		return 100
	}
	if part <= 0 {
		return 0
	}
	pct := decimal.NewFromInt(part).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(whole)).Round(2)
	if ceiling := decimal.RequireFromString("99.99"); pct.GreaterThan(ceiling) {
		pct = ceiling
	}
	f, _ := pct.Float64()
	return f
}

// MonthOf formats t as the YYYY-MM bucket label used by recurring costs and reports.
func MonthOf(t time.Time) string {
	return t.UTC().Format(MonthLayout)
}

const MonthLayout = "2006-01"

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
