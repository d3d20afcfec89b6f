package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
	"github.com/Srijan10011/Business-Calc-sub000/internal/store"
)

func (a *API) handleProvisionAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.service.CreateDefaultAccounts(r.Context(), business(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (a *API) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.service.GetAccounts(r.Context(), business(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (a *API) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.RecordTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.IdempotencyKey = idempotencyKey(r, req.IdempotencyKey)

	resp, err := a.service.RecordTransaction(r.Context(), business(r), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, err := parseTime(query.Get("date_from"), false)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	to, err := parseTime(query.Get("date_to"), true)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	txns, err := a.service.GetTransactions(r.Context(), business(r), domain.TransactionFilter{
		DateFrom:  from,
		DateTo:    to,
		AccountID: query.Get("account_id"),
		Direction: domain.Direction(strings.TrimSpace(query.Get("direction"))),
		Category:  query.Get("category"),
		Limit:     parsePositiveLimit(query.Get("limit"), 100, 500),
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

func (a *API) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req domain.TransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.IdempotencyKey = idempotencyKey(r, req.IdempotencyKey)

	resp, err := a.service.TransferFunds(r.Context(), business(r), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCOGSTransfer(w http.ResponseWriter, r *http.Request) {
	var req domain.COGSTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.IdempotencyKey = idempotencyKey(r, req.IdempotencyKey)

	resp, err := a.service.TransferCOGS(r.Context(), business(r), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListCostCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.service.ListCostCategories(r.Context(), business(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (a *API) handleAddCostCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.CostCategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.AddCostCategory(r.Context(), business(r), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleCheckCategory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := a.service.CheckCategory(r.Context(), business(r),
		query.Get("name"),
		domain.CostBehaviour(strings.TrimSpace(query.Get("cost_behaviour"))),
		query.Get("product_id"),
	)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListAllocations(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ListAllocations(r.Context(), business(r), chi.URLParam(r, "productID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDeleteAllocation(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteAllocation(r.Context(), business(r), chi.URLParam(r, "ruleID")); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleResolveSale(w http.ResponseWriter, r *http.Request) {
	var event domain.SaleEvent
	if err := decodeJSON(r, &event); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	event.IdempotencyKey = idempotencyKey(r, event.IdempotencyKey)

	resp, err := a.service.ResolveSale(r.Context(), business(r), event)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := a.service.ListAssets(r.Context(), business(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": assets})
}

func (a *API) handleAddAsset(w http.ResponseWriter, r *http.Request) {
	var req domain.AssetCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	asset, err := a.service.AddAsset(r.Context(), business(r), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}

func (a *API) handleAssetRecovery(w http.ResponseWriter, r *http.Request) {
	var req domain.RecoveryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	asset, err := a.service.RecordAssetRecovery(r.Context(), business(r), chi.URLParam(r, "assetID"), req.Amount)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (a *API) handleListRecurringCosts(w http.ResponseWriter, r *http.Request) {
	costs, err := a.service.ListRecurringCosts(r.Context(), business(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recurring_costs": costs})
}

func (a *API) handleAddRecurringCost(w http.ResponseWriter, r *http.Request) {
	var req domain.RecurringCostCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cost, err := a.service.AddRecurringCost(r.Context(), business(r), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cost)
}

func (a *API) handleRecurringRecovery(w http.ResponseWriter, r *http.Request) {
	var req domain.RecoveryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cost, err := a.service.RecordRecurringRecovery(r.Context(), business(r), chi.URLParam(r, "costID"), req.Amount)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cost)
}

func (a *API) handleRecurringHistory(w http.ResponseWriter, r *http.Request) {
	history, err := a.service.GetHistory(r.Context(), business(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (a *API) handleRollover(w http.ResponseWriter, r *http.Request) {
	var req domain.RolloverRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	resp, err := a.service.RolloverRecurringCosts(r.Context(), business(r), req.Month)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListPayables(w http.ResponseWriter, r *http.Request) {
	payables, err := a.service.ListPayables(r.Context(), business(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payables": payables})
}

func (a *API) handleAddPayable(w http.ResponseWriter, r *http.Request) {
	var req domain.PayableCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	payable, err := a.service.AddPayable(r.Context(), business(r), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payable)
}

type paymentBody struct {
	Amount           int64  `json:"amount"`
	PaymentAccountID string `json:"payment_account_id"`
	IdempotencyKey   string `json:"idempotency_key,omitempty"`
}

func (a *API) handlePay(w http.ResponseWriter, r *http.Request) {
	var body paymentBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.Pay(r.Context(), business(r), domain.PaymentRequest{
		PayableID:        chi.URLParam(r, "payableID"),
		Amount:           body.Amount,
		PaymentAccountID: body.PaymentAccountID,
		IdempotencyKey:   idempotencyKey(r, body.IdempotencyKey),
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSalaryBalance(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.GetSalaryBalance(r.Context(), business(r), chi.URLParam(r, "memberID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSalaryHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := a.service.GetSalaryHistory(r.Context(), business(r), chi.URLParam(r, "memberID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type salaryBody struct {
	Amount           int64  `json:"amount"`
	Month            string `json:"month"`
	Description      string `json:"description,omitempty"`
	PaymentAccountID string `json:"payment_account_id,omitempty"`
	IdempotencyKey   string `json:"idempotency_key,omitempty"`
}

func (b salaryBody) request(r *http.Request) domain.SalaryRequest {
	return domain.SalaryRequest{
		MemberID:         chi.URLParam(r, "memberID"),
		Amount:           b.Amount,
		Month:            b.Month,
		Description:      b.Description,
		PaymentAccountID: b.PaymentAccountID,
		IdempotencyKey:   idempotencyKey(r, b.IdempotencyKey),
	}
}

func (a *API) handleSalaryAddition(w http.ResponseWriter, r *http.Request) {
	var body salaryBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.PaymentAccountID != "" {
		a.writeServiceError(w, r, store.Invalid("payment_account_id only applies to payouts"))
		return
	}

	resp, err := a.service.AddSalary(r.Context(), business(r), body.request(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSalaryPayout(w http.ResponseWriter, r *http.Request) {
	var body salaryBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.PayoutSalary(r.Context(), business(r), body.request(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMoneyFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := a.service.MoneyFlow(r.Context(), business(r), r.URL.Query().Get("month"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}
