package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
	"github.com/Srijan10011/Business-Calc-sub000/internal/logging"
	"github.com/Srijan10011/Business-Calc-sub000/internal/service"
	"github.com/Srijan10011/Business-Calc-sub000/internal/store"
)

const idempotencyHeader = "Idempotency-Key"

type API struct {
	service       *service.Service
	auth          *Verifier
	allowedOrigin string
	logger        *slog.Logger
}

func New(svc *service.Service, auth *Verifier, allowedOrigin string, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		logger:        logging.WithComponent(logger, logging.ComponentHTTP),
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.securityHeaders)
	r.Use(a.requestLogger)

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(a.requireAuth)

		r.Post("/accounts/provision", a.handleProvisionAccounts)
		r.Get("/accounts", a.handleListAccounts)

		r.Get("/transactions", a.handleListTransactions)
		r.Post("/transactions", a.handleRecordTransaction)
		r.Post("/transfers", a.handleTransfer)

		r.Route("/cogs", func(r chi.Router) {
			r.Post("/transfers", a.handleCOGSTransfer)
			r.Get("/categories", a.handleListCostCategories)
			r.Post("/categories", a.handleAddCostCategory)
			r.Get("/categories/check", a.handleCheckCategory)
			r.Get("/products/{productID}/allocations", a.handleListAllocations)
			r.Delete("/allocations/{ruleID}", a.handleDeleteAllocation)
		})
		r.Post("/sales", a.handleResolveSale)

		r.Route("/assets", func(r chi.Router) {
			r.Get("/", a.handleListAssets)
			r.Post("/", a.handleAddAsset)
			r.Post("/{assetID}/recoveries", a.handleAssetRecovery)
		})

		r.Route("/recurring-costs", func(r chi.Router) {
			r.Get("/", a.handleListRecurringCosts)
			r.Post("/", a.handleAddRecurringCost)
			r.Get("/history", a.handleRecurringHistory)
			r.Post("/rollover", a.handleRollover)
			r.Post("/{costID}/recoveries", a.handleRecurringRecovery)
		})

		r.Route("/payables", func(r chi.Router) {
			r.Get("/", a.handleListPayables)
			r.Post("/", a.handleAddPayable)
			r.Post("/{payableID}/payments", a.handlePay)
		})

		r.Route("/salaries/{memberID}", func(r chi.Router) {
			r.Get("/", a.handleSalaryBalance)
			r.Get("/history", a.handleSalaryHistory)
			r.Post("/additions", a.handleSalaryAddition)
			r.Post("/payouts", a.handleSalaryPayout)
		})

		r.Get("/money-flow", a.handleMoneyFlow)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMethodNotAllowed(w)
	})
	return r
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		bc, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(service.WithBusiness(r.Context(), bc)))
	})
}

func (a *API) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.InfoContext(r.Context(), "request",
			logging.FieldRequestID, middleware.GetReqID(r.Context()),
			logging.FieldMethod, r.Method,
			logging.FieldPath, r.URL.Path,
			logging.FieldStatusCode, ww.Status(),
			logging.FieldDuration, time.Since(startedAt).Milliseconds(),
		)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

// business returns the caller resolved by requireAuth.
func business(r *http.Request) domain.BusinessContext {
	bc, _ := service.BusinessFromContext(r.Context())
	return bc
}

// idempotencyKey prefers the header over a key sent in the body.
func idempotencyKey(r *http.Request, fromBody string) string {
	if key := strings.TrimSpace(r.Header.Get(idempotencyHeader)); key != "" {
		return key
	}
	return fromBody
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// parseTime accepts RFC 3339 or a bare date. A bare date used as an upper
// bound covers the whole day.
func parseTime(raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, store.Invalid("invalid date %q: expected RFC3339 or YYYY-MM-DD", raw)
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}

// writeServiceError maps the ledger error taxonomy onto HTTP statuses.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var balanceErr *store.InsufficientBalanceError
	switch {
	case errors.As(err, &balanceErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     err.Error(),
			"available": balanceErr.Available,
		})
	case errors.Is(err, store.ErrValidation):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInsufficientFunds),
		errors.Is(err, store.ErrExceedsRemaining),
		errors.Is(err, store.ErrDuplicateRule),
		errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, store.ErrConcurrencyConflict):
		writeError(w, http.StatusConflict, err)
	default:
		a.logger.ErrorContext(r.Context(), "request failed",
			logging.FieldRequestID, middleware.GetReqID(r.Context()),
			logging.FieldPath, r.URL.Path,
			logging.FieldError, err,
		)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError hides the detail of 5xx responses; 4xx messages are user-facing.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
