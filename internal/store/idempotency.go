package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
)

// Idempotency names a caller-supplied dedup token for one mutation.
// A zero Key disables deduplication.
type Idempotency struct {
	Key       string
	Operation string
}

func NewIdempotency(key string, operation string) Idempotency {
	return Idempotency{Key: strings.TrimSpace(key), Operation: operation}
}

func (i Idempotency) Enabled() bool {
	return i.Key != ""
}

// Replay decodes a stored response. Reusing a key for another operation is rejected.
func Replay[T any](rec *domain.IdempotencyRecord, idem Idempotency) (T, error) {
	var resp T
	if rec.Operation != idem.Operation {
		return resp, Invalid("idempotency key %q already used for %s", idem.Key, rec.Operation)
	}
	if err := json.Unmarshal(rec.Response, &resp); err != nil {
		return resp, fmt.Errorf("decode idempotent response: %w", err)
	}
	return resp, nil
}

// Remember encodes resp into a record for businessID.
func Remember(businessID string, idem Idempotency, resp any, at time.Time) (domain.IdempotencyRecord, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("encode idempotent response: %w", err)
	}
	return domain.IdempotencyRecord{
		BusinessID: businessID,
		Key:        idem.Key,
		Operation:  idem.Operation,
		Response:   payload,
		CreatedAt:  at,
	}, nil
}

// Operation names stored alongside idempotency keys.
const (
	OpRecordTransaction = "record_transaction"
	OpTransfer          = "transfer_funds"
	OpTransferCOGS      = "transfer_cogs"
	OpSale              = "resolve_sale"
	OpPay               = "pay_payable"
	OpSalaryAddition    = "salary_addition"
	OpSalaryPayout      = "salary_payout"
)
