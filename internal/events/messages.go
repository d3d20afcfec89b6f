package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
)

var ErrMalformed = errors.New("malformed sale message")

// SaleMessage is the wire form of one sold product line.
type SaleMessage struct {
	BusinessID     string `json:"business_id"`
	ProductID      string `json:"product_id"`
	RevenueCents   int64  `json:"revenue_cents"`
	Quantity       int    `json:"quantity"`
	AccountID      string `json:"account_id"`
	Reference      string `json:"reference,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func (m SaleMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeSaleMessage parses body and rejects messages that can never be applied.
func DecodeSaleMessage(body []byte) (*SaleMessage, error) {
	var msg SaleMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(msg.BusinessID) == "" {
		return nil, fmt.Errorf("%w: business_id is required", ErrMalformed)
	}
	if strings.TrimSpace(msg.ProductID) == "" || strings.TrimSpace(msg.AccountID) == "" {
		return nil, fmt.Errorf("%w: product_id and account_id are required", ErrMalformed)
	}
	return &msg, nil
}

func (m SaleMessage) Business() domain.BusinessContext {
	return domain.BusinessContext{BusinessID: m.BusinessID, UserID: "amqp", Role: "system"}
}

func (m SaleMessage) Event() domain.SaleEvent {
	return domain.SaleEvent{
		ProductID:      m.ProductID,
		Revenue:        m.RevenueCents,
		Quantity:       m.Quantity,
		AccountID:      m.AccountID,
		Reference:      m.Reference,
		IdempotencyKey: m.IdempotencyKey,
	}
}
