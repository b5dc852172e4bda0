package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionRequest is a single inbound transaction to evaluate. It is
// produced externally and treated as read-only by the rule engine.
type TransactionRequest struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Merchant      string          `json:"merchant"`
	Currency      string          `json:"currency"`
	Timestamp     time.Time       `json:"timestamp"`
}
