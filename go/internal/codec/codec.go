// Package codec translates between queue payloads and domain values. Inbound
// bodies are base64-encoded serialized transactions; outbound decision
// payloads use the same envelope.
package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/payguard/frauddetect/go/internal/models"
	"github.com/payguard/frauddetect/go/internal/rules"
)

// ErrMalformedMessage marks an inbound payload that can never be decoded.
// It is non-retryable: the consumer must still acknowledge the message to
// avoid poison-message loops.
var ErrMalformedMessage = errors.New("codec: malformed transaction message")

// DecodeTransaction parses an inbound message body into a transaction.
func DecodeTransaction(body []byte) (models.TransactionRequest, error) {
	var req models.TransactionRequest

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return req, fmt.Errorf("%w: empty message body", ErrMalformedMessage)
	}

	raw := make([]byte, base64.StdEncoding.DecodedLen(len(trimmed)))
	n, err := base64.StdEncoding.Decode(raw, trimmed)
	if err != nil {
		return req, fmt.Errorf("%w: body is not base64: %v", ErrMalformedMessage, err)
	}

	if err := json.Unmarshal(raw[:n], &req); err != nil {
		return req, fmt.Errorf("%w: invalid transaction encoding: %v", ErrMalformedMessage, err)
	}

	return req, nil
}

// RiskAssessment is the decision payload delivered to the notification
// channel.
type RiskAssessment struct {
	TransactionID string         `json:"transaction_id"`
	Decision      rules.Decision `json:"decision"`
	Reason        rules.Reason   `json:"reason"`
	RiskScore     float64        `json:"risk_score"`
}

// EncodeDecision serializes a decision into the base64 notification payload.
func EncodeDecision(transactionID string, result rules.RuleResult) ([]byte, error) {
	raw, err := json.Marshal(RiskAssessment{
		TransactionID: transactionID,
		Decision:      result.Decision,
		Reason:        result.Reason,
		RiskScore:     result.RiskScore,
	})
	if err != nil {
		return nil, fmt.Errorf("encode decision: %w", err)
	}

	payload := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(payload, raw)
	return payload, nil
}

// DecodeDecision parses a notification payload back into a risk assessment.
func DecodeDecision(payload []byte) (RiskAssessment, error) {
	var assessment RiskAssessment

	raw := make([]byte, base64.StdEncoding.DecodedLen(len(payload)))
	n, err := base64.StdEncoding.Decode(raw, payload)
	if err != nil {
		return assessment, fmt.Errorf("decode decision payload: %w", err)
	}

	if err := json.Unmarshal(raw[:n], &assessment); err != nil {
		return assessment, fmt.Errorf("decode decision payload: %w", err)
	}

	return assessment, nil
}

// EncodeTransaction serializes a transaction into an inbound message body.
// It is the inverse of DecodeTransaction, used by tests and local tooling.
func EncodeTransaction(req models.TransactionRequest) ([]byte, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}

	body := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(body, raw)
	return body, nil
}
