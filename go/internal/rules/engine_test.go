package rules

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payguard/frauddetect/go/internal/models"
)

func TestEngineEvaluate(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	tests := []struct {
		name      string
		amount    int64
		decision  Decision
		reason    Reason
		riskScore float64
	}{
		{
			name:      "small amount approved",
			amount:    250,
			decision:  DecisionApprove,
			reason:    ReasonLowRiskAmount,
			riskScore: 0.1,
		},
		{
			name:      "mid amount flagged for review",
			amount:    7500,
			decision:  DecisionReview,
			reason:    ReasonAmountRequiresReview,
			riskScore: 0.7,
		},
		{
			name:      "large amount rejected",
			amount:    15000,
			decision:  DecisionReject,
			reason:    ReasonAmountExceedsHardLimit,
			riskScore: 0.95,
		},
		{
			name:      "review threshold is inclusive",
			amount:    5000,
			decision:  DecisionReview,
			reason:    ReasonAmountRequiresReview,
			riskScore: 0.7,
		},
		{
			name:      "deny threshold is inclusive",
			amount:    10000,
			decision:  DecisionReject,
			reason:    ReasonAmountExceedsHardLimit,
			riskScore: 0.95,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.Evaluate(models.TransactionRequest{
				TransactionID: "txn-1",
				Amount:        decimal.NewFromInt(tt.amount),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.decision, result.Decision)
			assert.Equal(t, tt.reason, result.Reason)
			assert.InDelta(t, tt.riskScore, result.RiskScore, 1e-9)
		})
	}
}

func TestEngineIsDeterministic(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	req := models.TransactionRequest{TransactionID: "txn-1", Amount: decimal.NewFromInt(9999)}

	first, err := engine.Evaluate(req)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		result, err := engine.Evaluate(req)
		require.NoError(t, err)
		assert.Equal(t, first, result)
	}
}

func TestEngineWithoutDefaultRule(t *testing.T) {
	engine := &Engine{rules: []Rule{
		amountDenyRule{threshold: decimal.NewFromInt(10000)},
	}}

	_, err := engine.Evaluate(models.TransactionRequest{Amount: decimal.NewFromInt(10)})
	require.ErrorIs(t, err, ErrNoDecision)
}
