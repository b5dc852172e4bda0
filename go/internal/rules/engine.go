package rules

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/payguard/frauddetect/go/internal/models"
)

// ErrNoDecision indicates the rule chain completed without producing a
// decision. The chain always ends with a terminal default rule, so hitting
// this is a programming error, not a runtime condition.
var ErrNoDecision = errors.New("rules: no rule produced a decision")

// Config holds the tunable thresholds for the built-in rule chain.
type Config struct {
	AmountReviewThreshold decimal.Decimal
	AmountDenyThreshold   decimal.Decimal
	ApproveRiskScore      float64
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		AmountReviewThreshold: decimal.NewFromInt(5000),
		AmountDenyThreshold:   decimal.NewFromInt(10000),
		ApproveRiskScore:      0.1,
	}
}

// Engine evaluates transactions against a statically ordered rule chain.
// Evaluation walks the chain in priority order and returns the first match.
type Engine struct {
	rules []Rule
}

// NewEngine builds an engine with the deny, review and default-approve rules
// in priority order.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		rules: []Rule{
			amountDenyRule{threshold: cfg.AmountDenyThreshold},
			amountReviewRule{threshold: cfg.AmountReviewThreshold},
			defaultApproveRule{riskScore: cfg.ApproveRiskScore},
		},
	}
}

// Evaluate returns the decision for a transaction. It is pure and
// deterministic; the error path is unreachable with a correctly constructed
// chain.
func (e *Engine) Evaluate(req models.TransactionRequest) (RuleResult, error) {
	for _, rule := range e.rules {
		if result, ok := rule.Apply(req); ok {
			return result, nil
		}
	}
	return RuleResult{}, ErrNoDecision
}
