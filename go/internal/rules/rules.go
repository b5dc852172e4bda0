package rules

import (
	"github.com/shopspring/decimal"

	"github.com/payguard/frauddetect/go/internal/models"
)

// Decision is the outcome of evaluating a transaction.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReview  Decision = "REVIEW"
	DecisionReject  Decision = "REJECT"
)

// Reason identifies which rule produced a decision.
type Reason string

const (
	ReasonAmountExceedsHardLimit Reason = "AMOUNT_EXCEEDS_HARD_LIMIT"
	ReasonAmountRequiresReview   Reason = "AMOUNT_REQUIRES_REVIEW"
	ReasonLowRiskAmount          Reason = "LOW_RISK_AMOUNT"
)

// RuleResult is the decision for a transaction together with the rule reason
// and a risk score in [0, 1].
type RuleResult struct {
	Decision  Decision
	Reason    Reason
	RiskScore float64
}

// Rule inspects a transaction and either returns a result or passes.
type Rule interface {
	Apply(req models.TransactionRequest) (RuleResult, bool)
}

// amountDenyRule rejects transactions at or above the hard limit.
type amountDenyRule struct {
	threshold decimal.Decimal
}

func (r amountDenyRule) Apply(req models.TransactionRequest) (RuleResult, bool) {
	if req.Amount.GreaterThanOrEqual(r.threshold) {
		return RuleResult{
			Decision:  DecisionReject,
			Reason:    ReasonAmountExceedsHardLimit,
			RiskScore: 0.95,
		}, true
	}
	return RuleResult{}, false
}

// amountReviewRule flags transactions at or above the review threshold.
type amountReviewRule struct {
	threshold decimal.Decimal
}

func (r amountReviewRule) Apply(req models.TransactionRequest) (RuleResult, bool) {
	if req.Amount.GreaterThanOrEqual(r.threshold) {
		return RuleResult{
			Decision:  DecisionReview,
			Reason:    ReasonAmountRequiresReview,
			RiskScore: 0.7,
		}, true
	}
	return RuleResult{}, false
}

// defaultApproveRule always matches. It terminates every rule chain.
type defaultApproveRule struct {
	riskScore float64
}

func (r defaultApproveRule) Apply(req models.TransactionRequest) (RuleResult, bool) {
	return RuleResult{
		Decision:  DecisionApprove,
		Reason:    ReasonLowRiskAmount,
		RiskScore: r.riskScore,
	}, true
}
