// Package httpapi serves the synchronous evaluation entry point. It invokes
// the rule engine directly; no queue or outbox is involved.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/payguard/frauddetect/go/internal/models"
	"github.com/payguard/frauddetect/go/internal/rules"
)

type evaluateRequest struct {
	TransactionID string          `json:"transaction_id" binding:"required"`
	AccountID     string          `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Merchant      string          `json:"merchant"`
	Currency      string          `json:"currency"`
	Timestamp     time.Time       `json:"timestamp"`
}

type evaluateResponse struct {
	TransactionID string  `json:"transaction_id"`
	Decision      string  `json:"decision"`
	Reason        string  `json:"reason"`
	RiskScore     float64 `json:"risk_score"`
}

// Handler serves the evaluation endpoint.
type Handler struct {
	engine *rules.Engine
}

// NewHandler creates a Handler around the rule engine.
func NewHandler(engine *rules.Engine) *Handler {
	return &Handler{engine: engine}
}

// Evaluate handles POST /v1/evaluations.
func (h *Handler) Evaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.engine.Evaluate(models.TransactionRequest{
		TransactionID: req.TransactionID,
		AccountID:     req.AccountID,
		Amount:        req.Amount,
		Merchant:      req.Merchant,
		Currency:      req.Currency,
		Timestamp:     req.Timestamp,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, evaluateResponse{
		TransactionID: req.TransactionID,
		Decision:      string(result.Decision),
		Reason:        string(result.Reason),
		RiskScore:     result.RiskScore,
	})
}

// NewRouter builds the HTTP router with the evaluation endpoint, health
// check and metrics exposition.
func NewRouter(engine *rules.Engine, gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	handler := NewHandler(engine)
	router.POST("/v1/evaluations", handler.Evaluate)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return router
}
