package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payguard/frauddetect/go/internal/rules"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return NewRouter(rules.NewEngine(rules.DefaultConfig()), prometheus.NewRegistry())
}

func TestEvaluateEndpoint(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name     string
		amount   string
		decision string
		reason   string
	}{
		{name: "approve", amount: "250", decision: "APPROVE", reason: "LOW_RISK_AMOUNT"},
		{name: "review", amount: "7500", decision: "REVIEW", reason: "AMOUNT_REQUIRES_REVIEW"},
		{name: "reject", amount: "15000", decision: "REJECT", reason: "AMOUNT_EXCEEDS_HARD_LIMIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"transaction_id":"txn-1","account_id":"acct-1","amount":` + tt.amount + `}`
			req := httptest.NewRequest(http.MethodPost, "/v1/evaluations", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code)

			var resp evaluateResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "txn-1", resp.TransactionID)
			assert.Equal(t, tt.decision, resp.Decision)
			assert.Equal(t, tt.reason, resp.Reason)
		})
	}
}

func TestEvaluateRejectsBadRequests(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing transaction id", body: `{"amount":100}`},
		{name: "not json", body: `not json at all`},
		{name: "empty body", body: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/evaluations", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "frauddetect_test_total"})
	registry.MustRegister(counter)
	counter.Inc()

	router := NewRouter(rules.NewEngine(rules.DefaultConfig()), registry)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "frauddetect_test_total 1")
}
