package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New("test", reg), reg
}

func TestNew(t *testing.T) {
	t.Run("separate registries", func(t *testing.T) {
		a, _ := newTestMetrics(t)
		b, _ := newTestMetrics(t)
		assert.NotSame(t, a.HTTPRequestsTotal, b.HTTPRequestsTotal)
	})

	t.Run("default namespace", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := New("", reg)
		m.RecordDecision("allowed")

		families, err := reg.Gather()
		require.NoError(t, err)
		names := make([]string, 0, len(families))
		for _, f := range families {
			names = append(names, f.GetName())
		}
		assert.Contains(t, names, "chatledger_ledger_decisions_total")
	})
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordHTTPRequest("GET", "/v1/accounts/:id", 200, 100*time.Millisecond)
	m.RecordHTTPRequest("GET", "/v1/accounts/:id", 200, 50*time.Millisecond)
	m.RecordHTTPRequest("POST", "/webhooks/card", 400, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/v1/accounts/:id", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/webhooks/card", "4xx")))
}

func TestMetrics_Ledger(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordDecision("allowed")
	m.RecordDecision("quota_exhausted")
	m.RecordDecision("allowed")
	m.RecordInteraction(true)
	m.RecordInteraction(false)
	m.RecordInteraction(false)
	m.RecordPayment("card", "succeeded")
	m.RecordActivation("admin")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("quota_exhausted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.InteractionsTotal.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentsTotal.WithLabelValues("card", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActivationsTotal.WithLabelValues("admin")))
}

func TestMetrics_Upstream(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordUpstream("llm", nil, time.Second)
	m.RecordUpstream("llm", errors.New("boom"), time.Second)
	m.SetBreakerState("llm", 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamRequestsTotal.WithLabelValues("llm", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamRequestsTotal.WithLabelValues("llm", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("llm")))
}

func TestStatusCodeToString(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{201, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{500, "5xx"},
		{100, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCodeToString(tt.code))
	}
}
