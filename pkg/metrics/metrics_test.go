package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedger(reg)

	m.Committed("adjustment", "create")
	m.Committed("adjustment", "create")
	m.Rejected("transfer", "insufficient_stock")
	m.Retried("receipt")
	m.Drifted(3, false)
	m.Drifted(0, true)
	m.ObserveLockWait(5 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commits.WithLabelValues("adjustment", "create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues("transfer", "insufficient_stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries.WithLabelValues("receipt")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.drift.WithLabelValues("false")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.lockWait))
}

func TestLedger_NilIsNoop(t *testing.T) {
	var m *Ledger
	assert.NotPanics(t, func() {
		m.Committed("receipt", "create")
		m.Rejected("receipt", "x")
		m.ObserveLockWait(time.Second)
		m.Retried("receipt")
		m.Drifted(1, true)
	})
}

func TestRegistry_MiddlewareAndHandler(t *testing.T) {
	reg := NewRegistry()

	r := chi.NewRouter()
	r.Use(reg.Middleware)
	r.Get("/balances/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", reg.Handler())

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/balances/42", nil))
	require.Equal(t, http.StatusTeapot, rr.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.requestsTotal.WithLabelValues("/balances/{id}", "418")))

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "syncstock_http_requests_total"))
}
