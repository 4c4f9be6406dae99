package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppMetrics_Exposed(t *testing.T) {
	reg := NewRegistry()
	m := NewAppMetrics(reg)

	m.ExchangeTotal.WithLabelValues("ping", "ok").Inc()
	m.ExchangeTotal.WithLabelValues("ping", "ok").Inc()
	m.SimFramesTotal.WithLabelValues("set_all").Inc()
	m.BreakerState.Set(1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ExchangeTotal.WithLabelValues("ping", "ok")))

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, `relay_exchange_total{cmd="ping",result="ok"} 2`))
	assert.Contains(t, body, "gateway_breaker_state 1")
	assert.Contains(t, body, "go_goroutines")
}
