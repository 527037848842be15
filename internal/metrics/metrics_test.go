package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultLabel(t *testing.T) {
	assert.Equal(t, "success", Result(true))
	assert.Equal(t, "failure", Result(false))
}

func TestCountersExposed(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("success"))
	RequestsTotal.WithLabelValues(Result(true)).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("success")))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "sockbench_requests_total")
}
