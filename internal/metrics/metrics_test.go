package metrics_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linlanniao/odinscheduler/internal/metrics"
)

func TestCounters_Increment(t *testing.T) {
	before := testutil.ToFloat64(metrics.PipelinesSubmitted)
	metrics.PipelinesSubmitted.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.PipelinesSubmitted))

	metrics.ControlRequests.WithLabelValues("PING").Inc()
}

// TestMetricsHandler_ExposesCounters exercises the same promhttp.Handler
// NewServer wires onto /metrics, via httptest rather than binding a real
// OS port.
func TestMetricsHandler_ExposesCounters(t *testing.T) {
	metrics.TasksSubmitted.Inc()

	ts := httptest.NewServer(promhttp.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "odinscheduler_tasks_submitted_total")
}

func TestServer_StartAndStop(t *testing.T) {
	srv := metrics.NewServer("127.0.0.1:0")
	srv.StartAsync()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Stop(ctx))
}
