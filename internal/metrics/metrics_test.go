package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"sentinel-monitor/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveStats(model.Stats{Status: model.StatusCritical})
		m.ObserveCycle("ok")
		m.ObserveSkip()
		m.ObserveFetch("stats", 0.1, true)
		m.ObserveTree(1, 0, 0)
		m.ObserveReview("analyze", "ok")
		m.ObserveChannel("email", "SENT")
		m.ObserveNotification("log", nil)
	})
}

func TestObserveStats(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveStats(model.Stats{Status: model.StatusCritical, Probability: 0.92, TotalAnomalies: 4})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HostStatus.WithLabelValues("CRITICAL")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HostStatus.WithLabelValues("SECURE")))
	assert.Equal(t, 0.92, testutil.ToFloat64(m.AnomalyProbability))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.TotalAnomalies))

	m.ObserveStats(model.Stats{Status: model.StatusSecure})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HostStatus.WithLabelValues("CRITICAL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HostStatus.WithLabelValues("SECURE")))
}

func TestObserveNotification(t *testing.T) {
	m := New(nil)
	m.ObserveNotification("telegram", nil)
	m.ObserveNotification("telegram", errors.New("timeout"))
	m.ObserveNotification("telegram", errors.New("timeout"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsSent.WithLabelValues("telegram", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.NotificationsSent.WithLabelValues("telegram", "error")))
}

func TestExporterServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveSkip()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	srv := httptest.NewServer(NewExporter("0", reg, logger).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "sentinel_poll_skipped_total 1")

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
