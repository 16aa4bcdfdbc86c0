package metrics_test

import (
	"testing"

	"github.com/SafeMPC/steamguard/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	m.ObserveRequest("GET", 200)
	m.ObserveRequest("GET", 200)
	m.ObserveRequest("POST", 429)
	m.ObserveLogin("success")
	m.ObserveConfirmation("allow", "success")

	count, err := testutil.GatherAndCount(reg, "steamguard_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = testutil.GatherAndCount(reg, "steamguard_logins_total", "steamguard_confirmations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMetricsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.New(reg)
	require.NoError(t, err)

	_, err = metrics.New(reg)
	assert.Error(t, err)
}

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.ObserveRequest("GET", 200)
		m.ObserveLogin("failure")
		m.ObserveConfirmation("cancel", "rejected")
	})
}
