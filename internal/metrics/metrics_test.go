package metrics_test

import (
	"testing"

	"github.com/UnknownOlympus/janus/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()

	m := metrics.NewMetrics(reg)
	m.LoginAttempts.WithLabelValues("telegram", metrics.ResultSuccess).Inc()
	m.CodesIssued.Inc()

	assert.InDelta(t, 1, testutil.ToFloat64(m.LoginAttempts.WithLabelValues("telegram", metrics.ResultSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CodesIssued), 0)

	// registering twice on the same registry must panic
	require.Panics(t, func() { metrics.NewMetrics(reg) })
}
