package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecorders(t *testing.T) {
	var tests = []struct {
		name   string
		record func(m *Metrics)
		assert func(t *testing.T, m *Metrics)
	}{
		{
			name: "handshakes are split by result",
			record: func(m *Metrics) {
				m.RecordHandshake(DirectionOutbound, nil)
				m.RecordHandshake(DirectionOutbound, errors.New("boom"))
				m.RecordHandshake(DirectionInbound, nil)
			},
			assert: func(t *testing.T, m *Metrics) {
				assert.Equal(t, 1.0, testutil.ToFloat64(m.Handshakes.WithLabelValues(DirectionOutbound, "ok")))
				assert.Equal(t, 1.0, testutil.ToFloat64(m.Handshakes.WithLabelValues(DirectionOutbound, "error")))
				assert.Equal(t, 1.0, testutil.ToFloat64(m.Handshakes.WithLabelValues(DirectionInbound, "ok")))
			},
		},
		{
			name: "evictions by reason",
			record: func(m *Metrics) {
				m.RecordEviction(ReasonStale)
				m.RecordEviction(ReasonStale)
				m.RecordEviction(ReasonSendFailed)
			},
			assert: func(t *testing.T, m *Metrics) {
				assert.Equal(t, 2.0, testutil.ToFloat64(m.Evictions.WithLabelValues(ReasonStale)))
				assert.Equal(t, 1.0, testutil.ToFloat64(m.Evictions.WithLabelValues(ReasonSendFailed)))
			},
		},
		{
			name: "broadcast adds failures",
			record: func(m *Metrics) {
				m.RecordBroadcast(2, time.Millisecond)
				m.RecordBroadcast(0, time.Millisecond)
			},
			assert: func(t *testing.T, m *Metrics) {
				assert.Equal(t, 2.0, testutil.ToFloat64(m.SendFailures))
			},
		},
		{
			name: "peer gauges",
			record: func(m *Metrics) {
				m.UpdatePeers(3, 5)
			},
			assert: func(t *testing.T, m *Metrics) {
				assert.Equal(t, 3.0, testutil.ToFloat64(m.ConnectedPeers))
				assert.Equal(t, 5.0, testutil.ToFloat64(m.DiscoveredPeers))
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			m := NewMetrics("test", prometheus.NewRegistry())
			tt.record(m)
			tt.assert(t, m)
		})
	}
}

func TestServerRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("peernet", reg)
	m.UpdatePeers(1, 2)

	srv := httptest.NewServer(NewServer("", reg).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.Contains(string(body), "peernet_connected_peers 1"))
	assert.True(t, strings.Contains(string(body), "peernet_discovered_peers 2"))
}
