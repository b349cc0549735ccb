package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/greydoubt/cozo/internal/metrics"
)

func newTestServer(t *testing.T, cfg *MetricsServerConfig) (*MetricsServer, *metrics.Metrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics("test", reg)
	cfg.Gatherer = reg
	return NewMetricsServer(cfg, m, zap.NewNop()), m
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestMetricsEndpoint(t *testing.T) {
	s, m := newTestServer(t, &MetricsServerConfig{Path: "/prom"})
	m.RecordDefinition("Node", true)

	rec := get(t, s.Handler(), "/prom")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cozo_catalog_definitions_total")

	rec = get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	tests := []struct {
		name       string
		cfg        *MetricsServerConfig
		path       string
		wantStatus int
		wantBody   string
	}{
		{"health", &MetricsServerConfig{}, "/health", http.StatusOK, `"status":"healthy"`},
		{"ready without data dir", &MetricsServerConfig{}, "/ready", http.StatusOK, `"status":"ready"`},
		{"ready with data dir", &MetricsServerConfig{DataDir: t.TempDir(), MaxDiskUsagePercent: 100.1}, "/ready",
			http.StatusOK, `"disk_usage_percent"`},
		{"missing data dir", &MetricsServerConfig{DataDir: "/nonexistent/cozo"}, "/ready",
			http.StatusServiceUnavailable, "disk_stats_unavailable"},
		{"disk over limit", &MetricsServerConfig{DataDir: t.TempDir(), MaxDiskUsagePercent: -1}, "/ready",
			http.StatusServiceUnavailable, "disk_full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, tt.cfg)
			rec := get(t, s.Handler(), tt.path)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.True(t, strings.Contains(rec.Body.String(), tt.wantBody), rec.Body.String())
		})
	}
}

func TestStatusReportsSessions(t *testing.T) {
	open := 3
	s, _ := newTestServer(t, &MetricsServerConfig{ActiveSessions: func() int { return open }})

	rec := get(t, s.Handler(), "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Status         string `json:"status"`
		ActiveSessions int    `json:"active_sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, 3, body.ActiveSessions)

	rec = get(t, s.Handler(), "/ready")
	assert.NotContains(t, rec.Body.String(), "disk_usage_percent")
}

func TestUsagePercent(t *testing.T) {
	assert.Equal(t, 0.0, usagePercent(0, 0))
	assert.Equal(t, 25.0, usagePercent(1, 3))
}

func TestStartStop(t *testing.T) {
	s, _ := newTestServer(t, &MetricsServerConfig{Port: 0})
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())
}
