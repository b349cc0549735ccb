package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/greydoubt/cozo/internal/metrics"
)

// MetricsServer serves Prometheus metrics via HTTP
type MetricsServer struct {
	httpServer *http.Server
	metrics    *metrics.Metrics
	logger     *zap.Logger
	dataDir    string
	maxUsage   float64
	sessions   func() int
	stopChan   chan struct{}
}

// MetricsServerConfig holds configuration for the metrics server
type MetricsServerConfig struct {
	Port int
	Path string
	// DataDir is checked for free space by /ready. Empty skips the check.
	DataDir string
	// MaxDiskUsagePercent fails readiness above this usage. Defaults to 90.
	MaxDiskUsagePercent float64
	// Gatherer serves /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer
	// ActiveSessions, when set, is reported by /health and /ready.
	ActiveSessions func() int
}

// NewMetricsServer creates a new metrics server
func NewMetricsServer(cfg *MetricsServerConfig, m *metrics.Metrics, logger *zap.Logger) *MetricsServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	maxUsage := cfg.MaxDiskUsagePercent
	if maxUsage == 0 {
		maxUsage = 90.0
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()

	ms := &MetricsServer{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		metrics:  m,
		logger:   logger,
		dataDir:  cfg.DataDir,
		maxUsage: maxUsage,
		sessions: cfg.ActiveSessions,
		stopChan: make(chan struct{}),
	}

	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", ms.healthHandler)
	mux.HandleFunc("/ready", ms.readyHandler)
	return ms
}

// Handler exposes the server's routes.
func (s *MetricsServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start binds the listener and serves in the background
func (s *MetricsServer) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("metrics server listen failed: %w", err)
	}
	s.logger.Info("Starting metrics server", zap.String("addr", ln.Addr().String()))

	// Start system metrics collector
	go s.collectSystemMetrics()

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully stops the metrics server
func (s *MetricsServer) Stop() error {
	s.logger.Info("Stopping metrics server")

	close(s.stopChan)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}

	return nil
}

// status is the body of /health and /ready.
type status struct {
	Status           string   `json:"status"`
	Reason           string   `json:"reason,omitempty"`
	Timestamp        string   `json:"timestamp"`
	ActiveSessions   *int     `json:"active_sessions,omitempty"`
	DiskUsagePercent *float64 `json:"disk_usage_percent,omitempty"`
}

func (s *MetricsServer) writeStatus(w http.ResponseWriter, code int, st status) {
	st.Timestamp = time.Now().UTC().Format(time.RFC3339)
	if s.sessions != nil {
		n := s.sessions()
		st.ActiveSessions = &n
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(st); err != nil {
		s.logger.Warn("Failed to write status", zap.Error(err))
	}
}

func (s *MetricsServer) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeStatus(w, http.StatusOK, status{Status: "healthy"})
}

// readyHandler fails while the data directory is unreadable or too full.
func (s *MetricsServer) readyHandler(w http.ResponseWriter, _ *http.Request) {
	if s.dataDir == "" {
		s.writeStatus(w, http.StatusOK, status{Status: "ready"})
		return
	}

	used, avail, err := s.getDiskStats()
	if err != nil {
		s.logger.Error("Failed to get disk stats", zap.String("data_dir", s.dataDir), zap.Error(err))
		s.writeStatus(w, http.StatusServiceUnavailable, status{Status: "not_ready", Reason: "disk_stats_unavailable"})
		return
	}
	pct := usagePercent(used, avail)
	if pct > s.maxUsage {
		s.writeStatus(w, http.StatusServiceUnavailable,
			status{Status: "not_ready", Reason: "disk_full", DiskUsagePercent: &pct})
		return
	}
	s.writeStatus(w, http.StatusOK, status{Status: "ready", DiskUsagePercent: &pct})
}

func usagePercent(used, available int64) float64 {
	if used+available == 0 {
		return 0
	}
	return float64(used) / float64(used+available) * 100
}

// collectSystemMetrics periodically collects system-level metrics
func (s *MetricsServer) collectSystemMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	s.updateSystemMetrics()
	for {
		select {
		case <-ticker.C:
			s.updateSystemMetrics()
		case <-s.stopChan:
			return
		}
	}
}

// updateSystemMetrics updates system-level metrics
func (s *MetricsServer) updateSystemMetrics() {
	var diskUsage, diskAvailable int64
	if s.dataDir != "" {
		var err error
		diskUsage, diskAvailable, err = s.getDiskStats()
		if err != nil {
			s.logger.Error("Failed to get disk stats", zap.Error(err))
		}
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	s.metrics.UpdateSystemStats(diskUsage, diskAvailable, int64(memStats.Alloc), runtime.NumGoroutine())
}

// getDiskStats returns disk usage statistics for the data directory
func (s *MetricsServer) getDiskStats() (used int64, available int64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(s.dataDir, &stat); err != nil {
		return 0, 0, fmt.Errorf("failed to stat filesystem: %w", err)
	}

	// Calculate available and used space
	available = int64(stat.Bavail) * int64(stat.Bsize)
	total := int64(stat.Blocks) * int64(stat.Bsize)
	used = total - int64(stat.Bfree)*int64(stat.Bsize)

	return used, available, nil
}
