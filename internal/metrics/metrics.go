// Package metrics exposes Prometheus counters for the sync engine.
// Serving is opt-in; the collectors are cheap no-ops until scraped.
package metrics

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "drift_fetch_attempts_total", Help: "Range fetch attempts by outcome and HTTP code"},
		[]string{"status", "code"},
	)
	FetchRetries      = prometheus.NewCounter(prometheus.CounterOpts{Name: "drift_fetch_retries_total", Help: "Total range fetch retries"})
	BytesTransferred  = prometheus.NewCounter(prometheus.CounterOpts{Name: "drift_bytes_transferred_total", Help: "Total bytes written to staging files"})
	TransfersInflight = prometheus.NewGauge(prometheus.GaugeOpts{Name: "drift_transfers_inflight", Help: "File sync sessions currently running"})
	FilesSynced       = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "drift_files_synced_total", Help: "Files processed by result"},
		[]string{"result"},
	)
)

var registerOnce sync.Once

func register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(FetchAttempts, FetchRetries, BytesTransferred, TransfersInflight, FilesSynced)
	})
}

// Serve exposes /metrics on addr in a background goroutine. A server
// error is logged, never fatal: metrics are an observation aid, not part
// of the sync. Empty addr disables serving.
func Serve(addr string) {
	if addr == "" {
		return
	}
	register()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()
}
