// ABOUTME: Prometheus metrics for sync runs, merge outcomes, and source failures.
// ABOUTME: Exposes /metrics and /health on an optional listener.
package metrics

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SyncRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "postsync_sync_runs_total",
		Help: "Total sync runs",
	})
	SyncFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "postsync_sync_failures_total",
		Help: "Sync runs that ended in an unrecoverable error",
	})
	SyncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "postsync_sync_duration_seconds",
		Help:    "Sync run duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	PostsAdded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "postsync_posts_added_total",
		Help: "Posts newly added to the store",
	})
	PostsEnriched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "postsync_posts_enriched_total",
		Help: "Stored posts whose identity was filled in by a later candidate",
	})
	CandidatesRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "postsync_candidates_rejected_total",
		Help: "Candidates dropped by normalization",
	})
	ArticlesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "postsync_articles_written_total",
		Help: "Markdown articles created",
	})
	FetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "postsync_fetch_errors_total",
		Help: "Failed source fetches",
	}, []string{"source"})
	StorePosts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "postsync_store_posts",
		Help: "Posts currently in the store",
	})
)

func init() {
	prometheus.MustRegister(SyncRuns, SyncFailures, SyncDuration, PostsAdded, PostsEnriched,
		CandidatesRejected, ArticlesWritten, FetchErrors, StorePosts)
}

// Handler returns the mux serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return mux
}

// StartServer serves metrics on addr (e.g. ":9090") in the background. An empty addr is a no-op
// and returns nil.
func StartServer(addr string, logger *slog.Logger) (*http.Server, error) {
	if addr == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Addr: ln.Addr().String(), Handler: Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", srv.Addr)
	return srv, nil
}

// ObserveSyncDuration records a run duration.
func ObserveSyncDuration(start time.Time) {
	SyncDuration.Observe(time.Since(start).Seconds())
}

// IncFetchError increments the fetch error counter for a source.
func IncFetchError(source string) { FetchErrors.WithLabelValues(source).Inc() }
