package observability

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/cognigraph-backend/internal/platform/envutil"
	"github.com/yungbote/cognigraph-backend/internal/platform/logger"
)

// Metrics is the process-wide Prometheus registry. All methods are nil-safe so
// callers never branch on METRICS_ENABLED.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge
	apiReqError *Counter

	deriveRuns     *CounterVec
	deriveLatency  *HistogramVec
	derivedItems   *HistogramVec
	cacheLookups   *CounterVec
	projections    *CounterVec
	classifyTotal  *CounterVec
	patchOps       *CounterVec
	aggregateOps   *HistogramVec
	aggregateConfl *CounterVec
	aggregateRetry *CounterVec

	pgStats   *GaugeVec
	redisUp   *Gauge
	redisPing *Gauge

	collectors []interface{ WritePrometheus(io.Writer) error }
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	return envutil.Seconds("METRICS_SCRAPE_INTERVAL_SECONDS", 15*time.Second)
}

// Init returns the shared registry, or nil when METRICS_ENABLED is off.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

// NewMetrics builds an unshared registry; tests use it directly.
func NewMetrics() *Metrics {
	m := &Metrics{
		apiRequests: NewCounterVec("cdg_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"cdg_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		),
		apiInflight: NewGauge("cdg_api_inflight_requests", "In-flight API requests."),
		apiReqError: NewCounter("cdg_api_requests_error_total", "API requests with 5xx status."),
		deriveRuns:  NewCounterVec("cdg_derive_runs_total", "Derivation runs by trigger/status.", []string{"trigger", "status"}),
		deriveLatency: NewHistogramVec(
			"cdg_derive_duration_seconds",
			"Derivation latency in seconds by trigger.",
			[]string{"trigger"},
			[]float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		),
		derivedItems: NewHistogramVec(
			"cdg_derived_items",
			"Derived item counts per run by kind.",
			[]string{"kind"},
			[]float64{0, 1, 5, 10, 25, 50, 100, 150, 220, 240},
		),
		cacheLookups:  NewCounterVec("cdg_derived_cache_lookups_total", "Derived-state cache lookups by backend/result.", []string{"backend", "result"}),
		projections:   NewCounterVec("cdg_graph_projections_total", "Graph store projections by status.", []string{"status"}),
		classifyTotal: NewCounterVec("cdg_constraints_classified_total", "Classified constraints by family/hard.", []string{"family", "hard"}),
		patchOps:      NewCounterVec("cdg_patch_ops_total", "Applied patch operations by op.", []string{"op"}),
		aggregateOps: NewHistogramVec(
			"cdg_aggregate_operation_duration_seconds",
			"Aggregate write duration in seconds by operation/status.",
			[]string{"operation", "status"},
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		),
		aggregateConfl: NewCounterVec("cdg_aggregate_conflicts_total", "Aggregate optimistic-lock conflicts by operation.", []string{"operation"}),
		aggregateRetry: NewCounterVec("cdg_aggregate_retries_total", "Aggregate retryable failures by operation.", []string{"operation"}),
		pgStats:        NewGaugeVec("cdg_db_pool", "SQL connection pool stats.", []string{"stat"}),
		redisUp:        NewGauge("cdg_redis_up", "Redis reachability (1 up, 0 down)."),
		redisPing:      NewGauge("cdg_redis_ping_seconds", "Last Redis ping latency in seconds."),
	}
	m.collectors = []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight, m.apiReqError,
		m.deriveRuns, m.deriveLatency, m.derivedItems,
		m.cacheLookups, m.projections, m.classifyTotal, m.patchOps,
		m.aggregateOps, m.aggregateConfl, m.aggregateRetry,
		m.pgStats, m.redisUp, m.redisPing,
	}
	return m
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed && log != nil {
			log.Error("metrics server failed", "error", err, "addr", addr)
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range m.collectors {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
	if strings.HasPrefix(status, "5") {
		m.apiReqError.Inc()
	}
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// ObserveDerive records one derivation run and the sizes it produced.
func (m *Metrics) ObserveDerive(trigger, status string, dur time.Duration, motifs, links, contexts int) {
	if m == nil {
		return
	}
	m.deriveRuns.Inc(trigger, status)
	m.deriveLatency.Observe(dur.Seconds(), trigger)
	if status != "ok" {
		return
	}
	m.derivedItems.Observe(float64(motifs), "motifs")
	m.derivedItems.Observe(float64(links), "motif_links")
	m.derivedItems.Observe(float64(contexts), "contexts")
}

func (m *Metrics) IncCacheLookup(backend string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Inc(backend, result)
}

func (m *Metrics) IncProjection(status string) {
	if m == nil {
		return
	}
	m.projections.Inc(status)
}

func (m *Metrics) IncConstraintClassified(family string, hard bool) {
	if m == nil {
		return
	}
	m.classifyTotal.Inc(family, strconv.FormatBool(hard))
}

func (m *Metrics) IncPatchOp(op string) {
	if m == nil {
		return
	}
	m.patchOps.Inc(op)
}

func (m *Metrics) ObserveAggregateOperation(name, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aggregateOps.Observe(dur.Seconds(), name, status)
}

func (m *Metrics) IncAggregateConflict(name string) {
	if m == nil {
		return
	}
	m.aggregateConfl.Inc(name)
}

func (m *Metrics) IncAggregateRetry(name string) {
	if m == nil {
		return
	}
	m.aggregateRetry.Inc(name)
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
				m.pgStats.Set(float64(stats.InUse), "in_use")
				m.pgStats.Set(float64(stats.Idle), "idle")
				m.pgStats.Set(float64(stats.WaitCount), "wait_count")
				m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
			}
		}
	}()
}

// StartRedisCollector pings with the caller's client; the client is not closed here.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}
