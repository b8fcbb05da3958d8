// Package metrics records per-operation timing aggregates, detects
// slow operations, and exports everything through snapshots and an
// optional Prometheus endpoint.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/optilayer/optilayer/pkg/types"
)

// Config represents metrics recorder configuration.
type Config struct {
	SlowThreshold      time.Duration `yaml:"slow_threshold"`
	MonitoringInterval time.Duration `yaml:"monitoring_interval"`
	MetricsRetention   time.Duration `yaml:"metrics_retention"`

	// Prometheus endpoint settings.
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`

	Logger *slog.Logger `yaml:"-"`
}

type sample struct {
	duration time.Duration
	at       time.Time
}

type operationRecord struct {
	stats   types.OperationStats
	samples []sample
}

// Recorder tracks operation timings. Record never blocks on a slow
// consumer: slow-operation notifications go to a buffered channel and
// are dropped when it is full.
type Recorder struct {
	mu         sync.RWMutex
	operations map[string]*operationRecord

	slowThreshold time.Duration
	interval      time.Duration
	retention     time.Duration

	slowCh      chan types.SlowOperation
	slowLimiter *rate.Limiter

	// Sources for the gauge sweep and snapshots.
	cacheStats func() types.CacheStats
	poolStats  func() types.PoolStats
	batchStats func() types.BatchStats

	registry          *prometheus.Registry
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	cacheCounter      *prometheus.CounterVec
	cacheSizeGauge    prometheus.Gauge
	poolInUseGauge    prometheus.Gauge
	errorCounter      *prometheus.CounterVec

	enabled   bool
	port      int
	path      string
	namespace string
	server    *http.Server

	startedAt time.Time
	logger    *slog.Logger
}

// NewRecorder creates a metrics recorder.
func NewRecorder(config *Config) (*Recorder, error) {
	if config == nil {
		config = &Config{}
	}
	if config.SlowThreshold <= 0 {
		config.SlowThreshold = time.Second
	}
	if config.MonitoringInterval <= 0 {
		config.MonitoringInterval = 30 * time.Second
	}
	if config.MetricsRetention <= 0 {
		config.MetricsRetention = time.Hour
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if config.Namespace == "" {
		config.Namespace = "optilayer"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	r := &Recorder{
		operations:    make(map[string]*operationRecord),
		slowThreshold: config.SlowThreshold,
		interval:      config.MonitoringInterval,
		retention:     config.MetricsRetention,
		slowCh:        make(chan types.SlowOperation, 64),
		slowLimiter:   rate.NewLimiter(rate.Every(time.Second), 10),
		enabled:       config.Enabled,
		port:          config.Port,
		path:          config.Path,
		namespace:     config.Namespace,
		startedAt:     time.Now(),
		logger:        config.Logger.With("component", "metrics"),
	}

	r.registry = prometheus.NewRegistry()
	if err := r.initPrometheus(); err != nil {
		return nil, err
	}

	return r, nil
}

// SetSources wires the cache, pool and batch stat providers consulted
// by snapshots and the periodic gauge sweep. Nil providers are allowed.
func (r *Recorder) SetSources(cache func() types.CacheStats, pool func() types.PoolStats, batch func() types.BatchStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cacheStats = cache
	r.poolStats = pool
	r.batchStats = batch
}

// Start launches the monitoring sweep and, when enabled, the
// Prometheus HTTP endpoint. It returns once both are running.
func (r *Recorder) Start(ctx context.Context) error {
	go r.monitorLoop(ctx)

	if !r.enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(r.path, promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	r.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", r.port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("metrics server failed", "error", err)
		}
	}()

	return nil
}

// Stop shuts down the Prometheus endpoint.
func (r *Recorder) Stop(ctx context.Context) error {
	if r.server != nil {
		return r.server.Shutdown(ctx)
	}
	return nil
}

// Record registers one completed operation call. Calls slower than the
// threshold increment the slow count and emit a notification.
func (r *Recorder) Record(operation string, duration time.Duration, cacheHit bool, opErr error) {
	now := time.Now()

	r.mu.Lock()
	rec := r.operations[operation]
	if rec == nil {
		rec = &operationRecord{stats: types.OperationStats{MinDuration: duration, MaxDuration: duration}}
		r.operations[operation] = rec
	}

	s := &rec.stats
	s.Count++
	s.TotalDuration += duration
	if duration < s.MinDuration {
		s.MinDuration = duration
	}
	if duration > s.MaxDuration {
		s.MaxDuration = duration
	}
	s.AvgDuration = time.Duration(int64(s.TotalDuration) / s.Count)
	s.LastOperation = now
	if cacheHit {
		s.CacheHits++
	}
	if opErr != nil {
		s.Errors++
	}

	slow := duration > r.slowThreshold
	if slow {
		s.SlowCount++
	}

	rec.samples = append(rec.samples, sample{duration: duration, at: now})
	rec.samples = pruneSamples(rec.samples, now.Add(-r.retention))
	r.mu.Unlock()

	status := "success"
	if opErr != nil {
		status = "error"
	}
	source := "execute"
	if cacheHit {
		source = "cache"
	}
	r.operationCounter.WithLabelValues(operation, status, source).Inc()
	r.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if cacheHit {
		r.cacheCounter.WithLabelValues("hit").Inc()
	}

	if slow {
		r.notifySlow(operation, duration, now)
	}
}

// RecordCacheMiss counts a cache miss for the Prometheus hit ratio.
func (r *Recorder) RecordCacheMiss() {
	r.cacheCounter.WithLabelValues("miss").Inc()
}

// RecordError counts an auxiliary failure, such as a failed
// write-through, that did not fail the caller's request.
func (r *Recorder) RecordError(operation, kind string) {
	r.errorCounter.WithLabelValues(operation, kind).Inc()
}

// SlowOperations exposes the slow-operation notification channel.
func (r *Recorder) SlowOperations() <-chan types.SlowOperation {
	return r.slowCh
}

// Snapshot returns an immutable copy of all recorded metrics.
func (r *Recorder) Snapshot() types.MetricsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := types.MetricsSnapshot{
		Operations:  make(map[string]types.OperationStats, len(r.operations)),
		CollectedAt: time.Now(),
	}
	for name, rec := range r.operations {
		snap.Operations[name] = rec.stats
	}
	if r.cacheStats != nil {
		snap.Cache = r.cacheStats()
	}
	if r.poolStats != nil {
		snap.Pool = r.poolStats()
	}
	if r.batchStats != nil {
		snap.Batch = r.batchStats()
	}
	return snap
}

// notifySlow emits a slow-operation event without ever blocking the
// recording path. Events are rate-limited and dropped when the
// consumer lags.
func (r *Recorder) notifySlow(operation string, duration time.Duration, at time.Time) {
	if !r.slowLimiter.Allow() {
		return
	}
	event := types.SlowOperation{
		Operation: operation,
		Duration:  duration,
		Threshold: r.slowThreshold,
		At:        at,
	}
	select {
	case r.slowCh <- event:
	default:
		r.logger.Debug("slow-operation event dropped", "operation", operation)
	}
}

func (r *Recorder) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep prunes timing samples past retention and refreshes gauges.
func (r *Recorder) sweep() {
	cutoff := time.Now().Add(-r.retention)

	r.mu.Lock()
	for _, rec := range r.operations {
		rec.samples = pruneSamples(rec.samples, cutoff)
	}
	cacheStats := r.cacheStats
	poolStats := r.poolStats
	r.mu.Unlock()

	if cacheStats != nil {
		r.cacheSizeGauge.Set(float64(cacheStats().Size))
	}
	if poolStats != nil {
		r.poolInUseGauge.Set(float64(poolStats().InUse))
	}
}

func pruneSamples(samples []sample, cutoff time.Time) []sample {
	idx := 0
	for idx < len(samples) && samples[idx].at.Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return samples
	}
	return append(samples[:0:0], samples[idx:]...)
}

func (r *Recorder) sampleCount(operation string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec := r.operations[operation]; rec != nil {
		return len(rec.samples)
	}
	return 0
}

func (r *Recorder) initPrometheus() error {
	r.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: r.namespace,
			Name:      "operations_total",
			Help:      "Total number of optimized operations",
		},
		[]string{"operation", "status", "source"},
	)
	r.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: r.namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of optimized operations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"operation"},
	)
	r.cacheCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: r.namespace,
			Name:      "cache_requests_total",
			Help:      "Total number of cache lookups",
		},
		[]string{"type"},
	)
	r.cacheSizeGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: r.namespace,
			Name:      "cache_size_bytes",
			Help:      "Current cache size in bytes",
		},
	)
	r.poolInUseGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: r.namespace,
			Name:      "pool_buffers_in_use",
			Help:      "Number of pool buffers currently acquired",
		},
	)
	r.errorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: r.namespace,
			Name:      "errors_total",
			Help:      "Total number of optimizer-internal failures",
		},
		[]string{"operation", "type"},
	)

	collectors := []prometheus.Collector{
		r.operationCounter,
		r.operationDuration,
		r.cacheCounter,
		r.cacheSizeGauge,
		r.poolInUseGauge,
		r.errorCounter,
	}
	for _, c := range collectors {
		if err := r.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}
