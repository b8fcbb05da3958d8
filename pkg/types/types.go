package types

import (
	"time"
)

// CacheStats tracks cache performance statistics. Hits, Misses and
// Evictions are cumulative for the lifetime of the store; Size and
// Utilization reflect the current contents.
type CacheStats struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Entries     int     `json:"entries"`
	Size        int64   `json:"size"`
	Capacity    int64   `json:"capacity"`
	HitRate     float64 `json:"hit_rate"`
	Utilization float64 `json:"utilization"`
}

// OperationStats tracks timing aggregates for a single named operation.
type OperationStats struct {
	Count         int64         `json:"count"`
	Errors        int64         `json:"errors"`
	CacheHits     int64         `json:"cache_hits"`
	TotalDuration time.Duration `json:"total_duration"`
	MinDuration   time.Duration `json:"min_duration"`
	MaxDuration   time.Duration `json:"max_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
	SlowCount     int64         `json:"slow_count"`
	LastOperation time.Time     `json:"last_operation"`
}

// PoolStats tracks buffer pool utilization.
type PoolStats struct {
	Buffers     int     `json:"buffers"`
	InUse       int     `json:"in_use"`
	TotalBytes  int64   `json:"total_bytes"`
	InUseBytes  int64   `json:"in_use_bytes"`
	Utilization float64 `json:"utilization"`
}

// BatchStats tracks batch coordinator throughput.
type BatchStats struct {
	Enqueued     int64   `json:"enqueued"`
	Flushes      int64   `json:"flushes"`
	Batched      int64   `json:"batched"`
	Errors       int64   `json:"errors"`
	AvgBatchSize float64 `json:"avg_batch_size"`
}

// SlowOperation is emitted when an operation exceeds the configured
// slow threshold.
type SlowOperation struct {
	Operation string        `json:"operation"`
	Duration  time.Duration `json:"duration"`
	Threshold time.Duration `json:"threshold"`
	At        time.Time     `json:"at"`
}

// MetricsSnapshot is an immutable point-in-time view of all recorded
// metrics. Maps are copies; mutating a snapshot has no effect on the
// recorder.
type MetricsSnapshot struct {
	Cache       CacheStats                `json:"cache"`
	Operations  map[string]OperationStats `json:"operations"`
	Pool        PoolStats                 `json:"pool"`
	Batch       BatchStats                `json:"batch"`
	CollectedAt time.Time                 `json:"collected_at"`
}

// PerformanceReport is a snapshot packaged for external dashboards and
// log sinks.
type PerformanceReport struct {
	ID          string          `json:"id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Uptime      time.Duration   `json:"uptime"`
	Snapshot    MetricsSnapshot `json:"snapshot"`
}
