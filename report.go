package optilayer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/optilayer/optilayer/pkg/types"
)

// PerformanceReport packages the current metrics snapshot for external
// dashboards and log sinks. Each report carries a unique ID so sinks
// can deduplicate replays.
func (o *Optimizer) PerformanceReport() types.PerformanceReport {
	o.mu.RLock()
	startedAt := o.startedAt
	o.mu.RUnlock()

	uptime := time.Duration(0)
	if !startedAt.IsZero() {
		uptime = time.Since(startedAt)
	}

	return types.PerformanceReport{
		ID:          uuid.NewString(),
		GeneratedAt: time.Now(),
		Uptime:      uptime,
		Snapshot:    o.recorder.Snapshot(),
	}
}

// FormatReport renders a report as a plain-text summary table.
func FormatReport(report types.PerformanceReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Performance Report %s\n", report.ID)
	fmt.Fprintf(&b, "Generated: %s  Uptime: %v\n\n", report.GeneratedAt.Format(time.RFC3339), report.Uptime.Round(time.Second))

	cache := report.Snapshot.Cache
	fmt.Fprintf(&b, "Cache: %d entries, %d/%d bytes, hit rate %.1f%% (%d hits, %d misses, %d evictions)\n",
		cache.Entries, cache.Size, cache.Capacity, cache.HitRate*100, cache.Hits, cache.Misses, cache.Evictions)

	pool := report.Snapshot.Pool
	fmt.Fprintf(&b, "Pool: %d/%d buffers in use (%.1f%% of %d bytes)\n",
		pool.InUse, pool.Buffers, pool.Utilization*100, pool.TotalBytes)

	batchStats := report.Snapshot.Batch
	fmt.Fprintf(&b, "Batch: %d enqueued, %d flushes, avg batch %.1f\n\n",
		batchStats.Enqueued, batchStats.Flushes, batchStats.AvgBatchSize)

	if len(report.Snapshot.Operations) == 0 {
		b.WriteString("No operations recorded.\n")
		return b.String()
	}

	names := make([]string, 0, len(report.Snapshot.Operations))
	for name := range report.Snapshot.Operations {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(&b, "%-24s %8s %8s %8s %10s %10s %10s %6s\n",
		"Operation", "Count", "Hits", "Errors", "Min", "Avg", "Max", "Slow")
	for _, name := range names {
		s := report.Snapshot.Operations[name]
		fmt.Fprintf(&b, "%-24s %8d %8d %8d %10v %10v %10v %6d\n",
			name, s.Count, s.CacheHits, s.Errors,
			s.MinDuration.Round(time.Microsecond),
			s.AvgDuration.Round(time.Microsecond),
			s.MaxDuration.Round(time.Microsecond),
			s.SlowCount)
	}

	return b.String()
}
