package optilayer

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optilayer/optilayer/pkg/errors"
)

func newTestOptimizer(t *testing.T) *Optimizer {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Logging.Level = "ERROR"
	cfg.Optimization.BatchSize = 3
	cfg.Optimization.BatchTimeout = 20 * time.Millisecond
	cfg.Performance.SlowThreshold = 50 * time.Millisecond

	o, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, o.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = o.Stop(ctx)
	})
	return o
}

func TestExecuteDirectCachesResult(t *testing.T) {
	o := newTestOptimizer(t)

	var calls atomic.Int64
	o.RegisterDirect("lookup", func(ctx context.Context, params any) (any, error) {
		calls.Add(1)
		return fmt.Sprintf("result-for-%v", params), nil
	})

	first, err := o.Execute(context.Background(), "lookup", "alpha")
	require.NoError(t, err)
	assert.Equal(t, "result-for-alpha", first)

	second, err := o.Execute(context.Background(), "lookup", "alpha")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), calls.Load(), "second call should be served from cache")

	// Different params miss the cache.
	_, err = o.Execute(context.Background(), "lookup", "beta")
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())

	snap := o.Metrics()
	assert.Equal(t, uint64(1), snap.Cache.Hits)
	assert.Equal(t, int64(1), snap.Operations["lookup"].CacheHits)
	assert.Equal(t, int64(3), snap.Operations["lookup"].Count)
}

func TestExecuteCachedResultKeepsType(t *testing.T) {
	type renderedPage struct {
		Title string
		Body  string
	}

	o := newTestOptimizer(t)

	var calls atomic.Int64
	o.RegisterDirect("render", func(ctx context.Context, params any) (any, error) {
		calls.Add(1)
		// Well past the default compression threshold.
		return renderedPage{Title: "index", Body: strings.Repeat("content ", 2000)}, nil
	})

	first, err := o.Execute(context.Background(), "render", "index")
	require.NoError(t, err)
	require.IsType(t, renderedPage{}, first)

	second, err := o.Execute(context.Background(), "render", "index")
	require.NoError(t, err)
	require.IsType(t, renderedPage{}, second, "cached call must return the same type as the first call")
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), calls.Load())
}

func TestExecuteWithoutCache(t *testing.T) {
	o := newTestOptimizer(t)

	var calls atomic.Int64
	o.RegisterDirect("volatile", func(ctx context.Context, params any) (any, error) {
		return calls.Add(1), nil
	}, WithoutCache())

	for i := 0; i < 3; i++ {
		_, err := o.Execute(context.Background(), "volatile", "same")
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), calls.Load())
}

func TestExecuteErrorPassesThrough(t *testing.T) {
	o := newTestOptimizer(t)

	boom := stderrors.New("backend unavailable")
	o.RegisterDirect("failing", func(ctx context.Context, params any) (any, error) {
		return nil, boom
	})

	_, err := o.Execute(context.Background(), "failing", 1)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, boom), "execution error must propagate unchanged")

	// Failed results are not cached.
	_, err = o.Execute(context.Background(), "failing", 1)
	require.Error(t, err)
	assert.Equal(t, int64(2), o.Metrics().Operations["failing"].Errors)
}

func TestExecuteUnknownOperation(t *testing.T) {
	o := newTestOptimizer(t)

	_, err := o.Execute(context.Background(), "missing", nil)
	require.Error(t, err)

	var oerr *errors.OptimizerError
	require.True(t, stderrors.As(err, &oerr))
	assert.Equal(t, errors.ErrCodeUnknownOperation, oerr.Code)
}

func TestExecuteBatch(t *testing.T) {
	o := newTestOptimizer(t)

	var flushes atomic.Int64
	o.RegisterBatch("fetch", func(ctx context.Context, batch []any) ([]any, error) {
		flushes.Add(1)
		out := make([]any, len(batch))
		for i, p := range batch {
			out[i] = fmt.Sprintf("fetched:%v", p)
		}
		return out, nil
	}, WithoutCache())

	var wg sync.WaitGroup
	results := make([]any, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := o.Execute(context.Background(), "fetch", i)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		assert.Equal(t, fmt.Sprintf("fetched:%d", i), results[i])
	}
	assert.Equal(t, int64(1), flushes.Load(), "three simultaneous calls should flush as one batch")
}

func TestExecuteParallel(t *testing.T) {
	o := newTestOptimizer(t)

	o.RegisterParallel("transform", func(ctx context.Context, item any) (any, error) {
		return item.(int) * 2, nil
	}, WithoutCache())

	result, err := o.Execute(context.Background(), "transform", []any{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, []any{2, 4, 6, 8}, result)
}

func TestExecuteParallelRejectsNonSlice(t *testing.T) {
	o := newTestOptimizer(t)

	o.RegisterParallel("transform", func(ctx context.Context, item any) (any, error) {
		return item, nil
	}, WithoutCache())

	_, err := o.Execute(context.Background(), "transform", "not-a-slice")
	require.Error(t, err)

	var oerr *errors.OptimizerError
	require.True(t, stderrors.As(err, &oerr))
	assert.Equal(t, errors.ErrCodeInvalidParams, oerr.Code)
}

func TestCacheAccessors(t *testing.T) {
	o := newTestOptimizer(t)

	assert.True(t, o.CacheSet("session:42", map[string]any{"user": "pat"}, time.Minute))

	value, hit := o.CacheGet("session:42", 0)
	require.True(t, hit)
	assert.Equal(t, map[string]any{"user": "pat"}, value)

	assert.True(t, o.CacheDelete("session:42"))
	_, hit = o.CacheGet("session:42", 0)
	assert.False(t, hit)

	assert.True(t, o.CacheSet("a", 1, time.Minute))
	assert.True(t, o.CacheSet("b", 2, time.Minute))
	o.CacheClear()
	_, hit = o.CacheGet("a", 0)
	assert.False(t, hit)
}

func TestBufferAccessors(t *testing.T) {
	o := newTestOptimizer(t)

	buf, err := o.AcquireBuffer(2048)
	require.NoError(t, err)
	require.NotNil(t, buf)
	assert.GreaterOrEqual(t, buf.Cap(), 2048)

	require.NoError(t, o.ReleaseBuffer(buf))

	err = o.ReleaseBuffer(buf)
	require.Error(t, err)
	var oerr *errors.OptimizerError
	require.True(t, stderrors.As(err, &oerr))
	assert.Equal(t, errors.ErrCodeInvalidRelease, oerr.Code)
}

func TestSlowOperationNotification(t *testing.T) {
	o := newTestOptimizer(t)

	o.RegisterDirect("sluggish", func(ctx context.Context, params any) (any, error) {
		time.Sleep(80 * time.Millisecond)
		return "done", nil
	}, WithoutCache())

	_, err := o.Execute(context.Background(), "sluggish", nil)
	require.NoError(t, err)

	select {
	case slow := <-o.SlowOperations():
		assert.Equal(t, "sluggish", slow.Operation)
		assert.GreaterOrEqual(t, slow.Duration, 50*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("expected a slow operation notification")
	}
}

func TestPerformanceReport(t *testing.T) {
	o := newTestOptimizer(t)

	o.RegisterDirect("ping", func(ctx context.Context, params any) (any, error) {
		return "pong", nil
	})
	_, err := o.Execute(context.Background(), "ping", nil)
	require.NoError(t, err)

	report := o.PerformanceReport()
	assert.NotEmpty(t, report.ID)
	assert.False(t, report.GeneratedAt.IsZero())
	assert.Greater(t, report.Uptime, time.Duration(0))
	assert.Contains(t, report.Snapshot.Operations, "ping")

	other := o.PerformanceReport()
	assert.NotEqual(t, report.ID, other.ID)

	text := FormatReport(report)
	assert.True(t, strings.Contains(text, "ping"))
	assert.True(t, strings.Contains(text, "Cache:"))
}

func TestLifecycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "ERROR"
	o, err := New(cfg)
	require.NoError(t, err)

	ctx := context.Background()

	err = o.Stop(ctx)
	require.Error(t, err)
	var oerr *errors.OptimizerError
	require.True(t, stderrors.As(err, &oerr))
	assert.Equal(t, errors.ErrCodeNotStarted, oerr.Code)

	require.NoError(t, o.Start(ctx))

	err = o.Start(ctx)
	require.Error(t, err)
	require.True(t, stderrors.As(err, &oerr))
	assert.Equal(t, errors.ErrCodeAlreadyStarted, oerr.Code)

	require.NoError(t, o.Stop(ctx))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Optimization.CompressionAlgorithm = "brotli"

	_, err := New(cfg)
	require.Error(t, err)
}
