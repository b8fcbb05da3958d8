package optilayer

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/optilayer/optilayer/internal/batch"
	"github.com/optilayer/optilayer/internal/buffer"
	"github.com/optilayer/optilayer/internal/cache"
	"github.com/optilayer/optilayer/internal/codec"
	"github.com/optilayer/optilayer/internal/config"
	"github.com/optilayer/optilayer/internal/metrics"
	"github.com/optilayer/optilayer/internal/parallel"
	"github.com/optilayer/optilayer/pkg/errors"
	"github.com/optilayer/optilayer/pkg/types"
)

// Mode classifies how an operation is dispatched on a cache miss.
type Mode int

const (
	// ModeDirect invokes the executor once per call.
	ModeDirect Mode = iota
	// ModeBatch accumulates calls and invokes the executor per batch.
	ModeBatch
	// ModeParallel fans one call out over a slice of items.
	ModeParallel
)

// DirectFunc executes a direct operation.
type DirectFunc func(ctx context.Context, params any) (any, error)

// BatchFunc executes one batch of parameters in enqueue order.
type BatchFunc = batch.ExecutorFunc

// ItemFunc executes a parallel operation for a single item.
type ItemFunc = parallel.ItemFunc

// Config is re-exported so callers construct optimizers without
// importing internal packages.
type Config = config.Configuration

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return config.NewDefault()
}

type operation struct {
	name      string
	mode      Mode
	direct    DirectFunc
	item      ItemFunc
	ttl       time.Duration
	cacheable bool
}

// OperationOption customizes a registered operation.
type OperationOption func(*operation)

// WithTTL overrides the cache TTL for one operation's results.
func WithTTL(ttl time.Duration) OperationOption {
	return func(op *operation) {
		op.ttl = ttl
	}
}

// WithoutCache disables result caching for one operation.
func WithoutCache() OperationOption {
	return func(op *operation) {
		op.cacheable = false
	}
}

// Option customizes optimizer construction.
type Option func(*Optimizer)

// WithLogger replaces the logger built from the configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Optimizer) {
		o.logger = logger
	}
}

// Optimizer composes the cache store, batch coordinator, parallel
// executor, buffer pool and metrics recorder behind one entry point.
// Construct with New, then Start before use and Stop on shutdown.
type Optimizer struct {
	config *config.Configuration
	logger *slog.Logger

	cache       *cache.Store
	pool        *buffer.Pool
	coordinator *batch.Coordinator
	executor    *parallel.Executor
	recorder    *metrics.Recorder

	mu         sync.RWMutex
	operations map[string]*operation
	started    bool
	startedAt  time.Time
	cancel     context.CancelFunc
}

// New creates an optimizer from the given configuration. A nil
// configuration uses defaults.
func New(cfg *Config, opts ...Option) (*Optimizer, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Optimizer{
		config:     cfg,
		logger:     newLogger(cfg.Logging.Level),
		operations: make(map[string]*operation),
	}
	for _, opt := range opts {
		opt(o)
	}

	maxBytes, err := cfg.CacheMaxBytes()
	if err != nil {
		return nil, err
	}

	var compressor *codec.Compressor
	threshold := int64(0)
	if cfg.Optimization.EnableCompression {
		threshold, err = cfg.CompressionThresholdBytes()
		if err != nil {
			return nil, err
		}
		compressor, err = codec.NewCompressor(cfg.Optimization.CompressionAlgorithm, cfg.Optimization.CompressionLevel)
		if err != nil {
			return nil, err
		}
	}

	o.cache = cache.NewStore(&cache.Config{
		MaxSize:              maxBytes,
		MaxItems:             cfg.Cache.MaxItems,
		TTL:                  cfg.Cache.TTL,
		CleanupInterval:      cfg.Cache.CleanupInterval,
		CompressionThreshold: threshold,
		Compressor:           compressor,
		Logger:               o.logger,
	})
	o.pool = buffer.NewPool(cfg.Optimization.MaxPoolBuffers)
	o.coordinator = batch.NewCoordinator(&batch.Config{
		BatchSize:    cfg.Optimization.BatchSize,
		BatchTimeout: cfg.Optimization.BatchTimeout,
		Logger:       o.logger,
	})
	o.executor = parallel.NewExecutor(cfg.Optimization.MaxConcurrent, o.logger)

	o.recorder, err = metrics.NewRecorder(&metrics.Config{
		SlowThreshold:      cfg.Performance.SlowThreshold,
		MonitoringInterval: cfg.Performance.MonitoringInterval,
		MetricsRetention:   cfg.Performance.MetricsRetention,
		Enabled:            cfg.Metrics.Enabled,
		Port:               cfg.Metrics.Port,
		Path:               cfg.Metrics.Path,
		Namespace:          cfg.Metrics.Namespace,
		Logger:             o.logger,
	})
	if err != nil {
		o.cache.Close()
		return nil, err
	}
	o.recorder.SetSources(o.cache.Stats, o.pool.Stats, o.coordinator.Stats)

	return o, nil
}

// Start launches the background monitoring and, when configured, the
// metrics endpoint.
func (o *Optimizer) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return errors.NewError(errors.ErrCodeAlreadyStarted, "optimizer already started").
			WithComponent("optimizer")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	if err := o.recorder.Start(runCtx); err != nil {
		cancel()
		return err
	}

	o.cancel = cancel
	o.started = true
	o.startedAt = time.Now()
	o.logger.Info("optimizer started", "config", o.config.String())
	return nil
}

// Stop flushes pending batches and shuts everything down.
func (o *Optimizer) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return errors.NewError(errors.ErrCodeNotStarted, "optimizer not started").
			WithComponent("optimizer")
	}
	o.started = false
	cancel := o.cancel
	o.mu.Unlock()

	cancel()
	o.coordinator.Close()
	o.cache.Close()
	err := o.recorder.Stop(ctx)
	o.logger.Info("optimizer stopped")
	return err
}

// RegisterDirect registers an operation executed once per call.
func (o *Optimizer) RegisterDirect(name string, fn DirectFunc, opts ...OperationOption) {
	o.register(&operation{name: name, mode: ModeDirect, direct: fn}, opts)
}

// RegisterBatch registers a batchable operation. Near-simultaneous
// calls are flushed to fn as a single ordered batch.
func (o *Optimizer) RegisterBatch(name string, fn BatchFunc, opts ...OperationOption) {
	o.register(&operation{name: name, mode: ModeBatch}, opts)
	o.coordinator.Register(name, fn)
}

// RegisterParallel registers a parallelizable operation. Execute
// expects the params to be a []any of independent items.
func (o *Optimizer) RegisterParallel(name string, fn ItemFunc, opts ...OperationOption) {
	o.register(&operation{name: name, mode: ModeParallel, item: fn}, opts)
}

func (o *Optimizer) register(op *operation, opts []OperationOption) {
	op.ttl = o.config.Cache.TTL
	op.cacheable = true
	for _, opt := range opts {
		opt(op)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.operations[op.name] = op
}

// Execute runs a registered operation through the optimization
// pipeline: cache lookup, dispatch by mode on a miss, write-through,
// and metrics recording. Execution errors propagate unchanged; cache
// failures never mask the operation's own result.
func (o *Optimizer) Execute(ctx context.Context, name string, params any) (any, error) {
	o.mu.RLock()
	op := o.operations[name]
	o.mu.RUnlock()
	if op == nil {
		return nil, errors.Newf(errors.ErrCodeUnknownOperation, "operation %q is not registered", name).
			WithComponent("optimizer")
	}

	start := time.Now()

	cacheable := op.cacheable
	key := ""
	if cacheable {
		var err error
		key, err = codec.Key(name, params)
		if err != nil {
			// Unkeyable params just skip the cache.
			o.logger.Debug("cache skipped", "operation", name, "error", err)
			cacheable = false
		}
	}

	if cacheable {
		if value, hit := o.cache.Get(key, op.ttl); hit {
			o.recorder.Record(name, time.Since(start), true, nil)
			return value, nil
		}
		o.recorder.RecordCacheMiss()
	}

	result, err := o.dispatch(ctx, op, params)
	elapsed := time.Since(start)

	if err != nil {
		o.recorder.Record(name, elapsed, false, err)
		return nil, err
	}

	if cacheable {
		if ok, cerr := o.cache.Set(key, result, op.ttl); cerr != nil || !ok {
			o.logger.Warn("cache write-through failed", "operation", name, "error", cerr)
			o.recorder.RecordError(name, "cache_write")
		}
	}

	o.recorder.Record(name, elapsed, false, nil)
	return result, nil
}

func (o *Optimizer) dispatch(ctx context.Context, op *operation, params any) (any, error) {
	switch op.mode {
	case ModeBatch:
		return o.coordinator.Enqueue(ctx, op.name, params)
	case ModeParallel:
		items, ok := params.([]any)
		if !ok {
			return nil, errors.Newf(errors.ErrCodeInvalidParams,
				"parallel operation %q requires []any params, got %T", op.name, params).
				WithComponent("optimizer")
		}
		return o.executor.Map(ctx, items, op.item)
	default:
		return op.direct(ctx, params)
	}
}

// CacheGet looks up a value by key. ttlOverride, when positive,
// replaces the entry's stored TTL for the staleness check.
func (o *Optimizer) CacheGet(key string, ttlOverride time.Duration) (any, bool) {
	value, hit := o.cache.Get(key, ttlOverride)
	if !hit {
		o.recorder.RecordCacheMiss()
	}
	return value, hit
}

// CacheSet stores a value under an externally chosen key. It reports
// whether the value was cached; oversized values are not.
func (o *Optimizer) CacheSet(key string, value any, ttl time.Duration) bool {
	ok, err := o.cache.Set(key, value, ttl)
	if err != nil {
		o.logger.Warn("cache set rejected", "key", key, "error", err)
	}
	return ok
}

// CacheDelete removes a cache entry.
func (o *Optimizer) CacheDelete(key string) bool {
	return o.cache.Delete(key)
}

// CacheClear drops all cached entries. Cumulative counters survive.
func (o *Optimizer) CacheClear() {
	o.cache.Clear()
}

// AcquireBuffer borrows a pooled buffer of at least size bytes.
func (o *Optimizer) AcquireBuffer(size int) (*buffer.Buffer, error) {
	return o.pool.Acquire(size)
}

// ReleaseBuffer returns a pooled buffer. Each buffer must be released
// exactly once.
func (o *Optimizer) ReleaseBuffer(buf *buffer.Buffer) error {
	return o.pool.Release(buf)
}

// Metrics returns an immutable snapshot of cache, operation, pool and
// batch statistics.
func (o *Optimizer) Metrics() types.MetricsSnapshot {
	return o.recorder.Snapshot()
}

// SlowOperations exposes slow-operation notifications. The channel is
// buffered; events are dropped, never blocked on, when the consumer
// lags.
func (o *Optimizer) SlowOperations() <-chan types.SlowOperation {
	return o.recorder.SlowOperations()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
