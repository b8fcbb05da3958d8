// Package optilayer is an in-process performance optimization layer
// for expensive, repeatable operations. It fronts registered
// operations with a bounded TTL/LRU cache, accumulates batchable calls
// into single executor invocations, runs parallelizable work under a
// fixed concurrency ceiling, pools payload buffers, and records
// per-operation timing metrics.
//
// Construct an Optimizer explicitly and manage its lifecycle:
//
//	opt, err := optilayer.New(nil)
//	if err != nil {
//		return err
//	}
//	if err := opt.Start(ctx); err != nil {
//		return err
//	}
//	defer opt.Stop(ctx)
//
//	opt.RegisterDirect("validateDocument", validate)
//	result, err := opt.Execute(ctx, "validateDocument", params)
//
// The cache is a performance optimization, never a correctness
// dependency: a failed cache write is logged and counted but the
// caller still receives the operation's own result or error.
package optilayer
