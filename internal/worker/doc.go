// Package worker provides a fixed-size goroutine pool with result handles.
//
// The Pool owns a fixed number of worker goroutines and a shared, unbounded
// FIFO queue. Submitting a function never blocks waiting for a free worker;
// it returns a Future through which the caller later receives the function's
// value, its error, or a *PanicError if it panicked.
//
// # Basic Usage
//
//	pool := worker.NewPool(4) // 4 workers, 0 = CPU count
//	defer pool.Stop()
//
//	f, err := worker.Submit(pool, func() (int, error) {
//	    return compute(), nil
//	})
//	if err != nil {
//	    return err // worker.ErrPoolClosed
//	}
//	v, err := f.Get() // blocks until the task ran
//
// # Ordering
//
// Tasks are dequeued in the order they were admitted to the queue. Completion
// order across workers is not guaranteed.
//
// # Shutdown
//
// Stop and Shutdown stop accepting work (further submissions return
// ErrPoolClosed), let the workers drain everything already queued, and wait
// for them to exit. If the context passed to Shutdown expires first, tasks
// still in the queue are dropped and their futures resolve with ErrAbandoned.
// Tasks already running are always waited for.
//
// # Observability
//
// PoolConfig.Hooks receives submit/start/finish/abandon callbacks, and
// PoolConfig.Tracer records one OpenTelemetry span per executed task.
package worker
