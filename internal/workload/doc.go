// Package workload provides a load generator that drives a worker pool.
//
// The Generator submits synthetic tasks to a *worker.Pool, keeps the
// returned futures, and records every outcome (success, failure, panic,
// abandoned) into a *metrics.Metrics. The number of futures awaiting an
// outcome is capped by MaxInFlight; the pool queue itself stays unbounded.
//
// Task kinds:
//
//	cpu    hash a buffer CPUIterations times
//	sleep  sleep for SleepDuration
//	mixed  pick cpu or sleep per task
//
// A *fault.Injector may wrap each task, and a *retry.Manager may resubmit
// failed ones.
package workload
