// Package metrics provides task metrics collection and reporting.
//
// Metrics collects statistics about task latency, success/failure/abandon
// counts, and throughput (TPS). It is thread-safe and optimized for
// high-concurrency scenarios.
//
// # Basic Usage
//
//	m := metrics.New()
//
//	// Record tasks
//	start := time.Now()
//	// ... do work ...
//	m.RecordSuccess(time.Since(start))
//
//	// Get statistics
//	fmt.Printf("Total: %d, TPS: %.2f, P99: %v\n",
//	    m.TotalTasks(), m.TPS(), m.P99Latency())
//
//	// Get a snapshot
//	snap := m.Snapshot()
//
// # Configuration
//
// Use NewWithConfig for custom settings:
//
//	config := metrics.Config{
//	    MaxLatencySamples: 5000, // More samples for P99 accuracy
//	}
//	m := metrics.NewWithConfig(config)
//
// # Prometheus
//
// Collector registers pool counters, a busy-worker gauge and a task duration
// histogram on a Prometheus registry. Its Hooks method plugs straight into
// worker.PoolConfig, and Handler serves the registry for scraping:
//
//	reg := prometheus.NewRegistry()
//	c, _ := metrics.NewCollector(reg, "taskpool")
//	pool := worker.NewPoolWithConfig(worker.PoolConfig{Hooks: c.Hooks()})
//	http.Handle("/metrics", metrics.Handler(reg))
//
// # Thread Safety
//
// All operations use atomic counters and are safe for concurrent access.
package metrics
