package metrics

import (
	"errors"
	"net/http"
	"time"

	"taskpool/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はプールのフックをPrometheusのメトリクスに変換する
type Collector struct {
	submitted    prometheus.Counter
	completed    prometheus.Counter
	failed       prometheus.Counter
	abandoned    prometheus.Counter
	busyWorkers  prometheus.Gauge
	taskDuration prometheus.Histogram
}

// NewCollector はコレクタを作成し、registry に登録する
// 既に同名のメトリクスが登録されている場合はそれを再利用する
func NewCollector(registry prometheus.Registerer, namespace string) (*Collector, error) {
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      name,
			Help:      help,
		}
	}

	var errs [6]error
	c := &Collector{}
	c.submitted, errs[0] = register(registry, prometheus.NewCounter(
		opts("tasks_submitted_total", "Total number of tasks admitted to the queue")))
	c.completed, errs[1] = register(registry, prometheus.NewCounter(
		opts("tasks_completed_total", "Total number of tasks that returned without error")))
	c.failed, errs[2] = register(registry, prometheus.NewCounter(
		opts("tasks_failed_total", "Total number of tasks that returned an error or panicked")))
	c.abandoned, errs[3] = register(registry, prometheus.NewCounter(
		opts("tasks_abandoned_total", "Total number of queued tasks dropped by shutdown")))
	c.busyWorkers, errs[4] = register(registry, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "busy_workers",
		Help:      "Number of workers currently executing a task",
	}))
	c.taskDuration, errs[5] = register(registry, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "task_duration_seconds",
		Help:      "Histogram of task execution time",
		Buckets:   prometheus.DefBuckets,
	}))

	if err := errors.Join(errs[:]...); err != nil {
		return nil, err
	}
	return c, nil
}

// register はメトリクスを登録する。登録済みなら既存のものを返す
func register[T prometheus.Collector](registry prometheus.Registerer, c T) (T, error) {
	if err := registry.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Hooks はプールに渡すフックを返す
func (c *Collector) Hooks() worker.Hooks {
	return worker.Hooks{
		OnSubmit: func(worker.TaskInfo) {
			c.submitted.Inc()
		},
		OnStart: func(worker.TaskInfo) {
			c.busyWorkers.Inc()
		},
		OnFinish: func(_ worker.TaskInfo, err error, elapsed time.Duration) {
			c.busyWorkers.Dec()
			c.taskDuration.Observe(elapsed.Seconds())
			if err != nil {
				c.failed.Inc()
			} else {
				c.completed.Inc()
			}
		},
		OnAbandon: func(worker.TaskInfo) {
			c.abandoned.Inc()
		},
	}
}

// Handler は /metrics 用のHTTPハンドラを返す
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
