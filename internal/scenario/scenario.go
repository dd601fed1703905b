package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"taskpool/internal/events"
	"taskpool/internal/fault"
	"taskpool/internal/logger"
	"taskpool/internal/metrics"
	"taskpool/internal/retry"
	"taskpool/internal/timer"
	"taskpool/internal/worker"
	"taskpool/internal/workload"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// Phase はシナリオの実行フェーズ
type Phase string

const (
	PhaseSubmit   Phase = "submit"
	PhaseDrain    Phase = "drain"
	PhaseShutdown Phase = "shutdown"
)

// Config はシナリオの設定
type Config struct {
	Name        string        // シナリオ名
	Description string        // 説明
	Duration    time.Duration // 投入時間
	Tasks       uint64        // 投入タスク数（0で Duration まで投入）

	// プール設定
	Workers         int           // ワーカー数（0でCPU数）
	DrainTimeout    time.Duration // 投入終了後、結果を待つ最大時間
	ShutdownTimeout time.Duration // Shutdown の猶予時間（超過分は破棄）

	// ワークロード設定
	Kind          workload.Kind // タスク種類
	CPUIterations int           // cpuタスクのハッシュ回数
	SleepDuration time.Duration // sleepタスクの待機時間
	MaxInFlight   int           // 結果待ちFutureの上限

	// 障害注入設定
	EnableFaults bool              // 障害注入を有効化
	FaultRate    float64           // 障害注入率
	FaultTypes   []fault.FaultType // 有効な障害タイプ
	FaultDelay   time.Duration     // Delay障害の遅延時間

	// リトライ設定
	EnableRetry bool          // リトライを有効化
	RetryDelay  time.Duration // 再投入までの待機時間
	MaxRetries  int           // 最大リトライ回数
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Name:            "default",
		Description:     "Default scenario",
		Duration:        10 * time.Second,
		Workers:         0,
		DrainTimeout:    5 * time.Second,
		ShutdownTimeout: 1 * time.Second,
		Kind:            workload.KindCPU,
		CPUIterations:   1000,
		SleepDuration:   time.Millisecond,
		MaxInFlight:     1024,
		EnableFaults:    true,
		FaultRate:       0.05,
		FaultTypes:      []fault.FaultType{fault.FaultError, fault.FaultPanic, fault.FaultDelay},
		FaultDelay:      20 * time.Millisecond,
		EnableRetry:     true,
		RetryDelay:      10 * time.Millisecond,
		MaxRetries:      3,
	}
}

// Validate は設定を検証する
func (c Config) Validate() error {
	if c.Duration <= 0 && c.Tasks == 0 {
		return errors.New("either duration or tasks must be set")
	}
	if c.Workers < 0 {
		return errors.New("workers must be non-negative")
	}
	if c.FaultRate < 0 || c.FaultRate > 1 {
		return errors.New("fault rate must be between 0 and 1")
	}
	if c.MaxRetries < 0 {
		return errors.New("max retries must be non-negative")
	}
	return nil
}

// PhaseTiming はフェーズごとの所要時間
type PhaseTiming struct {
	Phase    Phase         `json:"phase"`
	Duration time.Duration `json:"duration"`
}

// Result はシナリオ実行結果
type Result struct {
	ScenarioName string        `json:"scenario_name"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Duration     time.Duration `json:"duration"`
	Workers      int           `json:"workers"`
	Canceled     bool          `json:"canceled"`

	// タスク結果
	TotalTasks     uint64        `json:"total_tasks"`
	SucceededTasks uint64        `json:"succeeded_tasks"`
	FailedTasks    uint64        `json:"failed_tasks"`
	AbandonedTasks uint64        `json:"abandoned_tasks"`
	ErrorRate      float64       `json:"error_rate"`
	TPS            float64       `json:"tps"`
	AvgLatency     time.Duration `json:"avg_latency"`
	P99Latency     time.Duration `json:"p99_latency"`

	// プール統計（リトライ分を含む）
	Pool        worker.Stats `json:"pool"`
	ShutdownErr string       `json:"shutdown_error,omitempty"`
	Consistent  bool         `json:"consistent"`

	// 障害注入・リトライ統計
	Faults  fault.Stats `json:"faults"`
	Retries retry.Stats `json:"retries"`

	Phases []PhaseTiming `json:"phases"`
}

// Engine はシナリオ実行エンジン
type Engine struct {
	config   Config
	eventBus *events.Bus
	registry prometheus.Registerer
	tracer   trace.Tracer

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	pool     *worker.Pool
	gen      *workload.Generator
	injector *fault.Injector
	retrier  *retry.Manager
	timer    *timer.Timer[Phase]
}

// New は新しいEngineを作成する
func New(config Config) *Engine {
	return &Engine{
		config: config,
	}
}

// SetEventBus はイベントバスを設定する
func (e *Engine) SetEventBus(bus *events.Bus) {
	e.eventBus = bus
}

// SetRegistry はPrometheusレジストリを設定する
func (e *Engine) SetRegistry(registry prometheus.Registerer) {
	e.registry = registry
}

// SetTracer はタスク実行のトレーサーを設定する
func (e *Engine) SetTracer(tracer trace.Tracer) {
	e.tracer = tracer
}

// publishEvent はイベントを発行する
func (e *Engine) publishEvent(event events.Event) {
	if e.eventBus != nil {
		e.eventBus.Publish(event)
	}
}

// Run はシナリオを実行する
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("scenario is already running")
	}
	e.running = true
	e.cancel = cancel
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.cancel = nil
		e.mu.Unlock()
	}()

	logger.Info("scenario", "=== Scenario '%s' started ===", e.config.Name)
	logger.Info("scenario", "Description: %s", e.config.Description)

	result := &Result{
		ScenarioName: e.config.Name,
		StartTime:    time.Now(),
	}

	if err := e.setup(); err != nil {
		return nil, fmt.Errorf("setup failed: %w", err)
	}

	shutdownErr := e.runScenario(runCtx)

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Canceled = runCtx.Err() != nil
	if shutdownErr != nil {
		result.ShutdownErr = shutdownErr.Error()
	}
	e.collectResults(result)

	if !result.Consistent {
		logger.Warn("scenario", "task accounting mismatch: %+v", result.Pool)
	}
	logger.Info("scenario", "=== Scenario '%s' completed ===", e.config.Name)

	return result, nil
}

// setup はプールと各コンポーネントを作成する
func (e *Engine) setup() error {
	hooks := []worker.Hooks{e.eventHooks()}
	if e.registry != nil {
		collector, err := metrics.NewCollector(e.registry, "taskpool")
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		hooks = append(hooks, collector.Hooks())
	}

	poolConfig := worker.DefaultPoolConfig()
	poolConfig.NumWorkers = e.config.Workers
	poolConfig.Hooks = worker.ChainHooks(hooks...)
	poolConfig.Tracer = e.tracer
	pool := worker.NewPoolWithConfig(poolConfig)
	e.publishEvent(events.NewPoolStartedEvent(pool.NumWorkers()))

	wc := workload.DefaultConfig()
	wc.Kind = e.config.Kind
	if e.config.CPUIterations > 0 {
		wc.CPUIterations = e.config.CPUIterations
	}
	if e.config.SleepDuration > 0 {
		wc.SleepDuration = e.config.SleepDuration
	}
	wc.MaxInFlight = e.config.MaxInFlight
	wc.TasksLimit = e.config.Tasks
	gen := workload.New(pool, wc)

	var injector *fault.Injector
	if e.config.EnableFaults {
		fc := fault.DefaultConfig()
		fc.Rate = e.config.FaultRate
		if len(e.config.FaultTypes) > 0 {
			fc.FaultTypes = e.config.FaultTypes
		}
		if e.config.FaultDelay > 0 {
			fc.DelayDuration = e.config.FaultDelay
		}
		injector = fault.New(fc)
		injector.SetEventBus(e.eventBus)
		gen.SetInjector(injector)
	}

	var retrier *retry.Manager
	if e.config.EnableRetry && e.config.MaxRetries > 0 {
		retrier = retry.New(pool, retry.Config{
			MaxRetries: e.config.MaxRetries,
			Delay:      e.config.RetryDelay,
		})
		retrier.SetEventBus(e.eventBus)
		gen.SetRetrier(retrier)
	}

	e.mu.Lock()
	e.pool = pool
	e.gen = gen
	e.injector = injector
	e.retrier = retrier
	e.timer = timer.New[Phase]()
	e.mu.Unlock()
	return nil
}

// eventHooks はプールのライフサイクルをイベントバスに流すフックを返す
func (e *Engine) eventHooks() worker.Hooks {
	return worker.Hooks{
		OnFinish: func(info worker.TaskInfo, err error, _ time.Duration) {
			if err == nil {
				return
			}
			var pe *worker.PanicError
			if errors.As(err, &pe) {
				e.publishEvent(events.NewTaskPanickedEvent(info.ID, info.WorkerID, err))
				return
			}
			e.publishEvent(events.NewTaskFailedEvent(info.ID, info.WorkerID, err))
		},
		OnAbandon: func(info worker.TaskInfo) {
			e.publishEvent(events.NewTaskAbandonedEvent(info.ID))
		},
	}
}

// runScenario はシナリオのメイン処理
// 投入、結果待ち、プール停止の順に実行し、各フェーズの時間を計測する
func (e *Engine) runScenario(ctx context.Context) error {
	genCtx := ctx
	if e.config.Duration > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, e.config.Duration)
		defer cancel()
	}

	e.timer.Measure(PhaseSubmit, func() {
		e.gen.Generate(genCtx)
	})
	logger.Info("scenario", "Submission finished (%d tasks), draining...", e.gen.Submitted())

	collected := make(chan struct{})
	go func() {
		e.gen.Wait()
		close(collected)
	}()

	e.timer.Measure(PhaseDrain, func() {
		drain := time.NewTimer(e.config.DrainTimeout)
		defer drain.Stop()
		select {
		case <-collected:
		case <-drain.C:
			logger.Warn("scenario", "Drain timeout (%v) exceeded", e.config.DrainTimeout)
		case <-ctx.Done():
		}
	})

	var shutdownErr error
	e.timer.Measure(PhaseShutdown, func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.ShutdownTimeout)
		defer cancel()
		shutdownErr = e.pool.Shutdown(shutdownCtx)
		<-collected
	})
	e.publishEvent(events.NewPoolStoppedEvent(shutdownErr))

	return shutdownErr
}

// collectResults は結果を収集する
func (e *Engine) collectResults(result *Result) {
	snapshot := e.gen.Metrics().Snapshot()
	result.Workers = e.pool.NumWorkers()
	result.TotalTasks = snapshot.TotalTasks
	result.SucceededTasks = snapshot.SucceededTasks
	result.FailedTasks = snapshot.FailedTasks
	result.AbandonedTasks = snapshot.AbandonedTasks
	result.ErrorRate = snapshot.ErrorRate
	result.TPS = snapshot.OverallTPS
	result.AvgLatency = snapshot.AverageLatency
	result.P99Latency = snapshot.P99Latency

	result.Pool = e.pool.Stats()
	p := result.Pool
	result.Consistent = p.Completed+p.Failed+p.Abandoned == p.Submitted &&
		snapshot.TotalTasks == e.gen.Submitted()

	if e.injector != nil {
		result.Faults = e.injector.Stats()
	}
	if e.retrier != nil {
		result.Retries = e.retrier.Stats()
	}

	for _, phase := range e.timer.Tokens() {
		d, err := e.timer.Elapsed(phase)
		if err != nil {
			continue
		}
		result.Phases = append(result.Phases, PhaseTiming{Phase: phase, Duration: d})
	}
}

// Report は結果をフォーマットして返す
func (r *Result) Report() string {
	var b strings.Builder

	fmt.Fprintf(&b, `
================================================================================
                         SCENARIO REPORT: %s
================================================================================

EXECUTION SUMMARY
-----------------
  Start Time:     %s
  End Time:       %s
  Duration:       %v
  Workers:        %d
  Canceled:       %v

TASK METRICS
------------
  Total Tasks:      %d
  Succeeded:        %d
  Failed:           %d
  Abandoned:        %d
  Error Rate:       %.2f%%
  Throughput:       %.1f tasks/s
  Avg Latency:      %v
  P99 Latency:      %v

POOL STATISTICS
---------------
  Submitted:        %d
  Completed:        %d
  Failed:           %d
  Abandoned:        %d
  Consistent:       %v
`,
		r.ScenarioName,
		r.StartTime.Format("2006-01-02 15:04:05"),
		r.EndTime.Format("2006-01-02 15:04:05"),
		r.Duration.Round(time.Millisecond),
		r.Workers,
		r.Canceled,
		r.TotalTasks,
		r.SucceededTasks,
		r.FailedTasks,
		r.AbandonedTasks,
		r.ErrorRate*100,
		r.TPS,
		r.AvgLatency.Round(time.Microsecond),
		r.P99Latency.Round(time.Microsecond),
		r.Pool.Submitted,
		r.Pool.Completed,
		r.Pool.Failed,
		r.Pool.Abandoned,
		r.Consistent,
	)
	if r.ShutdownErr != "" {
		fmt.Fprintf(&b, "  Shutdown Error:   %s\n", r.ShutdownErr)
	}

	fmt.Fprintf(&b, `
FAULT STATISTICS
----------------
  Total Faults:     %d
`, r.Faults.TotalFaults)
	for name, count := range r.Faults.ByType {
		fmt.Fprintf(&b, "  %-17s %d\n", name+":", count)
	}

	fmt.Fprintf(&b, `
RETRY STATISTICS
----------------
  Total Retries:    %d
  Successful:       %d
  Exhausted:        %d

PHASE TIMINGS
-------------
`, r.Retries.TotalRetries, r.Retries.SucceededRetries, r.Retries.FailedRetries)
	for _, p := range r.Phases {
		fmt.Fprintf(&b, "  %-17s %v\n", string(p.Phase)+":", p.Duration.Round(time.Microsecond))
	}

	b.WriteString("\n================================================================================")
	return b.String()
}

// Stop は実行中のシナリオを中断する
// 投入を止め、猶予時間の後に未実行のタスクを破棄する
func (e *Engine) Stop() {
	e.mu.RLock()
	cancel := e.cancel
	e.mu.RUnlock()
	if cancel != nil {
		logger.Info("scenario", "Scenario '%s' stop requested", e.config.Name)
		cancel()
	}
}

// Config はシナリオ設定を返す
func (e *Engine) Config() Config {
	return e.config
}

// IsRunning は実行中かどうかを返す
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Metrics はワークロードのメトリクスを返す
func (e *Engine) Metrics() *metrics.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.gen == nil {
		return nil
	}
	snapshot := e.gen.Metrics().Snapshot()
	return &snapshot
}

// PoolStats はプール統計を返す
func (e *Engine) PoolStats() *worker.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.pool == nil {
		return nil
	}
	stats := e.pool.Stats()
	return &stats
}

// PoolState はプールの状態を返す
func (e *Engine) PoolState() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.pool == nil {
		return ""
	}
	return e.pool.State().String()
}

// FaultStats は障害注入統計を返す
func (e *Engine) FaultStats() *fault.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.injector == nil {
		return nil
	}
	stats := e.injector.Stats()
	return &stats
}

// RetryStats はリトライ統計を返す
func (e *Engine) RetryStats() *retry.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.retrier == nil {
		return nil
	}
	stats := e.retrier.Stats()
	return &stats
}
