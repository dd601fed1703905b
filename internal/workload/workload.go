package workload

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"taskpool/internal/fault"
	"taskpool/internal/logger"
	"taskpool/internal/metrics"
	"taskpool/internal/retry"
	"taskpool/internal/worker"

	"github.com/sherifabdlnaby/semaphore"
)

// Kind はタスクの種類
type Kind string

const (
	KindCPU   Kind = "cpu"
	KindSleep Kind = "sleep"
	KindMixed Kind = "mixed"
)

// ParseKind は文字列からタスク種類を返す
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCPU, KindSleep, KindMixed:
		return Kind(s), nil
	case "":
		return KindCPU, nil
	default:
		return "", fmt.Errorf("unknown task kind: %s", s)
	}
}

// Config はGeneratorの設定
type Config struct {
	Kind          Kind          // タスク種類
	CPUIterations int           // cpuタスクのハッシュ回数
	SleepDuration time.Duration // sleepタスクの待機時間
	MaxInFlight   int           // 結果待ちFutureの上限
	TasksLimit    uint64        // 投入上限（0で無制限）
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Kind:          KindCPU,
		CPUIterations: 1000,
		SleepDuration: time.Millisecond,
		MaxInFlight:   1024,
		TasksLimit:    0,
	}
}

// Generator は負荷生成器
type Generator struct {
	config   Config
	pool     *worker.Pool
	metrics  *metrics.Metrics
	injector *fault.Injector
	retrier  *retry.Manager
	inflight *semaphore.Weighted

	running   atomic.Bool
	submitted atomic.Uint64
	rejected  atomic.Uint64
	wg        sync.WaitGroup
}

// New は新しいGeneratorを作成する
func New(pool *worker.Pool, config Config) *Generator {
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = DefaultConfig().MaxInFlight
	}
	if config.Kind == "" {
		config.Kind = KindCPU
	}
	return &Generator{
		config:   config,
		pool:     pool,
		metrics:  metrics.New(),
		inflight: semaphore.NewWeighted(int64(config.MaxInFlight)),
	}
}

// SetInjector は障害注入器を設定する
func (g *Generator) SetInjector(inj *fault.Injector) {
	g.injector = inj
}

// SetRetrier はリトライマネージャーを設定する
func (g *Generator) SetRetrier(r *retry.Manager) {
	g.retrier = r
}

// Generate はタスクを投入し続ける
// ctx の終了、投入上限への到達、またはプールの停止で戻る。
// 結果の収集は Wait で待つ
func (g *Generator) Generate(ctx context.Context) {
	if g.running.Swap(true) {
		return
	}
	defer g.running.Store(false)

	logger.Info("workload", "Generator started (kind: %s, in-flight: %d)",
		g.config.Kind, g.config.MaxInFlight)

	for seq := 0; ; seq++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if g.config.TasksLimit > 0 && g.submitted.Load() >= g.config.TasksLimit {
			return
		}
		if err := g.inflight.Acquire(ctx, 1); err != nil {
			return
		}

		job := g.createJob(seq)
		start := time.Now()
		f, err := worker.Submit(g.pool, func() (struct{}, error) {
			return struct{}{}, job()
		})
		if err != nil {
			g.inflight.Release(1)
			g.rejected.Add(1)
			logger.Debug("workload", "submit rejected: %v", err)
			return
		}
		g.submitted.Add(1)

		g.wg.Add(1)
		go g.collect(context.WithoutCancel(ctx), f, job, start)
	}
}

// collect はタスクの結果を待ってメトリクスに記録する
func (g *Generator) collect(ctx context.Context, f *worker.Future[struct{}], job func() error, start time.Time) {
	defer g.wg.Done()
	defer g.inflight.Release(1)

	_, err := f.Get()
	latency := time.Since(start)

	switch {
	case err == nil:
		g.metrics.RecordSuccess(latency)
	case errors.Is(err, worker.ErrAbandoned):
		g.metrics.RecordAbandoned()
	case g.retrier != nil:
		rerr := g.retrier.Retry(ctx, f.ID(), job)
		latency = time.Since(start)
		switch {
		case rerr == nil:
			g.metrics.RecordSuccess(latency)
		case errors.Is(rerr, worker.ErrAbandoned):
			g.metrics.RecordAbandoned()
		default:
			g.metrics.RecordFailure(latency)
		}
	default:
		g.metrics.RecordFailure(latency)
	}
}

// createJob はタスク関数を作成する
func (g *Generator) createJob(seq int) func() error {
	kind := g.config.Kind
	if kind == KindMixed {
		kind = KindCPU
		if rand.Intn(2) == 0 {
			kind = KindSleep
		}
	}

	var job func() error
	switch kind {
	case KindSleep:
		d := g.config.SleepDuration
		job = func() error {
			time.Sleep(d)
			return nil
		}
	default:
		iterations := g.config.CPUIterations
		job = func() error {
			sum := sha256.Sum256([]byte(fmt.Sprintf("task-%d", seq)))
			for range iterations {
				sum = sha256.Sum256(sum[:])
			}
			return nil
		}
	}

	if g.injector != nil {
		job = g.injector.Wrap(job)
	}
	return job
}

// Wait は投入済みタスク全ての結果が記録されるまで待つ
func (g *Generator) Wait() {
	g.wg.Wait()
}

// SetMaxInFlight は結果待ちFutureの上限を変更する
// 投入中でも即座に反映される
func (g *Generator) SetMaxInFlight(n int) {
	if n <= 0 {
		return
	}
	g.inflight.Resize(int64(n))
}

// InFlight は結果待ちのタスク数を返す
func (g *Generator) InFlight() int64 {
	return g.inflight.Current()
}

// Submitted は投入に成功したタスク数を返す
func (g *Generator) Submitted() uint64 {
	return g.submitted.Load()
}

// Rejected はプール停止により拒否された投入数を返す
func (g *Generator) Rejected() uint64 {
	return g.rejected.Load()
}

// Metrics はメトリクスを返す
func (g *Generator) Metrics() *metrics.Metrics {
	return g.metrics
}

// IsRunning は投入中かどうかを返す
func (g *Generator) IsRunning() bool {
	return g.running.Load()
}

// RunFor は指定時間だけ負荷生成を実行し、全結果を待つ
func (g *Generator) RunFor(ctx context.Context, duration time.Duration) *metrics.Snapshot {
	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	g.Generate(runCtx)
	g.Wait()

	snapshot := g.metrics.Snapshot()
	return &snapshot
}

// RunTasks は指定数のタスクを実行し、全結果を待つ
func (g *Generator) RunTasks(ctx context.Context, count uint64) *metrics.Snapshot {
	g.config.TasksLimit = count
	g.Generate(ctx)
	g.Wait()

	snapshot := g.metrics.Snapshot()
	return &snapshot
}
