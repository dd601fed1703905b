package worker

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"taskpool/internal/logger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	// ErrPoolClosed はシャットダウン開始後の投入で返される
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrAbandoned は実行前にシャットダウンで破棄されたタスクの結果
	ErrAbandoned = errors.New("task abandoned before execution")
	// ErrAlreadyRetrieved は同じ Future に対する二回目の Get で返される
	ErrAlreadyRetrieved = errors.New("task result already retrieved")
	// ErrNilTask は nil のタスク投入で返される
	ErrNilTask = errors.New("task cannot be nil")
)

// State はプールの状態を表す
type State int

const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// TaskInfo はフックに渡されるタスク情報
type TaskInfo struct {
	ID       string // UUID
	Seq      uint64 // 投入順の連番（1始まり）
	WorkerID int    // 実行したワーカー（投入時・破棄時は -1）
}

// Hooks はプールのライフサイクルを観測するコールバック
// いずれもロック外で呼ばれる。nil のものは無視される
type Hooks struct {
	OnSubmit  func(info TaskInfo)
	OnStart   func(info TaskInfo)
	OnFinish  func(info TaskInfo, err error, elapsed time.Duration)
	OnAbandon func(info TaskInfo)
}

// PoolConfig はワーカープールの設定
type PoolConfig struct {
	NumWorkers int            // ワーカー数（0以下でCPU数）
	Logger     *logger.Logger // nil で logger.Default
	Hooks      Hooks
	Tracer     trace.Tracer // nil でトレースなし
}

// DefaultPoolConfig はデフォルト設定を返す
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		NumWorkers: 0, // CPU数
	}
}

// Stats はプールの統計情報
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Abandoned uint64 `json:"abandoned"`
	Active    int64  `json:"active"`
	Queued    int    `json:"queued"`
}

// task は型消去されたタスク
// run は呼び出し可能オブジェクトを実行して Future を解決し、タスクのエラーを返す
type task struct {
	info    TaskInfo
	run     func() error
	abandon func()
}

// Pool は固定数のワーカーと共有FIFOキューを持つタスク実行器
type Pool struct {
	numWorkers int
	log        *logger.Logger
	hooks      Hooks
	tracer     trace.Tracer

	// mu は queue, state, seq を保護する
	mu    sync.Mutex
	cond  *sync.Cond
	queue taskQueue
	state State
	seq   uint64

	wg   sync.WaitGroup
	done chan struct{}

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	abandoned atomic.Uint64
	active    atomic.Int64
}

// NewPool は新しいワーカープールを作成し、ワーカーを起動する
// numWorkers が 0 以下の場合は CPU 数を使用
func NewPool(numWorkers int) *Pool {
	config := DefaultPoolConfig()
	config.NumWorkers = numWorkers
	return NewPoolWithConfig(config)
}

// NewPoolWithConfig は設定を指定してワーカープールを作成し、ワーカーを起動する
func NewPoolWithConfig(config PoolConfig) *Pool {
	numWorkers := config.NumWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	log := config.Logger
	if log == nil {
		log = logger.Default
	}
	tracer := config.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}

	p := &Pool{
		numWorkers: numWorkers,
		log:        log,
		hooks:      config.Hooks,
		tracer:     tracer,
		done:       make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(numWorkers)
	for i := range numWorkers {
		go p.worker(i)
	}
	go func() {
		p.wg.Wait()
		close(p.done)
	}()

	p.log.Info("pool", "WorkerPool started with %d workers", numWorkers)
	return p
}

// worker は個々のワーカーゴルーチン
// 停止要求があってもキューが空になるまで取り出し続ける
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for p.state == StateRunning && p.queue.len() == 0 {
			p.cond.Wait()
		}
		t, ok := p.queue.pop()
		p.mu.Unlock()

		if !ok {
			return
		}
		p.execute(id, t)
	}
}

// execute はロック外でタスクを実行する
func (p *Pool) execute(id int, t *task) {
	info := t.info
	info.WorkerID = id

	p.active.Add(1)
	if p.hooks.OnStart != nil {
		p.hooks.OnStart(info)
	}

	_, span := p.tracer.Start(context.Background(), "worker.task",
		trace.WithAttributes(
			attribute.String("task.id", info.ID),
			attribute.Int64("task.seq", int64(info.Seq)),
			attribute.Int("worker.id", id),
		))

	start := time.Now()
	err := t.run()
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.failed.Add(1)
	} else {
		p.completed.Add(1)
	}
	span.End()
	p.active.Add(-1)

	if p.hooks.OnFinish != nil {
		p.hooks.OnFinish(info, err, elapsed)
	}
}

// enqueue はタスクをキュー末尾に追加し、待機中のワーカーを一つ起こす
func (p *Pool) enqueue(t *task) error {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.seq++
	t.info.Seq = p.seq
	p.queue.push(t)
	p.submitted.Add(1)
	p.mu.Unlock()

	p.cond.Signal()

	if p.hooks.OnSubmit != nil {
		p.hooks.OnSubmit(t.info)
	}
	return nil
}

// Submit は関数をプールに投入し、その結果を受け取る Future を返す
// 関数が返したエラーや panic は Future.Get で呼び出し側に伝わる
func Submit[T any](p *Pool, fn func() (T, error)) (*Future[T], error) {
	if fn == nil {
		return nil, ErrNilTask
	}

	f := newFuture[T](uuid.NewString())
	t := &task{
		info: TaskInfo{ID: f.id, WorkerID: -1},
		run: func() error {
			value, err := call(fn)
			f.resolve(value, err)
			return err
		},
		abandon: func() {
			var zero T
			f.resolve(zero, ErrAbandoned)
		},
	}

	if err := p.enqueue(t); err != nil {
		return nil, err
	}
	return f, nil
}

// SubmitValue はエラーを返さない関数を投入する
func SubmitValue[T any](p *Pool, fn func() T) (*Future[T], error) {
	if fn == nil {
		return nil, ErrNilTask
	}
	return Submit(p, func() (T, error) {
		return fn(), nil
	})
}

// Go は戻り値のない関数を投入する
func (p *Pool) Go(fn func()) (*Future[struct{}], error) {
	if fn == nil {
		return nil, ErrNilTask
	}
	return Submit(p, func() (struct{}, error) {
		fn()
		return struct{}{}, nil
	})
}

// call は fn を実行し、panic をエラーとして捕捉する
func call[T any](fn func() (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// Shutdown はワーカープールを停止する
// ワーカーはキューが空になるまでタスクを処理してから終了する。
// ctx が先に終了した場合、未実行のタスクは破棄され ErrAbandoned で解決される。
// その場合も実行中のタスクの完了を待ってから ctx.Err() を返す
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.state = StateStopping
	queued := p.queue.len()
	p.mu.Unlock()

	p.cond.Broadcast()
	p.log.Info("pool", "WorkerPool stopping (%d queued)", queued)

	var err error
	select {
	case <-p.done:
	case <-ctx.Done():
		select {
		case <-p.done:
		default:
			err = ctx.Err()
		}
		if n := p.abandonQueued(); n > 0 {
			p.log.Warn("pool", "WorkerPool abandoned %d queued tasks: %v", n, err)
		}
		<-p.done
	}

	p.mu.Lock()
	p.state = StateStopped
	p.mu.Unlock()

	p.log.Info("pool", "WorkerPool stopped")
	return err
}

// abandonQueued はキューに残ったタスクを全て破棄する
func (p *Pool) abandonQueued() int {
	p.mu.Lock()
	tasks := p.queue.drain()
	p.mu.Unlock()

	for _, t := range tasks {
		t.abandon()
		p.abandoned.Add(1)
		if p.hooks.OnAbandon != nil {
			p.hooks.OnAbandon(t.info)
		}
	}
	return len(tasks)
}

// Stop はキューを処理し切ってからワーカープールを停止する
// 既に停止処理中の場合は全ワーカーの終了を待つだけ
func (p *Pool) Stop() {
	if err := p.Shutdown(context.Background()); errors.Is(err, ErrPoolClosed) {
		<-p.done
	}
}

// Done は全ワーカーが終了したときに閉じられるチャネルを返す
func (p *Pool) Done() <-chan struct{} {
	return p.done
}

// NumWorkers はワーカー数を返す
func (p *Pool) NumWorkers() int {
	return p.numWorkers
}

// QueueSize は現在のキューサイズを返す
func (p *Pool) QueueSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.len()
}

// State は現在の状態を返す
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats は統計情報のスナップショットを返す
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Abandoned: p.abandoned.Load(),
		Active:    p.active.Load(),
		Queued:    p.QueueSize(),
	}
}
