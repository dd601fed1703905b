package worker

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"taskpool/internal/logger"
)

func newTestPool(t *testing.T, n int) *Pool {
	t.Helper()
	config := DefaultPoolConfig()
	config.NumWorkers = n
	config.Logger = logger.Discard()
	return NewPoolWithConfig(config)
}

func TestNewWorkerPool(t *testing.T) {
	pool := newTestPool(t, 4)
	defer pool.Stop()
	if pool.NumWorkers() != 4 {
		t.Errorf("expected 4 workers, got %d", pool.NumWorkers())
	}
	if pool.State() != StateRunning {
		t.Errorf("expected Running, got %s", pool.State())
	}

	// Zero should default to CPU count
	pool2 := newTestPool(t, 0)
	defer pool2.Stop()
	if pool2.NumWorkers() != runtime.NumCPU() {
		t.Errorf("expected %d workers, got %d", runtime.NumCPU(), pool2.NumWorkers())
	}
}

func TestWorkerPoolNegativeWorkers(t *testing.T) {
	pool := newTestPool(t, -5)
	defer pool.Stop()
	if pool.NumWorkers() != runtime.NumCPU() {
		t.Errorf("expected %d workers for negative input, got %d", runtime.NumCPU(), pool.NumWorkers())
	}
}

func TestWorkerPoolStopWithoutTasks(t *testing.T) {
	pool := newTestPool(t, 3)

	done := make(chan struct{})
	go func() {
		pool.Stop()
		// Double stop should be no-op
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return for an idle pool")
	}

	if pool.State() != StateStopped {
		t.Errorf("expected Stopped, got %s", pool.State())
	}
}

func TestSubmitReturnsValue(t *testing.T) {
	pool := newTestPool(t, 2)
	defer pool.Stop()

	f, err := Submit(pool, func() (string, error) {
		return "hello", nil
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if f.ID() == "" {
		t.Error("expected non-empty task ID")
	}

	v, err := f.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "hello" {
		t.Errorf("expected hello, got %q", v)
	}
}

func TestSubmitHundredIndices(t *testing.T) {
	pool := newTestPool(t, 4)
	defer pool.Stop()

	futures := make([]*Future[int], 0, 100)
	for i := range 100 {
		f, err := SubmitValue(pool, func() int { return i })
		if err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
		futures = append(futures, f)
	}

	got := make([]int, 0, 100)
	for _, f := range futures {
		v, err := f.Get()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, v)
	}

	sort.Ints(got)
	for i, v := range got {
		if v != i {
			t.Fatalf("expected each index exactly once, got %v", got)
		}
	}
}

func TestTaskErrorPropagates(t *testing.T) {
	pool := newTestPool(t, 1)
	defer pool.Stop()

	boom := errors.New("boom")
	f, err := Submit(pool, func() (int, error) {
		return 42, boom
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	_, err = f.Get()
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if errors.Is(err, ErrAbandoned) {
		t.Error("task failure must not look like abandonment")
	}

	// The worker keeps going after a failed task
	f2, _ := SubmitValue(pool, func() int { return 7 })
	if v, err := f2.Get(); err != nil || v != 7 {
		t.Errorf("expected 7, nil; got %d, %v", v, err)
	}
}

func TestTaskPanicIsCaptured(t *testing.T) {
	pool := newTestPool(t, 1)
	defer pool.Stop()

	f, err := SubmitValue(pool, func() int {
		panic("kaboom")
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	v, err := f.Get()
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PanicError, got %v", err)
	}
	if pe.Value != "kaboom" {
		t.Errorf("expected panic value kaboom, got %v", pe.Value)
	}
	if len(pe.Stack) == 0 {
		t.Error("expected stack trace")
	}
	if v != 0 {
		t.Errorf("expected zero value, got %d", v)
	}

	pool.Stop()
	stats := pool.Stats()
	if stats.Failed != 1 {
		t.Errorf("expected 1 failed task, got %d", stats.Failed)
	}
}

func TestGetTwice(t *testing.T) {
	pool := newTestPool(t, 1)
	defer pool.Stop()

	f, _ := SubmitValue(pool, func() int { return 1 })
	if _, err := f.Get(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.Get(); !errors.Is(err, ErrAlreadyRetrieved) {
		t.Errorf("expected ErrAlreadyRetrieved, got %v", err)
	}
}

func TestFutureWaitTimeout(t *testing.T) {
	pool := newTestPool(t, 1)
	defer pool.Stop()

	release := make(chan struct{})
	f, _ := SubmitValue(pool, func() int {
		<-release
		return 5
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	close(release)

	// A timed-out wait does not consume the result
	v, err := f.Wait(context.Background())
	if err != nil || v != 5 {
		t.Errorf("expected 5, nil; got %d, %v", v, err)
	}
}

func TestSubmitNil(t *testing.T) {
	pool := newTestPool(t, 1)
	defer pool.Stop()

	if _, err := Submit[int](pool, nil); !errors.Is(err, ErrNilTask) {
		t.Errorf("expected ErrNilTask, got %v", err)
	}
	if _, err := pool.Go(nil); !errors.Is(err, ErrNilTask) {
		t.Errorf("expected ErrNilTask, got %v", err)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	pool := newTestPool(t, 2)
	pool.Stop()

	f, err := pool.Go(func() {})
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}
	if f != nil {
		t.Error("expected nil future after stop")
	}
	if err := pool.Shutdown(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed on second shutdown, got %v", err)
	}
}

func TestFIFOOrder(t *testing.T) {
	pool := newTestPool(t, 1)
	defer pool.Stop()

	// Hold the only worker so every later task sits in the queue
	started := make(chan struct{})
	release := make(chan struct{})
	if _, err := pool.Go(func() {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	<-started

	var mu sync.Mutex
	var order []int
	futures := make([]*Future[struct{}], 0, 50)
	for i := range 50 {
		f, err := pool.Go(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		futures = append(futures, f)
	}
	if pool.QueueSize() != 50 {
		t.Errorf("expected 50 queued, got %d", pool.QueueSize())
	}

	close(release)
	for _, f := range futures {
		_, _ = f.Get()
	}

	for i, v := range order {
		if v != i {
			t.Fatalf("expected submission order, got %v", order)
		}
	}
}

func TestDequeueFollowsAdmissionSeq(t *testing.T) {
	var mu sync.Mutex
	var seqs []uint64

	config := DefaultPoolConfig()
	config.NumWorkers = 1
	config.Logger = logger.Discard()
	config.Hooks.OnStart = func(info TaskInfo) {
		mu.Lock()
		seqs = append(seqs, info.Seq)
		mu.Unlock()
	}
	pool := NewPoolWithConfig(config)

	for range 20 {
		if _, err := pool.Go(func() {}); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}
	pool.Stop()

	if len(seqs) != 20 {
		t.Fatalf("expected 20 starts, got %d", len(seqs))
	}
	for i, s := range seqs {
		if s != uint64(i+1) {
			t.Fatalf("expected ascending sequence, got %v", seqs)
		}
	}
}

func TestConcurrentSubmitExactlyOnce(t *testing.T) {
	pool := newTestPool(t, 4)

	const numGoroutines = 10
	const jobsPerGoroutine = 100
	runs := make([]atomic.Int32, numGoroutines*jobsPerGoroutine)

	var wg sync.WaitGroup
	for g := range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobsPerGoroutine {
				idx := g*jobsPerGoroutine + j
				if _, err := pool.Go(func() { runs[idx].Add(1) }); err != nil {
					t.Errorf("submit failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()
	pool.Stop()

	for i := range runs {
		if n := runs[i].Load(); n != 1 {
			t.Fatalf("task %d ran %d times", i, n)
		}
	}

	stats := pool.Stats()
	total := uint64(numGoroutines * jobsPerGoroutine)
	if stats.Submitted != total {
		t.Errorf("expected %d submitted, got %d", total, stats.Submitted)
	}
	if stats.Completed+stats.Abandoned != total {
		t.Errorf("expected completed+abandoned = %d, got %d+%d", total, stats.Completed, stats.Abandoned)
	}
}

func TestStopDrainsQueue(t *testing.T) {
	pool := newTestPool(t, 2)

	first, _ := SubmitValue(pool, func() string {
		time.Sleep(100 * time.Millisecond)
		return "slow"
	})
	second, _ := SubmitValue(pool, func() string { return "fast" })

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop hung with in-flight work")
	}

	// Stop waited for the in-flight task, so the result is ready
	select {
	case <-first.Done():
	default:
		t.Fatal("expected first task to be finished when Stop returned")
	}
	if v, err := first.Get(); err != nil || v != "slow" {
		t.Errorf("expected slow, nil; got %q, %v", v, err)
	}
	if v, err := second.Get(); err != nil || v != "fast" {
		t.Errorf("expected fast, nil; got %q, %v", v, err)
	}
}

func TestShutdownTimeoutAbandonsQueued(t *testing.T) {
	var abandonedHooks atomic.Int32

	config := DefaultPoolConfig()
	config.NumWorkers = 1
	config.Logger = logger.Discard()
	config.Hooks.OnAbandon = func(info TaskInfo) {
		if info.WorkerID != -1 {
			t.Errorf("abandoned task should have no worker, got %d", info.WorkerID)
		}
		abandonedHooks.Add(1)
	}
	pool := NewPoolWithConfig(config)

	started := make(chan struct{})
	release := make(chan struct{})
	running, _ := SubmitValue(pool, func() int {
		close(started)
		<-release
		return 1
	})
	<-started

	var pending []*Future[int]
	for i := range 5 {
		f, err := SubmitValue(pool, func() int { return i })
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		pending = append(pending, f)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- pool.Shutdown(ctx)
	}()

	// Abandoned futures resolve even while the running task is still blocked
	select {
	case <-pending[0].Done():
	case <-time.After(time.Second):
		t.Fatal("queued task was not abandoned after shutdown deadline")
	}
	if pool.State() != StateStopping {
		t.Errorf("expected Stopping while a task is in flight, got %s", pool.State())
	}

	close(release)

	select {
	case err := <-errCh:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not return")
	}

	if v, err := running.Get(); err != nil || v != 1 {
		t.Errorf("in-flight task should complete, got %d, %v", v, err)
	}
	for _, f := range pending {
		if _, err := f.Get(); !errors.Is(err, ErrAbandoned) {
			t.Errorf("expected ErrAbandoned, got %v", err)
		}
	}

	stats := pool.Stats()
	if stats.Abandoned != 5 || stats.Completed != 1 {
		t.Errorf("expected 1 completed and 5 abandoned, got %+v", stats)
	}
	if abandonedHooks.Load() != 5 {
		t.Errorf("expected 5 abandon hooks, got %d", abandonedHooks.Load())
	}
	if pool.State() != StateStopped {
		t.Errorf("expected Stopped, got %s", pool.State())
	}
}

func TestSubmitDuringShutdownRejected(t *testing.T) {
	pool := newTestPool(t, 1)

	release := make(chan struct{})
	_, _ = pool.Go(func() { <-release })

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	// Wait until the stop flag is visible
	deadline := time.Now().Add(time.Second)
	for pool.State() == StateRunning && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if _, err := pool.Go(func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed while stopping, got %v", err)
	}

	close(release)
	<-done
}

func TestHooksCalled(t *testing.T) {
	var submits, starts, finishes, failures atomic.Int32

	config := DefaultPoolConfig()
	config.NumWorkers = 2
	config.Logger = logger.Discard()
	config.Hooks = Hooks{
		OnSubmit: func(TaskInfo) { submits.Add(1) },
		OnStart:  func(TaskInfo) { starts.Add(1) },
		OnFinish: func(info TaskInfo, err error, _ time.Duration) {
			finishes.Add(1)
			if err != nil {
				failures.Add(1)
			}
			if info.WorkerID < 0 || info.WorkerID >= 2 {
				t.Errorf("unexpected worker id %d", info.WorkerID)
			}
		},
	}
	pool := NewPoolWithConfig(config)

	for i := range 10 {
		_, _ = Submit(pool, func() (int, error) {
			if i%2 == 0 {
				return 0, errors.New("even")
			}
			return i, nil
		})
	}
	pool.Stop()

	if submits.Load() != 10 || starts.Load() != 10 || finishes.Load() != 10 {
		t.Errorf("expected 10/10/10 hooks, got %d/%d/%d", submits.Load(), starts.Load(), finishes.Load())
	}
	if failures.Load() != 5 {
		t.Errorf("expected 5 failures, got %d", failures.Load())
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateRunning, "Running"},
		{StateStopping, "Stopping"},
		{StateStopped, "Stopped"},
		{State(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.expected)
		}
	}
}
