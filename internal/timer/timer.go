package timer

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrTokenNotFound は記録のないトークンを参照したときに返される
var ErrTokenNotFound = errors.New("timer token not found")

// Timer はトークンごとの累積経過時間を保持する
type Timer[K comparable] struct {
	mu      sync.Mutex
	records map[K]time.Duration
	order   []K
}

// New は新しいTimerを作成する
func New[K comparable]() *Timer[K] {
	return &Timer[K]{
		records: make(map[K]time.Duration),
	}
}

// Measure は fn を実行し、経過時間をトークンに加算する
func (t *Timer[K]) Measure(token K, fn func()) {
	start := time.Now()
	fn()
	t.Add(token, time.Since(start))
}

// MeasureValue は fn を実行して経過時間を加算し、fn の戻り値を返す
func MeasureValue[K comparable, T any](t *Timer[K], token K, fn func() T) T {
	start := time.Now()
	v := fn()
	t.Add(token, time.Since(start))
	return v
}

// Add は経過時間を直接加算する
func (t *Timer[K]) Add(token K, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.records[token]; !ok {
		t.order = append(t.order, token)
	}
	t.records[token] += d
}

// Elapsed はトークンの累積経過時間を返す
func (t *Timer[K]) Elapsed(token K) (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, ok := t.records[token]
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrTokenNotFound, token)
	}
	return d, nil
}

// Reset はトークンの累積時間をゼロに戻す（記録のないトークンは無視）
func (t *Timer[K]) Reset(token K) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.records[token]; ok {
		t.records[token] = 0
	}
}

// Clear は全ての記録を削除する
func (t *Timer[K]) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records = make(map[K]time.Duration)
	t.order = nil
}

// Tokens は記録のあるトークンを初回記録順で返す
func (t *Timer[K]) Tokens() []K {
	t.mu.Lock()
	defer t.mu.Unlock()

	tokens := make([]K, len(t.order))
	copy(tokens, t.order)
	return tokens
}
