package worker

import (
	"context"
	"fmt"
	"sync/atomic"
)

// PanicError はタスク内で発生したpanicを表す
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Future はタスクの結果を受け取るためのハンドル
// 結果（値またはエラー）はちょうど一度だけ設定される
type Future[T any] struct {
	id        string
	done      chan struct{}
	value     T
	err       error
	retrieved atomic.Bool
}

func newFuture[T any](id string) *Future[T] {
	return &Future[T]{
		id:   id,
		done: make(chan struct{}),
	}
}

// resolve は結果を設定し、待機中の呼び出し側を起こす
func (f *Future[T]) resolve(value T, err error) {
	f.value = value
	f.err = err
	close(f.done)
}

// ID はタスクIDを返す
func (f *Future[T]) ID() string {
	return f.id
}

// Done はタスクが完了または破棄されたときに閉じられるチャネルを返す
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get はタスクの完了を待ち、結果を返す
// 二回目以降の呼び出しは ErrAlreadyRetrieved を返す
func (f *Future[T]) Get() (T, error) {
	if f.retrieved.Swap(true) {
		var zero T
		return zero, ErrAlreadyRetrieved
	}
	<-f.done
	return f.value, f.err
}

// Wait はコンテキスト付きで結果を待つ
// コンテキストが先に終了した場合、結果は消費されず後から Get できる
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.Get()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
