package retry

import (
	"context"
	"errors"
	"sync"
	"time"

	"taskpool/internal/events"
	"taskpool/internal/logger"
	"taskpool/internal/worker"
)

// ErrDisabled は MaxRetries が 0 以下のときに返される
var ErrDisabled = errors.New("retries disabled")

// Config はリトライの設定
type Config struct {
	MaxRetries int           // 最大リトライ回数
	Delay      time.Duration // 再投入までの待機時間
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		Delay:      10 * time.Millisecond,
	}
}

// Stats はリトライ統計
type Stats struct {
	TotalRetries     uint64 `json:"total_retries"`
	SucceededRetries uint64 `json:"succeeded_retries"`
	FailedRetries    uint64 `json:"failed_retries"`
}

// Manager は失敗したタスクの再投入を管理する
type Manager struct {
	config   Config
	pool     *worker.Pool
	eventBus *events.Bus

	mu    sync.RWMutex
	stats Stats
}

// New は新しいManagerを作成する
func New(pool *worker.Pool, config Config) *Manager {
	return &Manager{
		config: config,
		pool:   pool,
	}
}

// SetEventBus はイベントバスを設定する
func (m *Manager) SetEventBus(bus *events.Bus) {
	m.eventBus = bus
}

// publishEvent はイベントを発行する
func (m *Manager) publishEvent(event events.Event) {
	if m.eventBus != nil {
		m.eventBus.Publish(event)
	}
}

// Retry は fn を成功するまで最大 MaxRetries 回プールに再投入する
// 全て失敗した場合は最後のエラーを返す。
// プールの停止（ErrPoolClosed）、タスクの破棄（ErrAbandoned）、ctx の終了では即座に打ち切る
func (m *Manager) Retry(ctx context.Context, taskID string, fn func() error) error {
	m.mu.RLock()
	config := m.config
	m.mu.RUnlock()

	if config.MaxRetries <= 0 {
		return ErrDisabled
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxRetries; attempt++ {
		if config.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(config.Delay):
			}
		}

		m.mu.Lock()
		m.stats.TotalRetries++
		m.mu.Unlock()
		m.publishEvent(events.NewRetryStartEvent(taskID, attempt))

		f, err := worker.Submit(m.pool, func() (struct{}, error) {
			return struct{}{}, fn()
		})
		if err != nil {
			logger.Debug("retry", "task %s: resubmit rejected: %v", taskID, err)
			return err
		}

		_, err = f.Wait(ctx)
		if err == nil {
			m.mu.Lock()
			m.stats.SucceededRetries++
			m.mu.Unlock()
			logger.Debug("retry", "task %s succeeded on attempt %d", taskID, attempt)
			m.publishEvent(events.NewRetrySuccessEvent(taskID, attempt))
			return nil
		}
		if errors.Is(err, worker.ErrAbandoned) || ctx.Err() != nil {
			return err
		}
		lastErr = err
	}

	m.mu.Lock()
	m.stats.FailedRetries++
	m.mu.Unlock()

	logger.Debug("retry", "task %s failed after %d retries: %v", taskID, config.MaxRetries, lastErr)
	m.publishEvent(events.NewRetryFailedEvent(taskID, config.MaxRetries, lastErr))
	return lastErr
}

// Stats はリトライ統計を返す
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// SetConfig は設定を更新する
func (m *Manager) SetConfig(config Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config
}

// ResetStats は統計をリセットする
func (m *Manager) ResetStats() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = Stats{}
}
