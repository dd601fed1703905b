package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const defaultMaxLatencySamples = 1000

// Config はメトリクスの設定
type Config struct {
	MaxLatencySamples int // P99計算用に保持するサンプル数
}

// Metrics はタスク実行のメトリクスを収集する
type Metrics struct {
	totalTasks     atomic.Uint64
	succeededTasks atomic.Uint64
	failedTasks    atomic.Uint64
	abandonedTasks atomic.Uint64
	totalLatencyNs atomic.Uint64

	mu                sync.RWMutex
	startTime         time.Time
	lastResetTime     time.Time
	windowTasks       uint64
	latencies         []time.Duration
	maxLatencySamples int
}

// New は新しいメトリクスを作成する
func New() *Metrics {
	return NewWithConfig(Config{MaxLatencySamples: defaultMaxLatencySamples})
}

// NewWithConfig は設定を指定してメトリクスを作成する
func NewWithConfig(config Config) *Metrics {
	maxSamples := config.MaxLatencySamples
	if maxSamples <= 0 {
		maxSamples = defaultMaxLatencySamples
	}
	now := time.Now()
	return &Metrics{
		startTime:         now,
		lastResetTime:     now,
		latencies:         make([]time.Duration, 0, maxSamples),
		maxLatencySamples: maxSamples,
	}
}

// RecordSuccess は成功したタスクを記録する
func (m *Metrics) RecordSuccess(latency time.Duration) {
	m.totalTasks.Add(1)
	m.succeededTasks.Add(1)
	m.record(latency)
}

// RecordFailure は失敗したタスクを記録する
func (m *Metrics) RecordFailure(latency time.Duration) {
	m.totalTasks.Add(1)
	m.failedTasks.Add(1)
	m.record(latency)
}

// RecordAbandoned は実行されずに破棄されたタスクを記録する
// 実行時間を持たないためレイテンシには含めない
func (m *Metrics) RecordAbandoned() {
	m.totalTasks.Add(1)
	m.abandonedTasks.Add(1)
}

func (m *Metrics) record(latency time.Duration) {
	m.totalLatencyNs.Add(uint64(latency.Nanoseconds()))

	m.mu.Lock()
	m.windowTasks++
	if len(m.latencies) < m.maxLatencySamples {
		m.latencies = append(m.latencies, latency)
	}
	m.mu.Unlock()
}

// TotalTasks は総タスク数を返す
func (m *Metrics) TotalTasks() uint64 {
	return m.totalTasks.Load()
}

// SucceededTasks は成功タスク数を返す
func (m *Metrics) SucceededTasks() uint64 {
	return m.succeededTasks.Load()
}

// FailedTasks は失敗タスク数を返す
func (m *Metrics) FailedTasks() uint64 {
	return m.failedTasks.Load()
}

// AbandonedTasks は破棄タスク数を返す
func (m *Metrics) AbandonedTasks() uint64 {
	return m.abandonedTasks.Load()
}

// executed は実行されたタスク数を返す
func (m *Metrics) executed() uint64 {
	return m.succeededTasks.Load() + m.failedTasks.Load()
}

// TPS は現在のウィンドウのTasks Per Secondを返す
func (m *Metrics) TPS() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	elapsed := time.Since(m.lastResetTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.windowTasks) / elapsed
}

// OverallTPS は開始からの平均TPSを返す
func (m *Metrics) OverallTPS() float64 {
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.executed()) / elapsed
}

// AverageLatency は実行されたタスクの平均レイテンシを返す
func (m *Metrics) AverageLatency() time.Duration {
	executed := m.executed()
	if executed == 0 {
		return 0
	}
	return time.Duration(m.totalLatencyNs.Load() / executed)
}

// P99Latency はP99レイテンシを返す（サンプルベース）
func (m *Metrics) P99Latency() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.latencies) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// ErrorRate は実行されたタスクのエラー率を返す（0.0〜1.0）
func (m *Metrics) ErrorRate() float64 {
	executed := m.executed()
	if executed == 0 {
		return 0
	}
	return float64(m.failedTasks.Load()) / float64(executed)
}

// Reset はウィンドウメトリクスをリセットする
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.windowTasks = 0
	m.lastResetTime = time.Now()
	m.latencies = m.latencies[:0]
}

// Snapshot はメトリクスのスナップショット
type Snapshot struct {
	TotalTasks     uint64        `json:"total_tasks"`
	SucceededTasks uint64        `json:"succeeded_tasks"`
	FailedTasks    uint64        `json:"failed_tasks"`
	AbandonedTasks uint64        `json:"abandoned_tasks"`
	TPS            float64       `json:"tps"`
	OverallTPS     float64       `json:"overall_tps"`
	AverageLatency time.Duration `json:"average_latency"`
	P99Latency     time.Duration `json:"p99_latency"`
	ErrorRate      float64       `json:"error_rate"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Snapshot は現在のメトリクスのスナップショットを返す
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		TotalTasks:     m.TotalTasks(),
		SucceededTasks: m.SucceededTasks(),
		FailedTasks:    m.FailedTasks(),
		AbandonedTasks: m.AbandonedTasks(),
		TPS:            m.TPS(),
		OverallTPS:     m.OverallTPS(),
		AverageLatency: m.AverageLatency(),
		P99Latency:     m.P99Latency(),
		ErrorRate:      m.ErrorRate(),
		Elapsed:        time.Since(m.startTime),
	}
}
