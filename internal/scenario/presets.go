package scenario

import (
	"time"

	"taskpool/internal/fault"
	"taskpool/internal/workload"
)

// BasicScenario は基本的なシナリオ設定を返す
// 障害注入なし、純粋な負荷テスト
func BasicScenario() Config {
	return Config{
		Name:            "basic",
		Description:     "Basic load test without fault injection",
		Duration:        10 * time.Second,
		Workers:         4,
		DrainTimeout:    5 * time.Second,
		ShutdownTimeout: 1 * time.Second,
		Kind:            workload.KindCPU,
		CPUIterations:   1000,
		MaxInFlight:     1024,
		EnableFaults:    false,
		EnableRetry:     false,
	}
}

// FaultsScenario は障害注入シナリオを返す
// エラーとpanicを注入し、リトライで回復する
func FaultsScenario() Config {
	return Config{
		Name:            "faults",
		Description:     "Error and panic injection with retries",
		Duration:        15 * time.Second,
		Workers:         4,
		DrainTimeout:    5 * time.Second,
		ShutdownTimeout: 1 * time.Second,
		Kind:            workload.KindCPU,
		CPUIterations:   1000,
		MaxInFlight:     1024,
		EnableFaults:    true,
		FaultRate:       0.1,
		FaultTypes:      []fault.FaultType{fault.FaultError, fault.FaultPanic},
		EnableRetry:     true,
		RetryDelay:      10 * time.Millisecond,
		MaxRetries:      3,
	}
}

// LatencyScenario はレイテンシ注入シナリオを返す
// Delay障害のみ、リトライなし
func LatencyScenario() Config {
	return Config{
		Name:            "latency",
		Description:     "Latency injection test",
		Duration:        10 * time.Second,
		Workers:         8,
		DrainTimeout:    5 * time.Second,
		ShutdownTimeout: 1 * time.Second,
		Kind:            workload.KindSleep,
		SleepDuration:   2 * time.Millisecond,
		MaxInFlight:     256,
		EnableFaults:    true,
		FaultRate:       0.2,
		FaultTypes:      []fault.FaultType{fault.FaultDelay},
		FaultDelay:      50 * time.Millisecond,
		EnableRetry:     false,
	}
}

// StressScenario は高負荷シナリオを返す
// 多数のワーカー、全障害タイプ、短い猶予時間
func StressScenario() Config {
	return Config{
		Name:            "stress",
		Description:     "High load stress test with all fault types",
		Duration:        20 * time.Second,
		Workers:         32,
		DrainTimeout:    2 * time.Second,
		ShutdownTimeout: 200 * time.Millisecond,
		Kind:            workload.KindMixed,
		CPUIterations:   500,
		SleepDuration:   time.Millisecond,
		MaxInFlight:     8192,
		EnableFaults:    true,
		FaultRate:       0.05,
		FaultTypes:      []fault.FaultType{fault.FaultError, fault.FaultPanic, fault.FaultDelay},
		FaultDelay:      20 * time.Millisecond,
		EnableRetry:     true,
		RetryDelay:      5 * time.Millisecond,
		MaxRetries:      5,
	}
}

// QuickScenario はクイックテスト用シナリオを返す
// 短時間での動作確認用
func QuickScenario() Config {
	return Config{
		Name:            "quick",
		Description:     "Quick test for verification",
		Duration:        2 * time.Second,
		Workers:         2,
		DrainTimeout:    2 * time.Second,
		ShutdownTimeout: 500 * time.Millisecond,
		Kind:            workload.KindCPU,
		CPUIterations:   100,
		MaxInFlight:     128,
		EnableFaults:    true,
		FaultRate:       0.05,
		FaultTypes:      []fault.FaultType{fault.FaultError},
		EnableRetry:     true,
		RetryDelay:      5 * time.Millisecond,
		MaxRetries:      2,
	}
}

// GetPreset は名前からプリセットシナリオを取得する
func GetPreset(name string) (Config, bool) {
	presets := map[string]func() Config{
		"basic":   BasicScenario,
		"faults":  FaultsScenario,
		"latency": LatencyScenario,
		"stress":  StressScenario,
		"quick":   QuickScenario,
	}

	if fn, ok := presets[name]; ok {
		return fn(), true
	}
	return Config{}, false
}

// ListPresets は利用可能なプリセット名を返す
func ListPresets() []string {
	return []string{"basic", "faults", "latency", "stress", "quick"}
}
