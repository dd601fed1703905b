package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"taskpool/internal/fault"
	"taskpool/internal/logger"
	"taskpool/internal/scenario"
	"taskpool/internal/tracing"
	"taskpool/internal/workload"

	"gopkg.in/yaml.v3"
)

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Scenario ScenarioConfig `yaml:"scenario" json:"scenario"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Tracing  TracingConfig  `yaml:"tracing" json:"tracing"`
	Server   ServerConfig   `yaml:"server" json:"server"`
}

// ScenarioConfig はシナリオ設定
type ScenarioConfig struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Duration    string `yaml:"duration" json:"duration"`
	Tasks       uint64 `yaml:"tasks" json:"tasks"`

	Pool     PoolConfig     `yaml:"pool" json:"pool"`
	Workload WorkloadConfig `yaml:"workload" json:"workload"`
	Faults   FaultsConfig   `yaml:"faults" json:"faults"`
	Retry    RetryConfig    `yaml:"retry" json:"retry"`
}

// PoolConfig はワーカープール設定
type PoolConfig struct {
	Workers         int    `yaml:"workers" json:"workers"`
	DrainTimeout    string `yaml:"drain_timeout" json:"drain_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// WorkloadConfig はワークロード設定
type WorkloadConfig struct {
	Kind          string `yaml:"kind" json:"kind"`
	CPUIterations int    `yaml:"cpu_iterations" json:"cpu_iterations"`
	Sleep         string `yaml:"sleep" json:"sleep"`
	MaxInFlight   int    `yaml:"max_in_flight" json:"max_in_flight"`
}

// FaultsConfig は障害注入設定
type FaultsConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Rate    float64  `yaml:"rate" json:"rate"`
	Types   []string `yaml:"types" json:"types"`
	Delay   string   `yaml:"delay" json:"delay"`
}

// RetryConfig はリトライ設定
type RetryConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Delay      string `yaml:"delay" json:"delay"`
	MaxRetries int    `yaml:"max_retries" json:"max_retries"`
}

// LoggingConfig はログ設定
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// TracingConfig はトレース設定
type TracingConfig struct {
	Exporter    string  `yaml:"exporter" json:"exporter"`
	Endpoint    string  `yaml:"endpoint" json:"endpoint"`
	ServiceName string  `yaml:"service_name" json:"service_name"`
	SampleRate  float64 `yaml:"sample_rate" json:"sample_rate"`
}

// ServerConfig はAPIサーバー設定
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// LoadFile は設定ファイルを読み込む
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// ToScenarioConfig はFileConfigをscenario.Configに変換する
func (f *FileConfig) ToScenarioConfig() (scenario.Config, error) {
	sc := f.Scenario

	// デフォルト値の設定
	config := scenario.DefaultConfig()

	if sc.Name != "" {
		config.Name = sc.Name
	}
	if sc.Description != "" {
		config.Description = sc.Description
	}
	if err := parseDuration(sc.Duration, "duration", &config.Duration); err != nil {
		return config, err
	}
	if sc.Tasks > 0 {
		config.Tasks = sc.Tasks
		if sc.Duration == "" {
			config.Duration = 0
		}
	}

	// Pool設定
	if sc.Pool.Workers > 0 {
		config.Workers = sc.Pool.Workers
	}
	if err := parseDuration(sc.Pool.DrainTimeout, "pool.drain_timeout", &config.DrainTimeout); err != nil {
		return config, err
	}
	if err := parseDuration(sc.Pool.ShutdownTimeout, "pool.shutdown_timeout", &config.ShutdownTimeout); err != nil {
		return config, err
	}

	// Workload設定
	if sc.Workload.Kind != "" {
		kind, err := workload.ParseKind(sc.Workload.Kind)
		if err != nil {
			return config, err
		}
		config.Kind = kind
	}
	if sc.Workload.CPUIterations > 0 {
		config.CPUIterations = sc.Workload.CPUIterations
	}
	if err := parseDuration(sc.Workload.Sleep, "workload.sleep", &config.SleepDuration); err != nil {
		return config, err
	}
	if sc.Workload.MaxInFlight > 0 {
		config.MaxInFlight = sc.Workload.MaxInFlight
	}

	// Faults設定
	config.EnableFaults = sc.Faults.Enabled
	if sc.Faults.Rate > 0 {
		config.FaultRate = sc.Faults.Rate
	}
	if len(sc.Faults.Types) > 0 {
		types, err := fault.ParseFaultTypes(lower(sc.Faults.Types))
		if err != nil {
			return config, err
		}
		config.FaultTypes = types
	}
	if err := parseDuration(sc.Faults.Delay, "faults.delay", &config.FaultDelay); err != nil {
		return config, err
	}

	// Retry設定
	config.EnableRetry = sc.Retry.Enabled
	if err := parseDuration(sc.Retry.Delay, "retry.delay", &config.RetryDelay); err != nil {
		return config, err
	}
	if sc.Retry.MaxRetries > 0 {
		config.MaxRetries = sc.Retry.MaxRetries
	}

	return config, nil
}

// ToTracingConfig はFileConfigをtracing.Configに変換する
func (f *FileConfig) ToTracingConfig() tracing.Config {
	config := tracing.DefaultConfig()
	if f.Tracing.Exporter != "" {
		config.Exporter = strings.ToLower(f.Tracing.Exporter)
	}
	if f.Tracing.Endpoint != "" {
		config.Endpoint = f.Tracing.Endpoint
	}
	if f.Tracing.ServiceName != "" {
		config.ServiceName = f.Tracing.ServiceName
	}
	if f.Tracing.SampleRate > 0 {
		config.SampleRate = f.Tracing.SampleRate
	}
	return config
}

// LogLevel はログレベルを返す（未指定ならInfo）
func (f *FileConfig) LogLevel() (logger.Level, error) {
	return logger.ParseLevel(f.Logging.Level)
}

// parseDuration は空でなければ文字列をパースして dst に設定する
func parseDuration(s, field string, dst *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	*dst = d
	return nil
}

func lower(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}

// Validate は設定を検証する
func (f *FileConfig) Validate() error {
	sc := f.Scenario

	if sc.Pool.Workers < 0 {
		return fmt.Errorf("pool.workers must be non-negative")
	}

	if sc.Workload.CPUIterations < 0 {
		return fmt.Errorf("workload.cpu_iterations must be non-negative")
	}

	if sc.Workload.MaxInFlight < 0 {
		return fmt.Errorf("workload.max_in_flight must be non-negative")
	}

	if sc.Faults.Rate < 0 || sc.Faults.Rate > 1 {
		return fmt.Errorf("faults.rate must be between 0 and 1")
	}

	if sc.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be non-negative")
	}

	if _, err := logger.ParseLevel(f.Logging.Level); err != nil {
		return err
	}

	if err := f.ToTracingConfig().Validate(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	return nil
}
