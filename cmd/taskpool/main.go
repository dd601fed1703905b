// Package main is the entry point for taskpool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskpool/internal/api"
	"taskpool/internal/config"
	"taskpool/internal/logger"
	"taskpool/internal/scenario"
	"taskpool/internal/tracing"
	"taskpool/internal/workload"

	"go.opentelemetry.io/otel/trace"
)

var (
	version = "dev"
)

// options はコマンドラインフラグの値
type options struct {
	configFile    string
	presetName    string
	duration      time.Duration
	tasks         uint64
	workers       int
	kind          string
	enableFaults  bool
	enableRetry   bool
	traceExporter string
	traceEndpoint string
	logLevel      string
	serverAddr    string

	// 明示的に指定されたフラグ名
	set map[string]bool
}

func main() {
	var opts options

	// フラグ定義
	flag.StringVar(&opts.configFile, "config", "", "設定ファイルパス (YAML/JSON)")
	flag.StringVar(&opts.presetName, "preset", "", "プリセットシナリオ名 (basic, faults, latency, stress, quick)")
	flag.DurationVar(&opts.duration, "duration", 0, "タスク投入時間 (例: 10s, 1m)")
	flag.Uint64Var(&opts.tasks, "tasks", 0, "投入タスク数 (指定時は duration より優先)")
	flag.IntVar(&opts.workers, "workers", 0, "ワーカー数 (0でCPU数)")
	flag.StringVar(&opts.kind, "kind", "", "タスク種類 (cpu, sleep, mixed)")
	flag.BoolVar(&opts.enableFaults, "faults", true, "障害注入を有効化")
	flag.BoolVar(&opts.enableRetry, "retry", true, "失敗タスクのリトライを有効化")
	flag.StringVar(&opts.traceExporter, "trace", "", "トレースエクスポータ (none, stdout, zipkin)")
	flag.StringVar(&opts.traceEndpoint, "trace-endpoint", "", "zipkin エンドポイント")
	flag.StringVar(&opts.logLevel, "log-level", "", "ログレベル (debug, info, warn, error)")
	listPresets := flag.Bool("list-presets", false, "利用可能なプリセットを表示")
	showVersion := flag.Bool("version", false, "バージョンを表示")
	serverMode := flag.Bool("server", false, "APIサーバーモードで起動")
	flag.StringVar(&opts.serverAddr, "addr", ":8080", "サーバーアドレス (例: :8080, 0.0.0.0:3000)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `taskpool - Fixed-Size Worker Pool Load Runner

Usage:
  taskpool [options]

Options:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # プリセットシナリオを実行
  taskpool --preset quick

  # 設定ファイルから実行
  taskpool --config scenario.yaml

  # フラグでカスタマイズ
  taskpool --preset basic --tasks 100000 --workers 8

  # 障害注入とリトライを無効化
  taskpool --preset stress --faults=false --retry=false

  # タスクのスパンを標準出力に出す
  taskpool --preset quick --trace stdout

  # APIサーバーモードで起動
  taskpool --server --addr :3000
`)
	}

	flag.Parse()

	opts.set = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		opts.set[f.Name] = true
	})

	// バージョン表示
	if *showVersion {
		fmt.Printf("taskpool version %s\n", version)
		return
	}

	// プリセット一覧表示
	if *listPresets {
		printPresets()
		return
	}

	fileConfig, err := loadFileConfig(opts.configFile)
	if err != nil {
		logger.Error("main", "設定エラー: %v", err)
		os.Exit(1)
	}

	if err := configureLogger(fileConfig, opts); err != nil {
		logger.Error("main", "設定エラー: %v", err)
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	tracer, shutdownTracing, err := tracing.Setup(ctx, buildTracingConfig(fileConfig, opts))
	if err != nil {
		logger.Error("main", "トレース設定エラー: %v", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("main", "トレース終了エラー: %v", err)
		}
	}()

	// APIサーバーモード
	if *serverMode {
		addr := opts.serverAddr
		if !opts.set["addr"] && fileConfig != nil && fileConfig.Server.Addr != "" {
			addr = fileConfig.Server.Addr
		}
		if err := runServer(ctx, addr, tracer); err != nil {
			logger.Error("main", "サーバーエラー: %v", err)
			os.Exit(1)
		}
		return
	}

	// シナリオ設定の決定
	scenarioConfig, err := buildScenarioConfig(fileConfig, opts)
	if err != nil {
		logger.Error("main", "設定エラー: %v", err)
		os.Exit(1)
	}

	// シナリオ実行
	engine := scenario.New(scenarioConfig)
	engine.SetTracer(tracer)
	if err := runScenario(ctx, engine); err != nil {
		logger.Error("main", "シナリオ実行エラー: %v", err)
		os.Exit(1)
	}
}

// loadFileConfig は設定ファイルを読み込んで検証する（未指定なら nil）
func loadFileConfig(path string) (*config.FileConfig, error) {
	if path == "" {
		return nil, nil
	}
	fileConfig, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイル読み込みエラー: %w", err)
	}
	if err := fileConfig.Validate(); err != nil {
		return nil, fmt.Errorf("設定検証エラー: %w", err)
	}
	return fileConfig, nil
}

// configureLogger はログレベルを設定する（フラグが設定ファイルより優先）
func configureLogger(fileConfig *config.FileConfig, opts options) error {
	name := opts.logLevel
	if name == "" && fileConfig != nil {
		name = fileConfig.Logging.Level
	}
	level, err := logger.ParseLevel(name)
	if err != nil {
		return err
	}
	logger.Default.SetLevel(level)
	return nil
}

// buildTracingConfig はトレース設定を構築する
func buildTracingConfig(fileConfig *config.FileConfig, opts options) tracing.Config {
	tc := tracing.DefaultConfig()
	if fileConfig != nil {
		tc = fileConfig.ToTracingConfig()
	}
	if opts.traceExporter != "" {
		tc.Exporter = opts.traceExporter
	}
	if opts.traceEndpoint != "" {
		tc.Endpoint = opts.traceEndpoint
	}
	return tc
}

// buildScenarioConfig はシナリオ設定を構築する
func buildScenarioConfig(fileConfig *config.FileConfig, opts options) (scenario.Config, error) {
	var cfg scenario.Config

	switch {
	case fileConfig != nil:
		// 1. 設定ファイルから読み込み
		var err error
		cfg, err = fileConfig.ToScenarioConfig()
		if err != nil {
			return cfg, fmt.Errorf("設定変換エラー: %w", err)
		}
	case opts.presetName != "":
		// 2. プリセットから読み込み
		preset, ok := scenario.GetPreset(opts.presetName)
		if !ok {
			return cfg, fmt.Errorf("不明なプリセット: %s (利用可能: %v)", opts.presetName, scenario.ListPresets())
		}
		cfg = preset
	default:
		// 3. デフォルト（quickシナリオ）
		cfg = scenario.QuickScenario()
	}

	// フラグでオーバーライド
	if opts.duration > 0 {
		cfg.Duration = opts.duration
	}
	if opts.tasks > 0 {
		cfg.Tasks = opts.tasks
		if opts.duration == 0 {
			cfg.Duration = 0
		}
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	if opts.kind != "" {
		kind, err := workload.ParseKind(opts.kind)
		if err != nil {
			return cfg, err
		}
		cfg.Kind = kind
	}

	// フラグが明示的に指定された場合のみオーバーライド
	if opts.set["faults"] {
		cfg.EnableFaults = opts.enableFaults
	}
	if opts.set["retry"] {
		cfg.EnableRetry = opts.enableRetry
	}

	return cfg, cfg.Validate()
}

// signalContext はSIGINT/SIGTERMでキャンセルされるコンテキストを返す
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			fmt.Println("\n中断シグナルを受信、終了中...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// runScenario はシナリオを実行する
func runScenario(ctx context.Context, engine *scenario.Engine) error {
	cfg := engine.Config()

	fmt.Println("taskpool - Fixed-Size Worker Pool Load Runner")
	fmt.Println("=============================================")
	fmt.Printf("Scenario: %s\n", cfg.Name)
	if cfg.Tasks > 0 {
		fmt.Printf("Tasks: %d\n", cfg.Tasks)
	} else {
		fmt.Printf("Duration: %v\n", cfg.Duration)
	}
	fmt.Printf("Workers: %d, Kind: %s\n", cfg.Workers, cfg.Kind)
	fmt.Printf("Faults: %v, Retry: %v\n", cfg.EnableFaults, cfg.EnableRetry)
	fmt.Println("=============================================")
	fmt.Println()

	result, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	// レポート出力
	fmt.Println(result.Report())

	if !result.Consistent {
		return fmt.Errorf("task accounting mismatch")
	}
	return nil
}

// printPresets は利用可能なプリセットを表示する
func printPresets() {
	fmt.Println("利用可能なプリセットシナリオ:")
	fmt.Println()

	for _, name := range scenario.ListPresets() {
		cfg, _ := scenario.GetPreset(name)
		fmt.Printf("  %-12s %s\n", name, cfg.Description)
	}

	fmt.Println()
	fmt.Println("使用例: taskpool --preset quick")
}

// runServer はAPIサーバーを起動する
func runServer(ctx context.Context, addr string, tracer trace.Tracer) error {
	fmt.Println("taskpool - API Server")
	fmt.Println("=====================")
	fmt.Printf("Starting server on http://%s\n", addr)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	server := api.NewServer(addr)
	server.SetTracer(tracer)
	return server.Start(ctx)
}
