package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"taskpool/internal/events"
	"taskpool/internal/logger"
	"taskpool/internal/metrics"
	"taskpool/internal/scenario"
	"taskpool/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/websocket"
)

// Server はAPIサーバー
type Server struct {
	addr     string
	registry *prometheus.Registry
	tracer   trace.Tracer
	eventBus *events.Bus

	mu         sync.RWMutex
	running    bool
	engine     *scenario.Engine
	config     scenario.Config
	lastResult *scenario.Result
	wsClients  map[*websocket.Conn]bool
	runDone    chan struct{}

	server *http.Server
}

// NewServer は新しいAPIサーバーを作成する
func NewServer(addr string) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Server{
		addr:      addr,
		registry:  registry,
		eventBus:  events.NewBus(),
		wsClients: make(map[*websocket.Conn]bool),
	}
}

// SetTracer はシナリオ実行に使うトレーサーを設定する
func (s *Server) SetTracer(tracer trace.Tracer) {
	s.tracer = tracer
}

// Handler はルーティング済みのHTTPハンドラを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.HandleFunc("/api/result", s.handleResult)
	mux.HandleFunc("/api/scenario/start", s.handleScenarioStart)
	mux.HandleFunc("/api/scenario/stop", s.handleScenarioStop)
	mux.HandleFunc("/api/presets", s.handlePresets)

	// Prometheus
	mux.Handle("/metrics", metrics.Handler(s.registry))

	// WebSocket
	mux.Handle("/ws", websocket.Handler(s.handleWebSocket))

	return mux
}

// Start はサーバーを開始する
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// バックグラウンドでメトリクスとイベントを配信
	go s.broadcastLoop(ctx)
	go s.eventLoop(ctx)

	logger.Info("api", "API Server starting on http://%s", s.addr)

	go func() {
		<-ctx.Done()
		s.stopScenario()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		s.eventBus.Close()
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// StatusResponse はステータスレスポンス
type StatusResponse struct {
	Running      bool          `json:"running"`
	ScenarioName string        `json:"scenario_name,omitempty"`
	PoolState    string        `json:"pool_state,omitempty"`
	Workers      int           `json:"workers,omitempty"`
	Pool         *worker.Stats `json:"pool,omitempty"`
}

func (s *Server) status() StatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := StatusResponse{
		Running:      s.running,
		ScenarioName: s.config.Name,
	}
	if s.engine != nil {
		resp.PoolState = s.engine.PoolState()
		resp.Pool = s.engine.PoolStats()
	}
	if s.lastResult != nil && !s.running {
		resp.Workers = s.lastResult.Workers
	} else {
		resp.Workers = s.config.Workers
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, s.status())
}

// MetricsResponse はメトリクスレスポンス
type MetricsResponse struct {
	TotalTasks     uint64  `json:"total_tasks"`
	SucceededTasks uint64  `json:"succeeded_tasks"`
	FailedTasks    uint64  `json:"failed_tasks"`
	AbandonedTasks uint64  `json:"abandoned_tasks"`
	TPS            float64 `json:"tps"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
	P99LatencyMs   float64 `json:"p99_latency_ms"`
	ErrorRate      float64 `json:"error_rate"`
	TotalFaults    uint64  `json:"total_faults"`
	TotalRetries   uint64  `json:"total_retries"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	engine := s.engine
	s.mu.RUnlock()

	resp := MetricsResponse{}
	if engine != nil {
		if snapshot := engine.Metrics(); snapshot != nil {
			resp.TotalTasks = snapshot.TotalTasks
			resp.SucceededTasks = snapshot.SucceededTasks
			resp.FailedTasks = snapshot.FailedTasks
			resp.AbandonedTasks = snapshot.AbandonedTasks
			resp.TPS = snapshot.TPS
			resp.AvgLatencyMs = float64(snapshot.AverageLatency) / float64(time.Millisecond)
			resp.P99LatencyMs = float64(snapshot.P99Latency) / float64(time.Millisecond)
			resp.ErrorRate = snapshot.ErrorRate
		}
		if stats := engine.FaultStats(); stats != nil {
			resp.TotalFaults = stats.TotalFaults
		}
		if stats := engine.RetryStats(); stats != nil {
			resp.TotalRetries = stats.TotalRetries
		}
	}

	s.writeJSON(w, resp)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	result := s.lastResult
	s.mu.RUnlock()

	if result == nil {
		http.Error(w, "No completed scenario", http.StatusNotFound)
		return
	}
	s.writeJSON(w, result)
}

// ScenarioRequest はシナリオ開始リクエスト
type ScenarioRequest struct {
	Preset   string `json:"preset"`
	Duration string `json:"duration,omitempty"`
	Tasks    uint64 `json:"tasks,omitempty"`
	Workers  int    `json:"workers,omitempty"`
}

func (s *Server) handleScenarioStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// プリセット取得
	config, ok := scenario.GetPreset(req.Preset)
	if !ok {
		config = scenario.QuickScenario()
	}

	// オーバーライド
	if req.Duration != "" {
		d, err := time.ParseDuration(req.Duration)
		if err != nil {
			http.Error(w, "Invalid duration", http.StatusBadRequest)
			return
		}
		config.Duration = d
	}
	if req.Tasks > 0 {
		config.Tasks = req.Tasks
		if req.Duration == "" {
			config.Duration = 0
		}
	}
	if req.Workers > 0 {
		config.Workers = req.Workers
	}
	if err := config.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		http.Error(w, "Scenario already running", http.StatusConflict)
		return
	}

	engine := scenario.New(config)
	engine.SetEventBus(s.eventBus)
	engine.SetRegistry(s.registry)
	engine.SetTracer(s.tracer)

	s.config = config
	s.engine = engine
	s.running = true
	done := make(chan struct{})
	s.runDone = done
	s.mu.Unlock()

	// バックグラウンドで実行
	go func() {
		defer close(done)
		result, err := engine.Run(context.Background())

		s.mu.Lock()
		s.running = false
		if err == nil {
			s.lastResult = result
		}
		s.mu.Unlock()

		if err != nil {
			logger.Error("api", "Scenario failed: %v", err)
			return
		}
		logger.Info("api", "Scenario completed: %d tasks", result.TotalTasks)

		s.broadcast(map[string]any{
			"type":   "scenario_complete",
			"result": result,
		})
	}()

	s.writeJSON(w, map[string]string{"status": "started", "scenario": config.Name})
}

func (s *Server) handleScenarioStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	running := s.running
	engine := s.engine
	s.mu.RUnlock()

	if !running {
		http.Error(w, "No scenario running", http.StatusBadRequest)
		return
	}
	engine.Stop()

	s.writeJSON(w, map[string]string{"status": "stop requested"})
}

// stopScenario は実行中のシナリオを止めて終了を待つ
func (s *Server) stopScenario() {
	s.mu.RLock()
	engine := s.engine
	done := s.runDone
	s.mu.RUnlock()

	if engine == nil || done == nil {
		return
	}
	engine.Stop()
	<-done
}

// PresetInfo はプリセット情報
type PresetInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var presets []PresetInfo
	for _, name := range scenario.ListPresets() {
		config, _ := scenario.GetPreset(name)
		presets = append(presets, PresetInfo{Name: name, Description: config.Description})
	}

	s.writeJSON(w, presets)
}

// WebSocket handling
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	s.mu.Lock()
	s.wsClients[ws] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.wsClients, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	// Keep connection alive
	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			break
		}
	}
}

func (s *Server) broadcast(data any) {
	s.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.wsClients))
	for ws := range s.wsClients {
		clients = append(clients, ws)
	}
	s.mu.RUnlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	for _, ws := range clients {
		_ = websocket.Message.Send(ws, string(jsonData))
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := s.status()
			if !status.Running {
				continue
			}
			s.broadcast(map[string]any{
				"type":   "status",
				"status": status,
			})
		}
	}
}

// eventLoop は障害系のイベントをWebSocketクライアントに転送する
func (s *Server) eventLoop(ctx context.Context) {
	ch := s.eventBus.Subscribe(
		events.EventPoolStarted,
		events.EventPoolStopped,
		events.EventTaskPanicked,
		events.EventTaskAbandoned,
		events.EventRetryFailed,
	)
	defer s.eventBus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			s.broadcast(map[string]any{
				"type":  "event",
				"event": e,
			})
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("api", "Failed to encode JSON: %v", err)
	}
}
