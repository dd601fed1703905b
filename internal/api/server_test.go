package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"taskpool/internal/logger"
	"taskpool/internal/scenario"

	"golang.org/x/net/websocket"
)

func TestMain(m *testing.M) {
	logger.Default.SetLevel(logger.LevelError)
	m.Run()
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer("127.0.0.1:0")
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.stopScenario()
		ts.Close()
	})
	return s, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

func waitIdle(t *testing.T, s *Server) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if !s.status().Running {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("scenario did not finish")
}

func TestStatusIdle(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if status.Running {
		t.Error("expected server to be idle")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/status", "application/json", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}

func TestPresets(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/presets")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	var presets []PresetInfo
	if err := json.NewDecoder(resp.Body).Decode(&presets); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(presets) != len(scenario.ListPresets()) {
		t.Errorf("expected %d presets, got %d", len(scenario.ListPresets()), len(presets))
	}
	for _, p := range presets {
		if p.Description == "" {
			t.Errorf("preset %s has no description", p.Name)
		}
	}
}

func TestResultNotFoundBeforeRun(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/result")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestScenarioLifecycle(t *testing.T) {
	s, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/scenario/start", ScenarioRequest{Preset: "basic", Tasks: 200, Workers: 2})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	waitIdle(t, s)

	resp, err := http.Get(ts.URL + "/api/result")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	var result scenario.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if result.TotalTasks != 200 {
		t.Errorf("expected 200 tasks, got %d", result.TotalTasks)
	}
	if result.Workers != 2 {
		t.Errorf("expected 2 workers, got %d", result.Workers)
	}

	mresp, err := http.Get(ts.URL + "/api/metrics")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer mresp.Body.Close()

	var m MetricsResponse
	if err := json.NewDecoder(mresp.Body).Decode(&m); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if m.SucceededTasks != 200 {
		t.Errorf("expected 200 succeeded tasks, got %d", m.SucceededTasks)
	}

	presp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer presp.Body.Close()
	body, _ := io.ReadAll(presp.Body)
	if !strings.Contains(string(body), "taskpool_pool_tasks_submitted_total 200") {
		t.Error("expected submitted counter in Prometheus output")
	}
}

func TestScenarioStartInvalid(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/scenario/start", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/scenario/start", ScenarioRequest{Preset: "quick", Duration: "soon"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad duration, got %d", resp.StatusCode)
	}
}

func TestScenarioStopAndConflict(t *testing.T) {
	s, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/scenario/stop", struct{}{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 when idle, got %d", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/scenario/start", ScenarioRequest{Preset: "quick", Duration: "30s"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/scenario/start", ScenarioRequest{Preset: "quick"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for concurrent start, got %d", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/scenario/stop", struct{}{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for stop, got %d", resp.StatusCode)
	}

	waitIdle(t, s)

	s.mu.RLock()
	result := s.lastResult
	s.mu.RUnlock()
	if result == nil || !result.Canceled {
		t.Error("expected a canceled result")
	}
}

func TestWebSocketCompletionBroadcast(t *testing.T) {
	s, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, err := websocket.Dial(wsURL, "", ts.URL)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer ws.Close()

	deadline := time.Now().Add(time.Second)
	for {
		s.mu.RLock()
		n := len(s.wsClients)
		s.mu.RUnlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("websocket client was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp := postJSON(t, ts.URL+"/api/scenario/start", ScenarioRequest{Preset: "quick", Tasks: 20})
	resp.Body.Close()

	_ = ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := websocket.JSON.Receive(ws, &msg); err != nil {
			t.Fatalf("failed to receive message: %v", err)
		}
		if msg.Type == "scenario_complete" {
			return
		}
	}
}
