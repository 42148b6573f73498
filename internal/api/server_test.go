package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bingo-data/beamscope/internal/config"
	"github.com/bingo-data/beamscope/internal/db"
	"github.com/bingo-data/beamscope/internal/efield"
	"github.com/bingo-data/beamscope/internal/engine"
	"github.com/bingo-data/beamscope/internal/layout"
)

func testCoords(n int) []layout.Coordinate {
	coords := make([]layout.Coordinate, n)
	for i := range coords {
		coords[i] = layout.Coordinate{X: float64(i) * 0.15}
	}
	return coords
}

// testSet covers the sphere at a 15 degree pitch: 13 thetas by 24 phis.
func testSet() *efield.Set {
	set := &efield.Set{}
	for theta := 0.0; theta <= 180.0; theta += 15 {
		for phi := 0.0; phi < 360.0; phi += 15 {
			set.Samples = append(set.Samples, efield.Sample{
				ThetaDeg: theta,
				PhiDeg:   phi,
				EThetaRe: 1,
			})
		}
	}
	return set
}

func newTestServer(t *testing.T, database *db.DB) (*Server, *engine.Orchestrator) {
	t.Helper()
	var opts []engine.Option
	if database != nil {
		opts = append(opts, engine.WithRecorder(database))
	}
	orch := engine.NewOrchestrator(opts...)
	server := NewServer(orch, database, config.DefaultTuningConfig(), testCoords(8), testSet())
	return server, orch
}

func startOrchestrator(t *testing.T, orch *engine.Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		orch.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func postJSON(t *testing.T, mux *http.ServeMux, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func get(mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

// awaitResult drains subscriber events until the terminal result for
// the surface arrives.
func awaitResult(t *testing.T, events <-chan engine.Event, surface engine.Surface) engine.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == engine.EventResult && ev.Surface == surface {
				return ev
			}
			if ev.Kind == engine.EventError {
				t.Fatalf("Computation failed: %s", ev.Error)
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for %s result", surface)
		}
	}
}

func TestComputeCutAccepted(t *testing.T) {
	server, _ := newTestServer(t, nil)
	mux := server.ServeMux()

	w := postJSON(t, mux, "/api/compute/cut", map[string]interface{}{
		"steer_theta_deg": 10.0,
	})

	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Surface string `json:"surface"`
		TaskID  uint64 `json:"task_id"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Surface != "cut" {
		t.Errorf("Expected surface 'cut', got %q", resp.Surface)
	}
	if resp.TaskID != 1 {
		t.Errorf("Expected task id 1, got %d", resp.TaskID)
	}
}

func TestComputeWrongMethod(t *testing.T) {
	server, _ := newTestServer(t, nil)
	mux := server.ServeMux()

	w := get(mux, "/api/compute/cut")

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	if resp["error"] == "" {
		t.Error("Expected an error message in the response")
	}
}

func TestComputeInvalidBody(t *testing.T) {
	server, _ := newTestServer(t, nil)
	mux := server.ServeMux()

	req := httptest.NewRequest(http.MethodPost, "/api/compute/cut", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestComputeConflictWhenBusy(t *testing.T) {
	// No worker loop is running, so the first dispatch stays in flight.
	server, _ := newTestServer(t, nil)
	mux := server.ServeMux()

	first := postJSON(t, mux, "/api/compute/cut", map[string]interface{}{})
	if first.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", first.Code)
	}

	second := postJSON(t, mux, "/api/compute/cut", map[string]interface{}{})
	if second.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", second.Code)
	}

	// Other surfaces are scheduled independently.
	grid := postJSON(t, mux, "/api/compute/grid", map[string]interface{}{})
	if grid.Code != http.StatusAccepted {
		t.Errorf("Expected status 202 for grid, got %d", grid.Code)
	}
}

func TestComputeDebounced(t *testing.T) {
	server, orch := newTestServer(t, nil)
	mux := server.ServeMux()

	w := postJSON(t, mux, "/api/compute/cut", map[string]interface{}{
		"steer_theta_deg": 5.0,
		"debounce":        true,
	})

	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Debounced bool  `json:"debounced"`
		WindowMs  int64 `json:"window_ms"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Debounced {
		t.Error("Expected debounced true")
	}
	if resp.WindowMs != orch.Debounce().Milliseconds() {
		t.Errorf("Expected window %dms, got %dms", orch.Debounce().Milliseconds(), resp.WindowMs)
	}

	// Nothing dispatches inside the quiet window.
	if got := orch.Stats().Dispatched; got != 0 {
		t.Errorf("Expected 0 dispatches inside the window, got %d", got)
	}
}

func TestComputeWithLayoutRequest(t *testing.T) {
	server, _ := newTestServer(t, nil)
	mux := server.ServeMux()

	w := postJSON(t, mux, "/api/compute/grid", map[string]interface{}{
		"layout": map[string]interface{}{"kind": "grid", "cols": 2, "rows": 2},
	})
	if w.Code != http.StatusAccepted {
		t.Errorf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	bad := postJSON(t, mux, "/api/compute/psf", map[string]interface{}{
		"layout": map[string]interface{}{"kind": "voronoi"},
	})
	if bad.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown layout kind, got %d", bad.Code)
	}
}

func TestComputeNoGeometry(t *testing.T) {
	orch := engine.NewOrchestrator()
	server := NewServer(orch, nil, config.DefaultTuningConfig(), nil, testSet())
	mux := server.ServeMux()

	w := postJSON(t, mux, "/api/compute/cut", map[string]interface{}{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	if !strings.Contains(resp["error"], "no antenna coordinates") {
		t.Errorf("Unexpected error message: %q", resp["error"])
	}
}

func TestComputeValidatesParams(t *testing.T) {
	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"unknown scale", map[string]interface{}{"scale": "parsecs"}},
		{"negative wavelength", map[string]interface{}{"wavelength_m": -1.0}},
		{"unknown convention", map[string]interface{}{"convention": "bogus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newTestServer(t, nil)
			mux := server.ServeMux()

			w := postJSON(t, mux, "/api/compute/cut", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestComputeCutOffPlane(t *testing.T) {
	server, _ := newTestServer(t, nil)
	mux := server.ServeMux()

	// The test set samples phi at a 15 degree pitch, so 7.3 misses.
	w := postJSON(t, mux, "/api/compute/cut", map[string]interface{}{
		"cut_phi_deg": 7.3,
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	if !strings.Contains(resp["error"], "phi=7.3") {
		t.Errorf("Unexpected error message: %q", resp["error"])
	}
}

func TestShowTasks(t *testing.T) {
	server, _ := newTestServer(t, nil)
	mux := server.ServeMux()

	w := get(mux, "/api/tasks")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp struct {
		Active []engine.ActiveTask `json:"active"`
		Stats  engine.Stats        `json:"stats"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Active) != 3 {
		t.Errorf("Expected 3 surfaces, got %d", len(resp.Active))
	}
	if resp.Stats.Dispatched != 0 {
		t.Errorf("Expected 0 dispatched, got %d", resp.Stats.Dispatched)
	}
}

func TestLatestResultEndToEnd(t *testing.T) {
	server, orch := newTestServer(t, nil)
	startOrchestrator(t, orch)
	mux := server.ServeMux()

	events, unsubscribe := orch.Subscribe(64)
	defer unsubscribe()

	w := postJSON(t, mux, "/api/compute/cut", map[string]interface{}{
		"steer_theta_deg": 20.0,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	awaitResult(t, events, engine.SurfaceCut)

	res := get(mux, "/api/results/cut")
	if res.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", res.Code, res.Body.String())
	}

	var result engine.Result
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
	if result.Cut == nil {
		t.Fatal("Expected a cut payload")
	}
	if got := len(result.Cut.ThetaDeg); got != 13 {
		t.Errorf("Expected 13 cut points, got %d", got)
	}

	if missing := get(mux, "/api/results/psf"); missing.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for surface without results, got %d", missing.Code)
	}
	if bad := get(mux, "/api/results/sideways"); bad.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown surface, got %d", bad.Code)
	}
}

func TestRunsEndpoints(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	server, orch := newTestServer(t, database)
	startOrchestrator(t, orch)
	mux := server.ServeMux()

	events, unsubscribe := orch.Subscribe(64)
	defer unsubscribe()

	w := postJSON(t, mux, "/api/compute/cut", map[string]interface{}{
		"steer_theta_deg": 15.0,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	awaitResult(t, events, engine.SurfaceCut)

	list := get(mux, "/api/runs")
	if list.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", list.Code, list.Body.String())
	}

	var listResp struct {
		Runs   []db.PatternRun `json:"runs"`
		Counts map[string]int  `json:"counts"`
	}
	if err := json.NewDecoder(list.Body).Decode(&listResp); err != nil {
		t.Fatalf("Failed to decode runs: %v", err)
	}
	if len(listResp.Runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(listResp.Runs))
	}
	runID := listResp.Runs[0].ID

	// Run completion lands after the result event, so poll briefly.
	deadline := time.Now().Add(3 * time.Second)
	for {
		run, err := database.GetRun(runID)
		if err != nil {
			t.Fatalf("Failed to fetch run: %v", err)
		}
		if run.Status == db.RunStatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Run %s never completed, status %q", runID, run.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}

	// Completed runs feed the elapsed-time summary.
	list = get(mux, "/api/runs")
	var summaryResp struct {
		Elapsed map[string]db.ElapsedSummary `json:"elapsed"`
	}
	if err := json.NewDecoder(list.Body).Decode(&summaryResp); err != nil {
		t.Fatalf("Failed to decode runs summary: %v", err)
	}
	cutStats, ok := summaryResp.Elapsed["cut"]
	if !ok {
		t.Fatal("Expected an elapsed summary for the cut surface")
	}
	if cutStats.Count != 1 {
		t.Errorf("Expected 1 completed cut run in the summary, got %d", cutStats.Count)
	}
	if cutStats.StddevMs != 0 {
		t.Errorf("Single-run stddev should be 0, got %v", cutStats.StddevMs)
	}

	detail := get(mux, "/api/runs/"+runID)
	if detail.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", detail.Code, detail.Body.String())
	}

	var detailResp struct {
		Run     *db.PatternRun `json:"run"`
		Metrics *db.RunMetrics `json:"metrics"`
	}
	if err := json.NewDecoder(detail.Body).Decode(&detailResp); err != nil {
		t.Fatalf("Failed to decode run detail: %v", err)
	}
	if detailResp.Run == nil || detailResp.Run.Surface != "cut" {
		t.Errorf("Unexpected run payload: %+v", detailResp.Run)
	}
	if detailResp.Metrics == nil {
		t.Error("Expected cut metrics to be recorded")
	}

	if missing := get(mux, "/api/runs/no-such-run"); missing.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for missing run, got %d", missing.Code)
	}
	if bad := get(mux, "/api/runs?limit=abc"); bad.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad limit, got %d", bad.Code)
	}
}

func TestRunsDisabledWithoutDB(t *testing.T) {
	server, _ := newTestServer(t, nil)
	mux := server.ServeMux()

	if w := get(mux, "/api/runs"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
	if w := get(mux, "/api/runs/abc"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}

func TestGenerateLayout(t *testing.T) {
	server, _ := newTestServer(t, nil)
	mux := server.ServeMux()

	kinds := get(mux, "/api/layout")
	if kinds.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", kinds.Code)
	}
	var kindsResp struct {
		Kinds []layout.Kind `json:"kinds"`
	}
	if err := json.NewDecoder(kinds.Body).Decode(&kindsResp); err != nil {
		t.Fatalf("Failed to decode kinds: %v", err)
	}
	if len(kindsResp.Kinds) != len(layout.Kinds()) {
		t.Errorf("Expected %d kinds, got %d", len(layout.Kinds()), len(kindsResp.Kinds))
	}

	w := postJSON(t, mux, "/api/layout", map[string]interface{}{
		"kind":           "ring",
		"tiles_per_ring": []int{6},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var genResp struct {
		Kind   layout.Kind         `json:"kind"`
		Count  int                 `json:"count"`
		Coords []layout.Coordinate `json:"coords"`
	}
	if err := json.NewDecoder(w.Body).Decode(&genResp); err != nil {
		t.Fatalf("Failed to decode layout: %v", err)
	}
	if genResp.Count == 0 || len(genResp.Coords) != genResp.Count {
		t.Errorf("Inconsistent layout response: count=%d coords=%d", genResp.Count, len(genResp.Coords))
	}

	if bad := postJSON(t, mux, "/api/layout", map[string]interface{}{"kind": "voronoi"}); bad.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown kind, got %d", bad.Code)
	}

	req := httptest.NewRequest(http.MethodPut, "/api/layout", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", rec.Code)
	}
}

func TestShowConfig(t *testing.T) {
	server, _ := newTestServer(t, nil)
	mux := server.ServeMux()

	w := get(mux, "/api/config")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var cfg map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&cfg); err != nil {
		t.Fatalf("Failed to decode config: %v", err)
	}
	if cfg["wavelength_m"] != 0.3 {
		t.Errorf("Expected wavelength_m 0.3, got %v", cfg["wavelength_m"])
	}
	if cfg["antennas"] != float64(8) {
		t.Errorf("Expected 8 antennas, got %v", cfg["antennas"])
	}
	if cfg["persistence"] != false {
		t.Errorf("Expected persistence false, got %v", cfg["persistence"])
	}
}

func TestLoggingMiddlewarePreservesStatus(t *testing.T) {
	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		fmt.Fprint(w, "short and stout")
	}))

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTeapot {
		t.Errorf("Expected status 418, got %d", w.Code)
	}
	if w.Body.String() != "short and stout" {
		t.Errorf("Unexpected body: %q", w.Body.String())
	}
}

func TestStatusCodeColor(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, colorBoldGreen + "200" + colorReset},
		{302, colorYellow + "302" + colorReset},
		{404, colorBoldRed + "404" + colorReset},
		{500, colorBoldRed + "500" + colorReset},
		{100, "100"},
	}

	for _, tt := range tests {
		if got := statusCodeColor(tt.code); got != tt.want {
			t.Errorf("statusCodeColor(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
