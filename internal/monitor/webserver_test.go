package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bingo-data/beamscope/internal/config"
	"github.com/bingo-data/beamscope/internal/efield"
	"github.com/bingo-data/beamscope/internal/engine"
	"github.com/bingo-data/beamscope/internal/layout"
	"github.com/bingo-data/beamscope/internal/units"
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

// computeSurface runs one computation to completion so the surface has
// a latest result for the chart handlers to render.
func computeSurface(t *testing.T, orch *engine.Orchestrator, surface engine.Surface) {
	t.Helper()
	events, cancel := orch.Subscribe(64)
	defer cancel()

	set := testSet()
	samples := set.Samples
	if surface == engine.SurfaceCut {
		samples = set.CutAtPhi(0, 0)
	}
	if _, err := orch.Submit(engine.SubmitRequest{
		Surface:    surface,
		Coords:     testCoords(8),
		Samples:    samples,
		WaveNumber: units.WaveNumberFromWavelength(0.3),
		Scale:      engine.ScaleDB,
	}); err != nil {
		t.Fatalf("submit %s: %v", surface, err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == engine.EventResult && ev.Surface == surface {
				return
			}
			if ev.Kind == engine.EventError {
				t.Fatalf("computation failed: %s", ev.Error)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s result", surface)
		}
	}
}

func newTestWebServer(t *testing.T, orch *engine.Orchestrator) *WebServer {
	t.Helper()
	return NewWebServer(WebServerConfig{
		Address:  ":0",
		Orch:     orch,
		Tuning:   config.DefaultTuningConfig(),
		Antennas: 8,
		Samples:  13 * 24,
	})
}

func get(mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestNewWebServer(t *testing.T) {
	orch := engine.NewOrchestrator()

	server := NewWebServer(WebServerConfig{
		Address:  ":0",
		Orch:     orch,
		Antennas: 12,
	})

	if server == nil {
		t.Fatal("NewWebServer returned nil")
	}

	if server.orch != orch {
		t.Error("WebServer orchestrator not set correctly")
	}

	if server.antennas != 12 {
		t.Error("WebServer antennas not set correctly")
	}

	if server.tuning == nil {
		t.Error("WebServer should default to an empty tuning config")
	}
}

func TestWebServer_HealthHandler(t *testing.T) {
	orch := engine.NewOrchestrator()
	server := newTestWebServer(t, orch)

	mux := server.setupRoutes()
	rr := get(mux, "/health")

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("Health handler returned wrong status code: got %v want %v",
			status, http.StatusOK)
	}

	expected := "application/json"
	if ctype := rr.Header().Get("Content-Type"); ctype != expected {
		t.Errorf("Health handler returned wrong content type: got %v want %v",
			ctype, expected)
	}

	body := rr.Body.String()

	if !strings.Contains(body, `"status": "ok"`) {
		t.Error("Response should contain status: ok (with spaces)")
	}

	if !strings.Contains(body, `"service": "beamscope"`) {
		t.Error("Response should contain service: beamscope (with spaces)")
	}
}

func TestWebServer_StatusHandler(t *testing.T) {
	orch := engine.NewOrchestrator()
	server := newTestWebServer(t, orch)

	mux := server.setupRoutes()
	rr := get(mux, "/")

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("Status handler returned wrong status code: got %v want %v",
			status, http.StatusOK)
	}

	body := rr.Body.String()

	if !strings.Contains(body, "Beamscope Monitor") {
		t.Error("Response should contain 'Beamscope Monitor'")
	}

	if !strings.Contains(body, "<td>8</td>") {
		t.Error("Response should contain the antenna count")
	}

	if !strings.Contains(body, "250ms") {
		t.Error("Response should contain the debounce window")
	}

	// One row per chart surface
	for _, surface := range engine.Surfaces() {
		if !strings.Contains(body, string(surface)) {
			t.Errorf("Response should contain surface %q", surface)
		}
	}
}

func TestWebServer_StatusUnknownPath(t *testing.T) {
	orch := engine.NewOrchestrator()
	server := newTestWebServer(t, orch)

	mux := server.setupRoutes()
	rr := get(mux, "/nope")

	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown path, got %d", rr.Code)
	}
}

func TestWebServer_MountsAPI(t *testing.T) {
	orch := engine.NewOrchestrator()
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("api-ok"))
	})

	server := NewWebServer(WebServerConfig{
		Address: ":0",
		Orch:    orch,
		API:     api,
	})

	mux := server.setupRoutes()
	rr := get(mux, "/api/ping")

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 from mounted API, got %d", rr.Code)
	}
	if rr.Body.String() != "api-ok" {
		t.Errorf("Expected mounted API body, got %q", rr.Body.String())
	}
}

func TestWebServer_StartStop(t *testing.T) {
	orch := engine.NewOrchestrator()
	server := newTestWebServer(t, orch)

	// Start server with context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		err := server.Start(ctx)
		if err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Give the server time to start
	time.Sleep(50 * time.Millisecond)

	// Cancel the context to stop the server
	cancel()

	// Wait a bit for the server to stop
	time.Sleep(50 * time.Millisecond)

	// Check if there were any startup errors
	select {
	case err := <-errChan:
		t.Fatalf("Server start failed: %v", err)
	default:
		// No error, which is what we expect
	}
}
