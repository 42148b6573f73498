package monitor

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/bingo-data/beamscope/internal/config"
	"github.com/bingo-data/beamscope/internal/engine"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestCutPlotPNG(t *testing.T) {
	orch := engine.NewOrchestrator()
	startOrchestrator(t, orch)
	computeSurface(t, orch, engine.SurfaceCut)

	server := newTestWebServer(t, orch)
	mux := server.setupRoutes()

	rr := get(mux, "/debug/plots/cut.png")

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ctype := rr.Header().Get("Content-Type"); ctype != "image/png" {
		t.Errorf("Expected image/png, got %q", ctype)
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), pngMagic) {
		t.Error("Response body is not a PNG")
	}
}

func TestGridPlotPNG(t *testing.T) {
	orch := engine.NewOrchestrator()
	startOrchestrator(t, orch)
	computeSurface(t, orch, engine.SurfaceGrid)

	server := newTestWebServer(t, orch)
	mux := server.setupRoutes()

	rr := get(mux, "/debug/plots/grid.png")

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), pngMagic) {
		t.Error("Response body is not a PNG")
	}
}

func TestCutPlotNoResult(t *testing.T) {
	orch := engine.NewOrchestrator()
	server := newTestWebServer(t, orch)
	mux := server.setupRoutes()

	rr := get(mux, "/debug/plots/cut.png")

	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 before any computation, got %d", rr.Code)
	}
}

func TestPlotsDisabledByConfig(t *testing.T) {
	orch := engine.NewOrchestrator()
	startOrchestrator(t, orch)
	computeSurface(t, orch, engine.SurfaceCut)

	tuning := config.DefaultTuningConfig()
	off := false
	tuning.PNGPlots = &off

	server := NewWebServer(WebServerConfig{
		Address: ":0",
		Orch:    orch,
		Tuning:  tuning,
	})
	mux := server.setupRoutes()

	rr := get(mux, "/debug/plots/cut.png")

	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 when PNG plots are disabled, got %d", rr.Code)
	}

	// The HTML charts stay up regardless.
	rr = get(mux, "/debug/charts/cut")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected charts to stay enabled, got %d", rr.Code)
	}
}
