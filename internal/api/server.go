package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bingo-data/beamscope/internal/config"
	"github.com/bingo-data/beamscope/internal/db"
	"github.com/bingo-data/beamscope/internal/efield"
	"github.com/bingo-data/beamscope/internal/engine"
	"github.com/bingo-data/beamscope/internal/httputil"
	"github.com/bingo-data/beamscope/internal/layout"
	"github.com/bingo-data/beamscope/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// maxComputeBody caps inline geometry uploads. A 50k-antenna station
// serializes to about 2MB, so this leaves generous headroom.
const maxComputeBody = 16 << 20

type Server struct {
	orch       *engine.Orchestrator
	db         *db.DB
	cfg        *config.TuningConfig
	coords     []layout.Coordinate
	set        *efield.Set
	waveNumber float64
}

// NewServer wires the HTTP surface over the task orchestrator.
// database may be nil when run persistence is disabled; coords are the
// station default used when a compute request carries no geometry of
// its own.
func NewServer(orch *engine.Orchestrator, database *db.DB, cfg *config.TuningConfig, coords []layout.Coordinate, set *efield.Set) *Server {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	return &Server{
		orch:       orch,
		db:         database,
		cfg:        cfg,
		coords:     coords,
		set:        set,
		waveNumber: units.WaveNumberFromWavelength(cfg.GetWavelengthM()),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/compute/cut", s.computeCut)
	mux.HandleFunc("/api/compute/grid", s.computeGrid)
	mux.HandleFunc("/api/compute/psf", s.computePSF)
	mux.HandleFunc("/api/tasks", s.showTasks)
	mux.HandleFunc("/api/results/", s.showLatestResult)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/", s.showRun)
	mux.HandleFunc("/api/layout", s.generateLayout)
	mux.HandleFunc("/api/config", s.showConfig)
	return mux
}

// computeRequest is the body of a POST /api/compute/{surface} call.
// Geometry resolution order: inline coords, then a layout generator
// request, then the station the server was started with.
type computeRequest struct {
	Coords        []layout.Coordinate `json:"coords,omitempty"`
	Layout        *layout.Request     `json:"layout,omitempty"`
	SteerThetaDeg float64             `json:"steer_theta_deg"`
	SteerPhiDeg   float64             `json:"steer_phi_deg"`
	CutPhiDeg     *float64            `json:"cut_phi_deg,omitempty"`
	WavelengthM   *float64            `json:"wavelength_m,omitempty"`
	Scale         string              `json:"scale,omitempty"`
	Convention    string              `json:"convention,omitempty"`
	// Debounce trades the strict one-in-flight refusal for
	// trailing-edge coalescing, for callers wired to UI sliders.
	Debounce bool `json:"debounce,omitempty"`
}

func (s *Server) computeCut(w http.ResponseWriter, r *http.Request) {
	s.handleCompute(w, r, engine.SurfaceCut)
}

func (s *Server) computeGrid(w http.ResponseWriter, r *http.Request) {
	s.handleCompute(w, r, engine.SurfaceGrid)
}

func (s *Server) computePSF(w http.ResponseWriter, r *http.Request) {
	s.handleCompute(w, r, engine.SurfacePSF)
}

func (s *Server) handleCompute(w http.ResponseWriter, r *http.Request, surface engine.Surface) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req computeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxComputeBody)).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	coords, err := s.resolveCoords(req)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	scale := engine.ScaleMode(req.Scale)
	if scale == "" {
		scale = engine.ScaleMode(s.cfg.GetDefaultScale())
	}
	if scale != engine.ScaleDB && scale != engine.ScaleLinear {
		httputil.BadRequest(w, fmt.Sprintf("Invalid 'scale' %q", req.Scale))
		return
	}

	waveNumber := s.waveNumber
	if req.WavelengthM != nil {
		if *req.WavelengthM <= 0 {
			httputil.BadRequest(w, "Invalid 'wavelength_m': must be positive")
			return
		}
		waveNumber = units.WaveNumberFromWavelength(*req.WavelengthM)
	}

	cutPhi := s.cfg.GetCutPhiDeg()
	if req.CutPhiDeg != nil {
		cutPhi = *req.CutPhiDeg
	}

	convention := req.Convention
	if convention == "" {
		if surface == engine.SurfaceCut {
			convention = s.cfg.GetCutConvention()
		} else {
			convention = s.cfg.GetGridConvention()
		}
	}

	if s.set == nil || len(s.set.Samples) == 0 {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "No element pattern loaded")
		return
	}

	// Cuts sweep one constant-phi plane; grids and point-spread
	// curves sweep the whole sphere the export covers.
	samples := s.set.Samples
	if surface == engine.SurfaceCut {
		samples = s.set.CutAtPhi(cutPhi, 0)
		if len(samples) == 0 {
			httputil.BadRequest(w,
				fmt.Sprintf("No element-field samples on the phi=%g plane", cutPhi))
			return
		}
	}

	sub := engine.SubmitRequest{
		Surface:    surface,
		Coords:     coords,
		Samples:    samples,
		WaveNumber: waveNumber,
		Steering:   units.Angle{ThetaDeg: req.SteerThetaDeg, PhiDeg: req.SteerPhiDeg},
		Convention: convention,
		CutPhiDeg:  cutPhi,
		Scale:      scale,
	}

	if req.Debounce {
		s.orch.SubmitDebounced(sub)
		httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
			"surface":   surface,
			"debounced": true,
			"window_ms": s.orch.Debounce().Milliseconds(),
		})
		return
	}

	id, err := s.orch.Submit(sub)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrTaskInFlight):
			httputil.WriteJSONError(w, http.StatusConflict, err.Error())
		case errors.Is(err, engine.ErrWorkerUnavailable):
			httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
		default:
			httputil.BadRequest(w, err.Error())
		}
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"surface": surface,
		"task_id": id,
	})
}

func (s *Server) resolveCoords(req computeRequest) ([]layout.Coordinate, error) {
	if len(req.Coords) > 0 {
		return req.Coords, nil
	}
	if req.Layout != nil {
		coords, err := req.Layout.Generate()
		if err != nil {
			return nil, fmt.Errorf("layout: %w", err)
		}
		return coords, nil
	}
	if len(s.coords) > 0 {
		return s.coords, nil
	}
	return nil, fmt.Errorf("no antenna coordinates: provide 'coords', a 'layout', or start the server with a station file")
}

func (s *Server) showTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"active": s.orch.Active(),
		"stats":  s.orch.Stats(),
	})
}

func (s *Server) showLatestResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	surface := engine.Surface(strings.TrimPrefix(r.URL.Path, "/api/results/"))
	if !surface.IsValid() {
		httputil.BadRequest(w, fmt.Sprintf("Unknown surface %q", surface))
		return
	}

	result, ok := s.orch.Latest(surface)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("No result for surface %q yet", surface))
		return
	}

	httputil.WriteJSONOK(w, result)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "Run persistence is disabled")
		return
	}

	limit := 0 // db default
	if l := r.URL.Query().Get("limit"); l != "" {
		parsedLimit, err := strconv.Atoi(l)
		if err != nil || parsedLimit < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsedLimit
	}

	runs, err := s.db.ListRuns(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve runs: %v", err))
		return
	}

	counts, err := s.db.CountRunsByStatus()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to count runs: %v", err))
		return
	}

	elapsed, err := s.db.ElapsedStatsBySurface()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to summarize runs: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"runs":    runs,
		"counts":  counts,
		"elapsed": elapsed,
	})
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "Run persistence is disabled")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if id == "" || strings.Contains(id, "/") {
		httputil.BadRequest(w, "Invalid run id")
		return
	}

	run, err := s.db.GetRun(id)
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, fmt.Sprintf("Run %s not found", id))
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve run: %v", err))
		return
	}

	resp := map[string]interface{}{
		"run": run,
	}

	// Metrics only exist for completed cut and psf runs.
	metrics, err := s.db.GetRunMetrics(id)
	if err == nil {
		resp["metrics"] = metrics
	} else if !errors.Is(err, db.ErrNotFound) {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve run metrics: %v", err))
		return
	}

	httputil.WriteJSONOK(w, resp)
}

func (s *Server) generateLayout(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, map[string]interface{}{"kinds": layout.Kinds()})
		return
	case http.MethodPost:
	default:
		httputil.MethodNotAllowed(w)
		return
	}

	var req layout.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxComputeBody)).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	coords, err := req.Generate()
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"kind":   req.Kind,
		"count":  len(coords),
		"coords": coords,
	})
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	samples := 0
	if s.set != nil {
		samples = len(s.set.Samples)
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"wavelength_m":      s.cfg.GetWavelengthM(),
		"wave_number":       s.waveNumber,
		"cut_phi_deg":       s.cfg.GetCutPhiDeg(),
		"cut_convention":    s.cfg.GetCutConvention(),
		"grid_convention":   s.cfg.GetGridConvention(),
		"default_scale":     s.cfg.GetDefaultScale(),
		"debounce_window":   s.orch.Debounce().String(),
		"worker_queue_size": s.cfg.GetWorkerQueueSize(),
		"max_chart_points":  s.cfg.GetMaxChartPoints(),
		"antennas":          len(s.coords),
		"samples":           samples,
		"persistence":       s.db != nil,
	})
}
