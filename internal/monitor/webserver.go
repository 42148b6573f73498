package monitor

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/bingo-data/beamscope/internal/config"
	"github.com/bingo-data/beamscope/internal/db"
	"github.com/bingo-data/beamscope/internal/engine"
	"github.com/bingo-data/beamscope/internal/version"
)

//go:embed status.html
var StatusHTML embed.FS

// WebServer handles the HTTP interface for monitoring the compute
// engine. It provides endpoints for health checks, a live status page,
// interactive charts of the latest results, PNG renders and a
// websocket progress stream.
type WebServer struct {
	address   string
	orch      *engine.Orchestrator
	tuning    *config.TuningConfig
	db        *db.DB
	hub       *ProgressHub
	api       http.Handler
	antennas  int
	samples   int
	server    *http.Server
	startedAt time.Time
}

// WebServerConfig contains configuration options for the web server
type WebServerConfig struct {
	Address  string
	Orch     *engine.Orchestrator
	Tuning   *config.TuningConfig
	DB       *db.DB
	Hub      *ProgressHub
	API      http.Handler
	Antennas int
	Samples  int
}

// NewWebServer creates a new web server with the provided configuration
func NewWebServer(cfg WebServerConfig) *WebServer {
	ws := &WebServer{
		address:   cfg.Address,
		orch:      cfg.Orch,
		tuning:    cfg.Tuning,
		db:        cfg.DB,
		hub:       cfg.Hub,
		api:       cfg.API,
		antennas:  cfg.Antennas,
		samples:   cfg.Samples,
		startedAt: time.Now(),
	}

	if ws.tuning == nil {
		ws.tuning = config.EmptyTuningConfig()
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown
func (ws *WebServer) Start(ctx context.Context) error {
	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for context cancellation to shut down server
	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	// Create a shutdown context with a shorter timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/debug/charts/cut", ws.handleCutChart)
	mux.HandleFunc("/debug/charts/grid", ws.handleGridChart)
	mux.HandleFunc("/debug/charts/psf", ws.handlePSFChart)
	if ws.tuning.GetPNGPlots() {
		mux.HandleFunc("/debug/plots/cut.png", ws.handleCutPlot)
		mux.HandleFunc("/debug/plots/grid.png", ws.handleGridPlot)
	}
	if ws.hub != nil {
		mux.HandleFunc("/ws/progress", ws.hub.HandleWebSocket)
	}
	if ws.api != nil {
		mux.Handle("/api/", ws.api)
	}
	if ws.db != nil {
		ws.db.AttachAdminRoutes(mux)
	}

	return mux
}

// handleHealth handles the health check endpoint
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "beamscope", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// handleStatus handles the main status page endpoint
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	// Determine persistence status
	persistenceStatus := "disabled"
	if ws.db != nil {
		persistenceStatus = "enabled"
	}

	clients := 0
	if ws.hub != nil {
		clients = ws.hub.GetConnectedCount()
	}

	var runCounts map[string]int
	if ws.db != nil {
		if counts, err := ws.db.CountRunsByStatus(); err == nil {
			runCounts = counts
		}
	}

	// Load and parse the HTML template from embedded filesystem
	tmpl, err := template.ParseFS(StatusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// Template data
	data := struct {
		Version           string
		HTTPAddress       string
		Uptime            string
		Antennas          int
		Samples           int
		WavelengthM       float64
		DebounceWindow    string
		PersistenceStatus string
		ProgressClients   int
		Stats             engine.Stats
		Active            []engine.ActiveTask
		RunCounts         map[string]int
	}{
		Version:           version.String(),
		HTTPAddress:       ws.address,
		Uptime:            time.Since(ws.startedAt).Round(time.Second).String(),
		Antennas:          ws.antennas,
		Samples:           ws.samples,
		WavelengthM:       ws.tuning.GetWavelengthM(),
		DebounceWindow:    ws.orch.Debounce().String(),
		PersistenceStatus: persistenceStatus,
		ProgressClients:   clients,
		Stats:             ws.orch.Stats(),
		Active:            ws.orch.Active(),
		RunCounts:         runCounts,
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// Close shuts down the web server
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}
