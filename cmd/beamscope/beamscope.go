package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/bingo-data/beamscope/internal/api"
	"github.com/bingo-data/beamscope/internal/config"
	"github.com/bingo-data/beamscope/internal/db"
	"github.com/bingo-data/beamscope/internal/efield"
	"github.com/bingo-data/beamscope/internal/engine"
	"github.com/bingo-data/beamscope/internal/layout"
	"github.com/bingo-data/beamscope/internal/monitor"
	"github.com/bingo-data/beamscope/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	dbFile      = flag.String("db", "beamscope.db", "Path to the SQLite run database (empty disables run recording)")
	efieldFile  = flag.String("efield", "", "Path to the element-pattern CSV export (required)")
	stationFile = flag.String("station", "", "Path to a station layout CSV, one x,y pair in meters per row")
	layoutKind  = flag.String("layout", "tile", "Station generator used when -station is not given")
	expandTiles = flag.Bool("expand-tiles", false, "Expand generated tile centers into full 64-antenna tiles")
	configFile  = flag.String("config", "", "Path to a tuning config JSON (embedded defaults when empty)")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

// loadStation resolves the antenna coordinates the server computes
// against: an explicit CSV file wins, otherwise the named generator
// runs with its defaults.
func loadStation() ([]layout.Coordinate, error) {
	if *stationFile != "" {
		coords, err := layout.LoadFile(*stationFile)
		if err != nil {
			return nil, err
		}
		log.Printf("Loaded station layout from %s (%d antennas)", *stationFile, len(coords))
		return coords, nil
	}

	kind := layout.Kind(*layoutKind)
	if !kind.IsValid() {
		return nil, fmt.Errorf("unknown layout kind %q (known: %v)", *layoutKind, layout.Kinds())
	}
	coords, err := layout.Request{Kind: kind, ExpandTiles: *expandTiles}.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate %s layout: %w", kind, err)
	}
	log.Printf("Generated %s station layout (%d positions, expand-tiles=%v)", kind, len(coords), *expandTiles)
	return coords, nil
}

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("beamscope %s\n", version.String())
		return
	}

	// `beamscope migrate <action>` manages the run database schema
	// without starting the server.
	if flag.NArg() > 0 && flag.Arg(0) == "migrate" {
		db.RunMigrateCommand(flag.Args()[1:], *dbFile)
		return
	}

	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}
	if *efieldFile == "" {
		log.Fatal("Element-pattern CSV is required (-efield)")
	}

	// Load the tuning config
	var tuning *config.TuningConfig
	if *configFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		log.Printf("Loaded tuning config from %s", *configFile)
	} else {
		tuning = config.MustLoadDefaultConfig()
		log.Println("Using embedded tuning defaults (use -config to override)")
	}

	// Load the element pattern
	set, err := efield.LoadFile(*efieldFile, efield.LoadOptions{
		FreqGHz:     tuning.GetEfieldFreqGHz(),
		ThetaStride: tuning.GetThetaStride(),
	})
	if err != nil {
		log.Fatalf("Failed to load element pattern: %v", err)
	}
	if len(set.Samples) == 0 {
		log.Fatalf("Element pattern %s has no usable samples", *efieldFile)
	}
	log.Printf("Loaded %d element-pattern samples (%d thetas x %d phis, %d dropped)",
		len(set.Samples), len(set.UniqueThetas()), len(set.UniquePhis()), set.Dropped)

	// Resolve the station geometry
	coords, err := loadStation()
	if err != nil {
		log.Fatalf("Failed to resolve station layout: %v", err)
	}

	// Open the run database unless recording is disabled
	var database *db.DB
	if *dbFile != "" {
		database, err = db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("Failed to connect to run database: %v", err)
		}
		defer database.Close()
		log.Printf("Run recording enabled (%s)", *dbFile)
	} else {
		log.Println("Run recording disabled (empty -db)")
	}

	opts := []engine.Option{
		engine.WithDebounce(tuning.GetDebounceWindow()),
		engine.WithQueueSize(tuning.GetWorkerQueueSize()),
	}
	if database != nil {
		opts = append(opts, engine.WithRecorder(database))
	}
	orch := engine.NewOrchestrator(opts...)

	hub := monitor.NewProgressHub()
	events, unsubscribe := orch.Subscribe(tuning.GetEventBufferSize())
	defer unsubscribe()

	apiHandler := api.LoggingMiddleware(api.NewServer(orch, database, tuning, coords, set).ServeMux())
	webServer := monitor.NewWebServer(monitor.WebServerConfig{
		Address:  *listen,
		Orch:     orch,
		Tuning:   tuning,
		DB:       database,
		Hub:      hub,
		API:      apiHandler,
		Antennas: len(coords),
		Samples:  len(set.Samples),
	})

	// Create a wait group for the scheduler, progress hub and HTTP
	// server routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Scheduler routine: workers plus the response loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		orch.Run(ctx)
		log.Print("scheduler routine terminated")
	}()

	// Progress hub routine: fans accepted events out to websocket clients
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx, events)
		log.Print("progress hub routine terminated")
	}()

	// HTTP server routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := webServer.Start(ctx); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
