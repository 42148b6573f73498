// Command layoutgen generates a station layout and writes it as a
// coordinate CSV, one x,y pair in meters per row.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/bingo-data/beamscope/internal/layout"
)

var (
	kind        = flag.String("kind", "ring", "Station generator (tile, grid, ring, spiral, rhombus, hex, phyllotaxis, random)")
	output      = flag.String("o", "", "Output path (stdout when empty)")
	expandTiles = flag.Bool("expand-tiles", false, "Expand tile centers into full 64-antenna tiles")

	// Grid.
	cols = flag.Int("cols", 3, "Grid columns")
	rows = flag.Int("rows", 3, "Grid rows")

	// Ring.
	tilesPerRing = flag.String("tiles-per-ring", "6,12", "Comma-separated tile counts per ring, inner ring first")
	centerTile   = flag.Bool("center-tile", true, "Place a tile at the station center (ring, spiral, hex)")

	// Spiral.
	arms        = flag.Int("arms", 4, "Spiral arms")
	tilesPerArm = flag.Int("tiles-per-arm", 6, "Tiles along each spiral arm")
	exponential = flag.Bool("exponential", false, "Grow spiral radius by factor instead of increment")

	// Rhombus.
	halfRows = flag.Int("half-rows", 3, "Rhombus rows above the horizontal axis")

	// Hex.
	hexRings = flag.Int("hex-rings", 2, "Hexagonal rings around the center tile")

	// Phyllotaxis and random.
	tiles      = flag.Int("tiles", 24, "Tile count (phyllotaxis, random)")
	maxRadiusM = flag.Float64("max-radius", 12, "Maximum station radius in meters (random)")

	// Shared placement knobs.
	spacingMode = flag.String("spacing", "", "Radial spacing mode: linear or center_exponential")
	seed        = flag.Int64("seed", 0, "Placement seed, 0 derives one from the clock")
	jitterM     = flag.Float64("jitter", 0, "Gaussian position jitter stddev in meters")
	minSep      = flag.Float64("min-sep", 0, "Minimum separation as a factor of the tile diagonal")
)

// parseRingCounts turns "6,12" into []int{6, 12}.
func parseRingCounts(s string) ([]int, error) {
	fields := strings.Split(s, ",")
	counts := make([]int, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid ring count %q: %w", f, err)
		}
		counts = append(counts, n)
	}
	return counts, nil
}

// buildRequest maps the parsed flags onto a layout request.
func buildRequest() (layout.Request, error) {
	k := layout.Kind(*kind)
	if !k.IsValid() {
		return layout.Request{}, fmt.Errorf("unknown layout kind %q (known: %v)", *kind, layout.Kinds())
	}

	rings, err := parseRingCounts(*tilesPerRing)
	if err != nil {
		return layout.Request{}, err
	}

	return layout.Request{
		Kind:                k,
		ExpandTiles:         *expandTiles,
		Cols:                *cols,
		Rows:                *rows,
		TilesPerRing:        rings,
		AddCenterTile:       *centerTile,
		Arms:                *arms,
		TilesPerArm:         *tilesPerArm,
		Exponential:         *exponential,
		HalfRows:            *halfRows,
		Rings:               *hexRings,
		Tiles:               *tiles,
		MaxRadiusM:          *maxRadiusM,
		SpacingMode:         layout.SpacingMode(*spacingMode),
		Seed:                *seed,
		JitterStddevM:       *jitterM,
		MinSeparationFactor: *minSep,
	}, nil
}

func main() {
	flag.Parse()

	req, err := buildRequest()
	if err != nil {
		log.Fatalf("invalid layout request: %v", err)
	}

	coords, err := req.Generate()
	if err != nil {
		log.Fatalf("failed to generate %s layout: %v", req.Kind, err)
	}

	if *output == "" {
		if err := layout.WriteCSV(os.Stdout, coords); err != nil {
			log.Fatalf("failed to write layout: %v", err)
		}
		return
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *output, err)
	}
	defer f.Close()
	if err := layout.WriteCSV(f, coords); err != nil {
		log.Fatalf("failed to write layout: %v", err)
	}
	log.Printf("✓ Created: %s (%d positions)", *output, len(coords))
}
