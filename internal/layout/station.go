package layout

import (
	"fmt"
	"math"
	randv2 "math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/bingo-data/beamscope/internal/monitoring"
)

var logf = monitoring.Component("layout")

// SpacingMode selects how station spacing grows away from the center.
type SpacingMode string

const (
	SpacingLinear            SpacingMode = "linear"
	SpacingCenterExponential SpacingMode = "center_exponential"
)

// GoldenAngleRad is the phyllotaxis divergence angle, pi*(3-sqrt(5)).
var GoldenAngleRad = math.Pi * (3.0 - math.Sqrt(5.0))

// defaultMaxPlacementAttempts bounds the jittered-placement retry loop.
const defaultMaxPlacementAttempts = 10000

// Placement carries the jitter and collision parameters shared by every
// station generator. A zero JitterStddevM disables jitter and collision
// checking entirely.
type Placement struct {
	JitterStddevM        float64 `json:"jitter_stddev_m,omitempty"`
	MinSeparationFactor  float64 `json:"min_separation_factor,omitempty"`
	MaxPlacementAttempts int     `json:"max_placement_attempts,omitempty"`
	Seed                 int64   `json:"seed,omitempty"`
}

func (p *Placement) applyDefaults() {
	if p.MinSeparationFactor == 0 {
		p.MinSeparationFactor = 1.05
	}
	if p.MaxPlacementAttempts == 0 {
		p.MaxPlacementAttempts = defaultMaxPlacementAttempts
	}
}

func newPCG(seed int64) *randv2.PCG {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return randv2.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)
}

// scaleFromCenter scales each point's distance to the origin exponentially:
// d' = d * factor^(d/dref), with dref the mean nonzero distance. Points at
// the origin are left alone. A factor of 1 (or an invalid one) is a no-op.
func scaleFromCenter(coords []Coordinate, factor float64) []Coordinate {
	if len(coords) == 0 || factor <= 0 || factor == 1 {
		return coords
	}

	distances := make([]float64, len(coords))
	var sum float64
	var nonzero int
	for i, c := range coords {
		d := math.Hypot(c.X, c.Y)
		distances[i] = d
		if d > 1e-9 {
			sum += d
			nonzero++
		}
	}
	if nonzero == 0 {
		return coords
	}
	ref := sum / float64(nonzero)
	if ref < 1e-9 {
		ref = 1.0
	}

	out := make([]Coordinate, len(coords))
	for i, c := range coords {
		pow := 1.0
		if distances[i] >= 1e-9 {
			pow = math.Pow(factor, distances[i]/ref)
		}
		out[i] = Coordinate{X: c.X * pow, Y: c.Y * pow}
	}
	return out
}

// placeJittered draws gaussian offsets around (baseX, baseY) until the
// candidate clears minDistSq against every already-placed point, giving up
// after maxAttempts draws.
func placeJittered(normal distuv.Normal, baseX, baseY float64, placed []Coordinate, minDistSq float64, maxAttempts int) (Coordinate, bool) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		cand := Coordinate{X: baseX + normal.Rand(), Y: baseY + normal.Rand()}
		collision := false
		for _, p := range placed {
			dx := cand.X - p.X
			dy := cand.Y - p.Y
			if dx*dx+dy*dy < minDistSq {
				collision = true
				break
			}
		}
		if !collision {
			return cand, true
		}
	}
	return Coordinate{}, false
}

// applyPlacement runs the shared jitter/collision pass over base
// coordinates. Points that cannot be placed within the attempt budget are
// skipped (and counted), matching the generator contract that a crowded
// request yields fewer centers rather than an error.
func applyPlacement(base []Coordinate, p Placement, tileDiagonal float64) []Coordinate {
	if p.JitterStddevM <= 0 {
		return base
	}
	minDist := p.MinSeparationFactor * tileDiagonal
	minDistSq := minDist * minDist
	normal := distuv.Normal{Mu: 0, Sigma: p.JitterStddevM, Src: newPCG(p.Seed)}

	placed := make([]Coordinate, 0, len(base))
	skipped := 0
	for _, b := range base {
		c, ok := placeJittered(normal, b.X, b.Y, placed, minDistSq, p.MaxPlacementAttempts)
		if !ok {
			skipped++
			continue
		}
		placed = append(placed, c)
	}
	if skipped > 0 {
		logf("skipped %d/%d centers after %d placement attempts each", skipped, len(base), p.MaxPlacementAttempts)
	}
	return placed
}

func finish(coords []Coordinate) []Coordinate {
	return Center(roundAll(coords))
}

// GridConfig describes a rectangular grid of tile centers.
type GridConfig struct {
	Cols, Rows           int
	TileWidthM           float64
	TileHeightM          float64
	SpacingMode          SpacingMode
	SpacingXFactor       float64
	SpacingYFactor       float64
	CenterExpScaleFactor float64
	Placement
}

// Grid generates a Cols x Rows arrangement of tile centers.
func Grid(cfg GridConfig) ([]Coordinate, error) {
	if cfg.Cols <= 0 || cfg.Rows <= 0 {
		return nil, fmt.Errorf("grid layout needs positive dimensions, got %dx%d", cfg.Cols, cfg.Rows)
	}
	applyTileDefaults(&cfg.TileWidthM, &cfg.TileHeightM)
	if cfg.SpacingMode == "" {
		cfg.SpacingMode = SpacingLinear
	}
	if cfg.SpacingXFactor == 0 {
		cfg.SpacingXFactor = 1.0
	}
	if cfg.SpacingYFactor == 0 {
		cfg.SpacingYFactor = 1.0
	}
	if cfg.CenterExpScaleFactor == 0 {
		cfg.CenterExpScaleFactor = 1.1
	}
	cfg.applyDefaults()

	diag := math.Hypot(cfg.TileWidthM, cfg.TileHeightM)
	spacingX := cfg.TileWidthM * cfg.SpacingXFactor
	spacingY := cfg.TileHeightM * cfg.SpacingYFactor

	base := make([]Coordinate, 0, cfg.Cols*cfg.Rows)
	for i := 0; i < cfg.Cols; i++ {
		x := (float64(i) - float64(cfg.Cols-1)/2.0) * spacingX
		for j := 0; j < cfg.Rows; j++ {
			y := (float64(j) - float64(cfg.Rows-1)/2.0) * spacingY
			base = append(base, Coordinate{X: x, Y: y})
		}
	}

	if cfg.SpacingMode == SpacingCenterExponential {
		base = scaleFromCenter(base, cfg.CenterExpScaleFactor)
	}
	return finish(applyPlacement(base, cfg.Placement, diag)), nil
}

// RingConfig describes concentric rings of tile centers, inner ring first.
type RingConfig struct {
	TilesPerRing         []int
	TileWidthM           float64
	TileHeightM          float64
	SpacingMode          SpacingMode
	RadiusStartFactor    float64
	RadiusStepFactor     float64
	CenterExpScaleFactor float64
	AddCenterTile        bool
	Placement
}

// Ring generates concentric rings of tile centers.
func Ring(cfg RingConfig) ([]Coordinate, error) {
	if len(cfg.TilesPerRing) == 0 && !cfg.AddCenterTile {
		return nil, fmt.Errorf("ring layout needs at least one ring or a center tile")
	}
	for i, n := range cfg.TilesPerRing {
		if n <= 0 {
			return nil, fmt.Errorf("ring %d has non-positive tile count %d", i, n)
		}
	}
	applyTileDefaults(&cfg.TileWidthM, &cfg.TileHeightM)
	if cfg.SpacingMode == "" {
		cfg.SpacingMode = SpacingLinear
	}
	if cfg.RadiusStartFactor == 0 {
		cfg.RadiusStartFactor = 1.5
	}
	if cfg.RadiusStepFactor == 0 {
		cfg.RadiusStepFactor = 1.0
	}
	if cfg.CenterExpScaleFactor == 0 {
		cfg.CenterExpScaleFactor = 1.1
	}
	cfg.applyDefaults()

	diag := math.Hypot(cfg.TileWidthM, cfg.TileHeightM)
	radius := cfg.RadiusStartFactor * diag
	linearStep := cfg.RadiusStepFactor * diag

	var base []Coordinate
	if cfg.AddCenterTile {
		base = append(base, Coordinate{})
	}
	for _, n := range cfg.TilesPerRing {
		for i := 0; i < n; i++ {
			angle := float64(i) * 2 * math.Pi / float64(n)
			base = append(base, Coordinate{X: radius * math.Cos(angle), Y: radius * math.Sin(angle)})
		}
		if cfg.SpacingMode == SpacingCenterExponential {
			radius *= cfg.RadiusStepFactor
		} else {
			radius += linearStep
		}
	}

	return finish(applyPlacement(base, cfg.Placement, diag)), nil
}

// SpiralConfig describes a multi-arm spiral of tile centers.
type SpiralConfig struct {
	Arms              int
	TilesPerArm       int
	TileWidthM        float64
	TileHeightM       float64
	Exponential       bool // radius grows by factor instead of increment
	RadiusStartFactor float64
	RadiusStepFactor  float64
	AngleStepRad      float64
	ArmOffsetRad      float64
	RotationPerArmRad float64
	IncludeCenterTile bool
	Placement
}

// Spiral generates tile centers along Arms spiral arms.
func Spiral(cfg SpiralConfig) ([]Coordinate, error) {
	if cfg.Arms <= 0 || cfg.TilesPerArm <= 0 {
		return nil, fmt.Errorf("spiral layout needs positive arms and tiles per arm, got %d/%d", cfg.Arms, cfg.TilesPerArm)
	}
	applyTileDefaults(&cfg.TileWidthM, &cfg.TileHeightM)
	if cfg.RadiusStartFactor == 0 {
		cfg.RadiusStartFactor = 0.5
	}
	if cfg.RadiusStepFactor == 0 {
		if cfg.Exponential {
			cfg.RadiusStepFactor = 1.1
		} else {
			cfg.RadiusStepFactor = 0.2
		}
	}
	if cfg.AngleStepRad == 0 {
		cfg.AngleStepRad = math.Pi / 6
	}
	cfg.applyDefaults()

	diag := math.Hypot(cfg.TileWidthM, cfg.TileHeightM)
	baseRadius := cfg.RadiusStartFactor * diag
	linearStep := cfg.RadiusStepFactor * diag

	var base []Coordinate
	seen := make(map[Coordinate]bool)
	add := func(c Coordinate) {
		key := Coordinate{X: roundCoord(c.X), Y: roundCoord(c.Y)}
		if !seen[key] {
			seen[key] = true
			base = append(base, c)
		}
	}
	if cfg.IncludeCenterTile {
		add(Coordinate{})
	}
	for p := 0; p < cfg.Arms; p++ {
		armAngle := float64(p)*(2*math.Pi/float64(cfg.Arms)) + float64(p)*cfg.RotationPerArmRad + cfg.ArmOffsetRad
		radius := baseRadius
		for i := 0; i < cfg.TilesPerArm; i++ {
			angle := armAngle + float64(i)*cfg.AngleStepRad
			add(Coordinate{X: radius * math.Cos(angle), Y: radius * math.Sin(angle)})
			if cfg.Exponential {
				radius *= cfg.RadiusStepFactor
			} else {
				radius += linearStep
			}
		}
	}

	return finish(applyPlacement(base, cfg.Placement, diag)), nil
}

// RhombusConfig describes a rhombus (diamond) arrangement built from
// HalfRows rows above the axis mirrored below it.
type RhombusConfig struct {
	HalfRows             int
	TileWidthM           float64
	TileHeightM          float64
	SpacingMode          SpacingMode
	SideLengthFactor     float64
	HCompressFactor      float64
	VCompressFactor      float64
	CenterExpScaleFactor float64
	Placement
}

// Rhombus generates a diamond-shaped arrangement of tile centers.
func Rhombus(cfg RhombusConfig) ([]Coordinate, error) {
	if cfg.HalfRows <= 0 {
		return nil, fmt.Errorf("rhombus layout needs positive half rows, got %d", cfg.HalfRows)
	}
	applyTileDefaults(&cfg.TileWidthM, &cfg.TileHeightM)
	if cfg.SpacingMode == "" {
		cfg.SpacingMode = SpacingLinear
	}
	if cfg.SideLengthFactor == 0 {
		cfg.SideLengthFactor = 0.65
	}
	if cfg.HCompressFactor == 0 {
		cfg.HCompressFactor = 1.0
	}
	if cfg.VCompressFactor == 0 {
		cfg.VCompressFactor = 1.0
	}
	if cfg.CenterExpScaleFactor == 0 {
		cfg.CenterExpScaleFactor = 1.1
	}
	cfg.applyDefaults()

	diag := math.Hypot(cfg.TileWidthM, cfg.TileHeightM)
	side := cfg.SideLengthFactor * diag

	var base []Coordinate
	seen := make(map[Coordinate]bool)
	add := func(c Coordinate) {
		key := Coordinate{X: roundCoord(c.X), Y: roundCoord(c.Y)}
		if !seen[key] {
			seen[key] = true
			base = append(base, Coordinate{X: key.X, Y: key.Y})
		}
	}
	for i := 0; i < cfg.HalfRows; i++ {
		y := float64(i) * side * math.Sqrt(3) / 2.0 * cfg.VCompressFactor
		rowTiles := cfg.HalfRows - i
		startX := -float64(rowTiles-1) * side * cfg.HCompressFactor / 2.0
		for j := 0; j < rowTiles; j++ {
			x := startX + float64(j)*side*cfg.HCompressFactor
			add(Coordinate{X: x, Y: y})
			if i != 0 {
				add(Coordinate{X: x, Y: -y})
			}
		}
	}

	if cfg.SpacingMode == SpacingCenterExponential {
		base = scaleFromCenter(base, cfg.CenterExpScaleFactor)
	}
	return finish(applyPlacement(base, cfg.Placement, diag)), nil
}

// HexConfig describes a hexagonal grid of Rings rings around the center.
type HexConfig struct {
	Rings                int
	TileWidthM           float64
	TileHeightM          float64
	SpacingMode          SpacingMode
	SpacingFactor        float64
	CenterExpScaleFactor float64
	AddCenterTile        bool
	Placement
}

// Hex generates a hexagonal grid of tile centers.
func Hex(cfg HexConfig) ([]Coordinate, error) {
	if cfg.Rings < 0 {
		return nil, fmt.Errorf("hex layout needs non-negative rings, got %d", cfg.Rings)
	}
	applyTileDefaults(&cfg.TileWidthM, &cfg.TileHeightM)
	if cfg.SpacingMode == "" {
		cfg.SpacingMode = SpacingLinear
	}
	if cfg.SpacingFactor == 0 {
		cfg.SpacingFactor = 1.5
	}
	if cfg.CenterExpScaleFactor == 0 {
		cfg.CenterExpScaleFactor = 1.1
	}
	cfg.applyDefaults()

	diag := math.Hypot(cfg.TileWidthM, cfg.TileHeightM)
	spacing := cfg.SpacingFactor * diag

	var base []Coordinate
	seen := make(map[Coordinate]bool)
	add := func(c Coordinate) {
		key := Coordinate{X: roundCoord(c.X), Y: roundCoord(c.Y)}
		if !seen[key] {
			seen[key] = true
			base = append(base, Coordinate{X: key.X, Y: key.Y})
		}
	}
	if cfg.AddCenterTile {
		add(Coordinate{})
	}
	for ring := 1; ring <= cfg.Rings; ring++ {
		x := float64(ring) * spacing
		y := 0.0
		add(Coordinate{X: x, Y: y})
		for side := 0; side < 6; side++ {
			for step := 0; step < ring; step++ {
				angle := float64(side+2) * math.Pi / 3.0
				x += spacing * math.Cos(angle)
				y += spacing * math.Sin(angle)
				add(Coordinate{X: x, Y: y})
			}
		}
	}

	if cfg.SpacingMode == SpacingCenterExponential {
		scaled := base
		if cfg.AddCenterTile && len(base) > 0 {
			scaled = append([]Coordinate{base[0]}, scaleFromCenter(base[1:], cfg.CenterExpScaleFactor)...)
		} else {
			scaled = scaleFromCenter(base, cfg.CenterExpScaleFactor)
		}
		base = scaled
	}
	return finish(applyPlacement(base, cfg.Placement, diag)), nil
}

// PhyllotaxisConfig describes a sunflower-seed arrangement.
type PhyllotaxisConfig struct {
	Tiles              int
	TileWidthM         float64
	TileHeightM        float64
	ScaleFactor        float64
	CenterOffsetFactor float64
	Placement
}

// Phyllotaxis generates tile centers on a golden-angle sunflower pattern:
// r = scale*sqrt(i + offset), theta = i*GoldenAngleRad.
func Phyllotaxis(cfg PhyllotaxisConfig) ([]Coordinate, error) {
	if cfg.Tiles <= 0 {
		return nil, fmt.Errorf("phyllotaxis layout needs positive tile count, got %d", cfg.Tiles)
	}
	applyTileDefaults(&cfg.TileWidthM, &cfg.TileHeightM)
	if cfg.ScaleFactor == 0 {
		cfg.ScaleFactor = 0.5
	}
	if cfg.CenterOffsetFactor == 0 {
		cfg.CenterOffsetFactor = 0.1
	}
	cfg.applyDefaults()

	diag := math.Hypot(cfg.TileWidthM, cfg.TileHeightM)
	scale := cfg.ScaleFactor * diag
	centerOffset := cfg.CenterOffsetFactor * diag

	base := make([]Coordinate, 0, cfg.Tiles)
	for i := 0; i < cfg.Tiles; i++ {
		r := scale * math.Sqrt(float64(i)+centerOffset)
		theta := float64(i) * GoldenAngleRad
		base = append(base, Coordinate{X: r * math.Cos(theta), Y: r * math.Sin(theta)})
	}

	return finish(applyPlacement(base, cfg.Placement, diag)), nil
}

// RandomConfig describes uniformly random placement within a disc.
type RandomConfig struct {
	Tiles                int
	MaxRadiusM           float64
	TileWidthM           float64
	TileHeightM          float64
	MinSeparationFactor  float64
	MaxPlacementAttempts int
	Seed                 int64
}

// Random generates tile centers uniformly in radius within MaxRadiusM,
// enforcing the minimum separation. Tiles that cannot be placed within the
// attempt budget are skipped.
func Random(cfg RandomConfig) ([]Coordinate, error) {
	if cfg.Tiles <= 0 {
		return nil, fmt.Errorf("random layout needs positive tile count, got %d", cfg.Tiles)
	}
	if cfg.MaxRadiusM <= 0 {
		return nil, fmt.Errorf("random layout needs positive max radius, got %f", cfg.MaxRadiusM)
	}
	applyTileDefaults(&cfg.TileWidthM, &cfg.TileHeightM)
	if cfg.MinSeparationFactor == 0 {
		cfg.MinSeparationFactor = 1.05
	}
	if cfg.MaxPlacementAttempts == 0 {
		cfg.MaxPlacementAttempts = defaultMaxPlacementAttempts * 10
	}

	diag := math.Hypot(cfg.TileWidthM, cfg.TileHeightM)
	minDist := cfg.MinSeparationFactor * diag
	minDistSq := minDist * minDist

	src := newPCG(cfg.Seed)
	radiusDist := distuv.Uniform{Min: 0, Max: cfg.MaxRadiusM, Src: src}
	angleDist := distuv.Uniform{Min: 0, Max: 2 * math.Pi, Src: src}

	coords := make([]Coordinate, 0, cfg.Tiles)
	skipped := 0
	for i := 0; i < cfg.Tiles; i++ {
		placed := false
		for attempt := 0; attempt < cfg.MaxPlacementAttempts; attempt++ {
			r := radiusDist.Rand()
			theta := angleDist.Rand()
			cand := Coordinate{X: r * math.Cos(theta), Y: r * math.Sin(theta)}
			valid := true
			for _, p := range coords {
				dx := cand.X - p.X
				dy := cand.Y - p.Y
				if dx*dx+dy*dy < minDistSq {
					valid = false
					break
				}
			}
			if valid {
				coords = append(coords, cand)
				placed = true
				break
			}
		}
		if !placed {
			skipped++
		}
	}
	if skipped > 0 {
		logf("random layout skipped %d/%d tiles after %d attempts each", skipped, cfg.Tiles, cfg.MaxPlacementAttempts)
	}

	return finish(coords), nil
}

func applyTileDefaults(w, h *float64) {
	if *w == 0 {
		*w = TileWidthM
	}
	if *h == 0 {
		*h = TileHeightM
	}
}
