package layout

import "fmt"

// Kind names a station generator.
type Kind string

const (
	KindTile        Kind = "tile"
	KindGrid        Kind = "grid"
	KindRing        Kind = "ring"
	KindSpiral      Kind = "spiral"
	KindRhombus     Kind = "rhombus"
	KindHex         Kind = "hex"
	KindPhyllotaxis Kind = "phyllotaxis"
	KindRandom      Kind = "random"
)

// Kinds lists every generator the dispatcher accepts.
func Kinds() []Kind {
	return []Kind{KindTile, KindGrid, KindRing, KindSpiral, KindRhombus, KindHex, KindPhyllotaxis, KindRandom}
}

// IsValid reports whether k names a known generator.
func (k Kind) IsValid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Request is the wire form of a station layout job. Only the fields
// relevant to the requested Kind need to be set; zero values fall back to
// the generator defaults.
type Request struct {
	Kind Kind `json:"kind"`

	// Shared geometry.
	TileWidthM  float64 `json:"tile_width_m,omitempty"`
	TileHeightM float64 `json:"tile_height_m,omitempty"`

	// Grid.
	Cols int `json:"cols,omitempty"`
	Rows int `json:"rows,omitempty"`

	// Ring.
	TilesPerRing  []int `json:"tiles_per_ring,omitempty"`
	AddCenterTile bool  `json:"add_center_tile,omitempty"`

	// Spiral.
	Arms              int     `json:"arms,omitempty"`
	TilesPerArm       int     `json:"tiles_per_arm,omitempty"`
	Exponential       bool    `json:"exponential,omitempty"`
	AngleStepRad      float64 `json:"angle_step_rad,omitempty"`
	ArmOffsetRad      float64 `json:"arm_offset_rad,omitempty"`
	RotationPerArmRad float64 `json:"rotation_per_arm_rad,omitempty"`

	// Rhombus.
	HalfRows         int     `json:"half_rows,omitempty"`
	SideLengthFactor float64 `json:"side_length_factor,omitempty"`
	HCompressFactor  float64 `json:"h_compress_factor,omitempty"`
	VCompressFactor  float64 `json:"v_compress_factor,omitempty"`

	// Hex.
	Rings         int     `json:"rings,omitempty"`
	SpacingFactor float64 `json:"spacing_factor,omitempty"`

	// Phyllotaxis / Random.
	Tiles              int     `json:"tiles,omitempty"`
	ScaleFactor        float64 `json:"scale_factor,omitempty"`
	CenterOffsetFactor float64 `json:"center_offset_factor,omitempty"`
	MaxRadiusM         float64 `json:"max_radius_m,omitempty"`

	// Radial spacing shared by grid, ring, rhombus and hex.
	SpacingMode          SpacingMode `json:"spacing_mode,omitempty"`
	SpacingXFactor       float64     `json:"spacing_x_factor,omitempty"`
	SpacingYFactor       float64     `json:"spacing_y_factor,omitempty"`
	RadiusStartFactor    float64     `json:"radius_start_factor,omitempty"`
	RadiusStepFactor     float64     `json:"radius_step_factor,omitempty"`
	CenterExpScaleFactor float64     `json:"center_exp_scale_factor,omitempty"`

	// Jitter and collision handling.
	JitterStddevM        float64 `json:"jitter_stddev_m,omitempty"`
	MinSeparationFactor  float64 `json:"min_separation_factor,omitempty"`
	MaxPlacementAttempts int     `json:"max_placement_attempts,omitempty"`
	Seed                 int64   `json:"seed,omitempty"`

	// ExpandTiles replaces each center with the 64 antennas of a full tile.
	ExpandTiles bool `json:"expand_tiles,omitempty"`
}

func (r Request) placement() Placement {
	return Placement{
		JitterStddevM:        r.JitterStddevM,
		MinSeparationFactor:  r.MinSeparationFactor,
		MaxPlacementAttempts: r.MaxPlacementAttempts,
		Seed:                 r.Seed,
	}
}

// Generate dispatches to the generator named by Kind and optionally expands
// the resulting centers into per-antenna coordinates.
func (r Request) Generate() ([]Coordinate, error) {
	var (
		centers []Coordinate
		err     error
	)
	switch r.Kind {
	case KindTile:
		centers = Tile()
	case KindGrid:
		centers, err = Grid(GridConfig{
			Cols: r.Cols, Rows: r.Rows,
			TileWidthM: r.TileWidthM, TileHeightM: r.TileHeightM,
			SpacingMode:    r.SpacingMode,
			SpacingXFactor: r.SpacingXFactor, SpacingYFactor: r.SpacingYFactor,
			CenterExpScaleFactor: r.CenterExpScaleFactor,
			Placement:            r.placement(),
		})
	case KindRing:
		centers, err = Ring(RingConfig{
			TilesPerRing: r.TilesPerRing,
			TileWidthM:   r.TileWidthM, TileHeightM: r.TileHeightM,
			SpacingMode:       r.SpacingMode,
			RadiusStartFactor: r.RadiusStartFactor, RadiusStepFactor: r.RadiusStepFactor,
			CenterExpScaleFactor: r.CenterExpScaleFactor,
			AddCenterTile:        r.AddCenterTile,
			Placement:            r.placement(),
		})
	case KindSpiral:
		centers, err = Spiral(SpiralConfig{
			Arms: r.Arms, TilesPerArm: r.TilesPerArm,
			TileWidthM: r.TileWidthM, TileHeightM: r.TileHeightM,
			Exponential:       r.Exponential,
			RadiusStartFactor: r.RadiusStartFactor, RadiusStepFactor: r.RadiusStepFactor,
			AngleStepRad: r.AngleStepRad, ArmOffsetRad: r.ArmOffsetRad,
			RotationPerArmRad: r.RotationPerArmRad,
			IncludeCenterTile: r.AddCenterTile,
			Placement:         r.placement(),
		})
	case KindRhombus:
		centers, err = Rhombus(RhombusConfig{
			HalfRows:   r.HalfRows,
			TileWidthM: r.TileWidthM, TileHeightM: r.TileHeightM,
			SpacingMode:      r.SpacingMode,
			SideLengthFactor: r.SideLengthFactor,
			HCompressFactor:  r.HCompressFactor, VCompressFactor: r.VCompressFactor,
			CenterExpScaleFactor: r.CenterExpScaleFactor,
			Placement:            r.placement(),
		})
	case KindHex:
		centers, err = Hex(HexConfig{
			Rings:      r.Rings,
			TileWidthM: r.TileWidthM, TileHeightM: r.TileHeightM,
			SpacingMode:   r.SpacingMode,
			SpacingFactor: r.SpacingFactor,
			CenterExpScaleFactor: r.CenterExpScaleFactor,
			AddCenterTile:        r.AddCenterTile,
			Placement:            r.placement(),
		})
	case KindPhyllotaxis:
		centers, err = Phyllotaxis(PhyllotaxisConfig{
			Tiles:      r.Tiles,
			TileWidthM: r.TileWidthM, TileHeightM: r.TileHeightM,
			ScaleFactor:        r.ScaleFactor,
			CenterOffsetFactor: r.CenterOffsetFactor,
			Placement:          r.placement(),
		})
	case KindRandom:
		centers, err = Random(RandomConfig{
			Tiles:      r.Tiles,
			MaxRadiusM: r.MaxRadiusM,
			TileWidthM: r.TileWidthM, TileHeightM: r.TileHeightM,
			MinSeparationFactor:  r.MinSeparationFactor,
			MaxPlacementAttempts: r.MaxPlacementAttempts,
			Seed:                 r.Seed,
		})
	default:
		return nil, fmt.Errorf("unknown layout kind %q", r.Kind)
	}
	if err != nil {
		return nil, err
	}
	if r.ExpandTiles {
		return ExpandTiles(centers), nil
	}
	return centers, nil
}
