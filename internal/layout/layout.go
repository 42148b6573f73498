// Package layout generates planar antenna positions for BINGO-style
// phased-array stations: the fixed 64-antenna tile plus station-level
// arrangements of tile centers (grid, rings, spiral, rhombus, hex,
// phyllotaxis, random).
//
// All coordinates are meters in the array plane, centered on the origin and
// rounded to coordPrecision decimals so layouts are reproducible across
// runs and joinable by value.
package layout

import "math"

// Physical reference dimensions of one tile, meters.
const (
	TileWidthM  = 0.35
	TileHeightM = 1.34
)

// Internal tile geometry: a 2x8 grid of subgroup centers, each expanded
// into a 4-antenna diamond.
const (
	subgroupDXM     = 0.1760695885
	subgroupDYM     = 0.1675843071
	subgroupCols    = 2
	subgroupRows    = 8
	diamondOffsetM  = 0.05
	AntennasPerTile = subgroupCols * subgroupRows * 4
)

// coordPrecision is the number of decimals coordinates are rounded to.
const coordPrecision = 6

// Coordinate is an antenna or tile-center position in the array plane.
type Coordinate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func roundCoord(v float64) float64 {
	const scale = 1e6 // 10^coordPrecision
	return math.Round(v*scale) / scale
}

// TileDiagonalM returns the tile's diagonal, the reference length for
// station spacing factors and collision distances.
func TileDiagonalM() float64 {
	return math.Hypot(TileWidthM, TileHeightM)
}

// Tile returns the 64-antenna internal layout of a single tile, centered on
// the origin: 16 subgroup centers on a 2x8 grid, each surrounded by a
// diamond of 4 antennas at diamondOffsetM.
func Tile() []Coordinate {
	centers := make([]Coordinate, 0, subgroupCols*subgroupRows)
	for i := 0; i < subgroupCols; i++ {
		cx := (float64(i) - float64(subgroupCols-1)/2.0) * subgroupDXM
		for j := 0; j < subgroupRows; j++ {
			cy := (float64(j) - float64(subgroupRows-1)/2.0) * subgroupDYM
			centers = append(centers, Coordinate{X: cx, Y: cy})
		}
	}

	offsets := []Coordinate{
		{X: 0, Y: diamondOffsetM},
		{X: diamondOffsetM, Y: 0},
		{X: 0, Y: -diamondOffsetM},
		{X: -diamondOffsetM, Y: 0},
	}

	antennas := make([]Coordinate, 0, len(centers)*len(offsets))
	for _, c := range centers {
		for _, o := range offsets {
			antennas = append(antennas, Coordinate{X: c.X + o.X, Y: c.Y + o.Y})
		}
	}

	return Center(antennas)
}

// ExpandTiles places a full tile at every station center and returns the
// combined antenna list (64 antennas per center).
func ExpandTiles(centers []Coordinate) []Coordinate {
	tile := Tile()
	antennas := make([]Coordinate, 0, len(centers)*len(tile))
	for _, c := range centers {
		for _, t := range tile {
			antennas = append(antennas, Coordinate{
				X: roundCoord(c.X + t.X),
				Y: roundCoord(c.Y + t.Y),
			})
		}
	}
	return antennas
}

// Center shifts coordinates so their mean sits on the origin, rounding to
// coordPrecision. An empty input comes back empty.
func Center(coords []Coordinate) []Coordinate {
	if len(coords) == 0 {
		return coords
	}
	var sx, sy float64
	for _, c := range coords {
		sx += c.X
		sy += c.Y
	}
	mx := sx / float64(len(coords))
	my := sy / float64(len(coords))

	out := make([]Coordinate, len(coords))
	for i, c := range coords {
		out[i] = Coordinate{X: roundCoord(c.X - mx), Y: roundCoord(c.Y - my)}
	}
	return out
}

// roundAll rounds every coordinate to coordPrecision without recentering.
func roundAll(coords []Coordinate) []Coordinate {
	out := make([]Coordinate, len(coords))
	for i, c := range coords {
		out[i] = Coordinate{X: roundCoord(c.X), Y: roundCoord(c.Y)}
	}
	return out
}
