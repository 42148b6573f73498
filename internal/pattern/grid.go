package pattern

import (
	"fmt"

	"github.com/bingo-data/beamscope/internal/efield"
	"github.com/bingo-data/beamscope/internal/units"
)

// BeamGrid2D holds combined magnitudes over the full (theta, phi)
// sampling grid in theta-major order: Magnitude[i][j] belongs to
// ThetaDeg[i], PhiDeg[j]. Cells the sample set never visited stay at
// zero magnitude. Linear and DB are normalized against the global peak
// with the same floor rules as BeamCut1D.
type BeamGrid2D struct {
	ThetaDeg      []float64   `json:"theta_deg"`
	PhiDeg        []float64   `json:"phi_deg"`
	Magnitude     [][]float64 `json:"magnitude"`
	Linear        [][]float64 `json:"linear"`
	DB            [][]float64 `json:"db"`
	PeakThetaDeg  float64     `json:"peak_theta_deg"`
	PeakPhiDeg    float64     `json:"peak_phi_deg"`
	PeakMagnitude float64     `json:"peak_magnitude"`
}

// Cells returns the number of grid cells.
func (g *BeamGrid2D) Cells() int { return len(g.ThetaDeg) * len(g.PhiDeg) }

// NewBeamGrid joins each sample's magnitude onto the dense grid spanned
// by the sorted unique theta and phi values of the sample set. The join
// is exact at efield.AngleKey precision, so values that round-trip
// through text still land in one row or column.
func NewBeamGrid(samples []efield.Sample, mags []float64) (*BeamGrid2D, error) {
	if len(samples) != len(mags) {
		return nil, fmt.Errorf("%w: %d samples, %d magnitudes", ErrLengthMismatch, len(samples), len(mags))
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: grid has no samples", ErrInputEmpty)
	}

	set := &efield.Set{Samples: samples}
	grid := &BeamGrid2D{
		ThetaDeg: set.UniqueThetas(),
		PhiDeg:   set.UniquePhis(),
	}
	rowOf := make(map[int64]int, len(grid.ThetaDeg))
	for i, t := range grid.ThetaDeg {
		rowOf[efield.AngleKey(t)] = i
	}
	colOf := make(map[int64]int, len(grid.PhiDeg))
	for j, p := range grid.PhiDeg {
		colOf[efield.AngleKey(p)] = j
	}

	grid.Magnitude = make([][]float64, len(grid.ThetaDeg))
	for i := range grid.Magnitude {
		grid.Magnitude[i] = make([]float64, len(grid.PhiDeg))
	}
	for n, smp := range samples {
		i := rowOf[efield.AngleKey(smp.ThetaDeg)]
		j := colOf[efield.AngleKey(smp.PhiDeg)]
		grid.Magnitude[i][j] = mags[n]
		if mags[n] > grid.PeakMagnitude {
			grid.PeakMagnitude = mags[n]
			grid.PeakThetaDeg = smp.ThetaDeg
			grid.PeakPhiDeg = smp.PhiDeg
		}
	}

	grid.Linear = make([][]float64, len(grid.ThetaDeg))
	grid.DB = make([][]float64, len(grid.ThetaDeg))
	for i := range grid.Magnitude {
		grid.Linear[i] = make([]float64, len(grid.PhiDeg))
		grid.DB[i] = make([]float64, len(grid.PhiDeg))
		for j, m := range grid.Magnitude[i] {
			ratio := 0.0
			if grid.PeakMagnitude > 0 {
				ratio = m / grid.PeakMagnitude
			}
			grid.Linear[i][j] = ratio
			grid.DB[i][j] = units.RatioToDB(ratio)
		}
	}
	return grid, nil
}

// Cut extracts the constant-phi column nearest colPhiDeg as a
// BeamCut1D. It exists for presentation fallbacks; dedicated cut
// requests should slice the sample set instead so the worker skips the
// unused columns.
func (g *BeamGrid2D) Cut(phiDeg float64) (*BeamCut1D, error) {
	if len(g.PhiDeg) == 0 {
		return nil, fmt.Errorf("%w: grid has no phi columns", ErrInputEmpty)
	}
	best := 0
	for j, p := range g.PhiDeg {
		if abs(p-phiDeg) < abs(g.PhiDeg[best]-phiDeg) {
			best = j
		}
	}
	mags := make([]float64, len(g.ThetaDeg))
	for i := range g.ThetaDeg {
		mags[i] = g.Magnitude[i][best]
	}
	return NewBeamCut(g.PhiDeg[best], g.ThetaDeg, mags)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
