package pattern

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/bingo-data/beamscope/internal/units"
)

// BeamCut1D is a constant-phi slice of the pattern ordered by ascending
// theta, with its normalized decibel and linear views attached. The dB
// view is 20*log10(mag/peak) floored at units.DBFloor; the linear view
// is mag/peak with no log.
type BeamCut1D struct {
	PhiDeg        float64   `json:"phi_deg"`
	ThetaDeg      []float64 `json:"theta_deg"`
	Magnitude     []float64 `json:"magnitude"`
	Linear        []float64 `json:"linear"`
	DB            []float64 `json:"db"`
	PeakThetaDeg  float64   `json:"peak_theta_deg"`
	PeakMagnitude float64   `json:"peak_magnitude"`
}

// Len returns the number of points in the cut.
func (c *BeamCut1D) Len() int { return len(c.ThetaDeg) }

// NewBeamCut orders the (theta, magnitude) pairs by ascending theta and
// derives the normalized views. A peak of zero maps every bin to the
// decibel floor and linear zero rather than NaN.
func NewBeamCut(phiDeg float64, thetas, mags []float64) (*BeamCut1D, error) {
	if len(thetas) != len(mags) {
		return nil, fmt.Errorf("%w: %d thetas, %d magnitudes", ErrLengthMismatch, len(thetas), len(mags))
	}
	if len(thetas) == 0 {
		return nil, fmt.Errorf("%w: cut has no points", ErrInputEmpty)
	}

	type point struct{ theta, mag float64 }
	pts := make([]point, len(thetas))
	for i := range thetas {
		pts[i] = point{thetas[i], mags[i]}
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].theta < pts[j].theta })

	cut := &BeamCut1D{
		PhiDeg:    phiDeg,
		ThetaDeg:  make([]float64, len(pts)),
		Magnitude: make([]float64, len(pts)),
		Linear:    make([]float64, len(pts)),
		DB:        make([]float64, len(pts)),
	}
	for i, p := range pts {
		cut.ThetaDeg[i] = p.theta
		cut.Magnitude[i] = p.mag
	}

	peakIdx := floats.MaxIdx(cut.Magnitude)
	cut.PeakThetaDeg = cut.ThetaDeg[peakIdx]
	cut.PeakMagnitude = cut.Magnitude[peakIdx]
	for i, m := range cut.Magnitude {
		ratio := 0.0
		if cut.PeakMagnitude > 0 {
			ratio = m / cut.PeakMagnitude
		}
		cut.Linear[i] = ratio
		cut.DB[i] = units.RatioToDB(ratio)
	}
	return cut, nil
}
