package pattern

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/bingo-data/beamscope/internal/units"
)

// PSFCurve is the encircled-energy fraction of the point spread
// function as a function of the integration half-angle around
// boresight: Fraction[i] is the share of total radiated power inside
// the cone theta <= HalfAngleDeg[i]. The curve is non-decreasing and
// ends at 1 whenever the grid carries any power.
type PSFCurve struct {
	HalfAngleDeg []float64 `json:"half_angle_deg"`
	Fraction     []float64 `json:"fraction"`
	TotalPower   float64   `json:"total_power"`
}

// NewPSFCurve integrates the grid's cell powers over growing cones, one
// curve point per unique theta. Cell power is the squared magnitude
// weighted by sin(theta), the solid-angle measure of a constant-step
// grid row. A grid with no power yields an all-zero curve.
func NewPSFCurve(grid *BeamGrid2D) *PSFCurve {
	n := len(grid.ThetaDeg)
	curve := &PSFCurve{
		HalfAngleDeg: append([]float64(nil), grid.ThetaDeg...),
		Fraction:     make([]float64, n),
	}
	if n == 0 {
		return curve
	}

	perTheta := make([]float64, n)
	for i, theta := range grid.ThetaDeg {
		w := math.Abs(math.Sin(units.Deg2Rad(theta)))
		var rowPower float64
		for _, m := range grid.Magnitude[i] {
			rowPower += m * m
		}
		perTheta[i] = rowPower * w
	}

	cum := make([]float64, n)
	floats.CumSum(cum, perTheta)
	curve.TotalPower = cum[n-1]
	if curve.TotalPower <= 0 {
		return curve
	}
	for i := range cum {
		curve.Fraction[i] = cum[i] / curve.TotalPower
	}
	return curve
}

// HalfAngleAt returns the smallest half-angle whose encircled energy
// reaches the requested fraction, interpolating between curve points.
// It reports false when the curve never reaches the fraction.
func (c *PSFCurve) HalfAngleAt(fraction float64) (float64, bool) {
	n := len(c.HalfAngleDeg)
	if n == 0 || c.TotalPower <= 0 {
		return 0, false
	}
	if fraction <= c.Fraction[0] {
		return c.HalfAngleDeg[0], true
	}
	for i := 1; i < n; i++ {
		if c.Fraction[i] >= fraction {
			f0, f1 := c.Fraction[i-1], c.Fraction[i]
			t0, t1 := c.HalfAngleDeg[i-1], c.HalfAngleDeg[i]
			if f1 == f0 {
				return t1, true
			}
			return t0 + (t1-t0)*(fraction-f0)/(f1-f0), true
		}
	}
	return 0, false
}
