// Package units provides shared constants and conversions for angles,
// wavenumbers and decibel scaling.
package units

import "math"

// SpeedOfLight in vacuum, m/s.
const SpeedOfLight = 299792458.0

// DBFloor is the lower bound applied to normalized decibel values.
const DBFloor = -100.0

// ratioFloor clamps normalization ratios away from zero before log10.
const ratioFloor = 1e-10

// Angle is an observation or steering direction as an
// elevation/azimuth pair in degrees.
type Angle struct {
	ThetaDeg float64 `json:"theta_deg"`
	PhiDeg   float64 `json:"phi_deg"`
}

// ThetaRad returns the elevation angle in radians.
func (a Angle) ThetaRad() float64 {
	return Deg2Rad(a.ThetaDeg)
}

// PhiRad returns the azimuth angle in radians.
func (a Angle) PhiRad() float64 {
	return Deg2Rad(a.PhiDeg)
}

// Deg2Rad converts degrees to radians.
func Deg2Rad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Rad2Deg converts radians to degrees.
func Rad2Deg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// WaveNumber returns k = 2*pi*f/c for a frequency in Hz.
func WaveNumber(freqHz float64) float64 {
	return 2.0 * math.Pi * freqHz / SpeedOfLight
}

// WaveNumberFromWavelength returns k = 2*pi/lambda for a wavelength in meters.
func WaveNumberFromWavelength(lambdaM float64) float64 {
	return 2.0 * math.Pi / lambdaM
}

// RatioToDB converts a linear magnitude ratio to decibels (20*log10).
// The ratio is clamped to a strictly positive floor before the log and the
// result is floored at DBFloor; non-positive ratios map straight to DBFloor.
func RatioToDB(ratio float64) float64 {
	if ratio <= 0 || math.IsNaN(ratio) {
		return DBFloor
	}
	db := 20.0 * math.Log10(math.Max(ratio, ratioFloor))
	if db < DBFloor {
		return DBFloor
	}
	return db
}

// DBToRatio converts decibels back to a linear magnitude ratio.
func DBToRatio(db float64) float64 {
	return math.Pow(10.0, db/20.0)
}
