// Package pattern computes far-field radiation patterns for phased
// antenna arrays: the array factor over a set of observation
// directions, its combination with embedded-element fields, and the
// presentation surfaces (cuts, grids, encircled-energy curves) derived
// from the combined magnitudes. Everything here is pure computation;
// scheduling and progress reporting live in package engine.
package pattern

import (
	"errors"
	"fmt"
	"math"

	"github.com/bingo-data/beamscope/internal/layout"
	"github.com/bingo-data/beamscope/internal/monitoring"
	"github.com/bingo-data/beamscope/internal/units"
)

var logf = monitoring.Component("pattern")

// ErrNotFinite reports geometry, wavenumber or steering inputs that
// contain NaN or infinite values. These are rejected before any
// computation starts.
var ErrNotFinite = errors.New("input contains non-finite values")

// EmptyArrayConvention selects the array factor reported for an array
// with no antennas.
type EmptyArrayConvention int

const (
	// UnityGain yields AF = 1+0i for every direction, so combining
	// with element fields reproduces the bare element pattern.
	UnityGain EmptyArrayConvention = iota
	// ZeroGain yields AF = 0+0i for every direction.
	ZeroGain
)

func (c EmptyArrayConvention) String() string {
	switch c {
	case UnityGain:
		return "unity"
	case ZeroGain:
		return "zero"
	}
	return fmt.Sprintf("EmptyArrayConvention(%d)", int(c))
}

// ParseConvention maps the config/API spelling of a convention to its
// value. The empty string selects UnityGain.
func ParseConvention(s string) (EmptyArrayConvention, error) {
	switch s {
	case "", "unity":
		return UnityGain, nil
	case "zero":
		return ZeroGain, nil
	}
	return UnityGain, fmt.Errorf("unknown empty-array convention %q", s)
}

// Kernel carries the terms of an array factor evaluation that do not
// change between observation directions.
type Kernel struct {
	coords         []layout.Coordinate
	waveNumber     float64
	steerX, steerY float64
	convention     EmptyArrayConvention
}

// NewKernel prepares an array factor evaluation for a fixed geometry,
// wavenumber and steering direction.
func NewKernel(coords []layout.Coordinate, waveNumber float64, steering units.Angle, convention EmptyArrayConvention) *Kernel {
	sinSteer := math.Sin(steering.ThetaRad())
	return &Kernel{
		coords:     coords,
		waveNumber: waveNumber,
		steerX:     sinSteer * math.Cos(steering.PhiRad()),
		steerY:     sinSteer * math.Sin(steering.PhiRad()),
		convention: convention,
	}
}

// Antennas returns the number of summed elements. The magnitude of any
// array factor value is bounded by this count.
func (k *Kernel) Antennas() int { return len(k.coords) }

// At sums the antenna phasors for one observation direction. For an
// empty array the configured convention decides the result.
func (k *Kernel) At(angle units.Angle) complex128 {
	if len(k.coords) == 0 {
		if k.convention == UnityGain {
			return complex(1, 0)
		}
		return complex(0, 0)
	}
	sinTheta := math.Sin(angle.ThetaRad())
	obsX := sinTheta * math.Cos(angle.PhiRad())
	obsY := sinTheta * math.Sin(angle.PhiRad())
	kdx := k.waveNumber * (obsX - k.steerX)
	kdy := k.waveNumber * (obsY - k.steerY)
	var re, im float64
	for _, c := range k.coords {
		phase := kdx*c.X + kdy*c.Y
		re += math.Cos(phase)
		im += math.Sin(phase)
	}
	return complex(re, im)
}

// ComputeArrayFactor evaluates the array factor for every observation
// direction. The result is one complex value per angle, in input order.
func ComputeArrayFactor(angles []units.Angle, coords []layout.Coordinate, waveNumber float64, steering units.Angle, convention EmptyArrayConvention) []complex128 {
	k := NewKernel(coords, waveNumber, steering, convention)
	out := make([]complex128, len(angles))
	for i, a := range angles {
		out[i] = k.At(a)
	}
	return out
}

// ValidateGeometry rejects NaN and infinite values in the antenna
// coordinates, wavenumber or steering direction.
func ValidateGeometry(coords []layout.Coordinate, waveNumber float64, steering units.Angle) error {
	if !isFinite(waveNumber) {
		return fmt.Errorf("%w: wavenumber %v", ErrNotFinite, waveNumber)
	}
	if !isFinite(steering.ThetaDeg) || !isFinite(steering.PhiDeg) {
		return fmt.Errorf("%w: steering (%v, %v)", ErrNotFinite, steering.ThetaDeg, steering.PhiDeg)
	}
	for i, c := range coords {
		if !isFinite(c.X) || !isFinite(c.Y) {
			return fmt.Errorf("%w: antenna %d at (%v, %v)", ErrNotFinite, i, c.X, c.Y)
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
