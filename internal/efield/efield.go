// Package efield holds simulated element radiation patterns: per-angle
// complex far-field components for a single antenna element, loaded from
// electromagnetic solver exports.
package efield

import (
	"math"
	"sort"

	"github.com/bingo-data/beamscope/internal/units"
)

// Sample is one far-field observation of the element pattern: the complex
// rETheta and rEPhi components at a (theta, phi) direction.
type Sample struct {
	ThetaDeg float64 `json:"theta_deg"`
	PhiDeg   float64 `json:"phi_deg"`
	EThetaRe float64 `json:"re_etheta"`
	EThetaIm float64 `json:"im_etheta"`
	EPhiRe   float64 `json:"re_ephi"`
	EPhiIm   float64 `json:"im_ephi"`
}

// ETheta returns the theta-polarised component as a complex value.
func (s Sample) ETheta() complex128 { return complex(s.EThetaRe, s.EThetaIm) }

// EPhi returns the phi-polarised component as a complex value.
func (s Sample) EPhi() complex128 { return complex(s.EPhiRe, s.EPhiIm) }

// Angle returns the observation direction of the sample.
func (s Sample) Angle() units.Angle {
	return units.Angle{ThetaDeg: s.ThetaDeg, PhiDeg: s.PhiDeg}
}

// Set is a collection of element-pattern samples in file order, together
// with bookkeeping from the load.
type Set struct {
	Samples []Sample
	// Dropped counts malformed rows skipped while loading.
	Dropped int
}

// Angles returns the observation direction of every sample, in order.
func (s *Set) Angles() []units.Angle {
	out := make([]units.Angle, len(s.Samples))
	for i, smp := range s.Samples {
		out[i] = smp.Angle()
	}
	return out
}

// AngleKey quantises a degree value for exact matching. Solver exports
// round-trip through text, so equality at a millionth of a degree is the
// join contract used throughout.
func AngleKey(deg float64) int64 {
	return int64(math.Round(deg * 1e6))
}

func uniqueSorted(vals []float64) []float64 {
	seen := make(map[int64]bool, len(vals))
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		k := AngleKey(v)
		if !seen[k] {
			seen[k] = true
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

// UniqueThetas returns the sorted distinct theta values in the set.
func (s *Set) UniqueThetas() []float64 {
	vals := make([]float64, len(s.Samples))
	for i, smp := range s.Samples {
		vals[i] = smp.ThetaDeg
	}
	return uniqueSorted(vals)
}

// UniquePhis returns the sorted distinct phi values in the set.
func (s *Set) UniquePhis() []float64 {
	vals := make([]float64, len(s.Samples))
	for i, smp := range s.Samples {
		vals[i] = smp.PhiDeg
	}
	return uniqueSorted(vals)
}

// CutAtPhi selects the samples within tolDeg of the requested phi plane,
// sorted by theta. A zero tolerance matches at the angle join precision.
func (s *Set) CutAtPhi(phiDeg, tolDeg float64) []Sample {
	var out []Sample
	if tolDeg <= 0 {
		want := AngleKey(phiDeg)
		for _, smp := range s.Samples {
			if AngleKey(smp.PhiDeg) == want {
				out = append(out, smp)
			}
		}
	} else {
		for _, smp := range s.Samples {
			if math.Abs(smp.PhiDeg-phiDeg) <= tolDeg {
				out = append(out, smp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ThetaDeg < out[j].ThetaDeg })
	return out
}

// SplitByPhi groups samples by their phi plane rounded to the nearest whole
// degree, preserving file order within each group.
func (s *Set) SplitByPhi() map[int][]Sample {
	out := make(map[int][]Sample)
	for _, smp := range s.Samples {
		key := int(math.Round(smp.PhiDeg))
		out[key] = append(out[key], smp)
	}
	return out
}
