package pattern

import (
	"gonum.org/v1/gonum/floats"

	"github.com/bingo-data/beamscope/internal/units"
)

// CutMetrics summarises a normalized cut for run records and chart
// subtitles.
type CutMetrics struct {
	PeakThetaDeg     float64 `json:"peak_theta_deg"`
	PeakDB           float64 `json:"peak_db"`
	BeamwidthDeg     float64 `json:"beamwidth_deg"`
	FirstSidelobeDB  float64 `json:"first_sidelobe_db"`
	SidelobeThetaDeg float64 `json:"sidelobe_theta_deg"`
}

// AnalyzeCut measures the half-power beamwidth and first sidelobe of a
// cut. The beamwidth spans the −3 dB crossings either side of the peak,
// linearly interpolated between bins; a side that never crosses extends
// to the cut's edge. The first sidelobe is the higher of the nearest
// local maxima beyond the first null on each side, reported at the
// decibel floor when the cut has none.
func AnalyzeCut(cut *BeamCut1D) CutMetrics {
	m := CutMetrics{FirstSidelobeDB: units.DBFloor}
	if cut == nil || cut.Len() == 0 {
		return m
	}
	peak := floats.MaxIdx(cut.DB)
	m.PeakThetaDeg = cut.ThetaDeg[peak]
	m.PeakDB = cut.DB[peak]

	level := m.PeakDB - 3.0
	left := halfPowerTheta(cut, peak, -1, level)
	right := halfPowerTheta(cut, peak, +1, level)
	m.BeamwidthDeg = right - left

	if theta, db, ok := firstSidelobe(cut, peak, +1); ok {
		m.FirstSidelobeDB = db
		m.SidelobeThetaDeg = theta
	}
	if theta, db, ok := firstSidelobe(cut, peak, -1); ok && db > m.FirstSidelobeDB {
		m.FirstSidelobeDB = db
		m.SidelobeThetaDeg = theta
	}
	return m
}

// halfPowerTheta walks from the peak in direction dir until the cut
// drops to the given level and interpolates the crossing angle.
func halfPowerTheta(cut *BeamCut1D, peak, dir int, level float64) float64 {
	prev := peak
	for i := peak + dir; i >= 0 && i < cut.Len(); i += dir {
		if cut.DB[i] <= level {
			t0, d0 := cut.ThetaDeg[prev], cut.DB[prev]
			t1, d1 := cut.ThetaDeg[i], cut.DB[i]
			if d1 == d0 {
				return t1
			}
			return t0 + (t1-t0)*(level-d0)/(d1-d0)
		}
		prev = i
	}
	if dir < 0 {
		return cut.ThetaDeg[0]
	}
	return cut.ThetaDeg[cut.Len()-1]
}

// firstSidelobe descends from the peak into the first null in direction
// dir, then climbs to the next local maximum.
func firstSidelobe(cut *BeamCut1D, peak, dir int) (thetaDeg, db float64, ok bool) {
	i := peak
	for next := i + dir; next >= 0 && next < cut.Len() && cut.DB[next] <= cut.DB[i]; next = i + dir {
		i = next
	}
	null := i
	for next := i + dir; next >= 0 && next < cut.Len() && cut.DB[next] >= cut.DB[i]; next = i + dir {
		i = next
	}
	if i == null {
		return 0, 0, false
	}
	return cut.ThetaDeg[i], cut.DB[i], true
}
