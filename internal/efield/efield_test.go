package efield

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleSet() *Set {
	return &Set{Samples: []Sample{
		{ThetaDeg: 0, PhiDeg: 0, EThetaRe: 1, EThetaIm: 0},
		{ThetaDeg: 1, PhiDeg: 0, EThetaRe: 0.9, EThetaIm: 0.1},
		{ThetaDeg: 2, PhiDeg: 0, EThetaRe: 0.8, EThetaIm: 0.2},
		{ThetaDeg: 0, PhiDeg: 90, EPhiRe: 1},
		{ThetaDeg: 1, PhiDeg: 90, EPhiRe: 0.9},
		{ThetaDeg: 2, PhiDeg: 90, EPhiRe: 0.8},
		{ThetaDeg: 1, PhiDeg: 45.2, EThetaRe: 0.5, EPhiRe: 0.5},
	}}
}

func TestSampleComplexComponents(t *testing.T) {
	s := Sample{EThetaRe: 3, EThetaIm: -4, EPhiRe: 1, EPhiIm: 2}
	if got := s.ETheta(); got != complex(3, -4) {
		t.Errorf("ETheta() = %v, want (3-4i)", got)
	}
	if got := s.EPhi(); got != complex(1, 2) {
		t.Errorf("EPhi() = %v, want (1+2i)", got)
	}
}

func TestUniqueThetas(t *testing.T) {
	got := sampleSet().UniqueThetas()
	want := []float64{0, 1, 2}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("UniqueThetas() mismatch (-want +got):\n%s", diff)
	}
}

func TestUniquePhis(t *testing.T) {
	got := sampleSet().UniquePhis()
	want := []float64{0, 45.2, 90}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("UniquePhis() mismatch (-want +got):\n%s", diff)
	}
}

func TestUniqueAnglesCollapseNearDuplicates(t *testing.T) {
	// Values identical at a millionth of a degree are one angle.
	set := &Set{Samples: []Sample{
		{ThetaDeg: 10.0000001},
		{ThetaDeg: 10.0000004},
		{ThetaDeg: 10.5},
	}}
	if got := set.UniqueThetas(); len(got) != 2 {
		t.Errorf("UniqueThetas() = %v, want 2 distinct values", got)
	}
}

func TestCutAtPhi(t *testing.T) {
	set := sampleSet()

	t.Run("exact plane", func(t *testing.T) {
		cut := set.CutAtPhi(90, 0)
		if len(cut) != 3 {
			t.Fatalf("cut has %d samples, want 3", len(cut))
		}
		for i := 1; i < len(cut); i++ {
			if cut[i].ThetaDeg < cut[i-1].ThetaDeg {
				t.Errorf("cut not sorted by theta: %v after %v", cut[i].ThetaDeg, cut[i-1].ThetaDeg)
			}
		}
	})

	t.Run("tolerance picks nearby plane", func(t *testing.T) {
		cut := set.CutAtPhi(45, 0.5)
		if len(cut) != 1 || cut[0].PhiDeg != 45.2 {
			t.Errorf("cut = %+v, want the 45.2 degree sample", cut)
		}
	})

	t.Run("empty when no plane matches", func(t *testing.T) {
		if cut := set.CutAtPhi(30, 0); len(cut) != 0 {
			t.Errorf("cut = %+v, want empty", cut)
		}
	})
}

func TestSplitByPhi(t *testing.T) {
	groups := sampleSet().SplitByPhi()
	if len(groups) != 3 {
		t.Fatalf("SplitByPhi() produced %d groups, want 3", len(groups))
	}
	if len(groups[0]) != 3 || len(groups[90]) != 3 {
		t.Errorf("group sizes = %d/%d, want 3/3", len(groups[0]), len(groups[90]))
	}
	// 45.2 rounds to the 45 degree plane.
	if len(groups[45]) != 1 {
		t.Errorf("groups[45] = %+v, want one sample", groups[45])
	}
}

func TestAngles(t *testing.T) {
	set := sampleSet()
	angles := set.Angles()
	if len(angles) != len(set.Samples) {
		t.Fatalf("Angles() length %d, want %d", len(angles), len(set.Samples))
	}
	for i, a := range angles {
		if a.ThetaDeg != set.Samples[i].ThetaDeg || a.PhiDeg != set.Samples[i].PhiDeg {
			t.Errorf("angle %d = %+v, want (%g, %g)", i, a, set.Samples[i].ThetaDeg, set.Samples[i].PhiDeg)
		}
	}
}

func TestAngleKey(t *testing.T) {
	tests := []struct {
		a, b float64
		same bool
	}{
		{10.0, 10.0, true},
		{10.0000001, 10.0000004, true},
		{10.0, 10.000001, false},
		{-0.0000001, 0.0000001, true},
		{math.Pi, math.Pi, true},
	}
	for _, tt := range tests {
		if got := AngleKey(tt.a) == AngleKey(tt.b); got != tt.same {
			t.Errorf("AngleKey(%v) == AngleKey(%v): got %v, want %v", tt.a, tt.b, got, tt.same)
		}
	}
}
