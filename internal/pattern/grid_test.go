package pattern

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bingo-data/beamscope/internal/efield"
	"github.com/bingo-data/beamscope/internal/units"
)

func TestGridFillsMissingCellsWithZero(t *testing.T) {
	samples := []efield.Sample{
		{ThetaDeg: 0, PhiDeg: 0},
		{ThetaDeg: 1, PhiDeg: 0},
		{ThetaDeg: 0, PhiDeg: 90},
		// (1, 90) intentionally absent.
	}
	grid, err := NewBeamGrid(samples, []float64{4, 2, 1})
	if err != nil {
		t.Fatalf("NewBeamGrid() error: %v", err)
	}
	if diff := cmp.Diff([]float64{0, 1}, grid.ThetaDeg); diff != "" {
		t.Fatalf("ThetaDeg mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 90}, grid.PhiDeg); diff != "" {
		t.Fatalf("PhiDeg mismatch (-want +got):\n%s", diff)
	}
	want := [][]float64{{4, 1}, {2, 0}}
	if diff := cmp.Diff(want, grid.Magnitude); diff != "" {
		t.Errorf("Magnitude mismatch (-want +got):\n%s", diff)
	}
	if got := grid.DB[1][1]; got != units.DBFloor {
		t.Errorf("empty cell DB = %v, want %v", got, units.DBFloor)
	}
	if got := grid.Linear[1][1]; got != 0 {
		t.Errorf("empty cell Linear = %v, want 0", got)
	}
}

func TestGridNormalizesAgainstGlobalPeak(t *testing.T) {
	samples := []efield.Sample{
		{ThetaDeg: 0, PhiDeg: 0},
		{ThetaDeg: 10, PhiDeg: 0},
	}
	grid, err := NewBeamGrid(samples, []float64{2, 1})
	if err != nil {
		t.Fatalf("NewBeamGrid() error: %v", err)
	}
	if grid.PeakMagnitude != 2 || grid.PeakThetaDeg != 0 || grid.PeakPhiDeg != 0 {
		t.Errorf("peak = (%v at %v,%v), want (2 at 0,0)", grid.PeakMagnitude, grid.PeakThetaDeg, grid.PeakPhiDeg)
	}
	if grid.DB[0][0] != 0 {
		t.Errorf("peak cell DB = %v, want 0", grid.DB[0][0])
	}
	wantDB := 20 * math.Log10(0.5)
	if !almostEqual(grid.DB[1][0], wantDB, 1e-12) {
		t.Errorf("half-magnitude cell DB = %v, want %v", grid.DB[1][0], wantDB)
	}
}

func TestGridJoinAtMicrodegreePrecision(t *testing.T) {
	// Two spellings of the same angle after a text round-trip must
	// land in one row.
	samples := []efield.Sample{
		{ThetaDeg: 10.0000001, PhiDeg: 0},
		{ThetaDeg: 10.0000004, PhiDeg: 90},
	}
	grid, err := NewBeamGrid(samples, []float64{1, 2})
	if err != nil {
		t.Fatalf("NewBeamGrid() error: %v", err)
	}
	if len(grid.ThetaDeg) != 1 {
		t.Fatalf("ThetaDeg = %v, want one row", grid.ThetaDeg)
	}
	if diff := cmp.Diff([][]float64{{1, 2}}, grid.Magnitude); diff != "" {
		t.Errorf("Magnitude mismatch (-want +got):\n%s", diff)
	}
}

func TestAllZeroGridNeverNaN(t *testing.T) {
	samples := []efield.Sample{
		{ThetaDeg: 0, PhiDeg: 0},
		{ThetaDeg: 1, PhiDeg: 1},
	}
	grid, err := NewBeamGrid(samples, []float64{0, 0})
	if err != nil {
		t.Fatalf("NewBeamGrid() error: %v", err)
	}
	for i := range grid.DB {
		for j := range grid.DB[i] {
			if math.IsNaN(grid.DB[i][j]) || math.IsNaN(grid.Linear[i][j]) {
				t.Fatalf("cell (%d,%d) produced NaN", i, j)
			}
			if grid.DB[i][j] != units.DBFloor {
				t.Errorf("cell (%d,%d) DB = %v, want %v", i, j, grid.DB[i][j], units.DBFloor)
			}
			if grid.Linear[i][j] != 0 {
				t.Errorf("cell (%d,%d) Linear = %v, want 0", i, j, grid.Linear[i][j])
			}
		}
	}
}

func TestGridCutPicksNearestPhiColumn(t *testing.T) {
	samples := []efield.Sample{
		{ThetaDeg: 0, PhiDeg: 0},
		{ThetaDeg: 1, PhiDeg: 0},
		{ThetaDeg: 0, PhiDeg: 90},
		{ThetaDeg: 1, PhiDeg: 90},
	}
	grid, err := NewBeamGrid(samples, []float64{4, 2, 3, 1})
	if err != nil {
		t.Fatalf("NewBeamGrid() error: %v", err)
	}
	cut, err := grid.Cut(80)
	if err != nil {
		t.Fatalf("Cut() error: %v", err)
	}
	if cut.PhiDeg != 90 {
		t.Errorf("cut plane = %v, want 90", cut.PhiDeg)
	}
	if diff := cmp.Diff([]float64{3, 1}, cut.Magnitude); diff != "" {
		t.Errorf("cut magnitudes mismatch (-want +got):\n%s", diff)
	}
}
