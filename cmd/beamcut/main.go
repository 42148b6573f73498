// Command beamcut runs one far-field computation without the service:
// it loads an element-pattern export, builds or loads a station layout,
// computes the requested surfaces synchronously and writes each as a
// CSV file, optionally with a PNG render alongside.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/bingo-data/beamscope/internal/efield"
	"github.com/bingo-data/beamscope/internal/layout"
	"github.com/bingo-data/beamscope/internal/pattern"
	"github.com/bingo-data/beamscope/internal/units"
)

var (
	efieldFile  = flag.String("efield", "", "Path to the element-pattern CSV export (required)")
	stationFile = flag.String("station", "", "Path to a station layout CSV, one x,y pair in meters per row")
	layoutKind  = flag.String("layout", "tile", "Station generator used when -station is not given")
	expandTiles = flag.Bool("expand-tiles", false, "Expand generated tile centers into full 64-antenna tiles")
	surfaces    = flag.String("surfaces", "cut", "Comma-separated surfaces to compute: cut, grid, psf (or all)")
	cutPhi      = flag.Float64("phi", 0, "Constant-phi plane of the cut in degrees")
	wavelengthM = flag.Float64("wavelength", 0.3, "Wavelength in meters")
	steerTheta  = flag.Float64("steer-theta", 0, "Steering theta in degrees")
	steerPhi    = flag.Float64("steer-phi", 0, "Steering phi in degrees")
	freqGHz     = flag.Float64("freq", 0, "Keep only export rows at this frequency in GHz (0 keeps every row)")
	thetaStride = flag.Int("theta-stride", 0, "Keep every Nth export row, thinning oversampled exports")
	convention  = flag.String("convention", "", "Empty-array convention: unity or zero (default unity for cut, zero for grid and psf)")
	outPrefix   = flag.String("out", "pattern", "Output path prefix; surfaces append _cut, _grid, _psf")
	renderPNG   = flag.Bool("png", false, "Render a PNG plot next to each CSV")
)

// parseSurfaces validates the -surfaces list. "all" expands to every
// surface in compute order.
func parseSurfaces(s string) ([]string, error) {
	if strings.TrimSpace(s) == "all" {
		return []string{"cut", "grid", "psf"}, nil
	}
	var out []string
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		switch f {
		case "":
		case "cut", "grid", "psf":
			out = append(out, f)
		default:
			return nil, fmt.Errorf("unknown surface %q (known: cut, grid, psf)", f)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no surfaces requested")
	}
	return out, nil
}

// surfaceConvention resolves the empty-array convention for one
// surface: the -convention flag when set, otherwise the surface
// default (unity for cuts, zero for grids and point-spread curves).
func surfaceConvention(surface string) (pattern.EmptyArrayConvention, error) {
	if *convention != "" {
		return pattern.ParseConvention(*convention)
	}
	if surface == "cut" {
		return pattern.UnityGain, nil
	}
	return pattern.ZeroGain, nil
}

func loadStation() ([]layout.Coordinate, error) {
	if *stationFile != "" {
		return layout.LoadFile(*stationFile)
	}
	kind := layout.Kind(*layoutKind)
	if !kind.IsValid() {
		return nil, fmt.Errorf("unknown layout kind %q (known: %v)", *layoutKind, layout.Kinds())
	}
	return layout.Request{Kind: kind, ExpandTiles: *expandTiles}.Generate()
}

// combine runs the kernel over the samples and joins the array factor
// with the element fields, exactly as the service workers do.
func combine(samples []efield.Sample, coords []layout.Coordinate, waveNumber float64, steering units.Angle, conv pattern.EmptyArrayConvention) ([]float64, error) {
	angles := make([]units.Angle, len(samples))
	for i, smp := range samples {
		angles[i] = smp.Angle()
	}
	af := pattern.ComputeArrayFactor(angles, coords, waveNumber, steering, conv)
	return pattern.CombineFields(samples, af)
}

func writeCutCSV(path string, cut *pattern.BeamCut1D) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"theta_deg", "magnitude", "linear", "db"}); err != nil {
		return err
	}
	for i := range cut.ThetaDeg {
		row := []string{
			strconv.FormatFloat(cut.ThetaDeg[i], 'f', 4, 64),
			strconv.FormatFloat(cut.Magnitude[i], 'e', 9, 64),
			strconv.FormatFloat(cut.Linear[i], 'f', 9, 64),
			strconv.FormatFloat(cut.DB[i], 'f', 4, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeGridCSV(path string, grid *pattern.BeamGrid2D) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"theta_deg", "phi_deg", "magnitude", "linear", "db"}); err != nil {
		return err
	}
	for i, theta := range grid.ThetaDeg {
		for j, phi := range grid.PhiDeg {
			row := []string{
				strconv.FormatFloat(theta, 'f', 4, 64),
				strconv.FormatFloat(phi, 'f', 4, 64),
				strconv.FormatFloat(grid.Magnitude[i][j], 'e', 9, 64),
				strconv.FormatFloat(grid.Linear[i][j], 'f', 9, 64),
				strconv.FormatFloat(grid.DB[i][j], 'f', 4, 64),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func writePSFCSV(path string, curve *pattern.PSFCurve) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"half_angle_deg", "fraction"}); err != nil {
		return err
	}
	for i := range curve.HalfAngleDeg {
		row := []string{
			strconv.FormatFloat(curve.HalfAngleDeg[i], 'f', 4, 64),
			strconv.FormatFloat(curve.Fraction[i], 'f', 9, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func saveCutPNG(path string, cut *pattern.BeamCut1D) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Far-Field Cut (phi=%g)", cut.PhiDeg)
	p.X.Label.Text = "Theta (deg)"
	p.Y.Label.Text = "Normalized (dB)"

	pts := make(plotter.XYs, len(cut.ThetaDeg))
	for i, theta := range cut.ThetaDeg {
		pts[i] = plotter.XY{X: theta, Y: cut.DB[i]}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 0x26, G: 0x82, B: 0x8e, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add(fmt.Sprintf("peak at theta=%g", cut.PeakThetaDeg), line)
	p.Legend.Top = true

	return p.Save(10*vg.Inch, 5*vg.Inch, path)
}

// beamGridXYZ adapts a beam grid to the heatmap plotter, rows along
// theta and columns along phi.
type beamGridXYZ struct {
	grid *pattern.BeamGrid2D
}

func (g beamGridXYZ) Dims() (c, r int)   { return len(g.grid.PhiDeg), len(g.grid.ThetaDeg) }
func (g beamGridXYZ) X(c int) float64    { return g.grid.PhiDeg[c] }
func (g beamGridXYZ) Y(r int) float64    { return g.grid.ThetaDeg[r] }
func (g beamGridXYZ) Z(c, r int) float64 { return g.grid.DB[r][c] }

func saveGridPNG(path string, grid *pattern.BeamGrid2D) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Far-Field Grid (peak theta=%g phi=%g)", grid.PeakThetaDeg, grid.PeakPhiDeg)
	p.X.Label.Text = "Phi (deg)"
	p.Y.Label.Text = "Theta (deg)"

	p.Add(plotter.NewHeatMap(beamGridXYZ{grid: grid}, palette.Heat(12, 1)))
	return p.Save(8*vg.Inch, 6*vg.Inch, path)
}

func savePSFPNG(path string, curve *pattern.PSFCurve) error {
	p := plot.New()
	p.Title.Text = "Encircled Energy"
	p.X.Label.Text = "Half-angle (deg)"
	p.Y.Label.Text = "Fraction of radiated power"

	pts := make(plotter.XYs, len(curve.HalfAngleDeg))
	for i, half := range curve.HalfAngleDeg {
		pts[i] = plotter.XY{X: half, Y: curve.Fraction[i]}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 0x26, G: 0x82, B: 0x8e, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)

	return p.Save(10*vg.Inch, 5*vg.Inch, path)
}

func runCut(set *efield.Set, coords []layout.Coordinate, waveNumber float64, steering units.Angle) error {
	conv, err := surfaceConvention("cut")
	if err != nil {
		return err
	}
	samples := set.CutAtPhi(*cutPhi, 0)
	if len(samples) == 0 {
		return fmt.Errorf("element pattern has no samples at phi=%g (phis: %v)", *cutPhi, set.UniquePhis())
	}

	mags, err := combine(samples, coords, waveNumber, steering, conv)
	if err != nil {
		return err
	}
	thetas := make([]float64, len(samples))
	for i, smp := range samples {
		thetas[i] = smp.ThetaDeg
	}
	cut, err := pattern.NewBeamCut(*cutPhi, thetas, mags)
	if err != nil {
		return err
	}

	path := *outPrefix + "_cut.csv"
	if err := writeCutCSV(path, cut); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	log.Printf("✓ Created: %s (%d points)", path, cut.Len())

	m := pattern.AnalyzeCut(cut)
	log.Printf("cut: peak at theta=%.2f, beamwidth %.2f deg, first sidelobe %.2f dB at theta=%.2f",
		m.PeakThetaDeg, m.BeamwidthDeg, m.FirstSidelobeDB, m.SidelobeThetaDeg)

	if *renderPNG {
		png := *outPrefix + "_cut.png"
		if err := saveCutPNG(png, cut); err != nil {
			return fmt.Errorf("render %s: %w", png, err)
		}
		log.Printf("✓ Created: %s", png)
	}
	return nil
}

// buildGrid combines over the whole sample set, for the grid and psf
// surfaces.
func buildGrid(set *efield.Set, coords []layout.Coordinate, waveNumber float64, steering units.Angle, surface string) (*pattern.BeamGrid2D, error) {
	conv, err := surfaceConvention(surface)
	if err != nil {
		return nil, err
	}
	mags, err := combine(set.Samples, coords, waveNumber, steering, conv)
	if err != nil {
		return nil, err
	}
	return pattern.NewBeamGrid(set.Samples, mags)
}

func runGrid(set *efield.Set, coords []layout.Coordinate, waveNumber float64, steering units.Angle) error {
	grid, err := buildGrid(set, coords, waveNumber, steering, "grid")
	if err != nil {
		return err
	}

	path := *outPrefix + "_grid.csv"
	if err := writeGridCSV(path, grid); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	log.Printf("✓ Created: %s (%d cells, peak at theta=%.2f phi=%.2f)",
		path, grid.Cells(), grid.PeakThetaDeg, grid.PeakPhiDeg)

	if *renderPNG {
		png := *outPrefix + "_grid.png"
		if err := saveGridPNG(png, grid); err != nil {
			return fmt.Errorf("render %s: %w", png, err)
		}
		log.Printf("✓ Created: %s", png)
	}
	return nil
}

func runPSF(set *efield.Set, coords []layout.Coordinate, waveNumber float64, steering units.Angle) error {
	grid, err := buildGrid(set, coords, waveNumber, steering, "psf")
	if err != nil {
		return err
	}
	curve := pattern.NewPSFCurve(grid)

	path := *outPrefix + "_psf.csv"
	if err := writePSFCSV(path, curve); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	log.Printf("✓ Created: %s (%d points)", path, len(curve.HalfAngleDeg))

	if half50, ok := curve.HalfAngleAt(0.5); ok {
		log.Printf("psf: 50%% of power within %.2f deg", half50)
	}
	if half80, ok := curve.HalfAngleAt(0.8); ok {
		log.Printf("psf: 80%% of power within %.2f deg", half80)
	}

	if *renderPNG {
		png := *outPrefix + "_psf.png"
		if err := savePSFPNG(png, curve); err != nil {
			return fmt.Errorf("render %s: %w", png, err)
		}
		log.Printf("✓ Created: %s", png)
	}
	return nil
}

func main() {
	flag.Parse()

	if *efieldFile == "" {
		log.Fatal("Element-pattern CSV is required (-efield)")
	}
	if *wavelengthM <= 0 {
		log.Fatalf("Wavelength must be positive, got %g", *wavelengthM)
	}

	requested, err := parseSurfaces(*surfaces)
	if err != nil {
		log.Fatalf("Invalid -surfaces: %v", err)
	}

	set, err := efield.LoadFile(*efieldFile, efield.LoadOptions{
		FreqGHz:     *freqGHz,
		ThetaStride: *thetaStride,
	})
	if err != nil {
		log.Fatalf("Failed to load element pattern: %v", err)
	}
	if len(set.Samples) == 0 {
		log.Fatalf("Element pattern %s has no usable samples", *efieldFile)
	}
	log.Printf("Loaded %d element-pattern samples (%d thetas x %d phis, %d dropped)",
		len(set.Samples), len(set.UniqueThetas()), len(set.UniquePhis()), set.Dropped)

	coords, err := loadStation()
	if err != nil {
		log.Fatalf("Failed to resolve station layout: %v", err)
	}
	log.Printf("Station has %d antennas", len(coords))

	waveNumber := units.WaveNumberFromWavelength(*wavelengthM)
	steering := units.Angle{ThetaDeg: *steerTheta, PhiDeg: *steerPhi}
	if err := pattern.ValidateGeometry(coords, waveNumber, steering); err != nil {
		log.Fatalf("Invalid geometry: %v", err)
	}

	for _, surface := range requested {
		var err error
		switch surface {
		case "cut":
			err = runCut(set, coords, waveNumber, steering)
		case "grid":
			err = runGrid(set, coords, waveNumber, steering)
		case "psf":
			err = runPSF(set, coords, waveNumber, steering)
		}
		if err != nil {
			log.Fatalf("Failed to compute %s: %v", surface, err)
		}
	}
}
