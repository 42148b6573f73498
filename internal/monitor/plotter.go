package monitor

import (
	"fmt"
	"image/color"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/bingo-data/beamscope/internal/engine"
	"github.com/bingo-data/beamscope/internal/pattern"
)

// handleCutPlot renders the latest constant-phi cut as a PNG line plot.
// Query params:
//
//	scale (optional; db or linear, default from tuning)
func (ws *WebServer) handleCutPlot(w http.ResponseWriter, r *http.Request) {
	scale, err := ws.chartScale(r)
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, ok := ws.orch.Latest(engine.SurfaceCut)
	if !ok || result.Cut == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no cut result yet; POST /api/compute/cut first")
		return
	}
	cut := result.Cut

	values := cut.DB
	yLabel := "Normalized (dB)"
	if scale == engine.ScaleLinear {
		values = cut.Linear
		yLabel = "Normalized (linear)"
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Far-Field Cut (phi=%g)", cut.PhiDeg)
	p.X.Label.Text = "Theta (deg)"
	p.Y.Label.Text = yLabel

	pts := make(plotter.XYs, len(cut.ThetaDeg))
	for i, theta := range cut.ThetaDeg {
		pts[i] = plotter.XY{X: theta, Y: values[i]}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("build line: %v", err))
		return
	}
	line.Color = color.RGBA{R: 0x26, G: 0x82, B: 0x8e, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add(fmt.Sprintf("peak at theta=%g", cut.PeakThetaDeg), line)
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	ws.writePNG(w, p, 10*vg.Inch, 5*vg.Inch)
}

// gridXYZ adapts a beam grid to the heatmap plotter's grid interface.
// Rows follow theta and columns follow phi, matching the grid layout.
type gridXYZ struct {
	grid   *pattern.BeamGrid2D
	linear bool
}

func (g gridXYZ) Dims() (c, r int) { return len(g.grid.PhiDeg), len(g.grid.ThetaDeg) }
func (g gridXYZ) X(c int) float64  { return g.grid.PhiDeg[c] }
func (g gridXYZ) Y(r int) float64  { return g.grid.ThetaDeg[r] }

func (g gridXYZ) Z(c, r int) float64 {
	if g.linear {
		return g.grid.Linear[r][c]
	}
	return g.grid.DB[r][c]
}

// handleGridPlot renders the latest full-sphere grid as a PNG heatmap.
// Query params as handleCutPlot.
func (ws *WebServer) handleGridPlot(w http.ResponseWriter, r *http.Request) {
	scale, err := ws.chartScale(r)
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, ok := ws.orch.Latest(engine.SurfaceGrid)
	if !ok || result.Grid == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no grid result yet; POST /api/compute/grid first")
		return
	}
	grid := result.Grid

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Far-Field Grid (peak theta=%g phi=%g)", grid.PeakThetaDeg, grid.PeakPhiDeg)
	p.X.Label.Text = "Phi (deg)"
	p.Y.Label.Text = "Theta (deg)"

	heat := plotter.NewHeatMap(gridXYZ{grid: grid, linear: scale == engine.ScaleLinear}, palette.Heat(12, 1))
	p.Add(heat)

	ws.writePNG(w, p, 8*vg.Inch, 6*vg.Inch)
}

// writePNG streams a rendered plot to the client.
func (ws *WebServer) writePNG(w http.ResponseWriter, p *plot.Plot, width, height vg.Length) {
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = wt.WriteTo(w)
}
