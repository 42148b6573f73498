package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/bingo-data/beamscope/internal/engine"
	"github.com/bingo-data/beamscope/internal/pattern"
)

// echartsAssetsPrefix pins the echarts JS assets bundled with the
// rendered chart pages.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridisColors is the color ramp for magnitude visual maps.
var viridisColors = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// chartScale resolves the optional `scale` query parameter against the
// configured default presentation scale.
func (ws *WebServer) chartScale(r *http.Request) (engine.ScaleMode, error) {
	scale := engine.ScaleMode(r.URL.Query().Get("scale"))
	if scale == "" {
		scale = engine.ScaleMode(ws.tuning.GetDefaultScale())
	}
	if scale != engine.ScaleDB && scale != engine.ScaleLinear {
		return "", fmt.Errorf("invalid 'scale' %q", scale)
	}
	return scale, nil
}

// chartMaxPoints resolves the `max_points` query parameter, falling
// back to the tuned chart budget.
func (ws *WebServer) chartMaxPoints(r *http.Request) int {
	maxPoints := ws.tuning.GetMaxChartPoints()
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}
	return maxPoints
}

// handleCutChart renders the latest constant-phi cut as an HTML line chart.
// Query params:
//   - scale (optional; db or linear, default from tuning)
//   - max_points (optional; default from tuning) to reduce payload size
func (ws *WebServer) handleCutChart(w http.ResponseWriter, r *http.Request) {
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

	type point struct{ theta, value float64 }
	pts := make([]point, cut.Len())
	for i, theta := range cut.ThetaDeg {
		v := cut.DB[i]
		if scale == engine.ScaleLinear {
			v = cut.Linear[i]
		}
		pts[i] = point{theta, v}
	}
	pts = pattern.Downsample(pts, ws.chartMaxPoints(r))

	x := make([]string, len(pts))
	y := make([]opts.LineData, len(pts))
	for i, p := range pts {
		x[i] = strconv.FormatFloat(p.theta, 'f', -1, 64)
		y[i] = opts.LineData{Value: p.value}
	}

	yName := "Normalized (dB)"
	if scale == engine.ScaleLinear {
		yName = "Normalized (linear)"
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Beamscope Cut", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Far-Field Cut (phi=%g)", cut.PhiDeg), Subtitle: fmt.Sprintf("task=%d points=%d peak_theta=%g", result.TaskID, len(pts), cut.PeakThetaDeg)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Theta (deg)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName, NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(x).AddSeries("cut", y, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleGridChart renders the latest full-sphere grid as a heatmap
// (colored scatter over phi/theta). Query params as handleCutChart.
func (ws *WebServer) handleGridChart(w http.ResponseWriter, r *http.Request) {
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

	maxPoints := ws.chartMaxPoints(r)

	// Downsample by stride to stay within maxPoints
	stride := 1
	if grid.Cells() > maxPoints {
		stride = int(math.Ceil(float64(grid.Cells()) / float64(maxPoints)))
	}

	data := make([]opts.ScatterData, 0, grid.Cells()/stride+1)
	minVal := math.Inf(1)
	maxVal := math.Inf(-1)
	n := 0
	for i, theta := range grid.ThetaDeg {
		for j, phi := range grid.PhiDeg {
			keep := n%stride == 0
			n++
			if !keep {
				continue
			}
			v := grid.DB[i][j]
			if scale == engine.ScaleLinear {
				v = grid.Linear[i][j]
			}
			if v < minVal {
				minVal = v
			}
			if v > maxVal {
				maxVal = v
			}
			data = append(data, opts.ScatterData{Value: []interface{}{phi, theta, v}})
		}
	}
	if maxVal <= minVal {
		maxVal = minVal + 1
	}

	// Add a small padding so symbols on the grid rim are visible
	pad := 2.0

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Beamscope Grid", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Far-Field Grid", Subtitle: fmt.Sprintf("task=%d cells=%d stride=%d scale=%s", result.TaskID, len(data), stride, scale)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: grid.PhiDeg[0] - pad, Max: grid.PhiDeg[len(grid.PhiDeg)-1] + pad, Name: "Phi (deg)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: grid.ThetaDeg[0] - pad, Max: grid.ThetaDeg[len(grid.ThetaDeg)-1] + pad, Name: "Theta (deg)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minVal),
			Max:        float32(maxVal),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisColors},
		}),
	)
	scatter.AddSeries("grid", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render heatmap chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handlePSFChart renders the latest encircled-energy curve as an HTML
// line chart. The curve is a 0..1 fraction, so no scale parameter.
func (ws *WebServer) handlePSFChart(w http.ResponseWriter, r *http.Request) {
	result, ok := ws.orch.Latest(engine.SurfacePSF)
	if !ok || result.PSF == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no psf result yet; POST /api/compute/psf first")
		return
	}
	psf := result.PSF

	type point struct{ angle, fraction float64 }
	pts := make([]point, len(psf.HalfAngleDeg))
	for i, angle := range psf.HalfAngleDeg {
		pts[i] = point{angle, psf.Fraction[i]}
	}
	pts = pattern.Downsample(pts, ws.chartMaxPoints(r))

	x := make([]string, len(pts))
	y := make([]opts.LineData, len(pts))
	for i, p := range pts {
		x[i] = strconv.FormatFloat(p.angle, 'f', -1, 64)
		y[i] = opts.LineData{Value: p.fraction}
	}

	subtitle := fmt.Sprintf("task=%d points=%d", result.TaskID, len(pts))
	if h50, ok := psf.HalfAngleAt(0.5); ok {
		subtitle += fmt.Sprintf(" half50=%.2f", h50)
	}
	if h80, ok := psf.HalfAngleAt(0.8); ok {
		subtitle += fmt.Sprintf(" half80=%.2f", h80)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Beamscope PSF", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Encircled Energy", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Half-angle (deg)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Fraction of radiated power", NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(x).AddSeries("psf", y, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
