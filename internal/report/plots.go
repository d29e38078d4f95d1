// Package report renders PNG summaries of a precomputed run for
// offline inspection or inclusion in written reports.
package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/wardsight/occupancy.report/internal/ward"
)

// Renderer writes run plots into a single output directory.
type Renderer struct {
	outputDir string
}

// NewRenderer creates a renderer. The directory is created on the
// first WritePlots call.
func NewRenderer(outputDir string) *Renderer {
	return &Renderer{outputDir: outputDir}
}

// WritePlots renders all plots the result has data for and returns the
// number of PNG files written. Anchors, when provided, are overlaid on
// the position scatter.
func (rd *Renderer) WritePlots(res *ward.Result, anchors []ward.Anchor) (int, error) {
	if rd.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}
	if err := os.MkdirAll(rd.outputDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}

	count := 0
	if len(res.Operation) > 0 {
		if err := rd.operationPlot(res.Operation); err != nil {
			return count, fmt.Errorf("operation plot: %w", err)
		}
		count++
	}
	if len(res.Dwell) > 0 {
		if err := rd.dwellPlot(res.Dwell); err != nil {
			return count, fmt.Errorf("dwell plot: %w", err)
		}
		count++
	}
	if len(res.Positions) > 0 {
		if err := rd.positionPlot(res.Positions, anchors); err != nil {
			return count, fmt.Errorf("position plot: %w", err)
		}
		count++
	}
	return count, nil
}

// operationPlot draws one operation-rate line per (building, level)
// over the ten-minute bins of the day.
func (rd *Renderer) operationPlot(rows []ward.OperationRow) error {
	byLocation := make(map[string]plotter.XYs)
	for _, row := range rows {
		name := row.Building + " " + row.Level
		byLocation[name] = append(byLocation[name], plotter.XY{X: float64(row.Bin), Y: row.Rate})
	}

	var names []string
	for name := range byLocation {
		names = append(names, name)
	}
	sort.Strings(names)

	p := plot.New()
	p.Title.Text = "Equipment Operation Rate"
	p.X.Label.Text = "Ten-minute bin"
	p.Y.Label.Text = "Rate (%)"
	p.Y.Min = 0
	p.Y.Max = 100

	colors := generateColors(len(names))
	for i, name := range names {
		pts := byLocation[name]
		sort.Slice(pts, func(a, b int) bool { return pts[a].X < pts[b].X })

		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(name, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	file := filepath.Join(rd.outputDir, "operation_rate.png")
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save operation plot: %w", err)
	}
	return nil
}

// dwellPlot draws a histogram of per-device dwell minutes.
func (rd *Renderer) dwellPlot(dwell []ward.DwellSummary) error {
	values := make(plotter.Values, 0, len(dwell))
	for _, d := range dwell {
		values = append(values, float64(d.Minutes))
	}

	bins := 16
	if len(values) < bins {
		bins = len(values)
	}
	hist, err := plotter.NewHist(values, bins)
	if err != nil {
		return err
	}
	hist.FillColor = color.RGBA{R: 0x31, G: 0x68, B: 0x8e, A: 255}

	p := plot.New()
	p.Title.Text = "Dwell Minutes"
	p.X.Label.Text = "Minutes with signals"
	p.Y.Label.Text = "Devices"
	p.Add(hist)

	file := filepath.Join(rd.outputDir, "dwell_minutes.png")
	if err := p.Save(8*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save dwell plot: %w", err)
	}
	return nil
}

// positionPlot draws smoothed positions coloured per device, with
// anchors overlaid as large glyphs.
func (rd *Renderer) positionPlot(positions []ward.PositionEstimate, anchors []ward.Anchor) error {
	byDevice := make(map[string]plotter.XYs)
	for _, pos := range positions {
		byDevice[pos.MAC] = append(byDevice[pos.MAC], plotter.XY{X: pos.SmoothedX, Y: pos.SmoothedY})
	}

	var macs []string
	for mac := range byDevice {
		macs = append(macs, mac)
	}
	sort.Strings(macs)

	p := plot.New()
	p.Title.Text = "Smoothed Positions"
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"

	colors := generateColors(len(macs))
	for i, mac := range macs {
		sc, err := plotter.NewScatter(byDevice[mac])
		if err != nil {
			return err
		}
		sc.GlyphStyle.Color = colors[i]
		sc.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(sc)
	}

	if len(anchors) > 0 {
		pts := make(plotter.XYs, 0, len(anchors))
		for _, a := range anchors {
			pts = append(pts, plotter.XY{X: a.X, Y: a.Y})
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		sc.GlyphStyle.Color = color.RGBA{R: 255, G: 82, B: 82, A: 255}
		sc.GlyphStyle.Radius = vg.Points(4)
		p.Add(sc)
		p.Legend.Add("anchors", sc)
	}

	file := filepath.Join(rd.outputDir, "positions.png")
	if err := p.Save(10*vg.Inch, 10*vg.Inch, file); err != nil {
		return fmt.Errorf("save position plot: %w", err)
	}
	return nil
}

// generateColors creates a palette of distinct colors for plot series.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakeOutputDir returns a timestamped plot directory under baseDir,
// named after the run.
func MakeOutputDir(baseDir, runID string) string {
	ts := FormatTimestamp(time.Now())
	if runID != "" {
		return filepath.Join(baseDir, runID, ts)
	}
	return filepath.Join(baseDir, ts)
}
