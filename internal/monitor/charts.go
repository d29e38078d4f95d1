// Package monitor serves self-contained ECharts HTML views of a
// precomputed run: the worker journey heatmap, equipment operation
// rates, occupancy statistics and phone flow. These are debugging-only
// endpoints (no auth) to eyeball a run without a separate frontend.
package monitor

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/wardsight/occupancy.report/internal/db"
	"github.com/wardsight/occupancy.report/internal/ward"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// journeyPalette maps journey colour codes to chart colours. Index 0
// is no-signal, index 1 is present-without-location, the rest are
// location codes in registry order. The final entry is reused for any
// codes past the palette, including the shared ambiguous code.
var journeyPalette = []string{
	"#f5f5f5", "#9e9e9e",
	"#440154", "#3e4989", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725",
}

// ChartServer renders charts from persisted run results.
type ChartServer struct {
	db *db.DB
}

func NewChartServer(database *db.DB) *ChartServer {
	return &ChartServer{db: database}
}

// ServeMux returns a mux with all chart routes registered.
func (cs *ChartServer) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/charts/", cs.handleDashboard)
	mux.HandleFunc("/charts/journey", cs.handleJourneyChart)
	mux.HandleFunc("/charts/operation", cs.handleOperationChart)
	mux.HandleFunc("/charts/occupancy", cs.handleOccupancyChart)
	mux.HandleFunc("/charts/flow", cs.handleFlowChart)
	return mux
}

func (cs *ChartServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// resolveRunID returns the run_id query parameter, falling back to the
// most recent run when absent.
func (cs *ChartServer) resolveRunID(r *http.Request) (string, error) {
	if runID := r.URL.Query().Get("run_id"); runID != "" {
		return runID, nil
	}
	return cs.db.LatestRunID()
}

func (cs *ChartServer) renderChart(w http.ResponseWriter, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		cs.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleJourneyChart renders the worker journey matrix as a heatmap:
// one row per worker, one column per ten-minute bin, cells coloured by
// journey code.
func (cs *ChartServer) handleJourneyChart(w http.ResponseWriter, r *http.Request) {
	runID, err := cs.resolveRunID(r)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			cs.writeJSONError(w, http.StatusNotFound, "no runs recorded yet")
			return
		}
		cs.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	matrix, err := cs.db.LoadJourney(runID)
	if err != nil {
		cs.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load journey: %v", err))
		return
	}
	if len(matrix.Devices) == 0 {
		cs.writeJSONError(w, http.StatusNotFound, "no journey rows for run")
		return
	}

	maxCode := 1
	data := make([]opts.HeatMapData, 0, len(matrix.Devices)*ward.TenMinuteBinsPerDay)
	for row, codes := range matrix.Codes {
		for bin, code := range codes {
			if code > maxCode {
				maxCode = code
			}
			data = append(data, opts.HeatMapData{Value: [3]interface{}{bin, row, code}})
		}
	}

	xLabels := make([]string, ward.TenMinuteBinsPerDay)
	for bin := range xLabels {
		xLabels[bin] = ward.TenMinuteLabel(bin)
	}

	colors := journeyPalette
	if maxCode+1 < len(colors) {
		colors = colors[:maxCode+1]
	}

	heatmap := charts.NewHeatMap()
	heatmap.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Worker Journeys", Theme: "dark", Width: "1400px", Height: "800px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Worker Journeys", Subtitle: fmt.Sprintf("run=%s workers=%d", runID, len(matrix.Devices))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: xLabels, SplitArea: &opts.SplitArea{Show: opts.Bool(true)}}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: matrix.Devices, SplitArea: &opts.SplitArea{Show: opts.Bool(true)}}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(false),
			Min:        0,
			Max:        float32(maxCode),
			InRange:    &opts.VisualMapInRange{Color: colors},
		}),
	)
	heatmap.AddSeries("journey", data)

	cs.renderChart(w, heatmap.Render)
}

// handleOperationChart renders operation rate over the day, one line
// per (building, level) including the "(All)" rollups.
func (cs *ChartServer) handleOperationChart(w http.ResponseWriter, r *http.Request) {
	runID, err := cs.resolveRunID(r)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			cs.writeJSONError(w, http.StatusNotFound, "no runs recorded yet")
			return
		}
		cs.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rows, err := cs.db.ListOperation(runID, r.URL.Query().Get("building"))
	if err != nil {
		cs.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load operation rows: %v", err))
		return
	}
	if len(rows) == 0 {
		cs.writeJSONError(w, http.StatusNotFound, "no operation rows for run")
		return
	}

	// Rows arrive ordered by building, level, bin; group them into one
	// 144-point series per location.
	type series struct {
		name  string
		rates []opts.LineData
	}
	var all []*series
	byName := make(map[string]*series)
	for _, row := range rows {
		name := row.Building + " " + row.Level
		s, ok := byName[name]
		if !ok {
			s = &series{name: name, rates: make([]opts.LineData, ward.TenMinuteBinsPerDay)}
			byName[name] = s
			all = append(all, s)
		}
		if row.Bin >= 0 && row.Bin < ward.TenMinuteBinsPerDay {
			s.rates[row.Bin] = opts.LineData{Value: row.Rate}
		}
	}

	xLabels := make([]string, ward.TenMinuteBinsPerDay)
	for bin := range xLabels {
		xLabels[bin] = ward.TenMinuteLabel(bin)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Equipment Operation", Theme: "dark", Width: "1400px", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Equipment Operation Rate", Subtitle: fmt.Sprintf("run=%s locations=%d", runID, len(all))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100, Name: "rate (%)"}),
	)
	line.SetXAxis(xLabels)
	for _, s := range all {
		line.AddSeries(s.name, s.rates)
	}

	cs.renderChart(w, line.Render)
}

// handleOccupancyChart renders per-space worker statistics as grouped bars.
func (cs *ChartServer) handleOccupancyChart(w http.ResponseWriter, r *http.Request) {
	runID, err := cs.resolveRunID(r)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			cs.writeJSONError(w, http.StatusNotFound, "no runs recorded yet")
			return
		}
		cs.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	stats, err := cs.db.ListSpaceStats(runID)
	if err != nil {
		cs.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load space stats: %v", err))
		return
	}
	if len(stats) == 0 {
		cs.writeJSONError(w, http.StatusNotFound, "no space stats for run")
		return
	}

	x := make([]string, 0, len(stats))
	maxActive := make([]opts.BarData, 0, len(stats))
	avgActive := make([]opts.BarData, 0, len(stats))
	maxPresent := make([]opts.BarData, 0, len(stats))
	for _, s := range stats {
		x = append(x, s.Building+" "+s.Level)
		maxActive = append(maxActive, opts.BarData{Value: s.MaxActive})
		avgActive = append(avgActive, opts.BarData{Value: s.AvgActive})
		maxPresent = append(maxPresent, opts.BarData{Value: s.MaxPresent})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Occupancy", Theme: "dark", Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Space Occupancy", Subtitle: fmt.Sprintf("run=%s spaces=%d", runID, len(stats))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("max active", maxActive).
		AddSeries("avg active", avgActive).
		AddSeries("max present", maxPresent,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	cs.renderChart(w, bar.Render)
}

// handleFlowChart renders phone flow per bin, split by platform.
func (cs *ChartServer) handleFlowChart(w http.ResponseWriter, r *http.Request) {
	runID, err := cs.resolveRunID(r)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			cs.writeJSONError(w, http.StatusNotFound, "no runs recorded yet")
			return
		}
		cs.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	bins, err := cs.db.ListFlow(runID)
	if err != nil {
		cs.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load flow bins: %v", err))
		return
	}
	if len(bins) == 0 {
		cs.writeJSONError(w, http.StatusNotFound, "no flow bins for run")
		return
	}

	x := make([]string, 0, len(bins))
	apple := make([]opts.BarData, 0, len(bins))
	android := make([]opts.BarData, 0, len(bins))
	for _, b := range bins {
		x = append(x, fmt.Sprintf("bin %d", b.Bin))
		apple = append(apple, opts.BarData{Value: b.Apple})
		android = append(android, opts.BarData{Value: b.Android})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Phone Flow", Theme: "dark", Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Phone Flow", Subtitle: fmt.Sprintf("run=%s bins=%d", runID, len(bins))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("apple", apple).
		AddSeries("android", android)

	cs.renderChart(w, bar.Render)
}
