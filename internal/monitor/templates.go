package monitor

import (
	"fmt"
	"html"
	"net/http"
	"net/url"
)

// handleDashboard renders a simple page with iframes to the run charts.
func (cs *ChartServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	safeRunID := html.EscapeString(runID)
	qs := ""
	if runID != "" {
		qs = "?run_id=" + url.QueryEscape(runID)
	}
	safeQs := html.EscapeString(qs)

	doc := fmt.Sprintf(dashboardHTML, safeRunID, safeQs)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}

const dashboardHTML = `<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<title>Occupancy Dashboard %[1]s</title>
	<style>
		body { background: #111; color: #eee; font-family: sans-serif; margin: 1rem; }
		iframe { border: 1px solid #333; width: 100%%; height: 760px; margin-bottom: 1rem; }
		h2 { margin: 0.5rem 0; }
	</style>
</head>
<body>
	<h1>Occupancy Dashboard %[1]s</h1>
	<h2>Worker Journeys</h2>
	<iframe src="/charts/journey%[2]s"></iframe>
	<h2>Equipment Operation</h2>
	<iframe src="/charts/operation%[2]s"></iframe>
	<h2>Space Occupancy</h2>
	<iframe src="/charts/occupancy%[2]s"></iframe>
	<h2>Phone Flow</h2>
	<iframe src="/charts/flow%[2]s"></iframe>
</body>
</html>
`
