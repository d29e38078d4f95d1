// Package api serves the derived occupancy tables as JSON.
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/wardsight/occupancy.report/internal/config"
	"github.com/wardsight/occupancy.report/internal/db"
	"github.com/wardsight/occupancy.report/internal/monitoring"
	"github.com/wardsight/occupancy.report/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	db     *db.DB
	tuning *config.TuningConfig
}

func NewServer(database *db.DB, tuning *config.TuningConfig) *Server {
	if tuning == nil {
		tuning = config.EmptyTuningConfig()
	}
	return &Server{db: database, tuning: tuning}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/positions", s.listPositions)
	mux.HandleFunc("/api/activity", s.listActivity)
	mux.HandleFunc("/api/operation", s.listOperation)
	mux.HandleFunc("/api/journey", s.showJourney)
	mux.HandleFunc("/api/dwell", s.listDwell)
	mux.HandleFunc("/api/spaces", s.listSpaceStats)
	mux.HandleFunc("/api/flow", s.listFlow)
	mux.HandleFunc("/api/params", s.showParams)
	mux.HandleFunc("/api/anchors", s.listAnchors)
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("api: encode response: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// resolveRunID returns the run_id query parameter, falling back to the
// latest stored run. ok=false means the response was already written.
func (s *Server) resolveRunID(w http.ResponseWriter, r *http.Request) (string, bool) {
	runID := r.URL.Query().Get("run_id")
	if runID != "" {
		return runID, true
	}
	runID, err := s.db.LatestRunID()
	if errors.Is(err, sql.ErrNoRows) {
		s.writeJSONError(w, http.StatusNotFound, "no runs recorded yet")
		return "", false
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to resolve latest run")
		return "", false
	}
	return runID, true
}

func requireGet(w http.ResponseWriter, r *http.Request, s *Server) bool {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r, s) {
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}
	runs, err := s.db.ListRuns(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	s.writeJSON(w, map[string]interface{}{"runs": runs})
}

func (s *Server) listPositions(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r, s) {
		return
	}
	runID, ok := s.resolveRunID(w, r)
	if !ok {
		return
	}
	positions, err := s.db.ListPositions(runID, r.URL.Query().Get("mac"))
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to query positions")
		return
	}
	s.writeJSON(w, map[string]interface{}{"run_id": runID, "positions": positions})
}

func (s *Server) listActivity(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r, s) {
		return
	}
	runID, ok := s.resolveRunID(w, r)
	if !ok {
		return
	}
	activity, err := s.db.ListActivity(runID, r.URL.Query().Get("mac"))
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to query activity")
		return
	}
	s.writeJSON(w, map[string]interface{}{"run_id": runID, "activity": activity})
}

func (s *Server) listOperation(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r, s) {
		return
	}
	runID, ok := s.resolveRunID(w, r)
	if !ok {
		return
	}
	rows, err := s.db.ListOperation(runID, r.URL.Query().Get("building"))
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to query operation table")
		return
	}
	s.writeJSON(w, map[string]interface{}{"run_id": runID, "operation": rows})
}

func (s *Server) showJourney(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r, s) {
		return
	}
	runID, ok := s.resolveRunID(w, r)
	if !ok {
		return
	}
	matrix, err := s.db.LoadJourney(runID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to load journey matrix")
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"run_id":  runID,
		"devices": matrix.Devices,
		"codes":   matrix.Codes,
	})
}

func (s *Server) listDwell(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r, s) {
		return
	}
	runID, ok := s.resolveRunID(w, r)
	if !ok {
		return
	}
	dwell, err := s.db.ListDwell(runID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to query dwell table")
		return
	}
	s.writeJSON(w, map[string]interface{}{"run_id": runID, "dwell": dwell})
}

func (s *Server) listSpaceStats(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r, s) {
		return
	}
	runID, ok := s.resolveRunID(w, r)
	if !ok {
		return
	}
	spaces, err := s.db.ListSpaceStats(runID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to query space statistics")
		return
	}
	s.writeJSON(w, map[string]interface{}{"run_id": runID, "spaces": spaces})
}

func (s *Server) listFlow(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r, s) {
		return
	}
	runID, ok := s.resolveRunID(w, r)
	if !ok {
		return
	}
	flow, err := s.db.ListFlow(runID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to query flow table")
		return
	}
	s.writeJSON(w, map[string]interface{}{"run_id": runID, "flow": flow})
}

func (s *Server) showParams(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r, s) {
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"version": version.Version,
		"git_sha": version.GitSHA,
		"params":  s.tuning,
	})
}

func (s *Server) listAnchors(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r, s) {
		return
	}
	anchors, err := s.db.LoadAnchors()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to query anchors")
		return
	}
	s.writeJSON(w, map[string]interface{}{"anchors": anchors})
}
