package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/wardsight/occupancy.report/internal/config"
	"github.com/wardsight/occupancy.report/internal/db"
	"github.com/wardsight/occupancy.report/internal/testutil"
	"github.com/wardsight/occupancy.report/internal/ward"
)

func seededServer(t *testing.T) *Server {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "api_test.db"))
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { database.Close() })

	res := &ward.Result{
		RunID:       "run-api",
		Fingerprint: "fp",
		Unresolved:  1,
		Elapsed:     time.Second,
		Positions: []ward.PositionEstimate{
			{MAC: "ex:01", Bin: 0, X: 1, Y: 2, SmoothedX: 1.5, SmoothedY: 2.5, IsActive: true, AnchorCount: 2},
		},
		Activity: []ward.ActivityRecord{
			{MAC: "wk:01", Minute: 480, SignalCount: 4, Status: ward.StatusActive, Building: "WWT", Level: "1F"},
		},
		Operation: []ward.OperationRow{
			{Building: "WWT", Level: "1F", Bin: 48, OperatingCount: 1, TotalCount: 1, Rate: 100.0},
		},
		Journey: ward.JourneyMatrix{
			Devices: []string{"wk:01"},
			Codes:   [][]int{make([]int, ward.TenMinuteBinsPerDay)},
		},
		Dwell: []ward.DwellSummary{{MAC: "wk:01", Minutes: 90}},
		Flow:  []ward.FlowBin{{Bin: 16, Apple: 2, Android: 1}},
	}
	testutil.AssertNoError(t, database.SaveRun(res))
	testutil.AssertNoError(t, database.SaveAnchors([]ward.Anchor{
		{ID: "A1", Building: "WWT", Level: "1F", X: 0, Y: 0},
	}))

	return NewServer(database, config.EmptyTuningConfig())
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, path))
	return rec
}

func TestListRuns(t *testing.T) {
	s := seededServer(t)
	rec := get(t, s, "/api/runs")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var body struct {
		Runs []string `json:"runs"`
	}
	testutil.DecodeJSON(t, rec, &body)
	if len(body.Runs) != 1 || body.Runs[0] != "run-api" {
		t.Errorf("runs = %v, want [run-api]", body.Runs)
	}
}

func TestListRunsBadLimit(t *testing.T) {
	s := seededServer(t)
	testutil.AssertJSONError(t, get(t, s, "/api/runs?limit=zero"), http.StatusBadRequest)
}

func TestPositionsDefaultsToLatestRun(t *testing.T) {
	s := seededServer(t)
	rec := get(t, s, "/api/positions")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var body struct {
		RunID     string                  `json:"run_id"`
		Positions []ward.PositionEstimate `json:"positions"`
	}
	testutil.DecodeJSON(t, rec, &body)
	if body.RunID != "run-api" {
		t.Errorf("run_id = %q, want run-api", body.RunID)
	}
	if len(body.Positions) != 1 || body.Positions[0].MAC != "ex:01" {
		t.Errorf("positions = %+v", body.Positions)
	}
	// Map-overlay clients need the raw and smoothed coordinates both.
	p := body.Positions[0]
	if p.X != 1 || p.Y != 2 || p.SmoothedX != 1.5 || p.SmoothedY != 2.5 {
		t.Errorf("coordinates = (%v,%v) smoothed (%v,%v), want (1,2) and (1.5,2.5)", p.X, p.Y, p.SmoothedX, p.SmoothedY)
	}
}

func TestActivityFilterByMAC(t *testing.T) {
	s := seededServer(t)

	rec := get(t, s, "/api/activity?mac=wk:01")
	var body struct {
		Activity []ward.ActivityRecord `json:"activity"`
	}
	testutil.DecodeJSON(t, rec, &body)
	if len(body.Activity) != 1 || body.Activity[0].Status != ward.StatusActive {
		t.Errorf("activity = %+v", body.Activity)
	}

	rec = get(t, s, "/api/activity?mac=nobody")
	testutil.DecodeJSON(t, rec, &body)
	if len(body.Activity) != 0 {
		t.Errorf("activity for unknown mac = %+v, want none", body.Activity)
	}
}

func TestOperationEndpoint(t *testing.T) {
	s := seededServer(t)
	rec := get(t, s, "/api/operation?building=WWT")
	var body struct {
		Operation []ward.OperationRow `json:"operation"`
	}
	testutil.DecodeJSON(t, rec, &body)
	if len(body.Operation) != 1 || body.Operation[0].Rate != 100.0 {
		t.Errorf("operation = %+v", body.Operation)
	}
}

func TestJourneyEndpoint(t *testing.T) {
	s := seededServer(t)
	rec := get(t, s, "/api/journey")
	var body struct {
		Devices []string `json:"devices"`
		Codes   [][]int  `json:"codes"`
	}
	testutil.DecodeJSON(t, rec, &body)
	if len(body.Devices) != 1 || len(body.Codes[0]) != ward.TenMinuteBinsPerDay {
		t.Errorf("journey shape = %d devices, %d bins", len(body.Devices), len(body.Codes[0]))
	}
}

func TestParamsEndpoint(t *testing.T) {
	s := seededServer(t)
	rec := get(t, s, "/api/params")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var body struct {
		Version string `json:"version"`
	}
	testutil.DecodeJSON(t, rec, &body)
	if body.Version == "" {
		t.Error("expected params response to carry a version")
	}
}

func TestAnchorsEndpoint(t *testing.T) {
	s := seededServer(t)
	rec := get(t, s, "/api/anchors")
	var body struct {
		Anchors []ward.Anchor `json:"anchors"`
	}
	testutil.DecodeJSON(t, rec, &body)
	if len(body.Anchors) != 1 {
		t.Errorf("anchors = %+v", body.Anchors)
	}
}

func TestUnknownRunStillServesEmptyTables(t *testing.T) {
	s := seededServer(t)
	rec := get(t, s, "/api/dwell?run_id=missing")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var body struct {
		Dwell []ward.DwellSummary `json:"dwell"`
	}
	testutil.DecodeJSON(t, rec, &body)
	if len(body.Dwell) != 0 {
		t.Errorf("dwell for unknown run = %+v", body.Dwell)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := seededServer(t)
	rec := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(rec, testutil.NewTestRequest(http.MethodPost, "/api/runs"))
	testutil.AssertJSONError(t, rec, http.StatusMethodNotAllowed)
}

func TestNoRunsYet(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "empty.db"))
	testutil.AssertNoError(t, err)
	defer database.Close()
	s := NewServer(database, nil)
	testutil.AssertJSONError(t, get(t, s, "/api/positions"), http.StatusNotFound)
}
