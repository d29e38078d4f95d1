package db

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wardsight/occupancy.report/internal/ward"
)

func sampleResult() *ward.Result {
	return &ward.Result{
		RunID:       "run-1",
		Fingerprint: "abc123",
		Unresolved:  2,
		Elapsed:     1500 * time.Millisecond,
		Positions: []ward.PositionEstimate{
			{MAC: "ex:01", Bin: 0, X: 1, Y: 2, SmoothedX: 1, SmoothedY: 2, IsActive: true, AnchorCount: 3},
			{MAC: "ex:01", Bin: 1, X: 1.1, Y: 2.1, SmoothedX: 1.001, SmoothedY: 2.001},
		},
		Activity: []ward.ActivityRecord{
			{MAC: "wk:01", Minute: 480, SignalCount: 4, Status: ward.StatusActive, Building: "WWT", Level: "1F", SpaceType: "workshop"},
			{MAC: "wk:01", Minute: 481, SignalCount: 1, Status: ward.StatusPresent, Building: "WWT", Level: "1F", SpaceType: "workshop"},
			{MAC: "wk:01", Minute: 482, Status: ward.StatusAbsent},
		},
		Operation: []ward.OperationRow{
			{Building: "WWT", Level: "1F", Bin: 48, OperatingCount: 1, TotalCount: 2, Rate: 50.0},
			{Building: "WWT", Level: ward.RollupLevel, Bin: 48, OperatingCount: 1, TotalCount: 2, Rate: 50.0},
		},
		Journey: ward.JourneyMatrix{
			Devices: []string{"wk:01", "wk:02"},
			Codes: [][]int{
				journeyRow(2),
				journeyRow(0),
			},
		},
		Dwell: []ward.DwellSummary{
			{MAC: "wk:01", Minutes: 120},
			{MAC: "wk:02", Minutes: 45},
		},
		Spaces: []ward.SpaceStats{
			{Building: "WWT", Level: "1F", TotalWorkers: 2, MaxActive: 1, AvgActive: 0.5, MaxPresent: 2, AvgPresent: 1.5},
		},
		Flow: []ward.FlowBin{
			{Bin: 16, Apple: 3, Android: 2},
		},
	}
}

func journeyRow(code int) []int {
	row := make([]int, ward.TenMinuteBinsPerDay)
	for i := range row {
		row[i] = code
	}
	return row
}

func TestSaveRunRoundTrip(t *testing.T) {
	database := testDB(t)
	res := sampleResult()
	if err := database.SaveRun(res); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	latest, err := database.LatestRunID()
	if err != nil {
		t.Fatalf("LatestRunID: %v", err)
	}
	if latest != "run-1" {
		t.Errorf("latest run = %q, want run-1", latest)
	}

	info, err := database.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if info.Unresolved != 2 || info.ElapsedMS != 1500 {
		t.Errorf("run info = %+v", info)
	}

	positions, err := database.ListPositions("run-1", "")
	if err != nil {
		t.Fatalf("ListPositions: %v", err)
	}
	if diff := cmp.Diff(res.Positions, positions); diff != "" {
		t.Errorf("positions round trip:\n%s", diff)
	}

	activity, err := database.ListActivity("run-1", "wk:01")
	if err != nil {
		t.Fatalf("ListActivity: %v", err)
	}
	if diff := cmp.Diff(res.Activity, activity); diff != "" {
		t.Errorf("activity round trip:\n%s", diff)
	}

	operation, err := database.ListOperation("run-1", "WWT")
	if err != nil {
		t.Fatalf("ListOperation: %v", err)
	}
	if len(operation) != 2 {
		t.Fatalf("operation rows = %d, want 2", len(operation))
	}
	// ORDER BY level sorts "(All)" before "1F".
	if operation[0].Level != ward.RollupLevel || operation[0].Rate != 50.0 {
		t.Errorf("first operation row = %+v", operation[0])
	}

	journey, err := database.LoadJourney("run-1")
	if err != nil {
		t.Fatalf("LoadJourney: %v", err)
	}
	if diff := cmp.Diff(res.Journey, journey); diff != "" {
		t.Errorf("journey round trip:\n%s", diff)
	}

	dwell, err := database.ListDwell("run-1")
	if err != nil {
		t.Fatalf("ListDwell: %v", err)
	}
	if diff := cmp.Diff(res.Dwell, dwell); diff != "" {
		t.Errorf("dwell round trip:\n%s", diff)
	}

	spaces, err := database.ListSpaceStats("run-1")
	if err != nil {
		t.Fatalf("ListSpaceStats: %v", err)
	}
	if diff := cmp.Diff(res.Spaces, spaces); diff != "" {
		t.Errorf("space stats round trip:\n%s", diff)
	}

	flow, err := database.ListFlow("run-1")
	if err != nil {
		t.Fatalf("ListFlow: %v", err)
	}
	if diff := cmp.Diff(res.Flow, flow); diff != "" {
		t.Errorf("flow round trip:\n%s", diff)
	}
}

func TestSaveRunDuplicateFails(t *testing.T) {
	database := testDB(t)
	res := sampleResult()
	if err := database.SaveRun(res); err != nil {
		t.Fatalf("first SaveRun: %v", err)
	}
	if err := database.SaveRun(res); err == nil {
		t.Error("duplicate run ID accepted")
	}
	// The failed save must not leave partial rows.
	positions, err := database.ListPositions("run-1", "")
	if err != nil {
		t.Fatalf("ListPositions: %v", err)
	}
	if len(positions) != len(res.Positions) {
		t.Errorf("positions after failed duplicate = %d, want %d", len(positions), len(res.Positions))
	}
}

func TestListRunsOrder(t *testing.T) {
	database := testDB(t)
	for _, id := range []string{"run-a", "run-b"} {
		res := &ward.Result{RunID: id, Fingerprint: "fp"}
		if err := database.SaveRun(res); err != nil {
			t.Fatalf("SaveRun %s: %v", id, err)
		}
	}
	runs, err := database.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	// Same created_at second is possible; run_id DESC breaks the tie.
	if runs[0] != "run-b" {
		t.Errorf("newest run = %q, want run-b", runs[0])
	}
}

func TestGetRunMissing(t *testing.T) {
	database := testDB(t)
	if _, err := database.GetRun("nope"); err != sql.ErrNoRows {
		t.Errorf("GetRun(missing) = %v, want sql.ErrNoRows", err)
	}
}

func TestSignalsRoundTrip(t *testing.T) {
	database := testDB(t)
	if err := database.SaveRun(&ward.Result{RunID: "run-sig", Fingerprint: "fp"}); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	records := []ward.SignalRecord{
		{AnchorID: "A1", MAC: "ex:01", Type: ward.DeviceEquipment, RSSI: -60, Time: time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)},
		{AnchorID: "A2", MAC: "wk:01", Type: ward.DeviceWorker, RSSI: -72.5, Time: time.Date(2026, 3, 14, 8, 0, 5, 0, time.UTC)},
	}
	if err := database.SaveSignals("run-sig", records); err != nil {
		t.Fatalf("SaveSignals: %v", err)
	}

	got, err := database.ListSignals("run-sig", "")
	if err != nil {
		t.Fatalf("ListSignals: %v", err)
	}
	if diff := cmp.Diff(records, got); diff != "" {
		t.Errorf("signals mismatch (-want +got):\n%s", diff)
	}

	got, err = database.ListSignals("run-sig", "wk:01")
	if err != nil {
		t.Fatalf("ListSignals filtered: %v", err)
	}
	if len(got) != 1 || got[0].MAC != "wk:01" {
		t.Errorf("filtered signals = %+v, want the wk:01 row", got)
	}
}
