package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wardsight/occupancy.report/internal/ward"
)

func sampleResult() *ward.Result {
	return &ward.Result{
		RunID: "run-report",
		Positions: []ward.PositionEstimate{
			{MAC: "ex:01", Bin: 0, X: 10, Y: 20, SmoothedX: 10, SmoothedY: 20},
			{MAC: "ex:01", Bin: 1, X: 11, Y: 21, SmoothedX: 10.01, SmoothedY: 20.01},
			{MAC: "wk:01", Bin: 0, X: 50, Y: 60, SmoothedX: 50, SmoothedY: 60},
		},
		Operation: []ward.OperationRow{
			{Building: "WWT", Level: "1F", Bin: 48, Rate: 50.0},
			{Building: "WWT", Level: "1F", Bin: 49, Rate: 100.0},
			{Building: "WWT", Level: ward.RollupLevel, Bin: 48, Rate: 50.0},
		},
		Dwell: []ward.DwellSummary{
			{MAC: "wk:01", Minutes: 120},
			{MAC: "ex:01", Minutes: 30},
		},
	}
}

func TestWritePlots(t *testing.T) {
	dir := t.TempDir()
	rd := NewRenderer(dir)

	count, err := rd.WritePlots(sampleResult(), []ward.Anchor{
		{ID: "A1", Building: "WWT", Level: "1F", X: 0, Y: 0},
	})
	if err != nil {
		t.Fatalf("WritePlots: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	for _, name := range []string{"operation_rate.png", "dwell_minutes.png", "positions.png"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("missing plot %s: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("plot %s is empty", name)
		}
	}
}

func TestWritePlotsSkipsEmptySections(t *testing.T) {
	dir := t.TempDir()
	rd := NewRenderer(dir)

	count, err := rd.WritePlots(&ward.Result{
		Dwell: []ward.DwellSummary{{MAC: "wk:01", Minutes: 5}},
	}, nil)
	if err != nil {
		t.Fatalf("WritePlots: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if _, err := os.Stat(filepath.Join(dir, "operation_rate.png")); !os.IsNotExist(err) {
		t.Error("operation plot should not exist without operation rows")
	}
}

func TestWritePlotsNoOutputDir(t *testing.T) {
	rd := NewRenderer("")
	if _, err := rd.WritePlots(sampleResult(), nil); err == nil {
		t.Fatal("expected error for empty output dir")
	}
}

func TestMakeOutputDir(t *testing.T) {
	dir := MakeOutputDir("plots", "run-1")
	if !strings.HasPrefix(dir, filepath.Join("plots", "run-1")) {
		t.Errorf("dir = %q, want prefix plots/run-1", dir)
	}

	dir = MakeOutputDir("plots", "")
	if !strings.HasPrefix(dir, "plots") || strings.Contains(dir, "run-1") {
		t.Errorf("dir = %q, want plots/<timestamp>", dir)
	}
}
