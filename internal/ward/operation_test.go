package ward

import (
	"math"
	"testing"
)

func equipSig(mac, anchorID string, rssi float64, h, m, s int) SignalRecord {
	return SignalRecord{AnchorID: anchorID, MAC: mac, Type: DeviceEquipment, RSSI: rssi, Time: at(h, m, s)}
}

func rowFor(rows []OperationRow, building, level string, bin int) (OperationRow, bool) {
	for _, r := range rows {
		if r.Building == building && r.Level == level && r.Bin == bin {
			return r, true
		}
	}
	return OperationRow{}, false
}

func TestAggregateOperatingThreshold(t *testing.T) {
	agg := NewOperationAggregator(DefaultOperationConfig(), mustRegistry(t))
	records := []SignalRecord{
		// ex1: two signals in bin 48 (08:00-08:10) -> operating.
		equipSig("ex1", "A1", -60, 8, 1, 0),
		equipSig("ex1", "A1", -62, 8, 7, 0),
		// ex2: one signal in bin 48 -> present but idle.
		equipSig("ex2", "A2", -70, 8, 3, 0),
	}
	rows := agg.Aggregate(records)

	row, ok := rowFor(rows, "WWT", "1F", 48)
	if !ok {
		t.Fatal("no WWT/1F row for bin 48")
	}
	if row.OperatingCount != 1 {
		t.Errorf("operating count = %d, want 1", row.OperatingCount)
	}
	if row.TotalCount != 2 {
		t.Errorf("total count = %d, want 2", row.TotalCount)
	}
	if row.Rate != 50.0 {
		t.Errorf("rate = %v, want 50.0", row.Rate)
	}
}

func TestAggregateEmitsAllBins(t *testing.T) {
	agg := NewOperationAggregator(DefaultOperationConfig(), mustRegistry(t))
	rows := agg.Aggregate([]SignalRecord{equipSig("ex1", "A1", -60, 12, 0, 0)})

	seen := make(map[int]bool)
	for _, r := range rows {
		if r.Building == "WWT" && r.Level == "1F" {
			seen[r.Bin] = true
			if r.Rate < 0 || r.Rate > 100 {
				t.Fatalf("bin %d rate %v out of range", r.Bin, r.Rate)
			}
		}
	}
	if len(seen) != TenMinuteBinsPerDay {
		t.Errorf("WWT/1F rows cover %d bins, want %d", len(seen), TenMinuteBinsPerDay)
	}
}

func TestAggregateLocationByStrongestSignal(t *testing.T) {
	agg := NewOperationAggregator(DefaultOperationConfig(), mustRegistry(t))
	records := []SignalRecord{
		equipSig("ex1", "A1", -80, 10, 0, 0),
		equipSig("ex1", "A3", -55, 10, 2, 0), // strongest wins the bin
		equipSig("ex1", "A1", -82, 10, 4, 0),
	}
	rows := agg.Aggregate(records)
	row, ok := rowFor(rows, "WWT", "2F", 60)
	if !ok || row.OperatingCount != 1 {
		t.Errorf("bin 60 not attributed to 2F via strongest anchor: %+v ok=%v", row, ok)
	}
	if row1f, ok := rowFor(rows, "WWT", "1F", 60); ok && row1f.OperatingCount != 0 {
		t.Errorf("1F also counted the device: %+v", row1f)
	}
}

func TestAggregateBuildingRollup(t *testing.T) {
	agg := NewOperationAggregator(DefaultOperationConfig(), mustRegistry(t))
	records := []SignalRecord{
		equipSig("ex1", "A1", -60, 8, 0, 0),
		equipSig("ex1", "A1", -60, 8, 5, 0),
		equipSig("ex2", "A3", -60, 8, 1, 0),
		equipSig("ex2", "A3", -60, 8, 6, 0),
	}
	rows := agg.Aggregate(records)

	rollup, ok := rowFor(rows, "WWT", RollupLevel, 48)
	if !ok {
		t.Fatal("no rollup row for WWT bin 48")
	}
	if rollup.OperatingCount != 2 {
		t.Errorf("rollup operating = %d, want 2", rollup.OperatingCount)
	}
	if rollup.TotalCount != 2 {
		t.Errorf("rollup total = %d, want 2", rollup.TotalCount)
	}
	if rollup.Rate != 100.0 {
		t.Errorf("rollup rate = %v, want 100.0", rollup.Rate)
	}
}

func TestAggregateDeviceCountsAtEveryDominantLocation(t *testing.T) {
	agg := NewOperationAggregator(DefaultOperationConfig(), mustRegistry(t))
	records := []SignalRecord{
		// Morning bins strongest at 1F, bin 60 strongest at 2F: each bin
		// is credited where the device actually was, and the device
		// appears in both locations' totals.
		equipSig("ex1", "A1", -60, 8, 0, 0),
		equipSig("ex1", "A1", -60, 8, 5, 0),
		equipSig("ex1", "A1", -60, 9, 0, 0),
		equipSig("ex1", "A1", -60, 9, 5, 0),
		equipSig("ex1", "A3", -55, 10, 0, 0),
		equipSig("ex1", "A3", -55, 10, 5, 0),
	}
	rows := agg.Aggregate(records)

	if row, ok := rowFor(rows, "WWT", "2F", 60); !ok || row.OperatingCount != 1 || row.TotalCount != 1 {
		t.Errorf("bin 60 not credited to 2F: %+v ok=%v", row, ok)
	}
	if row, ok := rowFor(rows, "WWT", "1F", 60); !ok || row.OperatingCount != 0 || row.TotalCount != 1 {
		t.Errorf("1F bin 60 wrong after the device moved away: %+v ok=%v", row, ok)
	}
	if row, ok := rowFor(rows, "WWT", "1F", 48); !ok || row.OperatingCount != 1 {
		t.Errorf("1F bin 48 lost its operating credit: %+v ok=%v", row, ok)
	}
	// The rollup totals sum the per-level totals, so a device dominant
	// at two levels counts once in each.
	if rollup, ok := rowFor(rows, "WWT", RollupLevel, 60); !ok || rollup.OperatingCount != 1 || rollup.TotalCount != 2 {
		t.Errorf("rollup bin 60 = %+v ok=%v, want operating 1 of total 2", rollup, ok)
	}
}

func TestAggregateUnresolvedOnlyDeviceDropped(t *testing.T) {
	agg := NewOperationAggregator(DefaultOperationConfig(), mustRegistry(t))
	rows := agg.Aggregate([]SignalRecord{
		equipSig("ghostdev", "nowhere", -60, 8, 0, 0),
		equipSig("ghostdev", "nowhere", -60, 8, 5, 0),
	})
	if len(rows) != 0 {
		t.Errorf("unresolved-only batch produced %d rows, want 0", len(rows))
	}
}

func TestOperationRate(t *testing.T) {
	tests := []struct {
		operating, total int
		want             float64
	}{
		{0, 0, 0.0}, // empty location must not divide by zero
		{0, 5, 0.0},
		{1, 3, 33.3},
		{2, 3, 66.7},
		{3, 3, 100.0},
	}
	for _, tt := range tests {
		if got := operationRate(tt.operating, tt.total); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("operationRate(%d,%d) = %v, want %v", tt.operating, tt.total, got, tt.want)
		}
	}
}
