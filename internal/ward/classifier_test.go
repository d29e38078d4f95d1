package ward

import (
	"testing"
	"time"
)

func sig(anchorID string, rssi float64, h, m, s int) SignalRecord {
	return SignalRecord{
		AnchorID: anchorID,
		MAC:      "aa:bb",
		Type:     DeviceWorker,
		RSSI:     rssi,
		Time:     at(h, m, s),
	}
}

func TestClassifyEmitsEveryMinute(t *testing.T) {
	c := NewActivityClassifier(DefaultClassifierConfig(), mustRegistry(t))
	recs := c.Classify("aa:bb", nil)
	if len(recs) != MinutesPerDay {
		t.Fatalf("Classify emitted %d records, want %d", len(recs), MinutesPerDay)
	}
	for i, rec := range recs {
		if rec.Minute != i {
			t.Fatalf("record %d carries minute %d", i, rec.Minute)
		}
		if rec.Status != StatusAbsent || rec.Building != "" {
			t.Fatalf("minute %d of silent day = %+v, want absent/blank", i, rec)
		}
	}
}

func TestClassifyStatusThresholds(t *testing.T) {
	reg := mustRegistry(t)
	tests := []struct {
		name    string
		signals int
		want    ActivityStatus
	}{
		{"zero is absent", 0, StatusAbsent},
		{"one is present", 1, StatusPresent},
		{"two is present", 2, StatusPresent},
		{"three is active", 3, StatusActive},
		{"many is active", 9, StatusActive},
	}
	c := NewActivityClassifier(DefaultClassifierConfig(), reg)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var records []SignalRecord
			for i := 0; i < tt.signals; i++ {
				records = append(records, sig("A1", -65, 8, 30, i*5))
			}
			recs := c.Classify("aa:bb", records)
			minute := recs[8*60+30]
			if minute.Status != tt.want {
				t.Errorf("status = %v, want %v", minute.Status, tt.want)
			}
			if minute.SignalCount != tt.signals {
				t.Errorf("signal count = %d, want %d", minute.SignalCount, tt.signals)
			}
		})
	}
}

func TestClassifyDominantLocation(t *testing.T) {
	c := NewActivityClassifier(DefaultClassifierConfig(), mustRegistry(t))
	records := []SignalRecord{
		sig("A1", -70, 9, 0, 0),
		sig("A1", -72, 9, 0, 10),
		sig("A3", -50, 9, 0, 20), // strongest, but outvoted
	}
	minute := c.Classify("aa:bb", records)[9*60]
	if minute.Building != "WWT" || minute.Level != "1F" {
		t.Errorf("dominant location = %s/%s, want WWT/1F", minute.Building, minute.Level)
	}
	if minute.SpaceType != "workshop" {
		t.Errorf("space type = %q, want workshop", minute.SpaceType)
	}
}

func TestClassifyTieBreaksOnStrongestSignal(t *testing.T) {
	c := NewActivityClassifier(DefaultClassifierConfig(), mustRegistry(t))
	records := []SignalRecord{
		sig("A1", -70, 9, 0, 0),
		sig("A1", -75, 9, 0, 10),
		sig("A3", -40, 9, 0, 20), // tied on votes, much stronger
		sig("A3", -90, 9, 0, 30),
	}
	minute := c.Classify("aa:bb", records)[9*60]
	if minute.Level != "2F" {
		t.Errorf("tie resolved to level %q, want 2F (strongest RSSI)", minute.Level)
	}
}

func TestClassifyUnknownAnchorCountsButCastsNoVote(t *testing.T) {
	c := NewActivityClassifier(DefaultClassifierConfig(), mustRegistry(t))
	records := []SignalRecord{
		sig("ghost", -50, 9, 0, 0),
		sig("ghost", -50, 9, 0, 10),
		sig("ghost", -50, 9, 0, 20),
	}
	minute := c.Classify("aa:bb", records)[9*60]
	if minute.Status != StatusActive {
		t.Errorf("status = %v, want active (unresolved signals still count)", minute.Status)
	}
	if minute.Building != "" || minute.Level != "" {
		t.Errorf("location = %s/%s, want blank", minute.Building, minute.Level)
	}
}

func TestClassifyCustomThreshold(t *testing.T) {
	c := NewActivityClassifier(ClassifierConfig{ActiveMinSignals: 5}, mustRegistry(t))
	var records []SignalRecord
	for i := 0; i < 4; i++ {
		records = append(records, sig("A1", -65, 10, 0, i*10))
	}
	if got := c.Classify("aa:bb", records)[10*60].Status; got != StatusPresent {
		t.Errorf("4 signals under threshold 5 = %v, want present", got)
	}
}

func TestActivityStatusString(t *testing.T) {
	if StatusAbsent.String() != "absent" || StatusPresent.String() != "present" || StatusActive.String() != "active" {
		t.Error("ActivityStatus strings wrong")
	}
}

// Guard against timezone-dependent binning: site-local wall clock is
// what counts, not UTC.
func TestClassifyUsesWallClock(t *testing.T) {
	loc := time.FixedZone("site", 9*3600)
	c := NewActivityClassifier(DefaultClassifierConfig(), mustRegistry(t))
	rec := SignalRecord{AnchorID: "A1", MAC: "aa:bb", Type: DeviceWorker, RSSI: -60,
		Time: time.Date(2026, 3, 14, 23, 59, 0, 0, loc)}
	recs := c.Classify("aa:bb", []SignalRecord{rec})
	if recs[1439].SignalCount != 1 {
		t.Errorf("signal at site-local 23:59 landed elsewhere")
	}
}
