package ward

import "math"

// ClassifierConfig tunes per-minute activity classification.
type ClassifierConfig struct {
	// ActiveMinSignals is the minute signal count at which a worker
	// counts as active rather than merely present.
	ActiveMinSignals int
}

// DefaultClassifierConfig returns the production classifier tuning.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{ActiveMinSignals: 3}
}

// ActivityClassifier builds the per-minute activity table for worker
// devices: every minute of the day is emitted, with a status from the
// minute's signal count and a location from the minute's dominant
// anchor assignment.
type ActivityClassifier struct {
	cfg ClassifierConfig
	reg *AnchorRegistry
}

func NewActivityClassifier(cfg ClassifierConfig, reg *AnchorRegistry) *ActivityClassifier {
	if cfg.ActiveMinSignals <= 0 {
		cfg = DefaultClassifierConfig()
	}
	return &ActivityClassifier{cfg: cfg, reg: reg}
}

type minuteState struct {
	count   int
	votes   map[locationKey]int
	best    map[locationKey]float64 // strongest RSSI seen per location
	space   map[locationKey]string
}

// Classify emits exactly MinutesPerDay records for one device, minute
// 0 through 1439. Signals at unknown anchors raise the minute's count
// but cast no location vote; a minute whose signals all fail to
// resolve keeps its count-derived status with empty location fields.
func (c *ActivityClassifier) Classify(mac string, records []SignalRecord) []ActivityRecord {
	minutes := make(map[int]*minuteState)
	for _, rec := range records {
		m := MinuteIndex(rec.Time)
		st := minutes[m]
		if st == nil {
			st = &minuteState{
				votes: make(map[locationKey]int),
				best:  make(map[locationKey]float64),
				space: make(map[locationKey]string),
			}
			minutes[m] = st
		}
		st.count++

		anchor, ok := c.reg.Lookup(rec.AnchorID)
		if !ok {
			continue
		}
		k := locationKey{anchor.Building, anchor.Level}
		st.votes[k]++
		st.space[k] = anchor.SpaceType
		if cur, seen := st.best[k]; !seen || rec.RSSI > cur {
			st.best[k] = rec.RSSI
		}
	}

	out := make([]ActivityRecord, MinutesPerDay)
	for m := 0; m < MinutesPerDay; m++ {
		rec := ActivityRecord{MAC: mac, Minute: m, Status: StatusAbsent}
		if st, ok := minutes[m]; ok {
			rec.SignalCount = st.count
			switch {
			case st.count >= c.cfg.ActiveMinSignals:
				rec.Status = StatusActive
			case st.count >= 1:
				rec.Status = StatusPresent
			}
			if k, found := dominantLocation(st.votes, st.best); found {
				rec.Building = k.Building
				rec.Level = k.Level
				rec.SpaceType = st.space[k]
			}
		}
		out[m] = rec
	}
	return out
}

// dominantLocation picks the location with the most votes; ties go to
// the location holding the single strongest RSSI, then to the lesser
// key so the choice is deterministic.
func dominantLocation(votes map[locationKey]int, best map[locationKey]float64) (locationKey, bool) {
	var winner locationKey
	found := false
	winVotes := 0
	winRSSI := math.Inf(-1)
	for k, n := range votes {
		r := best[k]
		better := false
		switch {
		case n > winVotes:
			better = true
		case n == winVotes && r > winRSSI:
			better = true
		case n == winVotes && r == winRSSI && lessLocation(k, winner):
			better = true
		}
		if !found || better {
			winner, winVotes, winRSSI, found = k, n, r, true
		}
	}
	return winner, found
}

func lessLocation(a, b locationKey) bool {
	if a.Building != b.Building {
		return a.Building < b.Building
	}
	return a.Level < b.Level
}
