package ward

import (
	"math"
	"sort"
)

// OperationConfig tunes equipment operation detection. The threshold
// is per ten-minute bin and deliberately looser than the worker
// classifier's per-minute one: powered equipment beacons duty-cycle
// slowly, so two signals in ten minutes already indicate operation.
type OperationConfig struct {
	OperatingMinSignals int
}

// DefaultOperationConfig returns the production operation tuning.
func DefaultOperationConfig() OperationConfig {
	return OperationConfig{OperatingMinSignals: 2}
}

// OperationAggregator builds the equipment operation-rate table: per
// (building, level, ten-minute bin) the number of devices operating
// there, the location's total device count for the day, and the
// resulting rate, plus a "(All)" rollup row per building.
type OperationAggregator struct {
	cfg OperationConfig
	reg *AnchorRegistry
}

func NewOperationAggregator(cfg OperationConfig, reg *AnchorRegistry) *OperationAggregator {
	if cfg.OperatingMinSignals <= 0 {
		cfg = DefaultOperationConfig()
	}
	return &OperationAggregator{cfg: cfg, reg: reg}
}

type binAgg struct {
	count    int
	bestRSSI float64
	bestLoc  locationKey
	resolved bool
}

// Aggregate consumes the day's equipment signals grouped however the
// caller likes; records for all devices may be passed in one slice.
func (a *OperationAggregator) Aggregate(records []SignalRecord) []OperationRow {
	// Per device, per bin: signal count and strongest resolved anchor.
	perDevice := make(map[string]map[int]*binAgg)
	for _, rec := range records {
		bins := perDevice[rec.MAC]
		if bins == nil {
			bins = make(map[int]*binAgg)
			perDevice[rec.MAC] = bins
		}
		bin := TenMinuteIndex(rec.Time)
		agg := bins[bin]
		if agg == nil {
			agg = &binAgg{bestRSSI: math.Inf(-1)}
			bins[bin] = agg
		}
		agg.count++

		anchor, ok := a.reg.Lookup(rec.AnchorID)
		if !ok {
			continue
		}
		if !agg.resolved || rec.RSSI > agg.bestRSSI {
			agg.bestRSSI = rec.RSSI
			agg.bestLoc = locationKey{anchor.Building, anchor.Level}
			agg.resolved = true
		}
	}

	// Each bin belongs to its own strongest anchor; a device that moves
	// between levels over the day counts toward every location it was
	// ever bin-dominant at.
	operating := make(map[locationKey]map[int]int)        // location -> bin -> operating devices
	totalDevices := make(map[locationKey]map[string]bool) // location -> devices ever dominant there
	for mac, bins := range perDevice {
		for bin, agg := range bins {
			if !agg.resolved {
				continue
			}
			loc := agg.bestLoc
			if totalDevices[loc] == nil {
				totalDevices[loc] = make(map[string]bool)
			}
			totalDevices[loc][mac] = true

			if agg.count < a.cfg.OperatingMinSignals {
				continue
			}
			if operating[loc] == nil {
				operating[loc] = make(map[int]int)
			}
			operating[loc][bin]++
		}
	}

	// Level rows, then per-building rollups recomputed from the
	// summed counts.
	locations := make([]locationKey, 0, len(totalDevices))
	for k := range totalDevices {
		locations = append(locations, k)
	}
	sort.Slice(locations, func(i, j int) bool { return lessLocation(locations[i], locations[j]) })

	var rows []OperationRow
	rollupOperating := make(map[string][]int)
	rollupTotal := make(map[string]int)
	for _, loc := range locations {
		total := len(totalDevices[loc])
		if rollupOperating[loc.Building] == nil {
			rollupOperating[loc.Building] = make([]int, TenMinuteBinsPerDay)
		}
		rollupTotal[loc.Building] += total
		for bin := 0; bin < TenMinuteBinsPerDay; bin++ {
			op := operating[loc][bin]
			rollupOperating[loc.Building][bin] += op
			rows = append(rows, OperationRow{
				Building:       loc.Building,
				Level:          loc.Level,
				Bin:            bin,
				OperatingCount: op,
				TotalCount:     total,
				Rate:           operationRate(op, total),
			})
		}
	}

	buildings := make([]string, 0, len(rollupTotal))
	for b := range rollupTotal {
		buildings = append(buildings, b)
	}
	sort.Strings(buildings)
	for _, b := range buildings {
		total := rollupTotal[b]
		for bin := 0; bin < TenMinuteBinsPerDay; bin++ {
			op := rollupOperating[b][bin]
			rows = append(rows, OperationRow{
				Building:       b,
				Level:          RollupLevel,
				Bin:            bin,
				OperatingCount: op,
				TotalCount:     total,
				Rate:           operationRate(op, total),
			})
		}
	}
	return rows
}

// operationRate is the operating percentage rounded to one decimal.
// An empty location reports 0.0 rather than dividing by zero.
func operationRate(operating, total int) float64 {
	if total == 0 {
		return 0.0
	}
	rate := float64(operating) / float64(total) * 100
	return math.Round(rate*10) / 10
}
