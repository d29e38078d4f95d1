package ward

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DwellMinutes counts, per device, the distinct minutes carrying at
// least one signal. The result is sorted by minutes descending, then
// MAC, so the journey matrix row order is stable.
func DwellMinutes(records []SignalRecord) []DwellSummary {
	perDevice := make(map[string]map[int]bool)
	for _, rec := range records {
		mins := perDevice[rec.MAC]
		if mins == nil {
			mins = make(map[int]bool)
			perDevice[rec.MAC] = mins
		}
		mins[MinuteIndex(rec.Time)] = true
	}

	out := make([]DwellSummary, 0, len(perDevice))
	for mac, mins := range perDevice {
		out = append(out, DwellSummary{MAC: mac, Minutes: len(mins)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Minutes != out[j].Minutes {
			return out[i].Minutes > out[j].Minutes
		}
		return out[i].MAC < out[j].MAC
	})
	return out
}

// SpaceStatistics summarises worker presence per (building, level)
// and per building rollup from the classified activity table: the
// distinct workers seen there, and the peak and mean concurrent
// active/present workers per minute. Means are over occupied minutes
// only, so a space busy for one hour is not diluted by 23 empty ones.
func SpaceStatistics(activity []ActivityRecord) []SpaceStats {
	type minuteCounts struct {
		active  map[int]int
		present map[int]int
		workers map[string]bool
	}
	spaces := make(map[locationKey]*minuteCounts)
	bump := func(k locationKey, rec ActivityRecord) {
		mc := spaces[k]
		if mc == nil {
			mc = &minuteCounts{
				active:  make(map[int]int),
				present: make(map[int]int),
				workers: make(map[string]bool),
			}
			spaces[k] = mc
		}
		mc.workers[rec.MAC] = true
		mc.present[rec.Minute]++
		if rec.Status == StatusActive {
			mc.active[rec.Minute]++
		}
	}

	for _, rec := range activity {
		if rec.Status == StatusAbsent || rec.Building == "" {
			continue
		}
		bump(locationKey{rec.Building, rec.Level}, rec)
		bump(locationKey{rec.Building, RollupLevel}, rec)
	}

	keys := make([]locationKey, 0, len(spaces))
	for k := range spaces {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessLocation(keys[i], keys[j]) })

	out := make([]SpaceStats, 0, len(keys))
	for _, k := range keys {
		mc := spaces[k]
		maxActive, activeSamples := countSeries(mc.active)
		maxPresent, presentSamples := countSeries(mc.present)
		out = append(out, SpaceStats{
			Building:     k.Building,
			Level:        k.Level,
			TotalWorkers: len(mc.workers),
			MaxActive:    maxActive,
			AvgActive:    meanOrZero(activeSamples),
			MaxPresent:   maxPresent,
			AvgPresent:   meanOrZero(presentSamples),
		})
	}
	return out
}

func countSeries(perMinute map[int]int) (max int, samples []float64) {
	samples = make([]float64, 0, len(perMinute))
	for _, n := range perMinute {
		samples = append(samples, float64(n))
		if n > max {
			max = n
		}
	}
	return max, samples
}

func meanOrZero(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	return stat.Mean(samples, nil)
}

// FlowCounts buckets phone signals into flow bins of the given width
// and counts distinct devices per platform. Bins with no devices are
// omitted. Widths that do not divide the day evenly get a final short
// bin.
func FlowCounts(records []SignalRecord, binMinutes int) []FlowBin {
	if binMinutes <= 0 {
		binMinutes = 30
	}
	type platforms struct {
		apple   map[string]bool
		android map[string]bool
	}
	bins := make(map[int]*platforms)
	for _, rec := range records {
		if rec.Type != DeviceApple && rec.Type != DeviceAndroid {
			continue
		}
		b := MinuteIndex(rec.Time) / binMinutes
		p := bins[b]
		if p == nil {
			p = &platforms{apple: make(map[string]bool), android: make(map[string]bool)}
			bins[b] = p
		}
		if rec.Type == DeviceApple {
			p.apple[rec.MAC] = true
		} else {
			p.android[rec.MAC] = true
		}
	}

	indices := make([]int, 0, len(bins))
	for b := range bins {
		indices = append(indices, b)
	}
	sort.Ints(indices)
	out := make([]FlowBin, 0, len(indices))
	for _, b := range indices {
		out = append(out, FlowBin{Bin: b, Apple: len(bins[b].apple), Android: len(bins[b].android)})
	}
	return out
}
