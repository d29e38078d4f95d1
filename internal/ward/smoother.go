package ward

import "sort"

// SmootherConfig tunes the exponential track smoother.
type SmootherConfig struct {
	// Alpha is the weight of the previous smoothed sample. The high
	// default keeps tracks steady against per-bin sampling noise.
	Alpha float64
}

// DefaultSmootherConfig returns the production smoothing weight.
func DefaultSmootherConfig() SmootherConfig {
	return SmootherConfig{Alpha: 0.99}
}

// RawEstimate is one ten-minute bin's raw (pre-smoothing) position for
// a device, with the number of anchors that contributed.
type RawEstimate struct {
	Point       Point
	AnchorCount int
}

// PositionSmoother turns a device's sparse raw per-bin estimates into
// a dense 144-bin track: gaps are filled with the nearest raw estimate
// in time (earlier preferred on ties), then the whole day is smoothed
// exponentially in bin order.
type PositionSmoother struct {
	alpha float64
}

func NewPositionSmoother(cfg SmootherConfig) *PositionSmoother {
	if cfg.Alpha <= 0 || cfg.Alpha >= 1 {
		cfg = DefaultSmootherConfig()
	}
	return &PositionSmoother{alpha: cfg.Alpha}
}

// Track builds the full-day smoothed track for one device. A device
// with no raw estimates yields nil and is excluded from the output
// table entirely. Otherwise exactly TenMinuteBinsPerDay samples are
// returned; IsActive is true only for bins with a genuine raw
// estimate.
func (s *PositionSmoother) Track(mac string, raw map[int]RawEstimate) []PositionEstimate {
	if len(raw) == 0 {
		return nil
	}

	observed := make([]int, 0, len(raw))
	for bin := range raw {
		observed = append(observed, bin)
	}
	sort.Ints(observed)

	// Gap fill before smoothing: each empty bin carries the nearest
	// observed raw estimate, the earlier one winning ties. Filling
	// first means the smoother never restarts across a gap.
	filled := make([]Point, TenMinuteBinsPerDay)
	next := 0
	for bin := 0; bin < TenMinuteBinsPerDay; bin++ {
		if r, ok := raw[bin]; ok {
			filled[bin] = r.Point
			if next < len(observed) && observed[next] == bin {
				next++
			}
			continue
		}
		for next < len(observed) && observed[next] < bin {
			next++
		}
		prevIdx, nextIdx := next-1, next
		switch {
		case prevIdx < 0:
			filled[bin] = raw[observed[nextIdx]].Point
		case nextIdx >= len(observed):
			filled[bin] = raw[observed[prevIdx]].Point
		case bin-observed[prevIdx] <= observed[nextIdx]-bin:
			filled[bin] = raw[observed[prevIdx]].Point
		default:
			filled[bin] = raw[observed[nextIdx]].Point
		}
	}

	track := make([]PositionEstimate, TenMinuteBinsPerDay)
	var prev Point
	for bin := 0; bin < TenMinuteBinsPerDay; bin++ {
		rawPt := filled[bin]
		p := rawPt
		if bin > 0 {
			p = Point{
				X: s.alpha*prev.X + (1-s.alpha)*rawPt.X,
				Y: s.alpha*prev.Y + (1-s.alpha)*rawPt.Y,
			}
		}
		prev = p

		r, active := raw[bin]
		track[bin] = PositionEstimate{
			MAC:         mac,
			Bin:         bin,
			X:           rawPt.X,
			Y:           rawPt.Y,
			SmoothedX:   p.X,
			SmoothedY:   p.Y,
			IsActive:    active,
			AnchorCount: r.AnchorCount,
		}
	}
	return track
}
