package ward

import "sort"

// Reserved journey colour codes. Location codes start at 2; the
// palette may map several levels to one code when they read as a
// single zone on the heatmap.
const (
	CodeNoSignal = 0
	CodePresent  = 1
)

// Palette maps (building, level) to heatmap colour codes and records
// which codes belong to ambiguous shared-boundary zones.
type Palette struct {
	codes     map[locationKey]int
	ambiguous map[int]bool
}

func NewPalette() *Palette {
	return &Palette{
		codes:     make(map[locationKey]int),
		ambiguous: make(map[int]bool),
	}
}

// Add assigns a colour code to a location. Codes below 2 are reserved
// and ignored. Ambiguous marks the code as belonging to a
// shared-boundary zone.
func (p *Palette) Add(building, level string, code int, ambiguous bool) *Palette {
	if code < 2 {
		return p
	}
	p.codes[locationKey{building, level}] = code
	if ambiguous {
		p.ambiguous[code] = true
	}
	return p
}

// Code looks up the colour for a location.
func (p *Palette) Code(building, level string) (int, bool) {
	c, ok := p.codes[locationKey{building, level}]
	return c, ok
}

// Ambiguous reports whether a code belongs to a shared-boundary zone.
func (p *Palette) Ambiguous(code int) bool {
	return p.ambiguous[code]
}

// MaxCode returns the highest assigned code, or CodePresent when the
// palette is empty. Renderers size their colour scales with it.
func (p *Palette) MaxCode() int {
	max := CodePresent
	for _, c := range p.codes {
		if c > max {
			max = c
		}
	}
	return max
}

// PaletteFromRegistry assigns sequential codes to every location in
// the registry, giving all ambiguous zones a single shared code at the
// end. This is the fallback for sites without a curated palette.
func PaletteFromRegistry(reg *AnchorRegistry) *Palette {
	p := NewPalette()
	locs := reg.Locations()
	next := 2
	ambiguousCode := -1
	for _, loc := range locs {
		if loc.Ambiguous {
			continue
		}
		p.Add(loc.Building, loc.Level, next, false)
		next++
	}
	for _, loc := range locs {
		if !loc.Ambiguous {
			continue
		}
		if ambiguousCode < 0 {
			ambiguousCode = next
		}
		p.Add(loc.Building, loc.Level, ambiguousCode, true)
	}
	return p
}

// JourneyConfig tunes worker journey colour resolution.
type JourneyConfig struct {
	// ActiveMinSignals gates the per-minute stage: below it a minute
	// is present-inactive regardless of where the signals came from.
	ActiveMinSignals int

	// DominantShare is the vote share a location needs to colour a
	// minute; AmbiguousShare is the stricter bar for shared zones.
	DominantShare  float64
	AmbiguousShare float64

	// NoSignalMinMinutes of the ten-minute window must be silent for
	// the bin to go black; AmbiguousMinMinutes must agree for a
	// shared-zone code to survive the reduction.
	NoSignalMinMinutes  int
	AmbiguousMinMinutes int
}

// DefaultJourneyConfig returns the production journey tuning.
func DefaultJourneyConfig() JourneyConfig {
	return JourneyConfig{
		ActiveMinSignals:    3,
		DominantShare:       0.60,
		AmbiguousShare:      0.90,
		NoSignalMinMinutes:  7,
		AmbiguousMinMinutes: 5,
	}
}

// JourneyResolver colours worker journeys: a per-minute pass assigns
// each minute a code from its dominant location, and a reduction pass
// collapses each ten-minute window into one heatmap cell. Both passes
// are deterministic.
type JourneyResolver struct {
	cfg     JourneyConfig
	reg     *AnchorRegistry
	palette *Palette
}

func NewJourneyResolver(cfg JourneyConfig, reg *AnchorRegistry, palette *Palette) *JourneyResolver {
	d := DefaultJourneyConfig()
	if cfg.ActiveMinSignals <= 0 {
		cfg.ActiveMinSignals = d.ActiveMinSignals
	}
	if cfg.DominantShare <= 0 || cfg.DominantShare > 1 {
		cfg.DominantShare = d.DominantShare
	}
	if cfg.AmbiguousShare <= 0 || cfg.AmbiguousShare > 1 {
		cfg.AmbiguousShare = d.AmbiguousShare
	}
	if cfg.NoSignalMinMinutes <= 0 {
		cfg.NoSignalMinMinutes = d.NoSignalMinMinutes
	}
	if cfg.AmbiguousMinMinutes <= 0 {
		cfg.AmbiguousMinMinutes = d.AmbiguousMinMinutes
	}
	if palette == nil {
		palette = PaletteFromRegistry(reg)
	}
	return &JourneyResolver{cfg: cfg, reg: reg, palette: palette}
}

// MinuteColors assigns a colour code to every minute of the day for
// one device. A silent minute is CodeNoSignal; a minute below the
// active threshold, or without a sufficiently dominant location, is
// CodePresent.
func (j *JourneyResolver) MinuteColors(records []SignalRecord) []int {
	type minuteVotes struct {
		count int
		votes map[locationKey]int
	}
	minutes := make(map[int]*minuteVotes)
	for _, rec := range records {
		m := MinuteIndex(rec.Time)
		mv := minutes[m]
		if mv == nil {
			mv = &minuteVotes{votes: make(map[locationKey]int)}
			minutes[m] = mv
		}
		mv.count++
		if anchor, ok := j.reg.Lookup(rec.AnchorID); ok {
			mv.votes[locationKey{anchor.Building, anchor.Level}]++
		}
	}

	colors := make([]int, MinutesPerDay)
	for m := 0; m < MinutesPerDay; m++ {
		mv, ok := minutes[m]
		if !ok {
			colors[m] = CodeNoSignal
			continue
		}
		colors[m] = j.minuteColor(mv.count, mv.votes)
	}
	return colors
}

func (j *JourneyResolver) minuteColor(count int, votes map[locationKey]int) int {
	if count < j.cfg.ActiveMinSignals {
		return CodePresent
	}
	var winner locationKey
	winVotes, resolved := 0, 0
	for k, n := range votes {
		resolved += n
		if n > winVotes || (n == winVotes && lessLocation(k, winner)) {
			winner, winVotes = k, n
		}
	}
	if resolved == 0 {
		return CodePresent
	}
	code, ok := j.palette.Code(winner.Building, winner.Level)
	if !ok {
		return CodePresent
	}
	needed := j.cfg.DominantShare
	if j.palette.Ambiguous(code) {
		needed = j.cfg.AmbiguousShare
	}
	if float64(winVotes)/float64(resolved) < needed {
		return CodePresent
	}
	return code
}

// ReduceDay collapses 1440 minute colours into 144 ten-minute cells.
func (j *JourneyResolver) ReduceDay(minuteColors []int) []int {
	cells := make([]int, TenMinuteBinsPerDay)
	for bin := 0; bin < TenMinuteBinsPerDay; bin++ {
		cells[bin] = j.reduceWindow(minuteColors[bin*10 : bin*10+10])
	}
	return cells
}

// reduceWindow resolves one ten-minute window: mostly-silent windows
// go black, otherwise the plurality location code wins, with shared
// zones needing a majority of the window and everything else falling
// back to present-inactive.
func (j *JourneyResolver) reduceWindow(window []int) int {
	silent := 0
	locVotes := make(map[int]int)
	for _, c := range window {
		switch {
		case c == CodeNoSignal:
			silent++
		case c >= 2:
			locVotes[c]++
		}
	}
	if silent >= j.cfg.NoSignalMinMinutes {
		return CodeNoSignal
	}
	if len(locVotes) == 0 {
		return CodePresent
	}

	codes := make([]int, 0, len(locVotes))
	for c := range locVotes {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	winner, winVotes := codes[0], locVotes[codes[0]]
	for _, c := range codes[1:] {
		if locVotes[c] > winVotes {
			winner, winVotes = c, locVotes[c]
		}
	}
	if j.palette.Ambiguous(winner) && winVotes < j.cfg.AmbiguousMinMinutes {
		return CodePresent
	}
	return winner
}
