package ward

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wardsight/occupancy.report/internal/monitoring"
	"github.com/wardsight/occupancy.report/internal/timeutil"
)

// JourneySort selects the journey matrix row order.
type JourneySort string

const (
	SortByDwell    JourneySort = "dwell"
	SortByActive   JourneySort = "active"
	SortByBuilding JourneySort = "building"
)

// PipelineConfig bundles the tuning for a full batch run.
type PipelineConfig struct {
	Estimator  EstimatorConfig
	Smoother   SmootherConfig
	Classifier ClassifierConfig
	Operation  OperationConfig
	Journey    JourneyConfig

	// Workers bounds the per-device fan-out; zero means NumCPU.
	Workers int

	// Seed drives the position sampler. Each device derives its own
	// stream from it, so results are reproducible under any worker
	// scheduling.
	Seed int64

	// Journey matrix shaping.
	JourneySort        JourneySort
	MaxJourneyDevices  int
	DwellFilterMinutes int

	// FlowBinMinutes is the phone-flow bucket width.
	FlowBinMinutes int
}

// DefaultPipelineConfig returns the production batch tuning.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Estimator:          DefaultEstimatorConfig(),
		Smoother:           DefaultSmootherConfig(),
		Classifier:         DefaultClassifierConfig(),
		Operation:          DefaultOperationConfig(),
		Journey:            DefaultJourneyConfig(),
		Workers:            runtime.NumCPU(),
		JourneySort:        SortByDwell,
		MaxJourneyDevices:  500,
		DwellFilterMinutes: 30,
		FlowBinMinutes:     30,
	}
}

// Result is everything one batch run produces.
type Result struct {
	RunID       string
	Fingerprint string
	Positions   []PositionEstimate
	Activity    []ActivityRecord
	Operation   []OperationRow
	Journey     JourneyMatrix
	Dwell       []DwellSummary
	Spaces      []SpaceStats
	Flow        []FlowBin
	Unresolved  int
	Elapsed     time.Duration
}

// Pipeline runs the full analysis over one day's batch. The anchor
// registry is shared read-only across the device workers; everything
// else is per-device state.
type Pipeline struct {
	cfg     PipelineConfig
	reg     *AnchorRegistry
	palette *Palette
	cache   *ResultCache
	clock   timeutil.Clock
}

// NewPipeline builds a pipeline over a registry. A nil registry is
// rejected with ErrNoAnchors; the registry constructor already refuses
// empty loads, so this only trips on wiring mistakes.
func NewPipeline(cfg PipelineConfig, reg *AnchorRegistry) (*Pipeline, error) {
	if reg == nil || reg.Len() == 0 {
		return nil, ErrNoAnchors
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.MaxJourneyDevices <= 0 {
		cfg.MaxJourneyDevices = 500
	}
	if cfg.FlowBinMinutes <= 0 {
		cfg.FlowBinMinutes = 30
	}
	if cfg.JourneySort == "" {
		cfg.JourneySort = SortByDwell
	}
	return &Pipeline{
		cfg:     cfg,
		reg:     reg,
		palette: PaletteFromRegistry(reg),
		cache:   NewResultCache(),
		clock:   timeutil.RealClock{},
	}, nil
}

// SetPalette replaces the registry-derived palette with a curated one.
func (p *Pipeline) SetPalette(pal *Palette) {
	if pal != nil {
		p.palette = pal
	}
}

// SetClock swaps the clock; tests use timeutil.MockClock.
func (p *Pipeline) SetClock(c timeutil.Clock) {
	if c != nil {
		p.clock = c
	}
}

// Cache exposes the run cache so callers can clear it between days.
func (p *Pipeline) Cache() *ResultCache {
	return p.cache
}

// Run executes the batch. Repeat runs over a byte-identical batch are
// served from the cache.
func (p *Pipeline) Run(ctx context.Context, batch Batch) (*Result, error) {
	start := p.clock.Now()

	fp := Fingerprint(batch, fmt.Sprintf("workers=%d seed=%d", p.cfg.Workers, p.cfg.Seed))
	if cached, ok := p.cache.Get(fp); ok {
		monitoring.Logf("pipeline: cache hit for fingerprint %.12s", fp)
		return cached, nil
	}

	res := &Result{
		RunID:       uuid.NewString(),
		Fingerprint: fp,
	}
	res.Unresolved = p.countUnresolved(batch)

	tracked := append(append([]SignalRecord{}, batch.Equipment...), batch.Workers...)
	positions, err := p.positionTracks(ctx, tracked)
	if err != nil {
		return nil, err
	}
	res.Positions = positions

	activity, err := p.classifyWorkers(ctx, batch.Workers)
	if err != nil {
		return nil, err
	}
	res.Activity = activity

	res.Operation = NewOperationAggregator(p.cfg.Operation, p.reg).Aggregate(batch.Equipment)
	res.Dwell = DwellMinutes(batch.Workers)
	res.Spaces = SpaceStatistics(activity)
	res.Flow = FlowCounts(batch.Phones, p.cfg.FlowBinMinutes)

	journey, err := p.journeyMatrix(ctx, batch.Workers, activity, res.Dwell)
	if err != nil {
		return nil, err
	}
	res.Journey = journey

	res.Elapsed = p.clock.Since(start)
	monitoring.Logf("pipeline: run %s done in %s (devices=%d unresolved=%d)",
		res.RunID, res.Elapsed, len(res.Dwell), res.Unresolved)

	p.cache.Put(fp, res)
	return res, nil
}

func (p *Pipeline) countUnresolved(batch Batch) int {
	n := 0
	for _, group := range [][]SignalRecord{batch.Equipment, batch.Workers, batch.Phones} {
		for _, rec := range group {
			if _, ok := p.reg.Lookup(rec.AnchorID); !ok {
				n++
			}
		}
	}
	return n
}

// groupByDevice splits records per MAC and returns the sorted MAC
// list so merged output order never depends on map iteration.
func groupByDevice(records []SignalRecord) ([]string, map[string][]SignalRecord) {
	byMAC := make(map[string][]SignalRecord)
	for _, rec := range records {
		byMAC[rec.MAC] = append(byMAC[rec.MAC], rec)
	}
	macs := make([]string, 0, len(byMAC))
	for mac := range byMAC {
		macs = append(macs, mac)
	}
	sort.Strings(macs)
	return macs, byMAC
}

// forEachDevice fans macs out over the worker pool, storing each
// worker's output at the device's slot so the merge is deterministic.
func (p *Pipeline) forEachDevice(ctx context.Context, macs []string, fn func(i int, mac string)) error {
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < p.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i, macs[i])
			}
		}()
	}

	var err error
feed:
	for i := range macs {
		if err = ctx.Err(); err != nil {
			break feed
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	return err
}

// deviceSeed derives a per-device RNG stream from the run seed so the
// sampler is reproducible under concurrency.
func (p *Pipeline) deviceSeed(mac string) int64 {
	h := fnv.New64a()
	h.Write([]byte(mac))
	return p.cfg.Seed ^ int64(h.Sum64())
}

func (p *Pipeline) positionTracks(ctx context.Context, records []SignalRecord) ([]PositionEstimate, error) {
	macs, byMAC := groupByDevice(records)
	smoother := NewPositionSmoother(p.cfg.Smoother)

	tracks := make([][]PositionEstimate, len(macs))
	err := p.forEachDevice(ctx, macs, func(i int, mac string) {
		est := NewPositionEstimator(p.cfg.Estimator, rand.New(rand.NewSource(p.deviceSeed(mac))))
		tracks[i] = smoother.Track(mac, p.rawEstimates(est, byMAC[mac]))
	})
	if err != nil {
		return nil, err
	}

	var out []PositionEstimate
	for _, track := range tracks {
		out = append(out, track...) // nil tracks (no estimates) drop out here
	}
	return out, nil
}

// rawEstimates aggregates one device's signals into per-bin anchor
// observations (mean RSSI per anchor) and estimates each bin.
func (p *Pipeline) rawEstimates(est *PositionEstimator, records []SignalRecord) map[int]RawEstimate {
	type anchorAgg struct {
		anchor Anchor
		sum    float64
		n      int
	}
	bins := make(map[int]map[string]*anchorAgg)
	for _, rec := range records {
		anchor, ok := p.reg.Lookup(rec.AnchorID)
		if !ok {
			continue
		}
		bin := TenMinuteIndex(rec.Time)
		anchors := bins[bin]
		if anchors == nil {
			anchors = make(map[string]*anchorAgg)
			bins[bin] = anchors
		}
		agg := anchors[anchor.ID]
		if agg == nil {
			agg = &anchorAgg{anchor: anchor}
			anchors[anchor.ID] = agg
		}
		agg.sum += rec.RSSI
		agg.n++
	}

	raw := make(map[int]RawEstimate, len(bins))
	for bin, anchors := range bins {
		obs := make([]Observation, 0, len(anchors))
		for _, agg := range anchors {
			obs = append(obs, Observation{Anchor: agg.anchor, RSSI: agg.sum / float64(agg.n)})
		}
		sort.Slice(obs, func(i, j int) bool { return obs[i].Anchor.ID < obs[j].Anchor.ID })
		if point, ok := est.Estimate(obs); ok {
			raw[bin] = RawEstimate{Point: point, AnchorCount: len(obs)}
		}
	}
	return raw
}

func (p *Pipeline) classifyWorkers(ctx context.Context, records []SignalRecord) ([]ActivityRecord, error) {
	macs, byMAC := groupByDevice(records)
	classifier := NewActivityClassifier(p.cfg.Classifier, p.reg)

	perDevice := make([][]ActivityRecord, len(macs))
	err := p.forEachDevice(ctx, macs, func(i int, mac string) {
		perDevice[i] = classifier.Classify(mac, byMAC[mac])
	})
	if err != nil {
		return nil, err
	}

	out := make([]ActivityRecord, 0, len(macs)*MinutesPerDay)
	for _, recs := range perDevice {
		out = append(out, recs...)
	}
	return out, nil
}

func (p *Pipeline) journeyMatrix(ctx context.Context, records []SignalRecord, activity []ActivityRecord, dwell []DwellSummary) (JourneyMatrix, error) {
	dwellByMAC := make(map[string]int, len(dwell))
	for _, d := range dwell {
		dwellByMAC[d.MAC] = d.Minutes
	}

	macs, byMAC := groupByDevice(records)
	kept := macs[:0]
	for _, mac := range macs {
		if dwellByMAC[mac] >= p.cfg.DwellFilterMinutes {
			kept = append(kept, mac)
		}
	}
	macs = p.sortJourneyDevices(kept, dwellByMAC, activity)
	if len(macs) > p.cfg.MaxJourneyDevices {
		macs = macs[:p.cfg.MaxJourneyDevices]
	}

	resolver := NewJourneyResolver(p.cfg.Journey, p.reg, p.palette)
	codes := make([][]int, len(macs))
	err := p.forEachDevice(ctx, macs, func(i int, mac string) {
		codes[i] = resolver.ReduceDay(resolver.MinuteColors(byMAC[mac]))
	})
	if err != nil {
		return JourneyMatrix{}, err
	}
	return JourneyMatrix{Devices: macs, Codes: codes}, nil
}

// sortJourneyDevices orders matrix rows by the configured key; every
// key falls back to MAC so the order is total.
func (p *Pipeline) sortJourneyDevices(macs []string, dwellByMAC map[string]int, activity []ActivityRecord) []string {
	activeMinutes := make(map[string]int)
	building := make(map[string]map[string]int)
	for _, rec := range activity {
		if rec.Status != StatusActive {
			continue
		}
		activeMinutes[rec.MAC]++
		if rec.Building != "" {
			if building[rec.MAC] == nil {
				building[rec.MAC] = make(map[string]int)
			}
			building[rec.MAC][rec.Building]++
		}
	}
	mainBuilding := make(map[string]string)
	for mac, counts := range building {
		best, bestN := "", -1
		for b, n := range counts {
			if n > bestN || (n == bestN && b < best) {
				best, bestN = b, n
			}
		}
		mainBuilding[mac] = best
	}

	sorted := append([]string(nil), macs...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch p.cfg.JourneySort {
		case SortByActive:
			if activeMinutes[a] != activeMinutes[b] {
				return activeMinutes[a] > activeMinutes[b]
			}
		case SortByBuilding:
			if mainBuilding[a] != mainBuilding[b] {
				return mainBuilding[a] < mainBuilding[b]
			}
			if dwellByMAC[a] != dwellByMAC[b] {
				return dwellByMAC[a] > dwellByMAC[b]
			}
		default: // SortByDwell
			if dwellByMAC[a] != dwellByMAC[b] {
				return dwellByMAC[a] > dwellByMAC[b]
			}
		}
		return a < b
	})
	return sorted
}
