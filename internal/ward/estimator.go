package ward

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

// weightEpsilon keeps inverse-magnitude weights finite for an RSSI of
// exactly zero.
const weightEpsilon = 1e-6

// EstimatorConfig tunes the per-bin position strategies. RSSI values
// are dBm (negative, stronger toward zero); radii are site plan units.
type EstimatorConfig struct {
	// Single-anchor uncertainty disk: NearRadius at NearRSSI or
	// stronger, FarRadius at FarRSSI or weaker, linear between.
	NearRSSI   float64
	FarRSSI    float64
	NearRadius float64
	FarRadius  float64

	// Jitter disk applied to the two-anchor division point.
	PairJitterRadius float64

	// Number of strongest anchors used by the weighted centroid.
	TopAnchors int
}

// DefaultEstimatorConfig returns the production estimator tuning.
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		NearRSSI:         -60,
		FarRSSI:          -80,
		NearRadius:       10,
		FarRadius:        20,
		PairJitterRadius: 10,
		TopAnchors:       3,
	}
}

// Observation is one anchor's aggregated view of a device within a
// ten-minute bin: the anchor and the mean RSSI it reported.
type Observation struct {
	Anchor Anchor
	RSSI   float64
}

// PositionEstimator derives a single position from the anchors that
// observed a device in one bin. The strategy depends on how many
// anchors contributed: one anchor yields a random sample on its
// uncertainty disk, two anchors an inverse-magnitude division point
// with jitter, three or more a weighted centroid of the strongest
// three. The RNG is injected so batch runs can be made deterministic.
type PositionEstimator struct {
	cfg EstimatorConfig
	rng *rand.Rand
}

// NewPositionEstimator builds an estimator. A nil rng gets a
// time-seeded source; tests pass a fixed seed.
func NewPositionEstimator(cfg EstimatorConfig, rng *rand.Rand) *PositionEstimator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.TopAnchors <= 0 {
		cfg.TopAnchors = DefaultEstimatorConfig().TopAnchors
	}
	return &PositionEstimator{cfg: cfg, rng: rng}
}

// Estimate returns the bin position for the given per-anchor
// observations. Zero observations yield ok=false; that is a normal
// quiet bin, not an error.
func (e *PositionEstimator) Estimate(obs []Observation) (Point, bool) {
	switch len(obs) {
	case 0:
		return Point{}, false
	case 1:
		return e.singleAnchor(obs[0]), true
	case 2:
		return e.anchorPair(obs[0], obs[1]), true
	default:
		return e.weightedCentroid(obs), true
	}
}

// singleRadius maps an RSSI to the uncertainty-disk radius.
func (e *PositionEstimator) singleRadius(rssi float64) float64 {
	c := e.cfg
	if rssi >= c.NearRSSI {
		return c.NearRadius
	}
	if rssi <= c.FarRSSI {
		return c.FarRadius
	}
	frac := (c.NearRSSI - rssi) / (c.NearRSSI - c.FarRSSI)
	return c.NearRadius + frac*(c.FarRadius-c.NearRadius)
}

// diskSample draws a uniform-by-area point on a disk of the given
// radius centred at the origin. The sqrt keeps density uniform rather
// than clustered at the centre.
func (e *PositionEstimator) diskSample(radius float64) Point {
	r := radius * math.Sqrt(e.rng.Float64())
	theta := e.rng.Float64() * 2 * math.Pi
	return Point{X: r * math.Cos(theta), Y: r * math.Sin(theta)}
}

func (e *PositionEstimator) singleAnchor(o Observation) Point {
	d := e.diskSample(e.singleRadius(o.RSSI))
	return Point{X: o.Anchor.X + d.X, Y: o.Anchor.Y + d.Y}
}

func (e *PositionEstimator) anchorPair(a, b Observation) Point {
	m1 := math.Abs(a.RSSI)
	m2 := math.Abs(b.RSSI)
	// Weight toward the stronger anchor: the division point sits
	// closer to the anchor with the smaller RSSI magnitude.
	w1 := m2 / (m1 + m2 + weightEpsilon)
	base := Point{
		X: w1*a.Anchor.X + (1-w1)*b.Anchor.X,
		Y: w1*a.Anchor.Y + (1-w1)*b.Anchor.Y,
	}
	d := e.diskSample(e.cfg.PairJitterRadius)
	return Point{X: base.X + d.X, Y: base.Y + d.Y}
}

func (e *PositionEstimator) weightedCentroid(obs []Observation) Point {
	sorted := make([]Observation, len(obs))
	copy(sorted, obs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].RSSI != sorted[j].RSSI {
			return sorted[i].RSSI > sorted[j].RSSI
		}
		return sorted[i].Anchor.ID < sorted[j].Anchor.ID
	})
	if len(sorted) > e.cfg.TopAnchors {
		sorted = sorted[:e.cfg.TopAnchors]
	}

	var sum float64
	weights := make([]float64, len(sorted))
	for i, o := range sorted {
		w := 1 / (math.Abs(o.RSSI) + weightEpsilon)
		weights[i] = w
		sum += w
	}

	var p Point
	for i, o := range sorted {
		w := weights[i] / sum
		p.X += w * o.Anchor.X
		p.Y += w * o.Anchor.Y
	}
	return p
}
