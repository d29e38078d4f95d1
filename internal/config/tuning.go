package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wardsight/occupancy.report/internal/ward"
)

// TuningConfig is the root analysis tuning schema. Every field is a
// pointer so a partial JSON file overrides only what it names; the
// Get* accessors supply defaults for everything else. The same JSON
// shape is served and accepted by the /api/params endpoint.
type TuningConfig struct {
	// Worker activity thresholds
	ActiveMinSignals    *int `json:"active_min_signals,omitempty"`
	OperatingMinSignals *int `json:"operating_min_signals,omitempty"`

	// Position estimation
	NearRSSI         *float64 `json:"near_rssi,omitempty"`
	FarRSSI          *float64 `json:"far_rssi,omitempty"`
	NearRadius       *float64 `json:"near_radius,omitempty"`
	FarRadius        *float64 `json:"far_radius,omitempty"`
	PairJitterRadius *float64 `json:"pair_jitter_radius,omitempty"`
	SmoothingAlpha   *float64 `json:"smoothing_alpha,omitempty"`
	Seed             *int64   `json:"seed,omitempty"`

	// Journey colouring
	DominantShare       *float64 `json:"dominant_share,omitempty"`
	AmbiguousShare      *float64 `json:"ambiguous_share,omitempty"`
	NoSignalMinMinutes  *int     `json:"no_signal_min_minutes,omitempty"`
	AmbiguousMinMinutes *int     `json:"ambiguous_min_minutes,omitempty"`
	JourneySort         *string  `json:"journey_sort,omitempty"`
	MaxJourneyDevices   *int     `json:"max_journey_devices,omitempty"`
	DwellFilterMinutes  *int     `json:"dwell_filter_minutes,omitempty"`

	// Batch shape
	Workers        *int `json:"workers,omitempty"`
	FlowBinMinutes *int `json:"flow_bin_minutes,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil,
// so every accessor falls through to its default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields
// omitted from the file keep their defaults, so partial configs are
// safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *TuningConfig) Validate() error {
	if c.ActiveMinSignals != nil && *c.ActiveMinSignals < 1 {
		return fmt.Errorf("active_min_signals must be at least 1, got %d", *c.ActiveMinSignals)
	}
	if c.OperatingMinSignals != nil && *c.OperatingMinSignals < 1 {
		return fmt.Errorf("operating_min_signals must be at least 1, got %d", *c.OperatingMinSignals)
	}
	if c.SmoothingAlpha != nil {
		if *c.SmoothingAlpha <= 0 || *c.SmoothingAlpha >= 1 {
			return fmt.Errorf("smoothing_alpha must be in (0,1), got %f", *c.SmoothingAlpha)
		}
	}
	for name, v := range map[string]*float64{
		"dominant_share":  c.DominantShare,
		"ambiguous_share": c.AmbiguousShare,
	} {
		if v != nil && (*v <= 0 || *v > 1) {
			return fmt.Errorf("%s must be in (0,1], got %f", name, *v)
		}
	}
	if c.NearRSSI != nil && c.FarRSSI != nil && *c.FarRSSI >= *c.NearRSSI {
		return fmt.Errorf("far_rssi (%f) must be weaker than near_rssi (%f)", *c.FarRSSI, *c.NearRSSI)
	}
	if c.NoSignalMinMinutes != nil && (*c.NoSignalMinMinutes < 1 || *c.NoSignalMinMinutes > 10) {
		return fmt.Errorf("no_signal_min_minutes must be in [1,10], got %d", *c.NoSignalMinMinutes)
	}
	if c.AmbiguousMinMinutes != nil && (*c.AmbiguousMinMinutes < 1 || *c.AmbiguousMinMinutes > 10) {
		return fmt.Errorf("ambiguous_min_minutes must be in [1,10], got %d", *c.AmbiguousMinMinutes)
	}
	if c.JourneySort != nil {
		switch ward.JourneySort(*c.JourneySort) {
		case ward.SortByDwell, ward.SortByActive, ward.SortByBuilding:
		default:
			return fmt.Errorf("journey_sort must be dwell, active or building, got %q", *c.JourneySort)
		}
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.FlowBinMinutes != nil && *c.FlowBinMinutes < 1 {
		return fmt.Errorf("flow_bin_minutes must be at least 1, got %d", *c.FlowBinMinutes)
	}
	return nil
}

// GetActiveMinSignals returns the active_min_signals value or the default.
func (c *TuningConfig) GetActiveMinSignals() int {
	if c.ActiveMinSignals == nil {
		return ward.DefaultClassifierConfig().ActiveMinSignals
	}
	return *c.ActiveMinSignals
}

// GetOperatingMinSignals returns the operating_min_signals value or the default.
func (c *TuningConfig) GetOperatingMinSignals() int {
	if c.OperatingMinSignals == nil {
		return ward.DefaultOperationConfig().OperatingMinSignals
	}
	return *c.OperatingMinSignals
}

// GetSmoothingAlpha returns the smoothing_alpha value or the default.
func (c *TuningConfig) GetSmoothingAlpha() float64 {
	if c.SmoothingAlpha == nil {
		return ward.DefaultSmootherConfig().Alpha
	}
	return *c.SmoothingAlpha
}

// GetSeed returns the seed value or 0, which seeds from the clock.
func (c *TuningConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 0
	}
	return *c.Seed
}

// GetJourneySort returns the journey_sort value or the default.
func (c *TuningConfig) GetJourneySort() ward.JourneySort {
	if c.JourneySort == nil {
		return ward.SortByDwell
	}
	return ward.JourneySort(*c.JourneySort)
}

// PipelineConfig expands the tuning file into the full batch config,
// substituting defaults for every unset field.
func (c *TuningConfig) PipelineConfig() ward.PipelineConfig {
	cfg := ward.DefaultPipelineConfig()

	cfg.Classifier.ActiveMinSignals = c.GetActiveMinSignals()
	cfg.Operation.OperatingMinSignals = c.GetOperatingMinSignals()
	cfg.Journey.ActiveMinSignals = c.GetActiveMinSignals()
	cfg.Smoother.Alpha = c.GetSmoothingAlpha()
	cfg.Seed = c.GetSeed()
	cfg.JourneySort = c.GetJourneySort()

	if c.NearRSSI != nil {
		cfg.Estimator.NearRSSI = *c.NearRSSI
	}
	if c.FarRSSI != nil {
		cfg.Estimator.FarRSSI = *c.FarRSSI
	}
	if c.NearRadius != nil {
		cfg.Estimator.NearRadius = *c.NearRadius
	}
	if c.FarRadius != nil {
		cfg.Estimator.FarRadius = *c.FarRadius
	}
	if c.PairJitterRadius != nil {
		cfg.Estimator.PairJitterRadius = *c.PairJitterRadius
	}
	if c.DominantShare != nil {
		cfg.Journey.DominantShare = *c.DominantShare
	}
	if c.AmbiguousShare != nil {
		cfg.Journey.AmbiguousShare = *c.AmbiguousShare
	}
	if c.NoSignalMinMinutes != nil {
		cfg.Journey.NoSignalMinMinutes = *c.NoSignalMinMinutes
	}
	if c.AmbiguousMinMinutes != nil {
		cfg.Journey.AmbiguousMinMinutes = *c.AmbiguousMinMinutes
	}
	if c.MaxJourneyDevices != nil {
		cfg.MaxJourneyDevices = *c.MaxJourneyDevices
	}
	if c.DwellFilterMinutes != nil {
		cfg.DwellFilterMinutes = *c.DwellFilterMinutes
	}
	if c.Workers != nil {
		cfg.Workers = *c.Workers
	}
	if c.FlowBinMinutes != nil {
		cfg.FlowBinMinutes = *c.FlowBinMinutes
	}
	return cfg
}
