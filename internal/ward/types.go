// Package ward implements the beacon-analytics core: anchor resolution,
// time binning, RSSI position estimation and smoothing, per-minute
// activity classification, equipment operation aggregation, and worker
// journey colour resolution. All computation is batch-oriented and pure
// apart from the explicitly injected RNG used by the position sampler.
package ward

import (
	"encoding/json"
	"fmt"
	"time"
)

// DeviceType is the numeric device class carried in the raw export's
// type column.
type DeviceType int

const (
	DeviceUnknown   DeviceType = 0
	DeviceApple     DeviceType = 1
	DeviceAndroid   DeviceType = 10
	DeviceEquipment DeviceType = 31
	DeviceWorker    DeviceType = 41
)

// ParseDeviceType maps a raw type code to a DeviceType. Codes outside
// the known set resolve to DeviceUnknown; such rows still count in raw
// totals but are skipped by every analysis stage.
func ParseDeviceType(code int) DeviceType {
	switch DeviceType(code) {
	case DeviceApple, DeviceAndroid, DeviceEquipment, DeviceWorker:
		return DeviceType(code)
	default:
		return DeviceUnknown
	}
}

func (d DeviceType) String() string {
	switch d {
	case DeviceApple:
		return "apple"
	case DeviceAndroid:
		return "android"
	case DeviceEquipment:
		return "equipment"
	case DeviceWorker:
		return "worker"
	default:
		return "unknown"
	}
}

// SignalRecord is one row of the raw beacon export: a single RSSI
// observation of a device MAC by a fixed anchor.
type SignalRecord struct {
	AnchorID string
	MAC      string
	Type     DeviceType
	RSSI     float64
	Time     time.Time
}

// Anchor is a fixed receiver with a surveyed position and a location
// assignment. Ambiguous marks shared-boundary zones whose signals
// bleed between areas; dominance decisions for these zones use the
// stricter thresholds.
type Anchor struct {
	ID        string  `json:"anchor_id"`
	Building  string  `json:"building"`
	Level     string  `json:"level"`
	SpaceType string  `json:"space_type"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Ambiguous bool    `json:"ambiguous,omitempty"`
}

// Point is a position in site-local plan coordinates.
type Point struct {
	X float64
	Y float64
}

// ActivityStatus classifies one device-minute by signal volume.
type ActivityStatus int

const (
	StatusAbsent ActivityStatus = iota
	StatusPresent
	StatusActive
)

func (s ActivityStatus) String() string {
	switch s {
	case StatusPresent:
		return "present"
	case StatusActive:
		return "active"
	default:
		return "absent"
	}
}

// MarshalJSON emits the status name so API consumers never see the
// raw enum value.
func (s ActivityStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *ActivityStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "absent":
		*s = StatusAbsent
	case "present":
		*s = StatusPresent
	case "active":
		*s = StatusActive
	default:
		return fmt.Errorf("unknown activity status %q", name)
	}
	return nil
}

// PositionEstimate is one per-bin position sample for a device. X and
// Y hold the raw estimate (gap bins carry the nearest observed raw
// point), SmoothedX and SmoothedY the exponentially smoothed track.
// IsActive reports whether the bin had a genuine raw estimate rather
// than a gap-filled carry.
type PositionEstimate struct {
	MAC         string  `json:"mac"`
	Bin         int     `json:"bin"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	SmoothedX   float64 `json:"smoothed_x"`
	SmoothedY   float64 `json:"smoothed_y"`
	IsActive    bool    `json:"is_active"`
	AnchorCount int     `json:"anchor_count"`
}

// ActivityRecord is one device-minute of the worker activity table.
// Absent minutes carry empty location fields.
type ActivityRecord struct {
	MAC         string         `json:"mac"`
	Minute      int            `json:"minute"`
	SignalCount int            `json:"signal_count"`
	Status      ActivityStatus `json:"status"`
	Building    string         `json:"building"`
	Level       string         `json:"level"`
	SpaceType   string         `json:"space_type"`
}

// OperationRow is one (building, level, ten-minute bin) cell of the
// equipment operation table. Level "(All)" marks the per-building
// rollup. Rate is a percentage in [0,100] rounded to one decimal.
type OperationRow struct {
	Building       string  `json:"building"`
	Level          string  `json:"level"`
	Bin            int     `json:"bin"`
	OperatingCount int     `json:"operating_count"`
	TotalCount     int     `json:"total_count"`
	Rate           float64 `json:"rate"`
}

// RollupLevel is the pseudo-level used for per-building rollup rows.
const RollupLevel = "(All)"

// JourneyMatrix is the worker journey heatmap: one row of 144
// ten-minute colour codes per device, rows ordered by the caller's
// chosen sort key.
type JourneyMatrix struct {
	Devices []string `json:"devices"`
	Codes   [][]int  `json:"codes"`
}

// DwellSummary reports the number of distinct minutes on which a
// device produced at least one signal.
type DwellSummary struct {
	MAC     string `json:"mac"`
	Minutes int    `json:"minutes"`
}

// SpaceStats summarises worker presence for one (building, level).
// Averages are taken over occupied minutes only.
type SpaceStats struct {
	Building     string  `json:"building"`
	Level        string  `json:"level"`
	TotalWorkers int     `json:"total_workers"`
	MaxActive    int     `json:"max_active"`
	AvgActive    float64 `json:"avg_active"`
	MaxPresent   int     `json:"max_present"`
	AvgPresent   float64 `json:"avg_present"`
}

// FlowBin counts distinct phone devices per flow bin, split by
// platform.
type FlowBin struct {
	Bin     int `json:"bin"`
	Apple   int `json:"apple"`
	Android int `json:"android"`
}
