package ward

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Raw export column order. The files carry no header row.
const signalColumns = 5

// Timestamp layouts accepted in the raw export's time column.
var signalTimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Batch is one day of raw signals split by pipeline.
type Batch struct {
	Equipment []SignalRecord
	Workers   []SignalRecord
	Phones    []SignalRecord
}

// IngestStats counts what happened to the raw rows of a batch load.
// Dropped rows were malformed; unknown-type rows parsed fine but
// belong to no pipeline.
type IngestStats struct {
	Files       int
	Rows        int
	Dropped     int
	UnknownType int
}

// Total returns the rows that made it into the batch.
func (s IngestStats) Total() int {
	return s.Rows - s.Dropped - s.UnknownType
}

// ParseSignalRow parses one raw CSV row: anchor_id, mac, type, rssi,
// time. A short row, bad type code, bad RSSI, or bad timestamp is an
// error; callers drop and count such rows rather than failing the
// batch.
func ParseSignalRow(fields []string) (SignalRecord, error) {
	if len(fields) < signalColumns {
		return SignalRecord{}, fmt.Errorf("expected %d columns, got %d", signalColumns, len(fields))
	}
	typeCode, err := strconv.Atoi(strings.TrimSpace(fields[2]))
	if err != nil {
		return SignalRecord{}, fmt.Errorf("bad type code %q: %w", fields[2], err)
	}
	rssi, err := strconv.ParseFloat(strings.TrimSpace(fields[3]), 64)
	if err != nil {
		return SignalRecord{}, fmt.Errorf("bad rssi %q: %w", fields[3], err)
	}
	ts, err := parseSignalTime(strings.TrimSpace(fields[4]))
	if err != nil {
		return SignalRecord{}, err
	}
	return SignalRecord{
		AnchorID: strings.TrimSpace(fields[0]),
		MAC:      strings.TrimSpace(fields[1]),
		Type:     ParseDeviceType(typeCode),
		RSSI:     rssi,
		Time:     ts,
	}, nil
}

func parseSignalTime(s string) (time.Time, error) {
	for _, layout := range signalTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad timestamp %q", s)
}

// ReadSignalsCSV reads one raw export file, dropping malformed rows
// and counting them in stats. An empty or truncated-column file is an
// error naming the file, since that indicates a broken export rather
// than a few bad rows.
func ReadSignalsCSV(path string, stats *IngestStats) ([]SignalRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open signals file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // row length validated per record

	var records []SignalRecord
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		stats.Rows++
		if len(fields) < signalColumns {
			return nil, fmt.Errorf("%s: expected %d columns, got %d", filepath.Base(path), signalColumns, len(fields))
		}
		rec, err := ParseSignalRow(fields)
		if err != nil {
			stats.Dropped++
			continue
		}
		records = append(records, rec)
	}
	stats.Files++
	return records, nil
}

// ReadBatchDir loads every recognised export file from a directory:
// T31_* equipment, T41_* workers, TMobile_* phone flow. Files are
// read in name order so repeated loads see identical row order.
func ReadBatchDir(dir string) (Batch, IngestStats, error) {
	var batch Batch
	var stats IngestStats

	entries, err := os.ReadDir(dir)
	if err != nil {
		return batch, stats, fmt.Errorf("read batch directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		var dst *[]SignalRecord
		switch {
		case strings.HasPrefix(name, "T31_"):
			dst = &batch.Equipment
		case strings.HasPrefix(name, "T41_"):
			dst = &batch.Workers
		case strings.HasPrefix(name, "TMobile_"):
			dst = &batch.Phones
		default:
			continue
		}
		records, err := ReadSignalsCSV(filepath.Join(dir, name), &stats)
		if err != nil {
			return batch, stats, err
		}
		for _, rec := range records {
			if rec.Type == DeviceUnknown {
				stats.UnknownType++
				continue
			}
			*dst = append(*dst, rec)
		}
	}
	return batch, stats, nil
}

// LoadAnchorsCSV reads the anchor survey file: anchor_id, building,
// level, space_type, x, y, ambiguous. A header row is detected by a
// non-numeric x column and skipped.
func LoadAnchorsCSV(path string) ([]Anchor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open anchors file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var anchors []Anchor
	line := 0
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		line++
		if len(fields) < 6 {
			return nil, fmt.Errorf("%s line %d: expected at least 6 columns, got %d", filepath.Base(path), line, len(fields))
		}
		x, errX := strconv.ParseFloat(strings.TrimSpace(fields[4]), 64)
		y, errY := strconv.ParseFloat(strings.TrimSpace(fields[5]), 64)
		if errX != nil || errY != nil {
			if line == 1 {
				continue // header row
			}
			return nil, fmt.Errorf("%s line %d: bad coordinates", filepath.Base(path), line)
		}
		a := Anchor{
			ID:        strings.TrimSpace(fields[0]),
			Building:  strings.TrimSpace(fields[1]),
			Level:     strings.TrimSpace(fields[2]),
			SpaceType: strings.TrimSpace(fields[3]),
			X:         x,
			Y:         y,
		}
		if len(fields) > 6 {
			switch strings.ToLower(strings.TrimSpace(fields[6])) {
			case "1", "true", "yes", "ambiguous":
				a.Ambiguous = true
			}
		}
		anchors = append(anchors, a)
	}
	return anchors, nil
}
