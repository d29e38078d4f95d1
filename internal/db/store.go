package db

import (
	"database/sql"
	"fmt"

	"github.com/wardsight/occupancy.report/internal/ward"
)

// SaveRun persists every derived table of one batch run in a single
// transaction. A failed save leaves no partial run behind.
func (db *DB) SaveRun(res *ward.Result) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO runs (run_id, fingerprint, unresolved, elapsed_ms) VALUES (?, ?, ?, ?)`,
		res.RunID, res.Fingerprint, res.Unresolved, res.Elapsed.Milliseconds(),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	posStmt, err := tx.Prepare(
		`INSERT INTO positions (run_id, mac, bin, x, y, smoothed_x, smoothed_y, is_active, anchor_count) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare positions: %w", err)
	}
	defer posStmt.Close()
	for _, p := range res.Positions {
		if _, err := posStmt.Exec(res.RunID, p.MAC, p.Bin, p.X, p.Y, p.SmoothedX, p.SmoothedY, p.IsActive, p.AnchorCount); err != nil {
			return fmt.Errorf("insert position: %w", err)
		}
	}

	actStmt, err := tx.Prepare(
		`INSERT INTO activity (run_id, mac, minute, signal_count, status, building, level, space_type) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare activity: %w", err)
	}
	defer actStmt.Close()
	for _, a := range res.Activity {
		if _, err := actStmt.Exec(res.RunID, a.MAC, a.Minute, a.SignalCount, a.Status.String(), a.Building, a.Level, a.SpaceType); err != nil {
			return fmt.Errorf("insert activity: %w", err)
		}
	}

	opStmt, err := tx.Prepare(
		`INSERT INTO operation (run_id, building, level, bin, operating_count, total_count, rate) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare operation: %w", err)
	}
	defer opStmt.Close()
	for _, o := range res.Operation {
		if _, err := opStmt.Exec(res.RunID, o.Building, o.Level, o.Bin, o.OperatingCount, o.TotalCount, o.Rate); err != nil {
			return fmt.Errorf("insert operation: %w", err)
		}
	}

	jStmt, err := tx.Prepare(
		`INSERT INTO journey (run_id, mac, row_order, bin, code) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare journey: %w", err)
	}
	defer jStmt.Close()
	for row, mac := range res.Journey.Devices {
		for bin, code := range res.Journey.Codes[row] {
			if _, err := jStmt.Exec(res.RunID, mac, row, bin, code); err != nil {
				return fmt.Errorf("insert journey: %w", err)
			}
		}
	}

	for _, d := range res.Dwell {
		if _, err := tx.Exec(
			`INSERT INTO dwell (run_id, mac, minutes) VALUES (?, ?, ?)`,
			res.RunID, d.MAC, d.Minutes,
		); err != nil {
			return fmt.Errorf("insert dwell: %w", err)
		}
	}

	for _, s := range res.Spaces {
		if _, err := tx.Exec(
			`INSERT INTO space_stats (run_id, building, level, total_workers, max_active, avg_active, max_present, avg_present) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			res.RunID, s.Building, s.Level, s.TotalWorkers, s.MaxActive, s.AvgActive, s.MaxPresent, s.AvgPresent,
		); err != nil {
			return fmt.Errorf("insert space stats: %w", err)
		}
	}

	for _, f := range res.Flow {
		if _, err := tx.Exec(
			`INSERT INTO flow (run_id, bin, apple, android) VALUES (?, ?, ?, ?)`,
			res.RunID, f.Bin, f.Apple, f.Android,
		); err != nil {
			return fmt.Errorf("insert flow: %w", err)
		}
	}

	return tx.Commit()
}

// SaveAnchors replaces the stored anchor survey.
func (db *DB) SaveAnchors(anchors []ward.Anchor) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin anchor save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM anchors`); err != nil {
		return fmt.Errorf("clear anchors: %w", err)
	}
	for _, a := range anchors {
		if _, err := tx.Exec(
			`INSERT INTO anchors (anchor_id, building, level, space_type, x, y, ambiguous) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.Building, a.Level, a.SpaceType, a.X, a.Y, a.Ambiguous,
		); err != nil {
			return fmt.Errorf("insert anchor %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// SaveSignals archives the raw signal rows a run was computed from.
// Optional: a day of signals dwarfs the derived tables, so the
// precompute tool only calls this when asked to keep them.
func (db *DB) SaveSignals(runID string, records []ward.SignalRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin signal save: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO signals (run_id, anchor_id, mac, type, rssi, time) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare signal insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(runID, rec.AnchorID, rec.MAC, int(rec.Type), rec.RSSI, rec.Time.UTC()); err != nil {
			return fmt.Errorf("insert signal for %s: %w", rec.MAC, err)
		}
	}
	return tx.Commit()
}

// ListSignals returns a run's archived raw signals, optionally
// filtered by device, in time order.
func (db *DB) ListSignals(runID, mac string) ([]ward.SignalRecord, error) {
	query := `SELECT anchor_id, mac, type, rssi, time FROM signals WHERE run_id = ?`
	args := []interface{}{runID}
	if mac != "" {
		query += ` AND mac = ?`
		args = append(args, mac)
	}
	query += ` ORDER BY time, mac`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var records []ward.SignalRecord
	for rows.Next() {
		var rec ward.SignalRecord
		var devType int
		if err := rows.Scan(&rec.AnchorID, &rec.MAC, &devType, &rec.RSSI, &rec.Time); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		rec.Type = ward.DeviceType(devType)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LoadAnchors returns the stored anchor survey sorted by ID.
func (db *DB) LoadAnchors() ([]ward.Anchor, error) {
	rows, err := db.Query(
		`SELECT anchor_id, building, level, space_type, x, y, ambiguous FROM anchors ORDER BY anchor_id`)
	if err != nil {
		return nil, fmt.Errorf("query anchors: %w", err)
	}
	defer rows.Close()

	var anchors []ward.Anchor
	for rows.Next() {
		var a ward.Anchor
		if err := rows.Scan(&a.ID, &a.Building, &a.Level, &a.SpaceType, &a.X, &a.Y, &a.Ambiguous); err != nil {
			return nil, fmt.Errorf("scan anchor: %w", err)
		}
		anchors = append(anchors, a)
	}
	return anchors, rows.Err()
}

// LatestRunID returns the most recently saved run, or sql.ErrNoRows
// on an empty database.
func (db *DB) LatestRunID() (string, error) {
	var runID string
	err := db.QueryRow(
		`SELECT run_id FROM runs ORDER BY created_at DESC, run_id DESC LIMIT 1`).Scan(&runID)
	return runID, err
}

// ListRuns returns run IDs newest first.
func (db *DB) ListRuns(limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT run_id FROM runs ORDER BY created_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListPositions returns a run's position tracks, raw and smoothed
// coordinates both, optionally filtered to one device.
func (db *DB) ListPositions(runID, mac string) ([]ward.PositionEstimate, error) {
	query := `SELECT mac, bin, x, y, smoothed_x, smoothed_y, is_active, anchor_count FROM positions WHERE run_id = ?`
	args := []interface{}{runID}
	if mac != "" {
		query += ` AND mac = ?`
		args = append(args, mac)
	}
	query += ` ORDER BY mac, bin`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []ward.PositionEstimate
	for rows.Next() {
		var p ward.PositionEstimate
		if err := rows.Scan(&p.MAC, &p.Bin, &p.X, &p.Y, &p.SmoothedX, &p.SmoothedY, &p.IsActive, &p.AnchorCount); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListActivity returns a run's per-minute activity records,
// optionally filtered to one device.
func (db *DB) ListActivity(runID, mac string) ([]ward.ActivityRecord, error) {
	query := `SELECT mac, minute, signal_count, status, building, level, space_type FROM activity WHERE run_id = ?`
	args := []interface{}{runID}
	if mac != "" {
		query += ` AND mac = ?`
		args = append(args, mac)
	}
	query += ` ORDER BY mac, minute`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	var out []ward.ActivityRecord
	for rows.Next() {
		var a ward.ActivityRecord
		var status string
		if err := rows.Scan(&a.MAC, &a.Minute, &a.SignalCount, &status, &a.Building, &a.Level, &a.SpaceType); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Status = parseStatus(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

func parseStatus(s string) ward.ActivityStatus {
	switch s {
	case "present":
		return ward.StatusPresent
	case "active":
		return ward.StatusActive
	default:
		return ward.StatusAbsent
	}
}

// ListOperation returns a run's operation table, optionally filtered
// to one building.
func (db *DB) ListOperation(runID, building string) ([]ward.OperationRow, error) {
	query := `SELECT building, level, bin, operating_count, total_count, rate FROM operation WHERE run_id = ?`
	args := []interface{}{runID}
	if building != "" {
		query += ` AND building = ?`
		args = append(args, building)
	}
	query += ` ORDER BY building, level, bin`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query operation: %w", err)
	}
	defer rows.Close()

	var out []ward.OperationRow
	for rows.Next() {
		var o ward.OperationRow
		if err := rows.Scan(&o.Building, &o.Level, &o.Bin, &o.OperatingCount, &o.TotalCount, &o.Rate); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// LoadJourney rebuilds a run's journey matrix in its stored row
// order.
func (db *DB) LoadJourney(runID string) (ward.JourneyMatrix, error) {
	rows, err := db.Query(
		`SELECT mac, row_order, bin, code FROM journey WHERE run_id = ? ORDER BY row_order, bin`, runID)
	if err != nil {
		return ward.JourneyMatrix{}, fmt.Errorf("query journey: %w", err)
	}
	defer rows.Close()

	var matrix ward.JourneyMatrix
	lastRow := -1
	for rows.Next() {
		var mac string
		var rowOrder, bin, code int
		if err := rows.Scan(&mac, &rowOrder, &bin, &code); err != nil {
			return ward.JourneyMatrix{}, fmt.Errorf("scan journey: %w", err)
		}
		if rowOrder != lastRow {
			matrix.Devices = append(matrix.Devices, mac)
			matrix.Codes = append(matrix.Codes, make([]int, 0, ward.TenMinuteBinsPerDay))
			lastRow = rowOrder
		}
		matrix.Codes[len(matrix.Codes)-1] = append(matrix.Codes[len(matrix.Codes)-1], code)
	}
	return matrix, rows.Err()
}

// ListDwell returns a run's dwell summaries, longest first.
func (db *DB) ListDwell(runID string) ([]ward.DwellSummary, error) {
	rows, err := db.Query(
		`SELECT mac, minutes FROM dwell WHERE run_id = ? ORDER BY minutes DESC, mac`, runID)
	if err != nil {
		return nil, fmt.Errorf("query dwell: %w", err)
	}
	defer rows.Close()

	var out []ward.DwellSummary
	for rows.Next() {
		var d ward.DwellSummary
		if err := rows.Scan(&d.MAC, &d.Minutes); err != nil {
			return nil, fmt.Errorf("scan dwell: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListSpaceStats returns a run's per-space worker statistics.
func (db *DB) ListSpaceStats(runID string) ([]ward.SpaceStats, error) {
	rows, err := db.Query(
		`SELECT building, level, total_workers, max_active, avg_active, max_present, avg_present FROM space_stats WHERE run_id = ? ORDER BY building, level`, runID)
	if err != nil {
		return nil, fmt.Errorf("query space stats: %w", err)
	}
	defer rows.Close()

	var out []ward.SpaceStats
	for rows.Next() {
		var s ward.SpaceStats
		if err := rows.Scan(&s.Building, &s.Level, &s.TotalWorkers, &s.MaxActive, &s.AvgActive, &s.MaxPresent, &s.AvgPresent); err != nil {
			return nil, fmt.Errorf("scan space stats: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListFlow returns a run's phone-flow counts in bin order.
func (db *DB) ListFlow(runID string) ([]ward.FlowBin, error) {
	rows, err := db.Query(
		`SELECT bin, apple, android FROM flow WHERE run_id = ? ORDER BY bin`, runID)
	if err != nil {
		return nil, fmt.Errorf("query flow: %w", err)
	}
	defer rows.Close()

	var out []ward.FlowBin
	for rows.Next() {
		var f ward.FlowBin
		if err := rows.Scan(&f.Bin, &f.Apple, &f.Android); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// RunInfo is the runs-table view served by the API.
type RunInfo struct {
	RunID      string `json:"run_id"`
	Unresolved int    `json:"unresolved"`
	ElapsedMS  int64  `json:"elapsed_ms"`
	CreatedAt  string `json:"created_at"`
}

// GetRun returns one run's metadata.
func (db *DB) GetRun(runID string) (RunInfo, error) {
	var info RunInfo
	err := db.QueryRow(
		`SELECT run_id, unresolved, elapsed_ms, created_at FROM runs WHERE run_id = ?`, runID,
	).Scan(&info.RunID, &info.Unresolved, &info.ElapsedMS, &info.CreatedAt)
	if err == sql.ErrNoRows {
		return info, err
	}
	if err != nil {
		return info, fmt.Errorf("query run %s: %w", runID, err)
	}
	return info, nil
}
