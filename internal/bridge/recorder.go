package bridge

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-rf/internal/rf/frame"
)

const (
	// defaultFrameLimit bounds Frames when no limit is given.
	defaultFrameLimit = 100

	// seenLayout has a fixed width so last_seen sorts as text.
	seenLayout = "2006-01-02T15:04:05.000000Z07:00"
)

// FrameRecorder keeps one row per (driver, address, unit) seen on air in the
// rf_frames table, with a counter and the last payload. Unpaired remotes show
// up here, which helps when pairing a device that is not behaving.
//
// Thread Safety: All methods are safe for concurrent use.
type FrameRecorder struct {
	db     *sql.DB
	logger Logger

	upsertStmt *sql.Stmt
	stmtMu     sync.Mutex

	closed bool
	mu     sync.RWMutex
}

// FrameRecord is one row of rf_frames.
type FrameRecord struct {
	DriverID    string      `json:"driver_id"`
	Address     string      `json:"address"`
	Unit        string      `json:"unit"`
	DeviceID    string      `json:"device_id,omitempty"`
	State       frame.State `json:"state"`
	Direction   string      `json:"direction"`
	Count       int64       `json:"count"`
	LastPayload string      `json:"last_payload"`
	FirstSeen   time.Time   `json:"first_seen"`
	LastSeen    time.Time   `json:"last_seen"`
}

// NewFrameRecorder creates a recorder. The database must have the rf_frames
// table.
func NewFrameRecorder(db *sql.DB) *FrameRecorder {
	return &FrameRecorder{db: db}
}

// SetLogger sets the logger for the recorder.
func (r *FrameRecorder) SetLogger(logger Logger) {
	r.logger = logger
}

// Start prepares the recorder. Must be called before RecordFrame.
func (r *FrameRecorder) Start() error {
	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	if r.upsertStmt != nil {
		return nil
	}

	stmt, err := r.db.Prepare(`
		INSERT INTO rf_frames (driver_id, address, unit, device_id, state, direction,
			count, last_payload, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(driver_id, address, unit) DO UPDATE SET
			device_id = excluded.device_id,
			state = excluded.state,
			direction = excluded.direction,
			count = count + 1,
			last_payload = excluded.last_payload,
			last_seen = excluded.last_seen
	`)
	if err != nil {
		return fmt.Errorf("preparing frame upsert statement: %w", err)
	}

	r.upsertStmt = stmt
	r.log("frame recorder started")
	return nil
}

// Stop closes the recorder and releases the prepared statement.
func (r *FrameRecorder) Stop() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()
	if r.upsertStmt != nil {
		r.upsertStmt.Close()
		r.upsertStmt = nil
	}

	r.log("frame recorder stopped")
}

// RecordFrame upserts a frame. deviceID is empty for frames that matched no
// paired device. It reports whether the frame was written.
func (r *FrameRecorder) RecordFrame(driverID, direction, deviceID string, f frame.Frame) bool {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return false
	}
	r.mu.RUnlock()

	r.stmtMu.Lock()
	stmt := r.upsertStmt
	r.stmtMu.Unlock()
	if stmt == nil {
		return false
	}

	now := time.Now().UTC().Format(seenLayout)
	if _, err := stmt.Exec(driverID, f.Address, f.Unit, deviceID, int(f.State), direction,
		f.Payload, now, now); err != nil {
		r.logError("recording frame", err)
		return false
	}
	return true
}

// Frames returns recorded frames, most recently seen first. An empty driverID
// returns every driver's frames.
func (r *FrameRecorder) Frames(ctx context.Context, driverID string, limit int) ([]FrameRecord, error) {
	if limit <= 0 {
		limit = defaultFrameLimit
	}

	query := `
		SELECT driver_id, address, unit, device_id, state, direction, count,
			last_payload, first_seen, last_seen
		FROM rf_frames`
	args := []any{}
	if driverID != "" {
		query += ` WHERE driver_id = ?`
		args = append(args, driverID)
	}
	query += ` ORDER BY last_seen DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying frames: %w", err)
	}
	defer rows.Close()

	var records []FrameRecord
	for rows.Next() {
		var rec FrameRecord
		var state int
		var firstSeen, lastSeen string
		if err := rows.Scan(&rec.DriverID, &rec.Address, &rec.Unit, &rec.DeviceID, &state,
			&rec.Direction, &rec.Count, &rec.LastPayload, &firstSeen, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning frame row: %w", err)
		}
		rec.State = frame.State(state)
		rec.FirstSeen, _ = time.Parse(seenLayout, firstSeen) //nolint:errcheck // Format is controlled
		rec.LastSeen, _ = time.Parse(seenLayout, lastSeen)   //nolint:errcheck // Format is controlled
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Count returns the number of distinct (driver, address, unit) rows.
func (r *FrameRecorder) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rf_frames`).Scan(&count)
	return count, err
}

func (r *FrameRecorder) log(msg string, keysAndValues ...any) {
	if r.logger != nil {
		r.logger.Info(msg, keysAndValues...)
	}
}

func (r *FrameRecorder) logError(msg string, err error) {
	if r.logger != nil {
		r.logger.Error(msg, "error", err)
	}
}
