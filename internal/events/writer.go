// Package events persists notifications into the SQLite journal. The
// journal is observational history only: fleet and mission state stay
// memory-resident and are rebuilt from scratch on restart.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"fleetsim/internal/notify"
)

// Record is one journal row.
type Record struct {
	ID        int64          `json:"id"`
	TS        string         `json:"ts" format:"date-time"`
	Type      string         `json:"type"`
	RobotID   string         `json:"robot_id,omitempty"`
	MissionID string         `json:"mission_id,omitempty"`
	Status    string         `json:"status,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type Writer struct {
	DB *sql.DB
}

// Append inserts one notification into the journal.
func (w Writer) Append(ctx context.Context, evt notify.Event) error {
	payload := evt.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = w.DB.ExecContext(ctx,
		`INSERT INTO events(ts,type,robot_id,mission_id,status,payload_json) VALUES (?,?,?,?,?,?)`,
		evt.TS.UTC().Format(time.RFC3339), evt.Type,
		nullable(evt.RobotID), nullable(evt.MissionID), nullable(evt.Status), string(data))
	return err
}

// Filters narrows journal queries.
type Filters struct {
	Type      string
	RobotID   string
	MissionID string
}

// Latest returns up to n newest records matching the filters, newest first.
func (w Writer) Latest(ctx context.Context, n int, f Filters) ([]Record, error) {
	if n <= 0 {
		n = 20
	}
	query := `SELECT id,ts,type,robot_id,mission_id,status,payload_json FROM events WHERE 1=1`
	var args []any
	if f.Type != "" {
		query += ` AND type=?`
		args = append(args, f.Type)
	}
	if f.RobotID != "" {
		query += ` AND robot_id=?`
		args = append(args, f.RobotID)
	}
	if f.MissionID != "" {
		query += ` AND mission_id=?`
		args = append(args, f.MissionID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)
	return w.scan(ctx, query, args...)
}

// After returns up to limit records with id greater than cursor, oldest
// first. Used by the webhook dispatcher.
func (w Writer) After(ctx context.Context, limit int, cursor int64) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	return w.scan(ctx,
		`SELECT id,ts,type,robot_id,mission_id,status,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`,
		cursor, limit)
}

// LastID returns the highest journal id, or 0 when the journal is empty.
func (w Writer) LastID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := w.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func (w Writer) scan(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := w.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		var robotID, missionID, status sql.NullString
		var payload string
		if err := rows.Scan(&rec.ID, &rec.TS, &rec.Type, &robotID, &missionID, &status, &payload); err != nil {
			return nil, err
		}
		rec.RobotID = robotID.String
		rec.MissionID = missionID.String
		rec.Status = status.String
		if payload != "" && payload != "{}" {
			_ = json.Unmarshal([]byte(payload), &rec.Payload)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
