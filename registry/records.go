package registry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// LaunchRecord is one observed Launcher lifecycle transition, per SPEC_FULL
// §3: "launcher_id, kind (local/mpi/ssh/batch/winhpc/container), state,
// start_data (JSON), stop_data (JSON, nullable), occurred_at".
type LaunchRecord struct {
	ID         int64
	LauncherID string
	Kind       string
	State      string
	StartData  map[string]any
	StopData   map[string]any
	OccurredAt time.Time
}

// RecordStart appends a row for a launcher's before->running transition.
// StopData is absent at this point, so the row is written with a NULL
// stop_data column.
func (r *Registry) RecordStart(launcherID, kind string, startData map[string]any) error {
	startJSON, err := json.Marshal(startData)
	if err != nil {
		return fmt.Errorf("failed to marshal start_data for launcher %q: %w", launcherID, err)
	}

	query := `
		INSERT INTO launch_records (launcher_id, kind, state, start_data, occurred_at)
		VALUES (?, ?, 'running', ?, ?)
	`
	_, err = r.connection.Exec(query, launcherID, kind, string(startJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record launch start for %q: %w", launcherID, err)
	}
	return nil
}

// RecordStop appends a row for a launcher's running->after transition.
func (r *Registry) RecordStop(launcherID, kind string, stopData map[string]any) error {
	stopJSON, err := json.Marshal(stopData)
	if err != nil {
		return fmt.Errorf("failed to marshal stop_data for launcher %q: %w", launcherID, err)
	}

	query := `
		INSERT INTO launch_records (launcher_id, kind, state, stop_data, occurred_at)
		VALUES (?, ?, 'after', ?, ?)
	`
	_, err = r.connection.Exec(query, launcherID, kind, string(stopJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record launch stop for %q: %w", launcherID, err)
	}
	return nil
}

// ListRecent returns the most recent records, newest first, optionally
// filtered by kind (an empty kind returns every row). limit caps the result
// set; callers serving an HTTP endpoint should always pass a bounded value.
func (r *Registry) ListRecent(kind string, limit int) ([]*LaunchRecord, error) {
	var rows *sql.Rows
	var err error

	if kind == "" {
		rows, err = r.connection.Query(`
			SELECT id, launcher_id, kind, state, start_data, stop_data, occurred_at
			FROM launch_records ORDER BY occurred_at DESC, id DESC LIMIT ?
		`, limit)
	} else {
		rows, err = r.connection.Query(`
			SELECT id, launcher_id, kind, state, start_data, stop_data, occurred_at
			FROM launch_records WHERE kind = ? ORDER BY occurred_at DESC, id DESC LIMIT ?
		`, kind, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list launch records: %w", err)
	}
	defer rows.Close()

	var records []*LaunchRecord
	for rows.Next() {
		record, err := scanLaunchRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan launch record row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating launch record rows: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLaunchRecord(row scanner) (*LaunchRecord, error) {
	var (
		rec       LaunchRecord
		startJSON sql.NullString
		stopJSON  sql.NullString
	)

	if err := row.Scan(&rec.ID, &rec.LauncherID, &rec.Kind, &rec.State, &startJSON, &stopJSON, &rec.OccurredAt); err != nil {
		return nil, err
	}

	if startJSON.Valid && startJSON.String != "" {
		if err := json.Unmarshal([]byte(startJSON.String), &rec.StartData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal start_data: %w", err)
		}
	}
	if stopJSON.Valid && stopJSON.String != "" {
		if err := json.Unmarshal([]byte(stopJSON.String), &rec.StopData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stop_data: %w", err)
		}
	}

	return &rec, nil
}
