package storage

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"seedpipe/internal/etl"
)

// RunStore implements persistence for pipeline run logs.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// CreateRunLog inserts log and assigns it a fresh ID.
func (s *RunStore) CreateRunLog(log *etl.RunLog) error {
	log.ID = uuid.New().String()
	inputs, _ := json.Marshal(log.Inputs)

	_, err := s.db.conn.Exec(
		`INSERT INTO run_logs (id, kind, inputs_json, output, started_at, finished_at, status, rows_read, rows_written, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, string(log.Kind), string(inputs), log.Output, log.StartedAt, log.FinishedAt,
		log.Status, log.RowsRead, log.RowsWritten, log.Error,
	)
	if err != nil {
		return fmt.Errorf("insert run log: %w", err)
	}
	return nil
}

// ListRunLogs returns the most recent logs, newest first.
// An empty kind lists every kind.
func (s *RunStore) ListRunLogs(kind etl.RunKind, limit int) ([]etl.RunLog, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, kind, inputs_json, output, started_at, finished_at, status, rows_read, rows_written, error
		 FROM run_logs WHERE (? = '' OR kind = ?) ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		string(kind), string(kind), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []etl.RunLog
	for rows.Next() {
		var l etl.RunLog
		var kindStr, inputs string
		if err := rows.Scan(&l.ID, &kindStr, &inputs, &l.Output, &l.StartedAt, &l.FinishedAt,
			&l.Status, &l.RowsRead, &l.RowsWritten, &l.Error); err != nil {
			return nil, err
		}
		l.Kind = etl.RunKind(kindStr)
		json.Unmarshal([]byte(inputs), &l.Inputs)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
