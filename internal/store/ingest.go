package store

import (
	"database/sql"
	"time"
)

// IngestRun records one FTP sync for auditing.
type IngestRun struct {
	ID            int64          `db:"id"`
	StartedAt     string         `db:"started_at"`
	FinishedAt    sql.NullString `db:"finished_at"`
	Source        string         `db:"source"`
	Target        string         `db:"target"`
	RecordsListed sql.NullInt64  `db:"records_listed"`
	RecordsStored sql.NullInt64  `db:"records_stored"`
	Success       bool           `db:"success"`
	ErrorMessage  sql.NullString `db:"error_message"`
}

// StartIngestRun creates a run record and returns its id.
func (s *Store) StartIngestRun(source, target string) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO ingest_runs (started_at, source, target, success)
		VALUES (?, ?, ?, FALSE)
	`, time.Now().UTC().Format(time.RFC3339), source, target)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// CompleteIngestRun stores the outcome of a run. A nil runErr marks success.
func (s *Store) CompleteIngestRun(id int64, listed, stored int, runErr error) error {
	var msg sql.NullString
	if runErr != nil {
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := s.db.Exec(`
		UPDATE ingest_runs SET
			finished_at = ?,
			records_listed = ?,
			records_stored = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, time.Now().UTC().Format(time.RFC3339), listed, stored, runErr == nil, msg, id)
	return err
}

// RecentIngestRuns returns the latest runs, newest first.
func (s *Store) RecentIngestRuns(limit int) ([]IngestRun, error) {
	var runs []IngestRun
	err := s.db.Select(&runs, `
		SELECT id, started_at, finished_at, source, target, records_listed, records_stored, success, error_message
		FROM ingest_runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	return runs, err
}
