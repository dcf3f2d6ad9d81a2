// Package history persists the audit trail of cloud operations in
// SQLite so past uploads, downloads, and failures can be inspected
// after the fact.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"cloudsave/internal/cloudsave"
	"cloudsave/internal/history/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements cloudsave.OperationRecorder on a SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the database at path and applies
// pending migrations. path can be ":memory:" for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating history database: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection with the
// PRAGMAs the store relies on.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// RecordStart persists a new record in its starting state.
func (s *SQLiteStore) RecordStart(rec *cloudsave.OperationRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO operations (
			id, game_id, kind, status, object_key, size_bytes,
			checksum, error_message, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.GameID, string(rec.Kind), string(rec.Status),
		rec.ObjectKey, rec.SizeBytes, rec.Checksum, rec.Error, rec.StartedAt)
	if err != nil {
		return fmt.Errorf("recording operation start: %w", err)
	}
	return nil
}

// RecordFinish marks a record terminal.
func (s *SQLiteStore) RecordFinish(id string, status cloudsave.OperationStatus, errMsg string, completedAt time.Time) error {
	res, err := s.db.Exec(`
		UPDATE operations
		SET status = ?, error_message = ?, completed_at = ?
		WHERE id = ?`,
		string(status), errMsg, completedAt, id)
	if err != nil {
		return fmt.Errorf("recording operation finish: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("recording operation finish: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no operation with id %s", id)
	}
	return nil
}

// ListOperations returns the most recent operations, newest first.
// gameID narrows the listing to one game when non-empty.
func (s *SQLiteStore) ListOperations(gameID string, limit int) ([]*cloudsave.OperationRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if gameID != "" {
		rows, err = s.db.Query(`
			SELECT id, game_id, kind, status, object_key, size_bytes,
			       checksum, error_message, started_at, completed_at
			FROM operations
			WHERE game_id = ?
			ORDER BY started_at DESC
			LIMIT ?`, gameID, limit)
	} else {
		rows, err = s.db.Query(`
			SELECT id, game_id, kind, status, object_key, size_bytes,
			       checksum, error_message, started_at, completed_at
			FROM operations
			ORDER BY started_at DESC
			LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var records []*cloudsave.OperationRecord
	for rows.Next() {
		var rec cloudsave.OperationRecord
		var kind, status string
		var completedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.GameID, &kind, &status,
			&rec.ObjectKey, &rec.SizeBytes, &rec.Checksum, &rec.Error,
			&rec.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scanning operation row: %w", err)
		}
		rec.Kind = cloudsave.OperationKind(kind)
		rec.Status = cloudsave.OperationStatus(status)
		if completedAt.Valid {
			rec.CompletedAt = completedAt.Time
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return records, nil
}

// Path returns the database file path (or ":memory:" for in-memory stores).
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteStore implements the recorder interface.
var _ cloudsave.OperationRecorder = (*SQLiteStore)(nil)
