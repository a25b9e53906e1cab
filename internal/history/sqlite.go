package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/phenodx-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db         *sql.DB
	dbPath     string
	maxEntries int
}

// NewSQLiteStore creates a new SQLite history store, creating the database
// file and schema if they don't exist. maxEntries > 0 caps the entries kept
// per session.
func NewSQLiteStore(dbPath string, maxEntries int) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath, maxEntries: maxEntries}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS analysis_history (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		recorded_at INTEGER NOT NULL,
		symptoms TEXT NOT NULL,
		diagnoses TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_session ON analysis_history(session_id, recorded_at);
	`
	_, err := db.Exec(schema)
	return err
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteEntry(s scanner) (*domain.HistoryEntry, error) {
	entry := &domain.HistoryEntry{}
	var recordedAt int64
	var symptoms, diagnoses string

	if err := s.Scan(&entry.ID, &entry.SessionID, &recordedAt, &symptoms, &diagnoses); err != nil {
		return nil, err
	}
	entry.Timestamp = time.Unix(0, recordedAt).UTC()
	if err := decodePayload(entry, []byte(symptoms), []byte(diagnoses)); err != nil {
		return nil, err
	}
	return entry, nil
}

// Save stores a new entry and trims the session to maxEntries.
func (s *SQLiteStore) Save(ctx context.Context, entry *domain.HistoryEntry) error {
	if err := prepare(entry); err != nil {
		return err
	}
	symptoms, diagnoses, err := encodePayload(entry)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analysis_history (id, session_id, recorded_at, symptoms, diagnoses)
		VALUES (?, ?, ?, ?, ?)
	`, entry.ID, entry.SessionID, entry.Timestamp.UnixNano(), string(symptoms), string(diagnoses))
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	if s.maxEntries > 0 {
		_, err = s.db.ExecContext(ctx, `
			DELETE FROM analysis_history
			WHERE session_id = ? AND id NOT IN (
				SELECT id FROM analysis_history
				WHERE session_id = ?
				ORDER BY recorded_at DESC
				LIMIT ?
			)
		`, entry.SessionID, entry.SessionID, s.maxEntries)
		if err != nil {
			return fmt.Errorf("failed to trim history: %w", err)
		}
	}
	return nil
}

// Get retrieves an entry by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.HistoryEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, recorded_at, symptoms, diagnoses
		FROM analysis_history
		WHERE id = ?
	`, id)

	entry, err := scanSQLiteEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("history entry %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return entry, nil
}

// List returns entries newest first with pagination.
func (s *SQLiteStore) List(ctx context.Context, sessionID string, limit, offset int) ([]*domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, recorded_at, symptoms, diagnoses
		FROM analysis_history
		WHERE (? = '' OR session_id = ?)
		ORDER BY recorded_at DESC
		LIMIT ? OFFSET ?
	`, sessionID, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.HistoryEntry, 0)
	for rows.Next() {
		entry, err := scanSQLiteEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// Count returns the number of entries.
func (s *SQLiteStore) Count(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM analysis_history WHERE (? = '' OR session_id = ?)",
		sessionID, sessionID,
	).Scan(&count)
	return count, err
}

// Delete removes an entry by id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM analysis_history WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("history entry %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Clear removes every entry of a session.
func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM analysis_history WHERE session_id = ?", sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear: %w", err)
	}
	return result.RowsAffected()
}

// ExportJSON exports all entries to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, "", maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}
	return writeExport(writer, all)
}

// ImportJSON imports entries from a JSON reader.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importEntries(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
