package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"

	"github.com/phenodx-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db         *sql.DB
	maxEntries int
}

// NewPostgresStore creates a new PostgreSQL history store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB, maxEntries int) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db, maxEntries: maxEntries}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL history store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string, maxEntries int) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db, maxEntries)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func scanPostgresEntry(s scanner) (*domain.HistoryEntry, error) {
	entry := &domain.HistoryEntry{}
	var symptoms, diagnoses []byte

	if err := s.Scan(&entry.ID, &entry.SessionID, &entry.Timestamp, &symptoms, &diagnoses); err != nil {
		return nil, err
	}
	entry.Timestamp = entry.Timestamp.UTC()
	if err := decodePayload(entry, symptoms, diagnoses); err != nil {
		return nil, err
	}
	return entry, nil
}

// Save stores a new entry and trims the session to maxEntries.
func (s *PostgresStore) Save(ctx context.Context, entry *domain.HistoryEntry) error {
	if err := prepare(entry); err != nil {
		return err
	}
	symptoms, diagnoses, err := encodePayload(entry)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analysis_history (id, session_id, recorded_at, symptoms, diagnoses)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.ID, entry.SessionID, entry.Timestamp, symptoms, diagnoses)
	if err != nil {
		return fmt.Errorf("failed to save history entry: %w", err)
	}

	if s.maxEntries > 0 {
		_, err = s.db.ExecContext(ctx, `
			DELETE FROM analysis_history
			WHERE session_id = $1 AND id NOT IN (
				SELECT id FROM analysis_history
				WHERE session_id = $1
				ORDER BY recorded_at DESC
				LIMIT $2
			)
		`, entry.SessionID, s.maxEntries)
		if err != nil {
			return fmt.Errorf("failed to trim history: %w", err)
		}
	}
	return nil
}

// Get retrieves an entry by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.HistoryEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, recorded_at, symptoms, diagnoses
		FROM analysis_history
		WHERE id = $1
	`, id)

	entry, err := scanPostgresEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("history entry %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history entry: %w", err)
	}
	return entry, nil
}

// List returns entries newest first with pagination.
func (s *PostgresStore) List(ctx context.Context, sessionID string, limit, offset int) ([]*domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, recorded_at, symptoms, diagnoses
		FROM analysis_history
		WHERE ($1 = '' OR session_id = $1)
		ORDER BY recorded_at DESC
		LIMIT $2 OFFSET $3
	`, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.HistoryEntry, 0)
	for rows.Next() {
		entry, err := scanPostgresEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// Count returns the number of entries.
func (s *PostgresStore) Count(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM analysis_history WHERE ($1 = '' OR session_id = $1)", sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return count, nil
}

// Delete removes an entry by id.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM analysis_history WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete history entry: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("history entry %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Clear removes every entry of a session.
func (s *PostgresStore) Clear(ctx context.Context, sessionID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM analysis_history WHERE session_id = $1", sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}
	return result.RowsAffected()
}

// ExportJSON exports all entries to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, "", maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}
	return writeExport(writer, all)
}

// ImportJSON imports entries from a JSON reader.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importEntries(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
