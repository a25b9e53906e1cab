// Package history persists completed analyses so a clinician can revisit
// the symptoms submitted and the diagnoses returned.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/phenodx-server/internal/domain"
)

// Store defines the interface for analysis history storage.
type Store interface {
	// Save stores a new entry, assigning its id and timestamp when unset.
	Save(ctx context.Context, entry *domain.HistoryEntry) error

	// Get retrieves an entry by id. Missing entries yield domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.HistoryEntry, error)

	// List returns entries of a session newest first. An empty sessionID lists every session.
	List(ctx context.Context, sessionID string, limit, offset int) ([]*domain.HistoryEntry, error)

	// Count returns the number of entries of a session, or of all sessions.
	Count(ctx context.Context, sessionID string) (int64, error)

	// Delete removes an entry by id.
	Delete(ctx context.Context, id string) error

	// Clear removes every entry of a session and returns how many were removed.
	Clear(ctx context.Context, sessionID string) (int64, error)

	// ExportJSON writes all entries to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON reads entries from reader, skipping ids already stored.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// Export represents the JSON export format.
type Export struct {
	Version    string                 `json:"version"`
	ExportedAt time.Time              `json:"exported_at"`
	Count      int                    `json:"count"`
	Entries    []*domain.HistoryEntry `json:"entries"`
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// prepare validates entry and fills in its id and timestamp.
func prepare(entry *domain.HistoryEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Diagnoses == nil {
		entry.Diagnoses = []domain.Diagnosis{}
	}
	return nil
}

func encodePayload(entry *domain.HistoryEntry) (symptoms, diagnoses []byte, err error) {
	symptoms, err = json.Marshal(entry.Symptoms)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode symptoms: %w", err)
	}
	diagnoses, err = json.Marshal(entry.Diagnoses)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode diagnoses: %w", err)
	}
	return symptoms, diagnoses, nil
}

func decodePayload(entry *domain.HistoryEntry, symptoms, diagnoses []byte) error {
	if err := json.Unmarshal(symptoms, &entry.Symptoms); err != nil {
		return fmt.Errorf("failed to decode symptoms: %w", err)
	}
	if err := json.Unmarshal(diagnoses, &entry.Diagnoses); err != nil {
		return fmt.Errorf("failed to decode diagnoses: %w", err)
	}
	return nil
}

func writeExport(writer io.Writer, entries []*domain.HistoryEntry) error {
	export := &Export{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Count:      len(entries),
		Entries:    entries,
	}
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

func importEntries(ctx context.Context, s Store, reader io.Reader) (imported int, skipped int, err error) {
	var export Export
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, &domain.ImportFormatError{Format: "json", Reason: err.Error()}
	}

	for _, entry := range export.Entries {
		if entry.ID != "" {
			if _, err := s.Get(ctx, entry.ID); err == nil {
				skipped++
				continue
			}
		}
		if err := s.Save(ctx, entry); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}
	return imported, skipped, nil
}
