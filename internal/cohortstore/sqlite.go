package cohortstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite cohort store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
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

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanCohort scans a row into a SavedCohort, decoding the filters document.
func scanCohort(s scanner) (*SavedCohort, error) {
	cohort := &SavedCohort{}
	var filtersJSON string

	err := s.Scan(
		&cohort.ID, &cohort.Name, &cohort.SessionID, &cohort.Description,
		&cohort.PatientCount, &filtersJSON, &cohort.CreatedAt, &cohort.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if filtersJSON != "" {
		if err := json.Unmarshal([]byte(filtersJSON), &cohort.Filters); err != nil {
			return nil, fmt.Errorf("failed to decode filters: %w", err)
		}
	}
	return cohort, nil
}

func encodeFilters(filters []*domain.Filter) (string, error) {
	if filters == nil {
		filters = []*domain.Filter{}
	}
	data, err := json.Marshal(filters)
	if err != nil {
		return "", fmt.Errorf("failed to encode filters: %w", err)
	}
	return string(data), nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS saved_cohorts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		session_id TEXT DEFAULT '',
		description TEXT DEFAULT '',
		patient_count INTEGER NOT NULL DEFAULT 0,
		filters TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_saved_cohorts_session ON saved_cohorts(session_id);
	CREATE INDEX IF NOT EXISTS idx_saved_cohorts_created ON saved_cohorts(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Save stores or updates a saved cohort by name.
func (s *SQLiteStore) Save(ctx context.Context, cohort *SavedCohort) error {
	now := time.Now()

	filtersJSON, err := encodeFilters(cohort.Filters)
	if err != nil {
		return err
	}

	// Check if exists
	var existingID int64
	err = s.db.QueryRowContext(ctx,
		"SELECT id FROM saved_cohorts WHERE name = ?",
		cohort.Name,
	).Scan(&existingID)

	if err == nil {
		// Update existing
		cohort.ID = existingID
		cohort.UpdatedAt = now

		_, err = s.db.ExecContext(ctx, `
			UPDATE saved_cohorts SET
				session_id = ?,
				description = ?,
				patient_count = ?,
				filters = ?,
				updated_at = ?
			WHERE id = ?
		`,
			cohort.SessionID,
			cohort.Description,
			cohort.PatientCount,
			filtersJSON,
			now,
			existingID,
		)
		return err
	}

	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check existing: %w", err)
	}

	// Insert new
	cohort.CreatedAt = now
	cohort.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO saved_cohorts (
			name, session_id, description, patient_count, filters,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		cohort.Name,
		cohort.SessionID,
		cohort.Description,
		cohort.PatientCount,
		filtersJSON,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	cohort.ID = id

	return nil
}

// Get retrieves a saved cohort by name.
func (s *SQLiteStore) Get(ctx context.Context, name string) (*SavedCohort, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, session_id, description, patient_count, filters,
			created_at, updated_at
		FROM saved_cohorts
		WHERE name = ?
		LIMIT 1
	`, name)

	cohort, err := scanCohort(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return cohort, nil
}

// List returns saved cohorts with pagination, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*SavedCohort, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, session_id, description, patient_count, filters,
			created_at, updated_at
		FROM saved_cohorts
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*SavedCohort
	for rows.Next() {
		cohort, err := scanCohort(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, cohort)
	}
	return result, rows.Err()
}

// Count returns the total number of saved cohorts.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM saved_cohorts").Scan(&count)
	return count, err
}

// Delete removes a saved cohort by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM saved_cohorts WHERE id = ?", id)
	return err
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// ExportJSON exports all saved cohorts to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list cohorts: %w", err)
	}

	export := &CohortExport{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Count:      len(all),
		Cohorts:    all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// ImportJSON imports saved cohorts from a JSON reader. Cohorts whose name
// already exists are skipped rather than overwritten.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	var export CohortExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, cohort := range export.Cohorts {
		existing, err := s.Get(ctx, cohort.Name)
		if err != nil {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}

		if existing != nil {
			skipped++
			continue
		}

		if err := s.Save(ctx, cohort); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
