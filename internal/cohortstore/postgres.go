package cohortstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL cohort store.
// It expects the database and schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL cohort store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Save stores or updates a saved cohort by name.
func (s *PostgresStore) Save(ctx context.Context, cohort *SavedCohort) error {
	now := time.Now()

	filtersJSON, err := encodeFilters(cohort.Filters)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO saved_cohorts (
			name, session_id, description, patient_count, filters,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			description = EXCLUDED.description,
			patient_count = EXCLUDED.patient_count,
			filters = EXCLUDED.filters,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err = s.db.QueryRowContext(ctx, query,
		cohort.Name,
		cohort.SessionID,
		cohort.Description,
		cohort.PatientCount,
		filtersJSON,
		now,
		now,
	).Scan(&cohort.ID, &cohort.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save cohort: %w", err)
	}

	cohort.UpdatedAt = now
	return nil
}

// Get retrieves a saved cohort by name.
func (s *PostgresStore) Get(ctx context.Context, name string) (*SavedCohort, error) {
	query := `
		SELECT id, name, session_id, description, patient_count, filters,
			created_at, updated_at
		FROM saved_cohorts
		WHERE name = $1
		LIMIT 1
	`

	cohort, err := scanCohort(s.db.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cohort: %w", err)
	}
	return cohort, nil
}

// List returns saved cohorts with pagination, newest first.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*SavedCohort, error) {
	query := `
		SELECT id, name, session_id, description, patient_count, filters,
			created_at, updated_at
		FROM saved_cohorts
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list cohorts: %w", err)
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
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM saved_cohorts").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count cohorts: %w", err)
	}
	return count, nil
}

// Delete removes a saved cohort by ID.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM saved_cohorts WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete cohort: %w", err)
	}
	return nil
}

// pgMaxExportLimit is the maximum number of entries to export at once.
const pgMaxExportLimit = 1000000

// ExportJSON exports all saved cohorts to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, pgMaxExportLimit, 0)
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
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
