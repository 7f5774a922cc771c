// Package cohortstore provides persistence for saved cohort snapshots.
// A saved cohort captures a session's filter list and patient count so a
// clinician can restore or share a cohort definition later.
package cohortstore

import (
	"context"
	"io"
	"time"

	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/domain"
)

// SavedCohort is one persisted cohort definition. Filters is stored as a
// JSON document so the full mapping detail survives the round trip.
type SavedCohort struct {
	ID           int64            `json:"id,omitempty"`
	Name         string           `json:"name"`
	SessionID    string           `json:"session_id,omitempty"`
	Description  string           `json:"description,omitempty"`
	PatientCount int              `json:"patient_count"`
	Filters      []*domain.Filter `json:"filters"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Store defines the interface for saved cohort storage operations.
type Store interface {
	// Save stores or updates a saved cohort. Names are unique; saving an
	// existing name updates it in place.
	Save(ctx context.Context, cohort *SavedCohort) error

	// Get retrieves a saved cohort by name. Returns nil when absent.
	Get(ctx context.Context, name string) (*SavedCohort, error)

	// List returns saved cohorts with pagination, newest first.
	List(ctx context.Context, limit, offset int) ([]*SavedCohort, error)

	// Count returns the total number of saved cohorts.
	Count(ctx context.Context) (int64, error)

	// Delete removes a saved cohort by ID.
	Delete(ctx context.Context, id int64) error

	// ExportJSON exports all saved cohorts to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON imports saved cohorts from a JSON reader.
	// Returns the number of imported and skipped entries.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// CohortExport represents the JSON export format.
type CohortExport struct {
	Version    string         `json:"version"`
	ExportedAt time.Time      `json:"exported_at"`
	Count      int            `json:"count"`
	Cohorts    []*SavedCohort `json:"cohorts"`
}
