package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/domain"
)

// HistoryRepository records processed natural-language queries
type HistoryRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewHistoryRepository creates a new query history repository
func NewHistoryRepository(db *pgxpool.Pool, logger *logrus.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:  db,
		log: logger,
	}
}

// Record inserts a query record. A missing ID is generated.
func (r *HistoryRepository) Record(ctx context.Context, record *domain.QueryRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	query := `
		INSERT INTO query_history (
			id, project_id, query_text, interpretation, suggested_filters
		) VALUES (
			$1, NULLIF($2, ''), $3, $4, $5
		)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		record.ID,
		record.ProjectID,
		record.QueryText,
		record.Interpretation,
		record.SuggestedFilters,
	).Scan(&record.CreatedAt)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"record_id":  record.ID,
			"project_id": record.ProjectID,
			"error":      err,
		}).Error("Failed to record query")
		return fmt.Errorf("recording query: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"record_id":         record.ID,
		"suggested_filters": record.SuggestedFilters,
	}).Info("Query recorded successfully")

	return nil
}

// GetByID retrieves a query record by its ID
func (r *HistoryRepository) GetByID(ctx context.Context, id string) (*domain.QueryRecord, error) {
	query := `
		SELECT id, COALESCE(project_id::text, ''), query_text, interpretation,
			   suggested_filters, created_at
		FROM query_history
		WHERE id = $1`

	var record domain.QueryRecord
	err := r.db.QueryRow(ctx, query, id).Scan(
		&record.ID,
		&record.ProjectID,
		&record.QueryText,
		&record.Interpretation,
		&record.SuggestedFilters,
		&record.CreatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("query record not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"record_id": id,
			"error":     err,
		}).Error("Failed to get query record")
		return nil, fmt.Errorf("getting query record: %w", err)
	}

	return &record, nil
}

// ListByProject retrieves the query history for a project, newest first
func (r *HistoryRepository) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*domain.QueryRecord, error) {
	query := `
		SELECT id, COALESCE(project_id::text, ''), query_text, interpretation,
			   suggested_filters, created_at
		FROM query_history
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, projectID, limit, offset)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"project_id": projectID,
			"error":      err,
		}).Error("Failed to list query history")
		return nil, fmt.Errorf("listing query history: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListRecent retrieves the most recent query records across all projects
func (r *HistoryRepository) ListRecent(ctx context.Context, limit int) ([]*domain.QueryRecord, error) {
	query := `
		SELECT id, COALESCE(project_id::text, ''), query_text, interpretation,
			   suggested_filters, created_at
		FROM query_history
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		r.log.WithError(err).Error("Failed to list recent queries")
		return nil, fmt.Errorf("listing recent queries: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]*domain.QueryRecord, error) {
	var records []*domain.QueryRecord
	for rows.Next() {
		var record domain.QueryRecord
		err := rows.Scan(
			&record.ID,
			&record.ProjectID,
			&record.QueryText,
			&record.Interpretation,
			&record.SuggestedFilters,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning query record row: %w", err)
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query record rows: %w", err)
	}

	return records, nil
}
