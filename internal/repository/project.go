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

// ProjectRepository handles cohort project persistence
type ProjectRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *pgxpool.Pool, logger *logrus.Logger) *ProjectRepository {
	return &ProjectRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts a new cohort project. A missing ID is generated.
func (r *ProjectRepository) Create(ctx context.Context, project *domain.CohortProject) error {
	if project.ID == "" {
		project.ID = uuid.New().String()
	}

	query := `
		INSERT INTO cohort_projects (
			id, name, description, patient_count
		) VALUES (
			$1, $2, $3, $4
		)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		project.ID,
		project.Name,
		project.Description,
		project.PatientCount,
	).Scan(&project.CreatedAt, &project.UpdatedAt)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"project_id": project.ID,
			"name":       project.Name,
			"error":      err,
		}).Error("Failed to create cohort project")
		return fmt.Errorf("creating cohort project: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"project_id": project.ID,
		"name":       project.Name,
	}).Info("Cohort project created successfully")

	return nil
}

// GetByID retrieves a cohort project by its ID
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*domain.CohortProject, error) {
	query := `
		SELECT id, name, description, patient_count, created_at, updated_at
		FROM cohort_projects
		WHERE id = $1`

	var project domain.CohortProject
	err := r.db.QueryRow(ctx, query, id).Scan(
		&project.ID,
		&project.Name,
		&project.Description,
		&project.PatientCount,
		&project.CreatedAt,
		&project.UpdatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("cohort project not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"project_id": id,
			"error":      err,
		}).Error("Failed to get cohort project by ID")
		return nil, fmt.Errorf("getting cohort project by ID: %w", err)
	}

	return &project, nil
}

// List retrieves cohort projects with pagination, newest first
func (r *ProjectRepository) List(ctx context.Context, limit, offset int) ([]*domain.CohortProject, error) {
	query := `
		SELECT id, name, description, patient_count, created_at, updated_at
		FROM cohort_projects
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		r.log.WithError(err).Error("Failed to list cohort projects")
		return nil, fmt.Errorf("listing cohort projects: %w", err)
	}
	defer rows.Close()

	var projects []*domain.CohortProject
	for rows.Next() {
		var project domain.CohortProject
		err := rows.Scan(
			&project.ID,
			&project.Name,
			&project.Description,
			&project.PatientCount,
			&project.CreatedAt,
			&project.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning cohort project row: %w", err)
		}
		projects = append(projects, &project)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cohort project rows: %w", err)
	}

	return projects, nil
}

// Update updates an existing cohort project
func (r *ProjectRepository) Update(ctx context.Context, project *domain.CohortProject) error {
	query := `
		UPDATE cohort_projects
		SET name = $2, description = $3, patient_count = $4, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query,
		project.ID,
		project.Name,
		project.Description,
		project.PatientCount,
	)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"project_id": project.ID,
			"error":      err,
		}).Error("Failed to update cohort project")
		return fmt.Errorf("updating cohort project: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("cohort project not found: %w", domain.ErrNotFound)
	}

	r.log.WithFields(logrus.Fields{
		"project_id": project.ID,
		"name":       project.Name,
	}).Info("Cohort project updated successfully")

	return nil
}

// Delete removes a cohort project and its query history
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM cohort_projects WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"project_id": id,
			"error":      err,
		}).Error("Failed to delete cohort project")
		return fmt.Errorf("deleting cohort project: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("cohort project not found: %w", domain.ErrNotFound)
	}

	r.log.WithField("project_id", id).Info("Cohort project deleted successfully")

	return nil
}
