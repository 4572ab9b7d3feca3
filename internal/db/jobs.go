package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/enzocage/audiobook-forge/internal/models"
	"github.com/google/uuid"
)

func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (
			id, project_id, chunk_id, type, status, attempts
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	return db.QueryRowContext(
		ctx, query,
		job.ID, job.ProjectID, job.ChunkID, job.Type, job.Status, job.Attempts,
	).Scan(&job.CreatedAt)
}

func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `
		SELECT
			id, project_id, chunk_id, type, status, attempts,
			started_at, finished_at, error_message, created_at
		FROM jobs
		WHERE id = $1
	`

	job := &models.Job{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.ProjectID, &job.ChunkID, &job.Type, &job.Status,
		&job.Attempts, &job.StartedAt, &job.FinishedAt, &job.ErrorMessage,
		&job.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

func (db *DB) GetProjectJobs(ctx context.Context, projectID uuid.UUID) ([]models.Job, error) {
	query := `
		SELECT
			id, project_id, chunk_id, type, status, attempts,
			started_at, finished_at, error_message, created_at
		FROM jobs
		WHERE project_id = $1
		ORDER BY created_at
	`

	rows, err := db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var job models.Job
		err := rows.Scan(
			&job.ID, &job.ProjectID, &job.ChunkID, &job.Type, &job.Status,
			&job.Attempts, &job.StartedAt, &job.FinishedAt, &job.ErrorMessage,
			&job.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func (db *DB) MarkJobRunning(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = 'running', started_at = $2, attempts = attempts + 1
		WHERE id = $1
	`

	if _, err := db.ExecContext(ctx, query, id, time.Now()); err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	return nil
}

func (db *DB) MarkJobSucceeded(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = 'succeeded', finished_at = $2
		WHERE id = $1
	`

	if _, err := db.ExecContext(ctx, query, id, time.Now()); err != nil {
		return fmt.Errorf("failed to mark job succeeded: %w", err)
	}

	return nil
}

func (db *DB) MarkJobFailed(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE jobs
		SET status = 'failed', finished_at = $2, error_message = $3
		WHERE id = $1
	`

	if _, err := db.ExecContext(ctx, query, id, time.Now(), message); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	return nil
}
