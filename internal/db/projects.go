package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/enzocage/audiobook-forge/internal/models"
	"github.com/google/uuid"
)

func (db *DB) CreateProject(ctx context.Context, project *models.Project) error {
	query := `
		INSERT INTO projects (
			id, name, text, voice_name, tts_model, output_format,
			target_language, illustrations_enabled, images_per_chunk,
			max_chunk_chars, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		project.ID, project.Name, project.Text, project.VoiceName,
		project.TTSModel, project.OutputFormat, project.TargetLanguage,
		project.IllustrationsEnabled, project.ImagesPerChunk,
		project.MaxChunkChars, project.Status,
	).Scan(&project.CreatedAt, &project.UpdatedAt)
}

func (db *DB) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	query := `
		SELECT
			id, name, text, voice_name, tts_model, output_format,
			target_language, illustrations_enabled, images_per_chunk,
			max_chunk_chars, status, last_error, preview_asset_id,
			final_asset_id, created_at, updated_at
		FROM projects
		WHERE id = $1
	`

	project := &models.Project{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&project.ID, &project.Name, &project.Text, &project.VoiceName,
		&project.TTSModel, &project.OutputFormat, &project.TargetLanguage,
		&project.IllustrationsEnabled, &project.ImagesPerChunk,
		&project.MaxChunkChars, &project.Status, &project.LastError,
		&project.PreviewAssetID, &project.FinalAssetID,
		&project.CreatedAt, &project.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return project, nil
}

// ListProjects returns project summaries ordered by creation date (newest
// first). Supports optional status filter, limit, and offset for pagination.
func (db *DB) ListProjects(ctx context.Context, status string, limit, offset int) ([]models.ProjectSummary, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseSelect := `
		SELECT
			p.id, p.name, p.status, p.output_format,
			COUNT(c.id) AS chunk_count,
			COUNT(c.id) FILTER (WHERE c.status = 'completed') AS completed_chunks,
			p.last_error, p.created_at, p.updated_at
		FROM projects p
		LEFT JOIN chunks c ON c.project_id = p.id
	`
	groupOrder := ` GROUP BY p.id ORDER BY p.created_at DESC`

	if status != "" {
		query := baseSelect + ` WHERE p.status = $1` + groupOrder + ` LIMIT $2 OFFSET $3`
		rows, err = db.QueryContext(ctx, query, status, limit, offset)
	} else {
		query := baseSelect + groupOrder + ` LIMIT $1 OFFSET $2`
		rows, err = db.QueryContext(ctx, query, limit, offset)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var summaries []models.ProjectSummary
	for rows.Next() {
		var s models.ProjectSummary
		if err := rows.Scan(
			&s.ID, &s.Name, &s.Status, &s.OutputFormat,
			&s.ChunkCount, &s.CompletedChunks,
			&s.LastError, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan project summary: %w", err)
		}
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

// CountProjects returns the total number of projects matching the optional
// status filter, for pagination metadata.
func (db *DB) CountProjects(ctx context.Context, status string) (int, error) {
	var (
		count int
		err   error
	)

	if status != "" {
		err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE status = $1`, status).Scan(&count)
	} else {
		err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count projects: %w", err)
	}

	return count, nil
}

func (db *DB) UpdateProjectStatus(ctx context.Context, id uuid.UUID, status models.ProjectStatus) error {
	query := `UPDATE projects SET status = $2, updated_at = NOW() WHERE id = $1`

	result, err := db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("project not found")
	}

	return nil
}

// SetProjectError marks a project failed and records the cause.
func (db *DB) SetProjectError(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE projects
		SET status = 'failed', last_error = $2, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := db.ExecContext(ctx, query, id, message); err != nil {
		return fmt.Errorf("failed to set project error: %w", err)
	}

	return nil
}

// SetProjectTranslatedText replaces the manuscript with its translation.
// The original text is gone after this; translation happens before
// segmentation so the chunk set is derived from the translated text.
func (db *DB) SetProjectTranslatedText(ctx context.Context, id uuid.UUID, text string) error {
	query := `UPDATE projects SET text = $2, updated_at = NOW() WHERE id = $1`

	if _, err := db.ExecContext(ctx, query, id, text); err != nil {
		return fmt.Errorf("failed to update project text: %w", err)
	}

	return nil
}

func (db *DB) SetProjectPreviewAsset(ctx context.Context, id, assetID uuid.UUID) error {
	query := `UPDATE projects SET preview_asset_id = $2, updated_at = NOW() WHERE id = $1`

	if _, err := db.ExecContext(ctx, query, id, assetID); err != nil {
		return fmt.Errorf("failed to set preview asset: %w", err)
	}

	return nil
}

func (db *DB) SetProjectFinalAsset(ctx context.Context, id, assetID uuid.UUID) error {
	query := `
		UPDATE projects
		SET final_asset_id = $2, status = 'completed', last_error = NULL, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := db.ExecContext(ctx, query, id, assetID); err != nil {
		return fmt.Errorf("failed to set final asset: %w", err)
	}

	return nil
}
