package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/enzocage/audiobook-forge/internal/models"
	"github.com/google/uuid"
)

// CreateChunks inserts the full chunk set for a project in one transaction.
// Segmentation produces the whole set at once; a partial insert would leave
// the project with a hole in its index sequence.
func (db *DB) CreateChunks(ctx context.Context, chunks []models.Chunk) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO chunks (id, project_id, chunk_index, text, status)
		VALUES ($1, $2, $3, $4, $5)
	`

	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx, query, c.ID, c.ProjectID, c.ChunkIndex, c.Text, c.Status); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.ChunkIndex, err)
		}
	}

	return tx.Commit()
}

// DeleteProjectChunks removes all chunks for a project. Used when a run is
// restarted from scratch and the chunk set must be rebuilt.
func (db *DB) DeleteProjectChunks(ctx context.Context, projectID uuid.UUID) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM chunks WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	return nil
}

func (db *DB) GetChunk(ctx context.Context, id uuid.UUID) (*models.Chunk, error) {
	query := `
		SELECT
			id, project_id, chunk_index, text, status, retry_count,
			pcm_asset_id, audio_asset_id, error_message, created_at, updated_at
		FROM chunks
		WHERE id = $1
	`

	chunk := &models.Chunk{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&chunk.ID, &chunk.ProjectID, &chunk.ChunkIndex, &chunk.Text,
		&chunk.Status, &chunk.RetryCount, &chunk.PCMAssetID,
		&chunk.AudioAssetID, &chunk.ErrorMessage,
		&chunk.CreatedAt, &chunk.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chunk not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}

	return chunk, nil
}

// GetProjectChunks returns all chunks for a project ordered by chunk index.
func (db *DB) GetProjectChunks(ctx context.Context, projectID uuid.UUID) ([]models.Chunk, error) {
	query := `
		SELECT
			id, project_id, chunk_index, text, status, retry_count,
			pcm_asset_id, audio_asset_id, error_message, created_at, updated_at
		FROM chunks
		WHERE project_id = $1
		ORDER BY chunk_index
	`

	rows, err := db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(
			&c.ID, &c.ProjectID, &c.ChunkIndex, &c.Text,
			&c.Status, &c.RetryCount, &c.PCMAssetID,
			&c.AudioAssetID, &c.ErrorMessage,
			&c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}

	return chunks, rows.Err()
}

func (db *DB) UpdateChunkStatus(ctx context.Context, id uuid.UUID, status models.ChunkStatus) error {
	query := `UPDATE chunks SET status = $2, updated_at = NOW() WHERE id = $1`

	if _, err := db.ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("failed to update chunk status: %w", err)
	}

	return nil
}

func (db *DB) SetChunkCompleted(ctx context.Context, id uuid.UUID, retryCount int, pcmAssetID, audioAssetID uuid.UUID) error {
	query := `
		UPDATE chunks
		SET status = 'completed', retry_count = $2, pcm_asset_id = $3,
			audio_asset_id = $4, error_message = NULL, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := db.ExecContext(ctx, query, id, retryCount, pcmAssetID, audioAssetID); err != nil {
		return fmt.Errorf("failed to mark chunk completed: %w", err)
	}

	return nil
}

func (db *DB) SetChunkFailed(ctx context.Context, id uuid.UUID, retryCount int, message string) error {
	query := `
		UPDATE chunks
		SET status = 'failed', retry_count = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := db.ExecContext(ctx, query, id, retryCount, message); err != nil {
		return fmt.Errorf("failed to mark chunk failed: %w", err)
	}

	return nil
}
