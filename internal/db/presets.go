package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/enzocage/audiobook-forge/internal/models"
)

// GetVoicePresetBySlug retrieves a voice preset by its slug (e.g. "kore").
func (db *DB) GetVoicePresetBySlug(ctx context.Context, slug string) (*models.VoicePreset, error) {
	query := `
		SELECT id, slug, display_name, provider, voice_name, description, created_at, updated_at
		FROM voice_presets
		WHERE slug = $1
	`

	preset := &models.VoicePreset{}
	err := db.QueryRowContext(ctx, query, slug).Scan(
		&preset.ID, &preset.Slug, &preset.DisplayName, &preset.Provider,
		&preset.VoiceName, &preset.Description,
		&preset.CreatedAt, &preset.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("voice preset not found: %s", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get voice preset by slug: %w", err)
	}

	return preset, nil
}

// ListVoicePresets returns all voice presets ordered by display name.
func (db *DB) ListVoicePresets(ctx context.Context) ([]models.VoicePreset, error) {
	query := `
		SELECT id, slug, display_name, provider, voice_name, description, created_at, updated_at
		FROM voice_presets
		ORDER BY display_name
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list voice presets: %w", err)
	}
	defer rows.Close()

	var presets []models.VoicePreset
	for rows.Next() {
		var p models.VoicePreset
		if err := rows.Scan(
			&p.ID, &p.Slug, &p.DisplayName, &p.Provider,
			&p.VoiceName, &p.Description,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan voice preset: %w", err)
		}
		presets = append(presets, p)
	}

	return presets, rows.Err()
}
