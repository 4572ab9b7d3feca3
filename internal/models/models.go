package models

import (
	"time"

	"github.com/google/uuid"
)

// Enums
type ProjectStatus string

const (
	ProjectStatusQueued      ProjectStatus = "queued"
	ProjectStatusTranslating ProjectStatus = "translating"
	ProjectStatusGenerating  ProjectStatus = "generating"
	ProjectStatusExporting   ProjectStatus = "exporting"
	ProjectStatusCompleted   ProjectStatus = "completed"
	ProjectStatusCancelled   ProjectStatus = "cancelled"
	ProjectStatusFailed      ProjectStatus = "failed"
)

type ChunkStatus string

const (
	ChunkStatusPending    ChunkStatus = "pending"
	ChunkStatusInProgress ChunkStatus = "in_progress"
	ChunkStatusCompleted  ChunkStatus = "completed"
	ChunkStatusFailed     ChunkStatus = "failed"
)

type AssetType string

const (
	AssetTypeChunkPCM   AssetType = "chunk_pcm"
	AssetTypeChunkWAV   AssetType = "chunk_wav"
	AssetTypeImage      AssetType = "image"
	AssetTypePreviewWAV AssetType = "preview_wav"
	AssetTypeFinalAudio AssetType = "final_audio"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// OutputFormat is the container requested for the final artifact.
type OutputFormat string

const (
	FormatWAV OutputFormat = "wav"
	FormatMP3 OutputFormat = "mp3"
)

// Models

// Project is one manuscript plus its narration settings. The chunk set for
// a project is fixed per generation run; editing the text invalidates any
// in-progress run and discards existing chunks.
type Project struct {
	ID                   uuid.UUID     `json:"id"`
	Name                 string        `json:"name"`
	Text                 string        `json:"text,omitempty"`
	VoiceName            string        `json:"voice_name"`
	TTSModel             string        `json:"tts_model"`
	OutputFormat         OutputFormat  `json:"output_format"`
	TargetLanguage       *string       `json:"target_language,omitempty"` // nil = keep original language
	IllustrationsEnabled bool          `json:"illustrations_enabled"`
	ImagesPerChunk       int           `json:"images_per_chunk"`
	MaxChunkChars        int           `json:"max_chunk_chars"`
	Status               ProjectStatus `json:"status"`
	LastError            *string       `json:"last_error,omitempty"`
	PreviewAssetID       *uuid.UUID    `json:"preview_asset_id,omitempty"`
	FinalAssetID         *uuid.UUID    `json:"final_asset_id,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// Chunk is one sentence-bounded segment of a project's manuscript.
// ChunkIndex is assigned once at segmentation time and stable for the run.
type Chunk struct {
	ID           uuid.UUID   `json:"id"`
	ProjectID    uuid.UUID   `json:"project_id"`
	ChunkIndex   int         `json:"chunk_index"`
	Text         string      `json:"text"`
	Status       ChunkStatus `json:"status"`
	RetryCount   int         `json:"retry_count"`
	PCMAssetID   *uuid.UUID  `json:"pcm_asset_id,omitempty"`
	AudioAssetID *uuid.UUID  `json:"audio_asset_id,omitempty"` // per-chunk WAV download
	ErrorMessage *string     `json:"error_message,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

type Asset struct {
	ID            uuid.UUID  `json:"id"`
	ProjectID     uuid.UUID  `json:"project_id"`
	ChunkID       *uuid.UUID `json:"chunk_id,omitempty"`
	Type          AssetType  `json:"type"`
	StorageBucket string     `json:"storage_bucket"`
	StoragePath   string     `json:"storage_path"`
	ContentType   *string    `json:"content_type,omitempty"`
	ByteSize      *int64     `json:"byte_size,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type Job struct {
	ID           uuid.UUID  `json:"id"`
	ProjectID    uuid.UUID  `json:"project_id"`
	ChunkID      *uuid.UUID `json:"chunk_id,omitempty"`
	Type         string     `json:"type"`
	Status       JobStatus  `json:"status"`
	Attempts     int        `json:"attempts"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// VoicePreset is a catalog entry for a narrator voice.
type VoicePreset struct {
	ID          uuid.UUID `json:"id"`
	Slug        string    `json:"slug"`         // machine name, e.g. "kore"
	DisplayName string    `json:"display_name"` // human-readable, e.g. "Kore (warm, even)"
	Provider    string    `json:"provider"`     // "gemini" or "elevenlabs"
	VoiceName   string    `json:"voice_name"`   // provider voice identifier
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DTOs for API responses

type ProjectResponse struct {
	Project
	Chunks          []ChunkResponse `json:"chunks,omitempty"`
	ProgressPercent float64         `json:"progress_percent"`
	PreviewURL      *string         `json:"preview_url,omitempty"`
	FinalURL        *string         `json:"final_url,omitempty"`
}

type ChunkResponse struct {
	Chunk
	AudioURL  *string  `json:"audio_url,omitempty"`
	ImageURLs []string `json:"image_urls,omitempty"`
}

// ProjectSummary is a lightweight DTO for the list endpoint — no chunk
// array, just core fields plus counts.
type ProjectSummary struct {
	ID              uuid.UUID     `json:"id"`
	Name            string        `json:"name"`
	Status          ProjectStatus `json:"status"`
	OutputFormat    OutputFormat  `json:"output_format"`
	ChunkCount      int           `json:"chunk_count"`
	CompletedChunks int           `json:"completed_chunks"`
	LastError       *string       `json:"last_error,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

type ListProjectsResponse struct {
	Projects []ProjectSummary `json:"projects"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

type CreateProjectRequest struct {
	Name                 string        `json:"name"`
	Text                 string        `json:"text"`
	VoiceName            *string       `json:"voice_name,omitempty"`      // default: config TTS_VOICE
	TTSModel             *string       `json:"tts_model,omitempty"`       // default: config TTS_MODEL
	OutputFormat         *OutputFormat `json:"output_format,omitempty"`   // default: wav
	TargetLanguage       *string       `json:"target_language,omitempty"` // e.g. "German"; nil = no translation
	IllustrationsEnabled *bool         `json:"illustrations_enabled,omitempty"`
	ImagesPerChunk       *int          `json:"images_per_chunk,omitempty"`
	MaxChunkChars        *int          `json:"max_chunk_chars,omitempty"`
}

type CreateProjectResponse struct {
	ProjectID uuid.UUID     `json:"project_id"`
	Status    ProjectStatus `json:"status"`
}

// GenerateRequest starts (or resumes) a generation run. StartIndex is the
// resume point: chunks below it are treated as already satisfied and are
// never re-synthesized.
type GenerateRequest struct {
	StartIndex *int `json:"start_index,omitempty"`
}

type GenerateResponse struct {
	ProjectID  uuid.UUID     `json:"project_id"`
	Status     ProjectStatus `json:"status"`
	StartIndex int           `json:"start_index"`
}
