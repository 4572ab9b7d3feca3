package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/enzocage/audiobook-forge/internal/db"
	"github.com/enzocage/audiobook-forge/internal/models"
	"github.com/enzocage/audiobook-forge/internal/queue"
	"github.com/enzocage/audiobook-forge/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Defaults are applied to new projects when the request leaves a field unset.
// Sourced from config so the API and worker agree on them.
type Defaults struct {
	VoiceName      string
	TTSModel       string
	MaxChunkChars  int
	ImagesPerChunk int
}

type Handler struct {
	db       *db.DB
	queue    *queue.Queue
	storage  *storage.Storage
	defaults Defaults
}

func NewHandler(database *db.DB, q *queue.Queue, stor *storage.Storage, defaults Defaults) *Handler {
	return &Handler{
		db:       database,
		queue:    q,
		storage:  stor,
		defaults: defaults,
	}
}

// CreateProject handles POST /v1/projects.
// The project is stored with its manuscript but narration does not start
// until POST /v1/projects/{id}/generate.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Validate
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "Text is required")
		return
	}

	// Set defaults
	voiceName := h.defaults.VoiceName
	if req.VoiceName != nil && *req.VoiceName != "" {
		voiceName = *req.VoiceName
	}

	ttsModel := h.defaults.TTSModel
	if req.TTSModel != nil && *req.TTSModel != "" {
		ttsModel = *req.TTSModel
	}

	format := models.FormatWAV
	if req.OutputFormat != nil {
		switch *req.OutputFormat {
		case models.FormatWAV, models.FormatMP3:
			format = *req.OutputFormat
		default:
			respondError(w, http.StatusBadRequest, "Invalid output_format. Allowed: wav, mp3")
			return
		}
	}

	maxChunkChars := h.defaults.MaxChunkChars
	if req.MaxChunkChars != nil {
		if *req.MaxChunkChars < 1 {
			respondError(w, http.StatusBadRequest, "max_chunk_chars must be positive")
			return
		}
		maxChunkChars = *req.MaxChunkChars
	}

	illustrationsEnabled := false
	if req.IllustrationsEnabled != nil {
		illustrationsEnabled = *req.IllustrationsEnabled
	}

	imagesPerChunk := h.defaults.ImagesPerChunk
	if req.ImagesPerChunk != nil && *req.ImagesPerChunk > 0 {
		imagesPerChunk = *req.ImagesPerChunk
	}

	project := &models.Project{
		ID:                   uuid.New(),
		Name:                 req.Name,
		Text:                 req.Text,
		VoiceName:            voiceName,
		TTSModel:             ttsModel,
		OutputFormat:         format,
		TargetLanguage:       req.TargetLanguage,
		IllustrationsEnabled: illustrationsEnabled,
		ImagesPerChunk:       imagesPerChunk,
		MaxChunkChars:        maxChunkChars,
		Status:               models.ProjectStatusQueued,
	}

	if err := h.db.CreateProject(r.Context(), project); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create project")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateProjectResponse{
		ProjectID: project.ID,
		Status:    project.Status,
	})
}

// ListProjects handles GET /v1/projects
// Query params:
//   - status: filter by project status
//   - limit:  max results per page (default 20, max 100)
//   - offset: number of results to skip (default 0)
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	statusFilter := r.URL.Query().Get("status")
	if statusFilter != "" {
		switch models.ProjectStatus(statusFilter) {
		case models.ProjectStatusQueued, models.ProjectStatusTranslating,
			models.ProjectStatusGenerating, models.ProjectStatusExporting,
			models.ProjectStatusCompleted, models.ProjectStatusCancelled,
			models.ProjectStatusFailed:
			// valid
		default:
			respondError(w, http.StatusBadRequest, "Invalid status filter. Allowed: queued, translating, generating, exporting, completed, cancelled, failed")
			return
		}
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	total, err := h.db.CountProjects(r.Context(), statusFilter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to count projects")
		return
	}

	summaries, err := h.db.ListProjects(r.Context(), statusFilter, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list projects")
		return
	}
	if summaries == nil {
		summaries = []models.ProjectSummary{}
	}

	respondJSON(w, http.StatusOK, models.ListProjectsResponse{
		Projects: summaries,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

// GetProject handles GET /v1/projects/{id}
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	project, err := h.db.GetProject(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	chunks, err := h.db.GetProjectChunks(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get chunks")
		return
	}

	completed := 0
	for _, c := range chunks {
		if c.Status == models.ChunkStatusCompleted {
			completed++
		}
	}
	progress := 0.0
	if len(chunks) > 0 {
		progress = float64(completed) / float64(len(chunks)) * 100
	}

	response := models.ProjectResponse{
		Project:         *project,
		Chunks:          h.buildChunkResponses(r.Context(), chunks),
		ProgressPercent: progress,
	}

	if project.PreviewAssetID != nil {
		if asset, err := h.db.GetAsset(r.Context(), *project.PreviewAssetID); err == nil {
			url := h.storage.GetPublicURL(asset.StoragePath)
			response.PreviewURL = &url
		}
	}
	if project.FinalAssetID != nil {
		if asset, err := h.db.GetAsset(r.Context(), *project.FinalAssetID); err == nil {
			url := h.storage.GetPublicURL(asset.StoragePath)
			response.FinalURL = &url
		}
	}

	respondJSON(w, http.StatusOK, response)
}

// StartGeneration handles POST /v1/projects/{id}/generate.
// Accepts an optional start_index to resume a partially voiced run;
// chunks below the start index are never re-synthesized.
func (h *Handler) StartGeneration(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	project, err := h.db.GetProject(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	switch project.Status {
	case models.ProjectStatusTranslating, models.ProjectStatusGenerating, models.ProjectStatusExporting:
		respondError(w, http.StatusConflict, "Generation already in progress")
		return
	}

	var req models.GenerateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	startIndex := 0
	if req.StartIndex != nil {
		if *req.StartIndex < 0 {
			respondError(w, http.StatusBadRequest, "start_index must be non-negative")
			return
		}
		startIndex = *req.StartIndex
	}

	if startIndex > 0 {
		chunks, err := h.db.GetProjectChunks(r.Context(), projectID)
		if err != nil || len(chunks) == 0 {
			respondError(w, http.StatusBadRequest, "Cannot resume: project has no chunks")
			return
		}
		if startIndex > len(chunks) {
			respondError(w, http.StatusBadRequest, "start_index out of range")
			return
		}
	}

	if err := h.db.UpdateProjectStatus(r.Context(), projectID, models.ProjectStatusQueued); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update project status")
		return
	}

	jobID := uuid.New()
	job := &models.Job{
		ID:        jobID,
		ProjectID: projectID,
		Type:      "generate_audiobook",
		Status:    models.JobStatusQueued,
	}
	if err := h.db.CreateJob(r.Context(), job); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if err := h.queue.EnqueueGenerateAudiobook(r.Context(), projectID, jobID, startIndex); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusAccepted, models.GenerateResponse{
		ProjectID:  projectID,
		Status:     models.ProjectStatusQueued,
		StartIndex: startIndex,
	})
}

// CancelGeneration handles POST /v1/projects/{id}/cancel.
// Cancellation is cooperative: the flag is raised here and the run
// acknowledges it between chunks, so an in-flight synthesis call finishes
// first and its audio is kept.
func (h *Handler) CancelGeneration(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	project, err := h.db.GetProject(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	switch project.Status {
	case models.ProjectStatusQueued, models.ProjectStatusTranslating,
		models.ProjectStatusGenerating, models.ProjectStatusExporting:
		// cancellable
	default:
		respondError(w, http.StatusConflict, "No generation in progress")
		return
	}

	if err := h.queue.RequestCancel(r.Context(), projectID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to request cancellation")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "cancellation_requested",
	})
}

// GetProjectDownload handles GET /v1/projects/{id}/download
func (h *Handler) GetProjectDownload(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	project, err := h.db.GetProject(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	if project.FinalAssetID == nil {
		respondError(w, http.StatusNotFound, "Audio not ready")
		return
	}

	asset, err := h.db.GetAsset(r.Context(), *project.FinalAssetID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Asset not found")
		return
	}

	// Get signed URL (valid for 1 hour)
	signedURL, err := h.storage.GetSignedURL(r.Context(), asset.StoragePath, 3600)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to generate download URL")
		return
	}

	http.Redirect(w, r, signedURL, http.StatusTemporaryRedirect)
}

// GetProjectPreview handles GET /v1/projects/{id}/preview — the growing WAV
// of everything voiced so far, available mid-run.
func (h *Handler) GetProjectPreview(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	project, err := h.db.GetProject(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	if project.PreviewAssetID == nil {
		respondError(w, http.StatusNotFound, "No preview available yet")
		return
	}

	asset, err := h.db.GetAsset(r.Context(), *project.PreviewAssetID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Asset not found")
		return
	}

	signedURL, err := h.storage.GetSignedURL(r.Context(), asset.StoragePath, 3600)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to generate preview URL")
		return
	}

	http.Redirect(w, r, signedURL, http.StatusTemporaryRedirect)
}

// GetProjectJobs handles GET /v1/projects/{id}/debug/jobs
func (h *Handler) GetProjectJobs(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	jobs, err := h.db.GetProjectJobs(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get jobs")
		return
	}

	respondJSON(w, http.StatusOK, jobs)
}

// GetChunk handles GET /v1/projects/{projectId}/chunks/{chunkId}
func (h *Handler) GetChunk(w http.ResponseWriter, r *http.Request) {
	chunkID, err := uuid.Parse(chi.URLParam(r, "chunkId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid chunk ID")
		return
	}

	chunk, err := h.db.GetChunk(r.Context(), chunkID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Chunk not found")
		return
	}

	response := h.buildChunkResponse(r.Context(), *chunk)
	respondJSON(w, http.StatusOK, response)
}

// ListVoicePresets handles GET /v1/presets/voices
func (h *Handler) ListVoicePresets(w http.ResponseWriter, r *http.Request) {
	presets, err := h.db.ListVoicePresets(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list voice presets")
		return
	}
	if presets == nil {
		presets = []models.VoicePreset{}
	}

	respondJSON(w, http.StatusOK, presets)
}

// Helper methods
func (h *Handler) buildChunkResponses(ctx context.Context, chunks []models.Chunk) []models.ChunkResponse {
	responses := make([]models.ChunkResponse, len(chunks))
	for i, chunk := range chunks {
		responses[i] = h.buildChunkResponse(ctx, chunk)
	}
	return responses
}

func (h *Handler) buildChunkResponse(ctx context.Context, chunk models.Chunk) models.ChunkResponse {
	response := models.ChunkResponse{
		Chunk: chunk,
	}

	if chunk.AudioAssetID != nil {
		if asset, err := h.db.GetAsset(ctx, *chunk.AudioAssetID); err == nil {
			url := h.storage.GetPublicURL(asset.StoragePath)
			response.AudioURL = &url
		}
	}

	if assets, err := h.db.GetChunkAssets(ctx, chunk.ID); err == nil {
		for _, asset := range assets {
			if asset.Type == models.AssetTypeImage {
				response.ImageURLs = append(response.ImageURLs, h.storage.GetPublicURL(asset.StoragePath))
			}
		}
	}

	return response
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
