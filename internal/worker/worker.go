package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/enzocage/audiobook-forge/internal/audio"
	"github.com/enzocage/audiobook-forge/internal/db"
	"github.com/enzocage/audiobook-forge/internal/models"
	"github.com/enzocage/audiobook-forge/internal/pipeline"
	"github.com/enzocage/audiobook-forge/internal/queue"
	"github.com/enzocage/audiobook-forge/internal/segment"
	"github.com/enzocage/audiobook-forge/internal/services"
	"github.com/enzocage/audiobook-forge/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Worker struct {
	db             *db.DB
	queue          *queue.Queue
	storage        *storage.Storage
	speech         services.SpeechService
	openai         *services.OpenAIService
	images         *services.ImageService
	ffmpeg         *services.FFmpegService
	mp3BitrateKbps int
	uploadSem      chan struct{} // Limits concurrent Supabase uploads to prevent congestion
}

func New(
	database *db.DB,
	q *queue.Queue,
	stor *storage.Storage,
	speechSvc services.SpeechService,
	openaiSvc *services.OpenAIService,
	imageSvc *services.ImageService,
	ffmpegSvc *services.FFmpegService,
	mp3BitrateKbps int,
) *Worker {
	return &Worker{
		db:             database,
		queue:          q,
		storage:        stor,
		speech:         speechSvc,
		openai:         openaiSvc,
		images:         imageSvc,
		ffmpeg:         ffmpegSvc,
		mp3BitrateKbps: mp3BitrateKbps,
		uploadSem:      make(chan struct{}, 4),
	}
}

// uploadWithLimit wraps an upload call with a semaphore to prevent Supabase
// congestion while a narration run streams chunk audio out.
func (w *Worker) uploadWithLimit(ctx context.Context, label string, fn func() error) error {
	select {
	case w.uploadSem <- struct{}{}:
		// Acquired slot
	case <-ctx.Done():
		return fmt.Errorf("upload cancelled while waiting for slot: %w", ctx.Err())
	}
	defer func() { <-w.uploadSem }()

	log.Printf("[Upload] %s uploading...", label)
	return fn()
}

// Start begins processing jobs from all queues
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("Worker started with concurrency: %d", concurrency)

	// Generation is deliberately single-threaded: the synthesis provider's
	// rate limits are shared across the process, and the pacing ratchet
	// assumes one in-flight run. Illustration and export fan out.
	go w.processQueue(ctx, queue.QueueGenerateAudiobook, w.handleGenerateAudiobook)
	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx, queue.QueueIllustrateChunk, w.handleIllustrateChunk)
		go w.processQueue(ctx, queue.QueueExportAudiobook, w.handleExportAudiobook)
	}

	<-ctx.Done()
	log.Println("Worker shutting down...")
}

func (w *Worker) processQueue(ctx context.Context, queueName string, handler func(context.Context, *queue.Job) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, queueName, 5*time.Second)
			if err != nil {
				log.Printf("Error dequeuing from %s: %v", queueName, err)
				continue
			}

			if job == nil {
				continue // No job available, retry
			}

			log.Printf("Processing job %s (type: %s, project: %s)", job.ID, job.Type, job.ProjectID)

			if err := w.db.MarkJobRunning(ctx, job.ID); err != nil {
				log.Printf("Failed to mark job running: %v", err)
			}

			if err := handler(ctx, job); err != nil {
				log.Printf("Job %s failed: %v", job.ID, err)
				w.db.MarkJobFailed(ctx, job.ID, err.Error())
			} else {
				log.Printf("Job %s completed successfully", job.ID)
				w.db.MarkJobSucceeded(ctx, job.ID)
			}
		}
	}
}

// handleGenerateAudiobook runs a full narration pass over a project:
// optional translation, segmentation (fresh runs only), then sequential
// chunk synthesis with per-chunk persistence so a later run can resume.
func (w *Worker) handleGenerateAudiobook(ctx context.Context, job *queue.Job) error {
	project, err := w.db.GetProject(ctx, job.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to get project: %w", err)
	}

	// A cancel issued while the job sat in the queue lands here; the flag is
	// then cleared so it cannot leak into a later run.
	if w.queue.CancelRequested(ctx, project.ID) {
		w.queue.ClearCancel(ctx, project.ID)
		log.Printf("[Generate] project %s cancelled before start", project.ID)
		return w.db.UpdateProjectStatus(ctx, project.ID, models.ProjectStatusCancelled)
	}

	startIndex := job.StartIndex

	if startIndex == 0 {
		// Fresh run: translate (optionally), then rebuild the chunk set.
		if project.TargetLanguage != nil && *project.TargetLanguage != "" {
			if err := w.db.UpdateProjectStatus(ctx, project.ID, models.ProjectStatusTranslating); err != nil {
				return fmt.Errorf("failed to update project status: %w", err)
			}

			translated := w.openai.Translate(ctx, project.Text, *project.TargetLanguage)
			if translated != project.Text {
				if err := w.db.SetProjectTranslatedText(ctx, project.ID, translated); err != nil {
					return fmt.Errorf("failed to store translated text: %w", err)
				}
				project.Text = translated
			}
		}

		texts := segment.Split(project.Text, project.MaxChunkChars)
		if len(texts) == 0 {
			msg := "no synthesizable text after segmentation"
			w.db.SetProjectError(ctx, project.ID, msg)
			return errors.New(msg)
		}

		if err := w.db.DeleteProjectChunks(ctx, project.ID); err != nil {
			return fmt.Errorf("failed to reset chunks: %w", err)
		}

		rows := make([]models.Chunk, len(texts))
		for i, text := range texts {
			rows[i] = models.Chunk{
				ID:         uuid.New(),
				ProjectID:  project.ID,
				ChunkIndex: i,
				Text:       text,
				Status:     models.ChunkStatusPending,
			}
		}
		if err := w.db.CreateChunks(ctx, rows); err != nil {
			return fmt.Errorf("failed to create chunks: %w", err)
		}
	}

	rows, err := w.db.GetProjectChunks(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("failed to load chunks: %w", err)
	}
	if startIndex > len(rows) {
		return fmt.Errorf("start index %d out of range (project has %d chunks)", startIndex, len(rows))
	}

	if err := w.db.UpdateProjectStatus(ctx, project.ID, models.ProjectStatusGenerating); err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}

	// Audio completed in earlier runs is reused as-is; resuming never
	// re-synthesizes below the start index.
	pcmByIndex := make([][]byte, len(rows))
	for i := 0; i < startIndex; i++ {
		if rows[i].Status != models.ChunkStatusCompleted || rows[i].PCMAssetID == nil {
			return fmt.Errorf("cannot resume at %d: chunk %d has no completed audio", startIndex, i+1)
		}
		pcm, err := w.downloadAsset(ctx, *rows[i].PCMAssetID)
		if err != nil {
			return fmt.Errorf("failed to fetch audio for chunk %d: %w", i+1, err)
		}
		pcmByIndex[i] = pcm
	}

	chunks := make([]pipeline.Chunk, len(rows))
	for i, row := range rows {
		chunks[i] = pipeline.Chunk{Index: i, Text: row.Text}
	}

	attempts := make(map[int]int)

	synth := func(ctx context.Context, text string) ([]byte, error) {
		result, err := w.speech.Synthesize(ctx, text, project.VoiceName)
		if err != nil {
			return nil, err
		}
		return result.PCM, nil
	}

	events := pipeline.Events{
		Progress: func(percent float64, currentChunk int) {
			log.Printf("[Generate] project %s: %.1f%% (chunk %d/%d)", project.ID, percent, currentChunk, len(rows))
		},
		ChunkRetrying: func(index, attempt int, wait time.Duration, cause error) {
			attempts[index] = attempt
			log.Printf("[Generate] chunk %d/%d attempt %d failed, retrying in %v: %v", index+1, len(rows), attempt, wait, cause)
			w.db.UpdateChunkStatus(ctx, rows[index].ID, models.ChunkStatusInProgress)
		},
		ChunkCompleted: func(index int, pcm []byte) error {
			pcmByIndex[index] = pcm
			return w.persistChunkAudio(ctx, project, rows, index, pcm, attempts[index], pcmByIndex)
		},
	}

	cancelled := func() bool {
		return w.queue.CancelRequested(ctx, project.ID)
	}

	runner := pipeline.NewRunner(synth, pipeline.DefaultOptions(), events)
	_, runErr := runner.Run(ctx, chunks, startIndex, cancelled)

	if runErr != nil {
		if errors.Is(runErr, pipeline.ErrCancelled) {
			log.Printf("[Generate] project %s cancelled, keeping %d completed chunks", project.ID, countCompleted(pcmByIndex))
			w.queue.ClearCancel(ctx, project.ID)
			if err := w.db.UpdateProjectStatus(ctx, project.ID, models.ProjectStatusCancelled); err != nil {
				return fmt.Errorf("failed to mark project cancelled: %w", err)
			}
			return nil
		}

		var chunkErr *pipeline.ChunkError
		if errors.As(runErr, &chunkErr) {
			row := rows[chunkErr.Position-1]
			w.db.SetChunkFailed(ctx, row.ID, attempts[chunkErr.Position-1], chunkErr.Err.Error())
		}
		w.db.SetProjectError(ctx, project.ID, runErr.Error())
		return fmt.Errorf("generation failed: %w", runErr)
	}

	// All chunks voiced; hand off to export.
	if err := w.db.UpdateProjectStatus(ctx, project.ID, models.ProjectStatusExporting); err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}

	exportJobID := uuid.New()
	exportJob := &models.Job{
		ID:        exportJobID,
		ProjectID: project.ID,
		Type:      "export_audiobook",
		Status:    models.JobStatusQueued,
	}
	if err := w.db.CreateJob(ctx, exportJob); err != nil {
		return fmt.Errorf("failed to create export job: %w", err)
	}
	if err := w.queue.EnqueueExportAudiobook(ctx, project.ID, exportJobID); err != nil {
		return fmt.Errorf("failed to enqueue export: %w", err)
	}

	return nil
}

// persistChunkAudio stores one voiced chunk: raw PCM for later assembly,
// a standalone WAV for per-chunk download, a refreshed preview of everything
// voiced so far, and an illustration job when the project asks for images.
func (w *Worker) persistChunkAudio(ctx context.Context, project *models.Project, rows []models.Chunk, index int, pcm []byte, retryCount int, pcmByIndex [][]byte) error {
	row := rows[index]

	pcmAsset := &models.Asset{
		ID:            uuid.New(),
		ProjectID:     project.ID,
		ChunkID:       &row.ID,
		Type:          models.AssetTypeChunkPCM,
		StorageBucket: w.storage.Bucket,
		StoragePath:   w.storage.GenerateStoragePath(project.ID, fmt.Sprintf("chunk_%d.pcm", index+1)),
		ContentType:   strPtr("application/octet-stream"),
		ByteSize:      int64Ptr(int64(len(pcm))),
	}

	if err := w.uploadWithLimit(ctx, fmt.Sprintf("chunk_%d.pcm", index+1), func() error {
		return w.storage.Upload(ctx, pcmAsset.StoragePath, pcm, "application/octet-stream")
	}); err != nil {
		return fmt.Errorf("failed to upload chunk PCM: %w", err)
	}
	if err := w.db.CreateAsset(ctx, pcmAsset); err != nil {
		return fmt.Errorf("failed to save PCM asset: %w", err)
	}

	wavData := audio.ToWAV(pcm, services.GeminiSampleRate, 1)
	wavAsset := &models.Asset{
		ID:            uuid.New(),
		ProjectID:     project.ID,
		ChunkID:       &row.ID,
		Type:          models.AssetTypeChunkWAV,
		StorageBucket: w.storage.Bucket,
		StoragePath:   w.storage.GenerateStoragePath(project.ID, storage.ChunkAudioFilename(project.Name, index+1)),
		ContentType:   strPtr("audio/wav"),
		ByteSize:      int64Ptr(int64(len(wavData))),
	}

	if err := w.uploadWithLimit(ctx, wavAsset.StoragePath, func() error {
		return w.storage.Upload(ctx, wavAsset.StoragePath, wavData, "audio/wav")
	}); err != nil {
		return fmt.Errorf("failed to upload chunk WAV: %w", err)
	}
	if err := w.db.CreateAsset(ctx, wavAsset); err != nil {
		return fmt.Errorf("failed to save WAV asset: %w", err)
	}

	if err := w.db.SetChunkCompleted(ctx, row.ID, retryCount, pcmAsset.ID, wavAsset.ID); err != nil {
		return fmt.Errorf("failed to mark chunk completed: %w", err)
	}

	if err := w.refreshPreview(ctx, project, pcmByIndex); err != nil {
		// Preview is a convenience; a failed refresh must not abort the run.
		log.Printf("[Generate] WARNING: preview refresh failed for project %s: %v", project.ID, err)
	}

	if project.IllustrationsEnabled {
		illJobID := uuid.New()
		illJob := &models.Job{
			ID:        illJobID,
			ProjectID: project.ID,
			ChunkID:   &row.ID,
			Type:      "illustrate_chunk",
			Status:    models.JobStatusQueued,
		}
		if err := w.db.CreateJob(ctx, illJob); err != nil {
			return fmt.Errorf("failed to create illustration job: %w", err)
		}
		if err := w.queue.EnqueueIllustrateChunk(ctx, project.ID, row.ID, illJobID); err != nil {
			return fmt.Errorf("failed to enqueue illustration job: %w", err)
		}
	}

	return nil
}

// refreshPreview rebuilds the growing preview WAV from every chunk voiced so
// far and upserts it at a stable path, so clients can listen mid-run.
func (w *Worker) refreshPreview(ctx context.Context, project *models.Project, pcmByIndex [][]byte) error {
	var voiced [][]byte
	for _, pcm := range pcmByIndex {
		if pcm == nil {
			break // Preview stops at the first gap; chunks are sequential.
		}
		voiced = append(voiced, pcm)
	}
	if len(voiced) == 0 {
		return nil
	}

	previewData := audio.ToWAV(audio.Concatenate(voiced), services.GeminiSampleRate, 1)
	previewPath := w.storage.GenerateStoragePath(project.ID, "preview.wav")

	if err := w.uploadWithLimit(ctx, "preview.wav", func() error {
		return w.storage.Upload(ctx, previewPath, previewData, "audio/wav")
	}); err != nil {
		return err
	}

	// The preview asset row is created once; later refreshes overwrite the
	// object in place.
	if project.PreviewAssetID == nil {
		previewAsset := &models.Asset{
			ID:            uuid.New(),
			ProjectID:     project.ID,
			Type:          models.AssetTypePreviewWAV,
			StorageBucket: w.storage.Bucket,
			StoragePath:   previewPath,
			ContentType:   strPtr("audio/wav"),
			ByteSize:      int64Ptr(int64(len(previewData))),
		}
		if err := w.db.CreateAsset(ctx, previewAsset); err != nil {
			return err
		}
		if err := w.db.SetProjectPreviewAsset(ctx, project.ID, previewAsset.ID); err != nil {
			return err
		}
		project.PreviewAssetID = &previewAsset.ID
	}

	return nil
}

// handleIllustrateChunk generates the full image batch for one chunk in
// parallel. The batch is all-or-nothing: nothing is uploaded unless every
// image succeeds, so a chunk never ends up with a partial set.
func (w *Worker) handleIllustrateChunk(ctx context.Context, job *queue.Job) error {
	if job.ChunkID == nil {
		return fmt.Errorf("chunk ID missing")
	}

	chunk, err := w.db.GetChunk(ctx, *job.ChunkID)
	if err != nil {
		return fmt.Errorf("failed to get chunk: %w", err)
	}
	project, err := w.db.GetProject(ctx, job.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to get project: %w", err)
	}

	count := project.ImagesPerChunk
	if count < 1 {
		count = 1
	}

	// Style is derived from the manuscript so all chunks share one look.
	// DescribeStyle degrades to a default on failure rather than erroring.
	style := w.openai.DescribeStyle(ctx, project.Text)

	log.Printf("[Illustrate] chunk %d: generating %d image(s)...", chunk.ChunkIndex+1, count)

	// Siblings are not cancelled when one fails: every call runs to
	// completion and the batch is judged afterwards.
	images := make([][]byte, count)
	var g errgroup.Group
	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			data, err := w.images.GenerateIllustration(ctx, style, chunk.Text)
			if err != nil {
				return fmt.Errorf("image %d/%d: %w", i+1, count, err)
			}
			images[i] = data
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("illustration batch for chunk %d failed: %w", chunk.ChunkIndex+1, err)
	}

	for i, data := range images {
		asset := &models.Asset{
			ID:            uuid.New(),
			ProjectID:     project.ID,
			ChunkID:       &chunk.ID,
			Type:          models.AssetTypeImage,
			StorageBucket: w.storage.Bucket,
			StoragePath:   w.storage.GenerateStoragePath(project.ID, fmt.Sprintf("chunk_%d_image_%d.png", chunk.ChunkIndex+1, i+1)),
			ContentType:   strPtr("image/png"),
			ByteSize:      int64Ptr(int64(len(data))),
		}

		if err := w.uploadWithLimit(ctx, asset.StoragePath, func() error {
			return w.storage.Upload(ctx, asset.StoragePath, data, "image/png")
		}); err != nil {
			return fmt.Errorf("failed to upload image %d: %w", i+1, err)
		}
		if err := w.db.CreateAsset(ctx, asset); err != nil {
			return fmt.Errorf("failed to save image asset: %w", err)
		}
	}

	log.Printf("[Illustrate] chunk %d: %d image(s) stored", chunk.ChunkIndex+1, count)
	return nil
}

// handleExportAudiobook assembles the final artifact from the per-chunk PCM
// captures: one download pass, one concatenation, one encode, one upload.
func (w *Worker) handleExportAudiobook(ctx context.Context, job *queue.Job) error {
	project, err := w.db.GetProject(ctx, job.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to get project: %w", err)
	}

	// Cancels are accepted while a project is exporting, so the flag must be
	// acknowledged here too; left unread it would outlive this job and kill
	// the next generate run at its start check.
	if w.queue.CancelRequested(ctx, project.ID) {
		w.queue.ClearCancel(ctx, project.ID)
		log.Printf("[Export] project %s cancelled before assembly", project.ID)
		return w.db.UpdateProjectStatus(ctx, project.ID, models.ProjectStatusCancelled)
	}

	rows, err := w.db.GetProjectChunks(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("failed to load chunks: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("project has no chunks to export")
	}

	parts := make([][]byte, len(rows))
	for i, row := range rows {
		if row.Status != models.ChunkStatusCompleted || row.PCMAssetID == nil {
			msg := fmt.Sprintf("cannot export: chunk %d/%d has no audio", i+1, len(rows))
			w.db.SetProjectError(ctx, project.ID, msg)
			return errors.New(msg)
		}
		parts[i], err = w.downloadAsset(ctx, *row.PCMAssetID)
		if err != nil {
			return fmt.Errorf("failed to fetch audio for chunk %d: %w", i+1, err)
		}
	}

	// Second poll after the download phase, which dominates export time.
	// The per-chunk artifacts stay in storage either way.
	if w.queue.CancelRequested(ctx, project.ID) {
		w.queue.ClearCancel(ctx, project.ID)
		log.Printf("[Export] project %s cancelled before final encode", project.ID)
		return w.db.UpdateProjectStatus(ctx, project.ID, models.ProjectStatusCancelled)
	}

	pcm := audio.Concatenate(parts)

	var (
		data        []byte
		ext         string
		contentType string
	)

	switch project.OutputFormat {
	case models.FormatMP3:
		enc, err := w.ffmpeg.NewMP3Encoder(ctx, services.GeminiSampleRate, 1, w.mp3BitrateKbps)
		if err != nil {
			w.db.SetProjectError(ctx, project.ID, err.Error())
			return fmt.Errorf("mp3 export unavailable: %w", err)
		}
		data, err = audio.ToMP3(pcm, enc)
		if err != nil {
			w.db.SetProjectError(ctx, project.ID, err.Error())
			return fmt.Errorf("mp3 encoding failed: %w", err)
		}
		ext, contentType = "mp3", "audio/mpeg"
	default:
		data = audio.ToWAV(pcm, services.GeminiSampleRate, 1)
		ext, contentType = "wav", "audio/wav"
	}

	finalAsset := &models.Asset{
		ID:            uuid.New(),
		ProjectID:     project.ID,
		Type:          models.AssetTypeFinalAudio,
		StorageBucket: w.storage.Bucket,
		StoragePath:   w.storage.GenerateStoragePath(project.ID, storage.FinalAudioFilename(project.Name, ext)),
		ContentType:   strPtr(contentType),
		ByteSize:      int64Ptr(int64(len(data))),
	}

	if err := w.uploadWithLimit(ctx, finalAsset.StoragePath, func() error {
		return w.storage.Upload(ctx, finalAsset.StoragePath, data, contentType)
	}); err != nil {
		w.db.SetProjectError(ctx, project.ID, fmt.Sprintf("final upload failed: %v", err))
		return fmt.Errorf("failed to upload final audio: %w", err)
	}
	if err := w.db.CreateAsset(ctx, finalAsset); err != nil {
		return fmt.Errorf("failed to save final asset: %w", err)
	}

	if err := w.db.SetProjectFinalAsset(ctx, project.ID, finalAsset.ID); err != nil {
		return fmt.Errorf("failed to mark project completed: %w", err)
	}

	log.Printf("[Export] project %s complete: %s (%d bytes)", project.ID, finalAsset.StoragePath, len(data))
	return nil
}

func (w *Worker) downloadAsset(ctx context.Context, assetID uuid.UUID) ([]byte, error) {
	asset, err := w.db.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return w.storage.Download(ctx, asset.StoragePath)
}

func countCompleted(pcmByIndex [][]byte) int {
	n := 0
	for _, pcm := range pcmByIndex {
		if pcm != nil {
			n++
		}
	}
	return n
}

func strPtr(s string) *string { return &s }

func int64Ptr(i int64) *int64 { return &i }
