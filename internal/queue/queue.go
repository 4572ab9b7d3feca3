package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	QueueGenerateAudiobook = "queue:generate_audiobook"
	QueueIllustrateChunk   = "queue:illustrate_chunk"
	QueueExportAudiobook   = "queue:export_audiobook"
)

type Queue struct {
	client *redis.Client
}

type Job struct {
	ID         uuid.UUID              `json:"id"`
	Type       string                 `json:"type"`
	ProjectID  uuid.UUID              `json:"project_id"`
	ChunkID    *uuid.UUID             `json:"chunk_id,omitempty"`
	StartIndex int                    `json:"start_index,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.RPush(ctx, queueName, data).Err()
}

func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

func (q *Queue) GetQueueLength(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

// EnqueueGenerateAudiobook enqueues a narration run for a project,
// starting (or resuming) at the given chunk index.
func (q *Queue) EnqueueGenerateAudiobook(ctx context.Context, projectID, jobID uuid.UUID, startIndex int) error {
	job := &Job{
		ID:         jobID,
		Type:       "generate_audiobook",
		ProjectID:  projectID,
		StartIndex: startIndex,
	}
	return q.Enqueue(ctx, QueueGenerateAudiobook, job)
}

// EnqueueIllustrateChunk enqueues image generation for one chunk
func (q *Queue) EnqueueIllustrateChunk(ctx context.Context, projectID, chunkID, jobID uuid.UUID) error {
	job := &Job{
		ID:        jobID,
		Type:      "illustrate_chunk",
		ProjectID: projectID,
		ChunkID:   &chunkID,
	}
	return q.Enqueue(ctx, QueueIllustrateChunk, job)
}

// EnqueueExportAudiobook enqueues assembly of the final audio artifact
func (q *Queue) EnqueueExportAudiobook(ctx context.Context, projectID, jobID uuid.UUID) error {
	job := &Job{
		ID:        jobID,
		Type:      "export_audiobook",
		ProjectID: projectID,
	}
	return q.Enqueue(ctx, QueueExportAudiobook, job)
}

// Cancellation flags. A generation run polls its project's flag between
// chunks; the API sets it. The flag survives until the run acknowledges it,
// so a cancel issued while the worker is mid-synthesis still lands.

func cancelKey(projectID uuid.UUID) string {
	return fmt.Sprintf("cancel:%s", projectID)
}

// RequestCancel raises the cancellation flag for a project. The flag
// expires after 24h so abandoned flags don't accumulate.
func (q *Queue) RequestCancel(ctx context.Context, projectID uuid.UUID) error {
	if err := q.client.Set(ctx, cancelKey(projectID), "1", 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to set cancel flag: %w", err)
	}
	return nil
}

// CancelRequested reports whether a cancel flag is raised for the project.
// Errors are swallowed: a broken flag check must not abort a healthy run.
func (q *Queue) CancelRequested(ctx context.Context, projectID uuid.UUID) bool {
	n, err := q.client.Exists(ctx, cancelKey(projectID)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// ClearCancel removes the cancellation flag after the run has acknowledged it.
func (q *Queue) ClearCancel(ctx context.Context, projectID uuid.UUID) error {
	if err := q.client.Del(ctx, cancelKey(projectID)).Err(); err != nil {
		return fmt.Errorf("failed to clear cancel flag: %w", err)
	}
	return nil
}
