package worker

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/enzocage/audiobook-forge/internal/db"
	"github.com/enzocage/audiobook-forge/internal/models"
	"github.com/enzocage/audiobook-forge/internal/queue"
	"github.com/google/uuid"
)

// newTestQueue backs a queue.Queue with an in-process redis server.
func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()

	mr := miniredis.RunT(t)
	q, err := queue.New("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func newTestDB(t *testing.T) (*db.DB, sqlmock.Sqlmock) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &db.DB{DB: conn}, mock
}

func exportingProjectRows(projectID uuid.UUID) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "name", "text", "voice_name", "tts_model", "output_format",
		"target_language", "illustrations_enabled", "images_per_chunk",
		"max_chunk_chars", "status", "last_error", "preview_asset_id",
		"final_asset_id", "created_at", "updated_at",
	}).AddRow(
		projectID.String(), "My Book", "Hello world.", "Kore",
		"gemini-2.5-flash-preview-tts", "wav",
		nil, false, 1,
		3000, string(models.ProjectStatusExporting), nil, nil,
		nil, now, now,
	)
}

// A cancel raised while the export job sits in the queue must be
// acknowledged by the export handler and the flag cleared; a stale flag
// would otherwise cancel the next generate run at its start check.
func TestExportAcknowledgesPendingCancel(t *testing.T) {
	q := newTestQueue(t)
	database, mock := newTestDB(t)

	projectID := uuid.New()
	mock.ExpectQuery("(?s)SELECT.+FROM projects").
		WithArgs(projectID).
		WillReturnRows(exportingProjectRows(projectID))
	mock.ExpectExec("UPDATE projects SET status").
		WithArgs(projectID, models.ProjectStatusCancelled).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	if err := q.RequestCancel(ctx, projectID); err != nil {
		t.Fatalf("failed to raise cancel flag: %v", err)
	}

	w := New(database, q, nil, nil, nil, nil, nil, 128)
	job := &queue.Job{ID: uuid.New(), Type: "export_audiobook", ProjectID: projectID}
	if err := w.handleExportAudiobook(ctx, job); err != nil {
		t.Fatalf("cancelled export should settle cleanly: %v", err)
	}

	if q.CancelRequested(ctx, projectID) {
		t.Error("cancel flag must be cleared once acknowledged")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected db access: %v", err)
	}
}

func TestCancelFlagLifecycle(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	projectID := uuid.New()

	if q.CancelRequested(ctx, projectID) {
		t.Fatal("fresh project must not carry a cancel flag")
	}
	if err := q.RequestCancel(ctx, projectID); err != nil {
		t.Fatalf("failed to request cancel: %v", err)
	}
	if !q.CancelRequested(ctx, projectID) {
		t.Fatal("cancel flag not observed after request")
	}
	if err := q.ClearCancel(ctx, projectID); err != nil {
		t.Fatalf("failed to clear cancel: %v", err)
	}
	if q.CancelRequested(ctx, projectID) {
		t.Error("cancel flag must not survive acknowledgement")
	}
}
