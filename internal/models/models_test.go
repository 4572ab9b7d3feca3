package models

import (
	"encoding/json"
	"testing"
)

func TestProjectStatus(t *testing.T) {
	statuses := []ProjectStatus{
		ProjectStatusQueued,
		ProjectStatusTranslating,
		ProjectStatusGenerating,
		ProjectStatusExporting,
		ProjectStatusCompleted,
		ProjectStatusCancelled,
		ProjectStatusFailed,
	}

	for _, status := range statuses {
		if status == "" {
			t.Errorf("empty status found")
		}
	}
}

func TestChunkStatus(t *testing.T) {
	statuses := []ChunkStatus{
		ChunkStatusPending,
		ChunkStatusInProgress,
		ChunkStatusCompleted,
		ChunkStatusFailed,
	}

	for _, status := range statuses {
		if status == "" {
			t.Errorf("empty status found")
		}
	}
}

func TestCreateProjectRequestOptionalFields(t *testing.T) {
	body := []byte(`{"name": "My Book", "text": "Hello world."}`)

	var req CreateProjectRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	if req.Name != "My Book" {
		t.Errorf("expected name=My Book, got %s", req.Name)
	}
	if req.TargetLanguage != nil {
		t.Errorf("expected nil target_language, got %v", *req.TargetLanguage)
	}
	if req.OutputFormat != nil {
		t.Errorf("expected nil output_format, got %v", *req.OutputFormat)
	}
}

func TestGenerateRequestStartIndex(t *testing.T) {
	// Zero is a valid resume point and must be distinguishable from absent.
	var req GenerateRequest
	if err := json.Unmarshal([]byte(`{"start_index": 0}`), &req); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if req.StartIndex == nil || *req.StartIndex != 0 {
		t.Errorf("expected start_index=0, got %v", req.StartIndex)
	}

	var absent GenerateRequest
	if err := json.Unmarshal([]byte(`{}`), &absent); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if absent.StartIndex != nil {
		t.Errorf("expected absent start_index, got %v", *absent.StartIndex)
	}
}
