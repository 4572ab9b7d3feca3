package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/enzocage/audiobook-forge/internal/audio"
	"github.com/enzocage/audiobook-forge/internal/segment"
	"github.com/enzocage/audiobook-forge/internal/services"
)

// testOptions keeps the production policy shape but with waits measured in
// microseconds so retry-heavy tests stay fast.
func testOptions() Options {
	return Options{
		MaxAttempts:        15,
		FailFastThreshold:  3,
		RetryBaseDelay:     time.Microsecond,
		RetryGrowth:        1.5,
		RateLimitBaseDelay: 10 * time.Microsecond,
		RateLimitStepDelay: 5 * time.Microsecond,
		RatchetedPacing:    6 * time.Millisecond,
		InitialPacing:      0,
	}
}

func makeChunks(texts ...string) []Chunk {
	chunks := make([]Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = Chunk{Index: i, Text: t}
	}
	return chunks
}

// scriptedSynth returns canned responses per call, in order, and records
// which texts were synthesized.
type scriptedSynth struct {
	errs  []error // nil entry = success; consumed per call
	calls []string
	pcm   []byte
}

func (s *scriptedSynth) synthesize(ctx context.Context, text string) ([]byte, error) {
	s.calls = append(s.calls, text)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return s.pcm, nil
}

func TestRunEndToEnd(t *testing.T) {
	texts := segment.Split("Hello world. This is a test. Another sentence here.", 20)
	if len(texts) != 3 {
		t.Fatalf("expected 3 segments, got %v", texts)
	}

	synth := &scriptedSynth{pcm: make([]byte, 100)}

	var completed []int
	var lastPercent float64
	runner := NewRunner(synth.synthesize, testOptions(), Events{
		Progress: func(percent float64, currentChunk int) { lastPercent = percent },
		ChunkCompleted: func(index int, pcm []byte) error {
			completed = append(completed, index)
			return nil
		},
	})

	state, err := runner.Run(context.Background(), makeChunks(texts...), 0, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if lastPercent != 100 {
		t.Errorf("expected final progress 100, got %v", lastPercent)
	}
	for i, want := range []int{0, 1, 2} {
		if completed[i] != want {
			t.Errorf("completion order: expected %v, got %v", []int{0, 1, 2}, completed)
			break
		}
	}

	var buffers [][]byte
	for _, c := range state.Chunks {
		if c.Status != StatusCompleted {
			t.Fatalf("chunk %d not completed: %s", c.Index, c.Status)
		}
		if c.RetryCount != 0 {
			t.Errorf("chunk %d: unexpected retries: %d", c.Index, c.RetryCount)
		}
		buffers = append(buffers, c.PCM)
	}

	wav := audio.ToWAV(audio.Concatenate(buffers), 24000, 1)
	if len(wav) != 44+300 {
		t.Errorf("expected %d-byte WAV, got %d", 44+300, len(wav))
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != 300 {
		t.Errorf("Subchunk2Size: expected 300, got %d", got)
	}
}

func TestRunResumeSkipsEarlierChunks(t *testing.T) {
	synth := &scriptedSynth{pcm: []byte{1, 2}}
	runner := NewRunner(synth.synthesize, testOptions(), Events{})

	state, err := runner.Run(context.Background(), makeChunks("a.", "b.", "c."), 2, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(synth.calls) != 1 || synth.calls[0] != "c." {
		t.Errorf("expected only chunk 2 synthesized, got calls %v", synth.calls)
	}
	if state.Chunks[0].Status != StatusCompleted || state.Chunks[1].Status != StatusCompleted {
		t.Error("chunks before startIndex should be treated as satisfied")
	}
	if state.Chunks[0].PCM != nil {
		t.Error("skipped chunks must not carry fresh PCM")
	}
}

func TestRunFailFast(t *testing.T) {
	boom := errors.New("boom")
	synth := &scriptedSynth{errs: []error{boom, boom, boom, boom, boom}}
	runner := NewRunner(synth.synthesize, testOptions(), Events{})

	_, err := runner.Run(context.Background(), makeChunks("a.", "b."), 0, nil)
	if err == nil {
		t.Fatal("expected run to fail")
	}

	var chunkErr *ChunkError
	if !errors.As(err, &chunkErr) {
		t.Fatalf("expected ChunkError, got %T: %v", err, err)
	}
	if chunkErr.Position != 1 {
		t.Errorf("expected failing position 1, got %d", chunkErr.Position)
	}
	// Fail-fast: exactly 3 attempts on chunk 1, never a 4th, never chunk 2.
	if len(synth.calls) != 3 {
		t.Errorf("expected exactly 3 attempts, got %d (%v)", len(synth.calls), synth.calls)
	}
	for _, c := range synth.calls {
		if c != "a." {
			t.Errorf("chunk beyond the failing one was attempted: %v", synth.calls)
		}
	}
}

func TestRunRateLimitRatchet(t *testing.T) {
	rl := &services.RateLimitError{StatusCode: 429, Message: "quota exceeded"}
	synth := &scriptedSynth{pcm: []byte{0, 0}, errs: []error{rl}}

	opts := testOptions()
	runner := NewRunner(synth.synthesize, opts, Events{})

	state, err := runner.Run(context.Background(), makeChunks("a.", "b.", "c."), 0, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if state.InterChunkDelay < opts.RatchetedPacing {
		t.Errorf("pacing not ratcheted: %v < %v", state.InterChunkDelay, opts.RatchetedPacing)
	}
	if state.Chunks[0].RetryCount != 1 {
		t.Errorf("expected 1 retry on chunk 0, got %d", state.Chunks[0].RetryCount)
	}
	// 1 failed + 1 retried attempt for chunk 0, then one each for 1 and 2
	if len(synth.calls) != 4 {
		t.Errorf("expected 4 synthesis calls, got %d", len(synth.calls))
	}
}

func TestRunRateLimitDoesNotFailFast(t *testing.T) {
	rl := &services.RateLimitError{StatusCode: 429, Message: "resource exhausted"}
	synth := &scriptedSynth{pcm: []byte{7}, errs: []error{rl, rl, rl, rl}}
	runner := NewRunner(synth.synthesize, testOptions(), Events{})

	state, err := runner.Run(context.Background(), makeChunks("a."), 0, nil)
	if err != nil {
		t.Fatalf("rate limits within budget must not abort the run: %v", err)
	}
	if state.Chunks[0].RetryCount != 4 {
		t.Errorf("expected 4 retries, got %d", state.Chunks[0].RetryCount)
	}
}

func TestRunAttemptsExhausted(t *testing.T) {
	rl := &services.RateLimitError{StatusCode: 429, Message: "quota"}
	opts := testOptions()
	opts.MaxAttempts = 3

	synth := &scriptedSynth{errs: []error{rl, rl, rl}}
	runner := NewRunner(synth.synthesize, opts, Events{})

	_, err := runner.Run(context.Background(), makeChunks("a."), 0, nil)
	var chunkErr *ChunkError
	if !errors.As(err, &chunkErr) {
		t.Fatalf("expected ChunkError, got %v", err)
	}
	if len(synth.calls) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(synth.calls))
	}
}

func TestRunCancellationPreservesCompleted(t *testing.T) {
	synth := &scriptedSynth{pcm: []byte{9, 9}}

	cancelAfterFirst := false
	runner := NewRunner(synth.synthesize, testOptions(), Events{
		ChunkCompleted: func(index int, pcm []byte) error {
			cancelAfterFirst = true
			return nil
		},
	})

	state, err := runner.Run(context.Background(), makeChunks("a.", "b.", "c."), 0,
		func() bool { return cancelAfterFirst })

	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if state.Chunks[0].Status != StatusCompleted || len(state.Chunks[0].PCM) != 2 {
		t.Error("completed chunk PCM must be preserved across cancellation")
	}
	if state.Chunks[1].Status == StatusCompleted {
		t.Error("no chunk beyond the cancellation point should complete")
	}
	if len(synth.calls) != 1 {
		t.Errorf("expected 1 synthesis call, got %d", len(synth.calls))
	}
}

func TestRunCancellationDuringRetryWait(t *testing.T) {
	boom := errors.New("boom")
	synth := &scriptedSynth{pcm: []byte{1}, errs: []error{boom}}

	// Raise the flag while the failed chunk waits out its retry backoff.
	cancelRequested := false
	runner := NewRunner(synth.synthesize, testOptions(), Events{
		ChunkRetrying: func(index, attempt int, wait time.Duration, cause error) {
			cancelRequested = true
		},
	})

	state, err := runner.Run(context.Background(), makeChunks("a.", "b."), 0,
		func() bool { return cancelRequested })

	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if got := state.Chunks[0].Status; got != StatusPending {
		t.Errorf("cancellation is not a failure: chunk should return to pending, got %s", got)
	}
	if len(synth.calls) != 1 {
		t.Errorf("no retry should follow the cancellation, got %d calls", len(synth.calls))
	}
}

func TestRunCallbackErrorAborts(t *testing.T) {
	synth := &scriptedSynth{pcm: []byte{1}}
	runner := NewRunner(synth.synthesize, testOptions(), Events{
		ChunkCompleted: func(index int, pcm []byte) error {
			return fmt.Errorf("store rejected chunk %d", index)
		},
	})

	_, err := runner.Run(context.Background(), makeChunks("a.", "b."), 0, nil)
	var chunkErr *ChunkError
	if !errors.As(err, &chunkErr) {
		t.Fatalf("expected ChunkError, got %v", err)
	}
	if chunkErr.Position != 1 {
		t.Errorf("expected position 1, got %d", chunkErr.Position)
	}
	if len(synth.calls) != 1 {
		t.Errorf("no further chunks should be dispatched after a callback failure, got %d calls", len(synth.calls))
	}
}
