// Package pipeline drives chunked speech generation: strictly sequential
// synthesis calls with retry classification, adaptive rate-limit pacing,
// cooperative cancellation, and incremental per-chunk results.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/enzocage/audiobook-forge/internal/services"
)

// Status is the lifecycle state of a single chunk within a run.
// Transitions are monotonic except failed → in_progress on retry.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Chunk is one synthesis unit. Index is assigned at segmentation time and
// stable for the duration of a run.
type Chunk struct {
	Index int
	Text  string
}

// ChunkResult tracks one chunk's outcome. The Runner is the only writer.
type ChunkResult struct {
	Index      int
	Status     Status
	PCM        []byte
	RetryCount int
}

// RunState is the single mutable record of an active run. It is owned by
// the Runner; observers read it only after Run returns (or via callbacks).
type RunState struct {
	Chunks          []ChunkResult
	StartIndex      int
	InterChunkDelay time.Duration // monotonically non-decreasing within a run
	LastError       string
}

// SynthesizeFunc produces raw PCM for one text segment. Rate-limit failures
// must be distinguishable via services.IsRateLimit.
type SynthesizeFunc func(ctx context.Context, text string) ([]byte, error)

// Events are optional observer callbacks. ChunkCompleted may return an
// error to abort the run (e.g. the artifact store rejected the chunk).
type Events struct {
	// Progress reports percent complete and the current 1-based chunk position.
	Progress func(percent float64, currentChunk int)
	// ChunkRetrying fires before each retry wait.
	ChunkRetrying func(index, attempt int, wait time.Duration, cause error)
	// ChunkCompleted fires after each successful synthesis, in index order.
	ChunkCompleted func(index int, pcm []byte) error
}

// Options tune the retry and pacing policy.
type Options struct {
	// MaxAttempts bounds synthesis attempts per chunk.
	MaxAttempts int
	// FailFastThreshold aborts the whole run once this many non-rate-limit
	// failures accumulate on one chunk with no rate limit observed — a
	// systematic error (bad request, bad key) should not burn the full
	// retry budget.
	FailFastThreshold int
	// RetryBaseDelay and RetryGrowth shape the exponential backoff for
	// non-rate-limit failures: base × growth^attempt.
	RetryBaseDelay time.Duration
	RetryGrowth    float64
	// RateLimitBaseDelay and RateLimitStepDelay shape the linear backoff
	// for rate-limit failures: base + attempt × step.
	RateLimitBaseDelay time.Duration
	RateLimitStepDelay time.Duration
	// RatchetedPacing is the inter-chunk delay adopted permanently for the
	// rest of the run after the first rate-limit observation.
	RatchetedPacing time.Duration
	// InitialPacing is the inter-chunk delay before any rate limit is seen.
	InitialPacing time.Duration
}

// DefaultOptions returns the production policy.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:        15,
		FailFastThreshold:  3,
		RetryBaseDelay:     2000 * time.Millisecond,
		RetryGrowth:        1.5,
		RateLimitBaseDelay: 10000 * time.Millisecond,
		RateLimitStepDelay: 5000 * time.Millisecond,
		RatchetedPacing:    6000 * time.Millisecond,
		InitialPacing:      0,
	}
}

// ErrCancelled reports a cooperative cancellation. It is a deliberate early
// termination, not a failure: completed chunk PCM is preserved in RunState.
var ErrCancelled = errors.New("generation cancelled")

// ChunkError is a terminal run failure, carrying the failing chunk's
// 1-based position.
type ChunkError struct {
	Position int
	Err      error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d: %v", e.Position, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// Runner executes generation runs. It holds no cross-run state: each Run
// gets its own RunState, so independent runs never leak into each other.
type Runner struct {
	synth  SynthesizeFunc
	opts   Options
	events Events
}

func NewRunner(synth SynthesizeFunc, opts Options, events Events) *Runner {
	return &Runner{synth: synth, opts: opts, events: events}
}

// Run processes chunks strictly in increasing index order starting at
// startIndex; earlier indices are treated as already satisfied and are
// never synthesized again (resume without re-billing).
//
// cancelled is polled at the top of each chunk iteration and after every
// wait; it never interrupts a synthesis call already in flight. ctx is the
// hard shutdown path and does interrupt in-flight calls.
//
// The returned RunState is valid even on error: completed chunks keep
// their PCM for partial-artifact assembly.
func (r *Runner) Run(ctx context.Context, chunks []Chunk, startIndex int, cancelled func() bool) (*RunState, error) {
	if startIndex < 0 {
		startIndex = 0
	}
	if cancelled == nil {
		cancelled = func() bool { return false }
	}

	state := &RunState{
		Chunks:          make([]ChunkResult, len(chunks)),
		StartIndex:      startIndex,
		InterChunkDelay: r.opts.InitialPacing,
	}
	for i, c := range chunks {
		state.Chunks[i] = ChunkResult{Index: c.Index, Status: StatusPending}
		if i < startIndex {
			state.Chunks[i].Status = StatusCompleted
		}
	}

	total := len(chunks) - startIndex
	if total <= 0 {
		r.emitProgress(100, len(chunks))
		return state, nil
	}

	processed := 0
	for i := startIndex; i < len(chunks); i++ {
		if cancelled() {
			log.Printf("[Pipeline] Cancellation requested before chunk %d, stopping", i+1)
			return state, ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			return state, fmt.Errorf("run aborted: %w", err)
		}

		chunk := chunks[i]
		result := &state.Chunks[i]
		r.emitProgress(float64(processed)/float64(total)*100, chunk.Index+1)

		pcm, err := r.synthesizeWithRetry(ctx, chunk, result, state, cancelled)
		if err != nil {
			if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return state, err
			}
			result.Status = StatusFailed
			state.LastError = err.Error()
			return state, &ChunkError{Position: chunk.Index + 1, Err: err}
		}

		result.Status = StatusCompleted
		result.PCM = pcm
		processed++

		if r.events.ChunkCompleted != nil {
			if cbErr := r.events.ChunkCompleted(chunk.Index, pcm); cbErr != nil {
				state.LastError = cbErr.Error()
				return state, &ChunkError{Position: chunk.Index + 1, Err: cbErr}
			}
		}
		r.emitProgress(float64(processed)/float64(total)*100, chunk.Index+1)

		// Flat pacing between chunks, independent of and additive with the
		// retry backoff above.
		if i < len(chunks)-1 && state.InterChunkDelay > 0 {
			if err := sleep(ctx, state.InterChunkDelay); err != nil {
				return state, err
			}
			if cancelled() {
				log.Printf("[Pipeline] Cancellation requested during pacing after chunk %d, stopping", i+1)
				return state, ErrCancelled
			}
		}
	}

	return state, nil
}

// synthesizeWithRetry attempts one chunk up to MaxAttempts times, choosing
// the backoff curve by failure class and ratcheting the run's inter-chunk
// pacing on the first rate-limit observation.
func (r *Runner) synthesizeWithRetry(ctx context.Context, chunk Chunk, result *ChunkResult, state *RunState, cancelled func() bool) ([]byte, error) {
	var lastErr error
	otherFailures := 0
	sawRateLimit := false

	for attempt := 0; attempt < r.opts.MaxAttempts; attempt++ {
		result.Status = StatusInProgress
		if attempt > 0 {
			result.RetryCount++
		}

		pcm, err := r.synth(ctx, chunk.Text)
		if err == nil {
			return pcm, nil
		}
		lastErr = err
		result.Status = StatusFailed

		var wait time.Duration
		if services.IsRateLimit(err) {
			sawRateLimit = true
			wait = r.opts.RateLimitBaseDelay + time.Duration(attempt)*r.opts.RateLimitStepDelay

			// A single rate-limit observation means the effective quota is
			// tighter than assumed: pace all remaining chunks. The ratchet
			// never comes back down within a run.
			if state.InterChunkDelay < r.opts.RatchetedPacing {
				state.InterChunkDelay = r.opts.RatchetedPacing
				log.Printf("[Pipeline] Rate limit on chunk %d, pacing ratcheted to %v for the rest of the run",
					chunk.Index+1, state.InterChunkDelay)
			}
		} else {
			otherFailures++
			if !sawRateLimit && otherFailures >= r.opts.FailFastThreshold {
				return nil, fmt.Errorf("aborting after %d consecutive non-rate-limit failures: %w", otherFailures, err)
			}
			wait = time.Duration(float64(r.opts.RetryBaseDelay) * math.Pow(r.opts.RetryGrowth, float64(attempt)))
		}

		log.Printf("[Pipeline] Chunk %d attempt %d failed (%v), retrying in %v", chunk.Index+1, attempt+1, err, wait)
		if r.events.ChunkRetrying != nil {
			r.events.ChunkRetrying(chunk.Index, attempt+1, wait, err)
		}

		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
		if cancelled() {
			// Cancellation is not a failure: the chunk goes back to pending
			// so a resumed run treats it as never attempted.
			result.Status = StatusPending
			return nil, ErrCancelled
		}
	}

	return nil, fmt.Errorf("attempts exhausted (%d): %w", r.opts.MaxAttempts, lastErr)
}

func (r *Runner) emitProgress(percent float64, currentChunk int) {
	if r.events.Progress != nil {
		r.events.Progress(percent, currentChunk)
	}
}

// sleep waits for d, suspending only this run. ctx abort interrupts the wait.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}
