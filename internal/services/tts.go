package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// SpeechService — common interface for speech synthesis providers
// Both Gemini and ElevenLabs implement this interface so the pipeline
// can use whichever is configured without knowing the underlying provider.
// ---------------------------------------------------------------------------

// SpeechResult is the common response type from any synthesis provider.
// PCM holds raw 16-bit little-endian mono samples.
type SpeechResult struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// SpeechService is the interface that any synthesis provider must implement.
type SpeechService interface {
	// Synthesize converts one text chunk to raw PCM audio. voiceName selects
	// the provider's narrator voice; empty means the provider default.
	// Rate-limit failures are returned as *RateLimitError so the pipeline
	// can apply its backoff ratchet.
	Synthesize(ctx context.Context, text, voiceName string) (*SpeechResult, error)
}

// ErrMissingCredential is returned synchronously, before any network call,
// when a provider has no API key configured.
var ErrMissingCredential = errors.New("missing API credential")

// RateLimitError marks a synthesis failure caused by provider quota or
// request-rate limits. The pipeline retries these with generous, increasing
// delay and permanently raises its inter-chunk pacing.
type RateLimitError struct {
	StatusCode int
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (status %d): %s", e.StatusCode, e.Message)
}

// IsRateLimit reports whether err is (or wraps) a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// looksRateLimited sniffs a provider status code and message for the usual
// quota/resource-exhaustion markers.
func looksRateLimited(statusCode int, message string) bool {
	if statusCode == 429 {
		return true
	}
	lower := strings.ToLower(message)
	return strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "quota") ||
		strings.Contains(lower, "resource_exhausted") ||
		strings.Contains(lower, "resource exhausted")
}
