package services

import (
	"fmt"
	"testing"
)

func TestIsRateLimit(t *testing.T) {
	rl := &RateLimitError{StatusCode: 429, Message: "too many requests"}

	if !IsRateLimit(rl) {
		t.Error("expected RateLimitError to be detected")
	}

	// Detection must survive wrapping.
	wrapped := fmt.Errorf("synthesis failed: %w", rl)
	if !IsRateLimit(wrapped) {
		t.Error("expected wrapped RateLimitError to be detected")
	}

	if IsRateLimit(fmt.Errorf("connection reset")) {
		t.Error("plain error misclassified as rate limit")
	}

	if IsRateLimit(ErrMissingCredential) {
		t.Error("missing credential misclassified as rate limit")
	}
}

func TestLooksRateLimited(t *testing.T) {
	cases := []struct {
		status  int
		message string
		want    bool
	}{
		{429, "", true},
		{503, "model quota exceeded", true},
		{500, "RESOURCE_EXHAUSTED", true},
		{500, "Resource exhausted for model", true},
		{400, "You hit a rate limit", true},
		{500, "internal error", false},
		{503, "service unavailable", false},
	}

	for _, c := range cases {
		if got := looksRateLimited(c.status, c.message); got != c.want {
			t.Errorf("looksRateLimited(%d, %q) = %v, want %v", c.status, c.message, got, c.want)
		}
	}
}
