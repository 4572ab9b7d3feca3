package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Gemini Text-to-Speech Service
// Uses the Google Gen AI SDK with audio response modality. The model returns
// raw 16-bit mono PCM at 24 kHz, which is exactly what the assembler wants.
// ---------------------------------------------------------------------------

const (
	geminiTTSDefaultModel = "gemini-2.5-flash-preview-tts"
	geminiTTSDefaultVoice = "Kore"

	// GeminiSampleRate is the fixed output rate of the Gemini TTS models.
	GeminiSampleRate = 24000
)

// GeminiSpeechService handles text-to-speech via the Gemini API.
type GeminiSpeechService struct {
	apiKey  string
	modelID string
	voice   string
}

// Ensure GeminiSpeechService implements SpeechService at compile time.
var _ SpeechService = (*GeminiSpeechService)(nil)

// NewGeminiSpeechService creates a Gemini TTS service. Empty model or voice
// fall back to the service defaults.
func NewGeminiSpeechService(apiKey, modelID, voice string) *GeminiSpeechService {
	if modelID == "" {
		modelID = geminiTTSDefaultModel
	}
	if voice == "" {
		voice = geminiTTSDefaultVoice
	}
	return &GeminiSpeechService{
		apiKey:  apiKey,
		modelID: modelID,
		voice:   voice,
	}
}

// Synthesize converts one text chunk to raw PCM using Gemini.
// Implements the SpeechService interface.
// voiceName overrides the service-level default when non-empty.
func (s *GeminiSpeechService) Synthesize(ctx context.Context, text, voiceName string) (*SpeechResult, error) {
	if s.apiKey == "" {
		return nil, ErrMissingCredential
	}

	effectiveVoice := s.voice
	if voiceName != "" {
		effectiveVoice = voiceName
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: effectiveVoice,
				},
			},
		},
	}

	log.Printf("[Gemini TTS] Synthesizing (model=%s, voice=%s, textLen=%d)",
		s.modelID, effectiveVoice, len(text))

	resp, err := client.Models.GenerateContent(ctx, s.modelID, genai.Text(text), config)
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			pcm := part.InlineData.Data
			log.Printf("[Gemini TTS] Speech generated (%d PCM bytes, mime=%s)",
				len(pcm), part.InlineData.MIMEType)
			return &SpeechResult{
				PCM:        pcm,
				SampleRate: GeminiSampleRate,
				Channels:   1,
			}, nil
		}
	}

	return nil, fmt.Errorf("no audio data found in response (%d parts, none with inlineData)",
		len(resp.Candidates[0].Content.Parts))
}

// classifyGeminiError maps SDK errors onto the synthesis error taxonomy:
// 429s and quota/resource-exhaustion markers become *RateLimitError so the
// pipeline ratchets its pacing; everything else passes through wrapped.
func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Status == "RESOURCE_EXHAUSTED" || looksRateLimited(apiErr.Code, apiErr.Message) {
			return &RateLimitError{StatusCode: apiErr.Code, Message: apiErr.Message}
		}
		return fmt.Errorf("gemini tts failed (status %d %s): %s", apiErr.Code, apiErr.Status, apiErr.Message)
	}
	if looksRateLimited(0, err.Error()) {
		return &RateLimitError{StatusCode: 429, Message: err.Error()}
	}
	return fmt.Errorf("gemini tts request failed: %w", err)
}
