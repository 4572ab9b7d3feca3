package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// Gemini Image Generation Service
// Generates per-chunk illustrations via the Gemini REST API with mixed
// TEXT+IMAGE response modalities. Image failures are loud — the worker
// decides whether a batch counts (all-or-nothing per chunk).
// ---------------------------------------------------------------------------

const geminiImageModel = "gemini-3-pro-image-preview"

type ImageService struct {
	apiKey string
	client *http.Client
}

func NewImageService(apiKey string) *ImageService {
	return &ImageService{
		apiKey: apiKey,
		client: &http.Client{Timeout: 300 * time.Second},
	}
}

// Gemini API request/response structures
type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateIllustration generates a single image for a scene, rendered in the
// given style. Each call is independent — safe for parallel fan-out per chunk.
func (s *ImageService) GenerateIllustration(ctx context.Context, style, sceneText string) ([]byte, error) {
	if s.apiKey == "" {
		return nil, ErrMissingCredential
	}

	prompt := composeIllustrationPrompt(style, sceneText)

	reqBody := geminiGenerateContentRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s",
		geminiImageModel, s.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, truncateString(string(bodyBytes), 300))
	}

	var geminiResp geminiGenerateContentResponse
	if err := json.Unmarshal(bodyBytes, &geminiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(geminiResp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	for _, part := range geminiResp.Candidates[0].Content.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			imageData, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode base64 image: %w", err)
			}
			log.Printf("[Gemini image] Illustration generated (%d bytes)", len(imageData))
			return imageData, nil
		}
	}

	return nil, fmt.Errorf("no image data found in response (got %d parts, none with inlineData)",
		len(geminiResp.Candidates[0].Content.Parts))
}

// composeIllustrationPrompt builds the full prompt: style directive + scene.
func composeIllustrationPrompt(style, sceneText string) string {
	var prompt bytes.Buffer

	prompt.WriteString("STYLE: Render the scene below in the following consistent illustration style. ")
	prompt.WriteString("Do not deviate from it between images of the same book.\n")
	prompt.WriteString(style)
	prompt.WriteString("\n\nSCENE TO DEPICT (an excerpt from the book being narrated):\n")
	prompt.WriteString(sceneText)
	prompt.WriteString("\n\nOutput: a single illustration, no text or captions in the image.")

	return prompt.String()
}
