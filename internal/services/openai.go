package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// defaultStyleDescription is the safe fallback when style analysis fails.
// Style and translation are cosmetic helpers; they must never abort the
// audio pipeline, so both degrade silently.
const defaultStyleDescription = "a warm, painterly illustration style with soft lighting and muted colors"

type OpenAIService struct {
	client *openai.Client
	model  string
}

func NewOpenAIService(apiKey string) *OpenAIService {
	return &OpenAIService{
		client: openai.NewClient(apiKey),
		model:  "gpt-5-mini",
	}
}

// Translate renders text into the named target language. On any failure the
// original text is returned unchanged — translation is non-fatal by contract.
func (s *OpenAIService) Translate(ctx context.Context, text, targetLanguage string) string {
	if targetLanguage == "" {
		return text
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf("You are a literary translator. Translate the user's text into %s. "+
					"Preserve paragraph breaks, names, and tone. Output ONLY the translated text with no commentary.", targetLanguage),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
	})
	if err != nil {
		log.Printf("[OpenAI translate] WARNING: translation to %s failed, keeping original text: %v", targetLanguage, err)
		return text
	}
	if len(resp.Choices) == 0 {
		log.Printf("[OpenAI translate] WARNING: empty response, keeping original text")
		return text
	}

	translated := strings.TrimSpace(resp.Choices[0].Message.Content)
	if translated == "" {
		log.Printf("[OpenAI translate] WARNING: blank translation, keeping original text")
		return text
	}

	log.Printf("[OpenAI translate] Translated %d chars to %s (%d chars)", len(text), targetLanguage, len(translated))
	return translated
}

// DescribeStyle derives a short visual style description from a manuscript
// excerpt, used to keep per-chunk illustrations consistent. Failures degrade
// to a generic style string.
func (s *OpenAIService) DescribeStyle(ctx context.Context, excerpt string) string {
	const maxExcerpt = 2000
	if len(excerpt) > maxExcerpt {
		excerpt = excerpt[:maxExcerpt]
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You are an art director. Given an excerpt of a book, describe in 2-3 sentences " +
					"a single consistent illustration style (medium, palette, lighting, era, mood) that suits it. " +
					"Output only the style description.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: excerpt,
			},
		},
	})
	if err != nil {
		log.Printf("[OpenAI style] WARNING: style analysis failed, using default style: %v", err)
		return defaultStyleDescription
	}
	if len(resp.Choices) == 0 {
		return defaultStyleDescription
	}

	style := strings.TrimSpace(resp.Choices[0].Message.Content)
	if style == "" {
		return defaultStyleDescription
	}

	log.Printf("[OpenAI style] Style derived: %s", truncateString(style, 120))
	return style
}

// truncateString truncates a string to maxLen and appends "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
