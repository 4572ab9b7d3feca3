package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Supabase
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// Gemini (speech synthesis and illustration generation).
	// Optional at startup: synthesis reports a missing-credential error at
	// call time so projects can still be created and inspected without a key.
	GeminiKey string

	// OpenAI (translation and style description)
	OpenAIKey string

	// ElevenLabs (alternate TTS provider — used when TTS_PROVIDER=elevenlabs)
	ElevenLabsKey     string
	ElevenLabsVoiceID string

	// TTS defaults applied to new projects
	TTSProvider string // "gemini" or "elevenlabs"
	TTSModel    string
	TTSVoice    string

	// Text segmentation
	MaxChunkChars int

	// Export
	MP3BitrateKbps int

	// Illustrations
	ImagesPerChunk int

	// Worker
	MaxConcurrentJobs int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379"),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "audiobooks"),
		GeminiKey:             getEnv("GEMINI_API_KEY", ""),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		ElevenLabsKey:         getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:     getEnv("ELEVENLABS_VOICE_ID", ""),
		TTSProvider:           getEnv("TTS_PROVIDER", "gemini"),
		TTSModel:              getEnv("TTS_MODEL", "gemini-2.5-flash-preview-tts"),
		TTSVoice:              getEnv("TTS_VOICE", "Kore"),
		MaxChunkChars:         getEnvInt("MAX_CHUNK_CHARS", 3000),
		MP3BitrateKbps:        getEnvInt("MP3_BITRATE_KBPS", 128),
		ImagesPerChunk:        getEnvInt("IMAGES_PER_CHUNK", 1),
		MaxConcurrentJobs:     getEnvInt("MAX_CONCURRENT_JOBS", 5),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
	}

	if cfg.TTSProvider != "gemini" && cfg.TTSProvider != "elevenlabs" {
		return nil, fmt.Errorf("TTS_PROVIDER must be gemini or elevenlabs, got %q", cfg.TTSProvider)
	}

	if cfg.TTSProvider == "elevenlabs" && cfg.ElevenLabsKey == "" {
		return nil, fmt.Errorf("ELEVENLABS_API_KEY is required when TTS_PROVIDER=elevenlabs")
	}

	if cfg.MaxChunkChars < 1 {
		return nil, fmt.Errorf("MAX_CHUNK_CHARS must be positive, got %d", cfg.MaxChunkChars)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
