package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/enzocage/audiobook-forge/internal/api"
	"github.com/enzocage/audiobook-forge/internal/config"
	"github.com/enzocage/audiobook-forge/internal/db"
	"github.com/enzocage/audiobook-forge/internal/queue"
	"github.com/enzocage/audiobook-forge/internal/services"
	"github.com/enzocage/audiobook-forge/internal/storage"
	"github.com/enzocage/audiobook-forge/internal/worker"
)

func main() {
	log.Println("Starting Audiobook Forge API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Initialize storage
	stor := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
	log.Println("Initialized Supabase storage")

	// Create API handler
	handler := api.NewHandler(database, q, stor, api.Defaults{
		VoiceName:      cfg.TTSVoice,
		TTSModel:       cfg.TTSModel,
		MaxChunkChars:  cfg.MaxChunkChars,
		ImagesPerChunk: cfg.ImagesPerChunk,
	})
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCtx context.Context
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		// Initialize services
		openaiSvc := services.NewOpenAIService(cfg.OpenAIKey)
		imageSvc := services.NewImageService(cfg.GeminiKey)
		ffmpegSvc := services.NewFFmpegService()

		// Speech provider — Gemini by default, ElevenLabs when configured
		var speechSvc services.SpeechService
		switch cfg.TTSProvider {
		case "elevenlabs":
			speechSvc = services.NewElevenLabsService(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
			log.Printf("Speech provider: ElevenLabs (voice: %s)", cfg.ElevenLabsVoiceID)
		default:
			speechSvc = services.NewGeminiSpeechService(cfg.GeminiKey, cfg.TTSModel, cfg.TTSVoice)
			log.Printf("Speech provider: Gemini (model: %s, voice: %s)", cfg.TTSModel, cfg.TTSVoice)
		}

		// Create worker
		w := worker.New(database, q, stor, speechSvc, openaiSvc, imageSvc, ffmpegSvc, cfg.MP3BitrateKbps)

		// Start worker in background
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown worker
	if workerCancel != nil {
		workerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
