// Vocalis is a voice inference gateway: it fronts a Wyoming TTS engine
// and a faster-whisper STT engine with a validated REST API, assembling
// chunked engine output into stored artifacts and inline transcripts.
//
// Usage:
//
//	vocalis [flags]
//	vocalis --config /path/to/vocalis.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nlebel/vocalis/docs"
	"github.com/nlebel/vocalis/internal/api"
	"github.com/nlebel/vocalis/internal/config"
	"github.com/nlebel/vocalis/internal/engine"
	"github.com/nlebel/vocalis/internal/engine/whisper"
	"github.com/nlebel/vocalis/internal/engine/wyoming"
	"github.com/nlebel/vocalis/internal/pool"
	"github.com/nlebel/vocalis/internal/synth"
	"github.com/nlebel/vocalis/internal/transcribe"
)

// version is set at build time via ldflags.
var version = "dev"

// @title        Vocalis API
// @version      1.0
// @description  Text-to-speech synthesis and speech-to-text transcription gateway.
// @BasePath     /
func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/vocalis.yaml)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("vocalis %s\n", version)
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging.
	config.SetupLogging(cfg.Logging)
	slog.Info("vocalis starting", "version", version)

	// Create root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The artifact and upload directories must exist before the first request.
	for _, dir := range []string{cfg.TTS.OutputDir, cfg.STT.UploadDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			slog.Error("failed to create data directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	// Build the model pool: one pipeline handle per language, once.
	pipelines := pool.New(cfg.TTS, func(endpoint, language string) engine.Pipeline {
		return wyoming.New(endpoint, language)
	})
	slog.Info("synthesis pool ready",
		"languages", pipelines.Languages(),
		"default_endpoint", cfg.TTS.Endpoint)

	recognizer := whisper.New(cfg.STT)
	slog.Info("transcription engine ready",
		"endpoint", cfg.STT.Endpoint,
		"model", cfg.STT.ModelSize,
		"device", cfg.STT.Device,
		"compute_type", cfg.STT.ComputeType)

	generator := synth.New(pipelines, cfg.TTS)
	transcriber := transcribe.New(recognizer)

	server := api.New(cfg, generator, transcriber, pipelines)
	server.SetReady(true)

	if err := server.ListenAndServe(ctx); err != nil {
		slog.Error("api server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("vocalis stopped")
}
