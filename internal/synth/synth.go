// Package synth is the synthesis adapter: it drives a pipeline over the
// input text, assembles the chunked engine output into one WAV artifact,
// and persists it under a collision-free name.
package synth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nlebel/vocalis/internal/config"
	"github.com/nlebel/vocalis/internal/fault"
	"github.com/nlebel/vocalis/internal/pool"
)

// Artifact describes one generated audio file.
type Artifact struct {
	// Filename is the directory-unique name, audio_<8hex>.<ext>.
	Filename string

	// Path is the location of the artifact on disk.
	Path string

	// SampleRate is the artifact's sample rate in Hz.
	SampleRate int

	// Duration is the wall-clock generation time in seconds, rounded to
	// two decimals. It is not the audio length.
	Duration float64
}

// Generator assembles engine output into stored artifacts.
type Generator struct {
	pool      *pool.Pool
	outputDir string
	format    string
}

// New creates a generator writing artifacts to cfg.OutputDir.
func New(p *pool.Pool, cfg config.TTSConfig) *Generator {
	return &Generator{
		pool:      p,
		outputDir: cfg.OutputDir,
		format:    cfg.AudioFormat,
	}
}

// Generate synthesizes text into one stored artifact. The language must
// already be validated by the caller; every failure comes back as a
// classified fault, never a panic.
func (g *Generator) Generate(ctx context.Context, text, language, voice string, speed float64) (*Artifact, error) {
	start := time.Now()

	handle, selectedVoice := g.pool.Resolve(language, voice)
	logger := slog.With("language", language, "voice", selectedVoice)
	logger.Info("synthesis started", "text_length", len(text), "speed", speed)

	stream, err := handle.Synthesize(ctx, text, selectedVoice, speed)
	if err != nil {
		return nil, fault.Wrap(fault.KindEngine, err, "starting synthesis")
	}
	defer stream.Close()

	// Drain the whole chunk sequence eagerly; the engine decides how to
	// split the text and the chunk count is never assumed.
	var pcm bytes.Buffer
	chunks := 0
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fault.Wrap(fault.KindEngine, err, "draining synthesis stream")
		}
		pcm.Write(chunk.Audio)
		chunks++
	}

	if chunks == 0 || pcm.Len() == 0 {
		return nil, fault.New(fault.KindEngine, "engine produced no audio")
	}

	format := stream.Format()
	wav := pcmToWAV(pcm.Bytes(), format.SampleRate, format.Channels, format.Width)

	filename := fmt.Sprintf("audio_%s.%s", shortID(), g.format)
	path := filepath.Join(g.outputDir, filename)
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return nil, fault.Wrap(fault.KindStorage, err, "writing artifact %s", filename)
	}

	duration := roundSeconds(time.Since(start))
	logger.Info("synthesis complete",
		"filename", filename, "chunks", chunks,
		"pcm_bytes", pcm.Len(), "duration", duration)

	return &Artifact{
		Filename:   filename,
		Path:       path,
		SampleRate: format.SampleRate,
		Duration:   duration,
	}, nil
}

// shortID returns 8 hex characters of a random UUID. Directory-scoped
// uniqueness is the only requirement.
func shortID() string {
	id := uuid.New()
	return id.String()[:8]
}

// roundSeconds reports d in seconds rounded to two decimals.
func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
