// Package transcribe is the transcription adapter: it drives the
// recognizer over an audio file, drains the segment sequence, and
// aggregates the full transcript with per-segment timestamps.
package transcribe

import (
	"context"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/nlebel/vocalis/internal/engine"
	"github.com/nlebel/vocalis/internal/fault"
)

// beamSize is the decoder beam width. Quality/speed tradeoff tuned once
// here, not exposed to callers.
const beamSize = 5

// Transcription is the aggregated result of one transcription call.
type Transcription struct {
	// Text is the trimmed concatenation of all segment texts.
	Text string

	// Language is the ISO-639-1 code the engine detected (or was forced to).
	Language string

	// LanguageProbability is the detection confidence, rounded to two
	// decimals.
	LanguageProbability float64

	// Segments lists the timed spans in chronological order.
	Segments []engine.Segment

	// Duration is the wall-clock transcription time in seconds, rounded
	// to two decimals.
	Duration float64
}

// Transcriber runs the recognizer and assembles transcriptions.
type Transcriber struct {
	recognizer engine.Recognizer
}

// New creates a transcriber over the given recognizer.
func New(r engine.Recognizer) *Transcriber {
	return &Transcriber{recognizer: r}
}

// Run transcribes the audio file at path. A language of "" or "auto"
// requests automatic detection. The file's lifecycle belongs to the
// caller; Run only reads it. Every failure comes back as a classified
// fault.
func (t *Transcriber) Run(ctx context.Context, path, language string) (*Transcription, error) {
	start := time.Now()

	if language == "auto" {
		language = ""
	}
	logger := slog.With("path", path, "language", orAuto(language))
	logger.Info("transcription started")

	stream, err := t.recognizer.Transcribe(ctx, path, engine.TranscribeOpts{
		Language:       language,
		BeamSize:       beamSize,
		WordTimestamps: true,
	})
	if err != nil {
		return nil, fault.Wrap(fault.KindEngine, err, "starting transcription")
	}
	defer stream.Close()

	var segments []engine.Segment
	var full strings.Builder
	for {
		seg, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fault.Wrap(fault.KindEngine, err, "draining segment stream")
		}
		segments = append(segments, engine.Segment{
			Start: round2(seg.Start),
			End:   round2(seg.End),
			Text:  strings.TrimSpace(seg.Text),
		})
		full.WriteString(seg.Text)
	}

	text := strings.TrimSpace(full.String())
	if text == "" {
		return nil, fault.New(fault.KindEngine, "no speech recognized")
	}

	info := stream.Info()
	duration := round2(time.Since(start).Seconds())
	logger.Info("transcription complete",
		"segments", len(segments),
		"detected_language", info.Language,
		"duration", duration)

	return &Transcription{
		Text:                text,
		Language:            info.Language,
		LanguageProbability: round2(info.Probability),
		Segments:            segments,
		Duration:            duration,
	}, nil
}

func orAuto(language string) string {
	if language == "" {
		return "auto"
	}
	return language
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
