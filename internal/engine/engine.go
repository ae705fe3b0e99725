// Package engine defines the contracts between the gateway and the
// inference engines it fronts.
//
// Engines are opaque and live out of process: a Wyoming-protocol server for
// synthesis, a faster-whisper server for transcription. Both produce their
// output as a lazy, finite, non-restartable sequence — the gateway drains
// the sequence and assembles the artifact; it never assumes how an engine
// chunks its work.
package engine

import "context"

// DefaultSampleRate is the Kokoro output rate in Hz.
const DefaultSampleRate = 24000

// Format describes the raw PCM an audio stream carries.
type Format struct {
	SampleRate int // Hz
	Channels   int
	Width      int // bytes per sample
}

// Chunk is one unit of a synthesis stream: the engine's text slice, its
// phonetic rendering, and the PCM generated for it.
type Chunk struct {
	Graphemes string
	Phonemes  string
	Audio     []byte
}

// ChunkStream is a non-restartable sequence of synthesis chunks.
// Next returns io.EOF after the final chunk. Format is valid once Next
// has been called at least once.
type ChunkStream interface {
	Next() (Chunk, error)
	Format() Format
	Close() error
}

// Pipeline is a loaded synthesis engine bound to one language.
type Pipeline interface {
	// Synthesize starts generation and returns the chunk stream.
	// The caller must drain or close the stream.
	Synthesize(ctx context.Context, text, voice string, speed float64) (ChunkStream, error)
}

// Segment is one timed span of transcribed speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// DetectionInfo reports the language the engine detected alongside the
// segments, with its confidence probability in [0, 1].
type DetectionInfo struct {
	Language    string
	Probability float64
}

// SegmentStream is a non-restartable sequence of transcription segments.
// Next returns io.EOF after the final segment; Info is valid after that.
type SegmentStream interface {
	Next() (Segment, error)
	Info() DetectionInfo
	Close() error
}

// TranscribeOpts tunes a transcription call.
type TranscribeOpts struct {
	// Language forces the engine to assume the given ISO-639-1 code.
	// Empty means automatic detection.
	Language string

	// BeamSize is the decoder beam width.
	BeamSize int

	// WordTimestamps requests word-level timing from the engine.
	WordTimestamps bool
}

// Recognizer is a loaded transcription engine.
type Recognizer interface {
	// Transcribe runs the engine over the audio file at path and returns
	// the segment stream. The caller owns the file's lifecycle.
	Transcribe(ctx context.Context, path string, opts TranscribeOpts) (SegmentStream, error)
}
