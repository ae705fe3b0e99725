// Package whisper implements the engine.Recognizer contract against a
// faster-whisper server.
//
// Two endpoint flavors are supported:
//   - "openai": OpenAI-compatible API (whisper.cpp server, faster-whisper)
//   - "asr":    ahmetoner/whisper-asr-webservice (POST /asr with query params)
//
// Both return verbose JSON with timed segments; the decoded segments are
// exposed through the non-restartable stream contract the adapters consume.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nlebel/vocalis/internal/config"
	"github.com/nlebel/vocalis/internal/engine"
)

// Recognizer is an HTTP client for a faster-whisper server.
type Recognizer struct {
	endpoint  string
	flavor    string // "openai" or "asr"
	modelSize string
	vadFilter bool
	client    *http.Client
}

// New creates a recognizer from config.
func New(cfg config.STTConfig) *Recognizer {
	flavor := cfg.Flavor
	if flavor == "" {
		flavor = "openai"
	}
	return &Recognizer{
		endpoint:  cfg.Endpoint,
		flavor:    flavor,
		modelSize: cfg.ModelSize,
		vadFilter: cfg.VADFilter,
		client:    &http.Client{},
	}
}

// Transcribe uploads the audio file at path and returns the segment stream.
func (r *Recognizer) Transcribe(ctx context.Context, path string, opts engine.TranscribeOpts) (engine.SegmentStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening audio file: %w", err)
	}
	defer f.Close()

	var result verboseResult
	switch r.flavor {
	case "asr":
		result, err = r.transcribeASR(ctx, f, filepath.Base(path), opts)
	default:
		result, err = r.transcribeOpenAI(ctx, f, filepath.Base(path), opts)
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("whisper transcription decoded",
		"segments", len(result.Segments),
		"language", result.Language,
		"probability", result.LanguageProbability)

	return &segmentStream{
		segments: result.Segments,
		info: engine.DetectionInfo{
			Language:    result.Language,
			Probability: result.LanguageProbability,
		},
	}, nil
}

// transcribeASR handles the ahmetoner/whisper-asr-webservice format.
// API: POST /asr?task=transcribe&language=en&output=json&vad_filter=true
// Body: multipart/form-data with field "audio_file"
func (r *Recognizer) transcribeASR(ctx context.Context, audio io.Reader, filename string, opts engine.TranscribeOpts) (verboseResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio_file", filename)
	if err != nil {
		return verboseResult{}, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return verboseResult{}, fmt.Errorf("writing audio: %w", err)
	}
	writer.Close()

	q := make(url.Values)
	q.Set("task", "transcribe")
	q.Set("output", "json")
	q.Set("encode", "true")
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	if opts.WordTimestamps {
		q.Set("word_timestamps", "true")
	}
	if r.vadFilter {
		q.Set("vad_filter", "true")
	}

	reqURL := r.endpoint + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, body)
	if err != nil {
		return verboseResult{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	slog.Debug("whisper-asr request", "url", reqURL)

	return r.do(req)
}

// transcribeOpenAI handles OpenAI-compatible whisper endpoints.
func (r *Recognizer) transcribeOpenAI(ctx context.Context, audio io.Reader, filename string, opts engine.TranscribeOpts) (verboseResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return verboseResult{}, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return verboseResult{}, fmt.Errorf("writing audio: %w", err)
	}

	if r.modelSize != "" {
		_ = writer.WriteField("model", r.modelSize)
	}
	if opts.Language != "" {
		_ = writer.WriteField("language", opts.Language)
	}
	if opts.BeamSize > 0 {
		_ = writer.WriteField("beam_size", strconv.Itoa(opts.BeamSize))
	}
	if opts.WordTimestamps {
		_ = writer.WriteField("timestamp_granularities[]", "word")
	}
	_ = writer.WriteField("response_format", "verbose_json")
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, body)
	if err != nil {
		return verboseResult{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return r.do(req)
}

func (r *Recognizer) do(req *http.Request) (verboseResult, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return verboseResult{}, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return verboseResult{}, fmt.Errorf("transcription failed (status %d): %s", resp.StatusCode, respBody)
	}

	var result verboseResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return verboseResult{}, fmt.Errorf("decoding transcription: %w", err)
	}
	return result, nil
}

// verboseResult is the verbose JSON shape shared by both flavors.
type verboseResult struct {
	Text                string           `json:"text"`
	Language            string           `json:"language"`
	LanguageProbability float64          `json:"language_probability"`
	Segments            []engine.Segment `json:"segments"`
}

// segmentStream replays decoded segments one at a time, preserving the
// non-restartable drain contract the adapters are written against.
type segmentStream struct {
	segments []engine.Segment
	pos      int
	info     engine.DetectionInfo
}

func (s *segmentStream) Next() (engine.Segment, error) {
	if s.pos >= len(s.segments) {
		return engine.Segment{}, io.EOF
	}
	seg := s.segments[s.pos]
	s.pos++
	return seg, nil
}

func (s *segmentStream) Info() engine.DetectionInfo { return s.info }

func (s *segmentStream) Close() error {
	s.pos = len(s.segments)
	return nil
}
