package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlebel/vocalis/internal/config"
	"github.com/nlebel/vocalis/internal/engine"
	"github.com/nlebel/vocalis/internal/fault"
	"github.com/nlebel/vocalis/internal/synth"
	"github.com/nlebel/vocalis/internal/transcribe"
)

type fakeSynthesizer struct {
	outputDir string
	err       error
	calls     int
}

func (f *fakeSynthesizer) Generate(ctx context.Context, text, language, voice string, speed float64) (*synth.Artifact, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	filename := fmt.Sprintf("audio_%08d.wav", f.calls)
	path := filepath.Join(f.outputDir, filename)
	if err := os.WriteFile(path, []byte("RIFFfake-wav-bytes"), 0o644); err != nil {
		return nil, err
	}
	return &synth.Artifact{
		Filename:   filename,
		Path:       path,
		SampleRate: engine.DefaultSampleRate,
		Duration:   0.42,
	}, nil
}

type fakeTranscriber struct {
	err    error
	result *transcribe.Transcription

	calls       int
	gotPath     string
	gotLanguage string
	pathExisted bool
}

func (f *fakeTranscriber) Run(ctx context.Context, path, language string) (*transcribe.Transcription, error) {
	f.calls++
	f.gotPath = path
	f.gotLanguage = language
	if _, err := os.Stat(path); err == nil {
		f.pathExisted = true
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &transcribe.Transcription{
		Text:                "Bonjour tout le monde",
		Language:            "fr",
		LanguageProbability: 0.98,
		Segments: []engine.Segment{
			{Start: 0, End: 2.3, Text: "Bonjour tout le monde"},
		},
		Duration: 1.07,
	}, nil
}

type fakeCatalog struct{}

func (fakeCatalog) Supported(language string) bool {
	return language == "fr" || language == "en"
}

func (fakeCatalog) Voices() map[string][]string {
	return map[string][]string{
		"fr": {"ff_siwis"},
		"en": {"af_heart", "bm_lewis"},
	}
}

type fixture struct {
	server      *Server
	synthesizer *fakeSynthesizer
	transcriber *fakeTranscriber
	outputDir   string
	uploadDir   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	outputDir := t.TempDir()
	uploadDir := t.TempDir()

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0},
		TTS: config.TTSConfig{
			Languages:     []string{"fr", "en"},
			DefaultVoices: map[string]string{"fr": "ff_siwis", "en": "af_heart"},
			DefaultSpeed:  1.0,
			MaxTextLength: 100,
			OutputDir:     outputDir,
			AudioFormat:   "wav",
		},
		STT: config.STTConfig{
			ModelSize:       "small",
			Device:          "cuda",
			ComputeType:     "float16",
			UploadDir:       uploadDir,
			MaxUploadSizeMB: 1,
		},
	}

	synthesizer := &fakeSynthesizer{outputDir: outputDir}
	transcriber := &fakeTranscriber{}
	srv := New(cfg, synthesizer, transcriber, fakeCatalog{})
	srv.SetReady(true)

	return &fixture{
		server:      srv,
		synthesizer: synthesizer,
		transcriber: transcriber,
		outputDir:   outputDir,
		uploadDir:   uploadDir,
	}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func postTTS(t *testing.T, body map[string]any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/tts", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	return resp.Error
}

func TestSynthesizeEmptyTextRejectedBeforeEngine(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, postTTS(t, map[string]any{"text": "   \n\t ", "language": "fr"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "empty")
	assert.Zero(t, f.synthesizer.calls, "engine must not run on invalid input")
}

func TestSynthesizeTextOverLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	long := strings.Repeat("a", 101)
	rec := f.do(t, postTTS(t, map[string]any{"text": long, "language": "fr"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	msg := decodeError(t, rec)
	assert.Contains(t, msg, "100", "rejection must report the limit")
	assert.Contains(t, msg, "101", "rejection must report the received length")
	assert.Zero(t, f.synthesizer.calls)
}

func TestSynthesizeUnsupportedLanguage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, postTTS(t, map[string]any{"text": "Hallo", "language": "de"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "de")
	assert.Zero(t, f.synthesizer.calls)
}

func TestSynthesizeRejectionIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	body := map[string]any{"text": "", "language": "fr"}

	first := f.do(t, postTTS(t, body))
	second := f.do(t, postTTS(t, body))

	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestSynthesizeSuccessStreamsArtifact(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, postTTS(t, map[string]any{
		"text": "Bonjour", "language": "fr", "voice": "", "speed": 1.0,
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
	assert.Equal(t, "RIFFfake-wav-bytes", rec.Body.String())

	duration, err := strconv.ParseFloat(rec.Header().Get("X-Generation-Duration"), 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, duration, 0.0)

	filename := rec.Header().Get("X-Audio-Filename")
	assert.True(t, strings.HasPrefix(filename, "audio_"))
	assert.True(t, strings.HasSuffix(filename, ".wav"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "X-Generation-Duration")
}

func TestSynthesizeEngineFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.synthesizer.err = fault.New(fault.KindEngine, "engine produced no audio")

	rec := f.do(t, postTTS(t, map[string]any{"text": "Bonjour", "language": "fr"}))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeError(t, rec), "no audio")
}

func TestDownloadNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/audio/does-not-exist.wav", nil)
	rec := f.do(t, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	// No file may appear as a side effect of the lookup.
	entries, err := os.ReadDir(f.outputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadRejectsPathTraversal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	// Exercise the handler directly: the wildcard value is attacker
	// controlled and must never escape the output directory.
	req := httptest.NewRequest(http.MethodGet, "/audio/x", nil)
	req.SetPathValue("filename", "../secrets.txt")
	rec := httptest.NewRecorder()
	f.server.handleDownload(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadStreamsExistingArtifact(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, os.WriteFile(
		filepath.Join(f.outputDir, "audio_cafe1234.wav"), []byte("RIFFdata"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/audio/audio_cafe1234.wav", nil)
	rec := f.do(t, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RIFFdata", rec.Body.String())
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
}

func TestVoicesListing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/voices", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Success bool                `json:"success"`
		Voices  map[string][]string `json:"voices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"ff_siwis"}, resp.Voices["fr"])
}

func TestLanguagesListing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/stt/languages", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Success   bool `json:"success"`
		Languages []struct {
			Code  string `json:"code"`
			Label string `json:"label"`
		} `json:"languages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Languages, 3)
	assert.Equal(t, "fr", resp.Languages[0].Code)
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Contains(t, health["message"], "small")

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	f.server.SetReady(false)
	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodOptions, "/tts", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
