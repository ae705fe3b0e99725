package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nlebel/vocalis/internal/fault"
)

// synthesizeRequest is the POST /tts body.
type synthesizeRequest struct {
	Text     string  `json:"text" example:"Bonjour, comment allez-vous ?"`
	Language string  `json:"language" example:"fr"`
	Voice    string  `json:"voice,omitempty" example:"ff_siwis"`
	Speed    float64 `json:"speed,omitempty" example:"1.0"`
}

// handleSynthesize validates the request, runs the synthesis adapter,
// and streams the artifact back with generation metadata headers.
//
// @Summary     Synthesize speech from text
// @Description Validates the text against policy limits, generates audio with the
// @Description language's pipeline, and returns the WAV stream. Generation duration
// @Description and the artifact name are exposed as X- headers.
// @Tags        tts
// @Accept      json
// @Produce     audio/wav
// @Param       request  body  synthesizeRequest  true  "Synthesis request"
// @Success     200  {file}    binary
// @Failure     400  {object}  errorResponse  "Empty text, text over limit, or unsupported language"
// @Failure     500  {object}  errorResponse  "Engine or storage failure"
// @Router      /tts [post]
func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFault(w, fault.Wrap(fault.KindValidation, err, "invalid request body"))
		return
	}

	if req.Language == "" {
		req.Language = "fr"
	}
	if req.Speed == 0 {
		req.Speed = s.cfg.TTS.DefaultSpeed
	}

	logger := slog.With("language", req.Language, "voice", req.Voice)
	logger.Info("synthesis request", "text_length", len(req.Text), "speed", req.Speed)

	// Fail fast: never spend engine compute on invalid input.
	if err := s.validateSynthesis(&req); err != nil {
		logger.Warn("synthesis request rejected", "error", err)
		writeFault(w, err)
		return
	}

	artifact, err := s.synthesizer.Generate(r.Context(), req.Text, req.Language, req.Voice, req.Speed)
	if err != nil {
		logger.Error("synthesis failed", "error", err)
		writeFault(w, err)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	w.Header().Set("X-Generation-Duration", strconv.FormatFloat(artifact.Duration, 'f', 2, 64))
	w.Header().Set("X-Audio-Filename", artifact.Filename)
	w.Header().Set("Access-Control-Expose-Headers",
		"X-Generation-Duration, X-Audio-Filename, Content-Disposition")

	http.ServeFile(w, r, artifact.Path)
}

// validateSynthesis applies the policy limits. Rejections are stable:
// the same invalid input always produces the same classification.
func (s *Server) validateSynthesis(req *synthesizeRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return fault.New(fault.KindValidation, "text cannot be empty")
	}
	if limit := s.cfg.TTS.MaxTextLength; len(req.Text) > limit {
		return fault.New(fault.KindValidation,
			"text exceeds the %d character limit (%d received)", limit, len(req.Text))
	}
	if !s.catalog.Supported(req.Language) {
		return fault.New(fault.KindValidation,
			"unsupported language %q: use one of %s", req.Language, strings.Join(s.cfg.TTS.Languages, ", "))
	}
	return nil
}

// handleDownload streams a previously generated artifact.
//
// @Summary     Download a generated audio file
// @Tags        tts
// @Produce     audio/wav
// @Param       filename  path  string  true  "Artifact filename"
// @Success     200  {file}    binary
// @Failure     404  {object}  errorResponse  "Unknown artifact"
// @Router      /audio/{filename} [get]
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")

	// The filename came from the client: never let it escape the
	// output directory.
	if filename == "" || filename != filepath.Base(filename) {
		writeFault(w, fault.New(fault.KindNotFound, "audio file %q not found", filename))
		return
	}

	path := filepath.Join(s.cfg.TTS.OutputDir, filename)
	if _, err := os.Stat(path); err != nil {
		slog.Warn("requested artifact not found", "filename", filename)
		writeFault(w, fault.New(fault.KindNotFound, "audio file %q not found", filename))
		return
	}

	slog.Info("artifact download", "filename", filename)
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, path)
}
