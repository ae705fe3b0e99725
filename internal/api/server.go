// Package api implements the HTTP surface of the gateway: request
// validation, fault-to-status mapping, artifact streaming, and the
// temporary file lifecycle around transcription uploads.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/nlebel/vocalis/internal/config"
	"github.com/nlebel/vocalis/internal/fault"
	"github.com/nlebel/vocalis/internal/pool"
	"github.com/nlebel/vocalis/internal/synth"
	"github.com/nlebel/vocalis/internal/transcribe"
)

// Synthesizer is the synthesis adapter contract the handlers call.
type Synthesizer interface {
	Generate(ctx context.Context, text, language, voice string, speed float64) (*synth.Artifact, error)
}

// Transcriber is the transcription adapter contract the handlers call.
type Transcriber interface {
	Run(ctx context.Context, path, language string) (*transcribe.Transcription, error)
}

// Catalog is the read-only view of the model pool the handlers need.
type Catalog interface {
	Supported(language string) bool
	Voices() map[string][]string
}

// Server is the gateway's HTTP front end.
type Server struct {
	cfg         *config.Config
	synthesizer Synthesizer
	transcriber Transcriber
	catalog     Catalog
	ready       atomic.Bool
	server      *http.Server
}

// New creates a server around the given adapters.
func New(cfg *config.Config, s Synthesizer, t Transcriber, c Catalog) *Server {
	return &Server{
		cfg:         cfg,
		synthesizer: s,
		transcriber: t,
		catalog:     c,
	}
}

// SetReady marks the gateway as ready to accept inference traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /voices", s.handleVoices)
	mux.HandleFunc("POST /tts", s.handleSynthesize)
	mux.HandleFunc("GET /audio/{filename}", s.handleDownload)
	mux.HandleFunc("GET /stt/languages", s.handleLanguages)
	mux.HandleFunc("POST /stt/upload", s.handleTranscribe("upload"))
	mux.HandleFunc("POST /stt/record", s.handleTranscribe("record"))

	// Swagger UI — serves the generated OpenAPI docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return withCORS(mux)
}

// ListenAndServe starts the HTTP server. It blocks until the context is
// cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("api server listening", "host", s.cfg.Server.Host, "port", s.cfg.Server.Port)

	go func() {
		<-ctx.Done()
		slog.Info("api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

// Close gracefully shuts down the HTTP server.
func (s *Server) Close() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleHealth reports liveness and which engines the gateway fronts.
//
// @Summary     Health check
// @Tags        system
// @Produce     json
// @Success     200  {object}  map[string]string
// @Router      /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"message": fmt.Sprintf("vocalis is up (tts: wyoming, stt: whisper-%s/%s/%s)",
			s.cfg.STT.ModelSize, s.cfg.STT.Device, s.cfg.STT.ComputeType),
	})
}

// handleReady reports readiness; 503 until the model pool is built.
//
// @Summary     Readiness check
// @Tags        system
// @Produce     json
// @Success     200  {object}  map[string]string
// @Failure     503  {object}  map[string]string
// @Router      /readyz [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleLanguages lists transcription languages.
//
// @Summary     List transcription languages
// @Tags        stt
// @Produce     json
// @Success     200  {object}  languagesResponse
// @Router      /stt/languages [get]
func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, languagesResponse{
		Success:   true,
		Languages: pool.STTLanguages(),
	})
}

// handleVoices lists the synthesis voice catalog.
//
// @Summary     List synthesis voices by language
// @Tags        tts
// @Produce     json
// @Success     200  {object}  voicesResponse
// @Router      /voices [get]
func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, voicesResponse{
		Success: true,
		Voices:  s.catalog.Voices(),
	})
}

type voicesResponse struct {
	Success bool                `json:"success"`
	Voices  map[string][]string `json:"voices"`
}

type languagesResponse struct {
	Success   bool               `json:"success"`
	Languages []pool.STTLanguage `json:"languages"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeFault translates a classified error into the client-visible
// status. Unclassified errors are server faults.
func writeFault(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch fault.KindOf(err) {
	case fault.KindValidation:
		status = http.StatusBadRequest
	case fault.KindNotFound:
		status = http.StatusNotFound
	}
	writeJSON(w, status, errorResponse{Success: false, Error: err.Error()})
}

// withCORS allows cross-origin calls from any origin. The gateway sits
// behind browsers talking to it from other ports in development.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
