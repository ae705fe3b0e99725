package api

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/nlebel/vocalis/internal/engine"
	"github.com/nlebel/vocalis/internal/fault"
)

// allowedAudioTypes is the upload media-type allow list.
var allowedAudioTypes = map[string]struct{}{
	"audio/wav":    {},
	"audio/x-wav":  {},
	"audio/wave":   {},
	"audio/mpeg":   {},
	"audio/mp3":    {},
	"audio/ogg":    {},
	"audio/webm":   {},
	"audio/flac":   {},
	"audio/x-flac": {},
	"audio/mp4":    {},
	"audio/x-m4a":  {},
}

// transcriptionResponse is the JSON returned by both STT endpoints.
type transcriptionResponse struct {
	Success             bool             `json:"success"`
	Text                string           `json:"text"`
	Language            string           `json:"language"`
	LanguageProbability float64          `json:"language_probability"`
	Segments            []engine.Segment `json:"segments"`
	Duration            float64          `json:"duration"`
}

// handleTranscribe returns the handler shared by the upload and record
// endpoints; source only distinguishes the log lines.
//
// @Summary     Transcribe an uploaded audio file
// @Description Accepts a multipart form with a "file" part and an optional
// @Description "language" field ("auto" by default). The payload is validated
// @Description against the media-type allow list and the size ceiling before
// @Description anything is written to disk; the temporary file is always
// @Description removed after the transcription attempt.
// @Tags        stt
// @Accept      multipart/form-data
// @Produce     json
// @Param       file      formData  file    true   "Audio file"
// @Param       language  formData  string  false  "ISO-639-1 code or auto"
// @Success     200  {object}  transcriptionResponse
// @Failure     400  {object}  errorResponse  "Unsupported media type or payload too large"
// @Failure     500  {object}  errorResponse  "Engine failure or no speech recognized"
// @Router      /stt/upload [post]
func (s *Server) handleTranscribe(source string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := slog.With("source", source)

		upload, err := s.readUpload(r)
		if err != nil {
			logger.Warn("transcription request rejected", "error", err)
			writeFault(w, err)
			return
		}

		logger.Info("transcription request",
			"content_type", upload.contentType,
			"bytes", len(upload.data),
			"language", upload.language)

		// The temp file identity comes from a random token, never from
		// the client-supplied filename.
		filename := fmt.Sprintf("upload_%s%s", shortID(), extFromContentType(upload.contentType))
		path := filepath.Join(s.cfg.STT.UploadDir, filename)
		if err := os.WriteFile(path, upload.data, 0o600); err != nil {
			logger.Error("writing upload failed", "error", err)
			writeFault(w, fault.Wrap(fault.KindStorage, err, "storing upload"))
			return
		}

		// Unconditional cleanup: the temp file never outlives the
		// transcription attempt, whatever its outcome.
		defer func() {
			if err := os.Remove(path); err != nil {
				logger.Warn("failed to remove upload file", "path", path, "error", err)
			}
		}()

		result, err := s.transcriber.Run(r.Context(), path, upload.language)
		if err != nil {
			logger.Error("transcription failed", "error", err)
			writeFault(w, err)
			return
		}

		writeJSON(w, http.StatusOK, transcriptionResponse{
			Success:             true,
			Text:                result.Text,
			Language:            result.Language,
			LanguageProbability: result.LanguageProbability,
			Segments:            result.Segments,
			Duration:            result.Duration,
		})
	}
}

// upload is a validated in-memory audio payload.
type upload struct {
	data        []byte
	contentType string
	language    string
}

// readUpload walks the multipart body, validating the media type and the
// actual received byte count before anything touches the disk.
func (s *Server) readUpload(r *http.Request) (*upload, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fault.Wrap(fault.KindValidation, err, "expected a multipart upload")
	}

	maxBytes := s.cfg.STT.MaxUploadBytes()
	out := &upload{language: "auto"}
	seenFile := false

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fault.Wrap(fault.KindValidation, err, "reading upload")
		}

		switch part.FormName() {
		case "language":
			value, err := io.ReadAll(io.LimitReader(part, 64))
			if err != nil {
				return nil, fault.Wrap(fault.KindValidation, err, "reading language field")
			}
			if lang := strings.TrimSpace(string(value)); lang != "" {
				out.language = lang
			}

		case "file":
			seenFile = true
			out.contentType = declaredType(part.Header.Get("Content-Type"))
			if _, ok := allowedAudioTypes[out.contentType]; !ok {
				return nil, fault.New(fault.KindValidation,
					"unsupported media type %q", out.contentType)
			}

			// Count what actually arrives, not what a header declares.
			data, err := io.ReadAll(io.LimitReader(part, maxBytes+1))
			if err != nil {
				return nil, fault.Wrap(fault.KindValidation, err, "reading audio payload")
			}
			if int64(len(data)) > maxBytes {
				return nil, fault.New(fault.KindValidation,
					"audio payload exceeds the %d MB limit", s.cfg.STT.MaxUploadSizeMB)
			}
			out.data = data
		}
		part.Close()
	}

	if !seenFile {
		return nil, fault.New(fault.KindValidation, `missing "file" part`)
	}
	if len(out.data) == 0 {
		return nil, fault.New(fault.KindValidation, "empty audio payload")
	}
	return out, nil
}

// declaredType strips media-type parameters (e.g. "; codecs=opus").
func declaredType(ct string) string {
	if parsed, _, err := mime.ParseMediaType(ct); err == nil {
		return parsed
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// extFromContentType picks the temp file extension for a media type.
func extFromContentType(ct string) string {
	switch {
	case strings.Contains(ct, "wav"):
		return ".wav"
	case strings.Contains(ct, "ogg"):
		return ".ogg"
	case strings.Contains(ct, "mp3"), strings.Contains(ct, "mpeg"):
		return ".mp3"
	case strings.Contains(ct, "flac"):
		return ".flac"
	case strings.Contains(ct, "webm"):
		return ".webm"
	case strings.Contains(ct, "mp4"), strings.Contains(ct, "m4a"):
		return ".m4a"
	default:
		return ".wav"
	}
}

// shortID returns 8 hex characters of a random UUID.
func shortID() string {
	return uuid.New().String()[:8]
}
