package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlebel/vocalis/internal/fault"
)

// multipartUpload builds a multipart body with a "file" part carrying the
// given content type, plus an optional language field.
func multipartUpload(t *testing.T, contentType string, payload []byte, language string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if language != "" {
		require.NoError(t, writer.WriteField("language", language))
	}

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="clip.wav"`)
	hdr.Set("Content-Type", contentType)
	part, err := writer.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)

	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func postUpload(t *testing.T, path, contentType string, payload []byte, language string) *http.Request {
	t.Helper()
	body, formType := multipartUpload(t, contentType, payload, language)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", formType)
	return req
}

func uploadDirEntries(t *testing.T, f *fixture) int {
	t.Helper()
	entries, err := os.ReadDir(f.uploadDir)
	require.NoError(t, err)
	return len(entries)
}

func TestTranscribeUploadSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, postUpload(t, "/stt/upload", "audio/wav", []byte("RIFFclip"), "fr"))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp transcriptionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Bonjour tout le monde", resp.Text)
	assert.Equal(t, "fr", resp.Language)
	assert.Equal(t, 0.98, resp.LanguageProbability)
	require.Len(t, resp.Segments, 1)
	assert.Equal(t, 2.3, resp.Segments[0].End)

	// The adapter ran over a real temp file that is gone afterwards.
	assert.True(t, f.transcriber.pathExisted)
	assert.Equal(t, "fr", f.transcriber.gotLanguage)
	assert.True(t, strings.Contains(f.transcriber.gotPath, "upload_"))
	assert.Zero(t, uploadDirEntries(t, f), "temp file must not survive the request")
}

func TestTranscribeRecordSharesPipeline(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, postUpload(t, "/stt/record", "audio/webm", []byte("webmdata"), ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "auto", f.transcriber.gotLanguage, "missing language defaults to auto")
	assert.True(t, strings.HasSuffix(f.transcriber.gotPath, ".webm"))
	assert.Zero(t, uploadDirEntries(t, f))
}

func TestTranscribeCleanupAfterEngineFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.transcriber.err = fault.New(fault.KindEngine, "no speech recognized")

	rec := f.do(t, postUpload(t, "/stt/upload", "audio/wav", []byte("silence"), "auto"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeError(t, rec), "no speech recognized")
	assert.True(t, f.transcriber.pathExisted, "temp file must exist during the attempt")
	assert.Zero(t, uploadDirEntries(t, f), "temp file must be removed even on failure")
}

func TestTranscribeRejectsUnsupportedMediaType(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, postUpload(t, "/stt/upload", "video/mp4", []byte("notaudio"), ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "video/mp4")
	assert.Zero(t, f.transcriber.calls)
	assert.Zero(t, uploadDirEntries(t, f), "rejected payloads never reach the disk")
}

func TestTranscribeSizeBoundary(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	max := int(f.server.cfg.STT.MaxUploadBytes())

	// Exactly at the ceiling: accepted.
	rec := f.do(t, postUpload(t, "/stt/upload", "audio/wav", bytes.Repeat([]byte{7}, max), ""))
	assert.Equal(t, http.StatusOK, rec.Code)

	// One byte over: rejected before the engine runs.
	calls := f.transcriber.calls
	rec = f.do(t, postUpload(t, "/stt/upload", "audio/wav", bytes.Repeat([]byte{7}, max+1), ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "1 MB")
	assert.Equal(t, calls, f.transcriber.calls)
	assert.Zero(t, uploadDirEntries(t, f))
}

func TestTranscribeRejectsNonMultipart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/stt/upload", strings.NewReader(`{"nope":true}`))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(t, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTranscribeMissingFilePart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("language", "fr"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/stt/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := f.do(t, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "file")
}

func TestTranscribeStorageFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.server.cfg.STT.UploadDir = f.server.cfg.STT.UploadDir + "/missing-subdir"

	rec := f.do(t, postUpload(t, "/stt/upload", "audio/wav", []byte("RIFFclip"), ""))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Zero(t, f.transcriber.calls)
}

func TestDeclaredTypeStripsParams(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "audio/ogg", declaredType("audio/ogg; codecs=opus"))
	assert.Equal(t, "audio/wav", declaredType("AUDIO/WAV"))
}

func TestExtFromContentType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".wav", extFromContentType("audio/wav"))
	assert.Equal(t, ".mp3", extFromContentType("audio/mpeg"))
	assert.Equal(t, ".ogg", extFromContentType("audio/ogg"))
	assert.Equal(t, ".m4a", extFromContentType("audio/mp4"))
	assert.Equal(t, ".wav", extFromContentType("application/octet-stream"))
}
