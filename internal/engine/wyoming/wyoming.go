// Package wyoming implements the engine.Pipeline contract against a
// Wyoming protocol TTS server (e.g. a Kokoro or Piper container).
//
// Wyoming protocol format (per event):
//
//	<json_length> <payload_length>\n
//	<json_bytes>\n
//	<payload_bytes>   (if payload_length > 0)
//
// A synthesis call sends one "synthesize" event and then reads
// audio-start → audio-chunk* → audio-stop. Each audio-chunk event is
// surfaced as one engine.Chunk; the server decides how to split the
// text, and the client never buffers the whole utterance.
package wyoming

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/nlebel/vocalis/internal/engine"
)

const dialTimeout = 10 * time.Second

// callTimeout bounds a synthesis exchange when the caller's context
// carries no deadline of its own.
const callTimeout = 120 * time.Second

// Pipeline is a Wyoming TTS client bound to one endpoint. Connections are
// per-call; the zero-cost handle is safe to share.
type Pipeline struct {
	endpoint string
	language string
}

// New creates a pipeline for the given Wyoming TCP endpoint (host:port).
// Scheme prefixes from config ("tcp://", "http://") are tolerated.
func New(endpoint, language string) *Pipeline {
	endpoint = strings.TrimPrefix(endpoint, "tcp://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	return &Pipeline{endpoint: endpoint, language: language}
}

// Synthesize sends the synthesize event and returns the lazy chunk stream.
// The caller must drain the stream to io.EOF or Close it.
func (p *Pipeline) Synthesize(ctx context.Context, text, voice string, speed float64) (engine.ChunkStream, error) {
	if p.endpoint == "" {
		return nil, fmt.Errorf("no wyoming endpoint configured for language %q", p.language)
	}

	slog.Debug("wyoming synthesize",
		"endpoint", p.endpoint, "language", p.language,
		"voice", voice, "speed", speed, "text_length", len(text))

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to tts engine: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(callTimeout))
	}

	evt := event{
		Type: "synthesize",
		Data: map[string]any{
			"text": text,
			"voice": map[string]any{
				"name": voice,
			},
			"speed": speed,
		},
	}
	if err := writeEvent(conn, evt, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending synthesize event: %w", err)
	}

	return &Stream{
		conn: conn,
		format: engine.Format{
			SampleRate: engine.DefaultSampleRate,
			Channels:   1,
			Width:      2,
		},
	}, nil
}

// Stream reads synthesis chunks off the engine connection as they arrive.
// It is not restartable: once Next has returned io.EOF or an error, the
// connection is closed.
type Stream struct {
	conn   net.Conn
	format engine.Format
	done   bool
}

// Next returns the next audio chunk, or io.EOF after the engine's
// audio-stop event. Engine "error" events are returned as errors.
func (s *Stream) Next() (engine.Chunk, error) {
	if s.done {
		return engine.Chunk{}, io.EOF
	}

	for {
		evt, payload, err := readEvent(s.conn)
		if err != nil {
			s.close()
			return engine.Chunk{}, fmt.Errorf("reading engine event: %w", err)
		}

		switch evt.Type {
		case "audio-start":
			if rate, ok := evt.Data["rate"].(float64); ok {
				s.format.SampleRate = int(rate)
			}
			if ch, ok := evt.Data["channels"].(float64); ok {
				s.format.Channels = int(ch)
			}
			if w, ok := evt.Data["width"].(float64); ok {
				s.format.Width = int(w)
			}
			slog.Debug("wyoming audio-start",
				"rate", s.format.SampleRate,
				"channels", s.format.Channels,
				"width", s.format.Width)

		case "audio-chunk":
			chunk := engine.Chunk{Audio: payload}
			if g, ok := evt.Data["graphemes"].(string); ok {
				chunk.Graphemes = g
			}
			if ph, ok := evt.Data["phonemes"].(string); ok {
				chunk.Phonemes = ph
			}
			return chunk, nil

		case "audio-stop":
			s.close()
			return engine.Chunk{}, io.EOF

		case "error":
			msg := "unknown error"
			if text, ok := evt.Data["text"].(string); ok {
				msg = text
			}
			s.close()
			return engine.Chunk{}, fmt.Errorf("tts engine error: %s", msg)

		default:
			slog.Debug("wyoming unknown event", "type", evt.Type)
		}
	}
}

// Format reports the PCM format announced by the engine's audio-start
// event, defaulting to 24000 Hz mono 16-bit until one arrives.
func (s *Stream) Format() engine.Format { return s.format }

// Close releases the engine connection. Safe to call after EOF.
func (s *Stream) Close() error {
	if s.done {
		return nil
	}
	s.close()
	return nil
}

func (s *Stream) close() {
	s.done = true
	_ = s.conn.Close()
}

// writeEvent sends a Wyoming event over the connection.
func writeEvent(w io.Writer, evt event, payload []byte) error {
	jsonBytes, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}

	// Header: <json_length> <payload_length>\n
	header := fmt.Sprintf("%d %d\n", len(jsonBytes), len(payload))
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}

	if _, err := w.Write(jsonBytes); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}

	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}

	return nil
}

// readEvent reads a Wyoming event from the connection.
func readEvent(r io.Reader) (*event, []byte, error) {
	// Read header line: "<json_length> <payload_length>\n"
	headerBuf := make([]byte, 0, 64)
	oneByte := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, oneByte); err != nil {
			return nil, nil, fmt.Errorf("reading header: %w", err)
		}
		if oneByte[0] == '\n' {
			break
		}
		headerBuf = append(headerBuf, oneByte[0])
	}

	parts := strings.SplitN(string(headerBuf), " ", 2)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("invalid wyoming header: %q", string(headerBuf))
	}

	jsonLen, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, nil, fmt.Errorf("parsing json_length: %w", err)
	}
	payloadLen, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, nil, fmt.Errorf("parsing payload_length: %w", err)
	}

	// Read JSON + trailing newline.
	jsonBuf := make([]byte, jsonLen+1)
	if _, err := io.ReadFull(r, jsonBuf); err != nil {
		return nil, nil, fmt.Errorf("reading json: %w", err)
	}
	jsonBuf = jsonBuf[:jsonLen]

	var evt event
	if err := json.Unmarshal(jsonBuf, &evt); err != nil {
		return nil, nil, fmt.Errorf("unmarshalling event: %w", err)
	}

	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, nil, fmt.Errorf("reading payload: %w", err)
		}
	}

	return &evt, payload, nil
}

type event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}
