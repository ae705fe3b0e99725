// Package pool holds the pre-loaded synthesis pipelines and resolves
// language/voice selections onto them.
//
// The pool is built once at process start and never mutated afterwards.
// Each handle serializes calls to its pipeline: the engines behind the
// Wyoming endpoints are not assumed to be reentrant.
package pool

import (
	"context"
	"sync"

	"github.com/nlebel/vocalis/internal/config"
	"github.com/nlebel/vocalis/internal/engine"
)

// Handle is one loaded pipeline bound to a language. Shared read-only
// across requests; Synthesize admits one call at a time.
type Handle struct {
	language string
	pipeline engine.Pipeline
	mu       sync.Mutex
}

// Language returns the ISO-639-1 code the handle is bound to.
func (h *Handle) Language() string { return h.language }

// Synthesize invokes the underlying pipeline, holding the handle's lock
// until the returned stream is fully drained or closed.
func (h *Handle) Synthesize(ctx context.Context, text, voice string, speed float64) (engine.ChunkStream, error) {
	h.mu.Lock()
	stream, err := h.pipeline.Synthesize(ctx, text, voice, speed)
	if err != nil {
		h.mu.Unlock()
		return nil, err
	}
	return &lockedStream{ChunkStream: stream, unlock: h.mu.Unlock}, nil
}

// lockedStream releases the handle lock exactly once, when the stream
// ends or is closed.
type lockedStream struct {
	engine.ChunkStream
	unlock   func()
	released bool
}

func (s *lockedStream) Next() (engine.Chunk, error) {
	chunk, err := s.ChunkStream.Next()
	if err != nil {
		s.release()
	}
	return chunk, err
}

func (s *lockedStream) Close() error {
	err := s.ChunkStream.Close()
	s.release()
	return err
}

func (s *lockedStream) release() {
	if !s.released {
		s.released = true
		s.unlock()
	}
}

// Pool maps each supported language to its pipeline handle plus the
// voice tables the resolver and the listing endpoints read.
type Pool struct {
	handles       map[string]*Handle
	defaultVoices map[string]string
	voices        map[string][]string
	languages     []string
}

// New builds the pool from config, creating pipelines with the given
// factory. The factory receives the endpoint and language for each entry
// (per-language endpoint when configured, the shared default otherwise).
func New(cfg config.TTSConfig, factory func(endpoint, language string) engine.Pipeline) *Pool {
	handles := make(map[string]*Handle, len(cfg.Languages))
	for _, lang := range cfg.Languages {
		endpoint := cfg.Endpoints[lang]
		if endpoint == "" {
			endpoint = cfg.Endpoint
		}
		handles[lang] = &Handle{
			language: lang,
			pipeline: factory(endpoint, lang),
		}
	}

	return &Pool{
		handles:       handles,
		defaultVoices: defaults(cfg),
		voices:        catalog(cfg),
		languages:     append([]string(nil), cfg.Languages...),
	}
}

// Supported reports whether the language has a loaded pipeline.
func (p *Pool) Supported(language string) bool {
	_, ok := p.handles[language]
	return ok
}

// Resolve maps a language and an optional voice to a pipeline handle and
// a concrete voice id. The empty voice resolves to the language's default.
// The caller must have validated the language; Resolve has no failure path.
func (p *Pool) Resolve(language, voice string) (*Handle, string) {
	if voice == "" {
		voice = p.defaultVoices[language]
	}
	return p.handles[language], voice
}

// Voices returns the voice catalog keyed by language.
func (p *Pool) Voices() map[string][]string {
	out := make(map[string][]string, len(p.voices))
	for lang, vs := range p.voices {
		out[lang] = append([]string(nil), vs...)
	}
	return out
}

// Languages returns the supported synthesis language codes in config order.
func (p *Pool) Languages() []string {
	return append([]string(nil), p.languages...)
}
