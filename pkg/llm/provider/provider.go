// Package provider defines the streaming completion contract and a registry
// mapping agent platform strings to implementations.
package provider

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/yashdodwani/anymind/pkg/llm"
)

// DefaultPlatform is the platform every unknown string resolves to.
const DefaultPlatform = "openrouter"

// ErrNoProvider is returned by For when nothing has been registered.
var ErrNoProvider = errors.New("no completion provider registered")

// Request carries everything a provider needs for one completion call.
type Request struct {
	// Model is the provider-side model identifier. Empty falls back to the
	// provider's configured default.
	Model string

	// APIKey is the per-agent credential. Empty falls back to the
	// provider's configured default key.
	APIKey string

	// Messages is the fully composed message list.
	Messages []llm.ChatMessage
}

// Streamer produces completion streams for requests.
type Streamer interface {
	// Name returns the canonical platform name (e.g., "openrouter").
	Name() string

	// Stream opens a completion stream. Fragments are produced lazily:
	// nothing is read from the provider until the caller pulls via Next.
	Stream(ctx context.Context, req Request) (*Stream, error)
}

// Stream yields assistant text fragments as the provider produces them.
type Stream struct {
	recv    func() (string, error)
	cleanup func() error

	err  error
	done bool
}

// NewStream wraps a fragment source. recv returns io.EOF on normal
// completion; any other error marks the stream as failed. cleanup runs once
// when the stream finishes or is closed.
func NewStream(recv func() (string, error), cleanup func() error) *Stream {
	return &Stream{recv: recv, cleanup: cleanup}
}

// Next returns the next text fragment. It returns false when the stream has
// ended, normally or not; Err disambiguates.
func (s *Stream) Next() (string, bool) {
	if s.done {
		return "", false
	}

	frag, err := s.recv()
	if err != nil {
		s.done = true
		if !errors.Is(err, io.EOF) {
			s.err = err
		}
		s.Close()
		return "", false
	}

	return frag, true
}

// Err returns the terminal error, or nil if the stream ended normally or is
// still open.
func (s *Stream) Err() error {
	return s.err
}

// Close releases the underlying connection. Safe to call more than once.
func (s *Stream) Close() error {
	if s.cleanup == nil {
		return nil
	}
	cleanup := s.cleanup
	s.cleanup = nil
	return cleanup()
}

var (
	mu       sync.RWMutex
	registry = make(map[string]Streamer)
)

// Register adds a provider to the registry, keyed by its lowercased name.
func Register(s Streamer) {
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(s.Name())] = s
}

// For resolves a platform string to a registered provider. Matching is
// case-insensitive and tolerant of decorated platform strings (for example
// "OpenRouter (hosted)"). Unknown platforms resolve to the default provider.
func For(platform string) (Streamer, error) {
	mu.RLock()
	defer mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(platform))

	if s, ok := registry[needle]; ok {
		return s, nil
	}
	for name, s := range registry {
		if strings.Contains(needle, name) {
			return s, nil
		}
	}
	if s, ok := registry[DefaultPlatform]; ok {
		return s, nil
	}

	return nil, ErrNoProvider
}
