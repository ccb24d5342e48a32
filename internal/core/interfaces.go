// Package core defines the shared types and interfaces of the speech
// streaming pipeline: the synthesis engine ABI, the request shape, and the
// chunk stream consumed by callers.
package core

import "context"

// Format identifies the output container or codec of a synthesis request.
type Format string

// Supported output formats. FormatWAV is the native container and never
// requires an external encoder; the others are produced by piping the native
// container through a registered encoder subprocess.
const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatOpus Format = "opus"
)

// DefaultChunkSize is the read size used for encoder output and engine PCM
// when a request does not specify one.
const DefaultChunkSize = 1024

// EngineAPIVersion is the engine ABI version this module was written
// against. A worker compares it with the version an engine reports and logs
// a warning on mismatch; synthesis proceeds either way.
const EngineAPIVersion = "1.2.4"

// RateCallback is invoked by the engine exactly once per utterance, at the
// moment synthesis begins producing audio, with the sample rate of the
// stream that follows. Returning false stops the synthesis.
type RateCallback func(sampleRate int) bool

// SamplesCallback delivers raw 16-bit mono PCM produced by the engine. It is
// invoked zero or more times per utterance, always after the rate callback.
// Returning false aborts the in-flight synthesis.
type SamplesCallback func(pcm []byte) bool

// Engine is the synthesis engine ABI boundary. An instance is not safe for
// concurrent use: Generate must only ever be invoked from the single worker
// goroutine that owns the instance. Both callbacks are invoked synchronously
// from within Generate.
type Engine interface {
	// Init registers the two callbacks. It must be called once, before the
	// first Generate.
	Init(onRate RateCallback, onSamples SamplesCallback) error

	// Version reports the engine's API version string, checked against the
	// version this module was written for.
	Version() string

	// SetVoice selects the active voice for subsequent Generate calls.
	SetVoice(voice string) error

	// Generate synthesizes text, blocking until the utterance is complete
	// and delivering audio through the registered callbacks.
	Generate(text string) error

	// Close releases the engine instance.
	Close() error
}

// EngineFactory creates one engine instance. The pool calls it once per
// worker so that no instance is ever shared.
type EngineFactory func() (Engine, error)

// Request describes one synthesis job. It is immutable once submitted and is
// processed by exactly one worker.
type Request struct {
	ID        string
	Text      string
	Voice     string
	Format    Format
	ChunkSize int
}

// ChunkStream is a finite, single-pass sequence of byte chunks. Next blocks
// until a chunk is available and returns ok=false once the stream is
// exhausted; every call after that returns ok=false immediately.
type ChunkStream interface {
	Next() (chunk []byte, ok bool)
}

// ObjectStore is the blob store used by the NATS bridge for job payloads and
// finished audio.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}
