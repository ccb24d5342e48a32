// Package stream provides the adapter between a push-style audio producer
// and a pull-style consumer. The producer side is an io.WriteCloser so the
// container framer can target it directly; the consumer side is a blocking
// chunk reader with an explicit end-of-stream sentinel.
package stream

import "sync"

// Adapter is a single-producer/single-consumer ordered chunk channel. Writes
// never block the producer; reads block until data or end-of-stream. The
// empty chunk is reserved as the terminal sentinel: ReadChunk returns it
// exactly once, and immediately on every call after that.
type Adapter struct {
	mu     sync.Mutex
	cond   *sync.Cond
	chunks [][]byte
	ended  bool // producer called End
	open   bool // consumer has not yet consumed the sentinel
}

// NewAdapter creates an empty, open adapter.
func NewAdapter() *Adapter {
	adapter := &Adapter{
		mu:     sync.Mutex{},
		cond:   nil,
		chunks: nil,
		ended:  false,
		open:   true,
	}
	adapter.cond = sync.NewCond(&adapter.mu)

	return adapter
}

// Write enqueues a copy of p for the consumer. Empty writes are ignored, so
// the terminal sentinel can only ever be enqueued through End. Write never
// blocks. It always reports len(p) consumed; the error is always nil and
// exists to satisfy io.Writer for the framer.
func (a *Adapter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	chunk := make([]byte, len(p))
	copy(chunk, p)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.chunks = append(a.chunks, chunk)
	a.cond.Signal()

	return len(p), nil
}

// End enqueues the terminal sentinel. Calling End more than once has no
// further effect: exactly one sentinel is ever delivered.
func (a *Adapter) End() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ended {
		return
	}

	a.ended = true
	a.chunks = append(a.chunks, nil)
	a.cond.Signal()
}

// Close ends the stream. It exists so the adapter satisfies io.WriteCloser
// when it acts as the framer target in the passthrough (native WAV) path.
func (a *Adapter) Close() error {
	a.End()

	return nil
}

// ReadChunk returns the next chunk, blocking until one is available. When
// more than one chunk is already queued, all of them are coalesced into a
// single returned chunk to amortize consumer wake-ups. The empty return
// value signals end-of-stream; after that every call returns empty
// immediately without blocking.
func (a *Adapter) ReadChunk() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.open {
		return nil
	}

	for len(a.chunks) == 0 {
		a.cond.Wait()
	}

	if len(a.chunks) == 1 {
		chunk := a.chunks[0]
		a.chunks = nil

		if len(chunk) == 0 {
			a.open = false
		}

		return chunk
	}

	var coalesced []byte

	for _, chunk := range a.chunks {
		if len(chunk) == 0 {
			a.open = false

			continue
		}

		coalesced = append(coalesced, chunk...)
	}

	a.chunks = nil

	return coalesced
}

// Next adapts ReadChunk to the core.ChunkStream contract.
func (a *Adapter) Next() ([]byte, bool) {
	chunk := a.ReadChunk()

	return chunk, len(chunk) > 0
}
