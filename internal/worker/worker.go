// Package worker drives one synthesis engine instance from a dedicated
// goroutine, turning queued requests into consumer-facing chunk streams.
package worker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/speech-stream/internal/core"
	"github.com/book-expert/speech-stream/internal/encoder"
	"github.com/book-expert/speech-stream/internal/stream"
	"github.com/book-expert/speech-stream/internal/wav"
)

// streamReadyTimeout bounds how long Enqueue waits for the engine to start
// producing audio for an accepted request.
const streamReadyTimeout = time.Hour

var (
	// ErrWorkerStopped indicates a request arrived after Shutdown.
	ErrWorkerStopped = errors.New("worker is stopped")
	// ErrStreamTimeout indicates the engine never started producing audio
	// for an accepted request.
	ErrStreamTimeout = errors.New("timed out waiting for synthesis to start")
)

// pending couples a queued request with the channel delivering its stream to
// the waiting caller.
type pending struct {
	req       *core.Request
	ready     chan core.ChunkStream
	delivered bool
}

// Worker owns one engine instance for its whole lifetime and processes one
// request at a time on its own goroutine. Its busy state is split in two:
// processing (generation in flight) and reading (produced stream not yet
// drained by the consumer). The worker is idle only when both are clear, so
// a second request can never corrupt a stream that is still being read.
type Worker struct {
	engine   core.Engine
	registry *encoder.Registry
	log      *logger.Logger

	requests chan *pending
	done     chan struct{}
	stopOnce sync.Once

	work       atomic.Bool // continuation flag handed to the engine callbacks
	processing atomic.Bool
	reading    atomic.Bool
	notifyIdle atomic.Pointer[func()]

	// Per-utterance state, only ever touched on the worker goroutine (the
	// engine invokes both callbacks synchronously from Generate).
	current *pending
	relay   *encoder.Relay
	framer  *wav.Writer
}

// New creates the engine via factory, registers the callbacks, checks the
// ABI version and starts the request loop.
func New(factory core.EngineFactory, registry *encoder.Registry, log *logger.Logger) (*Worker, error) {
	engine, err := factory()
	if err != nil {
		return nil, err
	}

	w := &Worker{
		engine:     engine,
		registry:   registry,
		log:        log,
		requests:   make(chan *pending, 1),
		done:       make(chan struct{}),
		stopOnce:   sync.Once{},
		work:       atomic.Bool{},
		processing: atomic.Bool{},
		reading:    atomic.Bool{},
		notifyIdle: atomic.Pointer[func()]{},
		current:    nil,
		relay:      nil,
		framer:     nil,
	}
	w.work.Store(true)

	initErr := engine.Init(w.onRate, w.onSamples)
	if initErr != nil {
		return nil, initErr
	}

	if version := engine.Version(); version != core.EngineAPIVersion {
		log.Warn(
			"Engine API version (%s) differs from expected version (%s)",
			version, core.EngineAPIVersion,
		)
	}

	go w.run()

	return w, nil
}

// SetNotifyIdle registers the function invoked whenever the worker becomes
// idle. The pool uses it to wake blocked dispatch attempts.
func (w *Worker) SetNotifyIdle(fn func()) {
	w.notifyIdle.Store(&fn)
}

// Busy reports whether the worker is generating or its last stream is still
// being drained.
func (w *Worker) Busy() bool {
	return w.processing.Load() || w.reading.Load()
}

// TryClaim atomically marks an idle worker as taken. The caller must hold
// the dispatch lock so that only one claimer runs at a time.
func (w *Worker) TryClaim() bool {
	if w.Busy() {
		return false
	}

	w.processing.Store(true)
	w.reading.Store(true)

	return true
}

// Enqueue hands a claimed worker its next request and blocks until the
// engine announces the stream (or an engine fault yields an empty stream).
func (w *Worker) Enqueue(req *core.Request) (core.ChunkStream, error) {
	if !w.work.Load() {
		return nil, ErrWorkerStopped
	}

	p := &pending{
		req:       req,
		ready:     make(chan core.ChunkStream, 1),
		delivered: false,
	}

	select {
	case w.requests <- p:
	case <-w.done:
		return nil, ErrWorkerStopped
	}

	select {
	case s := <-p.ready:
		return s, nil
	case <-time.After(streamReadyTimeout):
		return nil, ErrStreamTimeout
	}
}

// Shutdown stops intake, signals any in-flight synthesis to abort via the
// continuation flag, and waits for the request loop to exit.
func (w *Worker) Shutdown() {
	w.stopOnce.Do(func() {
		w.work.Store(false)
		close(w.requests)
	})

	<-w.done
}

func (w *Worker) run() {
	defer close(w.done)

	for p := range w.requests {
		w.generate(p)
	}

	closeErr := w.engine.Close()
	if closeErr != nil {
		w.log.Warn("Failed to close engine: %v", closeErr)
	}
}

// generate drives one blocking engine call. The rate callback opens the
// output pipeline and delivers the stream; here we only configure the voice,
// invoke the engine, and tear the pipeline down afterwards.
func (w *Worker) generate(p *pending) {
	w.current = p

	defer func() {
		w.teardown()
		w.current = nil

		if !p.delivered {
			// The engine finished without announcing a rate: surface the
			// fault as an empty stream instead of blocking the caller.
			empty := stream.NewAdapter()
			empty.End()
			w.deliver(p, empty)
		}

		w.processing.Store(false)
		w.signalIfIdle()
	}()

	voiceErr := w.engine.SetVoice(p.req.Voice)
	if voiceErr != nil {
		w.log.Error("Failed to set voice %q: %v", p.req.Voice, voiceErr)

		return
	}

	genErr := w.engine.Generate(p.req.Text)
	if genErr != nil {
		w.log.Error("Synthesis failed for request %s: %v", p.req.ID, genErr)
	}
}

// onRate is the engine's rate-announcement callback. It opens the relay for
// the request's format, writes the container header, and hands the stream to
// the waiting caller.
func (w *Worker) onRate(sampleRate int) bool {
	p := w.current
	if p == nil {
		return false
	}

	// Replace whatever target a previous announcement may have left open.
	w.teardown()

	args, _ := w.registry.Lookup(p.req.Format)

	relay, err := encoder.Open(args, p.req.ChunkSize, w.log)
	if err != nil {
		w.log.Error("Failed to open encoder for format %q: %v", p.req.Format, err)

		return false
	}

	w.relay = relay
	w.framer = wav.NewWriter(relay.Target())

	beginErr := w.framer.Begin(sampleRate)
	if beginErr != nil {
		w.log.Error("Failed to write container header: %v", beginErr)

		return false
	}

	w.deliver(p, relay.Stream())

	return w.work.Load()
}

// onSamples is the engine's chunk-delivery callback.
func (w *Worker) onSamples(pcm []byte) bool {
	if w.framer == nil {
		return false
	}

	err := w.framer.WriteSamples(pcm)
	if err != nil {
		w.log.Error("Failed to append samples: %v", err)

		return false
	}

	return w.work.Load()
}

// deliver hands the caller a stream wrapped so that draining its terminal
// sentinel clears the reading flag.
func (w *Worker) deliver(p *pending, adapter *stream.Adapter) {
	if p.delivered {
		return
	}

	p.delivered = true
	p.ready <- &trackedStream{
		inner:   adapter,
		worker:  w,
		release: sync.Once{},
	}
}

func (w *Worker) teardown() {
	if w.framer != nil {
		_ = w.framer.Close()
		w.framer = nil
	}

	if w.relay != nil {
		closeErr := w.relay.Close()
		if closeErr != nil {
			w.log.Warn("Failed to close relay: %v", closeErr)
		}

		w.relay = nil
	}
}

func (w *Worker) signalIfIdle() {
	if w.Busy() {
		return
	}

	fn := w.notifyIdle.Load()
	if fn != nil {
		(*fn)()
	}
}

// trackedStream relays Next to the underlying adapter and releases the
// worker's reading state exactly once, when the consumer receives the
// terminal sentinel.
type trackedStream struct {
	inner   *stream.Adapter
	worker  *Worker
	release sync.Once
}

func (s *trackedStream) Next() ([]byte, bool) {
	chunk, ok := s.inner.Next()
	if !ok {
		s.release.Do(func() {
			s.worker.reading.Store(false)
			s.worker.signalIfIdle()
		})
	}

	return chunk, ok
}
