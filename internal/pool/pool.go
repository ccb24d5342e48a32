// Package pool dispatches synthesis requests across a fixed set of workers,
// each owning its own engine instance, with bounded-timeout admission
// control.
package pool

import (
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/speech-stream/internal/core"
	"github.com/book-expert/speech-stream/internal/encoder"
	"github.com/book-expert/speech-stream/internal/worker"
)

// DefaultAdmissionTimeout bounds how long a dispatch waits for a worker to
// free up before failing with ErrPoolBusy.
const DefaultAdmissionTimeout = 30 * time.Second

var (
	// ErrPoolBusy indicates every worker stayed busy for the whole
	// admission timeout.
	ErrPoolBusy = errors.New("all synthesis workers are busy")
	// ErrPoolClosed indicates a request arrived after Shutdown.
	ErrPoolClosed = errors.New("worker pool is shut down")
	// ErrUnsupportedFormat indicates the requested format is neither the
	// native container nor a format with an available encoder.
	ErrUnsupportedFormat = errors.New("unsupported output format")
	// ErrNoWorkers indicates a pool size below one.
	ErrNoWorkers = errors.New("pool needs at least one worker")
	// ErrEmptyText indicates a request with nothing to synthesize.
	ErrEmptyText = errors.New("text cannot be empty")
)

// Options tunes pool behavior. The zero value selects the defaults.
type Options struct {
	AdmissionTimeout time.Duration
	DefaultVoice     string
	DefaultFormat    core.Format
	ChunkSize        int
}

// Pool holds a fixed, immutable set of workers created at construction and
// torn down together. Dispatch is mutually exclusive: a claim decision and
// the subsequent hand-off happen under one lock, so two callers can never
// select the same worker.
type Pool struct {
	workers  []*worker.Worker
	registry *encoder.Registry
	log      *logger.Logger
	opts     Options

	dispatch chan struct{} // capacity 1, the dispatch mutex
	idle     chan struct{} // workers signal here on becoming idle
	closed   chan struct{}
}

// New builds count workers, each with its own engine from factory. The
// registry decides which encoded formats are accepted; it is injected so
// tests can fake encoder availability.
func New(
	count int,
	factory core.EngineFactory,
	registry *encoder.Registry,
	opts Options,
	log *logger.Logger,
) (*Pool, error) {
	if count < 1 {
		return nil, ErrNoWorkers
	}

	if opts.AdmissionTimeout <= 0 {
		opts.AdmissionTimeout = DefaultAdmissionTimeout
	}

	if opts.DefaultFormat == "" {
		opts.DefaultFormat = core.FormatWAV
	}

	if opts.ChunkSize <= 0 {
		opts.ChunkSize = core.DefaultChunkSize
	}

	p := &Pool{
		workers:  make([]*worker.Worker, 0, count),
		registry: registry,
		log:      log,
		opts:     opts,
		dispatch: make(chan struct{}, 1),
		idle:     make(chan struct{}, count),
		closed:   make(chan struct{}),
	}
	p.dispatch <- struct{}{}

	for i := range count {
		w, err := worker.New(factory, registry, log)
		if err != nil {
			p.shutdownWorkers()

			return nil, fmt.Errorf("failed to start worker %d: %w", i, err)
		}

		w.SetNotifyIdle(p.signalIdle)
		p.workers = append(p.workers, w)
	}

	return p, nil
}

// Say synthesizes text and returns the lazy chunk stream. Unsupported
// formats fail synchronously before any worker is engaged; a fully
// saturated pool fails with ErrPoolBusy once the admission timeout elapses.
func (p *Pool) Say(text, voice string, format core.Format, chunkSize int) (core.ChunkStream, error) {
	req, err := p.buildRequest(text, voice, format, chunkSize)
	if err != nil {
		return nil, err
	}

	select {
	case <-p.closed:
		return nil, ErrPoolClosed
	default:
	}

	timeout := time.NewTimer(p.opts.AdmissionTimeout)
	defer timeout.Stop()

	// Take the dispatch mutex, still honoring the admission deadline.
	select {
	case <-p.dispatch:
	case <-p.closed:
		return nil, ErrPoolClosed
	case <-timeout.C:
		return nil, ErrPoolBusy
	}
	defer func() { p.dispatch <- struct{}{} }()

	for {
		for _, w := range p.workers {
			if w.TryClaim() {
				return w.Enqueue(req)
			}
		}

		select {
		case <-p.idle:
			// A worker reported idle; rescan.
		case <-p.closed:
			return nil, ErrPoolClosed
		case <-timeout.C:
			return nil, ErrPoolBusy
		}
	}
}

// Shutdown blocks new intake and waits for every worker to terminate.
// Idempotent.
func (p *Pool) Shutdown() {
	select {
	case <-p.closed:
		return
	default:
		close(p.closed)
	}

	p.shutdownWorkers()
}

func (p *Pool) shutdownWorkers() {
	for _, w := range p.workers {
		w.Shutdown()
	}
}

func (p *Pool) signalIdle() {
	select {
	case p.idle <- struct{}{}:
	default:
		// Enough wake-ups queued already.
	}
}

func (p *Pool) buildRequest(text, voice string, format core.Format, chunkSize int) (*core.Request, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	if voice == "" {
		voice = p.opts.DefaultVoice
	}

	if format == "" {
		format = p.opts.DefaultFormat
	}

	if !p.registry.Supports(format) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if chunkSize <= 0 {
		chunkSize = p.opts.ChunkSize
	}

	return &core.Request{
		ID:        uuid.NewString(),
		Text:      text,
		Voice:     voice,
		Format:    format,
		ChunkSize: chunkSize,
	}, nil
}
