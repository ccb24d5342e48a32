// Package tts is the public face of the speech streaming pipeline. It wraps
// the worker pool behind the say / to-file operations and owns request
// defaulting. A single-worker deployment is simply a pool of one; the
// semantics are identical.
package tts

import (
	"fmt"
	"os"

	"github.com/book-expert/logger"

	"github.com/book-expert/speech-stream/internal/core"
	"github.com/book-expert/speech-stream/internal/encoder"
	"github.com/book-expert/speech-stream/internal/pool"
)

const outputFilePermissions = 0o600

// Service synthesizes speech through a fixed pool of engine-owning workers.
type Service struct {
	pool *pool.Pool
	log  *logger.Logger
}

// New builds a service with count workers (minimum one), one engine per
// worker. The encoder registry decides which non-native formats are
// accepted.
func New(
	count int,
	factory core.EngineFactory,
	registry *encoder.Registry,
	opts pool.Options,
	log *logger.Logger,
) (*Service, error) {
	if count < 1 {
		count = 1
	}

	workerPool, err := pool.New(count, factory, registry, opts, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build worker pool: %w", err)
	}

	return &Service{pool: workerPool, log: log}, nil
}

// Say synthesizes text with the given voice into format and returns the
// lazy, single-pass chunk stream. It fails synchronously for unsupported
// formats and with pool.ErrPoolBusy when every worker stays busy beyond the
// admission timeout.
func (s *Service) Say(text, voice string, format core.Format, chunkSize int) (core.ChunkStream, error) {
	chunks, err := s.pool.Say(text, voice, format, chunkSize)
	if err != nil {
		return nil, fmt.Errorf("synthesis request rejected: %w", err)
	}

	return chunks, nil
}

// ToFile drives Say and writes every yielded chunk, in order, to path.
func (s *Service) ToFile(path, text, voice string, format core.Format) error {
	chunks, err := s.Say(text, voice, format, 0)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, outputFilePermissions)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}

	writeErr := writeAll(file, chunks)

	closeErr := file.Close()
	if writeErr != nil {
		return writeErr
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close output file %q: %w", path, closeErr)
	}

	return nil
}

// Shutdown stops accepting requests and waits for all workers to terminate.
func (s *Service) Shutdown() {
	s.pool.Shutdown()
}

func writeAll(file *os.File, chunks core.ChunkStream) error {
	for {
		chunk, ok := chunks.Next()
		if !ok {
			return nil
		}

		_, err := file.Write(chunk)
		if err != nil {
			return fmt.Errorf("failed to write audio chunk: %w", err)
		}
	}
}
