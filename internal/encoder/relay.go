package encoder

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/speech-stream/internal/core"
	"github.com/book-expert/speech-stream/internal/stream"
)

// exitWait bounds how long Close waits for an encoder subprocess to finish
// after its input is closed; a hung encoder is killed rather than allowed to
// block the worker.
const exitWait = 5 * time.Second

// ErrEmptyCommand indicates an encoder argv with no binary.
var ErrEmptyCommand = errors.New("encoder command is empty")

// Relay connects the container framer to the consumer-facing chunk stream.
//
// With an encoder argv it spawns the subprocess, exposes its stdin as the
// framer target, and pumps its stdout into a fresh stream adapter on a
// dedicated relay goroutine. With a nil argv (native WAV) the adapter itself
// is both the target and the stream; no subprocess is involved.
type Relay struct {
	out       *stream.Adapter
	target    io.WriteCloser
	cmd       *exec.Cmd
	relayDone chan struct{}
	log       *logger.Logger
	closed    bool
}

// Open builds a relay for one utterance. args is the encoder argv, or nil
// for the passthrough path. chunkSize bounds each read from the subprocess
// output.
func Open(args []string, chunkSize int, log *logger.Logger) (*Relay, error) {
	adapter := stream.NewAdapter()

	if len(args) == 0 {
		if args != nil {
			return nil, ErrEmptyCommand
		}

		return &Relay{
			out:       adapter,
			target:    adapter,
			cmd:       nil,
			relayDone: nil,
			log:       log,
			closed:    false,
		}, nil
	}

	if chunkSize <= 0 {
		chunkSize = core.DefaultChunkSize
	}

	// #nosec G204 -- argv comes from the fixed builtin table or a test registry
	cmd := exec.Command(args[0], args[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open encoder stdin: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open encoder stdout: %w", err)
	}

	startErr := cmd.Start()
	if startErr != nil {
		return nil, fmt.Errorf("failed to start encoder %q: %w", args[0], startErr)
	}

	relay := &Relay{
		out:       adapter,
		target:    stdin,
		cmd:       cmd,
		relayDone: make(chan struct{}),
		log:       log,
		closed:    false,
	}

	go relay.pump(stdout, chunkSize)

	return relay, nil
}

// pump continuously moves encoder output into the adapter until the
// subprocess closes its stdout, then delivers the terminal sentinel.
func (r *Relay) pump(stdout io.Reader, chunkSize int) {
	defer close(r.relayDone)
	defer r.out.End()

	buf := make([]byte, chunkSize)

	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			_, _ = r.out.Write(buf[:n])
		}

		if err != nil {
			return
		}
	}
}

// Target returns the writer the container framer should frame into.
func (r *Relay) Target() io.WriteCloser {
	return r.target
}

// Stream returns the consumer-facing chunk stream.
func (r *Relay) Stream() *stream.Adapter {
	return r.out
}

// Close signals end-of-input and, for a subprocess relay, waits for the
// encoder to exit within a bounded timeout, killing it on expiry. A kill is
// logged but never surfaced: the consumer still receives whatever the
// encoder managed to emit, terminated by the sentinel. Idempotent.
func (r *Relay) Close() error {
	if r.closed {
		return nil
	}

	r.closed = true

	closeErr := r.target.Close()
	if closeErr != nil && r.log != nil {
		r.log.Warn("Failed to close encoder input: %v", closeErr)
	}

	if r.cmd == nil {
		return nil
	}

	// The pump finishes once the encoder closes stdout, which happens when
	// the process exits. Waiting on the pump first keeps cmd.Wait from
	// closing the stdout pipe under the pump's reads.
	select {
	case <-r.relayDone:
	case <-time.After(exitWait):
		if r.log != nil {
			r.log.Warn("Encoder %q did not exit in %s, killing it", r.cmd.Path, exitWait)
		}

		killErr := r.cmd.Process.Kill()
		if killErr != nil && r.log != nil {
			r.log.Warn("Failed to kill encoder %q: %v", r.cmd.Path, killErr)
		}

		<-r.relayDone
	}

	waitErr := r.cmd.Wait()
	if waitErr != nil && r.log != nil {
		r.log.Warn("Encoder %q exited with error: %v", r.cmd.Path, waitErr)
	}

	return nil
}
