// Package synth provides a synthesis engine backed by an external
// synthesizer binary: text on stdin, raw 16-bit mono PCM on stdout at a
// fixed, configured sample rate. One instance per worker; the worker
// goroutine is the only caller of Generate.
package synth

import (
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/book-expert/logger"
	"github.com/mattn/go-shellwords"

	"github.com/book-expert/speech-stream/internal/core"
)

var (
	// ErrEmptyCommand indicates a synthesizer command with no binary.
	ErrEmptyCommand = errors.New("synthesizer command is empty")
	// ErrInvalidSampleRate indicates a non-positive configured sample rate.
	ErrInvalidSampleRate = errors.New("synthesizer sample rate must be positive")
	// ErrNotInitialized indicates Generate was called before Init.
	ErrNotInitialized = errors.New("engine callbacks not registered")
)

// ExecEngine implements core.Engine over a subprocess. The process is
// spawned per utterance; the engine announces the configured sample rate
// once before relaying stdout reads as sample callbacks.
type ExecEngine struct {
	args       []string
	sampleRate int
	log        *logger.Logger

	onRate    core.RateCallback
	onSamples core.SamplesCallback
	voice     string
}

// NewExecEngine parses command into an argv (shell-style quoting respected)
// and returns an engine producing PCM at sampleRate.
func NewExecEngine(command string, sampleRate int, log *logger.Logger) (*ExecEngine, error) {
	parser := shellwords.NewParser()

	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse synthesizer command: %w", err)
	}

	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSampleRate, sampleRate)
	}

	return &ExecEngine{
		args:       args,
		sampleRate: sampleRate,
		log:        log,
		onRate:     nil,
		onSamples:  nil,
		voice:      "",
	}, nil
}

// Init registers the worker's callbacks.
func (e *ExecEngine) Init(onRate core.RateCallback, onSamples core.SamplesCallback) error {
	e.onRate = onRate
	e.onSamples = onSamples

	return nil
}

// Version reports the ABI version of this engine implementation.
func (e *ExecEngine) Version() string {
	return core.EngineAPIVersion
}

// SetVoice selects the voice passed to the synthesizer on the next Generate.
func (e *ExecEngine) SetVoice(voice string) error {
	e.voice = voice

	return nil
}

// Generate spawns the synthesizer for one utterance and relays its output
// through the callbacks. A false continuation flag kills the subprocess and
// ends the utterance without error, mirroring an engine-level abort.
func (e *ExecEngine) Generate(text string) error {
	if e.onRate == nil || e.onSamples == nil {
		return ErrNotInitialized
	}

	args := append([]string(nil), e.args[1:]...)
	if e.voice != "" {
		args = append(args, "--voice", e.voice)
	}

	// #nosec G204 -- the argv comes from the operator-supplied configuration
	cmd := exec.Command(e.args[0], args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open synthesizer stdin: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open synthesizer stdout: %w", err)
	}

	startErr := cmd.Start()
	if startErr != nil {
		return fmt.Errorf("failed to start synthesizer %q: %w", e.args[0], startErr)
	}

	go func() {
		_, writeErr := io.WriteString(stdin, text)
		if writeErr != nil {
			e.log.Warn("Failed to write text to synthesizer: %v", writeErr)
		}

		closeErr := stdin.Close()
		if closeErr != nil {
			e.log.Warn("Failed to close synthesizer stdin: %v", closeErr)
		}
	}()

	if !e.onRate(e.sampleRate) {
		return e.abort(cmd)
	}

	buf := make([]byte, core.DefaultChunkSize)

	for {
		n, readErr := stdout.Read(buf)
		if n > 0 {
			if !e.onSamples(buf[:n]) {
				return e.abort(cmd)
			}
		}

		if readErr != nil {
			break
		}
	}

	waitErr := cmd.Wait()
	if waitErr != nil {
		return fmt.Errorf("synthesizer %q failed: %w", e.args[0], waitErr)
	}

	return nil
}

// Close releases the engine. The subprocess lives per utterance, so there is
// nothing to tear down here.
func (e *ExecEngine) Close() error {
	return nil
}

// abort kills an in-flight synthesizer after a callback declined to
// continue. The abort is deliberate, so no error surfaces.
func (e *ExecEngine) abort(cmd *exec.Cmd) error {
	killErr := cmd.Process.Kill()
	if killErr != nil {
		e.log.Warn("Failed to kill synthesizer: %v", killErr)
	}

	_ = cmd.Wait()

	return nil
}
