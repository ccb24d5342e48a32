// Package encoder manages the external encoder subprocesses that re-encode
// the native WAV stream, and the relay that bridges a subprocess's output
// into the consumer-facing chunk stream.
package encoder

import (
	"os/exec"

	"github.com/book-expert/logger"

	"github.com/book-expert/speech-stream/internal/core"
)

// command describes one external encoder: the full streaming-mode argument
// vector, the binary that must resolve on PATH, and the distribution package
// that provides it (named in the diagnostic when the binary is missing).
type command struct {
	args    []string
	binary  string
	pkgName string
}

// builtinCommands is the fixed table of known encoders. Each argv runs the
// encoder in streaming mode: quiet, no metadata, length unknown up front,
// container bytes on stdin, encoded bytes on stdout.
var builtinCommands = map[core.Format]command{
	core.FormatMP3: {
		args:    []string{"lame", "-htv", "--silent", "-", "-"},
		binary:  "lame",
		pkgName: "lame",
	},
	core.FormatOpus: {
		args:    []string{"opusenc", "--quiet", "--discard-comments", "--ignorelength", "-", "-"},
		binary:  "opusenc",
		pkgName: "opus-tools",
	},
}

// Registry is the immutable process-wide set of available encoders, computed
// once at startup and passed into the pool and worker constructors. The
// native WAV format is always supported and never appears in the registry.
type Registry struct {
	commands map[core.Format][]string
}

// NewRegistry builds a registry from an explicit format-to-argv table. Tests
// use it to inject fake encoders.
func NewRegistry(commands map[core.Format][]string) *Registry {
	copied := make(map[core.Format][]string, len(commands))
	for format, args := range commands {
		copied[format] = append([]string(nil), args...)
	}

	return &Registry{commands: copied}
}

// Probe checks every builtin encoder binary against the system path and
// returns a registry holding only the resolvable ones. Unavailable formats
// are dropped with a warning, not an error.
func Probe(log *logger.Logger) *Registry {
	return probe(exec.LookPath, log)
}

func probe(lookPath func(string) (string, error), log *logger.Logger) *Registry {
	commands := make(map[core.Format][]string, len(builtinCommands))

	for format, cmd := range builtinCommands {
		_, err := lookPath(cmd.binary)
		if err != nil {
			log.Warn(
				"Disable %s support - %s not found. Use apt install %s",
				format, cmd.binary, cmd.pkgName,
			)

			continue
		}

		commands[format] = cmd.args
	}

	return NewRegistry(commands)
}

// Lookup returns the argv for format, or ok=false when the format has no
// available encoder.
func (r *Registry) Lookup(format core.Format) ([]string, bool) {
	args, ok := r.commands[format]

	return args, ok
}

// Supports reports whether a request for format can be served: either the
// native container or a format with an available encoder.
func (r *Registry) Supports(format core.Format) bool {
	if format == core.FormatWAV {
		return true
	}

	_, ok := r.commands[format]

	return ok
}
