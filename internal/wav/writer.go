// Package wav frames raw PCM samples into a streamable WAV container.
//
// The container is written incrementally to an append-only target (an
// encoder subprocess stdin or an in-process chunk adapter), so the header
// length fields can never be patched once written. The writer therefore
// declares a fixed oversized data length that exceeds any real utterance.
// Strict readers that validate declared length against actual data will
// consider the result truncated; streaming decoders accept it.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Fixed stream parameters: the engine always produces 16-bit mono PCM.
const (
	NumChannels   = 1
	SampleWidth   = 2
	BitsPerSample = SampleWidth * 8
)

// placeholderFrames is the declared frame count standing in for the unknown
// true length. The data length derived from it (0xFFFFFFE bytes) fits the
// 32-bit RIFF size fields while exceeding any real utterance.
const placeholderFrames = 0xFFFFFFF / (NumChannels * SampleWidth)

const headerSize = 44

var (
	// ErrHeaderAlreadyWritten indicates Begin was called twice for the same
	// utterance.
	ErrHeaderAlreadyWritten = errors.New("container header already written")
	// ErrHeaderNotWritten indicates samples arrived before the sample rate
	// was announced.
	ErrHeaderNotWritten = errors.New("container header not yet written")
	// ErrInvalidSampleRate indicates a non-positive sample rate.
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	// ErrWriterClosed indicates a write after Close.
	ErrWriterClosed = errors.New("container writer is closed")
)

// Writer writes one streaming WAV utterance to a target. It does not own the
// target: closing the writer only seals the writer itself, the relay owns
// the target's lifecycle.
type Writer struct {
	target        io.Writer
	headerWritten bool
	closed        bool
}

// NewWriter creates a writer framing into target.
func NewWriter(target io.Writer) *Writer {
	return &Writer{
		target:        target,
		headerWritten: false,
		closed:        false,
	}
}

// Begin writes the fixed 44-byte header with the oversized length
// placeholder. It must be called exactly once per utterance, at the moment
// the engine announces the sample rate.
func (w *Writer) Begin(sampleRate int) error {
	if w.closed {
		return ErrWriterClosed
	}

	if w.headerWritten {
		return ErrHeaderAlreadyWritten
	}

	if sampleRate <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSampleRate, sampleRate)
	}

	header := buildHeader(sampleRate)

	_, err := w.target.Write(header)
	if err != nil {
		return fmt.Errorf("failed to write container header: %w", err)
	}

	w.headerWritten = true

	return nil
}

// WriteSamples appends raw PCM bytes verbatim after the header.
func (w *Writer) WriteSamples(pcm []byte) error {
	if w.closed {
		return ErrWriterClosed
	}

	if !w.headerWritten {
		return ErrHeaderNotWritten
	}

	if len(pcm) == 0 {
		return nil
	}

	_, err := w.target.Write(pcm)
	if err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}

	return nil
}

// Close seals the writer. Idempotent. The target stays open; signalling
// end-of-input to it is the relay's job.
func (w *Writer) Close() error {
	w.closed = true

	return nil
}

// buildHeader assembles the canonical RIFF/WAVE header for 16-bit mono PCM
// at the given rate, with the placeholder length in both size fields.
func buildHeader(sampleRate int) []byte {
	dataLength := uint32(placeholderFrames * NumChannels * SampleWidth)
	byteRate := uint32(sampleRate * NumChannels * SampleWidth)
	blockAlign := uint16(NumChannels * SampleWidth)

	var buf bytes.Buffer

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, 36+dataLength)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(NumChannels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, byteRate)
	_ = binary.Write(&buf, binary.LittleEndian, blockAlign)
	_ = binary.Write(&buf, binary.LittleEndian, uint16(BitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataLength)

	return buf.Bytes()
}
