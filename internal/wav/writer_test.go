// Package wav_test tests the streaming container writer.
package wav_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/speech-stream/internal/wav"
)

const testSampleRate = 24000

func TestBeginWritesCanonicalHeader(t *testing.T) {
	t.Parallel()

	var target bytes.Buffer

	writer := wav.NewWriter(&target)

	err := writer.Begin(testSampleRate)
	require.NoError(t, err)

	header := target.Bytes()
	require.Len(t, header, 44)

	assert.Equal(t, []byte("RIFF"), header[0:4])
	assert.Equal(t, []byte("WAVE"), header[8:12])
	assert.Equal(t, []byte("fmt "), header[12:16])
	assert.Equal(t, []byte("data"), header[36:40])

	// 16-bit mono PCM at the announced rate.
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(header[20:22]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(header[22:24]))
	assert.Equal(t, uint32(testSampleRate), binary.LittleEndian.Uint32(header[24:28]))
	assert.Equal(t, uint32(testSampleRate*2), binary.LittleEndian.Uint32(header[28:32]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(header[32:34]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(header[34:36]))

	// The declared lengths are the oversized placeholder, not zero.
	dataLength := binary.LittleEndian.Uint32(header[40:44])
	assert.Equal(t, uint32(0xFFFFFFE), dataLength)
	assert.Equal(t, 36+dataLength, binary.LittleEndian.Uint32(header[4:8]))
}

func TestHeaderWrittenExactlyOnce(t *testing.T) {
	t.Parallel()

	var target bytes.Buffer

	writer := wav.NewWriter(&target)

	require.NoError(t, writer.Begin(testSampleRate))

	err := writer.Begin(testSampleRate)
	require.ErrorIs(t, err, wav.ErrHeaderAlreadyWritten)

	assert.Len(t, target.Bytes(), 44)
}

func TestSamplesAppendedVerbatimAfterHeader(t *testing.T) {
	t.Parallel()

	var target bytes.Buffer

	writer := wav.NewWriter(&target)

	require.NoError(t, writer.Begin(testSampleRate))

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	require.NoError(t, writer.WriteSamples(pcm))
	require.NoError(t, writer.WriteSamples(nil))
	require.NoError(t, writer.WriteSamples(pcm))

	assert.Equal(t, append(pcm, pcm...), target.Bytes()[44:])
}

func TestSamplesRejectedBeforeHeader(t *testing.T) {
	t.Parallel()

	writer := wav.NewWriter(&bytes.Buffer{})

	err := writer.WriteSamples([]byte{0x00})
	require.ErrorIs(t, err, wav.ErrHeaderNotWritten)
}

func TestInvalidSampleRateRejected(t *testing.T) {
	t.Parallel()

	writer := wav.NewWriter(&bytes.Buffer{})

	err := writer.Begin(0)
	require.ErrorIs(t, err, wav.ErrInvalidSampleRate)
}

func TestCloseIsIdempotentAndSealsWriter(t *testing.T) {
	t.Parallel()

	var target bytes.Buffer

	writer := wav.NewWriter(&target)

	require.NoError(t, writer.Begin(testSampleRate))
	require.NoError(t, writer.Close())
	require.NoError(t, writer.Close())

	err := writer.WriteSamples([]byte{0x00})
	require.ErrorIs(t, err, wav.ErrWriterClosed)
}
