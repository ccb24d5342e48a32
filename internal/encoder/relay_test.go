// Package encoder_test tests the subprocess relay. The tests use `cat` as a
// stand-in encoder: the pipeline treats encoders as opaque byte transforms,
// so an identity transform exercises the full relay path.
package encoder_test

import (
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/speech-stream/internal/encoder"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "relay-test.log")
	require.NoError(t, err)

	return log
}

func collect(t *testing.T, relay *encoder.Relay) []byte {
	t.Helper()

	var collected []byte

	for {
		chunk, ok := relay.Stream().Next()
		if !ok {
			return collected
		}

		collected = append(collected, chunk...)
	}
}

func TestPassthroughRelayExposesAdapterDirectly(t *testing.T) {
	t.Parallel()

	relay, err := encoder.Open(nil, 1024, newTestLogger(t))
	require.NoError(t, err)

	_, err = relay.Target().Write([]byte("raw container bytes"))
	require.NoError(t, err)

	closeErr := relay.Close()
	require.NoError(t, closeErr)

	assert.Equal(t, []byte("raw container bytes"), collect(t, relay))
}

func TestPassthroughCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	relay, err := encoder.Open(nil, 1024, newTestLogger(t))
	require.NoError(t, err)

	require.NoError(t, relay.Close())
	require.NoError(t, relay.Close())

	_, ok := relay.Stream().Next()
	assert.False(t, ok)
}

func TestSubprocessRelayRoundTrip(t *testing.T) {
	t.Parallel()

	relay, err := encoder.Open([]string{"cat"}, 64, newTestLogger(t))
	require.NoError(t, err)

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	_, err = relay.Target().Write(payload)
	require.NoError(t, err)

	closeErr := relay.Close()
	require.NoError(t, closeErr)

	assert.Equal(t, payload, collect(t, relay))
}

func TestSubprocessRelayDeliversSentinelOnExit(t *testing.T) {
	t.Parallel()

	relay, err := encoder.Open([]string{"cat"}, 64, newTestLogger(t))
	require.NoError(t, err)

	require.NoError(t, relay.Close())

	done := make(chan struct{})

	go func() {
		defer close(done)

		_, ok := relay.Stream().Next()
		assert.False(t, ok)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream never terminated after encoder exit")
	}
}

func TestEmptyCommandRejected(t *testing.T) {
	t.Parallel()

	_, err := encoder.Open([]string{}, 64, newTestLogger(t))
	require.ErrorIs(t, err, encoder.ErrEmptyCommand)
}

func TestMissingBinaryFailsOpen(t *testing.T) {
	t.Parallel()

	_, err := encoder.Open([]string{"definitely-not-a-real-encoder-binary"}, 64, newTestLogger(t))
	require.Error(t, err)
}
