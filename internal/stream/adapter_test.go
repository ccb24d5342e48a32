// Package stream_test tests the producer/consumer chunk adapter.
package stream_test

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/speech-stream/internal/stream"
)

func drain(t *testing.T, adapter *stream.Adapter) []byte {
	t.Helper()

	var collected []byte

	for {
		chunk := adapter.ReadChunk()
		if len(chunk) == 0 {
			return collected
		}

		collected = append(collected, chunk...)
	}
}

func TestReadBackPreservesOrder(t *testing.T) {
	t.Parallel()

	adapter := stream.NewAdapter()

	written := [][]byte{
		[]byte("first"),
		[]byte("second"),
		[]byte("third"),
	}

	for _, chunk := range written {
		n, err := adapter.Write(chunk)
		require.NoError(t, err)
		require.Equal(t, len(chunk), n)
	}

	adapter.End()

	collected := drain(t, adapter)
	assert.Equal(t, []byte("firstsecondthird"), collected)
}

func TestReadsAfterEndAreImmediatelyEmpty(t *testing.T) {
	t.Parallel()

	adapter := stream.NewAdapter()

	_, err := adapter.Write([]byte("only"))
	require.NoError(t, err)

	adapter.End()

	_ = drain(t, adapter)

	// Every read after the terminal sentinel must return without blocking.
	for range 3 {
		done := make(chan []byte, 1)

		go func() {
			done <- adapter.ReadChunk()
		}()

		select {
		case chunk := <-done:
			assert.Empty(t, chunk)
		case <-time.After(time.Second):
			t.Fatal("ReadChunk blocked after end-of-stream")
		}
	}
}

func TestEndIsIdempotent(t *testing.T) {
	t.Parallel()

	adapter := stream.NewAdapter()

	adapter.End()
	adapter.End()

	first := adapter.ReadChunk()
	assert.Empty(t, first)

	// A second sentinel would make this read block or return a second
	// terminal chunk; instead the closed adapter answers immediately.
	second := adapter.ReadChunk()
	assert.Empty(t, second)
}

func TestCloseEndsTheStream(t *testing.T) {
	t.Parallel()

	adapter := stream.NewAdapter()

	_, err := adapter.Write([]byte("payload"))
	require.NoError(t, err)

	closeErr := adapter.Close()
	require.NoError(t, closeErr)

	assert.Equal(t, []byte("payload"), drain(t, adapter))
}

func TestEmptyWritesAreIgnored(t *testing.T) {
	t.Parallel()

	adapter := stream.NewAdapter()

	n, err := adapter.Write(nil)
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = adapter.Write([]byte("data"))
	require.NoError(t, err)

	adapter.End()

	assert.Equal(t, []byte("data"), drain(t, adapter))
}

func TestQueuedChunksAreCoalesced(t *testing.T) {
	t.Parallel()

	adapter := stream.NewAdapter()

	for _, chunk := range [][]byte{[]byte("a"), []byte("b"), []byte("c")} {
		_, err := adapter.Write(chunk)
		require.NoError(t, err)
	}

	chunk := adapter.ReadChunk()
	assert.Equal(t, []byte("abc"), chunk)

	adapter.End()
	assert.Empty(t, adapter.ReadChunk())
}

func TestConcurrentProducerConsumer(t *testing.T) {
	t.Parallel()

	adapter := stream.NewAdapter()

	var expected bytes.Buffer

	var waitGroup sync.WaitGroup

	waitGroup.Add(1)

	go func() {
		defer waitGroup.Done()

		for i := range 100 {
			chunk := bytes.Repeat([]byte{byte(i)}, 16)
			expected.Write(chunk)

			_, _ = adapter.Write(chunk)
		}

		adapter.End()
	}()

	collected := drain(t, adapter)

	waitGroup.Wait()
	assert.Equal(t, expected.Bytes(), collected)
}

func TestWriterDoesNotBlockWithoutConsumer(t *testing.T) {
	t.Parallel()

	adapter := stream.NewAdapter()

	done := make(chan struct{})

	go func() {
		for range 10000 {
			_, _ = adapter.Write([]byte("chunk"))
		}

		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Write blocked with no consumer attached")
	}
}
