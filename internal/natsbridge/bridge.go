// Package natsbridge exposes the synthesis pool over NATS: it consumes
// text-processed job events, synthesizes the referenced text, stores the
// finished audio in the object store, and replies with an
// audio-chunk-created event.
package natsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/speech-stream/internal/core"
)

const handleMessageTimeout = 30 * time.Second

// ErrEmptyTextKey indicates a job event without a text payload reference.
var ErrEmptyTextKey = errors.New("text key cannot be empty")

// Synthesizer is the slice of the synthesis service the bridge needs.
type Synthesizer interface {
	Say(text, voice string, format core.Format, chunkSize int) (core.ChunkStream, error)
}

// Bridge listens for synthesis jobs on a NATS subject and processes them
// through the pool.
type Bridge struct {
	conn    *nats.Conn
	subject string
	store   core.ObjectStore
	synth   Synthesizer
	format  core.Format
	log     *logger.Logger
}

// New creates a bridge producing audio in the given format for every job.
func New(
	conn *nats.Conn,
	subject string,
	store core.ObjectStore,
	synth Synthesizer,
	format core.Format,
	log *logger.Logger,
) (*Bridge, error) {
	if format == "" {
		format = core.FormatWAV
	}

	return &Bridge{
		conn:    conn,
		subject: subject,
		store:   store,
		synth:   synth,
		format:  format,
		log:     log,
	}, nil
}

// Run subscribes and blocks until ctx is cancelled, then drains the
// subscription.
func (b *Bridge) Run(ctx context.Context) error {
	sub, err := b.conn.Subscribe(b.subject, b.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", b.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (b *Bridge) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		b.log.Error("Failed to unmarshal job event: %v", err)

		return
	}

	audioKey, processErr := b.processJob(ctx, &event)
	if processErr != nil {
		b.log.Error("Failed to process job for workflow %s: %v", event.Header.WorkflowID, processErr)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	replyErr := b.reply(msg, replyEvent)
	if replyErr != nil {
		b.log.Error("Failed to publish reply for workflow %s: %v", event.Header.WorkflowID, replyErr)
	}
}

// processJob downloads the job text, streams it through the pool, and
// uploads the collected audio under a fresh key.
func (b *Bridge) processJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	if event.TextKey == "" {
		return "", ErrEmptyTextKey
	}

	textData, err := b.store.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text for key '%s': %w", event.TextKey, err)
	}

	chunks, err := b.synth.Say(string(textData), event.Voice, b.format, 0)
	if err != nil {
		return "", fmt.Errorf("failed to synthesize text for key '%s': %w", event.TextKey, err)
	}

	var audioData []byte

	for {
		chunk, ok := chunks.Next()
		if !ok {
			break
		}

		audioData = append(audioData, chunk...)
	}

	audioKey := uuid.NewString() + "." + string(b.format)

	uploadErr := b.store.Upload(ctx, audioKey, audioData)
	if uploadErr != nil {
		return "", fmt.Errorf("failed to upload audio for key '%s': %w", audioKey, uploadErr)
	}

	return audioKey, nil
}

func (b *Bridge) reply(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	respondErr := msg.Respond(replyData)
	if respondErr != nil {
		return fmt.Errorf("failed to respond to job message: %w", respondErr)
	}

	return nil
}
