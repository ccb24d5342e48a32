// main package for the speech-stream service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/speech-stream/internal/config"
	"github.com/book-expert/speech-stream/internal/core"
	"github.com/book-expert/speech-stream/internal/encoder"
	"github.com/book-expert/speech-stream/internal/natsbridge"
	"github.com/book-expert/speech-stream/internal/objectstore"
	"github.com/book-expert/speech-stream/internal/pool"
	"github.com/book-expert/speech-stream/internal/synth"
	"github.com/book-expert/speech-stream/internal/tts"
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "speech-stream.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func buildService(cfg *config.Config, registry *encoder.Registry, log *logger.Logger) (*tts.Service, error) {
	factory := func() (core.Engine, error) {
		return synth.NewExecEngine(cfg.Engine.Command, cfg.Engine.SampleRate, log)
	}

	opts := pool.Options{
		AdmissionTimeout: time.Duration(cfg.Pool.AdmissionTimeoutSeconds) * time.Second,
		DefaultVoice:     cfg.Pool.DefaultVoice,
		DefaultFormat:    core.Format(cfg.Pool.DefaultFormat),
		ChunkSize:        cfg.Pool.ChunkSize,
	}

	service, err := tts.New(cfg.Pool.Workers, factory, registry, opts, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build synthesis service: %w", err)
	}

	return service, nil
}

func runBridge(ctx context.Context, cfg *config.Config, service *tts.Service, log *logger.Logger) error {
	conn, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer conn.Close()

	jetstreamContext, err := conn.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return fmt.Errorf("failed to open object store: %w", err)
	}

	bridge, err := natsbridge.New(
		conn,
		cfg.NATS.JobSubject,
		store,
		service,
		core.Format(cfg.Pool.DefaultFormat),
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to build NATS bridge: %w", err)
	}

	log.System("Listening for synthesis jobs on subject: %s", cfg.NATS.JobSubject)

	runErr := bridge.Run(ctx)
	if runErr != nil {
		return fmt.Errorf("bridge stopped with error: %w", runErr)
	}

	return nil
}

func run() error {
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	registry := encoder.Probe(log)

	service, err := buildService(cfg, registry, log)
	if err != nil {
		log.Error("Failed to build service: %v", err)

		return err
	}
	defer service.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runBridge(ctx, cfg, service, log)
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
