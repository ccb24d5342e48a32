// Package config provides the configuration structure for the speech-stream
// service.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	JobSubject             string `toml:"job_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// EngineConfig holds the configuration for the external synthesizer binary
// backing each worker.
type EngineConfig struct {
	Command    string `toml:"command"`
	SampleRate int    `toml:"sample_rate"`
}

// PoolConfig holds the worker pool settings.
type PoolConfig struct {
	Workers                 int    `toml:"workers"`
	AdmissionTimeoutSeconds int    `toml:"admission_timeout_seconds"`
	DefaultVoice            string `toml:"default_voice"`
	DefaultFormat           string `toml:"default_format"`
	ChunkSize               int    `toml:"chunk_size"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS   NATSConfig   `toml:"nats"`
	Engine EngineConfig `toml:"engine"`
	Pool   PoolConfig   `toml:"pool"`
	Paths  PathsConfig  `toml:"paths"`
}

// Load loads the configuration for the speech-stream service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return &cfg, nil
}
