// Package config_test tests the configuration loading for the
// speech-stream service.
package config_test

import (
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/speech-stream/internal/config"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[nats]
url = "nats://127.0.0.1:4222"
job_subject = "speech.jobs"
audio_object_store_bucket = "AUDIO_FILES"

[engine]
command = "synthd --stream"
sample_rate = 24000

[pool]
workers = 4
admission_timeout_seconds = 30
default_voice = "anna"
default_format = "mp3"
chunk_size = 1024

[paths]
base_logs_dir = "/var/log/speech-stream"
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "speech.jobs", cfg.NATS.JobSubject)
	assert.Equal(t, "AUDIO_FILES", cfg.NATS.AudioObjectStoreBucket)
	assert.Equal(t, "synthd --stream", cfg.Engine.Command)
	assert.Equal(t, 24000, cfg.Engine.SampleRate)
	assert.Equal(t, 4, cfg.Pool.Workers)
	assert.Equal(t, 30, cfg.Pool.AdmissionTimeoutSeconds)
	assert.Equal(t, "anna", cfg.Pool.DefaultVoice)
	assert.Equal(t, "mp3", cfg.Pool.DefaultFormat)
	assert.Equal(t, 1024, cfg.Pool.ChunkSize)
	assert.Equal(t, "/var/log/speech-stream", cfg.Paths.BaseLogsDir)
}
