package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromEmbeddedDefaults(t *testing.T) {
	data, err := configFiles.ReadFile("config.yaml")
	require.NoError(t, err)
	path := writeConfig(t, string(data))

	settings, err := LoadFrom(viper.New(), path)
	require.NoError(t, err)

	cfg := settings.DetectorConfig()
	assert.Equal(t, DefaultDetectorConfig(), cfg)
	assert.Equal(t, 48000, cfg.WindowSamples())
	assert.Equal(t, 47, cfg.Frames)
	assert.Equal(t, 6016, cfg.TensorSize())
	assert.Equal(t, 10*time.Second, settings.MQTT.Cooldown)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
}

func TestLoadFromPartialConfigUsesDefaults(t *testing.T) {
	path := writeConfig(t, `
detector:
  threshold: 0.5
mqtt:
  cooldown: 2m
`)

	settings, err := LoadFrom(viper.New(), path)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, settings.Detector.Threshold, 1e-9)
	assert.Equal(t, DefaultNFFT, settings.Detector.NFFT)
	assert.Equal(t, []int{2, 1, 64, 47}, settings.Detector.TensorShape)
	assert.Equal(t, 2*time.Minute, settings.MQTT.Cooldown)
	assert.Equal(t, DefaultChunkSamples, settings.Audio.ChunkSamples)
}

func TestLoadFromEnvironmentOverride(t *testing.T) {
	t.Setenv("HOMEAUDIO_DETECTOR_THRESHOLD", "0.25")
	path := writeConfig(t, "debug: false\n")

	settings, err := LoadFrom(viper.New(), path)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, settings.Detector.Threshold, 1e-9)
}

func TestLoadFromRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, `
detector:
  hoplength: 4096
mqtt:
  enabled: true
  broker: ""
`)

	_, err := LoadFrom(viper.New(), path)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.GreaterOrEqual(t, len(ve.Errors), 2)
	assert.Contains(t, err.Error(), "Validation errors")
}

func TestLoadFromMissingFile(t *testing.T) {
	_, err := LoadFrom(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	path := writeConfig(t, "main:\n  name: kitchen\n")

	settings, err := LoadFrom(viper.New(), path)
	require.NoError(t, err)
	settings.Detector.Threshold = 0.6
	settings.MQTT.Topic = "house/audio"

	require.NoError(t, SaveYAMLConfig(path, settings))

	reloaded, err := LoadFrom(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "kitchen", reloaded.Main.Name)
	assert.InDelta(t, 0.6, reloaded.Detector.Threshold, 1e-9)
	assert.Equal(t, "house/audio", reloaded.MQTT.Topic)
	assert.Equal(t, settings.MQTT.Cooldown, reloaded.MQTT.Cooldown)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file removed after rename")
}
