package analysis

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/deeplyinc/homeaudio-go/internal/conf"
	"github.com/deeplyinc/homeaudio-go/internal/detection"
	"github.com/deeplyinc/homeaudio-go/internal/detector"
	"github.com/deeplyinc/homeaudio-go/internal/errors"
	"github.com/deeplyinc/homeaudio-go/internal/observability"
	"github.com/deeplyinc/homeaudio-go/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testSettings(inputFile string) *conf.Settings {
	s := &conf.Settings{}
	s.Main.Name = "test-node"
	s.Detector = conf.DetectorSettings{
		SampleRate:    conf.SampleRate,
		WindowSeconds: conf.CaptureLength,
		NFFT:          conf.DefaultNFFT,
		HopLength:     conf.DefaultHopLength,
		MelBins:       conf.DefaultMelBins,
		TensorShape:   []int{2, 1, conf.DefaultMelBins, 47},
		LogOffset:     conf.DefaultLogOffset,
		Threshold:     conf.DefaultThreshold,
		QueueSize:     8,
	}
	s.Model.Path = filepath.Join(os.TempDir(), "does-not-exist.tflite")
	s.Audio.ChunkSamples = conf.DefaultChunkSamples
	s.InputFile = inputFile
	s.UseStub = true
	return s
}

// writeSilence writes a 16 kHz mono WAV file of the given length.
func writeSilence(t *testing.T, samples int) string {
	t.Helper()
	return testutil.WriteWAV(t, "room.wav", conf.SampleRate, 1, make([]int, samples))
}

func TestFileAnalysisWithStub(t *testing.T) {
	path := writeSilence(t, 5*conf.SampleRate)

	var out bytes.Buffer
	require.NoError(t, FileAnalysis(t.Context(), testSettings(path), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5, out.String())
	assert.Equal(t, "room.wav [5s]: 3 windows analyzed, 3 results", lines[0])
	assert.Equal(t, []string{"START", "END", "LABEL", "CONFIDENCE"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"0s", "3s", "OTHERS", "0.90"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"1s", "4s", "OTHERS", "0.90"}, strings.Fields(lines[3]))
	assert.Equal(t, []string{"2s", "5s", "OTHERS", "0.90"}, strings.Fields(lines[4]))
}

func TestFileAnalysisShorterThanWindow(t *testing.T) {
	path := writeSilence(t, 2*conf.SampleRate)

	var out bytes.Buffer
	require.NoError(t, FileAnalysis(t.Context(), testSettings(path), &out))
	assert.Equal(t, "room.wav [2s]: 0 windows analyzed, 0 results\n", out.String())
}

func TestFileAnalysisThresholdFiltersOutput(t *testing.T) {
	path := writeSilence(t, 3*conf.SampleRate)
	settings := testSettings(path)
	settings.Detector.Threshold = 0.95

	var out bytes.Buffer
	require.NoError(t, FileAnalysis(t.Context(), settings, &out))
	assert.Equal(t, "room.wav [3s]: 1 windows analyzed, 0 results\n", out.String())
}

func TestFileAnalysisDegradedWithoutModel(t *testing.T) {
	path := writeSilence(t, 4*conf.SampleRate)
	settings := testSettings(path)
	settings.UseStub = false

	var out bytes.Buffer
	require.NoError(t, FileAnalysis(t.Context(), settings, &out))
	assert.Equal(t, "room.wav [4s]: 0 windows analyzed, 0 results\n", out.String())
}

func TestValidateAudioFile(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.wav")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	tests := []struct {
		name     string
		path     string
		category errors.ErrorCategory
	}{
		{"missing", filepath.Join(dir, "missing.wav"), errors.CategoryFileIO},
		{"directory", dir, errors.CategoryValidation},
		{"empty", empty, errors.CategoryValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validateAudioFile(tt.path)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, tt.category), "got %v", err)
		})
	}

	info, err := validateAudioFile(writeSilence(t, 1600))
	require.NoError(t, err)
	assert.Equal(t, 1600, info.TotalSamples)
	assert.Equal(t, conf.SampleRate, info.Format.SampleRate)
}

func TestStreamClock(t *testing.T) {
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	c := newStreamClock(start, 16000)
	assert.Equal(t, start, c.Now())

	c.advance(24000)
	assert.Equal(t, start.Add(1500*time.Millisecond), c.Now())

	assert.Equal(t, start, newStreamClock(start, 0).Now())
}

func TestClockedDetectorAdvancesBeforeAccumulate(t *testing.T) {
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	clock := newStreamClock(start, conf.SampleRate)

	stub, err := detector.NewStub(conf.DefaultDetectorConfig(), nil, detector.WithClock(clock.Now))
	require.NoError(t, err)
	det := &clockedDetector{Service: stub, clock: clock}

	for range 3 {
		det.Accumulate(make([]int16, conf.SampleRate))
	}

	r, ok := det.Latest()
	require.True(t, ok)
	assert.Equal(t, start, r.From)
	assert.Equal(t, start.Add(3*time.Second), r.To)
	assert.Equal(t, detection.Others, r.Label)
}

func TestNewPipeline(t *testing.T) {
	m, err := observability.NewMetrics()
	require.NoError(t, err)

	settings := testSettings("")
	settings.MQTT.Enabled = true
	settings.MQTT.Broker = "tcp://127.0.0.1:1883"
	settings.MQTT.Topic = "homeaudio/events/"
	settings.MQTT.Threshold = 0.5

	p, err := NewPipeline(settings, m)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, p.Close()) })

	require.NotNil(t, p.Publisher)
	assert.Equal(t, "homeaudio/events/cough", p.Publisher.Topic(detection.Result{Label: detection.Cough}))
	assert.False(t, p.Detector.Status().ModelLoaded, "stub reports no model")

	p.OnDrop()
	p.OnDrop()
	assert.Equal(t, uint64(2), p.Dropped())

	require.NoError(t, p.Close(), "close is idempotent")
}

func TestNewPipelineRejectsInvalidConfig(t *testing.T) {
	settings := testSettings("")
	settings.UseStub = false
	settings.Detector.HopLength = 0

	_, err := NewPipeline(settings, nil)
	require.Error(t, err)
}

func TestSourceID(t *testing.T) {
	assert.Equal(t, "soundcard", sourceID(testSettings("")))
	assert.Equal(t, "/tmp/a.wav", sourceID(testSettings("/tmp/a.wav")))
}
