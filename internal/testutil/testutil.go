// Package testutil provides shared test helpers for audio fixtures and
// asynchronous assertions.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

// DefaultTestTimeout is the standard timeout for async test operations.
const DefaultTestTimeout = 5 * time.Second

// WaitForChannel waits for ch to be closed or signalled, failing after timeout.
func WaitForChannel(t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		require.Fail(t, msg)
	}
}

// WriteWAV writes 16-bit PCM samples to name in a fresh temp directory and
// returns the path. samples are interleaved when channels > 1.
func WriteWAV(t *testing.T, name string, sampleRate, channels int, samples []int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: channels},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	return path
}

// Ramp returns n samples cycling through 0..period-1.
func Ramp(n, period int) []int {
	data := make([]int, n)
	for i := range data {
		data[i] = i % period
	}
	return data
}
