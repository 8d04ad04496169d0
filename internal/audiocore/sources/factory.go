// Package sources builds the configured audio source.
package sources

import (
	"github.com/deeplyinc/homeaudio-go/internal/audiocore"
	"github.com/deeplyinc/homeaudio-go/internal/audiocore/sources/file"
	"github.com/deeplyinc/homeaudio-go/internal/audiocore/sources/malgo"
	"github.com/deeplyinc/homeaudio-go/internal/conf"
)

// Source is an audio source that can also wait for its session to end.
type Source interface {
	audiocore.AudioSource
	Wait()
}

// New returns a file source when settings.InputFile is set and a sound
// card source otherwise. onDrop is wired to capture sources only; file
// sources apply backpressure instead of dropping.
func New(settings *conf.Settings, onDrop func()) Source {
	if settings.InputFile != "" {
		return file.NewSource(settings.InputFile, file.Config{
			SampleRate:   settings.Detector.SampleRate,
			ChunkSamples: settings.Audio.ChunkSamples,
			Realtime:     settings.Audio.Realtime,
		})
	}

	return malgo.NewSource("soundcard", malgo.Config{
		DeviceName: settings.Audio.Source,
		SampleRate: uint32(settings.Detector.SampleRate), //nolint:gosec // validated positive
		QueueSize:  settings.Detector.QueueSize,
		OnDrop:     onDrop,
	})
}

// ListDevices returns the available capture devices.
func ListDevices() ([]malgo.DeviceInfo, error) {
	return malgo.ListDevices()
}
