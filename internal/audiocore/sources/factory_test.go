package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deeplyinc/homeaudio-go/internal/audiocore/sources/file"
	"github.com/deeplyinc/homeaudio-go/internal/audiocore/sources/malgo"
	"github.com/deeplyinc/homeaudio-go/internal/conf"
)

func TestNewSelectsSource(t *testing.T) {
	settings := &conf.Settings{}
	settings.Detector.SampleRate = 16000
	settings.Detector.QueueSize = 8
	settings.Audio.Source = "USB"

	src := New(settings, nil)
	assert.IsType(t, &malgo.Source{}, src)
	assert.Equal(t, "USB", src.Name())
	assert.Equal(t, 16000, src.GetFormat().SampleRate)

	settings.InputFile = "/tmp/clip.wav"
	src = New(settings, nil)
	assert.IsType(t, &file.Source{}, src)
	assert.Equal(t, "clip.wav", src.Name())
}
