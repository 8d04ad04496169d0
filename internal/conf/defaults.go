// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/deeplyinc/homeaudio-go/internal/logger"
)

// setDefaultConfig sets the default values for every configuration key.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("main.name", "homeaudio")

	// Logging
	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	// Model
	v.SetDefault("model.path", DefaultModelPath)
	v.SetDefault("model.threads", 0)
	v.SetDefault("model.usexnnpack", false)

	// Detector
	v.SetDefault("detector.samplerate", SampleRate)
	v.SetDefault("detector.windowseconds", CaptureLength)
	v.SetDefault("detector.nfft", DefaultNFFT)
	v.SetDefault("detector.hoplength", DefaultHopLength)
	v.SetDefault("detector.melbins", DefaultMelBins)
	v.SetDefault("detector.frames", 0)
	v.SetDefault("detector.tensorshape", DefaultTensorShape)
	v.SetDefault("detector.logoffset", DefaultLogOffset)
	v.SetDefault("detector.threshold", DefaultThreshold)
	v.SetDefault("detector.hammingwindow", true)
	v.SetDefault("detector.standardscale", true)
	v.SetDefault("detector.queuesize", 32)
	v.SetDefault("detector.maxresults", 10000)

	// Audio
	v.SetDefault("audio.source", "")
	v.SetDefault("audio.chunksamples", DefaultChunkSamples)
	v.SetDefault("audio.realtime", false)

	// Web server
	v.SetDefault("webserver.enabled", false)
	v.SetDefault("webserver.listen", "127.0.0.1:8080")

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.listen", "")

	// MQTT
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "homeaudio/events")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.threshold", DefaultThreshold)
	v.SetDefault("mqtt.cooldown", 10*time.Second)
	v.SetDefault("mqtt.retain", false)

	// Sentry
	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
}
