// conf/consts.go hard coded constants
package conf

const (
	SampleRate    = 16000 // Sample rate of the audio fed to the event model
	BitDepth      = 16    // Bit depth of captured PCM
	NumChannels   = 1     // Mono capture
	CaptureLength = 3     // Length of one inference window in seconds

	DefaultNFFT      = 2048
	DefaultHopLength = 1024
	DefaultMelBins   = 64
	DefaultLogOffset = 1e-10
	DefaultThreshold = 0.7

	// DefaultChunkSamples is the size of chunks emitted by file sources (one second)
	DefaultChunkSamples = 16000

	DefaultModelPath = "model/home_audio_event.tflite"

	appDirName = "homeaudio-go"
	envPrefix  = "HOMEAUDIO"
)

// DefaultTensorShape is the model input shape. The leading 2 is part of the
// exported model's contract and is not a batch of two windows.
var DefaultTensorShape = []int{2, 1, DefaultMelBins, 47}
