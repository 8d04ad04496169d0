package malgo

import (
	"encoding/binary"
	"math"

	"github.com/gen2brain/malgo"

	"github.com/deeplyinc/homeaudio-go/internal/audiocore"
	"github.com/deeplyinc/homeaudio-go/internal/errors"
)

// bytesPerSample returns the sample width of a malgo format, 0 if unsupported.
func bytesPerSample(format malgo.FormatType) int {
	switch format {
	case malgo.FormatU8:
		return 1
	case malgo.FormatS16:
		return 2
	case malgo.FormatS24:
		return 3
	case malgo.FormatS32, malgo.FormatF32:
		return 4
	default:
		return 0
	}
}

// convertToS16 converts interleaved mono samples in format to a new
// PCM16LE buffer. Incomplete trailing samples are dropped.
func convertToS16(in []byte, format malgo.FormatType) ([]byte, error) {
	width := bytesPerSample(format)
	if width == 0 {
		return nil, errors.Newf("unsupported capture format %v", format).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudio).
			Build()
	}

	n := len(in) / width
	out := make([]byte, n*2)
	if format == malgo.FormatS16 {
		copy(out, in)
		return out, nil
	}

	for i := range n {
		src := in[i*width:]
		var v int16
		switch format {
		case malgo.FormatU8:
			v = int16((int32(src[0]) - 128) << 8)
		case malgo.FormatS24:
			// top 16 bits of the 24 bit sample
			v = int16(uint16(src[1]) | uint16(src[2])<<8)
		case malgo.FormatS32:
			v = int16(int32(binary.LittleEndian.Uint32(src)) >> 16)
		case malgo.FormatF32:
			f := float64(math.Float32frombits(binary.LittleEndian.Uint32(src))) * 32767
			v = int16(min(max(f, -32768), 32767))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out, nil
}

// resampleS16 converts PCM16LE mono from inRate to outRate by linear
// interpolation. Used only when the device ignores the requested rate.
func resampleS16(in []byte, inRate, outRate uint32) []byte {
	if inRate == outRate || inRate == 0 || outRate == 0 {
		return in
	}
	samples := audiocore.BytesToInt16(in)
	if len(samples) == 0 {
		return nil
	}

	ratio := float64(outRate) / float64(inRate)
	out := make([]int16, int(float64(len(samples))*ratio))
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) / ratio
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(idx)
		out[i] = int16(float64(samples[idx])*(1-frac) + float64(samples[idx+1])*frac)
	}
	return audiocore.Int16ToBytes(out)
}
