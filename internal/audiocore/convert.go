package audiocore

import "encoding/binary"

// BytesToInt16 decodes little-endian PCM16 bytes. A trailing odd byte is ignored.
func BytesToInt16(buf []byte) []int16 {
	samples := make([]int16, len(buf)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	return samples
}

// Int16ToBytes encodes samples as little-endian PCM16.
func Int16ToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// ApplyGain scales PCM16LE samples in place, clamping to the int16 range.
func ApplyGain(buf []byte, gain float64) {
	if gain == 1.0 {
		return
	}
	for i := 0; i+1 < len(buf); i += 2 {
		amplified := float64(int16(binary.LittleEndian.Uint16(buf[i:]))) * gain
		amplified = min(max(amplified, -32768), 32767)
		binary.LittleEndian.PutUint16(buf[i:], uint16(int16(amplified)))
	}
}
