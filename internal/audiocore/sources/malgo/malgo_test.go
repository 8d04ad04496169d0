package malgo

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync/atomic"
	"testing"

	"github.com/gen2brain/malgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeplyinc/homeaudio-go/internal/audiocore"
	"github.com/deeplyinc/homeaudio-go/internal/errors"
)

func TestNewSourceDefaults(t *testing.T) {
	t.Parallel()

	s := NewSource("mic", Config{})
	assert.Equal(t, "mic", s.ID())
	assert.Equal(t, "default", s.Name())
	assert.False(t, s.IsActive())

	format := s.GetFormat()
	assert.Equal(t, 16000, format.SampleRate)
	assert.Equal(t, 1, format.Channels)
	assert.Equal(t, 16, format.BitDepth)
	assert.Equal(t, audiocore.EncodingPCMS16LE, format.Encoding)
	require.NoError(t, audiocore.ValidateFormat(format, 16000))

	_, ok := <-s.AudioOutput()
	assert.False(t, ok, "output is closed before the first Start")
	_, ok = <-s.Errors()
	assert.False(t, ok)
}

func TestStopWhenNotRunning(t *testing.T) {
	t.Parallel()

	err := NewSource("mic", Config{}).Stop()
	require.Error(t, err)
	assert.ErrorIs(t, err, audiocore.ErrSourceNotActive)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
}

func TestDeliverDropsWhenFull(t *testing.T) {
	t.Parallel()

	var drops atomic.Int32
	s := NewSource("mic", Config{QueueSize: 1, OnDrop: func() { drops.Add(1) }})
	out := make(chan audiocore.AudioData, 1)

	assert.True(t, s.deliver(out, audiocore.AudioData{SourceID: "a"}))
	assert.False(t, s.deliver(out, audiocore.AudioData{SourceID: "b"}))
	assert.False(t, s.deliver(out, audiocore.AudioData{SourceID: "c"}))

	assert.Equal(t, uint64(2), s.DroppedChunks())
	assert.Equal(t, int32(2), drops.Load())
	assert.Equal(t, "a", (<-out).SourceID, "oldest chunk is kept, newest dropped")
}

// startFakeSession puts s in the running state without a device.
func startFakeSession(s *Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output = make(chan audiocore.AudioData, 1)
	s.errs = make(chan error, 1)
	s.stopped = make(chan struct{})
	s.running.Store(true)
}

func TestOnDeviceStopEndsSession(t *testing.T) {
	t.Parallel()

	s := NewSource("mic", Config{})
	startFakeSession(s)
	out, errs := s.AudioOutput(), s.Errors()

	s.onDeviceStop(s.errs)
	s.Wait()

	assert.False(t, s.IsActive())
	_, ok := <-out
	assert.False(t, ok, "output closes so the consumer returns")

	err, ok := <-errs
	require.True(t, ok)
	assert.True(t, errors.IsCategory(err, errors.CategoryAudioSource))
	_, ok = <-errs
	assert.False(t, ok)
}

func TestOnDeviceStopAfterStopIsIgnored(t *testing.T) {
	t.Parallel()

	s := NewSource("mic", Config{})
	startFakeSession(s)
	errs := s.Errors()
	require.NoError(t, s.Stop())

	s.onDeviceStop(make(chan error, 1))
	s.Wait()

	_, ok := <-errs
	assert.False(t, ok, "no error reported for a requested stop")
}

func TestOnAudioDataConvertsAndStamps(t *testing.T) {
	t.Parallel()

	s := NewSource("mic", Config{Gain: 2})
	s.format = malgo.FormatS16
	s.actualRate = 16000

	out := make(chan audiocore.AudioData, 1)
	errs := make(chan error, 1)
	s.onAudioData(out, errs, audiocore.Int16ToBytes([]int16{100, -200, 20000}), 3)

	data := <-out
	assert.Equal(t, []int16{200, -400, 32767}, audiocore.BytesToInt16(data.Buffer))
	assert.Equal(t, "mic", data.SourceID)
	assert.Equal(t, 16000, data.Format.SampleRate)
	assert.Equal(t, int64(187500), data.Duration.Nanoseconds())
	assert.Empty(t, errs)
}

func TestOnAudioDataUnsupportedFormat(t *testing.T) {
	t.Parallel()

	s := NewSource("mic", Config{})
	s.format = malgo.FormatUnknown

	out := make(chan audiocore.AudioData, 1)
	errs := make(chan error, 1)
	s.onAudioData(out, errs, []byte{1, 2}, 1)

	assert.Empty(t, out)
	require.Len(t, errs, 1)
}

func TestConvertToS16(t *testing.T) {
	t.Parallel()

	f32 := make([]byte, 12)
	binary.LittleEndian.PutUint32(f32[0:], math.Float32bits(0.5))
	binary.LittleEndian.PutUint32(f32[4:], math.Float32bits(-2))
	binary.LittleEndian.PutUint32(f32[8:], math.Float32bits(1))

	s32 := make([]byte, 8)
	binary.LittleEndian.PutUint32(s32[0:], uint32(0x12345678))
	neg := int32(-65536)
	binary.LittleEndian.PutUint32(s32[4:], uint32(neg))

	tests := []struct {
		name   string
		format malgo.FormatType
		in     []byte
		want   []int16
	}{
		{"s16 copy", malgo.FormatS16, audiocore.Int16ToBytes([]int16{1, -1}), []int16{1, -1}},
		{"u8", malgo.FormatU8, []byte{128, 0, 255}, []int16{0, -32768, 32512}},
		{"s24", malgo.FormatS24, []byte{0xff, 0x34, 0x12, 0x00, 0x00, 0x80}, []int16{0x1234, -32768}},
		{"s32", malgo.FormatS32, s32, []int16{0x1234, -1}},
		{"f32 clamps", malgo.FormatF32, f32, []int16{16383, -32768, 32767}},
		{"trailing partial sample", malgo.FormatS24, []byte{0, 1, 0, 9}, []int16{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, err := convertToS16(tt.in, tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.want, audiocore.BytesToInt16(out))
		})
	}

	_, err := convertToS16([]byte{0, 0}, malgo.FormatUnknown)
	require.Error(t, err)
}

func TestResampleS16(t *testing.T) {
	t.Parallel()

	in := audiocore.Int16ToBytes([]int16{0, 100, 200, 300})
	assert.Equal(t, in, resampleS16(in, 16000, 16000))

	up := audiocore.BytesToInt16(resampleS16(in, 8000, 16000))
	assert.Equal(t, []int16{0, 50, 100, 150, 200, 250, 300, 300}, up)

	down := audiocore.BytesToInt16(resampleS16(in, 32000, 16000))
	assert.Equal(t, []int16{0, 200}, down)
}

func TestMatchDevice(t *testing.T) {
	t.Parallel()

	devices := []DeviceInfo{
		{Index: 0, Name: "HDA Intel PCH: ALC892 Analog", ID: ":0,0"},
		{Index: 2, Name: "USB PnP Sound Device", ID: ":1,0", IsDefault: true},
		{Index: 3, Name: "Loopback", ID: ":2,0"},
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"default", 2},
		{"Loopback", 3},
		{":0,0", 0},
		{"usb pnp", 2},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()
			got, err := matchDevice(devices, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := matchDevice(devices[:1], "")
	require.NoError(t, err)
	assert.Equal(t, 0, got, "first device when none is default")

	_, err = matchDevice(devices, "nonexistent")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	_, err = matchDevice(nil, "")
	require.Error(t, err)
}

func TestDecodeID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ":1,0", decodeID(hex.EncodeToString([]byte(":1,0\x00\x00"))))
	assert.Equal(t, "not-hex", decodeID("not-hex"))
}
