package file

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tphakala/flac"

	"github.com/deeplyinc/homeaudio-go/internal/audiocore"
	"github.com/deeplyinc/homeaudio-go/internal/errors"
)

// pcmReader yields mono int16 samples from a decoded file.
type pcmReader interface {
	Format() audiocore.AudioFormat
	// Read fills dst and returns the number of samples written. It returns
	// io.EOF once the stream is exhausted and no samples were written.
	Read(dst []int16) (int, error)
}

// Info describes an audio file without decoding its samples.
type Info struct {
	Format       audiocore.AudioFormat
	TotalSamples int
}

// Probe reads the header of a WAV or FLAC file.
func Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	defer func() { _ = f.Close() }()

	r, err := newReader(f, path)
	if err != nil {
		return Info{}, err
	}

	info := Info{Format: r.Format()}
	switch v := r.(type) {
	case *wavReader:
		if err := v.dec.FwdToPCM(); err == nil && v.dec.BitDepth > 0 && v.dec.NumChans > 0 {
			info.TotalSamples = v.dec.PCMSize / int(v.dec.BitDepth/8) / int(v.dec.NumChans)
		}
	case *flacReader:
		info.TotalSamples = int(v.dec.TotalSamples)
	}
	return info, nil
}

func newReader(f *os.File, path string) (pcmReader, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		return newWAVReader(f)
	case ".flac":
		return newFLACReader(f)
	default:
		return nil, errors.Newf("unsupported audio file type %q", ext).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryValidation).
			Context("path", filepath.Base(path)).
			Build()
	}
}

type wavReader struct {
	dec *wav.Decoder
	buf *audio.IntBuffer
}

func newWAVReader(f *os.File) (*wavReader, error) {
	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, errors.Newf("input is not a valid WAV audio file").
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryFileParsing).
			Build()
	}
	return &wavReader{
		dec: dec,
		buf: &audio.IntBuffer{
			Format: &audio.Format{SampleRate: int(dec.SampleRate), NumChannels: int(dec.NumChans)},
		},
	}, nil
}

func (r *wavReader) Format() audiocore.AudioFormat {
	return audiocore.AudioFormat{
		SampleRate: int(r.dec.SampleRate),
		Channels:   int(r.dec.NumChans),
		BitDepth:   int(r.dec.BitDepth),
		Encoding:   audiocore.EncodingPCMS16LE,
	}
}

func (r *wavReader) Read(dst []int16) (int, error) {
	if cap(r.buf.Data) < len(dst) {
		r.buf.Data = make([]int, len(dst))
	}
	r.buf.Data = r.buf.Data[:len(dst)]

	n, err := r.dec.PCMBuffer(r.buf)
	if err != nil {
		return 0, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryFileParsing).
			Context("operation", "decode_wav").
			Build()
	}
	if n == 0 {
		return 0, io.EOF
	}
	for i, v := range r.buf.Data[:n] {
		dst[i] = int16(v)
	}
	return n, nil
}

type flacReader struct {
	dec     *flac.Decoder
	pending []byte // decoded bytes not yet returned
}

func newFLACReader(f *os.File) (*flacReader, error) {
	dec, err := flac.NewDecoder(f)
	if err != nil {
		return nil, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryFileParsing).
			Context("operation", "open_flac").
			Build()
	}
	return &flacReader{dec: dec}, nil
}

func (r *flacReader) Format() audiocore.AudioFormat {
	return audiocore.AudioFormat{
		SampleRate: r.dec.SampleRate,
		Channels:   r.dec.NChannels,
		BitDepth:   r.dec.BitsPerSample,
		Encoding:   audiocore.EncodingPCMS16LE,
	}
}

// Read assumes a validated 16 bit mono stream.
func (r *flacReader) Read(dst []int16) (int, error) {
	for len(r.pending) < 2*len(dst) {
		frame, err := r.dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, errors.New(err).
				Component(audiocore.ComponentAudioCore).
				Category(errors.CategoryFileParsing).
				Context("operation", "decode_flac").
				Build()
		}
		r.pending = append(r.pending, frame...)
	}

	n := min(len(dst), len(r.pending)/2)
	if n == 0 {
		return 0, io.EOF
	}
	for i := range n {
		dst[i] = int16(binary.LittleEndian.Uint16(r.pending[i*2:]))
	}
	r.pending = r.pending[n*2:]
	return n, nil
}
