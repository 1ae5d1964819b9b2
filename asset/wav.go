package asset

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WavDecoder decodes RIFF/WAVE files. Integer PCM goes through go-audio's
// decoder; 32-bit float files (the engine's own recordings and exports) are
// parsed with a direct chunk walk, which go-audio does not cover.
type WavDecoder struct{}

func (WavDecoder) Decode(r io.ReadSeeker) (Stream, error) {
	d := wav.NewDecoder(r)
	d.ReadInfo()
	if !d.IsValidFile() {
		return nil, ErrNotWavFile
	}
	if d.WavAudioFormat == 3 { // IEEE float
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("%w", err)
		}
		return decodeFloatWav(r)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}
	if len(buf.Data) == 0 {
		return nil, ErrEmptySource
	}
	return &memStream{
		sampleRate: buf.Format.SampleRate,
		channels:   buf.Format.NumChannels,
		samples:    intBufferToFloats(buf, int(d.BitDepth)),
	}, nil
}

// intBufferToFloats normalizes go-audio integer PCM to [-1, 1] floats.
func intBufferToFloats(buf *audio.IntBuffer, fallbackDepth int) []float32 {
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = fallbackDepth
	}
	scale := float32(math.Pow(2, float64(bitDepth-1)))
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}
	return samples
}

// decodeFloatWav walks the RIFF chunks of a float32 WAV file directly.
func decodeFloatWav(r io.Reader) (Stream, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w", err)
	}
	if !bytes.Equal(header[:4], []byte("RIFF")) || !bytes.Equal(header[8:12], []byte("WAVE")) {
		return nil, ErrNotWavFile
	}
	var sampleRate, channels, bits int
	chunkHeader := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, chunkHeader); err != nil {
			return nil, ErrUnsupportedWavData
		}
		size := int(binary.LittleEndian.Uint32(chunkHeader[4:8]))
		switch string(chunkHeader[:4]) {
		case "fmt ":
			fmtChunk := make([]byte, size)
			if _, err := io.ReadFull(r, fmtChunk); err != nil {
				return nil, fmt.Errorf("%w", err)
			}
			channels = int(binary.LittleEndian.Uint16(fmtChunk[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(fmtChunk[4:8]))
			bits = int(binary.LittleEndian.Uint16(fmtChunk[14:16]))
		case "data":
			if channels == 0 || bits != 32 {
				return nil, ErrUnsupportedWavData
			}
			raw := make([]byte, size)
			if n, err := io.ReadFull(r, raw); err != nil {
				if err != io.ErrUnexpectedEOF {
					return nil, fmt.Errorf("%w", err)
				}
				raw = raw[:n-n%4]
			}
			samples := make([]float32, len(raw)/4)
			for i := range samples {
				samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
			}
			if len(samples) == 0 {
				return nil, ErrEmptySource
			}
			return &memStream{sampleRate: sampleRate, channels: channels, samples: samples}, nil
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size+size%2)); err != nil {
				return nil, fmt.Errorf("%w", err)
			}
		}
	}
}

// memStream serves an already fully decoded sample slice.
type memStream struct {
	sampleRate int
	channels   int
	samples    []float32
	pos        int
}

func (s *memStream) SampleRate() int { return s.sampleRate }
func (s *memStream) Channels() int   { return s.channels }
func (s *memStream) Close() error    { return nil }

func (s *memStream) ReadSamples(dst []float32) (int, error) {
	if s.pos >= len(s.samples) {
		return 0, io.EOF
	}
	n := copy(dst, s.samples[s.pos:])
	s.pos += n
	return n, nil
}
