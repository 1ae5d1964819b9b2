// Package asset loads audio files into shared, immutable Sources. Decoding
// happens synchronously on the calling thread; the decoded PCM plus a
// min/max waveform summary are cached per canonical path and reference
// counted by the clips and undo records that use them.
package asset

import (
	"io"
	"sync"
)

type (
	// Stream is a decoded PCM stream: interleaved float32 samples in [-1,1].
	Stream interface {
		// SampleRate of the PCM stream in Hz.
		SampleRate() int
		// Channels count (1=mono, 2=stereo, more for multichannel files).
		Channels() int
		// ReadSamples fills dst with interleaved float32 samples. Returns the
		// number of float32 values written. n == 0 with err == io.EOF means
		// the stream is finished.
		ReadSamples(dst []float32) (n int, err error)
		// Close releases any resources.
		Close() error
	}

	// Decoder constructs a Stream from an input. The reader must be seekable
	// because some container formats locate their chunks by offset.
	Decoder interface {
		Decode(r io.ReadSeeker) (Stream, error)
	}

	// Registry maps a format key (lower-case file extension without the dot)
	// to its decoder.
	Registry struct {
		codecs map[string]Decoder
		mtx    sync.Mutex
	}
)

func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Decoder)}
}

func (r *Registry) Register(format string, d Decoder) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.codecs[format] = d
}

func (r *Registry) Get(format string) (Decoder, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	d, ok := r.codecs[format]
	return d, ok
}

// DefaultRegistry returns a registry with every codec the engine ships:
// WAV, MP3, Ogg Vorbis and FLAC.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("wav", WavDecoder{})
	r.Register("mp3", MP3Decoder{})
	r.Register("ogg", VorbisDecoder{})
	r.Register("oga", VorbisDecoder{})
	r.Register("flac", FlacDecoder{})
	return r
}
