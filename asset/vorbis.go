package asset

import (
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"
)

// VorbisDecoder decodes Ogg Vorbis files.
type VorbisDecoder struct{}

type vorbisStream struct {
	dec      *oggvorbis.Reader
	frameBuf []float32
}

func (s *vorbisStream) SampleRate() int { return s.dec.SampleRate() }
func (s *vorbisStream) Channels() int   { return s.dec.Channels() }
func (s *vorbisStream) Close() error    { return nil }

func (s *vorbisStream) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	channels := s.dec.Channels()
	framesRequested := len(dst) / channels
	if cap(s.frameBuf) < framesRequested*channels {
		s.frameBuf = make([]float32, framesRequested*channels)
	}
	s.frameBuf = s.frameBuf[:framesRequested*channels]

	// oggvorbis returns the number of samples read, always a multiple of the
	// channel count
	n, err := s.dec.Read(s.frameBuf)
	if n == 0 {
		if err != nil {
			return 0, err
		}
		return 0, nil
	}
	copy(dst, s.frameBuf[:n])
	return n, err
}

func (VorbisDecoder) Decode(r io.ReadSeeker) (Stream, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}
	return &vorbisStream{dec: dec, frameBuf: make([]float32, 4096)}, nil
}
