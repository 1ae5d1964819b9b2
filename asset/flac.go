package asset

import (
	"fmt"
	"io"
	"math"

	"github.com/mewkiz/flac"
)

// FlacDecoder decodes FLAC files frame by frame via mewkiz/flac.
type FlacDecoder struct{}

type flacStream struct {
	stream  *flac.Stream
	scale   float32
	pending []float32 // interleaved leftover from the last parsed frame
}

func (s *flacStream) SampleRate() int { return int(s.stream.Info.SampleRate) }
func (s *flacStream) Channels() int   { return int(s.stream.Info.NChannels) }
func (s *flacStream) Close() error    { return s.stream.Close() }

func (s *flacStream) ReadSamples(dst []float32) (int, error) {
	written := 0
	for written < len(dst) {
		if len(s.pending) == 0 {
			frame, err := s.stream.ParseNext()
			if err != nil {
				if written > 0 && err == io.EOF {
					return written, nil
				}
				return written, err
			}
			channels := len(frame.Subframes)
			blockSize := int(frame.BlockSize)
			if cap(s.pending) < blockSize*channels {
				s.pending = make([]float32, 0, blockSize*channels)
			}
			for i := 0; i < blockSize; i++ {
				for ch := 0; ch < channels; ch++ {
					s.pending = append(s.pending, float32(frame.Subframes[ch].Samples[i])/s.scale)
				}
			}
		}
		n := copy(dst[written:], s.pending)
		written += n
		s.pending = s.pending[n:]
	}
	return written, nil
}

func (FlacDecoder) Decode(r io.ReadSeeker) (Stream, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}
	scale := float32(math.Pow(2, float64(stream.Info.BitsPerSample-1)))
	return &flacStream{stream: stream, scale: scale}, nil
}
