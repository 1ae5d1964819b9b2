package asset

import "io"

// WaveformBinsPerSec is the resolution of the precomputed min/max waveform
// summaries.
const WaveformBinsPerSec = 50

type (
	// Source is the fully decoded audio for one file, shared by any number of
	// clips. It is immutable after construction.
	Source struct {
		Path       string // canonical absolute path
		SampleRate int
		Channels   int
		Samples    []float32 // interleaved
		Summary    Waveform
	}

	// Waveform is a fixed-resolution min/max summary of a source, used by
	// clients to draw without touching the PCM.
	Waveform struct {
		BinsPerSec int       `json:"bins_per_sec"`
		Mins       []float32 `json:"mins"`
		Maxs       []float32 `json:"maxs"`
	}
)

// Frames returns the number of frames in the source.
func (s *Source) Frames() int {
	if s.Channels == 0 {
		return 0
	}
	return len(s.Samples) / s.Channels
}

// Duration returns the source length in seconds.
func (s *Source) Duration() float64 {
	if s.SampleRate == 0 {
		return 0
	}
	return float64(s.Frames()) / float64(s.SampleRate)
}

// FrameAt returns the left/right values of frame i, folding the source's
// channel layout to stereo: mono duplicates, stereo copies, wider layouts
// average even lanes into L and odd lanes into R.
func (s *Source) FrameAt(i int) (l, r float32) {
	base := i * s.Channels
	switch s.Channels {
	case 1:
		v := s.Samples[base]
		return v, v
	case 2:
		return s.Samples[base], s.Samples[base+1]
	default:
		var suml, sumr float32
		var nl, nr float32
		for ch := 0; ch < s.Channels; ch++ {
			if ch%2 == 0 {
				suml += s.Samples[base+ch]
				nl++
			} else {
				sumr += s.Samples[base+ch]
				nr++
			}
		}
		return suml / nl, sumr / nr
	}
}

// computeWaveform builds the min/max summary over a mono fold of the
// samples.
func computeWaveform(samples []float32, channels, sampleRate, binsPerSec int) Waveform {
	frames := len(samples) / channels
	framesPerBin := sampleRate / binsPerSec
	if framesPerBin < 1 {
		framesPerBin = 1
	}
	bins := (frames + framesPerBin - 1) / framesPerBin
	w := Waveform{
		BinsPerSec: binsPerSec,
		Mins:       make([]float32, bins),
		Maxs:       make([]float32, bins),
	}
	for b := 0; b < bins; b++ {
		lo, hi := float32(0), float32(0)
		start := b * framesPerBin
		end := min(start+framesPerBin, frames)
		for f := start; f < end; f++ {
			var sum float32
			for ch := 0; ch < channels; ch++ {
				sum += samples[f*channels+ch]
			}
			v := sum / float32(channels)
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		w.Mins[b] = lo
		w.Maxs[b] = hi
	}
	return w
}

// decodeAll drains a stream into one interleaved slice.
func decodeAll(stream Stream) ([]float32, error) {
	var samples []float32
	buf := make([]float32, 32768)
	for {
		n, err := stream.ReadSamples(buf)
		if n > 0 {
			samples = append(samples, buf[:n]...)
		}
		if err == io.EOF {
			return samples, nil
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return samples, nil
		}
	}
}
