package dsp

import (
	"math"

	haven "github.com/AivinJoy/haven-daw"
)

// Chain is the fixed per-track DSP chain: four EQ bands in order, then the
// compressor, then the gain/pan stage. One Chain instance follows a track
// for its whole lifetime so filter memory survives graph snapshot swaps.
type Chain struct {
	EQ         [haven.NumEQBands]*Biquad
	Compressor *Compressor
}

// NewChain builds a chain at the given sample rate.
func NewChain(sampleRate int, eq [haven.NumEQBands]haven.EQBandParams, comp haven.CompressorParams) *Chain {
	ch := &Chain{Compressor: NewCompressor(sampleRate, comp)}
	for i := range ch.EQ {
		ch.EQ[i] = NewBiquad(sampleRate, eq[i])
	}
	return ch
}

// Process runs the buffer through the chain in place. Mute and solo gating
// happen at the mixer when the track bus is summed, so meters downstream of
// the chain keep moving on muted tracks.
func (ch *Chain) Process(buffer haven.AudioBuffer, gain, pan float32) {
	for _, band := range ch.EQ {
		band.Process(buffer)
	}
	ch.Compressor.Process(buffer)
	ApplyGainPan(buffer, gain, pan)
}

// SetSampleRate reinitializes every stage for a new engine rate. Used on
// device hot-swap.
func (ch *Chain) SetSampleRate(sampleRate int) {
	for _, band := range ch.EQ {
		band.SetSampleRate(sampleRate)
	}
	ch.Compressor.SetSampleRate(sampleRate)
}

// ApplyGainPan scales the buffer by gain and an equal-power pan law:
// L *= cos((pan+1)*π/4), R *= sin((pan+1)*π/4).
func ApplyGainPan(buffer haven.AudioBuffer, gain, pan float32) {
	angle := (float64(pan) + 1) * 0.25 * math.Pi
	gl := gain * float32(math.Cos(angle))
	gr := gain * float32(math.Sin(angle))
	for i := range buffer {
		buffer[i][0] *= gl
		buffer[i][1] *= gr
	}
}
