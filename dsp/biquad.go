// Package dsp implements the per-track signal chain: a four-band biquad
// equalizer, a feed-forward compressor and the gain/pan stage. All state is
// owned by the audio thread; parameter updates arrive between buffers, never
// mid-buffer.
package dsp

import (
	"math"

	haven "github.com/AivinJoy/haven-daw"
)

type (
	// Biquad is one second-order IIR filter section with per-channel state.
	Biquad struct {
		params haven.EQBandParams
		coeff  biquadCoeff
		state  [2]biquadState
		sr     int
	}

	biquadCoeff struct {
		b0, b1, b2, a1, a2 float32
	}

	biquadState struct {
		x1, x2, y1, y2 float32
	}
)

// NewBiquad returns a filter section for the given sample rate and
// parameters.
func NewBiquad(sampleRate int, params haven.EQBandParams) *Biquad {
	b := &Biquad{sr: sampleRate}
	b.params = params
	b.coeff = computeCoefficients(params, sampleRate)
	return b
}

// Params returns the current parameters.
func (b *Biquad) Params() haven.EQBandParams { return b.params }

// Update applies new parameters. The filter state is cleared when the filter
// type changes, since the old state belongs to a different response.
func (b *Biquad) Update(params haven.EQBandParams) {
	typeChanged := b.params.Type != params.Type
	b.params = params
	b.coeff = computeCoefficients(params, b.sr)
	if typeChanged {
		b.Reset()
	}
}

// SetSampleRate recomputes the coefficients for a new engine rate and clears
// the state.
func (b *Biquad) SetSampleRate(sampleRate int) {
	b.sr = sampleRate
	b.coeff = computeCoefficients(b.params, sampleRate)
	b.Reset()
}

// Reset clears the filter memory.
func (b *Biquad) Reset() {
	b.state = [2]biquadState{}
}

// Process filters the buffer in place. An inactive band passes audio through
// untouched.
func (b *Biquad) Process(buffer haven.AudioBuffer) {
	if !b.params.Active {
		return
	}
	for chn := 0; chn < 2; chn++ {
		s := b.state[chn]
		c := b.coeff
		for i := range buffer {
			x := buffer[i][chn]
			y := c.b0*x + c.b1*s.x1 + c.b2*s.x2 - c.a1*s.y1 - c.a2*s.y2
			// flush denormals
			if y < 1e-20 && y > -1e-20 {
				y = 0
			}
			s.x2, s.x1 = s.x1, x
			s.y2, s.y1 = s.y1, y
			buffer[i][chn] = y
		}
		b.state[chn] = s
	}
}

// computeCoefficients evaluates the RBJ cookbook formulas for the requested
// filter type, normalized by a0. Frequency is clamped below Nyquist and Q
// floored so the section stays stable for any surface input.
func computeCoefficients(p haven.EQBandParams, sampleRate int) biquadCoeff {
	freq := float64(p.Freq)
	nyquist := float64(sampleRate)/2 - 1
	if freq < 20 {
		freq = 20
	}
	if freq > nyquist {
		freq = nyquist
	}
	q := float64(p.Q)
	if q < 0.1 {
		q = 0.1
	}

	w := 2 * math.Pi * freq / float64(sampleRate)
	sinW, cosW := math.Sin(w), math.Cos(w)
	alpha := sinW / (2 * q)
	bigA := math.Pow(10, float64(p.GainDB)/40)

	var b0, b1, b2, a0, a1, a2 float64
	switch p.Type {
	case haven.LowPass:
		b0, b1, b2 = (1-cosW)/2, 1-cosW, (1-cosW)/2
		a0, a1, a2 = 1+alpha, -2*cosW, 1-alpha
	case haven.HighPass:
		b0, b1, b2 = (1+cosW)/2, -(1 + cosW), (1+cosW)/2
		a0, a1, a2 = 1+alpha, -2*cosW, 1-alpha
	case haven.BandPass:
		b0, b1, b2 = alpha, 0, -alpha
		a0, a1, a2 = 1+alpha, -2*cosW, 1-alpha
	case haven.Notch:
		b0, b1, b2 = 1, -2*cosW, 1
		a0, a1, a2 = 1+alpha, -2*cosW, 1-alpha
	case haven.LowShelf:
		sqrtA2Alpha := 2 * math.Sqrt(bigA) * alpha
		b0 = bigA * ((bigA + 1) - (bigA-1)*cosW + sqrtA2Alpha)
		b1 = 2 * bigA * ((bigA - 1) - (bigA+1)*cosW)
		b2 = bigA * ((bigA + 1) - (bigA-1)*cosW - sqrtA2Alpha)
		a0 = (bigA + 1) + (bigA-1)*cosW + sqrtA2Alpha
		a1 = -2 * ((bigA - 1) + (bigA+1)*cosW)
		a2 = (bigA + 1) + (bigA-1)*cosW - sqrtA2Alpha
	case haven.HighShelf:
		sqrtA2Alpha := 2 * math.Sqrt(bigA) * alpha
		b0 = bigA * ((bigA + 1) + (bigA-1)*cosW + sqrtA2Alpha)
		b1 = -2 * bigA * ((bigA - 1) + (bigA+1)*cosW)
		b2 = bigA * ((bigA + 1) + (bigA-1)*cosW - sqrtA2Alpha)
		a0 = (bigA + 1) - (bigA-1)*cosW + sqrtA2Alpha
		a1 = 2 * ((bigA - 1) - (bigA+1)*cosW)
		a2 = (bigA + 1) - (bigA-1)*cosW - sqrtA2Alpha
	default: // Peaking
		b0, b1, b2 = 1+alpha*bigA, -2*cosW, 1-alpha*bigA
		a0, a1, a2 = 1+alpha/bigA, -2*cosW, 1-alpha/bigA
	}
	return biquadCoeff{
		b0: float32(b0 / a0),
		b1: float32(b1 / a0),
		b2: float32(b2 / a0),
		a1: float32(a1 / a0),
		a2: float32(a2 / a0),
	}
}
