package dsp

import (
	"math"

	haven "github.com/AivinJoy/haven-daw"
)

// levelFloorDB is the lowest side-chain level the detector distinguishes.
const levelFloorDB = -120

// Compressor is a feed-forward, peak-detecting compressor with log-domain
// envelope smoothing. The computed gain is applied uniformly to both
// channels so the stereo image is preserved.
type Compressor struct {
	params   haven.CompressorParams
	sr       int
	envelope float32 // current gain reduction, dB
}

// NewCompressor returns a compressor for the given sample rate.
func NewCompressor(sampleRate int, params haven.CompressorParams) *Compressor {
	return &Compressor{params: params, sr: sampleRate}
}

// Params returns the current parameters.
func (c *Compressor) Params() haven.CompressorParams { return c.params }

// Update applies new parameters at the next buffer.
func (c *Compressor) Update(params haven.CompressorParams) { c.params = params }

// SetSampleRate rebinds the time constants to a new engine rate and resets
// the envelope.
func (c *Compressor) SetSampleRate(sampleRate int) {
	c.sr = sampleRate
	c.Reset()
}

// Reset clears the envelope follower.
func (c *Compressor) Reset() { c.envelope = 0 }

// Process compresses the buffer in place. Bypassed entirely when inactive.
func (c *Compressor) Process(buffer haven.AudioBuffer) {
	if !c.params.Active {
		return
	}
	attackCoef := float32(math.Exp(-1 / (float64(c.params.AttackMS) * 0.001 * float64(c.sr))))
	releaseCoef := float32(math.Exp(-1 / (float64(c.params.ReleaseMS) * 0.001 * float64(c.sr))))
	makeup := c.params.MakeupDB
	threshold := c.params.ThresholdDB
	slope := 1 - 1/c.params.Ratio

	for i := range buffer {
		level := buffer[i][0]
		if level < 0 {
			level = -level
		}
		if r := buffer[i][1]; r > level {
			level = r
		} else if -r > level {
			level = -r
		}
		levelDB := float32(levelFloorDB)
		if level > 0 {
			if db := float32(20 * math.Log10(float64(level))); db > levelFloorDB {
				levelDB = db
			}
		}
		var target float32
		if overshoot := levelDB - threshold; overshoot > 0 {
			target = overshoot * slope
		}
		coef := releaseCoef
		if target > c.envelope {
			coef = attackCoef
		}
		c.envelope = coef*(c.envelope-target) + target
		gain := float32(math.Pow(10, float64(makeup-c.envelope)/20))
		buffer[i][0] *= gain
		buffer[i][1] *= gain
	}
}
