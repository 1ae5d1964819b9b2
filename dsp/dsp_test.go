package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	haven "github.com/AivinJoy/haven-daw"
)

const testSR = 48000

func sineBuffer(freq float64, amp float32, frames int) haven.AudioBuffer {
	buf := make(haven.AudioBuffer, frames)
	for i := range buf {
		v := amp * float32(math.Sin(2*math.Pi*freq*float64(i)/testSR))
		buf[i] = [2]float32{v, v}
	}
	return buf
}

func rms(buf haven.AudioBuffer) float64 {
	var sum float64
	for i := range buf {
		sum += float64(buf[i][0]) * float64(buf[i][0])
	}
	return math.Sqrt(sum / float64(len(buf)))
}

func TestInactiveBandPassesThrough(t *testing.T) {
	b := NewBiquad(testSR, haven.EQBandParams{Type: haven.LowPass, Freq: 100, Q: 0.707, Active: false})
	buf := sineBuffer(1000, 0.5, 1024)
	want := make(haven.AudioBuffer, len(buf))
	copy(want, buf)
	b.Process(buf)
	assert.Equal(t, want, buf)
}

func TestLowPassAttenuatesHighFrequencies(t *testing.T) {
	params := haven.EQBandParams{Type: haven.LowPass, Freq: 500, Q: 0.707, Active: true}

	low := sineBuffer(100, 0.5, testSR/2)
	NewBiquad(testSR, params).Process(low)
	high := sineBuffer(8000, 0.5, testSR/2)
	NewBiquad(testSR, params).Process(high)

	// skip the transient before measuring
	assert.Greater(t, rms(low[testSR/4:]), 0.3)
	assert.Less(t, rms(high[testSR/4:]), 0.01)
}

func TestPeakingBoostRaisesBandLevel(t *testing.T) {
	params := haven.EQBandParams{Type: haven.Peaking, Freq: 1000, Q: 1, GainDB: 12, Active: true}
	buf := sineBuffer(1000, 0.1, testSR/2)
	flat := rms(buf[testSR/4:])
	NewBiquad(testSR, params).Process(buf)
	boosted := rms(buf[testSR/4:])
	assert.InDelta(t, math.Pow(10, 12.0/20), boosted/flat, 0.1)
}

func TestBiquadTypeChangeResetsState(t *testing.T) {
	b := NewBiquad(testSR, haven.EQBandParams{Type: haven.LowPass, Freq: 500, Q: 0.707, Active: true})
	b.Process(sineBuffer(100, 1, 512))
	b.Update(haven.EQBandParams{Type: haven.HighPass, Freq: 500, Q: 0.707, Active: true})
	assert.Equal(t, [2]biquadState{}, b.state)
}

func TestCompressorReducesLoudSignal(t *testing.T) {
	params := haven.CompressorParams{
		Active:      true,
		ThresholdDB: -20,
		Ratio:       4,
		AttackMS:    1,
		ReleaseMS:   50,
		MakeupDB:    0,
	}
	c := NewCompressor(testSR, params)
	buf := sineBuffer(1000, 0.8, testSR/2) // about -2 dBFS peaks
	before := rms(buf[testSR/4:])
	c.Process(buf)
	after := rms(buf[testSR/4:])
	assert.Less(t, after, before*0.5)
	assert.Greater(t, after, 0.0)
}

func TestCompressorBypassed(t *testing.T) {
	c := NewCompressor(testSR, haven.CompressorParams{Active: false, Ratio: 4, AttackMS: 1, ReleaseMS: 50})
	buf := sineBuffer(1000, 0.8, 512)
	want := make(haven.AudioBuffer, len(buf))
	copy(want, buf)
	c.Process(buf)
	assert.Equal(t, want, buf)
}

func TestCompressorQuietSignalUntouched(t *testing.T) {
	params := haven.CompressorParams{
		Active:      true,
		ThresholdDB: -6,
		Ratio:       10,
		AttackMS:    1,
		ReleaseMS:   50,
	}
	c := NewCompressor(testSR, params)
	buf := sineBuffer(1000, 0.05, testSR/4) // about -26 dBFS, far below threshold
	before := rms(buf)
	c.Process(buf)
	assert.InDelta(t, before, rms(buf), before*0.02)
}

func TestEqualPowerPanLaw(t *testing.T) {
	for _, pan := range []float32{-1, -0.5, 0, 0.25, 1} {
		buf := haven.AudioBuffer{{1, 1}}
		ApplyGainPan(buf, 1, pan)
		l, r := float64(buf[0][0]), float64(buf[0][1])
		assert.InDelta(t, 1, l*l+r*r, 1e-6, "pan %v", pan)
	}
	// hard left silences the right lane entirely
	buf := haven.AudioBuffer{{1, 1}}
	ApplyGainPan(buf, 1, -1)
	assert.InDelta(t, 0, buf[0][1], 1e-7)
	assert.InDelta(t, 1, buf[0][0], 1e-6)
}

func TestChainOrderAndSampleRateReset(t *testing.T) {
	eq := haven.DefaultEQ()
	chain := NewChain(testSR, eq, haven.DefaultCompressor())
	require.Len(t, chain.EQ, 4)

	buf := sineBuffer(1000, 0.25, 1024)
	chain.Process(buf, 0.5, 0)
	// gain 0.5 with center pan: each lane scaled by 0.5*cos(pi/4)
	expected := 0.25 * 0.5 * float32(math.Cos(math.Pi/4))
	peak := float32(0)
	for i := range buf {
		if v := buf[i][0]; v > peak {
			peak = v
		}
	}
	assert.InDelta(t, expected, peak, float64(expected)*0.1)

	chain.SetSampleRate(44100)
	for _, band := range chain.EQ {
		assert.Equal(t, [2]biquadState{}, band.state)
	}
	assert.Equal(t, float32(0), chain.Compressor.envelope)
}
