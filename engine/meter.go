package engine

import (
	"math"
	"sync/atomic"

	haven "github.com/AivinJoy/haven-daw"
	"github.com/viterin/vek/vek32"
)

// MeterSnapshot is the meter query payload for one track or the master bus.
// All amplitudes are linear; the UI converts to dB.
type MeterSnapshot struct {
	TrackID uint32  `json:"track_id"`
	PeakL   float32 `json:"peak_l"`
	PeakR   float32 `json:"peak_r"`
	RMSL    float32 `json:"rms_l"`
	RMSR    float32 `json:"rms_r"`
	HoldL   float32 `json:"hold_l"`
	HoldR   float32 `json:"hold_r"`
}

// Meter is a single-writer many-reader level meter. The audio thread calls
// ProcessBlock; everyone else reads Snapshot through the bit-cast atomic
// slots, possibly seeing values one callback old. The hold peak attacks
// instantly, holds for 500 ms and then decays exponentially with a 300 ms
// time constant, compensated for block size.
type Meter struct {
	peakL, peakR atomic.Uint32
	holdL, holdR atomic.Uint32
	rmsL, rmsR   atomic.Uint32

	decayCoeff   float32
	storedPeak   [2]float32
	holdFrames   [2]int
	holdDuration int
	tmp, tmp2    []float32
}

const (
	meterDecaySeconds = 0.300
	meterHoldSeconds  = 0.500
)

func NewMeter(sampleRate int) *Meter {
	m := &Meter{}
	m.SetSampleRate(sampleRate)
	return m
}

// SetSampleRate rebinds the hold/decay ballistics to a new engine rate.
func (m *Meter) SetSampleRate(sampleRate int) {
	m.decayCoeff = float32(math.Exp(-1 / (meterDecaySeconds * float64(sampleRate))))
	m.holdDuration = int(meterHoldSeconds * float64(sampleRate))
}

// ProcessBlock measures one callback's buffer and publishes the result.
// Audio-thread only; the scratch slices grow once and are then reused.
func (m *Meter) ProcessBlock(buffer haven.AudioBuffer) {
	n := len(buffer)
	if n == 0 {
		return
	}
	setSliceLength(&m.tmp, n)
	setSliceLength(&m.tmp2, n)
	blockDecay := float32(math.Pow(float64(m.decayCoeff), float64(n)))
	for chn := 0; chn < 2; chn++ {
		for i := range buffer {
			m.tmp[i] = buffer[i][chn]
		}
		sq := vek32.Mul_Into(m.tmp2, m.tmp, m.tmp)
		rms := float32(math.Sqrt(float64(vek32.Mean(sq))))
		vek32.Abs_Inplace(m.tmp)
		peak := vek32.Max(m.tmp)

		if peak > m.storedPeak[chn] {
			m.storedPeak[chn] = peak
			m.holdFrames[chn] = m.holdDuration
		} else if m.holdFrames[chn] > 0 {
			m.holdFrames[chn] -= n
			if m.holdFrames[chn] < 0 {
				m.holdFrames[chn] = 0
			}
		} else {
			m.storedPeak[chn] *= blockDecay
		}

		if chn == 0 {
			m.peakL.Store(math.Float32bits(peak))
			m.rmsL.Store(math.Float32bits(rms))
			m.holdL.Store(math.Float32bits(m.storedPeak[chn]))
		} else {
			m.peakR.Store(math.Float32bits(peak))
			m.rmsR.Store(math.Float32bits(rms))
			m.holdR.Store(math.Float32bits(m.storedPeak[chn]))
		}
	}
}

// Reset clears the published values and ballistics state.
func (m *Meter) Reset() {
	m.storedPeak = [2]float32{}
	m.holdFrames = [2]int{}
	m.peakL.Store(0)
	m.peakR.Store(0)
	m.holdL.Store(0)
	m.holdR.Store(0)
	m.rmsL.Store(0)
	m.rmsR.Store(0)
}

// Snapshot returns the latest published values. Safe from any goroutine.
func (m *Meter) Snapshot(trackID uint32) MeterSnapshot {
	return MeterSnapshot{
		TrackID: trackID,
		PeakL:   math.Float32frombits(m.peakL.Load()),
		PeakR:   math.Float32frombits(m.peakR.Load()),
		RMSL:    math.Float32frombits(m.rmsL.Load()),
		RMSR:    math.Float32frombits(m.rmsR.Load()),
		HoldL:   math.Float32frombits(m.holdL.Load()),
		HoldR:   math.Float32frombits(m.holdR.Load()),
	}
}

func setSliceLength[T any](slice *[]T, length int) {
	if len(*slice) < length {
		*slice = append(*slice, make([]T, length-len(*slice))...)
	}
	*slice = (*slice)[:length]
}
