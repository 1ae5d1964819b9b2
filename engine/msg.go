package engine

import (
	"sync/atomic"

	haven "github.com/AivinJoy/haven-daw"
)

// Messages to the player. Cheap parameter changes are applied by the audio
// thread at the start of the next callback; msgGraph is the structural
// snapshot handoff.
type (
	msgSetTrackGain struct {
		Track uint32
		Gain  float32
	}
	msgSetTrackPan struct {
		Track uint32
		Pan   float32
	}
	msgSetTrackMute struct {
		Track uint32
		Muted bool
	}
	msgSetTrackSolo struct {
		Track uint32
		Solo  bool
	}
	msgSetMasterGain struct {
		Gain float32
	}
	msgUpdateEQ struct {
		Track  uint32
		Band   int
		Params haven.EQBandParams
	}
	msgUpdateCompressor struct {
		Track  uint32
		Params haven.CompressorParams
	}
	msgSeek struct {
		Frame int64
	}
	msgPlay  struct{}
	msgPause struct{}

	// msgGraph swaps the render graph. The previous graph is sent back to
	// the model through ToModel so it is freed on the control thread.
	msgGraph struct {
		Graph *Graph
	}

	// msgSampleRate rebinds the player to a new device rate after a
	// hot-swap: clip windows are recomputed, DSP state cleared, and the
	// transport position preserved in seconds.
	msgSampleRate struct {
		SampleRate int
	}

	// msgMonitor connects or disconnects the input-monitor ring that the
	// recorder fills while recording.
	msgMonitor struct {
		Ring *Ring
	}
)

// PostSampleRate tells the player the output device reopened at the given
// rate. Called by the device manager after a hot-swap; applied at the next
// callback boundary.
func PostSampleRate(b *Broker, sampleRate int) {
	TrySend(b.ToPlayer, any(msgSampleRate{SampleRate: sampleRate}))
}

// Status is the lock-free state the player publishes every callback and the
// rest of the process reads at will: transport position, play state and the
// current engine rate.
type Status struct {
	positionFrames atomic.Int64
	sampleRate     atomic.Int64
	playing        atomic.Bool
}

func NewStatus(sampleRate int) *Status {
	s := &Status{}
	s.sampleRate.Store(int64(sampleRate))
	return s
}

// PositionFrames returns the playhead position in frames.
func (s *Status) PositionFrames() int64 { return s.positionFrames.Load() }

// PositionSeconds returns the playhead position in seconds.
func (s *Status) PositionSeconds() float64 {
	sr := s.SampleRate()
	if sr == 0 {
		return 0
	}
	return float64(s.positionFrames.Load()) / float64(sr)
}

// SampleRate returns the current engine sample rate.
func (s *Status) SampleRate() int { return int(s.sampleRate.Load()) }

// Playing reports whether the transport is rolling.
func (s *Status) Playing() bool { return s.playing.Load() }
