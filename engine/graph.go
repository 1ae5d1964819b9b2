package engine

import (
	"math"

	haven "github.com/AivinJoy/haven-daw"
	"github.com/AivinJoy/haven-daw/asset"
	"github.com/AivinJoy/haven-daw/dsp"
)

type (
	// Graph is one immutable snapshot of the arrangement, built on the
	// control thread and handed to the audio thread by pointer swap. Track
	// topology never changes inside a snapshot; the chains and meters it
	// points to are long-lived per-track state owned by the audio thread and
	// carried over from snapshot to snapshot so filter memory and meter
	// ballistics survive structural edits. Cheap parameter fields are
	// mutated by the audio thread itself when it drains the message queue.
	Graph struct {
		SampleRate int
		MasterGain float32
		Tracks     []*RenderTrack
		EndFrame   int64

		byID map[uint32]*RenderTrack
	}

	// RenderTrack is one track's renderable state inside a graph.
	RenderTrack struct {
		ID    uint32
		Gain  float32
		Pan   float32
		Muted bool
		Solo  bool
		Clips []RenderClip
		Chain *dsp.Chain
		Meter *Meter
	}

	// RenderClip is a clip bound to its decoded source, with the timeline
	// window precomputed in engine frames. A clip whose source failed to
	// decode has a nil Source and renders silence.
	RenderClip struct {
		Source     *asset.Source
		StartSec   float64
		OffsetSec  float64
		DurSec     float64
		startFrame int64
		endFrame   int64
	}
)

// NewGraph builds a snapshot of the project. resolve maps a clip's source
// path to its decoded source (nil for sources that failed to load); chain
// and meter supply per-track persistent state, called once per track and
// may return fresh instances (as the offline renderer does).
func NewGraph(project *haven.Project, sampleRate int,
	resolve func(clip haven.Clip) *asset.Source,
	chain func(t *haven.Track) *dsp.Chain,
	meter func(t *haven.Track) *Meter,
) *Graph {
	g := &Graph{
		SampleRate: sampleRate,
		MasterGain: project.MasterGain,
		byID:       make(map[uint32]*RenderTrack, len(project.Tracks)),
	}
	for i := range project.Tracks {
		t := &project.Tracks[i]
		rt := &RenderTrack{
			ID:    t.ID,
			Gain:  t.Gain,
			Pan:   t.Pan,
			Muted: t.Muted,
			Solo:  t.Solo,
			Chain: chain(t),
			Meter: meter(t),
			Clips: make([]RenderClip, 0, len(t.Clips)),
		}
		for j := range t.Clips {
			c := &t.Clips[j]
			rc := RenderClip{
				Source:    resolve(*c),
				StartSec:  c.StartTime,
				OffsetSec: c.Offset,
				DurSec:    c.Duration,
			}
			rc.bindRate(sampleRate)
			rt.Clips = append(rt.Clips, rc)
			if rc.endFrame > g.EndFrame {
				g.EndFrame = rc.endFrame
			}
		}
		g.Tracks = append(g.Tracks, rt)
		g.byID[t.ID] = rt
	}
	return g
}

func (c *RenderClip) bindRate(sampleRate int) {
	c.startFrame = int64(math.Round(c.StartSec * float64(sampleRate)))
	c.endFrame = c.startFrame + int64(math.Round(c.DurSec*float64(sampleRate)))
}

// rebindRate converts the graph to a new engine rate after a device
// hot-swap: clip windows are recomputed from seconds and all DSP and meter
// state is reinitialized. Called on the audio thread at a callback boundary.
func (g *Graph) rebindRate(sampleRate int) {
	g.SampleRate = sampleRate
	g.EndFrame = 0
	for _, t := range g.Tracks {
		for i := range t.Clips {
			t.Clips[i].bindRate(sampleRate)
			if t.Clips[i].endFrame > g.EndFrame {
				g.EndFrame = t.Clips[i].endFrame
			}
		}
		t.Chain.SetSampleRate(sampleRate)
		t.Meter.SetSampleRate(sampleRate)
	}
}

// anySolo reports whether any track is soloed, computed once per callback.
func (g *Graph) anySolo() bool {
	for _, t := range g.Tracks {
		if t.Solo {
			return true
		}
	}
	return false
}

// RenderInto adds the clip's frames for the window [pos, pos+len(buf)) into
// the accumulator. Timeline frames map to source frames through the clip
// offset; when the source rate differs from the engine rate the two
// surrounding source frames are linearly interpolated.
func (c *RenderClip) RenderInto(buf haven.AudioBuffer, pos int64, sampleRate int) {
	if c.Source == nil {
		return
	}
	from := max64(pos, c.startFrame)
	to := min64(pos+int64(len(buf)), c.endFrame)
	if from >= to {
		return
	}
	src := c.Source
	srcFrames := src.Frames()
	ratio := float64(src.SampleRate) / float64(sampleRate)
	offsetFrames := c.OffsetSec * float64(src.SampleRate)
	for t := from; t < to; t++ {
		srcPos := offsetFrames + float64(t-c.startFrame)*ratio
		i0 := int(srcPos)
		if i0 >= srcFrames {
			break
		}
		l0, r0 := src.FrameAt(i0)
		l, r := l0, r0
		if frac := float32(srcPos - float64(i0)); frac > 0 && i0+1 < srcFrames {
			l1, r1 := src.FrameAt(i0 + 1)
			l = l0 + (l1-l0)*frac
			r = r0 + (r1-r0)*frac
		}
		buf[t-pos][0] += l
		buf[t-pos][1] += r
	}
}

// overlaps reports whether the clip intersects the window [pos, pos+n).
func (c *RenderClip) overlaps(pos int64, n int) bool {
	return c.startFrame < pos+int64(n) && c.endFrame > pos
}

// Render produces one block of the mix at position pos into master, using
// scratch as the per-track bus. Both buffers must have equal length. When
// withMeters is false (offline rendering) the meter slots are left alone.
// The per-track order is: clips summed into the bus, DSP chain, meter,
// solo/mute gate, sum into master. After all tracks the master gain is
// applied; the monitor bus and SoftClip are left to the caller.
func (g *Graph) Render(master, scratch haven.AudioBuffer, pos int64, withMeters bool) {
	master.Clear()
	solo := g.anySolo()
	for _, t := range g.Tracks {
		scratch.Clear()
		active := false
		for i := range t.Clips {
			if t.Clips[i].overlaps(pos, len(scratch)) {
				t.Clips[i].RenderInto(scratch, pos, g.SampleRate)
				active = true
			}
		}
		if active || withMeters {
			t.Chain.Process(scratch, t.Gain, t.Pan)
		}
		if withMeters {
			t.Meter.ProcessBlock(scratch)
		}
		if t.Muted || (solo && !t.Solo) {
			continue
		}
		master.Add(scratch)
	}
	for i := range master {
		master[i][0] *= g.MasterGain
		master[i][1] *= g.MasterGain
	}
}

// SoftClip limits the buffer smoothly to ±1 with tanh, flushing tiny
// amplitudes straight to zero.
func SoftClip(buf haven.AudioBuffer) {
	for i := range buf {
		for chn := 0; chn < 2; chn++ {
			v := buf[i][chn]
			if v < 1e-10 && v > -1e-10 {
				buf[i][chn] = 0
				continue
			}
			buf[i][chn] = float32(math.Tanh(float64(v)))
		}
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
