package engine

import (
	"context"
	"io"
	"os"

	haven "github.com/AivinJoy/haven-daw"
	"github.com/AivinJoy/haven-daw/asset"
	"github.com/AivinJoy/haven-daw/dsp"
)

// RenderOptions configure an offline render.
type RenderOptions struct {
	SampleRate  int
	PCM16       bool
	TailSeconds float64 // silence appended after the last clip; default 0.5
	BlockFrames int     // render block size; default 1024
	// Progress is called about every 100 ms of rendered audio with the
	// rendered and total durations in seconds.
	Progress func(renderedSec, totalSec float64)
}

// RenderProject runs the same per-callback loop as the realtime player in a
// tight synchronous loop from frame zero to the project end plus tail,
// writing the mix to w. The project must not change while rendering; the
// model exports through an immutable snapshot. Cancellation is cooperative,
// checked at block boundaries.
func RenderProject(ctx context.Context, project *haven.Project, resolve func(haven.Clip) *asset.Source, w io.WriteSeeker, opts RenderOptions) error {
	if opts.TailSeconds == 0 {
		opts.TailSeconds = 0.5
	}
	if opts.BlockFrames == 0 {
		opts.BlockFrames = 1024
	}
	sr := opts.SampleRate

	// fresh DSP state: the offline graph shares nothing with the live one
	g := NewGraph(project, sr, resolve,
		func(t *haven.Track) *dsp.Chain { return dsp.NewChain(sr, t.EQ, t.Compressor) },
		func(t *haven.Track) *Meter { return NewMeter(sr) },
	)

	totalFrames := g.EndFrame + int64(opts.TailSeconds*float64(sr))
	totalSec := float64(totalFrames) / float64(sr)

	ww, err := haven.NewWavWriter(w, sr, opts.PCM16)
	if err != nil {
		return err
	}
	master := make(haven.AudioBuffer, opts.BlockFrames)
	scratch := make(haven.AudioBuffer, opts.BlockFrames)
	progressStep := int64(sr / 10)
	nextProgress := progressStep

	for pos := int64(0); pos < totalFrames; {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := int64(opts.BlockFrames)
		if pos+n > totalFrames {
			n = totalFrames - pos
		}
		block := master[:n]
		g.Render(block, scratch[:n], pos, false)
		SoftClip(block)
		if err := ww.WriteAudio(block); err != nil {
			return err
		}
		pos += n
		if opts.Progress != nil && pos >= nextProgress {
			opts.Progress(float64(pos)/float64(sr), totalSec)
			nextProgress += progressStep
		}
	}
	if opts.Progress != nil {
		opts.Progress(totalSec, totalSec)
	}
	return ww.Finalize()
}

// Export renders the current arrangement to a WAV file at the engine's
// current sample rate. A cancelled or failed export removes its partial
// output file.
func (m *Model) Export(ctx context.Context, path string, pcm16 bool, progress func(renderedSec, totalSec float64)) error {
	project, resolve, release := m.snapshotForRender()
	defer release()

	f, err := os.Create(path)
	if err != nil {
		return haven.Errorf(haven.ErrDevice, "create %s: %v", path, err)
	}
	opts := RenderOptions{
		SampleRate: m.status.SampleRate(),
		PCM16:      pcm16,
		Progress:   progress,
	}
	if err := RenderProject(ctx, &project, resolve, f, opts); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// snapshotForRender returns an immutable copy of the project plus a source
// resolver whose handles stay retained until release is called.
func (m *Model) snapshotForRender() (project haven.Project, resolve func(haven.Clip) *asset.Source, release func()) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	project = m.project.Copy()
	sources := make(map[string]*asset.Source, len(m.handles))
	retained := make([]asset.Handle, 0, len(m.handles))
	for id, h := range m.handles {
		sources[id] = h.Source()
		retained = append(retained, h.Retain())
	}
	resolve = func(c haven.Clip) *asset.Source { return sources[c.ID] }
	release = func() {
		for _, h := range retained {
			h.Release()
		}
		m.cache.EvictUnreferenced()
	}
	return project, resolve, release
}
