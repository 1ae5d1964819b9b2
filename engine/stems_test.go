package engine

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	haven "github.com/AivinJoy/haven-daw"
	"github.com/AivinJoy/haven-daw/asset"
)

// fakeSeparator writes two tiny stem files, or blocks until cancelled.
type fakeSeparator struct {
	block chan struct{} // when non-nil, Separate waits here
	fail  bool
}

func (f fakeSeparator) Separate(ctx context.Context, path, outDir string, progress func(string, float64)) (map[string]string, error) {
	progress("working", 10)
	if f.block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.block:
		}
	}
	if f.fail {
		return nil, errors.New("model exploded")
	}
	buf := make(haven.AudioBuffer, 4800)
	for i := range buf {
		buf[i] = [2]float32{0.1, -0.1}
	}
	data, err := haven.Wav(buf, testSR, false)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, name := range []string{"vocals", "other"} {
		p := filepath.Join(outDir, name+".wav")
		if err := os.WriteFile(p, data, 0644); err != nil {
			return nil, err
		}
		out[name] = p
	}
	progress("done", 100)
	return out, nil
}

func waitForState(t *testing.T, jobs *StemJobs, jobID, state string) StemJobStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := jobs.Status(jobID)
		require.NoError(t, err)
		if st.State == state {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	st, _ := jobs.Status(jobID)
	t.Fatalf("job %s never reached state %q, stuck at %q (%s)", jobID, state, st.State, st.Message)
	return StemJobStatus{}
}

func TestSeparateCommitReplacesOriginal(t *testing.T) {
	r := newRig(t)
	path := writeSine(t, t.TempDir(), "tone.wav", 440, 0.3, 1)
	track, err := r.model.ImportTrack(path)
	require.NoError(t, err)

	jobs := NewStemJobs(r.model, fakeSeparator{})
	r.model.SetStemJobs(jobs)

	jobID, err := r.model.SeparateStems(track.ID, true, false)
	require.NoError(t, err)
	waitForState(t, jobs, jobID, StemJobPending)

	// the arrangement is untouched while the group is pending
	require.Len(t, r.model.ProjectState().Tracks, 1)

	require.NoError(t, r.model.CommitPendingStems(jobID))
	state := r.model.ProjectState()
	require.Len(t, state.Tracks, 2, "original replaced by two stems")
	names := []string{state.Tracks[0].Name, state.Tracks[1].Name}
	assert.ElementsMatch(t, []string{"vocals", "other"}, names)

	st, err := r.model.StemJobStatus(jobID)
	require.NoError(t, err)
	assert.Equal(t, StemJobCommitted, st.State)

	// committing twice is rejected
	assert.ErrorIs(t, r.model.CommitPendingStems(jobID), haven.ErrInvalidArgument)
}

func TestSeparateCommitMutesOriginal(t *testing.T) {
	r := newRig(t)
	path := writeSine(t, t.TempDir(), "tone.wav", 440, 0.3, 1)
	track, err := r.model.ImportTrack(path)
	require.NoError(t, err)

	jobs := NewStemJobs(r.model, fakeSeparator{})
	r.model.SetStemJobs(jobs)

	jobID, err := r.model.SeparateStems(track.ID, false, true)
	require.NoError(t, err)
	waitForState(t, jobs, jobID, StemJobPending)
	require.NoError(t, r.model.CommitPendingStems(jobID))

	state := r.model.ProjectState()
	require.Len(t, state.Tracks, 3)
	assert.True(t, state.Tracks[0].Muted, "original stays, muted")
}

func TestDiscardPendingStems(t *testing.T) {
	r := newRig(t)
	path := writeSine(t, t.TempDir(), "tone.wav", 440, 0.3, 1)
	track, err := r.model.ImportTrack(path)
	require.NoError(t, err)

	jobs := NewStemJobs(r.model, fakeSeparator{})
	r.model.SetStemJobs(jobs)

	jobID, err := r.model.SeparateStems(track.ID, true, false)
	require.NoError(t, err)
	waitForState(t, jobs, jobID, StemJobPending)

	require.NoError(t, r.model.DiscardPendingStems(jobID))
	require.Len(t, r.model.ProjectState().Tracks, 1, "discard leaves the arrangement alone")
	assert.ErrorIs(t, r.model.DiscardPendingStems(jobID), haven.ErrInvalidArgument)
}

func TestCancelRunningStemJob(t *testing.T) {
	r := newRig(t)
	path := writeSine(t, t.TempDir(), "tone.wav", 440, 0.3, 1)
	track, err := r.model.ImportTrack(path)
	require.NoError(t, err)

	block := make(chan struct{})
	jobs := NewStemJobs(r.model, fakeSeparator{block: block})
	r.model.SetStemJobs(jobs)

	jobID, err := r.model.SeparateStems(track.ID, false, false)
	require.NoError(t, err)
	require.NoError(t, r.model.CancelStemJob(jobID))
	st := waitForState(t, jobs, jobID, StemJobCancelled)
	assert.Equal(t, StemJobCancelled, st.State)

	// a cancelled job can never be committed
	assert.ErrorIs(t, r.model.CommitPendingStems(jobID), haven.ErrInvalidArgument)
}

func TestSeparateFailureReported(t *testing.T) {
	r := newRig(t)
	path := writeSine(t, t.TempDir(), "tone.wav", 440, 0.3, 1)
	track, err := r.model.ImportTrack(path)
	require.NoError(t, err)

	jobs := NewStemJobs(r.model, fakeSeparator{fail: true})
	r.model.SetStemJobs(jobs)

	jobID, err := r.model.SeparateStems(track.ID, false, false)
	require.NoError(t, err)
	st := waitForState(t, jobs, jobID, StemJobFailed)
	assert.Contains(t, st.Message, "model exploded")
}

func TestSeparateRequiresClips(t *testing.T) {
	r := newRig(t)
	track, err := r.model.CreateTrack("empty")
	require.NoError(t, err)
	jobs := NewStemJobs(r.model, fakeSeparator{})
	r.model.SetStemJobs(jobs)

	_, err = r.model.SeparateStems(track.ID, false, false)
	assert.ErrorIs(t, err, haven.ErrInvalidArgument)
	_, err = r.model.SeparateStems(999, false, false)
	assert.ErrorIs(t, err, haven.ErrInvalidArgument)
}

func TestBandSplitSeparator(t *testing.T) {
	r := newRig(t)
	dir := t.TempDir()
	path := writeSine(t, dir, "tone.wav", 440, 0.3, 1)

	sep := BandSplitSeparator{Cache: r.cache}
	var stages []string
	stems, err := sep.Separate(context.Background(), path, dir, func(stage string, _ float64) {
		stages = append(stages, stage)
	})
	require.NoError(t, err)
	require.Len(t, stems, 4)
	assert.NotEmpty(t, stages)

	for name, stemPath := range stems {
		h, err := r.cache.GetOrLoad(stemPath)
		require.NoError(t, err, "stem %s must decode", name)
		src := h.Source()
		assert.Equal(t, testSR, src.SampleRate)
		assert.Equal(t, 2, src.Channels)
		h.Release()
	}

	// a 440 Hz tone should land almost entirely in the low-mid band
	lowMid, err := r.cache.GetOrLoad(stems["low_mid"])
	require.NoError(t, err)
	high, err := r.cache.GetOrLoad(stems["high"])
	require.NoError(t, err)
	assert.Greater(t, sourceRMS(lowMid.Source()), 10*sourceRMS(high.Source()))
	lowMid.Release()
	high.Release()
}

func sourceRMS(src *asset.Source) float64 {
	var sum float64
	for _, v := range src.Samples {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(src.Samples)))
}
