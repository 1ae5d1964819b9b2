package haven

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectMarshalRoundTrip(t *testing.T) {
	p := NewProject()
	track := NewTrack(0, "Drums")
	track.Clips = []Clip{{
		ID:         "clip-1",
		SourcePath: "/tmp/kick.wav",
		StartTime:  1.5,
		Offset:     0.25,
		Duration:   2,
	}}
	p.Tracks = []Track{track}
	p.BPM = 98.5

	data, err := MarshalProject(&p)
	require.NoError(t, err)

	got, err := UnmarshalProject(data)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestProjectYAMLRoundTrip(t *testing.T) {
	p := NewProject()
	track := NewTrack(3, "Vox")
	track.Clips = []Clip{{ID: "c1", SourcePath: "/tmp/v.flac", StartTime: 0.5, Offset: 0, Duration: 3}}
	p.Tracks = []Track{track}

	data, err := MarshalProjectYAML(&p)
	require.NoError(t, err)

	got, err := UnmarshalProject(data)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestUnmarshalProjectRejectsBadVersion(t *testing.T) {
	_, err := UnmarshalProject([]byte(`{"version": 99, "bpm": 120}`))
	require.ErrorIs(t, err, ErrProject)
}

func TestUnmarshalProjectClampsRanges(t *testing.T) {
	doc := `{
		"version": 1, "bpm": 120, "master_gain": 7,
		"tracks": [{
			"id": 0, "name": "t", "gain": -3, "pan": 2,
			"eq": [
				{"type": "Peaking", "freq": 5, "q": 99, "gain_db": 40, "active": true},
				{"type": "Peaking", "freq": 200, "q": 1, "gain_db": 0, "active": false},
				{"type": "Peaking", "freq": 2000, "q": 1, "gain_db": 0, "active": false},
				{"type": "Bogus", "freq": 10000, "q": 0.7, "gain_db": 0, "active": false}
			],
			"compressor": {"active": true, "threshold_db": -90, "ratio": 50,
				"attack_ms": 0, "release_ms": 5, "makeup_db": -2},
			"clips": [{"id": "c", "source_path": "/x.wav", "start_time": 0,
				"offset": 0, "duration": 1}]
		}]
	}`
	p, err := UnmarshalProject([]byte(doc))
	require.NoError(t, err)
	tr := p.Tracks[0]
	assert.Equal(t, float32(2), p.MasterGain)
	assert.Equal(t, float32(0), tr.Gain)
	assert.Equal(t, float32(1), tr.Pan)
	assert.Equal(t, float32(20), tr.EQ[0].Freq)
	assert.Equal(t, float32(10), tr.EQ[0].Q)
	assert.Equal(t, float32(15), tr.EQ[0].GainDB)
	assert.Equal(t, Peaking, tr.EQ[3].Type)
	assert.Equal(t, float32(-60), tr.Compressor.ThresholdDB)
	assert.Equal(t, float32(20), tr.Compressor.Ratio)
	assert.Equal(t, float32(1), tr.Compressor.AttackMS)
	assert.Equal(t, float32(10), tr.Compressor.ReleaseMS)
	assert.Equal(t, float32(0), tr.Compressor.MakeupDB)
}

func TestSplitClipInvariants(t *testing.T) {
	c := Clip{ID: "c", SourcePath: "/x.wav", StartTime: 2, Offset: 0.5, Duration: 4}
	left, right, err := SplitClip(c, 3.5, 48000)
	require.NoError(t, err)

	assert.Equal(t, c.StartTime, left.StartTime)
	assert.InDelta(t, c.Duration, left.Duration+right.Duration, 1e-9)
	assert.InDelta(t, c.Offset+left.Duration, right.Offset, 1e-9)
	assert.InDelta(t, left.StartTime+left.Duration, right.StartTime, 1e-9)
	assert.NotEqual(t, left.ID, right.ID)

	require.NoError(t, CanMerge(left, right))
	merged := MergeClips(left, right)
	assert.Equal(t, c.StartTime, merged.StartTime)
	assert.Equal(t, c.Offset, merged.Offset)
	assert.InDelta(t, c.Duration, merged.Duration, 1e-9)
}

func TestSplitClipOutsideRejected(t *testing.T) {
	c := Clip{ID: "c", StartTime: 2, Duration: 4}
	for _, at := range []float64{1.9, 2.0, 6.0, 6.1} {
		_, _, err := SplitClip(c, at, 48000)
		assert.ErrorIs(t, err, ErrInvalidArgument, "split at %v", at)
	}
	// a split leaving less than one sample on a side is rejected too
	_, _, err := SplitClip(c, 2.0000001, 48000)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCanMergePreconditions(t *testing.T) {
	left := Clip{ID: "l", SourcePath: "/x.wav", StartTime: 0, Offset: 0, Duration: 2}

	gap := Clip{ID: "r", SourcePath: "/x.wav", StartTime: 2.5, Offset: 2, Duration: 1}
	assert.ErrorIs(t, CanMerge(left, gap), ErrInvalidArgument)

	otherSource := Clip{ID: "r", SourcePath: "/y.wav", StartTime: 2, Offset: 2, Duration: 1}
	assert.ErrorIs(t, CanMerge(left, otherSource), ErrInvalidArgument)

	notContiguous := Clip{ID: "r", SourcePath: "/x.wav", StartTime: 2, Offset: 2.5, Duration: 1}
	assert.ErrorIs(t, CanMerge(left, notContiguous), ErrInvalidArgument)

	adjacent := Clip{ID: "r", SourcePath: "/x.wav", StartTime: 2.0005, Offset: 2.0003, Duration: 1}
	assert.NoError(t, CanMerge(left, adjacent))
}

func TestGridLines(t *testing.T) {
	// 120 bpm: bars are 2 s, beats 0.5 s
	lines := GridLines(120, 0, 4, 4)
	require.Len(t, lines, 7) // 0.5 .. 3.5; endpoints excluded
	assert.Equal(t, 0.5, lines[0].Time)
	assert.False(t, lines[0].IsBarStart)
	var bars []float64
	for _, l := range lines {
		if l.IsBarStart {
			bars = append(bars, l.Time)
			assert.Equal(t, 2, l.BarNumber)
		}
	}
	assert.Equal(t, []float64{2}, bars)

	assert.Empty(t, GridLines(0, 0, 4, 4))
	assert.Empty(t, GridLines(120, 4, 4, 4))
}

func TestMaxEndAndAnySolo(t *testing.T) {
	p := NewProject()
	a := NewTrack(0, "a")
	a.Clips = []Clip{{ID: "1", StartTime: 1, Duration: 2}}
	b := NewTrack(1, "b")
	b.Clips = []Clip{{ID: "2", StartTime: 0, Duration: 5}}
	p.Tracks = []Track{a, b}
	assert.Equal(t, 5.0, p.MaxEnd())
	assert.False(t, p.AnySolo())
	p.Tracks[0].Solo = true
	assert.True(t, p.AnySolo())
}

func TestWavLengths(t *testing.T) {
	buf := make(AudioBuffer, 1000)
	for i := range buf {
		buf[i] = [2]float32{0.5, -0.5}
	}
	pcm, err := Wav(buf, 48000, true)
	require.NoError(t, err)
	assert.Equal(t, 44+1000*2*2, len(pcm))

	fl, err := Wav(buf, 48000, false)
	require.NoError(t, err)
	assert.Equal(t, 58+1000*2*4, len(fl))
	assert.Equal(t, "RIFF", string(fl[:4]))
}

func TestProjectCopyIsDeep(t *testing.T) {
	p := NewProject()
	tr := NewTrack(0, "t")
	tr.Clips = []Clip{{ID: "c", StartTime: 0, Duration: 1}}
	p.Tracks = []Track{tr}
	q := p.Copy()
	q.Tracks[0].Clips[0].StartTime = 9
	q.Tracks[0].Gain = 0.1
	assert.Equal(t, 0.0, p.Tracks[0].Clips[0].StartTime)
	assert.Equal(t, float32(1), p.Tracks[0].Gain)
}
