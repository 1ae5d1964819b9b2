package asset

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	haven "github.com/AivinJoy/haven-daw"
)

// writeSineWav writes a stereo sine file and returns its path.
func writeSineWav(t *testing.T, dir, name string, freq float64, seconds float64, sampleRate int, pcm16 bool) string {
	t.Helper()
	frames := int(seconds * float64(sampleRate))
	buf := make(haven.AudioBuffer, frames)
	for i := range buf {
		v := 0.5 * float32(math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		buf[i] = [2]float32{v, v}
	}
	data, err := haven.Wav(buf, sampleRate, pcm16)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestGetOrLoadDecodesWav(t *testing.T) {
	dir := t.TempDir()
	for _, tc := range []struct {
		name  string
		pcm16 bool
	}{
		{"float32.wav", false},
		{"pcm16.wav", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := writeSineWav(t, dir, tc.name, 440, 1, 44100, tc.pcm16)
			cache := NewCache(DefaultRegistry())
			h, err := cache.GetOrLoad(path)
			require.NoError(t, err)
			defer h.Release()

			src := h.Source()
			assert.Equal(t, 44100, src.SampleRate)
			assert.Equal(t, 2, src.Channels)
			assert.Equal(t, 44100, src.Frames())
			assert.InDelta(t, 1.0, src.Duration(), 1e-9)
			// frame 25 sits at the first crest of a 440 Hz sine at 44.1 kHz
			assert.InDelta(t, 0.5, src.Samples[50], 0.01)
		})
	}
}

func TestCacheSharesOneSourcePerPath(t *testing.T) {
	dir := t.TempDir()
	path := writeSineWav(t, dir, "a.wav", 440, 0.2, 48000, false)
	cache := NewCache(DefaultRegistry())

	var wg sync.WaitGroup
	handles := make([]Handle, 8)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := cache.GetOrLoad(path)
			if err == nil {
				handles[i] = h
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, cache.Len())
	first := handles[0].Source()
	require.NotNil(t, first)
	for _, h := range handles[1:] {
		assert.Same(t, first, h.Source())
	}
	for _, h := range handles {
		h.Release()
	}
	cache.EvictUnreferenced()
	assert.Equal(t, 0, cache.Len())
}

func TestEvictKeepsReferencedSources(t *testing.T) {
	dir := t.TempDir()
	path := writeSineWav(t, dir, "a.wav", 220, 0.1, 48000, false)
	cache := NewCache(DefaultRegistry())

	h, err := cache.GetOrLoad(path)
	require.NoError(t, err)
	extra := h.Retain()

	h.Release()
	cache.EvictUnreferenced()
	assert.Equal(t, 1, cache.Len(), "retained handle must keep the source")

	extra.Release()
	cache.EvictUnreferenced()
	assert.Equal(t, 0, cache.Len())
}

func TestGetOrLoadUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("not audio"), 0644))
	cache := NewCache(DefaultRegistry())
	_, err := cache.GetOrLoad(path)
	assert.ErrorIs(t, err, haven.ErrDecode)
}

func TestGetOrLoadCorruptWav(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFFxxxxJUNK"), 0644))
	cache := NewCache(DefaultRegistry())
	_, err := cache.GetOrLoad(path)
	assert.ErrorIs(t, err, haven.ErrDecode)
}

func TestWaveformSummary(t *testing.T) {
	dir := t.TempDir()
	path := writeSineWav(t, dir, "a.wav", 440, 2, 48000, false)
	cache := NewCache(DefaultRegistry())
	h, err := cache.GetOrLoad(path)
	require.NoError(t, err)
	defer h.Release()

	wf := h.Source().Summary
	assert.Equal(t, WaveformBinsPerSec, wf.BinsPerSec)
	assert.Equal(t, 2*WaveformBinsPerSec, len(wf.Mins))
	assert.Equal(t, len(wf.Mins), len(wf.Maxs))
	// every bin of a steady 440 Hz sine spans several periods
	for i := range wf.Mins {
		assert.Less(t, wf.Mins[i], float32(-0.45))
		assert.Greater(t, wf.Maxs[i], float32(0.45))
	}
}

func TestFrameAtDownmix(t *testing.T) {
	src := &Source{
		SampleRate: 48000,
		Channels:   4,
		Samples:    []float32{0.2, 0.4, 0.6, 0.8},
	}
	l, r := src.FrameAt(0)
	assert.InDelta(t, 0.4, l, 1e-6) // (0.2 + 0.6) / 2
	assert.InDelta(t, 0.6, r, 1e-6) // (0.4 + 0.8) / 2

	mono := &Source{SampleRate: 48000, Channels: 1, Samples: []float32{0.3}}
	l, r = mono.FrameAt(0)
	assert.Equal(t, float32(0.3), l)
	assert.Equal(t, l, r)
}
