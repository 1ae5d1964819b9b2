package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	haven "github.com/AivinJoy/haven-daw"
	"github.com/AivinJoy/haven-daw/asset"
	"github.com/AivinJoy/haven-daw/engine"
)

const testSR = 48000

func newTestServer(t *testing.T) *Server {
	t.Helper()
	broker := engine.NewBroker()
	status := engine.NewStatus(testSR)
	masterMeter := engine.NewMeter(testSR)
	cache := asset.NewCache(asset.DefaultRegistry())
	model := engine.NewModel(broker, status, cache, masterMeter, nil)
	return New(model, nil)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var payload map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &payload))
	}
	return resp.StatusCode, payload
}

func writeToneFile(t *testing.T, dir string) string {
	t.Helper()
	frames := testSR / 2
	buf := make(haven.AudioBuffer, frames)
	for i := range buf {
		v := 0.25 * float32(math.Sin(2*math.Pi*440*float64(i)/testSR))
		buf[i] = [2]float32{v, v}
	}
	data, err := haven.Wav(buf, testSR, false)
	require.NoError(t, err)
	path := filepath.Join(dir, "tone.wav")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestTransportEndpoints(t *testing.T) {
	s := newTestServer(t)
	code, _ := doJSON(t, s, "POST", "/api/transport/play", nil)
	assert.Equal(t, 200, code)
	code, _ = doJSON(t, s, "POST", "/api/transport/pause", nil)
	assert.Equal(t, 200, code)
	code, _ = doJSON(t, s, "POST", "/api/transport/seek", SeekRequest{Seconds: 1.5})
	assert.Equal(t, 200, code)
	code, payload := doJSON(t, s, "GET", "/api/transport/position", nil)
	assert.Equal(t, 200, code)
	assert.InDelta(t, 1.5, payload["seconds"], 1e-9)
}

func TestTrackLifecycleAndClamping(t *testing.T) {
	s := newTestServer(t)
	code, track := doJSON(t, s, "POST", "/api/tracks/", CreateTrackRequest{Name: "Bass"})
	require.Equal(t, 200, code)
	id := uint32(track["id"].(float64))
	assert.Equal(t, "Bass", track["name"])

	// out-of-range gain is clamped, not rejected
	code, _ = doJSON(t, s, "POST", "/api/mixer/gain", TrackGainRequest{TrackID: id, Gain: 9})
	require.Equal(t, 200, code)
	code, state := doJSON(t, s, "GET", "/api/project/", nil)
	require.Equal(t, 200, code)
	tracks := state["tracks"].([]any)
	require.Len(t, tracks, 1)
	assert.Equal(t, 2.0, tracks[0].(map[string]any)["gain"])

	// unknown track is a 400 invalid argument
	code, errPayload := doJSON(t, s, "POST", "/api/mixer/gain", TrackGainRequest{TrackID: 999, Gain: 1})
	assert.Equal(t, 400, code)
	assert.Equal(t, "invalid_argument", errPayload["kind"])

	code, _ = doJSON(t, s, "DELETE", fmt.Sprintf("/api/tracks/%d", id), nil)
	assert.Equal(t, 200, code)

	// undo restores the deleted track
	code, undo := doJSON(t, s, "POST", "/api/undo", nil)
	require.Equal(t, 200, code)
	assert.Equal(t, true, undo["undone"])
	_, state = doJSON(t, s, "GET", "/api/project/", nil)
	assert.Len(t, state["tracks"].([]any), 1)
}

func TestImportAndClipEndpoints(t *testing.T) {
	s := newTestServer(t)
	path := writeToneFile(t, t.TempDir())

	code, track := doJSON(t, s, "POST", "/api/tracks/import", ImportTrackRequest{Path: path})
	require.Equal(t, 200, code)
	id := uint32(track["id"].(float64))
	clips := track["clips"].([]any)
	require.Len(t, clips, 1)
	clipID := clips[0].(map[string]any)["id"].(string)

	code, halves := doJSON(t, s, "POST", "/api/clips/split", SplitClipRequest{TrackID: id, ClipID: clipID, At: 0.25})
	require.Equal(t, 200, code)
	require.NotNil(t, halves["left"])
	require.NotNil(t, halves["right"])

	code, _ = doJSON(t, s, "POST", "/api/clips/merge", ClipRequest{TrackID: id, ClipID: clipID})
	require.Equal(t, 200, code)

	// splitting outside the clip is rejected
	code, errPayload := doJSON(t, s, "POST", "/api/clips/split", SplitClipRequest{TrackID: id, ClipID: clipID, At: 99})
	assert.Equal(t, 400, code)
	assert.Equal(t, "invalid_argument", errPayload["kind"])

	// importing a missing file surfaces a decode error
	code, errPayload = doJSON(t, s, "POST", "/api/tracks/import", ImportTrackRequest{Path: "/no/such.wav"})
	assert.Equal(t, 422, code)
	assert.Equal(t, "decode_error", errPayload["kind"])
}

func TestDSPEndpoints(t *testing.T) {
	s := newTestServer(t)
	_, track := doJSON(t, s, "POST", "/api/tracks/", CreateTrackRequest{Name: "t"})
	id := uint32(track["id"].(float64))

	code, _ := doJSON(t, s, "POST", "/api/dsp/eq", EQUpdateRequest{
		TrackID: id, Band: 1, Type: haven.Peaking, Freq: 300, Q: 2, GainDB: 40, Active: true,
	})
	require.Equal(t, 200, code)
	code, _ = doJSON(t, s, "GET", fmt.Sprintf("/api/dsp/eq/%d", id), nil)
	require.Equal(t, 200, code)

	code, _ = doJSON(t, s, "POST", "/api/dsp/compressor", CompressorUpdateRequest{
		TrackID: id, Active: true, ThresholdDB: -25, Ratio: 6, AttackMS: 12, ReleaseMS: 150, MakeupDB: 3,
	})
	require.Equal(t, 200, code)
	code, comp := doJSON(t, s, "GET", fmt.Sprintf("/api/dsp/compressor/%d", id), nil)
	require.Equal(t, 200, code)
	assert.Equal(t, -25.0, comp["threshold_db"])
}

func TestMeterAndGridEndpoints(t *testing.T) {
	s := newTestServer(t)
	doJSON(t, s, "POST", "/api/tracks/", CreateTrackRequest{Name: "t"})

	req := httptest.NewRequest("GET", "/api/meters/", nil)
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	var meters []engine.MeterSnapshot
	require.NoError(t, json.Unmarshal(raw, &meters))
	require.Len(t, meters, 1)

	code, _ := doJSON(t, s, "GET", "/api/meters/master", nil)
	assert.Equal(t, 200, code)

	code, _ = doJSON(t, s, "POST", "/api/project/bpm", BPMRequest{BPM: 100})
	require.Equal(t, 200, code)
	req = httptest.NewRequest("GET", "/api/project/grid?start=0&end=4.8&resolution=1", nil)
	resp, err = s.App().Test(req, -1)
	require.NoError(t, err)
	raw, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	var lines []haven.GridLine
	require.NoError(t, json.Unmarshal(raw, &lines))
	// 100 bpm: bars every 2.4 s; only 2.4 s lies strictly inside (0, 4.8)
	require.Len(t, lines, 1)
	assert.InDelta(t, 2.4, lines[0].Time, 1e-9)
}

func TestSaveLoadExportEndpoints(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()
	tone := writeToneFile(t, dir)
	_, _ = doJSON(t, s, "POST", "/api/tracks/import", ImportTrackRequest{Path: tone})

	projectPath := filepath.Join(dir, "project.json")
	code, _ := doJSON(t, s, "POST", "/api/project/save", PathRequest{Path: projectPath})
	require.Equal(t, 200, code)

	s2 := newTestServer(t)
	code, state := doJSON(t, s2, "POST", "/api/project/load", PathRequest{Path: projectPath})
	require.Equal(t, 200, code)
	assert.Len(t, state["tracks"].([]any), 1)

	wavPath := filepath.Join(dir, "mix.wav")
	code, _ = doJSON(t, s, "POST", "/api/project/export", ExportRequest{Path: wavPath, PCM16: true})
	require.Equal(t, 200, code)
	info, err := os.Stat(wavPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(44))
}

func TestStemEndpoints(t *testing.T) {
	broker := engine.NewBroker()
	status := engine.NewStatus(testSR)
	masterMeter := engine.NewMeter(testSR)
	cache := asset.NewCache(asset.DefaultRegistry())
	model := engine.NewModel(broker, status, cache, masterMeter, nil)
	model.SetStemJobs(engine.NewStemJobs(model, engine.BandSplitSeparator{Cache: cache}))
	s := New(model, nil)

	tone := writeToneFile(t, t.TempDir())
	_, track := doJSON(t, s, "POST", "/api/tracks/import", ImportTrackRequest{Path: tone})
	id := uint32(track["id"].(float64))

	code, job := doJSON(t, s, "POST", "/api/stems/separate", SeparateStemsRequest{TrackID: id, ReplaceOriginal: true})
	require.Equal(t, 200, code)
	jobID := job["job_id"].(string)

	var state string
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		code, st := doJSON(t, s, "GET", "/api/stems/status/"+jobID, nil)
		require.Equal(t, 200, code)
		state = st["state"].(string)
		if state == engine.StemJobPending {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.Equal(t, engine.StemJobPending, state)

	code, projectState := doJSON(t, s, "POST", "/api/stems/commit", StemJobRequest{JobID: jobID})
	require.Equal(t, 200, code)
	assert.Len(t, projectState["tracks"].([]any), 4, "original replaced by four band stems")

	// committing twice is an invalid argument
	code, errPayload := doJSON(t, s, "POST", "/api/stems/commit", StemJobRequest{JobID: jobID})
	assert.Equal(t, 400, code)
	assert.Equal(t, "invalid_argument", errPayload["kind"])

	// separating a track with no clips is rejected
	_, empty := doJSON(t, s, "POST", "/api/tracks/", CreateTrackRequest{Name: "empty"})
	emptyID := uint32(empty["id"].(float64))
	code, _ = doJSON(t, s, "POST", "/api/stems/separate", SeparateStemsRequest{TrackID: emptyID})
	assert.Equal(t, 400, code)
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t)
	code, payload := doJSON(t, s, "POST", "/api/tracks/import", ImportTrackRequest{})
	assert.Equal(t, 400, code)
	assert.Equal(t, "invalid_argument", payload["kind"])

	code, _ = doJSON(t, s, "POST", "/api/project/bpm", BPMRequest{BPM: -10})
	assert.Equal(t, 400, code)
}
