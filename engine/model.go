package engine

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	haven "github.com/AivinJoy/haven-daw"
	"github.com/AivinJoy/haven-daw/asset"
	"github.com/AivinJoy/haven-daw/dsp"
)

// maxUndo bounds the command history; the oldest entries are discarded, and
// with them the source references they kept alive.
const maxUndo = 256

// graphSendRetry is roughly one device callback: how long a structural send
// waits before retrying a full player queue once.
const graphSendRetry = 12 * time.Millisecond

type (
	// Model owns the authoritative project tree, the undo history and the
	// per-track DSP/meter state shared with the player. Every mutation goes
	// through Apply as a Command, which serializes concurrent producers (UI,
	// planner, recorder finalization) on one mutex; none of them ever
	// contend with the audio path.
	Model struct {
		mtx         sync.Mutex
		broker      *Broker
		status      *Status
		cache       *asset.Cache
		masterMeter *Meter
		log         *slog.Logger

		project     haven.Project
		handles     map[string]asset.Handle // clip ID -> source reference
		chains      map[uint32]*dsp.Chain   // track ID -> DSP state
		meters      map[uint32]*Meter       // track ID -> meter slots
		nextTrackID uint32

		undoStack []Command
		redoStack []Command
		dirty     bool // a structural change happened inside Apply

		pending map[paramKey]any // coalesced parameter messages

		recorder *Recorder
		stems    *StemJobs
		devices  DeviceProvider
		warnings []string
	}

	// DeviceProvider enumerates audio endpoints for the command surface.
	DeviceProvider interface {
		OutputDevices() []haven.DeviceInfo
		InputDevices() []haven.DeviceInfo
	}

	paramKey struct {
		track uint32
		kind  uint8
		band  int8
	}

	// TrackAnalysis is the per-track summary the natural-language planner
	// validates its candidate commands against.
	TrackAnalysis struct {
		TrackID  uint32  `json:"track_id"`
		Name     string  `json:"name"`
		Clips    int     `json:"clips"`
		Duration float64 `json:"duration"`
		Gain     float32 `json:"gain"`
		Pan      float32 `json:"pan"`
		Muted    bool    `json:"muted"`
		Solo     bool    `json:"solo"`
	}
)

const (
	paramGain uint8 = iota
	paramPan
	paramMute
	paramSolo
	paramMaster
	paramEQ
	paramComp
)

func NewModel(broker *Broker, status *Status, cache *asset.Cache, masterMeter *Meter, log *slog.Logger) *Model {
	if log == nil {
		log = slog.Default()
	}
	return &Model{
		broker:      broker,
		status:      status,
		cache:       cache,
		masterMeter: masterMeter,
		log:         log,
		project:     haven.NewProject(),
		handles:     make(map[string]asset.Handle),
		chains:      make(map[uint32]*dsp.Chain),
		meters:      make(map[uint32]*Meter),
		pending:     make(map[paramKey]any),
	}
}

// SetRecorder attaches the recorder that StartRecording and friends drive.
func (m *Model) SetRecorder(r *Recorder) { m.recorder = r }

// SetDeviceProvider attaches the device manager used by the device queries.
func (m *Model) SetDeviceProvider(p DeviceProvider) { m.devices = p }

// SetStemJobs attaches the stem-separation job manager.
func (m *Model) SetStemJobs(s *StemJobs) { m.stems = s }

// --- command application and history ----------------------------------

// Apply executes cmd, pushes it onto the undo history and publishes
// whatever changed: one graph snapshot for structural edits, coalesced
// parameter messages for cheap ones.
func (m *Model) Apply(cmd Command) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.apply(cmd)
}

func (m *Model) apply(cmd Command) error {
	m.drainRetired()
	m.dirty = false
	if err := cmd.Execute(m); err != nil {
		return err
	}
	if m.dirty {
		if err := m.publishGraph(); err != nil {
			return err
		}
	}
	m.flushParams()
	if len(m.undoStack) >= maxUndo {
		discard(m.undoStack[0])
		m.undoStack = m.undoStack[1:]
	}
	m.undoStack = append(m.undoStack, cmd)
	for _, c := range m.redoStack {
		discard(c)
	}
	m.redoStack = m.redoStack[:0]
	m.cache.EvictUnreferenced()
	return nil
}

// Undo reverts the newest applied command. Undo never fails: it restores
// previously valid state.
func (m *Model) Undo() bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if len(m.undoStack) == 0 {
		return false
	}
	m.drainRetired()
	cmd := m.undoStack[len(m.undoStack)-1]
	m.undoStack = m.undoStack[:len(m.undoStack)-1]
	m.dirty = false
	if err := cmd.Undo(m); err != nil {
		m.log.Error("undo failed", "command", cmd.Name(), "error", err)
	}
	if m.dirty {
		if err := m.publishGraph(); err != nil {
			m.log.Error("undo publish failed", "error", err)
		}
	}
	m.flushParams()
	m.redoStack = append(m.redoStack, cmd)
	m.cache.EvictUnreferenced()
	return true
}

// Redo re-applies the newest undone command.
func (m *Model) Redo() bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if len(m.redoStack) == 0 {
		return false
	}
	m.drainRetired()
	cmd := m.redoStack[len(m.redoStack)-1]
	m.redoStack = m.redoStack[:len(m.redoStack)-1]
	m.dirty = false
	if err := cmd.Execute(m); err != nil {
		m.log.Error("redo failed", "command", cmd.Name(), "error", err)
	}
	if m.dirty {
		if err := m.publishGraph(); err != nil {
			m.log.Error("redo publish failed", "error", err)
		}
	}
	m.flushParams()
	m.undoStack = append(m.undoStack, cmd)
	m.cache.EvictUnreferenced()
	return true
}

func (m *Model) CanUndo() bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return len(m.undoStack) > 0
}

func (m *Model) CanRedo() bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return len(m.redoStack) > 0
}

func discard(c Command) {
	if d, ok := c.(discarder); ok {
		d.Discard()
	}
}

// --- publication ------------------------------------------------------

func (m *Model) markStructural() { m.dirty = true }

// sendParam enqueues a cheap parameter message. When the player queue is
// full the message parks in the coalescing table keyed by its target, so a
// dragged fader collapses to its latest value instead of flooding the
// queue.
func (m *Model) sendParam(key paramKey, msg any) {
	m.flushParams()
	if !TrySend(m.broker.ToPlayer, msg) {
		m.pending[key] = msg
	}
}

func (m *Model) flushParams() {
	for key, msg := range m.pending {
		if !TrySend(m.broker.ToPlayer, msg) {
			return
		}
		delete(m.pending, key)
	}
}

// publishGraph builds a fresh snapshot of the project and swaps it into the
// player. Structural publications must succeed: a full queue is retried
// after about one callback, then promoted to a hard error.
func (m *Model) publishGraph() error {
	g := m.buildGraph()
	if !TrySend(m.broker.ToPlayer, any(msgGraph{Graph: g})) {
		time.Sleep(graphSendRetry)
		if !TrySend(m.broker.ToPlayer, any(msgGraph{Graph: g})) {
			return haven.Errorf(haven.ErrResourceExhausted, "player command queue full")
		}
	}
	return nil
}

func (m *Model) buildGraph() *Graph {
	sr := m.status.SampleRate()
	return NewGraph(&m.project, sr,
		func(clip haven.Clip) *asset.Source {
			return m.handles[clip.ID].Source()
		},
		func(t *haven.Track) *dsp.Chain {
			ch, ok := m.chains[t.ID]
			if !ok {
				ch = dsp.NewChain(sr, t.EQ, t.Compressor)
				m.chains[t.ID] = ch
			}
			return ch
		},
		func(t *haven.Track) *Meter {
			mt, ok := m.meters[t.ID]
			if !ok {
				mt = NewMeter(sr)
				m.meters[t.ID] = mt
			}
			return mt
		},
	)
}

// drainRetired releases graph snapshots the player has stopped using.
func (m *Model) drainRetired() {
	for {
		select {
		case <-m.broker.ToModel:
			// dropping the message releases the graph to the collector on
			// this thread
		default:
			return
		}
	}
}

// --- handle bookkeeping (invariant: clip in project <=> handle here) ---

func (m *Model) putHandle(clipID string, h asset.Handle) { m.handles[clipID] = h }

func (m *Model) takeHandle(clipID string) (asset.Handle, bool) {
	h, ok := m.handles[clipID]
	if ok {
		delete(m.handles, clipID)
	}
	return h, ok
}

func (m *Model) handleFor(clipID string) asset.Handle { return m.handles[clipID] }

func (m *Model) allocTrackID() uint32 {
	id := m.nextTrackID
	m.nextTrackID++
	return id
}

// --- transport --------------------------------------------------------

func (m *Model) Play()  { m.sendTransport(msgPlay{}) }
func (m *Model) Pause() { m.sendTransport(msgPause{}) }

// sendTransport enqueues a transport message, waiting out a momentarily full
// queue rather than dropping the gesture.
func (m *Model) sendTransport(msg any) {
	if !TrySend(m.broker.ToPlayer, msg) {
		time.Sleep(graphSendRetry)
		TrySend(m.broker.ToPlayer, msg)
	}
}

func (m *Model) Seek(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	frame := int64(seconds * float64(m.status.SampleRate()))
	m.sendTransport(msgSeek{Frame: frame})
	// make the new position visible to get_position immediately, without
	// waiting for the next callback
	m.status.positionFrames.Store(frame)
}

func (m *Model) Rewind() { m.Seek(0) }

func (m *Model) PositionSeconds() float64 { return m.status.PositionSeconds() }
func (m *Model) IsPlaying() bool          { return m.status.Playing() }

// --- mixer operations -------------------------------------------------

func (m *Model) SetTrackGain(trackID uint32, gain float32) error {
	return m.Apply(&SetTrackGainCmd{TrackID: trackID, Gain: gain})
}

func (m *Model) SetTrackPan(trackID uint32, pan float32) error {
	return m.Apply(&SetTrackPanCmd{TrackID: trackID, Pan: pan})
}

func (m *Model) ToggleMute(trackID uint32) error {
	return m.Apply(&ToggleMuteCmd{TrackID: trackID})
}

func (m *Model) ToggleSolo(trackID uint32) error {
	return m.Apply(&ToggleSoloCmd{TrackID: trackID})
}

func (m *Model) SetMasterGain(gain float32) error {
	return m.Apply(&SetMasterGainCmd{Gain: gain})
}

func (m *Model) SetBPM(bpm float64) error {
	return m.Apply(&SetBPMCmd{BPM: bpm})
}

func (m *Model) SetTimeSignature(ts string) error {
	return m.Apply(&SetTimeSignatureCmd{TimeSignature: ts})
}

// --- arrangement operations -------------------------------------------

func (m *Model) CreateTrack(name string) (haven.Track, error) {
	cmd := &CreateTrackCmd{TrackName: name}
	if err := m.Apply(cmd); err != nil {
		return haven.Track{}, err
	}
	return cmd.Track(), nil
}

func (m *Model) DeleteTrack(trackID uint32) error {
	return m.Apply(&DeleteTrackCmd{TrackID: trackID})
}

// ImportTrack decodes the file (synchronously, on this thread) and adds a
// new track holding it as a single clip at the timeline origin.
func (m *Model) ImportTrack(path string) (haven.Track, error) {
	h, err := m.cache.GetOrLoad(path)
	if err != nil {
		return haven.Track{}, err
	}
	src := h.Source()
	m.mtx.Lock()
	defer m.mtx.Unlock()
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	cmd := &ImportTrackCmd{
		track: haven.NewTrack(m.allocTrackID(), name),
		clip: haven.Clip{
			ID:         uuid.NewString(),
			SourcePath: src.Path,
			StartTime:  0,
			Offset:     0,
			Duration:   src.Duration(),
		},
		handle: h,
		held:   true,
	}
	if err := m.apply(cmd); err != nil {
		h.Release()
		return haven.Track{}, err
	}
	return cmd.Track(), nil
}

// AddClip decodes the file if needed and places it whole on the given track.
func (m *Model) AddClip(trackID uint32, path string, startSec float64) (haven.Clip, error) {
	h, err := m.cache.GetOrLoad(path)
	if err != nil {
		return haven.Clip{}, err
	}
	src := h.Source()
	if startSec < 0 {
		startSec = 0
	}
	clip := haven.Clip{
		ID:         uuid.NewString(),
		SourcePath: src.Path,
		StartTime:  startSec,
		Offset:     0,
		Duration:   src.Duration(),
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	cmd := NewAddClipCmd(trackID, clip, h)
	if err := m.apply(cmd); err != nil {
		h.Release()
		return haven.Clip{}, err
	}
	return clip, nil
}

func (m *Model) MoveClip(trackID uint32, clipID string, newStart float64) error {
	return m.Apply(&MoveClipCmd{TrackID: trackID, ClipID: clipID, NewStart: newStart})
}

func (m *Model) DeleteClip(trackID uint32, clipID string) error {
	return m.Apply(&DeleteClipCmd{TrackID: trackID, ClipID: clipID})
}

// SplitClip splits the clip at the given timeline position and returns both
// halves.
func (m *Model) SplitClip(trackID uint32, clipID string, atSec float64) (left, right haven.Clip, err error) {
	cmd := &SplitClipCmd{TrackID: trackID, ClipID: clipID, At: atSec}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if err := m.apply(cmd); err != nil {
		return haven.Clip{}, haven.Clip{}, err
	}
	left, right = cmd.Halves(m)
	return left, right, nil
}

func (m *Model) MergeClipWithNext(trackID uint32, clipID string) error {
	return m.Apply(&MergeClipWithNextCmd{TrackID: trackID, ClipID: clipID})
}

// --- DSP operations ---------------------------------------------------

func (m *Model) UpdateEQ(trackID uint32, band int, params haven.EQBandParams) error {
	return m.Apply(&UpdateEQBandCmd{TrackID: trackID, Band: band, Params: params})
}

func (m *Model) UpdateCompressor(trackID uint32, params haven.CompressorParams) error {
	return m.Apply(&UpdateCompressorCmd{TrackID: trackID, Params: params})
}

func (m *Model) GetEQState(trackID uint32) ([haven.NumEQBands]haven.EQBandParams, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	t := m.project.FindTrack(trackID)
	if t == nil {
		return [haven.NumEQBands]haven.EQBandParams{}, haven.Errorf(haven.ErrInvalidArgument, "no track %d", trackID)
	}
	return t.EQ, nil
}

func (m *Model) GetCompressorState(trackID uint32) (haven.CompressorParams, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	t := m.project.FindTrack(trackID)
	if t == nil {
		return haven.CompressorParams{}, haven.Errorf(haven.ErrInvalidArgument, "no track %d", trackID)
	}
	return t.Compressor, nil
}

// --- queries ----------------------------------------------------------

// ProjectState returns a deep copy of the current project.
func (m *Model) ProjectState() haven.Project {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.project.Copy()
}

// TrackMeters returns the latest meter snapshot of every track, in track
// order.
func (m *Model) TrackMeters() []MeterSnapshot {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	out := make([]MeterSnapshot, 0, len(m.project.Tracks))
	for i := range m.project.Tracks {
		id := m.project.Tracks[i].ID
		if mt, ok := m.meters[id]; ok {
			out = append(out, mt.Snapshot(id))
		} else {
			out = append(out, MeterSnapshot{TrackID: id})
		}
	}
	return out
}

// MasterMeter returns the latest master bus snapshot.
func (m *Model) MasterMeter() MeterSnapshot {
	return m.masterMeter.Snapshot(0)
}

// GridLines returns bar/beat markers for the UI ruler.
func (m *Model) GridLines(startSec, endSec float64, resolution int) []haven.GridLine {
	m.mtx.Lock()
	bpm := m.project.BPM
	m.mtx.Unlock()
	return haven.GridLines(bpm, startSec, endSec, resolution)
}

// TrackAnalyses summarizes every track for the planner.
func (m *Model) TrackAnalyses() []TrackAnalysis {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	out := make([]TrackAnalysis, 0, len(m.project.Tracks))
	for i := range m.project.Tracks {
		t := &m.project.Tracks[i]
		var dur float64
		for j := range t.Clips {
			if end := t.Clips[j].End(); end > dur {
				dur = end
			}
		}
		out = append(out, TrackAnalysis{
			TrackID:  t.ID,
			Name:     t.Name,
			Clips:    len(t.Clips),
			Duration: dur,
			Gain:     t.Gain,
			Pan:      t.Pan,
			Muted:    t.Muted,
			Solo:     t.Solo,
		})
	}
	return out
}

// Waveform returns the min/max summary of an already loaded or loadable
// source.
func (m *Model) Waveform(path string) (asset.Waveform, error) {
	h, err := m.cache.GetOrLoad(path)
	if err != nil {
		return asset.Waveform{}, err
	}
	defer h.Release()
	return h.Source().Summary, nil
}

// Warnings returns and clears the accumulated one-time warnings (skipped
// clips, failed sources).
func (m *Model) Warnings() []string {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	w := m.warnings
	m.warnings = nil
	return w
}

// --- devices ----------------------------------------------------------

func (m *Model) OutputDevices() []haven.DeviceInfo {
	if m.devices == nil {
		return nil
	}
	return m.devices.OutputDevices()
}

func (m *Model) InputDevices() []haven.DeviceInfo {
	if m.devices == nil {
		return nil
	}
	return m.devices.InputDevices()
}

// --- persistence ------------------------------------------------------

// SaveBytes serializes the project document.
func (m *Model) SaveBytes() ([]byte, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return haven.MarshalProject(&m.project)
}

// SaveFile writes the project document to disk, as YAML when the extension
// asks for it and as JSON otherwise.
func (m *Model) SaveFile(path string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		m.mtx.Lock()
		data, err = haven.MarshalProjectYAML(&m.project)
		m.mtx.Unlock()
	default:
		data, err = m.SaveBytes()
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadBytes replaces the whole project. The undo history is discarded; clip
// sources are decoded as they are encountered, and a clip whose source
// cannot be decoded stays in the arrangement rendering silence, with a
// one-time warning recorded.
func (m *Model) LoadBytes(data []byte) error {
	project, err := haven.UnmarshalProject(data)
	if err != nil {
		return err
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.drainRetired()

	for _, c := range m.undoStack {
		discard(c)
	}
	for _, c := range m.redoStack {
		discard(c)
	}
	m.undoStack = m.undoStack[:0]
	m.redoStack = m.redoStack[:0]
	for id, h := range m.handles {
		h.Release()
		delete(m.handles, id)
	}

	m.project = project
	m.nextTrackID = 0
	for i := range project.Tracks {
		if project.Tracks[i].ID >= m.nextTrackID {
			m.nextTrackID = project.Tracks[i].ID + 1
		}
	}
	for i := range m.project.Tracks {
		t := &m.project.Tracks[i]
		for j := range t.Clips {
			clip := &t.Clips[j]
			h, err := m.cache.GetOrLoad(clip.SourcePath)
			if err != nil {
				m.warnings = append(m.warnings, "skipping clip "+clip.ID+": "+err.Error())
				m.log.Warn("clip source failed to load", "clip", clip.ID, "path", clip.SourcePath, "error", err)
				continue
			}
			if maxDur := h.Source().Duration() - clip.Offset; clip.Duration > maxDur {
				clip.Duration = maxDur
			}
			m.putHandle(clip.ID, h)
		}
	}
	if err := m.publishGraph(); err != nil {
		return err
	}
	m.cache.EvictUnreferenced()
	return nil
}

// LoadFile loads a project document from disk.
func (m *Model) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return haven.Errorf(haven.ErrProject, "read %s: %v", path, err)
	}
	return m.LoadBytes(data)
}

// --- recording --------------------------------------------------------

func (m *Model) StartRecording(path string) error {
	if m.recorder == nil {
		return haven.Errorf(haven.ErrDevice, "no capture device configured")
	}
	return m.recorder.Start(path, m.PositionSeconds())
}

func (m *Model) StopRecording() error {
	if m.recorder == nil {
		return haven.Errorf(haven.ErrDevice, "no capture device configured")
	}
	return m.recorder.Stop()
}

func (m *Model) RecordingStatus() RecordingStatus {
	if m.recorder == nil {
		return RecordingStatus{}
	}
	return m.recorder.Status()
}

func (m *Model) ToggleMonitor() bool {
	if m.recorder == nil {
		return false
	}
	return m.recorder.ToggleMonitor()
}

// --- stem separation --------------------------------------------------

func (m *Model) SeparateStems(trackID uint32, replaceOriginal, muteOriginal bool) (string, error) {
	if m.stems == nil {
		return "", haven.Errorf(haven.ErrInvalidArgument, "no stem separator configured")
	}
	return m.stems.Separate(trackID, replaceOriginal, muteOriginal)
}

func (m *Model) CancelStemJob(jobID string) error {
	if m.stems == nil {
		return haven.Errorf(haven.ErrInvalidArgument, "no stem separator configured")
	}
	return m.stems.Cancel(jobID)
}

func (m *Model) CommitPendingStems(jobID string) error {
	if m.stems == nil {
		return haven.Errorf(haven.ErrInvalidArgument, "no stem separator configured")
	}
	return m.stems.Commit(jobID)
}

func (m *Model) DiscardPendingStems(jobID string) error {
	if m.stems == nil {
		return haven.Errorf(haven.ErrInvalidArgument, "no stem separator configured")
	}
	return m.stems.Discard(jobID)
}

func (m *Model) StemJobStatus(jobID string) (StemJobStatus, error) {
	if m.stems == nil {
		return StemJobStatus{}, haven.Errorf(haven.ErrInvalidArgument, "no stem separator configured")
	}
	return m.stems.Status(jobID)
}

// recordingFinished is called by the recorder once the WAV is finalized: it
// places the take on the first record-armed track, or a fresh track when
// none is armed.
func (m *Model) recordingFinished(path string, startSec float64) {
	m.mtx.Lock()
	var armed *haven.Track
	for i := range m.project.Tracks {
		if m.project.Tracks[i].RecordArmed {
			armed = &m.project.Tracks[i]
			break
		}
	}
	var trackID uint32
	if armed != nil {
		trackID = armed.ID
	}
	m.mtx.Unlock()

	if armed == nil {
		t, err := m.CreateTrack("Recording")
		if err != nil {
			m.log.Error("could not create track for recording", "error", err)
			return
		}
		trackID = t.ID
	}
	if _, err := m.AddClip(trackID, path, startSec); err != nil {
		m.log.Error("could not add recorded clip", "path", path, "error", err)
	}
}
