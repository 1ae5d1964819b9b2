package engine

import (
	"sort"

	haven "github.com/AivinJoy/haven-daw"
	"github.com/AivinJoy/haven-daw/asset"
)

type (
	// Command is one project mutation that knows how to revert itself.
	// Execute and Undo run with the model lock held; they mutate the
	// authoritative project tree and tell the model what changed (a cheap
	// parameter message or a structural graph republish).
	Command interface {
		Execute(m *Model) error
		Undo(m *Model) error
		Name() string
	}

	// discarder is implemented by commands that own resources (source
	// handles of deleted clips); Discard is called when history drops the
	// command so the cache can evict what nothing references anymore.
	discarder interface {
		Discard()
	}
)

// --- mixer parameters -------------------------------------------------

type SetTrackGainCmd struct {
	TrackID uint32
	Gain    float32
	old     float32
}

func (c *SetTrackGainCmd) Name() string { return "Set Track Gain" }

func (c *SetTrackGainCmd) Execute(m *Model) error {
	t := m.project.FindTrack(c.TrackID)
	if t == nil {
		return haven.Errorf(haven.ErrInvalidArgument, "no track %d", c.TrackID)
	}
	c.old = t.Gain
	c.Gain = haven.ClampGain(c.Gain)
	t.Gain = c.Gain
	m.sendParam(paramKey{c.TrackID, paramGain, 0}, msgSetTrackGain{c.TrackID, c.Gain})
	return nil
}

func (c *SetTrackGainCmd) Undo(m *Model) error {
	if t := m.project.FindTrack(c.TrackID); t != nil {
		t.Gain = c.old
		m.sendParam(paramKey{c.TrackID, paramGain, 0}, msgSetTrackGain{c.TrackID, c.old})
	}
	return nil
}

type SetTrackPanCmd struct {
	TrackID uint32
	Pan     float32
	old     float32
}

func (c *SetTrackPanCmd) Name() string { return "Set Track Pan" }

func (c *SetTrackPanCmd) Execute(m *Model) error {
	t := m.project.FindTrack(c.TrackID)
	if t == nil {
		return haven.Errorf(haven.ErrInvalidArgument, "no track %d", c.TrackID)
	}
	c.old = t.Pan
	c.Pan = haven.ClampPan(c.Pan)
	t.Pan = c.Pan
	m.sendParam(paramKey{c.TrackID, paramPan, 0}, msgSetTrackPan{c.TrackID, c.Pan})
	return nil
}

func (c *SetTrackPanCmd) Undo(m *Model) error {
	if t := m.project.FindTrack(c.TrackID); t != nil {
		t.Pan = c.old
		m.sendParam(paramKey{c.TrackID, paramPan, 0}, msgSetTrackPan{c.TrackID, c.old})
	}
	return nil
}

type ToggleMuteCmd struct {
	TrackID uint32
	muted   bool
}

func (c *ToggleMuteCmd) Name() string { return "Toggle Mute" }

func (c *ToggleMuteCmd) Execute(m *Model) error {
	t := m.project.FindTrack(c.TrackID)
	if t == nil {
		return haven.Errorf(haven.ErrInvalidArgument, "no track %d", c.TrackID)
	}
	t.Muted = !t.Muted
	c.muted = t.Muted
	m.sendParam(paramKey{c.TrackID, paramMute, 0}, msgSetTrackMute{c.TrackID, t.Muted})
	return nil
}

func (c *ToggleMuteCmd) Undo(m *Model) error {
	if t := m.project.FindTrack(c.TrackID); t != nil {
		t.Muted = !c.muted
		m.sendParam(paramKey{c.TrackID, paramMute, 0}, msgSetTrackMute{c.TrackID, t.Muted})
	}
	return nil
}

type ToggleSoloCmd struct {
	TrackID uint32
	solo    bool
}

func (c *ToggleSoloCmd) Name() string { return "Toggle Solo" }

func (c *ToggleSoloCmd) Execute(m *Model) error {
	t := m.project.FindTrack(c.TrackID)
	if t == nil {
		return haven.Errorf(haven.ErrInvalidArgument, "no track %d", c.TrackID)
	}
	t.Solo = !t.Solo
	c.solo = t.Solo
	m.sendParam(paramKey{c.TrackID, paramSolo, 0}, msgSetTrackSolo{c.TrackID, t.Solo})
	return nil
}

func (c *ToggleSoloCmd) Undo(m *Model) error {
	if t := m.project.FindTrack(c.TrackID); t != nil {
		t.Solo = !c.solo
		m.sendParam(paramKey{c.TrackID, paramSolo, 0}, msgSetTrackSolo{c.TrackID, t.Solo})
	}
	return nil
}

type SetMasterGainCmd struct {
	Gain float32
	old  float32
}

func (c *SetMasterGainCmd) Name() string { return "Set Master Gain" }

func (c *SetMasterGainCmd) Execute(m *Model) error {
	c.old = m.project.MasterGain
	c.Gain = haven.ClampGain(c.Gain)
	m.project.MasterGain = c.Gain
	m.sendParam(paramKey{0, paramMaster, 0}, msgSetMasterGain{c.Gain})
	return nil
}

func (c *SetMasterGainCmd) Undo(m *Model) error {
	m.project.MasterGain = c.old
	m.sendParam(paramKey{0, paramMaster, 0}, msgSetMasterGain{c.old})
	return nil
}

// --- DSP parameters ---------------------------------------------------

type UpdateEQBandCmd struct {
	TrackID uint32
	Band    int
	Params  haven.EQBandParams
	old     haven.EQBandParams
}

func (c *UpdateEQBandCmd) Name() string { return "Update EQ Band" }

func (c *UpdateEQBandCmd) Execute(m *Model) error {
	t := m.project.FindTrack(c.TrackID)
	if t == nil {
		return haven.Errorf(haven.ErrInvalidArgument, "no track %d", c.TrackID)
	}
	if c.Band < 0 || c.Band >= haven.NumEQBands {
		return haven.Errorf(haven.ErrInvalidArgument, "no EQ band %d", c.Band)
	}
	c.old = t.EQ[c.Band]
	c.Params.Clamp()
	t.EQ[c.Band] = c.Params
	m.sendParam(paramKey{c.TrackID, paramEQ, int8(c.Band)}, msgUpdateEQ{c.TrackID, c.Band, c.Params})
	return nil
}

func (c *UpdateEQBandCmd) Undo(m *Model) error {
	if t := m.project.FindTrack(c.TrackID); t != nil {
		t.EQ[c.Band] = c.old
		m.sendParam(paramKey{c.TrackID, paramEQ, int8(c.Band)}, msgUpdateEQ{c.TrackID, c.Band, c.old})
	}
	return nil
}

type UpdateCompressorCmd struct {
	TrackID uint32
	Params  haven.CompressorParams
	old     haven.CompressorParams
}

func (c *UpdateCompressorCmd) Name() string { return "Update Compressor" }

func (c *UpdateCompressorCmd) Execute(m *Model) error {
	t := m.project.FindTrack(c.TrackID)
	if t == nil {
		return haven.Errorf(haven.ErrInvalidArgument, "no track %d", c.TrackID)
	}
	c.old = t.Compressor
	c.Params.Clamp()
	t.Compressor = c.Params
	m.sendParam(paramKey{c.TrackID, paramComp, 0}, msgUpdateCompressor{c.TrackID, c.Params})
	return nil
}

func (c *UpdateCompressorCmd) Undo(m *Model) error {
	if t := m.project.FindTrack(c.TrackID); t != nil {
		t.Compressor = c.old
		m.sendParam(paramKey{c.TrackID, paramComp, 0}, msgUpdateCompressor{c.TrackID, c.old})
	}
	return nil
}

// --- song globals -----------------------------------------------------

type SetBPMCmd struct {
	BPM float64
	old float64
}

func (c *SetBPMCmd) Name() string { return "Set BPM" }

func (c *SetBPMCmd) Execute(m *Model) error {
	if c.BPM <= 0 {
		return haven.Errorf(haven.ErrInvalidArgument, "bpm must be positive")
	}
	c.old = m.project.BPM
	m.project.BPM = c.BPM
	return nil
}

func (c *SetBPMCmd) Undo(m *Model) error {
	m.project.BPM = c.old
	return nil
}

type SetTimeSignatureCmd struct {
	TimeSignature string
	old           string
}

func (c *SetTimeSignatureCmd) Name() string { return "Set Time Signature" }

func (c *SetTimeSignatureCmd) Execute(m *Model) error {
	c.old = m.project.TimeSignature
	m.project.TimeSignature = c.TimeSignature
	return nil
}

func (c *SetTimeSignatureCmd) Undo(m *Model) error {
	m.project.TimeSignature = c.old
	return nil
}

// --- structural: tracks -----------------------------------------------

type CreateTrackCmd struct {
	TrackName string
	track     haven.Track
	created   bool
}

func (c *CreateTrackCmd) Name() string { return "Create Track" }

// Track returns the created track; valid after the first Execute.
func (c *CreateTrackCmd) Track() haven.Track { return c.track }

func (c *CreateTrackCmd) Execute(m *Model) error {
	if !c.created {
		c.track = haven.NewTrack(m.allocTrackID(), c.TrackName)
		c.created = true
	}
	m.project.Tracks = append(m.project.Tracks, c.track.Copy())
	m.markStructural()
	return nil
}

func (c *CreateTrackCmd) Undo(m *Model) error {
	if i := m.project.TrackIndex(c.track.ID); i >= 0 {
		m.project.Tracks = append(m.project.Tracks[:i], m.project.Tracks[i+1:]...)
	}
	m.markStructural()
	return nil
}

type DeleteTrackCmd struct {
	TrackID uint32
	removed haven.Track
	index   int
	handles map[string]asset.Handle
}

func (c *DeleteTrackCmd) Name() string { return "Delete Track" }

func (c *DeleteTrackCmd) Execute(m *Model) error {
	i := m.project.TrackIndex(c.TrackID)
	if i < 0 {
		return haven.Errorf(haven.ErrInvalidArgument, "no track %d", c.TrackID)
	}
	c.index = i
	c.removed = m.project.Tracks[i].Copy()
	// the command takes ownership of the source handles so undo can restore
	// every clip without re-decoding
	c.handles = make(map[string]asset.Handle, len(c.removed.Clips))
	for _, clip := range c.removed.Clips {
		if h, ok := m.takeHandle(clip.ID); ok {
			c.handles[clip.ID] = h
		}
	}
	m.project.Tracks = append(m.project.Tracks[:i], m.project.Tracks[i+1:]...)
	m.markStructural()
	return nil
}

func (c *DeleteTrackCmd) Undo(m *Model) error {
	tracks := m.project.Tracks
	i := c.index
	if i > len(tracks) {
		i = len(tracks)
	}
	tracks = append(tracks, haven.Track{})
	copy(tracks[i+1:], tracks[i:])
	tracks[i] = c.removed.Copy()
	m.project.Tracks = tracks
	for id, h := range c.handles {
		m.putHandle(id, h)
	}
	c.handles = nil
	m.markStructural()
	return nil
}

func (c *DeleteTrackCmd) Discard() {
	for _, h := range c.handles {
		h.Release()
	}
	c.handles = nil
}

// --- structural: clips ------------------------------------------------

type AddClipCmd struct {
	TrackID uint32
	Clip    haven.Clip
	handle  asset.Handle
	held    bool
}

// NewAddClipCmd takes ownership of handle until the clip is live in the
// project.
func NewAddClipCmd(trackID uint32, clip haven.Clip, handle asset.Handle) *AddClipCmd {
	return &AddClipCmd{TrackID: trackID, Clip: clip, handle: handle, held: true}
}

func (c *AddClipCmd) Name() string { return "Add Clip" }

func (c *AddClipCmd) Execute(m *Model) error {
	i := m.project.TrackIndex(c.TrackID)
	if i < 0 {
		return haven.Errorf(haven.ErrInvalidArgument, "no track %d", c.TrackID)
	}
	insertClipSorted(&m.project.Tracks[i], c.Clip)
	m.putHandle(c.Clip.ID, c.handle)
	c.held = false
	m.markStructural()
	return nil
}

func (c *AddClipCmd) Undo(m *Model) error {
	if i := m.project.TrackIndex(c.TrackID); i >= 0 {
		removeClip(&m.project.Tracks[i], c.Clip.ID)
	}
	if h, ok := m.takeHandle(c.Clip.ID); ok {
		c.handle = h
		c.held = true
	}
	m.markStructural()
	return nil
}

func (c *AddClipCmd) Discard() {
	if c.held {
		c.handle.Release()
		c.held = false
	}
}

type DeleteClipCmd struct {
	TrackID uint32
	ClipID  string
	clip    haven.Clip
	handle  asset.Handle
	held    bool
}

func (c *DeleteClipCmd) Name() string { return "Delete Clip" }

func (c *DeleteClipCmd) Execute(m *Model) error {
	t := m.project.FindTrack(c.TrackID)
	if t == nil {
		return haven.Errorf(haven.ErrInvalidArgument, "no track %d", c.TrackID)
	}
	i := t.ClipIndex(c.ClipID)
	if i < 0 {
		return haven.Errorf(haven.ErrInvalidArgument, "no clip %s on track %d", c.ClipID, c.TrackID)
	}
	c.clip = t.Clips[i]
	t.Clips = append(t.Clips[:i], t.Clips[i+1:]...)
	if h, ok := m.takeHandle(c.ClipID); ok {
		c.handle = h
		c.held = true
	}
	m.markStructural()
	return nil
}

func (c *DeleteClipCmd) Undo(m *Model) error {
	t := m.project.FindTrack(c.TrackID)
	if t == nil {
		return haven.Errorf(haven.ErrInvalidArgument, "no track %d", c.TrackID)
	}
	insertClipSorted(t, c.clip)
	if c.held {
		m.putHandle(c.ClipID, c.handle)
		c.held = false
	}
	m.markStructural()
	return nil
}

func (c *DeleteClipCmd) Discard() {
	if c.held {
		c.handle.Release()
		c.held = false
	}
}

type MoveClipCmd struct {
	TrackID  uint32
	ClipID   string
	NewStart float64
	old      float64
}

func (c *MoveClipCmd) Name() string { return "Move Clip" }

func (c *MoveClipCmd) Execute(m *Model) error {
	t := m.project.FindTrack(c.TrackID)
	if t == nil {
		return haven.Errorf(haven.ErrInvalidArgument, "no track %d", c.TrackID)
	}
	i := t.ClipIndex(c.ClipID)
	if i < 0 {
		return haven.Errorf(haven.ErrInvalidArgument, "no clip %s on track %d", c.ClipID, c.TrackID)
	}
	if c.NewStart < 0 {
		c.NewStart = 0
	}
	c.old = t.Clips[i].StartTime
	clip := t.Clips[i]
	clip.StartTime = c.NewStart
	t.Clips = append(t.Clips[:i], t.Clips[i+1:]...)
	insertClipSorted(t, clip)
	m.markStructural()
	return nil
}

func (c *MoveClipCmd) Undo(m *Model) error {
	t := m.project.FindTrack(c.TrackID)
	if t == nil {
		return haven.Errorf(haven.ErrInvalidArgument, "no track %d", c.TrackID)
	}
	i := t.ClipIndex(c.ClipID)
	if i < 0 {
		return haven.Errorf(haven.ErrInvalidArgument, "no clip %s on track %d", c.ClipID, c.TrackID)
	}
	clip := t.Clips[i]
	clip.StartTime = c.old
	t.Clips = append(t.Clips[:i], t.Clips[i+1:]...)
	insertClipSorted(t, clip)
	m.markStructural()
	return nil
}

type SplitClipCmd struct {
	TrackID uint32
	ClipID  string
	At      float64 // timeline seconds
	orig    haven.Clip
	right   haven.Clip
	handle  asset.Handle // right half's extra reference
	held    bool
	split   bool
}

func (c *SplitClipCmd) Name() string { return "Split Clip" }

func (c *SplitClipCmd) Execute(m *Model) error {
	t := m.project.FindTrack(c.TrackID)
	if t == nil {
		return haven.Errorf(haven.ErrInvalidArgument, "no track %d", c.TrackID)
	}
	i := t.ClipIndex(c.ClipID)
	if i < 0 {
		return haven.Errorf(haven.ErrInvalidArgument, "no clip %s on track %d", c.ClipID, c.TrackID)
	}
	if !c.split {
		left, right, err := haven.SplitClip(t.Clips[i], c.At, m.status.SampleRate())
		if err != nil {
			return err
		}
		c.orig = t.Clips[i]
		c.right = right
		c.split = true
		// the right half needs its own counted reference to the source
		c.handle = m.handleFor(c.ClipID).Retain()
		c.held = true
		t.Clips[i].Duration = left.Duration
	} else {
		c.orig = t.Clips[i]
		t.Clips[i].Duration = c.right.StartTime - c.orig.StartTime
	}
	insertClipSorted(t, c.right)
	m.putHandle(c.right.ID, c.handle)
	c.held = false
	m.markStructural()
	return nil
}

func (c *SplitClipCmd) Undo(m *Model) error {
	t := m.project.FindTrack(c.TrackID)
	if t == nil {
		return haven.Errorf(haven.ErrInvalidArgument, "no track %d", c.TrackID)
	}
	removeClip(t, c.right.ID)
	if i := t.ClipIndex(c.ClipID); i >= 0 {
		t.Clips[i] = c.orig
	}
	if h, ok := m.takeHandle(c.right.ID); ok {
		c.handle = h
		c.held = true
	}
	m.markStructural()
	return nil
}

func (c *SplitClipCmd) Discard() {
	if c.held {
		c.handle.Release()
		c.held = false
	}
}

// Halves returns the two clips produced by the split; valid after Execute.
func (c *SplitClipCmd) Halves(m *Model) (left, right haven.Clip) {
	if t := m.project.FindTrack(c.TrackID); t != nil {
		if i := t.ClipIndex(c.ClipID); i >= 0 {
			left = t.Clips[i]
		}
	}
	return left, c.right
}

type MergeClipWithNextCmd struct {
	TrackID uint32
	ClipID  string
	right   haven.Clip
	handle  asset.Handle
	held    bool
}

func (c *MergeClipWithNextCmd) Name() string { return "Merge Clips" }

func (c *MergeClipWithNextCmd) Execute(m *Model) error {
	t := m.project.FindTrack(c.TrackID)
	if t == nil {
		return haven.Errorf(haven.ErrInvalidArgument, "no track %d", c.TrackID)
	}
	i := t.ClipIndex(c.ClipID)
	if i < 0 {
		return haven.Errorf(haven.ErrInvalidArgument, "no clip %s on track %d", c.ClipID, c.TrackID)
	}
	if i+1 >= len(t.Clips) {
		return haven.Errorf(haven.ErrInvalidArgument, "clip %s has no successor to merge with", c.ClipID)
	}
	left, right := t.Clips[i], t.Clips[i+1]
	if err := haven.CanMerge(left, right); err != nil {
		return err
	}
	c.right = right
	t.Clips[i] = haven.MergeClips(left, right)
	t.Clips = append(t.Clips[:i+1], t.Clips[i+2:]...)
	if h, ok := m.takeHandle(right.ID); ok {
		c.handle = h
		c.held = true
	}
	m.markStructural()
	return nil
}

func (c *MergeClipWithNextCmd) Undo(m *Model) error {
	t := m.project.FindTrack(c.TrackID)
	if t == nil {
		return haven.Errorf(haven.ErrInvalidArgument, "no track %d", c.TrackID)
	}
	if i := t.ClipIndex(c.ClipID); i >= 0 {
		t.Clips[i].Duration -= c.right.Duration
	}
	insertClipSorted(t, c.right)
	if c.held {
		m.putHandle(c.right.ID, c.handle)
		c.held = false
	}
	m.markStructural()
	return nil
}

func (c *MergeClipWithNextCmd) Discard() {
	if c.held {
		c.handle.Release()
		c.held = false
	}
}

// ImportTrackCmd creates a track holding the whole file as one clip at the
// timeline origin. Built by the model after the source has been decoded.
type ImportTrackCmd struct {
	track  haven.Track
	clip   haven.Clip
	handle asset.Handle
	held   bool
}

func (c *ImportTrackCmd) Name() string { return "Import Track" }

// Track returns the imported track with its clip; valid after Execute.
func (c *ImportTrackCmd) Track() haven.Track {
	t := c.track.Copy()
	t.Clips = []haven.Clip{c.clip}
	return t
}

func (c *ImportTrackCmd) Execute(m *Model) error {
	t := c.track.Copy()
	t.Clips = []haven.Clip{c.clip}
	m.project.Tracks = append(m.project.Tracks, t)
	m.putHandle(c.clip.ID, c.handle)
	c.held = false
	m.markStructural()
	return nil
}

func (c *ImportTrackCmd) Undo(m *Model) error {
	if i := m.project.TrackIndex(c.track.ID); i >= 0 {
		m.project.Tracks = append(m.project.Tracks[:i], m.project.Tracks[i+1:]...)
	}
	if h, ok := m.takeHandle(c.clip.ID); ok {
		c.handle = h
		c.held = true
	}
	m.markStructural()
	return nil
}

func (c *ImportTrackCmd) Discard() {
	if c.held {
		c.handle.Release()
		c.held = false
	}
}

// --- helpers ----------------------------------------------------------

// insertClipSorted keeps the track's clips ordered by start time.
func insertClipSorted(t *haven.Track, clip haven.Clip) {
	i := sort.Search(len(t.Clips), func(i int) bool {
		return t.Clips[i].StartTime > clip.StartTime
	})
	t.Clips = append(t.Clips, haven.Clip{})
	copy(t.Clips[i+1:], t.Clips[i:])
	t.Clips[i] = clip
}

func removeClip(t *haven.Track, clipID string) {
	if i := t.ClipIndex(clipID); i >= 0 {
		t.Clips = append(t.Clips[:i], t.Clips[i+1:]...)
	}
}
