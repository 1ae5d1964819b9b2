package haven

import (
	"encoding/json"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// ProjectFileVersion is the version tag written to and accepted from project
// documents.
const ProjectFileVersion = 1

type (
	// Project is the root container of the arrangement: an ordered sequence
	// of tracks plus the song-global parameters. The control thread owns the
	// authoritative Project; the audio thread only ever sees immutable
	// snapshots derived from it.
	Project struct {
		BPM           float64 `json:"bpm" yaml:"bpm"`
		TimeSignature string  `json:"time_signature" yaml:"time_signature"`
		MasterGain    float32 `json:"master_gain" yaml:"master_gain"`
		Tracks        []Track `json:"tracks" yaml:"tracks"`
	}

	// Track is one mixer lane: display metadata, an ordered sequence of
	// clips, the mixer parameters and a fixed DSP chain (four EQ bands, then
	// a compressor). IDs are assigned monotonically and stay stable across
	// undo.
	Track struct {
		ID          uint32                   `json:"id" yaml:"id"`
		Name        string                   `json:"name" yaml:"name"`
		Color       string                   `json:"color" yaml:"color"`
		Gain        float32                  `json:"gain" yaml:"gain"`
		Pan         float32                  `json:"pan" yaml:"pan"`
		Muted       bool                     `json:"muted" yaml:"muted"`
		Solo        bool                     `json:"solo" yaml:"solo"`
		RecordArmed bool                     `json:"record_armed,omitempty" yaml:"record_armed,omitempty"`
		Monitor     bool                     `json:"input_monitor,omitempty" yaml:"input_monitor,omitempty"`
		EQ          [NumEQBands]EQBandParams `json:"eq" yaml:"eq"`
		Compressor  CompressorParams         `json:"compressor" yaml:"compressor"`
		Clips       []Clip                   `json:"clips" yaml:"clips"`
	}

	// Clip is a windowed view onto a Source placed on the timeline. It never
	// mutates the underlying source.
	Clip struct {
		ID         string  `json:"id" yaml:"id"`
		SourcePath string  `json:"source_path" yaml:"source_path"`
		StartTime  float64 `json:"start_time" yaml:"start_time"` // timeline seconds
		Offset     float64 `json:"offset" yaml:"offset"`         // seconds into the source
		Duration   float64 `json:"duration" yaml:"duration"`     // seconds of source to play
	}

	// FilterType selects the biquad response of one EQ band.
	FilterType string

	// EQBandParams are the user-facing parameters of one EQ band.
	EQBandParams struct {
		Type   FilterType `json:"type" yaml:"type"`
		Freq   float32    `json:"freq" yaml:"freq"`
		Q      float32    `json:"q" yaml:"q"`
		GainDB float32    `json:"gain_db" yaml:"gain_db"`
		Active bool       `json:"active" yaml:"active"`
	}

	// CompressorParams are the user-facing parameters of the track
	// compressor.
	CompressorParams struct {
		Active      bool    `json:"active" yaml:"active"`
		ThresholdDB float32 `json:"threshold_db" yaml:"threshold_db"`
		Ratio       float32 `json:"ratio" yaml:"ratio"`
		AttackMS    float32 `json:"attack_ms" yaml:"attack_ms"`
		ReleaseMS   float32 `json:"release_ms" yaml:"release_ms"`
		MakeupDB    float32 `json:"makeup_db" yaml:"makeup_db"`
	}
)

const NumEQBands = 4

const (
	LowPass   FilterType = "LowPass"
	HighPass  FilterType = "HighPass"
	BandPass  FilterType = "BandPass"
	Notch     FilterType = "Notch"
	Peaking   FilterType = "Peaking"
	LowShelf  FilterType = "LowShelf"
	HighShelf FilterType = "HighShelf"
)

// DefaultBPM is used for new projects.
const DefaultBPM = 120

// NewProject returns an empty project with the defaults.
func NewProject() Project {
	return Project{
		BPM:           DefaultBPM,
		TimeSignature: "4/4",
		MasterGain:    1,
	}
}

// DefaultEQ returns the four-band chain new tracks start with: a high-pass
// rumble filter engaged at 75 Hz and three disengaged bands covering low-mid,
// high-mid and the top shelf.
func DefaultEQ() [NumEQBands]EQBandParams {
	return [NumEQBands]EQBandParams{
		{Type: HighPass, Freq: 75, Q: 0.707, Active: true},
		{Type: Peaking, Freq: 200, Q: 1},
		{Type: Peaking, Freq: 2000, Q: 1},
		{Type: HighShelf, Freq: 10000, Q: 0.707},
	}
}

// DefaultCompressor returns the compressor settings new tracks start with.
func DefaultCompressor() CompressorParams {
	return CompressorParams{
		Active:      false,
		ThresholdDB: -20,
		Ratio:       4,
		AttackMS:    5,
		ReleaseMS:   50,
		MakeupDB:    0,
	}
}

// NewTrack returns a track with default mixer parameters and no clips.
func NewTrack(id uint32, name string) Track {
	return Track{
		ID:         id,
		Name:       name,
		Color:      "#7f7f7f",
		Gain:       1,
		Pan:        0,
		EQ:         DefaultEQ(),
		Compressor: DefaultCompressor(),
	}
}

// Copy makes a deep copy of a Track.
func (t *Track) Copy() Track {
	clips := make([]Clip, len(t.Clips))
	copy(clips, t.Clips)
	ret := *t
	ret.Clips = clips
	return ret
}

// Copy makes a deep copy of a Project.
func (p *Project) Copy() Project {
	tracks := make([]Track, len(p.Tracks))
	for i := range p.Tracks {
		tracks[i] = p.Tracks[i].Copy()
	}
	ret := *p
	ret.Tracks = tracks
	return ret
}

// TrackIndex returns the index of the track with the given ID, or -1.
func (p *Project) TrackIndex(id uint32) int {
	for i := range p.Tracks {
		if p.Tracks[i].ID == id {
			return i
		}
	}
	return -1
}

// FindTrack returns the track with the given ID, or nil.
func (p *Project) FindTrack(id uint32) *Track {
	if i := p.TrackIndex(id); i >= 0 {
		return &p.Tracks[i]
	}
	return nil
}

// ClipIndex returns the index of the clip with the given ID, or -1.
func (t *Track) ClipIndex(id string) int {
	for i := range t.Clips {
		if t.Clips[i].ID == id {
			return i
		}
	}
	return -1
}

// End returns the timeline end of the clip in seconds.
func (c *Clip) End() float64 { return c.StartTime + c.Duration }

// MaxEnd returns the timeline end of the project: the largest clip end over
// all tracks, in seconds. An empty project ends at 0.
func (p *Project) MaxEnd() (end float64) {
	for i := range p.Tracks {
		for j := range p.Tracks[i].Clips {
			end = math.Max(end, p.Tracks[i].Clips[j].End())
		}
	}
	return end
}

// AnySolo reports whether any track in the project is soloed.
func (p *Project) AnySolo() bool {
	for i := range p.Tracks {
		if p.Tracks[i].Solo {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants of the project. Source-dependent
// clip invariants (offset+duration within the source) are checked where the
// source is known, at load and import time.
func (p *Project) Validate() error {
	if p.BPM <= 0 {
		return Errorf(ErrProject, "bpm should be > 0, got %v", p.BPM)
	}
	seen := make(map[uint32]bool, len(p.Tracks))
	for i := range p.Tracks {
		t := &p.Tracks[i]
		if seen[t.ID] {
			return Errorf(ErrProject, "duplicate track id %d", t.ID)
		}
		seen[t.ID] = true
		for j := range t.Clips {
			c := &t.Clips[j]
			if c.Duration <= 0 {
				return Errorf(ErrProject, "clip %s has non-positive duration", c.ID)
			}
			if c.Offset < 0 {
				return Errorf(ErrProject, "clip %s has negative source offset", c.ID)
			}
		}
	}
	return nil
}

// Clamp limits the parameters to the ranges the engine accepts. Out-of-range
// inputs are normalized, never rejected.
func (b *EQBandParams) Clamp() {
	b.Freq = clamp32(b.Freq, 20, 20000)
	b.Q = clamp32(b.Q, 0.1, 10)
	b.GainDB = clamp32(b.GainDB, -15, 15)
	switch b.Type {
	case LowPass, HighPass, BandPass, Notch, Peaking, LowShelf, HighShelf:
	default:
		b.Type = Peaking
	}
}

// Clamp limits the parameters to the ranges the engine accepts.
func (c *CompressorParams) Clamp() {
	c.ThresholdDB = clamp32(c.ThresholdDB, -60, 0)
	c.Ratio = clamp32(c.Ratio, 1, 20)
	c.AttackMS = clamp32(c.AttackMS, 1, 200)
	c.ReleaseMS = clamp32(c.ReleaseMS, 10, 1000)
	c.MakeupDB = clamp32(c.MakeupDB, 0, 24)
}

// ClampGain limits a track or master gain to [0, 2].
func ClampGain(g float32) float32 { return clamp32(g, 0, 2) }

// ClampPan limits a pan position to [-1, 1].
func ClampPan(p float32) float32 { return clamp32(p, -1, 1) }

func clamp32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// projectFile is the on-disk shape of a project document.
type projectFile struct {
	Version int `json:"version" yaml:"version"`
	Project `yaml:",inline"`
}

// MarshalProject serializes the project document, version tag included.
func MarshalProject(p *Project) ([]byte, error) {
	return json.MarshalIndent(projectFile{Version: ProjectFileVersion, Project: *p}, "", "  ")
}

// MarshalProjectYAML serializes the project document as YAML, the
// human-editable sibling of the JSON form.
func MarshalProjectYAML(p *Project) ([]byte, error) {
	return yaml.Marshal(projectFile{Version: ProjectFileVersion, Project: *p})
}

// UnmarshalProject parses a project document, rejecting unknown versions and
// normalizing all numeric parameters into range. Both the JSON and the YAML
// forms are accepted (JSON is a YAML subset, but the fast path matters for
// the surface).
func UnmarshalProject(data []byte) (Project, error) {
	var f projectFile
	if err := json.Unmarshal(data, &f); err != nil {
		if yerr := yaml.Unmarshal(data, &f); yerr != nil {
			return Project{}, fmt.Errorf("%w: %v", ErrProject, err)
		}
	}
	if f.Version != ProjectFileVersion {
		return Project{}, Errorf(ErrProject, "unsupported project version %d", f.Version)
	}
	p := f.Project
	p.MasterGain = ClampGain(p.MasterGain)
	for i := range p.Tracks {
		t := &p.Tracks[i]
		t.Gain = ClampGain(t.Gain)
		t.Pan = ClampPan(t.Pan)
		for b := range t.EQ {
			t.EQ[b].Clamp()
		}
		t.Compressor.Clamp()
	}
	if err := p.Validate(); err != nil {
		return Project{}, err
	}
	return p, nil
}
