package server

import haven "github.com/AivinJoy/haven-daw"

// Request payloads of the command surface. Numeric ranges are validated
// loosely here and clamped by the engine; out-of-range inputs are
// normalized, never rejected.
type (
	SeekRequest struct {
		Seconds float64 `json:"seconds"`
	}

	TrackGainRequest struct {
		TrackID uint32  `json:"track_id"`
		Gain    float32 `json:"gain"`
	}

	TrackPanRequest struct {
		TrackID uint32  `json:"track_id"`
		Pan     float32 `json:"pan"`
	}

	TrackRequest struct {
		TrackID uint32 `json:"track_id"`
	}

	MasterGainRequest struct {
		Gain float32 `json:"gain"`
	}

	CreateTrackRequest struct {
		Name string `json:"name"`
	}

	ImportTrackRequest struct {
		Path string `json:"path" validate:"required"`
	}

	AddClipRequest struct {
		TrackID uint32  `json:"track_id"`
		Path    string  `json:"path" validate:"required"`
		Start   float64 `json:"start"`
	}

	MoveClipRequest struct {
		TrackID uint32  `json:"track_id"`
		ClipID  string  `json:"clip_id" validate:"required"`
		Start   float64 `json:"start"`
	}

	SplitClipRequest struct {
		TrackID uint32  `json:"track_id"`
		ClipID  string  `json:"clip_id" validate:"required"`
		At      float64 `json:"at"`
	}

	ClipRequest struct {
		TrackID uint32 `json:"track_id"`
		ClipID  string `json:"clip_id" validate:"required"`
	}

	EQUpdateRequest struct {
		TrackID uint32           `json:"track_id"`
		Band    int              `json:"band" validate:"min=0,max=3"`
		Type    haven.FilterType `json:"type"`
		Freq    float32          `json:"freq"`
		Q       float32          `json:"q"`
		GainDB  float32          `json:"gain_db"`
		Active  bool             `json:"active"`
	}

	CompressorUpdateRequest struct {
		TrackID     uint32  `json:"track_id"`
		Active      bool    `json:"active"`
		ThresholdDB float32 `json:"threshold_db"`
		Ratio       float32 `json:"ratio"`
		AttackMS    float32 `json:"attack_ms"`
		ReleaseMS   float32 `json:"release_ms"`
		MakeupDB    float32 `json:"makeup_db"`
	}

	BPMRequest struct {
		BPM float64 `json:"bpm" validate:"gt=0"`
	}

	TimeSignatureRequest struct {
		TimeSignature string `json:"time_signature" validate:"required"`
	}

	PathRequest struct {
		Path string `json:"path" validate:"required"`
	}

	ExportRequest struct {
		Path  string `json:"path" validate:"required"`
		PCM16 bool   `json:"pcm16"`
	}

	SeparateStemsRequest struct {
		TrackID         uint32 `json:"track_id"`
		ReplaceOriginal bool   `json:"replace_original"`
		MuteOriginal    bool   `json:"mute_original"`
	}

	StemJobRequest struct {
		JobID string `json:"job_id" validate:"required"`
	}

	PositionResponse struct {
		Seconds float64 `json:"seconds"`
		Playing bool    `json:"playing"`
	}
)
