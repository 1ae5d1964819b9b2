package server

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	haven "github.com/AivinJoy/haven-daw"
)

// --- transport --------------------------------------------------------

func (s *Server) handlePlay(c *fiber.Ctx) error {
	s.model.Play()
	return ok(c, nil)
}

func (s *Server) handlePause(c *fiber.Ctx) error {
	s.model.Pause()
	return ok(c, nil)
}

func (s *Server) handleSeek(c *fiber.Ctx) error {
	var req SeekRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	s.model.Seek(req.Seconds)
	return ok(c, nil)
}

func (s *Server) handleRewind(c *fiber.Ctx) error {
	s.model.Rewind()
	return ok(c, nil)
}

func (s *Server) handlePosition(c *fiber.Ctx) error {
	return ok(c, PositionResponse{
		Seconds: s.model.PositionSeconds(),
		Playing: s.model.IsPlaying(),
	})
}

// --- mixer ------------------------------------------------------------

func (s *Server) handleTrackGain(c *fiber.Ctx) error {
	var req TrackGainRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.model.SetTrackGain(req.TrackID, req.Gain); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}

func (s *Server) handleTrackPan(c *fiber.Ctx) error {
	var req TrackPanRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.model.SetTrackPan(req.TrackID, req.Pan); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}

func (s *Server) handleToggleMute(c *fiber.Ctx) error {
	var req TrackRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.model.ToggleMute(req.TrackID); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}

func (s *Server) handleToggleSolo(c *fiber.Ctx) error {
	var req TrackRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.model.ToggleSolo(req.TrackID); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}

func (s *Server) handleMasterGain(c *fiber.Ctx) error {
	var req MasterGainRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.model.SetMasterGain(req.Gain); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}

// --- arrangement ------------------------------------------------------

func (s *Server) handleCreateTrack(c *fiber.Ctx) error {
	var req CreateTrackRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.Name == "" {
		req.Name = "Track"
	}
	track, err := s.model.CreateTrack(req.Name)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, track)
}

func (s *Server) handleDeleteTrack(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return badRequest(c, "invalid track id")
	}
	if err := s.model.DeleteTrack(uint32(id)); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}

func (s *Server) handleImportTrack(c *fiber.Ctx) error {
	var req ImportTrackRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	track, err := s.model.ImportTrack(req.Path)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, track)
}

func (s *Server) handleAddClip(c *fiber.Ctx) error {
	var req AddClipRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	clip, err := s.model.AddClip(req.TrackID, req.Path, req.Start)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, clip)
}

func (s *Server) handleMoveClip(c *fiber.Ctx) error {
	var req MoveClipRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.model.MoveClip(req.TrackID, req.ClipID, req.Start); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}

func (s *Server) handleSplitClip(c *fiber.Ctx) error {
	var req SplitClipRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	left, right, err := s.model.SplitClip(req.TrackID, req.ClipID, req.At)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.Map{"left": left, "right": right})
}

func (s *Server) handleMergeClip(c *fiber.Ctx) error {
	var req ClipRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.model.MergeClipWithNext(req.TrackID, req.ClipID); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}

func (s *Server) handleDeleteClip(c *fiber.Ctx) error {
	var req ClipRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.model.DeleteClip(req.TrackID, req.ClipID); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}

// --- DSP --------------------------------------------------------------

func (s *Server) handleUpdateEQ(c *fiber.Ctx) error {
	var req EQUpdateRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	params := haven.EQBandParams{
		Type:   req.Type,
		Freq:   req.Freq,
		Q:      req.Q,
		GainDB: req.GainDB,
		Active: req.Active,
	}
	if err := s.model.UpdateEQ(req.TrackID, req.Band, params); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}

func (s *Server) handleGetEQ(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return badRequest(c, "invalid track id")
	}
	eq, err := s.model.GetEQState(uint32(id))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, eq)
}

func (s *Server) handleUpdateCompressor(c *fiber.Ctx) error {
	var req CompressorUpdateRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	params := haven.CompressorParams{
		Active:      req.Active,
		ThresholdDB: req.ThresholdDB,
		Ratio:       req.Ratio,
		AttackMS:    req.AttackMS,
		ReleaseMS:   req.ReleaseMS,
		MakeupDB:    req.MakeupDB,
	}
	if err := s.model.UpdateCompressor(req.TrackID, params); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}

func (s *Server) handleGetCompressor(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return badRequest(c, "invalid track id")
	}
	comp, err := s.model.GetCompressorState(uint32(id))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, comp)
}

// --- meters -----------------------------------------------------------

func (s *Server) handleAllMeters(c *fiber.Ctx) error {
	return ok(c, s.model.TrackMeters())
}

func (s *Server) handleMasterMeter(c *fiber.Ctx) error {
	return ok(c, s.model.MasterMeter())
}

// --- project ----------------------------------------------------------

func (s *Server) handleProjectState(c *fiber.Ctx) error {
	return ok(c, s.model.ProjectState())
}

func (s *Server) handleSave(c *fiber.Ctx) error {
	var req PathRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.model.SaveFile(req.Path); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}

func (s *Server) handleLoad(c *fiber.Ctx) error {
	var req PathRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.model.LoadFile(req.Path); err != nil {
		return fail(c, err)
	}
	return ok(c, s.model.ProjectState())
}

func (s *Server) handleExport(c *fiber.Ctx) error {
	var req ExportRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	err := s.model.Export(c.Context(), req.Path, req.PCM16, func(done, total float64) {
		s.log.Debug("export progress", "rendered_sec", done, "total_sec", total)
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.Map{"path": req.Path})
}

func (s *Server) handleGridLines(c *fiber.Ctx) error {
	start := c.QueryFloat("start", 0)
	end := c.QueryFloat("end", 0)
	resolution := c.QueryInt("resolution", 1)
	return ok(c, s.model.GridLines(start, end, resolution))
}

func (s *Server) handleSetBPM(c *fiber.Ctx) error {
	var req BPMRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.model.SetBPM(req.BPM); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}

func (s *Server) handleSetTimeSignature(c *fiber.Ctx) error {
	var req TimeSignatureRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.model.SetTimeSignature(req.TimeSignature); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}

// --- undo -------------------------------------------------------------

func (s *Server) handleUndo(c *fiber.Ctx) error {
	return ok(c, fiber.Map{"undone": s.model.Undo(), "can_undo": s.model.CanUndo(), "can_redo": s.model.CanRedo()})
}

func (s *Server) handleRedo(c *fiber.Ctx) error {
	return ok(c, fiber.Map{"redone": s.model.Redo(), "can_undo": s.model.CanUndo(), "can_redo": s.model.CanRedo()})
}

// --- recording --------------------------------------------------------

func (s *Server) handleStartRecording(c *fiber.Ctx) error {
	var req PathRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.model.StartRecording(req.Path); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}

func (s *Server) handleStopRecording(c *fiber.Ctx) error {
	if err := s.model.StopRecording(); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}

func (s *Server) handleRecordingStatus(c *fiber.Ctx) error {
	return ok(c, s.model.RecordingStatus())
}

func (s *Server) handleToggleMonitor(c *fiber.Ctx) error {
	return ok(c, fiber.Map{"monitor": s.model.ToggleMonitor()})
}

// --- stem separation --------------------------------------------------

func (s *Server) handleSeparateStems(c *fiber.Ctx) error {
	var req SeparateStemsRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	jobID, err := s.model.SeparateStems(req.TrackID, req.ReplaceOriginal, req.MuteOriginal)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.Map{"job_id": jobID})
}

func (s *Server) handleCancelStemJob(c *fiber.Ctx) error {
	var req StemJobRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.model.CancelStemJob(req.JobID); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}

func (s *Server) handleCommitStems(c *fiber.Ctx) error {
	var req StemJobRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.model.CommitPendingStems(req.JobID); err != nil {
		return fail(c, err)
	}
	return ok(c, s.model.ProjectState())
}

func (s *Server) handleDiscardStems(c *fiber.Ctx) error {
	var req StemJobRequest
	if err := parseBody(s, c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.model.DiscardPendingStems(req.JobID); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}

func (s *Server) handleStemJobStatus(c *fiber.Ctx) error {
	status, err := s.model.StemJobStatus(c.Params("jobId"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, status)
}

// --- devices, analysis, misc -----------------------------------------

func (s *Server) handleOutputDevices(c *fiber.Ctx) error {
	return ok(c, s.model.OutputDevices())
}

func (s *Server) handleInputDevices(c *fiber.Ctx) error {
	return ok(c, s.model.InputDevices())
}

func (s *Server) handleTrackAnalysis(c *fiber.Ctx) error {
	return ok(c, s.model.TrackAnalyses())
}

func (s *Server) handleWaveform(c *fiber.Ctx) error {
	path := c.Query("path")
	if path == "" {
		return badRequest(c, "path query parameter is required")
	}
	wf, err := s.model.Waveform(path)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, wf)
}

func (s *Server) handleWarnings(c *fiber.Ctx) error {
	return ok(c, s.model.Warnings())
}
