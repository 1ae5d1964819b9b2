// Package server exposes the engine's command surface to the UI shell as a
// request/response API: every operation returns once the command has been
// applied to the control-thread state (or enqueued, for transport nudges).
// Meters and transport position additionally stream over a websocket.
package server

import (
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/AivinJoy/haven-daw/engine"
)

type Server struct {
	app      *fiber.App
	model    *engine.Model
	validate *validator.Validate
	log      *slog.Logger
}

func New(model *engine.Model, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		app:      fiber.New(fiber.Config{DisableStartupMessage: true}),
		model:    model,
		validate: validator.New(),
		log:      log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.app.Group("/api")

	transport := api.Group("/transport")
	transport.Post("/play", s.handlePlay)
	transport.Post("/pause", s.handlePause)
	transport.Post("/seek", s.handleSeek)
	transport.Post("/rewind", s.handleRewind)
	transport.Get("/position", s.handlePosition)

	mixer := api.Group("/mixer")
	mixer.Post("/gain", s.handleTrackGain)
	mixer.Post("/pan", s.handleTrackPan)
	mixer.Post("/mute", s.handleToggleMute)
	mixer.Post("/solo", s.handleToggleSolo)
	mixer.Post("/master-gain", s.handleMasterGain)

	tracks := api.Group("/tracks")
	tracks.Post("/", s.handleCreateTrack)
	tracks.Delete("/:id", s.handleDeleteTrack)
	tracks.Post("/import", s.handleImportTrack)

	clips := api.Group("/clips")
	clips.Post("/", s.handleAddClip)
	clips.Post("/move", s.handleMoveClip)
	clips.Post("/split", s.handleSplitClip)
	clips.Post("/merge", s.handleMergeClip)
	clips.Post("/delete", s.handleDeleteClip)

	dsp := api.Group("/dsp")
	dsp.Post("/eq", s.handleUpdateEQ)
	dsp.Get("/eq/:id", s.handleGetEQ)
	dsp.Post("/compressor", s.handleUpdateCompressor)
	dsp.Get("/compressor/:id", s.handleGetCompressor)

	meters := api.Group("/meters")
	meters.Get("/", s.handleAllMeters)
	meters.Get("/master", s.handleMasterMeter)

	project := api.Group("/project")
	project.Get("/", s.handleProjectState)
	project.Post("/save", s.handleSave)
	project.Post("/load", s.handleLoad)
	project.Post("/export", s.handleExport)
	project.Get("/grid", s.handleGridLines)
	project.Post("/bpm", s.handleSetBPM)
	project.Post("/time-signature", s.handleSetTimeSignature)

	api.Post("/undo", s.handleUndo)
	api.Post("/redo", s.handleRedo)

	rec := api.Group("/recording")
	rec.Post("/start", s.handleStartRecording)
	rec.Post("/stop", s.handleStopRecording)
	rec.Get("/", s.handleRecordingStatus)
	rec.Post("/monitor", s.handleToggleMonitor)

	stems := api.Group("/stems")
	stems.Post("/separate", s.handleSeparateStems)
	stems.Post("/cancel", s.handleCancelStemJob)
	stems.Post("/commit", s.handleCommitStems)
	stems.Post("/discard", s.handleDiscardStems)
	stems.Get("/status/:jobId", s.handleStemJobStatus)

	devices := api.Group("/devices")
	devices.Get("/output", s.handleOutputDevices)
	devices.Get("/input", s.handleInputDevices)

	api.Get("/analysis", s.handleTrackAnalysis)
	api.Get("/waveform", s.handleWaveform)
	api.Get("/warnings", s.handleWarnings)

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws/meters", websocket.New(s.handleMeterStream))
}

// App exposes the underlying fiber app, for tests and for embedding the
// surface into a larger shell.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves the API until the listener fails or Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.log.Info("command surface listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// parseBody unmarshals and validates a request payload.
func parseBody[T any](s *Server, c *fiber.Ctx, req *T) error {
	if err := c.BodyParser(req); err != nil {
		return err
	}
	return s.validate.Struct(req)
}
