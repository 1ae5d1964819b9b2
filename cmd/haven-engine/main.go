package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AivinJoy/haven-daw/asset"
	"github.com/AivinJoy/haven-daw/config"
	"github.com/AivinJoy/haven-daw/engine"
	"github.com/AivinJoy/haven-daw/oto"
	"github.com/AivinJoy/haven-daw/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("could not load config", "error", err)
		os.Exit(1)
	}
	log := newLogger(cfg.Log.Level)

	broker := engine.NewBroker()
	status := engine.NewStatus(cfg.Audio.SampleRate)
	masterMeter := engine.NewMeter(cfg.Audio.SampleRate)
	player := engine.NewPlayer(broker, status, masterMeter, cfg.Audio.SampleRate)
	cache := asset.NewCache(asset.DefaultRegistry())
	model := engine.NewModel(broker, status, cache, masterMeter, log)

	captureRate := cfg.Audio.SampleRate
	recorder := engine.NewRecorder(model, broker, func() (engine.CaptureSource, error) {
		return engine.NewSyntheticCapture(captureRate, 440, 0.25), nil
	}, cfg.Audio.RecordPCM16)
	model.SetRecorder(recorder)
	model.SetStemJobs(engine.NewStemJobs(model, engine.BandSplitSeparator{Cache: cache}))

	manager := oto.NewManager(player, cfg.Audio.SampleRate, cfg.Audio.BufferFrames, func(sampleRate int) {
		engine.PostSampleRate(broker, sampleRate)
	})
	if err := manager.Start(); err != nil {
		log.Error("could not start output device", "error", err)
		os.Exit(1)
	}
	if manager.Silent() {
		log.Warn("no output device available, running silent")
	}
	model.SetDeviceProvider(manager)

	srv := server.New(model, log)
	go func() {
		if err := srv.Listen(cfg.Server.Host + ":" + cfg.Server.Port); err != nil {
			log.Error("command surface stopped", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")
	srv.Shutdown()
	manager.Close()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(log)
	return log
}
