package config

import (
	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig
	Audio  AudioConfig
	Log    LogConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type AudioConfig struct {
	SampleRate   int  // preferred device rate; 48000 preferred, 44100 accepted
	BufferFrames int  // device callback size in frames
	RecordPCM16  bool // record and export as 16-bit PCM instead of float32
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	_ = viper.BindEnv("server.port", "HAVEN_PORT")
	_ = viper.BindEnv("server.host", "HAVEN_HOST")
	_ = viper.BindEnv("audio.sample_rate", "HAVEN_SAMPLE_RATE")
	_ = viper.BindEnv("audio.buffer_frames", "HAVEN_BUFFER_FRAMES")
	_ = viper.BindEnv("audio.record_pcm16", "HAVEN_RECORD_PCM16")
	_ = viper.BindEnv("log.level", "HAVEN_LOG_LEVEL")

	viper.SetDefault("server.port", "8090")
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("audio.sample_rate", 48000)
	viper.SetDefault("audio.buffer_frames", 1024)
	viper.SetDefault("audio.record_pcm16", false)
	viper.SetDefault("log.level", "info")

	// config file is optional
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Host: viper.GetString("server.host"),
		},
		Audio: AudioConfig{
			SampleRate:   viper.GetInt("audio.sample_rate"),
			BufferFrames: viper.GetInt("audio.buffer_frames"),
			RecordPCM16:  viper.GetBool("audio.record_pcm16"),
		},
		Log: LogConfig{
			Level: viper.GetString("log.level"),
		},
	}
	if cfg.Audio.SampleRate != 48000 && cfg.Audio.SampleRate != 44100 {
		cfg.Audio.SampleRate = 48000
	}
	return cfg, nil
}
