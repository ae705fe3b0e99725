// Package config handles loading and validating the vocalis configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration for the vocalis gateway.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	TTS     TTSConfig     `mapstructure:"tts"`
	STT     STTConfig     `mapstructure:"stt"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// TTSConfig configures the synthesis side: engine endpoints, voice
// defaults, input limits, and artifact storage.
type TTSConfig struct {
	// Endpoint is the default Wyoming TCP endpoint (host:port) serving
	// every language that has no dedicated entry in Endpoints.
	Endpoint string `mapstructure:"endpoint"`

	// Endpoints maps ISO-639-1 language codes to per-language Wyoming
	// endpoints (recommended for production).
	Endpoints map[string]string `mapstructure:"endpoints"`

	// Languages lists the language codes the gateway accepts for synthesis.
	Languages []string `mapstructure:"languages"`

	// DefaultVoices maps language codes to the voice used when a request
	// leaves the voice field empty.
	DefaultVoices map[string]string `mapstructure:"default_voices"`

	// Voices optionally extends or overrides the built-in voice catalog.
	Voices map[string][]string `mapstructure:"voices"`

	DefaultSpeed  float64 `mapstructure:"default_speed"`
	MaxTextLength int     `mapstructure:"max_text_length"`
	OutputDir     string  `mapstructure:"output_dir"`
	AudioFormat   string  `mapstructure:"audio_format"`
}

// STTConfig configures the transcription side: the whisper server
// endpoint, its flavor, model selection, and upload limits.
type STTConfig struct {
	// Endpoint is the faster-whisper server URL.
	Endpoint string `mapstructure:"endpoint"`

	// Flavor selects the endpoint dialect: "openai" (whisper.cpp server,
	// faster-whisper OpenAI-compatible API) or "asr"
	// (ahmetoner/whisper-asr-webservice).
	Flavor string `mapstructure:"flavor"`

	// ModelSize names the whisper model: tiny, base, small, medium, large.
	ModelSize string `mapstructure:"model_size"`

	// Device and ComputeType describe the engine deployment ("cuda"/"cpu",
	// "float16"/"int8"). They are reported by the health endpoint so
	// operators can see which engine build is behind the gateway.
	Device      string `mapstructure:"device"`
	ComputeType string `mapstructure:"compute_type"`

	VADFilter       bool   `mapstructure:"vad_filter"`
	UploadDir       string `mapstructure:"upload_dir"`
	MaxUploadSizeMB int    `mapstructure:"max_upload_mb"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./vocalis.yaml, ./configs/vocalis.yaml, /etc/vocalis/vocalis.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("tts.endpoint", "localhost:10200")
	v.SetDefault("tts.languages", []string{"fr", "en"})
	v.SetDefault("tts.default_voices", map[string]string{
		"fr": "ff_siwis",
		"en": "af_heart",
	})
	v.SetDefault("tts.default_speed", 1.0)
	v.SetDefault("tts.max_text_length", 2000)
	v.SetDefault("tts.output_dir", "data/outputs")
	v.SetDefault("tts.audio_format", "wav")
	v.SetDefault("stt.endpoint", "http://localhost:9000/asr")
	v.SetDefault("stt.flavor", "asr")
	v.SetDefault("stt.model_size", "small")
	v.SetDefault("stt.device", "cuda")
	v.SetDefault("stt.compute_type", "float16")
	v.SetDefault("stt.vad_filter", false)
	v.SetDefault("stt.upload_dir", "data/uploads")
	v.SetDefault("stt.max_upload_mb", 25)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("vocalis")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/vocalis")
	}

	// Environment variables: VOCALIS_SERVER_PORT, VOCALIS_STT_ENDPOINT, etc.
	v.SetEnvPrefix("VOCALIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional — env vars and defaults are sufficient)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate rejects settings the gateway cannot start with.
func (c *Config) validate() error {
	if c.TTS.MaxTextLength <= 0 {
		return fmt.Errorf("tts.max_text_length must be positive, got %d", c.TTS.MaxTextLength)
	}
	if c.STT.MaxUploadSizeMB <= 0 {
		return fmt.Errorf("stt.max_upload_mb must be positive, got %d", c.STT.MaxUploadSizeMB)
	}
	if len(c.TTS.Languages) == 0 {
		return fmt.Errorf("tts.languages cannot be empty")
	}
	for _, lang := range c.TTS.Languages {
		if c.TTS.DefaultVoices[lang] == "" {
			return fmt.Errorf("no default voice configured for language %q", lang)
		}
	}
	return nil
}

// MaxUploadBytes returns the upload ceiling in bytes.
func (c *STTConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadSizeMB) << 20
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
