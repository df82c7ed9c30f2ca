package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"parley/internal/domain"
	"parley/internal/languages"
)

const (
	envFileVar = "PARLEY_ENV_FILE"

	defaultGlossaryIterationLimit = 30
	defaultSampleRate             = 16000
	defaultChannels               = 1
	defaultChunkSize              = 4096
	minChunkSize                  = 256
)

// Config holds runtime configuration resolved from the environment.
type Config struct {
	Environment string `envconfig:"PARLEY_ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"PARLEY_LOG_LEVEL" default:"info"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`

	SourceLanguage string `envconfig:"PARLEY_SOURCE_LANGUAGE" default:"en"`
	TargetLanguage string `envconfig:"PARLEY_TARGET_LANGUAGE" default:"hi"`
	AutoSpeak      bool   `envconfig:"PARLEY_AUTO_SPEAK" default:"true"`

	GlossaryFile           string `envconfig:"PARLEY_GLOSSARY_FILE"`
	GlossaryIterationLimit int    `envconfig:"PARLEY_GLOSSARY_ITERATION_LIMIT" default:"30"`

	DeepgramAPIKey      string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramAPIBase     string `envconfig:"DEEPGRAM_API_BASE" default:"https://api.deepgram.com/v1"`
	DeepgramModel       string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramSmartFormat bool   `envconfig:"DEEPGRAM_SMART_FORMAT" default:"true"`

	TranslateAPIKey    string        `envconfig:"GOOGLE_TRANSLATE_API_KEY"`
	TranslateURL       string        `envconfig:"GOOGLE_TRANSLATE_URL" default:"https://translation.googleapis.com/language/translate/v2"`
	TranslationTimeout time.Duration `envconfig:"PARLEY_TRANSLATION_TIMEOUT" default:"15s"`

	TTSAPIKey       string  `envconfig:"GOOGLE_TTS_API_KEY"`
	TTSURL          string  `envconfig:"GOOGLE_TTS_URL" default:"https://texttospeech.googleapis.com/v1"`
	TTSSpeakingRate float64 `envconfig:"PARLEY_TTS_SPEAKING_RATE" default:"1.0"`
	TTSPitch        float64 `envconfig:"PARLEY_TTS_PITCH" default:"0"`

	FFmpegCommand    string        `envconfig:"PARLEY_FFMPEG_COMMAND" default:"ffmpeg"`
	FFplayCommand    string        `envconfig:"PARLEY_FFPLAY_COMMAND" default:"ffplay"`
	AudioInputFormat string        `envconfig:"PARLEY_AUDIO_INPUT_FORMAT" default:"pulse"`
	AudioInputDevice string        `envconfig:"PARLEY_AUDIO_INPUT_DEVICE" default:"default"`
	SampleRate       int           `envconfig:"PARLEY_SAMPLE_RATE" default:"16000"`
	Channels         int           `envconfig:"PARLEY_CHANNELS" default:"1"`
	AudioChunkSize   int           `envconfig:"PARLEY_AUDIO_CHUNK_SIZE" default:"4096"`
	StreamingGrace   time.Duration `envconfig:"PARLEY_STREAMING_GRACE" default:"1s"`
}

// Load reads an optional env file, resolves the environment and validates
// the result.
func Load() (Config, error) {
	if _, err := LoadEnvFile(); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	cfg.applyFallbacks()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadEnvFile loads PARLEY_ENV_FILE when set, otherwise ./.env when present.
// It returns the file that was loaded, if any.
func LoadEnvFile() (string, error) {
	if custom := strings.TrimSpace(os.Getenv(envFileVar)); custom != "" {
		if err := godotenv.Overload(custom); err != nil {
			return "", fmt.Errorf("load %s=%s: %w", envFileVar, custom, err)
		}
		return custom, nil
	}

	if _, err := os.Stat(".env"); err != nil {
		return "", nil
	}
	// values already in the environment win over .env
	if err := godotenv.Load(".env"); err != nil {
		return "", fmt.Errorf("load .env: %w", err)
	}
	return ".env", nil
}

func (c *Config) applyFallbacks() {
	if strings.TrimSpace(c.TTSAPIKey) == "" {
		c.TTSAPIKey = c.TranslateAPIKey
	}
	if strings.TrimSpace(c.GlossaryFile) == "" {
		c.GlossaryFile = defaultGlossaryPath()
	}
	if c.GlossaryIterationLimit <= 0 {
		c.GlossaryIterationLimit = defaultGlossaryIterationLimit
	}
	if c.SampleRate <= 0 {
		c.SampleRate = defaultSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = defaultChannels
	}
	if c.AudioChunkSize < minChunkSize {
		c.AudioChunkSize = defaultChunkSize
	}
	if c.StreamingGrace < 0 {
		c.StreamingGrace = 0
	}
}

// Validate rejects settings the application cannot run with.
func (c Config) Validate() error {
	if _, err := languages.Parse(c.SourceLanguage); err != nil {
		return fmt.Errorf("PARLEY_SOURCE_LANGUAGE: %w", err)
	}
	if _, err := languages.Parse(c.TargetLanguage); err != nil {
		return fmt.Errorf("PARLEY_TARGET_LANGUAGE: %w", err)
	}
	if c.TranslationTimeout <= 0 {
		return errors.New("PARLEY_TRANSLATION_TIMEOUT must be positive")
	}
	if c.TTSSpeakingRate < 0.25 || c.TTSSpeakingRate > 4 {
		return fmt.Errorf("PARLEY_TTS_SPEAKING_RATE must be between 0.25 and 4.0, got %g", c.TTSSpeakingRate)
	}
	if c.TTSPitch < -20 || c.TTSPitch > 20 {
		return fmt.Errorf("PARLEY_TTS_PITCH must be between -20 and 20, got %g", c.TTSPitch)
	}
	if strings.TrimSpace(c.FFmpegCommand) == "" {
		return errors.New("PARLEY_FFMPEG_COMMAND is required")
	}
	if strings.TrimSpace(c.FFplayCommand) == "" {
		return errors.New("PARLEY_FFPLAY_COMMAND is required")
	}
	return nil
}

// Languages returns the configured default pair. Call after Validate.
func (c Config) Languages() domain.LanguagePair {
	source, _ := languages.Parse(c.SourceLanguage)
	target, _ := languages.Parse(c.TargetLanguage)
	return domain.LanguagePair{Source: source, Target: target}
}

func defaultGlossaryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "parley", "glossary.txt")
}
