package bootstrap

import (
	"github.com/rs/zerolog"

	"parley/internal/audio"
	"parley/internal/capture"
	"parley/internal/config"
	"parley/internal/glossary"
	"parley/internal/logging"
	"parley/internal/ports"
	"parley/internal/providers/deepgram"
	"parley/internal/providers/googletranslate"
	"parley/internal/providers/googletts"
	"parley/internal/synthesis"
	"parley/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Session  *usecase.TranslationSession
	Glossary *glossary.Glossary
	Config   config.Config
}

// Build wires all backend dependencies for cfg. The caller owns the session
// and must Close it.
func Build(cfg config.Config, eventSink ports.EventSink, logger zerolog.Logger) (Services, error) {
	rules, err := glossary.Load(cfg.GlossaryFile, cfg.GlossaryIterationLimit)
	if err != nil {
		return Services{}, err
	}
	logger.Info().
		Str("glossary", cfg.GlossaryFile).
		Int("rules", rules.Len(cfg.Languages().Source)).
		Msg("glossary loaded")

	speechCapture := capture.NewAdapter(
		audio.NewFFMPEGCapture(cfg.FFmpegCommand),
		deepgram.NewProvider(deepgram.Config{
			APIKey:      cfg.DeepgramAPIKey,
			APIBaseURL:  cfg.DeepgramAPIBase,
			Model:       cfg.DeepgramModel,
			SmartFormat: cfg.DeepgramSmartFormat,
		}),
		capture.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.SampleRate,
				Channels:    cfg.Channels,
				InputFormat: cfg.AudioInputFormat,
				InputDevice: cfg.AudioInputDevice,
			},
			Streaming: ports.StreamingConfig{
				SampleRate:     cfg.SampleRate,
				Channels:       cfg.Channels,
				Encoding:       "linear16",
				InterimResults: true,
			},
			ChunkSize:      cfg.AudioChunkSize,
			StreamingGrace: cfg.StreamingGrace,
		},
		logging.Component(logger, "capture"),
	)

	translator := googletranslate.NewClient(googletranslate.Config{
		APIKey:  cfg.TranslateAPIKey,
		URL:     cfg.TranslateURL,
		Timeout: cfg.TranslationTimeout,
	})
	logger.Info().
		Str("translator", translator.Name()).
		Dur("timeout", cfg.TranslationTimeout).
		Msg("translator configured")

	speech := synthesis.NewAdapter(
		googletts.NewClient(googletts.Config{
			APIKey:       cfg.TTSAPIKey,
			URL:          cfg.TTSURL,
			SpeakingRate: cfg.TTSSpeakingRate,
			Pitch:        cfg.TTSPitch,
		}),
		audio.NewFFPlayPlayer(cfg.FFplayCommand),
		logging.Component(logger, "synthesis"),
	)

	session := usecase.NewTranslationSession(
		speechCapture,
		translator,
		speech,
		rules,
		eventSink,
		usecase.Config{
			Languages: cfg.Languages(),
			AutoSpeak: cfg.AutoSpeak,
		},
		logging.Component(logger, "session"),
	)

	return Services{Session: session, Glossary: rules, Config: cfg}, nil
}
