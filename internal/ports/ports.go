package ports

import (
	"context"
	"io"

	"parley/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
	Language       string
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// SpeechCapture is the speech capture adapter consumed by the session.
// Handlers registered with Subscribe receive every CaptureEvent until the
// returned function is called.
type SpeechCapture interface {
	Subscribe(handler func(domain.CaptureEvent)) (unsubscribe func())
	Start(ctx context.Context, locale string) (captureID uint64, err error)
	Stop(ctx context.Context) error
	Destroy(ctx context.Context) error
}

// Translator sends one request to a translation service.
type Translator interface {
	Translate(ctx context.Context, req domain.TranslationRequest) (domain.TranslationResult, error)
}

// Synthesizer speaks text and blocks until playback finishes or fails.
type Synthesizer interface {
	Speak(ctx context.Context, text string, locale string) error
}

// SpeechAudio is encoded audio produced by a speech renderer.
type SpeechAudio struct {
	Data     []byte
	Encoding string
}

// SpeechRenderer converts text into encoded audio.
type SpeechRenderer interface {
	Render(ctx context.Context, text string, locale string) (SpeechAudio, error)
}

// AudioPlayer plays encoded audio until it ends or ctx is cancelled.
type AudioPlayer interface {
	Play(ctx context.Context, audio SpeechAudio) error
}

// TranscriptRules transforms a final transcript before it is translated.
type TranscriptRules interface {
	Apply(text string, source domain.LanguageCode) (string, error)
}

// EventSink emits session snapshots and errors to the UI.
type EventSink interface {
	SessionChanged(snapshot domain.Snapshot, reason domain.SessionReason)
	SessionError(code domain.ErrorCode, detail string)
}
