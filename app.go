package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"parley/internal/bootstrap"
	"parley/internal/config"
	"parley/internal/domain"
	"parley/internal/glossary"
	"parley/internal/languages"
)

const (
	eventSession = "parley:session"
	eventError   = "parley:error"
)

var errNothingToCopy = errors.New("no translation to copy")

// translationSession is the part of usecase.TranslationSession the shell
// drives.
type translationSession interface {
	StartListening() error
	StopListening() error
	SwapLanguages() error
	SetLanguages(source, target domain.LanguageCode) error
	ReplaySpeech() error
	RetryTranslation() error
	Reset() error
	Snapshot() domain.Snapshot
	Close() error
}

// App is the Wails application root. It forwards intents to the session and
// emits every snapshot to the frontend.
type App struct {
	ctx    context.Context
	cfg    config.Config
	logger zerolog.Logger

	session  translationSession
	glossary *glossary.Glossary
	bootErr  error

	emit      func(ctx context.Context, name string, data ...interface{})
	clipboard func(ctx context.Context, text string) error
	report    func(code domain.ErrorCode, detail string)
}

// NewApp prepares the shell; the backend is built in startup.
func NewApp(cfg config.Config, logger zerolog.Logger) *App {
	a := &App{
		cfg:       cfg,
		logger:    logger,
		emit:      runtime.EventsEmit,
		clipboard: runtime.ClipboardSetText,
		report:    func(domain.ErrorCode, string) {},
	}
	if cfg.SentryDSN != "" {
		a.report = reportToSentry
	}
	return a
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a.cfg, a, a.logger)
	if err != nil {
		a.bootErr = err
		a.logger.Error().Err(err).Msg("startup failed")
		if a.cfg.SentryDSN != "" {
			sentry.CaptureException(err)
		}
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}
	a.session = services.Session
	a.glossary = services.Glossary
}

func (a *App) shutdown(_ context.Context) {
	if a.session == nil {
		return
	}
	if err := a.session.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("session close failed")
	}
}

// StartListening opens the microphone in the source language.
func (a *App) StartListening() (domain.Snapshot, error) {
	return a.intent((translationSession).StartListening)
}

// StopListening finishes capture; translation starts automatically.
func (a *App) StopListening() (domain.Snapshot, error) {
	return a.intent((translationSession).StopListening)
}

// SwapLanguages exchanges source and target.
func (a *App) SwapLanguages() (domain.Snapshot, error) {
	return a.intent((translationSession).SwapLanguages)
}

// SetLanguages selects source and target from the language pickers.
func (a *App) SetLanguages(source, target string) (domain.Snapshot, error) {
	sourceCode, err := languages.Parse(source)
	if err != nil {
		return a.GetSnapshot(), err
	}
	targetCode, err := languages.Parse(target)
	if err != nil {
		return a.GetSnapshot(), err
	}
	return a.intent(func(s translationSession) error {
		return s.SetLanguages(sourceCode, targetCode)
	})
}

// ReplaySpeech speaks the current translation again.
func (a *App) ReplaySpeech() (domain.Snapshot, error) {
	return a.intent((translationSession).ReplaySpeech)
}

// RetryTranslation re-sends the transcript after a translation failure.
func (a *App) RetryTranslation() (domain.Snapshot, error) {
	return a.intent((translationSession).RetryTranslation)
}

// Reset clears the session.
func (a *App) Reset() (domain.Snapshot, error) {
	return a.intent((translationSession).Reset)
}

// GetSnapshot returns the current session state.
func (a *App) GetSnapshot() domain.Snapshot {
	if a.session == nil {
		snap := domain.Snapshot{Status: domain.StatusIdle}
		if a.bootErr != nil {
			snap.Status = domain.StatusError
			snap.Error = &domain.SessionError{Code: domain.ErrorCodeStartup, Message: a.bootErr.Error()}
		}
		return snap
	}
	return a.session.Snapshot()
}

// GetLanguages lists the selectable languages.
func (a *App) GetLanguages() []languages.Option {
	return languages.Options()
}

// CopyTranslation puts the current translation on the clipboard.
func (a *App) CopyTranslation() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	text := strings.TrimSpace(a.session.Snapshot().Translation)
	if text == "" {
		return errNothingToCopy
	}
	if err := a.clipboard(a.ctx, text); err != nil {
		return fmt.Errorf("copy translation: %w", err)
	}
	return nil
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	pair := a.GetSnapshot().Languages
	rules := 0
	if a.glossary != nil {
		rules = a.glossary.Len(pair.Source)
	}

	return map[string]string{
		"recognizer":       "Deepgram",
		"model":            a.cfg.DeepgramModel,
		"translator":       "Google Translate",
		"voice":            "Google Text-to-Speech",
		"sourceLanguage":   languages.Name(pair.Source),
		"targetLanguage":   languages.Name(pair.Target),
		"autoSpeak":        strconv.FormatBool(a.cfg.AutoSpeak),
		"glossaryFile":     a.cfg.GlossaryFile,
		"glossaryRules":    strconv.Itoa(rules),
		"audioInput":       a.cfg.AudioInputDevice,
		"audioInputFormat": a.cfg.AudioInputFormat,
	}
}

func (a *App) intent(run func(translationSession) error) (domain.Snapshot, error) {
	if err := a.requireReady(); err != nil {
		return a.GetSnapshot(), err
	}
	err := run(a.session)
	return a.session.Snapshot(), err
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.session == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionChanged emits a snapshot to the frontend.
func (a *App) SessionChanged(snapshot domain.Snapshot, reason domain.SessionReason) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, eventSession, map[string]interface{}{
		"snapshot": snapshot,
		"reason":   string(reason),
		"message":  sessionReasonMessage(reason),
		"busy":     snapshot.Busy(),
	})
}

// SessionError emits backend errors to the UI and reports the ones worth
// looking at.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if code != domain.ErrorCodeStartup && code != domain.ErrorCodeSynthesis {
		a.report(code, detail)
	}
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func reportToSentry(code domain.ErrorCode, detail string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_code", string(code))
		scope.SetLevel(sentry.LevelWarning)
		sentry.CaptureMessage(fmt.Sprintf("%s: %s", code, detail))
	})
}

func sessionReasonMessage(reason domain.SessionReason) string {
	switch reason {
	case domain.ReasonSessionReady:
		return "Ready"
	case domain.ReasonListeningStarted:
		return "Listening..."
	case domain.ReasonTranscriptUpdated:
		return "Listening..."
	case domain.ReasonNoTranscript:
		return "Nothing was heard"
	case domain.ReasonTranscribed:
		return "Transcribed"
	case domain.ReasonTranslating:
		return "Translating..."
	case domain.ReasonTranslationReady:
		return "Translation ready"
	case domain.ReasonTranslationFailed:
		return "Translation failed"
	case domain.ReasonCaptureUnavailable:
		return "Microphone unavailable"
	case domain.ReasonCaptureFailed:
		return "Speech recognition failed"
	case domain.ReasonSpeaking:
		return "Speaking..."
	case domain.ReasonSpeechFinished:
		return "Done"
	case domain.ReasonSpeechFailed:
		return "Could not play the translation"
	case domain.ReasonLanguagesChanged:
		return "Languages updated"
	case domain.ReasonSessionReset:
		return "Cleared"
	case domain.ReasonSessionClosed:
		return "Closed"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeCaptureUnavailable:
		return "Microphone is not available"
	case domain.ErrorCodeCaptureError:
		return "Speech recognition stopped unexpectedly"
	case domain.ErrorCodeTranslationNetwork:
		return "Translation service unreachable"
	case domain.ErrorCodeTranslationService:
		return "Translation service error"
	case domain.ErrorCodeTranslationInvalidLanguage:
		return "Language not supported by the translator"
	case domain.ErrorCodeTranslationRateLimited:
		return "Too many translation requests; try again shortly"
	case domain.ErrorCodeSynthesis:
		return "Speech playback failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
