package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"parley/internal/domain"
	"parley/internal/languages"
	"parley/internal/ports"
)

const inboxSize = 64

// Config controls session behavior.
type Config struct {
	Languages domain.LanguagePair
	AutoSpeak bool
}

// TranslationSession orchestrates listen → transcribe → translate → speak.
//
// All state lives on one event-loop goroutine. Intents and adapter
// completions are posted to the loop as closures. Capture start, stop and
// destroy run in order on a separate worker so the microphone is always
// released before it is opened again.
type TranslationSession struct {
	capture    ports.SpeechCapture
	translator ports.Translator
	synth      ports.Synthesizer
	rules      ports.TranscriptRules
	events     ports.EventSink
	autoSpeak  bool
	logger     zerolog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	inbox    chan func()
	stopLoop chan struct{}
	loopDone chan struct{}

	ops        *opQueue
	workerDone chan struct{}

	unsubscribe func()
	closed      atomic.Bool
	closeOnce   sync.Once

	state sessionState

	snapMu sync.RWMutex
	snap   domain.Snapshot
}

// NewTranslationSession starts the session loop and subscribes to capture
// events. rules may be nil. Close must be called to release the goroutines.
func NewTranslationSession(
	capture ports.SpeechCapture,
	translator ports.Translator,
	synth ports.Synthesizer,
	rules ports.TranscriptRules,
	events ports.EventSink,
	cfg Config,
	logger zerolog.Logger,
) *TranslationSession {
	pair := cfg.Languages
	if !languages.IsSupported(pair.Source) || !languages.IsSupported(pair.Target) {
		pair = domain.LanguagePair{Source: domain.LanguageEnglish, Target: domain.LanguageHindi}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &TranslationSession{
		capture:    capture,
		translator: translator,
		synth:      synth,
		rules:      rules,
		events:     events,
		autoSpeak:  cfg.AutoSpeak,
		logger:     logger,
		baseCtx:    ctx,
		baseCancel: cancel,
		inbox:      make(chan func(), inboxSize),
		stopLoop:   make(chan struct{}),
		loopDone:   make(chan struct{}),
		ops:        newOpQueue(),
		workerDone: make(chan struct{}),
	}
	s.state.snapshot = domain.Snapshot{Status: domain.StatusIdle, Languages: pair}
	s.publish(domain.ReasonSessionReady)

	s.unsubscribe = capture.Subscribe(func(event domain.CaptureEvent) {
		s.post(func() { s.onCaptureEvent(event) })
	})

	go s.loop()
	go s.ops.run(s.workerDone)
	return s
}

// Snapshot returns a copy of the latest published state.
func (s *TranslationSession) Snapshot() domain.Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	out := s.snap
	if s.snap.Error != nil {
		errCopy := *s.snap.Error
		out.Error = &errCopy
	}
	return out
}

// StartListening opens the microphone in the source language. Work from the
// previous attempt is abandoned.
func (s *TranslationSession) StartListening() error {
	return s.do(func() error {
		st := &s.state
		if st.snapshot.Status == domain.StatusListening {
			return domain.ErrAlreadyListening
		}

		st.abandonTranslation()
		st.abandonSpeech()
		st.rollback = rollback{transcript: st.snapshot.Transcript, translation: st.snapshot.Translation}
		st.clearContent()
		st.endCapture()
		st.capturePending = true
		st.snapshot.Status = domain.StatusListening
		s.publish(domain.ReasonListeningStarted)

		attempt := st.attempt
		locale := languages.CaptureLocale(st.snapshot.Languages.Source)
		s.enqueue(func() {
			id, err := s.capture.Start(s.baseCtx, locale)
			s.post(func() { s.captureStarted(attempt, id, err) })
		})
		return nil
	})
}

// StopListening finalizes the capture. The transcript is translated once
// every pending transcript event has been applied.
func (s *TranslationSession) StopListening() error {
	return s.do(func() error {
		st := &s.state
		if st.snapshot.Status != domain.StatusListening || st.stopping {
			return domain.ErrNotListening
		}

		st.stopping = true
		attempt := st.attempt
		s.enqueue(func() {
			err := s.capture.Stop(s.baseCtx)
			s.post(func() { s.captureStopped(attempt, err) })
		})
		return nil
	})
}

// SwapLanguages exchanges source and target.
func (s *TranslationSession) SwapLanguages() error {
	return s.do(func() error {
		return s.changeLanguages(s.state.snapshot.Languages.Swapped())
	})
}

// SetLanguages selects an explicit source and target.
func (s *TranslationSession) SetLanguages(source, target domain.LanguageCode) error {
	if !languages.IsSupported(source) || !languages.IsSupported(target) {
		return domain.ErrUnsupportedLanguage
	}
	return s.do(func() error {
		return s.changeLanguages(domain.LanguagePair{Source: source, Target: target})
	})
}

// ReplaySpeech speaks the current translation again, replacing any playback
// in progress.
func (s *TranslationSession) ReplaySpeech() error {
	return s.do(func() error {
		switch s.state.snapshot.Status {
		case domain.StatusDone, domain.StatusSpeaking:
		default:
			return domain.ErrInvalidTransition
		}
		return s.beginSpeech()
	})
}

// RetryTranslation re-issues the last failed translation.
func (s *TranslationSession) RetryTranslation() error {
	return s.do(func() error {
		snap := s.state.snapshot
		if snap.Status != domain.StatusError || snap.Error == nil || !snap.Error.Code.IsTranslation() {
			return domain.ErrInvalidTransition
		}
		if strings.TrimSpace(snap.Transcript) == "" {
			return domain.ErrNothingToTranslate
		}
		s.beginTranslation(snap.Transcript)
		return nil
	})
}

// Reset returns to Idle from any state, releasing the microphone and
// abandoning translation and playback.
func (s *TranslationSession) Reset() error {
	return s.do(func() error {
		st := &s.state
		if st.snapshot.Status == domain.StatusListening || st.capturePending || st.captureID != 0 {
			s.enqueueDestroy()
		}
		st.endCapture()
		st.abandonTranslation()
		st.abandonSpeech()
		st.clearContent()
		st.rollback = rollback{}
		st.snapshot.Status = domain.StatusIdle
		s.publish(domain.ReasonSessionReset)
		return nil
	})
}

// Close tears the session down. Later intents fail with ErrSessionClosed.
func (s *TranslationSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.unsubscribe()

		abandoned := make(chan struct{})
		s.post(func() {
			defer close(abandoned)
			st := &s.state
			st.endCapture()
			st.abandonTranslation()
			st.abandonSpeech()
			st.snapshot.Status = domain.StatusIdle
			s.publish(domain.ReasonSessionClosed)
		})
		select {
		case <-abandoned:
		case <-s.loopDone:
		}

		destroyed := make(chan error, 1)
		if s.ops.push(func() { destroyed <- s.capture.Destroy(context.Background()) }) {
			err = <-destroyed
		}
		s.ops.close()
		<-s.workerDone

		s.baseCancel()
		close(s.stopLoop)
		<-s.loopDone
	})
	return err
}

func (s *TranslationSession) loop() {
	defer close(s.loopDone)
	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-s.stopLoop:
			return
		}
	}
}

// do runs fn on the loop and waits for its result.
func (s *TranslationSession) do(fn func() error) error {
	if s.closed.Load() {
		return domain.ErrSessionClosed
	}

	result := make(chan error, 1)
	wrapped := func() {
		if s.closed.Load() {
			result <- domain.ErrSessionClosed
			return
		}
		result <- fn()
	}

	select {
	case s.inbox <- wrapped:
	case <-s.loopDone:
		return domain.ErrSessionClosed
	}
	select {
	case err := <-result:
		return err
	case <-s.loopDone:
		return domain.ErrSessionClosed
	}
}

// post queues fn on the loop without waiting for it to run.
func (s *TranslationSession) post(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.loopDone:
	}
}

func (s *TranslationSession) enqueue(op func()) {
	if !s.ops.push(op) {
		s.logger.Debug().Msg("capture worker closed; operation skipped")
	}
}

func (s *TranslationSession) enqueueDestroy() {
	s.enqueue(func() {
		if err := s.capture.Destroy(s.baseCtx); err != nil {
			s.logger.Warn().Err(err).Msg("failed to release capture")
		}
	})
}

func (s *TranslationSession) captureStarted(attempt, id uint64, err error) {
	st := &s.state
	if id > st.lastCaptureID {
		st.lastCaptureID = id
	}

	if attempt != st.attempt {
		s.logger.Debug().Uint64("capture_id", id).Msg("dropping stale capture start")
		st.dropEarly(id)
		return
	}

	if err != nil {
		s.failCapture(domain.ErrorCodeCaptureUnavailable, domain.ReasonCaptureUnavailable, err)
		return
	}

	st.captureID = id
	st.capturePending = false
	early := st.early
	st.early = nil
	for _, event := range early {
		if event.CaptureID == id {
			s.applyCaptureEvent(event)
		}
	}
}

func (s *TranslationSession) captureStopped(attempt uint64, err error) {
	st := &s.state
	if attempt != st.attempt || !st.stopping {
		s.logger.Debug().Msg("dropping stale capture stop")
		return
	}
	if err != nil && !errors.Is(err, domain.ErrNotListening) {
		s.logger.Warn().Err(err).Msg("capture did not stop cleanly; using transcript so far")
	}

	st.endCapture()
	st.snapshot.Interim = false
	transcript := strings.TrimSpace(st.snapshot.Transcript)
	if transcript == "" {
		st.snapshot.Transcript = ""
		st.snapshot.Status = domain.StatusIdle
		s.publish(domain.ReasonNoTranscript)
		return
	}

	st.snapshot.Transcript = transcript
	st.snapshot.Status = domain.StatusTranscribed
	s.publish(domain.ReasonTranscribed)
	s.beginTranslation(transcript)
}

func (s *TranslationSession) onCaptureEvent(event domain.CaptureEvent) {
	st := &s.state
	if st.captureID != 0 && event.CaptureID == st.captureID {
		s.applyCaptureEvent(event)
		return
	}
	// the start result may still be queued behind this event
	if st.capturePending && event.CaptureID > st.lastCaptureID {
		st.early = append(st.early, event)
		return
	}
	s.logger.Debug().Uint64("capture_id", event.CaptureID).Msg("ignoring event from inactive capture")
}

func (s *TranslationSession) applyCaptureEvent(event domain.CaptureEvent) {
	st := &s.state
	if st.snapshot.Status != domain.StatusListening {
		return
	}

	switch event.Kind {
	case domain.CaptureEventTranscript:
		if event.Text == st.snapshot.Transcript && event.Final != st.snapshot.Interim {
			return
		}
		st.snapshot.Transcript = event.Text
		st.snapshot.Interim = !event.Final
		s.publish(domain.ReasonTranscriptUpdated)
	case domain.CaptureEventError:
		err := event.Err
		if err == nil {
			err = errors.New("speech capture failed")
		}
		s.enqueueDestroy()
		s.failCapture(domain.ErrorCodeCaptureError, domain.ReasonCaptureFailed, err)
	}
}

func (s *TranslationSession) failCapture(code domain.ErrorCode, reason domain.SessionReason, err error) {
	st := &s.state
	s.logger.Warn().Err(err).Str("code", string(code)).Msg("capture failed")

	st.endCapture()
	st.snapshot.Transcript = st.rollback.transcript
	st.snapshot.Interim = false
	st.snapshot.Translation = st.rollback.translation
	st.snapshot.Status = domain.StatusError
	st.snapshot.Error = &domain.SessionError{Code: code, Message: err.Error()}
	s.publish(reason)
	s.events.SessionError(code, err.Error())
}

func (s *TranslationSession) changeLanguages(pair domain.LanguagePair) error {
	st := &s.state
	switch st.snapshot.Status {
	case domain.StatusIdle, domain.StatusDone, domain.StatusError:
	default:
		return domain.ErrInvalidTransition
	}

	st.snapshot.Languages = pair
	st.clearContent()
	st.rollback = rollback{}
	st.snapshot.Status = domain.StatusIdle
	s.publish(domain.ReasonLanguagesChanged)
	return nil
}

func (s *TranslationSession) beginTranslation(transcript string) {
	st := &s.state
	pair := st.snapshot.Languages

	text := transcript
	if s.rules != nil {
		rewritten, err := s.rules.Apply(transcript, pair.Source)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Msg("glossary failed; translating raw transcript")
		case strings.TrimSpace(rewritten) != "":
			text = strings.TrimSpace(rewritten)
		}
	}

	st.abandonTranslation()
	ctx, cancel := context.WithCancel(s.baseCtx)
	st.cancelTranslation = cancel
	id := st.requestID

	st.snapshot.Translation = ""
	st.snapshot.Error = nil
	st.snapshot.SynthesisWarning = ""
	st.snapshot.Status = domain.StatusTranslating
	s.publish(domain.ReasonTranslating)

	req := domain.TranslationRequest{Text: text, Source: pair.Source, Target: pair.Target}
	go func() {
		result, err := s.translator.Translate(ctx, req)
		s.post(func() { s.translationFinished(id, result, err) })
	}()
}

func (s *TranslationSession) translationFinished(id uint64, result domain.TranslationResult, err error) {
	st := &s.state
	if id != st.requestID || st.snapshot.Status != domain.StatusTranslating {
		s.logger.Debug().Uint64("request_id", id).Msg("dropping stale translation result")
		return
	}
	if st.cancelTranslation != nil {
		st.cancelTranslation()
		st.cancelTranslation = nil
	}

	if err != nil {
		code := domain.TranslationErrorCode(err)
		s.logger.Warn().Err(err).Str("code", string(code)).Msg("translation failed")
		st.snapshot.Translation = ""
		st.snapshot.Status = domain.StatusError
		st.snapshot.Error = &domain.SessionError{Code: code, Message: err.Error()}
		s.publish(domain.ReasonTranslationFailed)
		s.events.SessionError(code, err.Error())
		return
	}

	s.logger.Debug().
		Str("provider", result.Provider).
		Dur("latency", result.Latency).
		Msg("translation ready")
	st.snapshot.Translation = result.Text
	st.snapshot.Status = domain.StatusDone
	s.publish(domain.ReasonTranslationReady)

	if s.autoSpeak {
		if err := s.beginSpeech(); err != nil {
			s.logger.Debug().Err(err).Msg("auto-speak skipped")
		}
	}
}

func (s *TranslationSession) beginSpeech() error {
	st := &s.state
	text := st.snapshot.Translation
	if strings.TrimSpace(text) == "" {
		return domain.ErrNothingToSpeak
	}

	st.abandonSpeech()
	ctx, cancel := context.WithCancel(s.baseCtx)
	st.cancelSpeech = cancel
	id := st.speechID

	st.snapshot.SynthesisWarning = ""
	st.snapshot.Status = domain.StatusSpeaking
	s.publish(domain.ReasonSpeaking)

	locale := languages.SynthesisLocale(st.snapshot.Languages.Target)
	go func() {
		err := s.synth.Speak(ctx, text, locale)
		s.post(func() { s.speechFinished(id, err) })
	}()
	return nil
}

func (s *TranslationSession) speechFinished(id uint64, err error) {
	st := &s.state
	if id != st.speechID || st.snapshot.Status != domain.StatusSpeaking {
		return
	}
	if st.cancelSpeech != nil {
		st.cancelSpeech()
		st.cancelSpeech = nil
	}

	st.snapshot.Status = domain.StatusDone
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, domain.ErrSpeechReplaced) {
		s.logger.Warn().Err(err).Msg("speech failed")
		st.snapshot.SynthesisWarning = err.Error()
		s.publish(domain.ReasonSpeechFailed)
		s.events.SessionError(domain.ErrorCodeSynthesis, err.Error())
		return
	}
	s.publish(domain.ReasonSpeechFinished)
}

// publish hands a copy of the state to readers and the event sink.
func (s *TranslationSession) publish(reason domain.SessionReason) {
	snap := s.state.copySnapshot()

	s.snapMu.Lock()
	s.snap = snap
	s.snapMu.Unlock()

	s.logger.Debug().
		Str("status", string(snap.Status)).
		Str("reason", string(reason)).
		Msg("session changed")
	s.events.SessionChanged(snap, reason)
}
