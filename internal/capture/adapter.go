// Package capture turns a microphone and a streaming recognizer into the
// speech capture adapter used by the translation session.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"parley/internal/domain"
	"parley/internal/ports"
)

const defaultStopTimeout = 4 * time.Second

// Config controls microphone and recognizer settings. Streaming.Language is
// replaced by the locale passed to Start.
type Config struct {
	Audio          ports.AudioConfig
	Streaming      ports.StreamingConfig
	ChunkSize      int
	StreamingGrace time.Duration
	StopTimeout    time.Duration
}

// Adapter implements ports.SpeechCapture. Only one capture runs at a time.
type Adapter struct {
	audio    ports.AudioCapture
	provider ports.TranscriptionProvider
	cfg      Config
	logger   zerolog.Logger

	subMu   sync.RWMutex
	subs    map[uint64]func(domain.CaptureEvent)
	nextSub uint64

	mu      sync.Mutex
	current *run
	lastID  uint64
}

type run struct {
	id         uint64
	locale     string
	cancel     context.CancelFunc
	audio      ports.AudioSession
	stream     ports.StreamingSession
	aggregator *transcriptAggregator

	stopping atomic.Bool
	broken   atomic.Bool
	failOnce sync.Once

	eventsDone chan struct{}
	audioDone  chan struct{}
}

func NewAdapter(audio ports.AudioCapture, provider ports.TranscriptionProvider, cfg Config, logger zerolog.Logger) *Adapter {
	if cfg.ChunkSize < minChunkSize {
		cfg.ChunkSize = 4096
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	return &Adapter{
		audio:    audio,
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		subs:     make(map[uint64]func(domain.CaptureEvent)),
	}
}

// Subscribe registers handler for capture events. Handlers run on the
// adapter's goroutines and must not block for long.
func (a *Adapter) Subscribe(handler func(domain.CaptureEvent)) func() {
	a.subMu.Lock()
	a.nextSub++
	id := a.nextSub
	a.subs[id] = handler
	a.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.subMu.Lock()
			delete(a.subs, id)
			a.subMu.Unlock()
		})
	}
}

// Start begins capturing in locale. ctx bounds the whole capture, not just
// the call.
func (a *Adapter) Start(ctx context.Context, locale string) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil {
		return 0, domain.ErrAlreadyListening
	}

	runCtx, cancel := context.WithCancel(ctx)
	streamCfg := a.cfg.Streaming
	streamCfg.Language = locale

	stream, err := a.provider.StartStreaming(runCtx, streamCfg)
	if err != nil {
		cancel()
		return 0, fmt.Errorf("start transcription stream: %w", err)
	}

	audio, err := a.audio.Start(runCtx, a.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		cancel()
		return 0, fmt.Errorf("start microphone: %w", err)
	}

	a.lastID++
	r := &run{
		id:         a.lastID,
		locale:     locale,
		cancel:     cancel,
		audio:      audio,
		stream:     stream,
		aggregator: newTranscriptAggregator(),
		eventsDone: make(chan struct{}),
		audioDone:  make(chan struct{}),
	}
	a.current = r

	go a.consume(r)
	go a.pump(r)

	a.logger.Debug().Uint64("capture_id", r.id).Str("locale", locale).Msg("capture started")
	return r.id, nil
}

// Stop ends the microphone, lets the recognizer flush its last segments and
// returns once every event of the capture has been delivered.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := a.current
	if r == nil {
		return domain.ErrNotListening
	}
	a.current = nil
	r.stopping.Store(true)
	defer r.cancel()

	if err := r.audio.Stop(); err != nil {
		a.logger.Warn().Err(err).Uint64("capture_id", r.id).Msg("microphone did not stop cleanly")
	}

	if a.cfg.StreamingGrace > 0 && !r.broken.Load() {
		timer := time.NewTimer(a.cfg.StreamingGrace)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}

	_ = r.stream.CloseSend()
	streamErr := waitForStream(r.stream, a.cfg.StopTimeout)
	<-r.eventsDone
	<-r.audioDone

	a.logger.Debug().Uint64("capture_id", r.id).Msg("capture stopped")
	if streamErr != nil {
		return fmt.Errorf("finalize transcription stream: %w", streamErr)
	}
	return nil
}

// Destroy releases the active capture without waiting for pending segments.
func (a *Adapter) Destroy(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := a.current
	if r == nil {
		return nil
	}
	a.current = nil
	r.stopping.Store(true)
	r.cancel()

	_ = r.audio.Stop()
	_ = r.stream.Close()
	<-r.eventsDone
	<-r.audioDone

	a.logger.Debug().Uint64("capture_id", r.id).Msg("capture destroyed")
	return nil
}

// Active reports whether a capture is running.
func (a *Adapter) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current != nil
}

func (a *Adapter) consume(r *run) {
	defer close(r.eventsDone)

	for event := range r.stream.Events() {
		if !r.aggregator.Add(event) {
			continue
		}
		a.publish(domain.CaptureEvent{
			CaptureID: r.id,
			Kind:      domain.CaptureEventTranscript,
			Text:      r.aggregator.Text(),
			Final:     event.Kind == domain.TranscriptKindFinal,
		})
	}

	if r.stopping.Load() {
		return
	}

	// The recognizer went away while the user was still speaking.
	r.broken.Store(true)
	err := r.stream.Close()
	if err == nil {
		err = errors.New("stream ended unexpectedly")
	}
	a.fail(r, fmt.Errorf("transcription stream: %w", err))
}

func (a *Adapter) pump(r *run) {
	defer close(r.audioDone)

	err := pumpAudio(r.audio, r.stream, a.cfg.ChunkSize)
	if err == nil || r.stopping.Load() || r.broken.Load() {
		return
	}
	a.fail(r, err)
}

func (a *Adapter) fail(r *run, err error) {
	r.failOnce.Do(func() {
		a.logger.Warn().Err(err).Uint64("capture_id", r.id).Msg("capture failed")
		a.publish(domain.CaptureEvent{CaptureID: r.id, Kind: domain.CaptureEventError, Err: err})
	})
}

func (a *Adapter) publish(event domain.CaptureEvent) {
	a.subMu.RLock()
	handlers := make([]func(domain.CaptureEvent), 0, len(a.subs))
	for _, handler := range a.subs {
		handlers = append(handlers, handler)
	}
	a.subMu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}
