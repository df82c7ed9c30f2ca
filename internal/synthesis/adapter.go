// Package synthesis speaks translated text: it renders audio with a
// SpeechRenderer and plays it with an AudioPlayer.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"parley/internal/domain"
	"parley/internal/ports"
)

// Adapter implements ports.Synthesizer with cancel-and-replace semantics: a
// new Speak cancels the playback in progress.
type Adapter struct {
	renderer ports.SpeechRenderer
	player   ports.AudioPlayer
	logger   zerolog.Logger

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelCauseFunc

	// one player process at a time
	playMu sync.Mutex
}

func NewAdapter(renderer ports.SpeechRenderer, player ports.AudioPlayer, logger zerolog.Logger) *Adapter {
	return &Adapter{renderer: renderer, player: player, logger: logger}
}

// Speak blocks until playback finishes. A call superseded by a newer Speak
// returns domain.ErrSpeechReplaced.
func (a *Adapter) Speak(ctx context.Context, text string, locale string) error {
	if strings.TrimSpace(text) == "" {
		return domain.ErrNothingToSpeak
	}

	ctx, cancel := context.WithCancelCause(ctx)
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel(domain.ErrSpeechReplaced)
	}
	a.seq++
	id := a.seq
	a.cancel = cancel
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		if a.seq == id {
			a.cancel = nil
		}
		a.mu.Unlock()
		cancel(nil)
	}()

	started := time.Now()
	audio, err := a.renderer.Render(ctx, text, locale)
	if err != nil {
		return outcome(ctx, fmt.Errorf("render speech: %w", err))
	}

	a.playMu.Lock()
	defer a.playMu.Unlock()
	if err := context.Cause(ctx); err != nil {
		return outcome(ctx, err)
	}
	if err := a.player.Play(ctx, audio); err != nil {
		return outcome(ctx, fmt.Errorf("play speech: %w", err))
	}

	a.logger.Debug().
		Str("locale", locale).
		Int("audio_bytes", len(audio.Data)).
		Dur("elapsed", time.Since(started)).
		Msg("speech finished")
	return nil
}

func outcome(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), domain.ErrSpeechReplaced) {
		return domain.ErrSpeechReplaced
	}
	return err
}
