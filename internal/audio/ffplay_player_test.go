package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"parley/internal/ports"
)

func TestFFPlayPlayerPipesAudioToStdin(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "played.bin")
	script := writeScript(t, "play.sh", "#!/usr/bin/env bash\ncat > '"+out+"'\n")
	player := NewFFPlayPlayer(script)

	if err := player.Play(context.Background(), ports.SpeechAudio{Data: []byte("mp3-bytes"), Encoding: "mp3"}); err != nil {
		t.Fatalf("play failed: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != "mp3-bytes" {
		t.Fatalf("unexpected audio piped to player: %q", got)
	}
}

func TestFFPlayPlayerReportsFailure(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "play.sh", "#!/usr/bin/env bash\ncat >/dev/null\necho 'no audio device' 1>&2\nexit 3\n")
	player := NewFFPlayPlayer(script)

	err := player.Play(context.Background(), ports.SpeechAudio{Data: []byte("x")})
	if err == nil || !strings.Contains(err.Error(), "no audio device") {
		t.Fatalf("expected playback failure with stderr, got %v", err)
	}
}

func TestFFPlayPlayerCancelStopsPlayback(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "play.sh", "#!/usr/bin/env bash\ncat >/dev/null\nexec sleep 5\n")
	player := NewFFPlayPlayer(script)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	started := time.Now()
	err := player.Play(ctx, ports.SpeechAudio{Data: []byte("x")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(started) > 3*time.Second {
		t.Fatalf("cancel did not stop playback promptly")
	}
}

func TestFFPlayPlayerRejectsEmptyAudio(t *testing.T) {
	t.Parallel()

	if err := NewFFPlayPlayer("ffplay").Play(context.Background(), ports.SpeechAudio{}); err == nil {
		t.Fatalf("expected error for empty audio")
	}
}

func TestPlaybackArgs(t *testing.T) {
	t.Parallel()

	args := strings.Join(playbackArgs("mp3"), " ")
	if !strings.Contains(args, "-nodisp") || !strings.Contains(args, "-autoexit") {
		t.Fatalf("expected headless autoexit args: %s", args)
	}
	if !strings.Contains(args, "-f mp3 -i pipe:0") {
		t.Fatalf("expected mp3 format hint before input: %s", args)
	}
	if strings.Contains(strings.Join(playbackArgs(""), " "), "-f ") {
		t.Fatalf("unexpected format hint for unknown encoding")
	}
}
