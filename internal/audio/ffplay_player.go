package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"parley/internal/ports"
)

// FFPlayPlayer plays rendered speech through ffplay without a window.
type FFPlayPlayer struct {
	command string
}

func NewFFPlayPlayer(command string) *FFPlayPlayer {
	if command == "" {
		command = "ffplay"
	}
	return &FFPlayPlayer{command: command}
}

// Play blocks until playback ends. Cancelling ctx stops playback and returns
// ctx.Err().
func (p *FFPlayPlayer) Play(ctx context.Context, audio ports.SpeechAudio) error {
	if len(audio.Data) == 0 {
		return errors.New("no audio to play")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cmd := exec.Command(p.command, playbackArgs(audio.Encoding)...)
	cmd.Stdin = bytes.NewReader(audio.Data)

	proc, err := startProcess(cmd)
	if err != nil {
		return err
	}

	select {
	case <-proc.exited:
		if proc.exitErr != nil {
			return fmt.Errorf("ffplay failed: %w: %s", proc.exitErr, proc.stderrText())
		}
		return nil
	case <-ctx.Done():
		_ = proc.stop(defaultStopGrace)
		return ctx.Err()
	}
}

func playbackArgs(encoding string) []string {
	args := []string{"-nodisp", "-autoexit", "-hide_banner", "-loglevel", "error"}
	switch encoding {
	case "mp3":
		args = append(args, "-f", "mp3")
	case "ogg_opus":
		args = append(args, "-f", "ogg")
	case "linear16":
		args = append(args, "-f", "wav")
	}
	return append(args, "-i", "pipe:0")
}
