package capture

import (
	"errors"
	"fmt"
	"io"
	"time"

	"parley/internal/ports"
)

const minChunkSize = 256

// pumpAudio copies microphone PCM into the recognizer stream until the
// microphone reaches EOF. Any other read or send failure is returned.
func pumpAudio(audio ports.AudioSession, stream ports.StreamingSession, chunkSize int) error {
	if chunkSize < minChunkSize {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				return fmt.Errorf("failed to stream audio: %w", sendErr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("microphone read failed: %w", err)
		}
	}
}

// waitForStream waits for the recognizer to flush, forcing it closed after
// timeout.
func waitForStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		_ = session.Close()
		return <-done
	}
}
