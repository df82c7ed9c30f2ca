package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	defaultStopGrace = 1200 * time.Millisecond
	pipeDrainDelay   = 500 * time.Millisecond
)

// process owns one media subprocess (ffmpeg or ffplay) and its exit status.
type process struct {
	cmd    *exec.Cmd
	stderr *lockedBuffer

	exited  chan struct{}
	exitErr error

	stopOnce sync.Once
	stopErr  error
}

func startProcess(cmd *exec.Cmd) (*process, error) {
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr
	cmd.WaitDelay = pipeDrainDelay
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}

	p := &process{cmd: cmd, stderr: stderr, exited: make(chan struct{})}
	go func() {
		p.exitErr = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

// exitedWithin reports whether the process ended before d elapsed.
func (p *process) exitedWithin(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-p.exited:
		return true
	case <-timer.C:
		return false
	}
}

// stop interrupts the process and kills it if it does not exit within grace.
// Exit statuses caused by the interrupt are not reported as errors.
func (p *process) stop(grace time.Duration) error {
	p.stopOnce.Do(func() {
		select {
		case <-p.exited:
		default:
			if p.cmd.Process != nil {
				_ = p.cmd.Process.Signal(os.Interrupt)
			}
			if !p.exitedWithin(grace) {
				if p.cmd.Process != nil {
					_ = p.cmd.Process.Kill()
				}
				<-p.exited
			}
		}
		p.stopErr = normalizeStopErr(p.exitErr)
		if p.stopErr != nil && p.stderr.Len() > 0 {
			p.stopErr = fmt.Errorf("%w: %s", p.stopErr, p.stderrText())
		}
	})
	return p.stopErr
}

func (p *process) stderrText() string {
	return strings.TrimSpace(p.stderr.String())
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// lockedBuffer guards stderr, which exec writes from its own goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

var _ io.Writer = (*lockedBuffer)(nil)

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *lockedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}
