package usecase

import (
	"context"
	"sync"

	"parley/internal/domain"
)

// sessionState is owned by the session event loop. Nothing outside the loop
// goroutine reads or writes it.
type sessionState struct {
	snapshot domain.Snapshot

	// attempt changes whenever a listening attempt ends, so late capture
	// results from the worker can be recognised and dropped.
	attempt        uint64
	captureID      uint64
	capturePending bool
	lastCaptureID  uint64
	early          []domain.CaptureEvent
	stopping       bool
	rollback       rollback

	requestID         uint64
	cancelTranslation context.CancelFunc

	speechID     uint64
	cancelSpeech context.CancelFunc
}

type rollback struct {
	transcript  string
	translation string
}

func (s *sessionState) clearContent() {
	s.snapshot.Transcript = ""
	s.snapshot.Interim = false
	s.snapshot.Translation = ""
	s.snapshot.Error = nil
	s.snapshot.SynthesisWarning = ""
}

// endCapture forgets the current capture and invalidates results still
// queued for it.
func (s *sessionState) endCapture() {
	s.attempt++
	s.captureID = 0
	s.capturePending = false
	s.stopping = false
	s.early = nil
}

func (s *sessionState) abandonTranslation() {
	s.requestID++
	if s.cancelTranslation != nil {
		s.cancelTranslation()
		s.cancelTranslation = nil
	}
}

func (s *sessionState) abandonSpeech() {
	s.speechID++
	if s.cancelSpeech != nil {
		s.cancelSpeech()
		s.cancelSpeech = nil
	}
}

func (s *sessionState) copySnapshot() domain.Snapshot {
	out := s.snapshot
	if s.snapshot.Error != nil {
		errCopy := *s.snapshot.Error
		out.Error = &errCopy
	}
	return out
}

// opQueue runs capture operations one at a time in submission order.
// Unlike a channel it never blocks the submitter.
type opQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ops    []func()
	closed bool
}

func newOpQueue() *opQueue {
	q := &opQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push reports false once the queue is closed.
func (q *opQueue) push(op func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.ops = append(q.ops, op)
	q.cond.Signal()
	return true
}

// close lets run return after the queued operations have finished.
func (q *opQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *opQueue) run(done chan<- struct{}) {
	defer close(done)
	for {
		q.mu.Lock()
		for len(q.ops) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.ops) == 0 {
			q.mu.Unlock()
			return
		}
		op := q.ops[0]
		q.ops[0] = nil
		q.ops = q.ops[1:]
		q.mu.Unlock()

		op()
	}
}

func (s *sessionState) dropEarly(captureID uint64) {
	kept := s.early[:0]
	for _, event := range s.early {
		if event.CaptureID != captureID {
			kept = append(kept, event)
		}
	}
	s.early = kept
}
