package capture

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"parley/internal/domain"
	"parley/internal/ports"
)

func TestAdapterStartStopDeliversFlushedTranscript(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	stream.flush = []domain.TranscriptEvent{{Kind: domain.TranscriptKindFinal, Text: "hello there"}}
	provider := &fakeProvider{streams: []*fakeStream{stream}}
	adapter := newTestAdapter(&fakeAudioCapture{}, provider)

	recorder := &eventRecorder{}
	defer adapter.Subscribe(recorder.record)()

	id, err := adapter.Start(context.Background(), "hi-IN")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected first capture id 1, got %d", id)
	}
	if got := provider.lastConfig().Language; got != "hi-IN" {
		t.Fatalf("expected locale on stream config, got %q", got)
	}

	stream.emit(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "hello"})
	waitFor(t, func() bool { return len(recorder.events()) == 1 })

	if err := adapter.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	events := recorder.events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events after stop, got %+v", events)
	}
	if events[0].Text != "hello" || events[0].Final || events[0].CaptureID != id {
		t.Fatalf("unexpected partial event: %+v", events[0])
	}
	if events[1].Text != "hello there" || !events[1].Final {
		t.Fatalf("unexpected final event: %+v", events[1])
	}
	if adapter.Active() {
		t.Fatalf("expected no active capture after stop")
	}
}

func TestAdapterRejectsSecondStart(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(&fakeAudioCapture{}, &fakeProvider{streams: []*fakeStream{newFakeStream(), newFakeStream()}})
	if _, err := adapter.Start(context.Background(), "en-US"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer func() { _ = adapter.Destroy(context.Background()) }()

	if _, err := adapter.Start(context.Background(), "en-US"); !errors.Is(err, domain.ErrAlreadyListening) {
		t.Fatalf("expected ErrAlreadyListening, got %v", err)
	}
}

func TestAdapterStopWithoutCapture(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(&fakeAudioCapture{}, &fakeProvider{})
	if err := adapter.Stop(context.Background()); !errors.Is(err, domain.ErrNotListening) {
		t.Fatalf("expected ErrNotListening, got %v", err)
	}
	if err := adapter.Destroy(context.Background()); err != nil {
		t.Fatalf("destroy without capture should be a no-op, got %v", err)
	}
}

func TestAdapterCaptureIDsIncrease(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(&fakeAudioCapture{}, &fakeProvider{streams: []*fakeStream{newFakeStream(), newFakeStream()}})

	first, err := adapter.Start(context.Background(), "en-US")
	if err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := adapter.Stop(context.Background()); err != nil {
		t.Fatalf("first stop failed: %v", err)
	}
	second, err := adapter.Start(context.Background(), "en-US")
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	defer func() { _ = adapter.Destroy(context.Background()) }()

	if second <= first {
		t.Fatalf("expected increasing capture ids, got %d then %d", first, second)
	}
}

func TestAdapterReportsDroppedStream(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	adapter := newTestAdapter(&fakeAudioCapture{}, &fakeProvider{streams: []*fakeStream{stream}})
	recorder := &eventRecorder{}
	defer adapter.Subscribe(recorder.record)()

	id, err := adapter.Start(context.Background(), "en-US")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	stream.drop(errors.New("socket reset"))
	waitFor(t, func() bool { return len(recorder.events()) == 1 })

	event := recorder.events()[0]
	if event.Kind != domain.CaptureEventError || event.CaptureID != id {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Err == nil || !strings.Contains(event.Err.Error(), "socket reset") {
		t.Fatalf("expected provider error in event, got %v", event.Err)
	}

	if err := adapter.Destroy(context.Background()); err != nil {
		t.Fatalf("destroy failed: %v", err)
	}
	if got := len(recorder.events()); got != 1 {
		t.Fatalf("expected a single error event, got %d", got)
	}
}

func TestAdapterStartFailures(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(&fakeAudioCapture{}, &fakeProvider{err: errors.New("401 unauthorized")})
	_, err := adapter.Start(context.Background(), "en-US")
	if err == nil || !strings.Contains(err.Error(), "start transcription stream") {
		t.Fatalf("expected stream error, got %v", err)
	}

	stream := newFakeStream()
	adapter = newTestAdapter(&fakeAudioCapture{err: errors.New("no device")}, &fakeProvider{streams: []*fakeStream{stream}})
	_, err = adapter.Start(context.Background(), "en-US")
	if err == nil || !strings.Contains(err.Error(), "start microphone") {
		t.Fatalf("expected microphone error, got %v", err)
	}
	if !stream.isClosed() {
		t.Fatalf("expected stream to be closed after microphone failure")
	}
	if adapter.Active() {
		t.Fatalf("expected no active capture after failed start")
	}
}

func TestAdapterUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	adapter := newTestAdapter(&fakeAudioCapture{}, &fakeProvider{streams: []*fakeStream{stream}})
	kept := &eventRecorder{}
	removed := &eventRecorder{}
	defer adapter.Subscribe(kept.record)()
	unsubscribe := adapter.Subscribe(removed.record)
	unsubscribe()
	unsubscribe()

	if _, err := adapter.Start(context.Background(), "en-US"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	stream.emit(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "one"})
	waitFor(t, func() bool { return len(kept.events()) == 1 })
	_ = adapter.Destroy(context.Background())

	if got := len(removed.events()); got != 0 {
		t.Fatalf("expected unsubscribed handler to see nothing, got %d events", got)
	}
}

func TestAdapterDestroySkipsFlush(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	stream.flush = []domain.TranscriptEvent{{Kind: domain.TranscriptKindFinal, Text: "late"}}
	audio := &fakeAudioCapture{}
	adapter := newTestAdapter(audio, &fakeProvider{streams: []*fakeStream{stream}})
	recorder := &eventRecorder{}
	defer adapter.Subscribe(recorder.record)()

	if _, err := adapter.Start(context.Background(), "en-US"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := adapter.Destroy(context.Background()); err != nil {
		t.Fatalf("destroy failed: %v", err)
	}
	if got := len(recorder.events()); got != 0 {
		t.Fatalf("expected no events after destroy, got %+v", recorder.events())
	}
	if audio.session().stopCalls() == 0 {
		t.Fatalf("expected microphone to be stopped")
	}
}

func newTestAdapter(audio ports.AudioCapture, provider ports.TranscriptionProvider) *Adapter {
	return NewAdapter(audio, provider, Config{StopTimeout: time.Second}, zerolog.Nop())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

type eventRecorder struct {
	mu   sync.Mutex
	list []domain.CaptureEvent
}

func (r *eventRecorder) record(event domain.CaptureEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, event)
}

func (r *eventRecorder) events() []domain.CaptureEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.CaptureEvent(nil), r.list...)
}

type fakeAudioCapture struct {
	mu   sync.Mutex
	err  error
	last *fakeAudioSession
}

func (c *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	c.last = &fakeAudioSession{hold: true}
	return c.last, nil
}

func (c *fakeAudioCapture) session() *fakeAudioSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// fakeAudioSession returns its chunks and then EOF. With hold set it blocks
// after the chunks until Stop is called.
type fakeAudioSession struct {
	mu      sync.Mutex
	chunks  [][]byte
	hold    bool
	stopped chan struct{}
	stops   int
}

func (s *fakeAudioSession) stoppedCh() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped == nil {
		s.stopped = make(chan struct{})
	}
	return s.stopped
}

func (s *fakeAudioSession) Read(p []byte) (int, error) {
	s.mu.Lock()
	if len(s.chunks) > 0 {
		chunk := s.chunks[0]
		s.chunks = s.chunks[1:]
		s.mu.Unlock()
		return copy(p, chunk), nil
	}
	hold := s.hold
	s.mu.Unlock()

	if hold {
		<-s.stoppedCh()
	}
	return 0, io.EOF
}

func (s *fakeAudioSession) Close() error { return nil }

func (s *fakeAudioSession) Stop() error {
	stopped := s.stoppedCh()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	if s.stops == 1 {
		close(stopped)
	}
	return nil
}

func (s *fakeAudioSession) stopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

type fakeProvider struct {
	mu      sync.Mutex
	streams []*fakeStream
	configs []ports.StreamingConfig
	err     error
}

func (p *fakeProvider) StartStreaming(_ context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	if len(p.streams) == 0 {
		return nil, errors.New("no stream configured")
	}
	p.configs = append(p.configs, cfg)
	stream := p.streams[0]
	p.streams = p.streams[1:]
	return stream, nil
}

func (p *fakeProvider) lastConfig() ports.StreamingConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.configs) == 0 {
		return ports.StreamingConfig{}
	}
	return p.configs[len(p.configs)-1]
}

// fakeStream emits flush on CloseSend and then ends, like a recognizer
// answering CloseStream.
type fakeStream struct {
	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	waitErr error
	flush   []domain.TranscriptEvent
	closed  bool

	events    chan domain.TranscriptEvent
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		events: make(chan domain.TranscriptEvent, 16),
		done:   make(chan struct{}),
	}
}

func (s *fakeStream) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, append([]byte(nil), chunk...))
	return nil
}

func (s *fakeStream) sentChunks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, chunk := range s.sent {
		out = append(out, string(chunk))
	}
	return out
}

func (s *fakeStream) emit(event domain.TranscriptEvent) {
	s.events <- event
}

func (s *fakeStream) CloseSend() error {
	s.finish(s.flush, nil)
	return nil
}

func (s *fakeStream) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *fakeStream) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitErr
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.finish(nil, nil)
	return s.Wait()
}

// drop ends the stream as if the connection had failed.
func (s *fakeStream) drop(err error) {
	s.finish(nil, err)
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeStream) finish(trailing []domain.TranscriptEvent, err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.waitErr = err
		s.mu.Unlock()
		for _, event := range trailing {
			s.events <- event
		}
		close(s.events)
		close(s.done)
	})
}
