package capture

import (
	"testing"

	"parley/internal/domain"
)

func TestTranscriptAggregatorInterimReplacedByFinal(t *testing.T) {
	t.Parallel()

	agg := newTranscriptAggregator()
	if !agg.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "hel"}) {
		t.Fatalf("expected first partial to change text")
	}
	agg.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "hello world"})
	agg.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "how"})

	if got := agg.Text(); got != "hello world how" {
		t.Fatalf("unexpected transcript: %q", got)
	}

	agg.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "how are you"})
	if got := agg.Text(); got != "hello world how are you" {
		t.Fatalf("unexpected transcript after final: %q", got)
	}
}

func TestTranscriptAggregatorIgnoresEmptyAndRepeats(t *testing.T) {
	t.Parallel()

	agg := newTranscriptAggregator()
	if agg.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "   "}) {
		t.Fatalf("expected blank event to be ignored")
	}
	if got := agg.Text(); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}

	agg.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "hello"})
	if agg.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "hello "}) {
		t.Fatalf("expected identical partial to report no change")
	}
}
