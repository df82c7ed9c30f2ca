package capture

import (
	"strings"

	"parley/internal/domain"
)

// transcriptAggregator folds recognizer segments into one utterance. Final
// segments accumulate; the latest interim segment is appended until a final
// segment replaces it.
type transcriptAggregator struct {
	finals  []string
	interim string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

// Add applies one event and reports whether the utterance text changed.
func (a *transcriptAggregator) Add(event domain.TranscriptEvent) bool {
	text := strings.TrimSpace(event.Text)
	if text == "" {
		return false
	}

	before := a.Text()
	if event.Kind == domain.TranscriptKindFinal {
		a.finals = append(a.finals, text)
		a.interim = ""
	} else {
		a.interim = text
	}
	return a.Text() != before
}

// Text returns the utterance recognized so far.
func (a *transcriptAggregator) Text() string {
	parts := a.finals
	if a.interim != "" {
		parts = append(parts[:len(parts):len(parts)], a.interim)
	}
	return strings.Join(parts, " ")
}
