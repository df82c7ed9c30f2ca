package domain

import "time"

// SessionStatus models the listen → translate → speak lifecycle.
type SessionStatus string

const (
	StatusIdle        SessionStatus = "idle"
	StatusListening   SessionStatus = "listening"
	StatusTranscribed SessionStatus = "transcribed"
	StatusTranslating SessionStatus = "translating"
	StatusDone        SessionStatus = "done"
	StatusSpeaking    SessionStatus = "speaking"
	StatusError       SessionStatus = "error"
)

// SessionReason provides a structured reason for state transitions.
type SessionReason string

const (
	ReasonSessionReady       SessionReason = "session_ready"
	ReasonListeningStarted   SessionReason = "listening_started"
	ReasonTranscriptUpdated  SessionReason = "transcript_updated"
	ReasonNoTranscript       SessionReason = "no_transcript"
	ReasonTranscribed        SessionReason = "transcribed"
	ReasonTranslating        SessionReason = "translating"
	ReasonTranslationReady   SessionReason = "translation_ready"
	ReasonTranslationFailed  SessionReason = "translation_failed"
	ReasonCaptureUnavailable SessionReason = "capture_unavailable"
	ReasonCaptureFailed      SessionReason = "capture_failed"
	ReasonSpeaking           SessionReason = "speaking"
	ReasonSpeechFinished     SessionReason = "speech_finished"
	ReasonSpeechFailed       SessionReason = "speech_failed"
	ReasonLanguagesChanged   SessionReason = "languages_changed"
	ReasonSessionReset       SessionReason = "session_reset"
	ReasonSessionClosed      SessionReason = "session_closed"
)

// ErrorCode identifies non-fatal and fatal session errors.
type ErrorCode string

const (
	ErrorCodeStartup                    ErrorCode = "startup"
	ErrorCodeCaptureUnavailable         ErrorCode = "capture_unavailable"
	ErrorCodeCaptureError               ErrorCode = "capture_error"
	ErrorCodeTranslationNetwork         ErrorCode = "translation_network"
	ErrorCodeTranslationService         ErrorCode = "translation_service"
	ErrorCodeTranslationInvalidLanguage ErrorCode = "translation_invalid_language"
	ErrorCodeTranslationRateLimited     ErrorCode = "translation_rate_limited"
	ErrorCodeSynthesis                  ErrorCode = "synthesis"
)

// IsTranslation reports whether the code belongs to a failed translation call.
func (c ErrorCode) IsTranslation() bool {
	switch c {
	case ErrorCodeTranslationNetwork,
		ErrorCodeTranslationService,
		ErrorCodeTranslationInvalidLanguage,
		ErrorCodeTranslationRateLimited:
		return true
	default:
		return false
	}
}

// SessionError is the last failure attached to a session snapshot.
type SessionError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// LanguagePair is the active source/target combination.
type LanguagePair struct {
	Source LanguageCode `json:"source"`
	Target LanguageCode `json:"target"`
}

// Swapped returns the pair with source and target exchanged.
func (p LanguagePair) Swapped() LanguagePair {
	return LanguagePair{Source: p.Target, Target: p.Source}
}

// Snapshot is a read-only copy of the session state handed to the UI.
type Snapshot struct {
	Status           SessionStatus `json:"status"`
	Transcript       string        `json:"transcript"`
	Interim          bool          `json:"interim"` // transcript tail may still be revised
	Translation      string        `json:"translation"`
	Languages        LanguagePair  `json:"languages"`
	Error            *SessionError `json:"error,omitempty"`
	SynthesisWarning string        `json:"synthesisWarning,omitempty"`
}

// Busy reports whether an operation is in flight.
func (s Snapshot) Busy() bool {
	switch s.Status {
	case StatusListening, StatusTranscribed, StatusTranslating, StatusSpeaking:
		return true
	default:
		return false
	}
}

// TranscriptKind identifies whether a recognizer event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental recognizer output from a provider.
type TranscriptEvent struct {
	Kind TranscriptKind `json:"kind"`
	Text string         `json:"text"`
}

// CaptureEventKind distinguishes transcript updates from capture failures.
type CaptureEventKind string

const (
	CaptureEventTranscript CaptureEventKind = "transcript"
	CaptureEventError      CaptureEventKind = "error"
)

// CaptureEvent is emitted by the speech capture adapter. Text holds the whole
// utterance aggregated so far, not just the latest segment.
type CaptureEvent struct {
	CaptureID uint64
	Kind      CaptureEventKind
	Text      string
	Final     bool
	Err       error
}

// TranslationRequest is built from a finalized transcript.
type TranslationRequest struct {
	Text   string
	Source LanguageCode
	Target LanguageCode
}

// TranslationResult is a successful translation.
type TranslationResult struct {
	Text     string
	Provider string
	Latency  time.Duration
}
