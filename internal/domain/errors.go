package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyListening    = errors.New("speech capture is already listening")
	ErrNotListening        = errors.New("speech capture is not listening")
	ErrInvalidTransition   = errors.New("operation not permitted in the current state")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrNothingToSpeak      = errors.New("no translation to speak")
	ErrNothingToTranslate  = errors.New("no transcript to translate")
	ErrSessionClosed       = errors.New("translation session is closed")
	ErrSpeechReplaced      = errors.New("speech playback replaced by a newer request")
)

// TranslationFailure classifies why a translation call failed.
type TranslationFailure string

const (
	FailureNetwork         TranslationFailure = "network"
	FailureInvalidLanguage TranslationFailure = "invalid_language"
	FailureService         TranslationFailure = "service"
	FailureRateLimited     TranslationFailure = "rate_limited"
)

// TranslationError is returned by translation clients.
type TranslationError struct {
	Kind       TranslationFailure
	StatusCode int
	Message    string
	Err        error
}

func (e *TranslationError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("translation %s error (HTTP %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("translation %s error: %s", e.Kind, msg)
}

func (e *TranslationError) Unwrap() error { return e.Err }

// TranslationErrorCode maps a translation failure to the session error taxonomy.
// Errors that are not a *TranslationError are treated as service failures.
func TranslationErrorCode(err error) ErrorCode {
	var translationErr *TranslationError
	if !errors.As(err, &translationErr) {
		return ErrorCodeTranslationService
	}
	switch translationErr.Kind {
	case FailureNetwork:
		return ErrorCodeTranslationNetwork
	case FailureInvalidLanguage:
		return ErrorCodeTranslationInvalidLanguage
	case FailureRateLimited:
		return ErrorCodeTranslationRateLimited
	default:
		return ErrorCodeTranslationService
	}
}
