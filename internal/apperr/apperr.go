package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a task failure.
type Kind string

const (
	KindBackendUnavailable  Kind = "backend_unavailable"
	KindDownloadRequired    Kind = "download_required"
	KindInputTooLong        Kind = "input_too_long"
	KindEmptyInput          Kind = "empty_input"
	KindMalformedQuiz       Kind = "malformed_quiz"
	KindSessionInvalidated  Kind = "session_invalidated"
	KindBackendError        Kind = "backend_error"
	KindUnsupportedLanguage Kind = "unsupported_language"
	KindImagesUnsupported   Kind = "images_unsupported"
)

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrBackendUnavailable  = &Error{Kind: KindBackendUnavailable, Message: "inference backend unavailable"}
	ErrDownloadRequired    = &Error{Kind: KindDownloadRequired, Message: "model download required"}
	ErrInputTooLong        = &Error{Kind: KindInputTooLong, Message: "input too long"}
	ErrEmptyInput          = &Error{Kind: KindEmptyInput, Message: "input is empty"}
	ErrMalformedQuiz       = &Error{Kind: KindMalformedQuiz, Message: "malformed quiz"}
	ErrSessionInvalidated  = &Error{Kind: KindSessionInvalidated, Message: "session invalidated"}
	ErrBackendError        = &Error{Kind: KindBackendError, Message: "backend error"}
	ErrUnsupportedLanguage = &Error{Kind: KindUnsupportedLanguage, Message: "unsupported language"}
	ErrImagesUnsupported   = &Error{Kind: KindImagesUnsupported, Message: "images unsupported"}
)

// Error is the typed failure returned by every task operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so callers can compare against the package sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind to an underlying error. The cause's message is kept verbatim.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Backend passes a backend fault through without reinterpreting it.
// Errors that already carry a kind are returned unchanged.
func Backend(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindBackendError, Message: "backend error", Err: err}
}

// KindOf reports the kind of err, or KindBackendError for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindBackendError
}

// Status maps a failure to the short status string shown to users.
func Status(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindBackendUnavailable:
		return "AI not available. Check the inference backend."
	case KindDownloadRequired:
		return "Downloading model, please wait..."
	case KindInputTooLong:
		return "Text too long, please shorten and try again."
	case KindEmptyInput:
		return "Please enter some text first."
	case KindMalformedQuiz:
		return "Could not read the generated quiz. Try generating it again."
	case KindSessionInvalidated:
		return "The AI session was closed before the answer finished."
	case KindUnsupportedLanguage:
		return "This language pair is not supported."
	case KindImagesUnsupported:
		return "This model cannot read images."
	default:
		var e *Error
		if errors.As(err, &e) && e.Err != nil {
			return "Error: " + e.Err.Error()
		}
		return "Error: " + err.Error()
	}
}
