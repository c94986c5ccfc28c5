package session

import (
	"context"
	"errors"

	"github.com/MrWong99/intervoxa/internal/interview"
	"github.com/MrWong99/intervoxa/internal/store"
)

// Wire error codes. Stable: clients dispatch on them.
const (
	CodeInvalidMessage         = "INVALID_MESSAGE"
	CodeInvalidState           = "INVALID_STATE"
	CodeMaxFollowupsExceeded   = "MAX_FOLLOWUPS_EXCEEDED"
	CodeAudioFormatUnsupported = "AUDIO_FORMAT_UNSUPPORTED"
	CodeSTTFailed              = "STT_FAILED"
	CodeTTSFailed              = "TTS_FAILED"
	CodeTimeout                = "TIMEOUT"
	CodeInternalError          = "INTERNAL_ERROR"
	CodeInterviewNotFound      = "INTERVIEW_NOT_FOUND"
)

// FallbackTextMode tells the client it may resubmit the answer as text when
// the speech path is unavailable.
const FallbackTextMode = "text_mode"

// Error is a session-level error carrying its wire representation. Every
// error the orchestrator surfaces to the client is one of these; raw adapter
// or storage errors never reach the wire.
type Error struct {
	Code           string
	Message        string
	Recoverable    bool
	RetryAvailable bool
	FallbackOption string

	// cause is the wrapped internal error, for logs only.
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Code + ": " + e.Message + ": " + e.cause.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Frame returns the wire form. The cause is deliberately absent.
func (e *Error) Frame() *ErrorFrame {
	return &ErrorFrame{
		Type:           TypeError,
		Code:           e.Code,
		Message:        e.Message,
		Recoverable:    e.Recoverable,
		RetryAvailable: e.RetryAvailable,
		FallbackOption: e.FallbackOption,
	}
}

// invalidMessage builds a validation error: non-recoverable for this frame,
// no state change, the session continues.
func invalidMessage(msg string, cause error) *Error {
	return &Error{Code: CodeInvalidMessage, Message: msg, cause: cause}
}

// invalidState reports an operation incompatible with the aggregate status.
// The session survives the rejected frame, so the error is recoverable; the
// same frame will keep failing, so no retry is offered.
func invalidState(msg string, cause error) *Error {
	return &Error{Code: CodeInvalidState, Message: msg, Recoverable: true, cause: cause}
}

// audioFormatUnsupported covers both unknown formats and chunk order
// violations, per the protocol's single code for audio intake problems.
func audioFormatUnsupported(msg string) *Error {
	return &Error{Code: CodeAudioFormatUnsupported, Message: msg}
}

// sttFailed reports a failed transcription. The aggregate is unchanged, the
// client may retry the audio or fall back to text.
func sttFailed(cause error) *Error {
	return &Error{
		Code:           CodeSTTFailed,
		Message:        "speech transcription failed",
		Recoverable:    true,
		RetryAvailable: true,
		FallbackOption: FallbackTextMode,
		cause:          cause,
	}
}

// ttsFailed reports failed synthesis. The question is still delivered as
// text, so the turn proceeds.
func ttsFailed(cause error) *Error {
	return &Error{
		Code:           CodeTTSFailed,
		Message:        "speech synthesis failed, question delivered as text",
		Recoverable:    true,
		RetryAvailable: true,
		FallbackOption: FallbackTextMode,
		cause:          cause,
	}
}

// Classify maps any internal error onto its wire form. Errors that are
// already a [*Error] pass through unchanged.
func Classify(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}

	var te *interview.TransitionError
	switch {
	case errors.As(err, &te):
		return invalidState("operation not allowed in status "+string(te.From), err)
	case errors.Is(err, interview.ErrMaxFollowups):
		return &Error{Code: CodeMaxFollowupsExceeded, Message: "follow-up limit reached for this question", cause: err}
	case errors.Is(err, store.ErrNotFound):
		return &Error{Code: CodeInterviewNotFound, Message: "interview not found", cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: CodeTimeout, Message: "operation timed out", Recoverable: true, RetryAvailable: true, cause: err}
	}
	return &Error{Code: CodeInternalError, Message: "internal error", Recoverable: true, RetryAvailable: true, cause: err}
}
