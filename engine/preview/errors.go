package preview

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a preview failure so callers can pick recovery text
// and decide whether to retry.
type ErrorKind string

const (
	KindMissingFile     ErrorKind = "MissingFile"
	KindUnsupportedType ErrorKind = "UnsupportedType"
	KindEmptyFile       ErrorKind = "EmptyFile"
	KindDecodeFailure   ErrorKind = "DecodeFailure"
	KindInvalidPage     ErrorKind = "InvalidPage"
	KindRenderFailure   ErrorKind = "RenderFailure"
	// KindTimeout is reported when the per-request deadline expires.
	KindTimeout ErrorKind = "Timeout"
	// KindCanceled is reported when the caller abandons the request.
	KindCanceled ErrorKind = "Canceled"
	// KindUnavailable is used by remote callers when the renderer could not be reached.
	KindUnavailable ErrorKind = "Unavailable"
)

// Retryable reports whether a failure of this kind is worth an automatic retry
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindDecodeFailure, KindRenderFailure, KindTimeout, KindUnavailable:
		return true
	default:
		return false
	}
}

// Engine sentinels. Engines wrap these so the renderer can classify decode failures.
var (
	ErrPasswordProtected = errors.New("password protected documents not supported")
	ErrMalformedDocument = errors.New("malformed document")
)

// Error is the typed failure returned by the renderer
type Error struct {
	Kind    ErrorKind
	Message string
	// TotalPages is set for KindInvalidPage so the caller can clamp and retry.
	TotalPages int
	Err        error
}

func newError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the error is worth an automatic retry
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

// KindOf returns the kind of a preview error, or "" when err is not one
func KindOf(err error) ErrorKind {
	var previewErr *Error
	if errors.As(err, &previewErr) {
		return previewErr.Kind
	}
	return ""
}

// IsRetryable reports whether err should be retried automatically. Errors that
// did not come from the renderer are treated as transient unless they are
// context errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var previewErr *Error
	if errors.As(err, &previewErr) {
		return previewErr.Retryable()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// contextError converts a finished context into a typed failure
func contextError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, "preview request timed out", err)
	}
	return newError(KindCanceled, "preview request canceled", err)
}
