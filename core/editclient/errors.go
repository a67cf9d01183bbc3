package editclient

import (
	"errors"
	"fmt"

	"swap-orchestrator/core/models"
)

// Kind classifies an edit failure for retry decisions
type Kind string

const (
	// KindRemoteUnavailable covers network failures and 5xx-class remote
	// errors; worth retrying
	KindRemoteUnavailable Kind = "remote_unavailable"
	// KindInvalidRequest covers 4xx-class rejections of the caller's input;
	// retrying cannot help
	KindInvalidRequest Kind = "invalid_request"
	// KindRemoteRejected covers content/policy moderation by the remote
	// capability; retrying cannot help
	KindRemoteRejected Kind = "remote_rejected"
	// KindTimeout covers attempts that exceeded the per-attempt wall clock;
	// retried up to the bound, then surfaced as remote_unavailable
	KindTimeout Kind = "timeout"
)

// Error is a classified edit failure
type Error struct {
	Kind    Kind
	Message string
	Err     error
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

// Retryable reports whether another attempt could succeed
func (e *Error) Retryable() bool {
	return e.Kind == KindRemoteUnavailable || e.Kind == KindTimeout
}

// KindOf extracts the failure kind from an error chain
func KindOf(err error) Kind {
	var editErr *Error
	if errors.As(err, &editErr) {
		return editErr.Kind
	}
	return KindRemoteUnavailable
}

// FailureKind maps an edit failure kind to the session failure taxonomy
func (k Kind) FailureKind() models.FailureKind {
	switch k {
	case KindInvalidRequest:
		return models.FailureKindInvalidRequest
	case KindRemoteRejected:
		return models.FailureKindRemoteRejected
	case KindTimeout:
		return models.FailureKindTimeout
	default:
		return models.FailureKindRemoteUnavailable
	}
}

func remoteUnavailable(msg string, err error) *Error {
	return &Error{Kind: KindRemoteUnavailable, Message: msg, Err: err}
}

func invalidRequest(msg string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: msg}
}

func remoteRejected(msg string) *Error {
	return &Error{Kind: KindRemoteRejected, Message: msg}
}

func timeoutErr(msg string, err error) *Error {
	return &Error{Kind: KindTimeout, Message: msg, Err: err}
}
