package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeInvalidArgument   ErrorCode = "INVALID_ARGUMENT"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeUnavailable       ErrorCode = "UNAVAILABLE"
	CodeFailedPrecond     ErrorCode = "FAILED_PRECONDITION"
	CodeUnauthenticated   ErrorCode = "UNAUTHENTICATED"
	CodeInternal          ErrorCode = "INTERNAL"
	CodeCanceled          ErrorCode = "CANCELED"
	CodeDeadlineExceeded  ErrorCode = "DEADLINE_EXCEEDED"
	CodeResourceExhausted ErrorCode = "RESOURCE_EXHAUSTED"
)

var (
	// ErrToolNotFound reports a dispatch targeting a tool absent from the
	// active catalog snapshot.
	ErrToolNotFound = errors.New("tool not found")

	// ErrServerNotFound reports a reference to a server name that is not
	// configured.
	ErrServerNotFound = errors.New("server not found")

	// ErrIterationLimit reports a chat that exceeded the configured
	// maximum number of model round trips without producing a terminal
	// assistant message.
	ErrIterationLimit = errors.New("iteration limit exceeded")

	// ErrCatalogUnavailable reports a catalog refresh failure with no
	// previously fetched snapshot to fall back on.
	ErrCatalogUnavailable = errors.New("tool catalog unavailable")

	// ErrModelNotFound reports a chat request naming an unconfigured model.
	ErrModelNotFound = errors.New("model not found")
)

type Error struct {
	Code      ErrorCode
	Op        string
	Message   string
	Cause     error
	Retryable bool
	Meta      map[string]string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Code)
		}
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func E(code ErrorCode, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Code:    code,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

func Wrap(code ErrorCode, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Op != "" || op == "" {
			return existing
		}
		return &Error{
			Code:      existing.Code,
			Op:        op,
			Message:   existing.Message,
			Cause:     existing.Cause,
			Retryable: existing.Retryable,
			Meta:      existing.Meta,
		}
	}
	return E(code, op, "", err)
}

func CodeFrom(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Code != "" {
		return domainErr.Code, true
	}
	switch {
	case errors.Is(err, ErrToolNotFound), errors.Is(err, ErrServerNotFound), errors.Is(err, ErrModelNotFound):
		return CodeNotFound, true
	case errors.Is(err, ErrIterationLimit):
		return CodeResourceExhausted, true
	case errors.Is(err, ErrCatalogUnavailable):
		return CodeUnavailable, true
	default:
		return "", false
	}
}
