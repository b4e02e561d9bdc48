package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by who has to act on it.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindConfiguration    Kind = "configuration"
	KindUpstreamFetch    Kind = "upstream_fetch"
	KindUpstreamTransfer Kind = "upstream_transfer"
	KindNotFound         Kind = "not_found"
	KindStore            Kind = "store"
	KindInternal         Kind = "internal"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrConfiguration    = &Error{Kind: KindConfiguration}
	ErrUpstreamFetch    = &Error{Kind: KindUpstreamFetch}
	ErrUpstreamTransfer = &Error{Kind: KindUpstreamTransfer}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrStore            = &Error{Kind: KindStore}
)

// Error is the normalized error shape shared by every layer.
// Message is safe to show to callers and to persist as an upload's error detail.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err == nil:
		return string(e.Kind)
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return e.Err.Error()
	default:
		return e.Message + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a bare sentinel (kind only) against any error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Message != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Configuration(format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func UpstreamFetch(msg string, err error) error {
	return &Error{Kind: KindUpstreamFetch, Message: msg, Err: err}
}

func UpstreamTransfer(msg string, err error) error {
	return &Error{Kind: KindUpstreamTransfer, Message: msg, Err: err}
}

func Store(msg string, err error) error {
	return &Error{Kind: KindStore, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the caller-safe message of the first *Error in err's chain.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return ""
}
