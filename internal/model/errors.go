package model

import (
	"errors"
	"fmt"
)

// ConfigError reports an invalid setting. It is fatal at startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ReadErrorKind classifies source read failures.
type ReadErrorKind int

const (
	Disconnected ReadErrorKind = iota + 1
	Timeout
	MalformedData
)

func (k ReadErrorKind) String() string {
	switch k {
	case Disconnected:
		return "disconnected"
	case Timeout:
		return "timeout"
	case MalformedData:
		return "malformed data"
	default:
		return "unknown"
	}
}

// ReadError is returned by sample sources. The pipeline treats every kind the
// same way; the kind is kept for logs and the API.
type ReadError struct {
	Kind ReadErrorKind
	Err  error
}

// Sentinels for errors.Is matching by kind.
var (
	ErrDisconnected  = &ReadError{Kind: Disconnected}
	ErrTimeout       = &ReadError{Kind: Timeout}
	ErrMalformedData = &ReadError{Kind: MalformedData}
)

func (e *ReadError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Is matches any ReadError of the same kind.
func (e *ReadError) Is(target error) bool {
	var re *ReadError
	if !errors.As(target, &re) {
		return false
	}
	return re.Kind == e.Kind
}

// NewReadError wraps err with the given kind.
func NewReadError(kind ReadErrorKind, err error) *ReadError {
	return &ReadError{Kind: kind, Err: err}
}

// ReadErrorKindOf returns the kind of err, treating non-ReadErrors as
// Disconnected.
func ReadErrorKindOf(err error) ReadErrorKind {
	var re *ReadError
	if errors.As(err, &re) {
		return re.Kind
	}
	return Disconnected
}
