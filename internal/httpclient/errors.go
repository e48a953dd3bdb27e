package httpclient

import (
	"errors"
	"fmt"
)

// Kind classifies a failed request.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindTimeout
	KindAuth
	KindStatus
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	case KindAuth:
		return "auth"
	case KindStatus:
		return "status"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is returned by Executor.Do for every failed request.
type Error struct {
	Kind       Kind
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindAuth:
		return fmt.Sprintf("%s %s: credential rejected", e.Method, e.URL)
	case KindTimeout:
		return fmt.Sprintf("%s %s: request timed out", e.Method, e.URL)
	case KindNotFound, KindStatus:
		return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of an executor error anywhere in err's chain,
// or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}
