package entity

import (
	"errors"
	"fmt"
)

// ErrPersistenceConflict signals a unique constraint race. Callers resolve it by lookup.
var ErrPersistenceConflict = errors.New("persistence conflict")

// ValidationError rejects a malformed crawl request before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid search criteria: " + e.Message
}

// ProxyExhaustedError means no usable egress is left.
type ProxyExhaustedError struct {
	Reason string
}

func (e *ProxyExhaustedError) Error() string {
	if e.Reason == "" {
		return "no proxies available"
	}
	return "no proxies available: " + e.Reason
}

type FetchKind int

const (
	// FetchTransient is a transport level failure: refused connection, proxy error, timeout.
	FetchTransient FetchKind = iota
	// FetchCaptcha is a bot challenge or a status >= 400.
	FetchCaptcha
	// FetchExhausted is terminal: every attempt failed.
	FetchExhausted
)

func (k FetchKind) String() string {
	switch k {
	case FetchTransient:
		return "network"
	case FetchCaptcha:
		return "captcha"
	case FetchExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// FetchError reports a failed outbound call. Exhausted errors carry the kind of the
// last failed attempt in Cause.
type FetchError struct {
	Kind     FetchKind
	Cause    FetchKind
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchExhausted {
		msg := fmt.Sprintf("fetch %s: %s-exhausted after %d attempts", e.URL, e.Cause, e.Attempts)
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
		return msg
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Exhausted reports whether the retry budget was spent.
func (e *FetchError) Exhausted() bool { return e.Kind == FetchExhausted }

// ParseError is recorded per candidate and never ends a crawl.
type ParseError struct {
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	if e.URL == "" {
		return "parse: " + e.Reason
	}
	return fmt.Sprintf("parse %s: %s", e.URL, e.Reason)
}

// NewFieldsNotFound is the ParseError raised when an id or price is missing.
func NewFieldsNotFound(url string) *ParseError {
	return &ParseError{URL: url, Reason: "fields not found"}
}
