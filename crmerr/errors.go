// ABOUTME: Closed error taxonomy for the CRM integration core
// ABOUTME: Classifies auth, registry, lookup, third-party and parse failures
package crmerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers. The set is closed; adapters must
// translate every outbound failure into one of these before returning.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindUnknownPlatform
	KindNotFound
	KindAmbiguousMatch
	KindThirdPartyAPI
	KindParse
)

// DefaultTTLMillis is the display duration hint attached to errors unless
// a constructor overrides it.
const DefaultTTLMillis = 3000

// Error is the structured failure value surfaced to callers. StatusCode
// and Body are populated for third-party API failures only.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Body       string
	TTLMillis  int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on kind when the target is another *Error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, TTLMillis: DefaultTTLMillis}
}

// Auth reports an expired or invalid credential.
func Auth(message string) *Error {
	return newError(KindAuth, message)
}

// UnknownPlatform reports an adapter registry miss.
func UnknownPlatform(platform string) *Error {
	return newError(KindUnknownPlatform, fmt.Sprintf("unknown platform %q", platform))
}

// NotFound reports an absent contact or log.
func NotFound(message string) *Error {
	return newError(KindNotFound, message)
}

// Ambiguous reports multiple contact candidates. It is not fatal; the
// caller surfaces the choice to the user.
func Ambiguous(message string) *Error {
	return newError(KindAmbiguousMatch, message)
}

// ThirdParty reports a non-success response from a CRM, carrying the
// status and raw body.
func ThirdParty(statusCode int, body string) *Error {
	e := newError(KindThirdPartyAPI, fmt.Sprintf("third-party API returned %d", statusCode))
	e.StatusCode = statusCode
	e.Body = body
	return e
}

// Parse reports a free-text body that does not match the expected grammar.
func Parse(message string) *Error {
	return newError(KindParse, message)
}

// Wrap attaches an underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// KindOf extracts the kind from any error in the chain. Unclassified
// errors report KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// TTLOf extracts the display duration hint, falling back to the default.
func TTLOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.TTLMillis > 0 {
		return e.TTLMillis
	}
	return DefaultTTLMillis
}

// HTTPStatus maps an error kind to the front door's response code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuth:
		return http.StatusUnauthorized
	case KindUnknownPlatform:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAmbiguousMatch:
		return http.StatusOK
	case KindThirdPartyAPI, KindParse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
