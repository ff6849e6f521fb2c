package avatarapi

import (
	"errors"
	"fmt"
)

// Kind classifies why a call failed.
type Kind int

const (
	// KindTransport covers everything where no usable response arrived: dial and
	// timeout errors as well as non-2xx statuses.
	KindTransport Kind = iota + 1
	// KindDecode means the body was not the JSON shape the operation expects.
	KindDecode
	// KindApplication is an `"error": true` envelope, even when the HTTP status
	// was 200.
	KindApplication
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	case KindApplication:
		return "application"
	}
	return "unknown"
}

type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("avatarapi %s: %s failure", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func transportErr(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

func decodeErr(op string, err error) *Error {
	return &Error{Kind: KindDecode, Op: op, Err: err}
}

func applicationErr(op, message string) *Error {
	return &Error{Kind: KindApplication, Op: op, Message: message}
}

// KindOf returns the kind of an API error anywhere in err's chain, or 0.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

func IsTransport(err error) bool   { return KindOf(err) == KindTransport }
func IsDecode(err error) bool      { return KindOf(err) == KindDecode }
func IsApplication(err error) bool { return KindOf(err) == KindApplication }
