package errors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindAuthentication Kind = "authentication_error"
	KindAuthorization  Kind = "authorization_error"
	KindValidation     Kind = "validation_error"
	KindExtraction     Kind = "extraction_error"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindTooMany        Kind = "rate_limited"
	KindInternal       Kind = "internal_error"
)

// Error carries a kind that callers and the HTTP layer switch on. Two
// errors are equal under errors.Is when their kinds match, so the package
// sentinels work against any wrapped *Error.
type Error struct {
	Kind      Kind
	Message   string
	Transient bool
	Err       error
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

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrUnauthorized = &Error{Kind: KindAuthentication, Message: "unauthorized"}
	ErrForbidden    = &Error{Kind: KindAuthorization, Message: "forbidden"}
	ErrInvalid      = &Error{Kind: KindValidation, Message: "invalid"}
	ErrExtraction   = &Error{Kind: KindExtraction, Message: "extraction failed"}
	ErrNotFound     = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict     = &Error{Kind: KindConflict, Message: "conflict"}
	ErrTooMany      = &Error{Kind: KindTooMany, Message: "too many requests"}
	ErrInternal     = &Error{Kind: KindInternal, Message: "internal"}
)

func Unauthorized(msg string) error {
	return &Error{Kind: KindAuthentication, Message: msg}
}

func Forbidden(msg string) error {
	return &Error{Kind: KindAuthorization, Message: msg}
}

func Invalid(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func Invalidf(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Conflict(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

func Extraction(msg string, cause error) error {
	return &Error{Kind: KindExtraction, Message: msg, Err: cause}
}

// TransientExtraction marks a failure that may succeed on a second try,
// such as an OCR call timing out.
func TransientExtraction(msg string, cause error) error {
	return &Error{Kind: KindExtraction, Message: msg, Err: cause, Transient: true}
}

func Internal(msg string, cause error) error {
	return &Error{Kind: KindInternal, Message: msg, Err: cause}
}

// KindOf returns the kind of the first *Error in the chain, or
// KindInternal for anything untyped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the client facing message of the first *Error in the
// chain. Untyped errors never leak their text.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "internal error"
}

func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Transient
	}
	return false
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
