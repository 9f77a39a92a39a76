package domain

import "errors"

// Error kinds. Every service error unwraps to exactly one of these.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
	ErrInvalid   = errors.New("invalid")
	ErrUpstream  = errors.New("upstream failure")
)

// Error is a classified error with a caller-facing message.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

func (e *Error) Kind() error { return e.kind }

func NotFound(msg string) *Error  { return &Error{kind: ErrNotFound, msg: msg} }
func Forbidden(msg string) *Error { return &Error{kind: ErrForbidden, msg: msg} }
func Conflict(msg string) *Error  { return &Error{kind: ErrConflict, msg: msg} }
func Invalid(msg string) *Error   { return &Error{kind: ErrInvalid, msg: msg} }
func Upstream(msg string) *Error  { return &Error{kind: ErrUpstream, msg: msg} }
