package streams

import (
	"errors"
	"fmt"
)

// InputError reports a request whose content is invalid no matter who sends
// it: unknown ids, out of range lengths, duplicate state.
type InputError struct {
	Msg string
	Err error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *InputError) Unwrap() error { return e.Err }

// AccessError reports a well formed request the caller is not allowed to
// make: bad token, not a member, not owner-capable.
type AccessError struct {
	Msg string
	Err error
}

func (e *AccessError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *AccessError) Unwrap() error { return e.Err }

func inputErrorf(format string, args ...any) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

func accessErrorf(format string, args ...any) error {
	return &AccessError{Msg: fmt.Sprintf(format, args...)}
}

// IsInputError reports whether err is, or wraps, an InputError.
func IsInputError(err error) bool {
	var e *InputError
	return errors.As(err, &e)
}

// IsAccessError reports whether err is, or wraps, an AccessError.
func IsAccessError(err error) bool {
	var e *AccessError
	return errors.As(err, &e)
}
