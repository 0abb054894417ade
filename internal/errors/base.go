package errors

import (
	"errors"
	"fmt"
)

var (
	_ error = (*wrappedError)(nil)
	_ error = (*markedError)(nil)
)

func New(text string) error {
	return errors.New(text)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Wrap(err error, text string) error {
	if err == nil {
		return nil
	}

	if len(text) == 0 {
		return err
	}

	return &wrappedError{
		err: err,
		msg: text,
	}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return Wrap(err, fmt.Sprintf(format, args...))
}

// Mark tags cause with kind so that errors.Is matches both of them.
// A cause that already carries kind is returned untouched.
func Mark(kind, cause error) error {
	if cause == nil {
		return nil
	}

	if kind == nil || errors.Is(cause, kind) {
		return cause
	}

	return &markedError{kind: kind, cause: cause}
}

type wrappedError struct {
	err error
	msg string
}

const sep = ", err: "

func (err wrappedError) Error() string {
	if err.err == nil {
		return err.msg
	}

	return err.msg + sep + err.err.Error()
}

func (err wrappedError) Unwrap() error {
	if err.err == nil {
		return errors.New(err.msg)
	}

	return err.err
}

type markedError struct {
	kind  error
	cause error
}

func (err markedError) Error() string {
	return err.kind.Error() + sep + err.cause.Error()
}

func (err markedError) Unwrap() []error {
	return []error{err.kind, err.cause}
}
