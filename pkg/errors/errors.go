package errors

import (
	goErrors "errors"
	"fmt"
)

// New returns an error with the given message.
func New(msg string, args ...interface{}) error {
	if len(args) == 0 {
		return goErrors.New(msg)
	}
	return fmt.Errorf(msg, args...)
}

// contextError wraps an error with a short description of what was being
// attempted when it occurred.
type contextError struct {
	err     error
	context string
}

// WithContext annotates `err` with `context`. The resulting message reads
// like "context: err", so chains of contexts produce a trace of where the
// error came from. A nil error stays nil.
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return contextError{err, context}
}

func (err contextError) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.err)
}

func (err contextError) Unwrap() error {
	return err.err
}

// RootCause returns the innermost error wrapped by WithContext.
func RootCause(err error) error {
	for {
		ctxErr, ok := err.(contextError)
		if !ok {
			return err
		}
		err = ctxErr.err
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return goErrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return goErrors.As(err, target)
}

// FriendlyError is an error with a message meant to be shown directly to the
// operator, without the chain of contexts that led to it.
type FriendlyError interface {
	error
	FriendlyMessage() string
}

type friendlyError struct {
	msg string
}

// NewFriendlyError creates an error whose message is printed as-is by the
// CLI.
func NewFriendlyError(msg string, args ...interface{}) error {
	return friendlyError{fmt.Sprintf(msg, args...)}
}

func (err friendlyError) Error() string {
	return err.msg
}

func (err friendlyError) FriendlyMessage() string {
	return err.msg
}

// GetFriendlyMessage returns the friendly message of the root cause of
// `err`, if it has one.
func GetFriendlyMessage(err error) (string, bool) {
	var friendly FriendlyError
	if As(err, &friendly) {
		return friendly.FriendlyMessage(), true
	}
	return "", false
}
