package protocol

import "fmt"

// ProtocolError is implemented by every error that comes from a malformed
// line rather than from the underlying connection.
type ProtocolError interface {
	error
	protocolError()
}

type emptyInputError struct{}

func (emptyInputError) Error() string  { return "message is empty" }
func (emptyInputError) protocolError() {}

// ErrEmptyInput is returned when decoding an empty or whitespace-only line.
var ErrEmptyInput ProtocolError = emptyInputError{}

// UnterminatedQuoteError is returned when a quote has no closing quote.
type UnterminatedQuoteError struct {
	Offset int
}

func (err UnterminatedQuoteError) Error() string {
	return fmt.Sprintf("unterminated quote at offset %d", err.Offset)
}

func (UnterminatedQuoteError) protocolError() {}

// UnknownCommandError is returned when the first token isn't a known kind.
type UnknownCommandError struct {
	Command string
}

func (err UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q", err.Command)
}

func (UnknownCommandError) protocolError() {}

// NotANumberError is returned when a numeric argument can't be parsed.
type NotANumberError struct {
	Value string
}

func (err NotANumberError) Error() string {
	return fmt.Sprintf("argument %q is not a number", err.Value)
}

func (NotANumberError) protocolError() {}

// MissingArgumentError is returned when reading an argument past the end of
// the argument list.
type MissingArgumentError struct {
	Kind  Kind
	Index int
}

func (err MissingArgumentError) Error() string {
	return fmt.Sprintf("%s has no argument %d", err.Kind, err.Index)
}

func (MissingArgumentError) protocolError() {}

// IsProtocolError returns whether err was caused by a malformed message.
func IsProtocolError(err error) bool {
	_, ok := err.(ProtocolError)
	return ok
}
