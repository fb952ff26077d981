package protocol

import (
	"strconv"
	"strings"
)

// LineTerminator ends every encoded message.
const LineTerminator = "\r\n"

// Message is a single protocol line: a kind followed by ordered arguments.
// Arguments added with WithString are quoted on the wire and arguments added
// with WithInt are not. Decoded arguments are always text until they're
// coerced with Int.
//
// Messages are values. The builder methods return a copy, so a decoded or
// shared Message is never modified.
type Message struct {
	Kind Kind
	args []interface{}
}

// NewMessage returns a message of the given kind with string arguments.
func NewMessage(kind Kind, args ...string) Message {
	msg := Message{Kind: kind}
	for _, arg := range args {
		msg = msg.WithString(arg)
	}
	return msg
}

// WithString returns a copy of the message with a string argument appended.
func (m Message) WithString(arg string) Message {
	return m.with(arg)
}

// WithInt returns a copy of the message with an integer argument appended.
func (m Message) WithInt(arg int) Message {
	return m.with(arg)
}

func (m Message) with(arg interface{}) Message {
	args := make([]interface{}, len(m.args), len(m.args)+1)
	copy(args, m.args)
	m.args = append(args, arg)
	return m
}

// NumArgs returns the number of arguments.
func (m Message) NumArgs() int {
	return len(m.args)
}

// Arg returns the i'th argument as text.
func (m Message) Arg(i int) (string, error) {
	if i < 0 || i >= len(m.args) {
		return "", MissingArgumentError{Kind: m.Kind, Index: i}
	}

	switch arg := m.args[i].(type) {
	case string:
		return arg, nil
	case int:
		return strconv.Itoa(arg), nil
	}
	panic("unreachable")
}

// Int returns the i'th argument as an integer.
func (m Message) Int(i int) (int, error) {
	arg, err := m.Arg(i)
	if err != nil {
		return 0, err
	}

	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, NotANumberError{Value: arg}
	}
	return n, nil
}

// Args returns all arguments as text.
func (m Message) Args() []string {
	args := make([]string, 0, len(m.args))
	for i := range m.args {
		arg, _ := m.Arg(i)
		args = append(args, arg)
	}
	return args
}

// Encode renders the message as a CRLF-terminated line.
func (m Message) Encode() string {
	var sb strings.Builder
	sb.WriteString(m.Kind.String())
	for _, arg := range m.args {
		sb.WriteString(argSeparator)
		switch arg := arg.(type) {
		case string:
			sb.WriteString(`"`)
			sb.WriteString(arg)
			sb.WriteString(`"`)
		case int:
			sb.WriteString(strconv.Itoa(arg))
		}
	}
	sb.WriteString(LineTerminator)
	return sb.String()
}

// String returns the encoded message without the line terminator, for
// logging.
func (m Message) String() string {
	return strings.TrimSuffix(m.Encode(), LineTerminator)
}

// Decode parses one protocol line. A trailing line terminator is ignored.
func Decode(line string) (Message, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return Message{}, ErrEmptyInput
	}

	tokens, err := tokenize(line)
	if err != nil {
		return Message{}, err
	}

	if len(tokens) == 0 {
		return Message{}, ErrEmptyInput
	}

	kind, err := ParseKind(tokens[0])
	if err != nil {
		return Message{}, err
	}
	return NewMessage(kind, tokens[1:]...), nil
}
