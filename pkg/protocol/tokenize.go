package protocol

import "strings"

const argSeparator = " "

// tokenize splits `line` on spaces, except inside a double-quoted span. The
// text is split around the first quote pair: the quoted content becomes one
// token (which may be empty), and the text before and after it is tokenized
// independently.
func tokenize(line string) ([]string, error) {
	return tokenizeAt(line, 0)
}

func tokenizeAt(target string, offset int) ([]string, error) {
	trimmed := strings.TrimLeft(target, argSeparator)
	offset += len(target) - len(trimmed)
	target = strings.TrimRight(trimmed, argSeparator)

	quoteStart := strings.IndexByte(target, '"')
	if quoteStart < 0 {
		return splitUnquoted(target), nil
	}

	quoteLen := strings.IndexByte(target[quoteStart+1:], '"')
	if quoteLen < 0 {
		return nil, UnterminatedQuoteError{Offset: offset + quoteStart}
	}
	quoteEnd := quoteStart + 1 + quoteLen

	before, err := tokenizeAt(target[:quoteStart], offset)
	if err != nil {
		return nil, err
	}

	after, err := tokenizeAt(target[quoteEnd+1:], offset+quoteEnd+1)
	if err != nil {
		return nil, err
	}

	tokens := append(before, target[quoteStart+1:quoteEnd])
	return append(tokens, after...), nil
}

func splitUnquoted(s string) (tokens []string) {
	for _, token := range strings.Split(s, argSeparator) {
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}
