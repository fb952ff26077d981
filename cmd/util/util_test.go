package util

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sidkik/dfsync/pkg/errors"
)

func TestHandleFatalError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		expOut string
	}{
		{
			name:   "Friendly",
			err:    errors.WithContext(errors.NewFriendlyError("port %d is in use", 8910), "listen"),
			expOut: "port 8910 is in use\n",
		},
		{
			name:   "Plain",
			err:    errors.WithContext(errors.New("connection refused"), "dial"),
			expOut: "Error: dial: connection refused\n",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			var out bytes.Buffer
			var exitCode int
			stderr = &out
			exit = func(code int) { exitCode = code }

			HandleFatalError(test.err)
			assert.Equal(t, test.expOut, out.String())
			assert.Equal(t, 1, exitCode)
		})
	}
}

func TestHandlePanic(t *testing.T) {
	assert.PanicsWithValue(t, "boom", func() {
		defer HandlePanic()
		panic("boom")
	})
}

func TestPromptYesOrNo(t *testing.T) {
	tests := []struct {
		input  string
		exp    bool
		expErr bool
	}{
		{input: "y\n", exp: true},
		{input: "YES\n", exp: true},
		{input: "  yes  \n", exp: true},
		{input: "n\n", exp: false},
		{input: "\n", exp: false},
		{input: "yes", exp: true},
		{input: "", expErr: true},
	}

	for _, test := range tests {
		var out bytes.Buffer
		stdout = &out
		stdin = bufio.NewReader(strings.NewReader(test.input))

		resp, err := PromptYesOrNo("Delete notes.txt?")
		if test.expErr {
			assert.Equal(t, io.EOF, errors.RootCause(err))
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, test.exp, resp, test.input)
		assert.Equal(t, "Delete notes.txt? (y/N) ", out.String())
	}
}
