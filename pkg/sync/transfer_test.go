package sync

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sidkik/dfsync/pkg/errors"
)

type flushCounter struct {
	bytes.Buffer
	flushes int
}

func (w *flushCounter) Flush() error {
	w.flushes++
	return nil
}

func TestCopy(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		expFlushes int
	}{
		{"Empty", 0, 0},
		{"LessThanOneChunk", 10, 1},
		{"ExactlyOneChunk", BufferSize, 1},
		{"SeveralChunks", 2*BufferSize + 276, 3},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			contents := strings.Repeat("x", test.size)
			dst := &flushCounter{}

			n, err := Copy(dst, bytes.NewReader([]byte(contents)))
			assert.NoError(t, err)
			assert.Equal(t, int64(test.size), n)
			assert.Equal(t, contents, dst.String())
			assert.Equal(t, test.expFlushes, dst.flushes)
		})
	}
}

type failingReader struct {
	err error
}

func (r failingReader) Read([]byte) (int, error) {
	return 0, r.err
}

func TestCopyReadError(t *testing.T) {
	readErr := errors.New("connection reset")
	_, err := Copy(&bytes.Buffer{}, failingReader{readErr})
	assert.Equal(t, readErr, errors.RootCause(err))
}
