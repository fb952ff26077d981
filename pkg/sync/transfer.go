package sync

import (
	"io"

	"github.com/sidkik/dfsync/pkg/errors"
)

// BufferSize is the chunk size used on the data channel.
const BufferSize = 512

// Flusher is implemented by writers that buffer.
type Flusher interface {
	Flush() error
}

// Copy moves everything from `src` to `dst` in BufferSize chunks. If `dst`
// buffers, it's flushed after every chunk. It returns the number of bytes
// written.
func Copy(dst io.Writer, src io.Reader) (int64, error) {
	flusher, _ := dst.(Flusher)

	var written int64
	buf := make([]byte, BufferSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			wrote, err := dst.Write(buf[:n])
			written += int64(wrote)
			if err != nil {
				return written, errors.WithContext(err, "write")
			}
			if wrote != n {
				return written, io.ErrShortWrite
			}

			if flusher != nil {
				if err := flusher.Flush(); err != nil {
					return written, errors.WithContext(err, "flush")
				}
			}
		}

		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, errors.WithContext(readErr, "read")
		}
	}
}
