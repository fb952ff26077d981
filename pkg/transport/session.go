// Package transport carries protocol messages over a stream connection.
package transport

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/dfsync/pkg/errors"
	"github.com/sidkik/dfsync/pkg/protocol"
)

// Session sends and receives protocol lines on one connection. Send may be
// called from any goroutine. Receive must only be called by the goroutine
// that owns the session.
type Session struct {
	conn   net.Conn
	reader *bufio.Reader
	logger *log.Entry

	writeLock sync.Mutex
	writer    *bufio.Writer

	closeOnce sync.Once
}

// New wraps `conn`. A nil logger falls back to the standard logger.
func New(conn net.Conn, logger *log.Entry) *Session {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Session{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		logger: logger,
	}
}

// Send writes one message and flushes it.
func (s *Session) Send(msg protocol.Message) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	if _, err := s.writer.WriteString(msg.Encode()); err != nil {
		return errors.WithContext(err, "write")
	}
	if err := s.writer.Flush(); err != nil {
		return errors.WithContext(err, "flush")
	}
	s.logger.WithField("msg", msg.String()).Debug("Sent message")
	return nil
}

// Receive blocks until a complete line arrives and decodes it. Blank lines
// are skipped. io.EOF is returned once the peer closes the stream, and a
// protocol.ProtocolError is returned for a malformed line, in which case the
// session is still usable.
func (s *Session) Receive() (protocol.Message, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			// A final unterminated line is dropped.
			if err == io.EOF {
				return protocol.Message{}, io.EOF
			}
			return protocol.Message{}, errors.WithContext(err, "read")
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		msg, err := protocol.Decode(line)
		if err != nil {
			return protocol.Message{}, err
		}
		s.logger.WithField("msg", msg.String()).Debug("Received message")
		return msg, nil
	}
}

// Close closes the connection. Only the first call has any effect.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if err := s.conn.Close(); err != nil {
			s.logger.WithError(err).Debug("Failed to close connection")
		}
	})
}

// RemoteAddr returns the address of the peer.
func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// CloseOnCancel closes `closer` when `ctx` is cancelled, which unblocks any
// pending read or accept on it. Calling the returned function stops the
// watch without closing anything.
func CloseOnCancel(ctx context.Context, closer io.Closer) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if err := closer.Close(); err != nil {
				log.WithError(err).Debug("Failed to close after cancellation")
			}
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}
