package client

import (
	"bufio"
	"context"
	"io"
	"net"
	"strconv"
	goSync "sync"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/dfsync/pkg/errors"
	"github.com/sidkik/dfsync/pkg/protocol"
	"github.com/sidkik/dfsync/pkg/sync"
	"github.com/sidkik/dfsync/pkg/transport"
)

// Handler receives what the server sends. Both methods are called from the
// read loop, so a data transfer or the next response waits until they
// return.
type Handler interface {
	// OnReply is called with every reply and the request it answers. PUSH
	// and PULL requests get two replies: OPEN and then CLOSE, or a single
	// ABORT.
	OnReply(request, reply protocol.Message)

	// OnNotification is called with INVALID, QUERYDELETE, REMOVE and
	// RESTORE notifications.
	OnNotification(notification protocol.Message)
}

// Client is the control channel connection to a dfsync server.
type Client struct {
	conn    net.Conn
	session *transport.Session
	storage *sync.Storage
	handler Handler

	// requestLock keeps the order of the pending log the same as the order
	// on the wire.
	requestLock goSync.Mutex
	pending     pendingLog

	stateLock goSync.Mutex
	loggedIn  bool
	closed    bool
}

// Dial connects to the server at `addr`. Transfers read from and write to
// `storage`.
func Dial(addr string, storage *sync.Storage, handler Handler) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.WithContext(err, "dial")
	}

	logger := log.WithField("server", addr)
	return &Client{
		conn:    conn,
		session: transport.New(conn, logger),
		storage: storage,
		handler: handler,
	}, nil
}

// Run reads responses until the server closes the connection, the client is
// closed, or `ctx` is cancelled.
func (c *Client) Run(ctx context.Context) error {
	stop := transport.CloseOnCancel(ctx, c.conn)
	defer stop()

	for {
		msg, err := c.session.Receive()
		if err != nil {
			if protocol.IsProtocolError(err) {
				log.WithError(err).Warn("Ignoring malformed response")
				continue
			}
			if err == io.EOF || ctx.Err() != nil || c.isClosed() {
				return nil
			}
			return errors.WithContext(err, "receive")
		}

		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg protocol.Message) {
	if msg.Kind.IsNotification() {
		c.handler.OnNotification(msg)
		return
	}

	request, ok := c.pending.correlate(msg)
	if !ok {
		log.WithField("msg", msg.String()).Warn("Received a reply without a pending request")
		return
	}

	switch {
	case msg.Kind == protocol.Open && request.Kind.IsTransfer():
		if err := c.transfer(request, msg); err != nil {
			log.WithError(err).WithField("request", request.String()).Warn("Transfer failed")
		}
	case request.Kind == protocol.Login:
		c.setLoggedIn(msg.Kind == protocol.OK)
	case request.Kind == protocol.End && msg.Kind == protocol.OK:
		c.setLoggedIn(false)
	}

	c.handler.OnReply(request, msg)
}

// transfer performs the client's half of a data channel transfer.
func (c *Client) transfer(request, open protocol.Message) error {
	host, err := open.Arg(0)
	if err != nil {
		return err
	}
	port, err := open.Int(1)
	if err != nil {
		return err
	}
	filename, err := request.Arg(0)
	if err != nil {
		return err
	}

	// Connect before touching the file so that the server is never left
	// waiting for a connection.
	conn, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return errors.WithContext(err, "dial data channel")
	}
	defer conn.Close()

	logger := log.WithFields(log.Fields{
		"file": filename,
		"kind": request.Kind.String(),
	})

	var n int64
	if request.Kind == protocol.Push {
		f, err := c.storage.Open(filename)
		if err != nil {
			return errors.WithContext(err, "open")
		}
		defer f.Close()

		n, err = sync.Copy(bufio.NewWriterSize(conn, sync.BufferSize), f)
		if err != nil {
			return err
		}
	} else {
		f, err := c.storage.Create(filename)
		if err != nil {
			return errors.WithContext(err, "create")
		}

		n, err = sync.Copy(bufio.NewWriterSize(f, sync.BufferSize), conn)
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = errors.WithContext(closeErr, "close")
		}
		if err != nil {
			return err
		}
	}

	logger.WithField("bytes", n).Debug("Transfer complete")
	return nil
}

// SendRequest records `request` as pending and sends it.
func (c *Client) SendRequest(request protocol.Message) error {
	c.requestLock.Lock()
	defer c.requestLock.Unlock()

	c.pending.add(request)
	if err := c.session.Send(request); err != nil {
		c.pending.dropNewest()
		return errors.WithContext(err, "send")
	}
	return nil
}

// Login sends a LOGIN request.
func (c *Client) Login(username string) error {
	return c.SendRequest(protocol.NewMessage(protocol.Login, username))
}

// Push sends a PUSH request. The file is uploaded once the server opens the
// data channel.
func (c *Client) Push(filename string) error {
	return c.SendRequest(protocol.NewMessage(protocol.Push, filename))
}

// Pull sends a PULL request. The file is downloaded once the server opens
// the data channel.
func (c *Client) Pull(filename string) error {
	return c.SendRequest(protocol.NewMessage(protocol.Pull, filename))
}

// Delete sends a DELETE request.
func (c *Client) Delete(filename string) error {
	return c.SendRequest(protocol.NewMessage(protocol.Delete, filename))
}

// Vote sends the client's decision on the pending delete of `filename`.
func (c *Client) Vote(yes bool, filename string) error {
	decision := "NO"
	if yes {
		decision = sync.YesVote
	}
	return c.SendRequest(protocol.NewMessage(protocol.Vote, decision, filename))
}

// End sends an END request. The server closes the connection after
// acknowledging it.
func (c *Client) End() error {
	return c.SendRequest(protocol.NewMessage(protocol.End))
}

// LoggedIn returns whether the server accepted the last login, and the
// session hasn't been ended since.
func (c *Client) LoggedIn() bool {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	return c.loggedIn
}

func (c *Client) setLoggedIn(loggedIn bool) {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	c.loggedIn = loggedIn
}

func (c *Client) isClosed() bool {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	return c.closed
}

// Close closes the connection. Run returns once it's closed.
func (c *Client) Close() {
	c.stateLock.Lock()
	c.closed = true
	c.loggedIn = false
	c.stateLock.Unlock()

	c.session.Close()
}
