package server

import (
	"context"
	"net"
	"strconv"
	goSync "sync"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/dfsync/pkg/audit"
	"github.com/sidkik/dfsync/pkg/config"
	"github.com/sidkik/dfsync/pkg/errors"
	"github.com/sidkik/dfsync/pkg/protocol"
	"github.com/sidkik/dfsync/pkg/sync"
	"github.com/sidkik/dfsync/pkg/transport"
)

// Coordinator accepts client connections and owns the state they share: the
// registry of logged in clients, the push lock, and the pending delete vote.
// Handlers only reach that state through admit, finish and disconnected.
type Coordinator struct {
	config   config.Server
	storage  *sync.Storage
	observer Observer
	listener net.Listener

	lock         goSync.Mutex
	clients      map[string]*clientHandler
	pushOwner    *clientHandler
	activeDelete *sync.DeleteAction

	handlers goSync.WaitGroup
}

// voteResult is the outcome of a finished delete vote. It's applied after
// the coordinator lock is released.
type voteResult struct {
	filename   string
	unanimous  bool
	recipients []*clientHandler
}

// New binds the control channel listener.
func New(cfg config.Server, storage *sync.Storage, observer Observer) (*Coordinator, error) {
	if observer == nil {
		observer = nopObserver{}
	}
	if cfg.MaxClients < 1 {
		cfg.MaxClients = config.DefaultMaxClients
	}
	cfg.DataHost = cfg.GetDataHost()

	addr := net.JoinHostPort(cfg.CommandHost, strconv.Itoa(cfg.CommandPort))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.WithContext(err, "listen")
	}

	return &Coordinator{
		config:   cfg,
		storage:  storage,
		observer: observer,
		listener: lis,
		clients:  map[string]*clientHandler{},
	}, nil
}

// Addr returns the address of the control channel.
func (c *Coordinator) Addr() net.Addr {
	return c.listener.Addr()
}

// Serve accepts connections until `ctx` is cancelled. Each connection is
// handled on its own goroutine. When Serve returns, the listener and every
// connection have been closed and all handlers have exited.
func (c *Coordinator) Serve(ctx context.Context) error {
	stop := transport.CloseOnCancel(ctx, c.listener)
	defer stop()

	log.WithField("addr", c.Addr()).Info("dfsync server is ready")
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			c.listener.Close()
			c.handlers.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return errors.WithContext(err, "accept")
		}

		handler := newClientHandler(conn, c)
		c.handlers.Add(1)
		go func() {
			defer audit.HandlePanic()
			defer c.handlers.Done()
			handler.run(ctx)
		}()
	}
}

// admit decides whether `request` may proceed, and reserves any shared state
// it needs before the handler performs it.
func (c *Coordinator) admit(h *clientHandler, request protocol.Message) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	switch request.Kind {
	case protocol.Login:
		return c.admitLoginLocked(h, request) == ""
	case protocol.Push:
		if c.pushOwner != nil {
			return false
		}
		c.pushOwner = h
		return true
	case protocol.Pull:
		return c.pushOwner == nil
	case protocol.Delete:
		filename, _ := request.Arg(0)
		c.activeDelete = sync.NewDeleteAction(h.username, filename, c.usernamesLocked(h))
		return true
	case protocol.Vote:
		if c.activeDelete == nil {
			return true
		}
		filename, _ := request.Arg(1)
		return filename == c.activeDelete.Filename
	}
	return true
}

// admitLogin is admit for LOGIN requests. It returns the reason the login
// was rejected, or the empty string if it was admitted.
func (c *Coordinator) admitLogin(h *clientHandler, request protocol.Message) string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.admitLoginLocked(h, request)
}

func (c *Coordinator) admitLoginLocked(h *clientHandler, request protocol.Message) string {
	username, _ := request.Arg(0)
	if username == "" {
		return reasonLoginRejected
	}
	if _, ok := c.clients[username]; ok {
		return reasonLoginRejected
	}
	if len(c.clients) >= c.config.MaxClients {
		return reasonServerFull
	}

	// Reserve the name now so that two concurrent logins can't both be
	// admitted. The handler's identity is set under the lock because other
	// handlers read it when broadcasting.
	c.clients[username] = h
	h.username = username
	h.log = h.log.WithField("user", username)
	return ""
}

// finish applies the effects of a request once the handler has performed it,
// and before the handler sends its final reply.
func (c *Coordinator) finish(h *clientHandler, request protocol.Message, handled bool) {
	var recipients []*clientHandler
	var notification protocol.Message
	var result *voteResult

	c.lock.Lock()
	switch request.Kind {
	case protocol.Login:
		username, _ := request.Arg(0)
		if !handled && c.clients[username] == h {
			delete(c.clients, username)
		}
	case protocol.Push:
		if c.pushOwner == h {
			c.pushOwner = nil
			if handled {
				filename, _ := request.Arg(0)
				recipients = c.othersLocked(h)
				notification = protocol.NewMessage(protocol.Invalid, filename)
			}
		}
	case protocol.Delete:
		filename, _ := request.Arg(0)
		action := c.activeDelete
		if handled && action != nil && action.Requester == h.username && action.Filename == filename {
			for _, voter := range action.Pending() {
				if client, ok := c.clients[voter]; ok {
					recipients = append(recipients, client)
				}
			}
			notification = protocol.NewMessage(protocol.QueryDelete, filename)
			result = c.checkVoteLocked()
		}
	case protocol.Vote:
		if handled && c.activeDelete != nil {
			decision, _ := request.Arg(0)
			if c.activeDelete.ReceiveVote(h.username, sync.IsYes(decision)) {
				result = c.checkVoteLocked()
			} else {
				h.log.WithField("file", c.activeDelete.Filename).Debug(
					"Ignoring vote from a client that wasn't asked or already voted")
			}
		}
	}
	c.lock.Unlock()

	if request.Kind == protocol.Login && handled {
		c.observer.ClientConnected(h.username, h.session.RemoteAddr())
	}
	c.observer.RequestFinished(h.username, request, handled)

	broadcast(recipients, notification)
	if result != nil {
		c.applyVote(*result)
	}
}

// disconnected releases everything held by a handler whose connection
// ended.
func (c *Coordinator) disconnected(h *clientHandler) {
	c.lock.Lock()
	registered := h.username != "" && c.clients[h.username] == h
	if registered {
		delete(c.clients, h.username)
	}

	if c.pushOwner == h {
		log.WithField("user", h.username).Warn(
			"Client disconnected during a push. Releasing the push lock.")
		c.pushOwner = nil
	}

	// The client may have been the last missing voter.
	var result *voteResult
	if registered && c.activeDelete != nil {
		c.activeDelete.RemoveVoter(h.username)
		result = c.checkVoteLocked()
	}
	c.lock.Unlock()

	if result != nil {
		c.applyVote(*result)
	}
	if registered {
		c.observer.ClientDisconnected(h.username)
	}
}

// checkVoteLocked returns the result of the active vote and clears it once
// every client that was asked, and is still connected, has voted.
func (c *Coordinator) checkVoteLocked() *voteResult {
	action := c.activeDelete
	if action == nil || !action.Decided() {
		return nil
	}

	c.activeDelete = nil
	return &voteResult{
		filename:   action.Filename,
		unanimous:  action.Unanimous(),
		recipients: c.allLocked(),
	}
}

func (c *Coordinator) applyVote(result voteResult) {
	logger := log.WithField("file", result.filename)
	if !result.unanimous {
		logger.Info("Delete was rejected. Restoring file.")
		broadcast(result.recipients, protocol.NewMessage(protocol.Restore, result.filename))
		return
	}

	logger.Info("Delete was approved. Removing file.")
	if err := c.storage.Remove(result.filename); err != nil {
		logger.WithError(err).Error("Failed to remove file from storage")
	}
	broadcast(result.recipients, protocol.NewMessage(protocol.Remove, result.filename))
}

func (c *Coordinator) othersLocked(h *clientHandler) (others []*clientHandler) {
	for _, client := range c.clients {
		if client != h {
			others = append(others, client)
		}
	}
	return others
}

// usernamesLocked returns the names of the logged in clients other than
// `h`.
func (c *Coordinator) usernamesLocked(h *clientHandler) (names []string) {
	for name, client := range c.clients {
		if client != h {
			names = append(names, name)
		}
	}
	return names
}

func (c *Coordinator) allLocked() (all []*clientHandler) {
	return c.othersLocked(nil)
}

// broadcast sends `msg` to each recipient. It must not be called with the
// coordinator lock held.
func broadcast(recipients []*clientHandler, msg protocol.Message) {
	for _, client := range recipients {
		if err := client.session.Send(msg); err != nil {
			client.log.WithError(err).WithField("msg", msg.String()).Warn(
				"Failed to send notification")
		}
	}
}
