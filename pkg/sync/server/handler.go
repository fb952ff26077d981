package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"strconv"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/dfsync/pkg/errors"
	"github.com/sidkik/dfsync/pkg/protocol"
	"github.com/sidkik/dfsync/pkg/sync"
	"github.com/sidkik/dfsync/pkg/transport"
)

// Reasons sent in ABORT replies.
const (
	reasonLoginRejected   = "Double Names Not allowed"
	reasonServerFull      = "server is full"
	reasonLoginRequired   = "login required"
	reasonAlreadyLoggedIn = "already logged in"
	reasonPushInProgress  = "can not complete due to another push request in progress"
	reasonDataConnection  = "error in establishing data connection"
	reasonDeleteRejected  = "delete is currently not possible"
	reasonVoteRejected    = "vote does not match the pending delete"
	reasonFileNotFound    = "file does not exist"
	reasonUnsupported     = "unsupported command"
	reasonMissingDecision = "missing vote decision"
)

// clientHandler serves the control channel of one client. Requests are
// handled strictly in order, and each gets exactly one final reply.
type clientHandler struct {
	id          string
	conn        net.Conn
	session     *transport.Session
	coordinator *Coordinator

	// username and log are set by the coordinator when the login is
	// admitted.
	username string
	log      *log.Entry
}

func newClientHandler(conn net.Conn, coordinator *Coordinator) *clientHandler {
	id := uuid.New().String()
	logger := log.WithFields(log.Fields{
		"conn":   id,
		"remote": conn.RemoteAddr().String(),
	})
	return &clientHandler{
		id:          id,
		conn:        conn,
		session:     transport.New(conn, logger),
		coordinator: coordinator,
		log:         logger,
	}
}

func (h *clientHandler) run(ctx context.Context) {
	stop := transport.CloseOnCancel(ctx, h.conn)
	defer stop()
	defer h.teardown()

	h.log.Debug("Client connected")
	for {
		request, err := h.session.Receive()
		if err != nil {
			if protocol.IsProtocolError(err) {
				h.log.WithError(err).Warn("Ignoring malformed request")
				continue
			}
			if err != io.EOF && ctx.Err() == nil {
				h.log.WithError(err).Info("Connection failed")
			}
			return
		}

		if !h.handle(ctx, request) {
			return
		}
	}
}

func (h *clientHandler) teardown() {
	h.coordinator.disconnected(h)
	h.session.Close()
	h.log.Debug("Client disconnected")
}

// handle serves one request. It returns false once the connection should be
// closed.
func (h *clientHandler) handle(ctx context.Context, request protocol.Message) bool {
	if h.username == "" {
		if request.Kind != protocol.Login {
			h.reply(abort(reasonLoginRequired))
			return false
		}
		return h.login(request)
	}

	switch request.Kind {
	case protocol.Login:
		return h.reply(abort(reasonAlreadyLoggedIn))
	case protocol.Push, protocol.Pull, protocol.Delete, protocol.Vote, protocol.End:
	default:
		return h.reply(abort(reasonUnsupported))
	}

	if err := validateRequest(request); err != nil {
		h.log.WithError(err).WithField("request", request.String()).Debug("Rejected invalid request")
		if request.Kind == protocol.Delete {
			filename, _ := request.Arg(0)
			return h.reply(protocol.NewMessage(protocol.Abort, filename, err.Error()))
		}
		return h.reply(abort(err.Error()))
	}

	allowed := h.coordinator.admit(h, request)

	var handled bool
	var reply protocol.Message
	filename, _ := request.Arg(0)
	switch request.Kind {
	case protocol.Push, protocol.Pull:
		handled, reply = h.transfer(ctx, request.Kind, filename, allowed)
	case protocol.Delete:
		if allowed {
			handled, reply = true, protocol.NewMessage(protocol.OK)
		} else {
			reply = protocol.NewMessage(protocol.Abort, filename, reasonDeleteRejected)
		}
	case protocol.Vote:
		if allowed {
			handled, reply = true, protocol.NewMessage(protocol.OK)
		} else {
			reply = abort(reasonVoteRejected)
		}
	case protocol.End:
		handled, reply = true, protocol.NewMessage(protocol.OK)
	}

	h.coordinator.finish(h, request, handled)
	if !h.reply(reply) {
		return false
	}
	return request.Kind != protocol.End
}

func (h *clientHandler) login(request protocol.Message) bool {
	reason := h.coordinator.admitLogin(h, request)
	h.coordinator.finish(h, request, reason == "")
	if reason != "" {
		h.reply(abort(reason))
		return false
	}

	h.log.Info("Client logged in")
	return h.reply(protocol.NewMessage(protocol.OK))
}

// transfer runs the data channel handshake for a PUSH or PULL.
func (h *clientHandler) transfer(ctx context.Context, kind protocol.Kind, filename string,
	allowed bool) (bool, protocol.Message) {

	if !allowed {
		return false, abort(reasonPushInProgress)
	}

	if kind == protocol.Pull {
		exists, err := h.coordinator.storage.Exists(filename)
		if err != nil {
			h.log.WithError(err).WithField("file", filename).Warn("Failed to check file")
		}
		if !exists {
			return false, protocol.NewMessage(protocol.Abort, reasonFileNotFound, filename)
		}
	}

	dataHost := h.coordinator.config.DataHost
	lis, err := net.Listen("tcp", net.JoinHostPort(dataHost, "0"))
	if err != nil {
		h.log.WithError(err).Error("Failed to open data channel")
		return false, abort(reasonDataConnection)
	}
	port := lis.Addr().(*net.TCPAddr).Port

	open := protocol.NewMessage(protocol.Open).WithString(dataHost).WithInt(port)
	if err := h.session.Send(open); err != nil {
		lis.Close()
		h.log.WithError(err).Warn("Failed to send OPEN")
		return false, protocol.NewMessage(protocol.Close, filename)
	}

	logger := h.log.WithFields(log.Fields{
		"file": filename,
		"kind": kind.String(),
		"port": strconv.Itoa(port),
	})
	logger.Debug("Waiting for data connection")
	n, err := h.copyData(ctx, lis, kind, filename)
	if err != nil {
		logger.WithError(err).Warn("Transfer failed")
	} else {
		logger.WithField("bytes", n).Info("Transfer complete")
	}

	// CLOSE is sent even if the copy failed.
	return true, protocol.NewMessage(protocol.Close, filename)
}

func (h *clientHandler) copyData(ctx context.Context, lis net.Listener, kind protocol.Kind,
	filename string) (int64, error) {

	stopListener := transport.CloseOnCancel(ctx, lis)
	conn, err := lis.Accept()
	stopListener()
	lis.Close()
	if err != nil {
		return 0, errors.WithContext(err, "accept")
	}
	defer conn.Close()

	stopConn := transport.CloseOnCancel(ctx, conn)
	defer stopConn()

	storage := h.coordinator.storage
	if kind == protocol.Pull {
		f, err := storage.Open(filename)
		if err != nil {
			return 0, errors.WithContext(err, "open")
		}
		defer f.Close()

		return sync.Copy(bufio.NewWriterSize(conn, sync.BufferSize), f)
	}

	f, err := storage.Create(filename)
	if err != nil {
		return 0, errors.WithContext(err, "create")
	}

	n, err := sync.Copy(bufio.NewWriterSize(f, sync.BufferSize), conn)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = errors.WithContext(closeErr, "close")
	}
	return n, err
}

// reply sends the final reply to a request. It returns false if the
// connection is broken.
func (h *clientHandler) reply(msg protocol.Message) bool {
	if err := h.session.Send(msg); err != nil {
		h.log.WithError(err).WithField("msg", msg.String()).Info("Failed to send reply")
		return false
	}
	return true
}

func abort(reason string) protocol.Message {
	return protocol.NewMessage(protocol.Abort, reason)
}

// validateRequest checks that a request carries the arguments its kind
// needs.
func validateRequest(request protocol.Message) error {
	switch request.Kind {
	case protocol.Push, protocol.Pull, protocol.Delete:
		filename, _ := request.Arg(0)
		return sync.ValidateName(filename)
	case protocol.Vote:
		decision, _ := request.Arg(0)
		if decision == "" {
			return errors.New(reasonMissingDecision)
		}
		filename, _ := request.Arg(1)
		return sync.ValidateName(filename)
	}
	return nil
}
