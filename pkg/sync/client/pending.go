package client

import (
	goSync "sync"

	"github.com/sidkik/dfsync/pkg/protocol"
)

type requestState int

const (
	// stateSent requests are waiting for their first reply.
	stateSent requestState = iota

	// stateOpened transfers have received OPEN, and are waiting for CLOSE.
	stateOpened
)

type pendingRequest struct {
	request protocol.Message
	state   requestState
}

// pendingLog is the ordered list of requests that haven't been fully
// answered. The server answers requests in order, so every reply belongs to
// the oldest entry.
type pendingLog struct {
	lock    goSync.Mutex
	entries []*pendingRequest
}

func (l *pendingLog) add(request protocol.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.entries = append(l.entries, &pendingRequest{request: request, state: stateSent})
}

func (l *pendingLog) dropNewest() {
	l.lock.Lock()
	defer l.lock.Unlock()
	if len(l.entries) > 0 {
		l.entries = l.entries[:len(l.entries)-1]
	}
}

// correlate returns the request that `reply` answers. The request stays
// pending if the reply is the OPEN of a transfer, and is removed otherwise.
func (l *pendingLog) correlate(reply protocol.Message) (protocol.Message, bool) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if len(l.entries) == 0 {
		return protocol.Message{}, false
	}

	head := l.entries[0]
	if reply.Kind == protocol.Open && head.request.Kind.IsTransfer() && head.state == stateSent {
		head.state = stateOpened
		return head.request, true
	}

	l.entries[0] = nil
	l.entries = l.entries[1:]
	return head.request, true
}

func (l *pendingLog) len() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.entries)
}
