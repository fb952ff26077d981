package client

import (
	"context"
	"fmt"
	"io"
	"strings"
	goSync "sync"
	"time"

	"github.com/buger/goterm"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/dfsync/pkg/config"
	"github.com/sidkik/dfsync/pkg/errors"
	"github.com/sidkik/dfsync/pkg/fswatch"
	"github.com/sidkik/dfsync/pkg/protocol"
	"github.com/sidkik/dfsync/pkg/sync"
)

// echoWindow is how long watcher events for a file are ignored after the
// agent itself finished writing or removing it.
const echoWindow = 2 * time.Second

// engine is the subset of the client engine used by the agent.
type engine interface {
	Login(username string) error
	Push(filename string) error
	Pull(filename string) error
	Delete(filename string) error
	Vote(yes bool, filename string) error
}

// agent keeps the local directory in sync with the server. It translates
// local changes into requests, and notifications into local changes.
type agent struct {
	engine  engine
	storage *sync.Storage
	policy  string
	out     io.Writer

	// pushExisting pushes the files already in the directory once the
	// server accepts the login.
	pushExisting bool

	// Mocked for unit testing.
	clock  clockwork.Clock
	prompt func(string) (bool, error)

	// work holds callbacks from the engine's read loop. They're run by the
	// agent's own goroutine so that prompting for a vote never blocks
	// transfers.
	work  chan func()
	fatal chan error

	lock goSync.Mutex
	// suppressed maps a file to the time until which its watcher events are
	// ignored. The zero time means that the agent is still writing it.
	suppressed map[string]time.Time
	// synced maps a file to the hash of its contents after the last
	// completed transfer.
	synced map[string]string
}

func newAgent(storage *sync.Storage, policy string, out io.Writer,
	prompt func(string) (bool, error)) *agent {
	return &agent{
		storage:    storage,
		policy:     policy,
		out:        out,
		clock:      clockwork.NewRealClock(),
		prompt:     prompt,
		work:       make(chan func(), 64),
		fatal:      make(chan error, 1),
		suppressed: map[string]time.Time{},
		synced:     map[string]string{},
	}
}

// Run processes local file events and server callbacks until `ctx` is
// cancelled, `events` is closed, or the server rejects the login.
func (a *agent) Run(ctx context.Context, events <-chan fswatch.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-a.fatal:
			return err
		case event, ok := <-events:
			if !ok {
				return nil
			}
			a.handleEvent(event)
		case action := <-a.work:
			action()
		}
	}
}

// OnReply implements client.Handler.
func (a *agent) OnReply(request, reply protocol.Message) {
	a.work <- func() { a.handleReply(request, reply) }
}

// OnNotification implements client.Handler.
func (a *agent) OnNotification(notification protocol.Message) {
	a.work <- func() { a.handleNotification(notification) }
}

func (a *agent) handleEvent(event fswatch.Event) {
	logger := log.WithField("event", event)
	if a.isSuppressed(event.Name) {
		logger.Debug("Ignoring change made by the sync agent")
		return
	}

	var err error
	switch event.Op {
	case fswatch.Created, fswatch.Modified:
		hash, hashErr := a.storage.Hash(event.Name)
		if hashErr != nil {
			logger.WithError(hashErr).Debug("Failed to hash changed file")
			return
		}
		if a.syncedHash(event.Name) == hash {
			logger.Debug("Ignoring change that matches the synced contents")
			return
		}
		a.printf(goterm.YELLOW, "Pushing %s", event.Name)
		err = a.engine.Push(event.Name)
	case fswatch.Deleted:
		a.forget(event.Name)
		a.printf(goterm.YELLOW, "Requesting delete of %s", event.Name)
		err = a.engine.Delete(event.Name)
	}

	if err != nil {
		logger.WithError(err).Warn("Failed to send request")
	}
}

func (a *agent) handleReply(request, reply protocol.Message) {
	filename, _ := request.Arg(0)
	reason := abortReason(request.Kind, reply)

	switch request.Kind {
	case protocol.Login:
		if reply.Kind == protocol.Abort {
			a.fail(errors.NewFriendlyError("The server rejected the login: %s", reason))
			return
		}
		a.printf(goterm.GREEN, "Logged in")
		if a.pushExisting {
			a.pushAll()
		}

	case protocol.Push:
		switch reply.Kind {
		case protocol.Close:
			a.recordSynced(filename)
			a.printf(goterm.GREEN, "Pushed %s", filename)
		case protocol.Abort:
			a.printf(goterm.RED, "Failed to push %s: %s", filename, reason)
		}

	case protocol.Pull:
		switch reply.Kind {
		case protocol.Close:
			a.recordSynced(filename)
			a.release(filename)
			a.printf(goterm.GREEN, "Pulled %s", filename)
		case protocol.Abort:
			a.release(filename)
			a.printf(goterm.RED, "Failed to pull %s: %s", filename, reason)
		}

	case protocol.Delete:
		if reply.Kind == protocol.Abort {
			a.printf(goterm.RED, "Delete of %s was rejected: %s. Restoring it.",
				filename, reason)
			a.pull(filename)
		}

	case protocol.Vote:
		if reply.Kind == protocol.Abort {
			a.printf(goterm.RED, "Vote was rejected: %s", reason)
		}
	}
}

// abortReason returns the reason carried by an ABORT reply. Rejected
// deletes echo the filename before the reason.
func abortReason(kind protocol.Kind, reply protocol.Message) string {
	i := 0
	if kind == protocol.Delete {
		i = 1
	}
	reason, _ := reply.Arg(i)
	return reason
}

func (a *agent) handleNotification(notification protocol.Message) {
	filename, err := notification.Arg(0)
	if err != nil {
		log.WithError(err).Warn("Ignoring malformed notification")
		return
	}

	switch notification.Kind {
	case protocol.Invalid:
		a.printf(goterm.YELLOW, "%s changed on the server", filename)
		a.pull(filename)

	case protocol.QueryDelete:
		yes, err := a.decide(filename)
		if err != nil {
			log.WithError(err).Warn("Failed to decide vote. Voting no.")
		}
		if err := a.engine.Vote(yes, filename); err != nil {
			log.WithError(err).Warn("Failed to send vote")
		}

	case protocol.Remove:
		a.printf(goterm.YELLOW, "%s was deleted", filename)
		a.forget(filename)
		a.suppress(filename)
		err := a.storage.Remove(filename)
		a.release(filename)
		if err != nil {
			log.WithError(err).WithField("file", filename).Warn("Failed to remove file")
		}

	case protocol.Restore:
		exists, err := a.storage.Exists(filename)
		if err != nil {
			log.WithError(err).WithField("file", filename).Warn("Failed to check file")
			return
		}
		if !exists {
			a.printf(goterm.YELLOW, "Delete of %s was rejected. Restoring it.", filename)
			a.pull(filename)
		}
	}
}

// pushAll pushes every file in the directory whose contents weren't synced
// already.
func (a *agent) pushAll() {
	names, err := a.storage.List()
	if err != nil {
		log.WithError(err).Warn("Failed to list shared directory")
		return
	}

	for _, name := range names {
		if strings.HasPrefix(name, ".") {
			continue
		}
		a.handleEvent(fswatch.Event{Op: fswatch.Created, Name: name})
	}
}

func (a *agent) decide(filename string) (bool, error) {
	switch a.policy {
	case config.VoteYes:
		return true, nil
	case config.VoteAsk:
		return a.prompt(fmt.Sprintf("Another client wants to delete %s. Allow it?", filename))
	default:
		return false, nil
	}
}

func (a *agent) pull(filename string) {
	a.suppress(filename)
	if err := a.engine.Pull(filename); err != nil {
		a.release(filename)
		log.WithError(err).WithField("file", filename).Warn("Failed to send pull")
	}
}

func (a *agent) fail(err error) {
	select {
	case a.fatal <- err:
	default:
	}
}

// suppress ignores watcher events for `filename` until it's released.
func (a *agent) suppress(filename string) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.suppressed[filename] = time.Time{}
}

// release stops ignoring watcher events for `filename` after echoWindow.
func (a *agent) release(filename string) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.suppressed[filename] = a.clock.Now().Add(echoWindow)
}

func (a *agent) isSuppressed(filename string) bool {
	a.lock.Lock()
	defer a.lock.Unlock()

	until, ok := a.suppressed[filename]
	if !ok {
		return false
	}
	if until.IsZero() || a.clock.Now().Before(until) {
		return true
	}
	delete(a.suppressed, filename)
	return false
}

func (a *agent) recordSynced(filename string) {
	hash, err := a.storage.Hash(filename)
	if err != nil {
		log.WithError(err).WithField("file", filename).Debug("Failed to hash synced file")
		a.forget(filename)
		return
	}

	a.lock.Lock()
	defer a.lock.Unlock()
	a.synced[filename] = hash
}

func (a *agent) syncedHash(filename string) string {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.synced[filename]
}

func (a *agent) forget(filename string) {
	a.lock.Lock()
	defer a.lock.Unlock()
	delete(a.synced, filename)
}

func (a *agent) printf(color int, format string, args ...interface{}) {
	fmt.Fprintln(a.out, goterm.Color(fmt.Sprintf(format, args...), color))
}
