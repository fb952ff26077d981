package fswatch

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/dfsync/pkg/audit"
	"github.com/sidkik/dfsync/pkg/errors"
)

var fs = afero.NewOsFs()

// Op is the kind of change to a file.
type Op int

const (
	// Created means a new file appeared.
	Created Op = iota
	// Modified means an existing file was written to.
	Modified
	// Deleted means a file was removed or renamed away.
	Deleted
)

func (op Op) String() string {
	switch op {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	}
	return "unknown"
}

// Event is a change to a file directly inside the watched directory.
type Event struct {
	Op   Op
	Name string
}

// Watcher reports changes to the regular files of one directory.
// Subdirectories and hidden files are ignored.
type Watcher struct {
	dir     string
	events  chan Event
	done    chan struct{}
	watcher *fsnotify.Watcher
}

// Watch starts watching `dir`.
func Watch(dir string) (*Watcher, error) {
	fi, err := fs.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: dir}
		}
		return nil, errors.WithContext(err, "stat")
	}
	if !fi.IsDir() {
		return nil, errors.InvalidDirectory{Path: dir, Reason: "it is not a directory"}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	if err := watcher.Add(dir); err != nil {
		// Close the watcher so that we release its file handles.
		if err := watcher.Close(); err != nil {
			log.WithError(err).Warn("Failed to close file watcher")
		}
		return nil, errors.WithContext(err, "watch")
	}

	w := newWatcher(dir)
	w.watcher = watcher
	go func() {
		defer audit.HandlePanic()
		w.run(watcher.Events, watcher.Errors)
	}()
	return w, nil
}

func newWatcher(dir string) *Watcher {
	return &Watcher{
		dir:    filepath.Clean(dir),
		events: make(chan Event),
		done:   make(chan struct{}),
	}
}

// Events returns the channel that changes are delivered on. It's closed once
// the watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}

// run translates raw notifications into Events. Events that are still
// waiting to be consumed absorb identical later ones, so a burst of writes
// to one file is delivered once.
func (w *Watcher) run(updates <-chan fsnotify.Event, errs <-chan error) {
	defer close(w.events)

	var queue []Event
	for {
		var out chan<- Event
		var next Event
		if len(queue) > 0 {
			out = w.events
			next = queue[0]
		}

		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if event, ok := translate(w.dir, update); ok {
				queue = enqueue(queue, event)
			}
		case err, ok := <-errs:
			if !ok {
				return
			}
			log.WithError(err).Warn("File watcher error")
		case out <- next:
			queue = queue[1:]
		case <-w.done:
			return
		}
	}
}

// enqueue adds `event` to `queue` unless an event with the same effect is
// already waiting.
func enqueue(queue []Event, event Event) []Event {
	for i, queued := range queue {
		if queued.Name != event.Name {
			continue
		}

		switch {
		case queued.Op == event.Op:
			return queue
		case queued.Op == Created && event.Op == Modified:
			return queue
		case event.Op == Deleted:
			// The file is gone, so earlier changes to it are moot.
			queue = append(queue[:i:i], queue[i+1:]...)
			return enqueue(queue, event)
		}
	}
	return append(queue, event)
}

func translate(dir string, update fsnotify.Event) (Event, bool) {
	if filepath.Dir(update.Name) != dir {
		return Event{}, false
	}

	name := filepath.Base(update.Name)
	if strings.HasPrefix(name, ".") {
		return Event{}, false
	}

	var op Op
	switch {
	case update.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		return Event{Op: Deleted, Name: name}, true
	case update.Op&fsnotify.Create != 0:
		op = Created
	case update.Op&fsnotify.Write != 0:
		op = Modified
	default:
		return Event{}, false
	}

	fi, err := fs.Stat(update.Name)
	if err != nil || !fi.Mode().IsRegular() {
		return Event{}, false
	}
	return Event{Op: op, Name: name}, true
}
