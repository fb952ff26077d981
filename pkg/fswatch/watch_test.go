package fswatch

import (
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/dfsync/pkg/errors"
)

func TestTranslate(t *testing.T) {
	fs = afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/share/subdir", 0755))
	require.NoError(t, afero.WriteFile(fs, "/share/notes.txt", []byte("notes"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/share/.notes.txt.swp", []byte("swap"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/share/subdir/nested.txt", []byte("nested"), 0644))

	tests := []struct {
		name     string
		update   fsnotify.Event
		expEvent Event
		expOk    bool
	}{
		{
			name:     "Create",
			update:   fsnotify.Event{Name: "/share/notes.txt", Op: fsnotify.Create},
			expEvent: Event{Op: Created, Name: "notes.txt"},
			expOk:    true,
		},
		{
			name:     "Write",
			update:   fsnotify.Event{Name: "/share/notes.txt", Op: fsnotify.Write},
			expEvent: Event{Op: Modified, Name: "notes.txt"},
			expOk:    true,
		},
		{
			name:     "Remove",
			update:   fsnotify.Event{Name: "/share/gone.txt", Op: fsnotify.Remove},
			expEvent: Event{Op: Deleted, Name: "gone.txt"},
			expOk:    true,
		},
		{
			name:     "Rename",
			update:   fsnotify.Event{Name: "/share/notes.txt", Op: fsnotify.Rename},
			expEvent: Event{Op: Deleted, Name: "notes.txt"},
			expOk:    true,
		},
		{
			name:   "Chmod",
			update: fsnotify.Event{Name: "/share/notes.txt", Op: fsnotify.Chmod},
		},
		{
			name:   "Directory",
			update: fsnotify.Event{Name: "/share/subdir", Op: fsnotify.Create},
		},
		{
			name:   "Nested",
			update: fsnotify.Event{Name: "/share/subdir/nested.txt", Op: fsnotify.Write},
		},
		{
			name:   "Hidden",
			update: fsnotify.Event{Name: "/share/.notes.txt.swp", Op: fsnotify.Write},
		},
		{
			name:   "VanishedBeforeStat",
			update: fsnotify.Event{Name: "/share/temp.txt", Op: fsnotify.Create},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			event, ok := translate("/share", test.update)
			assert.Equal(t, test.expOk, ok)
			assert.Equal(t, test.expEvent, event)
		})
	}
}

func TestEnqueue(t *testing.T) {
	created := Event{Op: Created, Name: "a.txt"}
	modified := Event{Op: Modified, Name: "a.txt"}
	deleted := Event{Op: Deleted, Name: "a.txt"}
	other := Event{Op: Modified, Name: "b.txt"}

	tests := []struct {
		name   string
		events []Event
		exp    []Event
	}{
		{
			name:   "Duplicates",
			events: []Event{modified, modified, other, modified},
			exp:    []Event{modified, other},
		},
		{
			name:   "WriteAfterCreate",
			events: []Event{created, modified},
			exp:    []Event{created},
		},
		{
			name:   "DeleteSupersedes",
			events: []Event{created, other, modified, deleted},
			exp:    []Event{other, deleted},
		},
		{
			name:   "RecreateAfterDelete",
			events: []Event{deleted, created},
			exp:    []Event{deleted, created},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			var queue []Event
			for _, event := range test.events {
				queue = enqueue(queue, event)
			}
			assert.Equal(t, test.exp, queue)
		})
	}
}

func TestRun(t *testing.T) {
	fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/share/a.txt", []byte("a"), 0644))

	// Unbuffered, so every send returns only once run has taken the update.
	updates := make(chan fsnotify.Event)
	errs := make(chan error)
	w := newWatcher("/share/")
	go w.run(updates, errs)

	// Queue a burst before anything is consumed.
	updates <- fsnotify.Event{Name: "/share/a.txt", Op: fsnotify.Create}
	updates <- fsnotify.Event{Name: "/share/a.txt", Op: fsnotify.Write}
	updates <- fsnotify.Event{Name: "/share/a.txt", Op: fsnotify.Write}
	errs <- errors.New("queue overflow")
	updates <- fsnotify.Event{Name: "/share/b.txt", Op: fsnotify.Remove}

	assert.Equal(t, Event{Op: Created, Name: "a.txt"}, receive(t, w))
	assert.Equal(t, Event{Op: Deleted, Name: "b.txt"}, receive(t, w))

	assert.NoError(t, w.Close())
	select {
	case _, ok := <-w.Events():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("events channel was not closed")
	}
}

func TestWatchMissingDir(t *testing.T) {
	fs = afero.NewMemMapFs()
	_, err := Watch("/missing")
	assert.Equal(t, errors.FileNotFound{Path: "/missing"}, err)
}

func receive(t *testing.T, w *Watcher) Event {
	select {
	case event := <-w.Events():
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}
