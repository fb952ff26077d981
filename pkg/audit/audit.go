// Package audit records a machine readable trail of what the sync service
// did: who connected, which requests were admitted, and which warnings and
// errors were logged along the way.
package audit

import (
	"io"
	"io/ioutil"
	"runtime/debug"
	goSync "sync"

	"github.com/sirupsen/logrus"

	"github.com/sidkik/dfsync/pkg/version"
)

var (
	// Log is the global audit logger. Entries logged through it are written
	// to the audit output as JSON.
	Log = newAuditLogger()

	// source is added to every entry to tell apart server and client
	// trails.
	source string

	outputLock goSync.Mutex
	output     io.Writer = ioutil.Discard
)

const (
	auditStream   = "audit"
	loggingStream = "logging"
)

// auditFormatter formats entries as one JSON object per line.
var auditFormatter = &logrus.JSONFormatter{
	FieldMap: logrus.FieldMap{
		logrus.FieldKeyTime:  "timestamp",
		logrus.FieldKeyLevel: "status",
		logrus.FieldKeyMsg:   "message",
	},
}

func newAuditLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(ioutil.Discard)
	logger.AddHook(&hook{logrus.AllLevels, auditStream})
	return logger
}

// SetOutput sets where audit entries are written. Entries are discarded
// until it's called.
func SetOutput(w io.Writer) {
	outputLock.Lock()
	defer outputLock.Unlock()
	output = w
}

// SetSource sets the source that is automatically added to audit entries.
func SetSource(s string) {
	source = s
}

// NewLogHook creates a hook that copies warnings and errors from another
// logger into the audit output.
func NewLogHook() logrus.Hook {
	levels := []logrus.Level{logrus.WarnLevel, logrus.ErrorLevel}
	return &hook{levels, loggingStream}
}

type hook struct {
	levels     []logrus.Level
	streamType string
}

func (h *hook) Levels() []logrus.Level {
	return h.levels
}

func (h *hook) Fire(entry *logrus.Entry) error {
	dataCopy := map[string]interface{}{
		"stream":  h.streamType,
		"version": version.Version,
	}
	if source != "" {
		dataCopy["source"] = source
	}
	for k, v := range entry.Data {
		dataCopy[k] = v
	}

	// Copy the entry so that the caller's fields aren't modified.
	entryCopy := *entry
	entryCopy.Data = dataCopy

	// The trail has no "panic" status, so panics are recorded as fatal.
	if entry.Level == logrus.PanicLevel {
		entryCopy.Level = logrus.FatalLevel
	}

	jsonBytes, err := auditFormatter.Format(&entryCopy)
	if err != nil {
		logrus.WithError(err).Debug("Failed to marshal audit entry")
		return nil
	}

	outputLock.Lock()
	defer outputLock.Unlock()
	if _, err := output.Write(jsonBytes); err != nil {
		logrus.WithError(err).Debug("Failed to write audit entry")
	}

	// Never return an error because logrus prints hook errors directly to
	// stderr.
	return nil
}

// HandlePanic records a panic before letting it crash the process. It must be
// called directly by defer.
func HandlePanic() {
	if r := recover(); r != nil {
		Log.WithField("stack", string(debug.Stack())).Errorf("Panic: %v", r)
		panic(r)
	}
}
