package server

import (
	"net"

	"github.com/sirupsen/logrus"

	"github.com/sidkik/dfsync/pkg/protocol"
)

// Observer is told about coordinator events. Methods are called without the
// coordinator lock held, possibly from several goroutines at once.
type Observer interface {
	ClientConnected(username string, addr net.Addr)
	ClientDisconnected(username string)
	RequestFinished(username string, request protocol.Message, handled bool)
}

type nopObserver struct{}

func (nopObserver) ClientConnected(string, net.Addr)               {}
func (nopObserver) ClientDisconnected(string)                      {}
func (nopObserver) RequestFinished(string, protocol.Message, bool) {}

type logObserver struct {
	logger *logrus.Logger
}

// NewLogObserver returns an Observer that records events in `logger`.
func NewLogObserver(logger *logrus.Logger) Observer {
	return logObserver{logger}
}

func (o logObserver) ClientConnected(username string, addr net.Addr) {
	o.logger.WithFields(logrus.Fields{
		"user":   username,
		"remote": addr.String(),
	}).Info("client connected")
}

func (o logObserver) ClientDisconnected(username string) {
	o.logger.WithField("user", username).Info("client disconnected")
}

func (o logObserver) RequestFinished(username string, request protocol.Message, handled bool) {
	o.logger.WithFields(logrus.Fields{
		"user":    username,
		"command": request.Kind.String(),
		"args":    request.Args(),
		"handled": handled,
	}).Info("request finished")
}
