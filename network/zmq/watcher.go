// Package zmq delivers device events received on a ZMQ SUB socket.
package zmq

import (
	"context"
	"sync"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/niclabs/keychain-bridge/network"
	"github.com/pebbe/zmq4"
)

var logger = xlog.NewPackageLogger("github.com/niclabs/keychain-bridge", "zmq")

// Watcher subscribes to a device event publisher and forwards every event
// to its handler.
type Watcher struct {
	config  *Config
	handler network.TokenHandler

	mutex  sync.Mutex
	socket *zmq4.Socket
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a watcher over the configured endpoint. It does not connect
// until Start.
func New(config *Config, handler network.TokenHandler) *Watcher {
	return &Watcher{config: config, handler: handler}
}

// Start connects the SUB socket and starts polling events.
func (w *Watcher) Start(ctx context.Context) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.socket != nil {
		return errors.New("watcher already started")
	}
	socket, err := zmq4.NewSocket(zmq4.SUB)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := w.setup(socket); err != nil {
		_ = socket.Close()
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	w.socket = socket
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.poll(ctx, socket, w.done)
	logger.Infof("watching device events on %s", w.config.Endpoint)
	return nil
}

func (w *Watcher) setup(socket *zmq4.Socket) error {
	if err := socket.SetRcvtimeo(w.config.receiveTimeout()); err != nil {
		return errors.WithStack(err)
	}
	if err := socket.SetLinger(0); err != nil {
		return errors.WithStack(err)
	}
	if err := socket.SetSubscribe(""); err != nil {
		return errors.WithStack(err)
	}
	return errors.Wrapf(socket.Connect(w.config.Endpoint), "connect %s", w.config.Endpoint)
}

func (w *Watcher) poll(ctx context.Context, socket *zmq4.Socket, done chan struct{}) {
	defer close(done)
	defer socket.Close()
	for ctx.Err() == nil {
		rawMsg, err := socket.RecvMessageBytes(0)
		if err != nil {
			if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
				continue
			}
			if ctx.Err() == nil {
				logger.Errorf("%s", ReceiveMessageError.ComposeError(err))
			}
			return
		}
		ev, err := EventFromBytes(rawMsg)
		if err != nil {
			logger.Warningf("dropping event: %v", err)
			continue
		}
		w.dispatch(ev)
	}
}

func (w *Watcher) dispatch(ev *Event) {
	logger.KV(xlog.DEBUG, "event", string(ev.Type), "token", ev.TokenID)
	switch ev.Type {
	case Add:
		w.handler.AddToken(ev.TokenID)
	case Remove:
		w.handler.RemoveToken(ev.TokenID)
	}
}

// Stop cancels the polling goroutine and waits for it to close the socket.
func (w *Watcher) Stop() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.socket == nil {
		return nil
	}
	w.cancel()
	<-w.done
	w.socket = nil
	return nil
}
