package zmq

import (
	"github.com/cockroachdb/errors"
	"github.com/pebbe/zmq4"
)

// Publisher is the sending side of device events, used by tools that
// provision tokens.
type Publisher struct {
	socket *zmq4.Socket
}

// NewPublisher binds a PUB socket on endpoint.
func NewPublisher(endpoint string) (*Publisher, error) {
	socket, err := zmq4.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := socket.Bind(endpoint); err != nil {
		_ = socket.Close()
		return nil, errors.Wrapf(err, "bind %s", endpoint)
	}
	return &Publisher{socket: socket}, nil
}

func (p *Publisher) Publish(ev *Event) error {
	frames := ev.GetBytesLists()
	_, err := p.socket.SendMessage(frames[0], frames[1])
	return errors.WithStack(err)
}

func (p *Publisher) Close() error {
	_ = p.socket.SetLinger(0)
	return errors.WithStack(p.socket.Close())
}
