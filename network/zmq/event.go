package zmq

import (
	"github.com/cockroachdb/errors"
)

// EventType is the first frame of a device event.
type EventType string

const (
	Add    EventType = "add"
	Remove EventType = "remove"
)

// An Event is a two frame message: the event type and the token id.
type Event struct {
	Type    EventType
	TokenID string
}

func EventFromBytes(rawMsg [][]byte) (*Event, error) {
	if len(rawMsg) != 2 {
		return nil, errors.Wrapf(ParseMessageError, "got %d frames", len(rawMsg))
	}
	ev := &Event{Type: EventType(rawMsg[0]), TokenID: string(rawMsg[1])}
	if ev.Type != Add && ev.Type != Remove {
		return nil, errors.Wrapf(UnknownEventError, "%q", rawMsg[0])
	}
	if ev.TokenID == "" {
		return nil, EmptyTokenError
	}
	return ev, nil
}

func (ev *Event) GetBytesLists() [][]byte {
	return [][]byte{[]byte(ev.Type), []byte(ev.TokenID)}
}
