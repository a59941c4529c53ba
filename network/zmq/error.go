package zmq

import "fmt"

type WatcherError uint8

const (
	NoError WatcherError = iota
	// Network Errors
	ReceiveMessageError
	ParseMessageError
	// Event Errors
	UnknownEventError
	EmptyTokenError
	// Invalid error number (keep at the end)
	UnknownError = WatcherError(1<<8 - 1)
)

var ErrorToString = map[WatcherError]string{
	NoError:             "not an error",
	ReceiveMessageError: "cannot receive message",
	ParseMessageError:   "cannot parse received message",
	UnknownEventError:   "unknown event type",
	EmptyTokenError:     "event without token id",
	UnknownError:        "unknown error",
}

func (err WatcherError) Error() string {
	if msg, ok := ErrorToString[err]; ok {
		return msg
	}
	return ErrorToString[UnknownError]
}

func (err WatcherError) ComposeError(err2 error) string {
	return fmt.Sprintf("%s: %s", err.Error(), err2.Error())
}
