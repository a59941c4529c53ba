package bridge

import (
	"github.com/cockroachdb/errors"
	"github.com/niclabs/keychain-bridge/config"
	"github.com/niclabs/keychain-bridge/network"
	"github.com/niclabs/keychain-bridge/network/zmq"
)

// NewWatcher creates the device watcher named by conf.Watcher.Type. Its
// events go to handler.
func NewWatcher(conf *config.Config, handler network.TokenHandler) (network.Watcher, error) {
	switch conf.Watcher.Type {
	case "zmq":
		return zmq.New(&zmq.Config{
			Endpoint: conf.Zmq.Endpoint,
			Timeout:  conf.Zmq.Timeout,
		}, handler), nil
	case "", config.None:
		return network.Nop{}, nil
	default:
		return nil, errors.Errorf("watcher option not found: '%s'", conf.Watcher.Type)
	}
}
