package zmq

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

type Config struct {
	// Endpoint is the publisher the watcher connects to.
	Endpoint string
	// Timeout is the receive timeout in milliseconds.
	Timeout int
}

// GetConfig reads the zmq section of v.
func GetConfig(v *viper.Viper) (*Config, error) {
	var conf Config
	if err := v.UnmarshalKey("zmq", &conf); err != nil {
		return nil, errors.Wrap(err, "zmq config")
	}
	return &conf, nil
}

func (c *Config) receiveTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.Timeout) * time.Millisecond
}
