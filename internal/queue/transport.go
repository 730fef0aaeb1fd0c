// Package queue publishes reduction requests to the message broker.
//
// Two transports are provided: STOMP, for the facility's ActiveMQ broker, and
// Redis, for deployments where the reduction worker consumes Redis lists.
// Both deliver a message body to a named destination with a priority.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	TransportStomp = "stomp"
	TransportRedis = "redis"
)

var (
	// ErrConnect wraps every failure to reach the broker.
	ErrConnect = errors.New("cannot connect to message broker")

	// ErrNotConnected is returned when publishing on a closed transport.
	ErrNotConnected = errors.New("transport not connected")
)

// Transport delivers messages to a broker destination.
type Transport interface {
	Publish(ctx context.Context, destination string, body []byte, priority int) error
	Close() error
}

// Config selects and configures a transport.
type Config struct {
	Transport      string        `yaml:"transport"`
	Address        string        `yaml:"address"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	Namespace      string        `yaml:"namespace,omitempty"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Transport == "" {
		c.Transport = TransportStomp
	}
	if c.Namespace == "" {
		c.Namespace = "isis"
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.PublishTimeout == 0 {
		c.PublishTimeout = 10 * time.Second
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportStomp, TransportRedis:
	default:
		return fmt.Errorf("unsupported queue transport: %s (must be '%s' or '%s')", c.Transport, TransportStomp, TransportRedis)
	}
	if c.Address == "" {
		return errors.New("queue address is required")
	}
	if c.ConnectTimeout <= 0 {
		return errors.New("queue connect_timeout must be positive")
	}
	if c.PublishTimeout <= 0 {
		return errors.New("queue publish_timeout must be positive")
	}
	return nil
}

// Dial connects the configured transport. Errors match ErrConnect.
func Dial(ctx context.Context, cfg Config) (Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Transport {
	case TransportRedis:
		t, err := DialRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		t, err := DialStomp(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}
