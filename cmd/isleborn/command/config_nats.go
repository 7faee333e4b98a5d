package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-service"

	"github.com/pixil98/go-isleborn/internal/lock"
	"github.com/pixil98/go-isleborn/internal/messaging"
)

type NatsMode string

const (
	NatsModeEmbedded NatsMode = "embedded"
	NatsModeExternal NatsMode = "external"
	NatsModeOff      NatsMode = "off"
)

type NatsConfig struct {
	Mode NatsMode `json:"mode"`

	// Embedded server.
	Host         string `json:"host"`
	Port         int    `json:"port"`
	StoreDir     string `json:"store_dir"`
	StartTimeout string `json:"start_timeout"`

	// External server.
	Url string `json:"url"`
}

// natsConn is a running NATS connection owner: a worker that other
// components can publish through and take connections from.
type natsConn interface {
	service.Worker
	lock.Connector
	messaging.Publisher
}

func (c *NatsConfig) validate() error {
	el := errors.NewErrorList()

	switch c.Mode {
	case "", NatsModeEmbedded:
		if c.Port < -1 || c.Port > 65535 {
			el.Add(fmt.Errorf("nats: port %d out of range", c.Port))
		}
	case NatsModeExternal:
		if c.Url == "" {
			el.Add(fmt.Errorf("nats: url is required in external mode"))
		}
	case NatsModeOff:
	default:
		el.Add(fmt.Errorf("nats: unknown mode %q", c.Mode))
	}

	el.Add(checkDuration("nats.start_timeout", c.StartTimeout, time.Second))

	return el.Err()
}

func (c *NatsConfig) enabled() bool {
	return c.Mode != NatsModeOff
}

// buildConn returns nil when NATS is turned off.
func (c *NatsConfig) buildConn() (natsConn, error) {
	switch c.Mode {
	case NatsModeOff:
		return nil, nil
	case NatsModeExternal:
		return messaging.NewClient(c.Url, "isleborn"), nil
	}

	var opts []messaging.NatsServerOpt
	if c.StartTimeout != "" {
		opts = append(opts, messaging.WithStartTimeout(durationOr(c.StartTimeout, 0)))
	}
	if c.Host != "" {
		opts = append(opts, messaging.WithHost(c.Host))
	}
	if c.Port != 0 {
		opts = append(opts, messaging.WithPort(c.Port))
	}
	if c.StoreDir != "" {
		opts = append(opts, messaging.WithStoreDir(c.StoreDir))
	}

	s, err := messaging.NewNatsServer(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating nats server: %w", err)
	}
	return s, nil
}
