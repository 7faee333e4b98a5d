package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Client is a worker holding a connection to an external NATS server.
type Client struct {
	connHolder
	url  string
	name string
}

func NewClient(url, name string) *Client {
	return &Client{connHolder: connHolder{ready: make(chan struct{})}, url: url, name: name}
}

// Dial connects immediately, for callers that are not run as a worker.
func (c *Client) Dial(ctx context.Context) (*nats.Conn, error) {
	conn, err := c.connect(ctx, false)
	c.set(conn, err)
	return conn, err
}

// Start keeps retrying the first connection in the background, so the worker
// comes up even while the server is still down.
func (c *Client) Start(ctx context.Context) error {
	conn, err := c.connect(ctx, true)
	c.set(conn, err)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "nats client started", "url", c.url, "connected", conn.IsConnected())

	<-ctx.Done()
	if err := conn.Drain(); err != nil {
		slog.WarnContext(ctx, "draining nats connection", "error", err)
		conn.Close()
	}
	return nil
}

func (c *Client) connect(ctx context.Context, retry bool) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(c.name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.WarnContext(ctx, "nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.InfoContext(ctx, "nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if retry {
		opts = append(opts, nats.RetryOnFailedConnect(true))
	}
	conn, err := nats.Connect(c.url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", c.url, err)
	}
	return conn, nil
}
