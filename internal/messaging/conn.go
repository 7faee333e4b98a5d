package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
)

// connHolder hands out a connection that becomes available once a worker
// has started.
type connHolder struct {
	once  sync.Once
	ready chan struct{}
	conn  *nats.Conn
	err   error
}

func (h *connHolder) set(conn *nats.Conn, err error) {
	h.once.Do(func() {
		h.conn, h.err = conn, err
		close(h.ready)
	})
}

// Conn waits until the connection is up or ctx ends.
func (h *connHolder) Conn(ctx context.Context) (*nats.Conn, error) {
	select {
	case <-h.ready:
		return h.conn, h.err
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for nats: %w", ctx.Err())
	}
}

func (h *connHolder) current() (*nats.Conn, error) {
	select {
	case <-h.ready:
		if h.err != nil {
			return nil, h.err
		}
		return h.conn, nil
	default:
		return nil, fmt.Errorf("nats connection not started")
	}
}

// Publish sends a message to the given subject
func (h *connHolder) Publish(subject string, data []byte) error {
	conn, err := h.current()
	if err != nil {
		return err
	}
	return conn.Publish(subject, data)
}

// Subscribe creates a subscription on the given subject.
// The handler is called for each message received.
// Returns an unsubscribe function to remove the subscription.
func (h *connHolder) Subscribe(subject string, handler func(subject string, data []byte)) (func(), error) {
	conn, err := h.current()
	if err != nil {
		return nil, err
	}
	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Unsubscribe() }, nil
}
