package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// NatsServer runs an embedded NATS server with JetStream and keeps one
// in-process client connection to it.
type NatsServer struct {
	connHolder
	ns *server.Server

	startupTimeout time.Duration
	host           string
	port           int
	storeDir       string
}

func NewNatsServer(opts ...NatsServerOpt) (*NatsServer, error) {
	s := &NatsServer{
		connHolder:     connHolder{ready: make(chan struct{})},
		startupTimeout: 10 * time.Second,
		host:           "127.0.0.1",
	}

	for _, opt := range opts {
		opt(s)
	}

	ns, err := server.NewServer(&server.Options{
		Host:      s.host,
		Port:      s.port,
		JetStream: true,
		StoreDir:  s.storeDir,
		NoSigs:    true, // Let the application handle signals
		NoLog:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating nats server: %w", err)
	}
	s.ns = ns

	return s, nil
}

func (n *NatsServer) Start(ctx context.Context) error {
	n.ns.Start()

	if !n.ns.ReadyForConnections(n.startupTimeout) {
		err := fmt.Errorf("nats server not ready for connections")
		n.set(nil, err)
		n.ns.Shutdown()
		return err
	}

	// Create internal client connection
	conn, err := nats.Connect(n.ns.ClientURL(), nats.Name("isleborn-embedded"))
	if err != nil {
		err = fmt.Errorf("creating nats client connection: %w", err)
		n.set(nil, err)
		n.ns.Shutdown()
		return err
	}
	n.set(conn, nil)

	slog.InfoContext(ctx, "nats server listening", "addr", n.ns.Addr(), "jetstream", n.ns.JetStreamEnabled())

	<-ctx.Done()
	conn.Close()
	n.ns.Shutdown()
	n.ns.WaitForShutdown()

	return nil
}

// ClientURL is where external clients can reach the server.
func (n *NatsServer) ClientURL() string {
	return n.ns.ClientURL()
}
