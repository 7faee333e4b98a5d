package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const DefaultBucket = "locks"

// Connector yields a NATS connection once one is available.
type Connector interface {
	Conn(ctx context.Context) (*nats.Conn, error)
}

// Nats keeps locks in a JetStream key-value bucket. Entries age out with the
// bucket's TTL, which is fixed when the bucket is created. The bucket is
// bound on first use.
type Nats struct {
	connector Connector
	bucket    string
	ttl       time.Duration

	mu sync.Mutex
	kv jetstream.KeyValue
}

func NewNats(connector Connector, bucket string, ttl time.Duration) (*Nats, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lock ttl must be positive")
	}
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &Nats{connector: connector, bucket: bucket, ttl: ttl}, nil
}

func (n *Nats) bind(ctx context.Context) (jetstream.KeyValue, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.kv != nil {
		return n.kv, nil
	}

	nc, err := n.connector.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      n.bucket,
		Description: "isleborn owner write locks",
		TTL:         n.ttl,
		History:     1,
		Storage:     jetstream.MemoryStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("creating lock bucket %s: %w", n.bucket, err)
	}
	n.kv = kv
	return kv, nil
}

// Acquire creates the key. Callers asking for a ttl other than the bucket's
// get the bucket's.
func (n *Nats) Acquire(ctx context.Context, key string, ttl time.Duration) (Token, error) {
	kv, err := n.bind(ctx)
	if err != nil {
		return Token{}, err
	}
	if ttl != n.ttl {
		slog.DebugContext(ctx, "lock ttl differs from bucket ttl", "key", key, "requested", ttl, "bucket", n.ttl)
	}

	value := uuid.NewString()
	rev, err := kv.Create(ctx, key, []byte(value))
	if errors.Is(err, jetstream.ErrKeyExists) {
		return Token{}, ErrBusy
	}
	if err != nil {
		return Token{}, fmt.Errorf("acquiring %s: %w", key, err)
	}
	return Token{Key: key, Value: value, Revision: rev}, nil
}

func (n *Nats) Release(ctx context.Context, tok Token) error {
	kv, err := n.bind(ctx)
	if err != nil {
		return err
	}

	entry, err := kv.Get(ctx, tok.Key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("releasing %s: %w", tok.Key, err)
	}
	if string(entry.Value()) != tok.Value {
		return nil
	}

	err = kv.Delete(ctx, tok.Key, jetstream.LastRevision(entry.Revision()))
	if err != nil {
		// Lost a race with expiry and a new holder; theirs now.
		slog.DebugContext(ctx, "lock release lost race", "key", tok.Key, "error", err)
	}
	return nil
}
