// Package lock provides short-lived, expiring mutual exclusion keyed by name.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrBusy is returned when another holder owns the key.
var ErrBusy = errors.New("lock busy")

const pollInterval = 25 * time.Millisecond

// Token proves ownership of an acquired key.
type Token struct {
	Key   string
	Value string
	// Revision is set by backends that guard release with a sequence number.
	Revision uint64
}

// Service hands out locks that expire on their own after a TTL, so a crashed
// holder can never wedge a key.
type Service interface {
	// Acquire never waits: a held key yields ErrBusy.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Token, error)
	// Release frees the key if tok still holds it. Releasing a token that
	// expired or was superseded is a no-op.
	Release(ctx context.Context, tok Token) error
}

// AcquireWithin retries Acquire until wait has elapsed, then gives up with
// ErrBusy. A zero wait tries exactly once.
func AcquireWithin(ctx context.Context, svc Service, key string, ttl, wait time.Duration) (Token, error) {
	deadline := time.Now().Add(wait)
	for {
		tok, err := svc.Acquire(ctx, key, ttl)
		if !errors.Is(err, ErrBusy) {
			return tok, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Token{}, err
		}

		t := time.NewTimer(min(pollInterval, remaining))
		select {
		case <-ctx.Done():
			t.Stop()
			return Token{}, ctx.Err()
		case <-t.C:
		}
	}
}
