package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-isleborn/internal/island"
	"github.com/pixil98/go-isleborn/internal/lock"
)

type LockDriver string

const (
	LockDriverMemory LockDriver = "memory"
	LockDriverNats   LockDriver = "nats"
)

type LockConfig struct {
	Driver LockDriver `json:"driver"`
	Bucket string     `json:"bucket"`
	TTL    string     `json:"ttl"`
	// Wait is how long an upsert waits for a held lock before reporting busy.
	Wait string `json:"wait"`
}

func (c *LockConfig) validate() error {
	el := errors.NewErrorList()

	switch c.Driver {
	case "", LockDriverMemory, LockDriverNats:
	default:
		el.Add(fmt.Errorf("lock: unknown driver %q", c.Driver))
	}

	el.Add(checkDuration("lock.ttl", c.TTL, time.Second))
	el.Add(checkDuration("lock.wait", c.Wait, 0))

	return el.Err()
}

func (c *LockConfig) ttl() time.Duration {
	return durationOr(c.TTL, island.DefaultLockTTL)
}

func (c *LockConfig) buildLocks(conn lock.Connector) (lock.Service, error) {
	if c.Driver != LockDriverNats {
		return lock.NewMemory(), nil
	}
	if conn == nil {
		return nil, fmt.Errorf("lock: the nats driver needs nats to be enabled")
	}
	return lock.NewNats(conn, c.Bucket, c.ttl())
}

func (c *LockConfig) storeOpts() []island.StoreOpt {
	return []island.StoreOpt{
		island.WithLockTTL(c.ttl()),
		island.WithLockWait(durationOr(c.Wait, island.DefaultLockWait)),
	}
}
