package driver

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultTickLength = time.Second * 30
)

// Manager is a periodic maintenance task.
type Manager interface {
	Tick(context.Context) error
}

// Driver runs its managers on a fixed interval until the context ends.
type Driver struct {
	tickLength time.Duration
	managers   []Manager
}

func NewDriver(managers []Manager, opts ...DriverOpt) *Driver {
	d := &Driver{
		tickLength: DefaultTickLength,
		managers:   managers,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *Driver) Start(ctx context.Context) error {
	ticker := time.NewTicker(d.tickLength)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick runs every manager once. A failing manager is logged and does not
// keep the others from running.
func (d *Driver) Tick(ctx context.Context) int {
	failed := 0
	for _, m := range d.managers {
		if err := m.Tick(ctx); err != nil {
			failed++
			slog.WarnContext(ctx, "maintenance tick failed", "manager", managerName(m), "error", err)
		}
	}
	return failed
}

func managerName(m Manager) string {
	if n, ok := m.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "unnamed"
}
