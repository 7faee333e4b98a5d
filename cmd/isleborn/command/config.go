package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"
)

const defaultReconcileInterval = 30 * time.Second

type Config struct {
	ReconcileInterval string          `json:"reconcile_interval"`
	Runtime           RuntimeConfig   `json:"runtime"`
	Storage           StorageConfig   `json:"storage"`
	Lock              LockConfig      `json:"lock"`
	Nats              NatsConfig      `json:"nats"`
	Api               ApiConfig       `json:"api"`
	Telemetry         TelemetryConfig `json:"telemetry"`
}

func (c *Config) Validate() error {
	el := errors.NewErrorList()

	if c.ReconcileInterval != "" {
		d, err := time.ParseDuration(c.ReconcileInterval)
		if err != nil {
			el.Add(fmt.Errorf("parsing reconcile_interval: %w", err))
		} else if d < time.Second {
			el.Add(fmt.Errorf("reconcile_interval must be at least 1 second"))
		}
	}

	el.Add(c.Runtime.validate())
	el.Add(c.Storage.validate())
	el.Add(c.Lock.validate())
	el.Add(c.Nats.validate())
	el.Add(c.Api.validate())

	if c.Lock.Driver == LockDriverNats && !c.Nats.enabled() {
		el.Add(fmt.Errorf("lock: the nats driver needs nats to be enabled"))
	}

	return el.Err()
}

func (c *Config) reconcileInterval() time.Duration {
	return durationOr(c.ReconcileInterval, defaultReconcileInterval)
}

// checkDuration validates an optional duration field. Empty is allowed.
func checkDuration(name, raw string, least time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	if d < least {
		return fmt.Errorf("%s must be at least %s", name, least)
	}
	return nil
}

// durationOr returns def when raw is empty. raw has already been validated.
func durationOr(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
