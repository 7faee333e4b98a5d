package command

import (
	"fmt"
	"net"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-isleborn/internal/api"
)

type ApiConfig struct {
	Addr            string `json:"addr"`
	ShutdownTimeout string `json:"shutdown_timeout"`
}

func (c *ApiConfig) validate() error {
	el := errors.NewErrorList()

	if c.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Addr); err != nil {
			el.Add(fmt.Errorf("api: invalid addr %q: %w", c.Addr, err))
		}
	}
	el.Add(checkDuration("api.shutdown_timeout", c.ShutdownTimeout, 0))

	return el.Err()
}

func (c *ApiConfig) serverOpts() []api.ServerOpt {
	var opts []api.ServerOpt
	if c.Addr != "" {
		opts = append(opts, api.WithAddr(c.Addr))
	}
	if c.ShutdownTimeout != "" {
		opts = append(opts, api.WithShutdownTimeout(durationOr(c.ShutdownTimeout, 10*time.Second)))
	}
	return opts
}
