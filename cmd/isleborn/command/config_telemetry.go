package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/pixil98/go-isleborn/internal/telemetry"
)

const defaultServiceName = "isleborn-fleet"

type TelemetryConfig struct {
	// Endpoint is an OTLP/HTTP traces URL. Tracing is off when empty.
	Endpoint    string `json:"endpoint"`
	ServiceName string `json:"service_name"`
}

func (c *TelemetryConfig) buildTracing() (*tracingWorker, error) {
	name := c.ServiceName
	if name == "" {
		name = defaultServiceName
	}
	shutdown, err := telemetry.Setup(context.Background(), name, c.Endpoint)
	if err != nil {
		return nil, err
	}
	return &tracingWorker{shutdown: shutdown}, nil
}

// tracingWorker flushes buffered spans when the app stops.
type tracingWorker struct {
	shutdown telemetry.ShutdownFunc
}

func (w *tracingWorker) Start(ctx context.Context) error {
	<-ctx.Done()

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.shutdown(flushCtx); err != nil {
		slog.WarnContext(ctx, "flushing traces", "error", err)
	}
	return nil
}
