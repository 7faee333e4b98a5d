package command

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/pixil98/go-service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pixil98/go-isleborn/internal/api"
	"github.com/pixil98/go-isleborn/internal/driver"
	"github.com/pixil98/go-isleborn/internal/instance"
	"github.com/pixil98/go-isleborn/internal/island"
	"github.com/pixil98/go-isleborn/internal/lock"
	"github.com/pixil98/go-isleborn/internal/messaging"
	"github.com/pixil98/go-isleborn/internal/metrics"
)

func BuildWorkers(config interface{}) (service.WorkerList, error) {
	cfg, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("unable to cast config")
	}

	workers := service.WorkerList{}

	tracing, err := cfg.Telemetry.buildTracing()
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	workers["tracing"] = tracing

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(reg); err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	// Messaging is optional. Without it there are no lifecycle events and
	// locks stay in process.
	conn, err := cfg.Nats.buildConn()
	if err != nil {
		return nil, err
	}
	var notifier instance.Notifier
	var connector lock.Connector
	if conn != nil {
		workers["nats"] = conn
		notifier = messaging.NewEventPublisher(conn)
		connector = conn
	}

	registry, err := cfg.Runtime.buildRegistry(notifier)
	if err != nil {
		return nil, fmt.Errorf("creating instance registry: %w", err)
	}

	tiers, closer, err := cfg.Storage.BuildTiers(context.Background())
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	workers["storage"] = &closeWorker{name: "storage", closer: closer}

	locks, err := cfg.Lock.buildLocks(connector)
	if err != nil {
		return nil, err
	}
	islands := island.NewStore(tiers, locks, cfg.Lock.storeOpts()...)

	workers["driver"] = driver.NewDriver([]driver.Manager{
		instance.NewReconciler(registry),
		island.NewPromoter(islands),
	}, driver.WithTickLength(cfg.reconcileInterval()))

	workers["api"] = api.NewServer(
		api.NewHandler(registry, islands, cfg.Runtime.MountRoot),
		reg,
		cfg.Api.serverOpts()...,
	)

	return workers, nil
}

// closeWorker releases a resource when the app stops.
type closeWorker struct {
	name   string
	closer io.Closer
}

func (w *closeWorker) Start(ctx context.Context) error {
	<-ctx.Done()
	if err := w.closer.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", w.name, err)
	}
	slog.InfoContext(ctx, "closed", "resource", w.name)
	return nil
}
