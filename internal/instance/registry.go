package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pixil98/go-isleborn/internal/metrics"
	"github.com/pixil98/go-isleborn/internal/owner"
	"github.com/pixil98/go-isleborn/internal/runtime"
)

const (
	DefaultLaunchTimeout = 30 * time.Second
	DefaultStopTimeout   = 20 * time.Second
	DefaultImage         = "isleborn/godot_server:latest"
	DefaultNetwork       = "bridge"
)

var tracer = otel.Tracer("github.com/pixil98/go-isleborn/internal/instance")

// Registry is the authoritative owner -> instance map. Transitions for one
// owner are linearized; a second caller waits for the in-flight transition
// and then observes its result.
type Registry struct {
	rt       runtime.Runtime
	namer    *runtime.Namer
	notifier Notifier
	now      func() time.Time

	image         string
	network       string
	launchTimeout time.Duration
	stopTimeout   time.Duration

	mu      sync.RWMutex
	entries map[owner.ID]*entry
}

type entry struct {
	// sem is held for the whole of a transition.
	sem chan struct{}
	// rec is guarded by Registry.mu.
	rec Record
}

func NewRegistry(rt runtime.Runtime, namer *runtime.Namer, opts ...RegistryOpt) *Registry {
	r := &Registry{
		rt:            rt,
		namer:         namer,
		now:           time.Now,
		image:         DefaultImage,
		network:       DefaultNetwork,
		launchTimeout: DefaultLaunchTimeout,
		stopTimeout:   DefaultStopTimeout,
		entries:       map[owner.ID]*entry{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start brings up the owner's world instance. An instance that is already
// running (or whose launch is being adopted) is returned as Existing.
func (r *Registry) Start(ctx context.Context, id owner.ID, mountPath string) (Started, error) {
	ctx, span := tracer.Start(ctx, "instance.Start", trace.WithAttributes(attribute.String("owner", id.String())))
	defer span.End()

	res, err := r.start(ctx, id, mountPath)
	result := "ok"
	switch {
	case err != nil:
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case res.Existing:
		result = "existing"
	}
	metrics.InstanceTransitions.WithLabelValues("start", result).Inc()
	return res, err
}

func (r *Registry) start(ctx context.Context, id owner.ID, mountPath string) (Started, error) {
	e, err := r.acquire(ctx, id, true)
	if err != nil {
		return Started{}, fmt.Errorf("starting %s: %w", id, err)
	}
	defer r.release(e)

	name, err := r.namer.Name(id.String())
	if err != nil {
		r.update(e, func(rec *Record) {
			rec.State = StateFailed
			rec.LastError = err.Error()
		})
		return Started{}, fmt.Errorf("starting %s: naming instance: %w", id, err)
	}

	rec := r.snapshot(e)
	switch rec.State {
	case StateRunning:
		return Started{Handle: rec.Handle, Existing: true}, nil
	case StateStarting, StateStopping:
		if rec.State == StateStarting && rec.Handle != "" {
			return Started{Handle: rec.Handle, Existing: true}, nil
		}
		// An earlier launch timed out or a stop failed part way. The runtime
		// may still have the entity under its derived name.
		h, running, err := r.rt.Query(ctx, name)
		if err != nil {
			r.update(e, func(rec *Record) { rec.LastError = err.Error() })
			return Started{}, fmt.Errorf("starting %s: querying runtime: %w", id, err)
		}
		if running {
			r.adopt(ctx, e, name, h, mountPath)
			return Started{Handle: h, Existing: true}, nil
		}
	}

	return r.launch(ctx, e, name, mountPath)
}

func (r *Registry) launch(ctx context.Context, e *entry, name, mountPath string) (Started, error) {
	id := e.rec.Owner

	args, err := r.namer.Args(runtime.TemplateData{Owner: id.String(), MountPath: mountPath})
	if err != nil {
		r.update(e, func(rec *Record) {
			rec.State = StateFailed
			rec.LastError = err.Error()
		})
		return Started{}, fmt.Errorf("starting %s: building args: %w", id, err)
	}

	spec := runtime.LaunchSpec{
		Name:    name,
		Image:   r.image,
		Network: r.network,
		Args:    args,
	}
	if mountPath != "" {
		spec.Mounts = []runtime.Mount{{Source: mountPath, Target: runtime.DefaultMountTarget}}
	}

	r.update(e, func(rec *Record) {
		rec.State = StateStarting
		rec.Handle = ""
		rec.Name = name
		rec.MountPath = mountPath
		rec.LastError = ""
	})

	lctx, cancel := context.WithTimeout(ctx, r.launchTimeout)
	defer cancel()

	h, err := r.rt.Launch(lctx, spec)
	if errors.Is(err, runtime.ErrNameConflict) {
		// Something (a previous process of ours) already runs under this
		// name. Adopt it rather than launching a second world.
		existing, running, qerr := r.rt.Query(lctx, name)
		if qerr == nil && running {
			r.adopt(ctx, e, name, existing, mountPath)
			return Started{Handle: existing, Existing: true}, nil
		}
	}
	if err != nil {
		timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(lctx.Err(), context.DeadlineExceeded)
		rec := r.update(e, func(rec *Record) {
			rec.LastError = err.Error()
			if !timedOut {
				rec.State = StateFailed
			}
		})
		if !timedOut {
			r.notify(ctx, rec, EventFailed)
		}
		slog.WarnContext(ctx, "launching instance", "owner", id, "name", name, "timed_out", timedOut, "error", err)
		return Started{}, fmt.Errorf("starting %s: %w", id, err)
	}

	rec := r.update(e, func(rec *Record) {
		rec.State = StateRunning
		rec.Handle = h
		rec.StartedAt = r.now().UTC()
	})
	slog.InfoContext(ctx, "instance started", "owner", id, "name", name, "handle", h)
	r.notify(ctx, rec, EventStarted)
	return Started{Handle: h}, nil
}

func (r *Registry) adopt(ctx context.Context, e *entry, name string, h runtime.Handle, mountPath string) {
	rec := r.update(e, func(rec *Record) {
		rec.State = StateRunning
		rec.Handle = h
		rec.Name = name
		if mountPath != "" {
			rec.MountPath = mountPath
		}
		rec.LastError = ""
		if rec.StartedAt.IsZero() {
			rec.StartedAt = r.now().UTC()
		}
	})
	slog.InfoContext(ctx, "adopted running instance", "owner", rec.Owner, "name", name, "handle", h)
	r.notify(ctx, rec, EventStarted)
}

// Stop terminates the owner's instance and forgets it. Stopping an entity the
// runtime no longer knows about counts as success. On failure the record is
// kept in Stopping so the call can be retried.
func (r *Registry) Stop(ctx context.Context, id owner.ID) error {
	ctx, span := tracer.Start(ctx, "instance.Stop", trace.WithAttributes(attribute.String("owner", id.String())))
	defer span.End()

	err := r.stop(ctx, id)
	result := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.InstanceTransitions.WithLabelValues("stop", result).Inc()
	return err
}

func (r *Registry) stop(ctx context.Context, id owner.ID) error {
	e, err := r.acquire(ctx, id, false)
	if err != nil {
		return fmt.Errorf("stopping %s: %w", id, err)
	}
	defer r.release(e)

	rec := r.snapshot(e)
	if rec.State == StateStopped {
		// Referenced but never launched.
		return r.remove(ctx, e)
	}

	target := rec.Handle.String()
	if target == "" {
		target = rec.Name
	}
	if target == "" {
		name, err := r.namer.Name(id.String())
		if err != nil {
			return fmt.Errorf("stopping %s: naming instance: %w", id, err)
		}
		target = name
	}

	r.update(e, func(rec *Record) { rec.State = StateStopping })

	sctx, cancel := context.WithTimeout(ctx, r.stopTimeout)
	defer cancel()

	err = r.rt.Terminate(sctx, target)
	if err != nil && !errors.Is(err, runtime.ErrNotRunning) {
		r.update(e, func(rec *Record) { rec.LastError = err.Error() })
		slog.WarnContext(ctx, "terminating instance", "owner", id, "target", target, "error", err)
		return fmt.Errorf("stopping %s: %w", id, err)
	}

	if err := r.remove(ctx, e); err != nil {
		return fmt.Errorf("stopping %s: %w", id, err)
	}
	slog.InfoContext(ctx, "instance stopped", "owner", id, "target", target)
	r.notify(ctx, rec, EventStopped)
	return nil
}

// Status returns a copy of the owner's record.
func (r *Registry) Status(id owner.ID) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return e.rec, nil
}

// List returns a copy of every record ordered by owner.
func (r *Registry) List() []Record {
	r.mu.RLock()
	out := make([]Record, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.rec)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Record) int {
		return strings.Compare(a.Owner.String(), b.Owner.String())
	})
	return out
}

// acquire takes the owner's transition lock, waiting for any transition in
// flight. With create set a Stopped record is made for unknown owners.
func (r *Registry) acquire(ctx context.Context, id owner.ID, create bool) (*entry, error) {
	for {
		r.mu.Lock()
		e, ok := r.entries[id]
		if !ok {
			if !create {
				r.mu.Unlock()
				return nil, ErrNotFound
			}
			e = &entry{
				sem: make(chan struct{}, 1),
				rec: Record{Owner: id, State: StateStopped},
			}
			r.entries[id] = e
			r.observeLocked()
		}
		r.mu.Unlock()

		select {
		case e.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		// The entry may have been removed by the transition we waited on.
		r.mu.RLock()
		current := r.entries[id] == e
		r.mu.RUnlock()
		if current {
			return e, nil
		}
		<-e.sem
	}
}

// tryAcquire is acquire without waiting or creating.
func (r *Registry) tryAcquire(id owner.ID) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	select {
	case e.sem <- struct{}{}:
	default:
		return nil, ErrBusy
	}

	r.mu.RLock()
	current := r.entries[id] == e
	r.mu.RUnlock()
	if !current {
		<-e.sem
		return nil, ErrNotFound
	}
	return e, nil
}

func (r *Registry) release(e *entry) {
	<-e.sem
}

func (r *Registry) snapshot(e *entry) Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return e.rec
}

// update mutates the record under the map lock and returns the new copy.
// Callers must hold the entry's transition lock.
func (r *Registry) update(e *entry, fn func(*Record)) Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	fn(&e.rec)
	r.observeLocked()
	return e.rec
}

// remove drops a settled record. Only Stopping or never-launched records may
// be removed; anything else means a transition is being cut short.
func (r *Registry) remove(ctx context.Context, e *entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.rec.State != StateStopping && e.rec.State != StateStopped {
		slog.ErrorContext(ctx, "refusing to remove instance record mid-transition",
			"owner", e.rec.Owner, "state", e.rec.State)
		return fmt.Errorf("%w: removing %s in state %s", ErrInvariant, e.rec.Owner, e.rec.State)
	}
	if r.entries[e.rec.Owner] != e {
		slog.ErrorContext(ctx, "instance record replaced while locked", "owner", e.rec.Owner)
		return fmt.Errorf("%w: record for %s replaced while locked", ErrInvariant, e.rec.Owner)
	}
	delete(r.entries, e.rec.Owner)
	r.observeLocked()
	return nil
}

func (r *Registry) observeLocked() {
	counts := make(map[State]int, len(allStates))
	for _, e := range r.entries {
		counts[e.rec.State]++
	}
	for _, s := range allStates {
		metrics.InstancesByState.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}
