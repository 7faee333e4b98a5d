package instance

import (
	"context"
	"errors"
	"log/slog"
)

// Reconciler checks running records against the runtime on every tick.
type Reconciler struct {
	reg *Registry
}

func NewReconciler(reg *Registry) *Reconciler {
	return &Reconciler{reg: reg}
}

func (rc *Reconciler) Name() string {
	return "reconcile"
}

func (rc *Reconciler) Tick(ctx context.Context) error {
	return rc.reg.Reconcile(ctx)
}

// Reconcile marks Running records whose runtime entity has gone away as
// Failed. Owners with a transition in flight are skipped until the next pass,
// as are owners the runtime could not be asked about.
func (r *Registry) Reconcile(ctx context.Context) error {
	for _, rec := range r.List() {
		if rec.State != StateRunning {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		r.reconcileOne(ctx, rec)
	}
	return nil
}

func (r *Registry) reconcileOne(ctx context.Context, seen Record) {
	e, err := r.tryAcquire(seen.Owner)
	if errors.Is(err, ErrBusy) || errors.Is(err, ErrNotFound) {
		return
	}
	defer r.release(e)

	rec := r.snapshot(e)
	if rec.State != StateRunning {
		return
	}

	h, running, err := r.rt.Query(ctx, rec.Name)
	if err != nil {
		slog.WarnContext(ctx, "reconcile query", "owner", rec.Owner, "error", err)
		return
	}

	if running {
		if h != "" && h != rec.Handle {
			r.update(e, func(rec *Record) { rec.Handle = h })
		}
		return
	}

	lost := rec.Handle
	rec = r.update(e, func(rec *Record) {
		rec.State = StateFailed
		rec.Handle = ""
		rec.LastError = "runtime entity exited"
	})
	slog.WarnContext(ctx, "instance exited outside the registry", "owner", rec.Owner, "handle", lost)
	rec.Handle = lost
	r.notify(ctx, rec, EventFailed)
}
