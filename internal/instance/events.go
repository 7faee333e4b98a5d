package instance

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventStarted EventType = "started"
	EventStopped EventType = "stopped"
	EventFailed  EventType = "failed"
)

// Event describes a lifecycle transition that reached a settled state.
type Event struct {
	Type   EventType `json:"type"`
	Owner  string    `json:"owner"`
	Handle string    `json:"handle,omitempty"`
	Error  string    `json:"error,omitempty"`
	Time   time.Time `json:"time"`
}

// Notifier receives lifecycle events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

func (r *Registry) notify(ctx context.Context, rec Record, typ EventType) {
	if r.notifier == nil {
		return
	}
	ev := Event{
		Type:   typ,
		Owner:  rec.Owner.String(),
		Handle: rec.Handle.String(),
		Error:  rec.LastError,
		Time:   r.now().UTC(),
	}
	if err := r.notifier.Notify(ctx, ev); err != nil {
		slog.WarnContext(ctx, "publishing instance event", "owner", rec.Owner, "event", typ, "error", err)
	}
}
