// Package island serves owners' world documents with a single writer per
// owner and a fallback tier for when the primary store is down.
package island

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pixil98/go-isleborn/internal/lock"
	"github.com/pixil98/go-isleborn/internal/metrics"
	"github.com/pixil98/go-isleborn/internal/owner"
	"github.com/pixil98/go-isleborn/internal/storage"
)

const (
	DefaultLockTTL  = 10 * time.Second
	DefaultLockWait = 0
	DefaultLevel    = 1
)

var (
	ErrBusy        = lock.ErrBusy
	ErrNotFound    = storage.ErrNotFound
	ErrUnavailable = storage.ErrUnavailable
)

var tracer = otel.Tracer("github.com/pixil98/go-isleborn/internal/island")

// Update is a partial write. Nil fields keep their stored value; a non-nil
// State replaces the stored blob wholesale.
type Update struct {
	OwnerName *string         `json:"owner_name,omitempty"`
	Level     *int            `json:"level,omitempty"`
	State     json.RawMessage `json:"state,omitempty"`
}

// unset lists the fields u leaves alone.
func (u Update) unset() []string {
	var out []string
	if u.OwnerName == nil {
		out = append(out, storage.FieldOwnerName)
	}
	if u.Level == nil {
		out = append(out, storage.FieldLevel)
	}
	if u.State == nil {
		out = append(out, storage.FieldState)
	}
	return out
}

func (u Update) apply(doc storage.Document) storage.Document {
	doc = doc.Clone()
	if u.OwnerName != nil {
		doc.OwnerName = *u.OwnerName
	}
	if u.Level != nil {
		doc.Level = *u.Level
	}
	if u.State != nil {
		doc.State = slices.Clone(u.State)
	}
	if len(doc.Unset) > 0 {
		left := u.unset()
		doc.Unset = slices.DeleteFunc(doc.Unset, func(f string) bool {
			return !slices.Contains(left, f)
		})
		if len(doc.Unset) == 0 {
			doc.Unset = nil
		}
	}
	return doc
}

// Result is a document plus where it came from.
type Result struct {
	Document storage.Document
	// Degraded is set when the primary tier did not serve the request. A
	// degraded write is durable but waits in a fallback tier for promotion.
	Degraded bool
	Tier     string
}

type Store struct {
	tiers *storage.Tiers
	locks lock.Service
	now   func() time.Time

	lockTTL  time.Duration
	lockWait time.Duration
}

func NewStore(tiers *storage.Tiers, locks lock.Service, opts ...StoreOpt) *Store {
	s := &Store{
		tiers:    tiers,
		locks:    locks,
		now:      time.Now,
		lockTTL:  DefaultLockTTL,
		lockWait: DefaultLockWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func lockKey(id owner.ID) string {
	return "island." + id.String()
}

// Get returns the newest stored copy of the owner's island. It never takes
// the owner's lock.
func (s *Store) Get(ctx context.Context, id owner.ID) (Result, error) {
	ctx, span := tracer.Start(ctx, "island.Get", trace.WithAttributes(attribute.String("owner", id.String())))
	defer span.End()

	doc, hit, err := s.tiers.Read(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		metrics.IslandReads.WithLabelValues("", "not_found").Inc()
		return Result{}, err
	case err != nil:
		metrics.IslandReads.WithLabelValues("", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	result := "ok"
	if hit.Degraded {
		result = "degraded"
	}
	metrics.IslandReads.WithLabelValues(hit.Tier, result).Inc()
	span.SetAttributes(attribute.String("tier", hit.Tier), attribute.Bool("degraded", hit.Degraded))
	return Result{Document: doc, Degraded: hit.Degraded, Tier: hit.Tier}, nil
}

// Upsert merges u into the owner's island under the owner's write lock. A
// held lock fails fast with ErrBusy. When the primary tier refuses the write
// it lands in a fallback tier and the result is flagged degraded.
func (s *Store) Upsert(ctx context.Context, id owner.ID, u Update) (Result, error) {
	ctx, span := tracer.Start(ctx, "island.Upsert", trace.WithAttributes(attribute.String("owner", id.String())))
	defer span.End()

	res, err := s.upsert(ctx, id, u)
	if err != nil && !errors.Is(err, ErrBusy) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (s *Store) upsert(ctx context.Context, id owner.ID, u Update) (Result, error) {
	tok, err := lock.AcquireWithin(ctx, s.locks, lockKey(id), s.lockTTL, s.lockWait)
	if errors.Is(err, lock.ErrBusy) {
		metrics.IslandLockBusy.Inc()
		return Result{}, fmt.Errorf("updating %s: %w", id, err)
	}
	if err != nil {
		return Result{}, fmt.Errorf("updating %s: locking: %w", id, err)
	}
	defer s.release(ctx, tok)

	base, err := s.base(ctx, id, u)
	if err != nil {
		return Result{}, fmt.Errorf("updating %s: %w", id, err)
	}

	doc := u.apply(base)
	doc.UpdatedAt = s.stamp(base.UpdatedAt)

	hit, err := s.tiers.Write(ctx, doc)
	if err != nil {
		metrics.IslandWrites.WithLabelValues("", "error").Inc()
		return Result{}, fmt.Errorf("updating %s: %w", id, err)
	}

	result := "ok"
	if hit.Degraded {
		result = "degraded"
		slog.WarnContext(ctx, "island written to fallback tier", "owner", id, "tier", hit.Tier)
	}
	metrics.IslandWrites.WithLabelValues(hit.Tier, result).Inc()
	return Result{Document: doc, Degraded: hit.Degraded, Tier: hit.Tier}, nil
}

// base is the document an update merges into. A missing island starts from
// defaults. When the primary could not be asked a missing copy may only be
// out of reach, so the fields u leaves alone are marked unset. Such a copy
// stays out of the primary tier until those fields are filled from the
// stored one.
func (s *Store) base(ctx context.Context, id owner.ID, u Update) (storage.Document, error) {
	doc, hit, err := s.tiers.Read(ctx, id)
	fresh := storage.Document{Owner: id, OwnerName: id.String(), Level: DefaultLevel}
	switch {
	case err == nil:
		return doc, nil
	case errors.Is(err, storage.ErrNotFound) && !hit.Degraded:
		return fresh, nil
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrUnavailable):
		fresh.Unset = u.unset()
		slog.WarnContext(ctx, "stored island unreadable, writing blind", "owner", id, "unset", fresh.Unset, "error", err)
		return fresh, nil
	default:
		return storage.Document{}, err
	}
}

// stamp returns a write time strictly after prev, truncated to what every
// tier can store.
func (s *Store) stamp(prev time.Time) time.Time {
	t := s.now().UTC().Truncate(time.Millisecond)
	if !t.After(prev) {
		t = prev.Add(time.Millisecond)
	}
	return t
}

func (s *Store) release(ctx context.Context, tok lock.Token) {
	if err := s.locks.Release(context.WithoutCancel(ctx), tok); err != nil {
		slog.WarnContext(ctx, "releasing island lock", "key", tok.Key, "error", err)
	}
}
