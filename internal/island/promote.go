package island

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pixil98/go-isleborn/internal/lock"
	"github.com/pixil98/go-isleborn/internal/metrics"
	"github.com/pixil98/go-isleborn/internal/owner"
)

// PromoteReport counts what a promotion pass did.
type PromoteReport struct {
	Promoted int
	Stale    int
	Busy     int
}

// Promote pushes copies waiting in fallback tiers up to the primary tier. A
// fallback copy never overwrites a newer primary copy; it is dropped instead.
// Owners whose lock is held are left for the next pass. The pass stops at the
// first primary failure.
func (s *Store) Promote(ctx context.Context) (PromoteReport, error) {
	ctx, span := tracer.Start(ctx, "island.Promote")
	defer span.End()

	var rep PromoteReport
	ids, err := s.tiers.Pending(ctx)
	if err != nil {
		return rep, fmt.Errorf("listing pending islands: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		result, err := s.promoteOne(ctx, id)
		metrics.IslandPromotions.WithLabelValues(result).Inc()
		switch result {
		case "ok":
			rep.Promoted++
		case "stale":
			rep.Stale++
		case "busy":
			rep.Busy++
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return rep, err
		}
	}

	span.SetAttributes(
		attribute.Int("promoted", rep.Promoted),
		attribute.Int("stale", rep.Stale),
		attribute.Int("busy", rep.Busy),
	)
	return rep, nil
}

func (s *Store) promoteOne(ctx context.Context, id owner.ID) (string, error) {
	tok, err := s.locks.Acquire(ctx, lockKey(id), s.lockTTL)
	if errors.Is(err, lock.ErrBusy) {
		return "busy", nil
	}
	if err != nil {
		return "error", fmt.Errorf("promoting %s: locking: %w", id, err)
	}
	defer s.release(ctx, tok)

	doc, hit, err := s.tiers.Read(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return "stale", nil
	}
	if err != nil {
		return "error", fmt.Errorf("promoting %s: %w", id, err)
	}
	if hit.Index == 0 {
		s.tiers.DiscardLower(ctx, id)
		return "stale", nil
	}
	if len(doc.Unset) > 0 {
		return "error", fmt.Errorf("promoting %s: %w: primary copy unreadable", id, ErrUnavailable)
	}

	if err := s.tiers.WritePrimary(ctx, doc); err != nil {
		return "error", fmt.Errorf("promoting %s: %w", id, err)
	}
	slog.InfoContext(ctx, "promoted island to primary tier", "owner", id, "from", hit.Tier)
	return "ok", nil
}

// Promoter runs a promotion pass on every driver tick.
type Promoter struct {
	store *Store
}

func NewPromoter(store *Store) *Promoter {
	return &Promoter{store: store}
}

func (p *Promoter) Name() string {
	return "promote"
}

func (p *Promoter) Tick(ctx context.Context) error {
	rep, err := p.store.Promote(ctx)
	if rep.Promoted > 0 || rep.Stale > 0 {
		slog.InfoContext(ctx, "island promotion pass", "promoted", rep.Promoted, "stale", rep.Stale, "busy", rep.Busy)
	}
	return err
}
