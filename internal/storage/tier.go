package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pixil98/go-isleborn/internal/owner"
)

var (
	ErrNotFound = errors.New("island not found")
	// ErrUnavailable means the tier could not be reached or timed out.
	ErrUnavailable = errors.New("store unavailable")
)

// Tier is one place island documents can live.
type Tier interface {
	Name() string
	Read(ctx context.Context, id owner.ID) (Document, error)
	Write(ctx context.Context, doc Document) error
}

// Discarder is implemented by tiers that can drop a copy once a higher tier
// holds it.
type Discarder interface {
	Discard(ctx context.Context, id owner.ID) error
}

// Lister is implemented by tiers that can enumerate the owners they hold.
type Lister interface {
	Owners(ctx context.Context) ([]owner.ID, error)
}

// Hit says which tier served a read or took a write.
type Hit struct {
	Tier  string
	Index int
	// Degraded is set whenever the first tier did not serve the request.
	Degraded bool
}

// Tiers is an ordered list of tiers, authoritative first.
type Tiers struct {
	tiers []Tier
}

func NewTiers(primary Tier, fallbacks ...Tier) *Tiers {
	return &Tiers{tiers: append([]Tier{primary}, fallbacks...)}
}

func (t *Tiers) Primary() Tier {
	return t.tiers[0]
}

// Read returns the newest copy across all tiers. Ties go to the higher tier.
// The result is degraded when the copy came from a lower tier or the first
// tier could not be asked.
//
// A copy with unset fields has them filled from the next newest copy once
// the first tier has answered. Until then they keep their defaults.
//
// A copy missing from every tier that answered is ErrNotFound even when
// others were unreachable; the returned Hit is then flagged degraded. Only
// when no tier answered at all is the error ErrUnavailable.
func (t *Tiers) Read(ctx context.Context, id owner.ID) (Document, Hit, error) {
	var (
		best     Document
		hit      Hit
		found    bool
		answered bool
		copies   = map[int]Document{}
		errs     []error
		primary  = true
	)

	for i, tier := range t.tiers {
		doc, err := tier.Read(ctx, id)
		if errors.Is(err, ErrNotFound) {
			answered = true
			continue
		}
		if err != nil {
			if i == 0 {
				primary = false
			}
			slog.WarnContext(ctx, "island tier read", "tier", tier.Name(), "owner", id, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", tier.Name(), err))
			continue
		}
		answered = true
		copies[i] = doc
		if !found || doc.NewerThan(best) {
			best, found = doc, true
			hit = Hit{Tier: tier.Name(), Index: i}
		}
	}

	switch {
	case found:
		if len(best.Unset) > 0 && primary {
			best = fill(ctx, best, hit.Index, copies)
		}
		hit.Degraded = hit.Index > 0 || !primary
		return best, hit, nil
	case answered && len(errs) > 0:
		return Document{}, Hit{Degraded: true}, fmt.Errorf("reading %s: %w (%d tiers unreadable)", id, ErrNotFound, len(errs))
	case answered:
		return Document{}, Hit{}, fmt.Errorf("reading %s: %w", id, ErrNotFound)
	default:
		return Document{}, Hit{Degraded: true}, fmt.Errorf("reading %s: %w: %w", id, ErrUnavailable, errors.Join(errs...))
	}
}

// fill completes best from the newest of the other copies. With no other
// copy the defaults stand.
func fill(ctx context.Context, best Document, from int, copies map[int]Document) Document {
	var (
		other Document
		ok    bool
	)
	for i, doc := range copies {
		if i != from && (!ok || doc.NewerThan(other)) {
			other, ok = doc, true
		}
	}
	if !ok {
		best = best.Clone()
		best.Unset = nil
		return best
	}
	slog.InfoContext(ctx, "filling unset island fields from stored copy", "owner", best.Owner, "fields", best.Unset)
	return best.Fill(other)
}

// Write stores doc in the first tier that accepts it. Only an unreachable
// tier passes the write down; any other failure is returned as is. Success on
// the first tier discards lower copies so they can't shadow it later. A
// document with unset fields skips the first tier.
func (t *Tiers) Write(ctx context.Context, doc Document) (Hit, error) {
	var errs []error
	for i, tier := range t.tiers {
		if i == 0 && len(doc.Unset) > 0 {
			errs = append(errs, fmt.Errorf("%s: skipped, fields %v unset", tier.Name(), doc.Unset))
			continue
		}
		err := tier.Write(ctx, doc)
		if err != nil && !errors.Is(err, ErrUnavailable) {
			return Hit{}, fmt.Errorf("writing %s to %s: %w", doc.Owner, tier.Name(), err)
		}
		if err != nil {
			slog.WarnContext(ctx, "island tier write", "tier", tier.Name(), "owner", doc.Owner, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", tier.Name(), err))
			continue
		}
		if i == 0 {
			t.DiscardLower(ctx, doc.Owner)
		}
		return Hit{Tier: tier.Name(), Index: i, Degraded: i > 0}, nil
	}
	return Hit{}, fmt.Errorf("writing %s: %w: %w", doc.Owner, ErrUnavailable, errors.Join(errs...))
}

// WritePrimary stores doc in the first tier only.
func (t *Tiers) WritePrimary(ctx context.Context, doc Document) error {
	if len(doc.Unset) > 0 {
		return fmt.Errorf("writing %s to %s: fields %v unset", doc.Owner, t.tiers[0].Name(), doc.Unset)
	}
	if err := t.tiers[0].Write(ctx, doc); err != nil {
		return fmt.Errorf("writing %s to %s: %w", doc.Owner, t.tiers[0].Name(), err)
	}
	t.DiscardLower(ctx, doc.Owner)
	return nil
}

// Pending lists owners that have a copy below the first tier.
func (t *Tiers) Pending(ctx context.Context) ([]owner.ID, error) {
	seen := map[owner.ID]bool{}
	var out []owner.ID
	for _, tier := range t.tiers[1:] {
		l, ok := tier.(Lister)
		if !ok {
			continue
		}
		ids, err := l.Owners(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", tier.Name(), err)
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}

// DiscardLower drops every copy below the first tier. Failures are logged.
func (t *Tiers) DiscardLower(ctx context.Context, id owner.ID) {
	for _, tier := range t.tiers[1:] {
		d, ok := tier.(Discarder)
		if !ok {
			continue
		}
		if err := d.Discard(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			slog.WarnContext(ctx, "discarding stale island copy", "tier", tier.Name(), "owner", id, "error", err)
		}
	}
}
