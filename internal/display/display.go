package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/padding"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/pixil98/go-isleborn/internal/instance"
	"github.com/pixil98/go-isleborn/internal/storage"
)

const DefaultWidth = 80

const (
	ownerWidth  = 20
	stateWidth  = 10
	handleWidth = 14
)

// Wrap word-wraps text to DefaultWidth, preserving ANSI escape sequences.
func Wrap(text string) string {
	return wordwrap.String(text, DefaultWidth)
}

// column pads s to width, keeping at least one trailing space. Only strings
// that would not leave that space are cut. Empty cells show a dash.
func column(s string, width int) string {
	if s == "" {
		s = "-"
	}
	if ansi.PrintableRuneWidth(s) > width-1 {
		s = truncate.StringWithTail(s, uint(width-1), "…")
	}
	return padding.String(s, uint(width))
}

// Records writes one line per instance record under a header.
func Records(w io.Writer, recs []instance.Record) error {
	var b strings.Builder
	b.WriteString(column("OWNER", ownerWidth) + column("STATE", stateWidth) + column("HANDLE", handleWidth) + "SINCE\n")
	for _, r := range recs {
		since := "-"
		if !r.StartedAt.IsZero() {
			since = r.StartedAt.Format(time.RFC3339)
		}
		b.WriteString(column(r.Owner.String(), ownerWidth))
		b.WriteString(column(string(r.State), stateWidth))
		b.WriteString(column(r.Handle.String(), handleWidth))
		b.WriteString(since + "\n")
		if r.LastError != "" {
			b.WriteString(indent(Wrap("last error: "+r.LastError), "  "))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Island writes a document as labelled lines. The state blob is printed
// verbatim and wrapped.
func Island(w io.Writer, doc storage.Document, tier string, degraded bool) error {
	var b strings.Builder
	fmt.Fprintf(&b, "owner:      %s\n", doc.Owner)
	fmt.Fprintf(&b, "owner name: %s\n", doc.OwnerName)
	fmt.Fprintf(&b, "level:      %d\n", doc.Level)
	fmt.Fprintf(&b, "updated:    %s\n", doc.UpdatedAt.Format(time.RFC3339))
	source := tier
	if degraded {
		source += " (degraded)"
	}
	fmt.Fprintf(&b, "served by:  %s\n", source)
	if len(doc.Unset) > 0 {
		fmt.Fprintf(&b, "unknown:    %s (primary unreachable)\n", strings.Join(doc.Unset, ", "))
	}
	if len(doc.State) > 0 {
		b.WriteString("state:\n")
		b.WriteString(indent(Wrap(string(doc.State)), "  "))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n") + "\n"
}
