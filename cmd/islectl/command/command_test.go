package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"

	"github.com/pixil98/go-isleborn/internal/api"
	"github.com/pixil98/go-isleborn/internal/instance"
	"github.com/pixil98/go-isleborn/internal/island"
	"github.com/pixil98/go-isleborn/internal/lock"
	"github.com/pixil98/go-isleborn/internal/owner"
	"github.com/pixil98/go-isleborn/internal/runtime"
	"github.com/pixil98/go-isleborn/internal/storage"
	"github.com/pixil98/go-isleborn/internal/storage/sqlite"
)

type fleet struct {
	url   string
	locks *lock.Memory
}

func startFleet(t *testing.T) *fleet {
	t.Helper()

	namer, err := runtime.NewNamer("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fallback, err := storage.NewFileTier(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	locks := lock.NewMemory()

	mux := http.NewServeMux()
	api.NewHandler(
		instance.NewRegistry(runtime.NewMemory(), namer),
		island.NewStore(storage.NewTiers(storage.NewMemory("primary"), fallback), locks),
		"/srv/islands",
	).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &fleet{url: srv.URL, locks: locks}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInstanceCommands(t *testing.T) {
	f := startFleet(t)

	out, err := run(t, "--api", f.url, "start", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "alice started") {
		t.Errorf("unexpected start output %q", out)
	}

	out, err = run(t, "--api", f.url, "start", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "alice already running") {
		t.Errorf("unexpected restart output %q", out)
	}

	out, err = run(t, "--api", f.url, "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	testutil.AssertEqual(t, "list lines", len(lines), 2)
	testutil.AssertEqual(t, "list state", strings.Fields(lines[1])[1], "running")

	if _, err := run(t, "--api", f.url, "stop", "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err = run(t, "--api", f.url, "status", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines = strings.Split(strings.TrimSpace(out), "\n")
	testutil.AssertEqual(t, "status state", strings.Fields(lines[1])[1], "stopped")

	_, err = run(t, "--api", f.url, "stop", "alice")
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected an api error, got %v", err)
	}
	testutil.AssertEqual(t, "stop code", apiErr.Status, http.StatusNotFound)
	testutil.AssertEqual(t, "stop message", apiErr.Message, "not_found")
}

func TestIslandCommands(t *testing.T) {
	f := startFleet(t)

	out, err := run(t, "--api", f.url, "island", "set", "bob", "--level", "3", "--state", `{"trees":2}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "level:      3") {
		t.Errorf("unexpected set output %q", out)
	}

	out, err = run(t, "--api", f.url, "island", "get", "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"owner name: bob", "served by:  primary", `{"trees":2}`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}

	_, err = run(t, "--api", f.url, "island", "set", "bob", "--state", "{nope")
	testutil.AssertErrorContains(t, err, "--state must be valid json")
}

func TestIslandSet_Busy(t *testing.T) {
	f := startFleet(t)
	if _, err := f.locks.Acquire(context.Background(), "island.bob", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := run(t, "--api", f.url, "island", "set", "bob", "--level", "2")
	if !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
}

func TestPromote(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "islands.db")
	fallbackDir := filepath.Join(dir, "fallback")

	fallback, err := storage.NewFileTier(fallbackDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc := storage.Document{
		Owner:     "carol",
		OwnerName: "Carol",
		Level:     2,
		State:     json.RawMessage(`{"trees":1}`),
		UpdatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := fallback.Write(ctx, doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := run(t, "promote", "--path", dbPath, "--fallback-dir", fallbackDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "output", strings.TrimSpace(out), "promoted 1, stale 0, busy 0")

	db, err := sqlite.Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer db.Close()
	got, err := db.Read(ctx, owner.MustParse("carol"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "level", got.Level, 2)

	if _, err := fallback.Read(ctx, "carol"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected the fallback copy to be discarded, got %v", err)
	}
}

func TestFormatEvent(t *testing.T) {
	ev := instance.Event{
		Type:   instance.EventFailed,
		Owner:  "dave",
		Handle: "c9",
		Error:  "exited",
		Time:   time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	testutil.AssertEqual(t, "line", formatEvent(ev), "2026-05-01T00:00:00Z failed   dave c9: exited")
}
