package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pixil98/go-isleborn/internal/instance"
	"github.com/pixil98/go-isleborn/internal/island"
	"github.com/pixil98/go-isleborn/internal/lock"
	"github.com/pixil98/go-isleborn/internal/runtime"
	"github.com/pixil98/go-isleborn/internal/storage"
)

type fixture struct {
	rt       *runtime.Memory
	primary  *storage.Memory
	locks    *lock.Memory
	handler  http.Handler
	registry *instance.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	namer, err := runtime.NewNamer("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fallback, err := storage.NewFileTier(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f := &fixture{
		rt:      runtime.NewMemory(),
		primary: storage.NewMemory("primary"),
		locks:   lock.NewMemory(),
	}
	f.registry = instance.NewRegistry(f.rt, namer)
	islands := island.NewStore(storage.NewTiers(f.primary, fallback), f.locks)

	srv := NewServer(NewHandler(f.registry, islands, "/srv/islands"), prometheus.NewRegistry())
	f.handler = srv.Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	out := map[string]any{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding %s %s response %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, out
}

func TestHandler_InstanceLifecycle(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/instances/alice", "")
	testutil.AssertEqual(t, "unknown status code", code, http.StatusOK)
	testutil.AssertEqual(t, "unknown status", body["status"], "stopped")

	code, body = f.do(t, http.MethodPost, "/instances/alice/start", "")
	testutil.AssertEqual(t, "start code", code, http.StatusOK)
	testutil.AssertEqual(t, "start status", body["status"], "started")
	handle := body["handle"]

	code, body = f.do(t, http.MethodPost, "/instances/alice/start", "")
	testutil.AssertEqual(t, "restart code", code, http.StatusOK)
	testutil.AssertEqual(t, "restart status", body["status"], "already_running")
	testutil.AssertEqual(t, "restart handle", body["handle"], handle)
	testutil.AssertEqual(t, "launches", f.rt.Launches(), 1)

	code, body = f.do(t, http.MethodGet, "/instances/alice", "")
	testutil.AssertEqual(t, "status code", code, http.StatusOK)
	testutil.AssertEqual(t, "status", body["status"], "running")
	testutil.AssertEqual(t, "state", body["state"], "running")
	testutil.AssertEqual(t, "mount", body["mount_path"], "/srv/islands/alice")

	code, body = f.do(t, http.MethodGet, "/instances", "")
	testutil.AssertEqual(t, "list code", code, http.StatusOK)
	testutil.AssertEqual(t, "list size", len(body), 1)
	testutil.AssertEqual(t, "list handle", body["alice"], handle)

	code, body = f.do(t, http.MethodGet, "/instances?view=records", "")
	testutil.AssertEqual(t, "records code", code, http.StatusOK)
	list, _ := body["instances"].([]any)
	testutil.AssertEqual(t, "records size", len(list), 1)

	code, body = f.do(t, http.MethodPost, "/instances/alice/stop", "")
	testutil.AssertEqual(t, "stop code", code, http.StatusOK)
	testutil.AssertEqual(t, "stop status", body["status"], "stopped")

	code, body = f.do(t, http.MethodGet, "/instances/alice", "")
	testutil.AssertEqual(t, "status after stop code", code, http.StatusOK)
	testutil.AssertEqual(t, "status after stop", body["status"], "stopped")

	code, body = f.do(t, http.MethodGet, "/instances", "")
	testutil.AssertEqual(t, "empty list code", code, http.StatusOK)
	testutil.AssertEqual(t, "empty list size", len(body), 0)
}

func TestHandler_StartFailure(t *testing.T) {
	f := newFixture(t)
	f.rt.FailLaunches(runtime.ErrUnavailable)

	code, body := f.do(t, http.MethodPost, "/instances/alice/start", "")
	testutil.AssertEqual(t, "code", code, http.StatusServiceUnavailable)
	testutil.AssertEqual(t, "status", body["status"], "error")
	if body["error"] == nil {
		t.Error("expected an error message")
	}
}

func TestHandler_StartRequests(t *testing.T) {
	tests := map[string]struct {
		path     string
		body     string
		expCode  int
		expMount string
	}{
		"explicit mount": {
			path:     "/instances/carol/start",
			body:     `{"mount_path":"/data/carol"}`,
			expCode:  http.StatusOK,
			expMount: "/data/carol",
		},
		"relative mount": {
			path:    "/instances/carol/start",
			body:    `{"mount_path":"data/carol"}`,
			expCode: http.StatusBadRequest,
		},
		"unknown field": {
			path:    "/instances/carol/start",
			body:    `{"image":"other"}`,
			expCode: http.StatusBadRequest,
		},
		"invalid owner": {
			path:    "/instances/Not%20Valid/start",
			expCode: http.StatusBadRequest,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			code, _ := f.do(t, http.MethodPost, tt.path, tt.body)
			testutil.AssertEqual(t, "code", code, tt.expCode)

			if tt.expMount != "" {
				_, body := f.do(t, http.MethodGet, "/instances/carol", "")
				testutil.AssertEqual(t, "mount", body["mount_path"], any(tt.expMount))
			}
		})
	}
}

func TestHandler_StopUnknownOwner(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodPost, "/instances/nobody/stop", "")
	testutil.AssertEqual(t, "code", code, http.StatusNotFound)
	testutil.AssertEqual(t, "status", body["status"], "not_found")
	testutil.AssertEqual(t, "owner", body["owner"], "nobody")
	testutil.AssertEqual(t, "terminates", f.rt.Terminates(), 0)
}

func TestHandler_Islands(t *testing.T) {
	f := newFixture(t)

	code, _ := f.do(t, http.MethodGet, "/islands/bob", "")
	testutil.AssertEqual(t, "missing code", code, http.StatusNotFound)

	code, body := f.do(t, http.MethodPut, "/islands/bob", `{"level":3,"state":{"trees":4}}`)
	testutil.AssertEqual(t, "put code", code, http.StatusOK)
	testutil.AssertEqual(t, "put status", body["status"], "ok")
	testutil.AssertEqual(t, "put degraded", body["degraded"], false)
	testutil.AssertEqual(t, "put tier", body["tier"], "primary")

	code, body = f.do(t, http.MethodGet, "/islands/bob", "")
	testutil.AssertEqual(t, "get code", code, http.StatusOK)
	doc, _ := body["island"].(map[string]any)
	testutil.AssertEqual(t, "level", doc["level"], any(3.0))
	testutil.AssertEqual(t, "owner name", doc["owner_name"], "bob")
	state, _ := doc["state"].(map[string]any)
	testutil.AssertEqual(t, "trees", state["trees"], any(4.0))
}

func TestHandler_CreateIsland(t *testing.T) {
	tests := map[string]struct {
		body     string
		expCode  int
		expOwner string
	}{
		"with owner": {
			body:     `{"owner":"dave","owner_name":"Dave"}`,
			expCode:  http.StatusOK,
			expOwner: "dave",
		},
		"missing owner": {
			body:    `{"owner_name":"Dave"}`,
			expCode: http.StatusBadRequest,
		},
		"bad json": {
			body:    `{"owner":`,
			expCode: http.StatusBadRequest,
		},
		"scalar state": {
			body:     `{"owner":"dave","state":"plain"}`,
			expCode:  http.StatusOK,
			expOwner: "dave",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			code, body := f.do(t, http.MethodPost, "/islands", tt.body)
			testutil.AssertEqual(t, "code", code, tt.expCode)
			if tt.expOwner != "" {
				testutil.AssertEqual(t, "owner", body["owner"], any(tt.expOwner))
			}
		})
	}
}

func TestHandler_IslandBusy(t *testing.T) {
	f := newFixture(t)

	if _, err := f.locks.Acquire(context.Background(), "island.bob", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	code, body := f.do(t, http.MethodPut, "/islands/bob", `{"level":2}`)
	testutil.AssertEqual(t, "code", code, http.StatusConflict)
	testutil.AssertEqual(t, "status", body["status"], "busy")
	testutil.AssertEqual(t, "primary writes", f.primary.Writes(), 0)
}

func TestHandler_IslandDegraded(t *testing.T) {
	f := newFixture(t)
	f.primary.SetDown(true)

	code, body := f.do(t, http.MethodPut, "/islands/erin", `{"level":5}`)
	testutil.AssertEqual(t, "code", code, http.StatusOK)
	testutil.AssertEqual(t, "degraded", body["degraded"], true)
	testutil.AssertEqual(t, "tier", body["tier"], "file")

	code, body = f.do(t, http.MethodGet, "/islands/erin", "")
	testutil.AssertEqual(t, "read code", code, http.StatusOK)
	testutil.AssertEqual(t, "read degraded", body["degraded"], true)

	code, _ = f.do(t, http.MethodGet, "/islands/nobody", "")
	testutil.AssertEqual(t, "missing while degraded", code, http.StatusNotFound)
}

func TestHandler_Healthz(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodGet, "/healthz", "")
	testutil.AssertEqual(t, "code", code, http.StatusOK)
	testutil.AssertEqual(t, "status", body["status"], "ok")
}

func TestStatusMapping(t *testing.T) {
	tests := map[string]struct {
		err       error
		expIsland int
		expInst   int
	}{
		"not found":   {err: storage.ErrNotFound, expIsland: http.StatusNotFound, expInst: http.StatusInternalServerError},
		"busy":        {err: lock.ErrBusy, expIsland: http.StatusConflict, expInst: http.StatusInternalServerError},
		"unavailable": {err: storage.ErrUnavailable, expIsland: http.StatusServiceUnavailable, expInst: http.StatusInternalServerError},
		"deadline":    {err: context.DeadlineExceeded, expIsland: http.StatusServiceUnavailable, expInst: http.StatusServiceUnavailable},
		"instance":    {err: instance.ErrNotFound, expIsland: http.StatusInternalServerError, expInst: http.StatusNotFound},
		"runtime":     {err: runtime.ErrUnavailable, expIsland: http.StatusInternalServerError, expInst: http.StatusServiceUnavailable},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, "island", islandStatus(tt.err), tt.expIsland)
			testutil.AssertEqual(t, "instance", instanceStatus(tt.err), tt.expInst)
		})
	}
}
