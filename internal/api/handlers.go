package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/pixil98/go-isleborn/internal/instance"
	"github.com/pixil98/go-isleborn/internal/island"
	"github.com/pixil98/go-isleborn/internal/owner"
	"github.com/pixil98/go-isleborn/internal/runtime"
	"github.com/pixil98/go-isleborn/internal/storage"
)

const maxBodyBytes = 8 << 20

// Instances is the slice of the instance registry the API drives.
type Instances interface {
	Start(ctx context.Context, id owner.ID, mountPath string) (instance.Started, error)
	Stop(ctx context.Context, id owner.ID) error
	Status(id owner.ID) (instance.Record, error)
	List() []instance.Record
}

// Islands is the slice of the island store the API drives.
type Islands interface {
	Get(ctx context.Context, id owner.ID) (island.Result, error)
	Upsert(ctx context.Context, id owner.ID, u island.Update) (island.Result, error)
}

type Handler struct {
	instances Instances
	islands   Islands
	mountRoot string
}

// NewHandler builds the API. With a mount root, starts that name no mount
// path get <root>/<owner>.
func NewHandler(instances Instances, islands Islands, mountRoot string) *Handler {
	return &Handler{instances: instances, islands: islands, mountRoot: mountRoot}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /instances/{owner}/start", h.startInstance)
	mux.HandleFunc("POST /instances/{owner}/stop", h.stopInstance)
	mux.HandleFunc("GET /instances/{owner}", h.getInstance)
	mux.HandleFunc("GET /instances", h.listInstances)

	mux.HandleFunc("GET /islands/{owner}", h.getIsland)
	mux.HandleFunc("PUT /islands/{owner}", h.putIsland)
	mux.HandleFunc("POST /islands", h.postIsland)
}

type startRequest struct {
	MountPath string `json:"mount_path"`
}

type startResponse struct {
	Status string         `json:"status"`
	Owner  owner.ID       `json:"owner"`
	Handle runtime.Handle `json:"handle"`
}

func (h *Handler) startInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := ownerParam(w, r)
	if !ok {
		return
	}

	// The body is optional.
	var req startRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.MountPath == "" && h.mountRoot != "" {
		req.MountPath = filepath.Join(h.mountRoot, id.String())
	}
	if req.MountPath != "" && !filepath.IsAbs(req.MountPath) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("mount_path must be absolute"))
		return
	}

	res, err := h.instances.Start(r.Context(), id, req.MountPath)
	if err != nil {
		writeError(w, instanceStatus(err), err)
		return
	}
	status := "started"
	if res.Existing {
		status = "already_running"
	}
	writeJSON(w, http.StatusOK, startResponse{Status: status, Owner: id, Handle: res.Handle})
}

func (h *Handler) stopInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := ownerParam(w, r)
	if !ok {
		return
	}
	err := h.instances.Stop(r.Context(), id)
	if errors.Is(err, instance.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_found", "owner": id.String()})
		return
	}
	if err != nil {
		writeError(w, instanceStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped", "owner": id.String()})
}

// statusResponse is running or stopped plus the record behind it. Owners
// with no record report stopped.
type statusResponse struct {
	Status string `json:"status"`
	instance.Record
}

func (h *Handler) getInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := ownerParam(w, r)
	if !ok {
		return
	}
	rec, err := h.instances.Status(id)
	if errors.Is(err, instance.ErrNotFound) {
		rec, err = instance.Record{Owner: id, State: instance.StateStopped}, nil
	}
	if err != nil {
		writeError(w, instanceStatus(err), err)
		return
	}
	status := "stopped"
	if rec.Active() {
		status = "running"
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: status, Record: rec})
}

// listInstances maps each owner to its runtime handle. With view=records it
// returns the full records instead.
func (h *Handler) listInstances(w http.ResponseWriter, r *http.Request) {
	records := h.instances.List()
	if r.URL.Query().Get("view") == "records" {
		writeJSON(w, http.StatusOK, map[string][]instance.Record{"instances": records})
		return
	}
	handles := make(map[owner.ID]runtime.Handle, len(records))
	for _, rec := range records {
		handles[rec.Owner] = rec.Handle
	}
	writeJSON(w, http.StatusOK, handles)
}

type islandResponse struct {
	Status   string           `json:"status,omitempty"`
	Owner    owner.ID         `json:"owner"`
	Island   storage.Document `json:"island"`
	Degraded bool             `json:"degraded"`
	Tier     string           `json:"tier"`
}

func (h *Handler) getIsland(w http.ResponseWriter, r *http.Request) {
	id, ok := ownerParam(w, r)
	if !ok {
		return
	}
	res, err := h.islands.Get(r.Context(), id)
	if err != nil {
		writeError(w, islandStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, islandResponse{Owner: id, Island: res.Document, Degraded: res.Degraded, Tier: res.Tier})
}

func (h *Handler) putIsland(w http.ResponseWriter, r *http.Request) {
	id, ok := ownerParam(w, r)
	if !ok {
		return
	}
	var u island.Update
	if err := decodeBody(w, r, &u); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.upsert(w, r, id, u)
}

type createRequest struct {
	Owner string `json:"owner"`
	island.Update
}

func (h *Handler) postIsland(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := owner.Parse(req.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.upsert(w, r, id, req.Update)
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request, id owner.ID, u island.Update) {
	res, err := h.islands.Upsert(r.Context(), id, u)
	if errors.Is(err, island.ErrBusy) {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "busy"})
		return
	}
	if err != nil {
		writeError(w, islandStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, islandResponse{
		Status:   "ok",
		Owner:    id,
		Island:   res.Document,
		Degraded: res.Degraded,
		Tier:     res.Tier,
	})
}

func ownerParam(w http.ResponseWriter, r *http.Request) (owner.ID, bool) {
	id, err := owner.Parse(r.PathValue("owner"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return "", false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}

func instanceStatus(err error) int {
	switch {
	case errors.Is(err, owner.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, instance.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, instance.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, runtime.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func islandStatus(err error) int {
	switch {
	case errors.Is(err, owner.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, island.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, island.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, island.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"status": "error", "error": err.Error()})
}

// logRequests logs every request at debug level.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.DebugContext(r.Context(), "http request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	})
}
