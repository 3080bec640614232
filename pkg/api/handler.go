package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/psantana5/timinghooks/internal/report"
	"github.com/psantana5/timinghooks/pkg/logging"
	"github.com/psantana5/timinghooks/pkg/metrics"
	"github.com/psantana5/timinghooks/pkg/store"
	"github.com/psantana5/timinghooks/pkg/timers"
)

// maxBodyBytes bounds state and snapshot uploads
const maxBodyBytes = 32 << 20

// Handler serves a live accumulator and a snapshot store over HTTP.
//
// Clients merge their exported state into the live accumulator or push it
// as a snapshot. The handler also times its own requests into a separate
// server accumulator, reported with ?scope=server and on /metrics.
type Handler struct {
	timings *timers.Timers
	server  *timers.Timers
	store   store.Store
	logger  *logging.Logger

	registry *prometheus.Registry
	host     string
}

// NewHandler creates a handler for the live accumulator t backed by s.
// opts configure the accumulator of the handler's own request timings.
func NewHandler(t *timers.Timers, s store.Store, logger *logging.Logger, opts ...timers.Option) *Handler {
	if logger == nil {
		logger = logging.NewLogger(logging.INFO, false)
	}
	host, _ := os.Hostname()

	h := &Handler{
		timings:  t,
		server:   timers.New(opts...),
		store:    s,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		host:     host,
	}
	h.registry.MustRegister(
		metrics.NewCollector("timinghooks", h.timings),
		metrics.NewCollector("timinghooks_server", h.server),
	)
	return h
}

// Server returns the accumulator holding the handler's own request timings
func (h *Handler) Server() *timers.Timers {
	return h.server
}

// Registry returns the registry served on /metrics, for registering
// additional collectors.
func (h *Handler) Registry() *prometheus.Registry {
	return h.registry
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.Use(h.timeRequests)

	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/summary", h.GetSummary).Methods("GET")
	r.HandleFunc("/state", h.GetState).Methods("GET")
	r.HandleFunc("/state/merge", h.MergeState).Methods("POST")
	r.HandleFunc("/reset", h.Reset).Methods("POST")

	// /snapshots/summary must be registered before /snapshots/{id}
	r.HandleFunc("/snapshots/summary", h.CombinedSummary).Methods("GET")
	r.HandleFunc("/snapshots", h.ListSnapshots).Methods("GET")
	r.HandleFunc("/snapshots", h.CreateSnapshot).Methods("POST")
	r.HandleFunc("/snapshots/{id}", h.GetSnapshot).Methods("GET")
	r.HandleFunc("/snapshots/{id}", h.DeleteSnapshot).Methods("DELETE")
	r.HandleFunc("/snapshots/{id}/summary", h.GetSnapshotSummary).Methods("GET")

	r.Handle("/metrics", metrics.Handler(h.registry)).Methods("GET")
}

// timeRequests records every matched request as "http <METHOD> <route>"
func (h *Handler) timeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := "http " + r.Method + " " + r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				name = "http " + r.Method + " " + tmpl
			}
		}

		err := h.server.Time(r.Context(), name, func(ctx context.Context) error {
			next.ServeHTTP(w, r.WithContext(ctx))
			return nil
		})
		if err != nil {
			h.logger.Warn("failed to time request", map[string]interface{}{
				"interval": name,
				"error":    err.Error(),
			})
		}
	})
}

// Health reports whether the store is reachable
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.HealthCheck(); err != nil {
		h.logger.Error("store health check failed", map[string]interface{}{"error": err.Error()})
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "healthy",
		"names":            len(h.timings.Names()),
		"active_intervals": h.timings.Active(),
	})
}

// GetSummary returns the statistics of the live accumulator, or of the
// server's own request timings with ?scope=server.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	source := h.timings
	if r.URL.Query().Get("scope") == "server" {
		source = h.server
	}
	h.writeSummary(w, r, source.Summary())
}

// GetState returns the raw records of the live accumulator
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.timings.Export())
}

// MergeState appends an uploaded state to the live accumulator
func (h *Handler) MergeState(w http.ResponseWriter, r *http.Request) {
	var state timers.State
	if err := decodeBody(w, r, &state); err != nil {
		http.Error(w, fmt.Sprintf("Invalid state: %v", err), http.StatusBadRequest)
		return
	}
	if err := h.timings.MergeState(state); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logger.Debug("merged state", map[string]interface{}{
		"names":   len(state),
		"records": state.Records(),
	})
	writeJSON(w, http.StatusOK, map[string]int{
		"names":   len(state),
		"records": state.Records(),
	})
}

// Reset clears the live accumulator. With ?save=true the cleared records
// are stored as a snapshot first, labelled by ?label.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	state := h.timings.Drain()

	response := map[string]interface{}{"records": state.Records()}
	if r.URL.Query().Get("save") == "true" && len(state) > 0 {
		snap := store.NewSnapshot(r.URL.Query().Get("label"), h.host, state)
		if err := h.store.Save(r.Context(), snap); err != nil {
			// put the records back rather than lose them
			_ = h.timings.MergeState(state)
			h.logger.Error("failed to save snapshot on reset", map[string]interface{}{"error": err.Error()})
			http.Error(w, "Failed to save snapshot", http.StatusInternalServerError)
			return
		}
		response["snapshot"] = snap.Info()
	}

	h.logger.Info("accumulator reset", map[string]interface{}{"records": state.Records()})
	writeJSON(w, http.StatusOK, response)
}

// CreateSnapshotRequest is the body of POST /snapshots. State is stored as
// given, empty or not. With Capture set the live accumulator is stored
// instead, and cleared as well when Reset is set.
type CreateSnapshotRequest struct {
	Label   string       `json:"label,omitempty"`
	Host    string       `json:"host,omitempty"`
	State   timers.State `json:"state"`
	Capture bool         `json:"capture,omitempty"`
	Reset   bool         `json:"reset,omitempty"`
}

// CreateSnapshot stores a pushed or captured state
func (h *Handler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	var req CreateSnapshotRequest
	if err := decodeBody(w, r, &req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	state, host := req.State, req.Host
	if req.Capture {
		if state != nil {
			http.Error(w, "state and capture are mutually exclusive", http.StatusBadRequest)
			return
		}
		host = h.host
		if req.Reset {
			state = h.timings.Drain()
		} else {
			state = h.timings.Export()
		}
	} else if state == nil {
		state = timers.State{}
	}

	snap := store.NewSnapshot(req.Label, host, state)
	if err := h.store.Save(r.Context(), snap); err != nil {
		if req.Capture && req.Reset {
			_ = h.timings.MergeState(state)
		}
		if isInvalid(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to save snapshot", map[string]interface{}{"error": err.Error()})
		http.Error(w, "Failed to save snapshot", http.StatusInternalServerError)
		return
	}

	h.logger.Info("snapshot saved", map[string]interface{}{
		"id":      snap.ID,
		"label":   snap.Label,
		"host":    snap.Host,
		"records": state.Records(),
	})
	writeJSON(w, http.StatusCreated, snap.Info())
}

// ListSnapshots lists stored snapshots, oldest first
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	infos, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list snapshots", map[string]interface{}{"error": err.Error()})
		http.Error(w, "Failed to list snapshots", http.StatusInternalServerError)
		return
	}
	if infos == nil {
		infos = []store.SnapshotInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": infos,
		"count":     len(infos),
	})
}

// GetSnapshot returns a stored snapshot with its records
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.loadSnapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetSnapshotSummary returns the statistics of a stored snapshot
func (h *Handler) GetSnapshotSummary(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.loadSnapshot(w, r)
	if !ok {
		return
	}
	h.writeSummary(w, r, timers.Summarize(snap.State))
}

// CombinedSummary merges the snapshots named by repeated ?id= parameters,
// or all of them, and returns the statistics of the result.
func (h *Handler) CombinedSummary(w http.ResponseWriter, r *http.Request) {
	combined, err := store.Combine(r.Context(), h.store, nil, r.URL.Query()["id"]...)
	if err != nil {
		if errors.Is(err, store.ErrSnapshotNotFound) {
			http.Error(w, "Snapshot not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to combine snapshots", map[string]interface{}{"error": err.Error()})
		http.Error(w, "Failed to combine snapshots", http.StatusInternalServerError)
		return
	}
	h.writeSummary(w, r, combined.Summary())
}

// DeleteSnapshot removes a stored snapshot
func (h *Handler) DeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrSnapshotNotFound) {
			http.Error(w, "Snapshot not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to delete snapshot", map[string]interface{}{"id": id, "error": err.Error()})
		http.Error(w, "Failed to delete snapshot", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) loadSnapshot(w http.ResponseWriter, r *http.Request) (*store.Snapshot, bool) {
	id := mux.Vars(r)["id"]
	snap, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrSnapshotNotFound) {
			http.Error(w, "Snapshot not found", http.StatusNotFound)
			return nil, false
		}
		h.logger.Error("failed to get snapshot", map[string]interface{}{"id": id, "error": err.Error()})
		http.Error(w, "Failed to get snapshot", http.StatusInternalServerError)
		return nil, false
	}
	return snap, true
}

// writeSummary renders summary in the ?format= requested, JSON by default
func (h *Handler) writeSummary(w http.ResponseWriter, r *http.Request, summary timers.Summary) {
	format := report.FormatJSON
	if f := r.URL.Query().Get("format"); f != "" {
		parsed, err := report.ParseFormat(f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		format = parsed
	}

	switch format {
	case report.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	case report.FormatYAML:
		w.Header().Set("Content-Type", "application/yaml")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	if err := report.Render(w, summary, format); err != nil {
		h.logger.Error("failed to render summary", map[string]interface{}{"error": err.Error()})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func isInvalid(err error) bool {
	return errors.Is(err, timers.ErrInvalidState) || errors.Is(err, store.ErrInvalidSnapshot)
}
