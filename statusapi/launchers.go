package statusapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/corvus-labs/clusterkit/registry"
)

// defaultHistoryLimit bounds /launchers/history when the caller doesn't
// specify one, so an unbounded query string can't force an unbounded scan.
const defaultHistoryLimit = 100

// LaunchersHandler serves the two read-only endpoints SPEC_FULL §6 assigns
// to the operator HTTP surface beyond health: a live snapshot and recent
// history. It reads the Tracker (updated by the owning loop goroutine) and
// the LaunchRegistry (its own connection, safe for concurrent reads) and
// touches no Launcher or Kernel internals directly.
type LaunchersHandler struct {
	tracker  *Tracker
	registry *registry.Registry
	logger   *slog.Logger
}

func NewLaunchersHandler(tracker *Tracker, reg *registry.Registry, logger *slog.Logger) *LaunchersHandler {
	return &LaunchersHandler{tracker: tracker, registry: reg, logger: logger}
}

// List handles GET /launchers.
func (h *LaunchersHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.Snapshot())
}

// History handles GET /launchers/history, optionally filtered by ?kind=.
func (h *LaunchersHandler) History(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := h.registry.ListRecent(kind, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list launch history", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
