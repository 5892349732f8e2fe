package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ggnet/ggnet-core/daemonstate"
)

// statusHandlers exposes the process's own runtime-state file, separate from
// domain resources, so an operator can confirm background sweeps are alive.
type statusHandlers struct {
	state *daemonstate.Recorder
}

func (h *statusHandlers) routes(r chi.Router, requireViewer func(http.Handler) http.Handler) {
	r.With(requireViewer).Get("/status", h.get)
}

func (h *statusHandlers) get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.state.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
