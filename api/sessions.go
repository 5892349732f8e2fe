package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ggnet/ggnet-core/session"
	"github.com/ggnet/ggnet-core/store"
)

// sessionHandlers implements the /sessions routes of spec.md §6.
type sessionHandlers struct {
	orch *session.Orchestrator
	st   *store.Store
}

func (h *sessionHandlers) routes(r chi.Router, requireOperator, requireViewer func(http.Handler) http.Handler) {
	r.With(requireOperator).Post("/sessions", h.start)
	r.With(requireOperator).Post("/sessions/{id}:stop", h.stop)
	r.With(requireViewer).Get("/sessions", h.list)
	r.With(requireViewer).Get("/sessions/{id}", h.get)
}

type startSessionRequest struct {
	MachineID string `json:"machine_id"`
	ImageID   string `json:"image_id"`
}

func (h *sessionHandlers) start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: err.Error()})
		return
	}
	actor, _ := ActorFromContext(r.Context())

	sess, err := h.orch.StartSession(r.Context(), req.MachineID, req.ImageID, actor.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *sessionHandlers) stop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.orch.StopSession(r.Context(), id, "stopped via API"); err != nil {
		writeError(w, err)
		return
	}
	sess, err := h.st.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *sessionHandlers) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.st.ListActiveSessions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *sessionHandlers) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := h.st.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
