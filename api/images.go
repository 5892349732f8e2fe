package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ggnet/ggnet-core/images"
	"github.com/ggnet/ggnet-core/progress"
	"github.com/ggnet/ggnet-core/store"
	"github.com/ggnet/ggnet-core/types"
)

// imageHandlers implements the /images routes of spec.md §6.
type imageHandlers struct {
	pipeline *images.Pipeline
	st       *store.Store
}

func (h *imageHandlers) routes(r chi.Router, requireOperator, requireViewer func(http.Handler) http.Handler) {
	r.With(requireOperator).Post("/images", h.beginUpload)
	r.With(requireOperator).Put("/images/{token}:chunk", h.appendChunk)
	r.With(requireOperator).Post("/images/{token}:finalize", h.finalizeUpload)
	r.With(requireViewer).Get("/images", h.list)
	r.With(requireViewer).Get("/images/{id}", h.get)
	r.With(requireOperator).Delete("/images/{id}", h.archive)
}

type beginUploadRequest struct {
	Name         string           `json:"name"`
	Format       types.ImageFormat `json:"format"`
	DeclaredSize int64            `json:"declared_size"`
}

func (h *imageHandlers) beginUpload(w http.ResponseWriter, r *http.Request) {
	var req beginUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: err.Error()})
		return
	}
	actor, _ := ActorFromContext(r.Context())

	token, err := h.pipeline.BeginUpload(r.Context(), req.Name, req.Format, req.DeclaredSize, actor.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

func (h *imageHandlers) appendChunk(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	offset, err := strconv.ParseInt(r.URL.Query().Get("offset"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "invalid offset"})
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: err.Error()})
		return
	}
	if err := h.pipeline.AppendChunk(r.Context(), token, offset, data); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *imageHandlers) finalizeUpload(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := h.pipeline.FinalizeUpload(r.Context(), token, progress.Nop); err != nil {
		writeError(w, err)
		return
	}
	img, err := h.st.GetImage(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, img)
}

func (h *imageHandlers) list(w http.ResponseWriter, r *http.Request) {
	imgs, err := h.st.ListImages(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, imgs)
}

func (h *imageHandlers) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	img, err := h.st.GetImage(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, img)
}

func (h *imageHandlers) archive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.pipeline.ArchiveImage(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
