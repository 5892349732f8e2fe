package api

import (
	"encoding/json"
	"net/http"

	"github.com/ggnet/ggnet-core/internal/ggerr"
)

// statusFor derives the HTTP status an error kind maps to (spec.md §7
// "HTTP status is derived from the kind").
func statusFor(kind ggerr.Kind) int {
	switch kind {
	case ggerr.KindPrecondition, ggerr.KindProtocol:
		return http.StatusBadRequest
	case ggerr.KindNotFound:
		return http.StatusNotFound
	case ggerr.KindConflict:
		return http.StatusConflict
	case ggerr.KindCancelled:
		return http.StatusRequestTimeout
	case ggerr.KindTransient, ggerr.KindConfig, ggerr.KindFatal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the stable machine-readable shape every failure response
// carries (spec.md §7 "a stable machine-readable code and a human string").
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps err to an HTTP status and a {code, message} body. Errors
// that aren't a *ggerr.Error (shouldn't happen past the service layer) are
// treated as FatalError.
func writeError(w http.ResponseWriter, err error) {
	kind, ok := ggerr.KindOf(err)
	code := "internal_error"
	if !ok {
		kind = ggerr.KindFatal
	} else if gerr, isGG := err.(*ggerr.Error); isGG {
		code = gerr.Code
	}
	writeJSON(w, statusFor(kind), errorBody{Code: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
