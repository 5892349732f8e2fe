// Package api exposes the HTTP/WebSocket surface of spec.md §6 over the
// images, machines, and session packages: a chi router with role-gated
// middleware and a gorilla/websocket channel for session transitions.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ggnet/ggnet-core/bootchain/ipxe"
	"github.com/ggnet/ggnet-core/daemonstate"
	"github.com/ggnet/ggnet-core/images"
	"github.com/ggnet/ggnet-core/session"
	"github.com/ggnet/ggnet-core/store"
	"github.com/ggnet/ggnet-core/types"
)

// Deps carries every collaborator the router needs.
type Deps struct {
	Store        *store.Store
	Pipeline     *images.Pipeline
	Orchestrator *session.Orchestrator
	IPXE         *ipxe.Writer
	Hub          *SessionHub
	State        *daemonstate.Recorder
	ResolveActor ResolveActorFunc
}

// NewRouter assembles the chi router for the whole API surface.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)

	requireOperator := requireRole(types.RoleOperator, deps.ResolveActor)
	requireViewer := requireRole(types.RoleViewer, deps.ResolveActor)

	imageHdlr := &imageHandlers{pipeline: deps.Pipeline, st: deps.Store}
	machineHdlr := &machineHandlers{st: deps.Store, ipxe: deps.IPXE}
	sessionHdlr := &sessionHandlers{orch: deps.Orchestrator, st: deps.Store}

	imageHdlr.routes(r, requireOperator, requireViewer)
	machineHdlr.routes(r, requireOperator, requireViewer)
	sessionHdlr.routes(r, requireOperator, requireViewer)

	if deps.State != nil {
		(&statusHandlers{state: deps.State}).routes(r, requireViewer)
	}

	r.With(requireViewer).Get("/ws/sessions", deps.Hub.ServeHTTP)

	return r
}
