package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ggnet/ggnet-core/internal/obslog"
	"github.com/ggnet/ggnet-core/types"
)

var reqLogger = obslog.WithFunc("api.request")

// requestID assigns a request id to ctx and logs method/path/status/latency
// at completion.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		ctx := obslog.WithRequestID(r.Context(), id)
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		reqLogger.Infof(ctx, "%s %s -> %d (%s)", r.Method, r.URL.Path, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// actorKey is the context key requireRole stores the resolved caller under.
type actorKey struct{}

// Actor identifies the caller making a request.
type Actor struct {
	Username string
	Role     types.Role
}

// ActorFromContext returns the Actor requireRole placed on ctx.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// ResolveActorFunc extracts the calling Actor from a request. Authentication
// itself is an external collaborator (spec.md §1 "Deliberately out of
// scope"); this system only ever consumes the actor an upstream identity
// provider has already resolved, e.g. from a trusted proxy header.
type ResolveActorFunc func(*http.Request) (Actor, bool)

// requireRole authorizes requests against min and 403s otherwise (spec.md
// §6 "Mutating operations require an authenticated actor with role ≥
// OPERATOR; reads require ≥ VIEWER").
func requireRole(min types.Role, resolveActor ResolveActorFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := resolveActor(r)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody{Code: "unauthenticated", Message: "no actor resolved for request"})
				return
			}
			if !actor.Role.Allows(min) {
				writeJSON(w, http.StatusForbidden, errorBody{Code: "forbidden", Message: "role does not permit this operation"})
				return
			}
			ctx := context.WithValue(r.Context(), actorKey{}, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
