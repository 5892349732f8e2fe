package api

import (
	"net/http"

	"github.com/ggnet/ggnet-core/types"
)

// HeaderActorResolver is a minimal ResolveActorFunc that trusts two request
// headers set by an upstream reverse proxy after it has authenticated the
// caller (spec.md §1 treats authentication itself as an external
// collaborator). Deployments with a real identity provider should supply
// their own ResolveActorFunc instead.
func HeaderActorResolver(usernameHeader, roleHeader string) ResolveActorFunc {
	return func(r *http.Request) (Actor, bool) {
		username := r.Header.Get(usernameHeader)
		role := r.Header.Get(roleHeader)
		if username == "" || role == "" {
			return Actor{}, false
		}
		return Actor{Username: username, Role: roleFromHeader(role)}, true
	}
}

func roleFromHeader(s string) types.Role {
	switch s {
	case string(types.RoleAdmin):
		return types.RoleAdmin
	case string(types.RoleOperator):
		return types.RoleOperator
	default:
		return types.RoleViewer
	}
}
