package tokenauth

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"vocacore/internal/obs"
)

// Action is the capability a route demands from the permission matrix. It is
// bound once at route registration, so the verb→capability mapping lives in
// exactly one place.
type Action int

const (
	ActionList Action = iota
	ActionRead
	ActionCreate
	ActionUpdate
	ActionDelete
	ActionBulkCreate
	ActionBulkUpdate
	ActionBulkDelete
)

func (a Action) String() string {
	switch a {
	case ActionList:
		return "list"
	case ActionRead:
		return "read"
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	case ActionBulkCreate:
		return "bulk_create"
	case ActionBulkUpdate:
		return "bulk_update"
	case ActionBulkDelete:
		return "bulk_delete"
	default:
		return "unknown"
	}
}

// IsWrite reports whether the action mutates data. Used for the coarse role
// gate on mobile tokens.
func (a Action) IsWrite() bool {
	return a != ActionList && a != ActionRead
}

// Require is the authorization stage for one (model, action) pair. It only
// constrains API client tokens: the endpoint allow-list is checked first,
// then the permission matrix with default-deny semantics. Mobile tokens and
// non-token requests pass through untouched; their gating happens elsewhere.
func Require(store *Store, lg *zap.SugaredLogger, modelName string, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFromContext(r.Context())
			if id == nil || id.Kind != KindAPI {
				next.ServeHTTP(w, r)
				return
			}

			if err := id.CheckEndpoint(r.URL.Path); err != nil {
				id.rejected = true
				obs.Denied("endpoint")
				lg.Infow("endpoint not allowed", "token", id.TokenID, "path", r.URL.Path)
				writeError(w, http.StatusForbidden, "endpoint not allowed")
				return
			}

			decision, err := store.Permission(r.Context(), id.TokenID, modelName)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "permission lookup failed")
				return
			}
			if !decision.Allows(action) {
				id.rejected = true
				obs.Denied("permission")
				lg.Infow("model permission denied",
					"token", id.TokenID, "model", modelName, "action", action.String())
				writeError(w, http.StatusForbidden,
					"token does not have "+action.String()+" permission for "+modelName)
				return
			}

			id.Permission = decision.Entry()
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
