package engine

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/personaengine/internal/audit"
	"github.com/ziadkadry99/personaengine/internal/capability"
	"github.com/ziadkadry99/personaengine/internal/delegation"
	"github.com/ziadkadry99/personaengine/internal/errs"
	"github.com/ziadkadry99/personaengine/internal/lineage"
	"github.com/ziadkadry99/personaengine/internal/rbac"
	"github.com/ziadkadry99/personaengine/internal/security"
)

// RegisterRoutes mounts every component's endpoints plus prompt
// optimization. Delegation creation goes through the engine so the delegate
// permission is enforced over HTTP as well.
func RegisterRoutes(r chi.Router, e *Engine) {
	capability.RegisterRoutes(r, e.caps)
	rbac.RegisterRoutes(r, e.roles)
	security.RegisterRoutes(r, e.gate, e.cfg.Security.Adaptive)
	delegation.RegisterRoutes(r, e.delegations, func(r *http.Request, req delegation.DelegateRequest) (*delegation.Delegation, error) {
		return e.Delegate(r.Context(), req)
	})
	lineage.RegisterRoutes(r, e.lineage)
	audit.RegisterRoutes(r, e.audits)

	r.Post("/api/prompts/optimize", optimizeHandler(e))
}

func optimizeHandler(e *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OptimizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		res, err := e.OptimizePrompt(r.Context(), req)
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
