package rbac

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/personaengine/internal/errs"
)

// RegisterRoutes mounts role and permission endpoints on the given router.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Post("/api/roles", createRoleHandler(store))
	r.Get("/api/roles/{id}", getRoleHandler(store))
	r.Put("/api/roles/{id}/active", setActiveHandler(store))
	r.Get("/api/personas/{persona}/roles", listRolesHandler(store))
	r.Get("/api/personas/{persona}/permissions/{permission}", checkPermissionHandler(store))
}

func createRoleHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRoleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		role, err := store.CreateRole(r.Context(), req)
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		writeJSON(w, http.StatusCreated, role)
	}
}

func getRoleHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role, err := store.GetRole(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, role)
	}
}

func setActiveHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Active bool `json:"active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := store.SetActive(r.Context(), chi.URLParam(r, "id"), body.Active); err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listRolesHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all := r.URL.Query().Get("all") == "true"
		roles, err := store.ListRoles(r.Context(), chi.URLParam(r, "persona"), all)
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		if roles == nil {
			roles = []Role{}
		}
		writeJSON(w, http.StatusOK, roles)
	}
}

func checkPermissionHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		persona := chi.URLParam(r, "persona")
		permission := chi.URLParam(r, "permission")
		ok, err := store.HasPermission(r.Context(), persona, permission)
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"persona_id": persona,
			"permission": permission,
			"granted":    ok,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
