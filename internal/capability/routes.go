package capability

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/personaengine/internal/errs"
)

// RegisterRoutes mounts capability endpoints on the given router.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Get("/api/capabilities", listHandler(store))
	r.Get("/api/capabilities/{persona}", getHandler(store))
	r.Put("/api/capabilities/{persona}", putHandler(store))
	r.Delete("/api/capabilities/{persona}", deleteHandler(store))
}

func listHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caps, err := store.List(r.Context())
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		if caps == nil {
			caps = []Capability{}
		}
		writeJSON(w, http.StatusOK, caps)
	}
}

func getHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := store.Get(r.Context(), chi.URLParam(r, "persona"))
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func putHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c Capability
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		c.PersonaID = chi.URLParam(r, "persona")
		saved, err := store.Put(r.Context(), &c)
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

func deleteHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Delete(r.Context(), chi.URLParam(r, "persona")); err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
