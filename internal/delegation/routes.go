package delegation

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/personaengine/internal/errs"
)

// DelegateFunc creates a delegation. The engine passes its permission-gated
// version; tests pass Store.Delegate directly.
type DelegateFunc func(r *http.Request, req DelegateRequest) (*Delegation, error)

// RegisterRoutes mounts delegation endpoints on the given router.
func RegisterRoutes(r chi.Router, store *Store, delegate DelegateFunc) {
	if delegate == nil {
		delegate = func(r *http.Request, req DelegateRequest) (*Delegation, error) {
			return store.Delegate(r.Context(), req)
		}
	}
	r.Post("/api/delegations", createHandler(delegate))
	r.Get("/api/delegations", listHandler(store))
	r.Post("/api/delegations/rank", rankHandler(store))
	r.Get("/api/delegations/{id}", getHandler(store))
	r.Get("/api/delegations/{id}/status", statusHandler(store))
	r.Post("/api/delegations/{id}/transition", transitionHandler(store))
	r.Post("/api/delegations/{id}/progress", progressHandler(store))
}

func createHandler(delegate DelegateFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DelegateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		d, err := delegate(r, req)
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		writeJSON(w, http.StatusCreated, d)
	}
}

func listHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := ListFilter{
			FromPersona: q.Get("from"),
			ToPersona:   q.Get("to"),
			Status:      Status(q.Get("status")),
		}
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			f.Limit = n
		}
		items, err := store.List(r.Context(), f)
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		if items == nil {
			items = []Delegation{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

type rankRequest struct {
	RequiredCapabilities []string `json:"required_capabilities"`
	Exclude              []string `json:"exclude"`
	RankOptions
}

func rankHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		ranked, err := store.RankCandidates(r.Context(), req.RequiredCapabilities, req.Exclude, req.RankOptions)
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, ranked)
	}
}

func getHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func statusHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := store.GetStatus(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func transitionHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status Status          `json:"status"`
			Result json.RawMessage `json:"result,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		d, err := store.Transition(r.Context(), chi.URLParam(r, "id"), body.Status, body.Result)
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func progressHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Progress    int    `json:"progress"`
			CurrentStep string `json:"current_step"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		rep, err := store.UpdateProgress(r.Context(), chi.URLParam(r, "id"), body.Progress, body.CurrentStep)
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
