package lineage

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/personaengine/internal/errs"
)

// RecordRequest is the body of POST /api/lineage.
type RecordRequest struct {
	ParentPersona         string   `json:"parent_persona"`
	ChildPersona          string   `json:"child_persona"`
	MergeStrategy         Strategy `json:"merge_strategy"`
	InheritancePercentage *float64 `json:"inheritance_percentage,omitempty"`
}

// RegisterRoutes mounts lineage and merge endpoints on the given router.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Post("/api/lineage", recordHandler(store))
	r.Post("/api/lineage/merge", mergeHandler(store))
	r.Get("/api/personas/{persona}/lineage", reportHandler(store))
	r.Get("/api/personas/{persona}/lineage/edges", edgesHandler(store))
}

func recordHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RecordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		inheritance := 1.0
		if req.InheritancePercentage != nil {
			inheritance = *req.InheritancePercentage
		}
		rec, err := store.RecordLineage(r.Context(), req.ParentPersona, req.ChildPersona, req.MergeStrategy, inheritance)
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

func mergeHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MergeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		res, err := store.Merge(r.Context(), req)
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func reportHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		depth := 0
		if v := r.URL.Query().Get("max_depth"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				http.Error(w, "max_depth must be an integer", http.StatusBadRequest)
				return
			}
			depth = n
		}
		report, err := store.Report(r.Context(), chi.URLParam(r, "persona"), depth)
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func edgesHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		edges, err := store.Edges(r.Context(), chi.URLParam(r, "persona"))
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, edges)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
