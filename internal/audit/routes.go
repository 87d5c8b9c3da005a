package audit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/personaengine/internal/errs"
)

// RegisterRoutes mounts the read-only merge audit endpoints. Entries are only
// ever written by merges.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Get("/api/merges", queryHandler(store))
	r.Get("/api/merges/{id}", getHandler(store))
	r.Get("/api/merges/{id}/verify", verifyHandler(store))
}

func queryHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseFilter(r.URL.Query())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		entries, err := store.Query(r.Context(), filter)
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		if entries == nil {
			entries = []Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// parseFilter reads primary, secondary, strategy, operator, since, until
// (RFC 3339), limit and offset.
func parseFilter(q url.Values) (QueryFilter, error) {
	f := QueryFilter{
		PrimaryPersona:   q.Get("primary"),
		SecondaryPersona: q.Get("secondary"),
		MergeStrategy:    q.Get("strategy"),
		OperatorID:       q.Get("operator"),
	}
	for key, dst := range map[string]**time.Time{"since": &f.Since, "until": &f.Until} {
		if v := q.Get(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, fmt.Errorf("%s: want an RFC 3339 time, got %q", key, v)
			}
			*dst = &t
		}
	}
	for key, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return f, fmt.Errorf("%s: want a non-negative integer, got %q", key, v)
			}
			*dst = n
		}
	}
	return f, nil
}

func getHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := store.GetByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

func verifyHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := store.Verify(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
