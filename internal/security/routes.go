package security

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type textRequest struct {
	Text  string `json:"text"`
	Level string `json:"level,omitempty"`
}

// RegisterRoutes mounts prompt screening endpoints on the given router.
// Requests without a level use the gate's current level. With adaptive set,
// those validations are also observed by the gate.
func RegisterRoutes(r chi.Router, gate *Gate, adaptive bool) {
	r.Post("/api/prompts/validate", validateHandler(gate, adaptive))
	r.Post("/api/prompts/sanitize", sanitizeHandler(gate))
	r.Get("/api/security/level", levelHandler(gate))
}

func validateHandler(gate *Gate, adaptive bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, level, ok := decodeTextRequest(w, r, gate)
		if !ok {
			return
		}
		report := Validate(req.Text, level)
		if adaptive && req.Level == "" {
			gate.Observe(report)
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func sanitizeHandler(gate *Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, level, ok := decodeTextRequest(w, r, gate)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, Sanitize(req.Text, level))
	}
}

func levelHandler(gate *Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"level":           gate.Level(),
			"recent_attempts": len(gate.RecentAttempts()),
		})
	}
}

func decodeTextRequest(w http.ResponseWriter, r *http.Request, gate *Gate) (textRequest, Level, bool) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return req, "", false
	}
	level := gate.Level()
	if req.Level != "" {
		parsed, err := ParseLevel(req.Level)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return req, "", false
		}
		level = parsed
	}
	return req, level, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
