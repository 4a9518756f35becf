package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	apperrors "parkspot/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// writeError maps engine errors to their HTTP status. Unexpected errors are logged
// and reported as a bare 500.
func writeError(w http.ResponseWriter, err error) {
	httpErr := apperrors.FromError(err)
	if httpErr.Code == http.StatusInternalServerError {
		log.Printf("Internal error: %v", err)
	}
	writeJSON(w, httpErr.Code, map[string]string{"error": httpErr.Message})
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.ErrBadRequest("Invalid request body")
	}
	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, apperrors.ErrBadRequest("Invalid " + name)
	}
	return id, nil
}

func parseUUID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.ErrBadRequest("Invalid " + field)
	}
	return id, nil
}

// queryTime reads an RFC 3339 query parameter, falling back to def when absent.
func queryTime(r *http.Request, name string, def time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperrors.ErrBadRequest("Invalid " + name + ", expected RFC 3339")
	}
	return t.UTC(), nil
}
