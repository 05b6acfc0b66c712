package httputil

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// UUIDParam returns the named chi URL parameter when it is a UUID. Anything
// else is answered with 404 and notFound, since no row can carry that key.
func UUIDParam(w http.ResponseWriter, r *http.Request, name, notFound string) (string, bool) {
	raw := chi.URLParam(r, name)
	if _, err := uuid.Parse(raw); err != nil {
		WriteError(w, http.StatusNotFound, notFound)
		return "", false
	}
	return raw, true
}
