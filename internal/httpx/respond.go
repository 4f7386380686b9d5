package httpx

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/ariefcatur/go-shopfront.git/internal/apperr"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errBody struct {
	Error string `json:"error"`
}

// writeErr maps the error taxonomy onto response codes. Authorization
// and internal failures get a generic body so callers learn nothing
// beyond the denial; detail goes to the server log.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		writeJSON(w, http.StatusBadRequest, errBody{Error: err.Error()})
	case apperr.KindNotFound:
		writeJSON(w, http.StatusNotFound, errBody{Error: err.Error()})
	case apperr.KindConflict:
		writeJSON(w, http.StatusConflict, errBody{Error: err.Error()})
	case apperr.KindUnauthorized:
		writeJSON(w, http.StatusForbidden, errBody{Error: "forbidden"})
	case apperr.KindUpstream:
		log.Printf("%s %s: upstream: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusBadGateway, errBody{Error: "payment provider unavailable, try again"})
	default:
		log.Printf("%s %s: internal: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errBody{Error: "internal error"})
	}
}

// actor pulls the caller identity resolved by the auth layer in front
// of this service.
func actor(r *http.Request) (id, role string) {
	return r.Header.Get("X-User-Id"), r.Header.Get("X-User-Role")
}
