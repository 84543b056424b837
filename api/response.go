package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ainotebook/notebase/formats/dsd"
	"github.com/ainotebook/notebase/log"
	"github.com/ainotebook/notebase/notes"
)

// Response messages.
const (
	msgCreated       = "Note created successfully"
	msgUpdated       = "Note updated successfully"
	msgDeleted       = "Note deleted successfully"
	msgNotFound      = "Note not found"
	msgNoUserNotes   = "No notes found for this user"
	msgMissingUserID = "Missing user_id parameter"
)

type body map[string]interface{}

// respond writes the body in the format accepted by the client, JSON by
// default.
func respond(w http.ResponseWriter, r *http.Request, status int, b body) {
	err := dsd.DumpToHTTPResponse(w, r, status, b, dsd.JSON)
	if err != nil {
		log.Warningf("api: failed to write response to %s: %s", r.RemoteAddr, err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	respond(w, r, status, body{"error": msg})
}

func missingParameter(field string) string {
	return fmt.Sprintf("Missing %s parameter", field)
}

// respondFailure maps a notes service error to a response.
func respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, notes.ErrNotFound):
		respondError(w, r, http.StatusNotFound, msgNotFound)
	default:
		log.Errorf("api: request %s %s failed: %s", r.Method, r.RequestURI, err)
		respond(w, r, http.StatusInternalServerError, body{
			"success": false,
			"error":   err.Error(),
		})
	}
}
