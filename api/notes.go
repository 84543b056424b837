package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ainotebook/notebase/formats/dsd"
	"github.com/ainotebook/notebase/notes"
)

type createRequest struct {
	UserID  *uint64 `json:"user_id" msgpack:"user_id"`
	Title   *string `json:"title" msgpack:"title"`
	Content *string `json:"content" msgpack:"content"`
	Image   string  `json:"image" msgpack:"image"`
}

type updateRequest struct {
	Title   *string `json:"title" msgpack:"title"`
	Content *string `json:"content" msgpack:"content"`
	Image   *string `json:"image" msgpack:"image"`
}

func pathID(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return id, err == nil
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID == 0 {
		respondError(w, r, http.StatusBadRequest, msgMissingUserID)
		return
	}

	list, err := s.notes.List(r.Context(), userID)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, body{
		"success": true,
		"notes":   list,
	})
}

func (s *Server) handleUserNotes(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r)
	if !ok {
		respondError(w, r, http.StatusBadRequest, msgMissingUserID)
		return
	}

	list, err := s.notes.ListByUser(r.Context(), userID)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	if len(list) == 0 {
		respondError(w, r, http.StatusNotFound, msgNoUserNotes)
		return
	}
	respond(w, r, http.StatusOK, body{
		"success": true,
		"notes":   list,
	})
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, r, http.StatusNotFound, msgNotFound)
		return
	}

	n, err := s.notes.Get(r.Context(), id)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, body{
		"success": true,
		"note":    n,
	})
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	req := &createRequest{}
	if _, err := dsd.LoadFromHTTPRequest(r, req); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	switch {
	case req.UserID == nil:
		respondError(w, r, http.StatusBadRequest, missingParameter("user_id"))
		return
	case req.Title == nil:
		respondError(w, r, http.StatusBadRequest, missingParameter("title"))
		return
	case req.Content == nil:
		respondError(w, r, http.StatusBadRequest, missingParameter("content"))
		return
	}

	n, err := s.notes.Create(r.Context(), *req.UserID, *req.Title, *req.Content, req.Image)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, body{
		"success": true,
		"message": msgCreated,
		"note":    n,
	})
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, r, http.StatusNotFound, msgNotFound)
		return
	}
	req := &updateRequest{}
	if _, err := dsd.LoadFromHTTPRequest(r, req); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	n, err := s.notes.Update(r.Context(), id, &notes.Changes{
		Title:   req.Title,
		Content: req.Content,
		Image:   req.Image,
	})
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, body{
		"success": true,
		"message": msgUpdated,
		"note":    n,
	})
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, r, http.StatusNotFound, msgNotFound)
		return
	}

	if err := s.notes.Delete(r.Context(), id); err != nil {
		respondFailure(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, body{
		"success": true,
		"message": msgDeleted,
	})
}
