package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/people-hub/peoplehub/internal/application/command"
	"github.com/people-hub/peoplehub/internal/application/query"
	"github.com/people-hub/peoplehub/internal/domain/person"
	"github.com/people-hub/peoplehub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"name":    "People Hub API",
		"version": "v1",
		"endpoints": map[string]string{
			"health": "/health",
			"people": "/api/v1/people",
			"search": "/api/v1/people/search?last_name=",
		},
	})
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// handleReady handles the readiness probe endpoint.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSONError(w, r, http.StatusServiceUnavailable, "not_ready", status.Message)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": s.Uptime().String(),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// PEOPLE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleCreatePerson handles POST /api/v1/people
func (s *Server) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	var cmd command.CreatePersonCommand
	if !s.decode(w, r, &cmd) {
		return
	}

	created, err := s.deps.Create.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.respondDetail(w, r, http.StatusCreated, created.ID)
}

// handleListPeople handles GET /api/v1/people?limit=&offset=
func (s *Server) handleListPeople(w http.ResponseWriter, r *http.Request) {
	limit, err := getQueryParamInt(r, "limit", 0)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	offset, err := getQueryParamInt(r, "offset", 0)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	page, err := s.deps.People.ListPeople(r.Context(), query.ListPeopleQuery{Limit: limit, Offset: offset})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	count := len(page.People)
	writeJSONWithMeta(w, r, http.StatusOK, page.People, &ResponseMeta{
		Count:  &count,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

// handleSearchPeople handles GET /api/v1/people/search?last_name=
func (s *Server) handleSearchPeople(w http.ResponseWriter, r *http.Request) {
	found, err := s.deps.People.SearchByLastName(r.Context(), r.URL.Query().Get("last_name"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	count := len(found)
	writeJSONWithMeta(w, r, http.StatusOK, found, &ResponseMeta{Count: &count})
}

// handleGetPerson handles GET /api/v1/people/{id}
func (s *Server) handleGetPerson(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	s.respondDetail(w, r, http.StatusOK, id)
}

// handleUpdatePerson handles PUT and PATCH /api/v1/people/{id}
func (s *Server) handleUpdatePerson(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	var cmd command.UpdatePersonCommand
	if !s.decode(w, r, &cmd) {
		return
	}
	cmd.ID = id
	cmd.Partial = r.Method == http.MethodPatch

	updated, err := s.deps.Update.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.respondDetail(w, r, http.StatusOK, updated.ID)
}

// handleListFriends handles GET /api/v1/people/{id}/friends
func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	friends, err := s.deps.People.ListFriends(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	count := len(friends)
	writeJSONWithMeta(w, r, http.StatusOK, friends, &ResponseMeta{Count: &count})
}

// handleAddFriend handles POST /api/v1/people/{id}/add-friend
func (s *Server) handleAddFriend(w http.ResponseWriter, r *http.Request) {
	s.handleFriendship(w, r, s.deps.Friends.AddFriend)
}

// handleRemoveFriend handles POST /api/v1/people/{id}/remove-friend
func (s *Server) handleRemoveFriend(w http.ResponseWriter, r *http.Request) {
	s.handleFriendship(w, r, s.deps.Friends.RemoveFriend)
}

func (s *Server) handleFriendship(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, cmd command.FriendCommand) (*person.Person, error),
) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	var cmd command.FriendCommand
	if !s.decode(w, r, &cmd) {
		return
	}
	cmd.PersonID = id

	updated, err := op(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.respondDetail(w, r, http.StatusOK, updated.ID)
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// respondDetail re-reads the person so the response carries nested friends.
func (s *Server) respondDetail(w http.ResponseWriter, r *http.Request, status int, id person.ID) {
	detail, err := s.deps.People.GetPerson(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, status, detail)
}

// pathID parses {id}. Anything that is not a positive integer is an unknown person.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (person.ID, bool) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		writeJSONError(w, r, http.StatusNotFound, "not_found", "person "+raw+" not found")
		return 0, false
	}
	return person.ID(n), true
}

// decode reads a JSON body into dst, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	defer body.Close()

	err := json.NewDecoder(body).Decode(dst)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeJSONError(w, r, http.StatusRequestEntityTooLarge, "body_too_large", "Request body is too large")
	case errors.Is(err, io.EOF):
		writeJSONError(w, r, http.StatusBadRequest, "invalid_json", "Request body is empty")
	default:
		logger.FromContextOr(r.Context(), s.logger).Debug("invalid request body", logger.Err(err))
		writeJSONError(w, r, http.StatusBadRequest, "invalid_json", "Request body is not valid JSON", err.Error())
	}
	return false
}
