package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flagdeck/flagdeck/internal/audit"
)

func (s *Server) handleFlagAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.coord.AuditForFlag(r.Context(), chi.URLParam(r, "key"), queryLimit(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// handleAudit returns recent entries, optionally filtered by actor.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r)

	var (
		entries []audit.Entry
		err     error
	)
	if actor := r.URL.Query().Get("actor"); actor != "" {
		entries, err = s.coord.AuditByActor(r.Context(), actor, limit)
	} else {
		entries, err = s.coord.AuditRecent(r.Context(), limit)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}
