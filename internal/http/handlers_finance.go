package http

import (
	"net/http"
	"strconv"
)

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := s.finance.Archive(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleArchiveDetails(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	yearID, err := pathID(r, "yearID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	details, err := s.finance.ArchiveDetails(r.Context(), actor, yearID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleExportArchive(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	yearID, err := pathID(r, "yearID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.finance.ExportArchive(r.Context(), actor, yearID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"exported": yearID})
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := s.finance.AuditTrail(r.Context(), actor, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
