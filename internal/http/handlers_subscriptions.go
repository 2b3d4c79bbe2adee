package http

import (
	"net/http"
)

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
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
	subs, err := s.subscriptions.List(r.Context(), actor, yearID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// handleGetSubscription lazily creates the member's subscription on
// first access.
func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
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
	memberID := sanitizeInput(r.PathValue("memberID"))

	sub, err := s.subscriptions.GetOrCreate(r.Context(), actor, yearID, memberID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleToggleInstallment(w http.ResponseWriter, r *http.Request) {
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
	memberID := sanitizeInput(r.PathValue("memberID"))
	number, err := pathInt(r, "number")
	if err != nil {
		writeError(w, r, err)
		return
	}

	sub, err := s.subscriptions.ToggleInstallment(r.Context(), actor, yearID, memberID, number)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateReports(actor.ClubID)
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleMigrateSubscriptions(w http.ResponseWriter, r *http.Request) {
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

	migrated, err := s.subscriptions.Migrate(r.Context(), actor, yearID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateReports(actor.ClubID)
	writeJSON(w, http.StatusOK, map[string]int{"migrated": migrated})
}

func (s *Server) handlePaidInstallments(w http.ResponseWriter, r *http.Request) {
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
	payments, err := s.subscriptions.PaidInstallments(r.Context(), actor, yearID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}
