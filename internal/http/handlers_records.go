package http

import (
	"net/http"

	"clubledger/internal/core"
)

type expenseRequest struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Amount   string `json:"amount"`
}

func (s *Server) handleRecordExpense(w http.ResponseWriter, r *http.Request) {
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

	var req expenseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := core.ParsePositiveMoney(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	expense, err := s.records.RecordExpense(r.Context(), actor, yearID,
		sanitizeInput(req.Title), sanitizeInput(req.Category), amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
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

	status := core.ExpenseStatus(r.URL.Query().Get("status"))
	expenses, err := s.records.ListExpenses(r.Context(), actor, yearID, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (s *Server) handleApproveExpense(w http.ResponseWriter, r *http.Request) {
	s.resolveExpense(w, r, true)
}

func (s *Server) handleRejectExpense(w http.ResponseWriter, r *http.Request) {
	s.resolveExpense(w, r, false)
}

func (s *Server) resolveExpense(w http.ResponseWriter, r *http.Request, approve bool) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "expenseID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var expense *core.Expense
	if approve {
		expense, err = s.records.ApproveExpense(r.Context(), actor, id)
	} else {
		expense, err = s.records.RejectExpense(r.Context(), actor, id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateReports(actor.ClubID)
	writeJSON(w, http.StatusOK, expense)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "expenseID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.records.DeleteExpense(r.Context(), actor, id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateReports(actor.ClubID)
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}

type donationRequest struct {
	DonorName string `json:"donor_name"`
	Amount    string `json:"amount"`
}

func (s *Server) handleRecordDonation(w http.ResponseWriter, r *http.Request) {
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

	var req donationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := core.ParsePositiveMoney(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	donation, err := s.records.RecordDonation(r.Context(), actor, yearID,
		sanitizeInput(req.DonorName), amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateReports(actor.ClubID)
	writeJSON(w, http.StatusCreated, donation)
}

func (s *Server) handleListDonations(w http.ResponseWriter, r *http.Request) {
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
	donations, err := s.records.ListDonations(r.Context(), actor, yearID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, donations)
}

func (s *Server) handleDeleteDonation(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "donationID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.records.DeleteDonation(r.Context(), actor, id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateReports(actor.ClubID)
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}

type memberFeeRequest struct {
	MemberID string `json:"member_id"`
	Amount   string `json:"amount"`
	Notes    string `json:"notes"`
}

func (s *Server) handleRecordMemberFee(w http.ResponseWriter, r *http.Request) {
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

	var req memberFeeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := core.ParsePositiveMoney(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	fee, err := s.records.RecordMemberFee(r.Context(), actor, yearID,
		sanitizeInput(req.MemberID), amount, sanitizeInput(req.Notes))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateReports(actor.ClubID)
	writeJSON(w, http.StatusCreated, fee)
}

func (s *Server) handleListMemberFees(w http.ResponseWriter, r *http.Request) {
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
	fees, err := s.records.ListMemberFees(r.Context(), actor, yearID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fees)
}

func (s *Server) handleFeeSummary(w http.ResponseWriter, r *http.Request) {
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
	summary, err := s.records.FeeSummary(r.Context(), actor, yearID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleDeleteMemberFee(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "feeID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.records.DeleteMemberFee(r.Context(), actor, id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateReports(actor.ClubID)
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}
