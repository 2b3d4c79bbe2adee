package http

import (
	"fmt"
	"net/http"

	"clubledger/internal/core"
	"clubledger/internal/ledger"
)

type yearRequest struct {
	Name                 string  `json:"name"`
	StartDate            string  `json:"start_date"`
	EndDate              string  `json:"end_date"`
	Frequency            string  `json:"frequency"`
	TotalInstallments    int     `json:"total_installments"`
	AmountPerInstallment string  `json:"amount_per_installment"`
	OpeningBalance       *string `json:"opening_balance"`
}

func (req *yearRequest) toInput() (ledger.CreateYearInput, error) {
	var in ledger.CreateYearInput

	start, err := parseDate(req.StartDate)
	if err != nil {
		return in, err
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		return in, err
	}

	in = ledger.CreateYearInput{
		Name:              sanitizeInput(req.Name),
		StartDate:         start,
		EndDate:           end,
		Frequency:         core.Frequency(req.Frequency),
		TotalInstallments: req.TotalInstallments,
	}

	if req.AmountPerInstallment != "" {
		amount, err := core.ParsePositiveMoney(req.AmountPerInstallment)
		if err != nil {
			return in, err
		}
		in.AmountPerInstallment = amount
	}
	if req.OpeningBalance != nil {
		opening, err := core.ParseMoney(*req.OpeningBalance)
		if err != nil {
			return in, err
		}
		in.OpeningBalance = &opening
	}
	return in, nil
}

func (s *Server) handleCreateYear(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req yearRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, r, err)
		return
	}

	year, err := s.years.CreateYear(r.Context(), actor, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateReports(actor.ClubID)
	writeJSON(w, http.StatusCreated, year)
}

func (s *Server) handleListYears(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	years, err := s.years.ListYears(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, years)
}

func (s *Server) handleActiveYear(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	year, err := s.years.ActiveYear(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, year)
}

func (s *Server) handleGetYear(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "yearID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	year, err := s.years.Year(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, year)
}

type yearUpdateRequest struct {
	Name                 *string `json:"name"`
	StartDate            *string `json:"start_date"`
	EndDate              *string `json:"end_date"`
	Frequency            *string `json:"frequency"`
	TotalInstallments    *int    `json:"total_installments"`
	AmountPerInstallment *string `json:"amount_per_installment"`
}

func (s *Server) handleUpdateYear(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "yearID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req yearUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var in ledger.UpdateYearInput
	if req.Name != nil {
		name := sanitizeInput(*req.Name)
		in.Name = &name
	}
	if req.StartDate != nil {
		start, err := parseDate(*req.StartDate)
		if err != nil {
			writeError(w, r, err)
			return
		}
		in.StartDate = &start
	}
	if req.EndDate != nil {
		end, err := parseDate(*req.EndDate)
		if err != nil {
			writeError(w, r, err)
			return
		}
		in.EndDate = &end
	}
	if req.Frequency != nil {
		freq := core.Frequency(*req.Frequency)
		in.Frequency = &freq
	}
	if req.TotalInstallments != nil {
		in.TotalInstallments = req.TotalInstallments
	}
	if req.AmountPerInstallment != nil {
		amount, err := core.ParsePositiveMoney(*req.AmountPerInstallment)
		if err != nil {
			writeError(w, r, err)
			return
		}
		in.AmountPerInstallment = &amount
	}

	year, err := s.years.UpdateYear(r.Context(), actor, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateReports(actor.ClubID)
	writeJSON(w, http.StatusOK, year)
}

func (s *Server) handleCloseYear(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "yearID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	year, err := s.years.CloseYear(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateReports(actor.ClubID)
	writeJSON(w, http.StatusOK, year)
}

func (s *Server) handleRotateYear(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "yearID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req yearRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, r, err)
		return
	}

	next, err := s.years.RotateYear(r.Context(), actor, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateReports(actor.ClubID)
	writeJSON(w, http.StatusCreated, next)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "yearID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	cacheKey := fmt.Sprintf("%s:%d", actor.ClubID, id)
	if report, ok := s.balanceCache.Get(cacheKey); ok {
		writeJSON(w, http.StatusOK, report)
		return
	}

	report, err := s.years.Balance(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.balanceCache.Set(cacheKey, report)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "yearID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	cacheKey := fmt.Sprintf("%s:%d", actor.ClubID, id)
	if summary, ok := s.summaryCache.Get(cacheKey); ok {
		writeJSON(w, http.StatusOK, summary)
		return
	}

	summary, err := s.finance.Summary(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.summaryCache.Set(cacheKey, summary)
	writeJSON(w, http.StatusOK, summary)
}
