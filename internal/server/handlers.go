package server

import (
	"encoding/json"
	"io"
	"net/http"

	"vetting/internal/checks"

	"github.com/alexedwards/flow"
)

func (s *Service) handlePostCheck(w http.ResponseWriter, r *http.Request) {
	var req checks.Request
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !required(req.VolunteerID) || !required(string(req.CheckType)) {
		s.writeError(w, http.StatusBadRequest, "volunteerId and checkType are required")
		return
	}

	check, created, err := s.checks.RequestCheck(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, check)
}

func (s *Service) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	check, err := s.checks.Check(r.Context(), flow.Param(r.Context(), "checkID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, check)
}

func (s *Service) handlePostRefresh(w http.ResponseWriter, r *http.Request) {
	check, err := s.checks.RefreshStatus(r.Context(), flow.Param(r.Context(), "checkID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, check)
}

type validationQuery struct {
	OpportunityID string `form:"opportunity_id"`
}

func (s *Service) handleGetValidation(w http.ResponseWriter, r *http.Request) {
	var q validationQuery
	if err := decoder.Decode(&q, r.URL.Query()); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid query")
		return
	}
	if !required(q.OpportunityID) {
		s.writeError(w, http.StatusBadRequest, "opportunity_id is required")
		return
	}

	result, err := s.validator.Validate(r.Context(), flow.Param(r.Context(), "volunteerID"), q.OpportunityID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

type webhookResponse struct {
	CheckID string `json:"checkId"`
	Status  string `json:"status"`
}

func (s *Service) handlePostWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	check, err := s.checks.HandleWebhook(r.Context(), flow.Param(r.Context(), "providerID"), payload)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, webhookResponse{CheckID: check.ID, Status: string(check.Status)})
}
