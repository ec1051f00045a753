package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"vetting/pkg/types"
)

var (
	errUnsigned     = errors.New("webhook is not signed")
	errBadSignature = errors.New("webhook signature mismatch")
	errNoJWKS       = errors.New("jwks cache not configured")
	errNoExpiry     = errors.New("webhook token has no expiry")
	errBodyMismatch = errors.New("webhook token does not match body")
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps lifecycle errors onto HTTP statuses. Unexpected
// errors are logged and reported as 500 without detail.
func (s *Service) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrVolunteerNotFound),
		errors.Is(err, types.ErrCheckNotFound),
		errors.Is(err, types.ErrUnknownExternalID):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrDuplicateRequest):
		status = http.StatusConflict
	case errors.Is(err, types.ErrUnsupportedCheckType),
		errors.Is(err, types.ErrInvalidCandidateData):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrInvalidWebhook):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrNoActiveProvider):
		status = http.StatusServiceUnavailable
	case types.IsProviderCommunicationError(err):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.logger.WithError(err).Error("request failed")
		s.writeError(w, status, "internal server error")
		return
	}

	s.writeError(w, status, err.Error())
}

func required(v string) bool {
	return strings.TrimSpace(v) != ""
}
