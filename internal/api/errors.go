package api

import (
	"errors"
	"net/http"

	"github.com/digkill/PixelMuse/internal/service"
)

type errorResponse struct {
	Error  string         `json:"error"`
	Remedy service.Remedy `json:"remedy,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNoCredential):
		return http.StatusPreconditionFailed
	case errors.Is(err, service.ErrOutOfCredits),
		errors.Is(err, service.ErrGuestQuotaExhausted):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrResolutionLocked),
		errors.Is(err, service.ErrTemplateLocked),
		errors.Is(err, service.ErrUploadLimit),
		errors.Is(err, service.ErrEditRequiresUpgrade):
		return http.StatusForbidden
	case errors.Is(err, service.ErrEditRequiresLogin),
		errors.Is(err, service.ErrNotLoggedIn),
		errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrEmptyComposition),
		errors.Is(err, service.ErrInvalidSettings),
		errors.Is(err, service.ErrNothingToEdit),
		errors.Is(err, service.ErrEmptyInstruction),
		errors.Is(err, service.ErrUnknownTemplate),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrUnknownPlan),
		errors.Is(err, errBadImage):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrBusy),
		errors.Is(err, service.ErrDuplicateEmail):
		return http.StatusConflict
	case service.IsServiceError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("api handler error", "err", err)
		s.writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Remedy: service.Remediation(err)})
}
