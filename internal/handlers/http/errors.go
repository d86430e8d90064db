package http

import (
	"errors"
	"net/http"

	"telemed/internal/core/domain"
	"telemed/pkg/circuitbreaker"
	apperrors "telemed/pkg/errors"
)

// toAppError maps domain errors onto API error codes.
func toAppError(err error) *apperrors.AppError {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return apperrors.NewNotFoundError("session")
	case errors.Is(err, domain.ErrReportNotFound):
		return apperrors.NewNotFoundError("quality report")
	case errors.Is(err, domain.ErrUnknownLevel):
		return apperrors.NewInvalidInputError(err.Error())
	case errors.Is(err, domain.ErrAdaptationInProgress):
		return apperrors.NewConflictError("an adaptation is already in progress")
	case errors.Is(err, domain.ErrAdaptationDisabled):
		return apperrors.NewUnprocessableError("adaptation is not enabled for this session")
	case errors.Is(err, circuitbreaker.ErrOpen):
		return apperrors.NewServiceUnavailableError("report store unavailable")
	case errors.Is(err, domain.ErrApplyFailed):
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "constraint change was not applied", http.StatusInternalServerError)
	default:
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "Internal server error", http.StatusInternalServerError)
	}
}
