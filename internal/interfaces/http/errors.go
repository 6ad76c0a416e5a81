package http

import (
	"errors"
	"net/http"

	domainwf "github.com/garyjia/approval-engine/internal/domain/workflow"
)

// statusFor maps workflow errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domainwf.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domainwf.ErrNoMatchingWorkflow),
		errors.Is(err, domainwf.ErrInstanceNotFound),
		errors.Is(err, domainwf.ErrStepInstanceNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainwf.ErrStepAlreadyDecided),
		errors.Is(err, domainwf.ErrInstanceNotActive),
		errors.Is(err, domainwf.ErrStepNotCurrent),
		errors.Is(err, domainwf.ErrConcurrentUpdate),
		errors.Is(err, domainwf.ErrInvalidTransition),
		errors.Is(err, domainwf.ErrNoAgentsResolved):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides store failures from clients
func publicMessage(err error) string {
	if statusFor(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
